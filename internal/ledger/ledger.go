// Package ledger owns contract, movement and payment state.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"parking-access-backend/internal/model"
	"parking-access-backend/internal/store"
)

var (
	ErrMovementAlreadyOpen = errors.New("ledger: contract already has an open movement")
	ErrNoOpenMovement      = errors.New("ledger: contract has no open movement")
)

// Repository is the persistence the ledger needs.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	HasOverlap(ctx context.Context, slotID int64, period model.Period) (bool, error)
	CreateContract(ctx context.Context, c *model.Contract) error
	GetContract(ctx context.Context, id string) (*model.Contract, error)
	LockContract(ctx context.Context, id string) (*model.Contract, error)

	HasOpenMovement(ctx context.Context, contractID string) (bool, error)
	LockOpenMovement(ctx context.Context, contractID string) (*model.Movement, error)
	CreateMovement(ctx context.Context, m *model.Movement) error
	CloseMovement(ctx context.Context, m *model.Movement) error
	ListMovements(ctx context.Context, contractID string) ([]model.Movement, error)
	ListMovementsOverlapping(ctx context.Context, period model.Period, areaID *int64) ([]model.Movement, error)

	CreatePayment(ctx context.Context, p *model.Payment) error
	LockPayment(ctx context.Context, id string) (*model.Payment, error)
	UpdatePaymentStatus(ctx context.Context, p *model.Payment) error
	ListPaymentIDsByStatus(ctx context.Context, status model.PaymentStatus, limit int) ([]string, error)
}

// Ledger records contracts and their movements and payments.
type Ledger struct {
	repo Repository
}

func New(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// CreateRegularContract stores a season ticket for vehicle on slotID.
// The caller must have confirmed the slot free under LockSlot in the same transaction.
func (l *Ledger) CreateRegularContract(ctx context.Context, vehicle *model.Vehicle, customerID int64, period model.Period, slotID int64, price decimal.Decimal, paymentID *string) (*model.Contract, error) {
	c, err := model.NewRegularContract(vehicle.ID, customerID, period, slotID, price, paymentID)
	if err != nil {
		return nil, err
	}
	if err := l.repo.CreateContract(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (l *Ledger) HasOverlap(ctx context.Context, slotID int64, period model.Period) (bool, error) {
	return l.repo.HasOverlap(ctx, slotID, period)
}

func (l *Ledger) Contract(ctx context.Context, id string) (*model.Contract, error) {
	return l.repo.GetContract(ctx, id)
}

func (l *Ledger) HasOpenMovement(ctx context.Context, contractID string) (bool, error) {
	return l.repo.HasOpenMovement(ctx, contractID)
}

// GetOpenMovement locks and returns the newest open movement of a contract.
func (l *Ledger) GetOpenMovement(ctx context.Context, contractID string) (*model.Movement, error) {
	m, err := l.repo.LockOpenMovement(ctx, contractID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoOpenMovement
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// OpenMovement starts a movement at at. The contract row is locked first so
// two concurrent entries cannot both pass the open movement check.
func (l *Ledger) OpenMovement(ctx context.Context, contractID string, at time.Time, gateID string) (*model.Movement, error) {
	if _, err := l.repo.LockContract(ctx, contractID); err != nil {
		return nil, err
	}
	open, err := l.repo.HasOpenMovement(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, ErrMovementAlreadyOpen
	}

	m := &model.Movement{ContractID: contractID, EntryTime: at}
	if gateID != "" {
		m.EntryGateID = &gateID
	}
	if err := l.repo.CreateMovement(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// CloseMovement ends the newest open movement of a contract at at.
func (l *Ledger) CloseMovement(ctx context.Context, contractID string, at time.Time, gateID string) (*model.Movement, error) {
	m, err := l.GetOpenMovement(ctx, contractID)
	if err != nil {
		return nil, err
	}
	m.ExitTime = &at
	if gateID != "" {
		m.ExitGateID = &gateID
	}
	if err := l.repo.CloseMovement(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// TotalParkedMinutes sums the whole minutes of every closed movement.
func (l *Ledger) TotalParkedMinutes(ctx context.Context, contractID string) (int, error) {
	movements, err := l.repo.ListMovements(ctx, contractID)
	if err != nil {
		return 0, err
	}
	total := 0
	for i := range movements {
		total += movements[i].DurationMinutes()
	}
	return total, nil
}

// MovementsOverlapping lists the closed movements that overlap period.
// A nil areaID covers every area.
func (l *Ledger) MovementsOverlapping(ctx context.Context, period model.Period, areaID *int64) ([]model.Movement, error) {
	if !period.Valid() {
		return nil, model.ErrInvalidPeriod
	}
	return l.repo.ListMovementsOverlapping(ctx, period, areaID)
}

// RecordPayment stores an approved charge as AUTHORIZED.
func (l *Ledger) RecordPayment(ctx context.Context, amount decimal.Decimal, reference string) (*model.Payment, error) {
	p := &model.Payment{
		Amount:    amount,
		Status:    model.PaymentAuthorized,
		Reference: reference,
	}
	if err := l.repo.CreatePayment(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SettlePayment moves a payment to SETTLED. It returns
// model.ErrInvalidTransition for payments that are already final.
func (l *Ledger) SettlePayment(ctx context.Context, paymentID string, at time.Time) error {
	return l.repo.WithTx(ctx, func(ctx context.Context) error {
		p, err := l.repo.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := p.Settle(at); err != nil {
			return fmt.Errorf("payment %s is %s: %w", p.ID, p.Status, err)
		}
		return l.repo.UpdatePaymentStatus(ctx, p)
	})
}

// PendingSettlement lists up to limit AUTHORIZED payment ids, oldest first.
func (l *Ledger) PendingSettlement(ctx context.Context, limit int) ([]string, error) {
	return l.repo.ListPaymentIDsByStatus(ctx, model.PaymentAuthorized, limit)
}
