package ticket_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"parking-access-backend/internal/clock"
	"parking-access-backend/internal/dbtest"
	"parking-access-backend/internal/ledger"
	"parking-access-backend/internal/model"
	"parking-access-backend/internal/parking"
	"parking-access-backend/internal/payment"
	"parking-access-backend/internal/pricing"
	"parking-access-backend/internal/store"
	"parking-access-backend/internal/ticket"
)

var start = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

// fakePayments approves every charge unless told otherwise.
type fakePayments struct {
	mu      sync.Mutex
	decline bool
	err     error
	charged []decimal.Decimal
	voided  []string
}

func (p *fakePayments) ProcessPayment(ctx context.Context, customerID *int64, amount decimal.Decimal) (payment.Charge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.charged = append(p.charged, amount)
	if p.err != nil {
		return payment.Charge{}, p.err
	}
	if p.decline {
		return payment.Charge{}, nil
	}
	return payment.Charge{Approved: true, Reference: "ch_test"}, nil
}

func (p *fakePayments) VoidPayment(ctx context.Context, reference string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voided = append(p.voided, reference)
	return nil
}

func (p *fakePayments) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.charged)
}

type receiptRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *receiptRecorder) Dispatch(contractID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, contractID)
}

// brokenContracts fails every contract insert.
type brokenContracts struct {
	store.Store
}

func (brokenContracts) CreateContract(ctx context.Context, c *model.Contract) error {
	return errors.New("disk full")
}

// gateCounter counts gate lookups.
type gateCounter struct {
	store.Store
	mu    sync.Mutex
	gates int
}

func (g *gateCounter) GetGate(ctx context.Context, id string) (*model.Gate, error) {
	g.mu.Lock()
	g.gates++
	g.mu.Unlock()
	return g.Store.GetGate(ctx, id)
}

type env struct {
	f        *dbtest.Fixture
	clock    *clock.Fake
	payments *fakePayments
	receipts *receiptRecorder
	ledger   *ledger.Ledger
	season   *ticket.SeasonFlow
	occ      *ticket.OccasionalFlow
}

func newEnv(t *testing.T) *env {
	t.Helper()
	f := dbtest.New(t)
	e := &env{
		f:        f,
		clock:    clock.NewFake(start),
		payments: &fakePayments{},
		receipts: &receiptRecorder{},
		ledger:   ledger.New(f.Store),
	}
	e.season = e.newSeason(f.Store, e.ledger)
	e.occ = ticket.NewOccasionalFlow(f.Store, parking.NewAllocator(f.Store), pricing.NewService(f.Store), e.payments, e.clock)
	return e
}

func (e *env) newSeason(repo store.Store, contracts ticket.ContractLedger) *ticket.SeasonFlow {
	return ticket.NewSeasonFlow(repo, parking.NewAllocator(repo), contracts, pricing.NewService(repo),
		e.payments, e.clock, ticket.WithReceipts(e.receipts))
}

func (e *env) month() (time.Time, time.Time) {
	return start.Add(-time.Hour), start.AddDate(0, 1, 0)
}

func (e *env) buy(t *testing.T, vehicle model.Vehicle, slot model.ParkingSlot) ticket.PurchaseResult {
	t.Helper()
	from, to := e.month()
	res, err := e.season.Purchase(context.Background(), ticket.PurchaseInput{
		CustomerID:   vehicle.CustomerID,
		LicensePlate: vehicle.LicensePlate,
		SlotID:       slot.ID,
		ValidFrom:    from,
		ValidTo:      to,
	})
	require.NoError(t, err)
	return res
}

func (e *env) count(t *testing.T, value interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.f.DB.Model(value).Count(&n).Error)
	return n
}
