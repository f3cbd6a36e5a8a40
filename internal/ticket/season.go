package ticket

import (
	"context"
	"errors"
	"log"

	"parking-access-backend/internal/clock"
	"parking-access-backend/internal/ledger"
	"parking-access-backend/internal/model"
	"parking-access-backend/internal/payment"
	"parking-access-backend/internal/store"
)

// SeasonFlow handles season ticket purchase, gate entry and gate exit.
type SeasonFlow struct {
	repo     Repository
	slots    SlotAllocator
	ledger   ContractLedger
	pricing  PricingPort
	payments PaymentPort
	clock    clock.Clock
	receipts ReceiptNotifier
}

type SeasonFlowOption func(*SeasonFlow)

// WithReceipts sends a receipt for every committed purchase.
func WithReceipts(n ReceiptNotifier) SeasonFlowOption {
	return func(f *SeasonFlow) {
		f.receipts = n
	}
}

func NewSeasonFlow(repo Repository, slots SlotAllocator, contracts ContractLedger, pricing PricingPort, payments PaymentPort, clk clock.Clock, opts ...SeasonFlowOption) *SeasonFlow {
	f := &SeasonFlow{
		repo:     repo,
		slots:    slots,
		ledger:   contracts,
		pricing:  pricing,
		payments: payments,
		clock:    clk,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Purchase reserves a slot for an owned vehicle over a period. The slot lock
// is taken before the overlap check, and pricing, payment and contract
// creation follow in the same transaction. An approved charge whose
// transaction fails is voided.
func (f *SeasonFlow) Purchase(ctx context.Context, in PurchaseInput) (PurchaseResult, error) {
	period := model.Period{From: in.ValidFrom, To: in.ValidTo}
	if !period.Valid() {
		return PurchaseResult{Outcome: denied(KindInvalid, ReasonInvalidPeriod)}, nil
	}

	var (
		res    PurchaseResult
		charge payment.Charge
	)
	err := f.repo.WithTx(ctx, func(ctx context.Context) error {
		vehicle, err := f.repo.GetOwnedVehicle(ctx, in.CustomerID, in.LicensePlate)
		if errors.Is(err, store.ErrNotFound) {
			return reject(KindNotFound, ReasonNoVehicle)
		}
		if err != nil {
			return err
		}

		slot, free, err := f.slots.LockAndCheckAvailable(ctx, in.SlotID, period)
		if errors.Is(err, store.ErrNotFound) {
			return reject(KindNotFound, ReasonSlotNotFound)
		}
		if err != nil {
			return err
		}
		if !free {
			return reject(KindConflict, ReasonSlotReserved)
		}
		if !f.slots.IsCompatible(slot, vehicle) {
			return reject(KindInvalid, ReasonSlotIncompatible)
		}

		price, err := f.pricing.SeasonPrice(ctx, slot.ID, period)
		if err != nil {
			return err
		}

		customerID := in.CustomerID
		c, err := f.payments.ProcessPayment(ctx, &customerID, price)
		if err != nil {
			log.Printf("Payment service error for customer %d: %v", customerID, err)
			return reject(KindPaymentUnavailable, ReasonPaymentUnavailable)
		}
		if !c.Approved {
			return reject(KindPaymentDeclined, ReasonPaymentFailed)
		}
		charge = c

		p, err := f.ledger.RecordPayment(ctx, price, c.Reference)
		if err != nil {
			return err
		}
		contract, err := f.ledger.CreateRegularContract(ctx, vehicle, in.CustomerID, period, slot.ID, price, &p.ID)
		if err != nil {
			return err
		}

		res = PurchaseResult{
			Outcome:    granted(ReasonPurchased),
			ContractID: contract.ID,
			PaymentID:  p.ID,
			Price:      &price,
		}
		return nil
	})
	if err != nil {
		if charge.Approved {
			voidCharge(ctx, f.payments, charge, err)
		}
		if out, ok := rejected(err); ok {
			return PurchaseResult{Outcome: out}, nil
		}
		return PurchaseResult{}, err
	}

	if f.receipts != nil {
		f.receipts.Dispatch(res.ContractID)
	}
	return res, nil
}

// Enter opens a movement for the vehicle's active season ticket. The contract
// is locked before the in-use check and the gate is validated before any
// movement is written.
func (f *SeasonFlow) Enter(ctx context.Context, plate, gateID string) (GateResult, error) {
	now := f.clock.Now()

	var res GateResult
	err := f.repo.WithTx(ctx, func(ctx context.Context) error {
		vehicle, err := f.repo.GetVehicleByPlate(ctx, plate)
		if errors.Is(err, store.ErrNotFound) {
			return reject(KindNotFound, ReasonNoVehicle)
		}
		if err != nil {
			return err
		}

		contract, err := f.repo.LockActiveRegularContract(ctx, vehicle.ID, now)
		if errors.Is(err, store.ErrNotFound) {
			return reject(KindNotFound, ReasonNoSeasonForPlate)
		}
		if err != nil {
			return err
		}

		open, err := f.ledger.HasOpenMovement(ctx, contract.ID)
		if err != nil {
			return err
		}
		if open {
			return reject(KindConflict, ReasonInUse)
		}

		if _, err := f.repo.GetGate(ctx, gateID); errors.Is(err, store.ErrNotFound) {
			return reject(KindNotFound, ReasonGateNotFound)
		} else if err != nil {
			return err
		}

		m, err := f.ledger.OpenMovement(ctx, contract.ID, now, gateID)
		if errors.Is(err, ledger.ErrMovementAlreadyOpen) {
			return reject(KindConflict, ReasonInUse)
		}
		if err != nil {
			return err
		}

		res = GateResult{
			Outcome:    granted(ReasonEntryGranted),
			OpenGate:   true,
			ContractID: contract.ID,
			MovementID: m.ID,
		}
		return nil
	})
	if out, ok := rejected(err); ok {
		return GateResult{Outcome: out}, nil
	}
	if err != nil {
		return GateResult{}, err
	}
	return res, nil
}

// Exit closes the open movement of the vehicle's active season ticket.
// Without an open movement the gate is never consulted.
func (f *SeasonFlow) Exit(ctx context.Context, plate, gateID string) (GateResult, error) {
	now := f.clock.Now()

	var res GateResult
	err := f.repo.WithTx(ctx, func(ctx context.Context) error {
		vehicle, err := f.repo.GetVehicleByPlate(ctx, plate)
		if errors.Is(err, store.ErrNotFound) {
			return reject(KindNotFound, ReasonNoVehicle)
		}
		if err != nil {
			return err
		}

		contract, err := f.repo.LockActiveRegularContract(ctx, vehicle.ID, now)
		if errors.Is(err, store.ErrNotFound) {
			return reject(KindNotFound, ReasonNoSeasonForVehicle)
		}
		if err != nil {
			return err
		}

		if _, err := f.ledger.GetOpenMovement(ctx, contract.ID); errors.Is(err, ledger.ErrNoOpenMovement) {
			return reject(KindConflict, ReasonNoOpenEntry)
		} else if err != nil {
			return err
		}

		if _, err := f.repo.GetGate(ctx, gateID); errors.Is(err, store.ErrNotFound) {
			return reject(KindNotFound, ReasonGateNotFound)
		} else if err != nil {
			return err
		}

		m, err := f.ledger.CloseMovement(ctx, contract.ID, now, gateID)
		if err != nil {
			return err
		}

		res = GateResult{
			Outcome:    granted(ReasonExitGranted),
			OpenGate:   true,
			ContractID: contract.ID,
			MovementID: m.ID,
		}
		return nil
	})
	if out, ok := rejected(err); ok {
		return GateResult{Outcome: out}, nil
	}
	if err != nil {
		return GateResult{}, err
	}
	return res, nil
}

// ParkedMinutes reports the total closed parking time of a season ticket.
func (f *SeasonFlow) ParkedMinutes(ctx context.Context, contractID string) (ParkedMinutesResult, error) {
	if _, err := f.ledger.Contract(ctx, contractID); errors.Is(err, store.ErrNotFound) {
		return ParkedMinutesResult{Outcome: denied(KindNotFound, ReasonContractNotFound)}, nil
	} else if err != nil {
		return ParkedMinutesResult{}, err
	}

	total, err := f.ledger.TotalParkedMinutes(ctx, contractID)
	if err != nil {
		return ParkedMinutesResult{}, err
	}
	return ParkedMinutesResult{
		Outcome:      granted(ReasonParkedMinutes),
		ContractID:   contractID,
		TotalMinutes: total,
	}, nil
}
