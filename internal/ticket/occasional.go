package ticket

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"parking-access-backend/internal/clock"
	"parking-access-backend/internal/model"
	"parking-access-backend/internal/parking"
	"parking-access-backend/internal/parse"
	"parking-access-backend/internal/payment"
	"parking-access-backend/internal/store"
)

// DefaultGracePeriod is the time a paid ticket has to leave.
const DefaultGracePeriod = 15 * time.Minute

var (
	dueColumns     = []string{"amount_due"}
	paymentColumns = []string{"amount_due", "amount_paid", "paid_at", "exit_deadline"}
	exitColumns    = []string{"exit_time", "is_closed"}
)

// OccasionalFlow handles anonymous pay-per-stay tickets:
// issue at entry, price on demand, pay, then exit within the grace period.
type OccasionalFlow struct {
	repo     Repository
	slots    SlotAllocator
	pricing  PricingPort
	payments PaymentPort
	clock    clock.Clock
	grace    time.Duration
}

type OccasionalFlowOption func(*OccasionalFlow)

// WithGracePeriod overrides DefaultGracePeriod.
func WithGracePeriod(d time.Duration) OccasionalFlowOption {
	return func(f *OccasionalFlow) {
		if d > 0 {
			f.grace = d
		}
	}
}

func NewOccasionalFlow(repo Repository, slots SlotAllocator, pricing PricingPort, payments PaymentPort, clk clock.Clock, opts ...OccasionalFlowOption) *OccasionalFlow {
	f := &OccasionalFlow{
		repo:     repo,
		slots:    slots,
		pricing:  pricing,
		payments: payments,
		clock:    clk,
		grace:    DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// StartEntry issues a ticket on the first free slot. The slot row stays
// locked until the ticket is written.
func (f *OccasionalFlow) StartEntry(ctx context.Context, plate, gateID string) (EntryResult, error) {
	plate = parse.NormalizePlate(plate)
	if plate == "" {
		return EntryResult{Outcome: denied(KindInvalid, ReasonPlateRequired)}, nil
	}
	now := f.clock.Now()

	var res EntryResult
	err := f.repo.WithTx(ctx, func(ctx context.Context) error {
		gate, err := f.repo.GetGate(ctx, gateID)
		if errors.Is(err, store.ErrNotFound) {
			return reject(KindNotFound, ReasonGateNotFound)
		}
		if err != nil {
			return err
		}

		active, err := f.repo.HasOpenTicket(ctx, plate)
		if err != nil {
			return err
		}
		if active {
			return reject(KindConflict, ReasonTicketActive)
		}

		slot, err := f.slots.LockFirstFree(ctx, now)
		if errors.Is(err, parking.ErrNoFreeSlot) {
			return reject(KindConflict, ReasonNoFreeSlot)
		}
		if err != nil {
			return err
		}

		t := &model.OccasionalTicket{
			LicensePlate: plate,
			SlotID:       slot.ID,
			EntryGateID:  &gate.ID,
			EntryTime:    now,
		}
		if err := f.repo.CreateTicket(ctx, t); err != nil {
			return err
		}

		res = EntryResult{
			Outcome:   granted(ReasonEntryGranted),
			OpenGate:  true,
			TicketID:  t.ID,
			SlotID:    slot.ID,
			SlotLabel: slot.Label(),
		}
		return nil
	})
	if out, ok := rejected(err); ok {
		return EntryResult{Outcome: out}, nil
	}
	if err != nil {
		return EntryResult{}, err
	}
	return res, nil
}

// GetPricing prices the newest open ticket for the time elapsed so far and
// stores the amount due.
func (f *OccasionalFlow) GetPricing(ctx context.Context, plate string) (PricingResult, error) {
	now := f.clock.Now()

	var res PricingResult
	err := f.repo.WithTx(ctx, func(ctx context.Context) error {
		t, err := f.lockTicket(ctx, plate)
		if err != nil {
			return err
		}
		res, err = f.quote(ctx, t, now)
		return err
	})
	if out, ok := rejected(err); ok {
		return PricingResult{Outcome: out}, nil
	}
	if err != nil {
		return PricingResult{}, err
	}
	return res, nil
}

// Pay re-prices the ticket at the current time and charges that amount.
// A declined or failed charge rolls the ticket back untouched.
// A ticket that is paid and still inside its grace period is rejected with
// ReasonAlreadyPaid. A zero amount is marked paid without calling the
// PaymentPort.
func (f *OccasionalFlow) Pay(ctx context.Context, plate string) (PaymentResult, error) {
	now := f.clock.Now()

	var (
		res    PaymentResult
		charge payment.Charge
	)
	err := f.repo.WithTx(ctx, func(ctx context.Context) error {
		t, err := f.lockTicket(ctx, plate)
		if err != nil {
			return err
		}
		if t.IsPaid() && t.WithinGracePeriod(now) {
			return reject(KindConflict, ReasonAlreadyPaid)
		}

		q, err := f.quote(ctx, t, now)
		if err != nil {
			return err
		}
		amount := *q.Amount

		// Nothing to charge before the first full minute.
		if amount.IsPositive() {
			c, err := f.payments.ProcessPayment(ctx, nil, amount)
			if err != nil {
				log.Printf("Payment service error for ticket %s: %v", t.ID, err)
				return reject(KindPaymentUnavailable, ReasonPaymentUnavailable)
			}
			if !c.Approved {
				return reject(KindPaymentDeclined, ReasonPaymentFailed)
			}
			charge = c
		}

		t.MarkPaid(amount, now, f.grace)
		if err := f.repo.UpdateTicket(ctx, t, paymentColumns...); err != nil {
			return err
		}

		res = PaymentResult{
			Outcome:         granted(ReasonPaid),
			TicketID:        t.ID,
			AmountPaid:      &amount,
			DurationMinutes: q.DurationMinutes,
			PaidAt:          t.PaidAt,
			ExitDeadline:    t.ExitDeadline,
		}
		return nil
	})
	if err != nil {
		if charge.Approved {
			voidCharge(ctx, f.payments, charge, err)
		}
		if out, ok := rejected(err); ok {
			return PaymentResult{Outcome: out}, nil
		}
		return PaymentResult{}, err
	}
	return res, nil
}

// Exit closes a paid ticket inside its grace period. After the deadline the
// payment is reset and committed, and exit is denied until the ticket is
// paid again.
func (f *OccasionalFlow) Exit(ctx context.Context, plate, gateID string) (GateResult, error) {
	now := f.clock.Now()

	var res GateResult
	err := f.repo.WithTx(ctx, func(ctx context.Context) error {
		t, err := f.lockTicket(ctx, plate)
		if err != nil {
			return err
		}
		if !t.IsPaid() {
			return reject(KindNotPaid, ReasonNotPaid)
		}
		if !t.WithinGracePeriod(now) {
			t.ResetPayment()
			if err := f.repo.UpdateTicket(ctx, t, paymentColumns...); err != nil {
				return err
			}
			res = GateResult{Outcome: denied(KindGraceExpired, ReasonGraceExpired), TicketID: t.ID}
			return nil
		}

		if _, err := f.repo.GetGate(ctx, gateID); errors.Is(err, store.ErrNotFound) {
			return reject(KindNotFound, ReasonGateNotFound)
		} else if err != nil {
			return err
		}

		t.Close(now)
		if err := f.repo.UpdateTicket(ctx, t, exitColumns...); err != nil {
			return err
		}
		res = GateResult{
			Outcome:  granted(ReasonExitGranted),
			OpenGate: true,
			TicketID: t.ID,
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

func (f *OccasionalFlow) lockTicket(ctx context.Context, plate string) (*model.OccasionalTicket, error) {
	t, err := f.repo.LockLatestOpenTicket(ctx, plate)
	if errors.Is(err, store.ErrNotFound) {
		return nil, reject(KindNotFound, ReasonNoActiveTicket)
	}
	return t, err
}

// quote prices a locked ticket at now and persists the amount due.
func (f *OccasionalFlow) quote(ctx context.Context, t *model.OccasionalTicket, now time.Time) (PricingResult, error) {
	minutes := t.ElapsedMinutes(now)
	amount, err := f.pricing.OccasionalPrice(ctx, t.SlotID, minutes)
	if err != nil {
		return PricingResult{}, err
	}
	t.AmountDue = decimal.NewNullDecimal(amount)
	if err := f.repo.UpdateTicket(ctx, t, dueColumns...); err != nil {
		return PricingResult{}, err
	}
	return PricingResult{
		Outcome:         granted(ReasonPriced),
		TicketID:        t.ID,
		Amount:          &amount,
		DurationMinutes: minutes,
	}, nil
}
