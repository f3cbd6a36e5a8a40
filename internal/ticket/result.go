package ticket

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"parking-access-backend/internal/payment"
)

// Reasons shown on gate, cash and purchase devices.
const (
	ReasonPurchased          = "Season ticket created successfully."
	ReasonInvalidPeriod      = "Valid from must be before valid to."
	ReasonNoVehicle          = "No vehicle with this license plate."
	ReasonSlotNotFound       = "Slot not found."
	ReasonSlotReserved       = "Slot already reserved for the selected period."
	ReasonSlotIncompatible   = "Slot is not compatible with this vehicle."
	ReasonPaymentFailed      = "Payment failed."
	ReasonPaymentUnavailable = "Payment service unavailable."

	ReasonNoSeasonForPlate   = "No active season ticket for this license plate."
	ReasonNoSeasonForVehicle = "No active season ticket for this vehicle."
	ReasonInUse              = "Season ticket already in use."
	ReasonGateNotFound       = "Gate not found."
	ReasonEntryGranted       = "Entry granted."
	ReasonNoOpenEntry        = "No open entry for this ticket."
	ReasonExitGranted        = "Exit granted."
	ReasonContractNotFound   = "Season ticket not found."
	ReasonParkedMinutes      = "Parked time calculated."

	ReasonPlateRequired  = "License plate is required."
	ReasonTicketActive   = "Occasional ticket already active for this license plate."
	ReasonNoFreeSlot     = "No free slot available."
	ReasonNoActiveTicket = "No active occasional ticket for this license plate."
	ReasonPriced         = "Price calculated."
	ReasonAlreadyPaid    = "Ticket already paid."
	ReasonPaid           = "Payment successful."
	ReasonNotPaid        = "Ticket not paid."
	ReasonGraceExpired   = "Grace period expired. Please pay again."
)

// Kind classifies a rejected use case.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindInvalid            Kind = "invalid"
	KindPaymentDeclined    Kind = "payment_declined"
	KindPaymentUnavailable Kind = "payment_unavailable"
	KindNotPaid            Kind = "not_paid"
	KindGraceExpired       Kind = "grace_period_expired"
)

// Outcome is the common part of every use case result.
type Outcome struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
	Kind    Kind   `json:"kind,omitempty"`
}

func granted(reason string) Outcome {
	return Outcome{Success: true, Reason: reason}
}

func denied(kind Kind, reason string) Outcome {
	return Outcome{Kind: kind, Reason: reason}
}

// PurchaseInput is a season ticket purchase request.
type PurchaseInput struct {
	CustomerID   int64
	LicensePlate string
	SlotID       int64
	ValidFrom    time.Time
	ValidTo      time.Time
}

type PurchaseResult struct {
	Outcome
	ContractID string           `json:"contract_id,omitempty"`
	PaymentID  string           `json:"payment_id,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
}

// GateResult answers an entry or exit at a gate.
type GateResult struct {
	Outcome
	OpenGate   bool   `json:"open_gate"`
	ContractID string `json:"contract_id,omitempty"`
	MovementID string `json:"movement_id,omitempty"`
	TicketID   string `json:"ticket_id,omitempty"`
}

type ParkedMinutesResult struct {
	Outcome
	ContractID   string `json:"contract_id,omitempty"`
	TotalMinutes int    `json:"total_minutes"`
}

// EntryResult answers an occasional entry.
type EntryResult struct {
	Outcome
	OpenGate  bool   `json:"open_gate"`
	TicketID  string `json:"ticket_id,omitempty"`
	SlotID    int64  `json:"slot_id,omitempty"`
	SlotLabel string `json:"slot_label,omitempty"`
}

type PricingResult struct {
	Outcome
	TicketID        string           `json:"ticket_id,omitempty"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	DurationMinutes int              `json:"duration_minutes"`
}

type PaymentResult struct {
	Outcome
	TicketID        string           `json:"ticket_id,omitempty"`
	AmountPaid      *decimal.Decimal `json:"amount_paid,omitempty"`
	DurationMinutes int              `json:"duration_minutes"`
	PaidAt          *time.Time       `json:"paid_at,omitempty"`
	ExitDeadline    *time.Time       `json:"exit_deadline,omitempty"`
}

// rejection aborts the use case transaction with a structured outcome.
type rejection struct {
	outcome Outcome
}

func (r *rejection) Error() string {
	return "ticket: " + string(r.outcome.Kind) + ": " + r.outcome.Reason
}

func reject(kind Kind, reason string) error {
	return &rejection{outcome: denied(kind, reason)}
}

// rejected extracts the outcome of a business rejection from err.
func rejected(err error) (Outcome, bool) {
	var r *rejection
	if errors.As(err, &r) {
		return r.outcome, true
	}
	return Outcome{}, false
}

// voidCharge refunds an approved charge whose transaction did not commit.
func voidCharge(ctx context.Context, payments PaymentPort, charge payment.Charge, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := payments.VoidPayment(ctx, charge.Reference); err != nil {
		log.Printf("Failed to void charge %s after %v: %v", charge.Reference, cause, err)
		return
	}
	log.Printf("Voided charge %s after %v", charge.Reference, cause)
}
