// Package ticket implements the season ticket and occasional ticket use cases.
// Every use case runs in one store transaction.
package ticket

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"parking-access-backend/internal/model"
	"parking-access-backend/internal/payment"
)

// PricingPort computes prices from the slot category.
type PricingPort interface {
	SeasonPrice(ctx context.Context, slotID int64, period model.Period) (decimal.Decimal, error)
	OccasionalPrice(ctx context.Context, slotID int64, minutes int) (decimal.Decimal, error)
}

// PaymentPort authorizes charges. A returned error means the service is
// unavailable; a decline is an unapproved Charge.
type PaymentPort interface {
	ProcessPayment(ctx context.Context, customerID *int64, amount decimal.Decimal) (payment.Charge, error)
	VoidPayment(ctx context.Context, reference string) error
}

// ReceiptNotifier is told about every committed season ticket purchase.
type ReceiptNotifier interface {
	Dispatch(contractID string)
}

// Repository is the persistence the flows use directly.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetGate(ctx context.Context, id string) (*model.Gate, error)
	GetVehicleByPlate(ctx context.Context, plate string) (*model.Vehicle, error)
	GetOwnedVehicle(ctx context.Context, customerID int64, plate string) (*model.Vehicle, error)
	LockActiveRegularContract(ctx context.Context, vehicleID int64, at time.Time) (*model.Contract, error)

	HasOpenTicket(ctx context.Context, plate string) (bool, error)
	CreateTicket(ctx context.Context, t *model.OccasionalTicket) error
	UpdateTicket(ctx context.Context, t *model.OccasionalTicket, columns ...string) error
	LockLatestOpenTicket(ctx context.Context, plate string) (*model.OccasionalTicket, error)
}

// SlotAllocator is the slot selection the flows rely on.
type SlotAllocator interface {
	LockAndCheckAvailable(ctx context.Context, slotID int64, period model.Period) (*model.ParkingSlot, bool, error)
	IsCompatible(slot *model.ParkingSlot, vehicle *model.Vehicle) bool
	LockFirstFree(ctx context.Context, at time.Time) (*model.ParkingSlot, error)
}

// ContractLedger records contracts, movements and payments.
type ContractLedger interface {
	CreateRegularContract(ctx context.Context, vehicle *model.Vehicle, customerID int64, period model.Period, slotID int64, price decimal.Decimal, paymentID *string) (*model.Contract, error)
	Contract(ctx context.Context, id string) (*model.Contract, error)
	HasOpenMovement(ctx context.Context, contractID string) (bool, error)
	GetOpenMovement(ctx context.Context, contractID string) (*model.Movement, error)
	OpenMovement(ctx context.Context, contractID string, at time.Time, gateID string) (*model.Movement, error)
	CloseMovement(ctx context.Context, contractID string, at time.Time, gateID string) (*model.Movement, error)
	TotalParkedMinutes(ctx context.Context, contractID string) (int, error)
	RecordPayment(ctx context.Context, amount decimal.Decimal, reference string) (*model.Payment, error)
}
