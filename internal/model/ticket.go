package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"parking-access-backend/internal/parse"
)

// OccasionalTicket is an anonymous pay-per-stay session identified by plate.
type OccasionalTicket struct {
	ID           string              `gorm:"primaryKey;size:36"`
	LicensePlate string              `gorm:"size:16;not null;index:idx_ticket_plate_open,priority:1"`
	SlotID       int64               `gorm:"not null;index"`
	EntryGateID  *string             `gorm:"size:36"`
	EntryTime    time.Time           `gorm:"not null"`
	ExitTime     *time.Time
	AmountDue    decimal.NullDecimal `gorm:"type:numeric(10,2)"`
	AmountPaid   decimal.NullDecimal `gorm:"type:numeric(10,2)"`
	PaidAt       *time.Time
	ExitDeadline *time.Time
	IsClosed     bool `gorm:"not null;default:false;index:idx_ticket_plate_open,priority:2"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Slot *ParkingSlot
}

// IsPaid reports whether both the paid amount and the payment time are set.
func (t *OccasionalTicket) IsPaid() bool {
	return t.AmountPaid.Valid && t.PaidAt != nil
}

// WithinGracePeriod reports now <= exit_deadline.
func (t *OccasionalTicket) WithinGracePeriod(now time.Time) bool {
	return t.ExitDeadline != nil && !now.After(*t.ExitDeadline)
}

// ElapsedMinutes is floor(seconds since entry / 60), never negative.
func (t *OccasionalTicket) ElapsedMinutes(now time.Time) int {
	secs := int64(now.Sub(t.EntryTime) / time.Second)
	if secs < 0 {
		return 0
	}
	return int(secs / 60)
}

// MarkPaid records a payment and opens the exit window of length grace.
func (t *OccasionalTicket) MarkPaid(amount decimal.Decimal, at time.Time, grace time.Duration) {
	deadline := at.Add(grace)
	t.AmountDue = decimal.NewNullDecimal(amount)
	t.AmountPaid = decimal.NewNullDecimal(amount)
	t.PaidAt = &at
	t.ExitDeadline = &deadline
}

// ResetPayment returns the ticket to the unpaid state.
func (t *OccasionalTicket) ResetPayment() {
	t.AmountDue = decimal.NullDecimal{}
	t.AmountPaid = decimal.NullDecimal{}
	t.PaidAt = nil
	t.ExitDeadline = nil
}

func (t *OccasionalTicket) Close(at time.Time) {
	t.ExitTime = &at
	t.IsClosed = true
}

func (t *OccasionalTicket) BeforeSave(tx *gorm.DB) error {
	t.LicensePlate = parse.NormalizePlate(t.LicensePlate)
	return nil
}

func (t *OccasionalTicket) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
