package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrInvalidTransition = errors.New("model: invalid payment status transition")

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentAuthorized PaymentStatus = "AUTHORIZED"
	PaymentPending    PaymentStatus = "PENDING"
	PaymentSettled    PaymentStatus = "SETTLED"
	PaymentFailed     PaymentStatus = "FAILED"
)

// Payment records a charge taken for a season ticket.
type Payment struct {
	ID          string          `gorm:"primaryKey;size:36"`
	Amount      decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Status      PaymentStatus   `gorm:"size:16;not null;index"`
	Reference   string          `gorm:"size:128"` // provider charge id
	PerformedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsFinal reports whether the payment can no longer change state.
func (p *Payment) IsFinal() bool {
	return p.Status == PaymentSettled || p.Status == PaymentFailed
}

// Settle marks the payment SETTLED at the given time. Final payments never move.
func (p *Payment) Settle(at time.Time) error {
	if p.IsFinal() {
		return ErrInvalidTransition
	}
	p.Status = PaymentSettled
	p.PerformedAt = &at
	return nil
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = PaymentPending
	}
	return nil
}
