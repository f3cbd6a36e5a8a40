package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidPeriod   = errors.New("model: valid_from must be before valid_to")
	ErrInvalidContract = errors.New("model: contract payload does not match its kind")
)

// Period is a half-open validity interval [From, To).
type Period struct {
	From time.Time
	To   time.Time
}

func (p Period) Valid() bool {
	return p.From.Before(p.To)
}

// Overlaps is the half-open interval test: p.From < o.To && p.To > o.From.
func (p Period) Overlaps(o Period) bool {
	return p.From.Before(o.To) && p.To.After(o.From)
}

// Contains reports From <= t <= To.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.From) && !t.After(p.To)
}

// ContractKind discriminates the contract variants stored in one table.
type ContractKind string

const (
	ContractRegular    ContractKind = "regular"
	ContractOccasional ContractKind = "occasional"
)

// Contract is the shared payload of every contract variant. Regular contracts
// (season tickets) also carry a customer and optionally a payment; occasional
// contracts carry neither.
type Contract struct {
	ID        string          `gorm:"primaryKey;size:36"`
	Kind      ContractKind    `gorm:"size:16;not null;index"`
	VehicleID int64           `gorm:"index;not null"`
	SlotID    *int64          `gorm:"index:idx_contract_slot_period,priority:1"`
	ValidFrom time.Time       `gorm:"not null;index:idx_contract_slot_period,priority:2"`
	ValidTo   time.Time       `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:numeric(10,2);not null"`

	// Regular payload
	CustomerID *int64  `gorm:"index"`
	PaymentID  *string `gorm:"size:36"`

	CreatedAt time.Time

	Vehicle   Vehicle
	Slot      *ParkingSlot
	Customer  *Customer
	Payment   *Payment
	Movements []Movement `gorm:"foreignKey:ContractID"`
}

// RegularTerms is the variant payload of a season ticket.
type RegularTerms struct {
	CustomerID int64
	PaymentID  *string
}

// NewRegularContract builds a validated season ticket contract.
func NewRegularContract(vehicleID, customerID int64, period Period, slotID int64, price decimal.Decimal, paymentID *string) (*Contract, error) {
	c := &Contract{
		Kind:       ContractRegular,
		VehicleID:  vehicleID,
		SlotID:     &slotID,
		ValidFrom:  period.From,
		ValidTo:    period.To,
		Price:      price,
		CustomerID: &customerID,
		PaymentID:  paymentID,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewOccasionalContract builds a validated contract without a customer.
func NewOccasionalContract(vehicleID int64, period Period, slotID *int64, price decimal.Decimal) (*Contract, error) {
	c := &Contract{
		Kind:      ContractOccasional,
		VehicleID: vehicleID,
		SlotID:    slotID,
		ValidFrom: period.From,
		ValidTo:   period.To,
		Price:     price,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Contract) Period() Period {
	return Period{From: c.ValidFrom, To: c.ValidTo}
}

// Regular returns the season ticket payload, if c is one.
func (c *Contract) Regular() (RegularTerms, bool) {
	if c.Kind != ContractRegular || c.CustomerID == nil {
		return RegularTerms{}, false
	}
	return RegularTerms{CustomerID: *c.CustomerID, PaymentID: c.PaymentID}, true
}

// IsActiveAt reports valid_from <= t <= valid_to.
func (c *Contract) IsActiveAt(t time.Time) bool {
	return c.Period().Contains(t)
}

// Validate checks the period and that the payload matches the kind.
func (c *Contract) Validate() error {
	if !c.Period().Valid() {
		return ErrInvalidPeriod
	}
	switch c.Kind {
	case ContractRegular:
		if c.CustomerID == nil {
			return ErrInvalidContract
		}
	case ContractOccasional:
		if c.CustomerID != nil || c.PaymentID != nil {
			return ErrInvalidContract
		}
	default:
		return ErrInvalidContract
	}
	return nil
}

func (c *Contract) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return c.Validate()
}

// Movement is one entry/exit cycle under a contract. ExitTime is nil while
// the vehicle is inside.
type Movement struct {
	ID          string     `gorm:"primaryKey;size:36"`
	ContractID  string     `gorm:"size:36;not null;index:idx_movement_contract_entry,priority:1"`
	EntryTime   time.Time  `gorm:"not null;index:idx_movement_contract_entry,priority:2"`
	ExitTime    *time.Time `gorm:"index"`
	EntryGateID *string    `gorm:"size:36"`
	ExitGateID  *string    `gorm:"size:36"`

	Contract *Contract `gorm:"constraint:OnDelete:CASCADE"`
}

func (m *Movement) IsOpen() bool {
	return m.ExitTime == nil
}

// DurationMinutes is max(0, floor(exit-entry)) in minutes; open movements count 0.
func (m *Movement) DurationMinutes() int {
	if m.ExitTime == nil {
		return 0
	}
	d := m.ExitTime.Sub(m.EntryTime)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

func (m *Movement) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
