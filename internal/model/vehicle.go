package model

import (
	"time"

	"gorm.io/gorm"

	"parking-access-backend/internal/parse"
)

// Customer is a registered season ticket holder.
type Customer struct {
	ID        int64     `gorm:"primaryKey"`
	Username  string    `gorm:"uniqueIndex;size:150;not null"`
	Email     string    `gorm:"size:254"`
	FullName  string    `gorm:"size:256"`
	CreatedAt time.Time `gorm:"not null"`

	Vehicles []Vehicle `gorm:"foreignKey:CustomerID"`
}

// Vehicle is a customer's registered vehicle, identified by its normalized plate.
type Vehicle struct {
	ID                  int64  `gorm:"primaryKey"`
	LicensePlate        string `gorm:"uniqueIndex;size:16;not null"`
	CustomerID          int64  `gorm:"index;not null"`
	MinimumSlotTypeID   *int64
	HasDisabilityPermit bool `gorm:"not null;default:false"`
	CreatedAt           time.Time

	Customer        Customer `gorm:"constraint:OnDelete:CASCADE"`
	MinimumSlotType *SlotType
}

// BeforeSave keeps the stored plate normalized on every write path.
func (v *Vehicle) BeforeSave(tx *gorm.DB) error {
	v.LicensePlate = parse.NormalizePlate(v.LicensePlate)
	return nil
}
