package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Slot type codes known to pricing and compatibility.
const (
	SlotSimple   = "SIMPLE"
	SlotExtended = "EXTENDED"
	SlotOversize = "OVERSIZE"
)

// SlotType is a slot category with a size rank.
type SlotType struct {
	ID       int64  `gorm:"primaryKey"`
	Code     string `gorm:"uniqueIndex;size:32;not null"`
	Name     string `gorm:"size:64;not null"`
	SizeRank int    `gorm:"not null"`
}

// CanHost reports whether a slot of type t fits a vehicle needing other.
// A nil requirement fits anywhere.
func (t *SlotType) CanHost(other *SlotType) bool {
	if other == nil {
		return true
	}
	if t == nil {
		return false
	}
	return t.SizeRank >= other.SizeRank
}

// ParkingArea groups slots and gates.
type ParkingArea struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"uniqueIndex;size:128;not null"`
	Description string    `gorm:"size:512"`
	CreatedAt   time.Time `gorm:"not null"`
}

// ParkingSlot is a single parking space within an area.
type ParkingSlot struct {
	ID           int64 `gorm:"primaryKey"`
	AreaID       int64 `gorm:"not null;uniqueIndex:idx_slot_area_number,priority:1"`
	Number       int   `gorm:"not null;uniqueIndex:idx_slot_area_number,priority:2"`
	SlotTypeID   int64 `gorm:"index;not null"`
	IsAccessible bool  `gorm:"not null;default:false"`

	// Associations
	Area     ParkingArea `gorm:"constraint:OnDelete:CASCADE"`
	SlotType SlotType
}

// IsCompatibleWith reports whether v may park in the slot. The slot type must
// host the vehicle's minimum type, and accessible slots need a disability permit.
// SlotType must be loaded.
func (s *ParkingSlot) IsCompatibleWith(v *Vehicle) bool {
	if v == nil {
		return false
	}
	if !s.SlotType.CanHost(v.MinimumSlotType) {
		return false
	}
	if s.IsAccessible && !v.HasDisabilityPermit {
		return false
	}
	return true
}

// Label is the human readable slot name shown on tickets, e.g. "North - 12 (SIMPLE)".
func (s *ParkingSlot) Label() string {
	return fmt.Sprintf("%s - %d (%s)", s.Area.Name, s.Number, s.SlotType.Code)
}

// Gate is an entry or exit barrier of an area.
type Gate struct {
	ID     string `gorm:"primaryKey;size:36"`
	AreaID int64  `gorm:"index;not null"`
	Name   string `gorm:"size:128;not null"`

	Area ParkingArea `gorm:"constraint:OnDelete:CASCADE"`
}

func (g *Gate) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}
