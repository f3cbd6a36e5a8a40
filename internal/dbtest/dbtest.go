// Package dbtest opens migrated in-memory databases and seeds them for tests.
package dbtest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-access-backend/config"
	"parking-access-backend/internal/db"
	"parking-access-backend/internal/model"
	"parking-access-backend/internal/store"
)

// Fixture is a migrated SQLite database with reference data.
type Fixture struct {
	DB    *gorm.DB
	Store store.Store

	Simple   model.SlotType
	Extended model.SlotType
	Oversize model.SlotType

	Area     model.ParkingArea
	Gate     model.Gate
	Customer model.Customer
}

// Open returns a migrated in-memory SQLite database.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	gormDB, err := db.Init(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return gormDB
}

// New seeds the three slot types, an area "North" with one gate, and a customer.
func New(t testing.TB) *Fixture {
	t.Helper()
	gormDB := Open(t)
	f := &Fixture{
		DB:       gormDB,
		Store:    store.NewGormStore(gormDB),
		Simple:   model.SlotType{Code: model.SlotSimple, Name: "Simple", SizeRank: 1},
		Extended: model.SlotType{Code: model.SlotExtended, Name: "Extended", SizeRank: 2},
		Oversize: model.SlotType{Code: model.SlotOversize, Name: "Oversize", SizeRank: 3},
		Area:     model.ParkingArea{Name: "North"},
		Customer: model.Customer{Username: "alice", Email: "alice@example.com", FullName: "Alice Doe"},
	}
	f.create(t, &f.Simple)
	f.create(t, &f.Extended)
	f.create(t, &f.Oversize)
	f.create(t, &f.Area)
	f.create(t, &f.Customer)
	f.Gate = model.Gate{AreaID: f.Area.ID, Name: "Main gate"}
	f.create(t, &f.Gate)
	return f
}

func (f *Fixture) create(t testing.TB, value interface{}) {
	t.Helper()
	require.NoError(t, f.DB.Omit(clause.Associations).Create(value).Error)
}

// AddArea creates another parking area.
func (f *Fixture) AddArea(t testing.TB, name string) model.ParkingArea {
	t.Helper()
	area := model.ParkingArea{Name: name}
	f.create(t, &area)
	return area
}

// AddSlot creates a slot in area and returns it with its associations loaded.
func (f *Fixture) AddSlot(t testing.TB, area model.ParkingArea, number int, typ model.SlotType, accessible bool) model.ParkingSlot {
	t.Helper()
	slot := model.ParkingSlot{AreaID: area.ID, Number: number, SlotTypeID: typ.ID, IsAccessible: accessible}
	f.create(t, &slot)
	slot.Area = area
	slot.SlotType = typ
	return slot
}

// AddCustomer creates another customer.
func (f *Fixture) AddCustomer(t testing.TB, username string) model.Customer {
	t.Helper()
	customer := model.Customer{Username: username, Email: username + "@example.com"}
	f.create(t, &customer)
	return customer
}

// AddVehicle registers a vehicle owned by customer.
func (f *Fixture) AddVehicle(t testing.TB, customer model.Customer, plate string, minimum *model.SlotType, permit bool) model.Vehicle {
	t.Helper()
	vehicle := model.Vehicle{
		LicensePlate:        plate,
		CustomerID:          customer.ID,
		HasDisabilityPermit: permit,
	}
	if minimum != nil {
		vehicle.MinimumSlotTypeID = &minimum.ID
	}
	f.create(t, &vehicle)
	vehicle.MinimumSlotType = minimum
	return vehicle
}

// AddGate creates another gate in area.
func (f *Fixture) AddGate(t testing.TB, area model.ParkingArea, name string) model.Gate {
	t.Helper()
	gate := model.Gate{AreaID: area.ID, Name: name}
	f.create(t, &gate)
	return gate
}
