package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-access-backend/internal/model"
	"parking-access-backend/internal/parse"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrNoTransaction is returned by lock primitives called outside WithTx.
	ErrNoTransaction = errors.New("store: row lock requires an enclosing transaction")
)

// Store defines the interface for all database operations.
type Store interface {
	// WithTx runs fn in one transaction. Store calls made with the context
	// passed to fn join that transaction. Nested calls reuse the outer one.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetGate(ctx context.Context, id string) (*model.Gate, error)
	GetVehicleByPlate(ctx context.Context, plate string) (*model.Vehicle, error)
	GetOwnedVehicle(ctx context.Context, customerID int64, plate string) (*model.Vehicle, error)

	GetSlot(ctx context.Context, id int64) (*model.ParkingSlot, error)
	ListCandidateSlots(ctx context.Context, minRank int, areaID *int64) ([]model.ParkingSlot, error)
	ListFreeSlotIDs(ctx context.Context, at time.Time) ([]int64, error)
	IsSlotFreeAt(ctx context.Context, slotID int64, at time.Time) (bool, error)
	CountSlots(ctx context.Context, areaID *int64) (int64, error)
	CountSeasonOccupied(ctx context.Context, areaID *int64, at time.Time) (int64, error)
	CountOccasionalOccupied(ctx context.Context, areaID *int64) (int64, error)

	HasOverlap(ctx context.Context, slotID int64, period model.Period) (bool, error)
	CreateContract(ctx context.Context, c *model.Contract) error
	GetContract(ctx context.Context, id string) (*model.Contract, error)

	HasOpenMovement(ctx context.Context, contractID string) (bool, error)
	CreateMovement(ctx context.Context, m *model.Movement) error
	CloseMovement(ctx context.Context, m *model.Movement) error
	ListMovements(ctx context.Context, contractID string) ([]model.Movement, error)
	ListMovementsOverlapping(ctx context.Context, period model.Period, areaID *int64) ([]model.Movement, error)

	CreatePayment(ctx context.Context, p *model.Payment) error
	UpdatePaymentStatus(ctx context.Context, p *model.Payment) error
	ListPaymentIDsByStatus(ctx context.Context, status model.PaymentStatus, limit int) ([]string, error)

	HasOpenTicket(ctx context.Context, plate string) (bool, error)
	CreateTicket(ctx context.Context, t *model.OccasionalTicket) error
	UpdateTicket(ctx context.Context, t *model.OccasionalTicket, columns ...string) error
	GetTicket(ctx context.Context, id string) (*model.OccasionalTicket, error)

	// Row locks. Each one is held until the enclosing transaction ends.
	LockSlot(ctx context.Context, id int64) (*model.ParkingSlot, error)
	LockContract(ctx context.Context, id string) (*model.Contract, error)
	LockActiveRegularContract(ctx context.Context, vehicleID int64, at time.Time) (*model.Contract, error)
	LockOpenMovement(ctx context.Context, contractID string) (*model.Movement, error)
	LockLatestOpenTicket(ctx context.Context, plate string) (*model.OccasionalTicket, error)
	LockPayment(ctx context.Context, id string) (*model.Payment, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

type txKey struct{}

func txFrom(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return tx, ok
}

// InTx reports whether ctx carries an open transaction.
func InTx(ctx context.Context) bool {
	_, ok := txFrom(ctx)
	return ok
}

func (s *gormStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn returns the transaction carried by ctx, or the base handle.
func (s *gormStore) conn(ctx context.Context) *gorm.DB {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return s.db.WithContext(ctx)
}

// locked returns a handle whose next query takes row locks.
// SQLite has no row locks and serializes writers itself.
func (s *gormStore) locked(ctx context.Context) (*gorm.DB, error) {
	tx, ok := txFrom(ctx)
	if !ok {
		return nil, ErrNoTransaction
	}
	if tx.Dialector.Name() == "sqlite" {
		return tx, nil
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}), nil
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to fetch %s: %w", what, err)
}

func (s *gormStore) GetGate(ctx context.Context, id string) (*model.Gate, error) {
	var gate model.Gate
	if err := s.conn(ctx).Where("id = ?", id).First(&gate).Error; err != nil {
		return nil, notFound(err, "gate "+id)
	}
	return &gate, nil
}

func (s *gormStore) GetVehicleByPlate(ctx context.Context, plate string) (*model.Vehicle, error) {
	plate = parse.NormalizePlate(plate)
	var vehicle model.Vehicle
	err := s.conn(ctx).Preload("MinimumSlotType").
		Where("license_plate = ?", plate).
		First(&vehicle).Error
	if err != nil {
		return nil, notFound(err, "vehicle "+plate)
	}
	return &vehicle, nil
}

func (s *gormStore) GetOwnedVehicle(ctx context.Context, customerID int64, plate string) (*model.Vehicle, error) {
	plate = parse.NormalizePlate(plate)
	var vehicle model.Vehicle
	err := s.conn(ctx).Preload("MinimumSlotType").
		Where("license_plate = ? AND customer_id = ?", plate, customerID).
		First(&vehicle).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("vehicle %s of customer %d", plate, customerID))
	}
	return &vehicle, nil
}

func (s *gormStore) GetSlot(ctx context.Context, id int64) (*model.ParkingSlot, error) {
	var slot model.ParkingSlot
	if err := s.conn(ctx).Preload("Area").Preload("SlotType").First(&slot, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("slot %d", id))
	}
	return &slot, nil
}

// ListCandidateSlots returns slots whose type rank is at least minRank,
// smallest fitting type first.
func (s *gormStore) ListCandidateSlots(ctx context.Context, minRank int, areaID *int64) ([]model.ParkingSlot, error) {
	q := s.conn(ctx).Preload("Area").Preload("SlotType").
		Joins("JOIN slot_types ON slot_types.id = parking_slots.slot_type_id").
		Where("slot_types.size_rank >= ?", minRank)
	if areaID != nil {
		q = q.Where("parking_slots.area_id = ?", *areaID)
	}

	var slots []model.ParkingSlot
	err := q.Order("slot_types.size_rank, parking_slots.area_id, parking_slots.number, parking_slots.id").
		Find(&slots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate slots: %w", err)
	}
	return slots, nil
}

const (
	seasonHoldsSlot = "EXISTS (SELECT 1 FROM contracts c WHERE c.slot_id = parking_slots.id " +
		"AND c.kind = ? AND c.valid_from <= ? AND c.valid_to >= ?)"
	ticketHoldsSlot = "EXISTS (SELECT 1 FROM occasional_tickets t WHERE t.slot_id = parking_slots.id " +
		"AND t.is_closed = ?)"
)

// ListFreeSlotIDs returns slots with no season contract active at and no open
// occasional ticket, ordered by slot type code, area name and slot number.
// The result is unlocked; callers re-check each id under LockSlot.
func (s *gormStore) ListFreeSlotIDs(ctx context.Context, at time.Time) ([]int64, error) {
	var ids []int64
	err := s.conn(ctx).Model(&model.ParkingSlot{}).
		Joins("JOIN slot_types ON slot_types.id = parking_slots.slot_type_id").
		Joins("JOIN parking_areas ON parking_areas.id = parking_slots.area_id").
		Where("NOT "+seasonHoldsSlot, model.ContractRegular, at, at).
		Where("NOT "+ticketHoldsSlot, false).
		Order("slot_types.code, parking_areas.name, parking_slots.number").
		Pluck("parking_slots.id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list free slots: %w", err)
	}
	return ids, nil
}

func (s *gormStore) IsSlotFreeAt(ctx context.Context, slotID int64, at time.Time) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&model.ParkingSlot{}).
		Where("parking_slots.id = ?", slotID).
		Where("NOT "+seasonHoldsSlot, model.ContractRegular, at, at).
		Where("NOT "+ticketHoldsSlot, false).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check slot %d: %w", slotID, err)
	}
	return count == 1, nil
}

func (s *gormStore) CountSlots(ctx context.Context, areaID *int64) (int64, error) {
	q := s.conn(ctx).Model(&model.ParkingSlot{})
	if areaID != nil {
		q = q.Where("area_id = ?", *areaID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count slots: %w", err)
	}
	return count, nil
}

// CountSeasonOccupied counts slots whose active season contract has an open movement.
func (s *gormStore) CountSeasonOccupied(ctx context.Context, areaID *int64, at time.Time) (int64, error) {
	q := s.conn(ctx).Model(&model.ParkingSlot{}).
		Where("EXISTS (SELECT 1 FROM contracts c JOIN movements m ON m.contract_id = c.id "+
			"WHERE c.slot_id = parking_slots.id AND c.kind = ? AND c.valid_from <= ? AND c.valid_to >= ? "+
			"AND m.exit_time IS NULL)", model.ContractRegular, at, at)
	if areaID != nil {
		q = q.Where("parking_slots.area_id = ?", *areaID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count season occupancy: %w", err)
	}
	return count, nil
}

func (s *gormStore) CountOccasionalOccupied(ctx context.Context, areaID *int64) (int64, error) {
	q := s.conn(ctx).Model(&model.ParkingSlot{}).Where(ticketHoldsSlot, false)
	if areaID != nil {
		q = q.Where("parking_slots.area_id = ?", *areaID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count occasional occupancy: %w", err)
	}
	return count, nil
}

// HasOverlap is the half-open test existing.from < new.to AND existing.to > new.from.
func (s *gormStore) HasOverlap(ctx context.Context, slotID int64, period model.Period) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&model.Contract{}).
		Where("slot_id = ? AND valid_from < ? AND valid_to > ?", slotID, period.To, period.From).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check overlap for slot %d: %w", slotID, err)
	}
	return count > 0, nil
}

func (s *gormStore) CreateContract(ctx context.Context, c *model.Contract) error {
	if err := s.conn(ctx).Omit(clause.Associations).Create(c).Error; err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}
	return nil
}

func (s *gormStore) GetContract(ctx context.Context, id string) (*model.Contract, error) {
	var c model.Contract
	err := s.conn(ctx).
		Preload("Vehicle.Customer").
		Preload("Vehicle.MinimumSlotType").
		Preload("Slot.Area").
		Preload("Slot.SlotType").
		Preload("Customer").
		Preload("Payment").
		Preload("Movements", func(db *gorm.DB) *gorm.DB { return db.Order("entry_time") }).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, notFound(err, "contract "+id)
	}
	return &c, nil
}

func (s *gormStore) HasOpenMovement(ctx context.Context, contractID string) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&model.Movement{}).
		Where("contract_id = ? AND exit_time IS NULL", contractID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check open movement of contract %s: %w", contractID, err)
	}
	return count > 0, nil
}

func (s *gormStore) CreateMovement(ctx context.Context, m *model.Movement) error {
	if err := s.conn(ctx).Omit(clause.Associations).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create movement: %w", err)
	}
	return nil
}

func (s *gormStore) CloseMovement(ctx context.Context, m *model.Movement) error {
	err := s.conn(ctx).Model(m).
		Select("exit_time", "exit_gate_id").
		Updates(m).Error
	if err != nil {
		return fmt.Errorf("failed to close movement %s: %w", m.ID, err)
	}
	return nil
}

func (s *gormStore) ListMovements(ctx context.Context, contractID string) ([]model.Movement, error) {
	var movements []model.Movement
	err := s.conn(ctx).Where("contract_id = ?", contractID).
		Order("entry_time").
		Find(&movements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list movements of contract %s: %w", contractID, err)
	}
	return movements, nil
}

// ListMovementsOverlapping returns closed movements with entry < period.To and
// exit > period.From, optionally only those on slots of one area.
func (s *gormStore) ListMovementsOverlapping(ctx context.Context, period model.Period, areaID *int64) ([]model.Movement, error) {
	q := s.conn(ctx).Preload("Contract").
		Where("movements.entry_time < ? AND movements.exit_time > ?", period.To, period.From)
	if areaID != nil {
		q = q.Joins("JOIN contracts ON contracts.id = movements.contract_id").
			Joins("JOIN parking_slots ON parking_slots.id = contracts.slot_id").
			Where("parking_slots.area_id = ?", *areaID)
	}
	var movements []model.Movement
	if err := q.Order("movements.entry_time").Find(&movements).Error; err != nil {
		return nil, fmt.Errorf("failed to list movements overlapping %s..%s: %w",
			period.From.Format(time.RFC3339), period.To.Format(time.RFC3339), err)
	}
	return movements, nil
}

func (s *gormStore) CreatePayment(ctx context.Context, p *model.Payment) error {
	if err := s.conn(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (s *gormStore) UpdatePaymentStatus(ctx context.Context, p *model.Payment) error {
	err := s.conn(ctx).Model(p).
		Select("status", "performed_at").
		Updates(p).Error
	if err != nil {
		return fmt.Errorf("failed to update payment %s: %w", p.ID, err)
	}
	return nil
}

func (s *gormStore) ListPaymentIDsByStatus(ctx context.Context, status model.PaymentStatus, limit int) ([]string, error) {
	var ids []string
	err := s.conn(ctx).Model(&model.Payment{}).
		Where("status = ?", status).
		Order("created_at").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s payments: %w", status, err)
	}
	return ids, nil
}

func (s *gormStore) HasOpenTicket(ctx context.Context, plate string) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&model.OccasionalTicket{}).
		Where("license_plate = ? AND is_closed = ?", parse.NormalizePlate(plate), false).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check open tickets: %w", err)
	}
	return count > 0, nil
}

func (s *gormStore) CreateTicket(ctx context.Context, t *model.OccasionalTicket) error {
	if err := s.conn(ctx).Omit(clause.Associations).Create(t).Error; err != nil {
		return fmt.Errorf("failed to create occasional ticket: %w", err)
	}
	return nil
}

// UpdateTicket writes the named columns of t, including zero and null values.
func (s *gormStore) UpdateTicket(ctx context.Context, t *model.OccasionalTicket, columns ...string) error {
	err := s.conn(ctx).Model(t).
		Omit(clause.Associations).
		Select(columns).
		Updates(t).Error
	if err != nil {
		return fmt.Errorf("failed to update occasional ticket %s: %w", t.ID, err)
	}
	return nil
}

func (s *gormStore) GetTicket(ctx context.Context, id string) (*model.OccasionalTicket, error) {
	var t model.OccasionalTicket
	err := s.conn(ctx).Preload("Slot.Area").Preload("Slot.SlotType").
		Where("id = ?", id).
		First(&t).Error
	if err != nil {
		return nil, notFound(err, "occasional ticket "+id)
	}
	return &t, nil
}

func (s *gormStore) LockSlot(ctx context.Context, id int64) (*model.ParkingSlot, error) {
	tx, err := s.locked(ctx)
	if err != nil {
		return nil, err
	}
	var slot model.ParkingSlot
	if err := tx.Preload("Area").Preload("SlotType").First(&slot, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("slot %d", id))
	}
	return &slot, nil
}

func (s *gormStore) LockContract(ctx context.Context, id string) (*model.Contract, error) {
	tx, err := s.locked(ctx)
	if err != nil {
		return nil, err
	}
	var c model.Contract
	if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err, "contract "+id)
	}
	return &c, nil
}

// LockActiveRegularContract locks the vehicle's season contract valid at at.
// Overlapping contracts are prevented, so the earliest starting one is taken.
func (s *gormStore) LockActiveRegularContract(ctx context.Context, vehicleID int64, at time.Time) (*model.Contract, error) {
	tx, err := s.locked(ctx)
	if err != nil {
		return nil, err
	}
	var c model.Contract
	err = tx.Where("vehicle_id = ? AND kind = ? AND valid_from <= ? AND valid_to >= ?",
		vehicleID, model.ContractRegular, at, at).
		Order("valid_from").
		First(&c).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("active contract of vehicle %d", vehicleID))
	}
	return &c, nil
}

// LockOpenMovement locks the newest open movement of a contract.
func (s *gormStore) LockOpenMovement(ctx context.Context, contractID string) (*model.Movement, error) {
	tx, err := s.locked(ctx)
	if err != nil {
		return nil, err
	}
	var m model.Movement
	err = tx.Where("contract_id = ? AND exit_time IS NULL", contractID).
		Order("entry_time DESC").
		First(&m).Error
	if err != nil {
		return nil, notFound(err, "open movement of contract "+contractID)
	}
	return &m, nil
}

// LockLatestOpenTicket locks the newest open occasional ticket for plate.
func (s *gormStore) LockLatestOpenTicket(ctx context.Context, plate string) (*model.OccasionalTicket, error) {
	tx, err := s.locked(ctx)
	if err != nil {
		return nil, err
	}
	plate = parse.NormalizePlate(plate)
	var t model.OccasionalTicket
	err = tx.Where("license_plate = ? AND is_closed = ?", plate, false).
		Order("entry_time DESC").
		First(&t).Error
	if err != nil {
		return nil, notFound(err, "open occasional ticket "+plate)
	}
	return &t, nil
}

func (s *gormStore) LockPayment(ctx context.Context, id string) (*model.Payment, error) {
	tx, err := s.locked(ctx)
	if err != nil {
		return nil, err
	}
	var p model.Payment
	if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFound(err, "payment "+id)
	}
	return &p, nil
}
