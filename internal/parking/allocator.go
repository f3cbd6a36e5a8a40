// Package parking finds, checks and locks parking slots.
package parking

import (
	"context"
	"errors"
	"time"

	"parking-access-backend/internal/model"
	"parking-access-backend/internal/store"
)

var ErrNoFreeSlot = errors.New("parking: no free slot available")

// Repository is the slot persistence the allocator needs.
type Repository interface {
	GetSlot(ctx context.Context, id int64) (*model.ParkingSlot, error)
	ListCandidateSlots(ctx context.Context, minRank int, areaID *int64) ([]model.ParkingSlot, error)
	HasOverlap(ctx context.Context, slotID int64, period model.Period) (bool, error)
	LockSlot(ctx context.Context, id int64) (*model.ParkingSlot, error)
	ListFreeSlotIDs(ctx context.Context, at time.Time) ([]int64, error)
	IsSlotFreeAt(ctx context.Context, slotID int64, at time.Time) (bool, error)
	CountSlots(ctx context.Context, areaID *int64) (int64, error)
	CountSeasonOccupied(ctx context.Context, areaID *int64, at time.Time) (int64, error)
	CountOccasionalOccupied(ctx context.Context, areaID *int64) (int64, error)
}

// Allocator selects slots for season and occasional parking.
type Allocator struct {
	repo Repository
}

func NewAllocator(repo Repository) *Allocator {
	return &Allocator{repo: repo}
}

// FindCandidates returns slots in areaID (any area when nil) large enough
// for the vehicle's minimum slot type. Accessibility is not filtered here.
func (a *Allocator) FindCandidates(ctx context.Context, vehicle *model.Vehicle, areaID *int64) ([]model.ParkingSlot, error) {
	minRank := 0
	if vehicle.MinimumSlotType != nil {
		minRank = vehicle.MinimumSlotType.SizeRank
	}
	return a.repo.ListCandidateSlots(ctx, minRank, areaID)
}

func (a *Allocator) IsCompatible(slot *model.ParkingSlot, vehicle *model.Vehicle) bool {
	return slot.IsCompatibleWith(vehicle)
}

// IsFreeForPeriod reports that no contract on the slot overlaps period.
func (a *Allocator) IsFreeForPeriod(ctx context.Context, slotID int64, period model.Period) (bool, error) {
	overlap, err := a.repo.HasOverlap(ctx, slotID, period)
	if err != nil {
		return false, err
	}
	return !overlap, nil
}

// LockAndCheckAvailable locks the slot row and then checks the period with a
// fresh read, so a competing purchase that committed first is seen. It must
// run inside the transaction that will insert the contract.
func (a *Allocator) LockAndCheckAvailable(ctx context.Context, slotID int64, period model.Period) (*model.ParkingSlot, bool, error) {
	slot, err := a.repo.LockSlot(ctx, slotID)
	if err != nil {
		return nil, false, err
	}
	free, err := a.IsFreeForPeriod(ctx, slotID, period)
	if err != nil {
		return nil, false, err
	}
	return slot, free, nil
}

// AvailableFor lists candidate slots that are compatible with the vehicle
// and free for the whole period.
func (a *Allocator) AvailableFor(ctx context.Context, vehicle *model.Vehicle, areaID *int64, period model.Period) ([]model.ParkingSlot, error) {
	if !period.Valid() {
		return nil, model.ErrInvalidPeriod
	}
	candidates, err := a.FindCandidates(ctx, vehicle, areaID)
	if err != nil {
		return nil, err
	}

	available := make([]model.ParkingSlot, 0, len(candidates))
	for i := range candidates {
		slot := &candidates[i]
		if !a.IsCompatible(slot, vehicle) {
			continue
		}
		free, err := a.IsFreeForPeriod(ctx, slot.ID, period)
		if err != nil {
			return nil, err
		}
		if free {
			available = append(available, *slot)
		}
	}
	return available, nil
}

// LockFirstFree locks the first slot, in slot type code, area name and
// number order, that holds neither a season contract active at at nor an
// open occasional ticket. Each candidate is re-checked after its lock is
// granted; a slot taken by a concurrent entry is skipped.
func (a *Allocator) LockFirstFree(ctx context.Context, at time.Time) (*model.ParkingSlot, error) {
	ids, err := a.repo.ListFreeSlotIDs(ctx, at)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		slot, err := a.repo.LockSlot(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		free, err := a.repo.IsSlotFreeAt(ctx, id, at)
		if err != nil {
			return nil, err
		}
		if free {
			return slot, nil
		}
	}
	return nil, ErrNoFreeSlot
}

// Occupancy is a snapshot of slot usage.
type Occupancy struct {
	AreaID     *int64    `json:"area_id,omitempty"`
	At         time.Time `json:"at"`
	Total      int64     `json:"total"`
	Season     int64     `json:"season"`
	Occasional int64     `json:"occasional"`
	Free       int64     `json:"free"`
}

// Occupancy counts slots occupied at at by a season vehicle that is inside
// and slots holding an open occasional ticket.
func (a *Allocator) Occupancy(ctx context.Context, areaID *int64, at time.Time) (Occupancy, error) {
	total, err := a.repo.CountSlots(ctx, areaID)
	if err != nil {
		return Occupancy{}, err
	}
	season, err := a.repo.CountSeasonOccupied(ctx, areaID, at)
	if err != nil {
		return Occupancy{}, err
	}
	occasional, err := a.repo.CountOccasionalOccupied(ctx, areaID)
	if err != nil {
		return Occupancy{}, err
	}

	free := total - season - occasional
	if free < 0 {
		free = 0
	}
	return Occupancy{
		AreaID:     areaID,
		At:         at,
		Total:      total,
		Season:     season,
		Occasional: occasional,
		Free:       free,
	}, nil
}
