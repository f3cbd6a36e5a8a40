// Package pricing computes season and occasional prices from the slot category.
package pricing

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"parking-access-backend/internal/model"
)

var (
	seasonPrices = map[string]decimal.Decimal{
		model.SlotSimple:   decimal.RequireFromString("100.00"),
		model.SlotExtended: decimal.RequireFromString("130.00"),
		model.SlotOversize: decimal.RequireFromString("160.00"),
	}
	hourlyRates = map[string]decimal.Decimal{
		model.SlotSimple:   decimal.RequireFromString("3.00"),
		model.SlotExtended: decimal.RequireFromString("4.50"),
		model.SlotOversize: decimal.RequireFromString("6.00"),
	}
	sixty = decimal.NewFromInt(60)
)

// SlotGetter loads a slot with its type. Passing the caller's context lets the
// lookup join an open transaction.
type SlotGetter interface {
	GetSlot(ctx context.Context, id int64) (*model.ParkingSlot, error)
}

// Service is the default price list.
type Service struct {
	slots SlotGetter
}

func NewService(slots SlotGetter) *Service {
	return &Service{slots: slots}
}

// Category returns the code a slot is priced as. Accessible EXTENDED slots
// are priced as SIMPLE and unknown codes fall back to SIMPLE.
func Category(slot *model.ParkingSlot) string {
	code := strings.ToUpper(slot.SlotType.Code)
	if code == model.SlotExtended && slot.IsAccessible {
		return model.SlotSimple
	}
	if _, ok := seasonPrices[code]; ok {
		return code
	}
	return model.SlotSimple
}

// SeasonPrice is the flat season price of the slot's category. The period
// does not change the price.
func (s *Service) SeasonPrice(ctx context.Context, slotID int64, period model.Period) (decimal.Decimal, error) {
	slot, err := s.slots.GetSlot(ctx, slotID)
	if err != nil {
		return decimal.Zero, err
	}
	return seasonPrices[Category(slot)], nil
}

// OccasionalPrice is hourly rate * minutes / 60, rounded to cents half away from zero.
func (s *Service) OccasionalPrice(ctx context.Context, slotID int64, minutes int) (decimal.Decimal, error) {
	slot, err := s.slots.GetSlot(ctx, slotID)
	if err != nil {
		return decimal.Zero, err
	}
	if minutes < 0 {
		minutes = 0
	}
	rate := hourlyRates[Category(slot)]
	return rate.Mul(decimal.NewFromInt(int64(minutes))).Div(sixty).Round(2), nil
}
