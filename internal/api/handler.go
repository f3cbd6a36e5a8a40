// Package api exposes the ticket flows to gate, cash and purchase devices.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"parking-access-backend/internal/clock"
	"parking-access-backend/internal/model"
	"parking-access-backend/internal/parking"
	"parking-access-backend/internal/ticket"
)

// SeasonService is the season ticket use cases.
type SeasonService interface {
	Purchase(ctx context.Context, in ticket.PurchaseInput) (ticket.PurchaseResult, error)
	Enter(ctx context.Context, plate, gateID string) (ticket.GateResult, error)
	Exit(ctx context.Context, plate, gateID string) (ticket.GateResult, error)
	ParkedMinutes(ctx context.Context, contractID string) (ticket.ParkedMinutesResult, error)
}

// OccasionalService is the occasional ticket use cases.
type OccasionalService interface {
	StartEntry(ctx context.Context, plate, gateID string) (ticket.EntryResult, error)
	GetPricing(ctx context.Context, plate string) (ticket.PricingResult, error)
	Pay(ctx context.Context, plate string) (ticket.PaymentResult, error)
	Exit(ctx context.Context, plate, gateID string) (ticket.GateResult, error)
}

// SlotService answers slot availability and occupancy queries.
type SlotService interface {
	AvailableFor(ctx context.Context, vehicle *model.Vehicle, areaID *int64, period model.Period) ([]model.ParkingSlot, error)
	Occupancy(ctx context.Context, areaID *int64, at time.Time) (parking.Occupancy, error)
}

// MovementReport lists gate movements over a period.
type MovementReport interface {
	MovementsOverlapping(ctx context.Context, period model.Period, areaID *int64) ([]model.Movement, error)
}

// VehicleFinder looks vehicles up by plate.
type VehicleFinder interface {
	GetVehicleByPlate(ctx context.Context, plate string) (*model.Vehicle, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	season     SeasonService
	occasional OccasionalService
	slots      SlotService
	movements  MovementReport
	vehicles   VehicleFinder
	clock      clock.Clock
}

// NewHandler creates a new API handler.
func NewHandler(season SeasonService, occasional OccasionalService, slots SlotService, movements MovementReport, vehicles VehicleFinder, clk clock.Clock) *Handler {
	return &Handler{
		season:     season,
		occasional: occasional,
		slots:      slots,
		movements:  movements,
		vehicles:   vehicles,
		clock:      clk,
	}
}

// statusFor maps a use case outcome to an HTTP status. ok is used on success.
func statusFor(out ticket.Outcome, ok int) int {
	if out.Success {
		return ok
	}
	switch out.Kind {
	case ticket.KindNotFound:
		return http.StatusNotFound
	case ticket.KindConflict, ticket.KindNotPaid, ticket.KindGraceExpired:
		return http.StatusConflict
	case ticket.KindPaymentDeclined:
		return http.StatusPaymentRequired
	case ticket.KindPaymentUnavailable:
		return http.StatusServiceUnavailable
	case ticket.KindInvalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusConflict
	}
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
