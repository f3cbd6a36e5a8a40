package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"parking-access-backend/internal/model"
	"parking-access-backend/internal/parse"
	"parking-access-backend/internal/store"
	"parking-access-backend/internal/ticket"
)

// slotResponse is the flattened slot shown to purchase devices.
type slotResponse struct {
	ID           int64  `json:"id"`
	Label        string `json:"label"`
	AreaID       int64  `json:"area_id"`
	Area         string `json:"area"`
	Number       int    `json:"number"`
	SlotType     string `json:"slot_type"`
	IsAccessible bool   `json:"is_accessible"`
}

func areaParam(c *gin.Context) (*int64, error) {
	raw := c.Query("area_id")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.New("invalid area_id")
	}
	return &id, nil
}

// AvailableSlots handles GET /api/slots/available.
func (h *Handler) AvailableSlots(c *gin.Context) {
	plate := c.Query("license_plate")
	if plate == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "license_plate is required"})
		return
	}
	areaID, err := areaParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	from, err := parse.Time(c.Query("valid_from"))
	if err != nil {
		badRequest(c, err)
		return
	}
	to, err := parse.Time(c.Query("valid_to"))
	if err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	vehicle, err := h.vehicles.GetVehicleByPlate(ctx, plate)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ticket.Outcome{Kind: ticket.KindNotFound, Reason: ticket.ReasonNoVehicle})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	slots, err := h.slots.AvailableFor(ctx, vehicle, areaID, model.Period{From: from, To: to})
	if errors.Is(err, model.ErrInvalidPeriod) {
		c.JSON(http.StatusUnprocessableEntity, ticket.Outcome{Kind: ticket.KindInvalid, Reason: ticket.ReasonInvalidPeriod})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	resp := make([]slotResponse, 0, len(slots))
	for i := range slots {
		s := &slots[i]
		resp = append(resp, slotResponse{
			ID:           s.ID,
			Label:        s.Label(),
			AreaID:       s.AreaID,
			Area:         s.Area.Name,
			Number:       s.Number,
			SlotType:     s.SlotType.Code,
			IsAccessible: s.IsAccessible,
		})
	}
	c.JSON(http.StatusOK, gin.H{"slots": resp})
}

// Occupancy handles GET /api/occupancy.
func (h *Handler) Occupancy(c *gin.Context) {
	areaID, err := areaParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	occ, err := h.slots.Occupancy(c.Request.Context(), areaID, h.clock.Now())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, occ)
}
