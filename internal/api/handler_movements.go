package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"parking-access-backend/internal/model"
	"parking-access-backend/internal/parse"
	"parking-access-backend/internal/ticket"
)

type movementResponse struct {
	ID         string    `json:"id"`
	ContractID string    `json:"contract_id"`
	SlotID     *int64    `json:"slot_id"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	Minutes    int       `json:"minutes"`
}

// Movements handles GET /api/movements.
func (h *Handler) Movements(c *gin.Context) {
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

	movements, err := h.movements.MovementsOverlapping(c.Request.Context(), model.Period{From: from, To: to}, areaID)
	if errors.Is(err, model.ErrInvalidPeriod) {
		c.JSON(http.StatusUnprocessableEntity, ticket.Outcome{Kind: ticket.KindInvalid, Reason: ticket.ReasonInvalidPeriod})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	resp := make([]movementResponse, 0, len(movements))
	for i := range movements {
		m := &movements[i]
		r := movementResponse{
			ID:         m.ID,
			ContractID: m.ContractID,
			EntryTime:  m.EntryTime,
			Minutes:    m.DurationMinutes(),
		}
		if m.ExitTime != nil {
			r.ExitTime = *m.ExitTime
		}
		if m.Contract != nil {
			r.SlotID = m.Contract.SlotID
		}
		resp = append(resp, r)
	}
	c.JSON(http.StatusOK, gin.H{"movements": resp})
}
