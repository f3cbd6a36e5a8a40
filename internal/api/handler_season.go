package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parking-access-backend/internal/parse"
	"parking-access-backend/internal/ticket"
)

type purchaseRequest struct {
	CustomerID   int64  `json:"customer_id" binding:"required"`
	LicensePlate string `json:"license_plate" binding:"required"`
	SlotID       int64  `json:"slot_id" binding:"required"`
	ValidFrom    string `json:"valid_from" binding:"required"`
	ValidTo      string `json:"valid_to" binding:"required"`
}

// gateRequest is sent by entry and exit gates.
type gateRequest struct {
	LicensePlate string `json:"license_plate" binding:"required"`
	GateID       string `json:"gate_id" binding:"required"`
}

// PurchaseSeasonTicket handles POST /api/season-tickets.
func (h *Handler) PurchaseSeasonTicket(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	from, err := parse.Time(req.ValidFrom)
	if err != nil {
		badRequest(c, err)
		return
	}
	to, err := parse.Time(req.ValidTo)
	if err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.season.Purchase(c.Request.Context(), ticket.PurchaseInput{
		CustomerID:   req.CustomerID,
		LicensePlate: req.LicensePlate,
		SlotID:       req.SlotID,
		ValidFrom:    from,
		ValidTo:      to,
	})
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(statusFor(res.Outcome, http.StatusCreated), res)
}

// SeasonEntry handles POST /api/season-tickets/entry.
func (h *Handler) SeasonEntry(c *gin.Context) {
	var req gateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.season.Enter(c.Request.Context(), req.LicensePlate, req.GateID)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(statusFor(res.Outcome, http.StatusOK), res)
}

// SeasonExit handles POST /api/season-tickets/exit.
func (h *Handler) SeasonExit(c *gin.Context) {
	var req gateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.season.Exit(c.Request.Context(), req.LicensePlate, req.GateID)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(statusFor(res.Outcome, http.StatusOK), res)
}

// ParkedMinutes handles GET /api/season-tickets/:id/parked-minutes.
func (h *Handler) ParkedMinutes(c *gin.Context) {
	res, err := h.season.ParkedMinutes(c.Request.Context(), c.Param("id"))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(statusFor(res.Outcome, http.StatusOK), res)
}
