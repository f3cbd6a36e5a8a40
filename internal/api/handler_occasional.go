package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type plateRequest struct {
	LicensePlate string `json:"license_plate" binding:"required"`
}

// OccasionalEntry handles POST /api/occasional-tickets/entry.
func (h *Handler) OccasionalEntry(c *gin.Context) {
	var req gateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.occasional.StartEntry(c.Request.Context(), req.LicensePlate, req.GateID)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(statusFor(res.Outcome, http.StatusOK), res)
}

// OccasionalPricing handles GET /api/occasional-tickets/pricing?license_plate=.
func (h *Handler) OccasionalPricing(c *gin.Context) {
	plate := c.Query("license_plate")
	if plate == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "license_plate is required"})
		return
	}
	res, err := h.occasional.GetPricing(c.Request.Context(), plate)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(statusFor(res.Outcome, http.StatusOK), res)
}

// OccasionalPayment handles POST /api/occasional-tickets/payment.
func (h *Handler) OccasionalPayment(c *gin.Context) {
	var req plateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.occasional.Pay(c.Request.Context(), req.LicensePlate)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(statusFor(res.Outcome, http.StatusOK), res)
}

// OccasionalExit handles POST /api/occasional-tickets/exit.
func (h *Handler) OccasionalExit(c *gin.Context) {
	var req gateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.occasional.Exit(c.Request.Context(), req.LicensePlate, req.GateID)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(statusFor(res.Outcome, http.StatusOK), res)
}
