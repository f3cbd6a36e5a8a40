package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-access-backend/config"
	"parking-access-backend/internal/clock"
	"parking-access-backend/internal/model"
	"parking-access-backend/internal/parking"
	"parking-access-backend/internal/store"
	"parking-access-backend/internal/ticket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSeason struct {
	purchase func(in ticket.PurchaseInput) (ticket.PurchaseResult, error)
	gate     func(plate, gateID string) (ticket.GateResult, error)
}

func (s *stubSeason) Purchase(ctx context.Context, in ticket.PurchaseInput) (ticket.PurchaseResult, error) {
	return s.purchase(in)
}

func (s *stubSeason) Enter(ctx context.Context, plate, gateID string) (ticket.GateResult, error) {
	return s.gate(plate, gateID)
}

func (s *stubSeason) Exit(ctx context.Context, plate, gateID string) (ticket.GateResult, error) {
	return s.gate(plate, gateID)
}

func (s *stubSeason) ParkedMinutes(ctx context.Context, contractID string) (ticket.ParkedMinutesResult, error) {
	if contractID == "missing" {
		return ticket.ParkedMinutesResult{Outcome: ticket.Outcome{Kind: ticket.KindNotFound, Reason: ticket.ReasonContractNotFound}}, nil
	}
	return ticket.ParkedMinutesResult{Outcome: ticket.Outcome{Success: true}, ContractID: contractID, TotalMinutes: 45}, nil
}

type stubOccasional struct {
	lastPlate string
}

func (s *stubOccasional) StartEntry(ctx context.Context, plate, gateID string) (ticket.EntryResult, error) {
	s.lastPlate = plate
	return ticket.EntryResult{Outcome: ticket.Outcome{Kind: ticket.KindConflict, Reason: ticket.ReasonNoFreeSlot}}, nil
}

func (s *stubOccasional) GetPricing(ctx context.Context, plate string) (ticket.PricingResult, error) {
	s.lastPlate = plate
	amount := decimal.RequireFromString("4.50")
	return ticket.PricingResult{Outcome: ticket.Outcome{Success: true}, Amount: &amount, DurationMinutes: 90}, nil
}

func (s *stubOccasional) Pay(ctx context.Context, plate string) (ticket.PaymentResult, error) {
	return ticket.PaymentResult{Outcome: ticket.Outcome{Kind: ticket.KindPaymentDeclined, Reason: ticket.ReasonPaymentFailed}}, nil
}

func (s *stubOccasional) Exit(ctx context.Context, plate, gateID string) (ticket.GateResult, error) {
	return ticket.GateResult{Outcome: ticket.Outcome{Kind: ticket.KindGraceExpired, Reason: ticket.ReasonGraceExpired}}, nil
}

type stubSlots struct {
	occupancyCalls int
}

func (s *stubSlots) AvailableFor(ctx context.Context, vehicle *model.Vehicle, areaID *int64, period model.Period) ([]model.ParkingSlot, error) {
	if !period.Valid() {
		return nil, model.ErrInvalidPeriod
	}
	return []model.ParkingSlot{{
		ID:       3,
		AreaID:   1,
		Number:   12,
		Area:     model.ParkingArea{ID: 1, Name: "North"},
		SlotType: model.SlotType{Code: model.SlotSimple},
	}}, nil
}

func (s *stubSlots) Occupancy(ctx context.Context, areaID *int64, at time.Time) (parking.Occupancy, error) {
	s.occupancyCalls++
	return parking.Occupancy{AreaID: areaID, At: at, Total: 10, Free: 10 - int64(s.occupancyCalls)}, nil
}

type stubMovements struct{}

func (stubMovements) MovementsOverlapping(ctx context.Context, period model.Period, areaID *int64) ([]model.Movement, error) {
	if !period.Valid() {
		return nil, model.ErrInvalidPeriod
	}
	if areaID != nil && *areaID == 99 {
		return nil, errors.New("db down")
	}
	slotID := int64(3)
	exit := period.From.Add(45 * time.Minute)
	return []model.Movement{{
		ID:         "m-1",
		ContractID: "c-1",
		EntryTime:  period.From,
		ExitTime:   &exit,
		Contract:   &model.Contract{ID: "c-1", SlotID: &slotID},
	}}, nil
}

type stubVehicles struct{}

func (stubVehicles) GetVehicleByPlate(ctx context.Context, plate string) (*model.Vehicle, error) {
	if plate == "GHOST" {
		return nil, store.ErrNotFound
	}
	return &model.Vehicle{ID: 1, LicensePlate: plate}, nil
}

var now = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

func setupRouter(season *stubSeason) (*gin.Engine, *stubOccasional, *stubSlots) {
	occ := &stubOccasional{}
	slots := &stubSlots{}
	h := NewHandler(season, occ, slots, stubMovements{}, stubVehicles{}, clock.NewFake(now))
	cfg := &config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTL: time.Minute}
	return NewRouter(h, cfg), occ, slots
}

func send(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		out  ticket.Outcome
		want int
	}{
		{ticket.Outcome{Success: true}, http.StatusCreated},
		{ticket.Outcome{Kind: ticket.KindNotFound}, http.StatusNotFound},
		{ticket.Outcome{Kind: ticket.KindConflict}, http.StatusConflict},
		{ticket.Outcome{Kind: ticket.KindNotPaid}, http.StatusConflict},
		{ticket.Outcome{Kind: ticket.KindGraceExpired}, http.StatusConflict},
		{ticket.Outcome{Kind: ticket.KindPaymentDeclined}, http.StatusPaymentRequired},
		{ticket.Outcome{Kind: ticket.KindPaymentUnavailable}, http.StatusServiceUnavailable},
		{ticket.Outcome{Kind: ticket.KindInvalid}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(string(tt.out.Kind), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.out, http.StatusCreated))
		})
	}
}

func TestPurchaseSeasonTicket(t *testing.T) {
	var got ticket.PurchaseInput
	season := &stubSeason{purchase: func(in ticket.PurchaseInput) (ticket.PurchaseResult, error) {
		got = in
		return ticket.PurchaseResult{Outcome: ticket.Outcome{Success: true, Reason: ticket.ReasonPurchased}, ContractID: "c-1"}, nil
	}}
	router, _, _ := setupRouter(season)

	w := send(router, http.MethodPost, "/api/season-tickets", gin.H{
		"customer_id":   7,
		"license_plate": "AB 123",
		"slot_id":       3,
		"valid_from":    "2024-09-01",
		"valid_to":      "2024-10-01T00:00:00Z",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"success":true,"reason":"Season ticket created successfully.","contract_id":"c-1"}`, w.Body.String())
	assert.Equal(t, int64(7), got.CustomerID)
	assert.True(t, got.ValidFrom.Equal(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, got.ValidTo.Equal(time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)))
}

func TestPurchaseSeasonTicket_BadRequests(t *testing.T) {
	router, _, _ := setupRouter(&stubSeason{})

	tests := []struct {
		name string
		body interface{}
	}{
		{"empty body", nil},
		{"missing plate", gin.H{"customer_id": 1, "slot_id": 1, "valid_from": "2024-09-01", "valid_to": "2024-10-01"}},
		{"bad time", gin.H{"customer_id": 1, "license_plate": "X", "slot_id": 1, "valid_from": "yesterday", "valid_to": "2024-10-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := send(router, http.MethodPost, "/api/season-tickets", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestSeasonGate(t *testing.T) {
	season := &stubSeason{gate: func(plate, gateID string) (ticket.GateResult, error) {
		if gateID == "broken" {
			return ticket.GateResult{}, errors.New("db down")
		}
		return ticket.GateResult{Outcome: ticket.Outcome{Kind: ticket.KindConflict, Reason: ticket.ReasonInUse}}, nil
	}}
	router, _, _ := setupRouter(season)

	w := send(router, http.MethodPost, "/api/season-tickets/entry", gin.H{"license_plate": "AB1", "gate_id": "g1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"success":false,"open_gate":false,"reason":"Season ticket already in use.","kind":"conflict"}`, w.Body.String())

	w = send(router, http.MethodPost, "/api/season-tickets/exit", gin.H{"license_plate": "AB1", "gate_id": "broken"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())

	w = send(router, http.MethodPost, "/api/season-tickets/exit", gin.H{"license_plate": "AB1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParkedMinutes(t *testing.T) {
	router, _, _ := setupRouter(&stubSeason{})

	w := send(router, http.MethodGet, "/api/season-tickets/c-9/parked-minutes", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_minutes":45`)

	w = send(router, http.MethodGet, "/api/season-tickets/missing/parked-minutes", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOccasionalRoutes(t *testing.T) {
	router, occ, _ := setupRouter(&stubSeason{})

	w := send(router, http.MethodPost, "/api/occasional-tickets/entry", gin.H{"license_plate": "ab 1", "gate_id": "g1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), ticket.ReasonNoFreeSlot)
	assert.Equal(t, "ab 1", occ.lastPlate)

	w = send(router, http.MethodGet, "/api/occasional-tickets/pricing?license_plate=AB1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"amount":"4.5"`)
	assert.Contains(t, w.Body.String(), `"duration_minutes":90`)

	w = send(router, http.MethodGet, "/api/occasional-tickets/pricing", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = send(router, http.MethodPost, "/api/occasional-tickets/payment", gin.H{"license_plate": "AB1"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	w = send(router, http.MethodPost, "/api/occasional-tickets/exit", gin.H{"license_plate": "AB1", "gate_id": "g1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"grace_period_expired"`)
}

func TestAvailableSlots(t *testing.T) {
	router, _, _ := setupRouter(&stubSeason{})

	w := send(router, http.MethodGet, "/api/slots/available?license_plate=AB1&valid_from=2024-09-01&valid_to=2024-10-01", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Slots []slotResponse `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Slots, 1)
	assert.Equal(t, "North - 12 (SIMPLE)", body.Slots[0].Label)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"no plate", "valid_from=2024-09-01&valid_to=2024-10-01", http.StatusBadRequest},
		{"bad area", "license_plate=AB1&area_id=x&valid_from=2024-09-01&valid_to=2024-10-01", http.StatusBadRequest},
		{"missing period", "license_plate=AB1", http.StatusBadRequest},
		{"reversed period", "license_plate=AB1&valid_from=2024-10-01&valid_to=2024-09-01", http.StatusUnprocessableEntity},
		{"unknown vehicle", "license_plate=GHOST&valid_from=2024-09-01&valid_to=2024-10-01", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := send(router, http.MethodGet, "/api/slots/available?"+tt.query, nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	w = send(router, http.MethodGet, "/api/slots/available?license_plate=AB1&valid_from=2024-10-01&valid_to=2024-09-01", nil)
	var out ticket.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.False(t, out.Success)
	assert.Equal(t, ticket.KindInvalid, out.Kind)
	assert.Equal(t, ticket.ReasonInvalidPeriod, out.Reason)
}

func TestMovements(t *testing.T) {
	router, _, _ := setupRouter(&stubSeason{})

	w := send(router, http.MethodGet, "/api/movements?valid_from=2024-09-01&valid_to=2024-10-01", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Movements []movementResponse `json:"movements"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Movements, 1)
	assert.Equal(t, "c-1", body.Movements[0].ContractID)
	assert.Equal(t, 45, body.Movements[0].Minutes)
	require.NotNil(t, body.Movements[0].SlotID)
	assert.Equal(t, int64(3), *body.Movements[0].SlotID)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing period", "valid_from=2024-09-01", http.StatusBadRequest},
		{"bad area", "area_id=x&valid_from=2024-09-01&valid_to=2024-10-01", http.StatusBadRequest},
		{"reversed period", "valid_from=2024-10-01&valid_to=2024-09-01", http.StatusUnprocessableEntity},
		{"store failure", "area_id=99&valid_from=2024-09-01&valid_to=2024-10-01", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := send(router, http.MethodGet, "/api/movements?"+tt.query, nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestOccupancy_Cached(t *testing.T) {
	router, _, slots := setupRouter(&stubSeason{gate: func(plate, gateID string) (ticket.GateResult, error) {
		return ticket.GateResult{Outcome: ticket.Outcome{Success: true}}, nil
	}})

	first := send(router, http.MethodGet, "/api/occupancy?area_id=1", nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Contains(t, first.Body.String(), `"area_id":1`)
	second := send(router, http.MethodGet, "/api/occupancy?area_id=1", nil)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, slots.occupancyCalls)

	// A granted gate movement invalidates the cached snapshot.
	send(router, http.MethodPost, "/api/season-tickets/entry", gin.H{"license_plate": "AB1", "gate_id": "g1"})
	send(router, http.MethodGet, "/api/occupancy?area_id=1", nil)
	assert.Equal(t, 2, slots.occupancyCalls)

	w := send(router, http.MethodGet, "/api/occupancy?area_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
