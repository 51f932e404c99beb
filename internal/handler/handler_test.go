package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"scootr/internal/domain"
	"scootr/internal/id"
	"scootr/internal/middleware"
	"scootr/internal/repository/memory"
	"scootr/internal/service"
)

type fakeParser struct {
	event service.Event
	err   error
}

func (p *fakeParser) Parse([]byte, string) (service.Event, error) {
	return p.event, p.err
}

type testServer struct {
	router *gin.Engine
	db     *memory.DB
	parser *fakeParser
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := memory.New()
	ledger, err := service.NewLedgerService(db, noop.NewMeterProvider().Meter("test"), nil, nil)
	require.NoError(t, err)
	rides := service.NewRideService(db, ledger, nil, nil, service.DefaultRideConfig(), nil, nil)
	vehicles := service.NewVehicleService(db, nil, nil)
	reconciler := service.NewReconcilerService(db, ledger, nil, nil, service.ReconcilerConfig{}, nil)
	parser := &fakeParser{}

	rideHandler := NewRideHandler(rides)
	walletHandler := NewWalletHandler(ledger)
	vehicleHandler := NewVehicleHandler(vehicles)
	webhookHandler := NewWebhookHandler(parser, reconciler)

	r := gin.New()
	v1 := r.Group("/v1")
	v1.POST("/webhooks/stripe", webhookHandler.Stripe)

	user := v1.Group("", middleware.RequireUser())
	user.POST("/rides", rideHandler.StartRide)
	user.GET("/rides/:id", rideHandler.GetRide)
	user.POST("/rides/:id/end", rideHandler.EndRide)
	user.GET("/rides/:id/waypoints", rideHandler.ListWaypoints)
	user.GET("/users/:id/rides/active", rideHandler.ActiveRide)
	user.POST("/wallets", walletHandler.CreateWallet)
	user.GET("/wallets/:id", walletHandler.GetWallet)
	user.GET("/wallets/:id/transactions", walletHandler.ListTransactions)
	user.POST("/vehicles", vehicleHandler.Register)
	user.GET("/vehicles", vehicleHandler.Nearby)

	vehicle := v1.Group("", middleware.RequireVehicle())
	vehicle.POST("/rides/:id/waypoints", rideHandler.AddWaypoints)
	vehicle.PATCH("/vehicles/:id", vehicleHandler.UpdateTelemetry)

	return &testServer{router: r, db: db, parser: parser}
}

func (s *testServer) do(t *testing.T, method, path string, headers map[string]string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func asUser(userID string) map[string]string {
	return map[string]string{middleware.UserIDHeader: userID}
}

func asVehicle(vehicleID string) map[string]string {
	return map[string]string{middleware.VehicleIDHeader: vehicleID}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrRideNotFound, http.StatusNotFound},
		{service.ErrActiveRideExists, http.StatusConflict},
		{service.ErrBalanceChanged, http.StatusConflict},
		{service.ErrInsufficientBalance, http.StatusForbidden},
		{service.ErrInvalidSignature, http.StatusForbidden},
		{service.ErrInvalidLocation, http.StatusBadRequest},
		{service.ErrFareBelowFixedCost, http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", service.ErrVehicleNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, mapErrorToHTTPStatus(tt.err))
		})
	}
}

func TestIdentityIsRequired(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/wallets", nil, CreateWalletRequest{Name: "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/v1/wallets", asUser("not-an-id"), CreateWalletRequest{Name: "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// A user identity is not a vehicle identity.
	w = s.do(t, http.MethodPatch, "/v1/vehicles/"+id.NewVehicleID().String(), asUser(id.NewUserID().String()), TelemetryRequest{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWalletEndpoints(t *testing.T) {
	s := newTestServer(t)
	owner := id.NewUserID().String()

	w := s.do(t, http.MethodPost, "/v1/wallets", asUser(owner), CreateWalletRequest{Name: "Personal"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var wallet WalletResponse
	decodeBody(t, w, &wallet)
	assert.Equal(t, owner, wallet.UserID)
	assert.Equal(t, MoneyJSON{Raw: 0, Formatted: "0.00"}, wallet.Balance)

	w = s.do(t, http.MethodGet, "/v1/wallets/"+wallet.ID, asUser(owner), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/v1/wallets/"+wallet.ID, asUser(id.NewUserID().String()), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/v1/wallets/"+id.NewWalletID().String(), asUser(owner), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/v1/wallets/"+id.NewRideID().String(), asUser(owner), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "wrong prefix")

	w = s.do(t, http.MethodGet, "/v1/wallets/"+wallet.ID+"/transactions", asUser(owner), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"transactions":[]}`, w.Body.String())
}

func TestRideFlow(t *testing.T) {
	s := newTestServer(t)
	userID := id.NewUserID().String()
	walletID := id.NewWalletID().String()
	s.db.AddWallet(domain.Wallet{ID: walletID, UserID: userID, Balance: 1000})

	w := s.do(t, http.MethodPost, "/v1/vehicles", asUser(userID), RegisterVehicleRequest{
		BatteryLevel: 90, Location: &LocationJSON{Longitude: 9.19, Latitude: 45.46},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var vehicle VehicleResponse
	decodeBody(t, w, &vehicle)

	w = s.do(t, http.MethodPost, "/v1/rides", asUser(userID), StartRideRequest{VehicleID: vehicle.ID, WalletID: walletID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ride RideResponse
	decodeBody(t, w, &ride)
	assert.Equal(t, string(domain.RideStatusActive), ride.Status)
	assert.Nil(t, ride.Amount)

	w = s.do(t, http.MethodPost, "/v1/rides", asUser(userID), StartRideRequest{VehicleID: vehicle.ID, WalletID: walletID})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/v1/users/"+userID+"/rides/active", asUser(userID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/waypoints", asVehicle(vehicle.ID), AddWaypointsRequest{
		Waypoints: []WaypointJSON{{Location: &LocationJSON{Longitude: 9.2, Latitude: 45.47}}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/waypoints", asVehicle(id.NewVehicleID().String()), AddWaypointsRequest{
		Waypoints: []WaypointJSON{{Location: &LocationJSON{Longitude: 9.2, Latitude: 45.47}}},
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	end := EndRideRequest{Location: &LocationJSON{Longitude: 9.21, Latitude: 45.48}}
	w = s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/end", asUser(userID), end)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeBody(t, w, &ride)
	assert.Equal(t, string(domain.RideStatusCompleted), ride.Status)
	require.NotNil(t, ride.Amount)
	assert.Equal(t, MoneyJSON{Raw: 100, Formatted: "1.00"}, *ride.Amount)
	assert.Equal(t, int64(900), s.db.Balance(walletID))

	w = s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/end", asUser(userID), end)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, int64(900), s.db.Balance(walletID))

	w = s.do(t, http.MethodGet, "/v1/users/"+userID+"/rides/active", asUser(userID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/v1/rides/"+ride.ID+"/waypoints", asUser(userID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var wps struct {
		Waypoints []WaypointResponse `json:"waypoints"`
	}
	decodeBody(t, w, &wps)
	assert.Len(t, wps.Waypoints, 1)
}

func TestStartRide_InsufficientBalance(t *testing.T) {
	s := newTestServer(t)
	userID := id.NewUserID().String()
	walletID := id.NewWalletID().String()
	vehicleID := id.NewVehicleID().String()
	s.db.AddWallet(domain.Wallet{ID: walletID, UserID: userID, Balance: 300})
	s.db.AddVehicle(domain.Vehicle{ID: vehicleID, BatteryLevel: 50})

	w := s.do(t, http.MethodPost, "/v1/rides", asUser(userID), StartRideRequest{VehicleID: vehicleID, WalletID: walletID})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/v1/rides", asUser(userID), StartRideRequest{VehicleID: "vcl_bogus", WalletID: walletID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVehicleEndpoints(t *testing.T) {
	s := newTestServer(t)
	userID := id.NewUserID().String()

	w := s.do(t, http.MethodPost, "/v1/vehicles", asUser(userID), RegisterVehicleRequest{BatteryLevel: 150, Location: &LocationJSON{Longitude: 9.19, Latitude: 45.46}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/v1/vehicles", asUser(userID), RegisterVehicleRequest{BatteryLevel: 80, Location: &LocationJSON{Longitude: 9.19, Latitude: 45.46}})
	require.Equal(t, http.StatusCreated, w.Code)
	var vehicle VehicleResponse
	decodeBody(t, w, &vehicle)

	battery := 30
	w = s.do(t, http.MethodPatch, "/v1/vehicles/"+vehicle.ID, asVehicle(vehicle.ID), TelemetryRequest{BatteryLevel: &battery})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeBody(t, w, &vehicle)
	assert.Equal(t, 30, vehicle.BatteryLevel)

	w = s.do(t, http.MethodPatch, "/v1/vehicles/"+vehicle.ID, asVehicle(id.NewVehicleID().String()), TelemetryRequest{BatteryLevel: &battery})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/v1/vehicles?lon=abc&lat=1", asUser(userID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// No geo index is configured in this server.
	w = s.do(t, http.MethodGet, "/v1/vehicles?lon=9.19&lat=45.46", asUser(userID), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}

func TestStripeWebhook(t *testing.T) {
	s := newTestServer(t)
	walletID := id.NewWalletID().String()
	s.db.AddWallet(domain.Wallet{ID: walletID, UserID: id.NewUserID().String()})

	s.parser.err = service.ErrInvalidSignature
	w := s.do(t, http.MethodPost, "/v1/webhooks/stripe", nil, map[string]string{})
	assert.Equal(t, http.StatusForbidden, w.Code)

	s.parser.err = nil
	s.parser.event = service.PaymentSucceeded{EventID: "evt_1", WalletID: walletID, Amount: 700, ExternalID: "pi_1"}
	for i := 0; i < 2; i++ {
		w = s.do(t, http.MethodPost, "/v1/webhooks/stripe", nil, map[string]string{})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	assert.Equal(t, int64(700), s.db.Balance(walletID))

	// Divergence is a server error so the provider redelivers.
	s.parser.event = service.PaymentSucceeded{EventID: "evt_2", WalletID: id.NewWalletID().String(), Amount: 700, ExternalID: "pi_2"}
	w = s.do(t, http.MethodPost, "/v1/webhooks/stripe", nil, map[string]string{})
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	s.parser.event = nil
	w = s.do(t, http.MethodPost, "/v1/webhooks/stripe", nil, map[string]string{})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMissingLocationIsRejected(t *testing.T) {
	s := newTestServer(t)
	userID := id.NewUserID().String()
	walletID := id.NewWalletID().String()
	s.db.AddWallet(domain.Wallet{ID: walletID, UserID: userID, Balance: 1000})

	w := s.do(t, http.MethodPost, "/v1/vehicles", asUser(userID), map[string]any{"battery_level": 80})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"location is required"}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/v1/vehicles", asUser(userID), RegisterVehicleRequest{
		BatteryLevel: 80, Location: &LocationJSON{Longitude: 9.19, Latitude: 45.46},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var vehicle VehicleResponse
	decodeBody(t, w, &vehicle)

	w = s.do(t, http.MethodPost, "/v1/rides", asUser(userID), StartRideRequest{VehicleID: vehicle.ID, WalletID: walletID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ride RideResponse
	decodeBody(t, w, &ride)

	w = s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/waypoints", asVehicle(vehicle.ID), map[string]any{
		"waypoints": []map[string]any{
			{"location": map[string]float64{"longitude": 9.2, "latitude": 45.47}},
			{"timestamp": "2026-01-01T10:00:00Z"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/end", asUser(userID), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"location is required"}`, w.Body.String())

	// Nothing was billed or closed, and the vehicle stayed where it was.
	assert.Equal(t, int64(1000), s.db.Balance(walletID))
	w = s.do(t, http.MethodGet, "/v1/rides/"+ride.ID, asUser(userID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &ride)
	assert.Equal(t, string(domain.RideStatusActive), ride.Status)

	w = s.do(t, http.MethodGet, "/v1/rides/"+ride.ID+"/waypoints", asUser(userID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"waypoints":[]}`, w.Body.String())
}

type failingBody struct{}

func (failingBody) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestStripeWebhook_BodyErrors(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", bytes.NewReader(make([]byte, maxWebhookBody+1)))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", failingBody{})
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
