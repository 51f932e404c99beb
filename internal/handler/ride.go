package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"scootr/internal/domain"
	"scootr/internal/id"
	"scootr/internal/middleware"
	"scootr/internal/service"
)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rideService *service.RideService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService) *RideHandler {
	return &RideHandler{rideService: rideService}
}

// StartRideRequest is the HTTP request body for starting a ride.
type StartRideRequest struct {
	VehicleID string `json:"vehicle_id"`
	WalletID  string `json:"wallet_id"`
}

// EndRideRequest is the HTTP request body for ending a ride.
type EndRideRequest struct {
	Location *LocationJSON `json:"location"`
}

// WaypointJSON is one reported sample.
type WaypointJSON struct {
	Location  *LocationJSON `json:"location"`
	Timestamp *time.Time    `json:"timestamp,omitempty"`
}

// AddWaypointsRequest is the HTTP request body for appending waypoints.
type AddWaypointsRequest struct {
	Waypoints []WaypointJSON `json:"waypoints"`
}

// RideResponse is the HTTP representation of a ride.
type RideResponse struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	VehicleID     string        `json:"vehicle_id"`
	WalletID      string        `json:"wallet_id"`
	Status        string        `json:"status"`
	StartTime     string        `json:"start_time"`
	EndTime       string        `json:"end_time,omitempty"`
	StartLocation LocationJSON  `json:"start_location"`
	EndLocation   *LocationJSON `json:"end_location,omitempty"`
	Amount        *MoneyJSON    `json:"amount,omitempty"`
}

// WaypointResponse is the HTTP representation of a waypoint.
type WaypointResponse struct {
	ID        string       `json:"id"`
	Location  LocationJSON `json:"location"`
	Timestamp string       `json:"timestamp"`
}

func toRideResponse(r *domain.Ride) RideResponse {
	resp := RideResponse{
		ID:            r.ID,
		UserID:        r.UserID,
		VehicleID:     r.VehicleID,
		WalletID:      r.WalletID,
		Status:        string(r.Status()),
		StartTime:     formatTime(r.StartTime),
		StartLocation: toLocationJSON(r.StartLocation),
	}
	if r.EndTime != nil {
		resp.EndTime = formatTime(*r.EndTime)
	}
	if r.EndLocation != nil {
		loc := toLocationJSON(*r.EndLocation)
		resp.EndLocation = &loc
	}
	if r.Amount != nil {
		amount := toMoneyJSON(*r.Amount)
		resp.Amount = &amount
	}
	return resp
}

func toWaypointResponses(wps []*domain.RideWaypoint) []WaypointResponse {
	out := make([]WaypointResponse, 0, len(wps))
	for _, wp := range wps {
		out = append(out, WaypointResponse{
			ID:        wp.ID,
			Location:  toLocationJSON(wp.Location),
			Timestamp: formatTime(wp.Timestamp),
		})
	}
	return out
}

// StartRide handles POST /v1/rides
func (h *RideHandler) StartRide(c *gin.Context) {
	var req StartRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if !bodyID(c, "vehicle_id", req.VehicleID, id.PrefixVehicle) || !bodyID(c, "wallet_id", req.WalletID, id.PrefixWallet) {
		return
	}

	ride, err := h.rideService.StartRide(c.Request.Context(), service.StartRideRequest{
		UserID:    middleware.UserID(c),
		VehicleID: req.VehicleID,
		WalletID:  req.WalletID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toRideResponse(ride))
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	rideID, ok := pathID(c, "id", id.PrefixRide)
	if !ok {
		return
	}

	ride, err := h.rideService.GetRide(c.Request.Context(), rideID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// EndRide handles POST /v1/rides/:id/end
func (h *RideHandler) EndRide(c *gin.Context) {
	rideID, ok := pathID(c, "id", id.PrefixRide)
	if !ok {
		return
	}

	var req EndRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Location == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: errLocationRequired})
		return
	}

	ride, err := h.rideService.EndRide(c.Request.Context(), service.EndRideRequest{
		RideID:      rideID,
		CallerID:    middleware.UserID(c),
		EndLocation: req.Location.toDomain(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// AddWaypoints handles POST /v1/rides/:id/waypoints (vehicle identity)
func (h *RideHandler) AddWaypoints(c *gin.Context) {
	rideID, ok := pathID(c, "id", id.PrefixRide)
	if !ok {
		return
	}

	var req AddWaypointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	inputs := make([]service.WaypointInput, 0, len(req.Waypoints))
	for _, wp := range req.Waypoints {
		if wp.Location == nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: errLocationRequired})
			return
		}
		in := service.WaypointInput{Location: wp.Location.toDomain()}
		if wp.Timestamp != nil {
			in.Timestamp = *wp.Timestamp
		}
		inputs = append(inputs, in)
	}

	added, err := h.rideService.AddWaypoints(c.Request.Context(), service.AddWaypointsRequest{
		RideID:    rideID,
		VehicleID: middleware.VehicleID(c),
		Waypoints: inputs,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, gin.H{"waypoints": toWaypointResponses(added)})
}

// ListWaypoints handles GET /v1/rides/:id/waypoints
func (h *RideHandler) ListWaypoints(c *gin.Context) {
	rideID, ok := pathID(c, "id", id.PrefixRide)
	if !ok {
		return
	}

	wps, err := h.rideService.Waypoints(c.Request.Context(), rideID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"waypoints": toWaypointResponses(wps)})
}

// ListUserRides handles GET /v1/users/:id/rides
func (h *RideHandler) ListUserRides(c *gin.Context) {
	userID, ok := pathID(c, "id", id.PrefixUser)
	if !ok {
		return
	}

	rides, err := h.rideService.RidesForUser(c.Request.Context(), userID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]RideResponse, 0, len(rides))
	for _, r := range rides {
		out = append(out, toRideResponse(r))
	}
	respondJSON(c, http.StatusOK, gin.H{"rides": out})
}

// ActiveRide handles GET /v1/users/:id/rides/active
func (h *RideHandler) ActiveRide(c *gin.Context) {
	userID, ok := pathID(c, "id", id.PrefixUser)
	if !ok {
		return
	}

	ride, err := h.rideService.ActiveRide(c.Request.Context(), userID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if ride == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no active ride"})
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}
