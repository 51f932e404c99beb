package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"scootr/internal/domain"
	"scootr/internal/id"
	"scootr/internal/middleware"
	"scootr/internal/service"
)

const defaultNearbyRadius = 500.0

// VehicleHandler handles HTTP requests for vehicles.
type VehicleHandler struct {
	vehicleService *service.VehicleService
}

// NewVehicleHandler creates a new VehicleHandler.
func NewVehicleHandler(vehicleService *service.VehicleService) *VehicleHandler {
	return &VehicleHandler{vehicleService: vehicleService}
}

// RegisterVehicleRequest is the HTTP request body for registering a vehicle.
type RegisterVehicleRequest struct {
	BatteryLevel int           `json:"battery_level"`
	Location     *LocationJSON `json:"location"`
}

// TelemetryRequest is the HTTP request body of a vehicle's self-report.
type TelemetryRequest struct {
	BatteryLevel *int          `json:"battery_level,omitempty"`
	Location     *LocationJSON `json:"location,omitempty"`
}

// VehicleResponse is the HTTP representation of a vehicle.
type VehicleResponse struct {
	ID           string       `json:"id"`
	BatteryLevel int          `json:"battery_level"`
	Location     LocationJSON `json:"location"`
	Available    bool         `json:"available"`
	Distance     *float64     `json:"distance_meters,omitempty"`
}

func toVehicleResponse(v *domain.Vehicle) VehicleResponse {
	return VehicleResponse{
		ID:           v.ID,
		BatteryLevel: v.BatteryLevel,
		Location:     toLocationJSON(v.Location),
		Available:    v.Available,
	}
}

// Register handles POST /v1/vehicles
func (h *VehicleHandler) Register(c *gin.Context) {
	var req RegisterVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Location == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: errLocationRequired})
		return
	}

	vehicle, err := h.vehicleService.Register(c.Request.Context(), service.RegisterVehicleRequest{
		BatteryLevel: req.BatteryLevel,
		Location:     req.Location.toDomain(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toVehicleResponse(vehicle))
}

// GetVehicle handles GET /v1/vehicles/:id
func (h *VehicleHandler) GetVehicle(c *gin.Context) {
	vehicleID, ok := pathID(c, "id", id.PrefixVehicle)
	if !ok {
		return
	}

	vehicle, err := h.vehicleService.Get(c.Request.Context(), vehicleID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toVehicleResponse(vehicle))
}

// UpdateTelemetry handles PATCH /v1/vehicles/:id (vehicle identity)
func (h *VehicleHandler) UpdateTelemetry(c *gin.Context) {
	vehicleID, ok := pathID(c, "id", id.PrefixVehicle)
	if !ok {
		return
	}

	var req TelemetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	update := service.UpdateTelemetryRequest{
		VehicleID:       vehicleID,
		CallerVehicleID: middleware.VehicleID(c),
		BatteryLevel:    req.BatteryLevel,
	}
	if req.Location != nil {
		loc := req.Location.toDomain()
		update.Location = &loc
	}

	vehicle, err := h.vehicleService.UpdateTelemetry(c.Request.Context(), update)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toVehicleResponse(vehicle))
}

// Nearby handles GET /v1/vehicles?lon=&lat=&radius=
func (h *VehicleHandler) Nearby(c *gin.Context) {
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	if errLon != nil || errLat != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "lon and lat query parameters are required"})
		return
	}

	radius := defaultNearbyRadius
	if raw := c.Query("radius"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid radius"})
			return
		}
		radius = r
	}

	nearby, err := h.vehicleService.Nearby(c.Request.Context(), domain.Location{Longitude: lon, Latitude: lat}, radius)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]VehicleResponse, 0, len(nearby))
	for _, n := range nearby {
		resp := toVehicleResponse(n.Vehicle)
		distance := n.Distance
		resp.Distance = &distance
		out = append(out, resp)
	}
	respondJSON(c, http.StatusOK, gin.H{"vehicles": out})
}
