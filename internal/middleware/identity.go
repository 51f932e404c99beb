package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scootr/internal/id"
)

// Identity headers set by the authenticating proxy in front of the service.
const (
	UserIDHeader    = "X-User-ID"
	VehicleIDHeader = "X-Vehicle-ID"
)

const (
	userIDKey    = "identity.user_id"
	vehicleIDKey = "identity.vehicle_id"
)

// RequireUser rejects requests without a valid user identity.
func RequireUser() gin.HandlerFunc {
	return requireIdentity(UserIDHeader, userIDKey, id.PrefixUser)
}

// RequireVehicle rejects requests without a valid vehicle identity.
func RequireVehicle() gin.HandlerFunc {
	return requireIdentity(VehicleIDHeader, vehicleIDKey, id.PrefixVehicle)
}

func requireIdentity(header, key string, prefix id.Prefix) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(header)
		if raw == "" || !id.Valid(raw, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid " + header})
			return
		}
		c.Set(key, raw)
		c.Next()
	}
}

// UserID returns the authenticated user, or "" outside RequireUser.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// VehicleID returns the authenticated vehicle, or "" outside RequireVehicle.
func VehicleID(c *gin.Context) string {
	return c.GetString(vehicleIDKey)
}
