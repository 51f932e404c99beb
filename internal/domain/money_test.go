package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMajorAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1", 100, false},
		{"0.20", 20, false},
		{"5.00", 500, false},
		{"0.2", 20, false},
		{"-3.50", -350, false},
		{"0.001", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMajorAmount(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatMinorAmount(t *testing.T) {
	assert.Equal(t, "2.00", FormatMinorAmount(200))
	assert.Equal(t, "0.05", FormatMinorAmount(5))
	assert.Equal(t, "-1.30", FormatMinorAmount(-130))
}

func TestRideStatus(t *testing.T) {
	ride := &Ride{}
	assert.True(t, ride.Active())
	assert.Equal(t, RideStatusActive, ride.Status())

	amount := int64(200)
	now := ride.StartTime
	ride.EndTime = &now
	ride.Amount = &amount
	assert.False(t, ride.Active())
	assert.Equal(t, RideStatusCompleted, ride.Status())
}

func TestLocationValid(t *testing.T) {
	assert.True(t, Location{Longitude: 9.19, Latitude: 45.46}.Valid())
	assert.False(t, Location{Longitude: 181, Latitude: 0}.Valid())
	assert.False(t, Location{Longitude: 0, Latitude: -91}.Valid())
}
