package id_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scootr/internal/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"UserID", id.NewUserID, "usr_"},
		{"WalletID", id.NewWalletID, "wlt_"},
		{"PaymentMethodID", id.NewPaymentMethodID, "pmt_"},
		{"VehicleID", id.NewVehicleID, "vcl_"},
		{"RideID", id.NewRideID, "rid_"},
		{"RideWaypointID", id.NewRideWaypointID, "rwp_"},
		{"TransactionID", id.NewTransactionID, "trx_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			assert.True(t, strings.HasPrefix(got, tt.prefix), "expected prefix %q, got %q", tt.prefix, got)
		})
	}
}

func TestNew_IsUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		s := id.NewRideID().String()
		_, dup := seen[s]
		require.False(t, dup, "duplicate id %s", s)
		seen[s] = struct{}{}
	}
}

func TestParseWithPrefix(t *testing.T) {
	rideID := id.NewRideID()

	parsed, err := id.ParseWithPrefix(rideID.String(), id.PrefixRide)
	require.NoError(t, err)
	assert.Equal(t, rideID.String(), parsed.String())

	_, err = id.ParseWithPrefix(rideID.String(), id.PrefixWallet)
	assert.Error(t, err)

	_, err = id.Parse("")
	assert.Error(t, err)

	_, err = id.Parse("not an id")
	assert.Error(t, err)
}

func TestValid(t *testing.T) {
	assert.True(t, id.Valid(id.NewVehicleID().String(), id.PrefixVehicle))
	assert.False(t, id.Valid(id.NewVehicleID().String(), id.PrefixRide))
	assert.False(t, id.Valid("vcl_", id.PrefixVehicle))
}

func TestScanAndValue(t *testing.T) {
	original := id.NewTransactionID()

	v, err := original.Value()
	require.NoError(t, err)

	var scanned id.ID
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, original.String(), scanned.String())

	require.NoError(t, scanned.Scan(nil))
	assert.True(t, scanned.IsNil())

	nilValue, err := id.Nil.Value()
	require.NoError(t, err)
	assert.Nil(t, nilValue)
}
