package domain

// Vehicle is a rentable scooter.
// Available is derived by storage: false while an active ride references it.
type Vehicle struct {
	ID           string
	BatteryLevel int
	Location     Location
	Available    bool
}

// ValidBatteryLevel reports whether level is a percentage.
func ValidBatteryLevel(level int) bool {
	return level >= 0 && level <= 100
}
