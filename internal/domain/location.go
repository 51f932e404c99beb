package domain

// Location is a longitude/latitude pair in degrees.
type Location struct {
	Longitude float64
	Latitude  float64
}

// Valid reports whether both coordinates are within range.
func (l Location) Valid() bool {
	return l.Longitude >= -180 && l.Longitude <= 180 &&
		l.Latitude >= -90 && l.Latitude <= 90
}
