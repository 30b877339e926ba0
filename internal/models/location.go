package models

// GeoLocation is a resolved place. ID may be a synthetic placeholder for
// cities matched against the bundled list.
type GeoLocation struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Admin1    string  `json:"admin1,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinates are within WGS84 bounds.
func (g GeoLocation) Valid() bool {
	return ValidCoordinate(g.Latitude, g.Longitude)
}

// Coordinate is a latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// ValidCoordinate reports whether lat is in [-90, 90] and lon in [-180, 180].
// NaN fails both comparisons and is rejected.
func ValidCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
