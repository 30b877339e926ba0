package geo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
)

const DefaultGeocodingBaseURL = "https://geocoding-api.open-meteo.com/v1/search"

// RemoteLimit caps remote geocoding results.
const RemoteLimit = 5

// Geocoder resolves free-text place names.
type Geocoder interface {
	Search(ctx context.Context, query string) ([]models.GeoLocation, error)
}

// OpenMeteoGeocoder queries the Open-Meteo geocoding API.
type OpenMeteoGeocoder struct {
	getter  client.Getter
	baseURL string
}

func NewOpenMeteoGeocoder(getter client.Getter, baseURL string) *OpenMeteoGeocoder {
	if baseURL == "" {
		baseURL = DefaultGeocodingBaseURL
	}
	return &OpenMeteoGeocoder{getter: getter, baseURL: baseURL}
}

type geocodeResult struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country"`
	Admin1    string  `json:"admin1"`
}

type geocodeResponse struct {
	Results []geocodeResult `json:"results"`
}

// Search returns at most RemoteLimit results in upstream order. A response
// without a results field means no matches. Entries with out-of-range
// coordinates are dropped.
func (g *OpenMeteoGeocoder) Search(ctx context.Context, query string) ([]models.GeoLocation, error) {
	base, err := url.Parse(g.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid geocoding API URL: %w", err)
	}
	params := url.Values{}
	params.Set("name", query)
	params.Set("count", strconv.Itoa(RemoteLimit))
	params.Set("language", "en")
	params.Set("format", "json")
	base.RawQuery = params.Encode()

	var resp geocodeResponse
	if err := g.getter.GetJSON(ctx, client.UpstreamGeocode, base.String(), &resp); err != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, err)
	}

	out := make([]models.GeoLocation, 0, len(resp.Results))
	for _, r := range resp.Results {
		if len(out) == RemoteLimit {
			break
		}
		loc := models.GeoLocation{
			ID:        r.ID,
			Name:      r.Name,
			Country:   r.Country,
			Admin1:    r.Admin1,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
		}
		if !loc.Valid() {
			continue
		}
		out = append(out, loc)
	}
	return out, nil
}
