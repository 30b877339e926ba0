package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
)

const (
	DefaultGeoJSBaseURL = "https://get.geojs.io"
	DefaultIPAPIBaseURL = "https://ipapi.co"

	// UnknownLocationName names an IP location whose provider reported no city.
	UnknownLocationName = "Unknown Location"
)

// IPProvider maps an IP address to an approximate location. An empty ip asks
// the provider to geolocate the caller's own address.
type IPProvider interface {
	Name() string
	Locate(ctx context.Context, ip string) (models.GeoLocation, error)
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat struct {
	value float64
	set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse coordinate %q: %w", s, err)
		}
		f.value, f.set = v, true
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	f.value, f.set = v, true
	return nil
}

func ipLocation(name, country, region string, lat, lon flexFloat) (models.GeoLocation, error) {
	if !lat.set || !lon.set {
		return models.GeoLocation{}, fmt.Errorf("%w: missing coordinates", client.ErrMalformedResponse)
	}
	if !models.ValidCoordinate(lat.value, lon.value) {
		return models.GeoLocation{}, fmt.Errorf("%w: coordinates out of range", client.ErrMalformedResponse)
	}
	if strings.TrimSpace(name) == "" {
		name = UnknownLocationName
	}
	return models.GeoLocation{
		Name:      name,
		Country:   country,
		Admin1:    region,
		Latitude:  lat.value,
		Longitude: lon.value,
	}, nil
}

// GeoJSProvider queries get.geojs.io, which reports coordinates as strings.
type GeoJSProvider struct {
	getter  client.Getter
	baseURL string
}

func NewGeoJSProvider(getter client.Getter, baseURL string) *GeoJSProvider {
	if baseURL == "" {
		baseURL = DefaultGeoJSBaseURL
	}
	return &GeoJSProvider{getter: getter, baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *GeoJSProvider) Name() string { return client.UpstreamGeoJS }

func (p *GeoJSProvider) Locate(ctx context.Context, ip string) (models.GeoLocation, error) {
	u := p.baseURL + "/v1/ip/geo.json"
	if ip != "" {
		u = p.baseURL + "/v1/ip/geo/" + url.PathEscape(ip) + ".json"
	}
	var resp struct {
		City      string    `json:"city"`
		Region    string    `json:"region"`
		Country   string    `json:"country"`
		Latitude  flexFloat `json:"latitude"`
		Longitude flexFloat `json:"longitude"`
	}
	if err := p.getter.GetJSON(ctx, client.UpstreamGeoJS, u, &resp); err != nil {
		return models.GeoLocation{}, err
	}
	return ipLocation(resp.City, resp.Country, resp.Region, resp.Latitude, resp.Longitude)
}

// IPAPIProvider queries ipapi.co. Failures may arrive as a 200 with
// {"error": true, "reason": ...}.
type IPAPIProvider struct {
	getter  client.Getter
	baseURL string
}

func NewIPAPIProvider(getter client.Getter, baseURL string) *IPAPIProvider {
	if baseURL == "" {
		baseURL = DefaultIPAPIBaseURL
	}
	return &IPAPIProvider{getter: getter, baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *IPAPIProvider) Name() string { return client.UpstreamIPAPI }

func (p *IPAPIProvider) Locate(ctx context.Context, ip string) (models.GeoLocation, error) {
	u := p.baseURL + "/json/"
	if ip != "" {
		u = p.baseURL + "/" + url.PathEscape(ip) + "/json/"
	}
	var resp struct {
		Error     bool      `json:"error"`
		Reason    string    `json:"reason"`
		City      string    `json:"city"`
		Region    string    `json:"region"`
		Country   string    `json:"country_name"`
		Latitude  flexFloat `json:"latitude"`
		Longitude flexFloat `json:"longitude"`
	}
	if err := p.getter.GetJSON(ctx, client.UpstreamIPAPI, u, &resp); err != nil {
		return models.GeoLocation{}, err
	}
	if resp.Error {
		return models.GeoLocation{}, fmt.Errorf("%w: ipapi: %s", client.ErrUpstreamFailure, resp.Reason)
	}
	return ipLocation(resp.City, resp.Country, resp.Region, resp.Latitude, resp.Longitude)
}
