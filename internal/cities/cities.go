// Package cities holds the bundled list of popular world cities used for
// local search, the global outlook and the map overview.
package cities

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// City is one entry of the bundled list.
type City struct {
	Name    string  `json:"name" db:"name"`
	Country string  `json:"country" db:"country"`
	Lat     float64 `json:"lat" db:"lat"`
	Lon     float64 `json:"lon" db:"lon"`
}

// Store looks up bundled cities.
type Store interface {
	// Match returns up to limit cities whose name contains query,
	// case-insensitively. Prefix matches come first, then the remaining
	// substring matches; within each group the bundled order is kept.
	Match(ctx context.Context, query string, limit int) ([]City, error)
	// All returns every bundled city in bundled order.
	All(ctx context.Context) ([]City, error)
}

//go:embed cities.json
var bundledJSON []byte

var (
	bundledOnce sync.Once
	bundled     []City
	bundledErr  error
)

// Bundled returns a copy of the embedded city list.
func Bundled() ([]City, error) {
	bundledOnce.Do(func() {
		bundled, bundledErr = parse(bundledJSON)
	})
	if bundledErr != nil {
		return nil, bundledErr
	}
	out := make([]City, len(bundled))
	copy(out, bundled)
	return out, nil
}

func parse(data []byte) ([]City, error) {
	var list []City
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse city list: %w", err)
	}
	for i, c := range list {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("city %d: empty name", i)
		}
		if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
			return nil, fmt.Errorf("city %q: coordinates out of range", c.Name)
		}
	}
	return list, nil
}
