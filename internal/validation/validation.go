package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// DefaultMaxQueryLength is the longest search query, in runes, accepted by
// the HTTP API and the CLI.
const DefaultMaxQueryLength = 100

// ErrQueryTooLong is returned when a search query exceeds the maximum length.
var ErrQueryTooLong = errors.New("query too long")

// ErrQueryInvalidChars is returned when a search query contains disallowed characters.
var ErrQueryInvalidChars = errors.New("query contains invalid characters")

// ErrCoordinatesMissing is returned when lat or lon is absent.
var ErrCoordinatesMissing = errors.New("lat and lon are required")

// ErrCoordinatesInvalid is returned when a coordinate is unparsable, non-finite or out of range.
var ErrCoordinatesInvalid = errors.New("invalid coordinates")

// ErrTooManyCoordinates is returned when a batch exceeds the configured maximum.
var ErrTooManyCoordinates = errors.New("too many coordinates")

var validate = validator.New(validator.WithRequiredStructEnabled())

// BatchRequest is the body of a batch weather request.
type BatchRequest struct {
	Coordinates []models.Coordinate `json:"coordinates" validate:"dive"`
}

// ValidateQuery trims the input and enforces a maximum length (maxLen in runes)
// and the allowed characters: letters (Unicode), digits, space, comma, hyphen,
// period, apostrophe. An empty query is valid; short queries are the resolver's concern.
func ValidateQuery(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrQueryTooLong
	}
	for _, c := range r {
		if !isAllowedQueryRune(c) {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}

// isAllowedQueryRune returns true for letters (Unicode), digits, space, comma, hyphen, period, apostrophe.
func isAllowedQueryRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

// ParseCoordinate parses query-string coordinates and checks their range.
func ParseCoordinate(latStr, lonStr string) (models.Coordinate, error) {
	latStr, lonStr = strings.TrimSpace(latStr), strings.TrimSpace(lonStr)
	if latStr == "" || lonStr == "" {
		return models.Coordinate{}, ErrCoordinatesMissing
	}
	lat, err := parseFinite(latStr)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("%w: lat %q", ErrCoordinatesInvalid, latStr)
	}
	lon, err := parseFinite(lonStr)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("%w: lon %q", ErrCoordinatesInvalid, lonStr)
	}
	c := models.Coordinate{Lat: lat, Lon: lon}
	if err := ValidateCoordinate(c); err != nil {
		return models.Coordinate{}, err
	}
	return c, nil
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

// ValidateCoordinate checks lat in [-90, 90] and lon in [-180, 180].
func ValidateCoordinate(c models.Coordinate) error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return fmt.Errorf("%w: NaN", ErrCoordinatesInvalid)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrCoordinatesInvalid, describe(err))
	}
	return nil
}

// ValidateBatch checks every coordinate and the batch size. An empty batch is valid.
func ValidateBatch(req BatchRequest, maxCoords int) error {
	if maxCoords > 0 && len(req.Coordinates) > maxCoords {
		return fmt.Errorf("%w: %d exceeds limit of %d", ErrTooManyCoordinates, len(req.Coordinates), maxCoords)
	}
	for i, c := range req.Coordinates {
		if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
			return fmt.Errorf("%w: coordinates[%d] is NaN", ErrCoordinatesInvalid, i)
		}
	}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", ErrCoordinatesInvalid, describe(err))
	}
	return nil
}

// describe flattens validator errors into one line, e.g.
// "Coordinates[3].Lat must be lte 90".
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		parts = append(parts, fmt.Sprintf("%s must be %s %s", ns, fe.Tag(), fe.Param()))
	}
	return strings.Join(parts, "; ")
}
