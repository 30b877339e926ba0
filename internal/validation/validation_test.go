package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

func TestValidateQuery_InvalidChars(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"slash", "sea/ttle"},
		{"backslash", "sea\\ttle"},
		{"question", "sea?ttle"},
		{"hash", "sea#ttle"},
		{"control", "sea\x00ttle"},
		{"percent", "sea%ttle"},
		{"ampersand", "sea&ttle"},
		{"angle", "<script>"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateQuery(tc.input, 100)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrQueryInvalidChars) {
				t.Errorf("error = %v, want ErrQueryInvalidChars", err)
			}
		})
	}
}

func TestValidateQuery_Valid(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantNorm string
	}{
		{"empty", "", ""},
		{"single rune", "a", "a"},
		{"simple", "Seattle", "Seattle"},
		{"with space", "New York", "New York"},
		{"comma", "London,uk", "London,uk"},
		{"hyphen", "Aix-en-Provence", "Aix-en-Provence"},
		{"period and apostrophe", "St. John's", "St. John's"},
		{"trimmed", "  Boston  ", "Boston"},
		{"unicode", "Zürich", "Zürich"},
		{"combining mark", "Zu\u0308rich", "Zu\u0308rich"},
		{"digits", "Area51", "Area51"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateQuery(tc.input, 100)
			if err != nil {
				t.Fatalf("ValidateQuery() err = %v", err)
			}
			if got != tc.wantNorm {
				t.Errorf("normalized = %q, want %q", got, tc.wantNorm)
			}
		})
	}
}

func TestValidateQuery_LengthBoundaries(t *testing.T) {
	s100 := strings.Repeat("a", 100)
	got, err := ValidateQuery(s100, 100)
	if err != nil {
		t.Fatalf("max boundary: err = %v", err)
	}
	if len([]rune(got)) != 100 {
		t.Errorf("max boundary: rune count = %d, want 100", len([]rune(got)))
	}
	_, err = ValidateQuery(s100+"a", 100)
	if !errors.Is(err, ErrQueryTooLong) {
		t.Errorf("over max: err = %v, want ErrQueryTooLong", err)
	}
	// Length is counted in runes, not bytes.
	if _, err := ValidateQuery(strings.Repeat("ü", 100), 100); err != nil {
		t.Errorf("100 two-byte runes: err = %v", err)
	}
}

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon string
		want     models.Coordinate
		wantErr  error
	}{
		{"valid", "52.52", "13.41", models.Coordinate{Lat: 52.52, Lon: 13.41}, nil},
		{"trimmed", " -33.87 ", "151.21", models.Coordinate{Lat: -33.87, Lon: 151.21}, nil},
		{"bounds inclusive", "90", "-180", models.Coordinate{Lat: 90, Lon: -180}, nil},
		{"missing lat", "", "13.41", models.Coordinate{}, ErrCoordinatesMissing},
		{"missing lon", "52.52", "", models.Coordinate{}, ErrCoordinatesMissing},
		{"not a number", "north", "13.41", models.Coordinate{}, ErrCoordinatesInvalid},
		{"NaN", "NaN", "0", models.Coordinate{}, ErrCoordinatesInvalid},
		{"Inf", "0", "+Inf", models.Coordinate{}, ErrCoordinatesInvalid},
		{"lat out of range", "90.0001", "0", models.Coordinate{}, ErrCoordinatesInvalid},
		{"lon out of range", "0", "-180.5", models.Coordinate{}, ErrCoordinatesInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCoordinate(tc.lat, tc.lon)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			if got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestValidateBatch(t *testing.T) {
	ok := models.Coordinate{Lat: 1, Lon: 1}

	if err := ValidateBatch(BatchRequest{}, 10); err != nil {
		t.Errorf("empty batch: err = %v", err)
	}
	if err := ValidateBatch(BatchRequest{Coordinates: []models.Coordinate{ok, ok}}, 2); err != nil {
		t.Errorf("at limit: err = %v", err)
	}

	err := ValidateBatch(BatchRequest{Coordinates: []models.Coordinate{ok, ok, ok}}, 2)
	if !errors.Is(err, ErrTooManyCoordinates) {
		t.Errorf("over limit: err = %v, want ErrTooManyCoordinates", err)
	}

	bad := []models.Coordinate{ok, {Lat: 91, Lon: 0}}
	err = ValidateBatch(BatchRequest{Coordinates: bad}, 10)
	if !errors.Is(err, ErrCoordinatesInvalid) {
		t.Fatalf("out of range: err = %v, want ErrCoordinatesInvalid", err)
	}
	if !strings.Contains(err.Error(), "Coordinates[1].Lat") {
		t.Errorf("error should name the offending element: %v", err)
	}
}
