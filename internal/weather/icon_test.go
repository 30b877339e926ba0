package weather

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyIcon(t *testing.T) {
	tests := []struct {
		code, isDay int
		want        Icon
	}{
		{0, 1, IconClearDay},
		{0, 0, IconClearNight},
		{1, 1, IconPartlyCloudyDay},
		{2, 1, IconPartlyCloudyDay},
		{3, 0, IconPartlyCloudyNight},
		{45, 1, IconFog},
		{48, 0, IconFog},
		{51, 1, IconRain},
		{67, 1, IconRain},
		{71, 0, IconSnow},
		{77, 1, IconSnow},
		{80, 1, IconDrizzle},
		{82, 0, IconDrizzle},
		{95, 1, IconThunderstorm},
		{99, 0, IconThunderstorm},
		{4, 1, IconCloud},
		{68, 1, IconCloud},
		{100, 1, IconCloud},
		{-1, 0, IconCloud},
		{0, 7, IconClearDay},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyIcon(tt.code, tt.isDay), "ClassifyIcon(%d, %d)", tt.code, tt.isDay)
	}
}

// TestClassifyIcon_Total checks every code maps into the fixed category set.
func TestClassifyIcon_Total(t *testing.T) {
	known := make(map[Icon]bool)
	for _, ic := range AllIcons() {
		known[ic] = true
	}
	seen := make(map[Icon]bool)
	for code := -500; code <= 500; code++ {
		for _, d := range []int{0, 1} {
			got := ClassifyIcon(code, d)
			if !known[got] {
				t.Fatalf("ClassifyIcon(%d, %d) = %q, not in category set", code, d, got)
			}
			seen[got] = true
		}
	}
	assert.Len(t, seen, len(known), "every category should be reachable")
}

func TestClassifyIcon_PartlyCloudyLiteral(t *testing.T) {
	assert.Equal(t, "partly-cloudy-day", string(ClassifyIcon(2, 1)))
}
