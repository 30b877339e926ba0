package weather

// Icon is a display category derived from a provider weather code.
type Icon string

const (
	IconClearDay          Icon = "clear-day"
	IconClearNight        Icon = "clear-night"
	IconPartlyCloudyDay   Icon = "partly-cloudy-day"
	IconPartlyCloudyNight Icon = "partly-cloudy-night"
	IconFog               Icon = "fog"
	IconRain              Icon = "rain"
	IconSnow              Icon = "snow"
	IconDrizzle           Icon = "drizzle"
	IconThunderstorm      Icon = "thunderstorm"
	IconCloud             Icon = "cloud"
)

// AllIcons returns the fixed set of categories ClassifyIcon can produce.
func AllIcons() []Icon {
	return []Icon{
		IconClearDay, IconClearNight,
		IconPartlyCloudyDay, IconPartlyCloudyNight,
		IconFog, IconRain, IconSnow, IconDrizzle, IconThunderstorm,
		IconCloud,
	}
}

// ClassifyIcon maps a WMO weather code and day flag (non-zero is day) to an
// Icon. It is total: codes outside the known ranges map to IconCloud.
func ClassifyIcon(code, isDay int) Icon {
	day := isDay != 0
	switch {
	case code == 0:
		if day {
			return IconClearDay
		}
		return IconClearNight
	case code >= 1 && code <= 3:
		if day {
			return IconPartlyCloudyDay
		}
		return IconPartlyCloudyNight
	case code >= 45 && code <= 48:
		return IconFog
	case code >= 51 && code <= 67:
		return IconRain
	case code >= 71 && code <= 77:
		return IconSnow
	case code >= 80 && code <= 82:
		return IconDrizzle
	case code >= 95 && code <= 99:
		return IconThunderstorm
	default:
		return IconCloud
	}
}
