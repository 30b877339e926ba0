package models

import "slices"

// CurrentWeather is a point-in-time observation. Time is ISO-8601 local time
// at the observed coordinates.
type CurrentWeather struct {
	Temperature         float64 `json:"temperature"`
	ApparentTemperature float64 `json:"apparentTemperature"`
	WindSpeed           float64 `json:"windSpeed"`
	WeatherCode         int     `json:"weatherCode"`
	Time                string  `json:"time"`
	IsDay               int     `json:"isDay"`
	Humidity            float64 `json:"humidity"`
}

// DailyForecast holds index-aligned arrays; index i is the same calendar day
// across all of them.
type DailyForecast struct {
	Time           []string  `json:"time"`
	WeatherCode    []int     `json:"weatherCode"`
	TemperatureMax []float64 `json:"temperatureMax"`
	TemperatureMin []float64 `json:"temperatureMin"`
	Sunrise        []string  `json:"sunrise"`
	Sunset         []string  `json:"sunset"`
}

// Aligned reports whether every array has the same length.
func (d DailyForecast) Aligned() bool {
	n := len(d.Time)
	return len(d.WeatherCode) == n &&
		len(d.TemperatureMax) == n &&
		len(d.TemperatureMin) == n &&
		len(d.Sunrise) == n &&
		len(d.Sunset) == n
}

// HourlyForecast is a rolling forecast window. Humidity and WeatherCode are
// optional but must match Time when present.
type HourlyForecast struct {
	Time        []string  `json:"time"`
	Temperature []float64 `json:"temperature"`
	Humidity    []float64 `json:"humidity,omitempty"`
	WeatherCode []int     `json:"weatherCode,omitempty"`
}

// Aligned reports whether the hourly arrays are index-aligned.
func (h HourlyForecast) Aligned() bool {
	n := len(h.Time)
	if len(h.Temperature) != n {
		return false
	}
	if h.Humidity != nil && len(h.Humidity) != n {
		return false
	}
	if h.WeatherCode != nil && len(h.WeatherCode) != n {
		return false
	}
	return true
}

// WeatherData is the complete observation for one location at one point in
// time. It is replaced wholesale on every fetch.
type WeatherData struct {
	Current  CurrentWeather `json:"current"`
	Daily    DailyForecast  `json:"daily"`
	Hourly   HourlyForecast `json:"hourly"`
	Icon     string         `json:"icon"`
	Timezone string         `json:"timezone,omitempty"`
}

// Clone returns a copy whose forecast arrays share no backing storage with w.
// Nil arrays stay nil.
func (w WeatherData) Clone() WeatherData {
	out := w
	out.Daily = DailyForecast{
		Time:           slices.Clone(w.Daily.Time),
		WeatherCode:    slices.Clone(w.Daily.WeatherCode),
		TemperatureMax: slices.Clone(w.Daily.TemperatureMax),
		TemperatureMin: slices.Clone(w.Daily.TemperatureMin),
		Sunrise:        slices.Clone(w.Daily.Sunrise),
		Sunset:         slices.Clone(w.Daily.Sunset),
	}
	out.Hourly = HourlyForecast{
		Time:        slices.Clone(w.Hourly.Time),
		Temperature: slices.Clone(w.Hourly.Temperature),
		Humidity:    slices.Clone(w.Hourly.Humidity),
		WeatherCode: slices.Clone(w.Hourly.WeatherCode),
	}
	return out
}

// BatchWeatherPoint is the lightweight current-conditions value used for
// overview tiles and map markers. Missing values default to zero; Complete is
// false when any of them was missing upstream.
type BatchWeatherPoint struct {
	Temperature float64 `json:"temperature"`
	WeatherCode int     `json:"weatherCode"`
	WindSpeed   float64 `json:"windSpeed"`
	Complete    bool    `json:"complete"`
}
