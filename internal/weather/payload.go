package weather

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// Field lists requested from the forecast endpoint.
const (
	currentFields      = "temperature_2m,relative_humidity_2m,weather_code,wind_speed_10m,is_day,apparent_temperature"
	hourlyFields       = "temperature_2m,relative_humidity_2m,weather_code"
	dailyFields        = "weather_code,temperature_2m_max,temperature_2m_min,sunrise,sunset"
	batchCurrentFields = "temperature_2m,weather_code,wind_speed_10m"
)

// forecastResponse mirrors the forecast endpoint. Sections are pointers so a
// missing section is distinguishable from an empty one.
type forecastResponse struct {
	Timezone string           `json:"timezone"`
	Current  *forecastCurrent `json:"current"`
	Hourly   *forecastHourly  `json:"hourly"`
	Daily    *forecastDaily   `json:"daily"`
}

type forecastCurrent struct {
	Time                string  `json:"time"`
	Temperature         float64 `json:"temperature_2m"`
	Humidity            float64 `json:"relative_humidity_2m"`
	WeatherCode         int     `json:"weather_code"`
	WindSpeed           float64 `json:"wind_speed_10m"`
	IsDay               int     `json:"is_day"`
	ApparentTemperature float64 `json:"apparent_temperature"`
}

type forecastHourly struct {
	Time        []string  `json:"time"`
	Temperature []float64 `json:"temperature_2m"`
	Humidity    []float64 `json:"relative_humidity_2m"`
	WeatherCode []int     `json:"weather_code"`
}

type forecastDaily struct {
	Time           []string  `json:"time"`
	WeatherCode    []int     `json:"weather_code"`
	TemperatureMax []float64 `json:"temperature_2m_max"`
	TemperatureMin []float64 `json:"temperature_2m_min"`
	Sunrise        []string  `json:"sunrise"`
	Sunset         []string  `json:"sunset"`
}

// errIncomplete is returned by normalize when a section is missing or misaligned.
var errIncomplete = errors.New("incomplete forecast")

// normalize converts a decoded forecast into WeatherData. All three sections
// must be present and index-aligned.
func normalize(r forecastResponse) (models.WeatherData, error) {
	switch {
	case r.Current == nil:
		return models.WeatherData{}, fmt.Errorf("%w: missing current", errIncomplete)
	case r.Hourly == nil:
		return models.WeatherData{}, fmt.Errorf("%w: missing hourly", errIncomplete)
	case r.Daily == nil:
		return models.WeatherData{}, fmt.Errorf("%w: missing daily", errIncomplete)
	}

	daily := models.DailyForecast{
		Time:           r.Daily.Time,
		WeatherCode:    r.Daily.WeatherCode,
		TemperatureMax: r.Daily.TemperatureMax,
		TemperatureMin: r.Daily.TemperatureMin,
		Sunrise:        r.Daily.Sunrise,
		Sunset:         r.Daily.Sunset,
	}
	if !daily.Aligned() {
		return models.WeatherData{}, fmt.Errorf("%w: daily arrays misaligned", errIncomplete)
	}
	hourly := models.HourlyForecast{
		Time:        r.Hourly.Time,
		Temperature: r.Hourly.Temperature,
		Humidity:    r.Hourly.Humidity,
		WeatherCode: r.Hourly.WeatherCode,
	}
	if !hourly.Aligned() {
		return models.WeatherData{}, fmt.Errorf("%w: hourly arrays misaligned", errIncomplete)
	}

	current := models.CurrentWeather{
		Temperature:         r.Current.Temperature,
		ApparentTemperature: r.Current.ApparentTemperature,
		WindSpeed:           r.Current.WindSpeed,
		WeatherCode:         r.Current.WeatherCode,
		Time:                r.Current.Time,
		IsDay:               r.Current.IsDay,
		Humidity:            r.Current.Humidity,
	}
	return models.WeatherData{
		Current:  current,
		Daily:    daily,
		Hourly:   hourly,
		Icon:     string(ClassifyIcon(current.WeatherCode, current.IsDay)),
		Timezone: r.Timezone,
	}, nil
}

// batchShape tags how the batch endpoint answered.
type batchShape int

const (
	shapeUnrecognized batchShape = iota
	// shapeArray is returned for two or more coordinates.
	shapeArray
	// shapeSingle is returned when exactly one coordinate was requested.
	shapeSingle
)

func (s batchShape) String() string {
	switch s {
	case shapeArray:
		return "array"
	case shapeSingle:
		return "single"
	default:
		return "unrecognized"
	}
}

type batchCurrent struct {
	Temperature *float64 `json:"temperature_2m"`
	WeatherCode *int     `json:"weather_code"`
	WindSpeed   *float64 `json:"wind_speed_10m"`
}

type batchItem struct {
	Current *batchCurrent `json:"current"`
}

// batchPayload is the classified batch response. Items is empty for shapeUnrecognized.
type batchPayload struct {
	shape batchShape
	items []batchItem
}

// parseBatchPayload classifies the raw body before any mapping happens.
func parseBatchPayload(body []byte) (batchPayload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return batchPayload{}, fmt.Errorf("%w: empty batch body", client.ErrMalformedResponse)
	}

	switch trimmed[0] {
	case '[':
		var items []batchItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return batchPayload{}, fmt.Errorf("%w: parse batch array: %v", client.ErrMalformedResponse, err)
		}
		return batchPayload{shape: shapeArray, items: items}, nil
	case '{':
		var item batchItem
		if err := json.Unmarshal(trimmed, &item); err != nil {
			return batchPayload{}, fmt.Errorf("%w: parse batch object: %v", client.ErrMalformedResponse, err)
		}
		if item.Current == nil {
			return batchPayload{shape: shapeUnrecognized}, nil
		}
		return batchPayload{shape: shapeSingle, items: []batchItem{item}}, nil
	default:
		return batchPayload{}, fmt.Errorf("%w: unexpected batch body", client.ErrMalformedResponse)
	}
}

// toPoint maps one batch element, defaulting missing values to zero.
func (it batchItem) toPoint() models.BatchWeatherPoint {
	var p models.BatchWeatherPoint
	if it.Current == nil {
		return p
	}
	complete := true
	if it.Current.Temperature != nil {
		p.Temperature = *it.Current.Temperature
	} else {
		complete = false
	}
	if it.Current.WeatherCode != nil {
		p.WeatherCode = *it.Current.WeatherCode
	} else {
		complete = false
	}
	if it.Current.WindSpeed != nil {
		p.WindSpeed = *it.Current.WindSpeed
	} else {
		complete = false
	}
	p.Complete = complete
	return p
}
