package livedata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const weatherProvider = "open-meteo"

// WeatherReport is the current weather at a geocoded place.
type WeatherReport struct {
	Place       string
	Region      string
	Country     string
	Latitude    float64
	Longitude   float64
	Temperature float64
	FeelsLike   float64
	Humidity    float64
	WindSpeed   float64
	Code        int
	Condition   string
	ObservedAt  string
}

// Weather looks up places and their current weather on Open-Meteo.
type Weather struct {
	client       *http.Client
	geocodingURL string
	forecastURL  string
	apiKey       string
}

// NewWeather creates the weather client.
func NewWeather(client *http.Client, geocodingURL, forecastURL, apiKey string) *Weather {
	if client == nil {
		client = http.DefaultClient
	}
	return &Weather{
		client:       client,
		geocodingURL: strings.TrimRight(geocodingURL, "/"),
		forecastURL:  strings.TrimRight(forecastURL, "/"),
		apiKey:       apiKey,
	}
}

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Country   string  `json:"country"`
		Admin1    string  `json:"admin1"`
	} `json:"results"`
}

type forecastResponse struct {
	Current struct {
		Time                string  `json:"time"`
		Temperature         float64 `json:"temperature_2m"`
		RelativeHumidity    float64 `json:"relative_humidity_2m"`
		ApparentTemperature float64 `json:"apparent_temperature"`
		WeatherCode         int     `json:"weather_code"`
		WindSpeed           float64 `json:"wind_speed_10m"`
	} `json:"current"`
}

// Current geocodes city and fetches its current conditions.
func (w *Weather) Current(ctx context.Context, city string) (WeatherReport, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return WeatherReport{}, ErrNotFound
	}

	geoQuery := url.Values{}
	geoQuery.Set("name", city)
	geoQuery.Set("count", "1")
	geoQuery.Set("language", "en")
	geoQuery.Set("format", "json")
	w.authorize(geoQuery)

	var places geocodingResponse
	if err := getJSON(ctx, w.client, weatherProvider, w.geocodingURL+"/search?"+geoQuery.Encode(), &places); err != nil {
		return WeatherReport{}, err
	}
	if len(places.Results) == 0 {
		return WeatherReport{}, fmt.Errorf("geocode %q: %w", city, ErrNotFound)
	}
	place := places.Results[0]

	forecastQuery := url.Values{}
	forecastQuery.Set("latitude", strconv.FormatFloat(place.Latitude, 'f', 4, 64))
	forecastQuery.Set("longitude", strconv.FormatFloat(place.Longitude, 'f', 4, 64))
	forecastQuery.Set("current", "temperature_2m,relative_humidity_2m,apparent_temperature,weather_code,wind_speed_10m")
	forecastQuery.Set("timezone", "auto")
	w.authorize(forecastQuery)

	var forecast forecastResponse
	if err := getJSON(ctx, w.client, weatherProvider, w.forecastURL+"/forecast?"+forecastQuery.Encode(), &forecast); err != nil {
		return WeatherReport{}, err
	}

	current := forecast.Current
	return WeatherReport{
		Place:       place.Name,
		Region:      place.Admin1,
		Country:     place.Country,
		Latitude:    place.Latitude,
		Longitude:   place.Longitude,
		Temperature: current.Temperature,
		FeelsLike:   current.ApparentTemperature,
		Humidity:    current.RelativeHumidity,
		WindSpeed:   current.WindSpeed,
		Code:        current.WeatherCode,
		Condition:   DescribeWeatherCode(current.WeatherCode),
		ObservedAt:  current.Time,
	}, nil
}

func (w *Weather) authorize(query url.Values) {
	if w.apiKey != "" {
		query.Set("apikey", w.apiKey)
	}
}

// Format renders the report as a plain-text context line.
func (r WeatherReport) Format() string {
	location := r.Place
	for _, part := range []string{r.Region, r.Country} {
		if part != "" && part != r.Place {
			location += ", " + part
		}
	}
	text := fmt.Sprintf("Current weather in %s: %s, %.1f°C (feels like %.1f°C), humidity %.0f%%, wind %.1f km/h.",
		location, r.Condition, r.Temperature, r.FeelsLike, r.Humidity, r.WindSpeed)
	if r.ObservedAt != "" {
		text += fmt.Sprintf(" Observed at %s local time.", strings.Replace(r.ObservedAt, "T", " ", 1))
	}
	return text
}

// wmoCodes maps WMO weather interpretation codes to descriptions.
var wmoCodes = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Fog",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	56: "Light freezing drizzle",
	57: "Dense freezing drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	66: "Light freezing rain",
	67: "Heavy freezing rain",
	71: "Slight snowfall",
	73: "Moderate snowfall",
	75: "Heavy snowfall",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Slight snow showers",
	86: "Heavy snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

// DescribeWeatherCode returns the description for a WMO code.
func DescribeWeatherCode(code int) string {
	if description, ok := wmoCodes[code]; ok {
		return description
	}
	return "Unknown conditions"
}
