package weather

import "strings"

// HoursPerDay is the number of hourly conditions every session owns.
const HoursPerDay = 24

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionFog     Condition = "fog"
	ConditionDrizzle Condition = "drizzle"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
)

// Variable names one hourly quantity requested from the upstream provider.
// The value doubles as the key of its array in the payload.
type Variable string

const (
	SwellWaveHeight    Variable = "swell_wave_height"
	SwellWaveDirection Variable = "swell_wave_direction"
	SwellWavePeriod    Variable = "swell_wave_period"

	WindSpeed10m       Variable = "wind_speed_10m"
	WindDirection10m   Variable = "wind_direction_10m"
	WindGusts10m       Variable = "wind_gusts_10m"
	Temperature2m      Variable = "temperature_2m"
	WeatherCode        Variable = "weathercode"
	SoilTemperature0cm Variable = "soil_temperature_0cm"
)

// MarineVariables are requested from the marine endpoint.
var MarineVariables = []Variable{SwellWaveHeight, SwellWaveDirection, SwellWavePeriod}

// ForecastVariables are requested from both atmospheric forecast endpoints.
var ForecastVariables = []Variable{
	WindSpeed10m,
	WindDirection10m,
	WindGusts10m,
	Temperature2m,
	WeatherCode,
	SoilTemperature0cm,
}

// HourlySeries is a parsed upstream payload: one timestamp per hour plus one
// sequence per measured quantity, all indexed by hour. A nil entry means the
// provider reported no value for that hour.
type HourlySeries struct {
	Time   []string                `json:"time"`
	Values map[Variable][]*float64 `json:"values"`
}

// Len returns the number of hours in the series.
func (s *HourlySeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Time)
}

// Value returns the value of v at hour index i, or 0 when the provider did
// not report it.
func (s *HourlySeries) Value(v Variable, i int) float64 {
	if s == nil {
		return 0
	}
	values := s.Values[v]
	if i < 0 || i >= len(values) || values[i] == nil {
		return 0
	}
	return *values[i]
}

// GeneratedCondition is one merged hourly record before it is tied to a session.
type GeneratedCondition struct {
	DateTime         string  `json:"dateTime"` // hour of day, HH:MM:SS
	WaveHeight       float64 `json:"waveHeight"`
	WaveDirection    int     `json:"waveDirection"`
	WavePeriod       int     `json:"wavePeriod"`
	WindSpeed        float64 `json:"windSpeed"`
	WindDirection    int     `json:"windDirection"`
	WindGusts        float64 `json:"windGusts"`
	Temperature      int     `json:"temperature"`
	WaterTemperature int     `json:"waterTemperature"`
	WeatherCode      int     `json:"weatherCode"`
}

// HourOfDay extracts the time-of-day portion of an upstream timestamp
// (YYYY-MM-DDTHH:MM) as HH:MM:SS.
func HourOfDay(timestamp string) (string, bool) {
	_, clock, ok := strings.Cut(timestamp, "T")
	if !ok {
		return "", false
	}
	switch len(clock) {
	case len("15:04"):
		clock += ":00"
	case len("15:04:05"):
	default:
		return "", false
	}
	if clock[2] != ':' || clock[5] != ':' {
		return "", false
	}
	return clock, true
}
