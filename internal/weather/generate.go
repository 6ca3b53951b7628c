package weather

import "math"

// Merge combines a marine and an atmospheric series into one record per hour.
//
// The marine series drives the iteration. Each marine hour is joined with the
// forecast hour carrying the same timestamp, so the two payloads do not need
// to share ordering. Hours with a malformed timestamp, hours already seen and
// hours missing from the forecast are dropped; the caller's completeness
// check then rejects the day. Either series being nil yields no records.
func Merge(marine, forecast *HourlySeries) []GeneratedCondition {
	if marine == nil || forecast == nil {
		return []GeneratedCondition{}
	}

	forecastIndex := make(map[string]int, forecast.Len())
	for i, ts := range forecast.Time {
		if _, dup := forecastIndex[ts]; !dup {
			forecastIndex[ts] = i
		}
	}

	seen := make(map[string]bool, marine.Len())
	out := make([]GeneratedCondition, 0, marine.Len())
	for i, ts := range marine.Time {
		hour, ok := HourOfDay(ts)
		if !ok || seen[hour] {
			continue
		}
		j, ok := forecastIndex[ts]
		if !ok {
			continue
		}
		seen[hour] = true

		out = append(out, GeneratedCondition{
			DateTime:         hour,
			WaveHeight:       marine.Value(SwellWaveHeight, i),
			WaveDirection:    roundHalfUp(marine.Value(SwellWaveDirection, i)),
			WavePeriod:       roundHalfUp(marine.Value(SwellWavePeriod, i)),
			WindSpeed:        forecast.Value(WindSpeed10m, j),
			WindDirection:    roundHalfUp(forecast.Value(WindDirection10m, j)),
			WindGusts:        forecast.Value(WindGusts10m, j),
			Temperature:      roundHalfUp(forecast.Value(Temperature2m, j)),
			WaterTemperature: roundHalfUp(forecast.Value(SoilTemperature0cm, j)),
			WeatherCode:      roundHalfUp(forecast.Value(WeatherCode, j)),
		})
	}
	return out
}

// FullDay reports whether conds covers every hour of a day exactly once.
func FullDay(conds []GeneratedCondition) bool {
	if len(conds) != HoursPerDay {
		return false
	}
	hours := make(map[string]struct{}, HoursPerDay)
	for _, c := range conds {
		hours[c.DateTime] = struct{}{}
	}
	return len(hours) == HoursPerDay
}

// roundHalfUp rounds halves toward positive infinity: -2.5 becomes -2.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
