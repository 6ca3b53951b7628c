// Package openmeteotest provides an in-process stand-in for the Open-Meteo
// hourly endpoints.
package openmeteotest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
)

// Server serves marine, forecast and historical forecast payloads with one
// entry per hour for the requested start_date.
type Server struct {
	*httptest.Server

	MarineHits     atomic.Int32
	ForecastHits   atomic.Int32
	HistoricalHits atomic.Int32

	mu        sync.Mutex
	hours     int
	values    map[string]float64
	failures  map[string]int
	lastQuery map[string]url.Values
}

// DefaultValues are served for every hour unless overridden with Set.
var DefaultValues = map[string]float64{
	"swell_wave_height":    1.2,
	"swell_wave_direction": 270,
	"swell_wave_period":    9.6,
	"wind_speed_10m":       3.1,
	"wind_direction_10m":   180,
	"wind_gusts_10m":       5.3,
	"temperature_2m":       15.5,
	"weathercode":          1,
	"soil_temperature_0cm": 12.4,
}

func NewServer() *Server {
	s := &Server{
		hours:     24,
		values:    make(map[string]float64, len(DefaultValues)),
		failures:  make(map[string]int),
		lastQuery: make(map[string]url.Values),
	}
	for k, v := range DefaultValues {
		s.values[k] = v
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/marine", s.handle("marine", &s.MarineHits))
	mux.HandleFunc("/v1/forecast", s.handle("forecast", &s.ForecastHits))
	mux.HandleFunc("/historical/v1/forecast", s.handle("historical", &s.HistoricalHits))
	s.Server = httptest.NewServer(mux)
	return s
}

func (s *Server) MarineURL() string     { return s.URL + "/v1/marine" }
func (s *Server) ForecastURL() string   { return s.URL + "/v1/forecast" }
func (s *Server) HistoricalURL() string { return s.URL + "/historical/v1/forecast" }

// SetHours changes how many hourly entries each payload carries.
func (s *Server) SetHours(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hours = n
}

// Set overrides the value served for one hourly variable.
func (s *Server) Set(variable string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[variable] = value
}

// FailWith makes the named endpoint ("marine", "forecast", "historical")
// answer with status until reset with status 0.
func (s *Server) FailWith(endpoint string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[endpoint] = status
}

// LastQuery returns the query of the latest request to the named endpoint.
func (s *Server) LastQuery(endpoint string) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery[endpoint]
}

// TotalHits counts requests across all endpoints.
func (s *Server) TotalHits() int {
	return int(s.MarineHits.Load() + s.ForecastHits.Load() + s.HistoricalHits.Load())
}

func (s *Server) handle(name string, hits *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		q := r.URL.Query()

		s.mu.Lock()
		s.lastQuery[name] = q
		status := s.failures[name]
		hours := s.hours
		values := make(map[string]float64, len(s.values))
		for k, v := range s.values {
			values[k] = v
		}
		s.mu.Unlock()

		if status != 0 {
			http.Error(w, `{"error":true,"reason":"failure injected"}`, status)
			return
		}

		date := q.Get("start_date")
		hourly := map[string]interface{}{}
		times := make([]string, hours)
		for h := range times {
			times[h] = fmt.Sprintf("%sT%02d:00", date, h)
		}
		hourly["time"] = times

		for _, v := range strings.Split(q.Get("hourly"), ",") {
			val, ok := values[v]
			if !ok {
				continue
			}
			series := make([]float64, hours)
			for h := range series {
				series[h] = val
			}
			hourly[v] = series
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"timezone_abbreviation": "GMT",
			"hourly":                hourly,
		})
	}
}
