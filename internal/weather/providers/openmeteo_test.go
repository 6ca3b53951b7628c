package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/surfvault/internal/weather"
	"github.com/i474232898/surfvault/internal/weather/providers/openmeteotest"
)

func fixedNow() time.Time {
	return time.Date(2023, time.June, 1, 15, 0, 0, 0, time.UTC)
}

func newTestClient(srv *openmeteotest.Server, cache weather.SeriesCache) *OpenMeteoClient {
	return NewOpenMeteoClient(srv.Client(), OpenMeteoConfig{
		MarineURL:     srv.MarineURL(),
		ForecastURL:   srv.ForecastURL(),
		HistoricalURL: srv.HistoricalURL(),
		Cache:         cache,
		Now:           fixedNow,
	})
}

func TestFetchMarine(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()

	client := newTestClient(srv, nil)
	series, err := client.FetchMarine(context.Background(), "34.05220", "-118.24370", "2023-05-30")
	if err != nil {
		t.Fatalf("FetchMarine() error = %v", err)
	}
	if series.Len() != 24 {
		t.Fatalf("expected 24 hours, got %d", series.Len())
	}
	if series.Time[0] != "2023-05-30T00:00" {
		t.Errorf("first timestamp = %s", series.Time[0])
	}
	if got := series.Value(weather.SwellWaveHeight, 3); got != 1.2 {
		t.Errorf("swell height = %v, want 1.2", got)
	}

	q := srv.LastQuery("marine")
	want := url.Values{
		"latitude":   {"34.05220"},
		"longitude":  {"-118.24370"},
		"hourly":     {"swell_wave_height,swell_wave_direction,swell_wave_period"},
		"start_date": {"2023-05-30"},
		"end_date":   {"2023-05-30"},
		"timezone":   {"auto"},
	}
	if len(q) != len(want) {
		t.Errorf("unexpected query parameters: %v", q)
	}
	for k, v := range want {
		if q.Get(k) != v[0] {
			t.Errorf("query %s = %q, want %q", k, q.Get(k), v[0])
		}
	}
}

func TestFetchForecastSelectsEndpoint(t *testing.T) {
	tests := []struct {
		name           string
		date           string
		wantForecast   int32
		wantHistorical int32
	}{
		{"recent date", "2023-05-30", 1, 0},
		{"exactly at threshold", "2023-03-07", 1, 0},
		{"beyond threshold", "2023-03-06", 0, 1},
		{"long ago", "2020-01-01", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := openmeteotest.NewServer()
			defer srv.Close()

			client := newTestClient(srv, nil)
			if _, err := client.FetchForecast(context.Background(), "34.05220", "-118.24370", tt.date); err != nil {
				t.Fatalf("FetchForecast() error = %v", err)
			}
			if got := srv.ForecastHits.Load(); got != tt.wantForecast {
				t.Errorf("forecast hits = %d, want %d", got, tt.wantForecast)
			}
			if got := srv.HistoricalHits.Load(); got != tt.wantHistorical {
				t.Errorf("historical hits = %d, want %d", got, tt.wantHistorical)
			}
		})
	}
}

func TestFetchForecastQuery(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()

	client := newTestClient(srv, nil)
	if _, err := client.FetchForecast(context.Background(), "34.05220", "-118.24370", "2023-05-30T00:00:00Z"); err != nil {
		t.Fatalf("FetchForecast() error = %v", err)
	}
	q := srv.LastQuery("forecast")
	if q.Get("cell_selection") != "sea" {
		t.Errorf("cell_selection = %q, want sea", q.Get("cell_selection"))
	}
	if q.Get("start_date") != "2023-05-30" {
		t.Errorf("start_date = %q, want normalized date", q.Get("start_date"))
	}
	if q.Get("hourly") != "wind_speed_10m,wind_direction_10m,wind_gusts_10m,temperature_2m,weathercode,soil_temperature_0cm" {
		t.Errorf("hourly = %q", q.Get("hourly"))
	}
}

func TestFetchFailures(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := openmeteotest.NewServer()
		defer srv.Close()
		srv.FailWith("marine", http.StatusInternalServerError)

		client := newTestClient(srv, nil)
		series, err := client.FetchMarine(context.Background(), "34.05220", "-118.24370", "2023-05-30")
		if !errors.Is(err, errServerError) {
			t.Fatalf("expected server error, got %v", err)
		}
		if series != nil {
			t.Error("a failure must not carry data")
		}
		if hits := srv.MarineHits.Load(); hits != 1 {
			t.Errorf("expected a single attempt without retries, got %d", hits)
		}
	})

	t.Run("bad request", func(t *testing.T) {
		srv := openmeteotest.NewServer()
		defer srv.Close()
		srv.FailWith("forecast", http.StatusBadRequest)

		client := newTestClient(srv, nil)
		if _, err := client.FetchForecast(context.Background(), "34.05220", "-118.24370", "2023-05-30"); !errors.Is(err, errUnexpected) {
			t.Fatalf("expected unexpected status error, got %v", err)
		}
	})

	t.Run("rejected requests keep the circuit closed", func(t *testing.T) {
		srv := openmeteotest.NewServer()
		defer srv.Close()
		srv.FailWith("marine", http.StatusBadRequest)

		client := newTestClient(srv, nil)
		ctx := context.Background()
		for i := 0; i < 10; i++ {
			if _, err := client.FetchMarine(ctx, "34.05220", "-118.24370", "2023-05-30"); !errors.Is(err, errUnexpected) {
				t.Fatalf("request %d: expected unexpected status error, got %v", i, err)
			}
		}

		srv.FailWith("marine", 0)
		series, err := client.FetchMarine(ctx, "34.05220", "-118.24370", "2023-05-30")
		if err != nil {
			t.Fatalf("expected a valid request to succeed after rejections, got %v", err)
		}
		if series.Len() != 24 {
			t.Errorf("expected 24 hours, got %d", series.Len())
		}
	})

	t.Run("server errors open the circuit", func(t *testing.T) {
		srv := openmeteotest.NewServer()
		defer srv.Close()
		srv.FailWith("marine", http.StatusServiceUnavailable)

		client := newTestClient(srv, nil)
		ctx := context.Background()
		for i := 0; i < 6; i++ {
			client.FetchMarine(ctx, "34.05220", "-118.24370", "2023-05-30")
		}

		srv.FailWith("marine", 0)
		if _, err := client.FetchMarine(ctx, "34.05220", "-118.24370", "2023-05-30"); !errors.Is(err, errCircuitOpen) {
			t.Fatalf("expected the circuit to be open, got %v", err)
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"hourly": {"swell_wave_height": [1.0]}}`))
		}))
		defer srv.Close()

		client := NewOpenMeteoClient(srv.Client(), OpenMeteoConfig{MarineURL: srv.URL, Now: fixedNow})
		if _, err := client.FetchMarine(context.Background(), "1", "2", "2023-05-30"); !errors.Is(err, errMalformedPayload) {
			t.Fatalf("expected malformed payload error, got %v", err)
		}
	})

	t.Run("invalid date", func(t *testing.T) {
		srv := openmeteotest.NewServer()
		defer srv.Close()

		client := newTestClient(srv, nil)
		if _, err := client.FetchMarine(context.Background(), "1", "2", "yesterday"); err == nil {
			t.Fatal("expected an error for an invalid date")
		}
		if srv.TotalHits() != 0 {
			t.Error("no request should be issued for an invalid date")
		}
	})
}

func TestDecodeNullValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hourly": {"time": ["2023-05-30T00:00", "2023-05-30T01:00"], "swell_wave_height": [null, 0.8]}}`))
	}))
	defer srv.Close()

	client := NewOpenMeteoClient(srv.Client(), OpenMeteoConfig{MarineURL: srv.URL, Now: fixedNow})
	series, err := client.FetchMarine(context.Background(), "1", "2", "2023-05-30")
	if err != nil {
		t.Fatalf("FetchMarine() error = %v", err)
	}
	if series.Values[weather.SwellWaveHeight][0] != nil {
		t.Error("expected null to decode as an absent value")
	}
	if series.Value(weather.SwellWaveHeight, 1) != 0.8 {
		t.Errorf("unexpected value %v", series.Value(weather.SwellWaveHeight, 1))
	}
	if series.Value(weather.SwellWavePeriod, 0) != 0 {
		t.Error("absent variable should read as zero")
	}
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]*weather.HourlySeries
}

func (m *mapCache) Get(_ context.Context, key string) (*weather.HourlySeries, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[key]
	return s, ok
}

func (m *mapCache) Set(_ context.Context, key string, s *weather.HourlySeries) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = s
}

func TestCacheOnlyHistoricalDates(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()

	cache := &mapCache{data: map[string]*weather.HourlySeries{}}
	client := newTestClient(srv, cache)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := client.FetchForecast(ctx, "34.05220", "-118.24370", "2020-01-01"); err != nil {
			t.Fatalf("FetchForecast() error = %v", err)
		}
		if _, err := client.FetchForecast(ctx, "34.05220", "-118.24370", "2023-05-30"); err != nil {
			t.Fatalf("FetchForecast() error = %v", err)
		}
	}

	if got := srv.HistoricalHits.Load(); got != 1 {
		t.Errorf("historical hits = %d, want 1 (second served from cache)", got)
	}
	if got := srv.ForecastHits.Load(); got != 2 {
		t.Errorf("forecast hits = %d, want 2 (recent dates are not cached)", got)
	}
}

func TestFailuresAreNotCached(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()
	srv.FailWith("marine", http.StatusBadGateway)

	cache := &mapCache{data: map[string]*weather.HourlySeries{}}
	client := newTestClient(srv, cache)
	if _, err := client.FetchMarine(context.Background(), "1.00000", "2.00000", "2020-01-01"); err == nil {
		t.Fatal("expected failure")
	}
	if len(cache.data) != 0 {
		t.Errorf("expected empty cache, got %d entries", len(cache.data))
	}
}

func TestBuildURLRejectsUnknownParam(t *testing.T) {
	e := endpoint{name: "x", baseURL: "http://example", params: []queryParam{"daily"}}
	if _, err := e.buildURL(hourlyQuery{}); !errors.Is(err, errUnknownParam) {
		t.Fatalf("expected errUnknownParam, got %v", err)
	}
}
