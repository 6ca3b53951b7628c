package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
)

const DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"

// Place is one geocoding match.
type Place struct {
	Name        string  `json:"name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    string  `json:"timezone"`
	Country     string  `json:"country"`
	Admin1      string  `json:"admin1"`
	CountryCode string  `json:"country_code"`
}

// GeocodingClient searches places by name through the Open-Meteo geocoding API.
type GeocodingClient struct {
	baseURL string
	count   int
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewGeocodingClient(client *http.Client, baseURL string) *GeocodingClient {
	if baseURL == "" {
		baseURL = DefaultGeocodingURL
	}
	return &GeocodingClient{
		baseURL: baseURL,
		count:   5,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      2,
				InitialInterval: 250 * time.Millisecond,
				MaxInterval:     2 * time.Second,
			},
		},
		circuit: newCircuitBreaker("openmeteo-geocoding"),
	}
}

// Search returns up to five places matching name. No match is an empty
// slice, not an error.
func (g *GeocodingClient) Search(ctx context.Context, name, language string) ([]Place, error) {
	if name == "" {
		return []Place{}, nil
	}
	if language == "" {
		language = "en"
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("name", name)
		values.Set("count", strconv.Itoa(g.count))
		values.Set("language", language)

		u := fmt.Sprintf("%s?%s", g.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, g.httpCfg, g.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("geocoding: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Results []Place `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("geocoding: decode: %w", err)
	}
	if payload.Results == nil {
		return []Place{}, nil
	}
	return payload.Results, nil
}
