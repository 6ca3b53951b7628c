package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/surfvault/internal/common"
	"github.com/i474232898/surfvault/internal/weather"
)

const (
	DefaultMarineURL     = "https://marine-api.open-meteo.com/v1/marine"
	DefaultForecastURL   = "https://api.open-meteo.com/v1/forecast"
	DefaultHistoricalURL = "https://historical-forecast-api.open-meteo.com/v1/forecast"

	// DefaultHistoricalThresholdDays is how far back the near-term forecast
	// endpoint still serves hourly data.
	DefaultHistoricalThresholdDays = 86
)

var (
	errMalformedPayload = errors.New("malformed hourly payload")
	errUnknownParam     = errors.New("unrecognized query parameter")
)

// queryParam is a query parameter an Open-Meteo endpoint recognizes.
type queryParam string

const (
	paramLatitude      queryParam = "latitude"
	paramLongitude     queryParam = "longitude"
	paramHourly        queryParam = "hourly"
	paramStartDate     queryParam = "start_date"
	paramEndDate       queryParam = "end_date"
	paramTimezone      queryParam = "timezone"
	paramCellSelection queryParam = "cell_selection"
)

// endpoint describes one upstream URL together with the exhaustive set of
// query parameters and hourly variables it is queried with.
type endpoint struct {
	name      string
	baseURL   string
	params    []queryParam
	variables []weather.Variable
}

// hourlyQuery carries the per-request inputs of an hourly endpoint.
type hourlyQuery struct {
	Latitude  string
	Longitude string
	Date      string
}

func (e endpoint) buildURL(q hourlyQuery) (string, error) {
	values := url.Values{}
	for _, p := range e.params {
		switch p {
		case paramLatitude:
			values.Set(string(p), q.Latitude)
		case paramLongitude:
			values.Set(string(p), q.Longitude)
		case paramHourly:
			names := make([]string, len(e.variables))
			for i, v := range e.variables {
				names[i] = string(v)
			}
			values.Set(string(p), strings.Join(names, ","))
		case paramStartDate, paramEndDate:
			values.Set(string(p), q.Date)
		case paramTimezone:
			values.Set(string(p), "auto")
		case paramCellSelection:
			values.Set(string(p), "sea")
		default:
			return "", fmt.Errorf("%w: %s", errUnknownParam, p)
		}
	}
	return fmt.Sprintf("%s?%s", e.baseURL, values.Encode()), nil
}

var hourlyParams = []queryParam{
	paramLatitude, paramLongitude, paramHourly, paramStartDate, paramEndDate, paramTimezone,
}

func marineEndpoint(baseURL string) endpoint {
	return endpoint{
		name:      "marine",
		baseURL:   baseURL,
		params:    hourlyParams,
		variables: weather.MarineVariables,
	}
}

func forecastEndpoint(name, baseURL string) endpoint {
	return endpoint{
		name:      name,
		baseURL:   baseURL,
		params:    append(append([]queryParam{}, hourlyParams...), paramCellSelection),
		variables: weather.ForecastVariables,
	}
}

// OpenMeteoConfig configures an OpenMeteoClient. Empty fields take defaults.
type OpenMeteoConfig struct {
	MarineURL               string
	ForecastURL             string
	HistoricalURL           string
	HistoricalThresholdDays int
	MaxRetries              int
	Cache                   weather.SeriesCache
	Now                     func() time.Time
	Logger                  *zap.Logger
}

// OpenMeteoClient fetches hourly marine and atmospheric series from Open-Meteo.
type OpenMeteoClient struct {
	marine     endpoint
	forecast   endpoint
	historical endpoint

	httpCfg   HTTPClientConfig
	circuits  map[string]*gobreaker.CircuitBreaker
	threshold int
	cache     weather.SeriesCache
	now       func() time.Time
	log       *zap.Logger
}

func NewOpenMeteoClient(client *http.Client, cfg OpenMeteoConfig) *OpenMeteoClient {
	if cfg.MarineURL == "" {
		cfg.MarineURL = DefaultMarineURL
	}
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = DefaultForecastURL
	}
	if cfg.HistoricalURL == "" {
		cfg.HistoricalURL = DefaultHistoricalURL
	}
	if cfg.HistoricalThresholdDays <= 0 {
		cfg.HistoricalThresholdDays = DefaultHistoricalThresholdDays
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	c := &OpenMeteoClient{
		marine:     marineEndpoint(cfg.MarineURL),
		forecast:   forecastEndpoint("forecast", cfg.ForecastURL),
		historical: forecastEndpoint("historical", cfg.HistoricalURL),
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      cfg.MaxRetries,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuits:  make(map[string]*gobreaker.CircuitBreaker),
		threshold: cfg.HistoricalThresholdDays,
		cache:     cfg.Cache,
		now:       cfg.Now,
		log:       cfg.Logger,
	}
	for _, e := range []endpoint{c.marine, c.forecast, c.historical} {
		c.circuits[e.name] = newCircuitBreaker("openmeteo-" + e.name)
	}
	return c
}

// FetchMarine fetches swell height, direction and period for one day.
func (c *OpenMeteoClient) FetchMarine(ctx context.Context, lat, lon, date string) (*weather.HourlySeries, error) {
	day, err := common.ParseDate(date)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, c.marine, lat, lon, day)
}

// FetchForecast fetches wind, temperature, weather code and soil temperature
// for one day, from the historical endpoint when the day is too far back for
// the near-term one.
func (c *OpenMeteoClient) FetchForecast(ctx context.Context, lat, lon, date string) (*weather.HourlySeries, error) {
	day, err := common.ParseDate(date)
	if err != nil {
		return nil, err
	}
	e := c.forecast
	if c.isHistorical(day) {
		e = c.historical
	}
	return c.fetch(ctx, e, lat, lon, day)
}

// isHistorical reports whether day lies more than the threshold before today.
func (c *OpenMeteoClient) isHistorical(day time.Time) bool {
	now := c.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.Sub(day) > time.Duration(c.threshold)*24*time.Hour
}

func (c *OpenMeteoClient) fetch(ctx context.Context, e endpoint, lat, lon string, day time.Time) (*weather.HourlySeries, error) {
	q := hourlyQuery{Latitude: lat, Longitude: lon, Date: day.Format(common.DateLayout)}

	// Past the threshold the upstream data no longer changes.
	cacheable := c.cache != nil && c.isHistorical(day)
	key := fmt.Sprintf("%s:%s:%s:%s", e.name, q.Latitude, q.Longitude, q.Date)
	if cacheable {
		if s, ok := c.cache.Get(ctx, key); ok {
			return s, nil
		}
	}

	u, err := e.buildURL(q)
	if err != nil {
		return nil, err
	}

	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuits[e.name], buildRequest)
	if err != nil {
		return nil, fmt.Errorf("openmeteo %s: %w", e.name, err)
	}
	defer resp.Body.Close()

	series, err := decodeHourly(resp, e.variables)
	if err != nil {
		return nil, fmt.Errorf("openmeteo %s: %w", e.name, err)
	}

	c.log.Debug("fetched hourly series",
		zap.String("endpoint", e.name), zap.String("date", q.Date), zap.Int("hours", series.Len()))

	if cacheable {
		c.cache.Set(ctx, key, series)
	}
	return series, nil
}

func decodeHourly(resp *http.Response, variables []weather.Variable) (*weather.HourlySeries, error) {
	var payload struct {
		Hourly map[string]json.RawMessage `json:"hourly"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedPayload, err)
	}

	rawTime, ok := payload.Hourly["time"]
	if !ok {
		return nil, fmt.Errorf("%w: no time array", errMalformedPayload)
	}

	series := &weather.HourlySeries{Values: make(map[weather.Variable][]*float64, len(variables))}
	if err := json.Unmarshal(rawTime, &series.Time); err != nil {
		return nil, fmt.Errorf("%w: time: %v", errMalformedPayload, err)
	}

	for _, v := range variables {
		raw, ok := payload.Hourly[string(v)]
		if !ok {
			continue
		}
		var values []*float64
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errMalformedPayload, v, err)
		}
		series.Values[v] = values
	}
	return series, nil
}
