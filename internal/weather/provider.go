package weather

import "context"

// SeriesSource fetches the two hourly datasets a generation needs. A returned
// error means no data; it never carries a partial series.
type SeriesSource interface {
	FetchMarine(ctx context.Context, lat, lon, date string) (*HourlySeries, error)
	FetchForecast(ctx context.Context, lat, lon, date string) (*HourlySeries, error)
}

// SeriesCache stores successfully fetched series by request key.
type SeriesCache interface {
	Get(ctx context.Context, key string) (*HourlySeries, bool)
	Set(ctx context.Context, key string, series *HourlySeries)
}
