package weather

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Generator turns a coordinate and a date into hourly conditions.
type Generator struct {
	source SeriesSource
	log    *zap.Logger
}

// NewGenerator creates a new Generator.
func NewGenerator(source SeriesSource, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{source: source, log: log}
}

// Generate fetches marine and forecast data concurrently and merges them.
// When either fetch fails the result is empty; that is the regular
// "no data available" outcome, not an error.
func (g *Generator) Generate(ctx context.Context, lat, lon, date string) []GeneratedCondition {
	var marine, forecast *HourlySeries
	logFields := []zap.Field{zap.String("lat", lat), zap.String("lon", lon), zap.String("date", date)}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		s, err := g.source.FetchMarine(gctx, lat, lon, date)
		if err != nil {
			g.log.Error("marine data unavailable", append(logFields, zap.Error(err))...)
			return nil
		}
		marine = s
		return nil
	})
	grp.Go(func() error {
		s, err := g.source.FetchForecast(gctx, lat, lon, date)
		if err != nil {
			g.log.Error("forecast data unavailable", append(logFields, zap.Error(err))...)
			return nil
		}
		forecast = s
		return nil
	})
	_ = grp.Wait()

	if marine == nil || forecast == nil {
		return []GeneratedCondition{}
	}

	conds := Merge(marine, forecast)
	if dropped := marine.Len() - len(conds); dropped > 0 {
		g.log.Warn("dropped hours while merging series",
			append(logFields, zap.Int("dropped", dropped), zap.Int("merged", len(conds)))...)
	}
	return conds
}
