package surfcondition

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/i474232898/surfvault/internal/store"
	"github.com/i474232898/surfvault/internal/weather"
)

var (
	ErrIncompleteDay = errors.New("generation did not cover a full day")
	ErrPersist       = errors.New("persisting surf conditions")
	ErrUnknownPolicy = errors.New("unknown conditions policy")
)

// Policy decides what happens when conditions cannot be generated or written.
type Policy int

const (
	// BestEffort logs the failure and lets the session commit without conditions.
	BestEffort Policy = iota
	// Strict returns the failure so the enclosing transaction rolls back.
	Strict
)

func (p Policy) String() string {
	switch p {
	case Strict:
		return "strict"
	default:
		return "best_effort"
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "best_effort", "besteffort", "best-effort":
		return BestEffort, nil
	case "strict":
		return Strict, nil
	}
	return BestEffort, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Generator produces the hourly conditions of a day at a location.
type Generator interface {
	Generate(ctx context.Context, lat, lon, date string) []weather.GeneratedCondition
}

// Service writes generated conditions inside a caller-owned transaction.
type Service struct {
	gen    Generator
	policy Policy
	log    *zap.Logger
}

func NewService(gen Generator, policy Policy, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{gen: gen, policy: policy, log: log}
}

func (s *Service) Policy() Policy {
	return s.policy
}

// Create generates the day and inserts all of its hours in one statement.
// Nothing is written unless the generation covers every hour.
func (s *Service) Create(ctx context.Context, tx *gorm.DB, sessionID, lat, lon, date string) error {
	log := s.log.With(zap.String("session_id", sessionID),
		zap.String("lat", lat), zap.String("lon", lon), zap.String("date", date))

	conds := s.gen.Generate(ctx, lat, lon, date)
	if !weather.FullDay(conds) {
		log.Error("surf conditions not created", zap.Int("hours", len(conds)))
		return s.escalate(fmt.Errorf("%w: got %d hours", ErrIncompleteDay, len(conds)))
	}

	rows := make([]store.SurfCondition, len(conds))
	for i, c := range conds {
		rows[i] = toRow(sessionID, c)
	}
	if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
		log.Error("inserting surf conditions", zap.Error(err))
		return s.escalate(fmt.Errorf("%w: %w", ErrPersist, err))
	}

	log.Debug("surf conditions created", zap.Int("hours", len(rows)))
	return nil
}

// Update regenerates the day and overwrites the measurements of every existing
// hour in place. The rows are written under a savepoint: if any of them fails
// the others are rolled back with it, so a session never mixes two generations.
func (s *Service) Update(ctx context.Context, tx *gorm.DB, sessionID, lat, lon, date string) error {
	log := s.log.With(zap.String("session_id", sessionID),
		zap.String("lat", lat), zap.String("lon", lon), zap.String("date", date))

	conds := s.gen.Generate(ctx, lat, lon, date)
	if !weather.FullDay(conds) {
		log.Error("surf conditions not updated", zap.Int("hours", len(conds)))
		return s.escalate(fmt.Errorf("%w: got %d hours", ErrIncompleteDay, len(conds)))
	}

	err := tx.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		failed := 0
		for _, c := range conds {
			res := inner.Model(&store.SurfCondition{}).
				Where("session_id = ? AND date_time = ?", sessionID, c.DateTime).
				Updates(measurements(c))
			if res.Error != nil {
				failed++
				log.Error("updating surf condition", zap.String("hour", c.DateTime), zap.Error(res.Error))
				continue
			}
			if res.RowsAffected == 0 {
				log.Warn("no surf condition for hour", zap.String("hour", c.DateTime))
			}
		}
		if failed > 0 {
			return fmt.Errorf("%w: %d of %d hours failed", ErrPersist, failed, len(conds))
		}
		return nil
	})
	if err != nil {
		log.Error("surf conditions update rolled back", zap.Error(err))
		return s.escalate(err)
	}

	log.Debug("surf conditions updated", zap.Int("hours", len(conds)))
	return nil
}

func (s *Service) escalate(err error) error {
	if s.policy == Strict {
		return err
	}
	return nil
}

func toRow(sessionID string, c weather.GeneratedCondition) store.SurfCondition {
	return store.SurfCondition{
		SessionID:        sessionID,
		DateTime:         c.DateTime,
		WaveHeight:       c.WaveHeight,
		WaveDirection:    c.WaveDirection,
		WavePeriod:       c.WavePeriod,
		WindSpeed:        c.WindSpeed,
		WindDirection:    c.WindDirection,
		WindGusts:        c.WindGusts,
		Temperature:      c.Temperature,
		WaterTemperature: c.WaterTemperature,
		WeatherCode:      c.WeatherCode,
	}
}

// measurements is a column map rather than a struct so that zero values are
// written too.
func measurements(c weather.GeneratedCondition) map[string]interface{} {
	return map[string]interface{}{
		"wave_height":       c.WaveHeight,
		"wave_direction":    c.WaveDirection,
		"wave_period":       c.WavePeriod,
		"wind_speed":        c.WindSpeed,
		"wind_direction":    c.WindDirection,
		"wind_gusts":        c.WindGusts,
		"temperature":       c.Temperature,
		"water_temperature": c.WaterTemperature,
		"weather_code":      c.WeatherCode,
	}
}
