package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/i474232898/surfvault/internal/store"
	"github.com/i474232898/surfvault/internal/weather"
)

// BackfillConditions generates conditions for up to limit sessions that have
// none, each in its own transaction. It returns how many sessions now hold a
// full day. Sessions never attempted come first, then the least recently
// attempted, so sessions that cannot be filled do not starve the others.
func (s *Service) BackfillConditions(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = -1
	}

	var pending []store.Session
	err := s.db.WithContext(ctx).
		Where("NOT EXISTS (SELECT 1 FROM surf_conditions WHERE surf_conditions.session_id = sessions.id)").
		Order("backfill_attempted_at ASC").
		Order("date DESC").
		Limit(limit).
		Find(&pending).Error
	if err != nil {
		return 0, fmt.Errorf("finding sessions without conditions: %w", err)
	}

	filled := 0
	for _, sess := range pending {
		if ctx.Err() != nil {
			return filled, ctx.Err()
		}

		var hours int64
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.conditions.Create(ctx, tx, sess.ID, sess.Latitude, sess.Longitude, sess.Date); err != nil {
				return err
			}
			return tx.Model(&store.SurfCondition{}).Where("session_id = ?", sess.ID).Count(&hours).Error
		})
		s.markAttempted(ctx, sess.ID)
		if err != nil {
			s.log.Error("backfilling conditions", zap.String("session_id", sess.ID), zap.Error(err))
			continue
		}
		if hours == weather.HoursPerDay {
			filled++
		}
	}

	if len(pending) > 0 {
		s.log.Info("backfilled conditions", zap.Int("pending", len(pending)), zap.Int("filled", filled))
	}
	return filled, nil
}

func (s *Service) markAttempted(ctx context.Context, sessionID string) {
	err := s.db.WithContext(ctx).Model(&store.Session{}).
		Where("id = ?", sessionID).
		Update("backfill_attempted_at", s.now().UTC()).Error
	if err != nil {
		s.log.Warn("recording backfill attempt", zap.String("session_id", sessionID), zap.Error(err))
	}
}
