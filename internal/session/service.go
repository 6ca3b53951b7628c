package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/i474232898/surfvault/internal/common"
	"github.com/i474232898/surfvault/internal/media"
	"github.com/i474232898/surfvault/internal/store"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrInvalidInput = errors.New("invalid session input")
	ErrMediaSave    = errors.New("failed to save files")
	ErrMediaDelete  = errors.New("failed to delete files")
)

// Conditions generates and reconciles the hourly conditions of a session
// inside the caller's transaction.
type Conditions interface {
	Create(ctx context.Context, tx *gorm.DB, sessionID, lat, lon, date string) error
	Update(ctx context.Context, tx *gorm.DB, sessionID, lat, lon, date string) error
}

type CreateInput struct {
	UserID    string `json:"userId" form:"userId"`
	Latitude  string `json:"latitude" form:"latitude"`
	Longitude string `json:"longitude" form:"longitude"`
	Title     string `json:"title" form:"title"`
	Date      string `json:"date" form:"date"`
	Time      string `json:"time" form:"time"`
}

type UpdateInput struct {
	Latitude  string `json:"latitude" form:"latitude"`
	Longitude string `json:"longitude" form:"longitude"`
	Title     string `json:"title" form:"title"`
	Date      string `json:"date" form:"date"`
	Time      string `json:"time" form:"time"`
}

type Service struct {
	db         *gorm.DB
	conditions Conditions
	media      media.Store
	validate   *validator.Validate
	log        *zap.Logger
	now        func() time.Time
}

func NewService(db *gorm.DB, conditions Conditions, files media.Store, log *zap.Logger) *Service {
	if files == nil {
		files = media.Disabled{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:         db,
		conditions: conditions,
		media:      files,
		validate:   validator.New(),
		log:        log,
		now:        time.Now,
	}
}

// Create inserts the session, generates its conditions and stores its files
// in one transaction. A session that cannot be inserted yields a nil result
// and no error. A failed upload rolls everything back, removes the files already
// stored and returns ErrMediaSave.
func (s *Service) Create(ctx context.Context, in CreateInput, files []media.File) (*store.Session, error) {
	var created *store.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := s.insertSession(ctx, tx, in)
		if err != nil {
			return err
		}
		if sess == nil {
			return nil
		}

		if err := s.saveFiles(ctx, sess.ID, files); err != nil {
			s.log.Error("saving session files", zap.String("session_id", sess.ID), zap.Error(err))
			if derr := s.media.DeletePrefix(ctx, media.Prefix(sess.ID)); derr != nil {
				s.log.Warn("removing partially saved files", zap.String("session_id", sess.ID), zap.Error(derr))
			}
			return fmt.Errorf("%w: %w", ErrMediaSave, err)
		}

		created = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) insertSession(ctx context.Context, tx *gorm.DB, in CreateInput) (*store.Session, error) {
	sess, err := s.normalize(in.UserID, in.Latitude, in.Longitude, in.Title, in.Date, in.Time)
	if err != nil {
		s.log.Error("creating session", zap.Error(err))
		return nil, nil
	}

	if err := tx.Create(sess).Error; err != nil {
		s.log.Error("creating session", zap.String("user_id", sess.UserID), zap.Error(err))
		return nil, nil
	}

	if err := s.conditions.Create(ctx, tx, sess.ID, sess.Latitude, sess.Longitude, sess.Date); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) saveFiles(ctx context.Context, sessionID string, files []media.File) error {
	grp, gctx := errgroup.WithContext(ctx)
	for _, f := range files {
		grp.Go(func() error {
			key := media.ObjectKey(sessionID, f.FieldName)
			if err := s.media.Put(gctx, key, f.Reader, f.Size, f.ContentType); err != nil {
				s.log.Error("saving file", zap.String("key", key), zap.Error(err))
				return err
			}
			return nil
		})
	}
	return grp.Wait()
}

// Update rewrites the mutable fields of a session. Conditions are regenerated
// only when the location or the calendar date changed.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*store.Session, error) {
	var updated *store.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev store.Session
		if err := tx.First(&prev, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("loading session %s: %w", id, err)
		}

		next, err := s.normalize(prev.UserID, in.Latitude, in.Longitude, in.Title, in.Date, in.Time)
		if err != nil {
			return err
		}
		next.ID = prev.ID

		err = tx.Model(&store.Session{}).Where("id = ?", id).Updates(map[string]interface{}{
			"latitude":  next.Latitude,
			"longitude": next.Longitude,
			"title":     next.Title,
			"date":      next.Date,
			"time":      next.Time,
		}).Error
		if err != nil {
			s.log.Error("updating session", zap.String("session_id", id), zap.Error(err))
			return fmt.Errorf("updating session %s: %w", id, err)
		}

		if locationOrDateChanged(prev, *next) {
			s.log.Info("location or date changed, regenerating conditions", zap.String("session_id", id))
			if err := s.reconcile(ctx, tx, next); err != nil {
				return err
			}
		}

		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// reconcile overwrites the existing hours of a session, or creates them when a
// previous generation left the session without any.
func (s *Service) reconcile(ctx context.Context, tx *gorm.DB, sess *store.Session) error {
	var existing int64
	if err := tx.Model(&store.SurfCondition{}).Where("session_id = ?", sess.ID).Count(&existing).Error; err != nil {
		return fmt.Errorf("counting conditions of %s: %w", sess.ID, err)
	}
	if existing == 0 {
		return s.conditions.Create(ctx, tx, sess.ID, sess.Latitude, sess.Longitude, sess.Date)
	}
	return s.conditions.Update(ctx, tx, sess.ID, sess.Latitude, sess.Longitude, sess.Date)
}

func locationOrDateChanged(prev, next store.Session) bool {
	return !sameValue(prev.Latitude, next.Latitude, common.NormalizeLatitude) ||
		!sameValue(prev.Longitude, next.Longitude, common.NormalizeLongitude) ||
		!sameValue(prev.Date, next.Date, common.NormalizeDate)
}

func sameValue(prev, next string, normalize func(string) (string, error)) bool {
	p, err := normalize(prev)
	if err != nil {
		return false
	}
	n, err := normalize(next)
	if err != nil {
		return false
	}
	return p == n
}

// Delete removes the session, its conditions and its files. The conditions
// go through the store's cascading foreign key.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&store.Session{}, "id = ?", id)
		if res.Error != nil {
			s.log.Error("deleting session", zap.String("session_id", id), zap.Error(res.Error))
			return fmt.Errorf("deleting session %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		if err := s.media.DeletePrefix(ctx, media.Prefix(id)); err != nil {
			s.log.Error("deleting session files", zap.String("session_id", id), zap.Error(err))
			return fmt.Errorf("%w: %w", ErrMediaDelete, err)
		}
		return nil
	})
}

// normalize builds a session row from raw input and validates it.
func (s *Service) normalize(userID, lat, lon, title, date, clock string) (*store.Session, error) {
	sess := &store.Session{UserID: userID, Title: title}

	var err error
	if sess.Latitude, err = common.NormalizeLatitude(lat); err != nil {
		return nil, fmt.Errorf("%w: latitude: %w", ErrInvalidInput, err)
	}
	if sess.Longitude, err = common.NormalizeLongitude(lon); err != nil {
		return nil, fmt.Errorf("%w: longitude: %w", ErrInvalidInput, err)
	}
	if sess.Date, err = common.NormalizeDate(date); err != nil {
		return nil, fmt.Errorf("%w: date: %w", ErrInvalidInput, err)
	}
	if sess.Time, err = common.NormalizeTimeOfDay(clock); err != nil {
		return nil, fmt.Errorf("%w: time: %w", ErrInvalidInput, err)
	}
	if err := s.validate.Struct(sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return sess, nil
}
