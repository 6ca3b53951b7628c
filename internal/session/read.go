package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/i474232898/surfvault/internal/common"
	"github.com/i474232898/surfvault/internal/media"
	"github.com/i474232898/surfvault/internal/store"
	"github.com/i474232898/surfvault/internal/weather"
)

const (
	DefaultPerPage = 5
	MaxPerPage     = 100
)

// ConditionView is one stored hour with derived labels.
type ConditionView struct {
	store.SurfCondition
	Description string            `json:"description"`
	Condition   weather.Condition `json:"condition"`
	WaveCompass string            `json:"waveCompass"`
	WindCompass string            `json:"windCompass"`
}

// View is a session as returned to readers.
type View struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Title     string `json:"title"`
	Date      string `json:"date"`
	Time      string `json:"time"`

	// Current is the hour closest to the session time, when it was generated.
	Current        *ConditionView  `json:"current,omitempty"`
	SurfConditions []ConditionView `json:"surfConditions"`
	FileURLs       []media.FileURL `json:"fileUrls"`
}

type Page struct {
	Sessions []View `json:"sessions"`
	Total    int64  `json:"total"`
	Page     int    `json:"page"`
	PerPage  int    `json:"perPage"`
}

func orderedConditions(db *gorm.DB) *gorm.DB {
	return db.Order("date_time ASC")
}

// Get returns one session with its conditions and file links.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	var sess store.Session
	err := s.db.WithContext(ctx).Preload("SurfConditions", orderedConditions).First(&sess, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}

	v := newView(sess)
	v.FileURLs = s.fileURLs(ctx, sess.ID)
	return &v, nil
}

// List returns a page of a user's sessions, most recent date first.
func (s *Service) List(ctx context.Context, userID string, page, perPage int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	db := s.db.WithContext(ctx)
	out := &Page{Page: page, PerPage: perPage, Sessions: []View{}}
	if err := db.Model(&store.Session{}).Where("user_id = ?", userID).Count(&out.Total).Error; err != nil {
		return nil, fmt.Errorf("counting sessions of %s: %w", userID, err)
	}

	var sessions []store.Session
	err := db.Preload("SurfConditions", orderedConditions).
		Where("user_id = ?", userID).
		Order("date DESC").Order("time DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("listing sessions of %s: %w", userID, err)
	}

	views := make([]View, len(sessions))
	grp, gctx := errgroup.WithContext(ctx)
	for i, sess := range sessions {
		views[i] = newView(sess)
		grp.Go(func() error {
			views[i].FileURLs = s.fileURLs(gctx, sess.ID)
			return nil
		})
	}
	_ = grp.Wait()

	out.Sessions = views
	return out, nil
}

// fileURLs lists the links of a session's files. A storage failure only hides
// the files.
func (s *Service) fileURLs(ctx context.Context, sessionID string) []media.FileURL {
	files, err := s.media.ListURLs(ctx, media.Prefix(sessionID))
	if err != nil {
		s.log.Error("listing session files", zap.String("session_id", sessionID), zap.Error(err))
		return []media.FileURL{}
	}
	if files == nil {
		files = []media.FileURL{}
	}
	return files
}

func newView(sess store.Session) View {
	v := View{
		ID:             sess.ID,
		UserID:         sess.UserID,
		Latitude:       sess.Latitude,
		Longitude:      sess.Longitude,
		Title:          sess.Title,
		Date:           sess.Date,
		Time:           sess.Time,
		SurfConditions: make([]ConditionView, len(sess.SurfConditions)),
	}
	for i, c := range sess.SurfConditions {
		v.SurfConditions[i] = ConditionView{
			SurfCondition: c,
			Description:   weather.DescribeCode(c.WeatherCode),
			Condition:     weather.ConditionForCode(c.WeatherCode),
			WaveCompass:   weather.CompassDirection(c.WaveDirection),
			WindCompass:   weather.CompassDirection(c.WindDirection),
		}
	}

	if hour, err := common.RoundTimeToHour(sess.Time); err == nil {
		for i := range v.SurfConditions {
			if v.SurfConditions[i].DateTime == hour {
				v.Current = &v.SurfConditions[i]
				break
			}
		}
	}
	return v
}
