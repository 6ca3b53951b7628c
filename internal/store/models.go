package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is one logged surf outing. Coordinates are decimal strings with a
// fixed scale, dates are YYYY-MM-DD and times HH:MM:SS.
type Session struct {
	ID        string `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string `gorm:"type:varchar(64);not null;index" json:"userId" validate:"required"`
	Latitude  string `gorm:"type:varchar(16);not null" json:"latitude" validate:"required"`
	Longitude string `gorm:"type:varchar(16);not null" json:"longitude" validate:"required"`
	Title     string `gorm:"type:varchar(255);not null" json:"title" validate:"required,max=255"`
	Date      string `gorm:"type:varchar(10);not null;index" json:"date" validate:"required,datetime=2006-01-02"`
	Time      string `gorm:"type:varchar(8);not null" json:"time" validate:"required,datetime=15:04:05"`

	// BackfillAttemptedAt is when the backfill job last tried to generate
	// conditions for this session.
	BackfillAttemptedAt *time.Time `gorm:"index" json:"-"`

	SurfConditions []SurfCondition `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"surfConditions,omitempty"`
}

func (Session) TableName() string {
	return "sessions"
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// SurfCondition is one hourly snapshot owned by a session. DateTime is the
// hour of day and is unique within a session.
type SurfCondition struct {
	ID               string  `gorm:"type:varchar(36);primaryKey" json:"-"`
	SessionID        string  `gorm:"type:varchar(36);not null;uniqueIndex:idx_condition_session_hour" json:"sessionId"`
	DateTime         string  `gorm:"column:date_time;type:varchar(8);not null;uniqueIndex:idx_condition_session_hour" json:"dateTime"`
	WaveHeight       float64 `gorm:"type:real;not null" json:"waveHeight"`
	WaveDirection    int     `gorm:"type:integer;not null" json:"waveDirection"`
	WavePeriod       int     `gorm:"type:integer;not null" json:"wavePeriod"`
	WindSpeed        float64 `gorm:"type:real;not null" json:"windSpeed"`
	WindDirection    int     `gorm:"type:integer;not null" json:"windDirection"`
	WindGusts        float64 `gorm:"type:real;not null" json:"windGusts"`
	Temperature      int     `gorm:"type:integer;not null" json:"temperature"`
	WaterTemperature int     `gorm:"type:integer;not null" json:"waterTemperature"`
	WeatherCode      int     `gorm:"type:integer;not null" json:"weatherCode"`
}

func (SurfCondition) TableName() string {
	return "surf_conditions"
}

func (c *SurfCondition) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
