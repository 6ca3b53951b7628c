package common

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// DateLayout is the canonical calendar date representation used across the service.
const DateLayout = "2006-01-02"

// CoordinateScale is the number of fractional digits kept for latitude and longitude.
const CoordinateScale = 5

var (
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidTime       = errors.New("invalid time of day")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

// dateLayouts lists the representations a date may arrive in: form inputs,
// driver round-trips (RFC3339 midnight values) and browser Date strings.
var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700 MST",
	"Mon Jan 02 2006 15:04:05 GMT-0700",
}

// ParseDate parses s in any of the accepted layouts and returns the calendar
// date it names, at midnight UTC. The date is taken as written, without
// converting between offsets.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	// Browser Date strings carry a trailing zone name in parentheses.
	if i := strings.Index(s, " ("); i > 0 {
		s = s[:i]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// NormalizeDate returns s as YYYY-MM-DD.
func NormalizeDate(s string) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return t.Format(DateLayout), nil
}

// NormalizeTimeOfDay accepts HH:MM or HH:MM:SS and returns HH:MM:SS.
func NormalizeTimeOfDay(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04:05"), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTime, s)
}

// RoundTimeToHour rounds a time of day to the closest whole hour within the
// same day, so that it always names one of the 24 hourly conditions.
func RoundTimeToHour(s string) (string, error) {
	normalized, err := NormalizeTimeOfDay(s)
	if err != nil {
		return "", err
	}
	t, _ := time.Parse("15:04:05", normalized)
	hour := t.Hour()
	if t.Minute() > 30 && hour < 23 {
		hour++
	}
	return fmt.Sprintf("%02d:00:00", hour), nil
}

// NormalizeLatitude returns the latitude as a decimal string with CoordinateScale
// fractional digits. It never goes through float64.
func NormalizeLatitude(s string) (string, error) {
	return normalizeCoordinate(s, 90)
}

// NormalizeLongitude is NormalizeLatitude for longitudes.
func NormalizeLongitude(s string) (string, error) {
	return normalizeCoordinate(s, 180)
}

func normalizeCoordinate(s string, limit int64) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "eE/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidCoordinate, s)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidCoordinate, s)
	}
	if new(big.Rat).Abs(r).Cmp(new(big.Rat).SetInt64(limit)) > 0 {
		return "", fmt.Errorf("%w: %q out of range", ErrInvalidCoordinate, s)
	}
	out := r.FloatString(CoordinateScale)
	if out == "-0.00000" {
		out = "0.00000"
	}
	return out, nil
}
