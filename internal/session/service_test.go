package session

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/i474232898/surfvault/internal/media"
	"github.com/i474232898/surfvault/internal/media/mediatest"
	"github.com/i474232898/surfvault/internal/store"
	"github.com/i474232898/surfvault/internal/surfcondition"
	"github.com/i474232898/surfvault/internal/weather"
	"github.com/i474232898/surfvault/internal/weather/providers"
	"github.com/i474232898/surfvault/internal/weather/providers/openmeteotest"
)

type harness struct {
	db       *gorm.DB
	upstream *openmeteotest.Server
	files    *mediatest.Store
	logs     *observer.ObservedLogs
	svc      *Service
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := store.Open(store.Config{Driver: store.DriverSQLite, DSN: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("store.Migrate() error = %v", err)
	}
	t.Cleanup(func() { store.Close(db) })
	return db
}

func newHarness(t *testing.T, policy surfcondition.Policy) *harness {
	t.Helper()

	db := openTestDB(t)

	upstream := openmeteotest.NewServer()
	t.Cleanup(upstream.Close)

	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	client := providers.NewOpenMeteoClient(upstream.Client(), providers.OpenMeteoConfig{
		MarineURL:     upstream.MarineURL(),
		ForecastURL:   upstream.ForecastURL(),
		HistoricalURL: upstream.HistoricalURL(),
		Logger:        log,
	})
	conditions := surfcondition.NewService(weather.NewGenerator(client, log), policy, log)
	files := mediatest.NewStore()

	return &harness{
		db:       db,
		upstream: upstream,
		files:    files,
		logs:     logs,
		svc:      NewService(db, conditions, files, log),
	}
}

func morningSurf() CreateInput {
	return CreateInput{
		UserID:    "user-1",
		Latitude:  "34.05220",
		Longitude: "-118.24370",
		Title:     "Morning Surf",
		Date:      "2023-01-01",
		Time:      "08:00:00",
	}
}

func (h *harness) create(t *testing.T, in CreateInput) *store.Session {
	t.Helper()

	sess, err := h.svc.Create(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sess == nil {
		t.Fatal("Create() returned no session")
	}
	return sess
}

func (h *harness) countSessions(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := h.db.Model(&store.Session{}).Count(&n).Error; err != nil {
		t.Fatalf("counting sessions: %v", err)
	}
	return n
}

func (h *harness) hours(t *testing.T, sessionID string) []string {
	t.Helper()
	var hours []string
	err := h.db.Model(&store.SurfCondition{}).
		Where("session_id = ?", sessionID).Order("date_time").Pluck("date_time", &hours).Error
	if err != nil {
		t.Fatalf("loading hours: %v", err)
	}
	return hours
}

func TestCreateSessionWithFullDay(t *testing.T) {
	h := newHarness(t, surfcondition.BestEffort)

	sess := h.create(t, morningSurf())

	var stored store.Session
	if err := h.db.First(&stored, "id = ?", sess.ID).Error; err != nil {
		t.Fatalf("session row missing: %v", err)
	}
	if stored.Latitude != "34.05220" || stored.Longitude != "-118.24370" || stored.Date != "2023-01-01" {
		t.Errorf("unexpected stored session %+v", stored)
	}

	hours := h.hours(t, sess.ID)
	if len(hours) != weather.HoursPerDay {
		t.Fatalf("expected 24 conditions, got %d", len(hours))
	}
	seen := make(map[string]bool)
	for _, hr := range hours {
		if seen[hr] {
			t.Errorf("duplicate hour %s", hr)
		}
		seen[hr] = true
	}
	if hours[0] != "00:00:00" || hours[23] != "23:00:00" {
		t.Errorf("hours span %s..%s, want 00:00:00..23:00:00", hours[0], hours[23])
	}
	if got := h.upstream.TotalHits(); got != 2 {
		t.Errorf("expected one generation (2 upstream calls), got %d", got)
	}
}

func TestCreateSessionWithoutUserID(t *testing.T) {
	h := newHarness(t, surfcondition.BestEffort)

	in := morningSurf()
	in.UserID = ""
	sess, err := h.svc.Create(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sess != nil {
		t.Fatalf("expected no session, got %+v", sess)
	}
	if n := h.countSessions(t); n != 0 {
		t.Errorf("expected no session rows, got %d", n)
	}
	if h.upstream.TotalHits() != 0 {
		t.Error("no conditions should be generated for a rejected session")
	}
}

func TestCreateSessionMediaFailureRollsBack(t *testing.T) {
	h := newHarness(t, surfcondition.BestEffort)
	h.files.FailPut = true

	files := []media.File{{FieldName: "file0", ContentType: "image/jpeg", Size: 4, Reader: strings.NewReader("jpeg")}}
	sess, err := h.svc.Create(context.Background(), morningSurf(), files)
	if !errors.Is(err, ErrMediaSave) {
		t.Fatalf("expected ErrMediaSave, got %v", err)
	}
	if !errors.Is(err, mediatest.ErrInjected) {
		t.Errorf("expected the storage error to be wrapped, got %v", err)
	}
	if sess != nil {
		t.Errorf("expected no session, got %+v", sess)
	}
	if n := h.countSessions(t); n != 0 {
		t.Errorf("expected rollback to remove the session, %d rows remain", n)
	}
	var conds int64
	h.db.Model(&store.SurfCondition{}).Count(&conds)
	if conds != 0 {
		t.Errorf("expected rollback to remove conditions, %d rows remain", conds)
	}
}

func TestCreateSessionMediaFailureRemovesStoredFiles(t *testing.T) {
	h := newHarness(t, surfcondition.BestEffort)
	h.files.FailPutField = "file1"

	files := []media.File{
		{FieldName: "file0", ContentType: "image/jpeg", Size: 4, Reader: strings.NewReader("jpeg")},
		{FieldName: "file1", ContentType: "video/mp4", Size: 3, Reader: strings.NewReader("mp4")},
	}
	_, err := h.svc.Create(context.Background(), morningSurf(), files)
	if !errors.Is(err, ErrMediaSave) {
		t.Fatalf("expected ErrMediaSave, got %v", err)
	}
	if n := h.countSessions(t); n != 0 {
		t.Errorf("expected rollback to remove the session, %d rows remain", n)
	}
	if keys := h.files.Keys(""); len(keys) != 0 {
		t.Errorf("expected uploaded files to be removed, found %v", keys)
	}
}

func TestCreateSessionStoresFiles(t *testing.T) {
	h := newHarness(t, surfcondition.BestEffort)

	files := []media.File{
		{FieldName: "file0", ContentType: "image/jpeg", Size: 4, Reader: strings.NewReader("jpeg")},
		{FieldName: "file1", ContentType: "video/mp4", Size: 3, Reader: strings.NewReader("mp4")},
	}
	sess, err := h.svc.Create(context.Background(), morningSurf(), files)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	keys := h.files.Keys(media.Prefix(sess.ID))
	if len(keys) != 2 || keys[0] != sess.ID+"/file0" || keys[1] != sess.ID+"/file1" {
		t.Fatalf("unexpected stored keys %v", keys)
	}
	obj, _ := h.files.Get(sess.ID + "/file1")
	if obj.ContentType != "video/mp4" || string(obj.Data) != "mp4" {
		t.Errorf("unexpected stored object %+v", obj)
	}
}

func TestCreateSessionUpstreamFailure(t *testing.T) {
	t.Run("best effort keeps the session", func(t *testing.T) {
		h := newHarness(t, surfcondition.BestEffort)
		h.upstream.FailWith("marine", 503)

		sess := h.create(t, morningSurf())
		if got := len(h.hours(t, sess.ID)); got != 0 {
			t.Errorf("expected no conditions, got %d", got)
		}
	})

	t.Run("strict rolls back", func(t *testing.T) {
		h := newHarness(t, surfcondition.Strict)
		h.upstream.SetHours(1)

		_, err := h.svc.Create(context.Background(), morningSurf(), nil)
		if !errors.Is(err, surfcondition.ErrIncompleteDay) {
			t.Fatalf("expected ErrIncompleteDay, got %v", err)
		}
		if n := h.countSessions(t); n != 0 {
			t.Errorf("expected no session rows, got %d", n)
		}
	})
}

func TestUpdateSessionRegeneration(t *testing.T) {
	tests := []struct {
		name        string
		update      UpdateInput
		regenerated bool
	}{
		{
			name:   "title only",
			update: UpdateInput{Latitude: "34.05220", Longitude: "-118.24370", Title: "Evening", Date: "2023-01-01", Time: "18:00"},
		},
		{
			name:   "same values in other representations",
			update: UpdateInput{Latitude: "34.0522", Longitude: "-118.2437", Title: "Morning Surf", Date: "2023-01-01T00:00:00Z", Time: "08:00:00"},
		},
		{
			name:        "latitude changed",
			update:      UpdateInput{Latitude: "21.27000", Longitude: "-118.24370", Title: "Morning Surf", Date: "2023-01-01", Time: "08:00:00"},
			regenerated: true,
		},
		{
			name:        "longitude changed",
			update:      UpdateInput{Latitude: "34.05220", Longitude: "-157.82000", Title: "Morning Surf", Date: "2023-01-01", Time: "08:00:00"},
			regenerated: true,
		},
		{
			name:        "date changed",
			update:      UpdateInput{Latitude: "34.05220", Longitude: "-118.24370", Title: "Morning Surf", Date: "2023-01-02", Time: "08:00:00"},
			regenerated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, surfcondition.Strict)
			sess := h.create(t, morningSurf())
			before := h.upstream.TotalHits()

			h.upstream.Set("swell_wave_height", 2.4)
			updated, err := h.svc.Update(context.Background(), sess.ID, tt.update)
			if err != nil {
				t.Fatalf("Update() error = %v", err)
			}

			generations := (h.upstream.TotalHits() - before) / 2
			if tt.regenerated && generations != 1 {
				t.Errorf("expected exactly one regeneration, got %d", generations)
			}
			if !tt.regenerated && generations != 0 {
				t.Errorf("expected no regeneration, got %d", generations)
			}

			var stored store.Session
			h.db.First(&stored, "id = ?", sess.ID)
			if stored.Title != tt.update.Title || stored.Title != updated.Title {
				t.Errorf("title = %q, want %q", stored.Title, tt.update.Title)
			}

			var heights []float64
			h.db.Model(&store.SurfCondition{}).Where("session_id = ?", sess.ID).Pluck("wave_height", &heights)
			if len(heights) != weather.HoursPerDay {
				t.Fatalf("expected 24 conditions, got %d", len(heights))
			}
			want := 1.2
			if tt.regenerated {
				want = 2.4
			}
			for _, hgt := range heights {
				if hgt != want {
					t.Fatalf("wave height = %v, want %v", hgt, want)
				}
			}
		})
	}
}

func TestUpdateSessionCreatesMissingConditions(t *testing.T) {
	h := newHarness(t, surfcondition.BestEffort)
	h.upstream.FailWith("marine", 500)
	sess := h.create(t, morningSurf())
	h.upstream.FailWith("marine", 0)

	_, err := h.svc.Update(context.Background(), sess.ID, UpdateInput{
		Latitude: "34.05220", Longitude: "-118.24370", Title: "Morning Surf", Date: "2023-01-05", Time: "08:00",
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got := len(h.hours(t, sess.ID)); got != weather.HoursPerDay {
		t.Errorf("expected 24 conditions after reconciliation, got %d", got)
	}
}

func TestUpdateSessionErrors(t *testing.T) {
	h := newHarness(t, surfcondition.BestEffort)
	sess := h.create(t, morningSurf())
	ctx := context.Background()

	_, err := h.svc.Update(ctx, "missing", UpdateInput{Latitude: "1", Longitude: "1", Title: "x", Date: "2023-01-01", Time: "08:00"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_, err = h.svc.Update(ctx, sess.ID, UpdateInput{Latitude: "100", Longitude: "1", Title: "x", Date: "2023-01-01", Time: "08:00"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	var stored store.Session
	h.db.First(&stored, "id = ?", sess.ID)
	if stored.Latitude != "34.05220" {
		t.Errorf("rejected update must not change the session, latitude = %s", stored.Latitude)
	}
}

func TestDeleteSession(t *testing.T) {
	h := newHarness(t, surfcondition.BestEffort)
	files := []media.File{{FieldName: "file0", ContentType: "image/png", Size: 3, Reader: strings.NewReader("png")}}
	sess, err := h.svc.Create(context.Background(), morningSurf(), files)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := h.svc.Delete(context.Background(), sess.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if n := h.countSessions(t); n != 0 {
		t.Errorf("expected session to be deleted, %d remain", n)
	}
	if got := len(h.hours(t, sess.ID)); got != 0 {
		t.Errorf("expected conditions to cascade, %d remain", got)
	}
	if keys := h.files.Keys(media.Prefix(sess.ID)); len(keys) != 0 {
		t.Errorf("expected files to be removed, got %v", keys)
	}

	if err := h.svc.Delete(context.Background(), sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDeleteSessionMediaFailureRollsBack(t *testing.T) {
	h := newHarness(t, surfcondition.BestEffort)
	sess := h.create(t, morningSurf())
	h.files.FailDelete = true

	err := h.svc.Delete(context.Background(), sess.ID)
	if !errors.Is(err, ErrMediaDelete) {
		t.Fatalf("expected ErrMediaDelete, got %v", err)
	}
	if n := h.countSessions(t); n != 1 {
		t.Errorf("expected the session to survive, got %d rows", n)
	}
	if got := len(h.hours(t, sess.ID)); got != weather.HoursPerDay {
		t.Errorf("expected conditions to survive, got %d", got)
	}
}
