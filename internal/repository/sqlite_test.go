package repository

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

func setupTestDB(t *testing.T) *SQLiteDB {
	db, err := NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	return db
}

func newTask(eventID string, analysis models.AnalysisType, lat, lon float64) *models.Task {
	now := time.Now().UTC()
	mag := 7.8
	return &models.Task{
		ID:             uuid.NewString(),
		EventID:        eventID,
		EventType:      models.EventTypeEarthquake,
		Analysis:       analysis,
		Location:       "Pazarcik earthquake, Kahramanmaras earthquake sequence",
		Country:        "Turkey",
		Latitude:       lat,
		Longitude:      lon,
		Magnitude:      &mag,
		EventDate:      time.Date(2023, 2, 6, 1, 17, 34, 0, time.UTC),
		AreaOfInterest: "POLYGON((37 36,39 36,39 38,37 38,37 36))",
		Filename:       models.TaskFilename(models.EventTypeEarthquake, eventID, analysis),
		Status:         models.TaskStatusProcessing,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestSQLiteDB_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	task := newTask("us6000jlqa", models.AnalysisInterferogram, 37.1962, 38.0106)
	task.Resolution = &models.Resolution{
		Pre:      models.SelectedSceneSet{Snapshot: models.SnapshotPre, SceneIDs: []string{"S1"}, Coverage: 0.95},
		SceneIDs: []string{"S1", "S2"},
		Matches: []models.BaselineCandidate{
			{ReferenceID: "S1", MatchID: "S2", TemporalBaselineDays: -12, PerpendicularBaselineMeters: 41.5},
		},
	}

	if err := db.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := db.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Filename != "earthquake-us6000jlqa-interferogram" {
		t.Errorf("unexpected filename %s", got.Filename)
	}
	if got.Magnitude == nil || *got.Magnitude != 7.8 {
		t.Errorf("expected magnitude 7.8, got %v", got.Magnitude)
	}
	if !got.EventDate.Equal(task.EventDate) {
		t.Errorf("expected event date %v, got %v", task.EventDate, got.EventDate)
	}
	if !got.CreatedAt.Equal(task.CreatedAt) {
		t.Errorf("expected created at %v, got %v", task.CreatedAt, got.CreatedAt)
	}
	if got.Resolution == nil || !reflect.DeepEqual(got.Resolution.Matches, task.Resolution.Matches) {
		t.Errorf("expected resolution round trip, got %+v", got.Resolution)
	}
	if !got.StartDate.IsZero() {
		t.Errorf("expected zero start date, got %v", got.StartDate)
	}
}

func TestSQLiteDB_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	_, err := db.GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, models.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestSQLiteDB_FindByFingerprint(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	task := newTask("us6000jlqa", models.AnalysisInterferogram, 37.1962, 38.0106)
	if err := db.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := db.FindByFingerprint(ctx, task.Fingerprint())
	if err != nil {
		t.Fatalf("FindByFingerprint failed: %v", err)
	}
	if got == nil || got.ID != task.ID {
		t.Fatalf("expected task %s, got %+v", task.ID, got)
	}

	other := task.Fingerprint()
	other.Analysis = models.AnalysisChangeDetection
	got, err = db.FindByFingerprint(ctx, other)
	if err != nil {
		t.Fatalf("FindByFingerprint failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected no task for different analysis, got %s", got.ID)
	}
}

func TestSQLiteDB_DuplicateFingerprint(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	first := newTask("us6000jlqa", models.AnalysisInterferogram, 37.1962, 38.0106)
	if err := db.Create(ctx, first); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	// Same fingerprint, different id.
	second := newTask("us6000jlqa", models.AnalysisInterferogram, 37.1962, 38.0106)
	err := db.Create(ctx, second)
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	// Same id.
	err = db.Create(ctx, first)
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate for same id, got %v", err)
	}

	// Different asset is a different fingerprint.
	third := newTask("us6000jlqa", models.AnalysisInterferogram, 37.1962, 38.0106)
	third.Asset = "buildings"
	if err := db.Create(ctx, third); err != nil {
		t.Errorf("expected distinct asset to be accepted, got %v", err)
	}
}

func TestSQLiteDB_UpdateStatus_CompareAndSet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	task := newTask("us6000jlqa", models.AnalysisInterferogram, 37.1962, 38.0106)
	db.Create(ctx, task)

	ok, err := db.UpdateStatus(ctx, task.ID, models.TaskStatusProcessing, models.TaskStatusCompleted, "")
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if !ok {
		t.Fatal("expected first transition to apply")
	}

	// The task is no longer processing, so a second terminal transition loses.
	ok, err = db.UpdateStatus(ctx, task.ID, models.TaskStatusProcessing, models.TaskStatusError, "late")
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if ok {
		t.Error("expected second transition to be rejected")
	}

	got, _ := db.GetByID(ctx, task.ID)
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.LastError != "" {
		t.Errorf("expected empty last error, got %q", got.LastError)
	}

	ok, _ = db.UpdateStatus(ctx, "nonexistent", models.TaskStatusProcessing, models.TaskStatusCompleted, "")
	if ok {
		t.Error("expected no update for unknown id")
	}
}

func TestSQLiteDB_UpdateResolution(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	task := newTask("us6000jlqa", models.AnalysisInterferogram, 37.1962, 38.0106)
	db.Create(ctx, task)

	task.StartDate = task.EventDate.Add(-20 * 24 * time.Hour)
	task.EndDate = task.EventDate.Add(20 * 24 * time.Hour)
	task.AreaOfInterest = "POLYGON((36 35,40 35,40 39,36 39,36 35))"
	task.Resolution = &models.Resolution{SceneIDs: []string{"A"}}
	task.UpdatedAt = time.Now().UTC()

	if err := db.UpdateResolution(ctx, task); err != nil {
		t.Fatalf("UpdateResolution failed: %v", err)
	}

	got, _ := db.GetByID(ctx, task.ID)
	if got.AreaOfInterest != task.AreaOfInterest {
		t.Errorf("expected updated AOI, got %s", got.AreaOfInterest)
	}
	if !got.StartDate.Equal(task.StartDate) {
		t.Errorf("expected start %v, got %v", task.StartDate, got.StartDate)
	}
	if got.Resolution == nil || len(got.Resolution.SceneIDs) != 1 {
		t.Errorf("expected resolution with one scene, got %+v", got.Resolution)
	}

	missing := newTask("x", models.AnalysisInterferogram, 0, 0)
	if err := db.UpdateResolution(ctx, missing); !errors.Is(err, models.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestSQLiteDB_List_WithFilters(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	base := time.Now().UTC()

	tasks := []*models.Task{
		newTask("eq1", models.AnalysisInterferogram, 1, 1),
		newTask("eq1", models.AnalysisChangeDetection, 1, 1),
		newTask("eq2", models.AnalysisInterferogram, 2, 2),
	}
	for i, task := range tasks {
		task.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := db.Create(ctx, task); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	db.UpdateStatus(ctx, tasks[2].ID, models.TaskStatusProcessing, models.TaskStatusError, "boom")

	results, err := db.List(ctx, Filter{EventID: "eq1"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 tasks for eq1, got %d", len(results))
	}

	analysis := models.AnalysisInterferogram
	results, _ = db.List(ctx, Filter{Analysis: &analysis})
	if len(results) != 2 {
		t.Errorf("expected 2 interferogram tasks, got %d", len(results))
	}

	status := models.TaskStatusError
	results, _ = db.List(ctx, Filter{Status: &status})
	if len(results) != 1 || results[0].LastError != "boom" {
		t.Errorf("expected 1 errored task with last error, got %+v", results)
	}

	results, _ = db.List(ctx, Filter{Limit: 2})
	if len(results) != 2 {
		t.Fatalf("expected 2 tasks with limit, got %d", len(results))
	}
	if results[0].ID != tasks[2].ID {
		t.Errorf("expected newest task first, got %s", results[0].EventID)
	}

	since := base.Add(time.Second)
	results, _ = db.List(ctx, Filter{Since: &since})
	if len(results) != 2 {
		t.Errorf("expected 2 tasks since %v, got %d", since, len(results))
	}
}

func TestSQLiteDB_DeleteByEventID(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	db.Create(ctx, newTask("eq1", models.AnalysisInterferogram, 1, 1))
	db.Create(ctx, newTask("eq1", models.AnalysisInundation, 1, 1))
	db.Create(ctx, newTask("eq2", models.AnalysisInterferogram, 2, 2))

	n, err := db.DeleteByEventID(ctx, "eq1")
	if err != nil {
		t.Fatalf("DeleteByEventID failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}

	n, _ = db.DeleteByEventID(ctx, "eq1")
	if n != 0 {
		t.Errorf("expected 0 deleted on second call, got %d", n)
	}

	results, _ := db.List(ctx, Filter{})
	if len(results) != 1 {
		t.Errorf("expected 1 remaining task, got %d", len(results))
	}
}
