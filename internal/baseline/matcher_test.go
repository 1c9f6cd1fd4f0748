package baseline

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

var eventTime = time.Date(2023, 2, 6, 1, 17, 0, 0, time.UTC)

type mockStack struct {
	stacks map[string][]models.StackEntry
	err    error
	calls  []string
}

func (m *mockStack) Stack(ctx context.Context, sceneID string) ([]models.StackEntry, error) {
	m.calls = append(m.calls, sceneID)
	if m.err != nil {
		return nil, m.err
	}
	return m.stacks[sceneID], nil
}

func f(v float64) *float64 { return &v }

func entry(id string, t, p float64, start time.Time) models.StackEntry {
	return models.StackEntry{
		SceneID:                     id,
		TemporalBaselineDays:        f(t),
		PerpendicularBaselineMeters: f(p),
		StartTime:                   start,
	}
}

func defaultConfig() Config {
	return Config{TempBaselineMax: 60, PerpBaselineMin: 10, PerpBaselineMax: 150}
}

func TestMatch_PicksSmallestCombinedBaseline(t *testing.T) {
	post := eventTime.Add(48 * time.Hour)
	stack := &mockStack{stacks: map[string][]models.StackEntry{
		"REF": {
			entry("REF", 0, 0, post),
			entry("A", 12, 40, post.Add(12*24*time.Hour)),
			entry("B", -12, 30, post.Add(-12*24*time.Hour)),
			entry("C", 24, 200, post.Add(24*24*time.Hour)), // perp too large
			entry("D", 90, 20, post.Add(90*24*time.Hour)),  // temporal too large
			entry("E", 6, 5, post.Add(6*24*time.Hour)),     // perp too small
		},
	}}

	m := NewMatcher(defaultConfig(), stack)
	res, err := m.Match(context.Background(), []models.CandidateScene{
		{ID: "REF", AcquiredAt: post},
	}, eventTime)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	want := []models.BaselineCandidate{{
		ReferenceID:                 "REF",
		MatchID:                     "B",
		TemporalBaselineDays:        -12,
		PerpendicularBaselineMeters: 30,
	}}
	if !reflect.DeepEqual(res.Matches, want) {
		t.Errorf("expected %+v, got %+v", want, res.Matches)
	}
	if !reflect.DeepEqual(res.SceneIDs, []string{"REF", "B"}) {
		t.Errorf("expected [REF B], got %v", res.SceneIDs)
	}
}

func TestMatch_BoundsAreInclusive(t *testing.T) {
	stack := &mockStack{stacks: map[string][]models.StackEntry{
		"REF": {entry("EDGE", -60, -150, eventTime.Add(time.Hour))},
	}}

	m := NewMatcher(defaultConfig(), stack)
	res, err := m.Match(context.Background(), []models.CandidateScene{
		{ID: "REF", AcquiredAt: eventTime.Add(time.Hour)},
	}, eventTime)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if res.Matches[0].MatchID != "EDGE" {
		t.Errorf("expected EDGE, got %s", res.Matches[0].MatchID)
	}
}

func TestMatch_DropsMissingBaselines(t *testing.T) {
	stack := &mockStack{stacks: map[string][]models.StackEntry{
		"REF": {
			{SceneID: "NIL_T", PerpendicularBaselineMeters: f(20)},
			{SceneID: "NIL_P", TemporalBaselineDays: f(12)},
		},
	}}

	m := NewMatcher(defaultConfig(), stack)
	_, err := m.Match(context.Background(), []models.CandidateScene{
		{ID: "REF", AcquiredAt: eventTime.Add(time.Hour)},
	}, eventTime)
	if !errors.Is(err, models.ErrNoMatchingAcquisitions) {
		t.Errorf("expected ErrNoMatchingAcquisitions, got %v", err)
	}
}

func TestMatch_PreEventReferenceRequiresPreEventMatch(t *testing.T) {
	refTime := eventTime.Add(-24 * time.Hour)
	stack := &mockStack{stacks: map[string][]models.StackEntry{
		"REF": {
			entry("AFTER", 2, 15, eventTime.Add(24*time.Hour)),
			entry("BEFORE", -12, 50, refTime.Add(-12*24*time.Hour)),
		},
	}}

	m := NewMatcher(defaultConfig(), stack)
	res, err := m.Match(context.Background(), []models.CandidateScene{
		{ID: "REF", AcquiredAt: refTime},
	}, eventTime)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if res.Matches[0].MatchID != "BEFORE" {
		t.Errorf("expected pre-event match BEFORE, got %s", res.Matches[0].MatchID)
	}
}

func TestMatch_TieBreakByMatchID(t *testing.T) {
	start := eventTime.Add(time.Hour)
	stack := &mockStack{stacks: map[string][]models.StackEntry{
		"REF": {
			entry("Z", 12, 20, start),
			entry("M", -12, -20, start),
		},
	}}

	m := NewMatcher(defaultConfig(), stack)
	res, err := m.Match(context.Background(), []models.CandidateScene{{ID: "REF", AcquiredAt: start}}, eventTime)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if res.Matches[0].MatchID != "M" {
		t.Errorf("expected M on tie, got %s", res.Matches[0].MatchID)
	}
}

func TestMatch_DedupesSceneIDsAcrossReferences(t *testing.T) {
	start := eventTime.Add(time.Hour)
	stack := &mockStack{stacks: map[string][]models.StackEntry{
		"R1": {entry("R2", 12, 40, start)},
		"R2": {entry("R1", -12, -40, start)},
		"R3": {},
	}}

	m := NewMatcher(defaultConfig(), stack)
	res, err := m.Match(context.Background(), []models.CandidateScene{
		{ID: "R1", AcquiredAt: start},
		{ID: "R2", AcquiredAt: start},
		{ID: "R3", AcquiredAt: start},
	}, eventTime)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	if len(res.Matches) != 2 {
		t.Errorf("expected 2 matches, got %d", len(res.Matches))
	}
	if !reflect.DeepEqual(res.SceneIDs, []string{"R1", "R2"}) {
		t.Errorf("expected [R1 R2], got %v", res.SceneIDs)
	}
	if !reflect.DeepEqual(stack.calls, []string{"R1", "R2", "R3"}) {
		t.Errorf("expected stacks fetched in reference order, got %v", stack.calls)
	}
}

func TestMatch_StackFailurePropagates(t *testing.T) {
	stack := &mockStack{err: errors.New("connection refused")}

	m := NewMatcher(defaultConfig(), stack)
	_, err := m.Match(context.Background(), []models.CandidateScene{{ID: "REF"}}, eventTime)
	if !errors.Is(err, models.ErrCatalogUnavailable) {
		t.Errorf("expected ErrCatalogUnavailable, got %v", err)
	}
}

func TestMatch_NoReferences(t *testing.T) {
	m := NewMatcher(defaultConfig(), &mockStack{})
	_, err := m.Match(context.Background(), nil, eventTime)
	if !errors.Is(err, models.ErrNoMatchingAcquisitions) {
		t.Errorf("expected ErrNoMatchingAcquisitions, got %v", err)
	}
}

func TestMatch_PreEventReferenceRejectsUnknownStartTime(t *testing.T) {
	refTime := eventTime.Add(-24 * time.Hour)
	stack := &mockStack{stacks: map[string][]models.StackEntry{
		"REF": {
			{SceneID: "UNKNOWN_TIME", TemporalBaselineDays: f(12), PerpendicularBaselineMeters: f(40)},
		},
	}}

	m := NewMatcher(defaultConfig(), stack)
	_, err := m.Match(context.Background(), []models.CandidateScene{
		{ID: "REF", AcquiredAt: refTime},
	}, eventTime)
	if !errors.Is(err, models.ErrNoMatchingAcquisitions) {
		t.Errorf("expected ErrNoMatchingAcquisitions, got %v", err)
	}
}

func TestMatch_PostEventReferenceAcceptsUnknownStartTime(t *testing.T) {
	post := eventTime.Add(48 * time.Hour)
	stack := &mockStack{stacks: map[string][]models.StackEntry{
		"REF": {
			{SceneID: "UNKNOWN_TIME", TemporalBaselineDays: f(12), PerpendicularBaselineMeters: f(40)},
		},
	}}

	m := NewMatcher(defaultConfig(), stack)
	res, err := m.Match(context.Background(), []models.CandidateScene{
		{ID: "REF", AcquiredAt: post},
	}, eventTime)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if res.Matches[0].MatchID != "UNKNOWN_TIME" {
		t.Errorf("expected UNKNOWN_TIME, got %s", res.Matches[0].MatchID)
	}
}
