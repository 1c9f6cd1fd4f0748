package baseline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/mr1hm/go-hazard-tasks/internal/logging"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

// StackSource returns the baseline stack of a reference scene.
type StackSource interface {
	Stack(ctx context.Context, sceneID string) ([]models.StackEntry, error)
}

type Config struct {
	TempBaselineMax float64 // days, inclusive
	PerpBaselineMin float64 // meters, inclusive
	PerpBaselineMax float64 // meters, inclusive
}

type MatchResult struct {
	Matches  []models.BaselineCandidate
	SceneIDs []string // references and matches, first occurrence order
}

type Matcher struct {
	cfg   Config
	stack StackSource
	log   *slog.Logger
}

func NewMatcher(cfg Config, stack StackSource) *Matcher {
	return &Matcher{
		cfg:   cfg,
		stack: stack,
		log:   logging.Component("baseline"),
	}
}

// Match finds the best interferometric partner for each reference scene.
// References are processed in the given order.
func (m *Matcher) Match(ctx context.Context, refs []models.CandidateScene, eventTime time.Time) (*MatchResult, error) {
	result := &MatchResult{}
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			result.SceneIDs = append(result.SceneIDs, id)
		}
	}

	for _, ref := range refs {
		entries, err := m.stack.Stack(ctx, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: baseline stack for %s: %w", models.ErrCatalogUnavailable, ref.ID, err)
		}

		best, ok := m.best(ref, entries, eventTime)
		if !ok {
			m.log.Info("no baseline match for reference", "scene_id", ref.ID, "stack_size", len(entries))
			continue
		}

		result.Matches = append(result.Matches, best)
		add(best.ReferenceID)
		add(best.MatchID)
	}

	if len(result.Matches) == 0 {
		return nil, fmt.Errorf("%w: none of %d reference scenes has a partner within bounds",
			models.ErrNoMatchingAcquisitions, len(refs))
	}

	return result, nil
}

func (m *Matcher) best(ref models.CandidateScene, entries []models.StackEntry, eventTime time.Time) (models.BaselineCandidate, bool) {
	refIsPre := models.ClassifySnapshot(ref.AcquiredAt, eventTime) == models.SnapshotPre

	var candidates []models.BaselineCandidate
	for _, e := range entries {
		if e.TemporalBaselineDays == nil || e.PerpendicularBaselineMeters == nil {
			continue
		}
		if e.SceneID == ref.ID {
			continue
		}
		t, p := *e.TemporalBaselineDays, *e.PerpendicularBaselineMeters
		if !m.withinBounds(t, p) {
			continue
		}
		// A pre-event reference only pairs with a scene known to predate
		// the event; rows without a start time cannot show that.
		if refIsPre && (e.StartTime.IsZero() || !e.StartTime.Before(eventTime)) {
			continue
		}
		candidates = append(candidates, models.BaselineCandidate{
			ReferenceID:                 ref.ID,
			MatchID:                     e.SceneID,
			TemporalBaselineDays:        t,
			PerpendicularBaselineMeters: p,
		})
	}

	if len(candidates) == 0 {
		return models.BaselineCandidate{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		di := math.Hypot(candidates[i].TemporalBaselineDays, candidates[i].PerpendicularBaselineMeters)
		dj := math.Hypot(candidates[j].TemporalBaselineDays, candidates[j].PerpendicularBaselineMeters)
		if di != dj {
			return di < dj
		}
		return candidates[i].MatchID < candidates[j].MatchID
	})
	return candidates[0], true
}

func (m *Matcher) withinBounds(temporal, perpendicular float64) bool {
	p := math.Abs(perpendicular)
	return math.Abs(temporal) <= m.cfg.TempBaselineMax &&
		p >= m.cfg.PerpBaselineMin &&
		p <= m.cfg.PerpBaselineMax
}
