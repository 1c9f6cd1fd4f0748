package scenes

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/peterstace/simplefeatures/geom"

	"github.com/mr1hm/go-hazard-tasks/internal/geo"
	"github.com/mr1hm/go-hazard-tasks/internal/logging"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

// minGain is the smallest coverage increase that counts as progress.
const minGain = 1e-9

type Config struct {
	CoverageTarget float64 // fraction of the AOI area, e.g. 0.9
}

// Selection holds the pre- and post-event scene sets. Warnings wrap
// models.ErrInsufficientCoverage for partitions that stayed below target.
type Selection struct {
	Pre      models.SelectedSceneSet
	Post     models.SelectedSceneSet
	Warnings []error
}

type Selector struct {
	cfg Config
	log *slog.Logger
}

func NewSelector(cfg Config) *Selector {
	return &Selector{
		cfg: cfg,
		log: logging.Component("scenes"),
	}
}

// Select partitions candidates around eventTime and greedily picks the
// fewest scenes whose footprints cover the target fraction of aoi.
func (s *Selector) Select(aoi orb.Polygon, candidates []models.CandidateScene, eventTime time.Time) (Selection, error) {
	area, err := geo.Overlay(aoi)
	if err != nil {
		return Selection{}, fmt.Errorf("error preparing area of interest: %w", err)
	}
	if area.Area() == 0 {
		return Selection{}, fmt.Errorf("%w: area of interest has zero area", models.ErrMissingInput)
	}

	var pre, post []models.CandidateScene
	for _, c := range candidates {
		c.Snapshot = models.ClassifySnapshot(c.AcquiredAt, eventTime)
		if c.Snapshot == models.SnapshotPre {
			pre = append(pre, c)
		} else {
			post = append(post, c)
		}
	}

	var sel Selection
	if sel.Pre, err = s.selectPartition(area, models.SnapshotPre, pre); err != nil {
		return Selection{}, err
	}
	if sel.Post, err = s.selectPartition(area, models.SnapshotPost, post); err != nil {
		return Selection{}, err
	}

	for _, set := range []models.SelectedSceneSet{sel.Pre, sel.Post} {
		if set.Coverage < s.cfg.CoverageTarget {
			sel.Warnings = append(sel.Warnings, fmt.Errorf("%w: %s coverage %.2f below target %.2f",
				models.ErrInsufficientCoverage, set.Snapshot, set.Coverage, s.cfg.CoverageTarget))
		}
	}

	return sel, nil
}

type clipped struct {
	id    string
	shape geom.Geometry
	area  float64
}

func (s *Selector) selectPartition(aoi geom.Geometry, snapshot models.SnapshotClass, candidates []models.CandidateScene) (models.SelectedSceneSet, error) {
	set := models.SelectedSceneSet{Snapshot: snapshot, SceneIDs: []string{}}
	aoiArea := aoi.Area()

	pieces := make([]clipped, 0, len(candidates))
	for _, c := range dedupeFootprints(candidates) {
		fp, err := geo.Overlay(c.Footprint)
		if err != nil {
			s.log.Warn("skipping scene with invalid footprint", "scene_id", c.ID, "error", err)
			continue
		}
		g, err := geo.Clip(fp, aoi)
		if err != nil {
			return set, fmt.Errorf("error clipping scene %s: %w", c.ID, err)
		}
		a := g.Area()
		if a == 0 {
			continue
		}
		pieces = append(pieces, clipped{id: c.ID, shape: g, area: a})
	}

	sort.Slice(pieces, func(i, j int) bool {
		if pieces[i].area != pieces[j].area {
			return pieces[i].area > pieces[j].area
		}
		return pieces[i].id < pieces[j].id
	})

	var union geom.Geometry
	coverage := 0.0
	for _, p := range pieces {
		if coverage >= s.cfg.CoverageTarget {
			break
		}

		merged, err := geo.Merge(union, p.shape)
		if err != nil {
			return set, fmt.Errorf("error merging scene %s: %w", p.id, err)
		}
		next := math.Min(merged.Area()/aoiArea, 1)
		if next-coverage <= minGain {
			continue
		}

		union = merged
		coverage = next
		set.SceneIDs = append(set.SceneIDs, p.id)
	}

	set.Coverage = coverage
	s.log.Debug("scenes selected",
		"snapshot", snapshot,
		"candidates", len(candidates),
		"selected", len(set.SceneIDs),
		"coverage", coverage,
	)
	return set, nil
}

// dedupeFootprints keeps one scene per identical footprint, the one with the
// smallest id.
func dedupeFootprints(candidates []models.CandidateScene) []models.CandidateScene {
	byFootprint := make(map[string]int, len(candidates))
	out := make([]models.CandidateScene, 0, len(candidates))

	for _, c := range candidates {
		key := geo.ToWKT(c.Footprint)
		if i, ok := byFootprint[key]; ok {
			if c.ID < out[i].ID {
				out[i] = c
			}
			continue
		}
		byFootprint[key] = len(out)
		out = append(out, c)
	}
	return out
}
