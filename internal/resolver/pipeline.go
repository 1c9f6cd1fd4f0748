// Package resolver runs the resolution pipeline for one task: area of
// interest, catalog search, scene selection and, for analyses that need
// interferometric pairs, baseline matching.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mr1hm/go-hazard-tasks/internal/aoi"
	"github.com/mr1hm/go-hazard-tasks/internal/baseline"
	"github.com/mr1hm/go-hazard-tasks/internal/catalog"
	"github.com/mr1hm/go-hazard-tasks/internal/config"
	"github.com/mr1hm/go-hazard-tasks/internal/logging"
	"github.com/mr1hm/go-hazard-tasks/internal/metrics"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
	"github.com/mr1hm/go-hazard-tasks/internal/scenes"
)

const day = 24 * time.Hour

type AOIResolver interface {
	Resolve(ctx context.Context, event models.Event) (models.AreaOfInterest, error)
}

type Pipeline struct {
	cfg      config.ResolverConfig
	aoi      AOIResolver
	catalog  catalog.Client
	selector *scenes.Selector
	matcher  *baseline.Matcher
	log      *slog.Logger
}

// New wires the pipeline stages. The catalog serves both scene search and
// baseline stacks.
func New(cfg config.ResolverConfig, area AOIResolver, cat catalog.Client) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		aoi:      area,
		catalog:  cat,
		selector: scenes.NewSelector(scenes.Config{CoverageTarget: cfg.CoverageTarget}),
		matcher: baseline.NewMatcher(baseline.Config{
			TempBaselineMax: cfg.TempBaselineMax,
			PerpBaselineMin: cfg.PerpBaselineMin,
			PerpBaselineMax: cfg.PerpBaselineMax,
		}, cat),
		log: logging.Component("resolver"),
	}
}

// NewAOIResolver builds the AOI stage from resolver config.
func NewAOIResolver(cfg config.ResolverConfig, contours aoi.ContourSource, contourTimeout time.Duration) *aoi.Resolver {
	return aoi.NewResolver(aoi.Config{
		IntensityThreshold: cfg.IntensityThreshold,
		FloodBufferKm:      cfg.FloodBufferKm,
		ContourTimeout:     contourTimeout,
	}, contours)
}

// SearchWindow returns the acquisition window around the event time.
func (p *Pipeline) SearchWindow(eventTime time.Time, analysis models.AnalysisType) (time.Time, time.Time) {
	days := p.cfg.DefaultWindowDays
	if analysis == models.AnalysisInterferogram {
		days = p.cfg.InterferogramWindowDays
	}
	span := time.Duration(days) * day
	return eventTime.Add(-span), eventTime.Add(span)
}

// Resolve runs every stage in order. When baseline matching finds nothing
// the partially filled Resolution is returned together with
// models.ErrNoMatchingAcquisitions so callers can still record the AOI.
func (p *Pipeline) Resolve(ctx context.Context, event models.Event, analysis models.AnalysisType) (res *models.Resolution, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveResolution(time.Since(start), err)
	}()

	if event.Time.IsZero() {
		return nil, fmt.Errorf("%w: event %s has no time", models.ErrMissingInput, event.ID)
	}

	area, err := p.aoi.Resolve(ctx, event)
	if err != nil {
		return nil, err
	}

	from, to := p.SearchWindow(event.Time, analysis)
	candidates, err := p.catalog.Search(ctx, catalog.SearchParams{
		AOI:             area.Polygon,
		Start:           from,
		End:             to,
		Platform:        p.cfg.Platform,
		ProcessingLevel: p.cfg.ProcessingLevel,
		BeamMode:        p.cfg.BeamMode,
		FlightDirection: p.cfg.FlightDirection,
	})
	if err != nil {
		return nil, err
	}

	sel, err := p.selector.Select(area.Polygon, candidates, event.Time)
	if err != nil {
		return nil, fmt.Errorf("error selecting scenes: %w", err)
	}

	res = &models.Resolution{
		AOI:       area,
		StartDate: from,
		EndDate:   to,
		Pre:       sel.Pre,
		Post:      sel.Post,
	}
	for _, w := range sel.Warnings {
		p.log.Warn("scene selection below coverage target", "event_id", event.ID, "warning", w.Error())
		res.Warnings = append(res.Warnings, w.Error())
	}

	if !analysis.RequiresPairs() {
		res.SceneIDs = appendUnique(nil, sel.Pre.SceneIDs...)
		res.SceneIDs = appendUnique(res.SceneIDs, sel.Post.SceneIDs...)
		if len(res.SceneIDs) == 0 {
			return res, fmt.Errorf("%w: no scenes intersect the AOI between %s and %s",
				models.ErrNoMatchingAcquisitions, from.Format(time.DateOnly), to.Format(time.DateOnly))
		}
		p.logResolved(event, analysis, res)
		return res, nil
	}

	refs := references(candidates, sel)
	match, err := p.matcher.Match(ctx, refs, event.Time)
	if err != nil {
		if errors.Is(err, models.ErrNoMatchingAcquisitions) {
			return res, err
		}
		return nil, err
	}

	res.Matches = match.Matches
	res.SceneIDs = match.SceneIDs
	p.logResolved(event, analysis, res)
	return res, nil
}

func (p *Pipeline) logResolved(event models.Event, analysis models.AnalysisType, res *models.Resolution) {
	p.log.Info("resolution complete",
		"event_id", event.ID,
		"analysis", analysis,
		"pre_scenes", len(res.Pre.SceneIDs),
		"post_scenes", len(res.Post.SceneIDs),
		"pre_coverage", res.Pre.Coverage,
		"post_coverage", res.Post.Coverage,
		"pairs", len(res.Matches),
	)
}

// references returns the selected scenes, pre first, in selection order.
func references(candidates []models.CandidateScene, sel scenes.Selection) []models.CandidateScene {
	byID := make(map[string]models.CandidateScene, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	var refs []models.CandidateScene
	for _, ids := range [][]string{sel.Pre.SceneIDs, sel.Post.SceneIDs} {
		for _, id := range ids {
			if c, ok := byID[id]; ok {
				refs = append(refs, c)
			}
		}
	}
	return refs
}

func appendUnique(dst []string, ids ...string) []string {
	seen := make(map[string]bool, len(dst)+len(ids))
	for _, id := range dst {
		seen[id] = true
	}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			dst = append(dst, id)
		}
	}
	return dst
}
