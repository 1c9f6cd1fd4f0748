package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"golang.org/x/time/rate"

	"github.com/mr1hm/go-hazard-tasks/internal/geo"
	"github.com/mr1hm/go-hazard-tasks/internal/logging"
	"github.com/mr1hm/go-hazard-tasks/internal/metrics"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

// maxResponseBytes caps catalog responses read into memory.
const maxResponseBytes = 32 << 20

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

type ASFConfig struct {
	SearchURL   string
	BaselineURL string
	Timeout     time.Duration
	RPS         float64
}

// ASFClient talks to the ASF search API.
type ASFClient struct {
	cfg     ASFConfig
	client  *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

func NewASFClient(cfg ASFConfig) *ASFClient {
	burst := int(cfg.RPS)
	if burst < 1 {
		burst = 1
	}
	return &ASFClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), burst),
		log:     logging.Component("catalog"),
	}
}

func (c *ASFClient) Search(ctx context.Context, params SearchParams) ([]models.CandidateScene, error) {
	q := url.Values{}
	q.Set("output", "geojson")
	q.Set("intersectsWith", geo.ToWKT(params.AOI))
	q.Set("start", params.Start.UTC().Format(time.RFC3339))
	q.Set("end", params.End.UTC().Format(time.RFC3339))
	setIf(q, "platform", params.Platform)
	setIf(q, "processingLevel", params.ProcessingLevel)
	setIf(q, "beamMode", params.BeamMode)
	setIf(q, "flightDirection", params.FlightDirection)
	if params.MaxResults > 0 {
		q.Set("maxResults", strconv.Itoa(params.MaxResults))
	}

	fc, err := c.fetch(ctx, "search", c.cfg.SearchURL, q)
	if err != nil {
		return nil, err
	}

	scenes := make([]models.CandidateScene, 0, len(fc.Features))
	for _, f := range fc.Features {
		id := sceneName(f.Properties)
		if id == "" {
			continue
		}
		footprint, ok := footprintOf(f.Geometry)
		if !ok {
			c.log.Warn("skipping scene without polygon footprint", "scene_id", id, "geometry", geometryType(f.Geometry))
			continue
		}
		start, err := parseTime(f.Properties.MustString("startTime", ""))
		if err != nil {
			c.log.Warn("skipping scene with unparseable start time", "scene_id", id, "error", err)
			continue
		}

		scenes = append(scenes, models.CandidateScene{
			ID:              id,
			Footprint:       footprint,
			AcquiredAt:      start,
			FlightDirection: strings.ToUpper(f.Properties.MustString("flightDirection", "")),
			PathNumber:      f.Properties.MustInt("pathNumber", 0),
		})
	}

	c.log.Debug("catalog search complete", "results", len(scenes), "start", params.Start, "end", params.End)
	return scenes, nil
}

func (c *ASFClient) Stack(ctx context.Context, sceneID string) ([]models.StackEntry, error) {
	q := url.Values{}
	q.Set("output", "geojson")
	q.Set("reference", sceneID)

	fc, err := c.fetch(ctx, "baseline", c.cfg.BaselineURL, q)
	if err != nil {
		return nil, err
	}

	entries := make([]models.StackEntry, 0, len(fc.Features))
	for _, f := range fc.Features {
		id := sceneName(f.Properties)
		if id == "" {
			continue
		}
		start, err := parseTime(f.Properties.MustString("startTime", ""))
		if err != nil {
			c.log.Debug("stack entry without start time", "reference", sceneID, "scene_id", id, "error", err)
		}
		entries = append(entries, models.StackEntry{
			SceneID:                     id,
			TemporalBaselineDays:        optionalFloat(f.Properties, "temporalBaseline"),
			PerpendicularBaselineMeters: optionalFloat(f.Properties, "perpendicularBaseline"),
			StartTime:                   start,
		})
	}
	return entries, nil
}

func (c *ASFClient) fetch(ctx context.Context, endpoint, base string, q url.Values) (*geojson.FeatureCollection, error) {
	start := time.Now()
	fc, err := c.do(ctx, base, q)
	metrics.ObserveCatalogRequest("asf_"+endpoint, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: asf %s: %w", models.ErrCatalogUnavailable, endpoint, err)
	}
	return fc, nil
}

func (c *ASFClient) do(ctx context.Context, base string, q url.Values) (*geojson.FeatureCollection, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("error waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading resp.Body: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}
	return fc, nil
}

func sceneName(p geojson.Properties) string {
	if name := p.MustString("sceneName", ""); name != "" {
		return name
	}
	return strings.TrimSuffix(p.MustString("fileID", ""), "-SLC")
}

// footprintOf returns the footprint polygon. Antimeridian-split footprints
// arrive as multipolygons; the largest part is used.
func footprintOf(g orb.Geometry) (orb.Polygon, bool) {
	switch v := g.(type) {
	case orb.Polygon:
		return v, len(v) > 0
	case orb.MultiPolygon:
		if len(v) == 0 {
			return nil, false
		}
		parts := append(orb.MultiPolygon(nil), v...)
		sort.SliceStable(parts, func(i, j int) bool {
			return planar.Area(parts[i]) > planar.Area(parts[j])
		})
		return parts[0], true
	default:
		return nil, false
	}
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "none"
	}
	return g.GeoJSONType()
}

func optionalFloat(p geojson.Properties, key string) *float64 {
	switch v := p[key].(type) {
	case float64:
		return &v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
