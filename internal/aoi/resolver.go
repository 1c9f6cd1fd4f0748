package aoi

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mr1hm/go-hazard-tasks/internal/geo"
	"github.com/mr1hm/go-hazard-tasks/internal/logging"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

// ContourSource fetches ShakeMap intensity contours for an event. A nil
// slice with a nil error means the event has no contours.
type ContourSource interface {
	IntensityContours(ctx context.Context, eventID string) ([]models.IntensityContour, error)
}

type Config struct {
	IntensityThreshold float64 // contour value used for the radius, MMI 5
	FloodBufferKm      float64
	ContourTimeout     time.Duration
}

type Resolver struct {
	cfg      Config
	contours ContourSource
	log      *slog.Logger
}

// NewResolver returns an AOI resolver. contours may be nil, in which case
// earthquakes always use the empirical radius.
func NewResolver(cfg Config, contours ContourSource) *Resolver {
	return &Resolver{
		cfg:      cfg,
		contours: contours,
		log:      logging.Component("aoi"),
	}
}

func (r *Resolver) Resolve(ctx context.Context, event models.Event) (models.AreaOfInterest, error) {
	radius, method, err := r.radius(ctx, event)
	if err != nil {
		return models.AreaOfInterest{}, err
	}

	poly := geo.SquareAround(event.Epicenter(), radius/2)

	r.log.Info("area of interest resolved",
		"event_id", event.ID,
		"radius_km", math.Round(radius*100)/100,
		"method", method,
	)

	return models.AreaOfInterest{
		Polygon:  poly,
		RadiusKm: radius,
		Method:   method,
	}, nil
}

func (r *Resolver) radius(ctx context.Context, event models.Event) (float64, models.AOIMethod, error) {
	if event.Type == models.EventTypeFlood {
		return r.cfg.FloodBufferKm, models.AOIMethodEmpirical, nil
	}

	if radius, ok := r.contourRadius(ctx, event); ok {
		return radius, models.AOIMethodIntensityContour, nil
	}

	if event.Magnitude == nil {
		return 0, "", fmt.Errorf("%w: event %s has no magnitude and no intensity contour", models.ErrMissingInput, event.ID)
	}
	return EmpiricalRadiusKm(*event.Magnitude), models.AOIMethodEmpirical, nil
}

// contourRadius returns the farthest distance from the epicenter to a vertex
// of the threshold contour. Fetch failures fall back silently.
func (r *Resolver) contourRadius(ctx context.Context, event models.Event) (float64, bool) {
	if r.contours == nil {
		return 0, false
	}

	if r.cfg.ContourTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ContourTimeout)
		defer cancel()
	}

	contours, err := r.contours.IntensityContours(ctx, event.ID)
	if err != nil {
		r.log.Debug("intensity contours unavailable, using empirical radius", "event_id", event.ID, "error", err)
		return 0, false
	}

	return MaxContourDistanceKm(event.Epicenter(), contours, r.cfg.IntensityThreshold)
}

// EmpiricalRadiusKm estimates the MMI 5 radius from magnitude.
func EmpiricalRadiusKm(magnitude float64) float64 {
	return math.Pow(10, 0.5*magnitude-1.5)
}
