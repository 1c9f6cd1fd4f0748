// Package events resolves hazard event ids into events using the USGS
// (earthquakes) and GDACS (floods) services.
package events

import (
	"context"
	"fmt"

	"github.com/mr1hm/go-hazard-tasks/internal/breaker"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

type Source struct {
	usgs  *USGSClient
	gdacs *GDACSClient
	cb    *breaker.Breaker
}

// NewSource routes lookups by event type. cb may be nil.
func NewSource(usgs *USGSClient, gdacs *GDACSClient, cb *breaker.Breaker) *Source {
	return &Source{usgs: usgs, gdacs: gdacs, cb: cb}
}

func (s *Source) Lookup(ctx context.Context, eventType models.EventType, eventID string) (*models.Event, error) {
	return guard(s.cb, func() (*models.Event, error) {
		switch eventType {
		case models.EventTypeEarthquake:
			return s.usgs.Lookup(ctx, eventID)
		case models.EventTypeFlood:
			return s.gdacs.Lookup(ctx, eventID)
		default:
			return nil, fmt.Errorf("%w: unsupported event type %q", models.ErrMissingInput, eventType)
		}
	})
}

func (s *Source) IntensityContours(ctx context.Context, eventID string) ([]models.IntensityContour, error) {
	return guard(s.cb, func() ([]models.IntensityContour, error) {
		return s.usgs.IntensityContours(ctx, eventID)
	})
}

func guard[T any](cb *breaker.Breaker, fn func() (T, error)) (T, error) {
	if cb == nil {
		return fn()
	}
	return breaker.Do(cb, fn)
}
