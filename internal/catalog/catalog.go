// Package catalog searches the SAR imagery catalog for candidate scenes and
// fetches baseline stacks for reference scenes.
package catalog

import (
	"context"
	"time"

	"github.com/paulmach/orb"

	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

// Client is the imagery catalog. Both calls return an empty slice, not an
// error, when the catalog has no results. Failures wrap
// models.ErrCatalogUnavailable.
type Client interface {
	Search(ctx context.Context, params SearchParams) ([]models.CandidateScene, error)
	Stack(ctx context.Context, sceneID string) ([]models.StackEntry, error)
}

type SearchParams struct {
	AOI             orb.Polygon
	Start           time.Time
	End             time.Time
	Platform        string
	ProcessingLevel string
	BeamMode        string
	FlightDirection string // empty for both
	MaxResults      int
}
