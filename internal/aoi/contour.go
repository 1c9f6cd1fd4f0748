package aoi

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/mr1hm/go-hazard-tasks/internal/geo"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

const contourValueTolerance = 1e-9

// MaxContourDistanceKm returns the largest haversine distance from epicenter
// to any vertex of the contour whose value equals threshold. ok is false when
// no such contour exists or it has no vertices.
func MaxContourDistanceKm(epicenter orb.Point, contours []models.IntensityContour, threshold float64) (float64, bool) {
	found := false
	maxKm := 0.0

	for _, c := range contours {
		if math.Abs(c.Value-threshold) > contourValueTolerance {
			continue
		}
		for _, line := range c.Lines {
			for _, p := range line {
				found = true
				if d := geo.HaversineKm(epicenter, p); d > maxKm {
					maxKm = d
				}
			}
		}
	}

	if !found || maxKm == 0 {
		return 0, false
	}
	return maxKm, true
}
