package api

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mr1hm/go-hazard-tasks/internal/geo"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

// toGeoJSON renders tasks as features. A task whose AOI cannot be parsed is
// drawn at its epicenter.
func toGeoJSON(tasks []models.Task) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for i := range tasks {
		t := &tasks[i]

		var g orb.Geometry = orb.Point{t.Longitude, t.Latitude}
		if poly, err := geo.FromWKT(t.AreaOfInterest); err == nil {
			g = poly
		}

		f := geojson.NewFeature(g)
		f.ID = t.ID
		f.Properties = taskProperties(t)
		fc.Append(f)
	}

	return fc
}

func aoiFeature(t *models.Task) (*geojson.Feature, error) {
	poly, err := geo.FromWKT(t.AreaOfInterest)
	if err != nil {
		return nil, err
	}

	f := geojson.NewFeature(poly)
	f.ID = t.ID
	f.Properties = taskProperties(t)
	f.Properties["epicenter"] = []float64{t.Longitude, t.Latitude}
	if res := t.Resolution; res != nil {
		f.Properties["radius_km"] = res.AOI.RadiusKm
		f.Properties["method"] = res.AOI.Method
		f.Properties["pre_coverage"] = res.Pre.Coverage
		f.Properties["post_coverage"] = res.Post.Coverage
	}
	return f, nil
}

func taskProperties(t *models.Task) geojson.Properties {
	return geojson.Properties{
		"id":         t.ID,
		"event_id":   t.EventID,
		"event_type": t.EventType,
		"analysis":   t.Analysis,
		"filename":   t.Filename,
		"status":     t.Status,
		"event_date": t.EventDate,
	}
}
