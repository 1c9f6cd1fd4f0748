// Package geo holds the spherical and planar geometry used to build areas of
// interest and to measure how much of an AOI a set of footprints covers.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/peterstace/simplefeatures/geom"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two lon/lat points.
func HaversineKm(a, b orb.Point) float64 {
	lat1 := deg2rad(a.Lat())
	lat2 := deg2rad(b.Lat())
	dlat := deg2rad(b.Lat() - a.Lat())
	dlon := deg2rad(b.Lon() - a.Lon())

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// SquareAround returns a closed 5-point ring centered on center. The edges sit
// halfSideKm away along bearings 180, 0, 270 and 90 degrees.
func SquareAround(center orb.Point, halfSideKm float64) orb.Polygon {
	d := halfSideKm * 1000
	minLat := orbgeo.PointAtBearingAndDistance(center, 180, d).Lat()
	maxLat := orbgeo.PointAtBearingAndDistance(center, 0, d).Lat()
	minLon := orbgeo.PointAtBearingAndDistance(center, 270, d).Lon()
	maxLon := orbgeo.PointAtBearingAndDistance(center, 90, d).Lon()

	ring := orb.Ring{
		{minLon, minLat},
		{maxLon, minLat},
		{maxLon, maxLat},
		{minLon, maxLat},
		{minLon, minLat},
	}
	return orb.Polygon{ring}
}

// ToWKT renders a polygon as WKT, the form stored on tasks.
func ToWKT(p orb.Polygon) string {
	return wkt.MarshalString(p)
}

// FromWKT parses a WKT polygon produced by ToWKT.
func FromWKT(s string) (orb.Polygon, error) {
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("error parsing wkt: %w", err)
	}
	p, ok := g.(orb.Polygon)
	if !ok {
		return nil, fmt.Errorf("expected polygon, got %s", g.GeoJSONType())
	}
	return p, nil
}

// Overlay converts an orb polygon into a geometry that supports
// intersection and union.
func Overlay(p orb.Polygon) (geom.Geometry, error) {
	g, err := geom.UnmarshalWKT(wkt.MarshalString(p))
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("error converting polygon: %w", err)
	}
	return g, nil
}

// Clip returns the part of footprint that lies inside aoi.
func Clip(footprint, aoi geom.Geometry) (geom.Geometry, error) {
	g, err := geom.Intersection(footprint, aoi)
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("error intersecting geometries: %w", err)
	}
	return g, nil
}

// Merge returns the union of a and b. An empty a yields b.
func Merge(a, b geom.Geometry) (geom.Geometry, error) {
	if a.IsEmpty() {
		return b, nil
	}
	if b.IsEmpty() {
		return a, nil
	}
	g, err := geom.Union(a, b)
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("error merging geometries: %w", err)
	}
	return g, nil
}

func deg2rad(d float64) float64 {
	return d * math.Pi / 180
}
