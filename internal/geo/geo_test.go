package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

func TestHaversineKm(t *testing.T) {
	// One degree of latitude on a 6371 km sphere.
	got := HaversineKm(orb.Point{0, 0}, orb.Point{0, 1})
	want := 2 * math.Pi * EarthRadiusKm / 360
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("expected %f km, got %f km", want, got)
	}

	if d := HaversineKm(orb.Point{38.0106, 37.1962}, orb.Point{38.0106, 37.1962}); d != 0 {
		t.Errorf("expected 0 km for identical points, got %f", d)
	}
}

func TestSquareAround(t *testing.T) {
	center := orb.Point{38.011, 37.196}
	poly := SquareAround(center, 50)

	if len(poly) != 1 {
		t.Fatalf("expected a single ring, got %d", len(poly))
	}
	ring := poly[0]
	if len(ring) != 5 {
		t.Fatalf("expected 5 vertices, got %d", len(ring))
	}
	if ring[0] != ring[4] {
		t.Errorf("expected closed ring, first %v last %v", ring[0], ring[4])
	}
	if !planar.PolygonContains(poly, center) {
		t.Error("expected square to contain its center")
	}

	// Edges sit half-side away from the center.
	north := HaversineKm(center, orb.Point{center.Lon(), ring[2].Lat()})
	if math.Abs(north-50) > 0.5 {
		t.Errorf("expected north edge ~50 km away, got %f", north)
	}
}

func TestWKTRoundTrip(t *testing.T) {
	poly := SquareAround(orb.Point{10, 10}, 5)
	got, err := FromWKT(ToWKT(poly))
	if err != nil {
		t.Fatalf("FromWKT failed: %v", err)
	}
	if !got.Equal(poly) {
		t.Errorf("expected %v, got %v", poly, got)
	}

	if _, err := FromWKT("POINT(1 2)"); err == nil {
		t.Error("expected error for non-polygon wkt")
	}
}

func TestClipAndMerge(t *testing.T) {
	aoi, _ := Overlay(rect(0, 0, 10, 10))
	left, _ := Overlay(rect(-5, 0, 5, 10))
	right, _ := Overlay(rect(4, 0, 15, 10))

	l, err := Clip(left, aoi)
	if err != nil {
		t.Fatalf("Clip failed: %v", err)
	}
	if math.Abs(l.Area()-50) > 1e-9 {
		t.Errorf("expected clipped area 50, got %f", l.Area())
	}

	r, _ := Clip(right, aoi)
	u, err := Merge(l, r)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	// Overlap between x=4 and x=5 is counted once.
	if math.Abs(u.Area()-100) > 1e-9 {
		t.Errorf("expected union area 100, got %f", u.Area())
	}
}

func rect(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}
}
