package models

import (
	"strings"
	"time"

	"github.com/paulmach/orb"
)

type EventType string

const (
	EventTypeEarthquake EventType = "earthquake"
	EventTypeFlood      EventType = "flood"
)

func ParseEventType(s string) (EventType, bool) {
	switch EventType(strings.ToLower(strings.TrimSpace(s))) {
	case EventTypeEarthquake:
		return EventTypeEarthquake, true
	case EventTypeFlood:
		return EventTypeFlood, true
	default:
		return "", false
	}
}

type Event struct {
	ID        string // Source event id (e.g., "us6000jlqa")
	Type      EventType
	Magnitude *float64 // nil when the source has no magnitude
	Latitude  float64
	Longitude float64
	Time      time.Time // when the event occurred
	Location  string    // Human readable place, e.g. "26 km E of Nurdağı, Turkey"
	Country   string
}

func (e *Event) Epicenter() orb.Point {
	return orb.Point{e.Longitude, e.Latitude}
}

// IntensityContour is one ShakeMap MMI contour level.
type IntensityContour struct {
	Value float64
	Lines []orb.LineString
}
