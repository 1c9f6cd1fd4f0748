package models

import (
	"time"

	"github.com/paulmach/orb"
)

type SnapshotClass string

const (
	SnapshotPre  SnapshotClass = "pre"
	SnapshotPost SnapshotClass = "post"
)

// ClassifySnapshot returns pre for acquisitions strictly before the event.
func ClassifySnapshot(acquiredAt, eventTime time.Time) SnapshotClass {
	if acquiredAt.Before(eventTime) {
		return SnapshotPre
	}
	return SnapshotPost
}

type AOIMethod string

const (
	AOIMethodIntensityContour AOIMethod = "intensity-contour"
	AOIMethodEmpirical        AOIMethod = "empirical-formula"
)

type AreaOfInterest struct {
	Polygon  orb.Polygon `json:"polygon"`
	RadiusKm float64     `json:"radius_km"`
	Method   AOIMethod   `json:"method"`
}

type CandidateScene struct {
	ID              string
	Footprint       orb.Polygon
	AcquiredAt      time.Time
	FlightDirection string // ASCENDING / DESCENDING
	PathNumber      int
	Snapshot        SnapshotClass
}

type SelectedSceneSet struct {
	Snapshot SnapshotClass `json:"snapshot"`
	SceneIDs []string      `json:"scene_ids"`
	Coverage float64       `json:"coverage"` // fraction of AOI area, 0..1
}

// StackEntry is a single row of a reference scene's baseline stack.
// Nil baselines mean the catalog had no value for the row.
type StackEntry struct {
	SceneID                     string
	TemporalBaselineDays        *float64
	PerpendicularBaselineMeters *float64
	StartTime                   time.Time
}

type BaselineCandidate struct {
	ReferenceID                 string  `json:"reference_id"`
	MatchID                     string  `json:"match_id"`
	TemporalBaselineDays        float64 `json:"temporal_baseline_days"`
	PerpendicularBaselineMeters float64 `json:"perpendicular_baseline_meters"`
}
