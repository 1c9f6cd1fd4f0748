package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

type TaskStatus string

const (
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusError      TaskStatus = "error"
)

func ParseTaskStatus(s string) (TaskStatus, bool) {
	switch TaskStatus(strings.ToLower(strings.TrimSpace(s))) {
	case TaskStatusProcessing:
		return TaskStatusProcessing, true
	case TaskStatusCompleted:
		return TaskStatusCompleted, true
	case TaskStatusError:
		return TaskStatusError, true
	default:
		return "", false
	}
}

// IsTerminal reports whether the status ends a processing run.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusError
}

// CanTransition reports whether a task may move from one status to another.
//
//	processing -> completed | error
//	completed | error -> processing   (regenerate)
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusProcessing:
		return to == TaskStatusCompleted || to == TaskStatusError
	case TaskStatusCompleted, TaskStatusError:
		return to == TaskStatusProcessing
	default:
		return false
	}
}

type AnalysisType string

const (
	AnalysisInterferogram    AnalysisType = "interferogram"
	AnalysisChangeDetection  AnalysisType = "changedetection"
	AnalysisDamageAssessment AnalysisType = "damageassessment"
	AnalysisInundation       AnalysisType = "inundation"
)

func ParseAnalysisType(s string) (AnalysisType, bool) {
	switch AnalysisType(strings.ToLower(strings.TrimSpace(s))) {
	case AnalysisInterferogram:
		return AnalysisInterferogram, true
	case AnalysisChangeDetection:
		return AnalysisChangeDetection, true
	case AnalysisDamageAssessment:
		return AnalysisDamageAssessment, true
	case AnalysisInundation:
		return AnalysisInundation, true
	default:
		return "", false
	}
}

// RequiresPairs is true for analyses that consume interferometric pairs.
func (a AnalysisType) RequiresPairs() bool {
	return a == AnalysisInterferogram
}

// Fingerprint identifies a unique unit of work. Asset is empty when the
// analysis has no asset subtype.
type Fingerprint struct {
	Latitude  float64
	Longitude float64
	EventType EventType
	Analysis  AnalysisType
	Asset     string
}

func (f Fingerprint) Key() string {
	return fmt.Sprintf("%s|%s|%s|%v|%v", f.EventType, f.Analysis, f.Asset, f.Latitude, f.Longitude)
}

// TaskFilename derives the deterministic artifact name for a task.
func TaskFilename(eventType EventType, eventID string, analysis AnalysisType) string {
	return fmt.Sprintf("%s-%s-%s", eventType, eventID, analysis)
}

type Task struct {
	ID             string
	EventID        string
	EventType      EventType
	Analysis       AnalysisType
	Asset          string
	Location       string
	Country        string
	Latitude       float64
	Longitude      float64
	Magnitude      *float64
	EventDate      time.Time
	StartDate      time.Time
	EndDate        time.Time
	AreaOfInterest string // WKT polygon
	Filename       string
	Status         TaskStatus
	UserID         string
	Resolution     *Resolution // inputs reused on regenerate
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (t *Task) Fingerprint() Fingerprint {
	return Fingerprint{
		Latitude:  t.Latitude,
		Longitude: t.Longitude,
		EventType: t.EventType,
		Analysis:  t.Analysis,
		Asset:     t.Asset,
	}
}

// Event rebuilds the event the task was resolved for.
func (t *Task) Event() Event {
	return Event{
		ID:        t.EventID,
		Type:      t.EventType,
		Magnitude: t.Magnitude,
		Latitude:  t.Latitude,
		Longitude: t.Longitude,
		Time:      t.EventDate,
		Location:  t.Location,
		Country:   t.Country,
	}
}

// Resolution is the output of AOI derivation, scene selection and baseline
// matching for one task.
type Resolution struct {
	AOI       AreaOfInterest      `json:"aoi"`
	StartDate time.Time           `json:"start_date"`
	EndDate   time.Time           `json:"end_date"`
	Pre       SelectedSceneSet    `json:"pre"`
	Post      SelectedSceneSet    `json:"post"`
	Matches   []BaselineCandidate `json:"matches,omitempty"`
	SceneIDs  []string            `json:"scene_ids,omitempty"`
	Warnings  []string            `json:"warnings,omitempty"`
}

// Processable reports whether the resolution names the scenes the engine
// needs for analysis: at least one scene, and at least one pair when the
// analysis is interferometric.
func (r *Resolution) Processable(analysis AnalysisType) bool {
	if r == nil || len(r.SceneIDs) == 0 {
		return false
	}
	return !analysis.RequiresPairs() || len(r.Matches) > 0
}

type OutputParams struct {
	Filename string `json:"filename"`
	Prefix   string `json:"prefix"` // e.g. "earthquake/us6000jlqa"
}

// ProcessingJob is the payload handed to the processing engine.
type ProcessingJob struct {
	TaskID         string              `json:"task_id"`
	EventID        string              `json:"event_id"`
	EventType      EventType           `json:"event_type"`
	Analysis       AnalysisType        `json:"analysis"`
	Asset          string              `json:"asset,omitempty"`
	PreScenes      []string            `json:"pre_scenes"`
	PostScenes     []string            `json:"post_scenes"`
	MatchedPairs   []BaselineCandidate `json:"matched_pairs"`
	SceneIDs       []string            `json:"scene_ids"`
	AreaOfInterest orb.Polygon         `json:"area_of_interest"`
	Output         OutputParams        `json:"output"`
}

// TaskEvent is emitted whenever a task is created or changes status.
type TaskEvent struct {
	TaskID    string     `json:"task_id"`
	EventID   string     `json:"event_id"`
	Filename  string     `json:"filename"`
	Status    TaskStatus `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
}
