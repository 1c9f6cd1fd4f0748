// Package orchestrator turns resolution requests into tasks. It enforces one
// task per fingerprint, owns the task status machine and dispatches
// processing jobs.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/mr1hm/go-hazard-tasks/internal/geo"
	"github.com/mr1hm/go-hazard-tasks/internal/logging"
	"github.com/mr1hm/go-hazard-tasks/internal/metrics"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
	"github.com/mr1hm/go-hazard-tasks/internal/repository"
)

const (
	resultCreated  = "created"
	resultExisting = "existing"
	resultFailed   = "failed"
)

type EventLookup interface {
	Lookup(ctx context.Context, eventType models.EventType, eventID string) (*models.Event, error)
}

// Pipeline resolves AOI, scenes and pairs. On models.ErrNoMatchingAcquisitions
// it may return a partial resolution alongside the error.
type Pipeline interface {
	Resolve(ctx context.Context, event models.Event, analysis models.AnalysisType) (*models.Resolution, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, job models.ProcessingJob) error
}

// Notifier receives task lifecycle events. It must not block.
type Notifier interface {
	Broadcast(e *models.TaskEvent)
}

type Config struct {
	OutputPrefix string
}

// ResolveRequest asks for a task. Event attributes left nil are looked up
// from the event source.
type ResolveRequest struct {
	EventID   string
	EventType models.EventType
	Analysis  models.AnalysisType
	Asset     string
	UserID    string

	Latitude  *float64
	Longitude *float64
	Magnitude *float64
	Time      *time.Time
	Location  string
	Country   string
}

type Result struct {
	Task     *models.Task
	Existing bool
}

type Orchestrator struct {
	repo       repository.TaskRepository
	events     EventLookup
	pipeline   Pipeline
	dispatcher Dispatcher
	notifier   Notifier
	cfg        Config
	group      singleflight.Group
	now        func() time.Time
	log        *slog.Logger
}

// New builds an orchestrator. notifier may be nil.
func New(repo repository.TaskRepository, events EventLookup, pipeline Pipeline, dispatcher Dispatcher, notifier Notifier, cfg Config) *Orchestrator {
	return &Orchestrator{
		repo:       repo,
		events:     events,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		notifier:   notifier,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logging.Component("orchestrator"),
	}
}

// ResolveOrCreate returns the task for the request's fingerprint, creating,
// resolving and dispatching it when none exists. Errors raised before the
// task row exists are returned and leave no task behind. Failures after that
// are recorded on the task as status error.
func (o *Orchestrator) ResolveOrCreate(ctx context.Context, req ResolveRequest) (*Result, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	event, err := o.event(ctx, req)
	if err != nil {
		metrics.TaskRequested(string(req.Analysis), resultFailed)
		return nil, err
	}

	fp := models.Fingerprint{
		Latitude:  event.Latitude,
		Longitude: event.Longitude,
		EventType: event.Type,
		Analysis:  req.Analysis,
		Asset:     req.Asset,
	}

	v, err, shared := o.group.Do(fp.Key(), func() (any, error) {
		return o.resolveOrCreate(ctx, req, event, fp)
	})
	if err != nil {
		metrics.TaskRequested(string(req.Analysis), resultFailed)
		return nil, err
	}

	res := *v.(*Result)
	if shared {
		o.log.Debug("joined in-flight resolution", "fingerprint", fp.Key(), "task_id", res.Task.ID)
	}
	if res.Existing {
		metrics.TaskRequested(string(req.Analysis), resultExisting)
	} else {
		metrics.TaskRequested(string(req.Analysis), resultCreated)
	}
	return &res, nil
}

func (o *Orchestrator) resolveOrCreate(ctx context.Context, req ResolveRequest, event models.Event, fp models.Fingerprint) (*Result, error) {
	existing, err := o.repo.FindByFingerprint(ctx, fp)
	if err != nil {
		return nil, fmt.Errorf("error looking up fingerprint: %w", err)
	}
	if existing != nil {
		o.log.Info("task already exists", "task_id", existing.ID, "filename", existing.Filename, "status", existing.Status)
		return &Result{Task: existing, Existing: true}, nil
	}

	resolution, err := o.pipeline.Resolve(ctx, event, req.Analysis)
	noMatch := errors.Is(err, models.ErrNoMatchingAcquisitions) && resolution != nil
	if err != nil && !noMatch {
		return nil, err
	}

	task := o.newTask(req, event, resolution)
	if noMatch {
		task.Status = models.TaskStatusError
		task.LastError = err.Error()
	}

	if err := o.repo.Create(ctx, task); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			winner, ferr := o.repo.FindByFingerprint(ctx, fp)
			if ferr == nil && winner != nil {
				o.log.Info("lost creation race, returning existing task", "task_id", winner.ID)
				return &Result{Task: winner, Existing: true}, nil
			}
		}
		return nil, fmt.Errorf("error creating task: %w", err)
	}

	o.log.Info("task created",
		"task_id", task.ID,
		"filename", task.Filename,
		"status", task.Status,
		"user_id", task.UserID,
	)
	o.notify(task)

	if noMatch {
		o.log.Warn("task recorded without acquisitions", "task_id", task.ID, "error", task.LastError)
		return &Result{Task: task}, nil
	}

	o.dispatch(ctx, task)
	return &Result{Task: task}, nil
}

func validate(req *ResolveRequest) error {
	if req.EventID == "" {
		return fmt.Errorf("%w: event id is required", models.ErrMissingInput)
	}
	eventType, ok := models.ParseEventType(string(req.EventType))
	if !ok {
		return fmt.Errorf("%w: unknown event type %q", models.ErrMissingInput, req.EventType)
	}
	analysis, ok := models.ParseAnalysisType(string(req.Analysis))
	if !ok {
		return fmt.Errorf("%w: unknown analysis %q", models.ErrMissingInput, req.Analysis)
	}
	req.EventType, req.Analysis = eventType, analysis

	if req.Analysis != models.AnalysisDamageAssessment {
		req.Asset = ""
		return nil
	}
	switch req.Asset {
	case "buildings", "roads":
		return nil
	default:
		return fmt.Errorf("%w: damage assessment needs asset buildings or roads, got %q", models.ErrMissingInput, req.Asset)
	}
}

// event fills the request's event attributes, calling the event source only
// when location or time is missing.
func (o *Orchestrator) event(ctx context.Context, req ResolveRequest) (models.Event, error) {
	event := models.Event{
		ID:        req.EventID,
		Type:      req.EventType,
		Magnitude: req.Magnitude,
		Location:  req.Location,
		Country:   req.Country,
	}

	if req.Latitude == nil || req.Longitude == nil || req.Time == nil {
		found, err := o.events.Lookup(ctx, req.EventType, req.EventID)
		if err != nil {
			return models.Event{}, fmt.Errorf("error looking up %s %s: %w", req.EventType, req.EventID, err)
		}
		event = *found
		event.ID, event.Type = req.EventID, req.EventType
		if req.Magnitude != nil {
			event.Magnitude = req.Magnitude
		}
		if req.Location != "" {
			event.Location = req.Location
		}
		if req.Country != "" {
			event.Country = req.Country
		}
	}

	if req.Latitude != nil {
		event.Latitude = *req.Latitude
	}
	if req.Longitude != nil {
		event.Longitude = *req.Longitude
	}
	if req.Time != nil {
		event.Time = req.Time.UTC()
	}
	return event, nil
}

func (o *Orchestrator) newTask(req ResolveRequest, event models.Event, res *models.Resolution) *models.Task {
	now := o.now()
	return &models.Task{
		ID:             uuid.NewString(),
		EventID:        event.ID,
		EventType:      event.Type,
		Analysis:       req.Analysis,
		Asset:          req.Asset,
		Location:       event.Location,
		Country:        event.Country,
		Latitude:       event.Latitude,
		Longitude:      event.Longitude,
		Magnitude:      event.Magnitude,
		EventDate:      event.Time,
		StartDate:      res.StartDate,
		EndDate:        res.EndDate,
		AreaOfInterest: geo.ToWKT(res.AOI.Polygon),
		Filename:       models.TaskFilename(event.Type, event.ID, req.Analysis),
		Status:         models.TaskStatusProcessing,
		UserID:         req.UserID,
		Resolution:     res,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// UpdateStatus records the outcome of a processing run: processing moves to
// completed or error. The write is a compare-and-set on the current status,
// so concurrent callers racing to a terminal status see exactly one success.
// reason is stored as LastError for the error status and cleared otherwise.
// Returning a task to processing goes through Regenerate, which dispatches.
func (o *Orchestrator) UpdateStatus(ctx context.Context, taskID string, status models.TaskStatus, reason string) (*models.Task, error) {
	if !status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is only reachable through regenerate", models.ErrIllegalTransition, status)
	}

	task, err := o.repo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if err := o.transition(ctx, task, status, reason); err != nil {
		return nil, err
	}
	return task, nil
}

func (o *Orchestrator) transition(ctx context.Context, task *models.Task, to models.TaskStatus, reason string) error {
	from := task.Status
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", models.ErrIllegalTransition, from, to)
	}
	if to != models.TaskStatusError {
		reason = ""
	}

	ok, err := o.repo.UpdateStatus(ctx, task.ID, from, to, reason)
	if err != nil {
		return fmt.Errorf("error updating task status: %w", err)
	}
	if !ok {
		current, err := o.repo.GetByID(ctx, task.ID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: task moved to %s before %s -> %s", models.ErrIllegalTransition, current.Status, from, to)
	}

	task.Status = to
	task.LastError = reason
	task.UpdatedAt = o.now()
	metrics.StatusTransition(string(from), string(to))
	o.log.Info("task status changed", "task_id", task.ID, "from", from, "to", to)
	o.notify(task)
	return nil
}

// Regenerate moves a finished task back to processing and dispatches it
// again. The stored resolution is reused unless force is set or it cannot be
// processed (missing, or without the scenes and pairs the analysis needs),
// in which case the pipeline runs first. A failed re-resolution, including
// one that still matches nothing, leaves the task unchanged.
func (o *Orchestrator) Regenerate(ctx context.Context, taskID string, force bool) (*models.Task, error) {
	task, err := o.repo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(task.Status, models.TaskStatusProcessing) {
		return nil, fmt.Errorf("%w: task is already %s", models.ErrIllegalTransition, task.Status)
	}

	if force || !task.Resolution.Processable(task.Analysis) {
		res, err := o.pipeline.Resolve(ctx, task.Event(), task.Analysis)
		if err != nil {
			return nil, err
		}
		task.Resolution = res
		task.AreaOfInterest = geo.ToWKT(res.AOI.Polygon)
		task.StartDate, task.EndDate = res.StartDate, res.EndDate
		task.UpdatedAt = o.now()
		if err := o.repo.UpdateResolution(ctx, task); err != nil {
			return nil, err
		}
		o.log.Info("task re-resolved", "task_id", task.ID, "scenes", len(res.SceneIDs))
	}

	if err := o.transition(ctx, task, models.TaskStatusProcessing, ""); err != nil {
		return nil, err
	}

	o.dispatch(ctx, task)
	return task, nil
}

// dispatch publishes the task's job. A failure is recorded on the task.
func (o *Orchestrator) dispatch(ctx context.Context, task *models.Task) {
	if err := o.dispatcher.Dispatch(ctx, o.job(task)); err != nil {
		o.log.Error("dispatch failed", "task_id", task.ID, "error", err)
		if terr := o.transition(context.WithoutCancel(ctx), task, models.TaskStatusError, err.Error()); terr != nil {
			o.log.Error("error recording dispatch failure", "task_id", task.ID, "error", terr)
		}
	}
}

func (o *Orchestrator) job(task *models.Task) models.ProcessingJob {
	job := models.ProcessingJob{
		TaskID:    task.ID,
		EventID:   task.EventID,
		EventType: task.EventType,
		Analysis:  task.Analysis,
		Asset:     task.Asset,
		Output: models.OutputParams{
			Filename: task.Filename,
			Prefix:   path.Join(o.cfg.OutputPrefix, string(task.EventType), task.EventID),
		},
	}
	if res := task.Resolution; res != nil {
		job.PreScenes = res.Pre.SceneIDs
		job.PostScenes = res.Post.SceneIDs
		job.MatchedPairs = res.Matches
		job.SceneIDs = res.SceneIDs
		job.AreaOfInterest = res.AOI.Polygon
	}
	return job
}

func (o *Orchestrator) notify(task *models.Task) {
	if o.notifier == nil {
		return
	}
	o.notifier.Broadcast(&models.TaskEvent{
		TaskID:    task.ID,
		EventID:   task.EventID,
		Filename:  task.Filename,
		Status:    task.Status,
		Timestamp: o.now(),
	})
}

func (o *Orchestrator) Get(ctx context.Context, id string) (*models.Task, error) {
	return o.repo.GetByID(ctx, id)
}

func (o *Orchestrator) List(ctx context.Context, filter repository.Filter) ([]models.Task, error) {
	return o.repo.List(ctx, filter)
}

// Delete removes every task of an event and returns how many were removed.
func (o *Orchestrator) Delete(ctx context.Context, eventID string) (int64, error) {
	n, err := o.repo.DeleteByEventID(ctx, eventID)
	if err != nil {
		return 0, err
	}
	o.log.Info("tasks deleted", "event_id", eventID, "count", n)
	return n, nil
}
