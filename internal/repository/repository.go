package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

// ErrDuplicate is returned by Create when a task with the same id or
// fingerprint already exists.
var ErrDuplicate = errors.New("duplicate task")

type Filter struct {
	Limit     int
	Offset    int
	Since     *time.Time // created at or after
	EventID   string
	EventType *models.EventType
	Analysis  *models.AnalysisType
	Status    *models.TaskStatus
	UserID    string
}

type TaskRepository interface {
	Create(ctx context.Context, t *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	// FindByFingerprint returns nil, nil when no task matches.
	FindByFingerprint(ctx context.Context, fp models.Fingerprint) (*models.Task, error)
	List(ctx context.Context, opts Filter) ([]models.Task, error)
	// UpdateStatus moves a task from one status to another only if it is
	// still in from. It reports whether the row changed.
	UpdateStatus(ctx context.Context, id string, from, to models.TaskStatus, lastError string) (bool, error)
	UpdateResolution(ctx context.Context, t *models.Task) error
	DeleteByEventID(ctx context.Context, eventID string) (int64, error)
}
