// Package engine hands processing jobs to the processing engine.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/mr1hm/go-hazard-tasks/internal/logging"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

// Engine runs one processing job to completion. A nil error means the
// artifact was produced.
type Engine interface {
	Process(ctx context.Context, job models.ProcessingJob) error
}

// HTTP posts jobs to a remote processing engine.
type HTTP struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

func NewHTTP(url string, timeout time.Duration) *HTTP {
	return &HTTP{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
		log: logging.Component("engine"),
	}
}

func (e *HTTP) Process(ctx context.Context, job models.ProcessingJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("error encoding job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	e.log.Info("submitting job", "task_id", job.TaskID, "filename", job.Output.Filename, "scenes", len(job.SceneIDs))

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status code: %d - status: %s: %s", resp.StatusCode, resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}

// Noop logs jobs and reports success. It is used when no engine URL is set.
type Noop struct {
	log *slog.Logger
}

func NewNoop() *Noop {
	return &Noop{log: logging.Component("engine")}
}

func (e *Noop) Process(ctx context.Context, job models.ProcessingJob) error {
	e.log.Info("no engine configured, skipping job",
		"task_id", job.TaskID,
		"filename", job.Output.Filename,
		"prefix", job.Output.Prefix,
		"pre_scenes", len(job.PreScenes),
		"post_scenes", len(job.PostScenes),
		"pairs", len(job.MatchedPairs),
	)
	return nil
}
