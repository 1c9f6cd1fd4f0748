// Package dispatch moves processing jobs from the orchestrator to the
// processing engine through a watermill topic.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/mr1hm/go-hazard-tasks/internal/logging"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

const (
	Topic = "tasks.dispatch"

	metadataTaskID = "task_id"
)

// NewGoChannel returns the in-process pub/sub used between the API and the
// runner. Messages published while nobody is subscribed are dropped, so the
// runner must be started first.
func NewGoChannel(buffer int64) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: buffer},
		watermill.NewSlogLogger(logging.Component("watermill")),
	)
}

type Publisher struct {
	pub message.Publisher
	log *slog.Logger
}

func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{
		pub: pub,
		log: logging.Component("dispatch"),
	}
}

// Dispatch publishes a job. It returns once the message is handed to the
// pub/sub, not when the job finishes.
func (p *Publisher) Dispatch(ctx context.Context, job models.ProcessingJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("error encoding job: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataTaskID, job.TaskID)
	msg.SetContext(context.WithoutCancel(ctx))

	if err := p.pub.Publish(Topic, msg); err != nil {
		return fmt.Errorf("error publishing job for task %s: %w", job.TaskID, err)
	}

	p.log.Debug("job dispatched", "task_id", job.TaskID, "message_uuid", msg.UUID)
	return nil
}
