package catalog

import (
	"context"

	"github.com/mr1hm/go-hazard-tasks/internal/breaker"
	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

// BreakerClient wraps a Client with a circuit breaker so a failing catalog
// is not hammered by every task request.
type BreakerClient struct {
	client Client
	cb     *breaker.Breaker
}

func NewBreakerClient(client Client, cb *breaker.Breaker) *BreakerClient {
	return &BreakerClient{client: client, cb: cb}
}

func (b *BreakerClient) Search(ctx context.Context, params SearchParams) ([]models.CandidateScene, error) {
	return breaker.Do(b.cb, func() ([]models.CandidateScene, error) {
		return b.client.Search(ctx, params)
	})
}

func (b *BreakerClient) Stack(ctx context.Context, sceneID string) ([]models.StackEntry, error) {
	return breaker.Do(b.cb, func() ([]models.StackEntry, error) {
		return b.client.Stack(ctx, sceneID)
	})
}
