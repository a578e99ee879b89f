// Package inbox keeps a viewer's pending and accepted connection requests,
// partitioned by category, in step with the service.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"go.uber.org/zap"
)

type RequestAPI interface {
	ListPending(ctx context.Context) (models.RequestPartitions, error)
	ListAccepted(ctx context.Context) (models.RequestPartitions, error)
	Accept(ctx context.Context, requestID string) (*models.RequestView, error)
}

type Inbox struct {
	api RequestAPI
	log *zap.Logger

	mu       sync.RWMutex
	pending  models.RequestPartitions
	accepted models.RequestPartitions
}

func New(api RequestAPI, log *zap.Logger) *Inbox {
	if log == nil {
		log = zap.NewNop()
	}
	return &Inbox{
		api:      api,
		log:      log,
		pending:  models.NewRequestPartitions(),
		accepted: models.NewRequestPartitions(),
	}
}

// Refresh reloads both partitions. Nothing changes unless both loads succeed.
func (i *Inbox) Refresh(ctx context.Context) error {
	pending, err := i.api.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	accepted, err := i.api.ListAccepted(ctx)
	if err != nil {
		return fmt.Errorf("list accepted: %w", err)
	}

	i.mu.Lock()
	i.pending = clonePartitions(pending)
	i.accepted = clonePartitions(accepted)
	i.mu.Unlock()
	return nil
}

func (i *Inbox) Pending() models.RequestPartitions {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return clonePartitions(i.pending)
}

func (i *Inbox) Accepted() models.RequestPartitions {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return clonePartitions(i.accepted)
}

// Accept asks the service to accept a pending request and then moves it to
// the accepted partition in one step, carrying the service's acceptance
// stamp. On failure both partitions are left as they were, except when the
// request was already accepted elsewhere: then both are reloaded so it
// leaves pending with the stored stamp.
func (i *Inbox) Accept(ctx context.Context, requestID string) (*models.RequestView, error) {
	i.mu.RLock()
	local, ok := find(i.pending, requestID)
	i.mu.RUnlock()
	if !ok {
		return nil, models.ErrNotFound
	}

	accepted, err := i.api.Accept(ctx, requestID)
	if err != nil {
		i.log.Warn("accept request",
			zap.String("request_id", requestID),
			zap.Bool("retryable", models.Retryable(err)),
			zap.Error(err),
		)
		if errors.Is(err, models.ErrAlreadyAccepted) {
			if refreshErr := i.Refresh(ctx); refreshErr != nil {
				i.log.Warn("refresh after accept conflict",
					zap.String("request_id", requestID),
					zap.Error(refreshErr),
				)
			}
		}
		return nil, err
	}

	view := local
	view.Status = models.RequestAccepted
	view.AcceptedDate = accepted.AcceptedDate
	view.AcceptedTime = accepted.AcceptedTime
	if accepted.CounterpartName != "" {
		view.CounterpartName = accepted.CounterpartName
	}

	i.mu.Lock()
	i.pending = without(i.pending, requestID)
	if _, exists := find(i.accepted, requestID); !exists {
		i.accepted.Add(view)
	}
	i.mu.Unlock()
	return &view, nil
}

func find(partitions models.RequestPartitions, id string) (models.RequestView, bool) {
	for _, category := range models.Categories {
		for _, view := range partitions.Get(category) {
			if view.ID == id {
				return view, true
			}
		}
	}
	return models.RequestView{}, false
}

func without(partitions models.RequestPartitions, id string) models.RequestPartitions {
	out := models.NewRequestPartitions()
	for _, category := range models.Categories {
		for _, view := range partitions.Get(category) {
			if view.ID != id {
				out.Add(view)
			}
		}
	}
	return out
}

func clonePartitions(partitions models.RequestPartitions) models.RequestPartitions {
	return without(partitions, "")
}
