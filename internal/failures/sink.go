// Package failures persists payloads that the queue refused after retries so
// they can be replayed later.
package failures

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// Store appends failed messages. Records are never updated.
type Store interface {
	InsertFailed(ctx context.Context, msgs []domain.FailedMessage) error
}

// Sink records failures on a best-effort basis: storage errors are logged
// and never reach the caller.
type Sink struct {
	store Store
	now   func() time.Time

	recorded atomic.Int64
	dropped  atomic.Int64
}

// NewSink wraps store.
func NewSink(store Store) *Sink {
	return &Sink{store: store, now: time.Now}
}

// RecordFailures stores one record per payload, all stamped with the same time.
func (s *Sink) RecordFailures(ctx context.Context, campaignID string, payloads []domain.RecipientPayload) {
	if len(payloads) == 0 {
		return
	}

	now := s.now().UTC()
	msgs := make([]domain.FailedMessage, len(payloads))
	for i, p := range payloads {
		msgs[i] = domain.FailedMessage{CampaignID: campaignID, Payload: p, CreatedAt: now}
	}

	if err := s.store.InsertFailed(ctx, msgs); err != nil {
		s.dropped.Add(int64(len(msgs)))
		logger.Error("failed to store failed messages",
			"campaign_id", campaignID, "failed_count", len(msgs), "error", err)
		return
	}
	s.recorded.Add(int64(len(msgs)))
}

// Stats returns cumulative counters.
func (s *Sink) Stats() map[string]int64 {
	return map[string]int64{
		"recorded": s.recorded.Load(),
		"dropped":  s.dropped.Load(),
	}
}
