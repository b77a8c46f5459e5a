package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// RetryPolicy bounds the resend loop of one batch.
type RetryPolicy struct {
	MaxRetries      int
	ThrottleBackoff time.Duration // partial failure with a throttled entry
	PartialBackoff  time.Duration // partial failure otherwise
	CallBackoff     time.Duration // whole call throttled
}

// DefaultRetryPolicy is two retries with 200/50/100ms pauses.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      2,
	ThrottleBackoff: 200 * time.Millisecond,
	PartialBackoff:  50 * time.Millisecond,
	CallBackoff:     100 * time.Millisecond,
}

// Dispatcher sends all batches of a chunk at once and collects what could
// not be delivered.
type Dispatcher struct {
	transport Transport
	policy    RetryPolicy

	sent        atomic.Int64
	undelivered atomic.Int64
	retries     atomic.Int64
}

// NewDispatcher creates a Dispatcher over transport.
func NewDispatcher(transport Transport, policy RetryPolicy) *Dispatcher {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Dispatcher{transport: transport, policy: policy}
}

// DispatchAll sends every batch concurrently. It returns the payloads still
// undelivered after retries, each exactly once. A context that ends during a
// backoff stops retrying and counts the rest as undelivered. An error means a
// batch hit a non-retryable transport failure; the caller should treat the
// chunk as failed.
func (d *Dispatcher) DispatchAll(ctx context.Context, batches [][]domain.RecipientPayload, attrs Attributes) ([]domain.RecipientPayload, error) {
	var (
		g           errgroup.Group
		mu          sync.Mutex
		undelivered []domain.RecipientPayload
	)

	for _, batch := range batches {
		if len(batch) == 0 {
			continue
		}
		batch := batch
		g.Go(func() error {
			left, err := d.sendBatch(ctx, batch, attrs)
			if err != nil {
				return err
			}
			if len(left) > 0 {
				mu.Lock()
				undelivered = append(undelivered, left...)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return undelivered, err
	}
	return undelivered, nil
}

func (d *Dispatcher) sendBatch(ctx context.Context, batch []domain.RecipientPayload, attrs Attributes) ([]domain.RecipientPayload, error) {
	pending := batch
	for attempt := 0; ; attempt++ {
		res, err := d.transport.SendBatch(ctx, pending, attrs)
		if err != nil {
			if !errors.Is(err, ErrThrottled) {
				return nil, err
			}
			if attempt >= d.policy.MaxRetries {
				d.undelivered.Add(int64(len(pending)))
				logger.Warn("batch throttled, retries exhausted", "entries", len(pending), "attempts", attempt+1)
				return pending, nil
			}
			if err := d.wait(ctx, d.policy.CallBackoff); err != nil {
				return d.giveUp(pending, err), nil
			}
			continue
		}

		failed := failedSubset(pending, res.Failed)
		d.sent.Add(int64(len(pending) - len(failed)))
		if len(failed) == 0 {
			return nil, nil
		}
		if attempt >= d.policy.MaxRetries {
			d.undelivered.Add(int64(len(failed)))
			return failed, nil
		}

		backoff := d.policy.PartialBackoff
		for _, f := range res.Failed {
			if f.Throttled() {
				backoff = d.policy.ThrottleBackoff
				break
			}
		}
		if err := d.wait(ctx, backoff); err != nil {
			return d.giveUp(failed, err), nil
		}
		pending = failed
	}
}

// giveUp ends the retry loop early. The remaining payloads are reported as
// undelivered so they reach the failure sink.
func (d *Dispatcher) giveUp(left []domain.RecipientPayload, cause error) []domain.RecipientPayload {
	d.undelivered.Add(int64(len(left)))
	logger.Warn("batch retry interrupted", "entries", len(left), "error", cause)
	return left
}

// failedSubset maps failures back to payloads, once per index and in batch order.
func failedSubset(pending []domain.RecipientPayload, failures []EntryFailure) []domain.RecipientPayload {
	if len(failures) == 0 {
		return nil
	}
	hit := make([]bool, len(pending))
	for _, f := range failures {
		if f.Index >= 0 && f.Index < len(pending) {
			hit[f.Index] = true
		}
	}
	out := make([]domain.RecipientPayload, 0, len(failures))
	for i, p := range pending {
		if hit[i] {
			out = append(out, p)
		}
	}
	return out
}

func (d *Dispatcher) wait(ctx context.Context, delay time.Duration) error {
	d.retries.Add(1)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Stats returns cumulative counters.
func (d *Dispatcher) Stats() map[string]int64 {
	return map[string]int64{
		"sent":        d.sent.Load(),
		"undelivered": d.undelivered.Load(),
		"retries":     d.retries.Load(),
	}
}
