// Package queue batches recipient payloads and hands them to the message
// queue, retrying partial failures a bounded number of times.
package queue

import (
	"context"
	"errors"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

var (
	// ErrThrottled marks a whole-call rejection that is worth retrying.
	ErrThrottled = errors.New("queue: throttled")
	// ErrInvalidBatch is returned for empty or oversized batches.
	ErrInvalidBatch = errors.New("queue: invalid batch size")
)

// Attributes travel with every message of a dispatch.
type Attributes struct {
	FromName string
	Subject  string
}

// EntryFailure describes one rejected entry of a batch call.
type EntryFailure struct {
	Index       int
	Code        string
	Message     string
	SenderFault bool
}

// Throttled reports whether the entry belongs to the slow-retry class.
func (f EntryFailure) Throttled() bool {
	return f.SenderFault || isThrottleCode(f.Code)
}

// BatchResult is the per-entry outcome of one batch call.
type BatchResult struct {
	Successful int
	Failed     []EntryFailure
}

// Transport sends one batch. Implementations must be safe for concurrent use.
type Transport interface {
	SendBatch(ctx context.Context, payloads []domain.RecipientPayload, attrs Attributes) (*BatchResult, error)
	MaxBatchSize() int
}

var throttleCodes = map[string]bool{
	"ThrottlingException":                    true,
	"Throttling":                             true,
	"RequestThrottled":                       true,
	"AWS.SimpleQueueService.RequestThrottled": true,
	"RequestLimitExceeded":                   true,
}

func isThrottleCode(code string) bool {
	return throttleCodes[code]
}
