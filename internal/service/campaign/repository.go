package campaign

import (
	"context"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// Repository defines the data access contract for campaigns and their
// scheduled sends. Implementations must be safe for concurrent use.
type Repository interface {
	// GetCampaign returns a single campaign. Returns ErrNotFound if it doesn't exist.
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)

	// UpdateCampaignStatus sets a campaign's status. Returns ErrNotFound if no row changed.
	UpdateCampaignStatus(ctx context.Context, id string, status domain.CampaignStatus) error

	// ListScheduled returns in-progress scheduled sends that are due,
	// oldest first, at most filter.Limit of them.
	ListScheduled(ctx context.Context, filter ScheduledFilter) ([]domain.ScheduledSend, error)

	// MarkScheduledQueued moves a scheduled send from in_progress to queued.
	MarkScheduledQueued(ctx context.Context, id string) error

	// MarkScheduledFailed moves a scheduled send from in_progress to failed.
	MarkScheduledFailed(ctx context.Context, id string) error
}

// ScheduledFilter selects due scheduled sends.
type ScheduledFilter struct {
	Now time.Time
	// StrictlyPast excludes records without a scheduled time.
	StrictlyPast bool
	Limit        int
}
