package campaign

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/distlock"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/tracking"
)

// DefaultSweepLimit caps the scheduled sends handled per sweep.
const DefaultSweepLimit = 10

// SweepReport summarizes one sweep. Abandoned records are also counted in Failed.
type SweepReport struct {
	Considered int                     `json:"considered"`
	Dispatched int                     `json:"dispatched"`
	Skipped    int                     `json:"skipped"`
	Failed     int                     `json:"failed"`
	Abandoned  int                     `json:"abandoned"`
	Results    []domain.DispatchResult `json:"results"`
}

// SweepScheduled dispatches in-progress scheduled sends whose time has passed
// or is unset, then marks each record and its campaign as queued.
func (s *Service) SweepScheduled(ctx context.Context) (*SweepReport, error) {
	return s.sweep(ctx, false, true)
}

// SweepDue dispatches strictly past-due scheduled sends and leaves the status
// of dispatched records untouched.
//
// Both sweeps move a record that can never be dispatched (missing campaign,
// invalid request, unusable HTML) to failed so it stops taking a slot.
func (s *Service) SweepDue(ctx context.Context) (*SweepReport, error) {
	return s.sweep(ctx, true, false)
}

func (s *Service) sweep(ctx context.Context, strict, transition bool) (*SweepReport, error) {
	if s.conn != nil {
		if err := s.conn.EnsureConnected(ctx); err != nil {
			return nil, fmt.Errorf("connect store: %w", err)
		}
	}

	records, err := s.repo.ListScheduled(ctx, ScheduledFilter{
		Now:          s.now().UTC(),
		StrictlyPast: strict,
		Limit:        s.cfg.SweepLimit,
	})
	if err != nil {
		s.noteStoreError(err)
		return nil, fmt.Errorf("list scheduled sends: %w", err)
	}
	if len(records) > s.cfg.SweepLimit {
		records = records[:s.cfg.SweepLimit]
	}

	report := &SweepReport{Considered: len(records)}
	for i, rec := range records {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.SweepPause); err != nil {
				return report, err
			}
		}

		res, err := s.runScheduled(ctx, rec, transition)
		switch {
		case errors.Is(err, errLocked), errors.Is(err, errAlreadySent):
			report.Skipped++
			logger.Info("scheduled send skipped", "scheduled_id", rec.ID, "campaign_id", rec.CampaignID, "reason", err)
		case errors.Is(err, errAbandoned):
			report.Failed++
			report.Abandoned++
			logger.Error("scheduled send abandoned", "scheduled_id", rec.ID, "campaign_id", rec.CampaignID, "error", err)
		case err != nil:
			report.Failed++
			logger.Error("scheduled send failed", "scheduled_id", rec.ID, "campaign_id", rec.CampaignID, "error", err)
		default:
			report.Dispatched++
			report.Results = append(report.Results, *res)
		}
	}

	logger.Info("sweep finished", "strict", strict, "considered", report.Considered,
		"dispatched", report.Dispatched, "skipped", report.Skipped, "failed", report.Failed,
		"abandoned", report.Abandoned)
	return report, nil
}

var (
	errLocked      = errors.New("scheduled send is locked by another sweep")
	errAlreadySent = errors.New("campaign already queued")
	errAbandoned   = errors.New("scheduled send cannot be dispatched")
)

// permanent reports whether retrying the same record can never succeed.
func permanent(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) || errors.Is(err, tracking.ErrContentPreparation)
}

func (s *Service) runScheduled(ctx context.Context, rec domain.ScheduledSend, transition bool) (*domain.DispatchResult, error) {
	// A started record runs to the end even if the sweep is stopped.
	ctx = context.WithoutCancel(ctx)

	if s.locks != nil {
		lock := s.locks.NewLock("scheduled-send:"+rec.ID, s.cfg.LockTTL)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return nil, errLocked
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				logger.Warn("release scheduled send lock", "scheduled_id", rec.ID, "error", err)
			}
		}()
		stop := distlock.KeepAlive(ctx, lock, s.cfg.LockTTL)
		defer stop()
	}

	c, err := s.repo.GetCampaign(ctx, rec.CampaignID)
	if errors.Is(err, ErrNotFound) {
		return nil, s.abandon(ctx, rec, nil, err)
	}
	if err != nil {
		s.noteStoreError(err)
		return nil, fmt.Errorf("load campaign %s: %w", rec.CampaignID, err)
	}

	if c.IsTerminal() {
		if transition {
			if err := s.repo.MarkScheduledQueued(ctx, rec.ID); err != nil && !errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("mark scheduled send queued: %w", err)
			}
		}
		return nil, errAlreadySent
	}

	res, err := s.Dispatch(ctx, requestForScheduled(rec, c))
	if err != nil {
		if permanent(err) {
			return nil, s.abandon(ctx, rec, c, err)
		}
		return nil, err
	}
	if !transition {
		return res, nil
	}

	// The campaign goes first: if the record update fails, the next sweep
	// sees a queued campaign and does not send it again.
	if err := s.repo.UpdateCampaignStatus(ctx, c.ID, domain.CampaignQueued); err != nil {
		return nil, fmt.Errorf("mark campaign queued: %w", err)
	}
	if err := s.repo.MarkScheduledQueued(ctx, rec.ID); err != nil {
		return nil, fmt.Errorf("mark scheduled send queued: %w", err)
	}
	return res, nil
}

// abandon moves rec, and c when known, to failed. Store errors are logged;
// the record is then retried by a later sweep.
func (s *Service) abandon(ctx context.Context, rec domain.ScheduledSend, c *domain.Campaign, cause error) error {
	if err := s.repo.MarkScheduledFailed(ctx, rec.ID); err != nil {
		logger.Error("mark scheduled send failed", "scheduled_id", rec.ID, "error", err)
	}
	if c != nil {
		if err := s.repo.UpdateCampaignStatus(ctx, c.ID, domain.CampaignFailed); err != nil {
			logger.Error("mark campaign failed", "campaign_id", c.ID, "error", err)
		}
	}
	return fmt.Errorf("%w: %w", errAbandoned, cause)
}

func requestForScheduled(rec domain.ScheduledSend, c *domain.Campaign) Request {
	var spec domain.AudienceSpec = domain.Groups{GroupIDs: rec.GroupIDs}
	if rec.AllContacts {
		spec = domain.AllContacts{}
	}
	userID := rec.UserID
	if userID == "" {
		userID = c.UserID
	}
	return Request{
		CampaignID:  c.ID,
		HTMLContent: c.HTMLContent,
		UserID:      userID,
		StatsID:     rec.StatsID,
		FromName:    rec.FromName,
		Subject:     rec.Subject,
		Audience:    spec,
	}
}
