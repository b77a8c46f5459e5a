package campaign

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/audience"
	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/failures"
	"github.com/ignite/campaign-dispatch/internal/pkg/dbconn"
	"github.com/ignite/campaign-dispatch/internal/pkg/distlock"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/queue"
	"github.com/ignite/campaign-dispatch/internal/tracking"
)

// Request is one dispatch trigger.
type Request struct {
	CampaignID  string              `json:"campaignId" validate:"required"`
	HTMLContent string              `json:"htmlContent" validate:"required"`
	UserID      string              `json:"userId" validate:"required"`
	StatsID     string              `json:"statsId" validate:"required"`
	FromName    string              `json:"fromName" validate:"required"`
	Subject     string              `json:"subject" validate:"required"`
	Audience    domain.AudienceSpec `json:"audience" validate:"required"`
}

// Target is the immutable description of the run.
func (r Request) Target() domain.DispatchTarget {
	return domain.DispatchTarget{
		CampaignID: r.CampaignID,
		UserID:     r.UserID,
		StatsID:    r.StatsID,
		FromName:   r.FromName,
		Subject:    r.Subject,
		Audience:   r.Audience,
	}
}

// Connector verifies the store is reachable before a run and is told when a
// store call lost its connection.
type Connector interface {
	EnsureConnected(ctx context.Context) error
	MarkDisconnected()
}

// TransportFactory builds the queue transport for one run.
type TransportFactory func(ctx context.Context) (queue.Transport, error)

// LockFactory creates per-record locks for sweeps.
type LockFactory interface {
	NewLock(key string, ttl time.Duration) distlock.DistLock
}

// Config holds run tuning.
type Config struct {
	BaseURL    string
	Brand      tracking.Brand
	BatchSize  int
	Retry      queue.RetryPolicy
	SweepLimit int
	SweepPause time.Duration
	LockTTL    time.Duration
}

// Deps are the collaborators of the service. Conn and Locks are optional.
type Deps struct {
	Repo         Repository
	Resolver     *audience.Resolver
	Tokens       tracking.TokenIssuer
	Failures     *failures.Sink
	NewTransport TransportFactory
	Conn         Connector
	Locks        LockFactory
}

// Service implements campaign dispatch. Runs share nothing but the
// collaborators in Deps, so concurrent Dispatch calls are safe when those are.
type Service struct {
	repo         Repository
	resolver     *audience.Resolver
	tokens       tracking.TokenIssuer
	sink         *failures.Sink
	newTransport TransportFactory
	conn         Connector
	locks        LockFactory
	cfg          Config

	validate *validator.Validate
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewService creates a campaign service from its collaborators.
func NewService(deps Deps, cfg Config) *Service {
	if cfg.BatchSize <= 0 || cfg.BatchSize > queue.MaxBatchSize {
		cfg.BatchSize = queue.MaxBatchSize
	}
	if cfg.SweepLimit <= 0 || cfg.SweepLimit > DefaultSweepLimit {
		cfg.SweepLimit = DefaultSweepLimit
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	return &Service{
		repo:         deps.Repo,
		resolver:     deps.Resolver,
		tokens:       deps.Tokens,
		sink:         deps.Failures,
		newTransport: deps.NewTransport,
		conn:         deps.Conn,
		locks:        deps.Locks,
		cfg:          cfg,
		validate:     v,
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

func (s *Service) validateRequest(req Request) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{}
	}
	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		verr.Fields = append(verr.Fields, fe.Field())
	}
	return verr
}

func (s *Service) transition(run *runState, next State) {
	from := run.state
	if err := run.moveTo(next); err != nil {
		logger.Error("run state", "run_id", run.id, "campaign_id", run.campaignID, "error", err)
		return
	}
	logger.Info("run state", "run_id", run.id, "campaign_id", run.campaignID, "from", string(from), "to", string(next))
}

// Dispatch runs one campaign to completion. Validation failures return a
// *ValidationError before anything is read or sent. Content that cannot be
// prepared returns tracking.ErrContentPreparation. Once dispatching starts,
// per-chunk problems are folded into the result instead of returned.
//
// A run is not cancellable from outside: cancellation of ctx is ignored, its
// values are kept.
func (s *Service) Dispatch(ctx context.Context, req Request) (*domain.DispatchResult, error) {
	ctx = context.WithoutCancel(ctx)
	start := s.now()
	run := &runState{id: uuid.NewString(), campaignID: req.CampaignID, state: StateIdle}

	s.transition(run, StateValidating)
	if err := s.validateRequest(req); err != nil {
		s.transition(run, StateAborted)
		return nil, err
	}

	logger.Info("starting campaign send", "run_id", run.id, "campaign_id", req.CampaignID,
		"user_id", req.UserID, "mode", req.Audience.Mode())

	base, err := tracking.PrepareBase(req.HTMLContent)
	if err != nil {
		s.transition(run, StateAborted)
		return nil, err
	}

	if s.conn != nil {
		if err := s.conn.EnsureConnected(ctx); err != nil {
			s.transition(run, StateAborted)
			return nil, fmt.Errorf("connect store: %w", err)
		}
	}

	s.transition(run, StateResolving)
	target := req.Target()
	aud, err := s.resolver.Resolve(ctx, target)
	if err != nil {
		s.noteStoreError(err)
		s.transition(run, StateAborted)
		return nil, fmt.Errorf("resolve audience: %w", err)
	}

	result := &domain.DispatchResult{
		Success:         true,
		CampaignID:      req.CampaignID,
		TotalRecipients: aud.Total(),
	}
	if aud.Empty() {
		result.Message = aud.Status().Message()
		result.DurationMs = s.now().Sub(start).Milliseconds()
		logger.Warn("nothing to send", "run_id", run.id, "campaign_id", req.CampaignID, "reason", result.Message)
		s.transition(run, StateCompleted)
		return result, nil
	}

	if s.newTransport == nil {
		s.transition(run, StateAborted)
		return nil, ErrNoTransport
	}
	transport, err := s.newTransport(ctx)
	if err != nil {
		s.transition(run, StateAborted)
		return nil, fmt.Errorf("create queue transport: %w", err)
	}
	rewriter, err := tracking.NewRewriter(s.cfg.BaseURL, s.tokens, start, s.cfg.Brand)
	if err != nil {
		s.transition(run, StateAborted)
		return nil, err
	}

	s.transition(run, StateDispatching)
	s.dispatchChunks(ctx, run, target, base, aud, rewriter, queue.NewDispatcher(transport, s.cfg.Retry), result)

	result.DurationMs = s.now().Sub(start).Milliseconds()
	logger.Info("campaign processing completed", "run_id", run.id, "campaign_id", req.CampaignID,
		"success", result.Success, "total", result.TotalRecipients, "processed", result.ProcessedCount,
		"failed", result.FailedCount, "duration_ms", result.DurationMs)
	s.transition(run, StateCompleted)
	return result, nil
}

func (s *Service) dispatchChunks(ctx context.Context, run *runState, target domain.DispatchTarget, base string,
	aud *audience.Audience, rewriter *tracking.Rewriter, dispatcher *queue.Dispatcher, result *domain.DispatchResult) {

	attrs := queue.Attributes{FromName: target.FromName, Subject: target.Subject}

	for chunkIndex := 0; ; chunkIndex++ {
		emails, ok, err := aud.Next(ctx)
		if err != nil {
			s.noteStoreError(err)
			result.Success = false
			result.Message = "audience read failed"
			logger.Error("audience read failed, ending run", "run_id", run.id, "campaign_id", target.CampaignID,
				"chunk", chunkIndex, "error", err)
			return
		}
		if !ok {
			return
		}
		if len(emails) == 0 {
			continue
		}

		payloads := make([]domain.RecipientPayload, len(emails))
		for i, email := range emails {
			payloads[i] = domain.RecipientPayload{
				Email: email,
				HTML:  rewriter.Rewrite(base, email, target.StatsID, target.CampaignID),
			}
		}

		chunkStart := s.now()
		undelivered, err := dispatcher.DispatchAll(ctx, queue.Batch(payloads, s.cfg.BatchSize), attrs)
		if err != nil {
			result.FailedCount += len(payloads)
			logger.Error("chunk processing failed", "run_id", run.id, "campaign_id", target.CampaignID,
				"chunk", chunkIndex, "error", err)
			continue
		}

		result.ProcessedCount += len(payloads) - len(undelivered)
		result.FailedCount += len(undelivered)
		if len(undelivered) > 0 {
			logger.Warn("some messages failed to send after retries", "run_id", run.id,
				"campaign_id", target.CampaignID, "chunk", chunkIndex, "failed_count", len(undelivered),
				"total_count", len(payloads), "duration_ms", s.now().Sub(chunkStart).Milliseconds())
			if s.sink != nil {
				s.sink.RecordFailures(ctx, target.CampaignID, undelivered)
			}
		}
	}
}

// noteStoreError makes the next run ping the store again after a lost connection.
func (s *Service) noteStoreError(err error) {
	if s.conn != nil && dbconn.IsConnectionLoss(err) {
		logger.Warn("store connection lost", "error", err)
		s.conn.MarkDisconnected()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
