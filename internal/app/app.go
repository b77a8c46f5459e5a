// Package app assembles the dispatch pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dispatch/internal/audience"
	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/failures"
	"github.com/ignite/campaign-dispatch/internal/linktoken"
	"github.com/ignite/campaign-dispatch/internal/pkg/dbconn"
	"github.com/ignite/campaign-dispatch/internal/pkg/distlock"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/queue"
	"github.com/ignite/campaign-dispatch/internal/repository/postgres"
	"github.com/ignite/campaign-dispatch/internal/service/campaign"
	"github.com/ignite/campaign-dispatch/internal/tracking"
)

// ErrMissingQueueURL is returned when no destination queue is configured.
var ErrMissingQueueURL = errors.New("SQS_QUEUE_URL is required")

// App owns the long-lived resources of one process.
type App struct {
	Service *campaign.Service
	DB      *dbconn.Manager
	Redis   *redis.Client
}

// ConfigureLogging applies the log section of cfg.
func ConfigureLogging(cfg *config.Config) {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.ShouldRedact())
}

// New builds the service graph. The database is not contacted here; the
// first dispatch establishes the connection.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.Queue.URL == "" {
		return nil, ErrMissingQueueURL
	}

	codec, err := linktoken.NewCodec(cfg.Tokens.UnsubscribeSecret, cfg.Tokens.ForwardSecret, cfg.Tokens.TTL())
	if err != nil {
		return nil, err
	}

	db, err := dbconn.Open(cfg.Database.URL, dbconn.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute,
	}, cfg.Database.RetryDelay())
	if err != nil {
		return nil, err
	}

	cc := queue.ClientConfig{
		Region:          cfg.Queue.Region,
		AccessKey:       cfg.Queue.AccessKey,
		SecretKey:       cfg.Queue.SecretKey,
		Endpoint:        cfg.Queue.Endpoint,
		MaxConnsPerHost: cfg.Queue.MaxConnsPerHost,
		Timeout:         cfg.Queue.Timeout(),
		MaxAttempts:     cfg.Queue.SDKMaxAttempts,
	}
	awsCfg, err := queue.LoadAWSConfig(ctx, cc)
	if err != nil {
		db.Close()
		return nil, err
	}

	rdb := connectRedis(ctx, cfg.Redis.URL)

	contacts := postgres.NewContactRepo(db.DB())
	svc := campaign.NewService(campaign.Deps{
		Repo:         postgres.NewCampaignRepo(db.DB()),
		Resolver:     audience.NewResolver(contacts, cfg.Dispatch.ChunkSize),
		Tokens:       codec,
		Failures:     failures.NewSink(postgres.NewFailedMessageRepo(db.DB())),
		NewTransport: transportFactory(awsCfg, cc, cfg.Queue.URL),
		Conn:         db,
		Locks:        distlock.NewFactory(rdb, db.DB()),
	}, campaign.Config{
		BaseURL:   cfg.Tracking.ServerURL,
		Brand:     tracking.DefaultBrand,
		BatchSize: cfg.Dispatch.BatchSize,
		Retry: queue.RetryPolicy{
			MaxRetries:      cfg.Dispatch.Retries(),
			ThrottleBackoff: time.Duration(cfg.Dispatch.ThrottleBackoffMs) * time.Millisecond,
			PartialBackoff:  time.Duration(cfg.Dispatch.PartialBackoffMs) * time.Millisecond,
			CallBackoff:     time.Duration(cfg.Dispatch.CallBackoffMs) * time.Millisecond,
		},
		SweepLimit: cfg.Schedule.SweepLimit,
		SweepPause: cfg.Schedule.Pause(),
		LockTTL:    cfg.Schedule.LockTTL(),
	})

	return &App{Service: svc, DB: db, Redis: rdb}, nil
}

// transportFactory gives every run its own client and connection pool.
func transportFactory(awsCfg aws.Config, cc queue.ClientConfig, queueURL string) campaign.TransportFactory {
	return func(context.Context) (queue.Transport, error) {
		return queue.NewSQSTransport(queue.NewSQSClient(awsCfg, cc), queueURL), nil
	}
}

// connectRedis returns nil when Redis is unset or unreachable, in which case
// sweep locks fall back to Postgres advisory locks.
func connectRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		logger.Info("redis not configured, using advisory locks")
		return nil
	}
	opts, err := redis.ParseURL(url)
	var rdb *redis.Client
	if err != nil {
		rdb = redis.NewClient(&redis.Options{Addr: url})
	} else {
		rdb = redis.NewClient(opts)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, using advisory locks", "error", err)
		rdb.Close()
		return nil
	}
	return rdb
}

// Close releases the pool and the Redis client.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}
