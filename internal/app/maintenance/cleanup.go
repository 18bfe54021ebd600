package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/sessiongate/pkg/logger"
)

const (
	defaultSessionSpec = "@every 5m"
	defaultCacheSpec   = "@hourly"
	defaultJobTimeout  = time.Minute
)

// SessionSweeper deactivates sessions whose expiry has passed.
type SessionSweeper interface {
	CleanupExpiredSessions(ctx context.Context) (int64, error)
}

// CachePurger removes expired entries from the database-backed cache.
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Cleaner coordinates background maintenance tasks: the expired session sweep
// and the purge of stale cache rows.
type Cleaner struct {
	sessions SessionSweeper
	cache    CachePurger
	cron     *cron.Cron
	log      *zap.Logger
	timeout  time.Duration

	sessionSchedule string
	cacheSchedule   string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSessionSchedule overrides the cron expression for the session sweep.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron expression for the cache purge.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// WithJobTimeout bounds each scheduled run.
func WithJobTimeout(timeout time.Duration) Option {
	return func(cleaner *Cleaner) {
		if timeout > 0 {
			cleaner.timeout = timeout
		}
	}
}

// WithLogger overrides the maintenance logger.
func WithLogger(log *zap.Logger) Option {
	return func(cleaner *Cleaner) {
		if log != nil {
			cleaner.log = log
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil dependency
// skips the corresponding job.
func NewCleaner(sessions SessionSweeper, cache CachePurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessions:        sessions,
		cache:           cache,
		timeout:         defaultJobTimeout,
		sessionSchedule: defaultSessionSpec,
		cacheSchedule:   defaultCacheSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	if c.sessions == nil && c.cache == nil {
		return nil
	}

	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, c.scheduled("session sweep", c.sweepSessions)); err != nil {
			return err
		}
	}

	if c.cache != nil {
		if _, err := c.cron.AddFunc(c.cacheSchedule, c.scheduled("cache purge", c.purgeCache)); err != nil {
			return err
		}
	}

	c.cron.Start()
	c.log.Info("maintenance scheduler started",
		zap.String("session_schedule", c.sessionSchedule),
		zap.String("cache_schedule", c.cacheSchedule),
	)
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Used during
// graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sessions != nil {
		if err := c.sweepSessions(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.cache != nil {
		if err := c.purgeCache(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (c *Cleaner) scheduled(name string, job func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := job(ctx); err != nil {
			c.log.Warn(name+" failed", zap.Error(err))
		}
	}
}

func (c *Cleaner) sweepSessions(ctx context.Context) error {
	count, err := c.sessions.CleanupExpiredSessions(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		c.log.Debug("expired sessions deactivated", zap.Int64("count", count))
	}
	return nil
}

func (c *Cleaner) purgeCache(ctx context.Context) error {
	count, err := c.cache.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		c.log.Debug("expired cache entries purged", zap.Int64("count", count))
	}
	return nil
}
