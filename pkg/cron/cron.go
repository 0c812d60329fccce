package cron

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/linkdrop/linkdrop/internal/config"
	"github.com/linkdrop/linkdrop/internal/logging"
	"github.com/linkdrop/linkdrop/pkg/ratelimit"
	"go.uber.org/zap"
)

// Cleaner is the slice of the link registry the cron jobs need.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int, error)
}

type CronService struct {
	cleaner Cleaner
	limiter ratelimit.Limiter
	logger  *zap.Logger
}

func StartCronJobs(ctx context.Context, scheduler *gocron.Scheduler,
	cleaner Cleaner, limiter ratelimit.Limiter, cnf *config.ServerCmdConfig) {

	c := &CronService{
		cleaner: cleaner,
		limiter: limiter,
		logger:  logging.DefaultLogger(),
	}

	interval := cnf.Link.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	scheduler.Every(interval).Do(c.CleanExpiredLinks, ctx)
	scheduler.Every(10 * time.Minute).Do(c.MaintainRateLimiter)

	scheduler.StartAsync()
}

// CleanExpiredLinks runs one cleanup pass. Errors are logged so a failing
// pass never stops the schedule.
func (c *CronService) CleanExpiredLinks(ctx context.Context) {
	cleaned, err := c.cleaner.CleanupExpired(logging.WithLogger(ctx, c.logger))
	if err != nil {
		c.logger.Error("cleanup pass failed", zap.Error(err))
		return
	}
	if cleaned > 0 {
		c.logger.Info("cleaned expired links", zap.Int("count", cleaned))
	}
}

func (c *CronService) MaintainRateLimiter() {
	c.limiter.Maintain()
}
