// Package jobs runs periodic maintenance against the booking backend.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/diagnosis/evshare-bookings/pkg/logger"
	"github.com/diagnosis/evshare-bookings/pkg/middleware"
)

// Expirer cancels reservations nobody checked in to.
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron         *cron.Cron
	expirer      Expirer
	serviceToken string
	timeout      time.Duration
}

// NewScheduler registers the auto-expiry sweep on spec (standard cron syntax
// or descriptors such as "@every 1m"). Overlapping runs are skipped.
func NewScheduler(spec string, expirer Expirer, serviceToken string) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		expirer:      expirer,
		serviceToken: serviceToken,
		timeout:      30 * time.Second,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunExpiry(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid expiry schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("Cron: expiry sweep scheduled")
}

// Stop waits for a running sweep to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logger.Warn("Cron: shutdown before the running sweep finished")
	}
}

// RunExpiry performs one sweep.
func (s *Scheduler) RunExpiry(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, logger.ServiceKey, "expiry-sweep")
	if s.serviceToken != "" {
		ctx = middleware.WithBearerToken(ctx, s.serviceToken)
	}

	n, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Cron: expiry sweep failed", "error", err, "expired", n)
		return n
	}
	if n > 0 {
		logger.InfoContext(ctx, "Cron: bookings auto-cancelled", "expired", n)
	} else {
		logger.DebugContext(ctx, "Cron: no stale bookings")
	}
	return n
}
