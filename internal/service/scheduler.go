package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner performs one scheduled analysis run
type Runner interface {
	Run(ctx context.Context) (RunReport, error)
}

// Scheduler triggers analysis runs on a fixed interval
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler; a non-positive interval disables it
func NewScheduler(runner Runner, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the ticker loop
func (s *Scheduler) Start() {
	if s.interval <= 0 {
		s.logger.Info("scheduled analysis disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// errors are already logged by the runner
				_, _ = s.runner.Run(ctx)
			}
		}
	}()

	s.logger.Info("scheduled analysis started", zap.Duration("interval", s.interval))
}

// Stop cancels the loop and waits for an in-flight run to finish
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.cancel = nil
}
