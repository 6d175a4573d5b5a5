// Package cron runs the settlement sweeps (recurring renewals, courier
// tracking sync) on a fixed cadence behind a distributed lock.
package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketsettle/pkg/logger"
	"github.com/angelmondragon/marketsettle/pkg/metrics"
)

const defaultInterval = time.Hour

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.SchedulerMetrics
	Interval time.Duration
}

// Service executes registered jobs on a fixed cadence. Only the instance
// holding the lock runs a cycle.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.SchedulerMetrics
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Start runs the loop in the background. Calling Start on a running
// service is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go func() {
		defer close(done)
		if err := s.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logg.Error(loopCtx, "cron loop stopped", err)
		}
	}()
}

// Stop cancels the loop and waits for it to return.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run sweeps immediately and then on every tick until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.RunOnce(ctx); err != nil {
		s.logg.Error(ctx, "settlement sweep failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logg.Error(ctx, "settlement sweep failed", err)
			}
		}
	}
}

// RunOnce runs every registered job once if the lock can be taken. It
// reports whether the cycle ran. Job failures are logged and counted but
// never stop the remaining jobs.
func (s *Service) RunOnce(ctx context.Context) (bool, error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		s.metrics.ObserveSweep(metrics.SweepLockError)
		return false, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.metrics.ObserveSweep(metrics.SweepLockHeld)
		s.logg.Info(ctx, "another cron instance holds the lock; skipping this cycle")
		return false, nil
	}
	s.metrics.ObserveSweep(metrics.SweepRan)
	ctx = s.logg.WithSweepID(ctx, uuid.NewString())
	stopLease := s.keepLease(ctx)
	defer func() {
		stopLease()
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	s.logg.Info(ctx, "settlement sweep starting")
	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		s.runJob(ctx, job)
	}
	s.logg.Info(ctx, "settlement sweep complete")
	return true, nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	err := job.Run(jobCtx)
	finished := time.Now()
	duration := finished.Sub(start)
	s.metrics.ObserveJob(job.Name(), duration, finished, err)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return
	}
	s.logg.Info(jobCtx, "job completed")
}
