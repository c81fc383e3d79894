package application

import (
	"context"
	"errors"
	"log"
	"time"
)

// Scheduler drives the service on a fixed interval until the context is
// cancelled. The first sweep runs immediately.
type Scheduler struct {
	service  *Service
	interval time.Duration
	logger   *log.Logger
}

// NewScheduler constructs a scheduler.
func NewScheduler(service *Service, interval time.Duration, logger *log.Logger) (*Scheduler, error) {
	if service == nil {
		return nil, errors.New("scheduler: nil service")
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{service: service, interval: interval, logger: logger}, nil
}

// Run blocks until ctx is done. A sweep that overruns the interval delays
// the next tick rather than overlapping it.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Printf("scheduler started, interval %s, %d checks", s.interval, len(s.service.order))
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Printf("scheduler stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	started := time.Now()
	results := s.service.RunAll(ctx)
	var fetched, breaches, notified, suppressed int
	for _, r := range results {
		fetched += r.Fetched
		breaches += r.Breaches
		notified += r.Notified
		suppressed += r.Suppressed
	}
	s.logger.Printf("sweep done in %s: fetched=%d breaches=%d notified=%d suppressed=%d",
		time.Since(started).Round(time.Millisecond), fetched, breaches, notified, suppressed)
}
