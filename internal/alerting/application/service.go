package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Service runs the configured checkers, on schedule and on demand.
type Service struct {
	checkers map[string]*Checker
	order    []string
	logger   *log.Logger
}

// NewService constructs a service over the fleet's checkers.
func NewService(checkers []*Checker, logger *log.Logger) (*Service, error) {
	if len(checkers) == 0 {
		return nil, errors.New("alert service: no checkers")
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{
		checkers: make(map[string]*Checker, len(checkers)),
		logger:   logger,
	}
	for _, c := range checkers {
		if c == nil {
			return nil, errors.New("alert service: nil checker")
		}
		id := c.Spec().InstrumentID
		if _, ok := s.checkers[id]; ok {
			return nil, fmt.Errorf("alert service: duplicate checker for %s", id)
		}
		s.checkers[id] = c
		s.order = append(s.order, id)
	}
	return s, nil
}

// Checks lists the configured check specs in configuration order.
func (s *Service) Checks() []CheckSpec {
	specs := make([]CheckSpec, 0, len(s.order))
	for _, id := range s.order {
		specs = append(specs, s.checkers[id].Spec())
	}
	return specs
}

// RunAll runs every checker concurrently and returns their results in
// configuration order. Individual failures are logged, not fatal: one
// broken upstream must not stall the rest of the fleet.
func (s *Service) RunAll(ctx context.Context) []Result {
	results := make([]Result, len(s.order))
	var wg sync.WaitGroup
	for i, id := range s.order {
		wg.Add(1)
		go func(i int, c *Checker) {
			defer wg.Done()
			result, err := c.Run(ctx)
			if err != nil {
				s.logger.Printf("check %s error: %v", c.Spec().Label, err)
			}
			results[i] = result
		}(i, s.checkers[id])
	}
	wg.Wait()
	return results
}

// Trigger runs one instrument's check immediately over its regular window.
func (s *Service) Trigger(ctx context.Context, instrumentID string) (Result, error) {
	c, ok := s.checkers[instrumentID]
	if !ok {
		return Result{}, fmt.Errorf("alert service: no check configured for %s", instrumentID)
	}
	return c.Run(ctx)
}

// Backfill runs one instrument's check over an explicit historical window.
// Dedup still applies, so re-running a window never re-sends. Non-empty
// recipients replace the instrument's configured lists.
func (s *Service) Backfill(ctx context.Context, instrumentID string, from, to time.Time, perBreach bool, recipients []string) (Result, error) {
	c, ok := s.checkers[instrumentID]
	if !ok {
		return Result{}, fmt.Errorf("alert service: no check configured for %s", instrumentID)
	}
	if !to.After(from) {
		return Result{}, errors.New("alert service: backfill window end must be after start")
	}
	return c.RunWindow(ctx, from, to, perBreach, recipients)
}
