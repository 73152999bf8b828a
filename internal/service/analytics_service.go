package service

import (
	"context"
	"sync"
	"time"

	"stash-api/internal/domain"
	"stash-api/internal/repository"
	"stash-api/pkg/logger"
)

const (
	// MaxQueueSize triggers an early flush
	MaxQueueSize = 50
	// requeueLimit is how many events of a failed batch are retried
	requeueLimit = 10
	flushTimeout = 10 * time.Second
)

// analyticsService batches first-party events into the events table
type analyticsService struct {
	repo     repository.EventRepository
	logger   *logger.Logger
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	queue     []domain.Event
	flushing  sync.Mutex
	flushNow  chan struct{}
	stop      chan struct{}
	done      chan struct{}
	isRunning bool
}

// NewAnalyticsService creates a new analytics service. A nil repository
// logs events instead of storing them.
func NewAnalyticsService(repo repository.EventRepository, interval time.Duration, logger *logger.Logger) AnalyticsService {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &analyticsService{
		repo:     repo,
		logger:   logger.Named("analytics"),
		interval: interval,
		now:      time.Now,
		flushNow: make(chan struct{}, 1),
	}
}

// Start begins periodic flushing
func (s *analyticsService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.flushRoutine(ctx, time.NewTicker(s.interval))

	s.isRunning = true
	s.logger.WithField("interval_ms", s.interval.Milliseconds()).Info("Analytics service started")
	return nil
}

// Stop halts the flush routine and writes whatever is still queued
func (s *analyticsService) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := s.Flush(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to flush analytics during shutdown")
		return err
	}

	s.logger.Info("Analytics service stopped")
	return nil
}

// Track queues an anonymous event
func (s *analyticsService) Track(ctx context.Context, name domain.EventName, props map[string]interface{}) {
	s.TrackEvents(ctx, []domain.Event{{Name: name, Props: props}})
}

// TrackEvents queues events, stamping any without a creation time
func (s *analyticsService) TrackEvents(_ context.Context, events []domain.Event) {
	if len(events) == 0 {
		return
	}

	now := s.now()
	s.mu.Lock()
	for _, event := range events {
		if event.CreatedAt.IsZero() {
			event.CreatedAt = now
		}
		if event.Props == nil {
			event.Props = map[string]interface{}{}
		}
		s.queue = append(s.queue, event)
		s.logger.WithFields(map[string]interface{}{
			"event": event.Name,
			"props": event.Props,
		}).Debug("track")
	}
	full := len(s.queue) >= MaxQueueSize
	s.mu.Unlock()

	if full {
		select {
		case s.flushNow <- struct{}{}:
		default:
		}
	}
}

// Flush writes the queued events. On failure the newest few events of the
// batch go back on the queue, unless it has refilled meanwhile.
func (s *analyticsService) Flush(ctx context.Context) error {
	s.flushing.Lock()
	defer s.flushing.Unlock()

	s.mu.Lock()
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if s.repo == nil {
		s.logger.WithField("count", len(batch)).Debug("No event store configured, dropping analytics batch")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	if err := s.repo.InsertBatch(ctx, batch); err != nil {
		s.requeue(batch)
		s.logger.WithError(err).WithField("count", len(batch)).Error("Failed to flush analytics events")
		return err
	}

	s.logger.WithField("count", len(batch)).Debug("Flushed analytics events")
	return nil
}

// Pending is the number of queued events
func (s *analyticsService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *analyticsService) requeue(batch []domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) >= MaxQueueSize {
		return
	}
	if len(batch) > requeueLimit {
		batch = batch[len(batch)-requeueLimit:]
	}
	s.queue = append(append([]domain.Event{}, batch...), s.queue...)
}

func (s *analyticsService) flushRoutine(ctx context.Context, ticker *time.Ticker) {
	defer close(s.done)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.Flush(ctx)
		case <-s.flushNow:
			_ = s.Flush(ctx)
		case <-s.stop:
			s.logger.Debug("Analytics flush routine stopped")
			return
		case <-ctx.Done():
			s.logger.Debug("Analytics flush routine cancelled")
			return
		}
	}
}
