package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tbag/core/internal/domain/entities"
	"github.com/tbag/core/internal/infrastructure/logger"
	"github.com/tbag/core/internal/infrastructure/metrics"
	"github.com/tbag/core/internal/ports"
)

// VisitConfig tunes the visit counter worker pool
type VisitConfig struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

type visitEvent struct {
	filename string
	kind     entities.VisitKind
}

// VisitService counts visits off the request path. Record never blocks: events
// go through a bounded queue drained by a fixed set of workers, and an event
// that does not fit is dropped.
type VisitService struct {
	repo    ports.VisitRepository
	logger  *logger.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	queue chan visitEvent
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// Ensure VisitService implements ports.VisitCounter
var _ ports.VisitCounter = (*VisitService)(nil)

// NewVisitService creates the service and starts its workers
func NewVisitService(repo ports.VisitRepository, cfg VisitConfig, logger *logger.Logger, m *metrics.Metrics) *VisitService {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	s := &VisitService{
		repo:    repo,
		logger:  logger.WithComponent("visits"),
		metrics: m,
		timeout: cfg.Timeout,
		queue:   make(chan visitEvent, cfg.QueueSize),
	}

	s.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go s.worker()
	}

	return s
}

// Record enqueues one visit for filename
func (s *VisitService) Record(filename string, kind entities.VisitKind) {
	if !kind.Valid() {
		s.logger.Warnw("Ignoring visit with unknown kind", "filename", filename, "kind", kind)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.drop(filename, kind, "closed")
		return
	}

	select {
	case s.queue <- visitEvent{filename: filename, kind: kind}:
		s.metrics.VisitEvents.WithLabelValues(string(kind), "queued").Inc()
	default:
		s.drop(filename, kind, entities.ErrQueueFull.Error())
	}
}

// Get returns the visit record for filename
func (s *VisitService) Get(ctx context.Context, filename string) (*entities.VisitRecord, error) {
	record, err := s.repo.Get(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to get visits for %s: %w", filename, err)
	}
	return record, nil
}

// List returns visit records matching the filter
func (s *VisitService) List(ctx context.Context, filter ports.VisitFilter) ([]*entities.VisitRecord, error) {
	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	return records, nil
}

// Ping checks the backing store
func (s *VisitService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close stops accepting events, waits for queued ones to be written and
// closes the repository
func (s *VisitService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	return s.repo.Close()
}

func (s *VisitService) worker() {
	defer s.wg.Done()

	for ev := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.repo.Increment(ctx, ev.filename, ev.kind)
		cancel()

		if err != nil {
			s.metrics.VisitEvents.WithLabelValues(string(ev.kind), "failed").Inc()
			s.logger.Errorw("Failed to record visit", "filename", ev.filename, "kind", ev.kind, "error", err)
			continue
		}
		s.metrics.VisitEvents.WithLabelValues(string(ev.kind), "recorded").Inc()
	}
}

func (s *VisitService) drop(filename string, kind entities.VisitKind, reason string) {
	s.metrics.VisitEvents.WithLabelValues(string(kind), "dropped").Inc()
	s.logger.Warnw("Dropped visit event", "filename", filename, "kind", kind, "reason", reason)
}
