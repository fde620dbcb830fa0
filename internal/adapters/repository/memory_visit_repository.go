package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/tbag/core/internal/domain/entities"
	"github.com/tbag/core/internal/ports"
)

// MemoryVisitRepository keeps counters in process memory. Counts are lost on
// restart.
type MemoryVisitRepository struct {
	mu      sync.RWMutex
	records map[string]*entities.VisitRecord
}

// Ensure MemoryVisitRepository implements ports.VisitRepository
var _ ports.VisitRepository = (*MemoryVisitRepository)(nil)

// NewMemoryVisitRepository creates an empty in-memory repository
func NewMemoryVisitRepository() *MemoryVisitRepository {
	return &MemoryVisitRepository{records: make(map[string]*entities.VisitRecord)}
}

func (r *MemoryVisitRepository) Increment(ctx context.Context, filename string, kind entities.VisitKind) error {
	if !kind.Valid() {
		return entities.ErrUnknownVisitKind
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[filename]
	if !ok {
		record = &entities.VisitRecord{Filename: filename}
		r.records[filename] = record
	}
	record.Apply(kind)
	return nil
}

func (r *MemoryVisitRepository) Get(ctx context.Context, filename string) (*entities.VisitRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[filename]
	if !ok {
		return nil, entities.ErrVisitNotFound
	}
	copied := *record
	return &copied, nil
}

func (r *MemoryVisitRepository) List(ctx context.Context, filter ports.VisitFilter) ([]*entities.VisitRecord, error) {
	r.mu.RLock()
	records := make([]*entities.VisitRecord, 0, len(r.records))
	for name, record := range r.records {
		if !strings.HasPrefix(name, filter.Prefix) {
			continue
		}
		copied := *record
		records = append(records, &copied)
	}
	r.mu.RUnlock()

	sortRecords(records)
	return paginate(records, filter), nil
}

func (r *MemoryVisitRepository) Ping(ctx context.Context) error { return nil }

func (r *MemoryVisitRepository) Close() error { return nil }

// NoopVisitRepository discards every increment. It backs the "none" counter
// setting used in development.
type NoopVisitRepository struct{}

// Ensure NoopVisitRepository implements ports.VisitRepository
var _ ports.VisitRepository = NoopVisitRepository{}

func (NoopVisitRepository) Increment(ctx context.Context, filename string, kind entities.VisitKind) error {
	return nil
}

func (NoopVisitRepository) Get(ctx context.Context, filename string) (*entities.VisitRecord, error) {
	return nil, entities.ErrVisitNotFound
}

func (NoopVisitRepository) List(ctx context.Context, filter ports.VisitFilter) ([]*entities.VisitRecord, error) {
	return []*entities.VisitRecord{}, nil
}

func (NoopVisitRepository) Ping(ctx context.Context) error { return nil }

func (NoopVisitRepository) Close() error { return nil }
