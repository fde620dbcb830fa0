package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tbag/core/internal/domain/entities"
	"github.com/tbag/core/internal/infrastructure/logger"
	"github.com/tbag/core/internal/infrastructure/metrics"
	"github.com/tbag/core/internal/ports"
)

// Snapshot is an immutable view of the file index. Once published it is
// never modified, so callers may keep using it after a newer one replaces it.
type Snapshot struct {
	Generation uint64
	BuiltAt    time.Time
	Duration   time.Duration

	entries    map[string]entities.IndexEntry
	collisions []entities.Collision
}

// Lookup finds an entry by key, case-insensitively
func (s *Snapshot) Lookup(key string) (entities.IndexEntry, bool) {
	if s == nil {
		return entities.IndexEntry{}, false
	}
	entry, ok := s.entries[strings.ToLower(key)]
	return entry, ok
}

// Len returns the number of keys in the snapshot
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entries returns a copy of all entries, sorted by key
func (s *Snapshot) Entries() []entities.IndexEntry {
	if s == nil {
		return nil
	}
	out := make([]entities.IndexEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Collisions returns the key collisions recorded while building the snapshot
func (s *Snapshot) Collisions() []entities.Collision {
	if s == nil {
		return nil
	}
	return append([]entities.Collision(nil), s.collisions...)
}

// Reduce folds scanned entries into a key map following the collision policy.
// Entries are applied in the order given, which is the scanner's walk order.
func Reduce(entries []entities.IndexEntry, policy entities.CollisionPolicy) (map[string]entities.IndexEntry, []entities.Collision, error) {
	out := make(map[string]entities.IndexEntry, len(entries))
	var collisions []entities.Collision

	for _, entry := range entries {
		key := strings.ToLower(entry.Key)
		entry.Key = key

		existing, ok := out[key]
		if !ok {
			out[key] = entry
			continue
		}

		switch policy {
		case entities.CollisionKeepFirst:
			collisions = append(collisions, entities.Collision{Key: key, Kept: existing.RelativePath, Discarded: entry.RelativePath})
		case entities.CollisionError:
			return nil, nil, &entities.IndexBuildError{
				Path: entry.RelativePath,
				Err:  fmt.Errorf("%w: %q used by %s and %s", entities.ErrKeyCollision, key, existing.RelativePath, entry.RelativePath),
			}
		default:
			collisions = append(collisions, entities.Collision{Key: key, Kept: entry.RelativePath, Discarded: existing.RelativePath})
			out[key] = entry
		}
	}

	return out, collisions, nil
}

// IndexService owns the published file index and its rebuilds
type IndexService struct {
	scanner ports.Scanner
	policy  entities.CollisionPolicy
	logger  *logger.Logger
	metrics *metrics.Metrics

	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64

	mu      sync.Mutex
	pending atomic.Bool
}

// NewIndexService creates an index service holding an empty snapshot
func NewIndexService(scanner ports.Scanner, policy entities.CollisionPolicy, logger *logger.Logger, m *metrics.Metrics) *IndexService {
	if policy == "" {
		policy = entities.CollisionKeepLast
	}
	s := &IndexService{
		scanner: scanner,
		policy:  policy,
		logger:  logger.WithComponent("index"),
		metrics: m,
	}
	s.current.Store(&Snapshot{entries: map[string]entities.IndexEntry{}})
	return s
}

// Snapshot returns the currently published snapshot
func (s *IndexService) Snapshot() *Snapshot {
	return s.current.Load()
}

// Lookup resolves a key against the current snapshot
func (s *IndexService) Lookup(key string) (entities.IndexEntry, bool) {
	return s.Snapshot().Lookup(key)
}

// Rebuild rescans the content tree and publishes a new snapshot.
//
// Only one rebuild runs at a time. A call that arrives while another rebuild
// is in flight marks the index dirty and returns immediately; the in-flight
// caller then runs exactly one more rebuild before releasing the lock. On
// failure the previous snapshot stays published.
func (s *IndexService) Rebuild(ctx context.Context) error {
	s.pending.Store(true)

	if !s.mu.TryLock() {
		s.metrics.IndexRebuilds.WithLabelValues("coalesced").Inc()
		return nil
	}

	var err error
	for {
		for s.pending.Swap(false) {
			err = s.rebuild(ctx)
		}
		s.mu.Unlock()

		// A request may have slipped in between the last Swap and Unlock.
		if !s.pending.Load() || !s.mu.TryLock() {
			return err
		}
	}
}

func (s *IndexService) rebuild(ctx context.Context) error {
	start := time.Now()
	rebuildID := uuid.NewString()

	entries, err := s.scanner.Scan(ctx)
	if err == nil {
		var (
			keyed      map[string]entities.IndexEntry
			collisions []entities.Collision
		)
		keyed, collisions, err = Reduce(entries, s.policy)
		if err == nil {
			s.publish(rebuildID, start, keyed, collisions)
			return nil
		}
	}

	s.metrics.IndexRebuilds.WithLabelValues("error").Inc()
	s.logger.Errorw("Index rebuild failed, keeping previous snapshot",
		"rebuild_id", rebuildID,
		"generation", s.Snapshot().Generation,
		"error", err,
	)
	return err
}

func (s *IndexService) publish(rebuildID string, start time.Time, keyed map[string]entities.IndexEntry, collisions []entities.Collision) {
	for _, c := range collisions {
		s.logger.Warnw("Index key collision",
			"rebuild_id", rebuildID,
			"key", c.Key,
			"kept", c.Kept,
			"discarded", c.Discarded,
			"policy", s.policy,
		)
	}

	duration := time.Since(start)
	snapshot := &Snapshot{
		Generation: s.generation.Add(1),
		BuiltAt:    time.Now().UTC(),
		Duration:   duration,
		entries:    keyed,
		collisions: collisions,
	}
	s.current.Store(snapshot)

	s.metrics.IndexRebuilds.WithLabelValues("success").Inc()
	s.metrics.IndexRebuildDuration.Observe(duration.Seconds())
	s.metrics.IndexEntries.Set(float64(len(keyed)))
	s.metrics.IndexGeneration.Set(float64(snapshot.Generation))
	s.metrics.IndexCollisions.Set(float64(len(collisions)))

	s.logger.Infow("Index rebuilt",
		"rebuild_id", rebuildID,
		"generation", snapshot.Generation,
		"entries", len(keyed),
		"collisions", len(collisions),
		"duration_ms", float64(duration.Nanoseconds())/1000000,
	)
}
