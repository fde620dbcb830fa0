package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tbag/core/internal/domain/entities"
	"github.com/tbag/core/internal/ports"
)

const (
	fieldVisits    = "visits"
	fieldHTMLFile  = "html_file"
	fieldRawFile   = "raw_file"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// RedisVisitRepository keeps one hash per file under <prefix>:<filename>
type RedisVisitRepository struct {
	client *redis.Client
	prefix string
}

// Ensure RedisVisitRepository implements ports.VisitRepository
var _ ports.VisitRepository = (*RedisVisitRepository)(nil)

// NewRedisVisitRepository creates a new Redis-backed visit repository
func NewRedisVisitRepository(client *redis.Client, prefix string) *RedisVisitRepository {
	if prefix == "" {
		prefix = "tbag:visits"
	}
	return &RedisVisitRepository{client: client, prefix: strings.TrimSuffix(prefix, ":")}
}

// Increment bumps the counters inside a MULTI/EXEC block. HINCRBY is atomic
// per field, so concurrent writers never lose updates.
func (r *RedisVisitRepository) Increment(ctx context.Context, filename string, kind entities.VisitKind) error {
	field, err := kindField(kind)
	if err != nil {
		return err
	}

	key := r.key(filename)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, fieldVisits, 1)
		pipe.HIncrBy(ctx, key, field, 1)
		pipe.HSetNX(ctx, key, fieldCreatedAt, now)
		pipe.HSet(ctx, key, fieldUpdatedAt, now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("increment visits: %w", err)
	}

	return nil
}

func (r *RedisVisitRepository) Get(ctx context.Context, filename string) (*entities.VisitRecord, error) {
	values, err := r.client.HGetAll(ctx, r.key(filename)).Result()
	if err != nil {
		return nil, fmt.Errorf("get visits: %w", err)
	}
	if len(values) == 0 {
		return nil, entities.ErrVisitNotFound
	}
	return parseVisitHash(filename, values)
}

// List walks the keyspace with SCAN, so it is meant for inspection rather
// than hot paths
func (r *RedisVisitRepository) List(ctx context.Context, filter ports.VisitFilter) ([]*entities.VisitRecord, error) {
	match := r.prefix + ":" + escapeGlob(filter.Prefix) + "*"

	var records []*entities.VisitRecord
	iter := r.client.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		values, err := r.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("list visits: %w", err)
		}
		if len(values) == 0 {
			continue
		}
		record, err := parseVisitHash(strings.TrimPrefix(key, r.prefix+":"), values)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}

	sortRecords(records)
	return paginate(records, filter), nil
}

func (r *RedisVisitRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisVisitRepository) Close() error {
	return r.client.Close()
}

func (r *RedisVisitRepository) key(filename string) string {
	return r.prefix + ":" + filename
}

func kindField(kind entities.VisitKind) (string, error) {
	switch kind {
	case entities.VisitKindHTML:
		return fieldHTMLFile, nil
	case entities.VisitKindRaw:
		return fieldRawFile, nil
	}
	return "", fmt.Errorf("%w: %q", entities.ErrUnknownVisitKind, kind)
}

func parseVisitHash(filename string, values map[string]string) (*entities.VisitRecord, error) {
	record := &entities.VisitRecord{Filename: filename}

	counters := map[string]*int64{
		fieldVisits:   &record.Visits,
		fieldHTMLFile: &record.HTMLFile,
		fieldRawFile:  &record.RawFile,
	}
	for field, dst := range counters {
		raw, ok := values[field]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s for %s: %w", field, filename, err)
		}
		*dst = n
	}

	timestamps := map[string]*time.Time{
		fieldCreatedAt: &record.CreatedAt,
		fieldUpdatedAt: &record.UpdatedAt,
	}
	for field, dst := range timestamps {
		raw, ok := values[field]
		if !ok {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s for %s: %w", field, filename, err)
		}
		*dst = ts
	}

	return record, nil
}

func escapeGlob(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`).Replace(s)
}

func sortRecords(records []*entities.VisitRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Visits != records[j].Visits {
			return records[i].Visits > records[j].Visits
		}
		return records[i].Filename < records[j].Filename
	})
}

func paginate(records []*entities.VisitRecord, filter ports.VisitFilter) []*entities.VisitRecord {
	if filter.Offset > 0 {
		if filter.Offset >= len(records) {
			return []*entities.VisitRecord{}
		}
		records = records[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(records) {
		records = records[:filter.Limit]
	}
	return records
}
