package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tbag/core/internal/domain/entities"
	"github.com/tbag/core/internal/infrastructure/database"
	"github.com/tbag/core/internal/ports"
)

// PostgresVisitRepository stores visit counters in the file_visits table
type PostgresVisitRepository struct {
	db *database.DB
}

// Ensure PostgresVisitRepository implements ports.VisitRepository
var _ ports.VisitRepository = (*PostgresVisitRepository)(nil)

// NewPostgresVisitRepository creates a new Postgres-backed visit repository
func NewPostgresVisitRepository(db *database.DB) *PostgresVisitRepository {
	return &PostgresVisitRepository{db: db}
}

// Increment upserts the row for filename. Concurrent increments are safe:
// the conflict branch adds to the stored values instead of overwriting them.
func (r *PostgresVisitRepository) Increment(ctx context.Context, filename string, kind entities.VisitKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", entities.ErrUnknownVisitKind, kind)
	}

	query := `
		INSERT INTO file_visits (filename, visits, html_file, raw_file)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (filename) DO UPDATE
		SET visits = file_visits.visits + 1,
			html_file = file_visits.html_file + EXCLUDED.html_file,
			raw_file = file_visits.raw_file + EXCLUDED.raw_file,
			updated_at = CURRENT_TIMESTAMP`

	var html, raw int
	if kind == entities.VisitKindHTML {
		html = 1
	} else {
		raw = 1
	}

	if _, err := r.db.DB.ExecContext(ctx, query, filename, html, raw); err != nil {
		return fmt.Errorf("increment visits: %w", err)
	}

	return nil
}

func (r *PostgresVisitRepository) Get(ctx context.Context, filename string) (*entities.VisitRecord, error) {
	query := `
		SELECT filename, visits, html_file, raw_file, created_at, updated_at
		FROM file_visits
		WHERE filename = $1`

	var record entities.VisitRecord
	err := r.db.DB.GetContext(ctx, &record, query, filename)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entities.ErrVisitNotFound
		}
		return nil, fmt.Errorf("get visits: %w", err)
	}

	return &record, nil
}

func (r *PostgresVisitRepository) List(ctx context.Context, filter ports.VisitFilter) ([]*entities.VisitRecord, error) {
	query := `
		SELECT filename, visits, html_file, raw_file, created_at, updated_at
		FROM file_visits`

	var args []interface{}
	if filter.Prefix != "" {
		args = append(args, escapeLike(filter.Prefix)+"%")
		query += fmt.Sprintf(` WHERE filename LIKE $%d ESCAPE '\'`, len(args))
	}

	query += " ORDER BY visits DESC, filename ASC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var records []*entities.VisitRecord
	if err := r.db.DB.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}

	return records, nil
}

func (r *PostgresVisitRepository) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

func (r *PostgresVisitRepository) Close() error {
	return r.db.Close()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
