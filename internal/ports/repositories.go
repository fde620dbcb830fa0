package ports

import (
	"context"

	"github.com/tbag/core/internal/domain/entities"
)

// VisitRepository defines the interface for visit counter storage
type VisitRepository interface {
	Increment(ctx context.Context, filename string, kind entities.VisitKind) error
	Get(ctx context.Context, filename string) (*entities.VisitRecord, error)
	List(ctx context.Context, filter VisitFilter) ([]*entities.VisitRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

// Filter types for repository queries
type VisitFilter struct {
	Prefix string
	Limit  int
	Offset int
}
