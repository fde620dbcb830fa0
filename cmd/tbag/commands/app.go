package commands

import (
	"context"
	"fmt"

	"github.com/tbag/core/internal/adapters/filesystem"
	"github.com/tbag/core/internal/adapters/repository"
	"github.com/tbag/core/internal/application/services"
	"github.com/tbag/core/internal/domain/entities"
	"github.com/tbag/core/internal/infrastructure/config"
	"github.com/tbag/core/internal/infrastructure/database"
	"github.com/tbag/core/internal/infrastructure/logger"
	"github.com/tbag/core/internal/infrastructure/metrics"
	"github.com/tbag/core/internal/ports"
)

// contentTree groups everything derived from the content section of the config
type contentTree struct {
	languages entities.LanguageMap
	scanner   *filesystem.Scanner
	store     *filesystem.ContentStore
	index     *services.IndexService
}

func loadConfig(configFile string) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if Version != "dev" {
		cfg.App.Version = Version
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, appLogger, nil
}

func newContentTree(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (*contentTree, error) {
	languages := entities.NewLanguageMap(cfg.Content.Languages)

	scanner, err := filesystem.NewScanner(cfg.Content.Root, languages, cfg.Content.Exclude)
	if err != nil {
		return nil, err
	}

	store, err := filesystem.NewContentStore(cfg.Content.Root)
	if err != nil {
		return nil, err
	}

	policy, err := entities.ParseCollisionPolicy(cfg.Index.CollisionPolicy)
	if err != nil {
		return nil, err
	}

	return &contentTree{
		languages: languages,
		scanner:   scanner,
		store:     store,
		index:     services.NewIndexService(scanner, policy, log, m),
	}, nil
}

// newVisitRepository opens the configured counter backend
func newVisitRepository(ctx context.Context, cfg *config.Config, log *logger.Logger) (ports.VisitRepository, error) {
	switch cfg.Counter.Backend {
	case "postgres":
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		log.Infow("Connected to database",
			"host", cfg.Database.Host,
			"name", cfg.Database.Name,
			"pool", db.GetConnectionInfo(),
		)
		return repository.NewPostgresVisitRepository(db), nil

	case "redis":
		client, err := database.NewRedis(ctx, cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		return repository.NewRedisVisitRepository(client, cfg.Redis.KeyPrefix), nil

	case "memory":
		return repository.NewMemoryVisitRepository(), nil

	case "none":
		return repository.NoopVisitRepository{}, nil
	}

	return nil, fmt.Errorf("%w: %q", entities.ErrUnknownCounter, cfg.Counter.Backend)
}
