package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/service/auth"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

// Учётка для локального запуска на in-memory хранилище.
const (
	devUserName     = "Tester"
	devUserEmail    = "tester@example.com"
	devUserPassword = "password123"
)

type userSeeder interface {
	EnsureUser(ctx context.Context, in auth.RegisterInput) (domain.User, bool, error)
}

func seedDevUser(ctx context.Context, cfg Config, accounts userSeeder, logger *log.Entry) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if !cfg.SeedDevUser || (driver != "" && driver != StorageDriverMemory) {
		return nil
	}

	user, created, err := accounts.EnsureUser(ctx, auth.RegisterInput{
		Name:                 devUserName,
		Email:                devUserEmail,
		Password:             devUserPassword,
		PasswordConfirmation: devUserPassword,
	})
	if err != nil {
		return fmt.Errorf("seed dev user: %w", err)
	}
	if created {
		logger.WithFields(log.Fields{"user_id": user.ID, "email": user.Email}).Info("dev user seeded")
	}
	return nil
}

// runtimeDependencies: репозитории выбранного драйвера хранилища.
type runtimeDependencies struct {
	txRunner        domain.TxRunner
	products        domain.ProductRepository
	orders          domain.OrderRepository
	users           domain.UserRepository
	tokens          domain.TokenRepository
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	storageChecker  healthcheck.Checker
	closeFn         func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if driver == "" {
		driver = StorageDriverMemory
	}

	switch driver {
	case StorageDriverMemory:
		store := memory.NewStore()
		logger.Info("using in-memory storage")
		return runtimeDependencies{
			txRunner:        memory.NewTxRunner(store),
			products:        memory.NewProductRepository(store),
			orders:          memory.NewOrderRepository(store),
			users:           memory.NewUserRepository(store),
			tokens:          memory.NewTokenRepository(store),
			outboxRepo:      memory.NewOutboxRepository(store),
			idempotencyRepo: memory.NewIdempotencyRepository(),
			storageChecker:  healthcheck.NewPingChecker("storage", store.Ping),
		}, nil

	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return runtimeDependencies{}, fmt.Errorf("postgres dsn is required for storage driver %q", StorageDriverPostgres)
		}

		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return runtimeDependencies{}, fmt.Errorf("open postgres: %w", err)
		}

		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("apply migrations: %w", err)
			}
			state, err := store.MigrationStatus(ctx)
			if err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("migration status: %w", err)
			}
			logger.WithFields(log.Fields{
				"schema_version": state.Version,
				"applied":        state.Applied,
			}).Info("postgres migrations applied")
		}

		logger.Info("using postgres storage")
		return runtimeDependencies{
			txRunner:        postgres.NewTxRunner(store),
			products:        postgres.NewProductRepository(store),
			orders:          postgres.NewOrderRepository(store),
			users:           postgres.NewUserRepository(store),
			tokens:          postgres.NewTokenRepository(store),
			outboxRepo:      postgres.NewOutboxRepository(store),
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			storageChecker:  healthcheck.NewPingChecker("storage", store.Ping),
			closeFn:         store.Close,
		}, nil

	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
}
