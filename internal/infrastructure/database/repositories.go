package database

import (
	"fmt"

	"github.com/wityliti/wityliti.io-sub000/internal/adapter/repository"
	"github.com/wityliti/wityliti.io-sub000/internal/adapter/repository/memory"
	"github.com/wityliti/wityliti.io-sub000/internal/config"
	domainRepo "github.com/wityliti/wityliti.io-sub000/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Repositories holds all repository instances
type Repositories struct {
	User             domainRepo.UserRepository
	Plan             domainRepo.PlanRepository
	Subscription     domainRepo.SubscriptionRepository
	Payment          domainRepo.PaymentRepository
	GatewayReference domainRepo.GatewayReferenceRepository
	WebhookEvent     domainRepo.WebhookEventRepository

	// Memory is set when the set is backed by the in-process store
	Memory *memory.Store

	close func() error
}

// NewRepositories creates new repository instances with database connection
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		User:             repository.NewUserRepository(db, logger),
		Plan:             repository.NewPlanRepository(db, logger),
		Subscription:     repository.NewSubscriptionRepository(db, logger),
		Payment:          repository.NewPaymentRepository(db, logger),
		GatewayReference: repository.NewGatewayReferenceRepository(db, logger),
		WebhookEvent:     repository.NewWebhookEventRepository(db, logger),
		close:            func() error { return Close(db, logger) },
	}
}

// NewMemoryRepositories backs every repository with one in-process store
func NewMemoryRepositories(store *memory.Store) *Repositories {
	return &Repositories{
		User:             store.Users(),
		Plan:             store.Plans(),
		Subscription:     store.Subscriptions(),
		Payment:          store.PaymentRepository(),
		GatewayReference: store.References(),
		WebhookEvent:     store.WebhookEvents(),
		Memory:           store,
		close:            func() error { return nil },
	}
}

// Open builds the repository set for the configured driver. Postgres is migrated on open.
func Open(cfg *config.DatabaseConfig, logger *zap.Logger) (*Repositories, error) {
	switch cfg.Driver {
	case "memory":
		logger.Warn("Using in-memory store; data is lost on restart")
		return NewMemoryRepositories(memory.NewStore()), nil
	case "postgres", "":
		db, err := NewConnection(cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := Migrate(db, logger); err != nil {
			_ = Close(db, logger)
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return NewRepositories(db, logger), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func (r *Repositories) Close() error {
	return r.close()
}
