package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/entity"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/model"
)

// Lookups return (nil, nil) when no row matches.

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type PlanRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Plan, error)
}

type SubscriptionRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Subscription, error)
	GetByGatewaySubscriptionID(ctx context.Context, gatewaySubscriptionID string) (*model.Subscription, error)
	// CreateIfAbsent inserts the row unless one already exists for the user
	CreateIfAbsent(ctx context.Context, sub *model.Subscription) (bool, error)
	Save(ctx context.Context, sub *model.Subscription) error
	// SaveWithPeriodClaim consumes the billing period of the claimed payments and saves the
	// row in one step. It saves nothing and returns false when GatewayPaymentID is already claimed.
	SaveWithPeriodClaim(ctx context.Context, sub *model.Subscription, claim PeriodClaim) (bool, error)
}

// PeriodClaim names the payments whose billing period a save consumes
type PeriodClaim struct {
	// GatewayPaymentID must be recorded and unclaimed for the save to happen
	GatewayPaymentID string
	// GatewaySubscriptionID marks every unclaimed paid payment of that gateway subscription as applied
	GatewaySubscriptionID string
}

type PaymentRepository interface {
	GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*model.Payment, error)
	// CreateIfAbsent inserts the row unless its gateway payment id is already recorded
	CreateIfAbsent(ctx context.Context, payment *model.Payment) (bool, error)
	ListByUserID(ctx context.Context, userID uuid.UUID, params entity.PaginationParams) ([]*model.Payment, int64, error)
}

type GatewayReferenceRepository interface {
	Create(ctx context.Context, ref *model.GatewayReference) error
	GetByGatewayRefID(ctx context.Context, gatewayRefID string) (*model.GatewayReference, error)
}

type WebhookEventRepository interface {
	// CreateIfAbsent records an event; an existing event id is left untouched
	CreateIfAbsent(ctx context.Context, event *model.WebhookEvent) (bool, error)
	GetByEventID(ctx context.Context, eventID string) (*model.WebhookEvent, error)
	MarkProcessed(ctx context.Context, eventID string, status model.WebhookStatus) error
	MarkFailed(ctx context.Context, eventID string, err error) error
}
