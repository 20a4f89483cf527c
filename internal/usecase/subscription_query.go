package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/entity"
	domainErrors "github.com/wityliti/wityliti.io-sub000/internal/domain/errors"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/model"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/repository"
	"github.com/wityliti/wityliti.io-sub000/pkg/errors"
)

// SubscriptionQuery serves read-only views of subscription state
type SubscriptionQuery struct {
	subs     repository.SubscriptionRepository
	payments repository.PaymentRepository
}

func NewSubscriptionQuery(subs repository.SubscriptionRepository, payments repository.PaymentRepository) *SubscriptionQuery {
	return &SubscriptionQuery{subs: subs, payments: payments}
}

func (q *SubscriptionQuery) Current(ctx context.Context, userID uuid.UUID) (*entity.SubscriptionView, error) {
	sub, err := q.subs.GetByUserID(ctx, userID)
	if err != nil {
		return nil, errors.Unavailable(err)
	}
	if sub == nil {
		return nil, errors.NewAppError(errors.ErrNotFound, "Subscription not found", domainErrors.ErrSubscriptionNotFound)
	}
	return SubscriptionView(sub), nil
}

func (q *SubscriptionQuery) Payments(ctx context.Context, userID uuid.UUID, params entity.PaginationParams) (*entity.PaginatedPayments, error) {
	params.Validate()

	rows, total, err := q.payments.ListByUserID(ctx, userID, params)
	if err != nil {
		return nil, errors.Unavailable(err)
	}

	views := make([]entity.PaymentView, 0, len(rows))
	for _, p := range rows {
		views = append(views, paymentView(p))
	}
	return &entity.PaginatedPayments{
		Data:       views,
		Pagination: entity.NewPaginationMeta(params.Page, params.Limit, total),
	}, nil
}

func SubscriptionView(sub *model.Subscription) *entity.SubscriptionView {
	return &entity.SubscriptionView{
		UserID:                sub.UserID.String(),
		PlanID:                sub.PlanID.String(),
		Status:                string(sub.Status),
		GatewaySubscriptionID: sub.GatewaySubscription(),
		TrialEndsAt:           sub.TrialEndsAt,
		CurrentPeriodStart:    sub.CurrentPeriodStart,
		CurrentPeriodEnd:      sub.CurrentPeriodEnd,
		GracePeriodEndsAt:     sub.GracePeriodEndsAt,
		CancelledAt:           sub.CancelledAt,
	}
}

func paymentView(p *model.Payment) entity.PaymentView {
	v := entity.PaymentView{
		GatewayPaymentID: p.GatewayPaymentID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Status:           string(p.Status),
		Method:           p.Method,
		PaidAt:           p.PaidAt,
		CreatedAt:        p.CreatedAt,
	}
	if p.GatewayOrderID != nil {
		v.GatewayOrderID = *p.GatewayOrderID
	}
	if p.FailureReason != nil {
		v.FailureReason = *p.FailureReason
	}
	return v
}
