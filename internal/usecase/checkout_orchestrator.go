package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/entity"
	domainErrors "github.com/wityliti/wityliti.io-sub000/internal/domain/errors"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/model"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/provider"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/repository"
	"github.com/wityliti/wityliti.io-sub000/pkg/errors"
	"go.uber.org/zap"
)

// CheckoutOrchestrator creates gateway objects for a verified session and records who they belong to
type CheckoutOrchestrator struct {
	users   repository.UserRepository
	plans   repository.PlanRepository
	subs    repository.SubscriptionRepository
	refs    repository.GatewayReferenceRepository
	gateway provider.Gateway
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

func NewCheckoutOrchestrator(
	users repository.UserRepository,
	plans repository.PlanRepository,
	subs repository.SubscriptionRepository,
	refs repository.GatewayReferenceRepository,
	gateway provider.Gateway,
	timeout time.Duration,
	now func() time.Time,
	logger *zap.Logger,
) *CheckoutOrchestrator {
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &CheckoutOrchestrator{
		users:   users,
		plans:   plans,
		subs:    subs,
		refs:    refs,
		gateway: gateway,
		timeout: timeout,
		now:     now,
		logger:  logger,
	}
}

// Start expects claims that already passed token verification and validation
func (o *CheckoutOrchestrator) Start(ctx context.Context, claims entity.PaymentSessionClaims) (*entity.CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInvalidArgument, "Invalid user_id format", err)
	}
	planID, err := uuid.Parse(claims.PlanID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInvalidArgument, "Invalid plan_id format", err)
	}

	user, plan, err := loadUserAndPlan(ctx, o.users, o.plans, userID, planID)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With(
		zap.String("user_id", userID.String()),
		zap.String("plan_id", planID.String()),
		zap.String("action", claims.Action))

	sub, err := o.subs.GetByUserID(ctx, userID)
	if err != nil {
		return nil, errors.Unavailable(err)
	}

	customerID := ""
	if sub != nil {
		customerID = sub.GatewayCustomerID
	}
	if customerID == "" {
		customer, err := o.gateway.CreateCustomer(ctx, &provider.CreateCustomerRequest{
			Name:  user.Name,
			Email: user.Email,
			Notes: provider.Notes{provider.NoteUserID: userID.String()},
		})
		if err != nil {
			logger.Error("Failed to create gateway customer", zap.Error(err))
			return nil, upstreamError(err)
		}
		customerID = customer.ID
	}

	notes := provider.Notes{
		provider.NoteUserID: userID.String(),
		provider.NotePlanID: planID.String(),
		provider.NoteAction: claims.Action,
	}

	session := &entity.CheckoutSession{
		KeyID:             o.gateway.KeyID(),
		GatewayCustomerID: customerID,
		Amount:            plan.Amount(),
		Currency:          plan.Currency,
	}
	ref := &model.GatewayReference{
		UserID: userID,
		PlanID: planID,
		Action: claims.Action,
	}

	switch claims.Action {
	case entity.ActionSubscribe, entity.ActionChangePlan:
		gwSub, err := o.gateway.CreateSubscription(ctx, &provider.CreateSubscriptionRequest{
			GatewayPlanID: plan.GatewayPlanID,
			CustomerID:    customerID,
			Notes:         notes,
		})
		if err != nil {
			logger.Error("Failed to create gateway subscription", zap.Error(err))
			return nil, upstreamError(err)
		}
		session.Kind = model.GatewayRefSubscription
		session.GatewaySubscriptionID = gwSub.ID
		ref.Kind, ref.GatewayRefID = model.GatewayRefSubscription, gwSub.ID

	case entity.ActionReactivate:
		order, err := o.gateway.CreateOrder(ctx, &provider.CreateOrderRequest{
			Amount:   plan.AmountMinor,
			Currency: plan.Currency,
			Receipt:  receipt(userID),
			Notes:    notes,
		})
		if err != nil {
			logger.Error("Failed to create gateway order", zap.Error(err))
			return nil, upstreamError(err)
		}
		session.Kind = model.GatewayRefOrder
		session.GatewayOrderID = order.ID
		ref.Kind, ref.GatewayRefID = model.GatewayRefOrder, order.ID

	default:
		return nil, errors.NewAppError(errors.ErrInvalidArgument, "Invalid action: "+claims.Action, nil)
	}

	if err := o.refs.Create(ctx, ref); err != nil {
		logger.Error("Failed to record gateway reference", zap.Error(err))
		return nil, errors.Unavailable(err)
	}

	if err := o.recordCheckout(ctx, sub, userID, plan, customerID, session.GatewaySubscriptionID); err != nil {
		logger.Error("Failed to record checkout", zap.Error(err))
		return nil, errors.Unavailable(err)
	}

	logger.Info("Checkout started",
		zap.String("kind", session.Kind),
		zap.String("gateway_ref_id", ref.GatewayRefID))
	return session, nil
}

// recordCheckout creates the trial row on first checkout. Existing rows only gain a customer id.
func (o *CheckoutOrchestrator) recordCheckout(ctx context.Context, sub *model.Subscription, userID uuid.UUID, plan *model.Plan, customerID, gatewaySubID string) error {
	if sub == nil {
		row := &model.Subscription{
			UserID:            userID,
			PlanID:            plan.ID,
			Status:            model.SubscriptionStatusTrial,
			GatewayCustomerID: customerID,
		}
		if gatewaySubID != "" {
			row.GatewaySubscriptionID = &gatewaySubID
		}
		if plan.TrialDays > 0 {
			trialEnds := o.now().AddDate(0, 0, plan.TrialDays)
			row.TrialEndsAt = &trialEnds
		}
		created, err := o.subs.CreateIfAbsent(ctx, row)
		if err != nil || created {
			return err
		}
		if sub, err = o.subs.GetByUserID(ctx, userID); err != nil || sub == nil {
			return err
		}
	}

	if sub.GatewayCustomerID != "" {
		return nil
	}
	sub.GatewayCustomerID = customerID
	return o.subs.Save(ctx, sub)
}

func receipt(userID uuid.UUID) string {
	return "rcpt_" + strings.ReplaceAll(userID.String(), "-", "")[:12] + "_" + uuid.NewString()[:8]
}

func loadUserAndPlan(ctx context.Context, users repository.UserRepository, plans repository.PlanRepository, userID, planID uuid.UUID) (*model.User, *model.Plan, error) {
	user, err := users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, errors.Unavailable(err)
	}
	if user == nil {
		return nil, nil, errors.NewAppError(errors.ErrNotFound, "User not found", domainErrors.ErrUserNotFound)
	}

	plan, err := plans.GetByID(ctx, planID)
	if err != nil {
		return nil, nil, errors.Unavailable(err)
	}
	if plan == nil || !plan.IsActive {
		return nil, nil, errors.NewAppError(errors.ErrNotFound, "Plan not found", domainErrors.ErrPlanNotFound)
	}
	return user, plan, nil
}
