package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/entity"
	domainErrors "github.com/wityliti/wityliti.io-sub000/internal/domain/errors"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/model"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/provider"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/repository"
	"github.com/wityliti/wityliti.io-sub000/internal/infrastructure/crypto"
	"github.com/wityliti/wityliti.io-sub000/pkg/errors"
	"go.uber.org/zap"
)

// ConfirmPayment is the synchronous checkout-return path. It converges with the
// webhook path: the ledger row and the billing period move at most once per payment.
func (r *SubscriptionReconciler) ConfirmPayment(ctx context.Context, userID uuid.UUID, conf entity.PaymentConfirmation) (*model.Subscription, Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	logger := r.logger.With(
		zap.String("user_id", userID.String()),
		zap.String("gateway_payment_id", conf.GatewayPaymentID))

	var (
		message []byte
		refID   string
		kind    string
	)
	switch {
	case conf.GatewaySubscriptionID != "":
		message = crypto.SubscriptionPaymentMessage(conf.GatewayPaymentID, conf.GatewaySubscriptionID)
		refID, kind = conf.GatewaySubscriptionID, model.GatewayRefSubscription
	case conf.GatewayOrderID != "":
		message = crypto.OrderPaymentMessage(conf.GatewayOrderID, conf.GatewayPaymentID)
		refID, kind = conf.GatewayOrderID, model.GatewayRefOrder
	default:
		return nil, "", errors.NewAppError(errors.ErrInvalidArgument, "gateway_order_id or gateway_subscription_id is required", nil)
	}

	if conf.GatewayPaymentID == "" || !r.signer.Verify(message, conf.Signature) {
		logger.Warn("Payment confirmation signature rejected", zap.String("kind", kind))
		return nil, "", errors.NewAppError(errors.ErrUnauthenticated, "Invalid payment signature", domainErrors.ErrInvalidPaymentSignature)
	}

	ref, err := r.refs.GetByGatewayRefID(ctx, refID)
	if err != nil {
		return nil, "", errors.Unavailable(err)
	}
	if ref == nil || ref.Kind != kind {
		logger.Warn("Payment confirmation for unknown gateway object", zap.String("gateway_ref_id", refID))
		return nil, "", errors.NewAppError(errors.ErrNotFound, "Checkout not found", domainErrors.ErrReferenceNotFound)
	}
	if ref.UserID != userID {
		logger.Warn("Payment confirmation owner mismatch", zap.String("gateway_ref_id", refID))
		return nil, "", errors.NewAppError(errors.ErrUnauthorized, "Checkout belongs to another user", domainErrors.ErrOwnerUnverified)
	}

	pay, err := r.gateway.FetchPayment(ctx, conf.GatewayPaymentID)
	if err != nil {
		return nil, "", r.upstream(err)
	}
	if kind == model.GatewayRefOrder && pay.OrderID != "" && pay.OrderID != conf.GatewayOrderID {
		logger.Warn("Payment belongs to a different order", zap.String("payment_order_id", pay.OrderID))
		return nil, "", errors.NewAppError(errors.ErrUnauthenticated, "Invalid payment signature", domainErrors.ErrInvalidPaymentSignature)
	}
	if pay.Status != "captured" && pay.Status != "authorized" {
		logger.Warn("Payment not completed", zap.String("payment_status", pay.Status))
		return nil, "", errors.NewAppError(errors.ErrInvalidArgument, "Payment is not completed", nil)
	}

	var gatewaySub *provider.Subscription
	if kind == model.GatewayRefSubscription {
		// absolute bounds keep this path from extending a period the webhook already set
		gatewaySub, err = r.gateway.FetchSubscription(ctx, refID)
		if err != nil {
			return nil, "", r.upstream(err)
		}
	}

	unlock := r.locks.Lock(userID.String())
	defer unlock()

	sub, err := r.subs.GetByUserID(ctx, userID)
	if err != nil {
		return nil, "", errors.Unavailable(err)
	}

	gatewaySubID := ""
	if kind == model.GatewayRefSubscription {
		gatewaySubID = refID
		if sub != nil && sub.GatewaySubscription() == refID && sub.Status.IsTerminal() {
			logger.Info("Payment confirmed for cancelled gateway subscription, state unchanged")
			if _, err := r.recordPayment(ctx, userID, gatewaySubID, pay); err != nil {
				return nil, "", err
			}
			return sub, OutcomeIgnored, nil
		}
	}

	if _, err := r.recordPayment(ctx, userID, gatewaySubID, pay); err != nil {
		return nil, "", err
	}

	// Build the next state on a copy; an already claimed payment leaves the stored row as it is
	previous := model.SubscriptionStatus("")
	next := &model.Subscription{UserID: userID, PlanID: ref.PlanID}
	if sub != nil {
		previous = sub.Status
		cp := *sub
		next = &cp
	}
	if gatewaySubID != "" && next.GatewaySubscription() != gatewaySubID {
		id := gatewaySubID
		next.GatewaySubscriptionID = &id
	}
	next.PlanID = ref.PlanID
	next.Status = model.SubscriptionStatusActive
	next.TrialEndsAt = nil
	next.GracePeriodEndsAt = nil
	next.CancelledAt = nil

	if err := r.applyPeriod(ctx, next, gatewaySub, r.now()); err != nil {
		return nil, "", err
	}
	claim := repository.PeriodClaim{GatewayPaymentID: pay.ID}
	if !billing(previous) {
		claim.GatewaySubscriptionID = gatewaySubID
	}
	claimed, err := r.subs.SaveWithPeriodClaim(ctx, next, claim)
	if err != nil {
		return nil, "", errors.Unavailable(err)
	}
	if !claimed {
		logger.Info("Payment already applied")
		if sub == nil {
			return nil, OutcomeDuplicate, errors.NewAppError(errors.ErrNotFound, "Subscription not found", domainErrors.ErrSubscriptionNotFound)
		}
		return sub, OutcomeDuplicate, nil
	}
	sub = next

	logger.Info("Payment confirmed",
		zap.String("from", string(previous)),
		zap.String("kind", kind))
	if previous != model.SubscriptionStatusActive {
		r.publish(ctx, sub, previous, "payment.confirmed")
	}
	return sub, OutcomeApplied, nil
}

func (r *SubscriptionReconciler) upstream(err error) error {
	r.logger.Error("Gateway call failed", zap.Error(err))
	return upstreamError(err)
}
