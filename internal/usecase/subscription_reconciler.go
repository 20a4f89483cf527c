package usecase

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	domainErrors "github.com/wityliti/wityliti.io-sub000/internal/domain/errors"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/model"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/provider"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/repository"
	"github.com/wityliti/wityliti.io-sub000/internal/infrastructure/crypto"
	"github.com/wityliti/wityliti.io-sub000/pkg/errors"
	"github.com/wityliti/wityliti.io-sub000/pkg/messaging"
	"go.uber.org/zap"
)

// Outcome describes what a reconciliation did
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDropped   Outcome = "dropped"
)

const defaultOperationTimeout = 15 * time.Second

// SubscriptionChanged is published after every status change
type SubscriptionChanged struct {
	UserID   string    `json:"user_id"`
	PlanID   string    `json:"plan_id"`
	Previous string    `json:"previous"`
	Status   string    `json:"status"`
	Event    string    `json:"event"`
	At       time.Time `json:"at"`
}

type ReconcilerDeps struct {
	Subscriptions repository.SubscriptionRepository
	Payments      repository.PaymentRepository
	Plans         repository.PlanRepository
	References    repository.GatewayReferenceRepository
	Events        repository.WebhookEventRepository
	Gateway       provider.Gateway
	Box           *crypto.Box
	// GatewaySecret verifies direct payment confirmations
	GatewaySecret    string
	Publisher        messaging.Publisher
	Channel          string
	OperationTimeout time.Duration
	Now              func() time.Time
	Logger           *zap.Logger
}

// SubscriptionReconciler applies verified gateway events to subscription and payment records
type SubscriptionReconciler struct {
	subs      repository.SubscriptionRepository
	payments  repository.PaymentRepository
	plans     repository.PlanRepository
	refs      repository.GatewayReferenceRepository
	events    repository.WebhookEventRepository
	gateway   provider.Gateway
	box       *crypto.Box
	signer    *crypto.Signer
	publisher messaging.Publisher
	channel   string
	timeout   time.Duration
	locks     *keyedMutex
	now       func() time.Time
	logger    *zap.Logger
}

func NewSubscriptionReconciler(deps ReconcilerDeps) *SubscriptionReconciler {
	r := &SubscriptionReconciler{
		subs:      deps.Subscriptions,
		payments:  deps.Payments,
		plans:     deps.Plans,
		refs:      deps.References,
		events:    deps.Events,
		gateway:   deps.Gateway,
		box:       deps.Box,
		signer:    crypto.NewSigner(deps.GatewaySecret),
		publisher: deps.Publisher,
		channel:   deps.Channel,
		timeout:   deps.OperationTimeout,
		locks:     newKeyedMutex(),
		now:       deps.Now,
		logger:    deps.Logger,
	}
	if r.publisher == nil {
		r.publisher = messaging.NoopPublisher{}
	}
	if r.timeout <= 0 {
		r.timeout = defaultOperationTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// owner is a gateway object whose user was confirmed against a stored reference
type owner struct {
	userID uuid.UUID
	ref    *model.GatewayReference
	// subscription is the gateway's current copy, when the object is a subscription
	subscription *provider.Subscription
}

// HandleWebhook logs and applies one verified event. An error means the delivery should be retried.
func (r *SubscriptionReconciler) HandleWebhook(ctx context.Context, event *provider.WebhookEvent, rawBody []byte) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	logger := r.logger.With(zap.String("event_id", event.EventID), zap.String("event_type", event.Type))

	if event.EventID != "" {
		existing, err := r.events.GetByEventID(ctx, event.EventID)
		if err != nil {
			return "", errors.Unavailable(err)
		}
		if existing != nil && (existing.Status == model.WebhookStatusProcessed || existing.Status == model.WebhookStatusDropped) {
			logger.Info("Webhook event already handled", zap.String("status", string(existing.Status)))
			return OutcomeDuplicate, nil
		}
		if existing == nil {
			if err := r.logEvent(ctx, event, rawBody); err != nil {
				return "", errors.Unavailable(err)
			}
		}
	}

	outcome, err := r.Apply(ctx, event)
	if event.EventID == "" {
		return outcome, err
	}

	if err != nil {
		if markErr := r.events.MarkFailed(ctx, event.EventID, err); markErr != nil {
			logger.Error("Failed to mark webhook event failed", zap.Error(markErr))
		}
		return outcome, err
	}

	status := model.WebhookStatusProcessed
	if outcome == OutcomeDropped {
		status = model.WebhookStatusDropped
	}
	if err := r.events.MarkProcessed(ctx, event.EventID, status); err != nil {
		logger.Error("Failed to mark webhook event processed", zap.Error(err))
	}
	return outcome, nil
}

func (r *SubscriptionReconciler) logEvent(ctx context.Context, event *provider.WebhookEvent, rawBody []byte) error {
	record := &model.WebhookEvent{
		EventID:   event.EventID,
		EventType: event.Type,
		Status:    model.WebhookStatusPending,
		Payload:   model.JSONB{},
	}
	if !event.CreatedAt.IsZero() {
		created := event.CreatedAt
		record.GatewayCreatedAt = &created
	}
	if r.box != nil {
		sealed, err := r.box.Encrypt(rawBody)
		if err != nil {
			return fmt.Errorf("failed to seal webhook payload: %w", err)
		}
		record.Payload = model.JSONB(sealed.Map())
	}
	_, err := r.events.CreateIfAbsent(ctx, record)
	return err
}

// ReplayWebhook re-applies a logged event from its sealed payload, for events left pending or failed
func (r *SubscriptionReconciler) ReplayWebhook(ctx context.Context, eventID string) (Outcome, error) {
	logger := r.logger.With(zap.String("event_id", eventID))

	record, err := r.events.GetByEventID(ctx, eventID)
	if err != nil {
		return "", errors.Unavailable(err)
	}
	if record == nil {
		return "", errors.NewAppError(errors.ErrNotFound, "Webhook event not found", nil)
	}
	if record.Status == model.WebhookStatusProcessed || record.Status == model.WebhookStatusDropped {
		logger.Info("Replay skipped, event already handled", zap.String("status", string(record.Status)))
		return OutcomeDuplicate, nil
	}

	body, ok := r.storedPayload(record)
	if !ok {
		logger.Warn("Replay impossible, stored payload unreadable")
		return "", errors.NewAppError(errors.ErrConflict, "Stored webhook payload is unavailable", nil)
	}
	event, err := r.gateway.ParseWebhookEvent(body, eventID)
	if err != nil {
		logger.Warn("Replay impossible, stored payload does not parse", zap.Error(err))
		return "", errors.NewAppError(errors.ErrConflict, "Stored webhook payload is unavailable", err)
	}

	logger.Info("Replaying webhook event",
		zap.String("event_type", event.Type),
		zap.Int("attempts", record.ProcessingAttempts))
	return r.HandleWebhook(ctx, event, body)
}

// storedPayload decrypts the logged body of a webhook event
func (r *SubscriptionReconciler) storedPayload(record *model.WebhookEvent) (json.RawMessage, bool) {
	if r.box == nil {
		return nil, false
	}
	plaintext, ok := r.box.Decrypt(crypto.EnvelopeFromMap(record.Payload))
	if !ok {
		return nil, false
	}
	return json.RawMessage(plaintext), true
}

// Apply routes an event to its transition
func (r *SubscriptionReconciler) Apply(ctx context.Context, event *provider.WebhookEvent) (Outcome, error) {
	switch event.Type {
	case provider.EventSubscriptionActivated,
		provider.EventSubscriptionCharged,
		provider.EventSubscriptionPending,
		provider.EventSubscriptionHalted,
		provider.EventSubscriptionCancelled:
		return r.applySubscriptionEvent(ctx, event)
	case provider.EventPaymentCaptured, provider.EventPaymentFailed:
		return r.applyPaymentEvent(ctx, event)
	default:
		r.logger.Debug("Unhandled webhook event type", zap.String("event_type", event.Type))
		return OutcomeIgnored, nil
	}
}

func (r *SubscriptionReconciler) applySubscriptionEvent(ctx context.Context, event *provider.WebhookEvent) (Outcome, error) {
	logger := r.logger.With(zap.String("event_id", event.EventID), zap.String("event_type", event.Type))

	if event.Subscription == nil || event.Subscription.ID == "" {
		logger.Warn("Dropping subscription event without subscription entity")
		return OutcomeDropped, nil
	}
	gatewaySubID := event.Subscription.ID

	own, reason, err := r.resolveOwner(ctx, gatewaySubID, model.GatewayRefSubscription)
	if err != nil {
		return "", err
	}
	if own == nil {
		logger.Warn("Dropping event with unverified owner",
			zap.String("gateway_subscription_id", gatewaySubID),
			zap.String("reason", reason))
		return OutcomeDropped, nil
	}

	unlock := r.locks.Lock(own.userID.String())
	defer unlock()

	sub, err := r.subs.GetByUserID(ctx, own.userID)
	if err != nil {
		return "", errors.Unavailable(err)
	}

	// A gateway subscription is tracked by at most one user's row
	tracked, err := r.subs.GetByGatewaySubscriptionID(ctx, gatewaySubID)
	if err != nil {
		return "", errors.Unavailable(err)
	}
	if tracked != nil && tracked.UserID != own.userID {
		logger.Warn("Dropping event for gateway subscription tracked by another user",
			zap.String("user_id", own.userID.String()),
			zap.String("tracking_user_id", tracked.UserID.String()),
			zap.String("gateway_subscription_id", gatewaySubID))
		return OutcomeDropped, nil
	}

	if event.Type == provider.EventSubscriptionActivated {
		return r.activate(ctx, event.Type, own, sub, gatewaySubID)
	}

	if sub == nil || sub.GatewaySubscription() != gatewaySubID {
		logger.Warn("Ignoring event for gateway subscription not attached to the user",
			zap.String("user_id", own.userID.String()),
			zap.String("gateway_subscription_id", gatewaySubID))
		return OutcomeIgnored, nil
	}
	if sub.Status.IsTerminal() {
		logger.Info("Ignoring event for terminal subscription",
			zap.String("user_id", own.userID.String()))
		return OutcomeIgnored, nil
	}

	previous := sub.Status
	now := r.now()
	var claim *repository.PeriodClaim

	switch event.Type {
	case provider.EventSubscriptionCharged:
		if event.Payment == nil || event.Payment.ID == "" {
			logger.Warn("Dropping charge without payment entity")
			return OutcomeDropped, nil
		}
		inserted, err := r.recordPayment(ctx, own.userID, gatewaySubID, event.Payment)
		if err != nil {
			return "", err
		}
		if !billing(sub.Status) {
			// the activation that follows consumes this payment's period
			logger.Info("Recorded charge without state change",
				zap.String("status", string(sub.Status)),
				zap.Bool("inserted", inserted))
			if !inserted {
				return OutcomeDuplicate, nil
			}
			return OutcomeApplied, nil
		}
		sub.Status = model.SubscriptionStatusActive
		sub.GracePeriodEndsAt = nil
		if err := r.applyPeriod(ctx, sub, own.subscription, now); err != nil {
			return "", err
		}
		claim = &repository.PeriodClaim{GatewayPaymentID: event.Payment.ID}

	case provider.EventSubscriptionPending:
		if sub.Status != model.SubscriptionStatusActive {
			return r.ignoreTransition(logger, sub)
		}
		graceEnds := now.Add(model.GracePeriod)
		sub.Status = model.SubscriptionStatusGracePeriod
		sub.GracePeriodEndsAt = &graceEnds

	case provider.EventSubscriptionHalted:
		if sub.Status != model.SubscriptionStatusGracePeriod {
			return r.ignoreTransition(logger, sub)
		}
		sub.Status = model.SubscriptionStatusExpired

	case provider.EventSubscriptionCancelled:
		if !sub.Status.CanCancel() {
			return r.ignoreTransition(logger, sub)
		}
		sub.Status = model.SubscriptionStatusCancelled
		sub.CancelledAt = &now
	}

	if claim != nil {
		claimed, err := r.subs.SaveWithPeriodClaim(ctx, sub, *claim)
		if err != nil {
			return "", errors.Unavailable(err)
		}
		if !claimed {
			logger.Info("Charge already applied", zap.String("gateway_payment_id", claim.GatewayPaymentID))
			return OutcomeDuplicate, nil
		}
	} else if err := r.subs.Save(ctx, sub); err != nil {
		return "", errors.Unavailable(err)
	}

	logger.Info("Subscription transitioned",
		zap.String("user_id", own.userID.String()),
		zap.String("from", string(previous)),
		zap.String("to", string(sub.Status)))
	r.publish(ctx, sub, previous, event.Type)
	return OutcomeApplied, nil
}

// billing reports whether a row is already inside a paid period
func billing(status model.SubscriptionStatus) bool {
	return status == model.SubscriptionStatusActive || status == model.SubscriptionStatusGracePeriod
}

func (r *SubscriptionReconciler) ignoreTransition(logger *zap.Logger, sub *model.Subscription) (Outcome, error) {
	logger.Info("Ignoring event not valid from current status",
		zap.String("user_id", sub.UserID.String()),
		zap.String("status", string(sub.Status)))
	return OutcomeIgnored, nil
}

// activate moves the user's row to active on gatewaySubID, adopting it if the row tracked another one
func (r *SubscriptionReconciler) activate(ctx context.Context, eventType string, own *owner, sub *model.Subscription, gatewaySubID string) (Outcome, error) {
	now := r.now()
	previous := model.SubscriptionStatus("")

	if sub == nil {
		sub = &model.Subscription{UserID: own.userID, PlanID: own.ref.PlanID}
	} else {
		previous = sub.Status
		if sub.GatewaySubscription() == gatewaySubID && sub.Status.IsTerminal() {
			r.logger.Info("Ignoring activation of cancelled gateway subscription",
				zap.String("user_id", own.userID.String()),
				zap.String("gateway_subscription_id", gatewaySubID))
			return OutcomeIgnored, nil
		}
	}

	if sub.GatewaySubscription() != gatewaySubID {
		r.logger.Info("Adopting gateway subscription",
			zap.String("user_id", own.userID.String()),
			zap.String("previous_gateway_subscription_id", sub.GatewaySubscription()),
			zap.String("gateway_subscription_id", gatewaySubID))
		id := gatewaySubID
		sub.GatewaySubscriptionID = &id
		sub.PlanID = own.ref.PlanID
		sub.CancelledAt = nil
	}

	sub.Status = model.SubscriptionStatusActive
	sub.TrialEndsAt = nil
	sub.GracePeriodEndsAt = nil

	if own.subscription != nil && own.subscription.CurrentStart != nil && own.subscription.CurrentEnd != nil {
		start, end := *own.subscription.CurrentStart, *own.subscription.CurrentEnd
		sub.CurrentPeriodStart = &start
		sub.CurrentPeriodEnd = &end
	} else if sub.CurrentPeriodEnd == nil {
		plan, err := r.plan(ctx, sub.PlanID)
		if err != nil {
			return "", err
		}
		if plan != nil {
			sub.ExtendPeriod(plan, now)
		}
	}

	var claim repository.PeriodClaim
	if !billing(previous) {
		// charges recorded before activation are covered by this period
		claim.GatewaySubscriptionID = gatewaySubID
	}
	if _, err := r.subs.SaveWithPeriodClaim(ctx, sub, claim); err != nil {
		return "", errors.Unavailable(err)
	}

	if previous != model.SubscriptionStatusActive {
		r.logger.Info("Subscription activated",
			zap.String("user_id", own.userID.String()),
			zap.String("from", string(previous)))
		r.publish(ctx, sub, previous, eventType)
	}
	return OutcomeApplied, nil
}

// applyPeriod prefers the gateway's absolute bounds and falls back to one plan interval
func (r *SubscriptionReconciler) applyPeriod(ctx context.Context, sub *model.Subscription, gatewaySub *provider.Subscription, now time.Time) error {
	if gatewaySub != nil && gatewaySub.CurrentStart != nil && gatewaySub.CurrentEnd != nil {
		start, end := *gatewaySub.CurrentStart, *gatewaySub.CurrentEnd
		sub.CurrentPeriodStart = &start
		sub.CurrentPeriodEnd = &end
		return nil
	}

	plan, err := r.plan(ctx, sub.PlanID)
	if err != nil {
		return err
	}
	if plan == nil {
		r.logger.Warn("Plan missing, billing period left unchanged",
			zap.String("user_id", sub.UserID.String()),
			zap.String("plan_id", sub.PlanID.String()))
		return nil
	}
	sub.ExtendPeriod(plan, now)
	return nil
}

func (r *SubscriptionReconciler) plan(ctx context.Context, id uuid.UUID) (*model.Plan, error) {
	plan, err := r.plans.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Unavailable(err)
	}
	return plan, nil
}

func (r *SubscriptionReconciler) applyPaymentEvent(ctx context.Context, event *provider.WebhookEvent) (Outcome, error) {
	logger := r.logger.With(zap.String("event_id", event.EventID), zap.String("event_type", event.Type))

	pay := event.Payment
	if pay == nil || pay.ID == "" {
		logger.Warn("Dropping payment event without payment entity")
		return OutcomeDropped, nil
	}

	var (
		own          *owner
		reason       string
		err          error
		gatewaySubID string
	)
	switch {
	case pay.OrderID != "":
		own, reason, err = r.resolveOwner(ctx, pay.OrderID, model.GatewayRefOrder)
		if err == nil && own == nil && event.Subscription != nil && event.Subscription.ID != "" {
			gatewaySubID = event.Subscription.ID
			own, reason, err = r.resolveOwner(ctx, gatewaySubID, model.GatewayRefSubscription)
		}
	case event.Subscription != nil && event.Subscription.ID != "":
		gatewaySubID = event.Subscription.ID
		own, reason, err = r.resolveOwner(ctx, gatewaySubID, model.GatewayRefSubscription)
	default:
		reason = "payment not linked to an order or subscription"
	}
	if err != nil {
		return "", err
	}
	if own == nil {
		logger.Warn("Dropping payment event with unverified owner",
			zap.String("gateway_payment_id", pay.ID),
			zap.String("reason", reason))
		return OutcomeDropped, nil
	}

	if event.Type == provider.EventPaymentFailed && pay.Status != "failed" {
		failed := *pay
		failed.Status = "failed"
		pay = &failed
	}

	unlock := r.locks.Lock(own.userID.String())
	defer unlock()

	inserted, err := r.recordPayment(ctx, own.userID, gatewaySubID, pay)
	if err != nil {
		return "", err
	}
	if !inserted {
		logger.Info("Payment already recorded", zap.String("gateway_payment_id", pay.ID))
		return OutcomeDuplicate, nil
	}
	logger.Info("Payment recorded",
		zap.String("user_id", own.userID.String()),
		zap.String("gateway_payment_id", pay.ID),
		zap.String("status", paymentStatus(event.Type, pay)))
	return OutcomeApplied, nil
}

// recordPayment appends the ledger row if absent. The billing period is claimed separately, together with the save.
func (r *SubscriptionReconciler) recordPayment(ctx context.Context, userID uuid.UUID, gatewaySubID string, pay *provider.Payment) (bool, error) {
	inserted, err := r.payments.CreateIfAbsent(ctx, paymentRow(userID, gatewaySubID, pay, r.now()))
	if err != nil {
		return false, errors.Unavailable(err)
	}
	return inserted, nil
}

func paymentStatus(eventType string, pay *provider.Payment) string {
	if eventType == provider.EventPaymentFailed || pay.Status == "failed" {
		return string(model.PaymentStatusFailed)
	}
	return string(model.PaymentStatusPaid)
}

func paymentRow(userID uuid.UUID, gatewaySubID string, pay *provider.Payment, now time.Time) *model.Payment {
	row := &model.Payment{
		UserID:           userID,
		GatewayPaymentID: pay.ID,
		Amount:           model.MinorToMajor(pay.Amount),
		Currency:         strings.ToUpper(pay.Currency),
		Status:           model.PaymentStatusPaid,
		Method:           pay.Method,
	}
	if pay.OrderID != "" {
		orderID := pay.OrderID
		row.GatewayOrderID = &orderID
	}
	if pay.InvoiceID != "" {
		invoiceID := pay.InvoiceID
		row.GatewayInvoiceID = &invoiceID
	}
	if gatewaySubID != "" {
		row.GatewaySubscriptionID = &gatewaySubID
	}

	if pay.Status == "failed" {
		row.Status = model.PaymentStatusFailed
		reason := pay.ErrorDescription
		if reason == "" {
			reason = "payment failed"
		}
		row.FailureReason = &reason
		return row
	}

	paidAt := now
	if !pay.CreatedAt.IsZero() {
		paidAt = pay.CreatedAt
	}
	row.PaidAt = &paidAt
	return row
}

// resolveOwner trusts only a user id that the gateway echoes back from notes this service wrote
// and that matches the reference stored when the object was created. A nil owner with a reason
// means drop; an error means retry.
func (r *SubscriptionReconciler) resolveOwner(ctx context.Context, gatewayRefID, kind string) (*owner, string, error) {
	var (
		notes      provider.Notes
		gatewaySub *provider.Subscription
	)
	switch kind {
	case model.GatewayRefSubscription:
		sub, err := r.gateway.FetchSubscription(ctx, gatewayRefID)
		if err != nil {
			return r.upstreamOwnerError(err, "gateway subscription")
		}
		notes, gatewaySub = sub.Notes, sub
	case model.GatewayRefOrder:
		order, err := r.gateway.FetchOrder(ctx, gatewayRefID)
		if err != nil {
			return r.upstreamOwnerError(err, "gateway order")
		}
		notes = order.Notes
	default:
		return nil, "unknown reference kind", nil
	}

	noted := notes.Get(provider.NoteUserID)
	if noted == "" {
		return nil, "gateway object carries no owner", nil
	}
	noteUserID, err := uuid.Parse(noted)
	if err != nil {
		return nil, "gateway owner is not a user id", nil
	}

	ref, err := r.refs.GetByGatewayRefID(ctx, gatewayRefID)
	if err != nil {
		return nil, "", errors.Unavailable(err)
	}
	if ref == nil {
		return nil, domainErrors.ErrReferenceNotFound.Error(), nil
	}
	if ref.Kind != kind || ref.UserID != noteUserID {
		return nil, domainErrors.ErrOwnerUnverified.Error(), nil
	}

	return &owner{userID: ref.UserID, ref: ref, subscription: gatewaySub}, "", nil
}

func (r *SubscriptionReconciler) upstreamOwnerError(err error, what string) (*owner, string, error) {
	var perr *provider.ProviderError
	if stderrors.As(err, &perr) && !perr.Retryable() {
		return nil, what + " not found at gateway", nil
	}
	return nil, "", errors.Unavailable(err)
}

func (r *SubscriptionReconciler) publish(ctx context.Context, sub *model.Subscription, previous model.SubscriptionStatus, event string) {
	msg := SubscriptionChanged{
		UserID:   sub.UserID.String(),
		PlanID:   sub.PlanID.String(),
		Previous: string(previous),
		Status:   string(sub.Status),
		Event:    event,
		At:       r.now(),
	}
	if err := r.publisher.Publish(ctx, r.channel, msg); err != nil {
		r.logger.Warn("Failed to publish subscription change",
			zap.String("user_id", msg.UserID),
			zap.Error(err))
	}
}
