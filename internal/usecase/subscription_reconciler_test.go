package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wityliti/wityliti.io-sub000/internal/adapter/repository/memory"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/entity"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/model"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/provider"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/repository"
	"github.com/wityliti/wityliti.io-sub000/internal/infrastructure/crypto"
	pkgerrors "github.com/wityliti/wityliti.io-sub000/pkg/errors"
	"go.uber.org/zap"
)

type reconcilerSuite struct {
	*fixture
	reconciler   *SubscriptionReconciler
	orchestrator *CheckoutOrchestrator
	publisher    *mockPublisher
	box          *crypto.Box
}

func newReconcilerSuite(t *testing.T) *reconcilerSuite {
	t.Helper()
	f := newFixture()
	box, err := crypto.NewBox("test-passphrase")
	require.NoError(t, err)

	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, testChannel, mock.AnythingOfType("usecase.SubscriptionChanged")).Return(nil)

	s := &reconcilerSuite{fixture: f, publisher: pub, box: box}
	s.useSubscriptions(f.store.Subscriptions())
	s.orchestrator = NewCheckoutOrchestrator(
		f.store.Users(), f.store.Plans(), f.store.Subscriptions(), f.store.References(),
		f.gateway, time.Second, f.clock.Now, zap.NewNop())
	return s
}

// useSubscriptions rebuilds the reconciler over subs
func (s *reconcilerSuite) useSubscriptions(subs repository.SubscriptionRepository) {
	s.reconciler = NewSubscriptionReconciler(ReconcilerDeps{
		Subscriptions: subs,
		Payments:      s.store.PaymentRepository(),
		Plans:         s.store.Plans(),
		References:    s.store.References(),
		Events:        s.store.WebhookEvents(),
		Gateway:       s.gateway,
		Box:           s.box,
		GatewaySecret: testGatewaySecret,
		Publisher:     s.publisher,
		Channel:       testChannel,
		Now:           s.clock.Now,
		Logger:        zap.NewNop(),
	})
}

// flakySubscriptions fails the next `failures` writes
type flakySubscriptions struct {
	*memory.SubscriptionRepository
	failures int
}

func (f *flakySubscriptions) fail() error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset by peer")
	}
	return nil
}

func (f *flakySubscriptions) Save(ctx context.Context, sub *model.Subscription) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.SubscriptionRepository.Save(ctx, sub)
}

func (f *flakySubscriptions) SaveWithPeriodClaim(ctx context.Context, sub *model.Subscription, claim repository.PeriodClaim) (bool, error) {
	if err := f.fail(); err != nil {
		return false, err
	}
	return f.SubscriptionRepository.SaveWithPeriodClaim(ctx, sub, claim)
}

// checkout runs a real subscribe checkout and returns the gateway subscription id
func (s *reconcilerSuite) checkout(t *testing.T, action string) *entity.CheckoutSession {
	t.Helper()
	session, err := s.orchestrator.Start(context.Background(), entity.PaymentSessionClaims{
		UserID:    s.user.ID.String(),
		PlanID:    s.plan.ID.String(),
		Action:    action,
		ReturnURL: "https://app.example.com/done",
	})
	require.NoError(t, err)
	return session
}

func (s *reconcilerSuite) setBounds(subID string, start, end time.Time) {
	sub, _ := s.gateway.FetchSubscription(context.Background(), subID)
	sub.Status = "active"
	sub.CurrentStart = &start
	sub.CurrentEnd = &end
	s.gateway.putSubscription(sub)
}

func (s *reconcilerSuite) row(t *testing.T) *model.Subscription {
	t.Helper()
	sub, err := s.store.Subscriptions().GetByUserID(context.Background(), s.user.ID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub
}

func subEvent(eventType, subID string) *provider.WebhookEvent {
	return &provider.WebhookEvent{Type: eventType, Subscription: &provider.Subscription{ID: subID}}
}

func chargeEvent(subID, paymentID string) *provider.WebhookEvent {
	e := subEvent(provider.EventSubscriptionCharged, subID)
	e.Payment = &provider.Payment{ID: paymentID, Amount: 49900, Currency: "inr", Status: "captured", Method: "card"}
	return e
}

func (s *reconcilerSuite) apply(t *testing.T, event *provider.WebhookEvent) Outcome {
	t.Helper()
	outcome, err := s.reconciler.Apply(context.Background(), event)
	require.NoError(t, err)
	return outcome
}

func TestReconcilerLifecycle(t *testing.T) {
	s := newReconcilerSuite(t)
	session := s.checkout(t, entity.ActionSubscribe)
	subID := session.GatewaySubscriptionID

	row := s.row(t)
	assert.Equal(t, model.SubscriptionStatusTrial, row.Status)
	require.NotNil(t, row.TrialEndsAt)

	start := s.clock.Now()
	end := start.AddDate(0, 1, 0)
	s.setBounds(subID, start, end)

	assert.Equal(t, OutcomeApplied, s.apply(t, subEvent(provider.EventSubscriptionActivated, subID)))
	row = s.row(t)
	assert.Equal(t, model.SubscriptionStatusActive, row.Status)
	assert.Nil(t, row.TrialEndsAt)
	assert.Equal(t, start, *row.CurrentPeriodStart)
	assert.Equal(t, end, *row.CurrentPeriodEnd)

	s.clock.Advance(31 * 24 * time.Hour)
	assert.Equal(t, OutcomeApplied, s.apply(t, subEvent(provider.EventSubscriptionPending, subID)))
	row = s.row(t)
	assert.Equal(t, model.SubscriptionStatusGracePeriod, row.Status)
	require.NotNil(t, row.GracePeriodEndsAt)
	assert.Equal(t, s.clock.Now().Add(7*24*time.Hour), *row.GracePeriodEndsAt)

	nextStart, nextEnd := end, end.AddDate(0, 1, 0)
	s.setBounds(subID, nextStart, nextEnd)
	assert.Equal(t, OutcomeApplied, s.apply(t, chargeEvent(subID, "pay_2")))
	row = s.row(t)
	assert.Equal(t, model.SubscriptionStatusActive, row.Status)
	assert.Nil(t, row.GracePeriodEndsAt)
	assert.Equal(t, nextEnd, *row.CurrentPeriodEnd)

	assert.Equal(t, OutcomeApplied, s.apply(t, subEvent(provider.EventSubscriptionPending, subID)))
	assert.Equal(t, OutcomeApplied, s.apply(t, subEvent(provider.EventSubscriptionHalted, subID)))
	assert.Equal(t, model.SubscriptionStatusExpired, s.row(t).Status)

	// expired cannot be cancelled or charged back to active
	assert.Equal(t, OutcomeIgnored, s.apply(t, subEvent(provider.EventSubscriptionCancelled, subID)))
	assert.Equal(t, OutcomeIgnored, s.apply(t, subEvent(provider.EventSubscriptionPending, subID)))
	assert.Equal(t, model.SubscriptionStatusExpired, s.row(t).Status)

	s.publisher.AssertNumberOfCalls(t, "Publish", 5)
}

func TestReconcilerChargedTwiceOneRow(t *testing.T) {
	s := newReconcilerSuite(t)
	subID := s.checkout(t, entity.ActionSubscribe).GatewaySubscriptionID
	s.apply(t, subEvent(provider.EventSubscriptionActivated, subID))
	first := *s.row(t).CurrentPeriodEnd

	assert.Equal(t, OutcomeApplied, s.apply(t, chargeEvent(subID, "pay_1")))
	afterOne := *s.row(t).CurrentPeriodEnd
	assert.Equal(t, first.AddDate(0, 1, 0), afterOne)

	assert.Equal(t, OutcomeDuplicate, s.apply(t, chargeEvent(subID, "pay_1")))
	assert.Len(t, s.store.Payments(), 1)
	assert.Equal(t, afterOne, *s.row(t).CurrentPeriodEnd, "period moved once")

	p := s.store.Payments()[0]
	assert.Equal(t, "499.00", p.Amount.StringFixed(2))
	assert.Equal(t, "INR", p.Currency)
	assert.Equal(t, model.PaymentStatusPaid, p.Status)
	assert.Equal(t, subID, *p.GatewaySubscriptionID)
}

func TestReconcilerCancelIsTerminal(t *testing.T) {
	s := newReconcilerSuite(t)
	subID := s.checkout(t, entity.ActionSubscribe).GatewaySubscriptionID

	// trial can be cancelled directly
	assert.Equal(t, OutcomeApplied, s.apply(t, subEvent(provider.EventSubscriptionCancelled, subID)))
	row := s.row(t)
	assert.Equal(t, model.SubscriptionStatusCancelled, row.Status)
	assert.Equal(t, s.clock.Now(), *row.CancelledAt)

	for _, eventType := range []string{
		provider.EventSubscriptionActivated,
		provider.EventSubscriptionPending,
		provider.EventSubscriptionCancelled,
	} {
		assert.Equal(t, OutcomeIgnored, s.apply(t, subEvent(eventType, subID)), eventType)
	}
	assert.Equal(t, OutcomeIgnored, s.apply(t, chargeEvent(subID, "pay_late")))
	assert.Equal(t, model.SubscriptionStatusCancelled, s.row(t).Status)
}

func TestReconcilerAdoptsNewGatewaySubscription(t *testing.T) {
	s := newReconcilerSuite(t)
	oldID := s.checkout(t, entity.ActionSubscribe).GatewaySubscriptionID
	s.apply(t, subEvent(provider.EventSubscriptionActivated, oldID))
	s.apply(t, subEvent(provider.EventSubscriptionCancelled, oldID))

	newID := s.checkout(t, entity.ActionSubscribe).GatewaySubscriptionID
	require.NotEqual(t, oldID, newID)
	assert.Equal(t, model.SubscriptionStatusCancelled, s.row(t).Status, "checkout never transitions")

	assert.Equal(t, OutcomeApplied, s.apply(t, subEvent(provider.EventSubscriptionActivated, newID)))
	row := s.row(t)
	assert.Equal(t, model.SubscriptionStatusActive, row.Status)
	assert.Equal(t, newID, row.GatewaySubscription())
	assert.Nil(t, row.CancelledAt)

	// the old gateway subscription no longer drives the row
	assert.Equal(t, OutcomeIgnored, s.apply(t, subEvent(provider.EventSubscriptionPending, oldID)))
	assert.Equal(t, model.SubscriptionStatusActive, s.row(t).Status)
}

func TestReconcilerDropsForgedOrMissingOwner(t *testing.T) {
	s := newReconcilerSuite(t)
	subID := s.checkout(t, entity.ActionSubscribe).GatewaySubscriptionID

	t.Run("notes rewritten to another user", func(t *testing.T) {
		sub, _ := s.gateway.FetchSubscription(context.Background(), subID)
		sub.Notes = provider.Notes{provider.NoteUserID: uuid.NewString()}
		s.gateway.putSubscription(sub)

		assert.Equal(t, OutcomeDropped, s.apply(t, subEvent(provider.EventSubscriptionActivated, subID)))
		assert.Equal(t, model.SubscriptionStatusTrial, s.row(t).Status)
	})

	t.Run("notes missing", func(t *testing.T) {
		sub, _ := s.gateway.FetchSubscription(context.Background(), subID)
		sub.Notes = provider.Notes{}
		s.gateway.putSubscription(sub)

		assert.Equal(t, OutcomeDropped, s.apply(t, subEvent(provider.EventSubscriptionActivated, subID)))
	})

	t.Run("gateway object never created here", func(t *testing.T) {
		s.gateway.putSubscription(&provider.Subscription{
			ID:    "sub_foreign",
			Notes: provider.Notes{provider.NoteUserID: s.user.ID.String()},
		})
		assert.Equal(t, OutcomeDropped, s.apply(t, subEvent(provider.EventSubscriptionActivated, "sub_foreign")))
	})

	t.Run("payload claims owner the gateway does not", func(t *testing.T) {
		e := subEvent(provider.EventSubscriptionCancelled, "sub_unknown")
		e.Subscription.Notes = provider.Notes{provider.NoteUserID: s.user.ID.String()}
		assert.Equal(t, OutcomeDropped, s.apply(t, e))
	})

	t.Run("no subscription entity", func(t *testing.T) {
		assert.Equal(t, OutcomeDropped, s.apply(t, &provider.WebhookEvent{Type: provider.EventSubscriptionActivated}))
	})

	assert.Equal(t, model.SubscriptionStatusTrial, s.row(t).Status)
	s.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcilerPaymentEvents(t *testing.T) {
	s := newReconcilerSuite(t)
	session := s.checkout(t, entity.ActionReactivate)
	orderID := session.GatewayOrderID
	require.NotEmpty(t, orderID)

	captured := &provider.WebhookEvent{
		Type:    provider.EventPaymentCaptured,
		Payment: &provider.Payment{ID: "pay_10", OrderID: orderID, Amount: 49900, Currency: "INR", Status: "captured", Method: "upi"},
	}
	assert.Equal(t, OutcomeApplied, s.apply(t, captured))
	assert.Equal(t, OutcomeDuplicate, s.apply(t, captured))
	assert.Equal(t, model.SubscriptionStatusTrial, s.row(t).Status, "captured changes no state")

	failed := &provider.WebhookEvent{
		Type:    provider.EventPaymentFailed,
		Payment: &provider.Payment{ID: "pay_11", OrderID: orderID, Amount: 49900, Currency: "INR", Status: "failed", ErrorDescription: "card declined"},
	}
	assert.Equal(t, OutcomeApplied, s.apply(t, failed))

	payments := s.store.Payments()
	require.Len(t, payments, 2)
	assert.Equal(t, model.PaymentStatusPaid, payments[0].Status)
	assert.NotNil(t, payments[0].PaidAt)
	assert.Equal(t, model.PaymentStatusFailed, payments[1].Status)
	assert.Equal(t, "card declined", *payments[1].FailureReason)
	assert.Nil(t, payments[1].PaidAt)

	orphan := &provider.WebhookEvent{
		Type:    provider.EventPaymentCaptured,
		Payment: &provider.Payment{ID: "pay_12", OrderID: "order_elsewhere", Amount: 100, Currency: "INR", Status: "captured"},
	}
	assert.Equal(t, OutcomeDropped, s.apply(t, orphan))
	assert.Len(t, s.store.Payments(), 2)
}

func TestReconcilerUpstreamFailureIsRetryable(t *testing.T) {
	s := newReconcilerSuite(t)
	subID := s.checkout(t, entity.ActionSubscribe).GatewaySubscriptionID
	s.gateway.setFailure(&provider.ProviderError{StatusCode: 503, Message: "unavailable"})

	_, err := s.reconciler.Apply(context.Background(), subEvent(provider.EventSubscriptionActivated, subID))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ErrUnavailable, pkgerrors.CodeOf(err))
	assert.Equal(t, model.SubscriptionStatusTrial, s.row(t).Status)
}

func TestHandleWebhookEventLog(t *testing.T) {
	s := newReconcilerSuite(t)
	subID := s.checkout(t, entity.ActionSubscribe).GatewaySubscriptionID
	ctx := context.Background()
	raw := []byte(`{"event":"subscription.activated","payload":{"subscription":{"entity":{"id":"` + subID + `"}}}}`)

	event := subEvent(provider.EventSubscriptionActivated, subID)
	event.EventID = "evt_1"

	outcome, err := s.reconciler.HandleWebhook(ctx, event, raw)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	stored, err := s.store.WebhookEvents().GetByEventID(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, model.WebhookStatusProcessed, stored.Status)
	assert.NotContains(t, stored.Payload, "event", "payload is sealed")

	plaintext, ok := s.box.Decrypt(crypto.EnvelopeFromMap(stored.Payload))
	require.True(t, ok)
	assert.JSONEq(t, string(raw), string(plaintext))

	outcome, err = s.reconciler.HandleWebhook(ctx, event, raw)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
}

func TestHandleWebhookRecordsFailure(t *testing.T) {
	s := newReconcilerSuite(t)
	subID := s.checkout(t, entity.ActionSubscribe).GatewaySubscriptionID
	ctx := context.Background()

	event := subEvent(provider.EventSubscriptionActivated, subID)
	event.EventID = "evt_retry"

	s.gateway.setFailure(errors.New("connection reset"))
	_, err := s.reconciler.HandleWebhook(ctx, event, []byte(`{}`))
	require.Error(t, err)

	stored, _ := s.store.WebhookEvents().GetByEventID(ctx, "evt_retry")
	assert.Equal(t, model.WebhookStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.ProcessingAttempts)

	// the retried delivery applies
	s.gateway.setFailure(nil)
	outcome, err := s.reconciler.HandleWebhook(ctx, event, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
}

func TestReplayWebhookFromStoredPayload(t *testing.T) {
	s := newReconcilerSuite(t)
	subID := s.checkout(t, entity.ActionSubscribe).GatewaySubscriptionID
	ctx := context.Background()
	raw := []byte(`{"event":"subscription.activated","payload":{"subscription":{"entity":{"id":"` + subID + `"}}}}`)

	event := subEvent(provider.EventSubscriptionActivated, subID)
	event.EventID = "evt_replay"

	s.gateway.setFailure(errors.New("connection reset"))
	_, err := s.reconciler.HandleWebhook(ctx, event, raw)
	require.Error(t, err)
	s.gateway.setFailure(nil)

	outcome, err := s.reconciler.ReplayWebhook(ctx, "evt_replay")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, model.SubscriptionStatusActive, s.row(t).Status)

	stored, _ := s.store.WebhookEvents().GetByEventID(ctx, "evt_replay")
	assert.Equal(t, model.WebhookStatusProcessed, stored.Status)

	outcome, err = s.reconciler.ReplayWebhook(ctx, "evt_replay")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	_, err = s.reconciler.ReplayWebhook(ctx, "evt_missing")
	assert.Equal(t, pkgerrors.ErrNotFound, pkgerrors.CodeOf(err))
}

func TestReplayWebhookUnreadablePayload(t *testing.T) {
	s := newReconcilerSuite(t)
	ctx := context.Background()
	_, err := s.store.WebhookEvents().CreateIfAbsent(ctx, &model.WebhookEvent{
		EventID: "evt_plain",
		Status:  model.WebhookStatusFailed,
		Payload: model.JSONB{"event": "subscription.activated"},
	})
	require.NoError(t, err)

	_, err = s.reconciler.ReplayWebhook(ctx, "evt_plain")
	assert.Equal(t, pkgerrors.ErrConflict, pkgerrors.CodeOf(err))
}

func TestReconcilerChargeRetriedAfterFailedSave(t *testing.T) {
	s := newReconcilerSuite(t)
	subID := s.checkout(t, entity.ActionSubscribe).GatewaySubscriptionID
	s.apply(t, subEvent(provider.EventSubscriptionActivated, subID))
	s.apply(t, subEvent(provider.EventSubscriptionPending, subID))
	before := *s.row(t).CurrentPeriodEnd

	flaky := &flakySubscriptions{SubscriptionRepository: s.store.Subscriptions(), failures: 1}
	s.useSubscriptions(flaky)

	_, err := s.reconciler.Apply(context.Background(), chargeEvent(subID, "pay_x"))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ErrUnavailable, pkgerrors.CodeOf(err))
	assert.Equal(t, model.SubscriptionStatusGracePeriod, s.row(t).Status)
	require.Len(t, s.store.Payments(), 1)
	assert.False(t, s.store.Payments()[0].PeriodApplied, "failed save leaves the period unclaimed")

	// the redelivery still moves the row
	assert.Equal(t, OutcomeApplied, s.apply(t, chargeEvent(subID, "pay_x")))
	row := s.row(t)
	assert.Equal(t, model.SubscriptionStatusActive, row.Status)
	assert.Equal(t, before.AddDate(0, 1, 0), *row.CurrentPeriodEnd)

	assert.Equal(t, OutcomeDuplicate, s.apply(t, chargeEvent(subID, "pay_x")))
	assert.Equal(t, before.AddDate(0, 1, 0), *s.row(t).CurrentPeriodEnd)
}

func TestReconcilerActivationRetriedAfterFailedSave(t *testing.T) {
	s := newReconcilerSuite(t)
	subID := s.checkout(t, entity.ActionSubscribe).GatewaySubscriptionID
	assert.Equal(t, OutcomeApplied, s.apply(t, chargeEvent(subID, "pay_1")))

	s.useSubscriptions(&flakySubscriptions{SubscriptionRepository: s.store.Subscriptions(), failures: 1})

	_, err := s.reconciler.Apply(context.Background(), subEvent(provider.EventSubscriptionActivated, subID))
	require.Error(t, err)
	assert.Equal(t, model.SubscriptionStatusTrial, s.row(t).Status)
	assert.False(t, s.store.Payments()[0].PeriodApplied)

	assert.Equal(t, OutcomeApplied, s.apply(t, subEvent(provider.EventSubscriptionActivated, subID)))
	assert.Equal(t, model.SubscriptionStatusActive, s.row(t).Status)
	assert.True(t, s.store.Payments()[0].PeriodApplied)
}

func TestReconcilerTrialChargeConsumedByActivation(t *testing.T) {
	s := newReconcilerSuite(t)
	subID := s.checkout(t, entity.ActionSubscribe).GatewaySubscriptionID

	// charged lands while the row is still in trial
	assert.Equal(t, OutcomeApplied, s.apply(t, chargeEvent(subID, "pay_1")))
	assert.Equal(t, model.SubscriptionStatusTrial, s.row(t).Status)

	assert.Equal(t, OutcomeApplied, s.apply(t, subEvent(provider.EventSubscriptionActivated, subID)))
	periodEnd := *s.row(t).CurrentPeriodEnd
	assert.Equal(t, s.clock.Now().AddDate(0, 1, 0), periodEnd)

	s.gateway.putPayment(&provider.Payment{ID: "pay_1", Amount: 49900, Currency: "INR", Status: "captured", Method: "card"})
	sub, outcome, err := s.reconciler.ConfirmPayment(context.Background(), s.user.ID, entity.PaymentConfirmation{
		GatewayPaymentID:      "pay_1",
		GatewaySubscriptionID: subID,
		Signature:             signSubscriptionPayment("pay_1", subID),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, periodEnd, *sub.CurrentPeriodEnd)
	assert.Equal(t, periodEnd, *s.row(t).CurrentPeriodEnd, "one payment buys one period")

	assert.Equal(t, OutcomeDuplicate, s.apply(t, chargeEvent(subID, "pay_1")))
	assert.Equal(t, periodEnd, *s.row(t).CurrentPeriodEnd)
}

func TestReconcilerDropsSubscriptionTrackedByAnotherUser(t *testing.T) {
	s := newReconcilerSuite(t)
	subID := s.checkout(t, entity.ActionSubscribe).GatewaySubscriptionID
	other := uuid.New()
	tracked := subID
	require.NoError(t, s.store.Subscriptions().Save(context.Background(), &model.Subscription{
		UserID:                other,
		PlanID:                s.plan.ID,
		Status:                model.SubscriptionStatusActive,
		GatewaySubscriptionID: &tracked,
	}))

	assert.Equal(t, OutcomeDropped, s.apply(t, subEvent(provider.EventSubscriptionActivated, subID)))
	assert.Equal(t, OutcomeDropped, s.apply(t, subEvent(provider.EventSubscriptionCancelled, subID)))
	assert.Equal(t, model.SubscriptionStatusTrial, s.row(t).Status)
	s.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func signSubscriptionPayment(paymentID, subID string) string {
	return crypto.Sign([]byte(testGatewaySecret), crypto.SubscriptionPaymentMessage(paymentID, subID))
}

func signOrderPayment(orderID, paymentID string) string {
	return crypto.Sign([]byte(testGatewaySecret), crypto.OrderPaymentMessage(orderID, paymentID))
}

func TestConfirmPaymentSubscription(t *testing.T) {
	s := newReconcilerSuite(t)
	subID := s.checkout(t, entity.ActionSubscribe).GatewaySubscriptionID
	start := s.clock.Now()
	s.setBounds(subID, start, start.AddDate(0, 1, 0))
	s.gateway.putPayment(&provider.Payment{ID: "pay_1", Amount: 49900, Currency: "INR", Status: "captured", Method: "card"})

	conf := entity.PaymentConfirmation{
		GatewayPaymentID:      "pay_1",
		GatewaySubscriptionID: subID,
		Signature:             signSubscriptionPayment("pay_1", subID),
	}
	sub, outcome, err := s.reconciler.ConfirmPayment(context.Background(), s.user.ID, conf)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, start.AddDate(0, 1, 0), *sub.CurrentPeriodEnd)
	assert.Len(t, s.store.Payments(), 1)

	// the webhook for the same payment converges without extending again
	assert.Equal(t, OutcomeDuplicate, s.apply(t, chargeEvent(subID, "pay_1")))
	assert.Equal(t, start.AddDate(0, 1, 0), *s.row(t).CurrentPeriodEnd)
	assert.Len(t, s.store.Payments(), 1)
}

func TestConfirmPaymentRetriedAfterFailedSave(t *testing.T) {
	s := newReconcilerSuite(t)
	orderID := s.checkout(t, entity.ActionReactivate).GatewayOrderID
	s.gateway.putPayment(&provider.Payment{ID: "pay_o1", OrderID: orderID, Amount: 49900, Currency: "INR", Status: "captured"})
	conf := entity.PaymentConfirmation{
		GatewayPaymentID: "pay_o1",
		GatewayOrderID:   orderID,
		Signature:        signOrderPayment(orderID, "pay_o1"),
	}

	s.useSubscriptions(&flakySubscriptions{SubscriptionRepository: s.store.Subscriptions(), failures: 1})
	_, _, err := s.reconciler.ConfirmPayment(context.Background(), s.user.ID, conf)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ErrUnavailable, pkgerrors.CodeOf(err))
	assert.Equal(t, model.SubscriptionStatusTrial, s.row(t).Status)

	sub, outcome, err := s.reconciler.ConfirmPayment(context.Background(), s.user.ID, conf)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, s.clock.Now().AddDate(0, 1, 0), *s.row(t).CurrentPeriodEnd)
}

func TestConfirmPaymentOrderReactivates(t *testing.T) {
	s := newReconcilerSuite(t)
	orderID := s.checkout(t, entity.ActionReactivate).GatewayOrderID
	s.gateway.putPayment(&provider.Payment{ID: "pay_o1", OrderID: orderID, Amount: 49900, Currency: "INR", Status: "captured", Method: "upi"})

	conf := entity.PaymentConfirmation{
		GatewayPaymentID: "pay_o1",
		GatewayOrderID:   orderID,
		Signature:        signOrderPayment(orderID, "pay_o1"),
	}
	sub, outcome, err := s.reconciler.ConfirmPayment(context.Background(), s.user.ID, conf)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, s.clock.Now().AddDate(0, 1, 0), *sub.CurrentPeriodEnd)

	// a repeated confirmation is a no-op
	_, outcome, err = s.reconciler.ConfirmPayment(context.Background(), s.user.ID, conf)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, s.clock.Now().AddDate(0, 1, 0), *s.row(t).CurrentPeriodEnd)
}

func TestConfirmPaymentRejections(t *testing.T) {
	s := newReconcilerSuite(t)
	orderID := s.checkout(t, entity.ActionReactivate).GatewayOrderID
	s.gateway.putPayment(&provider.Payment{ID: "pay_o1", OrderID: orderID, Amount: 49900, Currency: "INR", Status: "captured"})
	s.gateway.putPayment(&provider.Payment{ID: "pay_pending", OrderID: orderID, Amount: 49900, Currency: "INR", Status: "created"})
	ctx := context.Background()

	tests := []struct {
		name   string
		userID uuid.UUID
		conf   entity.PaymentConfirmation
		code   string
	}{
		{
			name:   "bad signature",
			userID: s.user.ID,
			conf:   entity.PaymentConfirmation{GatewayPaymentID: "pay_o1", GatewayOrderID: orderID, Signature: signOrderPayment(orderID, "pay_other")},
			code:   pkgerrors.ErrUnauthenticated,
		},
		{
			name:   "signed with webhook secret",
			userID: s.user.ID,
			conf: entity.PaymentConfirmation{GatewayPaymentID: "pay_o1", GatewayOrderID: orderID,
				Signature: crypto.Sign([]byte("webhook-secret"), crypto.OrderPaymentMessage(orderID, "pay_o1"))},
			code: pkgerrors.ErrUnauthenticated,
		},
		{
			name:   "other user",
			userID: uuid.New(),
			conf:   entity.PaymentConfirmation{GatewayPaymentID: "pay_o1", GatewayOrderID: orderID, Signature: signOrderPayment(orderID, "pay_o1")},
			code:   pkgerrors.ErrUnauthorized,
		},
		{
			name:   "unknown order",
			userID: s.user.ID,
			conf:   entity.PaymentConfirmation{GatewayPaymentID: "pay_o1", GatewayOrderID: "order_x", Signature: signOrderPayment("order_x", "pay_o1")},
			code:   pkgerrors.ErrNotFound,
		},
		{
			name:   "payment not captured",
			userID: s.user.ID,
			conf:   entity.PaymentConfirmation{GatewayPaymentID: "pay_pending", GatewayOrderID: orderID, Signature: signOrderPayment(orderID, "pay_pending")},
			code:   pkgerrors.ErrInvalidArgument,
		},
		{
			name:   "no gateway object",
			userID: s.user.ID,
			conf:   entity.PaymentConfirmation{GatewayPaymentID: "pay_o1", Signature: "00"},
			code:   pkgerrors.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.reconciler.ConfirmPayment(ctx, tt.userID, tt.conf)
			require.Error(t, err)
			assert.Equal(t, tt.code, pkgerrors.CodeOf(err))
		})
	}
	assert.Empty(t, s.store.Payments())
	assert.Equal(t, model.SubscriptionStatusTrial, s.row(t).Status)
}

func TestConcurrentConfirmAndWebhook(t *testing.T) {
	for round := 0; round < 20; round++ {
		s := newReconcilerSuite(t)
		subID := s.checkout(t, entity.ActionSubscribe).GatewaySubscriptionID
		s.apply(t, subEvent(provider.EventSubscriptionActivated, subID))

		// no absolute bounds from the gateway, so each application would extend by a month
		before := *s.row(t).CurrentPeriodEnd
		s.gateway.putPayment(&provider.Payment{ID: "pay_c", Amount: 49900, Currency: "INR", Status: "captured"})

		conf := entity.PaymentConfirmation{
			GatewayPaymentID:      "pay_c",
			GatewaySubscriptionID: subID,
			Signature:             signSubscriptionPayment("pay_c", subID),
		}

		var wg sync.WaitGroup
		outcomes := make(chan Outcome, 4)
		for i := 0; i < 2; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, outcome, err := s.reconciler.ConfirmPayment(context.Background(), s.user.ID, conf)
				if err == nil {
					outcomes <- outcome
				}
			}()
			go func() {
				defer wg.Done()
				outcome, err := s.reconciler.Apply(context.Background(), chargeEvent(subID, "pay_c"))
				if err == nil {
					outcomes <- outcome
				}
			}()
		}
		wg.Wait()
		close(outcomes)

		applied := 0
		for o := range outcomes {
			if o == OutcomeApplied {
				applied++
			}
		}
		assert.Equal(t, 1, applied)
		assert.Len(t, s.store.Payments(), 1)
		row := s.row(t)
		assert.Equal(t, model.SubscriptionStatusActive, row.Status)
		assert.Equal(t, before.AddDate(0, 1, 0), *row.CurrentPeriodEnd)
	}
}
