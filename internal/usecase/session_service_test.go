package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/entity"
	"github.com/wityliti/wityliti.io-sub000/pkg/errors"
	"go.uber.org/zap"
)

const testCheckoutURL = "https://pay.example.com/checkout"

func newSessionService(f *fixture) *SessionService {
	validator := NewTokenPayloadValidator(testAllowedHosts)
	tokens := NewPaymentTokenService("jwt-test-secret", 15*time.Minute, validator, f.clock.Now, zap.NewNop())
	return NewSessionService(tokens, validator, f.store.Users(), f.store.Plans(), testCheckoutURL, time.Second, zap.NewNop())
}

func TestSessionStartAndVerify(t *testing.T) {
	f := newFixture()
	svc := newSessionService(f)
	ctx := context.Background()

	token, err := svc.Start(ctx, f.user.ID.String(), StartSessionRequest{
		PlanID:    f.plan.ID.String(),
		Action:    entity.ActionSubscribe,
		ReturnURL: "https://app.example.com/billing/done",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
	assert.Equal(t, testCheckoutURL, token.CheckoutURL)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), token.ExpiresAt)

	view, err := svc.Verify(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, f.user.Email, view.User.Email)
	assert.Equal(t, "Pro Monthly", view.Plan.Name)
	assert.Equal(t, "499", view.Plan.Amount.String())
	assert.Equal(t, entity.ActionSubscribe, view.Action)
	assert.Equal(t, "https://app.example.com/billing/done", view.ReturnURL)

	f.clock.Advance(16 * time.Minute)
	_, err = svc.Verify(ctx, token.Token)
	assert.Equal(t, errors.ErrUnauthenticated, errors.CodeOf(err))
}

func TestSessionStartRejects(t *testing.T) {
	f := newFixture()
	svc := newSessionService(f)
	ctx := context.Background()

	tests := []struct {
		name   string
		userID string
		req    StartSessionRequest
		code   string
	}{
		{"foreign return host", f.user.ID.String(), StartSessionRequest{PlanID: f.plan.ID.String(), Action: entity.ActionSubscribe, ReturnURL: "https://evil.example/"}, errors.ErrInvalidArgument},
		{"unknown action", f.user.ID.String(), StartSessionRequest{PlanID: f.plan.ID.String(), Action: "refund", ReturnURL: "https://app.example.com/"}, errors.ErrInvalidArgument},
		{"unknown plan", f.user.ID.String(), StartSessionRequest{PlanID: uuid.NewString(), Action: entity.ActionSubscribe, ReturnURL: "https://app.example.com/"}, errors.ErrNotFound},
		{"unknown user", uuid.NewString(), StartSessionRequest{PlanID: f.plan.ID.String(), Action: entity.ActionSubscribe, ReturnURL: "https://app.example.com/"}, errors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Start(ctx, tt.userID, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
		})
	}
}

func TestSessionAuthorize(t *testing.T) {
	f := newFixture()
	svc := newSessionService(f)

	_, err := svc.Authorize("")
	assert.Equal(t, errors.ErrInvalidArgument, errors.CodeOf(err))

	_, err = svc.Authorize("not.a.token")
	assert.Equal(t, errors.ErrUnauthenticated, errors.CodeOf(err))

	other := NewPaymentTokenService("another-secret", time.Minute, NewTokenPayloadValidator(testAllowedHosts), f.clock.Now, zap.NewNop())
	forged, _, err := other.Issue(claimsFor(f, entity.ActionSubscribe))
	require.NoError(t, err)
	_, err = svc.Authorize(forged)
	assert.Equal(t, errors.ErrUnauthenticated, errors.CodeOf(err))

	// a validator that trusts fewer hosts rejects claims an older deploy signed
	tokens := NewPaymentTokenService("jwt-test-secret", time.Minute, NewTokenPayloadValidator(testAllowedHosts), f.clock.Now, zap.NewNop())
	strict := NewSessionService(tokens, NewTokenPayloadValidator([]string{"other.example.com"}), f.store.Users(), f.store.Plans(), testCheckoutURL, time.Second, zap.NewNop())
	token, _, err := tokens.Issue(claimsFor(f, entity.ActionSubscribe))
	require.NoError(t, err)
	_, err = strict.Authorize(token)
	assert.Equal(t, errors.ErrInvalidArgument, errors.CodeOf(err))
}
