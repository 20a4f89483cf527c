package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/entity"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/repository"
	"github.com/wityliti/wityliti.io-sub000/pkg/errors"
	"go.uber.org/zap"
)

// StartSessionRequest is what a signed-in user asks to pay for
type StartSessionRequest struct {
	PlanID    string `json:"plan_id"`
	Action    string `json:"action"`
	ReturnURL string `json:"return_url"`
}

// SessionService hands a user off to hosted checkout and back
type SessionService struct {
	tokens      *PaymentTokenService
	validator   *TokenPayloadValidator
	users       repository.UserRepository
	plans       repository.PlanRepository
	checkoutURL string
	timeout     time.Duration
	logger      *zap.Logger
}

func NewSessionService(
	tokens *PaymentTokenService,
	validator *TokenPayloadValidator,
	users repository.UserRepository,
	plans repository.PlanRepository,
	checkoutURL string,
	timeout time.Duration,
	logger *zap.Logger,
) *SessionService {
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	return &SessionService{
		tokens:      tokens,
		validator:   validator,
		users:       users,
		plans:       plans,
		checkoutURL: checkoutURL,
		timeout:     timeout,
		logger:      logger,
	}
}

// Start issues a session token for userID
func (s *SessionService) Start(ctx context.Context, userID string, req StartSessionRequest) (*entity.SessionToken, error) {
	claims := entity.PaymentSessionClaims{
		UserID:    userID,
		PlanID:    req.PlanID,
		Action:    req.Action,
		ReturnURL: req.ReturnURL,
	}
	if result := s.validator.Validate(&claims); !result.Valid {
		return nil, errors.NewAppError(errors.ErrInvalidArgument, result.Error, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, _, err := loadUserAndPlan(ctx, s.users, s.plans, uuid.MustParse(claims.UserID), uuid.MustParse(claims.PlanID)); err != nil {
		return nil, err
	}

	token, issued, err := s.tokens.Issue(claims)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment session issued",
		zap.String("user_id", userID),
		zap.String("plan_id", claims.PlanID),
		zap.String("action", claims.Action),
		zap.Time("expires_at", issued.ExpiresAt))

	return &entity.SessionToken{
		Token:       token,
		ExpiresAt:   issued.ExpiresAt,
		CheckoutURL: s.checkoutURL,
	}, nil
}

// Authorize verifies and validates a token and returns its claims
func (s *SessionService) Authorize(token string) (*entity.PaymentSessionClaims, error) {
	if token == "" {
		return nil, errors.NewAppError(errors.ErrInvalidArgument, "Token is required", nil)
	}
	claims, ok := s.tokens.Verify(token)
	if !ok {
		s.logger.Warn("Invalid or expired payment session token")
		return nil, errors.NewAppError(errors.ErrUnauthenticated, "Invalid or expired token", nil)
	}
	if result := s.validator.Validate(claims); !result.Valid {
		s.logger.Warn("Payment session claims rejected", zap.String("reason", result.Error))
		return nil, errors.NewAppError(errors.ErrInvalidArgument, result.Error, nil)
	}
	return claims, nil
}

// Verify returns the session view the hosted checkout page renders
func (s *SessionService) Verify(ctx context.Context, token string) (*entity.SessionView, error) {
	claims, err := s.Authorize(token)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	user, plan, err := loadUserAndPlan(ctx, s.users, s.plans, uuid.MustParse(claims.UserID), uuid.MustParse(claims.PlanID))
	if err != nil {
		return nil, err
	}

	return &entity.SessionView{
		User: entity.UserView{
			ID:    user.ID.String(),
			Email: user.Email,
			Name:  user.Name,
		},
		Plan: entity.PlanView{
			ID:            plan.ID.String(),
			Name:          plan.Name,
			Amount:        plan.Amount(),
			Currency:      plan.Currency,
			Interval:      plan.Interval,
			IntervalCount: plan.IntervalCount,
		},
		Action:    claims.Action,
		ReturnURL: claims.ReturnURL,
	}, nil
}
