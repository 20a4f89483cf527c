package usecase

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/entity"
	"github.com/wityliti/wityliti.io-sub000/pkg/errors"
	"go.uber.org/zap"
)

const (
	MaxPaymentTokenTTL = time.Hour
	paymentTokenIssuer = "billing"
)

type paymentSessionClaims struct {
	UserID    string `json:"user_id"`
	PlanID    string `json:"plan_id"`
	Action    string `json:"action"`
	ReturnURL string `json:"return_url"`
	jwt.RegisteredClaims
}

// PaymentTokenService issues and verifies HS256 payment session tokens
type PaymentTokenService struct {
	secret    []byte
	ttl       time.Duration
	validator *TokenPayloadValidator
	now       func() time.Time
	logger    *zap.Logger
}

func NewPaymentTokenService(secret string, ttl time.Duration, validator *TokenPayloadValidator, now func() time.Time, logger *zap.Logger) *PaymentTokenService {
	if ttl <= 0 || ttl > MaxPaymentTokenTTL {
		ttl = MaxPaymentTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &PaymentTokenService{
		secret:    []byte(secret),
		ttl:       ttl,
		validator: validator,
		now:       now,
		logger:    logger,
	}
}

// Issue validates claims and signs them. IssuedAt and ExpiresAt are set here.
func (s *PaymentTokenService) Issue(claims entity.PaymentSessionClaims) (string, entity.PaymentSessionClaims, error) {
	if result := s.validator.Validate(&claims); !result.Valid {
		return "", entity.PaymentSessionClaims{}, errors.NewAppError(errors.ErrInvalidArgument, result.Error, nil)
	}

	issuedAt := s.now().UTC().Truncate(time.Second)
	claims.IssuedAt = issuedAt
	claims.ExpiresAt = issuedAt.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, paymentSessionClaims{
		UserID:    claims.UserID,
		PlanID:    claims.PlanID,
		Action:    claims.Action,
		ReturnURL: claims.ReturnURL,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    paymentTokenIssuer,
			Subject:   claims.UserID,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", entity.PaymentSessionClaims{}, fmt.Errorf("failed to sign payment token: %w", err)
	}
	return signed, claims, nil
}

// Verify returns the claims of a valid unexpired token. Every failure is just false.
func (s *PaymentTokenService) Verify(tokenString string) (*entity.PaymentSessionClaims, bool) {
	if tokenString == "" {
		return nil, false
	}

	var parsed paymentSessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &parsed, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(paymentTokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		s.logger.Debug("Payment token rejected", zap.Error(err))
		return nil, false
	}

	claims := &entity.PaymentSessionClaims{
		UserID:    parsed.UserID,
		PlanID:    parsed.PlanID,
		Action:    parsed.Action,
		ReturnURL: parsed.ReturnURL,
		ExpiresAt: parsed.ExpiresAt.Time.UTC(),
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, true
}
