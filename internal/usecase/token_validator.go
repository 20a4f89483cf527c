package usecase

import (
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/entity"
)

// TokenPayloadValidator checks session claims before a token is issued or honored.
// The return host allow-list is what keeps checkout from being used as an open redirect.
type TokenPayloadValidator struct {
	validate     *validator.Validate
	allowedHosts map[string]struct{}
	actionTag    string
}

func NewTokenPayloadValidator(allowedHosts []string) *TokenPayloadValidator {
	hosts := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts[h] = struct{}{}
		}
	}
	return &TokenPayloadValidator{
		validate:     validator.New(),
		allowedHosts: hosts,
		actionTag:    "oneof=" + strings.Join(entity.AllowedActions, " "),
	}
}

// Validate reports the first problem found, checking presence, action, ids, then the return URL
func (v *TokenPayloadValidator) Validate(claims *entity.PaymentSessionClaims) entity.ValidationResult {
	if claims == nil {
		return entity.Invalid("Missing required field: user_id")
	}

	required := []struct {
		name  string
		value string
	}{
		{"user_id", claims.UserID},
		{"plan_id", claims.PlanID},
		{"action", claims.Action},
		{"return_url", claims.ReturnURL},
	}
	for _, f := range required {
		if v.validate.Var(strings.TrimSpace(f.value), "required") != nil {
			return entity.Invalid("Missing required field: " + f.name)
		}
	}

	if v.validate.Var(claims.Action, v.actionTag) != nil {
		return entity.Invalid("Invalid action: " + claims.Action)
	}

	if v.validate.Var(claims.UserID, "uuid_rfc4122") != nil {
		return entity.Invalid("Invalid user_id format")
	}
	if v.validate.Var(claims.PlanID, "uuid_rfc4122") != nil {
		return entity.Invalid("Invalid plan_id format")
	}

	u, err := url.Parse(claims.ReturnURL)
	if err != nil || !u.IsAbs() || u.Hostname() == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return entity.Invalid("Invalid return URL format")
	}
	if _, ok := v.allowedHosts[strings.ToLower(u.Hostname())]; !ok {
		return entity.Invalid("Invalid return URL host")
	}

	return entity.ValidationResult{Valid: true}
}
