package usecase

import (
	"bytes"

	"github.com/wityliti/wityliti.io-sub000/internal/infrastructure/crypto"
	"go.uber.org/zap"
)

// WebhookVerifier authenticates gateway webhook deliveries with the webhook secret
type WebhookVerifier struct {
	signer *crypto.Signer
	logger *zap.Logger
}

func NewWebhookVerifier(secret string, logger *zap.Logger) *WebhookVerifier {
	return &WebhookVerifier{signer: crypto.NewSigner(secret), logger: logger}
}

// Verify checks the signature over the body as received, then over its canonical form
func (v *WebhookVerifier) Verify(rawBody []byte, signature string) bool {
	if len(bytes.TrimSpace(rawBody)) == 0 || signature == "" {
		return false
	}
	if v.signer.Verify(rawBody, signature) {
		return true
	}

	canonical, err := crypto.CanonicalJSON(rawBody)
	if err != nil {
		return false
	}
	return v.signer.Verify(canonical, signature)
}
