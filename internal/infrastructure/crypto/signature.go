package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Signer computes and checks HMAC-SHA256 signatures for a single purpose.
// Each purpose gets its own Signer and its own secret.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the lowercase hex signature of message
func (s *Signer) Sign(message []byte) string {
	return Sign(s.secret, message)
}

// Verify reports whether signature matches message
func (s *Signer) Verify(message []byte, signature string) bool {
	return Verify(s.secret, message, signature)
}

// Sign returns hex(HMAC-SHA256(secret, message))
func Sign(secret, message []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time. Malformed signatures are rejected.
func Verify(secret, message []byte, signature string) bool {
	if len(secret) == 0 || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(signature)))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return hmac.Equal(got, mac.Sum(nil))
}

// OrderPaymentMessage builds the message signed for an order payment
func OrderPaymentMessage(orderID, paymentID string) []byte {
	return []byte(orderID + "|" + paymentID)
}

// SubscriptionPaymentMessage builds the message signed for a subscription payment
func SubscriptionPaymentMessage(paymentID, subscriptionID string) []byte {
	return []byte(paymentID + "|" + subscriptionID)
}

// RequestMessage builds the message signed for a server-to-server request
func RequestMessage(timestamp int64, canonical []byte) []byte {
	ts := strconv.FormatInt(timestamp, 10)
	msg := make([]byte, 0, len(ts)+1+len(canonical))
	msg = append(msg, ts...)
	msg = append(msg, '.')
	return append(msg, canonical...)
}
