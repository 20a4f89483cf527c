package crypto

import (
	"time"
)

// DefaultReplayWindow bounds the clock skew accepted on signed requests
const DefaultReplayWindow = 300 * time.Second

// RequestSigner signs server-to-server payloads as HMAC(secret, ts + "." + canonicalJSON(payload))
type RequestSigner struct {
	signer *Signer
	window time.Duration
	now    func() time.Time
}

func NewRequestSigner(secret string, window time.Duration, now func() time.Time) *RequestSigner {
	if window <= 0 {
		window = DefaultReplayWindow
	}
	if now == nil {
		now = time.Now
	}
	return &RequestSigner{signer: NewSigner(secret), window: window, now: now}
}

// Sign signs payload for the given unix timestamp
func (r *RequestSigner) Sign(payload interface{}, timestamp int64) (string, error) {
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return "", err
	}
	return r.signer.Sign(RequestMessage(timestamp, canonical)), nil
}

// Verify fails closed on a stale timestamp, bad payload or signature mismatch
func (r *RequestSigner) Verify(payload interface{}, timestamp int64, signature string) bool {
	skew := r.now().Sub(time.Unix(timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > r.window {
		return false
	}

	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return false
	}
	return r.signer.Verify(RequestMessage(timestamp, canonical), signature)
}
