package config

import "time"

// MaxTokenTTL caps payment session token lifetime
const MaxTokenTTL = time.Hour

// SecurityConfig holds trust secrets and limits.
// The three signing secrets are independent and never derived from one another.
type SecurityConfig struct {
	PaymentTokenSecret   string `yaml:"payment_token_secret"`
	RequestSigningSecret string `yaml:"request_signing_secret"`
	WebhookSecret        string `yaml:"webhook_secret"`
	EncryptionPassphrase string `yaml:"encryption_passphrase"`
	// JWTSecret verifies user access tokens issued by the identity provider
	JWTSecret string `yaml:"jwt_secret"`

	TokenTTL           time.Duration   `yaml:"token_ttl"`
	AllowedReturnHosts []string        `yaml:"allowed_return_hosts"`
	ReplayWindow       time.Duration   `yaml:"replay_window"`
	NonceTTL           time.Duration   `yaml:"nonce_ttl"`
	RateLimit          RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}
