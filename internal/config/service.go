package config

import "time"

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	// ClientURL is the public web front end, used for CORS
	ClientURL string `yaml:"client_url"`
	// CheckoutURL is the hosted checkout page that receives session tokens
	CheckoutURL string `yaml:"checkout_url"`
	// StoreTimeout bounds every call to the subscriber store
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

// GatewayConfig configures the payment gateway REST client
type GatewayConfig struct {
	BaseURL   string        `yaml:"base_url"`
	KeyID     string        `yaml:"key_id"`
	KeySecret string        `yaml:"key_secret"`
	Timeout   time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}
