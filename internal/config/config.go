package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wityliti/wityliti.io-sub000/pkg/config"
	"github.com/wityliti/wityliti.io-sub000/pkg/logger"
	"gopkg.in/yaml.v3"
)

const envPrefix = "payment"

type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Log      logger.Config  `yaml:"log"`
	Security SecurityConfig `yaml:"security"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Redis    RedisConfig    `yaml:"redis"`
}

// LoadConfig reads the YAML file at CONFIG_PATH and overlays PAYMENT_* environment values
func LoadConfig() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/payment.yaml"
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv(config.NewEnv(envPrefix))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML on top of the defaults
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Default returns a config with every non-secret value populated
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:         "payment",
			Environment:  "development",
			StoreTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Port:            5432,
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Server: ServerConfig{
			HTTP: HTTPConfig{Host: "0.0.0.0", Port: 8080},
			GRPC: GRPCConfig{Host: "0.0.0.0", Port: 9090},
		},
		Log: logger.Config{Level: "info", Format: "json", Output: "stdout"},
		Security: SecurityConfig{
			TokenTTL:           15 * time.Minute,
			AllowedReturnHosts: []string{"localhost"},
			ReplayWindow:       5 * time.Minute,
			NonceTTL:           5 * time.Minute,
			RateLimit:          RateLimitConfig{Requests: 10, Window: time.Minute},
		},
		Gateway: GatewayConfig{
			BaseURL: "https://api.razorpay.com/v1",
			Timeout: 10 * time.Second,
		},
		Redis: RedisConfig{Channel: "billing.subscription"},
	}
}

// ApplyEnv overlays environment values. Secrets are expected to come from here.
func (c *Config) ApplyEnv(env *config.Env) {
	env.String("service.environment", &c.Service.Environment)
	env.String("service.client_url", &c.Service.ClientURL)
	env.String("service.checkout_url", &c.Service.CheckoutURL)

	env.String("database.driver", &c.Database.Driver)
	env.String("database.host", &c.Database.Host)
	env.Int("database.port", &c.Database.Port)
	env.String("database.name", &c.Database.Name)
	env.String("database.user", &c.Database.User)
	env.String("database.password", &c.Database.Password)

	env.Int("server.http.port", &c.Server.HTTP.Port)
	env.Int("server.grpc.port", &c.Server.GRPC.Port)

	env.String("log.level", &c.Log.Level)

	env.String("security.payment_token_secret", &c.Security.PaymentTokenSecret)
	env.String("security.request_signing_secret", &c.Security.RequestSigningSecret)
	env.String("security.webhook_secret", &c.Security.WebhookSecret)
	env.String("security.encryption_passphrase", &c.Security.EncryptionPassphrase)
	env.String("security.jwt_secret", &c.Security.JWTSecret)
	env.Duration("security.token_ttl", &c.Security.TokenTTL)
	env.StringSlice("security.allowed_return_hosts", &c.Security.AllowedReturnHosts)

	env.String("gateway.base_url", &c.Gateway.BaseURL)
	env.String("gateway.key_id", &c.Gateway.KeyID)
	env.String("gateway.key_secret", &c.Gateway.KeySecret)
	env.Duration("gateway.timeout", &c.Gateway.Timeout)

	env.String("redis.addr", &c.Redis.Addr)
	env.String("redis.password", &c.Redis.Password)
	env.Int("redis.db", &c.Redis.DB)
}

// Validate rejects configurations that would weaken a trust decision
func (c *Config) Validate() error {
	s := c.Security
	secrets := map[string]string{
		"payment_token_secret":   s.PaymentTokenSecret,
		"request_signing_secret": s.RequestSigningSecret,
		"webhook_secret":         s.WebhookSecret,
	}
	seen := make(map[string]string, len(secrets))
	for _, name := range []string{"payment_token_secret", "request_signing_secret", "webhook_secret"} {
		value := secrets[name]
		if value == "" {
			return fmt.Errorf("security.%s is required", name)
		}
		if other, ok := seen[value]; ok {
			return fmt.Errorf("security.%s must differ from security.%s", name, other)
		}
		seen[value] = name
	}

	if s.EncryptionPassphrase == "" {
		return errors.New("security.encryption_passphrase is required")
	}
	if s.TokenTTL <= 0 || s.TokenTTL > MaxTokenTTL {
		return fmt.Errorf("security.token_ttl must be within (0, %s]", MaxTokenTTL)
	}
	if len(s.AllowedReturnHosts) == 0 {
		return errors.New("security.allowed_return_hosts must not be empty")
	}
	if s.RateLimit.Requests <= 0 || s.RateLimit.Window <= 0 {
		return errors.New("security.rate_limit requires positive requests and window")
	}
	if c.Gateway.KeySecret == "" || c.Gateway.KeyID == "" {
		return errors.New("gateway.key_id and gateway.key_secret are required")
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	return nil
}
