package provider

import (
	"fmt"

	"github.com/wityliti/wityliti.io-sub000/internal/config"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/provider"
	"github.com/wityliti/wityliti.io-sub000/internal/infrastructure/provider/razorpay"
	"go.uber.org/zap"
)

// Factory creates the configured payment gateway client
type Factory struct {
	config *config.Config
	logger *zap.Logger
}

// NewFactory creates a new provider factory
func NewFactory(config *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		config: config,
		logger: logger,
	}
}

// Gateway returns the gateway client for the configured credentials
func (f *Factory) Gateway() (provider.Gateway, error) {
	gw := f.config.Gateway
	if gw.KeyID == "" || gw.KeySecret == "" {
		return nil, fmt.Errorf("gateway credentials not configured")
	}

	return razorpay.NewClient(razorpay.Options{
		BaseURL:   gw.BaseURL,
		KeyID:     gw.KeyID,
		KeySecret: gw.KeySecret,
		Timeout:   gw.Timeout,
	}, f.logger), nil
}
