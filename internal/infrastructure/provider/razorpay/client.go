// Package razorpay is the REST client for the payment gateway.
package razorpay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/provider"
	"go.uber.org/zap"
)

const (
	providerName   = "razorpay"
	defaultBaseURL = "https://api.razorpay.com/v1"
	defaultTimeout = 10 * time.Second
)

type Options struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

// Client implements provider.Gateway
type Client struct {
	http   *resty.Client
	keyID  string
	logger *zap.Logger
}

func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetBasicAuth(opts.KeyID, opts.KeySecret).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		keyID:  opts.KeyID,
		logger: logger,
	}
}

func (c *Client) GetProviderName() string {
	return providerName
}

func (c *Client) KeyID() string {
	return c.keyID
}

func (c *Client) CreateCustomer(ctx context.Context, req *provider.CreateCustomerRequest) (*provider.Customer, error) {
	body := map[string]interface{}{
		"name":          req.Name,
		"email":         req.Email,
		"notes":         notesBody(req.Notes),
		"fail_existing": "0",
	}

	var out customerResponse
	if err := c.do(ctx, http.MethodPost, "/customers", body, &out); err != nil {
		return nil, err
	}

	return &provider.Customer{ID: out.ID, Email: out.Email, Notes: out.Notes}, nil
}

func (c *Client) CreateSubscription(ctx context.Context, req *provider.CreateSubscriptionRequest) (*provider.Subscription, error) {
	totalCount := req.TotalCount
	if totalCount <= 0 {
		totalCount = 120
	}
	body := map[string]interface{}{
		"plan_id":         req.GatewayPlanID,
		"customer_id":     req.CustomerID,
		"total_count":     totalCount,
		"customer_notify": 1,
		"notes":           notesBody(req.Notes),
	}
	if req.StartAt != nil {
		body["start_at"] = req.StartAt.Unix()
	}

	var out subscriptionResponse
	if err := c.do(ctx, http.MethodPost, "/subscriptions", body, &out); err != nil {
		return nil, err
	}

	c.logger.Info("Gateway subscription created",
		zap.String("subscription_id", out.ID),
		zap.String("plan_id", out.PlanID))

	return out.toProvider(), nil
}

func (c *Client) CreateOrder(ctx context.Context, req *provider.CreateOrderRequest) (*provider.Order, error) {
	body := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"notes":    notesBody(req.Notes),
	}

	var out orderResponse
	if err := c.do(ctx, http.MethodPost, "/orders", body, &out); err != nil {
		return nil, err
	}

	c.logger.Info("Gateway order created",
		zap.String("order_id", out.ID),
		zap.Int64("amount", out.Amount))

	return out.toProvider(), nil
}

func (c *Client) FetchSubscription(ctx context.Context, id string) (*provider.Subscription, error) {
	var out subscriptionResponse
	if err := c.do(ctx, http.MethodGet, "/subscriptions/"+id, nil, &out); err != nil {
		return nil, err
	}
	return out.toProvider(), nil
}

func (c *Client) FetchOrder(ctx context.Context, id string) (*provider.Order, error) {
	var out orderResponse
	if err := c.do(ctx, http.MethodGet, "/orders/"+id, nil, &out); err != nil {
		return nil, err
	}
	return out.toProvider(), nil
}

func (c *Client) FetchPayment(ctx context.Context, id string) (*provider.Payment, error) {
	var out paymentResponse
	if err := c.do(ctx, http.MethodGet, "/payments/"+id, nil, &out); err != nil {
		return nil, err
	}
	return out.toProvider(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Error("Gateway request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return &provider.ProviderError{
			Code:    "TRANSPORT_ERROR",
			Message: "gateway request failed",
			Details: err.Error(),
		}
	}

	if resp.IsError() {
		perr := &provider.ProviderError{
			StatusCode: resp.StatusCode(),
			Code:       "GATEWAY_ERROR",
			Message:    fmt.Sprintf("gateway returned status %d", resp.StatusCode()),
		}
		var apiErr errorResponse
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Error.Code != "" {
			perr.Code = apiErr.Error.Code
			perr.Details = apiErr.Error.Description
		}
		c.logger.Warn("Gateway returned error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode()),
			zap.String("code", perr.Code))
		return perr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &provider.ProviderError{
			StatusCode: resp.StatusCode(),
			Code:       "DECODE_ERROR",
			Message:    "failed to decode gateway response",
			Details:    err.Error(),
		}
	}
	return nil
}

func notesBody(n provider.Notes) map[string]string {
	if n == nil {
		return map[string]string{}
	}
	return n
}
