package razorpay

import (
	"time"

	"github.com/wityliti/wityliti.io-sub000/internal/domain/provider"
)

type customerResponse struct {
	ID    string         `json:"id"`
	Email string         `json:"email"`
	Notes provider.Notes `json:"notes"`
}

type subscriptionResponse struct {
	ID           string         `json:"id"`
	PlanID       string         `json:"plan_id"`
	CustomerID   string         `json:"customer_id"`
	Status       string         `json:"status"`
	CurrentStart *int64         `json:"current_start"`
	CurrentEnd   *int64         `json:"current_end"`
	ShortURL     string         `json:"short_url"`
	Notes        provider.Notes `json:"notes"`
}

type orderResponse struct {
	ID       string         `json:"id"`
	Amount   int64          `json:"amount"`
	Currency string         `json:"currency"`
	Receipt  string         `json:"receipt"`
	Status   string         `json:"status"`
	Notes    provider.Notes `json:"notes"`
}

type paymentResponse struct {
	ID               string         `json:"id"`
	OrderID          string         `json:"order_id"`
	InvoiceID        string         `json:"invoice_id"`
	CustomerID       string         `json:"customer_id"`
	Amount           int64          `json:"amount"`
	Currency         string         `json:"currency"`
	Status           string         `json:"status"`
	Method           string         `json:"method"`
	ErrorDescription string         `json:"error_description"`
	Notes            provider.Notes `json:"notes"`
	CreatedAt        int64          `json:"created_at"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Reason      string `json:"reason"`
	} `json:"error"`
}

type webhookEnvelope struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Subscription *struct {
			Entity subscriptionResponse `json:"entity"`
		} `json:"subscription"`
		Payment *struct {
			Entity paymentResponse `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func unixPtr(v *int64) *time.Time {
	if v == nil || *v == 0 {
		return nil
	}
	t := time.Unix(*v, 0).UTC()
	return &t
}

func (r *subscriptionResponse) toProvider() *provider.Subscription {
	return &provider.Subscription{
		ID:           r.ID,
		PlanID:       r.PlanID,
		CustomerID:   r.CustomerID,
		Status:       r.Status,
		CurrentStart: unixPtr(r.CurrentStart),
		CurrentEnd:   unixPtr(r.CurrentEnd),
		ShortURL:     r.ShortURL,
		Notes:        r.Notes,
	}
}

func (r *orderResponse) toProvider() *provider.Order {
	return &provider.Order{
		ID:       r.ID,
		Amount:   r.Amount,
		Currency: r.Currency,
		Receipt:  r.Receipt,
		Status:   r.Status,
		Notes:    r.Notes,
	}
}

func (r *paymentResponse) toProvider() *provider.Payment {
	p := &provider.Payment{
		ID:               r.ID,
		OrderID:          r.OrderID,
		InvoiceID:        r.InvoiceID,
		CustomerID:       r.CustomerID,
		Amount:           r.Amount,
		Currency:         r.Currency,
		Status:           r.Status,
		Method:           r.Method,
		ErrorDescription: r.ErrorDescription,
		Notes:            r.Notes,
	}
	if r.CreatedAt > 0 {
		p.CreatedAt = time.Unix(r.CreatedAt, 0).UTC()
	}
	return p
}
