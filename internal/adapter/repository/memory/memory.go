// Package memory provides process-local repositories for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/entity"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/model"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/repository"
)

// Store holds every table behind one lock so conditional writes are atomic
type Store struct {
	mu       sync.Mutex
	nextID   int64
	users    map[uuid.UUID]model.User
	plans    map[uuid.UUID]model.Plan
	subs     map[uuid.UUID]model.Subscription
	payments map[string]model.Payment
	refs     map[string]model.GatewayReference
	events   map[string]model.WebhookEvent
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:    make(map[uuid.UUID]model.User),
		plans:    make(map[uuid.UUID]model.Plan),
		subs:     make(map[uuid.UUID]model.Subscription),
		payments: make(map[string]model.Payment),
		refs:     make(map[string]model.GatewayReference),
		events:   make(map[string]model.WebhookEvent),
		now:      time.Now,
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// PutUser seeds a user
func (s *Store) PutUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutPlan seeds a plan
func (s *Store) PutPlan(p model.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = p
}

// Payments returns every ledger row, oldest first
func (s *Store) Payments() []model.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type UserRepository struct{ s *Store }

func (s *Store) Users() *UserRepository { return &UserRepository{s} }

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

type PlanRepository struct{ s *Store }

func (s *Store) Plans() *PlanRepository { return &PlanRepository{s} }

func (r *PlanRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.plans[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

type SubscriptionRepository struct{ s *Store }

func (s *Store) Subscriptions() *SubscriptionRepository { return &SubscriptionRepository{s} }

func (r *SubscriptionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subs[userID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (r *SubscriptionRepository) GetByGatewaySubscriptionID(ctx context.Context, gatewaySubscriptionID string) (*model.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sub := range r.s.subs {
		if sub.GatewaySubscription() == gatewaySubscriptionID {
			found := sub
			return &found, nil
		}
	}
	return nil, nil
}

func (r *SubscriptionRepository) CreateIfAbsent(ctx context.Context, sub *model.Subscription) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.subs[sub.UserID]; ok {
		return false, nil
	}
	sub.ID = r.s.id()
	sub.CreatedAt = r.s.now()
	sub.UpdatedAt = sub.CreatedAt
	r.s.subs[sub.UserID] = *sub
	return true, nil
}

func (r *SubscriptionRepository) Save(ctx context.Context, sub *model.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.putSubscription(sub)
	return nil
}

// SaveWithPeriodClaim holds the store lock across the claim and the save
func (r *SubscriptionRepository) SaveWithPeriodClaim(ctx context.Context, sub *model.Subscription, claim repository.PeriodClaim) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if claim.GatewayPaymentID != "" {
		p, ok := r.s.payments[claim.GatewayPaymentID]
		if !ok {
			return false, fmt.Errorf("payment not found: %s", claim.GatewayPaymentID)
		}
		if p.PeriodApplied {
			return false, nil
		}
		p.PeriodApplied = true
		r.s.payments[claim.GatewayPaymentID] = p
	}

	if claim.GatewaySubscriptionID != "" {
		for id, p := range r.s.payments {
			if p.PeriodApplied || p.Status != model.PaymentStatusPaid ||
				p.GatewaySubscriptionID == nil || *p.GatewaySubscriptionID != claim.GatewaySubscriptionID {
				continue
			}
			p.PeriodApplied = true
			r.s.payments[id] = p
		}
	}

	r.s.putSubscription(sub)
	return true, nil
}

func (s *Store) putSubscription(sub *model.Subscription) {
	if existing, ok := s.subs[sub.UserID]; ok {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
	} else {
		sub.ID = s.id()
		sub.CreatedAt = s.now()
	}
	sub.UpdatedAt = s.now()
	s.subs[sub.UserID] = *sub
}

type PaymentRepository struct{ s *Store }

func (s *Store) PaymentRepository() *PaymentRepository { return &PaymentRepository{s} }

func (r *PaymentRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[gatewayPaymentID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *PaymentRepository) CreateIfAbsent(ctx context.Context, payment *model.Payment) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[payment.GatewayPaymentID]; ok {
		return false, nil
	}
	payment.ID = r.s.id()
	payment.CreatedAt = r.s.now()
	r.s.payments[payment.GatewayPaymentID] = *payment
	return true, nil
}

func (r *PaymentRepository) ListByUserID(ctx context.Context, userID uuid.UUID, params entity.PaginationParams) ([]*model.Payment, int64, error) {
	r.s.mu.Lock()
	var all []model.Payment
	for _, p := range r.s.payments {
		if p.UserID == userID {
			all = append(all, p)
		}
	}
	r.s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))

	start := params.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + params.Limit
	if end > len(all) {
		end = len(all)
	}

	out := make([]*model.Payment, 0, end-start)
	for i := start; i < end; i++ {
		p := all[i]
		out = append(out, &p)
	}
	return out, total, nil
}

type GatewayReferenceRepository struct{ s *Store }

func (s *Store) References() *GatewayReferenceRepository { return &GatewayReferenceRepository{s} }

func (r *GatewayReferenceRepository) Create(ctx context.Context, ref *model.GatewayReference) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.refs[ref.GatewayRefID]; ok {
		return nil
	}
	ref.ID = r.s.id()
	ref.CreatedAt = r.s.now()
	r.s.refs[ref.GatewayRefID] = *ref
	return nil
}

func (r *GatewayReferenceRepository) GetByGatewayRefID(ctx context.Context, gatewayRefID string) (*model.GatewayReference, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ref, ok := r.s.refs[gatewayRefID]
	if !ok {
		return nil, nil
	}
	return &ref, nil
}

type WebhookEventRepository struct{ s *Store }

func (s *Store) WebhookEvents() *WebhookEventRepository { return &WebhookEventRepository{s} }

func (r *WebhookEventRepository) CreateIfAbsent(ctx context.Context, event *model.WebhookEvent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.events[event.EventID]; ok {
		return false, nil
	}
	event.ID = r.s.id()
	event.CreatedAt = r.s.now()
	r.s.events[event.EventID] = *event
	return true, nil
}

func (r *WebhookEventRepository) GetByEventID(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[eventID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, eventID string, status model.WebhookStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[eventID]
	if !ok {
		return fmt.Errorf("webhook event not found: %s", eventID)
	}
	now := r.s.now()
	e.Status = status
	e.ProcessedAt = &now
	r.s.events[eventID] = e
	return nil
}

func (r *WebhookEventRepository) MarkFailed(ctx context.Context, eventID string, err error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[eventID]
	if !ok {
		return fmt.Errorf("webhook event not found: %s", eventID)
	}
	msg := err.Error()
	e.Status = model.WebhookStatusFailed
	e.ProcessingAttempts++
	e.LastError = &msg
	r.s.events[eventID] = e
	return nil
}
