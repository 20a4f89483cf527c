package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/wityliti/wityliti.io-sub000/internal/adapter/repository/memory"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/model"
	"github.com/wityliti/wityliti.io-sub000/internal/domain/provider"
	"github.com/wityliti/wityliti.io-sub000/internal/infrastructure/provider/razorpay"
)

const (
	testGatewaySecret = "gateway-key-secret"
	testChannel       = "billing.subscription"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeGateway keeps gateway objects in memory and records created ones
type fakeGateway struct {
	mu            sync.Mutex
	seq           int
	customers     map[string]*provider.Customer
	subscriptions map[string]*provider.Subscription
	orders        map[string]*provider.Order
	payments      map[string]*provider.Payment
	failWith      error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		customers:     make(map[string]*provider.Customer),
		subscriptions: make(map[string]*provider.Subscription),
		orders:        make(map[string]*provider.Order),
		payments:      make(map[string]*provider.Payment),
	}
}

func (g *fakeGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%d", prefix, g.seq)
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, req *provider.CreateCustomerRequest) (*provider.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	c := &provider.Customer{ID: g.next("cust"), Email: req.Email, Notes: req.Notes}
	g.customers[c.ID] = c
	return c, nil
}

func (g *fakeGateway) CreateSubscription(ctx context.Context, req *provider.CreateSubscriptionRequest) (*provider.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	s := &provider.Subscription{ID: g.next("sub"), PlanID: req.GatewayPlanID, CustomerID: req.CustomerID, Status: "created", Notes: req.Notes}
	g.subscriptions[s.ID] = s
	return s, nil
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req *provider.CreateOrderRequest) (*provider.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	o := &provider.Order{ID: g.next("order"), Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created", Notes: req.Notes}
	g.orders[o.ID] = o
	return o, nil
}

func (g *fakeGateway) FetchSubscription(ctx context.Context, id string) (*provider.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	s, ok := g.subscriptions[id]
	if !ok {
		return nil, &provider.ProviderError{StatusCode: 400, Code: "BAD_REQUEST_ERROR", Message: "not found"}
	}
	cp := *s
	return &cp, nil
}

func (g *fakeGateway) FetchOrder(ctx context.Context, id string) (*provider.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	o, ok := g.orders[id]
	if !ok {
		return nil, &provider.ProviderError{StatusCode: 400, Code: "BAD_REQUEST_ERROR", Message: "not found"}
	}
	cp := *o
	return &cp, nil
}

func (g *fakeGateway) FetchPayment(ctx context.Context, id string) (*provider.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	p, ok := g.payments[id]
	if !ok {
		return nil, &provider.ProviderError{StatusCode: 400, Code: "BAD_REQUEST_ERROR", Message: "not found"}
	}
	cp := *p
	return &cp, nil
}

func (g *fakeGateway) ParseWebhookEvent(body []byte, eventID string) (*provider.WebhookEvent, error) {
	return razorpay.ParseWebhookEvent(body, eventID)
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

func (g *fakeGateway) GetProviderName() string { return "fake" }

func (g *fakeGateway) putSubscription(s *provider.Subscription) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscriptions[s.ID] = s
}

func (g *fakeGateway) putOrder(o *provider.Order) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders[o.ID] = o
}

func (g *fakeGateway) putPayment(p *provider.Payment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[p.ID] = p
}

func (g *fakeGateway) setFailure(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failWith = err
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func (m *mockPublisher) Close() error {
	return nil
}

// fixture seeds one user and one monthly plan
type fixture struct {
	store   *memory.Store
	gateway *fakeGateway
	clock   *testClock
	user    model.User
	plan    model.Plan
}

func newFixture() *fixture {
	f := &fixture{
		store:   memory.NewStore(),
		gateway: newFakeGateway(),
		clock:   newTestClock(),
		user:    model.User{ID: uuid.MustParse("3f1c2a9e-8b7d-4c6e-9a5b-1d2e3f4a5b6c"), Email: "asha@example.com", Name: "Asha"},
		plan: model.Plan{
			ID:            uuid.MustParse("7a8b9c0d-1e2f-4a3b-8c4d-5e6f7a8b9c0d"),
			Name:          "Pro Monthly",
			GatewayPlanID: "plan_pro_monthly",
			AmountMinor:   49900,
			Currency:      "INR",
			Interval:      model.PlanIntervalMonthly,
			IntervalCount: 1,
			TrialDays:     14,
			IsActive:      true,
		},
	}
	f.store.PutUser(f.user)
	f.store.PutPlan(f.plan)
	return f
}
