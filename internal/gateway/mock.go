package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Mock approves nothing on its own. Tests and local runs set payment
// outcomes with SetPayment.
type Mock struct {
	mu       sync.Mutex
	orders   map[string]OrderRequest
	payments map[string]*PaymentDetail

	CreateErr error
	FetchErr  error
}

func NewMock() *Mock {
	return &Mock{
		orders:   map[string]OrderRequest{},
		payments: map[string]*PaymentDetail{},
	}
}

func (m *Mock) Name() string {
	return "mock"
}

func (m *Mock) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := "mock-pref-" + uuid.NewString()
	m.orders[id] = req
	return &Order{ID: id, CheckoutURL: "https://mock.invalid/checkout/" + id}, nil
}

func (m *Mock) FetchPayment(ctx context.Context, id string) (*PaymentDetail, error) {
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, &Error{Provider: m.Name(), StatusCode: 404, Body: `{"message":"payment not found"}`}
	}
	cp := *p
	return &cp, nil
}

func (m *Mock) SetPayment(p PaymentDetail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = &p
}

// Orders returns the requests seen so far, keyed by order id.
func (m *Mock) Orders() map[string]OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]OrderRequest, len(m.orders))
	for k, v := range m.orders {
		out[k] = v
	}
	return out
}
