package gateway

import (
	"context"
	"fmt"
)

// Status is the closed set of outcomes the settlement code understands.
// Provider vocabulary never leaves this package.
type Status int

const (
	StatusUnknown Status = iota
	StatusApproved
	StatusRejected
	StatusPending
)

func (s Status) String() string {
	switch s {
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusPending:
		return "pending"
	}
	return "unknown"
}

type Item struct {
	Title     string
	Quantity  int
	UnitPrice int
}

type OrderRequest struct {
	ExternalReference string
	Description       string
	Items             []Item
	AmountCLP         int
	Currency          string
	PayerName         string
	PayerEmail        string
	NotificationURL   string
	SuccessURL        string
	FailureURL        string
	PendingURL        string
}

type Order struct {
	ID          string
	CheckoutURL string
}

type PaymentDetail struct {
	ID                string
	ExternalReference string
	Status            Status
	RawStatus         string
	RawDetail         string
}

// Collaborator is an external payment provider.
type Collaborator interface {
	Name() string
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	FetchPayment(ctx context.Context, id string) (*PaymentDetail, error)
}

// Error is a provider response that could not be used. Body is kept for
// diagnostics.
type Error struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.StatusCode)
}

func (e *Error) Unwrap() error {
	return e.Err
}
