package gateway

import (
	"context"
	"errors"

	"github.com/xendit/xendit-go/v6"
	"github.com/xendit/xendit-go/v6/invoice"
)

// Xendit creates hosted invoices. Invoice ids double as payment ids for
// callbacks.
type Xendit struct {
	client *xendit.APIClient
}

func NewXendit(secretKey string) *Xendit {
	return &Xendit{client: xendit.NewClient(secretKey)}
}

func (x *Xendit) Name() string {
	return "xendit"
}

func (x *Xendit) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	createInvoiceRequest := *invoice.NewCreateInvoiceRequest(req.ExternalReference, float64(req.AmountCLP))
	createInvoiceRequest.SetDescription(req.Description)
	if req.PayerEmail != "" {
		createInvoiceRequest.SetPayerEmail(req.PayerEmail)
	}
	if req.Currency != "" {
		createInvoiceRequest.SetCurrency(req.Currency)
	}

	resp, _, xerr := x.client.InvoiceApi.CreateInvoice(ctx).
		CreateInvoiceRequest(createInvoiceRequest).
		Execute()
	if xerr != nil {
		return nil, &Error{Provider: x.Name(), Err: errors.New(xerr.Error())}
	}
	if resp.GetId() == "" {
		return nil, &Error{Provider: x.Name(), Err: errors.New("invoice id missing")}
	}
	return &Order{ID: resp.GetId(), CheckoutURL: resp.GetInvoiceUrl()}, nil
}

func (x *Xendit) FetchPayment(ctx context.Context, id string) (*PaymentDetail, error) {
	resp, _, xerr := x.client.InvoiceApi.GetInvoiceById(ctx, id).Execute()
	if xerr != nil {
		return nil, &Error{Provider: x.Name(), Err: errors.New(xerr.Error())}
	}
	raw := string(resp.GetStatus())
	return &PaymentDetail{
		ID:                resp.GetId(),
		ExternalReference: resp.GetExternalId(),
		Status:            xenditStatus(raw),
		RawStatus:         raw,
	}, nil
}

func xenditStatus(status string) Status {
	switch status {
	case "PAID", "SETTLED":
		return StatusApproved
	case "EXPIRED":
		return StatusRejected
	case "PENDING":
		return StatusPending
	}
	return StatusUnknown
}
