package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/farellandr/rifa/internal/gateway"
	"go.opentelemetry.io/otel/attribute"
)

const (
	ActionSettled      = "settled"
	ActionFailed       = "failed"
	ActionPending      = "pending"
	ActionIgnored      = "ignored"
	ActionRejected     = "rejected"
	ActionUnsigned     = "unsigned"
	ActionUnconfigured = "unconfigured"
	ActionLookupFailed = "lookup_failed"
)

type MercadoPagoNotification struct {
	Type      string
	DataID    string
	RequestID string
	Signature string
}

type XenditNotification struct {
	CallbackToken string
	InvoiceID     string
	ExternalID    string
	Status        string
}

// NotificationOutcome says what a notification did. Callers acknowledge the
// sender regardless.
type NotificationOutcome struct {
	Action     string
	Reference  string
	Settlement *SettlementResult
}

// HandleMercadoPagoNotification authenticates the notification and, for
// payment events, settles or fails the referenced order. The returned error
// is reserved for storage faults.
func (e *Engine) HandleMercadoPagoNotification(ctx context.Context, n MercadoPagoNotification) (*NotificationOutcome, error) {
	ctx, span := tracer.Start(ctx, "services.HandleMercadoPagoNotification")
	defer span.End()
	span.SetAttributes(attribute.String("notification.type", n.Type), attribute.String("notification.data_id", n.DataID))

	check := gateway.VerifySignature(e.Settings.WebhookSecret, n.Signature, n.RequestID, n.DataID)
	span.SetAttributes(attribute.String("notification.signature", check.String()))
	strict := n.Type == "payment" && n.DataID != ""

	switch check {
	case gateway.SignatureNoSecret:
		log.Printf("[webhook] mercadopago secret not configured, ignoring %s %s", n.Type, n.DataID)
		e.notify(ctx, "MercadoPago webhook secret is not configured; notifications are being ignored.")
		return &NotificationOutcome{Action: ActionUnconfigured}, nil
	case gateway.SignatureMissing:
		log.Printf("[webhook] unsigned notification type=%s id=%s", n.Type, n.DataID)
		return &NotificationOutcome{Action: ActionUnsigned}, nil
	case gateway.SignatureMismatch:
		if strict {
			log.Printf("[webhook] signature mismatch for payment %s, rejected", n.DataID)
			return &NotificationOutcome{Action: ActionRejected}, nil
		}
		log.Printf("[webhook] signature mismatch for type=%s id=%s, accepted", n.Type, n.DataID)
	}

	if !strict {
		return &NotificationOutcome{Action: ActionIgnored}, nil
	}
	return e.applyGatewayPayment(ctx, n.DataID, claim{})
}

// HandleXenditNotification authenticates an invoice callback by its token
// and re-reads the invoice before acting on it.
func (e *Engine) HandleXenditNotification(ctx context.Context, n XenditNotification) (*NotificationOutcome, error) {
	ctx, span := tracer.Start(ctx, "services.HandleXenditNotification")
	defer span.End()

	if e.Settings.XenditCallbackToken == "" {
		log.Printf("[webhook] xendit callback token not configured, ignoring invoice %s", n.InvoiceID)
		e.notify(ctx, "Xendit callback token is not configured; callbacks are being ignored.")
		return &NotificationOutcome{Action: ActionUnconfigured}, nil
	}
	if !gateway.TokenEqual(e.Settings.XenditCallbackToken, n.CallbackToken) {
		log.Printf("[webhook] xendit callback token mismatch for invoice %s", n.InvoiceID)
		return &NotificationOutcome{Action: ActionRejected}, nil
	}
	if n.InvoiceID == "" {
		return &NotificationOutcome{Action: ActionIgnored}, nil
	}
	return e.applyGatewayPayment(ctx, n.InvoiceID, claim{reference: n.ExternalID, status: n.Status})
}

// claim is what the sender said about the payment. Empty fields are not
// checked.
type claim struct {
	reference string
	status    string
}

func (e *Engine) applyGatewayPayment(ctx context.Context, id string, c claim) (*NotificationOutcome, error) {
	if e.Gateway == nil {
		return &NotificationOutcome{Action: ActionLookupFailed}, nil
	}
	detail, err := e.Gateway.FetchPayment(ctx, id)
	if err != nil {
		log.Printf("[webhook] fetch payment %s: %v", id, err)
		return &NotificationOutcome{Action: ActionLookupFailed}, nil
	}
	if detail.ExternalReference == "" {
		log.Printf("[webhook] payment %s has no external reference", id)
		return &NotificationOutcome{Action: ActionIgnored}, nil
	}
	if c.reference != "" && c.reference != detail.ExternalReference {
		log.Printf("[webhook] payment %s claims reference %s but gateway has %s", id, c.reference, detail.ExternalReference)
		return &NotificationOutcome{Action: ActionRejected}, nil
	}
	if c.status != "" && !strings.EqualFold(c.status, detail.RawStatus) {
		log.Printf("[webhook] payment %s claims status %s but gateway has %s", id, c.status, detail.RawStatus)
	}

	out := &NotificationOutcome{Reference: detail.ExternalReference}
	switch detail.Status {
	case gateway.StatusApproved:
		res, err := e.Settle(ctx, detail.ExternalReference)
		var se *StateError
		if errors.As(err, &se) {
			log.Printf("[webhook] approved payment %s not settled: %v", id, err)
			out.Action = ActionIgnored
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if !res.Found {
			out.Action = ActionIgnored
			return out, nil
		}
		out.Action = ActionSettled
		out.Settlement = res
	case gateway.StatusRejected:
		p, changed, err := e.MarkFailed(ctx, detail.ExternalReference)
		if IsNotFound(err) {
			out.Action = ActionIgnored
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if !changed {
			log.Printf("[webhook] rejected payment %s left as %s", id, p.Status)
			out.Action = ActionIgnored
			return out, nil
		}
		out.Action = ActionFailed
	case gateway.StatusPending:
		out.Action = ActionPending
	default:
		log.Printf("[webhook] payment %s has unmapped status %q/%q", id, detail.RawStatus, detail.RawDetail)
		out.Action = ActionIgnored
	}
	return out, nil
}
