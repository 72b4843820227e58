package services

import (
	"context"
	"log"
	"time"

	"github.com/farellandr/rifa/internal/gateway"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

const (
	ReservationTTL      = 12 * time.Hour
	MaxReserveNumbers   = 50
	MaxOrderNumbers     = 100
	EmailReserveLimit   = 5
	EmailReserveWindow  = 24 * time.Hour
	MinDonationCLP      = 1000
	AnonymousDonorName  = "Anónimo"
	anonymousDonorEmail = "anon+%s@donaciones.invalid"
)

const (
	EventPaymentSettled     = "payment.settled"
	EventPaymentFailed      = "payment.failed"
	EventReservationCreated = "reservation.created"
)

var tracer = otel.Tracer("github.com/farellandr/rifa/internal/services")

var validate = validator.New()

type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

type Notifier interface {
	Notify(ctx context.Context, text string)
}

type Settings struct {
	WebhookSecret       string
	XenditCallbackToken string
	Currency            string
	PublicBaseURL       string
	PublicKey           string
}

// Engine owns every mutation of payments and tickets.
type Engine struct {
	DB       *gorm.DB
	Gateway  gateway.Collaborator
	Events   EventPublisher
	Notifier Notifier
	Settings Settings
	Now      func() time.Time
}

func NewEngine(db *gorm.DB, gw gateway.Collaborator, settings Settings) *Engine {
	if settings.Currency == "" {
		settings.Currency = "CLP"
	}
	return &Engine{
		DB:       db,
		Gateway:  gw,
		Settings: settings,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now()
}

func (e *Engine) publish(ctx context.Context, key string, v any) {
	if e.Events == nil {
		return
	}
	if err := e.Events.PublishJSON(ctx, key, v); err != nil {
		log.Printf("[events] publish %s: %v", key, err)
	}
}

func (e *Engine) notify(ctx context.Context, text string) {
	if e.Notifier == nil {
		return
	}
	e.Notifier.Notify(ctx, text)
}
