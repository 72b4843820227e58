package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/farellandr/rifa/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Buyer struct {
	Name  string `json:"name" validate:"required,max=150"`
	Email string `json:"email" validate:"required,contains=@,max=254"`
	Phone string `json:"phone" validate:"max=30"`
}

func (b Buyer) normalized() Buyer {
	return Buyer{
		Name:  strings.TrimSpace(b.Name),
		Email: strings.ToLower(strings.TrimSpace(b.Email)),
		Phone: strings.TrimSpace(b.Phone),
	}
}

func validateBuyer(b Buyer) error {
	if err := validate.Struct(b); err != nil {
		return invalid("a name and a valid email are required")
	}
	return nil
}

// validateSelection checks shape only; range needs the raffle.
func validateSelection(numbers []int, max int) error {
	if len(numbers) == 0 {
		return invalid("select at least one number")
	}
	if len(numbers) > max {
		return invalid("at most %d numbers per request", max)
	}
	seen := make(map[int]struct{}, len(numbers))
	for _, n := range numbers {
		if n < 1 {
			return invalid("number out of range: %d", n)
		}
		if _, dup := seen[n]; dup {
			return invalid("number %d selected twice", n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

func checkRange(raffle *models.Raffle, numbers []int) error {
	for _, n := range numbers {
		if !raffle.InRange(n) {
			return invalid("number out of range: %d", n)
		}
	}
	return nil
}

type ReserveRequest struct {
	// RaffleID zero means the active raffle.
	RaffleID  uint
	Numbers   []int
	Buyer     Buyer
	ClientIP  string
	UserAgent string
	Metadata  map[string]interface{}

	afterCreate func(tx *gorm.DB) error
	maxNumbers  int
}

type Reservation struct {
	Payment       *models.Payment `json:"-"`
	Numbers       []int           `json:"chosen_numbers"`
	ReservedUntil time.Time       `json:"reserved_until"`
}

func (e *Engine) resolveRaffle(ctx context.Context, id uint) (*models.Raffle, error) {
	if id == 0 {
		return e.ActiveRaffle(ctx)
	}
	return e.GetRaffle(ctx, id)
}

// Reserve holds numbers for a bank transfer. The hold is a pending payment
// row, not a ticket, and lapses at its expiry.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) (*Reservation, error) {
	ctx, span := tracer.Start(ctx, "services.Reserve")
	defer span.End()

	buyer := req.Buyer.normalized()
	limit := MaxReserveNumbers
	if req.maxNumbers > 0 {
		limit = req.maxNumbers
	}
	if err := validateSelection(req.Numbers, limit); err != nil {
		return nil, err
	}
	if err := validateBuyer(buyer); err != nil {
		return nil, err
	}
	raffle, err := e.resolveRaffle(ctx, req.RaffleID)
	if err != nil {
		return nil, err
	}
	if err := checkRange(raffle, req.Numbers); err != nil {
		return nil, err
	}

	numbers := models.NormalizeNumbers(req.Numbers)
	now := e.now()
	expires := now.Add(ReservationTTL)

	meta := map[string]interface{}{}
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta[models.MetaChosenNumbers] = numbers
	meta["payment_method"] = models.GatewayTransfer
	meta["client_ip"] = req.ClientIP
	meta["user_agent"] = req.UserAgent

	payment := models.Payment{
		RaffleID:         raffle.ID,
		AmountCLP:        raffle.PriceCLP * len(numbers),
		Gateway:          models.GatewayTransfer,
		GatewayPaymentID: fmt.Sprintf("transfer-%d-%s", raffle.ID, uuid.NewString()),
		Status:           models.PaymentPending,
		BuyerName:        buyer.Name,
		BuyerEmail:       buyer.Email,
		BuyerPhone:       buyer.Phone,
		CreatedAt:        now,
		ExpiresAt:        &expires,
		Metadata:         models.EncodeMetadata(meta),
	}

	err = e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.Raffle
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, raffle.ID).Error; err != nil {
			return err
		}

		var recent int64
		if err := tx.Model(&models.Payment{}).
			Where("raffle_id = ? AND gateway = ? AND status = ? AND buyer_email = ? AND created_at >= ?",
				raffle.ID, models.GatewayTransfer, models.PaymentPending, buyer.Email, now.Add(-EmailReserveWindow)).
			Count(&recent).Error; err != nil {
			return err
		}
		if recent >= EmailReserveLimit {
			return &RateLimitError{Message: "too many transfer reservations in the last 24 hours"}
		}

		taken, err := takenNumbers(tx, raffle.ID, now)
		if err != nil {
			return err
		}
		if conflict := taken.Intersect(numbers); len(conflict) > 0 {
			return &ConflictError{Numbers: conflict}
		}

		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		if req.afterCreate != nil {
			return req.afterCreate(tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[reserve] %s raffle=%d numbers=%v until=%s", payment.GatewayPaymentID, raffle.ID, numbers, expires.Format(time.RFC3339))
	e.publish(ctx, EventReservationCreated, newPaymentEvent(&payment, numbers, nil, now))
	e.notify(ctx, fmt.Sprintf("New transfer reservation %s\nRaffle: %s\nBuyer: %s <%s>\nNumbers: %v\nAmount: %d CLP",
		payment.GatewayPaymentID, raffle.Title, payment.BuyerName, payment.BuyerEmail, numbers, payment.AmountCLP))

	return &Reservation{Payment: &payment, Numbers: numbers, ReservedUntil: expires}, nil
}

// ReserveFromFailed turns a gateway order the buyer could not pay into a
// transfer reservation for the same numbers, and fails the original order.
func (e *Engine) ReserveFromFailed(ctx context.Context, externalRef, clientIP, userAgent string) (*Reservation, error) {
	externalRef = strings.TrimSpace(externalRef)
	if externalRef == "" {
		return nil, invalid("external_reference is required")
	}

	var source models.Payment
	err := e.DB.WithContext(ctx).
		Where("gateway_payment_id = ? AND gateway <> ?", externalRef, models.GatewayTransfer).
		First(&source).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "payment", Key: externalRef}
	}
	if err != nil {
		return nil, err
	}
	if source.Status == models.PaymentPaid {
		return nil, invalid("payment %s is already paid", externalRef)
	}
	chosen := models.DecodeChosenNumbers(source.Metadata, source.ChosenNumber)
	if chosen.Empty() {
		return nil, invalid("payment %s has no numbers", externalRef)
	}

	return e.Reserve(ctx, ReserveRequest{
		RaffleID:   source.RaffleID,
		Numbers:    chosen.Numbers,
		Buyer:      Buyer{Name: source.BuyerName, Email: source.BuyerEmail, Phone: source.BuyerPhone},
		ClientIP:   clientIP,
		UserAgent:  userAgent,
		Metadata:   map[string]interface{}{"from_external_reference": externalRef},
		maxNumbers: MaxOrderNumbers,
		afterCreate: func(tx *gorm.DB) error {
			return tx.Model(&models.Payment{}).
				Where("id = ? AND status = ?", source.ID, models.PaymentPending).
				Update("status", models.PaymentFailed).Error
		},
	})
}
