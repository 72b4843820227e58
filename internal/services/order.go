package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/farellandr/rifa/internal/gateway"
	"github.com/farellandr/rifa/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRequest struct {
	RaffleID uint
	Numbers  []int
	Buyer    Buyer
}

type DonationRequest struct {
	AmountCLP int
	Buyer     *Buyer
}

type OrderResult struct {
	PreferenceID      string          `json:"preference_id"`
	ExternalReference string          `json:"external_reference"`
	CheckoutURL       string          `json:"init_point,omitempty"`
	Payment           *models.Payment `json:"-"`
}

// CreateOrder asks the payment collaborator for a payable order. Number
// availability is not checked here; collisions surface at settlement as
// conflicts.
func (e *Engine) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	ctx, span := tracer.Start(ctx, "services.CreateOrder")
	defer span.End()

	buyer := req.Buyer.normalized()
	if err := validateSelection(req.Numbers, MaxOrderNumbers); err != nil {
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
	total := raffle.PriceCLP * len(numbers)
	extRef := fmt.Sprintf("raffle-%d-%s", raffle.ID, uuid.NewString())

	order, err := e.placeOrder(ctx, gateway.OrderRequest{
		ExternalReference: extRef,
		Description:       raffle.Title,
		Items: []gateway.Item{{
			Title:     fmt.Sprintf("%s - %d números", raffle.Title, len(numbers)),
			Quantity:  len(numbers),
			UnitPrice: raffle.PriceCLP,
		}},
		AmountCLP:  total,
		PayerName:  buyer.Name,
		PayerEmail: buyer.Email,
	})
	if err != nil {
		return nil, err
	}

	payment := models.Payment{
		RaffleID:         raffle.ID,
		AmountCLP:        total,
		Gateway:          e.Gateway.Name(),
		GatewayPaymentID: extRef,
		Status:           models.PaymentPending,
		BuyerName:        buyer.Name,
		BuyerEmail:       buyer.Email,
		BuyerPhone:       buyer.Phone,
		CreatedAt:        e.now(),
		Metadata: models.EncodeMetadata(map[string]interface{}{
			models.MetaChosenNumbers: numbers,
			"preference_id":          order.ID,
		}),
	}
	if err := e.upsertPending(ctx, &payment); err != nil {
		return nil, err
	}
	return &OrderResult{PreferenceID: order.ID, ExternalReference: extRef, CheckoutURL: order.CheckoutURL, Payment: &payment}, nil
}

// CreateDonation records a pending, number-less payment against the active
// raffle.
func (e *Engine) CreateDonation(ctx context.Context, req DonationRequest) (*OrderResult, error) {
	ctx, span := tracer.Start(ctx, "services.CreateDonation")
	defer span.End()

	if req.AmountCLP < MinDonationCLP {
		return nil, invalid("minimum donation is %d CLP", MinDonationCLP)
	}
	var buyer Buyer
	if req.Buyer != nil {
		buyer = req.Buyer.normalized()
	}
	if buyer.Name == "" {
		buyer.Name = AnonymousDonorName
	}
	if buyer.Email == "" {
		buyer.Email = fmt.Sprintf(anonymousDonorEmail, uuid.NewString())
	}
	if err := validateBuyer(buyer); err != nil {
		return nil, err
	}

	raffle, err := e.ActiveRaffle(ctx)
	if err != nil {
		return nil, err
	}

	extRef := fmt.Sprintf("donation-%d-%s", raffle.ID, uuid.NewString())
	payer := buyer.Email
	if strings.HasSuffix(payer, "@donaciones.invalid") {
		payer = ""
	}
	order, err := e.placeOrder(ctx, gateway.OrderRequest{
		ExternalReference: extRef,
		Description:       "Donación " + raffle.Title,
		Items:             []gateway.Item{{Title: "Donación", Quantity: 1, UnitPrice: req.AmountCLP}},
		AmountCLP:         req.AmountCLP,
		PayerName:         buyer.Name,
		PayerEmail:        payer,
	})
	if err != nil {
		return nil, err
	}

	payment := models.Payment{
		RaffleID:         raffle.ID,
		AmountCLP:        req.AmountCLP,
		Gateway:          e.Gateway.Name(),
		GatewayPaymentID: extRef,
		Status:           models.PaymentPending,
		BuyerName:        buyer.Name,
		BuyerEmail:       buyer.Email,
		BuyerPhone:       buyer.Phone,
		CreatedAt:        e.now(),
		Metadata: models.EncodeMetadata(map[string]interface{}{
			"kind":          "donation",
			"preference_id": order.ID,
		}),
	}
	if err := e.upsertPending(ctx, &payment); err != nil {
		return nil, err
	}
	return &OrderResult{PreferenceID: order.ID, ExternalReference: extRef, CheckoutURL: order.CheckoutURL, Payment: &payment}, nil
}

func (e *Engine) placeOrder(ctx context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	if e.Gateway == nil {
		return nil, &GatewayError{Err: errors.New("no payment gateway configured")}
	}
	req.Currency = e.Settings.Currency
	if base := strings.TrimRight(e.Settings.PublicBaseURL, "/"); base != "" {
		req.NotificationURL = base + "/webhook/" + e.Gateway.Name()
		req.SuccessURL = base + "/payment/success"
		req.FailureURL = base + "/payment/failure"
		req.PendingURL = base + "/payment/pending"
	}
	order, err := e.Gateway.CreateOrder(ctx, req)
	if err != nil {
		var gerr *gateway.Error
		if errors.As(err, &gerr) && gerr.Body != "" {
			log.Printf("[order] %s create failed: status=%d body=%s", req.ExternalReference, gerr.StatusCode, gerr.Body)
		} else {
			log.Printf("[order] %s create failed: %v", req.ExternalReference, err)
		}
		return nil, &GatewayError{Err: err}
	}
	return order, nil
}

// upsertPending writes p keyed by its gateway payment id. An existing row
// that already left pending is left untouched.
func (e *Engine) upsertPending(ctx context.Context, p *models.Payment) error {
	return e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := lockPayment(tx, p.GatewayPaymentID)
		if err != nil {
			return err
		}
		if existing == nil {
			err = tx.Transaction(func(sp *gorm.DB) error {
				return sp.Create(p).Error
			})
			if err == nil {
				return nil
			}
			if !isUniqueViolation(err) {
				return err
			}
			if existing, err = lockPayment(tx, p.GatewayPaymentID); err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("payment %s vanished during upsert", p.GatewayPaymentID)
			}
		}
		if existing.Status != models.PaymentPending {
			*p = *existing
			return nil
		}
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
		return tx.Model(existing).Select("raffle_id", "amount_clp", "gateway", "buyer_name", "buyer_email", "buyer_phone", "metadata").
			Updates(p).Error
	})
}

// lockPayment returns nil without error when no row matches.
func lockPayment(tx *gorm.DB, gatewayPaymentID string) (*models.Payment, error) {
	var p models.Payment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("gateway_payment_id = ?", gatewayPaymentID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
