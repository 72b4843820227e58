package services

import (
	"time"

	"github.com/farellandr/rifa/internal/models"
)

type PaymentEvent struct {
	GatewayPaymentID string    `json:"gateway_payment_id"`
	Gateway          string    `json:"gateway"`
	RaffleID         uint      `json:"raffle_id"`
	Status           string    `json:"status"`
	AmountCLP        int       `json:"amount_clp"`
	BuyerEmail       string    `json:"buyer_email"`
	Numbers          []int     `json:"numbers,omitempty"`
	ConflictNumbers  []int     `json:"conflict_numbers,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

func newPaymentEvent(p *models.Payment, numbers, conflicts []int, at time.Time) PaymentEvent {
	return PaymentEvent{
		GatewayPaymentID: p.GatewayPaymentID,
		Gateway:          p.Gateway,
		RaffleID:         p.RaffleID,
		Status:           p.Status,
		AmountCLP:        p.AmountCLP,
		BuyerEmail:       p.BuyerEmail,
		Numbers:          numbers,
		ConflictNumbers:  conflicts,
		OccurredAt:       at,
	}
}
