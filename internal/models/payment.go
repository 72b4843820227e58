package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
	PaymentExpired = "expired"
)

const (
	GatewayMercadoPago = "mercadopago"
	GatewayTransfer    = "transfer"
	GatewayXendit      = "xendit"
	GatewayMock        = "mock"
)

// Payment is one purchase attempt: a gateway order, a transfer reservation
// or a donation. GatewayPaymentID is the idempotency key for settlement.
type Payment struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	RaffleID         uint           `gorm:"not null;index" json:"raffle_id"`
	Raffle           *Raffle        `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	AmountCLP        int            `gorm:"not null" json:"amount_clp"`
	Gateway          string         `gorm:"size:50;not null" json:"gateway"`
	GatewayPaymentID string         `gorm:"size:100;not null;uniqueIndex" json:"gateway_payment_id"`
	Status           string         `gorm:"size:20;not null;index" json:"status"`
	BuyerName        string         `gorm:"size:150;not null" json:"buyer_name"`
	BuyerEmail       string         `gorm:"size:254;not null;index" json:"buyer_email"`
	BuyerPhone       string         `gorm:"size:30" json:"buyer_phone"`
	ChosenNumber     *int           `json:"chosen_number,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	PaidAt           *time.Time     `json:"paid_at,omitempty"`
	ExpiresAt        *time.Time     `gorm:"index" json:"expires_at,omitempty"`
	Metadata         datatypes.JSON `json:"metadata"`
}

func (p *Payment) IsTerminalFailure() bool {
	return p.Status == PaymentFailed || p.Status == PaymentExpired
}

// All lists every table the service migrates.
func All() []interface{} {
	return []interface{}{
		&Role{},
		&StaffUser{},
		&Raffle{},
		&Payment{},
		&Ticket{},
	}
}
