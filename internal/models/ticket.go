package models

import (
	"time"
)

// Ticket is one sold (raffle, number) pair. The composite unique index is the
// allocation invariant: a number is owned by at most one payment.
type Ticket struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RaffleID   uint      `gorm:"not null;uniqueIndex:uniq_raffle_number,priority:1" json:"raffle_id"`
	Raffle     *Raffle   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Number     int       `gorm:"not null;uniqueIndex:uniq_raffle_number,priority:2" json:"number"`
	PaymentID  uint      `gorm:"not null;index" json:"payment_id"`
	Payment    *Payment  `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	BuyerName  string    `gorm:"size:150;not null" json:"buyer_name"`
	BuyerEmail string    `gorm:"size:254;not null" json:"buyer_email"`
	BuyerPhone string    `gorm:"size:30" json:"buyer_phone"`
	CreatedAt  time.Time `json:"created_at"`
}
