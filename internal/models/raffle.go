package models

import (
	"time"
)

type Raffle struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Title        string     `gorm:"size:200;not null" json:"title"`
	Description  string     `gorm:"type:text" json:"description"`
	PriceCLP     int        `gorm:"not null" json:"price_clp"`
	NumbersTotal int        `gorm:"not null" json:"numbers_total"`
	StartsAt     *time.Time `json:"starts_at,omitempty"`
	EndsAt       *time.Time `json:"ends_at,omitempty"`
	IsActive     bool       `gorm:"not null;index" json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// InRange reports whether n is a valid number on this raffle's grid.
func (r *Raffle) InRange(n int) bool {
	return n >= 1 && n <= r.NumbersTotal
}
