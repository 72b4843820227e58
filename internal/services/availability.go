package services

import (
	"context"
	"sort"
	"time"

	"github.com/farellandr/rifa/internal/models"
	"gorm.io/gorm"
)

// TakenSet is the set of numbers that must be shown as unavailable.
type TakenSet map[int]struct{}

func (s TakenSet) Has(n int) bool {
	_, ok := s[n]
	return ok
}

func (s TakenSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Intersect returns the members of nums present in s, sorted.
func (s TakenSet) Intersect(nums []int) []int {
	var out []int
	for _, n := range models.NormalizeNumbers(nums) {
		if s.Has(n) {
			out = append(out, n)
		}
	}
	return out
}

func (e *Engine) TakenNumbers(ctx context.Context, raffleID uint) (TakenSet, error) {
	return takenNumbers(e.DB.WithContext(ctx), raffleID, e.now())
}

// takenNumbers unions sold tickets with the numbers held by pending transfer
// reservations that have not expired at now.
func takenNumbers(tx *gorm.DB, raffleID uint, now time.Time) (TakenSet, error) {
	var sold []int
	if err := tx.Model(&models.Ticket{}).
		Where("raffle_id = ?", raffleID).
		Pluck("number", &sold).Error; err != nil {
		return nil, err
	}

	var holds []models.Payment
	if err := tx.Select("id", "chosen_number", "metadata").
		Where("raffle_id = ? AND gateway = ? AND status = ? AND expires_at > ?",
			raffleID, models.GatewayTransfer, models.PaymentPending, now).
		Find(&holds).Error; err != nil {
		return nil, err
	}

	taken := make(TakenSet, len(sold))
	for _, n := range sold {
		taken[n] = struct{}{}
	}
	for _, p := range holds {
		for _, n := range models.DecodeChosenNumbers(p.Metadata, p.ChosenNumber).Numbers {
			taken[n] = struct{}{}
		}
	}
	return taken, nil
}
