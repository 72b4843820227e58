package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/farellandr/rifa/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettlementResult struct {
	GatewayPaymentID string `json:"gateway_payment_id"`
	Found            bool   `json:"found"`
	AlreadyPaid      bool   `json:"already_paid"`
	Status           string `json:"status,omitempty"`
	PaidNumbers      []int  `json:"paid_numbers"`
	ConflictNumbers  []int  `json:"conflict_numbers"`
}

// Settle marks the payment paid and issues tickets for every chosen number
// still free. Numbers already ticketed to another payment are recorded as
// conflicts. Calling it again for a paid payment changes nothing. An unknown
// id yields Found=false and no error.
func (e *Engine) Settle(ctx context.Context, gatewayPaymentID string) (*SettlementResult, error) {
	ctx, span := tracer.Start(ctx, "services.Settle",
		trace.WithAttributes(attribute.String("payment.gateway_id", gatewayPaymentID)))
	defer span.End()

	res := &SettlementResult{GatewayPaymentID: gatewayPaymentID}
	var payment models.Payment
	now := e.now()

	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockPayment(tx, gatewayPaymentID)
		if err != nil || p == nil {
			return err
		}
		res.Found = true
		if p.IsTerminalFailure() {
			return &StateError{Resource: "payment " + gatewayPaymentID, Status: p.Status}
		}
		res.AlreadyPaid = p.Status == models.PaymentPaid

		updates := map[string]interface{}{}
		chosen := models.DecodeChosenNumbers(p.Metadata, p.ChosenNumber)
		if !chosen.Empty() {
			var paid, conflicts []int
			for _, n := range chosen.Numbers {
				owner, err := claimTicket(tx, p, n, now)
				if err != nil {
					return fmt.Errorf("claim number %d: %w", n, err)
				}
				if owner == p.ID {
					paid = append(paid, n)
				} else {
					conflicts = append(conflicts, n)
				}
			}
			res.PaidNumbers = models.NormalizeNumbers(paid)
			res.ConflictNumbers = models.NormalizeNumbers(conflicts)

			meta := models.DecodeMetadata(p.Metadata)
			if _, ok := meta[models.MetaChosenNumbers]; !ok {
				meta[models.MetaChosenNumbers] = chosen.Numbers
			}
			meta[models.MetaPaidNumbers] = res.PaidNumbers
			meta[models.MetaConflictNumbers] = res.ConflictNumbers
			p.Metadata = models.EncodeMetadata(meta)
			updates["metadata"] = p.Metadata
		}

		if p.Status != models.PaymentPaid {
			p.Status = models.PaymentPaid
			p.PaidAt = &now
			updates["status"] = p.Status
			updates["paid_at"] = now
		}
		if len(updates) > 0 {
			if err := tx.Model(&models.Payment{}).Where("id = ?", p.ID).Updates(updates).Error; err != nil {
				return err
			}
		}
		payment = *p
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	if !res.Found {
		log.Printf("[settlement] %s: no such payment", gatewayPaymentID)
		return res, nil
	}

	res.Status = payment.Status
	if res.PaidNumbers == nil {
		res.PaidNumbers = []int{}
	}
	if res.ConflictNumbers == nil {
		res.ConflictNumbers = []int{}
	}
	span.SetAttributes(
		attribute.Int("settlement.paid", len(res.PaidNumbers)),
		attribute.Int("settlement.conflicts", len(res.ConflictNumbers)),
		attribute.Bool("settlement.replay", res.AlreadyPaid),
	)
	log.Printf("[settlement] %s paid=%v conflicts=%v replay=%t", gatewayPaymentID, res.PaidNumbers, res.ConflictNumbers, res.AlreadyPaid)

	if !res.AlreadyPaid {
		e.publish(ctx, EventPaymentSettled, newPaymentEvent(&payment, res.PaidNumbers, res.ConflictNumbers, now))
		if len(res.ConflictNumbers) > 0 {
			e.notify(ctx, fmt.Sprintf("Payment %s settled with conflicts\nBuyer: %s <%s>\nPaid: %v\nLost: %v",
				gatewayPaymentID, payment.BuyerName, payment.BuyerEmail, res.PaidNumbers, res.ConflictNumbers))
		}
	}
	return res, nil
}

// claimTicket returns the id of the payment owning (raffle, n) after trying
// to create the ticket for p. The unique index decides concurrent claims.
func claimTicket(tx *gorm.DB, p *models.Payment, n int, now time.Time) (uint, error) {
	var existing models.Ticket
	found := tx.Where("raffle_id = ? AND number = ?", p.RaffleID, n).Limit(1).Find(&existing)
	if found.Error != nil {
		return 0, found.Error
	}
	if found.RowsAffected > 0 {
		return existing.PaymentID, nil
	}

	ticket := models.Ticket{
		RaffleID:   p.RaffleID,
		Number:     n,
		PaymentID:  p.ID,
		BuyerName:  p.BuyerName,
		BuyerEmail: p.BuyerEmail,
		BuyerPhone: p.BuyerPhone,
		CreatedAt:  now,
	}
	created := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "raffle_id"}, {Name: "number"}},
		DoNothing: true,
	}).Create(&ticket)
	if created.Error != nil {
		if !isUniqueViolation(created.Error) {
			return 0, created.Error
		}
	} else if created.RowsAffected > 0 {
		return p.ID, nil
	}

	var winner models.Ticket
	if err := tx.Where("raffle_id = ? AND number = ?", p.RaffleID, n).First(&winner).Error; err != nil {
		return 0, err
	}
	return winner.PaymentID, nil
}

// MarkFailed moves a pending payment to failed. Any other status is left
// as is; changed reports whether the row moved.
func (e *Engine) MarkFailed(ctx context.Context, gatewayPaymentID string) (*models.Payment, bool, error) {
	var (
		payment models.Payment
		changed bool
	)
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockPayment(tx, gatewayPaymentID)
		if err != nil {
			return err
		}
		if p == nil {
			return &NotFoundError{Resource: "payment", Key: gatewayPaymentID}
		}
		if p.Status == models.PaymentPending {
			p.Status = models.PaymentFailed
			if err := tx.Model(&models.Payment{}).Where("id = ?", p.ID).Update("status", p.Status).Error; err != nil {
				return err
			}
			changed = true
		}
		payment = *p
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		log.Printf("[settlement] %s marked failed", gatewayPaymentID)
		e.publish(ctx, EventPaymentFailed, newPaymentEvent(&payment, nil, nil, e.now()))
	}
	return &payment, changed, nil
}

// ExpireStaleReservations flips lapsed transfer holds to expired. Availability
// never depends on it.
func (e *Engine) ExpireStaleReservations(ctx context.Context) (int64, error) {
	res := e.DB.WithContext(ctx).Model(&models.Payment{}).
		Where("gateway = ? AND status = ? AND expires_at <= ?", models.GatewayTransfer, models.PaymentPending, e.now()).
		Update("status", models.PaymentExpired)
	return res.RowsAffected, res.Error
}

const (
	OutcomeSettled  = "settled"
	OutcomeConflict = "conflict"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

type SettleOutcome struct {
	GatewayPaymentID string `json:"gateway_payment_id"`
	Result           string `json:"result"`
	PaidNumbers      []int  `json:"paid_numbers,omitempty"`
	ConflictNumbers  []int  `json:"conflict_numbers,omitempty"`
	Error            string `json:"error,omitempty"`
}

// SettleMany is the staff override: each id is settled on its own and
// reported separately.
func (e *Engine) SettleMany(ctx context.Context, ids []string) []SettleOutcome {
	out := make([]SettleOutcome, 0, len(ids))
	for _, id := range ids {
		o := SettleOutcome{GatewayPaymentID: id}
		res, err := e.Settle(ctx, id)
		switch {
		case err != nil:
			o.Result = OutcomeError
			o.Error = err.Error()
			var se *StateError
			if !errors.As(err, &se) {
				log.Printf("[settlement] staff settle %s: %v", id, err)
			}
		case !res.Found:
			o.Result = OutcomeNotFound
		case len(res.ConflictNumbers) > 0:
			o.Result = OutcomeConflict
			o.PaidNumbers = res.PaidNumbers
			o.ConflictNumbers = res.ConflictNumbers
		default:
			o.Result = OutcomeSettled
			o.PaidNumbers = res.PaidNumbers
		}
		out = append(out, o)
	}
	return out
}
