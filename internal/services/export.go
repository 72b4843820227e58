package services

import (
	"context"

	"github.com/farellandr/rifa/internal/models"
)

func (e *Engine) RaffleTickets(ctx context.Context, raffleID uint) ([]models.Ticket, error) {
	if _, err := e.GetRaffle(ctx, raffleID); err != nil {
		return nil, err
	}
	var tickets []models.Ticket
	err := e.DB.WithContext(ctx).Where("raffle_id = ?", raffleID).Order("number").Find(&tickets).Error
	return tickets, err
}

func (e *Engine) RafflePayments(ctx context.Context, raffleID uint) ([]models.Payment, error) {
	if _, err := e.GetRaffle(ctx, raffleID); err != nil {
		return nil, err
	}
	var payments []models.Payment
	err := e.DB.WithContext(ctx).Where("raffle_id = ?", raffleID).Order("created_at DESC, id DESC").Find(&payments).Error
	return payments, err
}

// PaidPayment loads a paid payment with its tickets for receipts.
func (e *Engine) PaidPayment(ctx context.Context, gatewayPaymentID string) (*models.Payment, []models.Ticket, error) {
	var p models.Payment
	err := e.DB.WithContext(ctx).
		Where("gateway_payment_id = ? AND status = ?", gatewayPaymentID, models.PaymentPaid).
		First(&p).Error
	if err != nil {
		if IsNotFound(err) {
			return nil, nil, &NotFoundError{Resource: "paid payment", Key: gatewayPaymentID}
		}
		return nil, nil, err
	}
	var tickets []models.Ticket
	if err := e.DB.WithContext(ctx).Where("payment_id = ?", p.ID).Order("number").Find(&tickets).Error; err != nil {
		return nil, nil, err
	}
	return &p, tickets, nil
}
