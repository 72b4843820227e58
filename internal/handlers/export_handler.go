package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/farellandr/rifa/internal/helpers"
	"github.com/gin-gonic/gin"
)

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func ExportTicketsCSV(c *gin.Context) {
	id, err := helpers.ParseIDParam(c, "id")
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid raffle ID.")
		return
	}

	engine, ok := getEngine(c)
	if !ok {
		return
	}

	tickets, err := engine.RaffleTickets(c.Request.Context(), id)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	rows := make([][]string, 0, len(tickets))
	for _, t := range tickets {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(t.RaffleID), 10),
			strconv.Itoa(t.Number),
			t.BuyerName,
			t.BuyerEmail,
			t.BuyerPhone,
			formatTime(&t.CreatedAt),
			strconv.FormatUint(uint64(t.PaymentID), 10),
		})
	}

	header := []string{"raffle_id", "number", "buyer_name", "buyer_email", "buyer_phone", "created_at", "payment_id"}
	if err := helpers.WriteCSVAttachment(c, fmt.Sprintf("tickets_raffle_%d.csv", id), header, rows); err != nil {
		log.Printf("[export] tickets raffle=%d: %v", id, err)
	}
}

func ExportPaymentsCSV(c *gin.Context) {
	id, err := helpers.ParseIDParam(c, "id")
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid raffle ID.")
		return
	}

	engine, ok := getEngine(c)
	if !ok {
		return
	}

	payments, err := engine.RafflePayments(c.Request.Context(), id)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	rows := make([][]string, 0, len(payments))
	for _, p := range payments {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(p.RaffleID), 10),
			p.Status,
			strconv.Itoa(p.AmountCLP),
			p.Gateway,
			p.GatewayPaymentID,
			p.BuyerName,
			p.BuyerEmail,
			p.BuyerPhone,
			formatTime(&p.CreatedAt),
			formatTime(p.PaidAt),
		})
	}

	header := []string{"raffle_id", "status", "amount_clp", "gateway", "gateway_payment_id",
		"buyer_name", "buyer_email", "buyer_phone", "created_at", "paid_at"}
	if err := helpers.WriteCSVAttachment(c, fmt.Sprintf("payments_raffle_%d.csv", id), header, rows); err != nil {
		log.Printf("[export] payments raffle=%d: %v", id, err)
	}
}
