package handlers

import (
	"net/http"
	"time"

	"github.com/farellandr/rifa/internal/helpers"
	"github.com/farellandr/rifa/internal/services"
	"github.com/gin-gonic/gin"
)

type SelectionRequest struct {
	ChosenNumbers []int          `json:"chosen_numbers"`
	Buyer         services.Buyer `json:"buyer"`
}

type ReserveFromFailedRequest struct {
	ExternalReference string `json:"external_reference"`
}

func TransferReserve(c *gin.Context) {
	var req SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid JSON.")
		return
	}

	engine, ok := getEngine(c)
	if !ok {
		return
	}

	reservation, err := engine.Reserve(c.Request.Context(), services.ReserveRequest{
		Numbers:   req.ChosenNumbers,
		Buyer:     req.Buyer,
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":             true,
		"reserved_until": reservation.ReservedUntil.Format(time.RFC3339),
		"count":          len(reservation.Numbers),
		"chosen_numbers": reservation.Numbers,
		"payment_id":     reservation.Payment.GatewayPaymentID,
	})
}

func ReserveFromFailedPayment(c *gin.Context) {
	var req ReserveFromFailedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid JSON.")
		return
	}

	engine, ok := getEngine(c)
	if !ok {
		return
	}

	reservation, err := engine.ReserveFromFailed(c.Request.Context(), req.ExternalReference, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":             true,
		"reserved_until": reservation.ReservedUntil.Format(time.RFC3339),
		"count":          len(reservation.Numbers),
		"chosen_numbers": reservation.Numbers,
		"payment_id":     reservation.Payment.GatewayPaymentID,
	})
}
