package handlers

import (
	"net/http"

	"github.com/farellandr/rifa/internal/helpers"
	"github.com/farellandr/rifa/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
)

func GenerateReceiptQR(c *gin.Context) {
	signer := middleware.GetReceiptSigner(c)
	if signer == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Receipt signer not configured.")
		return
	}

	engine, ok := getEngine(c)
	if !ok {
		return
	}

	payment, tickets, err := engine.PaidPayment(c.Request.Context(), c.Param("ref"))
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}
	if len(tickets) == 0 {
		helpers.RespondWithError(c, http.StatusNotFound, "No tickets for this payment.")
		return
	}

	receipt := helpers.Receipt{GatewayPaymentID: payment.GatewayPaymentID, RaffleID: payment.RaffleID}
	for _, t := range tickets {
		receipt.Numbers = append(receipt.Numbers, t.Number)
	}

	qrImage, err := qrcode.Encode(signer.Encode(receipt), qrcode.Medium, 256)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	c.Data(http.StatusOK, "image/png", qrImage)
}

func ValidateReceipt(c *gin.Context) {
	var validationRequest struct {
		QRData string `json:"qr_data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&validationRequest); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	signer := middleware.GetReceiptSigner(c)
	if signer == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Receipt signer not configured.")
		return
	}

	receipt, err := signer.Decode(validationRequest.QRData)
	if err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "Invalid QR code signature")
		return
	}

	engine, ok := getEngine(c)
	if !ok {
		return
	}

	payment, tickets, err := engine.PaidPayment(c.Request.Context(), receipt.GatewayPaymentID)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	owned := make(map[int]bool, len(tickets))
	for _, t := range tickets {
		owned[t.Number] = true
	}
	for _, n := range receipt.Numbers {
		if !owned[n] {
			helpers.RespondWithError(c, http.StatusConflict, "Receipt lists a number this payment does not own.")
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Receipt is valid",
		"receipt": gin.H{
			"raffle_id":   payment.RaffleID,
			"buyer_name":  payment.BuyerName,
			"buyer_email": payment.BuyerEmail,
			"numbers":     receipt.Numbers,
			"paid_at":     payment.PaidAt,
		},
	})
}
