package handlers

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/farellandr/rifa/internal/helpers"
	"github.com/farellandr/rifa/internal/services"
	"github.com/gin-gonic/gin"
)

type mercadoPagoWebhookBody struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

type xenditWebhookBody struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
}

// rawID accepts both "123" and 123.
func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// MercadoPagoWebhook always acknowledges with 200 so the sender does not
// retry forever. Only storage faults produce a 500.
func MercadoPagoWebhook(c *gin.Context) {
	engine, ok := getEngine(c)
	if !ok {
		return
	}

	var body mercadoPagoWebhookBody
	if raw, err := c.GetRawData(); err == nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			log.Printf("[webhook] unreadable mercadopago body: %v", err)
		}
	}

	note := services.MercadoPagoNotification{
		Type:      helpers.FirstNonEmpty(c.Query("type"), c.Query("topic"), body.Type, body.Topic),
		DataID:    helpers.FirstNonEmpty(c.Query("data.id"), c.Query("id"), rawID(body.Data.ID)),
		RequestID: c.GetHeader("x-request-id"),
		Signature: c.GetHeader("x-signature"),
	}

	out, err := engine.HandleMercadoPagoNotification(c.Request.Context(), note)
	if err != nil {
		log.Printf("[webhook] mercadopago %s %s: %v", note.Type, note.DataID, err)
		helpers.RespondWithError(c, http.StatusInternalServerError, "Internal error.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": out.Action})
}

func XenditWebhook(c *gin.Context) {
	engine, ok := getEngine(c)
	if !ok {
		return
	}

	var body xenditWebhookBody
	if err := c.ShouldBindJSON(&body); err != nil {
		log.Printf("[webhook] unreadable xendit body: %v", err)
		c.JSON(http.StatusOK, gin.H{"status": services.ActionIgnored})
		return
	}

	out, err := engine.HandleXenditNotification(c.Request.Context(), services.XenditNotification{
		CallbackToken: c.GetHeader("x-callback-token"),
		InvoiceID:     strings.TrimSpace(body.ID),
		ExternalID:    body.ExternalID,
		Status:        body.Status,
	})
	if err != nil {
		log.Printf("[webhook] xendit %s: %v", body.ID, err)
		helpers.RespondWithError(c, http.StatusInternalServerError, "Internal error.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": out.Action})
}
