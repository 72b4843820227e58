package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/farellandr/rifa/internal/helpers"
	"github.com/farellandr/rifa/internal/middleware"
	"github.com/farellandr/rifa/internal/services"
	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type SettleRequest struct {
	GatewayPaymentIDs []string `json:"gateway_payment_ids" binding:"required,min=1,max=200"`
}

func StaffLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	engine, ok := getEngine(c)
	if !ok {
		return
	}

	user, err := engine.Authenticate(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		helpers.RespondWithError(c, http.StatusUnauthorized, "Invalid credentials.")
		return
	}
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	secret := middleware.GetTokenSecret(c)
	if secret == "" {
		helpers.RespondWithError(c, http.StatusInternalServerError, "JWT_SECRET not configured.")
		return
	}

	tokenString, err := middleware.IssueToken(secret, user, time.Now())
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate token.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": tokenString,
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"role":     user.Role.Name,
		},
	})
}

// SettlePayments is the manual confirmation path, e.g. for bank transfers.
func SettlePayments(c *gin.Context) {
	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	engine, ok := getEngine(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": engine.SettleMany(c.Request.Context(), req.GatewayPaymentIDs)})
}
