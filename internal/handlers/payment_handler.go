package handlers

import (
	"net/http"

	"github.com/farellandr/rifa/internal/helpers"
	"github.com/farellandr/rifa/internal/services"
	"github.com/gin-gonic/gin"
)

type DonationRequest struct {
	AmountCLP int             `json:"amount_clp" binding:"required"`
	Buyer     *services.Buyer `json:"buyer"`
}

func CreatePreference(c *gin.Context) {
	var req SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	engine, ok := getEngine(c)
	if !ok {
		return
	}

	order, err := engine.CreateOrder(c.Request.Context(), services.OrderRequest{
		Numbers: req.ChosenNumbers,
		Buyer:   req.Buyer,
	})
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func CreateDonationPreference(c *gin.Context) {
	var req DonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	engine, ok := getEngine(c)
	if !ok {
		return
	}

	order, err := engine.CreateDonation(c.Request.Context(), services.DonationRequest{
		AmountCLP: req.AmountCLP,
		Buyer:     req.Buyer,
	})
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}
