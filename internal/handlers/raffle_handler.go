package handlers

import (
	"net/http"

	"github.com/farellandr/rifa/internal/helpers"
	"github.com/farellandr/rifa/internal/services"
	"github.com/gin-gonic/gin"
)

func RaffleDetail(c *gin.Context) {
	engine, ok := getEngine(c)
	if !ok {
		return
	}

	raffle, err := engine.ActiveRaffle(c.Request.Context())
	if services.IsNotFound(err) {
		c.JSON(http.StatusOK, gin.H{"raffle": nil})
		return
	}
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	grid, err := engine.Grid(c.Request.Context(), raffle, 1, true)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"raffle":             raffle,
		"taken":              grid.Taken,
		"page_count":         grid.PageCount,
		"current_page":       grid.Page,
		"page_size":          grid.PageSize,
		"first_page_numbers": grid.Numbers,
		"public_key":         engine.Settings.PublicKey,
	})
}

func GridPage(c *gin.Context) {
	engine, ok := getEngine(c)
	if !ok {
		return
	}

	raffle, err := engine.ActiveRaffle(c.Request.Context())
	if services.IsNotFound(err) {
		helpers.RespondWithError(c, http.StatusBadRequest, "No active raffle.")
		return
	}
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	page := services.ClampPage(c.DefaultQuery("page", "1"), services.PageCount(raffle.NumbersTotal))
	grid, err := engine.Grid(c.Request.Context(), raffle, page, false)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"current_page": grid.Page,
		"page_count":   grid.PageCount,
		"numbers":      grid.Numbers,
	})
}

func CheckNumber(c *gin.Context) {
	engine, ok := getEngine(c)
	if !ok {
		return
	}

	raffle, err := engine.ActiveRaffle(c.Request.Context())
	if services.IsNotFound(err) {
		helpers.RespondWithError(c, http.StatusBadRequest, "No active raffle.")
		return
	}
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	number, err := helpers.StringToInt(c.Query("number"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid number.")
		return
	}

	available, err := engine.CheckNumber(c.Request.Context(), raffle, number)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"number": number, "available": available})
}

func ListRaffles(c *gin.Context) {
	engine, ok := getEngine(c)
	if !ok {
		return
	}

	raffles, err := engine.ListRaffles(c.Request.Context())
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"raffles": raffles})
}

func CreateRaffle(c *gin.Context) {
	var input services.RaffleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	engine, ok := getEngine(c)
	if !ok {
		return
	}

	raffle, err := engine.CreateRaffle(c.Request.Context(), input)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Raffle created successfully.",
		"raffle":  raffle,
	})
}

func UpdateRaffle(c *gin.Context) {
	id, err := helpers.ParseIDParam(c, "id")
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid raffle ID.")
		return
	}

	var input services.RaffleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	engine, ok := getEngine(c)
	if !ok {
		return
	}

	raffle, err := engine.UpdateRaffle(c.Request.Context(), id, input)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Raffle updated successfully.",
		"raffle":  raffle,
	})
}

func DeleteRaffle(c *gin.Context) {
	id, err := helpers.ParseIDParam(c, "id")
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid raffle ID.")
		return
	}

	engine, ok := getEngine(c)
	if !ok {
		return
	}

	if err := engine.DeleteRaffle(c.Request.Context(), id); err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Raffle deleted successfully."})
}

func ActivateRaffle(c *gin.Context) {
	id, err := helpers.ParseIDParam(c, "id")
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid raffle ID.")
		return
	}

	engine, ok := getEngine(c)
	if !ok {
		return
	}

	raffle, err := engine.Activate(c.Request.Context(), id)
	if err != nil {
		helpers.RespondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Raffle activated.",
		"raffle":  raffle,
	})
}
