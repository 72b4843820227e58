package handlers

import (
	"net/http"

	"github.com/farellandr/rifa/internal/helpers"
	"github.com/farellandr/rifa/internal/middleware"
	"github.com/farellandr/rifa/internal/services"
	"github.com/gin-gonic/gin"
)

func getEngine(c *gin.Context) (*services.Engine, bool) {
	engine := middleware.GetEngine(c)
	if engine == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Engine not configured.")
		return nil, false
	}
	return engine, true
}
