package middleware

import (
	"github.com/farellandr/rifa/internal/helpers"
	"github.com/farellandr/rifa/internal/services"
	"github.com/gin-gonic/gin"
)

func EngineMiddleware(engine *services.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("engine", engine)
		c.Next()
	}
}

func GetEngine(c *gin.Context) *services.Engine {
	engine, exists := c.Get("engine")
	if !exists {
		return nil
	}
	return engine.(*services.Engine)
}

func ReceiptMiddleware(signer *helpers.ReceiptSigner) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("receipt_signer", signer)
		c.Next()
	}
}

func GetReceiptSigner(c *gin.Context) *helpers.ReceiptSigner {
	signer, exists := c.Get("receipt_signer")
	if !exists {
		return nil
	}
	return signer.(*helpers.ReceiptSigner)
}

// TokenSecretMiddleware hands the JWT signing secret to the login handler,
// the same one JWTAuthMiddleware verifies with.
func TokenSecretMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("jwt_secret", secret)
		c.Next()
	}
}

func GetTokenSecret(c *gin.Context) string {
	return c.GetString("jwt_secret")
}
