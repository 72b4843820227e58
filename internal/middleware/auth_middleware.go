package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/farellandr/rifa/internal/helpers"
	"github.com/farellandr/rifa/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const TokenTTL = 24 * time.Hour

func IssueToken(secret string, user *models.StaffUser, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("JWT_SECRET not configured")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID.String(),
		"username": user.Username,
		"role":     user.Role.Name,
		"exp":      now.Add(TokenTTL).Unix(),
	})
	return token.SignedString([]byte(secret))
}

// JWTAuthMiddleware admits bearer tokens carrying a staff or admin role.
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || tokenString == "" {
			helpers.RespondWithError(c, http.StatusUnauthorized, "Authorization token required.")
			c.Abort()
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid || secret == "" {
			helpers.RespondWithError(c, http.StatusUnauthorized, "Invalid or expired token.")
			c.Abort()
			return
		}

		role, _ := claims["role"].(string)
		if role != models.RoleStaff && role != models.RoleAdmin {
			helpers.RespondWithError(c, http.StatusForbidden, "Staff access required.")
			c.Abort()
			return
		}

		c.Set("user_id", claims["user_id"])
		c.Set("username", claims["username"])
		c.Set("role", role)
		c.Next()
	}
}
