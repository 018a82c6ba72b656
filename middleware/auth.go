package middleware

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/SMDV/cakravia-v0-sub001/backend"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const payerContextKey = "payer_ref"

func jwtSecret() []byte {
	if s := os.Getenv("JWT_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte("your-secret-key-change-in-production")
}

// AuthRequired verifies the bearer token issued by the auth service and
// resolves the payer reference from its claims. The raw bearer is stashed on
// the request context so every backend call forwards it.
func AuthRequired(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return jwtSecret(), nil
		})
		if err != nil || !token.Valid {
			logger.Warn("rejected bearer token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		payer, _ := claims["sub"].(string)
		if payer == "" {
			if uid, ok := claims["user_id"].(float64); ok {
				payer = "user-" + strconv.FormatInt(int64(uid), 10)
			}
		}
		if payer == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(payerContextKey, payer)
		c.Request = c.Request.WithContext(backend.WithBearer(c.Request.Context(), raw))
		c.Next()
	}
}

// GetPayer returns the payer reference resolved by AuthRequired.
func GetPayer(c *gin.Context) string {
	payer, _ := c.Get(payerContextKey)
	s, _ := payer.(string)
	return s
}
