package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sankhya-academy/exam-backend/internal/response"
	"github.com/sankhya-academy/exam-backend/internal/service"
)

// ContextKeyClaims is the Gin context key for validated JWT claims.
const ContextKeyClaims = "claims"

// RequireStudentJWT validates a student bearer token from the Authorization
// header.
func RequireStudentJWT(authService *service.AuthService) gin.HandlerFunc {
	return requireJWT(authService, service.TokenTypeStudent, response.ErrStudentAccessOnly)
}

// RequireStaffJWT validates a staff bearer token from the Authorization
// header.
func RequireStaffJWT(authService *service.AuthService) gin.HandlerFunc {
	return requireJWT(authService, service.TokenTypeStaff, response.ErrStaffAccessOnly)
}

func requireJWT(authService *service.AuthService, tokenType service.TokenType, roleErr response.ErrCode) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := bearerClaims(c, authService)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}
		if claims.TokenType != tokenType {
			response.AbortFail(c, http.StatusForbidden, roleErr)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// RequireStudentWSAuth validates a student JWT from the ?token= query param.
// Browser WebSocket clients cannot set the Authorization header on the
// upgrade request.
func RequireStudentWSAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}
		if claims.TokenType != service.TokenTypeStudent {
			response.AbortFail(c, http.StatusForbidden, response.ErrStudentAccessOnly)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the validated JWT claims from the Gin context, or nil
// when the request never passed an auth middleware.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

func bearerClaims(c *gin.Context, authService *service.AuthService) (*service.Claims, error) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, errors.New("authorization header required")
	}
	return authService.ValidateToken(parts[1])
}
