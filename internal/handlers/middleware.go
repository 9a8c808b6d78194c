package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/voxcap/pkg/Logger"
)

// AuthMiddleware creates JWT authentication middleware. It lets everything
// through when no secret is configured.
func AuthMiddleware(validator *TokenValidator, logger *Logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !validator.Enabled() {
			c.Next()
			return
		}

		tokenString := TokenFromRequest(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Authorization required"})
			c.Abort()
			return
		}

		claims, err := validator.Validate(tokenString)
		if err != nil {
			logger.Debugf("token validation failed: %v", err)
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid token"})
			c.Abort()
			return
		}

		// Set owner information in context
		c.Set(ownerKey, claims.Subject)
		c.Set("claims", claims)

		c.Next()
	}
}

// CORSMiddleware handles CORS headers
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// RequestLoggerMiddleware logs incoming requests
func RequestLoggerMiddleware(logger *Logger.Logger) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		logger.Infof("[%s] %s %s %d %s %s",
			param.TimeStamp.Format("2006/01/02 - 15:04:05"),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
			param.ClientIP,
		)
		return ""
	})
}

// ErrorHandlerMiddleware handles panics and errors
func ErrorHandlerMiddleware(logger *Logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Errorf("Panic recovered: %v", recovered)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	})
}
