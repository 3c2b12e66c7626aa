package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/marchkov/shuttle-backend/internal/services"
	"github.com/marchkov/shuttle-backend/internal/utils"
	"github.com/marchkov/shuttle-backend/pkg/jwt"
)

// operatorName is the subject of every issued token; the backend drives a single account
const operatorName = "operator"

// AuthHandler exchanges the operator password for an access token
type AuthHandler struct {
	jwtService       *jwt.Service
	rateLimitService *services.RateLimitService
	passwordHash     string
	logger           *logrus.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(jwtService *jwt.Service, rateLimitService *services.RateLimitService, passwordHash string, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		jwtService:       jwtService,
		rateLimitService: rateLimitService,
		passwordHash:     passwordHash,
		logger:           logger,
	}
}

// TokenRequest represents the request to obtain an access token
type TokenRequest struct {
	Password string `json:"password" binding:"required"`
}

// TokenResponse represents an issued access token
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExpiresIn   int       `json:"expires_in_seconds"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// IssueToken handles POST /api/v1/auth/token
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Password is required",
			Code:    "INVALID_REQUEST",
		})
		return
	}

	clientIP := utils.GetRealIP(c)
	if err := h.rateLimitService.CheckTokenRateLimit(clientIP); err != nil {
		var rateLimitErr *services.RateLimitError
		if errors.As(err, &rateLimitErr) {
			h.logger.WithField("ip", clientIP).Warn("Token request rate limited")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     rateLimitErr.Message,
				"code":        "RATE_LIMIT_EXCEEDED",
				"retry_after": rateLimitErr.RetryAfter,
			})
			return
		}
		h.logger.WithError(err).Error("Failed to check rate limit")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to process request",
			Code:    "INTERNAL_ERROR",
		})
		return
	}

	if !utils.CheckPassword(h.passwordHash, req.Password) {
		h.logger.WithField("ip", clientIP).Warn("Rejected operator token request")
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Invalid password",
			Code:    "INVALID_CREDENTIALS",
		})
		return
	}

	token, err := h.jwtService.GenerateAccessToken(operatorName)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate access token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate access token",
			Code:    "TOKEN_GENERATION_FAILED",
		})
		return
	}

	expiresAt, err := h.jwtService.GetTokenExpiry(token)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read token expiry")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate access token",
			Code:    "TOKEN_GENERATION_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		ExpiresIn:   int(time.Until(expiresAt).Seconds()),
	})
}
