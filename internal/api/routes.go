package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/oralexam/domain"
	"github.com/satriahrh/oralexam/domain/repositories"
	"github.com/satriahrh/oralexam/internal/auth"
	"github.com/satriahrh/oralexam/internal/websocket"
)

const (
	defaultResultsLimit = 20
	maxResultsLimit     = 100
	queryTimeout        = 5 * time.Second
	anonymousHost       = "anonymous"
	subjectKey          = "subject"
)

// InitRoutes initializes all API routes.
// A nil signer leaves the host endpoints unauthenticated.
func InitRoutes(e *echo.Echo, hub *websocket.Hub, signer *auth.Signer, results repositories.ResultRepository, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "oralexam-server",
		})
	})

	requireHost := hostAuth(signer, logger)

	// API v1 routes
	v1 := e.Group("/api/v1", requireHost)

	v1.GET("/results", func(c echo.Context) error {
		return listResults(c, results, logger)
	})
	v1.GET("/results/:sessionId", func(c echo.Context) error {
		return getResult(c, results, logger)
	})

	// Host websocket endpoint
	e.GET("/ws", func(c echo.Context) error {
		return handleWebSocket(hub, c, logger)
	}, requireHost)
}

func listResults(c echo.Context, results repositories.ResultRepository, logger *zap.Logger) error {
	limit := defaultResultsLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxResultsLimit {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_limit",
				Message: "limit must be an integer between 1 and 100",
			})
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), queryTimeout)
	defer cancel()

	records, err := results.ListRecent(ctx, limit)
	if err != nil {
		logger.Error("Failed to list results", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to list results",
		})
	}

	return c.JSON(http.StatusOK, ResultsResponse{Results: records, Count: len(records)})
}

func getResult(c echo.Context, results repositories.ResultRepository, logger *zap.Logger) error {
	sessionID := c.Param("sessionId")

	ctx, cancel := context.WithTimeout(c.Request().Context(), queryTimeout)
	defer cancel()

	record, err := results.GetBySessionID(ctx, sessionID)
	if errors.Is(err, domain.ErrResultNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "No result for this session",
		})
	}
	if err != nil {
		logger.Error("Failed to get result", zap.String("sessionID", sessionID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to get result",
		})
	}

	return c.JSON(http.StatusOK, record)
}

// hostAuth authenticates hosts with a bearer JWT and stores the subject on the context.
// Browsers cannot set headers on websocket requests, so the token may also come as ?token=.
// A nil signer lets every request through as the anonymous host.
func hostAuth(signer *auth.Signer, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if signer == nil {
				c.Set(subjectKey, anonymousHost)
				return next(c)
			}

			var token string
			authHeader := c.Request().Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			}
			if token == "" {
				token = c.QueryParam("token")
			}

			if token == "" {
				logger.Warn("Request rejected: missing token", zap.String("path", c.Path()))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "missing_token",
					Message: "JWT token is required in Authorization header or token query",
				})
			}

			claims, err := signer.ValidateToken(token)
			if errors.Is(err, auth.ErrInvalidRole) {
				logger.Warn("Request rejected: invalid role", zap.String("path", c.Path()))
				return c.JSON(http.StatusForbidden, ErrorResponse{
					Error:   "invalid_role",
					Message: "Only host tokens are allowed",
				})
			}
			if err != nil {
				logger.Warn("Request rejected: invalid token", zap.String("path", c.Path()), zap.Error(err))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "Invalid or expired JWT token",
				})
			}

			c.Set(subjectKey, claims.Subject)
			return next(c)
		}
	}
}

// handleWebSocket attaches an authenticated host to the hub
func handleWebSocket(hub *websocket.Hub, c echo.Context, logger *zap.Logger) error {
	subject, _ := c.Get(subjectKey).(string)
	logger.Info("Host websocket connecting", zap.String("subject", subject))
	return websocket.HandleWebSocket(hub, c, subject, logger)
}
