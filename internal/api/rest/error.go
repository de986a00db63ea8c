package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/element-scan/holders-indexer/internal/domain"
	"github.com/element-scan/holders-indexer/internal/logger"
	"github.com/element-scan/holders-indexer/internal/rpc"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Client errors (4xx)
	errCodeBadRequest       ErrorCode = "bad_request"
	errCodeNotFound         ErrorCode = "not_found"
	errCodeValidationFailed ErrorCode = "validation_failed"
	errCodeTooManyRequests  ErrorCode = "too_many_requests"

	// Server errors (5xx)
	errCodeInternalError      ErrorCode = "internal_error"
	errCodeServiceUnavailable ErrorCode = "service_unavailable"
)

// errorResponse represents a standardized error response
type errorResponse struct {
	Error errorDetail `json:"error"`
}

// errorDetail contains error information
type errorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// respondWithError sends a standardized error response
func respondWithError(c *gin.Context, statusCode int, code ErrorCode, message string, details ...string) {
	response := errorResponse{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	}

	if len(details) > 0 {
		response.Error.Details = details[0]
	}

	c.JSON(statusCode, response)
}

// respondBadRequest sends a 400 Bad Request response
func respondBadRequest(c *gin.Context, message string, details ...string) {
	respondWithError(c, http.StatusBadRequest, errCodeBadRequest, message, details...)
}

// respondNotFound sends a 404 Not Found response
func respondNotFound(c *gin.Context, message string, details ...string) {
	respondWithError(c, http.StatusNotFound, errCodeNotFound, message, details...)
}

// respondValidationError sends a 400 Bad Request with validation error
func respondValidationError(c *gin.Context, details string) {
	respondWithError(c, http.StatusBadRequest, errCodeValidationFailed, "Validation failed", details)
}

// respondInternalError sends a 500 Internal Server Error response and logs the error
func respondInternalError(c *gin.Context, err error, message string, fields ...zap.Field) {
	logger.Error(err, fields...)
	respondWithError(c, http.StatusInternalServerError, errCodeInternalError, message)
}

// respondServiceError maps a service-layer error to the right HTTP status
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrContractNotFound):
		// unknown contracts are a configuration problem, not a missing resource
		respondBadRequest(c, "Unknown contract", err.Error())
	case errors.Is(err, domain.ErrHolderNotFound):
		respondNotFound(c, "Holder not found", err.Error())
	case errors.Is(err, domain.ErrRateLimited) || rpc.IsRateLimitError(err):
		respondWithError(c, http.StatusTooManyRequests, errCodeTooManyRequests,
			"Upstream provider rate limit hit, retry later")
	case errors.Is(err, domain.ErrNoSnapshot):
		respondWithError(c, http.StatusServiceUnavailable, errCodeServiceUnavailable,
			"Holder data is not available yet")
	default:
		respondInternalError(c, err, "Failed to process request")
	}
}
