package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kcs-server/shared/models"
)

// handleServiceError переводит ошибку сервиса в HTTP-ответ.
func handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var errResp ErrorResponse

	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		statusCode = http.StatusBadRequest
		errResp = ErrorResponse{Code: ErrCodeInvalidRequest, Message: "Request validation failed", FieldErrors: verr.FieldErrors}
	case errors.Is(err, models.ErrUnauthorized):
		statusCode = http.StatusUnauthorized
		errResp = ErrorResponse{Code: ErrCodeUnauthorized}
	case errors.Is(err, models.ErrConflict):
		statusCode = http.StatusConflict
		errResp = ErrorResponse{Code: ErrCodeConflict, Message: "Order with this Idempotency-Key already exists"}
	default:
		zap.L().Error("Unhandled internal error in handleServiceError", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = ErrorResponse{Code: ErrCodeInternal}
	}

	c.AbortWithStatusJSON(statusCode, errResp)
}
