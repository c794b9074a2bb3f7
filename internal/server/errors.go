package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/tokenledger/internal/account/domain"
	"github.com/smallbiznis/tokenledger/internal/account/liveevents"
	"github.com/smallbiznis/tokenledger/internal/anomaly"
	apikeydomain "github.com/smallbiznis/tokenledger/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	"github.com/smallbiznis/tokenledger/internal/authorization"
	billingrecorddomain "github.com/smallbiznis/tokenledger/internal/billingrecord/domain"
	exchangeratedomain "github.com/smallbiznis/tokenledger/internal/exchangerate/domain"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/tokenledger/internal/observability/metrics"
	pricedomain "github.com/smallbiznis/tokenledger/internal/price/domain"
	ratingdomain "github.com/smallbiznis/tokenledger/internal/rating/domain"
	usagedomain "github.com/smallbiznis/tokenledger/internal/usage/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, accountdomain.ErrInsufficientBalance):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_balance",
			Message: "insufficient credit balance",
		}
	case errors.Is(err, pricedomain.ErrUnknownModel):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unknown_model",
			Message: "no price configured for model",
		}
	case errors.Is(err, anomaly.ErrCostAnomaly):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "cost_anomaly",
			Message: anomalyMessage(err),
		}
	case errors.Is(err, ratingdomain.ErrCreditOverflow),
		errors.Is(err, ledgerdomain.ErrBalanceOverflow):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "credit_overflow",
			Message: "credit amount out of range",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, apikeydomain.ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, ledgerdomain.ErrConcurrentUpdate):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, pricedomain.ErrConfigUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "config_unavailable",
			Message: "pricing configuration unavailable",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, obsmetrics.ErrLockContention),
		errors.Is(err, liveevents.ErrHubUnavailable),
		errors.Is(err, usagedomain.ErrDeduperUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func anomalyMessage(err error) string {
	if reason, ok := anomaly.ReasonOf(err); ok {
		return "usage exceeds anomaly ceiling: " + reason
	}
	return "usage exceeds anomaly ceiling"
}

// classifyErrorForLog returns the response type and a stable code for logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// validationSentinels are the domain errors reported as 400 validation errors.
var validationSentinels = []error{
	ErrInvalidRequest,
	usagedomain.ErrInvalidUserID,
	usagedomain.ErrInvalidModelName,
	usagedomain.ErrMissingDedupeKey,
	ratingdomain.ErrInvalidTokenCount,
	ratingdomain.ErrInvalidRate,
	exchangeratedomain.ErrInvalidRate,
	accountdomain.ErrInvalidAmount,
	accountdomain.ErrInvalidUserID,
	liveevents.ErrInvalidUserID,
	pricedomain.ErrInvalidModelName,
	pricedomain.ErrInvalidPrice,
	pricedomain.ErrInvalidServiceType,
	ledgerdomain.ErrInvalidEntryID,
	ledgerdomain.ErrInvalidStatus,
	ledgerdomain.ErrInvalidPageToken,
	ledgerdomain.ErrInvalidAmount,
	ledgerdomain.ErrInvalidReference,
	billingrecorddomain.ErrInvalidType,
	billingrecorddomain.ErrInvalidPageToken,
	billingrecorddomain.ErrInvalidUserID,
	apikeydomain.ErrInvalidName,
	apikeydomain.ErrInvalidRole,
	apikeydomain.ErrInvalidKeyID,
	apikeydomain.ErrInvalidExpiry,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
}

func validationSentinel(err error) error {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

func isValidationError(err error) bool {
	return validationSentinel(err) != nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ledgerdomain.ErrEntryNotFound),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, exchangeratedomain.ErrNoActiveRate),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if sentinel := validationSentinel(err); sentinel != nil {
		return sentinel.Error()
	}
	return "invalid_request"
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if code == "missing_dedupe_key" {
		return "message_id"
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "missing_dedupe_key":
		return "conversation_id and message_id or idempotency_key are required"
	default:
		return "invalid value"
	}
}
