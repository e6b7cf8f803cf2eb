package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	alertdomain "github.com/smallbiznis/timeledger/internal/alert/domain"
	auditdomain "github.com/smallbiznis/timeledger/internal/audit/domain"
	"github.com/smallbiznis/timeledger/internal/authorization"
	expensedomain "github.com/smallbiznis/timeledger/internal/expense/domain"
	financialsdomain "github.com/smallbiznis/timeledger/internal/financials/domain"
	invoicedomain "github.com/smallbiznis/timeledger/internal/invoice/domain"
	payoutdomain "github.com/smallbiznis/timeledger/internal/payout/domain"
	projectdomain "github.com/smallbiznis/timeledger/internal/project/domain"
	ratedomain "github.com/smallbiznis/timeledger/internal/rate/domain"
	"github.com/smallbiznis/timeledger/internal/ratelimit"
	timeentrydomain "github.com/smallbiznis/timeledger/internal/timeentry/domain"
	"github.com/smallbiznis/timeledger/pkg/db/pagination"
	"github.com/smallbiznis/timeledger/pkg/errs"
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
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Item    string            `json:"item,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
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

	status, payload := mapCause(err)
	if itemErr, ok := errs.AsItemError(err); ok {
		payload.Item = itemErr.ID
		if payload.Type != "internal_error" {
			payload.Message = "item " + itemErr.ID + ": " + payload.Message
		}
	}
	return status, payload
}

func mapCause(err error) (int, errorPayload) {
	if vErr := asValidationErrors(err); vErr != nil {
		message := "validation error"
		if len(vErr.Errors) == 1 {
			message = vErr.Errors[0].Message
		}
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: message,
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		message := validationErrorMessage(code)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    code,
			Message: message,
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: message,
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isForbiddenError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "you do not have permission to perform this action",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    errorCode(err),
			Message: notFoundMessage(err),
		}
	case isInvalidStateError(err):
		return http.StatusConflict, errorPayload{
			Type:    "invalid_state",
			Code:    "invalid_state",
			Message: "the operation is not allowed in the current state",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    errorCode(err),
			Message: conflictMessage(err),
		}
	case errors.Is(err, financialsdomain.ErrCurrencyMismatch),
		errors.Is(err, invoicedomain.ErrCurrencyMismatch),
		errors.Is(err, payoutdomain.ErrCurrencyMismatch):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "currency_mismatch",
			Code:    "currency_mismatch",
			Message: "amounts in different currencies cannot be combined",
		}
	case errors.Is(err, invoicedomain.ErrDeliveryFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "delivery_failed",
			Code:    "delivery_failed",
			Message: "invoice could not be delivered; it remains in draft",
		}
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func errorCode(err error) string {
	var itemErr *errs.ItemError
	if errors.As(err, &itemErr) && itemErr.Err != nil {
		return itemErr.Err.Error()
	}
	return err.Error()
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	case isRateValidationError(err),
		isTimeEntryValidationError(err),
		isExpenseValidationError(err),
		isFinancialsValidationError(err),
		isAlertValidationError(err),
		isInvoiceValidationError(err),
		isPayoutValidationError(err):
		return true
	default:
		return false
	}
}

func isRateValidationError(err error) bool {
	switch {
	case errors.Is(err, ratedomain.ErrInvalidID),
		errors.Is(err, ratedomain.ErrInvalidScope),
		errors.Is(err, ratedomain.ErrInvalidScopeID),
		errors.Is(err, ratedomain.ErrInvalidRateType),
		errors.Is(err, ratedomain.ErrInvalidCurrency),
		errors.Is(err, ratedomain.ErrInvalidHourlyRate),
		errors.Is(err, ratedomain.ErrInvalidWindow):
		return true
	default:
		return false
	}
}

func isTimeEntryValidationError(err error) bool {
	switch {
	case errors.Is(err, timeentrydomain.ErrInvalidID),
		errors.Is(err, timeentrydomain.ErrInvalidUser),
		errors.Is(err, timeentrydomain.ErrInvalidProject),
		errors.Is(err, timeentrydomain.ErrInvalidTimeRange),
		errors.Is(err, timeentrydomain.ErrInvalidSource),
		errors.Is(err, timeentrydomain.ErrInvalidAdjustment),
		errors.Is(err, timeentrydomain.ErrInvalidTrim),
		errors.Is(err, timeentrydomain.ErrTrimExceedsDuration),
		errors.Is(err, timeentrydomain.ErrNegativeDuration),
		errors.Is(err, timeentrydomain.ErrEmptyBatch),
		errors.Is(err, timeentrydomain.ErrDuplicateItem):
		return true
	default:
		return false
	}
}

func isExpenseValidationError(err error) bool {
	switch {
	case errors.Is(err, expensedomain.ErrInvalidID),
		errors.Is(err, expensedomain.ErrInvalidProject),
		errors.Is(err, expensedomain.ErrInvalidAmount),
		errors.Is(err, expensedomain.ErrInvalidCurrency):
		return true
	default:
		return false
	}
}

func isFinancialsValidationError(err error) bool {
	switch {
	case errors.Is(err, financialsdomain.ErrInvalidID),
		errors.Is(err, financialsdomain.ErrInvalidBudget),
		errors.Is(err, financialsdomain.ErrInvalidTimeRange):
		return true
	default:
		return false
	}
}

func isAlertValidationError(err error) bool {
	return errors.Is(err, alertdomain.ErrInvalidID) || errors.Is(err, alertdomain.ErrInvalidKind)
}

func isInvoiceValidationError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrInvalidID),
		errors.Is(err, invoicedomain.ErrInvalidTimeRange),
		errors.Is(err, invoicedomain.ErrInvalidStatus),
		errors.Is(err, invoicedomain.ErrInvalidEmail),
		errors.Is(err, invoicedomain.ErrMissingRecipient):
		return true
	default:
		return false
	}
}

func isPayoutValidationError(err error) bool {
	switch {
	case errors.Is(err, payoutdomain.ErrInvalidID),
		errors.Is(err, payoutdomain.ErrInvalidUser),
		errors.Is(err, payoutdomain.ErrInvalidAmount),
		errors.Is(err, payoutdomain.ErrInvalidCurrency),
		errors.Is(err, payoutdomain.ErrInvalidMethod),
		errors.Is(err, payoutdomain.ErrInvalidReference),
		errors.Is(err, payoutdomain.ErrInvalidStatus),
		errors.Is(err, payoutdomain.ErrInvalidTimeRange):
		return true
	default:
		return false
	}
}

func isForbiddenError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, timeentrydomain.ErrForbidden):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, projectdomain.ErrNotFound),
		errors.Is(err, ratedomain.ErrRateNotFound),
		errors.Is(err, ratedomain.ErrProjectNotFound),
		errors.Is(err, timeentrydomain.ErrNotFound),
		errors.Is(err, timeentrydomain.ErrProjectNotFound),
		errors.Is(err, expensedomain.ErrNotFound),
		errors.Is(err, expensedomain.ErrProjectNotFound),
		errors.Is(err, financialsdomain.ErrProjectNotFound),
		errors.Is(err, alertdomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrProjectNotFound),
		errors.Is(err, payoutdomain.ErrNotFound),
		errors.Is(err, payoutdomain.ErrProjectNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isInvalidStateError(err error) bool {
	return errors.Is(err, timeentrydomain.ErrInvalidState) ||
		errors.Is(err, invoicedomain.ErrInvalidState) ||
		errors.Is(err, payoutdomain.ErrInvalidState)
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, timeentrydomain.ErrTimerRunning),
		errors.Is(err, timeentrydomain.ErrOverlap),
		errors.Is(err, timeentrydomain.ErrEntryLocked),
		errors.Is(err, ratedomain.ErrRateOverlap),
		errors.Is(err, expensedomain.ErrExpenseLocked),
		errors.Is(err, financialsdomain.ErrConcurrentRecompute),
		errors.Is(err, invoicedomain.ErrNothingToInvoice),
		errors.Is(err, invoicedomain.ErrSelectionChanged),
		errors.Is(err, alertdomain.ErrAlreadyAcknowledged):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return errorCode(err)
	}
}

var validationFields = map[string]string{
	"invalid_request":          "request",
	"invalid_id":               "id",
	"invalid_effective_window": "effective_from",
	"invalid_trim_seconds":     "trim_seconds",
	"invalid_alert_type":       "type",
	"invalid_page_token":       "page_token",
	"missing_recipient":        "client_email",
	"trim_exceeds_duration":    "trim_seconds",
	"negative_duration":        "adjustment",
	"empty_batch":              "entry_ids",
	"duplicate_item":           "entry_ids",
}

func validationErrorField(code string) string {
	if field, ok := validationFields[code]; ok {
		return field
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

var validationMessages = map[string]string{
	"invalid_request":          "invalid request",
	"invalid_hourly_rate":      "hourly_rate must be greater than zero",
	"invalid_effective_window": "effective_to must be after effective_from",
	"invalid_time_range":       "end must be after start",
	"invalid_trim_seconds":     "trim_seconds must not be negative",
	"invalid_amount":           "amount must be greater than zero",
	"invalid_currency":         "currency must be a three letter ISO code",
	"missing_recipient":        "a recipient email is required to send the invoice",
	"trim_exceeds_duration":    "trim exceeds the tracked duration",
	"negative_duration":        "adjustment would make a duration negative",
	"empty_batch":              "no entries selected",
	"duplicate_item":           "an entry is listed more than once",
}

func validationErrorMessage(code string) string {
	if message, ok := validationMessages[code]; ok {
		return message
	}
	return "invalid " + strings.ReplaceAll(validationErrorField(code), "_", " ")
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, ratedomain.ErrRateNotFound):
		return "no rate is configured for this project and user"
	case errors.Is(err, projectdomain.ErrNotFound),
		errors.Is(err, ratedomain.ErrProjectNotFound),
		errors.Is(err, timeentrydomain.ErrProjectNotFound),
		errors.Is(err, expensedomain.ErrProjectNotFound),
		errors.Is(err, financialsdomain.ErrProjectNotFound),
		errors.Is(err, invoicedomain.ErrProjectNotFound),
		errors.Is(err, payoutdomain.ErrProjectNotFound):
		return "project not found"
	default:
		return "not found"
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, timeentrydomain.ErrTimerRunning):
		return "a timer is already running"
	case errors.Is(err, timeentrydomain.ErrOverlap):
		return "the entry overlaps another time entry"
	case errors.Is(err, timeentrydomain.ErrEntryLocked):
		return "the entry is on an invoice and cannot be changed"
	case errors.Is(err, expensedomain.ErrExpenseLocked):
		return "the expense is on an invoice and cannot be changed"
	case errors.Is(err, ratedomain.ErrRateOverlap):
		return "the rate overlaps an existing rate window"
	case errors.Is(err, financialsdomain.ErrConcurrentRecompute):
		return "financials are being recomputed; try again"
	case errors.Is(err, invoicedomain.ErrNothingToInvoice):
		return "there is nothing unbilled to invoice"
	case errors.Is(err, invoicedomain.ErrSelectionChanged):
		return "the selected entries changed while drafting; try again"
	case errors.Is(err, alertdomain.ErrAlreadyAcknowledged):
		return "the alert is already acknowledged"
	default:
		return "conflict"
	}
}

// classifyErrorForLog reports the response type and code for request logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
