package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/service"
	"salonpos/backend/internal/validation"
)

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

var statusCodes = map[int]string{
	http.StatusBadRequest:          "invalid_request",
	http.StatusUnauthorized:        "unauthenticated",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not_found",
	http.StatusMethodNotAllowed:    "method_not_allowed",
	http.StatusConflict:            "conflict",
	http.StatusUnprocessableEntity: "unprocessable",
	http.StatusTooManyRequests:     "rate_limited",
	http.StatusServiceUnavailable:  "unavailable",
}

// writeError answers with a code derived from status. 5xx messages are
// replaced so storage and driver errors never reach the client.
func writeError(w http.ResponseWriter, status int, err error) {
	code, ok := statusCodes[status]
	if !ok {
		code = "internal_error"
	}
	writeErrorBody(w, status, errorBody{Code: code, Message: err.Error()}, err)
}

func writeErrorBody(w http.ResponseWriter, status int, body errorBody, cause error) {
	if status >= 500 {
		zap.L().Error("request failed", zap.Int("status", status), zap.Error(cause))
		if status != http.StatusServiceUnavailable {
			body.Message = "internal server error"
			body.Details = nil
		}
	}
	writeJSON(w, status, body)
}

// writeServiceError maps domain and service errors onto HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	status, body := describeError(err)
	writeErrorBody(w, status, body, err)
}

func describeError(err error) (int, errorBody) {
	var (
		stockErr *domain.InsufficientStockError
		promoErr *domain.PromotionError
		validErr *validation.Error
	)

	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, errorBody{Code: "unauthenticated", Message: err.Error()}
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, errorBody{Code: "forbidden", Message: err.Error()}
	case errors.Is(err, domain.ErrSchedulingConflict):
		return http.StatusConflict, errorBody{Code: "scheduling_conflict", Message: domain.ErrSchedulingConflict.Error()}
	case errors.As(err, &stockErr):
		return http.StatusConflict, errorBody{
			Code:    "insufficient_stock",
			Message: stockErr.Error(),
			Details: map[string]any{
				"productId": stockErr.ProductID,
				"outletId":  stockErr.OutletID,
				"available": stockErr.Available,
				"requested": stockErr.Requested,
			},
		}
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, errorBody{Code: "insufficient_stock", Message: err.Error()}
	case errors.As(err, &promoErr):
		return http.StatusUnprocessableEntity, errorBody{
			Code:    "promotion_invalid",
			Message: promoErr.Error(),
			Details: map[string]any{
				"promotionId": promoErr.PromotionID,
				"reason":      string(promoErr.Reason),
			},
		}
	case errors.Is(err, domain.ErrInsufficientLoyaltyPoints):
		return http.StatusUnprocessableEntity, errorBody{Code: "insufficient_loyalty_points", Message: err.Error()}
	case errors.Is(err, domain.ErrInvoiceNumberCollision):
		return http.StatusConflict, errorBody{Code: "invoice_number_collision", Message: "invoice number already used, please retry"}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorBody{Code: "not_found", Message: "not found"}
	case errors.As(err, &validErr):
		details := make(map[string]any, len(validErr.Fields))
		for field, problem := range validErr.Fields {
			details[field] = problem
		}
		return http.StatusBadRequest, errorBody{Code: "invalid_request", Message: "validation failed", Details: details}
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, errorBody{Code: "invalid_request", Message: err.Error()}
	case errors.Is(err, domain.ErrTransactionAborted):
		return http.StatusServiceUnavailable, errorBody{Code: "transaction_aborted", Message: "transaction aborted, please retry"}
	default:
		return http.StatusInternalServerError, errorBody{Code: "internal_error", Message: "internal server error"}
	}
}
