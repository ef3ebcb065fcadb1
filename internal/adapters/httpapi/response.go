package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"lot-auction-service/internal/domain/shared"
)

type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type envelope struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *apiError `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, envelope{Status: "success", Data: data})
}

func writeError(w http.ResponseWriter, statusCode int, code, message, requestID string) {
	writeJSON(w, statusCode, envelope{
		Status: "error",
		Error:  &apiError{Code: code, Message: message, RequestID: requestID},
	})
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapDomainError(err)
	writeError(w, status, code, message, requestIDFromContext(r.Context()))
}

// mapDomainError maps engine errors to a status, a code and a client-safe message
func mapDomainError(err error) (int, string, string) {
	code := shared.ErrorCode(err)
	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, "unauthorized", err.Error()
	case errors.Is(err, shared.ErrInvalidRequest), errors.Is(err, shared.ErrInvalidTimeFormat),
		errors.Is(err, shared.ErrInvalidTimeRange), errors.Is(err, shared.ErrInvalidAmount):
		return http.StatusBadRequest, code, err.Error()
	case errors.Is(err, shared.ErrPermissionDenied):
		return http.StatusForbidden, code, err.Error()
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrNoBidsFound):
		return http.StatusNotFound, code, err.Error()
	case errors.Is(err, shared.ErrInvalidState), errors.Is(err, shared.ErrStaleSettlement),
		errors.Is(err, shared.ErrConcurrentUpdate):
		return http.StatusConflict, code, err.Error()
	case errors.Is(err, shared.ErrBidTooLow), errors.Is(err, shared.ErrAuctionNotActive),
		errors.Is(err, shared.ErrNotEligible):
		return http.StatusUnprocessableEntity, code, err.Error()
	case errors.Is(err, shared.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable, code, "service unavailable"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}
