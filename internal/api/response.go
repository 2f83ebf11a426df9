package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"drive-ledger/internal/service"
)

// Response codes.
const (
	CodeOK                  = "OK"
	CodeAlreadyActive       = "ALREADY_ACTIVE"
	CodeNoConfiguration     = "NO_CONFIGURATION"
	CodeNoActiveSession     = "NO_ACTIVE_SESSION"
	CodeNoEligibleProduct   = "NO_ELIGIBLE_PRODUCT"
	CodeInvalidSlot         = "INVALID_SLOT"
	CodeOutOfPolicy         = "OUT_OF_POLICY"
	CodeAccountFrozen       = "ACCOUNT_FROZEN"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodePersistenceFailure  = "PERSISTENCE_FAILURE"
	CodeBadRequest          = "BAD_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeConflict            = "CONFLICT"
	CodeTimeout             = "TIMEOUT"
)

// envelope wraps every API response.
type envelope struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Info    string `json:"info,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Code: CodeOK, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, info string) {
	writeJSON(w, status, envelope{Code: code, Info: strings.TrimSpace(info)})
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{service.ErrAlreadyActive, http.StatusConflict, CodeAlreadyActive},
	{service.ErrNoConfiguration, http.StatusUnprocessableEntity, CodeNoConfiguration},
	{service.ErrNoActiveSession, http.StatusConflict, CodeNoActiveSession},
	{service.ErrNoEligibleProduct, http.StatusConflict, CodeNoEligibleProduct},
	{service.ErrInvalidSlot, http.StatusConflict, CodeInvalidSlot},
	{service.ErrOutOfPolicy, http.StatusUnprocessableEntity, CodeOutOfPolicy},
	{service.ErrAccountFrozen, http.StatusForbidden, CodeAccountFrozen},
	{service.ErrInsufficientBalance, http.StatusUnprocessableEntity, CodeInsufficientBalance},
	{service.ErrUserNotFound, http.StatusNotFound, CodeNotFound},
	{service.ErrProductNotFound, http.StatusNotFound, CodeNotFound},
	{service.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{service.ErrInvalidPassword, http.StatusForbidden, CodeForbidden},
	{service.ErrInvalidAmount, http.StatusBadRequest, CodeBadRequest},
	{service.ErrWeakPassword, http.StatusBadRequest, CodeBadRequest},
	{service.ErrPasswordNotSet, http.StatusBadRequest, CodeBadRequest},
	{service.ErrInvalidReferral, http.StatusBadRequest, CodeBadRequest},
	{service.ErrUsernameTaken, http.StatusConflict, CodeConflict},
	{service.ErrDepositNotPending, http.StatusConflict, CodeConflict},
	{service.ErrWithdrawalNotPending, http.StatusConflict, CodeConflict},
	{service.ErrConcurrencyConflict, http.StatusConflict, CodeConcurrencyConflict},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout},
}

// statusOf maps a service error to its HTTP status and response code.
func statusOf(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, CodePersistenceFailure
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	info := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
		info = "internal error"
	}
	writeError(w, status, code, info)
}
