package api

import (
	"errors"
	"net/http"

	"launchpool/internal/curve"
	"launchpool/internal/engine"
	"launchpool/internal/ledger"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps domain errors onto HTTP status codes and stable error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrPoolNotFound):
		return http.StatusNotFound, "pool_not_found"
	case errors.Is(err, engine.ErrPoolAlreadyExists):
		return http.StatusConflict, "pool_already_exists"
	case errors.Is(err, engine.ErrPoolNotActive):
		return http.StatusConflict, "pool_not_active"
	case errors.Is(err, engine.ErrSlippageExceeded):
		return http.StatusConflict, "slippage_exceeded"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient_balance"
	case errors.Is(err, curve.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, curve.ErrReserveExhausted):
		return http.StatusBadRequest, "reserve_exhausted"
	case errors.Is(err, engine.ErrRailUnavailable):
		return http.StatusServiceUnavailable, "rail_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
