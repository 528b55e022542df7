// Package httpjson provides shared JSON request/response helpers for the
// api/http packages.
package httpjson

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/veravid/veravid/internal/platform/errors"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Write encodes payload as a JSON response.
func Write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}

// WriteError maps err onto an HTTP status and writes the public error body.
// Causes are never surfaced; callers log them.
func WriteError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	kind := apperrors.KindOf(err)
	message := "internal error"
	var appErr apperrors.Error
	if stderrors.As(err, &appErr) {
		message = appErr.Message
	}
	Write(w, status, errorBody{Error: string(kind), Message: message})
}

// Decode reads a JSON request body into dst and runs struct validation.
func Decode(r *http.Request, validate *validator.Validate, dst any) error {
	if r == nil || r.Body == nil {
		return apperrors.E(apperrors.KindInvalidInput, "request body is required")
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return apperrors.EW(apperrors.KindInvalidInput, "invalid request body", err)
	}
	if validate != nil {
		if err := validate.StructCtx(r.Context(), dst); err != nil {
			return apperrors.EW(apperrors.KindInvalidInput, fmt.Sprintf("invalid request: %v", err), err)
		}
	}
	return nil
}
