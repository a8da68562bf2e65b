// Package httputil holds the JSON response helpers shared by HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"custodywatch/pkg/platform/sentinel"
)

// Error codes written in the "error" field of error responses.
const (
	CodeBadRequest   = "bad_request"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeInvalidState = "invalid_state"
	CodeUnavailable  = "unavailable"
	CodeInternal     = "internal_error"
)

const maxBodyBytes = 1 << 20

// Error is an error with an explicit HTTP mapping.
type Error struct {
	Status      int
	Code        string
	Description string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Description
}

// BadRequest builds a 400 error.
func BadRequest(format string, args ...any) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeBadRequest, Description: fmt.Sprintf(format, args...)}
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates err into a JSON error envelope. Internal errors never
// expose their description.
func WriteError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	body := map[string]string{"error": code}
	if status != http.StatusInternalServerError {
		var he *Error
		if errors.As(err, &he) {
			body["error_description"] = he.Description
		} else {
			body["error_description"] = err.Error()
		}
	}
	WriteJSON(w, status, body)
}

func classify(err error) (int, string) {
	var he *Error
	switch {
	case errors.As(err, &he):
		return he.Status, he.Code
	case errors.Is(err, sentinel.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, sentinel.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, sentinel.ErrInvalidState):
		return http.StatusConflict, CodeInvalidState
	case errors.Is(err, sentinel.ErrUnavailable):
		return http.StatusServiceUnavailable, CodeUnavailable
	}
	return http.StatusInternalServerError, CodeInternal
}

// DecodeJSON reads a JSON body into T, rejecting unknown fields and bodies
// larger than 1 MiB.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return v, BadRequest("request body is required")
		}
		return v, BadRequest("invalid request body: %v", err)
	}
	return v, nil
}
