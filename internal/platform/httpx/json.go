package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxBodyBytes bounds request bodies decoded by DecodeJSON.
const MaxBodyBytes int64 = 1 << 20

var (
	// ErrEmptyBody signals a request without a JSON payload.
	ErrEmptyBody = errors.New("request body required")
	// ErrBodyTooLarge signals a request body beyond MaxBodyBytes.
	ErrBodyTooLarge = errors.New("request body too large")
)

// DecodeJSON reads at most MaxBodyBytes from the request and unmarshals it into dst. Unknown fields
// are rejected.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return ErrEmptyBody
	}
	limited := io.LimitReader(r.Body, MaxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > MaxBodyBytes {
		return ErrBodyTooLarge
	}
	if strings.TrimSpace(string(body)) == "" {
		return ErrEmptyBody
	}
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	return nil
}

// BodyError converts a DecodeJSON failure into an API error envelope.
func BodyError(err error) Error {
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		return NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge)
	case errors.Is(err, ErrEmptyBody):
		return NewError("invalid_request", "request body required", http.StatusBadRequest)
	default:
		return NewError("invalid_request", err.Error(), http.StatusBadRequest)
	}
}

// WriteJSON encodes payload with the provided status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
