package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a stored mutation response stays replayable.
const DefaultTTL = 24 * time.Hour

// Status is the lifecycle of a stored key: pending while the first request runs, completed once
// its response is saved.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReservationState tells the middleware what to do with a request after Reserve.
type ReservationState int

const (
	// ReservationStateNew lets the request run.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted replays Record.
	ReservationStateCompleted
	// ReservationStatePending rejects the request while the first attempt is still in flight.
	ReservationStatePending
)

type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is the stored state of one key.
type Record struct {
	Key             string
	Fingerprint     string
	Status          Status
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

// Response is what a completed mutation returned.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists reservations and responses. Keys arrive already scoped to the caller.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

// replayedHeaders are the response headers worth storing. Mutations answer with JSON and, on
// create, a Location.
var replayedHeaders = []string{"Content-Type", "Location", "Retry-After"}

// documentID maps a scoped key to a fixed-length storage id. The fingerprint stays out of the id
// so a key reused for another body is caught on Reserve.
func documentID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// storableHeaders copies the replayable subset of header. It returns nil when nothing is kept.
func storableHeaders(header http.Header) map[string][]string {
	var kept map[string][]string
	for _, name := range replayedHeaders {
		values := header.Values(name)
		if len(values) == 0 {
			continue
		}
		if kept == nil {
			kept = make(map[string][]string, len(replayedHeaders))
		}
		kept[name] = append([]string(nil), values...)
	}
	return kept
}

func headersFromRecord(values map[string][]string) http.Header {
	header := make(http.Header, len(values))
	for name, vals := range values {
		header[http.CanonicalHeaderKey(name)] = append([]string(nil), vals...)
	}
	return header
}
