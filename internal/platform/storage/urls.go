package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	defaultDownloadExpiry = 15 * time.Minute
	// Cloud Storage rejects V4 signatures valid for longer than seven days.
	maxDownloadExpiry = 7 * 24 * time.Hour
)

var (
	errNoSigner      = errors.New("storage: signer is required")
	errInvalidBucket = errors.New("storage: bucket name is required")
	errInvalidObject = errors.New("storage: object name is required")
	errExpiryTooLong = errors.New("storage: expiry exceeds permitted maximum")
)

// URLSigner issues V4 signed download links for backup objects.
type URLSigner struct {
	signer Signer
	now    func() time.Time
}

// URLSignerOption customises URLSigner behaviour.
type URLSignerOption func(*URLSigner)

// WithClock injects a custom clock.
func WithClock(clock func() time.Time) URLSignerOption {
	return func(s *URLSigner) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewURLSigner constructs a signed URL issuer.
func NewURLSigner(signer Signer, opts ...URLSignerOption) (*URLSigner, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	s := &URLSigner{signer: signer, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// DownloadOptions control the lifetime and response headers of a download link.
type DownloadOptions struct {
	ExpiresIn   time.Duration
	Filename    string
	ContentType string
}

// SignedURL describes a generated link.
type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// DownloadURL signs a GET link for bucket/object.
func (s *URLSigner) DownloadURL(ctx context.Context, bucket, object string, opts DownloadOptions) (SignedURL, error) {
	if s == nil || s.signer == nil {
		return SignedURL{}, errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return SignedURL{}, errInvalidBucket
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return SignedURL{}, errInvalidObject
	}

	expiry := opts.ExpiresIn
	if expiry <= 0 {
		expiry = defaultDownloadExpiry
	}
	if expiry > maxDownloadExpiry {
		return SignedURL{}, errExpiryTooLong
	}
	expiresAt := s.now().Add(expiry)

	query := url.Values{}
	if name := strings.TrimSpace(opts.Filename); name != "" {
		query.Set("response-content-disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	}
	if ct := strings.TrimSpace(opts.ContentType); ct != "" {
		query.Set("response-content-type", ct)
	}

	urlOpts := &storage.SignedURLOptions{
		GoogleAccessID: s.signer.Email(),
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return s.signer.SignBytes(ctx, payload)
		},
	}
	if len(query) > 0 {
		urlOpts.QueryParameters = query
	}

	signed, err := storage.SignedURL(bucket, object, urlOpts)
	if err != nil {
		return SignedURL{}, fmt.Errorf("storage: sign download url: %w", err)
	}
	return SignedURL{URL: signed, ExpiresAt: expiresAt}, nil
}
