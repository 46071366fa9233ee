package pagination

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d got %d", DefaultPageSize, params.PageSize)
	}
	if params.PageToken != "" {
		t.Fatalf("expected empty page token got %q", params.PageToken)
	}
	if !params.Cursor.IsZero() {
		t.Fatalf("expected zero cursor, got %#v", params.Cursor)
	}
}

func TestParsePageSize(t *testing.T) {
	opts := Options{DefaultPageSize: 25, MaxPageSize: 40}
	values := url.Values{}
	values.Set("pageSize", "30")

	params, err := Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 30 {
		t.Fatalf("expected page size 30 got %d", params.PageSize)
	}

	values.Set("pageSize", "400")
	params, err = Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != opts.MaxPageSize {
		t.Fatalf("expected page size clamped to %d got %d", opts.MaxPageSize, params.PageSize)
	}
}

func TestParseDefaultClampedToMax(t *testing.T) {
	params, err := Parse(url.Values{}, Options{DefaultPageSize: 80, MaxPageSize: 20})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 20 {
		t.Fatalf("expected default clamped to 20, got %d", params.PageSize)
	}
}

func TestParseInvalidPageSize(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-3"} {
		values := url.Values{}
		values.Set("pageSize", raw)
		if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("expected ErrInvalidPageSize for %q got %v", raw, err)
		}
	}
}

func TestParsePageToken(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), ID: "01HPARTNER"}
	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}

	values := url.Values{}
	values.Set("pageToken", token)
	params, err := Parse(values, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageToken != token {
		t.Fatalf("expected page token %q got %q", token, params.PageToken)
	}
	if !params.Cursor.CreatedAt.Equal(cursor.CreatedAt) || params.Cursor.ID != cursor.ID {
		t.Fatalf("expected cursor %#v got %#v", cursor, params.Cursor)
	}
}

func TestParseInvalidPageToken(t *testing.T) {
	values := url.Values{}
	values.Set("pageToken", "%%%")
	if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken got %v", err)
	}
}

func TestEncodeTokenZeroCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token for zero cursor, got %q", token)
	}
}

func TestDecodeTokenRequiresID(t *testing.T) {
	token, err := EncodeToken(Cursor{CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if _, err := DecodeToken(token); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken got %v", err)
	}
}

func TestContextHelpers(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("expected no params on empty context")
	}
	if got := FromContextOrDefault(context.Background()); got.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size, got %d", got.PageSize)
	}

	ctx := WithParams(context.Background(), Params{PageSize: 7})
	got, ok := FromContext(ctx)
	if !ok || got.PageSize != 7 {
		t.Fatalf("expected stored params, got %#v ok=%v", got, ok)
	}
}

func TestMiddleware(t *testing.T) {
	var captured Params
	handler := Middleware(Options{MaxPageSize: 10})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = FromContextOrDefault(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/partners?pageSize=50", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if captured.PageSize != 10 {
		t.Fatalf("expected clamped page size 10, got %d", captured.PageSize)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/partners?pageSize=nope", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMust(t *testing.T) {
	if got := Must(Params{}); got.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size, got %d", got.PageSize)
	}
	if got := Must(Params{PageSize: 3}); got.PageSize != 3 {
		t.Fatalf("expected page size preserved, got %d", got.PageSize)
	}
}
