package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/partner-scorecard/api/internal/platform/requestctx"
)

func TestParseCloudTraceContext(t *testing.T) {
	sc, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if got := sc.TraceID().String(); got != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected trace id %s", got)
	}
	if got := sc.SpanID().String(); got != "0000000000000001" {
		t.Fatalf("unexpected span id %s", got)
	}
	if !sc.IsSampled() {
		t.Fatalf("expected sampled flag")
	}

	if _, ok := parseCloudTraceContext("garbage"); ok {
		t.Fatalf("expected malformed header to be rejected")
	}
	if _, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/0;o=1"); ok {
		t.Fatalf("expected zero span id to be rejected")
	}
}

func TestTraceMiddlewarePropagatesRemoteTrace(t *testing.T) {
	var info requestctx.TraceInfo
	handler := TraceMiddleware("demo-project")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/partners", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/42;o=1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if info.TraceID != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected remote trace id to propagate, got %q", info.TraceID)
	}
	if info.ProjectID != "demo-project" {
		t.Fatalf("expected project id, got %q", info.ProjectID)
	}
	if rec.Header().Get(cloudTraceHeader) != "105445aa7843bc8bf206b12000100000/42;o=1" {
		t.Fatalf("unexpected response trace header %q", rec.Header().Get(cloudTraceHeader))
	}
}
