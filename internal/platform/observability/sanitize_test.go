package observability

import "testing"

func TestMaskEmail(t *testing.T) {
	tests := map[string]string{
		"":                     "",
		"jane@example.com":     "j***@example.com",
		"  Kim@corp.co.kr  ":   "K***@corp.co.kr",
		"no-at-sign":           "***",
		"@example.com":         "***",
		"홍길동@example.com":      "홍***@example.com",
		"a\x00b@example.com":   "a***@example.com",
	}
	for in, want := range tests {
		if got := MaskEmail(in); got != want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeRoute(t *testing.T) {
	if got := SanitizeRoute(""); got != "/" {
		t.Fatalf("expected root route, got %q", got)
	}
	if got := SanitizeRoute("/api/v1/partners\n/{partnerID}"); got != "/api/v1/partners/{partnerID}" {
		t.Fatalf("unexpected sanitised route %q", got)
	}
}
