package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ankabe/policyfaq/internal/testutil"
)

func TestRateLimiter_BurstExhaustion(t *testing.T) {
	rl := newRateLimiter(1.0, 3)

	for i := range 3 {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d denied within burst", i+1)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Error("request beyond burst allowed")
	}
	// A different IP gets its own bucket.
	if !rl.allow("10.0.0.2") {
		t.Error("first request from fresh IP denied")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := newRateLimiter(1.0, 1)
	handler := rateLimitMiddleware(rl, false, testutil.DiscardLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:5000"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want %q", got, "1")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xRealIP    string
		xff        string
		trustProxy bool
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.0.2.1:5000",
			want:       "192.0.2.1",
		},
		{
			name:       "headers ignored without trust",
			remoteAddr: "192.0.2.1:5000",
			xRealIP:    "203.0.113.9",
			want:       "192.0.2.1",
		},
		{
			name:       "x-real-ip preferred with trust",
			remoteAddr: "192.0.2.1:5000",
			xRealIP:    "203.0.113.9",
			xff:        "198.51.100.7",
			trustProxy: true,
			want:       "203.0.113.9",
		},
		{
			name:       "x-forwarded-for first hop",
			remoteAddr: "192.0.2.1:5000",
			xff:        "198.51.100.7, 10.0.0.1",
			trustProxy: true,
			want:       "198.51.100.7",
		},
		{
			name:       "invalid header falls back to remote addr",
			remoteAddr: "192.0.2.1:5000",
			xRealIP:    "not-an-ip",
			trustProxy: true,
			want:       "192.0.2.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}

			if got := clientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
