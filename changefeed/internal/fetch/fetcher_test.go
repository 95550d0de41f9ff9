package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/breakingchange/horosafe"
)

// noopValidator allows all URLs (for tests that don't test SSRF).
func noopValidator(_ string) error { return nil }

func TestFetch_Success(t *testing.T) {
	// WHAT: GET returns the body and sends the bot headers.
	var ua, lang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		lang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<p>hello</p>"))
	}))
	defer srv.Close()

	res, err := New(Config{URLValidator: noopValidator}).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(res.Body) != "<p>hello</p>" || res.StatusCode != 200 {
		t.Errorf("got %d %q", res.StatusCode, res.Body)
	}
	if ua != "BreakingChangeBot/0.1 (+https://github.com/)" {
		t.Errorf("User-Agent: got %q", ua)
	}
	if lang != "en-US,en;q=0.9" {
		t.Errorf("Accept-Language: got %q", lang)
	}
	if !strings.HasPrefix(res.ContentType, "text/html") {
		t.Errorf("ContentType: got %q", res.ContentType)
	}
}

func TestFetch_Non2xx(t *testing.T) {
	// WHAT: Non-2xx statuses are fetch errors carrying the status code.
	for _, code := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusNotModified} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		_, err := New(Config{URLValidator: noopValidator}).Fetch(context.Background(), srv.URL)
		srv.Close()

		var fe *Error
		if !errors.As(err, &fe) {
			t.Fatalf("HTTP %d: want *Error, got %v", code, err)
		}
		if fe.StatusCode != code {
			t.Errorf("StatusCode: got %d, want %d", fe.StatusCode, code)
		}
	}
}

func TestFetch_Timeout(t *testing.T) {
	// WHAT: A slow server hits the per-fetch timeout.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := New(Config{URLValidator: noopValidator, Timeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("want *Error, got %v", err)
	}
	if fe.StatusCode != 0 {
		t.Errorf("no response expected, got status %d", fe.StatusCode)
	}
	if !fe.Timeout() {
		t.Errorf("Timeout() should be true for %v", err)
	}
}

func TestError_Timeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"context deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), true},
		{"status", errors.New("unexpected status 503"), false},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (&Error{URL: "https://a.example", Err: tt.err}).Timeout(); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFetch_BodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	_, err := New(Config{URLValidator: noopValidator, MaxBytes: 1024}).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, horosafe.ErrTooLarge) {
		t.Errorf("want ErrTooLarge, got %v", err)
	}
}

func TestFetch_SSRFBlocked(t *testing.T) {
	// WHAT: The default validator rejects loopback targets before any request.
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer srv.Close()

	_, err := New(Config{}).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, horosafe.ErrSSRF) {
		t.Errorf("want ErrSSRF, got %v", err)
	}
	if hit {
		t.Error("blocked URL must not be requested")
	}
}

func TestFetch_RedirectValidated(t *testing.T) {
	// WHAT: Every redirect target goes through the validator.
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("internal"))
	}))
	defer target.Close()
	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/secret", http.StatusFound)
	}))
	defer front.Close()

	validator := func(u string) error {
		if strings.Contains(u, "/secret") {
			return horosafe.ErrSSRF
		}
		return nil
	}
	_, err := New(Config{URLValidator: validator}).Fetch(context.Background(), front.URL)
	if !errors.Is(err, horosafe.ErrSSRF) {
		t.Errorf("want redirect blocked with ErrSSRF, got %v", err)
	}
}
