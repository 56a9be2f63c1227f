package capability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestHTTPProviderAgainstMock(t *testing.T) {
	e := echo.New()
	(&MockHandler{}).Register(e.Group("/api"))
	srv := httptest.NewServer(e)
	defer srv.Close()

	p := NewHTTPProvider(srv.URL+"/", NewHTTPClient(2*time.Second, 0, time.Millisecond))
	out, err := p.Fetch(context.Background(), "/api/iqvia", map[string]string{"molecule": "Metformin"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	markets, ok := out["markets"].([]any)
	if !ok || len(markets) != 2 {
		t.Fatalf("unexpected payload %v", out)
	}

	out, err = p.Fetch(context.Background(), "api/clinical-trials", map[string]string{"molecule": "metformin", "phase": "3", "indication": ""})
	if err != nil {
		t.Fatalf("fetch trials: %v", err)
	}
	if out["active_trials"] != float64(1) {
		t.Fatalf("expected one phase 3 active trial, got %v", out["active_trials"])
	}
}

func TestHTTPProviderDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "molecule is required", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, NewHTTPClient(time.Second, 3, time.Millisecond))
	_, err := p.Fetch(context.Background(), "/api/iqvia", nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 StatusError, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestHTTPProviderRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"partner":"US"}]`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, NewHTTPClient(time.Second, 2, time.Millisecond))
	out, err := p.Fetch(context.Background(), "/api/exim", map[string]string{"product": "metformin"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if items, ok := out["items"].([]any); !ok || len(items) != 1 {
		t.Fatalf("expected array wrapped under items, got %v", out)
	}
}

func TestHTTPProviderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, NewHTTPClient(20*time.Millisecond, 0, time.Millisecond))
	if _, err := p.Fetch(context.Background(), "/api/exim", map[string]string{"product": "x"}); err == nil {
		t.Fatalf("expected timeout error")
	}
}
