package siblings

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientDoClassifiesUnreachable(t *testing.T) {
	c := newClient("test", "http://127.0.0.1:1", 50*time.Millisecond)
	err := c.do(context.Background(), "GET", "/x", "test.op", nil, nil)
	if err == nil {
		t.Fatal("expected an error for an unreachable base URL")
	}
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("expected ErrUnreachable, got %v", err)
	}
}

func TestClientDoClassifiesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := newClient("test", srv.URL, time.Second)
	err := c.do(context.Background(), "GET", "/x", "test.op", nil, nil)
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
	if !errors.Is(err, ErrHTTPError) {
		t.Errorf("expected ErrHTTPError, got %v", err)
	}
}

func TestClientDoClassifiesMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := newClient("test", srv.URL, time.Second)
	var out struct {
		Field string `json:"field"`
	}
	err := c.do(context.Background(), "GET", "/x", "test.op", nil, &out)
	if err == nil {
		t.Fatal("expected an error for an unparsable 2xx body")
	}
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestClientDoSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"field":"value"}`))
	}))
	defer srv.Close()

	c := newClient("test", srv.URL, time.Second)
	var out struct {
		Field string `json:"field"`
	}
	if err := c.do(context.Background(), "GET", "/x", "test.op", nil, &out); err != nil {
		t.Fatalf("do: %v", err)
	}
	if out.Field != "value" {
		t.Errorf("Field = %q, want value", out.Field)
	}
}

func TestClientConfigured(t *testing.T) {
	configured := newClient("test", "http://example.com", time.Second)
	if !configured.configured() {
		t.Error("expected non-empty base URL to be configured")
	}
	unconfigured := newClient("test", "", time.Second)
	if unconfigured.configured() {
		t.Error("expected empty base URL to be unconfigured")
	}
}

func TestIsUnreachableClassifiesOnlyUnreachable(t *testing.T) {
	if !IsUnreachable(&CallError{Sentinel: ErrUnreachable}) {
		t.Error("expected ErrUnreachable-sentineled error to report unreachable")
	}
	if IsUnreachable(&CallError{Sentinel: ErrHTTPError}) {
		t.Error("expected ErrHTTPError-sentineled error to not report unreachable")
	}
}
