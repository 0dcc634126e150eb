package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"github.com/animica-labs/pyvm/core/loader"
)

func TestEnvOrFallsBackToDefault(t *testing.T) {
	const k = "PYVMD_TEST_ENV_OR_UNSET"
	os.Unsetenv(k)
	if v := envOr(k, "fallback"); v != "fallback" {
		t.Fatalf("envOr = %q, want fallback", v)
	}
}

func TestEnvOrPrefersSetValue(t *testing.T) {
	const k = "PYVMD_TEST_ENV_OR_SET"
	os.Setenv(k, "explicit")
	defer os.Unsetenv(k)
	if v := envOr(k, "fallback"); v != "explicit" {
		t.Fatalf("envOr = %q, want explicit", v)
	}
}

func TestEnvOrIntParsesOrFallsBack(t *testing.T) {
	const k = "PYVMD_TEST_ENV_OR_INT"
	os.Setenv(k, "42")
	defer os.Unsetenv(k)
	if v := envOrInt(k, 7); v != 42 {
		t.Fatalf("envOrInt = %d, want 42", v)
	}
	os.Setenv(k, "not-a-number")
	if v := envOrInt(k, 7); v != 7 {
		t.Fatalf("envOrIntfallback = %d, want 7", v)
	}
}

func TestEnvOrFloatParsesOrFallsBack(t *testing.T) {
	const k = "PYVMD_TEST_ENV_OR_FLOAT"
	os.Setenv(k, "2.5")
	defer os.Unsetenv(k)
	if v := envOrFloat(k, 1); v != 2.5 {
		t.Fatalf("envOrFloat = %v, want 2.5", v)
	}
}

func TestReadBodyRejectsOversizedPayload(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/call", strings.NewReader("0123456789"))
	_, err := readBody(req, 4)
	if err == nil {
		t.Fatalf("expected an oversized body error")
	}
}

func TestReadBodyReturnsBodyWithinLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/call", strings.NewReader("hello"))
	data, err := readBody(req, 10)
	if err != nil {
		t.Fatalf("readBody: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("body = %q, want hello", data)
	}
}

func testContract(t *testing.T) *loader.Contract {
	t.Helper()
	c, err := loader.Load(&loader.Manifest{Name: "add", Code: "def add(a, b):\n    return a + b\n"}, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return c
}

func TestHandleHealthReportsContractIdentity(t *testing.T) {
	s := &server{contract: testContract(t), limiter: rate.NewLimiter(rate.Inf, 1)}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.handleHealth(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "\"contract\":\"add\"") {
		t.Fatalf("body = %s, missing contract name", rec.Body.String())
	}
}

func TestHandleCallDispatchesToContract(t *testing.T) {
	s := &server{contract: testContract(t), limiter: rate.NewLimiter(rate.Inf, 1)}
	body := `{"method":"add","args":[{"kind":"int","int":"2"},{"kind":"int","int":"3"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/call", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleCall(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "\"int\":\"5\"") {
		t.Fatalf("body = %s, expected int result 5", rec.Body.String())
	}
}

func TestHandleCallRejectsBadPayload(t *testing.T) {
	s := &server{contract: testContract(t), limiter: rate.NewLimiter(rate.Inf, 1)}
	req := httptest.NewRequest(http.MethodPost, "/v1/call", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	s.handleCall(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRateLimitRejectsWhenExhausted(t *testing.T) {
	s := &server{contract: testContract(t), limiter: rate.NewLimiter(0, 0)}
	handler := s.rateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}
