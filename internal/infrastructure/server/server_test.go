package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/taskforge/core/internal/domain/entities"
	"github.com/taskforge/core/internal/infrastructure/logger"
)

func runErrorHandler(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	errorHandler(logger.Nop())(err, c)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	inner, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("body = %v, want error object", body)
	}
	return rec, inner
}

func TestErrorHandlerSentinelMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		kind string
	}{
		{entities.ErrTokenMissing, http.StatusUnauthorized, "auth.missing"},
		{entities.ErrTokenExpired, http.StatusUnauthorized, "auth.expired"},
		{entities.ErrTokenMalformed, http.StatusUnauthorized, "auth.invalid"},
		{entities.ErrTokenSignatureInvalid, http.StatusUnauthorized, "auth.invalid"},
		{entities.ErrTenantViolation, http.StatusForbidden, "auth.tenant_violation"},
		{entities.ErrTaskNotFound, http.StatusNotFound, "not_found"},
		{entities.ErrConversationNotFound, http.StatusNotFound, "not_found"},
		{entities.ErrDuplicateEmail, http.StatusConflict, "duplicate"},
		{entities.ErrInvalidCredentials, http.StatusUnauthorized, "auth.invalid"},
		{entities.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{entities.ErrEventPublishFailed, http.StatusServiceUnavailable, "event_publish_failure"},
		{entities.ErrReminderInPast, http.StatusBadRequest, "scheduler.past"},
	}
	for _, c := range cases {
		rec, body := runErrorHandler(t, c.err)
		if rec.Code != c.code {
			t.Fatalf("%v: status = %d, want %d", c.err, rec.Code, c.code)
		}
		if body["kind"] != c.kind {
			t.Fatalf("%v: kind = %v, want %q", c.err, body["kind"], c.kind)
		}
		if body["message"] == "" {
			t.Fatalf("%v: message missing", c.err)
		}
	}
}

func TestErrorHandlerValidationError(t *testing.T) {
	rec, body := runErrorHandler(t, &entities.ValidationError{Field: "title", Message: "must not be empty"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body["kind"] != "validation" {
		t.Fatalf("kind = %v", body["kind"])
	}
}

func TestErrorHandlerEchoHTTPError(t *testing.T) {
	rec, body := runErrorHandler(t, echo.NewHTTPError(http.StatusBadRequest, "Invalid limit"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body["kind"] != "validation" || body["message"] != "Invalid limit" {
		t.Fatalf("body = %v", body)
	}
}

func TestErrorHandlerInternalCarriesCorrelation(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Response().Header().Set(echo.HeaderXRequestID, "req-123")

	errorHandler(logger.Nop())(errors.New("boom"), c)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	inner := body["error"].(map[string]interface{})
	if inner["kind"] != "internal" {
		t.Fatalf("kind = %v", inner["kind"])
	}
	if inner["correlation_id"] != "req-123" {
		t.Fatalf("correlation_id = %v, want request id echoed", inner["correlation_id"])
	}
	if inner["message"] == "boom" {
		t.Fatal("internal error detail must not leak to the client")
	}
}

func TestKindForStatus(t *testing.T) {
	cases := map[int]string{
		http.StatusBadRequest:      "validation",
		http.StatusUnauthorized:    "auth.invalid",
		http.StatusForbidden:       "auth.tenant_violation",
		http.StatusNotFound:        "not_found",
		http.StatusConflict:        "duplicate",
		http.StatusTooManyRequests: "rate_limited",
		http.StatusBadGateway:      "internal",
	}
	for code, want := range cases {
		if got := kindForStatus(code); got != want {
			t.Fatalf("kindForStatus(%d) = %q, want %q", code, got, want)
		}
	}
}
