package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusCreated, map[string]string{"message": "hello"})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["success"] != true {
		t.Error("expected success")
	}
	if _, ok := body["timestamp"].(string); !ok {
		t.Error("expected timestamp")
	}
	if data, _ := body["data"].(map[string]any); data["message"] != "hello" {
		t.Errorf("data = %v", body["data"])
	}
}

func TestRespondJSONError_SanitizesMessage(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	respondJSONError(rec, http.StatusBadRequest, "bad_request", "line\x00one"+strings.Repeat("x", 300))

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["success"] != false || body["error"] != "bad_request" {
		t.Errorf("unexpected body %v", body)
	}
	msg, _ := body["message"].(string)
	if strings.ContainsRune(msg, 0) {
		t.Error("control characters must be stripped")
	}
	if len(msg) > 203 {
		t.Errorf("message not truncated: %d bytes", len(msg))
	}
}
