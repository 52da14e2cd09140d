package respond

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestJSONSetsStatusAndContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, 201, map[string]int{"n": 7})

	if rec.Code != 201 {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["n"] != 7 {
		t.Errorf("body = %v, want n=7", body)
	}
}

func TestErrorSurvivesQuotedInput(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, 400, `unknown scope: "admin"`)

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if want := `unknown scope: "admin"`; body["error"] != want {
		t.Errorf("error = %q, want %q", body["error"], want)
	}
}
