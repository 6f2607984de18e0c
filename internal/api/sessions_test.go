package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	body, contentType := sqliteUploadBody(t, "users.db")
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var created sessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.SessionID == "" {
		t.Fatal("create response missing session_id")
	}
	return created.SessionID
}

func TestCreateSessionFromUpload(t *testing.T) {
	h := newTestHandler(t, map[string]string{}, &fakeTranslator{sql: "SELECT 1"})

	body, contentType := sqliteUploadBody(t, "users.db")
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var created sessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Kind != "sqlite" {
		t.Fatalf("kind = %q, want sqlite", created.Kind)
	}
	if len(created.Tables) != 1 || created.Tables[0].Name != "users" {
		t.Fatalf("unexpected tables %+v", created.Tables)
	}
	if got := created.Tables[0].Columns; len(got) != 2 || got[0] != "id" || got[1] != "name" {
		t.Fatalf("unexpected columns %v", got)
	}
	if created.SizeBytes <= 0 {
		t.Fatalf("size_bytes = %d, want stored upload size", created.SizeBytes)
	}
}

func TestCreateSessionRejectsNonDatabaseUpload(t *testing.T) {
	h := newTestHandler(t, map[string]string{}, &fakeTranslator{sql: "SELECT 1"})

	body, contentType := uploadBody(t, "notes.txt", []byte("just some text"))
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCreateSessionRequiresDatabaseField(t *testing.T) {
	h := newTestHandler(t, map[string]string{}, &fakeTranslator{sql: "SELECT 1"})

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("wrong_field", "value"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCreateSessionRejectsNonPostgresDSN(t *testing.T) {
	h := newTestHandler(t, map[string]string{}, &fakeTranslator{sql: "SELECT 1"})

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"dsn":"mysql://u@host/db"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCreateSessionRejectsOversizedUpload(t *testing.T) {
	h := newTestHandler(t, map[string]string{
		"ASKDB_UPLOAD_MAX_BYTES": "64",
	}, &fakeTranslator{sql: "SELECT 1"})

	body, contentType := sqliteUploadBody(t, "users.db")
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusRequestEntityTooLarge && rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 413 or 400", rr.Code)
	}
}

func TestGetSchema(t *testing.T) {
	h := newTestHandler(t, map[string]string{}, &fakeTranslator{sql: "SELECT 1"})
	sessionID := createSession(t, h)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+sessionID+"/schema", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	rendered, _ := body["rendered"].(string)
	if !strings.Contains(rendered, "Table 'users' has columns: id, name") {
		t.Fatalf("unexpected rendered schema %q", rendered)
	}
}

func TestDeleteSession(t *testing.T) {
	h := newTestHandler(t, map[string]string{}, &fakeTranslator{sql: "SELECT 1"})
	sessionID := createSession(t, h)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+sessionID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+sessionID+"/schema", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("schema after delete status = %d, want 404", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+sessionID, nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("double delete status = %d, want 404", rr.Code)
	}
}

func TestSessionLimit(t *testing.T) {
	h := newTestHandler(t, map[string]string{
		"ASKDB_SESSION_MAX_SESSIONS": "1",
	}, &fakeTranslator{sql: "SELECT 1"})
	createSession(t, h)

	body, contentType := sqliteUploadBody(t, "users.db")
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}

	var errBody map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody["error_code"] != "TOO_MANY_SESSIONS" {
		t.Fatalf("error_code = %v", errBody["error_code"])
	}
	if errBody["retryable"] != true {
		t.Fatalf("retryable = %v, want true", errBody["retryable"])
	}
}
