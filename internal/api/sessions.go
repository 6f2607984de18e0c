package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/askdb/askdb/internal/chat"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/source"
	"github.com/askdb/askdb/internal/storage"
)

// uploadFieldName is the multipart form field carrying the database file.
const uploadFieldName = "database"

type createSessionRequest struct {
	DSN string `json:"dsn"`
}

type sessionResponse struct {
	SessionID string       `json:"session_id"`
	Kind      string       `json:"kind"`
	Tables    []tableEntry `json:"tables"`
	SizeBytes int64        `json:"size_bytes,omitempty"`
}

type tableEntry struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

func handleCreateSession(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, "chat_user"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var (
		src source.Source
		err error
	)
	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		src, err = sourceFromUpload(cfg, deps, w, r)
	case strings.HasPrefix(contentType, "application/json"):
		src, err = sourceFromJSON(r)
	default:
		writeError(r.Context(), w, http.StatusUnsupportedMediaType, "UNSUPPORTED_CONTENT_TYPE", "expected multipart/form-data upload or application/json body", false, nil)
		return
	}
	if err != nil {
		status := http.StatusBadRequest
		code := "INVALID_SOURCE"
		if errors.Is(err, storage.ErrTooLarge) {
			status = http.StatusRequestEntityTooLarge
			code = "UPLOAD_TOO_LARGE"
		}
		writeError(r.Context(), w, status, code, err.Error(), false, nil)
		return
	}

	desc, err := inspectSource(r, deps, src)
	if err != nil {
		cleanupSource(deps, src)
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "SCHEMA_INSPECTION_FAILED", err.Error(), false, nil)
		return
	}

	session, err := deps.Sessions.Create(src, desc)
	if err != nil {
		cleanupSource(deps, src)
		status := http.StatusInternalServerError
		code := "SESSION_CREATE_FAILED"
		retryable := false
		if errors.Is(err, chat.ErrTooManySessions) {
			status = http.StatusTooManyRequests
			code = "TOO_MANY_SESSIONS"
			retryable = true
		}
		writeError(r.Context(), w, status, code, err.Error(), retryable, nil)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID: session.ID,
		Kind:      string(session.Source.Kind),
		Tables:    tableEntries(session.Schema),
		SizeBytes: uploadSize(deps, session.Source),
	})
}

// uploadSize reports the stored size of a file-backed source. Server
// sources have nothing on disk and report zero.
func uploadSize(deps Dependencies, src source.Source) int64 {
	if !src.Transient() || src.Path == "" || deps.Uploads == nil {
		return 0
	}
	size, err := deps.Uploads.Stat(filepath.Base(filepath.Dir(src.Path)), filepath.Base(src.Path))
	if err != nil {
		return 0
	}
	return size
}

func sourceFromUpload(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) (source.Source, error) {
	if deps.Uploads == nil {
		return source.Source{}, errors.New("uploads are not configured")
	}
	if cfg.Upload.MaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.Upload.MaxBytes+1024*1024)
	}

	file, header, err := r.FormFile(uploadFieldName)
	if err != nil {
		return source.Source{}, errors.New("multipart field \"database\" is required")
	}
	defer func() { _ = file.Close() }()

	path, _, err := saveUpload(deps.Uploads, header, file)
	if err != nil {
		return source.Source{}, err
	}

	src, err := source.FromUpload(path)
	if err != nil {
		_ = deps.Uploads.RemoveContaining(path)
		return source.Source{}, err
	}
	return src, nil
}

func saveUpload(store *storage.Store, header *multipart.FileHeader, file multipart.File) (string, int64, error) {
	return store.Save(newUploadToken(), storage.SafeFileName(header.Filename), file)
}

func sourceFromJSON(r *http.Request) (source.Source, error) {
	var request createSessionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		return source.Source{}, errors.New("invalid session request body")
	}
	return source.FromDSN(request.DSN)
}

func inspectSource(r *http.Request, deps Dependencies, src source.Source) (schema.Description, error) {
	db, err := src.Open(r.Context(), true)
	if err != nil {
		return schema.Description{}, err
	}
	defer func() { _ = db.Close() }()
	return schema.Inspect(r.Context(), db, src.Kind)
}

func cleanupSource(deps Dependencies, src source.Source) {
	if src.Transient() && src.Path != "" && deps.Uploads != nil {
		_ = deps.Uploads.RemoveContaining(src.Path)
	}
}

func handleGetSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, "chat_user"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	session, ok := sessionFromRequest(deps, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"kind":       string(session.Source.Kind),
		"tables":     tableEntries(session.Schema),
		"rendered":   session.Schema.Render(),
	})
}

func handleDeleteSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, "chat_user"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	id := strings.TrimSpace(r.PathValue("session"))
	if err := deps.Sessions.Delete(id); err != nil {
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error(), false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "session_id": id})
}

func tableEntries(desc schema.Description) []tableEntry {
	entries := make([]tableEntry, 0, len(desc.Tables))
	for _, table := range desc.Tables {
		entries = append(entries, tableEntry{Name: table.Name, Columns: table.Columns})
	}
	return entries
}

func newUploadToken() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "upload"
	}
	return hex.EncodeToString(buf)
}
