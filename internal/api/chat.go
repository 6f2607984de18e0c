package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

type askRequest struct {
	Question string `json:"question"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, "chat_user"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	session, ok := sessionFromRequest(deps, w, r)
	if !ok {
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	question := strings.TrimSpace(request.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	answer, err := deps.Chat.Ask(r.Context(), session, question)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "ASK_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"sql":        answer.SQL,
		"result":     answer.Result,
		"error":      answer.Error,
	})
}

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, "chat_user"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	session, ok := sessionFromRequest(deps, w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer", false, nil)
			return
		}
		limit = parsed
	}

	turns := deps.Chat.History(session, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"turns":      turns,
	})
}

func handleClear(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, "chat_user"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	session, ok := sessionFromRequest(deps, w, r)
	if !ok {
		return
	}
	deps.Chat.Clear(session)
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared", "session_id": session.ID})
}
