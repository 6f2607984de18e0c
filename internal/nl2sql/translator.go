// Package nl2sql turns a user question plus conversation context into
// a single SQL statement via an external generation service.
package nl2sql

import "context"

// HistoryEntry is one prior conversation turn as replayed to the
// generation service. Content for an assistant turn is its generated
// SQL (or its failure text), never its tabular result.
type HistoryEntry struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

type Request struct {
	// Schema is the rendered table/column description for the session.
	Schema string `json:"schema"`
	// History is the ordered conversation including the latest user
	// question as its final entry. Translators must not drop or
	// reorder entries.
	History []HistoryEntry `json:"history"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
