// Package chat holds per-session conversation state and the ask
// pipeline that turns a question into SQL, runs it, and records the
// outcome.
package chat

import (
	"time"

	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/query"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in a conversation. User turns carry Text only.
// Assistant turns carry either SQL plus exactly one of Result/Error,
// or Text alone when generation itself failed and no SQL exists.
type Turn struct {
	Role      Role          `json:"role"`
	Text      string        `json:"text,omitempty"`
	SQL       string        `json:"sql,omitempty"`
	Result    *query.Result `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// GenerationFailed reports an assistant turn that never produced SQL.
func (t Turn) GenerationFailed() bool {
	return t.Role == RoleAssistant && t.SQL == ""
}

// Failed reports any assistant turn whose question did not produce a
// result, whether generation or execution broke.
func (t Turn) Failed() bool {
	return t.GenerationFailed() || t.Error != ""
}

// Conversation is the ordered turn log for one session. It is not
// safe for concurrent use; the owning session serializes access.
type Conversation struct {
	turns []Turn
}

func (c *Conversation) Append(turn Turn) {
	c.turns = append(c.turns, turn)
}

// Turns returns a copy of the full log in arrival order.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c *Conversation) Len() int {
	return len(c.turns)
}

// Clear drops every turn. Session identity and schema are untouched.
func (c *Conversation) Clear() {
	c.turns = nil
}

// PromptHistory renders the log as generation input. Assistant turns
// replay as their SQL even when execution failed; only exchanges where
// generation itself produced no SQL are skipped, unless replayFailures
// keeps their plain-text turns in. The window keeps the most recent
// entries after filtering; window <= 0 keeps everything.
func (c *Conversation) PromptHistory(window int, replayFailures bool) []nl2sql.HistoryEntry {
	entries := make([]nl2sql.HistoryEntry, 0, len(c.turns))
	for i, turn := range c.turns {
		switch turn.Role {
		case RoleUser:
			if !replayFailures && answerNeverGenerated(c.turns, i) {
				continue
			}
			entries = append(entries, nl2sql.HistoryEntry{Role: "user", Content: turn.Text})
		case RoleAssistant:
			if !replayFailures && turn.GenerationFailed() {
				continue
			}
			content := turn.SQL
			if content == "" {
				content = turn.Text
			}
			entries = append(entries, nl2sql.HistoryEntry{Role: "assistant", Content: content})
		}
	}
	return WindowEntries(entries, window)
}

// answerNeverGenerated reports whether the assistant turn following
// index i produced no SQL at all. A trailing user turn with no answer
// yet is the question being asked right now and stays in.
func answerNeverGenerated(turns []Turn, i int) bool {
	if i+1 >= len(turns) {
		return false
	}
	next := turns[i+1]
	return next.Role == RoleAssistant && next.GenerationFailed()
}
