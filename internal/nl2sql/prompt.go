package nl2sql

import (
	"fmt"
	"strings"
)

const directive = `You are an expert SQL query generator. Your task is to convert English natural language questions into SQL queries.
You must only respond with a single, valid SQL query.
Do not include a markdown code fence in the beginning or at the end.
Do not include the word 'SQL' in your output.`

// Prompt is the composed instruction payload: a fixed directive plus
// the schema, and the full ordered history.
type Prompt struct {
	System  string
	History []HistoryEntry
}

// Compose builds the prompt for one generation call. Every history
// entry is preserved in order; no summarization or truncation happens
// here (windowing is the caller's explicit policy).
func Compose(schema string, history []HistoryEntry) Prompt {
	var sb strings.Builder
	sb.WriteString(directive)
	sb.WriteString("\n\nThe SQL database schema is as follows:\n")
	sb.WriteString(schema)
	sb.WriteString("\nBased on the chat history and the schema, generate the SQL query for the user's latest question.")
	return Prompt{System: sb.String(), History: history}
}

// Lines renders the history as role-prefixed lines, one per entry, in
// original order.
func (p Prompt) Lines() []string {
	return HistoryLines(p.History)
}

// HistoryLines is the role-prefixed text rendering of a history, used
// for prompt composition and debug logging.
func HistoryLines(history []HistoryEntry) []string {
	lines := make([]string, 0, len(history))
	for _, entry := range history {
		prefix := "User"
		if entry.Role == "assistant" {
			prefix = "Assistant"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", prefix, entry.Content))
	}
	return lines
}

// trimToUserStart drops leading assistant entries. Windowed histories
// can open mid-exchange, and the conversational APIs require the first
// message to come from the user.
func trimToUserStart(history []HistoryEntry) []HistoryEntry {
	for len(history) > 0 && history[0].Role != "user" {
		history = history[1:]
	}
	return history
}

// CleanSQL strips formatting artifacts from a raw model response: the
// surrounding whitespace, a markdown code fence, and a leading
// "sql"/"SQL:" label. The remainder is treated as the literal
// statement; no further validation happens.
func CleanSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	lower := strings.ToLower(trimmed)
	for _, label := range []string{"sql:", "sql\n"} {
		if strings.HasPrefix(lower, label) {
			trimmed = strings.TrimSpace(trimmed[len(label):])
			break
		}
	}
	return trimmed
}
