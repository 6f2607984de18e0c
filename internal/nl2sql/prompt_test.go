package nl2sql

import (
	"strings"
	"testing"
)

func TestComposeIncludesSchemaAndDirective(t *testing.T) {
	schema := "The database has the following tables:\n\nTable 'users' has columns: id, name\n"
	prompt := Compose(schema, []HistoryEntry{{Role: "user", Content: "how many users?"}})

	if !strings.Contains(prompt.System, "expert SQL query generator") {
		t.Fatalf("system prompt missing directive: %q", prompt.System)
	}
	if !strings.Contains(prompt.System, schema) {
		t.Fatalf("system prompt missing schema: %q", prompt.System)
	}
	if !strings.Contains(prompt.System, "latest question") {
		t.Fatalf("system prompt missing closing instruction: %q", prompt.System)
	}
}

func TestComposePreservesHistoryOrder(t *testing.T) {
	history := []HistoryEntry{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "SELECT 1"},
		{Role: "user", Content: "second"},
	}
	prompt := Compose("schema", history)
	if len(prompt.History) != len(history) {
		t.Fatalf("expected %d entries, got %d", len(history), len(prompt.History))
	}
	for i := range history {
		if prompt.History[i] != history[i] {
			t.Fatalf("entry %d changed: got %+v want %+v", i, prompt.History[i], history[i])
		}
	}
}

func TestPromptLines(t *testing.T) {
	prompt := Compose("schema", []HistoryEntry{
		{Role: "user", Content: "how many orders?"},
		{Role: "assistant", Content: "SELECT COUNT(*) FROM orders"},
		{Role: "user", Content: "only shipped ones"},
	})
	lines := prompt.Lines()
	want := []string{
		"User: how many orders?",
		"Assistant: SELECT COUNT(*) FROM orders",
		"User: only shipped ones",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(lines))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: got %q want %q", i, lines[i], want[i])
		}
	}
}

func TestTrimToUserStart(t *testing.T) {
	history := []HistoryEntry{
		{Role: "assistant", Content: "SELECT 1"},
		{Role: "user", Content: "next question"},
	}
	trimmed := trimToUserStart(history)
	if len(trimmed) != 1 || trimmed[0].Role != "user" {
		t.Fatalf("expected history to start at the user turn, got %+v", trimmed)
	}
	if got := trimToUserStart(nil); len(got) != 0 {
		t.Fatalf("nil history should stay empty, got %+v", got)
	}
}

func TestCleanSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT 1":                           "SELECT 1",
		"  SELECT 1  ":                       "SELECT 1",
		"```sql\nSELECT 1\n```":              "SELECT 1",
		"```\nSELECT 1\n```":                 "SELECT 1",
		"sql: SELECT name FROM users":        "SELECT name FROM users",
		"SQL:\nSELECT name FROM users":       "SELECT name FROM users",
		"sql\nSELECT name FROM users":        "SELECT name FROM users",
		"```sql\nSELECT *\nFROM orders\n```": "SELECT *\nFROM orders",
		"": "",
	}
	for input, want := range cases {
		if got := CleanSQL(input); got != want {
			t.Fatalf("CleanSQL(%q) = %q, want %q", input, got, want)
		}
	}
}
