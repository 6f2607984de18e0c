package chat

import (
	"testing"

	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/query"
)

func TestPromptHistorySkipsGenerationFailures(t *testing.T) {
	var conv Conversation
	conv.Append(Turn{Role: RoleUser, Text: "how many users?"})
	conv.Append(Turn{Role: RoleAssistant, SQL: "SELECT COUNT(*) FROM users", Result: &query.Result{RowCount: 1}})
	conv.Append(Turn{Role: RoleUser, Text: "show the bananas"})
	conv.Append(Turn{Role: RoleAssistant, SQL: "SELECT * FROM bananas", Error: "no such table: bananas"})
	conv.Append(Turn{Role: RoleUser, Text: "something else broken"})
	conv.Append(Turn{Role: RoleAssistant, Text: "could not generate SQL: upstream timeout"})
	conv.Append(Turn{Role: RoleUser, Text: "list user names"})

	entries := conv.PromptHistory(0, false)
	want := []nl2sql.HistoryEntry{
		{Role: "user", Content: "how many users?"},
		{Role: "assistant", Content: "SELECT COUNT(*) FROM users"},
		{Role: "user", Content: "show the bananas"},
		{Role: "assistant", Content: "SELECT * FROM bananas"},
		{Role: "user", Content: "list user names"},
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d: %+v", len(want), len(entries), entries)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Fatalf("entry %d: got %+v want %+v", i, entries[i], want[i])
		}
	}
}

func TestPromptHistoryReplaysExecutionFailureSQL(t *testing.T) {
	var conv Conversation
	conv.Append(Turn{Role: RoleUser, Text: "list user names"})
	conv.Append(Turn{Role: RoleAssistant, SQL: "SELECT name FROM user", Error: "no such table: user"})
	conv.Append(Turn{Role: RoleUser, Text: "try the users table"})

	entries := conv.PromptHistory(0, false)
	if len(entries) != 3 {
		t.Fatalf("execution failures must stay in the prompt, got %d entries: %+v", len(entries), entries)
	}
	if entries[1].Role != "assistant" || entries[1].Content != "SELECT name FROM user" {
		t.Fatalf("execution failure should replay its SQL, got %+v", entries[1])
	}
}

func TestPromptHistoryReplaysGenerationFailuresWhenEnabled(t *testing.T) {
	var conv Conversation
	conv.Append(Turn{Role: RoleUser, Text: "show the bananas"})
	conv.Append(Turn{Role: RoleAssistant, Text: "could not generate SQL: upstream timeout"})
	conv.Append(Turn{Role: RoleUser, Text: "then show fruit"})

	entries := conv.PromptHistory(0, true)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries with replay enabled, got %d", len(entries))
	}
	if entries[1].Content != "could not generate SQL: upstream timeout" {
		t.Fatalf("replayed generation failure should carry its text, got %q", entries[1].Content)
	}
}

func TestPromptHistoryAppliesWindow(t *testing.T) {
	var conv Conversation
	for i := 0; i < 5; i++ {
		conv.Append(Turn{Role: RoleUser, Text: "q"})
		conv.Append(Turn{Role: RoleAssistant, SQL: "SELECT 1", Result: &query.Result{}})
	}
	conv.Append(Turn{Role: RoleUser, Text: "latest"})

	entries := conv.PromptHistory(3, false)
	if len(entries) != 3 {
		t.Fatalf("expected window of 3, got %d", len(entries))
	}
	if last := entries[len(entries)-1]; last.Content != "latest" {
		t.Fatalf("window must keep the latest question, got %q", last.Content)
	}
}

func TestPromptHistoryKeepsUnansweredTrailingQuestion(t *testing.T) {
	var conv Conversation
	conv.Append(Turn{Role: RoleUser, Text: "pending question"})

	entries := conv.PromptHistory(0, false)
	if len(entries) != 1 || entries[0].Content != "pending question" {
		t.Fatalf("trailing question must survive filtering, got %+v", entries)
	}
}

func TestClearEmptiesTurns(t *testing.T) {
	var conv Conversation
	conv.Append(Turn{Role: RoleUser, Text: "q"})
	conv.Clear()
	if conv.Len() != 0 {
		t.Fatalf("expected empty conversation, got %d turns", conv.Len())
	}
}

func TestWindowEntries(t *testing.T) {
	entries := []nl2sql.HistoryEntry{
		{Role: "user", Content: "a"},
		{Role: "assistant", Content: "b"},
		{Role: "user", Content: "c"},
	}
	if got := WindowEntries(entries, 0); len(got) != 3 {
		t.Fatalf("window 0 means unlimited, got %d", len(got))
	}
	if got := WindowEntries(entries, 10); len(got) != 3 {
		t.Fatalf("window larger than log keeps all, got %d", len(got))
	}
	got := WindowEntries(entries, 2)
	if len(got) != 2 || got[0].Content != "b" || got[1].Content != "c" {
		t.Fatalf("window 2 should keep the last two, got %+v", got)
	}
}

func TestTurnFailureClassification(t *testing.T) {
	ok := Turn{Role: RoleAssistant, SQL: "SELECT 1", Result: &query.Result{}}
	execFail := Turn{Role: RoleAssistant, SQL: "SELECT x", Error: "boom"}
	genFail := Turn{Role: RoleAssistant, Text: "could not generate SQL"}
	user := Turn{Role: RoleUser, Text: "q"}

	if ok.Failed() {
		t.Fatal("successful turn must not be failed")
	}
	if !execFail.Failed() || execFail.GenerationFailed() {
		t.Fatal("execution failure misclassified")
	}
	if !genFail.Failed() || !genFail.GenerationFailed() {
		t.Fatal("generation failure misclassified")
	}
	if user.Failed() {
		t.Fatal("user turn must never be failed")
	}
}
