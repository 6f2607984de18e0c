package chat

import "github.com/askdb/askdb/internal/nl2sql"

// WindowEntries keeps the last n entries, always including the final
// one (the question currently being asked). n <= 0 means unlimited.
func WindowEntries(entries []nl2sql.HistoryEntry, n int) []nl2sql.HistoryEntry {
	if n <= 0 || len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

// WindowTurns is the same last-n policy over raw turns, used when
// serving bounded history reads.
func WindowTurns(turns []Turn, n int) []Turn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
