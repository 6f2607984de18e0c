package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/query"
)

type ServiceConfig struct {
	HistoryWindow  int
	ReplayFailures bool
}

// Service runs the ask pipeline: record the question, generate SQL
// from schema plus windowed history, execute it, record the outcome.
// Every question produces exactly one assistant turn, failed or not.
type Service struct {
	Translator nl2sql.Translator
	Executor   *query.Executor
	Config     ServiceConfig
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Answer is the outcome of one question as returned to the caller. The
// same content lands in the session history.
type Answer struct {
	SQL    string        `json:"sql,omitempty"`
	Result *query.Result `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func (s *Service) Ask(ctx context.Context, session *Session, question string) (Answer, error) {
	if question == "" {
		return Answer{}, fmt.Errorf("question is required")
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	now := s.now()
	session.conversation.Append(Turn{Role: RoleUser, Text: question, CreatedAt: now})
	observability.ObserveQuestion()

	req := nl2sql.Request{
		Schema:  session.Schema.Render(),
		History: session.conversation.PromptHistory(s.Config.HistoryWindow, s.Config.ReplayFailures),
	}
	if s.Logger != nil && s.Logger.Enabled(ctx, slog.LevelDebug) {
		s.Logger.DebugContext(ctx, "prompt history",
			slog.String("session_id", session.ID),
			slog.Any("lines", nl2sql.HistoryLines(req.History)),
		)
	}

	genStart := s.now()
	generated, err := s.Translator.Translate(ctx, req)
	observability.ObserveGeneration(s.now().Sub(genStart), err != nil)
	if err != nil {
		failure := fmt.Sprintf("could not generate SQL: %v", err)
		session.conversation.Append(Turn{Role: RoleAssistant, Text: failure, CreatedAt: s.now()})
		if s.Logger != nil {
			s.Logger.ErrorContext(ctx, "sql generation failed",
				slog.String("session_id", session.ID),
				slog.Any("error", err),
			)
		}
		return Answer{Error: failure}, nil
	}

	execStart := s.now()
	result, execErr := s.Executor.Execute(ctx, session.Source, generated.SQL)
	observability.ObserveExecution(s.now().Sub(execStart), execErr != nil)

	turn := Turn{Role: RoleAssistant, SQL: generated.SQL, CreatedAt: s.now()}
	answer := Answer{SQL: generated.SQL}
	if execErr != nil {
		turn.Error = execErr.Error()
		answer.Error = execErr.Error()
		if s.Logger != nil {
			s.Logger.WarnContext(ctx, "generated sql failed to execute",
				slog.String("session_id", session.ID),
				slog.String("sql", generated.SQL),
				slog.Any("error", execErr),
			)
		}
	} else {
		turn.Result = &result
		answer.Result = &result
		if s.Logger != nil {
			s.Logger.InfoContext(ctx, "question answered",
				slog.String("session_id", session.ID),
				slog.String("provider", generated.Provider),
				slog.Int("rows", result.RowCount),
				slog.Duration("execution", result.Duration),
			)
		}
	}
	session.conversation.Append(turn)
	return answer, nil
}

// History returns the most recent turns, bounded by the same window
// policy the prompt uses. limit <= 0 returns everything.
func (s *Service) History(session *Session, limit int) []Turn {
	session.mu.Lock()
	defer session.mu.Unlock()
	return WindowTurns(session.conversation.Turns(), limit)
}

// Clear empties the conversation; the session, its source, and its
// schema survive.
func (s *Service) Clear(session *Session) {
	session.mu.Lock()
	defer session.mu.Unlock()
	session.conversation.Clear()
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}
