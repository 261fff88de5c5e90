// Package store persists completed profiling sessions in a local DuckDB
// database so reports can be re-analyzed and exported after the fact.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog"

	"github.com/perflens/perflens/internal/analyze"
	"github.com/perflens/perflens/internal/profile"
)

// Store handles local storage of profiling sessions.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	mu     sync.Mutex
}

// SessionInfo is one row of the session index.
type SessionInfo struct {
	SessionID       string
	StartedAt       time.Time
	Duration        time.Duration
	Adapters        []profile.Kind
	Failed          []profile.Kind
	TargetError     string
	TimedOut        bool
	Entries         int
	Recommendations int
}

// Open opens (or creates) the session database at path and initializes the
// schema. An empty path opens an in-memory database.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open session database %s: %w", path, err)
	}
	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize session schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id   TEXT PRIMARY KEY,
			started_at   TIMESTAMP NOT NULL,
			duration_ns  BIGINT    NOT NULL,
			adapters     TEXT      NOT NULL,
			failed       TEXT      NOT NULL DEFAULT '',
			target_error TEXT      NOT NULL DEFAULT '',
			timed_out    BOOLEAN   NOT NULL DEFAULT false,
			entries      INTEGER   NOT NULL,
			report       TEXT      NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_started_at
			ON sessions (started_at);

		CREATE TABLE IF NOT EXISTS recommendations (
			session_id TEXT    NOT NULL,
			position   INTEGER NOT NULL,
			title      TEXT    NOT NULL,
			severity   TEXT    NOT NULL,
			impact     TEXT    NOT NULL,
			body       TEXT    NOT NULL,
			PRIMARY KEY (session_id, position)
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	s.logger.Debug().Msg("Session storage schema initialized")
	return nil
}

// SaveSession stores a report and its recommendations in one transaction.
// Saving the same session ID twice replaces the previous copy.
func (s *Store) SaveSession(ctx context.Context, report *profile.Report, recs []analyze.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reportJSON, err := profile.Encode(report)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", report.Meta.SessionID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, report.Meta.SessionID)
	if err != nil {
		return fmt.Errorf("replace session %s: %w", report.Meta.SessionID, err)
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM recommendations WHERE session_id = ?`, report.Meta.SessionID)
	if err != nil {
		return fmt.Errorf("replace recommendations %s: %w", report.Meta.SessionID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (
			session_id, started_at, duration_ns, adapters, failed,
			target_error, timed_out, entries, report
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.Meta.SessionID,
		report.Meta.StartedAt,
		report.Meta.Duration.Nanoseconds(),
		joinKinds(report.Meta.Adapters),
		joinKinds(report.Meta.Failed),
		report.Meta.TargetError,
		report.Meta.TimedOut,
		len(report.Entries),
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("store session %s: %w", report.Meta.SessionID, err)
	}

	for i, rec := range recs {
		body, err := analyze.EncodeRecommendations([]analyze.Recommendation{rec})
		if err != nil {
			return fmt.Errorf("encode recommendation %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO recommendations (session_id, position, title, severity, impact, body)
			VALUES (?, ?, ?, ?, ?, ?)`,
			report.Meta.SessionID,
			i,
			rec.Title,
			rec.Severity.String(),
			rec.Impact.String(),
			string(body),
		)
		if err != nil {
			return fmt.Errorf("store recommendation %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session %s: %w", report.Meta.SessionID, err)
	}

	s.logger.Info().
		Str("session_id", report.Meta.SessionID).
		Int("entries", len(report.Entries)).
		Int("recommendations", len(recs)).
		Msg("Session saved")
	return nil
}

// LoadReport loads a session's report by ID.
func (s *Store) LoadReport(ctx context.Context, sessionID string) (*profile.Report, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return profile.Decode([]byte(data))
}

// LoadRecommendations loads a session's ranked recommendations by ID.
func (s *Store) LoadRecommendations(ctx context.Context, sessionID string) ([]analyze.Recommendation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM recommendations
		WHERE session_id = ?
		ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load recommendations %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var recs []analyze.Recommendation
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		decoded, err := analyze.DecodeRecommendations([]byte(body))
		if err != nil {
			return nil, fmt.Errorf("decode recommendation: %w", err)
		}
		recs = append(recs, decoded...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recommendations: %w", err)
	}
	return recs, nil
}

// ListSessions returns the session index, most recent first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.session_id, s.started_at, s.duration_ns, s.adapters, s.failed,
		       s.target_error, s.timed_out, s.entries,
		       (SELECT count(*) FROM recommendations r WHERE r.session_id = s.session_id)
		FROM sessions s
		ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionInfo
	for rows.Next() {
		var (
			info       SessionInfo
			durationNs int64
			adapters   string
			failed     string
		)
		err := rows.Scan(
			&info.SessionID, &info.StartedAt, &durationNs, &adapters, &failed,
			&info.TargetError, &info.TimedOut, &info.Entries, &info.Recommendations,
		)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		info.Duration = time.Duration(durationNs)
		info.Adapters = splitKinds(adapters)
		info.Failed = splitKinds(failed)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func joinKinds(kinds []profile.Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

func splitKinds(s string) []profile.Kind {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	kinds := make([]profile.Kind, len(parts))
	for i, p := range parts {
		kinds[i] = profile.Kind(p)
	}
	return kinds
}
