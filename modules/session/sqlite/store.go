package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/toolbench/internal/jsonx"
	"github.com/flemzord/toolbench/internal/session"
)

const timeLayout = time.RFC3339Nano

// Store implements session.Store on SQLite. Action arguments are stored as
// JSON that keeps integers and floats apart.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

// Get returns the session with its full history.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	var (
		sess                       session.Session
		static                     int
		tools, diags, created, upd string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, environment, interface, static, tools, diagnostics, created_at, updated_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Environment, &sess.Interface, &static, &tools, &diags, &created, &upd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get session: %w", err)
	}

	sess.Static = static != 0
	if err := json.Unmarshal([]byte(tools), &sess.Tools); err != nil {
		return nil, fmt.Errorf("sqlite: decode tools: %w", err)
	}
	if err := json.Unmarshal([]byte(diags), &sess.Diagnostics); err != nil {
		return nil, fmt.Errorf("sqlite: decode diagnostics: %w", err)
	}
	sess.CreatedAt, _ = time.Parse(timeLayout, created)
	sess.UpdatedAt, _ = time.Parse(timeLayout, upd)

	history, err := s.history(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.History = history
	return &sess, nil
}

func (s *Store) history(ctx context.Context, id string) ([]session.Action, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tool, arguments, created_at FROM actions
		WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	history := []session.Action{}
	for rows.Next() {
		var a session.Action
		var args, at string
		if err := rows.Scan(&a.Tool, &args, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan action: %w", err)
		}
		a.Arguments, err = jsonx.DecodeObject([]byte(args))
		if err != nil {
			return nil, fmt.Errorf("sqlite: decode arguments: %w", err)
		}
		a.At, _ = time.Parse(timeLayout, at)
		history = append(history, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: history rows: %w", err)
	}
	return history, nil
}

// Put creates or replaces a session and its history.
func (s *Store) Put(ctx context.Context, sess *session.Session) error {
	tools, err := json.Marshal(sess.Tools)
	if err != nil {
		return fmt.Errorf("sqlite: encode tools: %w", err)
	}
	if sess.Tools == nil {
		tools = []byte("[]")
	}
	diags, err := json.Marshal(sess.Diagnostics)
	if err != nil {
		return fmt.Errorf("sqlite: encode diagnostics: %w", err)
	}
	if sess.Diagnostics == nil {
		diags = []byte("[]")
	}

	now := s.clock()
	created := sess.CreatedAt
	if created.IsZero() {
		created = now
	}
	static := 0
	if sess.Static {
		static = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (id, environment, interface, static, tools, diagnostics, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Environment, sess.Interface, static, string(tools), string(diags),
		created.UTC().Format(timeLayout), now.Format(timeLayout),
	); err != nil {
		return fmt.Errorf("sqlite: put session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM actions WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("sqlite: reset history: %w", err)
	}
	for i, a := range sess.History {
		if err := insertAction(ctx, tx, sess.ID, i, a); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Append adds an action at position seq.
func (s *Store) Append(ctx context.Context, id string, seq int, a session.Action) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM sessions WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("sqlite: append: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM actions WHERE session_id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("sqlite: append: %w", err)
	}
	if n != seq {
		return fmt.Errorf("%w: %s at %d, have %d", session.ErrConflict, id, seq, n)
	}

	if err := insertAction(ctx, tx, id, seq, a); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, s.clock().Format(timeLayout), id); err != nil {
		return fmt.Errorf("sqlite: touch session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func insertAction(ctx context.Context, tx *sql.Tx, id string, seq int, a session.Action) error {
	args := a.Arguments
	if args == nil {
		args = map[string]any{}
	}
	data, err := jsonx.Encode(args)
	if err != nil {
		return fmt.Errorf("sqlite: encode arguments: %w", err)
	}
	at := a.At
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO actions (session_id, seq, tool, arguments, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, seq, a.Tool, string(data), at.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("sqlite: insert action: %w", err)
	}
	return nil
}

// Delete removes a session and its history.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM actions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete session: %w", err)
	}
	return tx.Commit()
}

// List returns every session summary, most recently updated first.
func (s *Store) List(ctx context.Context) ([]session.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.environment, s.interface, s.created_at, s.updated_at,
		       (SELECT count(*) FROM actions a WHERE a.session_id = s.id)
		FROM sessions s`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []session.Summary{}
	for rows.Next() {
		var sum session.Summary
		var created, upd string
		if err := rows.Scan(&sum.ID, &sum.Environment, &sum.Interface, &created, &upd, &sum.HistoryLen); err != nil {
			return nil, fmt.Errorf("sqlite: scan session: %w", err)
		}
		sum.CreatedAt, _ = time.Parse(timeLayout, created)
		sum.UpdatedAt, _ = time.Parse(timeLayout, upd)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list rows: %w", err)
	}
	session.SortSummaries(out)
	return out, nil
}

// Prune removes sessions last updated before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, updated_at FROM sessions`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id, upd string
		if err := rows.Scan(&id, &upd); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("sqlite: prune scan: %w", err)
		}
		if t, err := time.Parse(timeLayout, upd); err == nil && t.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("sqlite: prune rows: %w", err)
	}
	_ = rows.Close()

	for _, id := range stale {
		if err := s.Delete(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}
