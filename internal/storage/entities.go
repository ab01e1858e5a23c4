package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/driftline-app/driftline/internal/exclusion"
	"github.com/driftline-app/driftline/internal/lifecycle"
)

// WithTx runs fn inside a single SQLite transaction, giving the
// lifecycle engine its atomic read-modify-write primitive. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(lifecycle.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning entity transaction: %w", err)
	}

	if err := fn(&entityTx{ctx: ctx, tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// entityTx adapts one sql.Tx to the lifecycle engine's view.
type entityTx struct {
	ctx context.Context
	tx  *sql.Tx
}

const entityColumns = `id, user_id, type, topic, state, state_history, source_entries, metadata, exclusions, feedback, created_at, last_updated`

func (t *entityTx) GetEntity(userID, id string) (*lifecycle.Entity, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT `+entityColumns+` FROM signal_states WHERE user_id = ? AND id = ?`, userID, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

func (t *entityTx) PutEntity(e *lifecycle.Entity) error {
	history, err := json.Marshal(e.StateHistory)
	if err != nil {
		return fmt.Errorf("encoding state_history: %w", err)
	}
	sources, err := json.Marshal(e.SourceEntries)
	if err != nil {
		return fmt.Errorf("encoding source_entries: %w", err)
	}
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	exclusions, err := json.Marshal(e.Exclusions)
	if err != nil {
		return fmt.Errorf("encoding exclusions: %w", err)
	}
	feedback, err := json.Marshal(e.Feedback)
	if err != nil {
		return fmt.Errorf("encoding feedback: %w", err)
	}

	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO signal_states (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state,
			state_history = excluded.state_history, source_entries = excluded.source_entries,
			metadata = excluded.metadata, exclusions = excluded.exclusions,
			feedback = excluded.feedback, last_updated = excluded.last_updated`,
		e.ID, e.UserID, string(e.Type), e.Topic, string(e.State),
		string(history), string(sources), string(metadata), string(exclusions), string(feedback),
		fmtTime(e.CreatedAt), fmtTime(e.LastUpdated),
	)
	return err
}

func (t *entityTx) ListEntitiesByTopic(userID string, typ lifecycle.EntityType, topic string) ([]*lifecycle.Entity, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT `+entityColumns+` FROM signal_states WHERE user_id = ? AND type = ? AND topic = ? ORDER BY created_at ASC`,
		userID, string(typ), topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntities(rows)
}

func (t *entityTx) PutExclusion(x exclusion.Exclusion) error {
	return insertExclusion(t.ctx, t.tx, x)
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertExclusion(ctx context.Context, db execer, x exclusion.Exclusion) error {
	contextJSON, err := json.Marshal(x.Context)
	if err != nil {
		return fmt.Errorf("encoding exclusion context: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO exclusions (id, user_id, pattern_type, context, reason, permanent, excluded_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		x.ID, x.UserID, x.PatternType, string(contextJSON), x.Reason, x.Permanent,
		fmtTime(x.ExcludedAt), nullTime(x.ExpiresAt),
	)
	return err
}

func scanEntity(row rowScanner) (*lifecycle.Entity, error) {
	var e lifecycle.Entity
	var typ, state, history, sources, metadata, exclusions, feedback, createdAt, lastUpdated string
	err := row.Scan(&e.ID, &e.UserID, &typ, &e.Topic, &state, &history, &sources,
		&metadata, &exclusions, &feedback, &createdAt, &lastUpdated)
	if err != nil {
		return nil, err
	}
	e.Type = lifecycle.EntityType(typ)
	e.State = lifecycle.State(state)
	if err := json.Unmarshal([]byte(history), &e.StateHistory); err != nil {
		return nil, fmt.Errorf("decoding state_history: %w", err)
	}
	if err := json.Unmarshal([]byte(sources), &e.SourceEntries); err != nil {
		return nil, fmt.Errorf("decoding source_entries: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(exclusions), &e.Exclusions); err != nil {
		return nil, fmt.Errorf("decoding exclusions: %w", err)
	}
	if err := json.Unmarshal([]byte(feedback), &e.Feedback); err != nil {
		return nil, fmt.Errorf("decoding feedback: %w", err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return nil, fmt.Errorf("parsing last_updated: %w", err)
	}
	return &e, nil
}

func scanEntities(rows *sql.Rows) ([]*lifecycle.Entity, error) {
	var results []*lifecycle.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// GetEntity reads one entity outside a transaction (API reads).
func (s *Store) GetEntity(ctx context.Context, userID, id string) (*lifecycle.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM signal_states WHERE user_id = ? AND id = ?`, userID, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

// ListEntities returns the user's entities, optionally filtered by
// type. Pass an empty type for all.
func (s *Store) ListEntities(ctx context.Context, userID string, typ lifecycle.EntityType) ([]*lifecycle.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM signal_states WHERE user_id = ?`
	args := []any{userID}
	if typ != "" {
		query += ` AND type = ?`
		args = append(args, string(typ))
	}
	query += ` ORDER BY last_updated DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntities(rows)
}

// --- Exclusions ---

func (s *Store) SaveExclusion(ctx context.Context, x exclusion.Exclusion) error {
	return insertExclusion(ctx, s.db, x)
}

// ListExclusions returns the user's exclusion records for one pattern
// type, newest first. Expiry filtering is the registry's job.
func (s *Store) ListExclusions(ctx context.Context, userID, patternType string) ([]exclusion.Exclusion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, pattern_type, context, reason, permanent, excluded_at, expires_at
		FROM exclusions WHERE user_id = ? AND pattern_type = ? ORDER BY excluded_at DESC`,
		userID, patternType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []exclusion.Exclusion
	for rows.Next() {
		var x exclusion.Exclusion
		var contextJSON, excludedAt string
		var expiresAt sql.NullString
		if err := rows.Scan(&x.ID, &x.UserID, &x.PatternType, &contextJSON, &x.Reason,
			&x.Permanent, &excludedAt, &expiresAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(contextJSON), &x.Context); err != nil {
			return nil, fmt.Errorf("decoding exclusion context: %w", err)
		}
		if x.ExcludedAt, err = parseTime(excludedAt); err != nil {
			return nil, fmt.Errorf("parsing excluded_at: %w", err)
		}
		if x.ExpiresAt, err = scanNullTime(expiresAt); err != nil {
			return nil, fmt.Errorf("parsing expires_at: %w", err)
		}
		results = append(results, x)
	}
	return results, rows.Err()
}
