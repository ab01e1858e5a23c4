// Package storage persists driftline's durable state in a single
// SQLite database: journal entries, extracted signals, lifecycle
// entities, exclusions, engagement preferences, insights, and the
// background job queue.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/driftline-app/driftline/internal/engagement"
	"github.com/driftline-app/driftline/internal/gaps"
	"github.com/driftline-app/driftline/internal/reveal"
	"github.com/driftline-app/driftline/internal/signal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for entries, signals,
// lifecycle entities, and the supporting tables around them.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "driftline.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// nullTime formats a possibly-zero time as a NULLable column value.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return fmtTime(t)
}

func scanNullTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	return parseTime(ns.String)
}

// --- Entries ---

func (s *Store) SaveEntry(ctx context.Context, e Entry) error {
	domains, err := json.Marshal(e.Domains)
	if err != nil {
		return fmt.Errorf("encoding domains: %w", err)
	}
	version := e.ExtractionVersion
	if version == 0 {
		version = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries (id, user_id, content, domains, safety_flagged, warning_indicator, extraction_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Content, string(domains), e.SafetyFlagged, e.WarningIndicator,
		version, fmtTime(e.CreatedAt), fmtTime(e.UpdatedAt),
	)
	return err
}

func (s *Store) GetEntry(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, content, domains, safety_flagged, warning_indicator, extraction_version, created_at, updated_at
		FROM entries WHERE id = ?`, id)
	return scanEntry(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var domains, createdAt, updatedAt string
	err := row.Scan(&e.ID, &e.UserID, &e.Content, &domains, &e.SafetyFlagged,
		&e.WarningIndicator, &e.ExtractionVersion, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal([]byte(domains), &e.Domains); err != nil {
		return Entry{}, fmt.Errorf("decoding domains: %w", err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return Entry{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Entry{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return e, nil
}

// UpdateEntryContent replaces the entry text and touches updated_at.
// It does not bump the extraction version; re-processing owns that.
func (s *Store) UpdateEntryContent(ctx context.Context, id, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entries SET content = ?, updated_at = ? WHERE id = ?`,
		content, fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListRecentEntries(ctx context.Context, userID string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, content, domains, safety_flagged, warning_indicator, extraction_version, created_at, updated_at
		FROM entries WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// RecentEntries implements the entry source the gap safety gates read.
func (s *Store) RecentEntries(ctx context.Context, userID string, limit int) ([]gaps.EntrySnapshot, error) {
	entries, err := s.ListRecentEntries(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	snapshots := make([]gaps.EntrySnapshot, len(entries))
	for i, e := range entries {
		snapshots[i] = gaps.EntrySnapshot{
			ID:               e.ID,
			Domains:          e.Domains,
			SafetyFlagged:    e.SafetyFlagged,
			WarningIndicator: e.WarningIndicator,
			CreatedAt:        e.CreatedAt,
		}
	}
	return snapshots, nil
}

// --- Extraction versioning ---

func (s *Store) GetExtractionVersion(ctx context.Context, entryID string) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT extraction_version FROM entries WHERE id = ?`, entryID).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return v, err
}

// BumpExtractionVersion increments the entry's version marker and
// returns the new value, invalidating any extraction still in flight.
func (s *Store) BumpExtractionVersion(ctx context.Context, entryID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning version bump: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE entries SET extraction_version = extraction_version + 1, updated_at = ? WHERE id = ?`,
		fmtTime(time.Now()), entryID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}

	var v int
	if err := tx.QueryRowContext(ctx, `SELECT extraction_version FROM entries WHERE id = ?`, entryID).Scan(&v); err != nil {
		return 0, err
	}
	return v, tx.Commit()
}

// --- Signals ---

// ReplaceEntrySignals deletes all prior signals for the entry and
// inserts the new set in one transaction. Re-processing is always a
// wholesale replace, never a merge.
func (s *Store) ReplaceEntrySignals(ctx context.Context, entryID string, signals []signal.Signal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning signal replace: %w", err)
	}
	defer tx.Rollback()

	var userID string
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM entries WHERE id = ?`, entryID).Scan(&userID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM signals WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("deleting prior signals: %w", err)
	}

	now := fmtTime(time.Now())
	for _, sig := range signals {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO signals (id, entry_id, user_id, kind, content, target_day, target_date, sentiment, original_phrase, confidence, is_recurring_instance, recurring_pattern, occurrence_index, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), entryID, userID, string(sig.Kind), sig.Content, sig.TargetDay,
			fmtTime(sig.TargetDate), string(sig.Sentiment), sig.OriginalPhrase, sig.Confidence,
			sig.IsRecurringInstance, sig.RecurringPattern, sig.OccurrenceIndex, now,
		)
		if err != nil {
			return fmt.Errorf("inserting signal: %w", err)
		}
	}

	return tx.Commit()
}

const signalColumns = `kind, content, target_day, target_date, sentiment, original_phrase, confidence, is_recurring_instance, recurring_pattern, occurrence_index`

func scanSignals(rows *sql.Rows) ([]signal.Signal, error) {
	var results []signal.Signal
	for rows.Next() {
		var sig signal.Signal
		var kind, sentiment, targetDate string
		if err := rows.Scan(&kind, &sig.Content, &sig.TargetDay, &targetDate, &sentiment,
			&sig.OriginalPhrase, &sig.Confidence, &sig.IsRecurringInstance,
			&sig.RecurringPattern, &sig.OccurrenceIndex); err != nil {
			return nil, err
		}
		sig.Kind = signal.Kind(kind)
		sig.Sentiment = signal.Sentiment(sentiment)
		t, err := parseTime(targetDate)
		if err != nil {
			return nil, fmt.Errorf("parsing target_date: %w", err)
		}
		sig.TargetDate = t
		results = append(results, sig)
	}
	return results, rows.Err()
}

func (s *Store) ListEntrySignals(ctx context.Context, entryID string) ([]signal.Signal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE entry_id = ? ORDER BY target_date ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSignals(rows)
}

// ListUpcomingSignals returns the user's signals with target dates in
// [from, to), soonest first.
func (s *Store) ListUpcomingSignals(ctx context.Context, userID string, from, to time.Time) ([]signal.Signal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+signalColumns+` FROM signals
		WHERE user_id = ? AND target_date >= ? AND target_date < ?
		ORDER BY target_date ASC`,
		userID, fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSignals(rows)
}

// --- Coverage snapshots ---

// SetCoverageSnapshot stores the externally computed per-domain
// coverage aggregate. Driftline reads this; it never recomputes it.
func (s *Store) SetCoverageSnapshot(ctx context.Context, userID string, snap gaps.CoverageSnapshot) error {
	domains, err := json.Marshal(snap.Domains)
	if err != nil {
		return fmt.Errorf("encoding coverage domains: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO coverage_snapshots (user_id, domains, first_entry_date, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET domains = excluded.domains,
			first_entry_date = excluded.first_entry_date, last_updated = excluded.last_updated`,
		userID, string(domains), nullTime(snap.FirstEntryDate), fmtTime(snap.LastUpdated),
	)
	return err
}

// CoverageSnapshot implements the coverage source the gap detector
// reads. A user with no stored snapshot gets a zero snapshot, which
// the detector treats as insufficient history.
func (s *Store) CoverageSnapshot(ctx context.Context, userID string) (gaps.CoverageSnapshot, error) {
	var domains string
	var firstEntry sql.NullString
	var lastUpdated string
	err := s.db.QueryRowContext(ctx,
		`SELECT domains, first_entry_date, last_updated FROM coverage_snapshots WHERE user_id = ?`,
		userID).Scan(&domains, &firstEntry, &lastUpdated)
	if err == sql.ErrNoRows {
		return gaps.CoverageSnapshot{}, nil
	}
	if err != nil {
		return gaps.CoverageSnapshot{}, err
	}

	var snap gaps.CoverageSnapshot
	if err := json.Unmarshal([]byte(domains), &snap.Domains); err != nil {
		return gaps.CoverageSnapshot{}, fmt.Errorf("decoding coverage domains: %w", err)
	}
	if snap.FirstEntryDate, err = scanNullTime(firstEntry); err != nil {
		return gaps.CoverageSnapshot{}, fmt.Errorf("parsing first_entry_date: %w", err)
	}
	if snap.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return gaps.CoverageSnapshot{}, fmt.Errorf("parsing last_updated: %w", err)
	}
	return snap, nil
}

// --- Engagement preferences ---

// GetEngagementPrefs returns the user's engagement preferences, or
// zero-value preferences for a user with no stored row.
func (s *Store) GetEngagementPrefs(ctx context.Context, userID string) (engagement.Preferences, error) {
	var acceptance, snooze string
	err := s.db.QueryRowContext(ctx,
		`SELECT style_acceptance, snooze_until FROM engagement_prefs WHERE user_id = ?`,
		userID).Scan(&acceptance, &snooze)
	if err == sql.ErrNoRows {
		return engagement.Preferences{}, nil
	}
	if err != nil {
		return engagement.Preferences{}, err
	}

	var p engagement.Preferences
	if err := json.Unmarshal([]byte(acceptance), &p.StyleAcceptance); err != nil {
		return engagement.Preferences{}, fmt.Errorf("decoding style_acceptance: %w", err)
	}
	if err := json.Unmarshal([]byte(snooze), &p.SnoozeUntil); err != nil {
		return engagement.Preferences{}, fmt.Errorf("decoding snooze_until: %w", err)
	}
	return p, nil
}

func (s *Store) SetEngagementPrefs(ctx context.Context, userID string, p engagement.Preferences) error {
	acceptance, err := json.Marshal(p.StyleAcceptance)
	if err != nil {
		return fmt.Errorf("encoding style_acceptance: %w", err)
	}
	snooze, err := json.Marshal(p.SnoozeUntil)
	if err != nil {
		return fmt.Errorf("encoding snooze_until: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO engagement_prefs (user_id, style_acceptance, snooze_until, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET style_acceptance = excluded.style_acceptance,
			snooze_until = excluded.snooze_until, updated_at = excluded.updated_at`,
		userID, string(acceptance), string(snooze), fmtTime(time.Now()),
	)
	return err
}

// --- Insights ---

func (s *Store) SaveInsight(ctx context.Context, i reveal.Insight) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO insights (id, user_id, content, confidence, is_backfilled, backfilled_at, scheduled_reveal_date, revealed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.UserID, i.Content, i.Confidence, i.IsBackfilled,
		nullTime(i.BackfilledAt), nullTime(i.ScheduledRevealDate), i.Revealed, fmtTime(i.CreatedAt),
	)
	return err
}

func (s *Store) ListInsights(ctx context.Context, userID string) ([]reveal.Insight, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, content, confidence, is_backfilled, backfilled_at, scheduled_reveal_date, revealed, created_at
		FROM insights WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []reveal.Insight
	for rows.Next() {
		var i reveal.Insight
		var backfilledAt, revealDate sql.NullString
		var createdAt string
		if err := rows.Scan(&i.ID, &i.UserID, &i.Content, &i.Confidence, &i.IsBackfilled,
			&backfilledAt, &revealDate, &i.Revealed, &createdAt); err != nil {
			return nil, err
		}
		if i.BackfilledAt, err = scanNullTime(backfilledAt); err != nil {
			return nil, fmt.Errorf("parsing backfilled_at: %w", err)
		}
		if i.ScheduledRevealDate, err = scanNullTime(revealDate); err != nil {
			return nil, fmt.Errorf("parsing scheduled_reveal_date: %w", err)
		}
		if i.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, i)
	}
	return results, rows.Err()
}

// UpdateInsightSchedules commits a batch of reveal-date assignments as
// one transaction.
func (s *Store) UpdateInsightSchedules(ctx context.Context, insights []reveal.Insight) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning schedule update: %w", err)
	}
	defer tx.Rollback()

	for _, i := range insights {
		res, err := tx.ExecContext(ctx, `
			UPDATE insights SET is_backfilled = ?, backfilled_at = ?, scheduled_reveal_date = ?, revealed = ?
			WHERE id = ? AND user_id = ?`,
			i.IsBackfilled, nullTime(i.BackfilledAt), nullTime(i.ScheduledRevealDate),
			i.Revealed, i.ID, i.UserID)
		if err != nil {
			return fmt.Errorf("updating insight %s: %w", i.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("insight %s: %w", i.ID, ErrNotFound)
		}
	}

	return tx.Commit()
}

func (s *Store) MarkInsightRevealed(ctx context.Context, userID, insightID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE insights SET revealed = 1 WHERE id = ? AND user_id = ?`, insightID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

func (s *Store) EnqueueJob(ctx context.Context, job Job) error {
	now := fmtTime(time.Now())
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = fmtTime(job.RunAfter)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

// ClaimNextJob atomically selects and marks running the oldest runnable
// pending job of the given types. Returns nil when none is due.
func (s *Store) ClaimNextJob(ctx context.Context, types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := fmtTime(time.Now())
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]any, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRowContext(ctx, query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	if j.RunAfter, err = parseTime(runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = parseTime(now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (s *Store) CompleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailJob records a failed attempt. The job is retried with
// exponential backoff until max_attempts is exhausted, then marked
// failed for good.
func (s *Store) FailJob(ctx context.Context, id string, errMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRowContext(ctx, `SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.ExecContext(ctx, `UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.ExecContext(ctx, `UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}

	if err != nil {
		return err
	}

	return tx.Commit()
}
