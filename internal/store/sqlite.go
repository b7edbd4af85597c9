package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/m-urubek/scio--progress-path/internal/domain"
	"github.com/m-urubek/scio--progress-path/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	alertMu sync.Mutex // serializes alert create/resolve to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS groups (
		group_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		goal_text TEXT NOT NULL,
		goal_kind TEXT NOT NULL,
		step_count INTEGER,
		confirmed INTEGER NOT NULL DEFAULT 0,
		join_token TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS goal_steps (
		group_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		description TEXT NOT NULL,
		PRIMARY KEY (group_id, position)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		nickname TEXT NOT NULL,
		device_token TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		completed INTEGER NOT NULL DEFAULT 0,
		off_topic_count INTEGER NOT NULL DEFAULT 0,
		last_activity_at INTEGER,
		joined_at INTEGER NOT NULL,
		inactivity_warned_at INTEGER
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_device ON sessions(group_id, device_token);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_nickname ON sessions(group_id, lower(nickname));

	CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		body TEXT NOT NULL,
		sender TEXT NOT NULL,
		contributor INTEGER NOT NULL DEFAULT 0,
		off_topic INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

	CREATE TABLE IF NOT EXISTS alerts (
		alert_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		resolved INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		resolved_at INTEGER
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_open ON alerts(session_id, kind) WHERE resolved = 0;
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateGroup persists a new unconfirmed group with its interpreted steps.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *domain.Group, steps []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin group transaction: %w", err)
	}
	defer rollback(tx)

	var stepCount interface{}
	if group.StepCount != nil {
		stepCount = *group.StepCount
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO groups (group_id, name, goal_text, goal_kind, step_count, confirmed, join_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		group.ID, group.Name, group.GoalText, string(group.GoalKind), stepCount,
		boolToInt(group.Confirmed), group.JoinToken, group.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}

	if err := insertSteps(ctx, tx, group.ID, steps); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit group: %w", err)
	}
	return nil
}

func insertSteps(ctx context.Context, tx *sql.Tx, groupID string, steps []string) error {
	for i, desc := range steps {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO goal_steps (group_id, position, description) VALUES (?, ?, ?)`,
			groupID, i, desc,
		); err != nil {
			return fmt.Errorf("insert goal step %d: %w", i, err)
		}
	}
	return nil
}

const groupColumns = `group_id, name, goal_text, goal_kind, step_count, confirmed, join_token, created_at`

func scanGroup(row *sql.Row) (*domain.Group, error) {
	var g domain.Group
	var kind string
	var stepCount sql.NullInt64
	var confirmed int
	var createdAt int64

	err := row.Scan(&g.ID, &g.Name, &g.GoalText, &kind, &stepCount, &confirmed, &g.JoinToken, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan group row: %w", err)
	}

	g.GoalKind = domain.GoalKind(kind)
	if stepCount.Valid {
		n := int(stepCount.Int64)
		g.StepCount = &n
	}
	g.Confirmed = confirmed != 0
	g.CreatedAt = time.Unix(createdAt, 0)
	return &g, nil
}

// GetGroup retrieves a group by ID.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*domain.Group, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE group_id = ?`, groupID)
	return scanGroup(row)
}

// GetGroupByJoinToken retrieves a group by its join token.
func (s *SQLiteStore) GetGroupByJoinToken(ctx context.Context, token string) (*domain.Group, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE join_token = ?`, token)
	return scanGroup(row)
}

// ConfirmGroup marks a group's interpretation as confirmed. Idempotent.
func (s *SQLiteStore) ConfirmGroup(ctx context.Context, groupID string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE groups SET confirmed = 1 WHERE group_id = ?`, groupID)
	if err != nil {
		return fmt.Errorf("confirm group: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ReinterpretGroup replaces an unconfirmed group's goal text, kind and steps.
func (s *SQLiteStore) ReinterpretGroup(ctx context.Context, groupID, goalText string, kind domain.GoalKind, steps []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reinterpret transaction: %w", err)
	}
	defer rollback(tx)

	var stepCount interface{}
	if kind == domain.GoalPercentage {
		stepCount = len(steps)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE groups SET goal_text = ?, goal_kind = ?, step_count = ?
		WHERE group_id = ? AND confirmed = 0`,
		goalText, string(kind), stepCount, groupID,
	)
	if err != nil {
		return fmt.Errorf("update group interpretation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		// Distinguish missing group from already-confirmed group.
		var confirmed int
		err := tx.QueryRowContext(ctx, `SELECT confirmed FROM groups WHERE group_id = ?`, groupID).Scan(&confirmed)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check group confirmation: %w", err)
		}
		return ErrGroupConfirmed
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM goal_steps WHERE group_id = ?`, groupID); err != nil {
		return fmt.Errorf("clear goal steps: %w", err)
	}
	if err := insertSteps(ctx, tx, groupID, steps); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reinterpret: %w", err)
	}
	return nil
}

// ListGroupSteps returns a group's ordered step descriptions.
func (s *SQLiteStore) ListGroupSteps(ctx context.Context, groupID string) ([]domain.GoalStep, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id, position, description FROM goal_steps
		WHERE group_id = ? ORDER BY position`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query goal steps: %w", err)
	}
	defer closeRows(rows, "goal steps")

	var steps []domain.GoalStep
	for rows.Next() {
		var step domain.GoalStep
		if err := rows.Scan(&step.GroupID, &step.Position, &step.Description); err != nil {
			return nil, fmt.Errorf("scan goal step row: %w", err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goal steps: %w", err)
	}
	return steps, nil
}

// CreateSession creates a participant session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.ParticipantSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, group_id, nickname, device_token, progress, completed,
			off_topic_count, last_activity_at, joined_at, inactivity_warned_at)
		VALUES (?, ?, ?, ?, 0, 0, 0, NULL, ?, NULL)`,
		session.ID, session.GroupID, session.Nickname, session.DeviceToken, session.JoinedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrNicknameTaken
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// sessionColumns computes the active-alert fields from the alerts table so
// they can never drift from the unresolved-alerts invariant.
const sessionColumns = `
	s.session_id, s.group_id, s.nickname, s.device_token, s.progress, s.completed,
	s.off_topic_count, s.last_activity_at, s.joined_at, s.inactivity_warned_at,
	EXISTS(SELECT 1 FROM alerts a WHERE a.session_id = s.session_id AND a.resolved = 0),
	(SELECT a.kind FROM alerts a WHERE a.session_id = s.session_id AND a.resolved = 0 LIMIT 1)`

func scanSession(scanner interface{ Scan(...interface{}) error }) (*domain.ParticipantSession, error) {
	var sess domain.ParticipantSession
	var completed, activeAlert int
	var lastActivity, warnedAt sql.NullInt64
	var alertKind sql.NullString
	var joinedAt int64

	err := scanner.Scan(
		&sess.ID, &sess.GroupID, &sess.Nickname, &sess.DeviceToken, &sess.Progress, &completed,
		&sess.OffTopicCount, &lastActivity, &joinedAt, &warnedAt,
		&activeAlert, &alertKind,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.Completed = completed != 0
	sess.ActiveAlert = activeAlert != 0
	if alertKind.Valid {
		kind := domain.AlertKind(alertKind.String)
		sess.ActiveAlertKind = &kind
	}
	if lastActivity.Valid {
		ts := time.Unix(lastActivity.Int64, 0)
		sess.LastActivityAt = &ts
	}
	if warnedAt.Valid {
		ts := time.Unix(warnedAt.Int64, 0)
		sess.InactivityWarnedAt = &ts
	}
	sess.JoinedAt = time.Unix(joinedAt, 0)
	return &sess, nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.ParticipantSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.session_id = ?`, sessionID)
	return scanSession(row)
}

// GetSessionByDevice retrieves the session bound to a device within a group.
func (s *SQLiteStore) GetSessionByDevice(ctx context.Context, groupID, deviceToken string) (*domain.ParticipantSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions s
		WHERE s.group_id = ? AND s.device_token = ?`, groupID, deviceToken)
	sess, err := scanSession(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return sess, err
}

// ListSessions returns a group's sessions, alert-bearing first.
func (s *SQLiteStore) ListSessions(ctx context.Context, groupID string) ([]*domain.ParticipantSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions s
		WHERE s.group_id = ?
		ORDER BY EXISTS(SELECT 1 FROM alerts a WHERE a.session_id = s.session_id AND a.resolved = 0) DESC,
			COALESCE(s.last_activity_at, s.joined_at) DESC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer closeRows(rows, "sessions")

	var sessions []*domain.ParticipantSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// TouchActivity records participant activity on a session.
func (s *SQLiteStore) TouchActivity(ctx context.Context, sessionID string, at time.Time) error {
	result, err := s.execWithRetry(ctx, `
		UPDATE sessions SET last_activity_at = ?, inactivity_warned_at = NULL
		WHERE session_id = ?`, at.Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("touch activity: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("TouchActivity affected 0 rows", "session_id", sessionID)
	}
	return nil
}

// ApplyProgress commits a proposed absolute progress value. The WHERE guard is
// the enforcement point for the never-decreases invariant: a smaller or equal
// value matches no row and the stored progress is untouched.
func (s *SQLiteStore) ApplyProgress(ctx context.Context, sessionID string, value int) (bool, bool, error) {
	if value > domain.TerminalProgress {
		value = domain.TerminalProgress
	}
	if value < 0 {
		return false, false, nil
	}

	result, err := s.execWithRetry(ctx, `
		UPDATE sessions SET progress = ?,
			completed = CASE WHEN ? >= ? THEN 1 ELSE completed END
		WHERE session_id = ? AND progress < ?`,
		value, value, domain.TerminalProgress, sessionID, value,
	)
	if err != nil {
		return false, false, fmt.Errorf("apply progress: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, false, fmt.Errorf("get rows affected: %w", err)
	}

	applied := rows > 0
	// A session already at the terminal value can never match the guard again,
	// so an applied terminal value is always a fresh completion.
	completedNow := applied && value >= domain.TerminalProgress
	return applied, completedNow, nil
}

// IncrementOffTopic bumps the consecutive off-topic counter.
func (s *SQLiteStore) IncrementOffTopic(ctx context.Context, sessionID string) (int, error) {
	result, err := s.execWithRetry(ctx, `
		UPDATE sessions SET off_topic_count = off_topic_count + 1 WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("increment off-topic counter: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return 0, ErrNotFound
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `
		SELECT off_topic_count FROM sessions WHERE session_id = ?`, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("read off-topic counter: %w", err)
	}
	return count, nil
}

// SetOffTopicCount overwrites the consecutive off-topic counter.
func (s *SQLiteStore) SetOffTopicCount(ctx context.Context, sessionID string, count int) error {
	if _, err := s.execWithRetry(ctx, `
		UPDATE sessions SET off_topic_count = ? WHERE session_id = ?`, count, sessionID); err != nil {
		return fmt.Errorf("set off-topic counter: %w", err)
	}
	return nil
}

// AppendMessage persists a message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (message_id, session_id, body, sender, contributor, off_topic, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Body, string(msg.Sender),
		boolToInt(msg.Contributor), boolToInt(msg.OffTopic), msg.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// SetMessageVerdict records the classification of a participant message.
func (s *SQLiteStore) SetMessageVerdict(ctx context.Context, messageID string, offTopic, contributor bool) error {
	result, err := s.execWithRetry(ctx, `
		UPDATE messages SET off_topic = ?, contributor = ? WHERE message_id = ?`,
		boolToInt(offTopic), boolToInt(contributor), messageID)
	if err != nil {
		return fmt.Errorf("set message verdict: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...interface{}) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer closeRows(rows, "messages")

	var messages []*domain.Message
	for rows.Next() {
		var msg domain.Message
		var sender string
		var contributor, offTopic int
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Body, &sender, &contributor, &offTopic, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Sender = domain.SenderKind(sender)
		msg.Contributor = contributor != 0
		msg.OffTopic = offTopic != 0
		msg.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// ListMessages returns a session's messages in conversation order.
// rowid breaks timestamp ties in insertion order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	return s.queryMessages(ctx, `
		SELECT message_id, session_id, body, sender, contributor, off_topic, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at, rowid`, sessionID)
}

// ListKeyMessages returns participant messages flagged as progress contributors.
func (s *SQLiteStore) ListKeyMessages(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	return s.queryMessages(ctx, `
		SELECT message_id, session_id, body, sender, contributor, off_topic, created_at
		FROM messages WHERE session_id = ? AND sender = ? AND contributor = 1
		ORDER BY created_at, rowid`, sessionID, string(domain.SenderParticipant))
}

// CreateAlertIfNone creates an unresolved alert unless one of the same kind is
// already open. The partial unique index on (session_id, kind) WHERE resolved=0
// makes the concurrent case a no-op as well.
func (s *SQLiteStore) CreateAlertIfNone(ctx context.Context, sessionID string, kind domain.AlertKind) (*domain.Alert, bool, error) {
	s.alertMu.Lock()
	defer s.alertMu.Unlock()

	alert := &domain.Alert{
		ID:        newID(),
		SessionID: sessionID,
		Kind:      kind,
		CreatedAt: time.Now(),
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (alert_id, session_id, kind, resolved, created_at, resolved_at)
		SELECT ?, ?, ?, 0, ?, NULL
		WHERE NOT EXISTS (
			SELECT 1 FROM alerts WHERE session_id = ? AND kind = ? AND resolved = 0
		)`,
		alert.ID, sessionID, string(kind), alert.CreatedAt.Unix(), sessionID, string(kind),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("insert alert: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, false, nil
	}
	return alert, true, nil
}

// HasUnresolvedAlert reports whether an open alert of the given kind exists.
func (s *SQLiteStore) HasUnresolvedAlert(ctx context.Context, sessionID string, kind domain.AlertKind) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM alerts WHERE session_id = ? AND kind = ? AND resolved = 0)`,
		sessionID, string(kind)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check unresolved alert: %w", err)
	}
	return exists != 0, nil
}

// GetAlert retrieves an alert by ID.
func (s *SQLiteStore) GetAlert(ctx context.Context, alertID string) (*domain.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT alert_id, session_id, kind, resolved, created_at, resolved_at
		FROM alerts WHERE alert_id = ?`, alertID)

	var alert domain.Alert
	var kind string
	var resolved int
	var createdAt int64
	var resolvedAt sql.NullInt64

	err := row.Scan(&alert.ID, &alert.SessionID, &kind, &resolved, &createdAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert row: %w", err)
	}

	alert.Kind = domain.AlertKind(kind)
	alert.Resolved = resolved != 0
	alert.CreatedAt = time.Unix(createdAt, 0)
	if resolvedAt.Valid {
		ts := time.Unix(resolvedAt.Int64, 0)
		alert.ResolvedAt = &ts
	}
	return &alert, nil
}

// ResolveAlert marks an alert resolved. Already-resolved alerts are a no-op.
func (s *SQLiteStore) ResolveAlert(ctx context.Context, alertID string, at time.Time) (bool, *domain.Alert, error) {
	s.alertMu.Lock()
	defer s.alertMu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET resolved = 1, resolved_at = ? WHERE alert_id = ? AND resolved = 0`,
		at.Unix(), alertID)
	if err != nil {
		return false, nil, fmt.Errorf("resolve alert: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("get rows affected: %w", err)
	}

	alert, err := s.GetAlert(ctx, alertID)
	if err != nil {
		return false, nil, err
	}
	return rows > 0, alert, nil
}

// GetSilentSessions returns non-completed sessions with no open inactivity
// alert whose silence started at or before the cutoff.
func (s *SQLiteStore) GetSilentSessions(ctx context.Context, cutoff time.Time) ([]*domain.ParticipantSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions s
		WHERE s.completed = 0
		  AND COALESCE(s.last_activity_at, s.joined_at) <= ?
		  AND NOT EXISTS (
			SELECT 1 FROM alerts a
			WHERE a.session_id = s.session_id AND a.kind = ? AND a.resolved = 0
		  )`, cutoff.Unix(), string(domain.AlertInactivity))
	if err != nil {
		return nil, fmt.Errorf("query silent sessions: %w", err)
	}
	defer closeRows(rows, "silent sessions")

	var sessions []*domain.ParticipantSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate silent sessions: %w", err)
	}
	return sessions, nil
}

// Turn processing and watchdog sweeps write concurrently; despite the busy
// timeout a write can still surface SQLITE_BUSY under load. Hot single-row
// writes retry with exponential backoff before giving up.
const (
	writeRetries       = 3
	writeRetryBaseWait = 50 * time.Millisecond
)

func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	var err error
	for i := 0; i < writeRetries; i++ {
		result, err = s.db.ExecContext(ctx, query, args...)
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return result, err
		}
		if i < writeRetries-1 {
			delay := writeRetryBaseWait * time.Duration(1<<i)
			slog.Debug("Database locked, retrying write", "attempt", i+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return result, err
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.Warn("failed to rollback transaction", "error", err)
	}
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "rows", what, "error", err)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: UNIQUE")
}
