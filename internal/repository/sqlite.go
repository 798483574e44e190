package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		// seq gives a total order inside a session even when created_at ties.
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			run_id TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			route_decision TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			destination TEXT,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME,
			error TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, ts)`,
		`CREATE TABLE IF NOT EXISTS documents (
			document_id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			file_type TEXT NOT NULL,
			file_size_bytes INTEGER NOT NULL,
			chunk_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error_message TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Add new columns for existing DBs (SQLite has limited ALTER TABLE support).
	if err := s.ensureColumn("messages", "route_decision", "ALTER TABLE messages ADD COLUMN route_decision TEXT"); err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, created_at) VALUES (?, ?)`,
		session.SessionID, session.CreatedAt)
	return err
}

// GetSession retrieves a session by ID. It returns nil, nil when absent.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, created_at FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &session.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// CreateMessage appends a message. Re-inserting an existing message_id is a no-op.
func (s *SQLiteStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	var metadata sql.NullString
	if message.Metadata != nil {
		b, err := json.Marshal(message.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, run_id, role, content, route_decision, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(message_id) DO NOTHING`,
		message.MessageID, message.SessionID, nullString(message.RunID), message.Role, message.Content,
		nullString(string(message.RouteDecision)), metadata, message.CreatedAt)
	return err
}

// GetMessages returns the most recent limit messages of a session, oldest first.
// A non-positive limit returns the whole session.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	query := `SELECT message_id, session_id, run_id, role, content, route_decision, metadata, created_at
		FROM messages WHERE session_id = ? ORDER BY seq DESC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var runID, route, metadata sql.NullString
		if err := rows.Scan(&msg.MessageID, &msg.SessionID, &runID, &msg.Role, &msg.Content, &route, &metadata, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if runID.Valid {
			msg.RunID = runID.String
		}
		if route.Valid {
			msg.RouteDecision = domain.Destination(route.String)
		}
		if metadata.Valid && metadata.String != "" {
			var md domain.Metadata
			if err := json.Unmarshal([]byte(metadata.String), &md); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of %s: %w", msg.MessageID, err)
			}
			msg.Metadata = &md
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(messages)
	return messages, nil
}

// CreateRun creates a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, session_id, destination, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.SessionID, nullString(string(run.Destination)), run.Status, run.StartedAt)
	return err
}

// GetRun retrieves a run by ID. It returns nil, nil when absent.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	var run domain.Run
	var destination, errData sql.NullString
	var endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, session_id, destination, status, started_at, ended_at, error FROM runs WHERE run_id = ?`,
		runID).Scan(&run.RunID, &run.SessionID, &destination, &run.Status, &run.StartedAt, &endedAt, &errData)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if destination.Valid {
		run.Destination = domain.Destination(destination.String)
	}
	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}
	if errData.Valid {
		run.Error = json.RawMessage(errData.String)
	}
	return &run, nil
}

// UpdateRunDestination records the routed destination of a run.
func (s *SQLiteStore) UpdateRunDestination(ctx context.Context, runID string, destination domain.Destination) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET destination = ? WHERE run_id = ?`,
		destination, runID)
	return err
}

// UpdateRunCompleted updates a run to completed state.
func (s *SQLiteStore) UpdateRunCompleted(ctx context.Context, runID string, status domain.RunStatus, errData []byte) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, ended_at = ?, error = ? WHERE run_id = ?`,
		status, now, nullStringBytes(errData), runID)
	return err
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, run_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.RunID, event.Ts, event.Type, nullStringBytes(event.Payload))
	return err
}

// GetEvents retrieves events for a run in timestamp order.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID string, afterTs int64, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, run_id, ts, type, payload FROM events WHERE run_id = ?`
	args := []interface{}{runID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	query += ` ORDER BY ts ASC, rowid ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var event domain.Event
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.RunID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
