package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RichardoC/rfp-chat/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath opens a private in-memory database. Nothing survives a restart.
const MemoryPath = ":memory:"

var ErrNotFound = errors.New("session not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    document_name TEXT NOT NULL DEFAULT '',
    document_text TEXT NOT NULL DEFAULT '',
    document_pages INTEGER NOT NULL DEFAULT 0,
    document_tokens INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    last_active TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS messages_session ON messages(session_id, id);`

type Database struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Every connection to :memory: is a separate database, so keep exactly one.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Database{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}

func (db *Database) CreateSession(id string) (*models.Session, error) {
	now := db.now()
	_, err := db.db.Exec(`
        INSERT INTO sessions (id, created_at, last_active)
        VALUES (?, ?, ?)`, id, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &models.Session{ID: id, CreatedAt: now}, nil
}

// GetSession loads a session together with its full message history.
func (db *Database) GetSession(id string) (*models.Session, error) {
	sess := &models.Session{ID: id}
	err := db.db.QueryRow(`
        SELECT document_name, document_text, document_pages, document_tokens, created_at
        FROM sessions
        WHERE id = ?`, id).Scan(&sess.DocumentName, &sess.DocumentText, &sess.DocumentPages, &sess.DocumentTokens, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	sess.Messages, err = db.GetMessages(id)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (db *Database) Touch(id string) error {
	_, err := db.db.Exec("UPDATE sessions SET last_active = ? WHERE id = ?", db.now(), id)
	return err
}

func (db *Database) SaveMessage(msg *models.Message) error {
	msg.CreatedAt = db.now()
	query := `
        INSERT INTO messages (session_id, role, content, created_at)
        VALUES (?, ?, ?, ?)
        RETURNING id`

	return db.db.QueryRow(query, msg.SessionID, msg.Role, msg.Content, msg.CreatedAt).Scan(&msg.ID)
}

// GetMessages returns the transcript in insertion order.
func (db *Database) GetMessages(sessionID string) ([]models.Message, error) {
	rows, err := db.db.Query(`
        SELECT id, session_id, role, content, created_at
        FROM messages
        WHERE session_id = ?
        ORDER BY id ASC`, sessionID)
	if err != nil {
		return []models.Message{}, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return []models.Message{}, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// SetDocument stores the document of sess only if none is stored yet. It
// reports whether the row was updated.
func (db *Database) SetDocument(sess *models.Session) (bool, error) {
	result, err := db.db.Exec(`
        UPDATE sessions
        SET document_name = ?, document_text = ?, document_pages = ?, document_tokens = ?, last_active = ?
        WHERE id = ? AND document_text = ''`,
		sess.DocumentName, sess.DocumentText, sess.DocumentPages, sess.DocumentTokens, db.now(), sess.ID)
	if err != nil {
		return false, fmt.Errorf("failed to store document: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (db *Database) ClearDocument(id string) error {
	_, err := db.db.Exec(`
        UPDATE sessions
        SET document_name = '', document_text = '', document_pages = 0, document_tokens = 0
        WHERE id = ?`, id)
	return err
}

func (db *Database) DeleteSession(id string) error {
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM sessions WHERE id = ?", id); err != nil {
		return err
	}

	return tx.Commit()
}

// PruneSessions deletes sessions idle since before cutoff and returns the
// IDs it removed.
func (db *Database) PruneSessions(cutoff time.Time) ([]string, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT id FROM sessions WHERE last_active < ?", cutoff)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", id); err != nil {
			return nil, err
		}
		if _, err := tx.Exec("DELETE FROM sessions WHERE id = ?", id); err != nil {
			return nil, err
		}
	}

	return ids, tx.Commit()
}
