package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the registry in a SQLite file. A save replaces the users
// table and the meta row inside one transaction, so every write is still a
// full snapshot.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *SQLiteStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			handle TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			joined_at TEXT NOT NULL,
			last_seen_at TEXT NOT NULL,
			points INTEGER NOT NULL DEFAULT 0,
			level INTEGER NOT NULL DEFAULT 1,
			interaction_count INTEGER NOT NULL DEFAULT 0,
			emotion_score INTEGER NOT NULL DEFAULT 0,
			mood TEXT NOT NULL DEFAULT 'neutral'
		)`,
		`CREATE TABLE IF NOT EXISTS registry_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL,
			saved_at TEXT NOT NULL,
			total_messages INTEGER NOT NULL DEFAULT 0,
			system TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Load() (*Document, error) {
	doc := &Document{Users: make(map[string]UserRecord)}

	var savedAt, system string
	err := s.db.QueryRow(`SELECT version, saved_at, total_messages, system FROM registry_meta WHERE id = 1`).
		Scan(&doc.Version, &savedAt, &doc.TotalMessages, &system)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	if doc.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
		return nil, fmt.Errorf("parse saved_at: %w", err)
	}
	if err := json.Unmarshal([]byte(system), &doc.System); err != nil {
		return nil, fmt.Errorf("parse system state: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT id, handle, display_name, joined_at, last_seen_at,
		       points, level, interaction_count, emotion_score, mood
		FROM users
	`)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			u                UserRecord
			joined, lastSeen string
			mood             string
		)
		if err := rows.Scan(&u.ID, &u.Handle, &u.DisplayName, &joined, &lastSeen,
			&u.Points, &u.Level, &u.InteractionCount, &u.EmotionScore, &mood); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if u.JoinedAt, err = time.Parse(time.RFC3339Nano, joined); err != nil {
			return nil, fmt.Errorf("parse joined_at for %s: %w", u.ID, err)
		}
		if u.LastSeenAt, err = time.Parse(time.RFC3339Nano, lastSeen); err != nil {
			return nil, fmt.Errorf("parse last_seen_at for %s: %w", u.ID, err)
		}
		u.Mood = Mood(mood)
		doc.Users[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStore) Save(doc *Document) error {
	system, err := json.Marshal(doc.System)
	if err != nil {
		return fmt.Errorf("marshal system state: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM users`); err != nil {
		return fmt.Errorf("clear users: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO users (id, handle, display_name, joined_at, last_seen_at,
		                   points, level, interaction_count, emotion_score, mood)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, u := range doc.Users {
		if _, err := stmt.Exec(u.ID, u.Handle, u.DisplayName,
			u.JoinedAt.Format(time.RFC3339Nano), u.LastSeenAt.Format(time.RFC3339Nano),
			u.Points, u.Level, u.InteractionCount, u.EmotionScore, string(u.Mood)); err != nil {
			return fmt.Errorf("insert user %s: %w", u.ID, err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO registry_meta (id, version, saved_at, total_messages, system)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			saved_at = excluded.saved_at,
			total_messages = excluded.total_messages,
			system = excluded.system
	`, doc.Version, doc.SavedAt.Format(time.RFC3339Nano), doc.TotalMessages, string(system)); err != nil {
		return fmt.Errorf("upsert meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
