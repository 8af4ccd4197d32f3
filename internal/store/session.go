package store

import (
	"database/sql"
	"errors"
	"time"
)

// Session is one capture run, from start to stop.
type Session struct {
	ID        string     `json:"id"`
	Camera    int        `json:"camera"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Ticks     int64      `json:"ticks"`
	Skipped   int64      `json:"skipped"`
	Errors    int64      `json:"errors"`
}

// SessionStats are the counters written when a session stops.
type SessionStats struct {
	Ticks   int64
	Skipped int64
	Errors  int64
}

// SessionRepository provides access to capture sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new open session. StartedAt defaults to now.
func (r *SessionRepository) Create(sess *Session) error {
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, camera, started_at) VALUES (?, ?, ?)`,
		sess.ID, sess.Camera, sess.StartedAt,
	)
	return err
}

// Finish closes a session and stores its final counters.
func (r *SessionRepository) Finish(id string, stoppedAt time.Time, stats SessionStats) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET stopped_at = ?, ticks = ?, skipped = ?, errors = ? WHERE id = ?`,
		stoppedAt, stats.Ticks, stats.Skipped, stats.Errors, id,
	)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	row := r.db.QueryRow(
		`SELECT id, camera, started_at, stopped_at, ticks, skipped, errors
		 FROM sessions WHERE id = ?`,
		id,
	)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List returns the most recent sessions first. A limit <= 0 returns all.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, camera, started_at, stopped_at, ticks, skipped, errors
		 FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Delete removes a session and, through the foreign key, its detections.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectRow(result)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (*Session, error) {
	sess := &Session{}
	var stopped sql.NullTime
	if err := s.Scan(&sess.ID, &sess.Camera, &sess.StartedAt, &stopped, &sess.Ticks, &sess.Skipped, &sess.Errors); err != nil {
		return nil, err
	}
	if stopped.Valid {
		t := stopped.Time
		sess.StoppedAt = &t
	}
	return sess, nil
}

func expectRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
