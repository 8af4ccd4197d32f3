package store

import (
	"database/sql"
	"time"
)

// Detection is a stored detection row.
type Detection struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Tick       int64     `json:"tick"`
	ClassID    int       `json:"class_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	W          float64   `json:"w"`
	H          float64   `json:"h"`
	CreatedAt  time.Time `json:"created_at"`
}

// LabelCount is how often a label was seen in a session.
type LabelCount struct {
	Label         string  `json:"label"`
	Count         int64   `json:"count"`
	MaxConfidence float64 `json:"max_confidence"`
}

// DetectionRepository provides access to stored detections.
type DetectionRepository struct {
	db *sql.DB
}

// Detections returns the detection repository for this store.
func (s *Store) Detections() *DetectionRepository {
	return &DetectionRepository{db: s.db}
}

// Create inserts the detections of one tick in a single transaction.
func (r *DetectionRepository) Create(sessionID string, tick int64, dets []Detection) error {
	if len(dets) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO detections (session_id, tick, class_id, label, confidence, x, y, w, h, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, d := range dets {
		if _, err := stmt.Exec(sessionID, tick, d.ClassID, d.Label, d.Confidence, d.X, d.Y, d.W, d.H, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListBySession returns a session's detections in tick order. A limit <= 0 returns all.
func (r *DetectionRepository) ListBySession(sessionID string, limit int) ([]Detection, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, session_id, tick, class_id, label, confidence, x, y, w, h, created_at
		 FROM detections
		 WHERE session_id = ?
		 ORDER BY tick, id
		 LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dets []Detection
	for rows.Next() {
		var d Detection
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Tick, &d.ClassID, &d.Label, &d.Confidence, &d.X, &d.Y, &d.W, &d.H, &d.CreatedAt); err != nil {
			return nil, err
		}
		dets = append(dets, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return dets, nil
}

// CountByLabel summarizes a session's detections per label, most frequent first.
func (r *DetectionRepository) CountByLabel(sessionID string) ([]LabelCount, error) {
	rows, err := r.db.Query(
		`SELECT label, COUNT(*), MAX(confidence)
		 FROM detections
		 WHERE session_id = ?
		 GROUP BY label
		 ORDER BY COUNT(*) DESC, label`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []LabelCount
	for rows.Next() {
		var c LabelCount
		if err := rows.Scan(&c.Label, &c.Count, &c.MaxConfidence); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}

	return counts, rows.Err()
}
