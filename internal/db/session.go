package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/beat.report/internal/beat"
	"github.com/banshee-data/beat.report/internal/sink"
)

// ErrSessionNotFound is returned for an unknown session ID.
var ErrSessionNotFound = errors.New("session not found")

// Session is one run of the pipeline against a detector source.
type Session struct {
	ID         string     `json:"session_id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Source     string     `json:"source"`
	ConfigJSON string     `json:"config_json"`
}

// EventRow is a persisted beat or downbeat.
type EventRow struct {
	ID            int64           `json:"id"`
	SessionID     string          `json:"session_id"`
	Kind          beat.ActionKind `json:"kind"`
	StreamTime    float64         `json:"stream_time"`
	WallTime      float64         `json:"wall_time"`
	RelativeTime  float64         `json:"relative_time"`
	Period        float64         `json:"period"`
	ConfidenceStd float64         `json:"confidence_std"`
	Predicted     []float64       `json:"predicted"`
}

func unixSeconds(t time.Time) float64 { return float64(t.UnixNano()) / 1e9 }

func fromUnixSeconds(s float64) time.Time {
	sec := int64(s)
	return time.Unix(sec, int64((s-float64(sec))*1e9))
}

// StartSession records a new session and returns it. cfg is stored as
// JSON for later inspection and may be nil.
func (db *DB) StartSession(source string, startedAt time.Time, cfg any) (*Session, error) {
	cfgJSON := []byte("{}")
	if cfg != nil {
		b, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshal session config: %w", err)
		}
		cfgJSON = b
	}
	s := &Session{
		ID:         uuid.NewString(),
		StartedAt:  startedAt,
		Source:     source,
		ConfigJSON: string(cfgJSON),
	}
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, started_at, source, config_json) VALUES (?, ?, ?, ?)`,
		s.ID, unixSeconds(startedAt), s.Source, s.ConfigJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

// EndSession stamps the session's end time.
func (db *DB) EndSession(id string, endedAt time.Time) error {
	res, err := db.Exec(`UPDATE sessions SET ended_at = ? WHERE session_id = ?`, unixSeconds(endedAt), id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// RecordAction stores an event action against a session. Custom actions
// are not persisted.
func (db *DB) RecordAction(sessionID string, a beat.Action) error {
	rec, ok := beat.EventRecord(a)
	if !ok {
		return nil
	}
	predicted := rec.Predicted
	if predicted == nil {
		predicted = []float64{}
	}
	predJSON, err := json.Marshal(predicted)
	if err != nil {
		return fmt.Errorf("marshal predictions: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO beat_events (
			session_id, kind, stream_time, wall_time, relative_time,
			period, confidence_std, predicted_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, string(a.Kind()), rec.StreamTime, rec.WallTime, rec.RelativeTime,
		rec.Tempo.Period, rec.ConfidenceStd, string(predJSON),
	)
	if err != nil {
		return fmt.Errorf("insert beat event: %w", err)
	}
	return nil
}

// Session returns one session by ID.
func (db *DB) Session(id string) (*Session, error) {
	row := db.QueryRow(`SELECT session_id, started_at, ended_at, source, config_json FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, err
}

// Sessions returns the most recent sessions first. A non-positive limit
// returns all of them.
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		SELECT session_id, started_at, ended_at, source, config_json
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*Session, error) {
	var (
		s       Session
		started float64
		ended   sql.NullFloat64
	)
	if err := sc.Scan(&s.ID, &started, &ended, &s.Source, &s.ConfigJSON); err != nil {
		return nil, err
	}
	s.StartedAt = fromUnixSeconds(started)
	if ended.Valid {
		t := fromUnixSeconds(ended.Float64)
		s.EndedAt = &t
	}
	return &s, nil
}

// Events returns a session's events in stream order. A non-positive limit
// returns all of them.
func (db *DB) Events(sessionID string, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		SELECT id, session_id, kind, stream_time, wall_time, relative_time,
		       period, confidence_std, predicted_json
		FROM beat_events WHERE session_id = ?
		ORDER BY stream_time, id LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var (
			e        EventRow
			kind     string
			predJSON string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &kind, &e.StreamTime, &e.WallTime,
			&e.RelativeTime, &e.Period, &e.ConfidenceStd, &predJSON); err != nil {
			return nil, err
		}
		e.Kind = beat.ActionKind(kind)
		if err := json.Unmarshal([]byte(predJSON), &e.Predicted); err != nil {
			return nil, fmt.Errorf("decode predictions for event %d: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// IBIs returns the intervals between consecutive events of a session, in
// stream order.
func (db *DB) IBIs(sessionID string) ([]float64, error) {
	rows, err := db.Query(`SELECT stream_time FROM beat_events WHERE session_id = ? ORDER BY stream_time, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query stream times: %w", err)
	}
	defer rows.Close()

	var (
		out  []float64
		prev float64
		have bool
	)
	for rows.Next() {
		var t float64
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		if have {
			out = append(out, t-prev)
		}
		prev, have = t, true
	}
	return out, rows.Err()
}

// Recorder persists a session's actions. It implements sink.Sink; Close
// ends the session but leaves the database open.
type Recorder struct {
	db        *DB
	sessionID string
	now       func() time.Time
}

var _ sink.Sink = (*Recorder)(nil)

// Recorder returns a sink writing to the given session.
func (db *DB) Recorder(sessionID string) *Recorder {
	return &Recorder{db: db, sessionID: sessionID, now: time.Now}
}

// SessionID returns the session the recorder writes to.
func (r *Recorder) SessionID() string { return r.sessionID }

func (r *Recorder) Handle(a beat.Action) error {
	return r.db.RecordAction(r.sessionID, a)
}

func (r *Recorder) Close() error {
	return r.db.EndSession(r.sessionID, r.now())
}
