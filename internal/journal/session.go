/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"annotator/internal/engine"
	"annotator/internal/input"
	applog "annotator/internal/log"
	"annotator/internal/shape"
	"annotator/internal/version"
)

// ErrNoSession is returned when a session id is not in the store.
var ErrNoSession = errors.New("journal: no such session")

// Start describes the state a session begins from.
type Start struct {
	Source string
	Width  float64
	Height float64
	// Data is the initial shape record array; empty means no shapes.
	Data []byte
}

// SessionInfo is a stored session header.
type SessionInfo struct {
	ID        int64
	Source    string
	Width     float64
	Height    float64
	App       string
	Data      []byte
	StartedAt time.Time
	Events    int
}

// Entry is one stored notification.
type Entry struct {
	Seq     int64
	Name    engine.Name
	Message string
	Shape   *shape.Shape
	At      time.Time
}

// Session appends to one stored session. Its methods may be called from
// several goroutines.
type Session struct {
	j   *Journal
	id  int64
	log *slog.Logger

	mu   sync.Mutex
	seq  int64
	nseq int64
}

// Begin stores a new session header.
func (j *Journal) Begin(ctx context.Context, st Start) (*Session, error) {
	data := st.Data
	if len(data) == 0 {
		data = []byte("[]")
	}
	if !json.Valid(data) {
		return nil, errors.New("journal: initial data is not valid JSON")
	}
	var id int64
	err := j.db.QueryRowContext(ctx, j.rebind(`INSERT INTO sessions(source, width, height, app, data, started_at)
		VALUES(?, ?, ?, ?, ?, ?) RETURNING id`),
		st.Source, st.Width, st.Height, version.String(), string(data), time.Now().UTC().Format(time.RFC3339Nano)).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("journal: begin session: %w", err)
	}
	l := applog.WithSession(j.log, id)
	l.Info("session started", slog.String("src", st.Source))
	return &Session{j: j, id: id, log: l}, nil
}

// ID returns the stored session id.
func (s *Session) ID() int64 { return s.id }

// Record appends one input event.
func (s *Session) Record(ctx context.Context, ev input.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("journal: encode event: %w", err)
	}
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	if _, err := s.j.db.ExecContext(ctx, s.j.rebind(`INSERT INTO events(session_id, seq, kind, payload) VALUES(?, ?, ?, ?)`),
		s.id, seq, string(ev.Kind), string(payload)); err != nil {
		return fmt.Errorf("journal: record event %d: %w", seq, err)
	}
	return nil
}

// Dispatch records ev and then feeds it to e.
func (s *Session) Dispatch(ctx context.Context, e *engine.Engine, ev input.Event) error {
	if err := s.Record(ctx, ev); err != nil {
		return err
	}
	e.Dispatch(ev)
	return nil
}

// Notify appends one notification. Updated notifications are not stored.
func (s *Session) Notify(ctx context.Context, n engine.Notification) error {
	if n.Name == engine.Updated {
		return nil
	}
	var shapeJSON sql.NullString
	if n.Shape != nil {
		b, err := json.Marshal(n.Shape)
		if err != nil {
			return fmt.Errorf("journal: encode shape: %w", err)
		}
		shapeJSON = sql.NullString{String: string(b), Valid: true}
	}
	msg := n.Message
	if n.Name == engine.Load {
		msg = n.Source
	}
	s.mu.Lock()
	s.nseq++
	seq := s.nseq
	s.mu.Unlock()
	if _, err := s.j.db.ExecContext(ctx, s.j.rebind(`INSERT INTO notifications(session_id, seq, name, message, shape, at) VALUES(?, ?, ?, ?, ?, ?)`),
		s.id, seq, string(n.Name), msg, shapeJSON, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("journal: record notification %d: %w", seq, err)
	}
	return nil
}

// Attach stores every notification e emits until the handle is removed.
// Storage failures are logged, never surfaced to the engine.
func (s *Session) Attach(ctx context.Context, e *engine.Engine) engine.Handle {
	ctx = applog.ContextWith(ctx, slog.String("src", e.Source()))
	return e.SubscribeAll(func(n engine.Notification) {
		if err := s.Notify(ctx, n); err != nil {
			s.log.WarnContext(ctx, "notification not recorded", slog.String("name", string(n.Name)), slog.Any("err", err))
		}
	})
}

// Sessions lists stored sessions, newest first.
func (j *Journal) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT s.id, s.source, s.width, s.height, s.app, s.data, s.started_at,
		(SELECT COUNT(*) FROM events e WHERE e.session_id = s.id)
		FROM sessions s ORDER BY s.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("journal: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []SessionInfo
	for rows.Next() {
		info, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Session returns one stored session header.
func (j *Journal) Session(ctx context.Context, id int64) (SessionInfo, error) {
	row := j.db.QueryRowContext(ctx, j.rebind(`SELECT s.id, s.source, s.width, s.height, s.app, s.data, s.started_at,
		(SELECT COUNT(*) FROM events e WHERE e.session_id = s.id)
		FROM sessions s WHERE s.id = ?`), id)
	info, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionInfo{}, fmt.Errorf("%w: %d", ErrNoSession, id)
	}
	return info, err
}

type scanner interface{ Scan(dest ...any) error }

func scanSession(r scanner) (SessionInfo, error) {
	var (
		info    SessionInfo
		data    string
		started string
	)
	if err := r.Scan(&info.ID, &info.Source, &info.Width, &info.Height, &info.App, &data, &started, &info.Events); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionInfo{}, err
		}
		return SessionInfo{}, fmt.Errorf("journal: scan session: %w", err)
	}
	info.Data = []byte(data)
	if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
		info.StartedAt = t
	}
	return info, nil
}

// Events returns the input events of a session in recording order.
func (j *Journal) Events(ctx context.Context, id int64) ([]input.Event, error) {
	rows, err := j.db.QueryContext(ctx, j.rebind(`SELECT seq, payload FROM events WHERE session_id = ? ORDER BY seq`), id)
	if err != nil {
		return nil, fmt.Errorf("journal: read events: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []input.Event
	for rows.Next() {
		var (
			seq     int64
			payload string
		)
		if err := rows.Scan(&seq, &payload); err != nil {
			return nil, fmt.Errorf("journal: scan event: %w", err)
		}
		var ev input.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("journal: decode event %d: %w", seq, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Notifications returns the stored notifications of a session in order.
func (j *Journal) Notifications(ctx context.Context, id int64) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, j.rebind(`SELECT seq, name, message, shape, at FROM notifications WHERE session_id = ? ORDER BY seq`), id)
	if err != nil {
		return nil, fmt.Errorf("journal: read notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			name  string
			shp   sql.NullString
			stamp string
		)
		if err := rows.Scan(&e.Seq, &name, &e.Message, &shp, &stamp); err != nil {
			return nil, fmt.Errorf("journal: scan notification: %w", err)
		}
		e.Name = engine.Name(name)
		if shp.Valid {
			var s shape.Shape
			if err := json.Unmarshal([]byte(shp.String), &s); err != nil {
				return nil, fmt.Errorf("journal: decode notification %d: %w", e.Seq, err)
			}
			e.Shape = &s
		}
		if t, err := time.Parse(time.RFC3339Nano, stamp); err == nil {
			e.At = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Replay loads the session's starting state into e and feeds it every
// recorded event, ticking after each one. It returns the number of events
// replayed.
func (j *Journal) Replay(ctx context.Context, id int64, e *engine.Engine) (int, error) {
	info, err := j.Session(ctx, id)
	if err != nil {
		return 0, err
	}
	events, err := j.Events(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := e.ImageLoaded(info.Source, info.Width, info.Height); err != nil {
		return 0, fmt.Errorf("journal: replay session %d: %w", id, err)
	}
	if _, err := e.SetDataJSON(info.Data); err != nil {
		return 0, fmt.Errorf("journal: replay session %d: %w", id, err)
	}
	e.Tick()
	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		e.Dispatch(ev)
		e.Tick()
	}
	j.log.Debug("session replayed", slog.Int64("session", id), slog.Int("events", len(events)))
	return len(events), nil
}
