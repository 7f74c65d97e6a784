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
	"errors"
	"path/filepath"
	"testing"
	"time"

	"annotator/internal/engine"
	"annotator/internal/input"
	"annotator/internal/shape"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), Config{DSN: filepath.Join(t.TempDir(), "journal.sqlite")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestOpenAppliesMigrationsOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "j.sqlite")
	for i := 0; i < 2; i++ {
		j, err := Open(ctx, Config{Driver: "sqlite", DSN: path})
		if err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		v, err := j.SchemaVersion(ctx)
		if err != nil || v != 2 {
			t.Fatalf("schema version = %d, %v", v, err)
		}
		_ = j.Close()
	}
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{"": SQLite, "sqlite3": SQLite, "pgx": Postgres, "PostgreSQL": Postgres} {
		got, err := ParseDialect(in)
		if err != nil || got != want {
			t.Errorf("ParseDialect(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDialect("duckdb"); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
	if _, err := Open(context.Background(), Config{Driver: "sqlite"}); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestRebindAndCredentials(t *testing.T) {
	pg := &Journal{dialect: Postgres}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("rebind = %q", got)
	}
	lite := &Journal{dialect: SQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite rebind = %q", got)
	}
	if got := withCredentials("postgres://db:5432/ann", "ann", "s3cret"); got != "postgres://ann:s3cret@db:5432/ann" {
		t.Fatalf("url credentials = %q", got)
	}
	if got := withCredentials("postgres://me@db/ann", "ann", "x"); got != "postgres://me@db/ann" {
		t.Fatalf("existing user must be kept, got %q", got)
	}
	if got := withCredentials("host=db dbname=ann", "ann", ""); got != "host=db dbname=ann user=ann" {
		t.Fatalf("kv credentials = %q", got)
	}
}

func TestRecordAndReplaySession(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	e := engine.New(engine.DefaultOptions())
	if err := e.ImageLoaded("scan.png", 800, 600); err != nil {
		t.Fatal(err)
	}
	sess, err := j.Begin(ctx, Start{Source: "scan.png", Width: 800, Height: 600})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	h := sess.Attach(ctx, e)
	defer h.Remove()

	e.SetTool(shape.Rect)
	for _, ev := range []input.Event{
		input.Mouse(input.Down, 50, 50, input.ButtonPrimary, at),
		input.Mouse(input.Move, 10, 80, input.ButtonPrimary, at),
		input.Mouse(input.Up, 10, 80, input.ButtonPrimary, at),
		input.Key("Delete", at),
	} {
		if err := sess.Dispatch(ctx, e, ev); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		e.Tick()
	}
	if len(e.Shapes()) != 0 {
		t.Fatalf("expected the rect to be deleted")
	}

	infos, err := j.Sessions(ctx)
	if err != nil || len(infos) != 1 {
		t.Fatalf("Sessions = %v, %v", infos, err)
	}
	if infos[0].Events != 4 || infos[0].Source != "scan.png" || infos[0].App == "" {
		t.Fatalf("unexpected session info %+v", infos[0])
	}
	notes, err := j.Notifications(ctx, sess.ID())
	if err != nil {
		t.Fatalf("Notifications: %v", err)
	}
	var names []engine.Name
	for _, n := range notes {
		names = append(names, n.Name)
	}
	if len(names) != 2 || names[0] != engine.Add || names[1] != engine.Delete {
		t.Fatalf("stored notifications %v", names)
	}
	if s := notes[0].Shape; s == nil || s.Kind != shape.Rect || s.Coor[0].X != 10 {
		t.Fatalf("stored shape %+v", notes[0].Shape)
	}

	events, err := j.Events(ctx, sess.ID())
	if err != nil || len(events) != 4 {
		t.Fatalf("Events = %d, %v", len(events), err)
	}
	if events[0].Phase != input.Down || events[0].Button != input.ButtonPrimary || !events[0].Time.Equal(at) {
		t.Fatalf("event round trip %+v", events[0])
	}

	// replay everything but the delete into a fresh engine
	re := engine.New(engine.DefaultOptions())
	re.SetTool(shape.Rect)
	n, err := j.Replay(ctx, sess.ID(), re)
	if err != nil || n != 4 {
		t.Fatalf("Replay = %d, %v", n, err)
	}
	if len(re.Shapes()) != 0 || re.Source() != "scan.png" {
		t.Fatalf("replay diverged: %d shapes", len(re.Shapes()))
	}
}

func TestReplayStartsFromInitialData(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)
	sess, err := j.Begin(ctx, Start{Source: "a.png", Width: 200, Height: 100,
		Data: []byte(`[{"type":3,"index":0,"coor":[20,20]}]`)})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := sess.Record(ctx, input.Key("Delete", time.Time{})); err != nil {
		t.Fatal(err)
	}
	e := engine.New(engine.Options{Width: 200, Height: 100})
	if _, err := j.Replay(ctx, sess.ID(), e); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(e.Shapes()) != 1 || e.Shapes()[0].Kind != shape.Dot {
		t.Fatalf("initial data not restored")
	}
	if _, err := j.Session(ctx, 99); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, err := j.Begin(ctx, Start{Source: "x", Width: 1, Height: 1, Data: []byte("{")}); err == nil {
		t.Fatalf("expected error for invalid initial data")
	}
}
