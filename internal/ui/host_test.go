/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"annotator/internal/engine"
	"annotator/internal/input"
	"annotator/internal/journal"
	"annotator/internal/shape"
	"annotator/internal/vector"
)

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	path := filepath.Join(t.TempDir(), "page.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestHost(t *testing.T) *Host {
	t.Helper()
	h := NewHost(engine.DefaultOptions())
	if err := h.OpenImage(writePNG(t, 800, 600)); err != nil {
		t.Fatalf("OpenImage: %v", err)
	}
	return h
}

type eventLog []input.Event

func (l *eventLog) Record(_ context.Context, ev input.Event) error {
	*l = append(*l, ev)
	return nil
}

func TestHostDrawsRectWithMouse(t *testing.T) {
	h := newTestHost(t)
	var rec eventLog
	h.SetRecorder(&rec)
	h.Do(func(e *engine.Engine) { e.SetTool(shape.Rect) })
	h.MouseDown(200, 180, input.ButtonPrimary)
	h.MouseMove(100, 100)
	if !h.MouseUp(100, 100, input.ButtonPrimary) {
		t.Fatalf("expected a frame after mouse up")
	}
	shapes := h.Engine().Shapes()
	if len(shapes) != 1 || shapes[0].Kind != shape.Rect {
		t.Fatalf("shapes = %+v", shapes)
	}
	c := shapes[0].Coor
	if c[0].X != 100 || c[0].Y != 100 || c[1].X != 200 || c[1].Y != 180 {
		t.Fatalf("corners = %v", c)
	}
	if len(rec) != 3 || rec[1].Button != input.ButtonPrimary {
		t.Fatalf("recorded = %+v", rec)
	}
	if b := h.Frame().Bounds(); b.Dx() != 800 || b.Dy() != 600 {
		t.Fatalf("frame bounds = %v", b)
	}
}

func TestHostScrollZoomsIn(t *testing.T) {
	h := newTestHost(t)
	h.Do(func(e *engine.Engine) { e.SetScrollZoom(true) })
	before := h.Engine().Viewport().Scale()
	h.Scroll(400, 300, 1)
	if after := h.Engine().Viewport().Scale(); after <= before {
		t.Fatalf("scroll up should zoom in: %v -> %v", before, after)
	}
}

func TestHostKeysDeleteActiveShape(t *testing.T) {
	h := newTestHost(t)
	h.Do(func(e *engine.Engine) {
		e.SetData([]*shape.Shape{{Kind: shape.Dot, Coor: []vector.Pt{{X: 50, Y: 50}}}})
	})
	h.MouseDown(50, 50, input.ButtonPrimary)
	h.MouseUp(50, 50, input.ButtonPrimary)
	if h.Engine().Active() == nil {
		t.Fatalf("expected dot to be selected")
	}
	if h.Key("F1") {
		t.Fatalf("unknown keys are dropped")
	}
	h.Key("BackSpace")
	if n := len(h.Engine().Shapes()); n != 0 {
		t.Fatalf("shapes left: %d", n)
	}
}

func TestKeyName(t *testing.T) {
	cases := map[string]string{
		"Escape":    "Escape",
		"BackSpace": "Backspace",
		"Delete":    "Delete",
		"Return":    "",
	}
	for in, want := range cases {
		if got := KeyName(in); got != want {
			t.Errorf("KeyName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHostDataAndExport(t *testing.T) {
	h := newTestHost(t)
	h.Do(func(e *engine.Engine) {
		e.SetData([]*shape.Shape{{Kind: shape.Circle, Coor: []vector.Pt{{X: 300, Y: 300}}, Radius: 40}})
	})
	dir := t.TempDir()
	data := filepath.Join(dir, "shapes.json")
	if err := h.SaveData(data); err != nil {
		t.Fatalf("SaveData: %v", err)
	}
	other := newTestHost(t)
	n, err := other.OpenData(data)
	if err != nil || n != 0 {
		t.Fatalf("OpenData = %d, %v", n, err)
	}
	if s := other.Engine().Shapes(); len(s) != 1 || s[0].Radius != 40 {
		t.Fatalf("loaded = %+v", s)
	}
	for _, name := range []string{"out.png", "out.pdf"} {
		p := filepath.Join(dir, name)
		if err := h.Export(p); err != nil {
			t.Fatalf("Export(%s): %v", name, err)
		}
		if fi, err := os.Stat(p); err != nil || fi.Size() == 0 {
			t.Fatalf("%s not written: %v", name, err)
		}
	}
	if err := NewHost(engine.DefaultOptions()).Export(filepath.Join(dir, "x.png")); err != ErrNoImage {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
}

func TestHostRecordsJournalSession(t *testing.T) {
	ctx := context.Background()
	j, err := journal.Open(ctx, journal.Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "j.db")})
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer j.Close()

	h := NewHost(engine.DefaultOptions())
	if _, err := h.Record(ctx, j); err != ErrNoImage {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
	h = newTestHost(t)
	sess, err := h.Record(ctx, j)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	h.Do(func(e *engine.Engine) { e.SetTool(shape.Dot) })
	h.MouseDown(40, 40, input.ButtonPrimary)
	h.MouseUp(40, 40, input.ButtonPrimary)
	h.StopRecording()
	h.MouseDown(300, 300, input.ButtonPrimary)

	evs, err := j.Events(ctx, sess.ID())
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 recorded events, got %d", len(evs))
	}
	notes, err := j.Notifications(ctx, sess.ID())
	if err != nil {
		t.Fatalf("Notifications: %v", err)
	}
	added := false
	for _, n := range notes {
		if n.Name == engine.Add {
			added = true
		}
	}
	if !added {
		t.Fatalf("add notification not stored: %+v", notes)
	}
}
