/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package undo

import (
	"testing"
	"time"
)

func TestUndoRedoBasic(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024 * 1024, MaxPerKey: 10, MinInterval: 10 * time.Millisecond})
	key := "a.png"
	t0 := time.Now()
	m.Push(Snapshot{Key: key, Blob: []byte("[]"), TS: t0})
	m.Push(Snapshot{Key: key, Blob: []byte("[a]"), TS: t0.Add(20 * time.Millisecond)})
	if _, keys, total := m.Stats(); keys != 1 || total != 2 {
		t.Fatalf("expected 1 key and 2 snapshots, got keys=%d total=%d", keys, total)
	}
	s, ok := m.Undo(key, []byte("[a,b]"))
	if !ok || string(s.Blob) != "[a]" {
		t.Fatalf("undo expected '[a]', got ok=%v blob=%q", ok, s.Blob)
	}
	if !m.CanRedo(key) {
		t.Fatalf("undo should enable redo")
	}
	s, ok = m.Redo(key, []byte("[a]"))
	if !ok || string(s.Blob) != "[a,b]" {
		t.Fatalf("redo expected '[a,b]', got ok=%v blob=%q", ok, s.Blob)
	}
	if _, ok := m.Redo(key, nil); ok {
		t.Fatalf("redo stack should be empty")
	}
}

func TestCoalesceKeepsOlderState(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024 * 1024, MaxPerKey: 10, MinInterval: 50 * time.Millisecond})
	key := "b.png"
	t0 := time.Now()
	m.Push(Snapshot{Key: key, Blob: []byte("1"), TS: t0})
	m.Push(Snapshot{Key: key, Blob: []byte("2"), TS: t0.Add(10 * time.Millisecond)})
	m.Push(Snapshot{Key: key, Blob: []byte("3"), TS: t0.Add(55 * time.Millisecond)})
	if _, _, total := m.Stats(); total != 1 {
		t.Fatalf("expected coalesced to 1 snapshot, got %d", total)
	}
	s, ok := m.Undo(key, []byte("4"))
	if !ok || string(s.Blob) != "1" {
		t.Fatalf("expected the state before the burst, got ok=%v blob=%q", ok, s.Blob)
	}
}

func TestPushInvalidatesRedo(t *testing.T) {
	m := NewManager(Config{})
	t0 := time.Now()
	m.Push(Snapshot{Key: "k", Blob: []byte("x"), TS: t0})
	m.Undo("k", []byte("y"))
	m.Push(Snapshot{Key: "k", Blob: []byte("x"), TS: t0.Add(time.Second)})
	if m.CanRedo("k") {
		t.Fatalf("a new change must clear redo")
	}
	if tb, _, _ := m.Stats(); tb != 1 {
		t.Fatalf("redo bytes not released, total=%d", tb)
	}
}

func TestCaps(t *testing.T) {
	m := NewManager(Config{MaxBytes: 20, MaxPerKey: 2, MinInterval: time.Millisecond})
	key := "c.png"
	for i := 0; i < 10; i++ {
		m.Push(Snapshot{Key: key, Blob: []byte("xxxxx"), TS: time.Now().Add(time.Duration(i) * time.Second)})
	}
	if _, _, total := m.Stats(); total > 2 {
		t.Fatalf("expected MaxPerKey cap to limit to 2, got %d", total)
	}
}

func TestClearAndStats(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024, MaxPerKey: 10})
	m.Push(Snapshot{Key: "d", Blob: []byte("abcdef"), TS: time.Now()})
	tb, keys, total := m.Stats()
	if tb == 0 || keys != 1 || total != 1 {
		t.Fatalf("unexpected stats before clear: tb=%d keys=%d total=%d", tb, keys, total)
	}
	m.Clear("d")
	tb, keys, total = m.Stats()
	if tb != 0 || keys != 0 || total != 0 {
		t.Fatalf("expected cleared stats to be zero, got tb=%d keys=%d total=%d", tb, keys, total)
	}
}

func TestGlobalPruneAcrossKeys(t *testing.T) {
	m := NewManager(Config{MaxBytes: 8})
	t0 := time.Now()
	m.Push(Snapshot{Key: "one", Blob: []byte("xxxx"), TS: t0})
	m.Push(Snapshot{Key: "two", Blob: []byte("yyyy"), TS: t0.Add(time.Second)})
	m.Push(Snapshot{Key: "two", Blob: []byte("zzzz"), TS: t0.Add(2 * time.Second)})
	if m.CanUndo("one") {
		t.Fatalf("expected the oldest image history to be pruned")
	}
	if !m.CanUndo("two") {
		t.Fatalf("expected image two to keep history")
	}
}
