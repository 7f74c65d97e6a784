/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package undo keeps per-image undo/redo history of the shape registry.
// Entries are encoded registry states captured before each change.
package undo

import (
	"sync"
	"time"
)

// Snapshot is an encoded registry state for one image source.
// Blob content is opaque to the manager; size is estimated as len(Blob).
type Snapshot struct {
	Key  string
	Blob []byte
	TS   time.Time
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap; older entries are pruned when exceeded.
	MaxBytes int
	// MaxPerKey limits the undo depth per image (0 means unlimited).
	MaxPerKey int
	// MinInterval coalesces snapshots pushed within the interval for the same
	// key. The older entry is kept since it holds the state before the burst.
	MinInterval time.Duration
}

// Manager provides in-memory undo/redo stacks per image source.
// It is safe for concurrent use.
type Manager struct {
	cfg  Config
	mu   sync.Mutex
	undo map[string][]Snapshot
	redo map[string][]Snapshot
	// accounting covers undo and redo entries
	totalBytes int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 * 1024 * 1024 // 16 MiB
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	return &Manager{cfg: cfg, undo: make(map[string][]Snapshot), redo: make(map[string][]Snapshot)}
}

// Push records the state before a change. Any new change invalidates redo
// for the key.
func (m *Manager) Push(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropRedoLocked(s.Key)
	stack := m.undo[s.Key]
	if n := len(stack); n > 0 && m.cfg.MinInterval > 0 {
		if s.TS.Sub(stack[n-1].TS) < m.cfg.MinInterval {
			// refresh the timestamp so a steady stream keeps coalescing
			stack[n-1].TS = s.TS
			return
		}
	}
	m.undo[s.Key] = append(stack, s)
	m.totalBytes += len(s.Blob)
	m.enforceCapsLocked(s.Key)
}

// Undo pops the latest state for key and parks current on the redo stack.
func (m *Manager) Undo(key string, current []byte) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[key]
	if len(stack) == 0 {
		return Snapshot{}, false
	}
	s := stack[len(stack)-1]
	m.undo[key] = stack[:len(stack)-1]
	m.totalBytes -= len(s.Blob)
	m.redo[key] = append(m.redo[key], Snapshot{Key: key, Blob: current, TS: s.TS})
	m.totalBytes += len(current)
	return s, true
}

// Redo pops the latest undone state for key and pushes current back on the
// undo stack.
func (m *Manager) Redo(key string, current []byte) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[key]
	if len(r) == 0 {
		return Snapshot{}, false
	}
	s := r[len(r)-1]
	m.redo[key] = r[:len(r)-1]
	m.totalBytes -= len(s.Blob)
	m.undo[key] = append(m.undo[key], Snapshot{Key: key, Blob: current, TS: s.TS})
	m.totalBytes += len(current)
	m.enforceCapsLocked(key)
	return s, true
}

// CanUndo and CanRedo report whether history exists for key.
func (m *Manager) CanUndo(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo[key]) > 0
}

func (m *Manager) CanRedo(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo[key]) > 0
}

// Clear drops the history of one image to free memory.
func (m *Manager) Clear(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.undo[key] {
		m.totalBytes -= len(s.Blob)
	}
	m.dropRedoLocked(key)
	delete(m.undo, key)
	delete(m.redo, key)
	if m.totalBytes < 0 {
		m.totalBytes = 0
	}
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, keys int, totalSnapshots int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys = len(m.undo)
	for _, v := range m.undo {
		totalSnapshots += len(v)
	}
	return m.totalBytes, keys, totalSnapshots
}

func (m *Manager) dropRedoLocked(key string) {
	for _, s := range m.redo[key] {
		m.totalBytes -= len(s.Blob)
	}
	m.redo[key] = nil
}

func (m *Manager) enforceCapsLocked(key string) {
	if m.cfg.MaxPerKey > 0 {
		stack := m.undo[key]
		if len(stack) > m.cfg.MaxPerKey {
			toDrop := len(stack) - m.cfg.MaxPerKey
			for i := 0; i < toDrop; i++ {
				m.totalBytes -= len(stack[i].Blob)
			}
			m.undo[key] = append([]Snapshot{}, stack[toDrop:]...)
		}
	}
	// Global memory cap: prune oldest across all images
	for m.cfg.MaxBytes > 0 && m.totalBytes > m.cfg.MaxBytes {
		oldestKey := ""
		found := false
		var oldestTS time.Time
		for k, stack := range m.undo {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldestKey, oldestTS, found = k, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := m.undo[oldestKey]
		m.totalBytes -= len(stack[0].Blob)
		m.undo[oldestKey] = stack[1:]
		if len(m.undo[oldestKey]) == 0 {
			delete(m.undo, oldestKey)
		}
	}
}
