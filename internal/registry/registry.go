/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package registry holds the ordered collection of shapes. Order is z-order:
// the last shape is drawn on top and hit-tested first. Index fields are kept
// dense (0..n-1) whenever the collection shrinks or is replaced.
//
// A Registry is not safe for concurrent use; the engine drives it from a
// single goroutine.
package registry

import (
	"log/slog"
	"sort"

	applog "annotator/internal/log"
	"annotator/internal/shape"
)

type Registry struct {
	shapes []*shape.Shape
	log    *slog.Logger
}

func New() *Registry {
	return &Registry{log: applog.WithComponent("registry")}
}

// WithLogger replaces the diagnostics logger.
func (r *Registry) WithLogger(l *slog.Logger) *Registry {
	r.log = l
	return r
}

func (r *Registry) Len() int { return len(r.shapes) }

func (r *Registry) At(i int) *shape.Shape {
	if i < 0 || i >= len(r.shapes) {
		return nil
	}
	return r.shapes[i]
}

// Shapes returns the live slice in z-order. Callers must not retain it
// across mutations.
func (r *Registry) Shapes() []*shape.Shape { return r.shapes }

// Last returns the topmost shape or nil.
func (r *Registry) Last() *shape.Shape { return r.At(len(r.shapes) - 1) }

// Append adds s on top and gives it the next index.
func (r *Registry) Append(s *shape.Shape) {
	s.Index = len(r.shapes)
	r.shapes = append(r.shapes, s)
}

// Pop removes and returns the topmost shape; used to roll back a creation.
func (r *Registry) Pop() *shape.Shape {
	n := len(r.shapes)
	if n == 0 {
		return nil
	}
	s := r.shapes[n-1]
	r.shapes[n-1] = nil
	r.shapes = r.shapes[:n-1]
	return s
}

// Active returns the single active shape or nil.
func (r *Registry) Active() *shape.Shape {
	for _, s := range r.shapes {
		if s.Active {
			return s
		}
	}
	return nil
}

// Activate makes s the only active shape. A nil s deactivates everything.
func (r *Registry) Activate(s *shape.Shape) {
	for _, it := range r.shapes {
		it.Active = it == s
	}
}

// Deactivate clears the active flag on every shape.
func (r *Registry) Deactivate() { r.Activate(nil) }

// MoveToTop moves the shape at position i to the end of the z-order. The
// index field is left alone so SortByIndex can restore the original order.
func (r *Registry) MoveToTop(i int) {
	if i < 0 || i >= len(r.shapes)-1 {
		return
	}
	s := r.shapes[i]
	copy(r.shapes[i:], r.shapes[i+1:])
	r.shapes[len(r.shapes)-1] = s
}

// SortByIndex restores z-order from the index fields.
func (r *Registry) SortByIndex() {
	sort.SliceStable(r.shapes, func(a, b int) bool { return r.shapes[a].Index < r.shapes[b].Index })
}

// Position returns the z-order position of s, or -1.
func (r *Registry) Position(s *shape.Shape) int {
	for i, it := range r.shapes {
		if it == s {
			return i
		}
	}
	return -1
}

// FindIndex returns the position of the shape whose Index equals index.
func (r *Registry) FindIndex(index int) int {
	for i, s := range r.shapes {
		if s.Index == index {
			return i
		}
	}
	return -1
}

// DeleteByIndex removes the shape whose Index equals index and re-densifies
// the remaining indices in z-order. It returns the removed shape or nil.
func (r *Registry) DeleteByIndex(index int) *shape.Shape {
	i := r.FindIndex(index)
	if i < 0 {
		return nil
	}
	s := r.shapes[i]
	r.shapes = append(r.shapes[:i], r.shapes[i+1:]...)
	r.reindex()
	return s
}

func (r *Registry) reindex() {
	for i, s := range r.shapes {
		s.Index = i
	}
}

// ReplaceAll swaps in a new collection. Entries with an unknown kind or a
// malformed geometry are dropped and logged. Transient gesture flags are
// cleared, rect corners normalized, and at most one shape (the topmost one
// marked active) stays active. It returns the number of dropped entries.
func (r *Registry) ReplaceAll(in []*shape.Shape) int {
	out := make([]*shape.Shape, 0, len(in))
	dropped := 0
	for pos, s := range in {
		if s == nil {
			dropped++
			r.log.Warn("dropping nil shape record", slog.Int("pos", pos))
			continue
		}
		if !s.Kind.Valid() {
			dropped++
			r.log.Warn("dropping shape with unknown type", slog.Int("pos", pos), slog.Int("type", int(s.Kind)))
			continue
		}
		if err := s.CheckGeometry(); err != nil {
			dropped++
			r.log.Warn("dropping malformed shape", slog.Int("pos", pos), slog.String("err", err.Error()))
			continue
		}
		s.Creating = false
		s.Dragging = false
		s.Normalize()
		out = append(out, s)
	}
	var active *shape.Shape
	for _, s := range out {
		if s.Active {
			active = s
		}
	}
	r.shapes = out
	r.reindex()
	r.Activate(active)
	return dropped
}

// Snapshot returns deep copies of all shapes in z-order.
func (r *Registry) Snapshot() []*shape.Shape {
	out := make([]*shape.Shape, len(r.shapes))
	for i, s := range r.shapes {
		out[i] = s.Clone()
	}
	return out
}

// Restore replaces the collection with copies of a snapshot, keeping the
// snapshot's order and index fields.
func (r *Registry) Restore(snap []*shape.Shape) {
	r.shapes = make([]*shape.Shape, len(snap))
	for i, s := range snap {
		r.shapes[i] = s.Clone()
	}
}
