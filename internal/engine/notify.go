/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package engine

import (
	"sync"

	"annotator/internal/shape"
)

// Name identifies a notification.
type Name string

const (
	// Select carries the newly active shape, or nil when nothing is.
	Select Name = "select"
	// Add carries a shape that finished creation.
	Add Name = "add"
	// Delete carries a removed shape.
	Delete Name = "delete"
	// Warn carries a message about a rejected gesture.
	Warn Name = "warn"
	// Updated carries the full collection after a redraw.
	Updated Name = "updated"
	// Load carries the source of a newly loaded image.
	Load Name = "load"
)

// Notification is the payload handed to subscribers. Only the fields that
// belong to Name are set.
type Notification struct {
	Name    Name
	Shape   *shape.Shape
	Shapes  []*shape.Shape
	Message string
	Source  string
}

type Handler func(Notification)

// Handle removes a subscription.
type Handle struct {
	bus *Bus
	id  uint64
}

// Remove unsubscribes the handler. It is safe to call more than once.
func (h Handle) Remove() {
	if h.bus != nil {
		h.bus.remove(h.id)
	}
}

type subscriber struct {
	id   uint64
	name Name // empty matches every notification
	fn   Handler
}

// Bus delivers notifications synchronously in subscription order.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber
}

// Subscribe registers fn for one notification name.
func (b *Bus) Subscribe(name Name, fn Handler) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscriber{id: b.nextID, name: name, fn: fn})
	return Handle{bus: b, id: b.nextID}
}

// SubscribeAll registers fn for every notification.
func (b *Bus) SubscribeAll(fn Handler) Handle { return b.Subscribe("", fn) }

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit calls every matching handler. Handlers may subscribe or unsubscribe
// while being called; changes apply from the next Emit.
func (b *Bus) Emit(n Notification) {
	b.mu.Lock()
	subs := append([]subscriber(nil), b.subs...)
	b.mu.Unlock()
	for _, s := range subs {
		if s.name == "" || s.name == n.Name {
			s.fn(n)
		}
	}
}
