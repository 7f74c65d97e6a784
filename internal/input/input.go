/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package input turns raw host events (mouse, touch, keyboard, wheel) into
// the canonical pointer events the engine consumes. Raw events are plain
// values so they can be journaled and replayed.
package input

import (
	"fmt"
	"strings"
	"time"

	"annotator/internal/vector"
)

// Kind names the raw event source.
type Kind string

const (
	KindMouse       Kind = "mouse"
	KindTouch       Kind = "touch"
	KindKey         Kind = "key"
	KindWheel       Kind = "wheel"
	KindDoubleClick Kind = "dblclick"
	KindContextMenu Kind = "contextmenu"
)

// Phase is the stage of a pointer gesture.
type Phase int

const (
	PhaseNone Phase = iota
	Down
	Move
	Up
)

var phaseNames = [...]string{"", "down", "move", "up"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	s := strings.ToLower(string(b))
	for i, n := range phaseNames {
		if n == s {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", s)
}

// Button identifies a mouse button. Touches report ButtonPrimary.
type Button int

const (
	ButtonNone Button = iota
	ButtonPrimary
	ButtonSecondary
	ButtonMiddle
)

var buttonNames = [...]string{"", "primary", "secondary", "middle"}

func (b Button) String() string {
	if b < 0 || int(b) >= len(buttonNames) {
		return fmt.Sprintf("button(%d)", int(b))
	}
	return buttonNames[b]
}

func (b Button) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *Button) UnmarshalText(t []byte) error {
	s := strings.ToLower(string(t))
	switch s {
	case "left":
		s = "primary"
	case "right":
		s = "secondary"
	}
	for i, n := range buttonNames {
		if n == s {
			*b = Button(i)
			return nil
		}
	}
	return fmt.Errorf("unknown button %q", s)
}

// Touch is one contact point in canvas coordinates.
type Touch struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Event is a raw host event. Fields irrelevant to Kind stay zero.
//
// For mouse moves Button carries the held button (ButtonNone when hovering).
// For touch events Touches lists the contacts still down after the event
// and Changed the contacts that triggered it, so a final touch-up has an
// empty Touches and its position in Changed.
type Event struct {
	Kind    Kind      `json:"kind"`
	Phase   Phase     `json:"phase,omitempty"`
	X       float64   `json:"x,omitempty"`
	Y       float64   `json:"y,omitempty"`
	Button  Button    `json:"button,omitempty"`
	Touches []Touch   `json:"touches,omitempty"`
	Changed []Touch   `json:"changed,omitempty"`
	Key     string    `json:"key,omitempty"`
	DeltaY  float64   `json:"deltaY,omitempty"`
	Time    time.Time `json:"time"`
}

func Mouse(phase Phase, x, y float64, b Button, at time.Time) Event {
	return Event{Kind: KindMouse, Phase: phase, X: x, Y: y, Button: b, Time: at}
}

func TouchEv(phase Phase, touches, changed []Touch, at time.Time) Event {
	return Event{Kind: KindTouch, Phase: phase, Touches: touches, Changed: changed, Time: at}
}

func Key(key string, at time.Time) Event { return Event{Kind: KindKey, Key: key, Time: at} }

func Wheel(x, y, dy float64, at time.Time) Event {
	return Event{Kind: KindWheel, X: x, Y: y, DeltaY: dy, Time: at}
}

func DoubleClick(x, y float64, at time.Time) Event {
	return Event{Kind: KindDoubleClick, X: x, Y: y, Time: at}
}

func ContextMenu(x, y float64, at time.Time) Event {
	return Event{Kind: KindContextMenu, X: x, Y: y, Time: at}
}

// Pointer is the canonical pointer event.
type Pointer struct {
	Phase  Phase
	Pos    vector.Pt
	Button Button
	// Touches is the number of contacts down; 0 for mouse input.
	Touches int
	// Centroid and Spread describe the first two contacts of a pinch.
	Centroid vector.Pt
	Spread   float64
	Touch    bool
	Time     time.Time
}

// Primary reports a left-button or single-finger gesture.
func (p Pointer) Primary() bool {
	if p.Touch {
		return p.Touches == 1
	}
	return p.Button == ButtonPrimary
}

// Pinch reports a two-finger gesture.
func (p Pointer) Pinch() bool { return p.Touch && p.Touches >= 2 }

// Anchor is where zoom gestures pivot: the centroid during a pinch, the
// pointer otherwise.
func (p Pointer) Anchor() vector.Pt {
	if p.Pinch() {
		return p.Centroid
	}
	return p.Pos
}

// Normalize converts a mouse or touch event into a Pointer. Other kinds,
// and touch events without any contact, report false.
func Normalize(e Event) (Pointer, bool) {
	switch e.Kind {
	case KindMouse:
		return Pointer{Phase: e.Phase, Pos: vector.Pt{X: e.X, Y: e.Y}, Button: e.Button, Time: e.Time}, true
	case KindDoubleClick, KindContextMenu, KindWheel:
		return Pointer{Pos: vector.Pt{X: e.X, Y: e.Y}, Time: e.Time}, true
	case KindTouch:
		p := Pointer{Phase: e.Phase, Touch: true, Touches: len(e.Touches), Time: e.Time}
		var first Touch
		switch {
		case len(e.Touches) > 0:
			first = e.Touches[0]
		case len(e.Changed) > 0:
			first = e.Changed[0]
		default:
			return Pointer{}, false
		}
		p.Pos = vector.Pt{X: first.X, Y: first.Y}
		if p.Touches > 0 {
			p.Button = ButtonPrimary
		}
		if len(e.Touches) >= 2 {
			a := vector.Pt{X: e.Touches[0].X, Y: e.Touches[0].Y}
			b := vector.Pt{X: e.Touches[1].X, Y: e.Touches[1].Y}
			p.Centroid = a.Add(b).Div(2)
			p.Spread = a.Dist(b)
		}
		return p, true
	}
	return Pointer{}, false
}

// DefaultDoubleTap is the double-tap window.
const DefaultDoubleTap = 300 * time.Millisecond

// TapClock detects double-taps from consecutive tap timestamps. A tap within
// Window of the previous one is a double-tap and consumes both taps; a late
// tap simply starts a new pair.
type TapClock struct {
	Window time.Duration
	last   time.Time
	armed  bool
}

// Tap records a tap at t and reports whether it completes a double-tap.
func (c *TapClock) Tap(t time.Time) bool {
	w := c.Window
	if w <= 0 {
		w = DefaultDoubleTap
	}
	if c.armed {
		if d := t.Sub(c.last); d >= 0 && d < w {
			c.armed = false
			return true
		}
	}
	c.last = t
	c.armed = true
	return false
}

// Reset forgets the pending tap.
func (c *TapClock) Reset() { c.armed = false }
