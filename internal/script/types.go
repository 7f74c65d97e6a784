/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package script replays scripted interaction sessions against an engine.
// A script is a JSON document: an optional background image, canvas size,
// engine flags and initial shapes, followed by a list of steps. Steps inject
// canonical input, call engine operations, check expectations or render the
// current frame.
package script

import (
	"encoding/json"
	"fmt"
)

type Script struct {
	Image   *Image          `json:"image,omitempty"`
	Canvas  *Canvas         `json:"canvas,omitempty"`
	Options Options         `json:"options"`
	Data    json.RawMessage `json:"data,omitempty"`
	Steps   []Step          `json:"steps"`
}

// Image names the background. A zero size is probed from the file.
type Image struct {
	Src    string  `json:"src"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

type Canvas struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Options struct {
	ReadOnly   bool   `json:"readOnly,omitempty"`
	Lock       bool   `json:"lock,omitempty"`
	Focus      bool   `json:"focus,omitempty"`
	ScrollZoom bool   `json:"scrollZoom,omitempty"`
	HitMode    string `json:"hitMode,omitempty"`
}

// Step is one scripted action. Only the fields its Action reads are set.
//
//	tool         kind
//	click        x y [button]
//	drag         fromX fromY toX toY [frames] [button]
//	down/move/up x y [button]
//	touch        phase touches
//	dblclick     x y
//	key          key
//	wheel        x y deltaY
//	contextmenu  x y
//	delete       index
//	readOnly/lock/focus/scrollZoom value
//	resize       width height
//	wait         ms
//	expect       [count] [state] [active] [notify]
//	snapshot     [label] [format]
//	undo, redo, fit, zoomIn, zoomOut
type Step struct {
	Action  string       `json:"action"`
	Kind    string       `json:"kind,omitempty"`
	X       float64      `json:"x,omitempty"`
	Y       float64      `json:"y,omitempty"`
	FromX   float64      `json:"fromX,omitempty"`
	FromY   float64      `json:"fromY,omitempty"`
	ToX     float64      `json:"toX,omitempty"`
	ToY     float64      `json:"toY,omitempty"`
	Frames  int          `json:"frames,omitempty"`
	Button  string       `json:"button,omitempty"`
	Phase   string       `json:"phase,omitempty"`
	Touches []TouchPoint `json:"touches,omitempty"`
	Key     string       `json:"key,omitempty"`
	DeltaY  float64      `json:"deltaY,omitempty"`
	Index   int          `json:"index,omitempty"`
	Value   bool         `json:"value,omitempty"`
	Width   float64      `json:"width,omitempty"`
	Height  float64      `json:"height,omitempty"`
	Ms      int          `json:"ms,omitempty"`
	Label   string       `json:"label,omitempty"`
	Format  string       `json:"format,omitempty"`
	Count   *int         `json:"count,omitempty"`
	State   string       `json:"state,omitempty"`
	Active  *int         `json:"active,omitempty"`
	Notify  string       `json:"notify,omitempty"`
}

type TouchPoint struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Error is a problem tied to a step. Step is -1 for document-level errors.
type Error struct {
	Step    int
	Action  string
	Message string
}

func (e Error) Error() string {
	if e.Step < 0 {
		return e.Message
	}
	if e.Action == "" {
		return fmt.Sprintf("step %d: %s", e.Step, e.Message)
	}
	return fmt.Sprintf("step %d (%s): %s", e.Step, e.Action, e.Message)
}
