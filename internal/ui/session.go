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
	"log/slog"

	"annotator/internal/engine"
	"annotator/internal/journal"
)

// Record starts a journal session for the loaded image and current shapes.
// Every later event and notification is stored in it until the next call
// or StopRecording.
func (h *Host) Record(ctx context.Context, j *journal.Journal) (*journal.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.eng.Viewport().HasImage() {
		return nil, ErrNoImage
	}
	data, err := h.eng.DataJSON()
	if err != nil {
		return nil, err
	}
	n := h.eng.Viewport().Natural()
	sess, err := j.Begin(ctx, journal.Start{Source: h.info.Source, Width: n.W, Height: n.H, Data: data})
	if err != nil {
		return nil, err
	}
	h.stopLocked()
	h.rec = sess
	h.attached = sess.Attach(ctx, h.eng)
	h.log.Info("recording session", slog.Int64("session", sess.ID()), slog.String("src", h.info.Source))
	return sess, nil
}

// StopRecording detaches the current session, if any.
func (h *Host) StopRecording() {
	h.mu.Lock()
	h.stopLocked()
	h.mu.Unlock()
}

func (h *Host) stopLocked() {
	h.attached.Remove()
	h.attached = engine.Handle{}
	h.rec = nil
}
