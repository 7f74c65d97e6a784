/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package shape

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"annotator/internal/vector"
)

// record is the JSON form. Dot and Circle store coor as a single point,
// every other kind as a list of points.
type record struct {
	Type     Kind            `json:"type"`
	Index    int             `json:"index"`
	Label    string          `json:"label,omitempty"`
	UUID     string          `json:"uuid,omitempty"`
	Active   bool            `json:"active,omitempty"`
	Creating bool            `json:"creating,omitempty"`
	Dragging bool            `json:"dragging,omitempty"`
	Hide     bool            `json:"hide,omitempty"`
	Coor     json.RawMessage `json:"coor"`
	Radius   float64         `json:"radius,omitempty"`
	Style
}

func singlePoint(k Kind) bool { return k == Dot || k == Circle }

func (s Shape) MarshalJSON() ([]byte, error) {
	var coor any = s.Coor
	if singlePoint(s.Kind) {
		coor = s.Center()
	}
	raw, err := json.Marshal(coor)
	if err != nil {
		return nil, err
	}
	return json.Marshal(record{
		Type: s.Kind, Index: s.Index, Label: s.Label, UUID: s.UUID,
		Active: s.Active, Creating: s.Creating, Dragging: s.Dragging, Hide: s.Hide,
		Coor: raw, Radius: s.Radius, Style: s.Style,
	})
}

func (s *Shape) UnmarshalJSON(b []byte) error {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	*s = Shape{
		Kind: r.Type, Index: r.Index, Label: r.Label, UUID: r.UUID,
		Active: r.Active, Creating: r.Creating, Dragging: r.Dragging, Hide: r.Hide,
		Radius: r.Radius, Style: r.Style,
	}
	if len(r.Coor) == 0 || string(r.Coor) == "null" {
		return nil
	}
	// Accept both layouts for every kind; only the marshalled form is strict.
	var many []vector.Pt
	if err := json.Unmarshal(r.Coor, &many); err == nil {
		s.Coor = many
		return nil
	}
	var one vector.Pt
	if err := json.Unmarshal(r.Coor, &one); err != nil {
		return fmt.Errorf("coor: %w", err)
	}
	s.Coor = []vector.Pt{one}
	return nil
}

//go:embed shape.schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return schema, schemaErr
}

// RecordError describes one rejected element of a bulk load.
type RecordError struct {
	Pos    int
	Reason string
}

func (e *RecordError) Error() string { return fmt.Sprintf("record %d: %s", e.Pos, e.Reason) }

// DecodeRecords parses a JSON array of shape records. Every element is
// checked against the record schema and its geometry layout; rejected
// elements are reported and skipped, the rest are returned in input order.
// Only a document that is not an array at all fails as a whole.
func DecodeRecords(data []byte) ([]*Shape, []error, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, nil, fmt.Errorf("decode records: %w", err)
	}
	sch, err := compiledSchema()
	if err != nil {
		return nil, nil, fmt.Errorf("compile record schema: %w", err)
	}
	var (
		out  []*Shape
		errs []error
	)
	for i, raw := range raws {
		res, err := sch.Validate(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			errs = append(errs, &RecordError{Pos: i, Reason: err.Error()})
			continue
		}
		if !res.Valid() {
			msgs := make([]string, 0, len(res.Errors()))
			for _, e := range res.Errors() {
				msgs = append(msgs, e.String())
			}
			errs = append(errs, &RecordError{Pos: i, Reason: strings.Join(msgs, "; ")})
			continue
		}
		var s Shape
		if err := json.Unmarshal(raw, &s); err != nil {
			errs = append(errs, &RecordError{Pos: i, Reason: err.Error()})
			continue
		}
		if err := s.CheckGeometry(); err != nil {
			errs = append(errs, &RecordError{Pos: i, Reason: err.Error()})
			continue
		}
		out = append(out, &s)
	}
	return out, errs, nil
}

// EncodeRecords writes shapes as an indented JSON array.
func EncodeRecords(shapes []*Shape) ([]byte, error) {
	if shapes == nil {
		shapes = []*Shape{}
	}
	return json.MarshalIndent(shapes, "", "  ")
}
