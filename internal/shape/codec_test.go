/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package shape

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeRecordsDropsInvalidElements(t *testing.T) {
	doc := `[
		{"type": 1, "coor": [[10, 10], [50, 40]], "label": "car"},
		{"type": 7, "coor": [[0, 0]]},
		{"type": 3, "coor": [5, 6]},
		"not an object",
		{"type": 2, "coor": [[0, 0], [1, 1]]},
		{"type": 5, "coor": [20, 20], "radius": 8, "strokeStyle": "#00f"}
	]`
	shapes, errs, err := DecodeRecords([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeRecords: %v", err)
	}
	if len(shapes) != 3 {
		t.Fatalf("accepted %d shapes, want 3", len(shapes))
	}
	if len(errs) != 3 {
		t.Fatalf("rejected %d records, want 3: %v", len(errs), errs)
	}
	var re *RecordError
	if !asRecordError(errs[0], &re) || re.Pos != 1 {
		t.Fatalf("first rejection should be record 1, got %v", errs[0])
	}
	if shapes[1].Kind != Dot || shapes[1].Center().X != 5 {
		t.Fatalf("dot decoded wrongly: %+v", shapes[1])
	}
	if shapes[2].Style.StrokeStyle != "#00f" || shapes[2].Radius != 8 {
		t.Fatalf("circle style lost: %+v", shapes[2])
	}
}

func asRecordError(err error, target **RecordError) bool {
	re, ok := err.(*RecordError)
	if ok {
		*target = re
	}
	return ok
}

func TestDecodeRecordsRejectsNonArray(t *testing.T) {
	if _, _, err := DecodeRecords([]byte(`{"type":1}`)); err == nil {
		t.Fatalf("expected error for non-array document")
	}
}

func TestEncodeSinglePointKinds(t *testing.T) {
	b, err := EncodeRecords([]*Shape{
		{Kind: Dot, Coor: pts(1, 2)},
		{Kind: Line, Coor: pts(0, 0, 3, 4), Label: "edge"},
	})
	if err != nil {
		t.Fatalf("EncodeRecords: %v", err)
	}
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := strings.Join(strings.Fields(string(raw[0]["coor"])), ""); got != "[1,2]" {
		t.Fatalf("dot coor = %s", got)
	}
	if got := strings.Join(strings.Fields(string(raw[1]["coor"])), ""); got != "[[0,0],[3,4]]" {
		t.Fatalf("line coor = %s", got)
	}
	if b2, _ := EncodeRecords(nil); string(b2) != "[]" {
		t.Fatalf("empty encode = %s", b2)
	}
}
