/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import "testing"

func TestPointInRectAnyCornerOrder(t *testing.T) {
	if !PointInRect(Pt{20, 60}, Pt{50, 50}, Pt{10, 80}) {
		t.Fatalf("point should be inside reversed corners")
	}
	if PointInRect(Pt{51, 60}, Pt{10, 50}, Pt{50, 80}) {
		t.Fatalf("point right of rect should miss")
	}
}

func TestPointInCircleBoundary(t *testing.T) {
	if !PointInCircle(Pt{3, 4}, Pt{0, 0}, 5) {
		t.Fatalf("point on circle should hit")
	}
	if PointInCircle(Pt{3, 4.01}, Pt{0, 0}, 5) {
		t.Fatalf("point just outside should miss")
	}
}

func TestPointInPolygonConcave(t *testing.T) {
	// U shape opening upward
	u := []Pt{{0, 0}, {10, 0}, {10, 30}, {20, 30}, {20, 0}, {30, 0}, {30, 40}, {0, 40}}
	tests := []struct {
		p    Pt
		want bool
	}{
		{Pt{5, 10}, true},
		{Pt{25, 10}, true},
		{Pt{15, 10}, false}, // inside the notch
		{Pt{15, 35}, true},
		{Pt{35, 10}, false},
		{Pt{10, 15}, true}, // on an edge
	}
	for _, tt := range tests {
		if got := PointInPolygon(tt.p, u); got != tt.want {
			t.Errorf("PointInPolygon(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if PointInPolygon(Pt{1, 0}, []Pt{{0, 0}, {2, 0}}) {
		t.Fatalf("two vertices never contain a point")
	}
}

func TestPointNearPolyline(t *testing.T) {
	line := []Pt{{0, 0}, {100, 0}, {100, 100}}
	if !PointNearPolyline(Pt{50, 2.5}, line, 5) {
		t.Fatalf("point at half width should hit")
	}
	if PointNearPolyline(Pt{50, 2.6}, line, 5) {
		t.Fatalf("point beyond half width should miss")
	}
	if !PointNearPolyline(Pt{102, 50}, line, 5) {
		t.Fatalf("second segment should hit")
	}
	if PointNearPolyline(Pt{50, 50}, line, 5) {
		t.Fatalf("polyline must not be treated as closed")
	}
	if !PointNearPolyline(Pt{1, 1}, []Pt{{0, 0}}, 5) {
		t.Fatalf("single vertex behaves like a dot")
	}
}

func TestIsNested(t *testing.T) {
	outer := BoxRegion(Pt{0, 0}, Pt{100, 100})
	inner := PolyRegion([]Pt{{10, 10}, {50, 10}, {30, 40}})
	if !IsNested(inner, outer) || !IsNested(outer, inner) {
		t.Fatalf("expected nesting in both argument orders")
	}
	crossing := BoxRegion(Pt{50, 50}, Pt{150, 150})
	if IsNested(crossing, outer) {
		t.Fatalf("overlapping boxes are not nested")
	}
	if IsNested(Region{Box: true}, outer) {
		t.Fatalf("degenerate region must not nest")
	}
}
