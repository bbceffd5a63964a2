/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package scene is the in-memory model of one slide: an ordered list of
// drawables over a fixed-size canvas, plus the JSON document codec.
//
// Drawables are a tagged union. The tag is the Shape's Kind and the payload is
// the concrete Shape value; every switch over shapes in this package is
// exhaustive.
package scene

import (
	"fmt"

	"goslides/internal/textlayout"
	"goslides/internal/vector"

	"github.com/google/uuid"
)

const (
	CanvasWidth   = 960
	CanvasHeight  = 540
	PreviewFactor = 0.25
)

// Scene is one slide's visual content. Objects are in z-order, bottom first.
type Scene struct {
	Width      float32
	Height     float32
	Background vector.Color
	Objects    []Drawable
}

// New returns an empty white canvas of the canonical size.
func New() Scene {
	return Scene{Width: CanvasWidth, Height: CanvasHeight, Background: vector.White}
}

// NewID returns a fresh drawable id.
func NewID() string { return uuid.NewString() }

// Index returns the z-position of id or -1.
func (s Scene) Index(id string) int {
	for i, d := range s.Objects {
		if d.ID == id {
			return i
		}
	}
	return -1
}

// Find returns the drawable with the given id.
func (s Scene) Find(id string) (Drawable, bool) {
	if i := s.Index(id); i >= 0 {
		return s.Objects[i], true
	}
	return Drawable{}, false
}

// Add appends d on top of the z-order. Ids must be unique and non-empty.
func (s *Scene) Add(d Drawable) error {
	if d.ID == "" {
		return fmt.Errorf("add drawable: empty id")
	}
	if d.Shape == nil {
		return fmt.Errorf("add drawable %s: no shape", d.ID)
	}
	if s.Index(d.ID) >= 0 {
		return fmt.Errorf("add drawable: duplicate id %s", d.ID)
	}
	s.Objects = append(s.Objects, d)
	return nil
}

// Replace swaps in d for the drawable with the same id, keeping its z-position.
func (s *Scene) Replace(d Drawable) bool {
	i := s.Index(d.ID)
	if i < 0 {
		return false
	}
	s.Objects[i] = d
	return true
}

// Remove deletes the given ids and returns how many were removed.
func (s *Scene) Remove(ids ...string) int {
	if len(ids) == 0 {
		return 0
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.Objects[:0]
	n := 0
	for _, d := range s.Objects {
		if drop[d.ID] {
			n++
			continue
		}
		kept = append(kept, d)
	}
	clear(s.Objects[len(kept):])
	s.Objects = kept
	return n
}

// BringToFront moves id to the top of the z-order.
func (s *Scene) BringToFront(id string) bool {
	i := s.Index(id)
	if i < 0 {
		return false
	}
	if i == len(s.Objects)-1 {
		return false
	}
	d := s.Objects[i]
	copy(s.Objects[i:], s.Objects[i+1:])
	s.Objects[len(s.Objects)-1] = d
	return true
}

// SendToBack moves id to the bottom of the z-order.
func (s *Scene) SendToBack(id string) bool {
	i := s.Index(id)
	if i <= 0 {
		return false
	}
	d := s.Objects[i]
	copy(s.Objects[1:i+1], s.Objects[:i])
	s.Objects[0] = d
	return true
}

// Clone returns a deep copy.
func (s Scene) Clone() Scene {
	out := s
	if s.Objects != nil {
		out.Objects = make([]Drawable, len(s.Objects))
		for i, d := range s.Objects {
			out.Objects[i] = d.Clone()
		}
	}
	return out
}

// Scaled returns a copy with the canvas and every drawable's position and scale
// multiplied by f. The receiver is not modified.
func (s Scene) Scaled(f float32) Scene {
	out := s.Clone()
	out.Width *= f
	out.Height *= f
	for i := range out.Objects {
		g := &out.Objects[i].Geometry
		g.Left *= f
		g.Top *= f
		g.ScaleX *= f
		g.ScaleY *= f
	}
	return out
}

// Preview is Scaled(PreviewFactor).
func (s Scene) Preview() Scene { return s.Scaled(PreviewFactor) }

// HitTest returns the top-most drawable under pt.
func (s Scene) HitTest(pt vector.Pt, fonts textlayout.Provider) (string, bool) {
	for i := len(s.Objects) - 1; i >= 0; i-- {
		if s.Objects[i].Hit(pt, fonts) {
			return s.Objects[i].ID, true
		}
	}
	return "", false
}

// Count returns the number of drawables per kind.
func (s Scene) Count() map[Kind]int {
	out := make(map[Kind]int)
	for _, d := range s.Objects {
		out[d.Kind()]++
	}
	return out
}
