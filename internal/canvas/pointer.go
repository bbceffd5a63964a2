/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"bytes"
	"log/slog"
	"slices"

	"goslides/internal/scene"
	"goslides/internal/vector"
)

// drag is an in-progress pointer gesture.
type drag struct {
	draw bool
	// freehand capture, brush sampled at drag start
	points []vector.Pt
	color  vector.Color
	width  float32

	// move gesture
	start  vector.Pt
	origin map[string]scene.Geometry
	prev   []byte
	live   *scene.Scene
	moved  bool
}

// ToggleDrawingMode switches between selection and freehand capture.
func (c *Controller) ToggleDrawingMode() Mode {
	can := c.canEdit()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.editableLocked(can) {
		return c.mode
	}
	if c.mode == ModeDraw {
		c.mode = ModeSelect
	} else {
		c.mode = ModeDraw
		c.sel = nil
	}
	c.drag = nil
	return c.mode
}

// SetBrushColor sets the freehand color for strokes started afterwards.
func (c *Controller) SetBrushColor(hex string) error {
	col, err := vector.ParseHex(hex)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.brushColor = col
	c.mu.Unlock()
	return nil
}

// SetBrushWidth sets the freehand width, clamped to 1..20.
func (c *Controller) SetBrushWidth(w float32) float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.brushWidth = clampBrush(w)
	return c.brushWidth
}

// PointerDown starts a stroke in drawing mode, or selects and starts moving
// the drawable under pt in selection mode.
func (c *Controller) PointerDown(pt vector.Pt) {
	can := c.canEdit()
	fonts := c.fonts()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.editableLocked(can) {
		return
	}
	if c.mode == ModeDraw {
		c.drag = &drag{draw: true, points: []vector.Pt{pt}, color: c.brushColor, width: c.brushWidth}
		return
	}
	id, ok := c.sc.HitTest(pt, fonts)
	if !ok {
		c.sel = nil
		c.drag = nil
		return
	}
	if !slices.Contains(c.sel, id) {
		c.sel = []string{id}
	}
	d := &drag{start: pt, origin: make(map[string]scene.Geometry, len(c.sel)), prev: bytes.Clone(c.doc)}
	for _, sid := range c.sel {
		if o, found := c.sc.Find(sid); found {
			d.origin[sid] = o.Geometry
		}
	}
	c.drag = d
}

// PointerMove extends the stroke or moves the selection. Moves are transient
// until PointerUp.
func (c *Controller) PointerMove(pt vector.Pt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.drag
	if d == nil || c.closed {
		return
	}
	if d.draw {
		if last := d.points[len(d.points)-1]; last != pt {
			d.points = append(d.points, pt)
		}
		return
	}
	live := c.sc.Clone()
	dx, dy := pt.X-d.start.X, pt.Y-d.start.Y
	for id, g := range d.origin {
		if i := live.Index(id); i >= 0 {
			live.Objects[i].Left = g.Left + dx
			live.Objects[i].Top = g.Top + dy
		}
	}
	d.live = &live
	d.moved = dx != 0 || dy != 0
}

// PointerUp finishes the gesture: a captured stroke becomes one freehand
// drawable, a move becomes one edit.
func (c *Controller) PointerUp(pt vector.Pt) {
	c.PointerMove(pt)
	can := c.canEdit()
	c.mu.Lock()
	d := c.drag
	c.drag = nil
	if d == nil || !c.editableLocked(can) {
		c.mu.Unlock()
		return
	}
	var notify func()
	if d.draw {
		stroke := scene.NewFreehand(d.points, d.color, d.width)
		next := c.sc.Clone()
		if err := next.Add(stroke); err == nil {
			notify, _ = c.commitLocked("draw", next, c.doc, nil)
		}
	} else if d.moved && d.live != nil {
		notify, _ = c.commitLocked("move", *d.live, d.prev, nil)
		c.log.Debug("moved selection", slog.Int("count", len(d.origin)))
	}
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
}
