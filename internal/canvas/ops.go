/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"log/slog"
	"slices"

	"goslides/internal/scene"
	"goslides/internal/vector"
)

// AddDrawable appends d on top, selects it alone and returns its id. A missing
// or clashing id is replaced with a fresh one. Returns "" when nothing happened.
func (c *Controller) AddDrawable(d scene.Drawable) string {
	if d.Shape == nil {
		return ""
	}
	var id string
	c.mutateSelect("add_"+string(d.Kind()), func(sc *scene.Scene) ([]string, bool) {
		if d.ID == "" || sc.Index(d.ID) >= 0 {
			d.ID = scene.NewID()
		}
		if err := sc.Add(d); err != nil {
			return nil, false
		}
		id = d.ID
		return []string{id}, true
	})
	return id
}

// AddText adds the default text with the toolbar font.
func (c *Controller) AddText() string {
	fam, size := c.Font()
	return c.AddDrawable(scene.NewText(scene.DefaultText, fam, size))
}

func (c *Controller) AddRect() string   { return c.AddDrawable(scene.NewRect()) }
func (c *Controller) AddCircle() string { return c.AddDrawable(scene.NewCircle()) }
func (c *Controller) AddArrow() string  { return c.AddDrawable(scene.NewArrow()) }

// editSelected applies fn to every selected drawable; fn reports whether it
// changed the drawable.
func (c *Controller) editSelected(op string, fn func(d *scene.Drawable) bool) bool {
	c.mu.Lock()
	sel := slices.Clone(c.sel)
	c.mu.Unlock()
	if len(sel) == 0 {
		return false
	}
	return c.mutate(op, func(sc *scene.Scene) bool {
		changed := false
		for _, id := range sel {
			i := sc.Index(id)
			if i < 0 {
				continue
			}
			if fn(&sc.Objects[i]) {
				changed = true
			}
		}
		return changed
	})
}

func editText(fn func(t *scene.Text) bool) func(d *scene.Drawable) bool {
	return func(d *scene.Drawable) bool {
		t, ok := d.Shape.(scene.Text)
		if !ok {
			return false
		}
		if !fn(&t) {
			return false
		}
		d.Shape = t
		return true
	}
}

// SetFontSize sets the toolbar size and applies it to selected text.
func (c *Controller) SetFontSize(size float32) bool {
	if size <= 0 || !c.Interactive() {
		return false
	}
	c.mu.Lock()
	c.fontSize = size
	c.mu.Unlock()
	return c.editSelected("set_font_size", editText(func(t *scene.Text) bool {
		if t.FontSize == size {
			return false
		}
		t.FontSize = size
		return true
	}))
}

// SetFontFamily sets the toolbar family and applies it to selected text.
func (c *Controller) SetFontFamily(family string) bool {
	if family == "" || !c.Interactive() {
		return false
	}
	c.mu.Lock()
	c.fontFamily = family
	c.mu.Unlock()
	return c.editSelected("set_font_family", editText(func(t *scene.Text) bool {
		if t.FontFamily == family {
			return false
		}
		t.FontFamily = family
		return true
	}))
}

// ToggleTextStyle flips a style on the selected text. With several texts
// selected, the first one decides the new value.
func (c *Controller) ToggleTextStyle(style TextStyle) bool {
	target, decided := false, false
	return c.editSelected("toggle_text_style", editText(func(t *scene.Text) bool {
		field := &t.Bold
		switch style {
		case Italic:
			field = &t.Italic
		case Underline:
			field = &t.Underline
		}
		if !decided {
			target, decided = !*field, true
		}
		if *field == target {
			return false
		}
		*field = target
		return true
	}))
}

// SetText replaces the value of the selected text.
func (c *Controller) SetText(value string) bool {
	return c.editSelected("set_text", editText(func(t *scene.Text) bool {
		if t.Value == value {
			return false
		}
		t.Value = value
		return true
	}))
}

// SetColor paints the stroke of selected paths and freehand strokes and the
// fill of every other variant.
func (c *Controller) SetColor(hex string) (bool, error) {
	col, err := vector.ParseHex(hex)
	if err != nil {
		return false, err
	}
	return c.editSelected("set_color", func(d *scene.Drawable) bool {
		switch d.Kind() {
		case scene.KindPath, scene.KindStroke:
			if d.Stroke == col {
				return false
			}
			d.Stroke = col
		default:
			if d.Fill == col {
				return false
			}
			d.Fill = col
		}
		return true
	}), nil
}

// DeleteSelected removes the selected drawables and clears the selection.
func (c *Controller) DeleteSelected() bool {
	c.mu.Lock()
	sel := slices.Clone(c.sel)
	c.mu.Unlock()
	if len(sel) == 0 {
		return false
	}
	return c.mutateSelect("delete", func(sc *scene.Scene) ([]string, bool) {
		return []string{}, sc.Remove(sel...) > 0
	})
}

// MoveSelected translates the selection by dx,dy canvas units.
func (c *Controller) MoveSelected(dx, dy float32) bool {
	if dx == 0 && dy == 0 {
		return false
	}
	return c.editSelected("move", func(d *scene.Drawable) bool {
		d.Left += dx
		d.Top += dy
		return true
	})
}

// ScaleSelected multiplies the selection's scale by f.
func (c *Controller) ScaleSelected(f float32) bool {
	if f <= 0 || f == 1 {
		return false
	}
	return c.editSelected("scale", func(d *scene.Drawable) bool {
		d.ScaleX *= f
		d.ScaleY *= f
		return true
	})
}

// RotateSelected adds deg degrees to the selection's angle, normalized to [0,360).
func (c *Controller) RotateSelected(deg float32) bool {
	if deg == 0 {
		return false
	}
	return c.editSelected("rotate", func(d *scene.Drawable) bool {
		a := d.Angle + deg
		for a >= 360 {
			a -= 360
		}
		for a < 0 {
			a += 360
		}
		d.Angle = a
		return true
	})
}

// BringToFront moves the selection to the top, keeping relative order.
func (c *Controller) BringToFront() bool { return c.restack("bring_to_front", true) }

// SendToBack moves the selection to the bottom, keeping relative order.
func (c *Controller) SendToBack() bool { return c.restack("send_to_back", false) }

func (c *Controller) restack(op string, front bool) bool {
	c.mu.Lock()
	sel := slices.Clone(c.sel)
	c.mu.Unlock()
	if len(sel) == 0 {
		return false
	}
	return c.mutate(op, func(sc *scene.Scene) bool {
		// process in z-order so relative order survives
		slices.SortFunc(sel, func(a, b string) int { return sc.Index(a) - sc.Index(b) })
		changed := false
		if front {
			for _, id := range sel {
				changed = sc.BringToFront(id) || changed
			}
		} else {
			for i := len(sel) - 1; i >= 0; i-- {
				changed = sc.SendToBack(sel[i]) || changed
			}
		}
		return changed
	})
}

// Undo restores the state before the last edit on this slide.
func (c *Controller) Undo() bool { return c.history(true) }

// Redo re-applies the last undone edit.
func (c *Controller) Redo() bool { return c.history(false) }

func (c *Controller) history(back bool) bool {
	can := c.canEdit()
	c.mu.Lock()
	if !c.editableLocked(can) {
		c.mu.Unlock()
		return false
	}
	var blob []byte
	var ok bool
	if back {
		s, found := c.opts.History.Undo(c.slideID, c.doc)
		blob, ok = s.Blob, found
	} else {
		s, found := c.opts.History.Redo(c.slideID, c.doc)
		blob, ok = s.Blob, found
	}
	if !ok {
		c.mu.Unlock()
		return false
	}
	sc, err := scene.Deserialize(blob)
	if err != nil {
		c.log.Error("history snapshot unreadable", slog.Any("err", err))
		c.mu.Unlock()
		return false
	}
	doc, _ := scene.Serialize(sc)
	c.sc, c.doc, c.state = sc, doc, Ready
	c.sel = slices.DeleteFunc(c.sel, func(id string) bool { return c.sc.Index(id) < 0 })
	onChange := c.opts.OnChange
	out := append([]byte(nil), doc...)
	c.mu.Unlock()
	if onChange != nil {
		onChange(out)
	}
	return true
}

// Select replaces the selection with the ids that exist. Selection never emits OnChange.
func (c *Controller) Select(ids ...string) []string {
	can := c.canEdit()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.editableLocked(can) {
		return nil
	}
	c.sel = c.sel[:0]
	for _, id := range ids {
		if c.sc.Index(id) >= 0 && !slices.Contains(c.sel, id) {
			c.sel = append(c.sel, id)
		}
	}
	return slices.Clone(c.sel)
}

// SelectAt selects the top-most drawable under pt, or clears the selection.
func (c *Controller) SelectAt(pt vector.Pt) string {
	can := c.canEdit()
	fonts := c.fonts()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.editableLocked(can) {
		return ""
	}
	id, ok := c.sc.HitTest(pt, fonts)
	if !ok {
		c.sel = nil
		return ""
	}
	c.sel = []string{id}
	return id
}

func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sel = nil
}
