/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"encoding/json"
	"fmt"
	"image/color"
	"slices"
	"strings"

	"goslides/internal/scene"
	"goslides/internal/shell"
	"goslides/internal/vector"
)

// viewport places the slide inside a widget: its top-left corner in widget
// coordinates and the zoom it is drawn at.
type viewport struct {
	X, Y float32
	Zoom float32
}

// centeredViewport centers a slide drawn at zoom inside a w x h area.
func centeredViewport(w, h, zoom float32) viewport {
	sw, sh := scene.CanvasWidth*zoom, scene.CanvasHeight*zoom
	return viewport{X: max(0, (w-sw)/2), Y: max(0, (h-sh)/2), Zoom: zoom}
}

// fitViewport scales the slide to the largest size that fits w x h.
func fitViewport(w, h float32) viewport {
	zoom := min(w/scene.CanvasWidth, h/scene.CanvasHeight)
	if zoom <= 0 {
		zoom = 1
	}
	return centeredViewport(w, h, zoom)
}

func (v viewport) Size() (w, h float32) {
	return scene.CanvasWidth * v.Zoom, scene.CanvasHeight * v.Zoom
}

func (v viewport) ToSlide(x, y float32) vector.Pt {
	return vector.Pt{X: (x - v.X) / v.Zoom, Y: (y - v.Y) / v.Zoom}
}

func (v viewport) ToWidget(p vector.Pt) (x, y float32) {
	return v.X + p.X*v.Zoom, v.Y + p.Y*v.Zoom
}

// RectToWidget maps a slide-space rectangle into widget space.
func (v viewport) RectToWidget(r vector.Rect) vector.Rect {
	x, y := v.ToWidget(r.Min())
	return vector.R(x, y, r.W*v.Zoom, r.H*v.Zoom)
}

// hexOf formats a picked color as #rrggbb, dropping alpha.
func hexOf(c color.Color) string {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return fmt.Sprintf("#%02x%02x%02x", n.R, n.G, n.B)
}

// shellKey maps toolkit key names onto the commands the shell understands.
func shellKey(name string) string {
	switch name {
	case "Right", "Down", "PageDown":
		return shell.KeyRight
	case "Left", "Up", "PageUp":
		return shell.KeyLeft
	case "Space":
		return shell.KeySpace
	case "Escape":
		return shell.KeyEscape
	case "Delete":
		return shell.KeyDelete
	case "BackSpace":
		return shell.KeyBackspace
	}
	return ""
}

// prefStore is the subset of toolkit preferences the recent list needs.
type prefStore interface {
	StringWithFallback(key, fallback string) string
	SetString(key, value string)
}

// Recent presentation persistence for the gallery.
const recentPrefsKey = "recent.presentations"
const recentMax = 10

// loadRecent returns the remembered presentation ids that still exist.
func loadRecent(p prefStore, exists func(id string) bool) []string {
	raw := p.StringWithFallback(recentPrefsKey, "")
	var items []string
	if strings.TrimSpace(raw) != "" {
		_ = json.Unmarshal([]byte(raw), &items)
	}
	out := make([]string, 0, len(items))
	for _, id := range items {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		if exists == nil || exists(id) {
			out = append(out, id)
		}
	}
	return out
}

func saveRecent(p prefStore, items []string) {
	if len(items) > recentMax {
		items = items[:recentMax]
	}
	b, _ := json.Marshal(items)
	p.SetString(recentPrefsKey, string(b))
}

// addRecent moves id to the front of the recent list.
func addRecent(p prefStore, id string) {
	if strings.TrimSpace(id) == "" {
		return
	}
	rec := loadRecent(p, nil)
	out := append([]string{id}, slices.DeleteFunc(rec, func(s string) bool { return s == id })...)
	saveRecent(p, out)
}
