/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package canvas binds one slide's scene to an editing surface. A Controller
// owns the scene of exactly one slide, applies edit operations when the caller
// may edit, and reports every logical edit through a single OnChange callback
// carrying the re-serialized scene. It has no persistence dependency.
package canvas

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"sync"
	"time"

	"goslides/internal/log"
	"goslides/internal/render"
	"goslides/internal/scene"
	"goslides/internal/textlayout"
	"goslides/internal/undo"
	"goslides/internal/vector"
)

// State of a controller instance.
type State int

const (
	Uninitialized State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// Mode selects what pointer drags do.
type Mode int

const (
	ModeSelect Mode = iota
	ModeDraw
)

func (m Mode) String() string {
	if m == ModeDraw {
		return "draw"
	}
	return "select"
}

// TextStyle is a toggleable text attribute.
type TextStyle int

const (
	Bold TextStyle = iota
	Italic
	Underline
)

const (
	MinBrushWidth = 1
	MaxBrushWidth = 20
)

// Options configure a controller instance.
type Options struct {
	// CanEdit is consulted on every operation; nil means read-only.
	CanEdit func() bool
	// Preview instances render at the reduced preview size and never edit.
	Preview bool
	// OnChange receives the serialized scene after each logical edit.
	OnChange func(doc []byte)

	Renderer *render.Renderer
	History  *undo.Manager
	Logger   *slog.Logger

	FontFamily  string
	FontSize    float32
	BrushColor  vector.Color
	BrushWidth  float32
	ImageMaxDim float32
}

// Controller is the editing surface of one slide.
type Controller struct {
	mu      sync.Mutex
	slideID string
	opts    Options
	log     *slog.Logger

	state   State
	loadErr error
	closed  bool
	sc      scene.Scene
	doc     []byte
	sel     []string
	mode    Mode

	fontFamily string
	fontSize   float32
	brushColor vector.Color
	brushWidth float32

	drag *drag
}

// New constructs a controller for slideID and loads content into it.
func New(slideID string, content []byte, opts Options) *Controller {
	if opts.Renderer == nil {
		opts.Renderer = render.New()
	}
	if opts.History == nil {
		opts.History = undo.NewManager(undo.Config{MaxPerSlide: 100})
	}
	l := opts.Logger
	if l == nil {
		l = log.WithComponent("canvas")
	}
	c := &Controller{
		slideID:    slideID,
		opts:       opts,
		log:        l.With(slog.String("slide", slideID)),
		fontFamily: firstNonEmpty(opts.FontFamily, scene.DefaultFontFamily),
		fontSize:   scene.DefaultFontSize,
		brushColor: vector.Black,
		brushWidth: 2,
	}
	if opts.FontSize > 0 {
		c.fontSize = opts.FontSize
	}
	if opts.BrushColor != (vector.Color{}) {
		c.brushColor = opts.BrushColor
	}
	if opts.BrushWidth > 0 {
		c.brushWidth = clampBrush(opts.BrushWidth)
	}
	c.load(content)
	return c
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func clampBrush(w float32) float32 { return max(MinBrushWidth, min(MaxBrushWidth, w)) }

func (c *Controller) load(content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Loading
	sc, err := scene.Deserialize(content)
	if err != nil {
		c.log.Warn("slide content unreadable, starting empty", slog.Any("err", err))
		c.sc = scene.New()
		c.loadErr = err
		c.state = Failed
	} else {
		c.sc = sc
		c.loadErr = nil
		c.state = Ready
	}
	c.doc, _ = scene.Serialize(c.sc)
}

// Reload replaces the scene with content persisted elsewhere. It does not emit
// OnChange and keeps the selection of drawables that still exist.
func (c *Controller) Reload(content []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.drag != nil {
		// a local drag in progress wins; its commit will overwrite
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	sc, err := scene.Deserialize(content)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err != nil {
		c.log.Warn("reloaded content unreadable, keeping current scene", slog.Any("err", err))
		return
	}
	doc, err := scene.Serialize(sc)
	if err != nil || bytes.Equal(doc, c.doc) {
		return
	}
	c.sc, c.doc, c.state, c.loadErr = sc, doc, Ready, nil
	c.sel = slices.DeleteFunc(c.sel, func(id string) bool { return c.sc.Index(id) < 0 })
}

// Close tears the instance down. A closed controller ignores every operation.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.state = Uninitialized
	c.sc = scene.Scene{}
	c.doc = nil
	c.sel = nil
	c.drag = nil
	c.opts.OnChange = nil
	c.opts.CanEdit = nil
	c.opts.History.ClearSlide(c.slideID)
}

func (c *Controller) SlideID() string { return c.slideID }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LoadErr is the deserialization failure that put the instance in Failed.
func (c *Controller) LoadErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadErr
}

// Interactive reports whether the surface currently accepts selection and edits.
func (c *Controller) Interactive() bool {
	can := c.canEdit()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editableLocked(can)
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Brush returns the active brush color and width.
func (c *Controller) Brush() (vector.Color, float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.brushColor, c.brushWidth
}

// Font returns the toolbar font family and size used for new text.
func (c *Controller) Font() (string, float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fontFamily, c.fontSize
}

// Scene returns a copy of the current scene.
func (c *Controller) Scene() scene.Scene {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sc.Clone()
}

// Document returns the serialized current scene.
func (c *Controller) Document() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.doc)
}

// Selection returns the selected drawable ids.
func (c *Controller) Selection() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.sel)
}

// Render rasterizes the scene, at preview size for preview instances.
func (c *Controller) Render() (*image.RGBA, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("render slide %s: controller closed", c.slideID)
	}
	sc := c.sc.Clone()
	if c.drag != nil && c.drag.live != nil {
		sc = *c.drag.live
	}
	preview := c.opts.Preview
	c.mu.Unlock()
	if preview {
		sc = sc.Preview()
	}
	return c.opts.Renderer.Render(sc, int(sc.Width+0.5), int(sc.Height+0.5))
}

func (c *Controller) fonts() textlayout.Provider {
	if c.opts.Renderer != nil && c.opts.Renderer.Fonts != nil {
		return c.opts.Renderer.Fonts
	}
	return textlayout.BasicProvider{}
}

// canEdit runs the permission callback outside the controller lock; it may
// call into other components.
func (c *Controller) canEdit() bool {
	c.mu.Lock()
	f := c.opts.CanEdit
	c.mu.Unlock()
	return f != nil && f()
}

func (c *Controller) editableLocked(can bool) bool {
	return can && !c.closed && !c.opts.Preview && (c.state == Ready || c.state == Failed)
}

// mutate applies fn to a copy of the scene and, when fn reports a change,
// commits it, records undo history and emits OnChange after unlocking.
func (c *Controller) mutate(op string, fn func(sc *scene.Scene) bool) bool {
	return c.mutateSelect(op, func(sc *scene.Scene) ([]string, bool) { return nil, fn(sc) })
}

// mutateSelect is mutate for edits that also replace the selection. A nil
// selection keeps the current one.
func (c *Controller) mutateSelect(op string, fn func(sc *scene.Scene) ([]string, bool)) bool {
	can := c.canEdit()
	c.mu.Lock()
	if !c.editableLocked(can) {
		c.mu.Unlock()
		return false
	}
	next := c.sc.Clone()
	sel, changed := fn(&next)
	if !changed {
		c.mu.Unlock()
		return false
	}
	cb, ok := c.commitLocked(op, next, c.doc, sel)
	c.mu.Unlock()
	if ok && cb != nil {
		cb()
	}
	return ok
}

// commitLocked installs next as the current scene; prev is the document to
// restore on undo and a non-nil sel replaces the selection. The returned func
// delivers the notification.
func (c *Controller) commitLocked(op string, next scene.Scene, prev []byte, sel []string) (func(), bool) {
	doc, err := scene.Serialize(next)
	if err != nil {
		c.log.Error("serialize after edit failed", slog.String("op", op), slog.Any("err", err))
		return nil, false
	}
	c.opts.History.Push(undo.Snapshot{SlideID: c.slideID, Blob: prev, TS: time.Now()})
	c.sc, c.doc, c.state = next, doc, Ready
	if sel != nil {
		c.sel = sel
	}
	c.sel = slices.DeleteFunc(c.sel, func(id string) bool { return c.sc.Index(id) < 0 })
	c.log.Debug("edit", slog.String("op", op), slog.Int("objects", len(next.Objects)))
	onChange := c.opts.OnChange
	if onChange == nil {
		return nil, true
	}
	out := bytes.Clone(doc)
	return func() { onChange(out) }, true
}
