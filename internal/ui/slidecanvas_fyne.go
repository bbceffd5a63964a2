//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	editor "goslides/internal/canvas"
	"goslides/internal/shell"
	"goslides/internal/textlayout"
	"goslides/internal/vector"
)

// SlideCanvas shows the active slide of a shell and forwards pointer input to
// its canvas controller.
type SlideCanvas struct {
	widget.BaseWidget

	sh    *shell.Shell
	fonts textlayout.Provider
	// OnEdited runs after a gesture that may have changed the slide.
	OnEdited func()

	img      *canvas.Image
	dragging bool
}

func NewSlideCanvas(sh *shell.Shell, fonts textlayout.Provider) *SlideCanvas {
	sc := &SlideCanvas{sh: sh, fonts: fonts}
	sc.img = canvas.NewImageFromImage(nil)
	sc.img.FillMode = canvas.ImageFillStretch
	sc.ExtendBaseWidget(sc)
	return sc
}

func (s *SlideCanvas) CreateRenderer() fyne.WidgetRenderer {
	r := &slideCanvasRenderer{
		sc:    s,
		bg:    canvas.NewRectangle(color.NRGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff}),
		frame: canvas.NewRectangle(color.Transparent),
		sel:   canvas.NewRectangle(color.Transparent),
	}
	r.frame.StrokeColor = color.NRGBA{R: 0x9c, G: 0xa3, B: 0xaf, A: 0xff}
	r.frame.StrokeWidth = 1
	r.sel.StrokeColor = color.NRGBA{R: 0x4f, G: 0x46, B: 0xe5, A: 0xff}
	r.sel.StrokeWidth = 2
	r.objects = []fyne.CanvasObject{r.bg, s.img, r.frame, r.sel}
	return r
}

func (s *SlideCanvas) MinSize() fyne.Size { return fyne.NewSize(480, 270) }

func (s *SlideCanvas) viewport() viewport {
	sz := s.Size()
	return centeredViewport(sz.Width, sz.Height, float32(s.sh.Zoom()))
}

func (s *SlideCanvas) controller() *editor.Controller {
	c, err := s.sh.Canvas()
	if err != nil {
		return nil
	}
	return c
}

// Redraw rasterizes the active slide again.
func (s *SlideCanvas) Redraw() {
	s.img.Image = nil
	if c := s.controller(); c != nil {
		if img, _ := c.Render(); img != nil {
			s.img.Image = img
		}
	}
	s.Refresh()
}

func (s *SlideCanvas) MouseDown(e *desktop.MouseEvent) {
	c := s.controller()
	if c == nil || e.Button != desktop.MouseButtonPrimary {
		return
	}
	c.PointerDown(s.viewport().ToSlide(e.Position.X, e.Position.Y))
	s.Redraw()
}

func (s *SlideCanvas) MouseUp(e *desktop.MouseEvent) {
	c := s.controller()
	if c == nil || e.Button != desktop.MouseButtonPrimary {
		return
	}
	c.PointerUp(s.viewport().ToSlide(e.Position.X, e.Position.Y))
	s.dragging = false
	s.Redraw()
	if s.OnEdited != nil {
		s.OnEdited()
	}
}

func (s *SlideCanvas) Dragged(e *fyne.DragEvent) {
	c := s.controller()
	if c == nil {
		return
	}
	s.dragging = true
	c.PointerMove(s.viewport().ToSlide(e.Position.X, e.Position.Y))
	s.Redraw()
}

func (s *SlideCanvas) DragEnd() {}

func (s *SlideCanvas) Scrolled(e *fyne.ScrollEvent) {
	if e.Scrolled.DY > 0 {
		s.sh.ZoomIn()
	} else if e.Scrolled.DY < 0 {
		s.sh.ZoomOut()
	}
	s.Refresh()
}

type slideCanvasRenderer struct {
	sc         *SlideCanvas
	bg         *canvas.Rectangle
	frame, sel *canvas.Rectangle
	objects    []fyne.CanvasObject
}

func (r *slideCanvasRenderer) Destroy()                     {}
func (r *slideCanvasRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *slideCanvasRenderer) MinSize() fyne.Size           { return r.sc.MinSize() }
func (r *slideCanvasRenderer) Refresh()                     { r.Layout(r.sc.Size()); canvas.Refresh(r.sc) }

func (r *slideCanvasRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	r.bg.Move(fyne.NewPos(0, 0))

	vp := centeredViewport(size.Width, size.Height, float32(r.sc.sh.Zoom()))
	w, h := vp.Size()
	r.sc.img.Resize(fyne.NewSize(w, h))
	r.sc.img.Move(fyne.NewPos(vp.X, vp.Y))
	r.frame.Resize(fyne.NewSize(w, h))
	r.frame.Move(fyne.NewPos(vp.X, vp.Y))

	r.sel.Hide()
	c := r.sc.controller()
	if c == nil {
		return
	}
	sc := c.Scene()
	var box vector.Rect
	found := false
	for _, id := range c.Selection() {
		d, ok := sc.Find(id)
		if !ok {
			continue
		}
		b := vp.RectToWidget(d.Bounds(r.sc.fonts))
		if found {
			box = box.Union(b)
		} else {
			box, found = b, true
		}
	}
	if !found {
		return
	}
	r.sel.Resize(fyne.NewSize(box.W+8, box.H+8))
	r.sel.Move(fyne.NewPos(box.X-4, box.Y-4))
	r.sel.Show()
}
