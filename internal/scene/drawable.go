/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package scene

import (
	"goslides/internal/textlayout"
	"goslides/internal/vector"
)

// Kind is the variant tag of a Drawable.
type Kind string

const (
	KindText   Kind = "text"
	KindRect   Kind = "rect"
	KindCircle Kind = "circle"
	KindPath   Kind = "path"
	KindStroke Kind = "stroke"
	KindImage  Kind = "image"
)

// Kinds lists every variant in declaration order.
var Kinds = []Kind{KindText, KindRect, KindCircle, KindPath, KindStroke, KindImage}

// Geometry places a drawable: the top-left of its box sits at Left/Top, then
// the box is rotated by Angle degrees and scaled around that corner.
type Geometry struct {
	Left, Top      float32
	ScaleX, ScaleY float32
	Angle          float32
}

// Transform maps box coordinates to canvas coordinates.
func (g Geometry) Transform() vector.Affine2D {
	return vector.Translate(g.Left, g.Top).Mul(vector.RotateDeg(g.Angle)).Mul(vector.Scale(g.ScaleX, g.ScaleY))
}

// Style is the paint shared by every variant. A zero color means no paint.
type Style struct {
	Fill        vector.Color
	Stroke      vector.Color
	StrokeWidth float32
	Opacity     float32
	LineCap     vector.LineCap
	LineJoin    vector.LineJoin
}

// Shape is the variant payload. The set of implementations is closed.
type Shape interface {
	Kind() Kind
	isShape()
}

type Text struct {
	Value      string
	FontFamily string
	FontSize   float32
	Bold       bool
	Italic     bool
	Underline  bool
}

type Rect struct{ Width, Height float32 }

type Circle struct{ Radius float32 }

// Path holds vector path data; arrows are paths.
type Path struct{ Data vector.Path }

// Freehand is a pointer-drawn stroke in canvas coordinates.
type Freehand struct{ Points []vector.Pt }

// Image is a raster embedded as a data URL; Width/Height are natural pixels.
type Image struct {
	Src           string
	Width, Height float32
}

func (Text) Kind() Kind     { return KindText }
func (Rect) Kind() Kind     { return KindRect }
func (Circle) Kind() Kind   { return KindCircle }
func (Path) Kind() Kind     { return KindPath }
func (Freehand) Kind() Kind { return KindStroke }
func (Image) Kind() Kind    { return KindImage }

func (Text) isShape()     {}
func (Rect) isShape()     {}
func (Circle) isShape()   {}
func (Path) isShape()     {}
func (Freehand) isShape() {}
func (Image) isShape()    {}

// FontSpec is the font request for measuring or drawing t.
func (t Text) FontSpec() textlayout.FontSpec {
	return textlayout.FontSpec{Family: t.FontFamily, Size: t.FontSize, Bold: t.Bold, Italic: t.Italic}
}

// Drawable is one visual primitive of a Scene.
type Drawable struct {
	ID string
	Geometry
	Style
	Shape Shape
}

// Kind returns the variant tag, or "" for a drawable without payload.
func (d Drawable) Kind() Kind {
	if d.Shape == nil {
		return ""
	}
	return d.Shape.Kind()
}

// Clone returns a deep copy.
func (d Drawable) Clone() Drawable {
	switch s := d.Shape.(type) {
	case Path:
		s.Data.Cmds = append([]vector.PathCmd(nil), s.Data.Cmds...)
		d.Shape = s
	case Freehand:
		if s.Points != nil {
			s.Points = append([]vector.Pt{}, s.Points...)
		}
		d.Shape = s
	}
	return d
}

// Box returns the drawable's untransformed box in shape coordinates. Paths and
// strokes keep their own coordinates, so their box may not start at the origin.
func (d Drawable) Box(fonts textlayout.Provider) vector.Rect {
	switch s := d.Shape.(type) {
	case Text:
		b := textlayout.Measure(fonts, s.FontSpec(), s.Value)
		return vector.R(0, 0, b.Width, b.Height)
	case Rect:
		return vector.R(0, 0, s.Width, s.Height)
	case Circle:
		return vector.R(0, 0, 2*s.Radius, 2*s.Radius)
	case Path:
		return s.Data.Bounds()
	case Freehand:
		return vector.BoundsOfPoints(s.Points)
	case Image:
		return vector.R(0, 0, s.Width, s.Height)
	}
	return vector.Rect{}
}

// Transform maps shape coordinates to canvas coordinates.
func (d Drawable) Transform() vector.Affine2D {
	xf := d.Geometry.Transform()
	var origin vector.Pt
	switch s := d.Shape.(type) {
	case Path:
		origin = s.Data.Bounds().Min()
	case Freehand:
		origin = vector.BoundsOfPoints(s.Points).Min()
	}
	if origin != (vector.Pt{}) {
		xf = xf.Mul(vector.Translate(-origin.X, -origin.Y))
	}
	return xf
}

// Bounds is the axis-aligned canvas-space bounding box.
func (d Drawable) Bounds(fonts textlayout.Provider) vector.Rect {
	return vector.BoundsOf(d.Box(fonts), d.Transform())
}

// minHitTolerance keeps thin lines clickable.
const minHitTolerance = 4

// Hit reports whether pt (canvas coordinates) falls on the drawable.
func (d Drawable) Hit(pt vector.Pt, fonts textlayout.Provider) bool {
	xf := d.Transform()
	tol := max(d.StrokeWidth*xf.MeanScale()/2, minHitTolerance)
	switch s := d.Shape.(type) {
	case Text, Rect, Image:
		return vector.HitRect(d.Box(fonts), xf, pt)
	case Circle:
		return vector.HitEllipse(d.Box(fonts), xf, pt)
	case Path:
		if !d.Fill.None() && vector.HitRect(s.Data.Bounds(), xf, pt) {
			return true
		}
		for _, pl := range s.Data.Flatten(8) {
			pts := pl.Pts
			if pl.Closed && len(pts) > 0 {
				pts = append(pts, pts[0])
			}
			if vector.HitPolyline(pts, xf, pt, tol) {
				return true
			}
		}
		return false
	case Freehand:
		return vector.HitPolyline(s.Points, xf, pt, tol)
	}
	return false
}
