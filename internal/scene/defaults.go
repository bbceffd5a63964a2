/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package scene

import (
	"goslides/internal/vector"
)

// Defaults used by the editor when creating drawables.
const (
	DefaultText       = "Edit text"
	DefaultFontFamily = "Arial"
	DefaultFontSize   = 20
	DefaultArrowPath  = "M 0 0 L 200 0 L 190 -10 M 200 0 L 190 10"
	DefaultLeft       = 100
	DefaultTop        = 100
	ImageMaxDim       = 300
)

var (
	ShapeFill   = vector.MustHex("#4f46e5")
	ArrowStroke = vector.MustHex("#4f46e5")

	FontSizes    = []float32{8, 10, 12, 14, 16, 18, 20, 24, 28, 32, 36, 48, 72}
	FontFamilies = []string{
		"Arial", "Times New Roman", "Courier New", "Georgia", "Verdana",
		"Helvetica", "Comic Sans MS", "Impact", "Trebuchet MS", "Roboto",
	}
)

func placed() Geometry {
	return Geometry{Left: DefaultLeft, Top: DefaultTop, ScaleX: 1, ScaleY: 1}
}

// NewText returns a black text drawable at the default position.
func NewText(value, family string, size float32) Drawable {
	if family == "" {
		family = DefaultFontFamily
	}
	if size <= 0 {
		size = DefaultFontSize
	}
	return Drawable{
		ID:       NewID(),
		Geometry: placed(),
		Style:    Style{Fill: vector.Black, StrokeWidth: 1, Opacity: 1},
		Shape:    Text{Value: value, FontFamily: family, FontSize: size},
	}
}

func shapeStyle() Style {
	return Style{Fill: ShapeFill, Stroke: vector.Black, StrokeWidth: 1, Opacity: 0.7}
}

// NewRect returns the default 100x100 rectangle.
func NewRect() Drawable {
	return Drawable{ID: NewID(), Geometry: placed(), Style: shapeStyle(), Shape: Rect{Width: 100, Height: 100}}
}

// NewCircle returns the default circle of radius 50.
func NewCircle() Drawable {
	return Drawable{ID: NewID(), Geometry: placed(), Style: shapeStyle(), Shape: Circle{Radius: 50}}
}

// NewArrow returns the default right-pointing arrow.
func NewArrow() Drawable {
	p, err := vector.ParsePathData(DefaultArrowPath)
	if err != nil {
		panic(err)
	}
	return Drawable{
		ID:       NewID(),
		Geometry: placed(),
		Style: Style{
			Stroke: ArrowStroke, StrokeWidth: 2, Opacity: 1,
			LineCap: vector.CapRound, LineJoin: vector.JoinRound,
		},
		Shape: Path{Data: p},
	}
}

// NewFreehand builds a stroke from canvas-space points. The drawable is placed
// at the points' top-left so it renders exactly where it was drawn.
func NewFreehand(points []vector.Pt, color vector.Color, width float32) Drawable {
	b := vector.BoundsOfPoints(points)
	g := Geometry{Left: b.X, Top: b.Y, ScaleX: 1, ScaleY: 1}
	return Drawable{
		ID:       NewID(),
		Geometry: g,
		Style: Style{
			Stroke: color, StrokeWidth: width, Opacity: 1,
			LineCap: vector.CapRound, LineJoin: vector.JoinRound,
		},
		Shape: Freehand{Points: append([]vector.Pt(nil), points...)},
	}
}

// NewImage places an image of natural size w x h, uniformly scaled down so its
// longest side is at most maxDim (no scaling when maxDim <= 0).
func NewImage(src string, w, h float32, maxDim float32) Drawable {
	g := placed()
	if longest := max(w, h); maxDim > 0 && longest > maxDim {
		f := maxDim / longest
		g.ScaleX, g.ScaleY = f, f
	}
	return Drawable{
		ID:       NewID(),
		Geometry: g,
		Style:    Style{StrokeWidth: 0, Opacity: 1},
		Shape:    Image{Src: src, Width: w, Height: h},
	}
}
