/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package render rasterizes a scene into an RGBA image. It is the off-screen
// drawing surface used by the canvas view, the gallery previews and export.
package render

import (
	"errors"
	"image"
	"image/color"
	"math"
	"sync"

	"goslides/internal/scene"
	"goslides/internal/textlayout"
	"goslides/internal/vector"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
	rast "golang.org/x/image/vector"
)

const (
	curveSteps   = 16
	circleSteps  = 64
	joinSteps    = 12
	imageCacheSz = 32
)

// Renderer draws scenes. It caches decoded image assets between calls and is
// safe for concurrent use.
type Renderer struct {
	Fonts textlayout.Provider

	mu    sync.Mutex
	cache map[string]image.Image
	order []string
}

// New returns a Renderer using the bundled Go fonts.
func New() *Renderer { return &Renderer{Fonts: &textlayout.GoProvider{}} }

var defaultRenderer = New()

// Render draws s at its own size with the shared default renderer.
func Render(s scene.Scene) (*image.RGBA, error) {
	return defaultRenderer.Render(s, int(math.Ceil(float64(s.Width))), int(math.Ceil(float64(s.Height))))
}

// Render draws s scaled to w x h pixels. Drawables whose image asset cannot be
// decoded are left out; the returned error then joins their *AssetDecodeError.
func (r *Renderer) Render(s scene.Scene, w, h int) (*image.RGBA, error) {
	if w <= 0 || h <= 0 {
		return nil, errors.New("render: empty surface")
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	bg := s.Background
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(bg.NRGBA(1)), image.Point{}, xdraw.Src)

	view := vector.Identity
	if s.Width > 0 && s.Height > 0 {
		view = vector.Scale(float32(w)/s.Width, float32(h)/s.Height)
	}
	z := rast.NewRasterizer(w, h)
	var errs []error
	for _, d := range s.Objects {
		if err := r.drawOne(dst, z, view, d); err != nil {
			errs = append(errs, err)
		}
	}
	return dst, errors.Join(errs...)
}

func (r *Renderer) fonts() textlayout.Provider {
	if r.Fonts == nil {
		return textlayout.BasicProvider{}
	}
	return r.Fonts
}

func (r *Renderer) drawOne(dst *image.RGBA, z *rast.Rasterizer, view vector.Affine2D, d scene.Drawable) error {
	if d.Opacity <= 0 {
		return nil
	}
	xf := view.Mul(d.Transform())
	sw := d.StrokeWidth * xf.MeanScale()
	switch s := d.Shape.(type) {
	case scene.Rect:
		box := []vector.Pt{{X: 0, Y: 0}, {X: s.Width, Y: 0}, {X: s.Width, Y: s.Height}, {X: 0, Y: s.Height}}
		r.paintPolygon(dst, z, xf, box, d, sw)
	case scene.Circle:
		pts := make([]vector.Pt, circleSteps)
		for i := range pts {
			a := 2 * math.Pi * float64(i) / circleSteps
			pts[i] = vector.Pt{
				X: s.Radius + s.Radius*float32(math.Cos(a)),
				Y: s.Radius + s.Radius*float32(math.Sin(a)),
			}
		}
		r.paintPolygon(dst, z, xf, pts, d, sw)
	case scene.Path:
		lines := s.Data.Transform(xf).Flatten(curveSteps)
		if !d.Fill.None() {
			z.Reset(dst.Bounds().Dx(), dst.Bounds().Dy())
			for _, pl := range lines {
				addPolygon(z, pl.Pts, false)
			}
			fill(dst, z, d.Fill.NRGBA(d.Opacity))
		}
		if !d.Stroke.None() && sw > 0 {
			z.Reset(dst.Bounds().Dx(), dst.Bounds().Dy())
			for _, pl := range lines {
				strokePolyline(z, pl.Pts, pl.Closed, sw, d.LineCap, d.LineJoin)
			}
			fill(dst, z, d.Stroke.NRGBA(d.Opacity))
		}
	case scene.Freehand:
		if d.Stroke.None() || sw <= 0 || len(s.Points) == 0 {
			return nil
		}
		pts := make([]vector.Pt, len(s.Points))
		for i, p := range s.Points {
			pts[i] = xf.Apply(p)
		}
		z.Reset(dst.Bounds().Dx(), dst.Bounds().Dy())
		strokePolyline(z, pts, false, sw, d.LineCap, d.LineJoin)
		fill(dst, z, d.Stroke.NRGBA(d.Opacity))
	case scene.Text:
		r.drawText(dst, xf, s, d)
	case scene.Image:
		img, err := r.asset(s.Src)
		if err != nil {
			var ae *AssetDecodeError
			if errors.As(err, &ae) {
				return &AssetDecodeError{ID: d.ID, Err: ae.Err}
			}
			return &AssetDecodeError{ID: d.ID, Err: err}
		}
		// the box is in natural pixels; map image pixels onto it
		b := img.Bounds()
		m := xf
		if b.Dx() > 0 && b.Dy() > 0 {
			m = xf.Mul(vector.Scale(s.Width/float32(b.Dx()), s.Height/float32(b.Dy())))
		}
		place(dst, m, img, d.Opacity)
	}
	return nil
}

func (r *Renderer) paintPolygon(dst *image.RGBA, z *rast.Rasterizer, xf vector.Affine2D, local []vector.Pt, d scene.Drawable, sw float32) {
	pts := make([]vector.Pt, len(local))
	for i, p := range local {
		pts[i] = xf.Apply(p)
	}
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	if !d.Fill.None() {
		z.Reset(w, h)
		addPolygon(z, pts, false)
		fill(dst, z, d.Fill.NRGBA(d.Opacity))
	}
	if !d.Stroke.None() && sw > 0 {
		z.Reset(w, h)
		strokePolyline(z, pts, true, sw, d.LineCap, d.LineJoin)
		fill(dst, z, d.Stroke.NRGBA(d.Opacity))
	}
}

func fill(dst *image.RGBA, z *rast.Rasterizer, c color.NRGBA) {
	z.DrawOp = xdraw.Over
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

// addPolygon adds a closed contour. With orient set, the contour is emitted
// with positive signed area so overlapping pieces of one stroke accumulate
// instead of cancelling.
func addPolygon(z *rast.Rasterizer, pts []vector.Pt, orient bool) {
	if len(pts) < 2 {
		return
	}
	if orient && signedArea(pts) < 0 {
		rev := make([]vector.Pt, len(pts))
		for i, p := range pts {
			rev[len(pts)-1-i] = p
		}
		pts = rev
	}
	z.MoveTo(pts[0].X, pts[0].Y)
	for _, p := range pts[1:] {
		z.LineTo(p.X, p.Y)
	}
	z.ClosePath()
}

func signedArea(pts []vector.Pt) float32 {
	var a float32
	for i := range pts {
		j := (i + 1) % len(pts)
		a += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return a / 2
}

func disc(z *rast.Rasterizer, c vector.Pt, r float32) {
	pts := make([]vector.Pt, joinSteps)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / joinSteps
		pts[i] = vector.Pt{X: c.X + r*float32(math.Cos(a)), Y: c.Y + r*float32(math.Sin(a))}
	}
	addPolygon(z, pts, true)
}

// strokePolyline outlines a polyline as one quad per segment plus round joins
// and caps where requested.
func strokePolyline(z *rast.Rasterizer, pts []vector.Pt, closed bool, width float32, lc vector.LineCap, lj vector.LineJoin) {
	hw := width / 2
	if len(pts) == 1 {
		disc(z, pts[0], hw)
		return
	}
	n := len(pts)
	segs := n - 1
	if closed {
		segs = n
	}
	for i := 0; i < segs; i++ {
		a, b := pts[i], pts[(i+1)%n]
		dx, dy := b.X-a.X, b.Y-a.Y
		l := float32(math.Hypot(float64(dx), float64(dy)))
		if l == 0 {
			continue
		}
		ux, uy := dx/l, dy/l
		if !closed && lc == vector.CapSquare {
			if i == 0 {
				a = vector.Pt{X: a.X - ux*hw, Y: a.Y - uy*hw}
			}
			if i == segs-1 {
				b = vector.Pt{X: b.X + ux*hw, Y: b.Y + uy*hw}
			}
		}
		nx, ny := -uy*hw, ux*hw
		addPolygon(z, []vector.Pt{
			{X: a.X + nx, Y: a.Y + ny},
			{X: b.X + nx, Y: b.Y + ny},
			{X: b.X - nx, Y: b.Y - ny},
			{X: a.X - nx, Y: a.Y - ny},
		}, true)
	}
	for i, p := range pts {
		end := !closed && (i == 0 || i == n-1)
		if (end && lc == vector.CapRound) || (!end && lj != vector.JoinBevel) {
			disc(z, p, hw)
		}
	}
}

func aff3(m vector.Affine2D) f64.Aff3 {
	return f64.Aff3{float64(m.A), float64(m.C), float64(m.E), float64(m.B), float64(m.D), float64(m.F)}
}

// place composites src onto dst through m (src pixels to dst pixels).
func place(dst *image.RGBA, m vector.Affine2D, src image.Image, opacity float32) {
	var opts *xdraw.Options
	if opacity < 1 {
		a := uint8(max(0, min(1, opacity))*255 + 0.5)
		opts = &xdraw.Options{SrcMask: image.NewUniform(color.Alpha{A: a})}
	}
	xdraw.BiLinear.Transform(dst, aff3(m), src, src.Bounds(), xdraw.Over, opts)
}

func (r *Renderer) drawText(dst *image.RGBA, xf vector.Affine2D, t scene.Text, d scene.Drawable) {
	if d.Fill.None() || t.Value == "" {
		return
	}
	k := xf.MeanScale()
	if k <= 0 {
		return
	}
	spec := t.FontSpec()
	if spec.Size <= 0 {
		spec.Size = textlayout.DefaultSize
	}
	spec.Size *= k
	fonts := r.fonts()
	face, _ := fonts.Resolve(spec)
	blk := textlayout.Measure(fonts, spec, t.Value)
	lw := int(math.Ceil(float64(blk.Width))) + 2
	lh := int(math.Ceil(float64(blk.Height))) + 2
	layer := image.NewRGBA(image.Rect(0, 0, lw, lh))
	ink := image.NewUniform(d.Fill.NRGBA(1))
	dr := font.Drawer{Dst: layer, Src: ink, Face: face}
	for i, line := range blk.Lines {
		base := blk.Baseline(i)
		dr.Dot = fixed.Point26_6{X: 0, Y: fixed.Int26_6(base * 64)}
		dr.DrawString(line)
		if t.Underline {
			th := max(1, spec.Size/15)
			y0 := int(base + th)
			y1 := y0 + int(math.Ceil(float64(th)))
			ul := image.Rect(0, y0, int(math.Ceil(float64(blk.Widths[i]))), y1)
			xdraw.Draw(layer, ul, ink, image.Point{}, xdraw.Over)
		}
	}
	// the layer is rendered at k times the box size
	place(dst, xf.Mul(vector.Scale(1/k, 1/k)), layer, d.Opacity)
}

func (r *Renderer) asset(src string) (image.Image, error) {
	r.mu.Lock()
	if img, ok := r.cache[src]; ok {
		r.mu.Unlock()
		return img, nil
	}
	r.mu.Unlock()

	img, err := DecodeDataURL(src)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil {
		r.cache = make(map[string]image.Image)
	}
	if _, ok := r.cache[src]; !ok {
		r.cache[src] = img
		r.order = append(r.order, src)
		if len(r.order) > imageCacheSz {
			delete(r.cache, r.order[0])
			r.order = r.order[1:]
		}
	}
	return img, nil
}
