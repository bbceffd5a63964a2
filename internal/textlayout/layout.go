/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package textlayout measures text drawables. Measurement goes through a
// Provider so tests can use the fixed-size basicfont face.
package textlayout

import (
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

const (
	DefaultSize = 20
	// LineHeightFactor matches the default line spacing of the editor's text objects.
	LineHeightFactor = 1.16
)

// FontSpec describes a requested font. Size is in pixels.
type FontSpec struct {
	Family string
	Size   float32
	Bold   bool
	Italic bool
}

// Metrics provides font metrics in pixels for the resolved face.
type Metrics struct {
	Ascent, Descent, LineGap float32
}

// Provider maps FontSpec to a concrete font.Face.
type Provider interface {
	Resolve(FontSpec) (font.Face, Metrics)
}

// BasicProvider uses x/image/basicfont Face7x13 for deterministic tests.
type BasicProvider struct{}

func (BasicProvider) Resolve(FontSpec) (font.Face, Metrics) {
	f := basicfont.Face7x13
	return f, metricsOf(f)
}

func metricsOf(f font.Face) Metrics {
	m := f.Metrics()
	return Metrics{
		Ascent:  float32(m.Ascent.Round()),
		Descent: float32(m.Descent.Round()),
		LineGap: float32(m.Height.Round() - m.Ascent.Round() - m.Descent.Round()),
	}
}

// Block is a measured multi-line text run. Lines split on '\n' only; text
// objects never wrap.
type Block struct {
	Lines      []string
	Widths     []float32
	Width      float32
	Height     float32
	LineHeight float32
	Metrics    Metrics
}

// Baseline returns the y offset of line i's baseline from the block top.
func (b Block) Baseline(i int) float32 {
	return float32(i)*b.LineHeight + b.Metrics.Ascent
}

// Measure lays out text with one face.
func Measure(provider Provider, spec FontSpec, text string) Block {
	if provider == nil {
		provider = BasicProvider{}
	}
	face, met := provider.Resolve(spec)
	d := &font.Drawer{Face: face}
	size := spec.Size
	if size <= 0 {
		size = DefaultSize
	}
	lh := max(size*LineHeightFactor, met.Ascent+met.Descent)
	b := Block{Lines: strings.Split(text, "\n"), LineHeight: lh, Metrics: met}
	for _, ln := range b.Lines {
		w := advance(d, ln)
		b.Widths = append(b.Widths, w)
		b.Width = max(b.Width, w)
	}
	b.Height = lh*float32(len(b.Lines)-1) + met.Ascent + met.Descent
	return b
}

func advance(d *font.Drawer, s string) float32 {
	return float32(d.MeasureString(s)) / 64 // fixed.Int26_6 to px
}
