/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// FontLibrary stores user-supplied OpenType fonts mapped by family/bold/italic.
// Families found here take precedence over the bundled Go fonts.
type FontLibrary struct {
	mu    sync.RWMutex
	fonts map[fontKey]*opentype.Font
}

type fontKey struct {
	family string
	bold   bool
	italic bool
}

func NewFontLibrary() *FontLibrary { return &FontLibrary{fonts: make(map[fontKey]*opentype.Font)} }

// LoadTTF loads a font file into the library under the given family/bold/italic.
func (fl *FontLibrary) LoadTTF(family string, bold, italic bool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font %s: %w", path, err)
	}
	return fl.Add(family, bold, italic, data)
}

// Add parses raw TTF/OTF bytes and registers them.
func (fl *FontLibrary) Add(family string, bold, italic bool, data []byte) error {
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("parse font %s: %w", family, err)
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.fonts == nil {
		fl.fonts = make(map[fontKey]*opentype.Font)
	}
	fl.fonts[fontKey{family: strings.ToLower(family), bold: bold, italic: italic}] = f
	return nil
}

func (fl *FontLibrary) find(spec FontSpec) *opentype.Font {
	if fl == nil {
		return nil
	}
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	fam := strings.ToLower(spec.Family)
	if f, ok := fl.fonts[fontKey{family: fam, bold: spec.Bold, italic: spec.Italic}]; ok {
		return f
	}
	for k, f := range fl.fonts {
		if k.family == fam {
			return f
		}
	}
	return nil
}

// monospaced families map onto Go Mono, everything else onto Go (sans).
var monoFamilies = map[string]bool{"courier new": true, "courier": true, "monospace": true}

var (
	goFontsOnce sync.Once
	goFonts     map[fontKey]*opentype.Font
	goFontsErr  error
)

func bundled(spec FontSpec) (*opentype.Font, error) {
	goFontsOnce.Do(func() {
		src := map[fontKey][]byte{
			{family: "sans"}:                           goregular.TTF,
			{family: "sans", bold: true}:               gobold.TTF,
			{family: "sans", italic: true}:             goitalic.TTF,
			{family: "sans", bold: true, italic: true}: gobolditalic.TTF,
			{family: "mono"}:                           gomono.TTF,
			{family: "mono", bold: true}:               gomonobold.TTF,
			{family: "mono", italic: true}:             gomonoitalic.TTF,
			{family: "mono", bold: true, italic: true}: gomonobolditalic.TTF,
		}
		goFonts = make(map[fontKey]*opentype.Font, len(src))
		for k, data := range src {
			f, err := opentype.Parse(data)
			if err != nil {
				goFontsErr = err
				return
			}
			goFonts[k] = f
		}
	})
	if goFontsErr != nil {
		return nil, goFontsErr
	}
	fam := "sans"
	if monoFamilies[strings.ToLower(spec.Family)] {
		fam = "mono"
	}
	return goFonts[fontKey{family: fam, bold: spec.Bold, italic: spec.Italic}], nil
}

// GoProvider resolves FontSpec to the user library first, then the bundled Go fonts,
// then basicfont. Faces are cached per spec.
type GoProvider struct {
	Lib      *FontLibrary
	DPI      float64 // default 72 if zero, so sizes are pixels
	Fallback Provider

	mu    sync.Mutex
	faces map[FontSpec]cachedFace
}

type cachedFace struct {
	face font.Face
	met  Metrics
}

func (p *GoProvider) Resolve(spec FontSpec) (font.Face, Metrics) {
	if spec.Size <= 0 {
		spec.Size = DefaultSize
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.faces[spec]; ok {
		return c.face, c.met
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = 72
	}
	f := p.Lib.find(spec)
	if f == nil {
		f, _ = bundled(spec)
	}
	if f != nil {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: float64(spec.Size), DPI: dpi, Hinting: font.HintingFull})
		if err == nil {
			if p.faces == nil {
				p.faces = make(map[FontSpec]cachedFace)
			}
			c := cachedFace{face: face, met: metricsOf(face)}
			p.faces[spec] = c
			return c.face, c.met
		}
	}
	fb := p.Fallback
	if fb == nil {
		fb = BasicProvider{}
	}
	return fb.Resolve(spec)
}
