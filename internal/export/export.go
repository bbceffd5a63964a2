/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export turns a presentation into page artifacts: one A4 landscape
// PDF with a full-bleed image per slide, or one PNG per slide. Slides are
// rasterized strictly in order on one surface; a slide that fails is logged
// and left out.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"regexp"
	"strings"
	"time"

	applog "goslides/internal/log"
	"goslides/internal/render"
	"goslides/internal/scene"
	"goslides/internal/store"
)

// Slide raster size in pixels.
const (
	RasterWidth  = int(scene.CanvasWidth)
	RasterHeight = int(scene.CanvasHeight)
)

// ExportError reports a failure of the pipeline as a whole, as opposed to a
// single skipped slide.
type ExportError struct {
	Op  string
	Err error
}

func (e *ExportError) Error() string { return fmt.Sprintf("export %s: %v", e.Op, e.Err) }
func (e *ExportError) Unwrap() error { return e.Err }

// ErrNoPages is wrapped in an ExportError when every slide was skipped.
var ErrNoPages = errors.New("no slide could be rendered")

// Rasterizer produces the bitmap of one slide.
type Rasterizer interface {
	Rasterize(ctx context.Context, index int, slide store.Slide) (image.Image, error)
}

// RasterizerFunc adapts a function to Rasterizer.
type RasterizerFunc func(ctx context.Context, index int, slide store.Slide) (image.Image, error)

func (f RasterizerFunc) Rasterize(ctx context.Context, index int, slide store.Slide) (image.Image, error) {
	return f(ctx, index, slide)
}

// SceneRasterizer renders slide content with the scene renderer at the
// canonical surface size. Empty slides come out as blank white pages.
type SceneRasterizer struct {
	Renderer *render.Renderer
	Log      *slog.Logger
}

func (r SceneRasterizer) Rasterize(ctx context.Context, index int, slide store.Slide) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sc, err := scene.Deserialize(slide.Content)
	if err != nil {
		return nil, fmt.Errorf("slide %d: %w", index+1, err)
	}
	rr := r.Renderer
	if rr == nil {
		rr = render.New()
	}
	img, err := rr.Render(sc, RasterWidth, RasterHeight)
	if img == nil {
		return nil, fmt.Errorf("slide %d: %w", index+1, err)
	}
	if err != nil && r.Log != nil {
		// undecodable images are left out; the page itself is kept
		r.Log.Warn("slide rendered without some images", slog.Int("slide", index+1), slog.Any("err", err))
	}
	return img, nil
}

// Result describes what an export produced.
type Result struct {
	// Path is the PDF file, or the output directory for PNG exports.
	Path  string
	Pages int
	// Skipped lists the zero-based indexes of slides left out.
	Skipped []int
}

// Options shared by the exporters.
type Options struct {
	// Rasterizer defaults to SceneRasterizer.
	Rasterizer Rasterizer
	// Settle is waited after rasterizing each slide before it is captured.
	Settle time.Duration
	Logger *slog.Logger
}

func (o Options) withDefaults(op string) Options {
	if o.Logger == nil {
		o.Logger = applog.WithOperation(applog.WithComponent("export"), op)
	}
	if o.Rasterizer == nil {
		o.Rasterizer = SceneRasterizer{Renderer: render.New(), Log: o.Logger}
	}
	return o
}

// abortError marks a page failure after which no further slide can be
// written.
type abortError struct{ err error }

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

func abortExport(err error) error { return &abortError{err: err} }

// eachSlide rasterizes the slides of p in order and hands every successful
// bitmap to page. Failures of either step skip the slide, except page errors
// made with abortExport, which stop the run.
func eachSlide(ctx context.Context, p store.Presentation, o Options, page func(i int, img image.Image) error) (pages int, skipped []int, err error) {
	for i, sl := range p.Slides {
		if err := ctx.Err(); err != nil {
			return pages, skipped, err
		}
		l := o.Logger.With(slog.Int("slide", i+1), slog.String("slide_id", sl.ID))
		img, rerr := o.Rasterizer.Rasterize(ctx, i, sl)
		if rerr == nil && o.Settle > 0 {
			select {
			case <-ctx.Done():
				return pages, skipped, ctx.Err()
			case <-time.After(o.Settle):
			}
		}
		if rerr == nil {
			rerr = page(i, img)
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return pages, skipped, ctx.Err()
			}
			var ab *abortError
			if errors.As(rerr, &ab) {
				return pages, skipped, ab.err
			}
			l.Warn("slide skipped", slog.Any("err", rerr))
			skipped = append(skipped, i)
			continue
		}
		pages++
	}
	return pages, skipped, nil
}

var unsafeName = regexp.MustCompile(`[^\p{L}\p{N} ._-]+`)

// FileName derives the PDF file name from a presentation title.
func FileName(title string) string {
	name := strings.TrimSpace(unsafeName.ReplaceAllString(title, "_"))
	name = strings.Trim(name, ". ")
	if name == "" {
		return "presentation.pdf"
	}
	return name + ".pdf"
}
