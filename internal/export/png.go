/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"goslides/internal/store"
)

// ExportPNG writes slide-<n>.png for every slide of p into dir. n is the
// one-based slide number, so skipped slides leave gaps.
func ExportPNG(ctx context.Context, p store.Presentation, dir string, opt Options) (Result, error) {
	o := opt.withDefaults("export_png")
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, &ExportError{Op: "ensure out dir", Err: err}
	}
	pages, skipped, err := eachSlide(ctx, p, o, func(i int, img image.Image) error {
		return writePNG(filepath.Join(dir, fmt.Sprintf("slide-%d.png", i+1)), img)
	})
	res := Result{Path: dir, Pages: pages, Skipped: skipped}
	if err != nil {
		return res, &ExportError{Op: "render slides", Err: err}
	}
	if pages == 0 {
		return res, &ExportError{Op: "render slides", Err: ErrNoPages}
	}
	o.Logger.Info("png pages exported", slog.String("dir", dir), slog.Int("pages", pages), slog.Int("skipped", len(skipped)))
	return res, nil
}

func writePNG(name string, img image.Image) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close png: %w", err)
	}
	return nil
}
