/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"goslides/internal/store"
	"goslides/internal/version"
)

// A4 landscape in millimetres.
const (
	pageW = 297.0
	pageH = 210.0
)

// PDFOptions controls PDF export.
type PDFOptions struct {
	Options
	// Author is written to the document info; defaults to the presentation creator.
	Author string
}

// ExportPDF writes p as an A4 landscape PDF with one full-bleed slide image
// per page. outPath may name a file or an existing directory; with a
// directory (or "") the file name comes from FileName.
func ExportPDF(ctx context.Context, p store.Presentation, outPath string, opt PDFOptions) (Result, error) {
	o := opt.Options.withDefaults("export_pdf")
	l := o.Logger.With(slog.String("presentation", p.ID))

	path, err := resolvePDFPath(outPath, p.Title)
	if err != nil {
		return Result{}, &ExportError{Op: "resolve output", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Result{}, &ExportError{Op: "ensure out dir", Err: err}
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(p.Title, true)
	author := opt.Author
	if author == "" {
		author = p.Creator
	}
	pdf.SetAuthor(author, true)
	pdf.SetCreator("goslides "+version.String(), true)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	if err := pdf.Error(); err != nil {
		return Result{}, &ExportError{Op: "create document", Err: err}
	}

	pages, skipped, err := eachSlide(ctx, p, o, func(i int, img image.Image) error {
		return addSlidePage(pdf, i, img)
	})
	res := Result{Path: path, Pages: pages, Skipped: skipped}
	if err != nil {
		pdf.Close()
		return res, &ExportError{Op: "render slides", Err: err}
	}
	if pages == 0 {
		pdf.Close()
		return res, &ExportError{Op: "render slides", Err: ErrNoPages}
	}
	if err := pdf.OutputFileAndClose(path); err != nil {
		return res, &ExportError{Op: "write pdf", Err: err}
	}
	l.Info("pdf exported", slog.String("path", path), slog.Int("pages", pages), slog.Int("skipped", len(skipped)))
	return res, nil
}

// addSlidePage appends img as a full-bleed page. gofpdf errors are sticky, so
// once the document has failed no later slide can be added and the export
// is aborted instead of skipping the rest.
func addSlidePage(pdf *gofpdf.Fpdf, i int, img image.Image) error {
	if err := pdf.Error(); err != nil {
		return abortExport(err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	name := fmt.Sprintf("slide-%d", i+1)
	imgOpt := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader(name, imgOpt, &buf)
	if err := pdf.Error(); err != nil {
		return abortExport(fmt.Errorf("register image: %w", err))
	}
	pdf.AddPage()
	pdf.ImageOptions(name, 0, 0, pageW, pageH, false, imgOpt, 0, "")
	if err := pdf.Error(); err != nil {
		return abortExport(err)
	}
	return nil
}

func resolvePDFPath(outPath, title string) (string, error) {
	if strings.TrimSpace(outPath) == "" {
		return FileName(title), nil
	}
	st, err := os.Stat(outPath)
	switch {
	case err == nil && st.IsDir():
		return filepath.Join(outPath, FileName(title)), nil
	case err == nil:
		return outPath, nil
	case errors.Is(err, os.ErrNotExist):
		if strings.HasSuffix(outPath, string(os.PathSeparator)) || strings.HasSuffix(outPath, "/") {
			return filepath.Join(outPath, FileName(title)), nil
		}
		return outPath, nil
	default:
		return "", err
	}
}
