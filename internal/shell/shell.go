/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package shell is the application layer above the store and the canvas. It
// tracks who the user is, which view is showing, which slide is active and the
// zoom level, keeps exactly one canvas controller bound to the active slide,
// and reconciles with changes other instances persist.
package shell

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"goslides/internal/canvas"
	"goslides/internal/config"
	"goslides/internal/export"
	applog "goslides/internal/log"
	"goslides/internal/render"
	"goslides/internal/scene"
	"goslides/internal/store"
	"goslides/internal/undo"
	"goslides/internal/vector"
)

// View is the screen the shell shows.
type View int

const (
	ViewGallery View = iota
	ViewEditor
	ViewPresenting
)

func (v View) String() string {
	switch v {
	case ViewEditor:
		return "editor"
	case ViewPresenting:
		return "presenting"
	default:
		return "gallery"
	}
}

const (
	MinZoom  = 0.5
	MaxZoom  = 2.0
	ZoomStep = 0.1
)

var (
	ErrNoIdentity     = errors.New("choose a display name first")
	ErrNoPresentation = errors.New("no presentation open")
)

// persistTimeout bounds one slide write triggered by an edit.
const persistTimeout = 5 * time.Second

// Options configure a Shell.
type Options struct {
	Config   config.AppConfig
	Renderer *render.Renderer
	Logger   *slog.Logger
	// Rasterizer overrides the export rasterizer.
	Rasterizer export.Rasterizer
	// OnUpdate is called after the open presentation changed, locally or
	// through reconciliation. It runs without any shell lock held.
	OnUpdate func(store.Presentation)
}

// Shell is safe for concurrent use. It never holds its own lock while calling
// into the canvas controller.
type Shell struct {
	st   *store.Store
	opts Options
	log  *slog.Logger
	hist *undo.Manager

	mu        sync.Mutex
	identity  string
	view      View
	cur       *store.Presentation
	slide     int
	zoom      float64
	showUsers bool
	stopWatch func()

	slot canvas.Slot
}

func New(st *store.Store, opts Options) *Shell {
	if opts.Renderer == nil {
		opts.Renderer = render.New()
	}
	l := opts.Logger
	if l == nil {
		l = applog.WithComponent("shell")
	}
	return &Shell{
		st:        st,
		opts:      opts,
		log:       l,
		hist:      undo.NewManager(undo.Config{MaxPerSlide: 100, MaxBytes: 64 << 20}),
		identity:  strings.TrimSpace(opts.Config.General.Identity),
		zoom:      1,
		showUsers: true,
	}
}

// SetIdentity sets the display name used for every store call.
func (s *Shell) SetIdentity(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNoIdentity
	}
	s.mu.Lock()
	s.identity = name
	s.mu.Unlock()
	return nil
}

func (s *Shell) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Shell) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *Shell) SlideIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slide
}

func (s *Shell) Zoom() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoom
}

func (s *Shell) UsersVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.showUsers
}

// Current returns the open presentation.
func (s *Shell) Current() (store.Presentation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return store.Presentation{}, false
	}
	return s.cur.Clone(), true
}

// Role is the user's role in the open presentation, "" when none is open.
func (s *Shell) Role() store.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return ""
	}
	return s.cur.RoleOf(s.identity)
}

// CanEdit reports whether the user may edit slides right now. The canvas
// consults it on every operation.
func (s *Shell) CanEdit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil && s.view == ViewEditor && s.cur.CanEdit(s.identity)
}

// Gallery lists every presentation.
func (s *Shell) Gallery(ctx context.Context) ([]store.Summary, error) {
	return s.st.Summaries(ctx)
}

// Create makes a new presentation owned by the user and opens it.
func (s *Shell) Create(ctx context.Context) (store.Presentation, error) {
	id := s.Identity()
	if id == "" {
		return store.Presentation{}, ErrNoIdentity
	}
	p, err := s.st.Create(ctx, id)
	if err != nil {
		return store.Presentation{}, err
	}
	s.open(p)
	return p, nil
}

// Open joins presentation id (as viewer when new) and opens it in the editor.
func (s *Shell) Open(ctx context.Context, id string) (store.Presentation, error) {
	who := s.Identity()
	if who == "" {
		return store.Presentation{}, ErrNoIdentity
	}
	p, err := s.st.Join(ctx, id, who)
	if err != nil {
		return store.Presentation{}, err
	}
	s.open(p)
	return p, nil
}

func (s *Shell) open(p store.Presentation) {
	s.stopWatching()
	s.slot.Release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.cur = &p
	s.view = ViewEditor
	s.slide = 0
	s.stopWatch = func() {
		cancel()
		<-done
	}
	s.mu.Unlock()

	interval := s.opts.Config.Storage.PollInterval()
	go func() {
		defer close(done)
		if err := s.st.Watch(ctx, p.ID, interval, s.reconcile); err != nil {
			s.log.Warn("reconciliation stopped", slog.Any("err", err))
		}
	}()
	s.log.Info("presentation opened", slog.String("presentation", p.ID), slog.String("role", string(p.RoleOf(s.Identity()))))
	s.notify(p)
}

func (s *Shell) stopWatching() {
	s.mu.Lock()
	stop := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// BackToGallery closes the open presentation.
func (s *Shell) BackToGallery() {
	s.stopWatching()
	s.slot.Release()
	s.mu.Lock()
	s.cur = nil
	s.view = ViewGallery
	s.slide = 0
	s.mu.Unlock()
}

// Close stops background work and tears the canvas down.
func (s *Shell) Close() { s.BackToGallery() }

// reconcile adopts a newer persisted copy of the open presentation and
// reloads the bound canvas from it.
func (s *Shell) reconcile(p store.Presentation) {
	s.mu.Lock()
	if s.cur == nil || s.cur.ID != p.ID || p.Version <= s.cur.Version {
		s.mu.Unlock()
		return
	}
	s.cur = &p
	s.slide = clampIndex(s.slide, len(p.Slides))
	active := p.Slides[s.slide]
	s.mu.Unlock()

	if c := s.slot.Current(); c != nil {
		if c.SlideID() == active.ID {
			c.Reload(active.Content)
		} else {
			s.slot.Release()
		}
	}
	s.log.Debug("reconciled", slog.String("presentation", p.ID), slog.Int64("version", p.Version))
	s.notify(p)
}

func (s *Shell) notify(p store.Presentation) {
	if s.opts.OnUpdate != nil {
		s.opts.OnUpdate(p.Clone())
	}
}

// adopt installs p as the open presentation after a local mutation.
func (s *Shell) adopt(p store.Presentation) {
	s.mu.Lock()
	if s.cur == nil || s.cur.ID != p.ID {
		s.mu.Unlock()
		return
	}
	if p.Version >= s.cur.Version {
		s.cur = &p
	}
	s.slide = clampIndex(s.slide, len(s.cur.Slides))
	s.mu.Unlock()
	s.notify(p)
}

func clampIndex(i, n int) int {
	if n <= 0 {
		return 0
	}
	return max(0, min(n-1, i))
}

func (s *Shell) openIDs() (pid, who string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return "", "", ErrNoPresentation
	}
	return s.cur.ID, s.identity, nil
}

// Canvas returns the controller bound to the active slide, building a fresh
// one when the active slide changed.
func (s *Shell) Canvas() (*canvas.Controller, error) {
	s.mu.Lock()
	if s.cur == nil {
		s.mu.Unlock()
		return nil, ErrNoPresentation
	}
	sl := s.cur.Slides[clampIndex(s.slide, len(s.cur.Slides))]
	s.mu.Unlock()
	c, created := s.slot.Bind(sl.ID, sl.Content, s.canvasOptions(sl.ID))
	if created {
		s.log.Debug("canvas bound", slog.String("slide", sl.ID), slog.String("state", c.State().String()))
	}
	return c, nil
}

func (s *Shell) canvasOptions(slideID string) canvas.Options {
	ed := s.opts.Config.Editor
	brush, err := vector.ParseHex(ed.BrushColor)
	if err != nil {
		brush = vector.Black
	}
	return canvas.Options{
		CanEdit:     s.CanEdit,
		OnChange:    func(doc []byte) { s.persistSlide(slideID, doc) },
		Renderer:    s.opts.Renderer,
		History:     s.hist,
		FontFamily:  ed.FontFamily,
		FontSize:    ed.FontSize,
		BrushColor:  brush,
		BrushWidth:  ed.BrushWidth,
		ImageMaxDim: float32(ed.ImageMaxDim),
	}
}

// persistSlide writes an edited slide back through the store.
func (s *Shell) persistSlide(slideID string, doc []byte) {
	s.mu.Lock()
	if s.cur == nil {
		s.mu.Unlock()
		return
	}
	pid, who := s.cur.ID, s.identity
	s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	ctx = applog.ContextWithSlide(applog.ContextWithPresentation(ctx, pid), slideID)
	ctx = applog.ContextWithActor(ctx, who)
	p, err := s.st.UpdateSlideContentByID(ctx, pid, who, slideID, doc)
	if errors.Is(err, store.ErrSlideNotFound) {
		s.log.WarnContext(ctx, "edit for a slide that no longer exists dropped")
		return
	}
	if err != nil {
		s.log.ErrorContext(ctx, "persist slide failed", slog.Any("err", err))
		return
	}
	s.adopt(p)
}

// SelectSlide makes slide i active. Out-of-range indexes are ignored.
func (s *Shell) SelectSlide(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || i < 0 || i >= len(s.cur.Slides) {
		return false
	}
	s.slide = i
	return true
}

// AddSlide appends a slide and makes it active. Creator only.
func (s *Shell) AddSlide(ctx context.Context) (store.Presentation, error) {
	pid, who, err := s.openIDs()
	if err != nil {
		return store.Presentation{}, err
	}
	before := s.slideCount()
	p, err := s.st.AddSlide(ctx, pid, who)
	if err != nil {
		return store.Presentation{}, err
	}
	s.adopt(p)
	if len(p.Slides) > before {
		s.SelectSlide(len(p.Slides) - 1)
	}
	return p, nil
}

// RemoveSlide deletes slide i. Creator only, never the last slide.
func (s *Shell) RemoveSlide(ctx context.Context, i int) (store.Presentation, error) {
	pid, who, err := s.openIDs()
	if err != nil {
		return store.Presentation{}, err
	}
	before := s.slideCount()
	p, err := s.st.RemoveSlide(ctx, pid, who, i)
	if err != nil {
		return store.Presentation{}, err
	}
	if len(p.Slides) < before {
		s.mu.Lock()
		if i < s.slide {
			s.slide--
		}
		s.mu.Unlock()
	}
	s.adopt(p)
	return p, nil
}

func (s *Shell) slideCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return 0
	}
	return len(s.cur.Slides)
}

// SetTitle renames the open presentation.
func (s *Shell) SetTitle(ctx context.Context, title string) (store.Presentation, error) {
	pid, who, err := s.openIDs()
	if err != nil {
		return store.Presentation{}, err
	}
	p, err := s.st.SetTitle(ctx, pid, who, title)
	if err != nil {
		return store.Presentation{}, err
	}
	s.adopt(p)
	return p, nil
}

// ToggleRole flips user between editor and viewer. Creator only.
func (s *Shell) ToggleRole(ctx context.Context, user string) (store.Presentation, error) {
	pid, who, err := s.openIDs()
	if err != nil {
		return store.Presentation{}, err
	}
	p, err := s.st.ToggleRole(ctx, pid, who, user)
	if err != nil {
		return store.Presentation{}, err
	}
	s.adopt(p)
	return p, nil
}

// Delete removes the open presentation and returns to the gallery. Creator only.
func (s *Shell) Delete(ctx context.Context) (bool, error) {
	pid, who, err := s.openIDs()
	if err != nil {
		return false, err
	}
	ok, err := s.st.Delete(ctx, pid, who)
	if err != nil || !ok {
		return ok, err
	}
	s.BackToGallery()
	return true, nil
}

// SetZoom sets the editor zoom, rounded to one decimal and clamped to 0.5..2.
func (s *Shell) SetZoom(z float64) float64 {
	z = math.Round(z*10) / 10
	z = max(MinZoom, min(MaxZoom, z))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = z
	return z
}

func (s *Shell) ZoomIn() float64  { return s.SetZoom(s.Zoom() + ZoomStep) }
func (s *Shell) ZoomOut() float64 { return s.SetZoom(s.Zoom() - ZoomStep) }

// ToggleUsers shows or hides the member panel.
func (s *Shell) ToggleUsers() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showUsers = !s.showUsers
	return s.showUsers
}

// Present enters playback at the first slide.
func (s *Shell) Present() error {
	s.mu.Lock()
	if s.cur == nil {
		s.mu.Unlock()
		return ErrNoPresentation
	}
	s.view = ViewPresenting
	s.slide = 0
	s.mu.Unlock()
	if c := s.slot.Current(); c != nil {
		c.ClearSelection()
	}
	return nil
}

// ExitPresentation returns from playback to the editor.
func (s *Shell) ExitPresentation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == ViewPresenting {
		s.view = ViewEditor
	}
}

// Next advances playback, staying on the last slide.
func (s *Shell) Next() int { return s.step(1) }

// Prev goes back in playback, staying on the first slide.
func (s *Shell) Prev() int { return s.step(-1) }

func (s *Shell) step(d int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		s.slide = clampIndex(s.slide+d, len(s.cur.Slides))
	}
	return s.slide
}

// Key names understood by HandleKey.
const (
	KeyRight     = "ArrowRight"
	KeyLeft      = "ArrowLeft"
	KeySpace     = "Space"
	KeyEscape    = "Escape"
	KeyDelete    = "Delete"
	KeyBackspace = "Backspace"
)

// HandleKey applies a keyboard command for the current view and reports
// whether it was consumed.
func (s *Shell) HandleKey(key string) bool {
	switch s.View() {
	case ViewPresenting:
		switch key {
		case KeyRight, KeySpace, " ":
			s.Next()
		case KeyLeft:
			s.Prev()
		case KeyEscape:
			s.ExitPresentation()
		default:
			return false
		}
		return true
	case ViewEditor:
		switch key {
		case KeyDelete, KeyBackspace:
			if c := s.slot.Current(); c != nil {
				return c.DeleteSelected()
			}
		case KeyEscape:
			if c := s.slot.Current(); c != nil {
				c.ClearSelection()
				return true
			}
		}
	}
	return false
}

// RenderSlide rasterizes slide i of the open presentation at full size.
func (s *Shell) RenderSlide(i int) (*image.RGBA, error) {
	s.mu.Lock()
	if s.cur == nil {
		s.mu.Unlock()
		return nil, ErrNoPresentation
	}
	if i < 0 || i >= len(s.cur.Slides) {
		s.mu.Unlock()
		return nil, fmt.Errorf("slide %d: %w", i, store.ErrSlideIndex)
	}
	content := s.cur.Slides[i].Content
	s.mu.Unlock()
	sc, err := scene.Deserialize(content)
	if err != nil {
		s.log.Warn("slide unreadable, showing blank", slog.Int("slide", i+1), slog.Any("err", err))
		sc = scene.New()
	}
	return s.opts.Renderer.Render(sc, int(scene.CanvasWidth), int(scene.CanvasHeight))
}

func (s *Shell) exportOptions() export.Options {
	return export.Options{
		Rasterizer: s.opts.Rasterizer,
		Settle:     s.opts.Config.Export.Settle(),
		Logger:     s.log.With(slog.String("op", "export")),
	}
}

// ExportPDF exports the persisted copy of the open presentation. An empty
// outPath uses the configured export directory.
func (s *Shell) ExportPDF(ctx context.Context, outPath string) (export.Result, error) {
	pid, _, err := s.openIDs()
	if err != nil {
		return export.Result{}, err
	}
	p, err := s.st.Get(ctx, pid)
	if err != nil {
		return export.Result{}, err
	}
	if outPath == "" {
		outPath = s.opts.Config.Export.Dir
	}
	return export.ExportPDF(ctx, p, outPath, export.PDFOptions{Options: s.exportOptions()})
}

// ExportPNG writes one PNG per slide of the open presentation into dir.
func (s *Shell) ExportPNG(ctx context.Context, dir string) (export.Result, error) {
	pid, _, err := s.openIDs()
	if err != nil {
		return export.Result{}, err
	}
	p, err := s.st.Get(ctx, pid)
	if err != nil {
		return export.Result{}, err
	}
	if dir == "" {
		dir = s.opts.Config.Export.Dir
	}
	return export.ExportPNG(ctx, p, dir, s.exportOptions())
}
