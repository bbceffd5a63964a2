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
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	editor "goslides/internal/canvas"
	applog "goslides/internal/log"
	"goslides/internal/render"
	"goslides/internal/scene"
	"goslides/internal/shell"
	"goslides/internal/store"
	"goslides/internal/version"
)

const opTimeout = 10 * time.Second

type desktopApp struct {
	fy   fyne.App
	w    fyne.Window
	opts Options
	sh   *shell.Shell
	rend *render.Renderer
	log  *slog.Logger

	// view whose widgets are currently mounted in the window
	view   shell.View
	status *widget.Label

	gallery     []store.Summary
	galleryList *widget.List

	cur        store.Presentation
	slide      *SlideCanvas
	slideList  *widget.List
	userList   *widget.List
	usersPanel fyne.CanvasObject
	title      *widget.Entry
	zoomLabel  *widget.Label
	textValue  *widget.Entry

	present *canvas.Image
	counter *widget.Label
}

// Run starts the Fyne-based desktop front-end and blocks until the window closes.
func Run(opts Options) error {
	if opts.Store == nil {
		return errors.New("ui: no store configured")
	}
	l := applog.WithComponent("ui")
	l.Info("starting UI", slog.String("version", version.String()))

	fy := app.NewWithID("goslides")
	w := fy.NewWindow("GoSlides")
	prefs := fy.Preferences()
	winW := max(800, prefs.IntWithFallback("window.width", 1280))
	winH := max(600, prefs.IntWithFallback("window.height", 800))
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	a := &desktopApp{fy: fy, w: w, opts: opts, rend: render.New(), log: l, status: widget.NewLabel("Ready")}
	a.sh = shell.New(opts.Store, shell.Options{
		Config:   opts.Config,
		Renderer: a.rend,
		Logger:   l,
		OnUpdate: func(store.Presentation) { fyne.Do(a.refresh) },
	})
	defer a.sh.Close()

	w.Canvas().SetOnTypedKey(a.typedKey)
	w.SetCloseIntercept(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		w.Close()
	})

	a.showGallery()
	w.Show()
	start := func() {
		if opts.Open != "" {
			a.open(opts.Open)
		}
	}
	if a.sh.Identity() == "" {
		a.askIdentity(start)
	} else {
		start()
	}
	fy.Run()
	return nil
}

func (a *desktopApp) do(op string, fn func(ctx context.Context) error) bool {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		a.log.Error(op+" failed", slog.Any("err", err))
		dialog.ShowError(err, a.w)
		return false
	}
	return true
}

func (a *desktopApp) askIdentity(then func()) {
	name := widget.NewEntry()
	name.SetPlaceHolder("Your display name")
	items := []*widget.FormItem{widget.NewFormItem("Name", name)}
	dialog.ShowForm("Welcome to GoSlides", "Continue", "Quit", items, func(ok bool) {
		if !ok {
			a.fy.Quit()
			return
		}
		if err := a.sh.SetIdentity(name.Text); err != nil {
			a.askIdentity(then)
			return
		}
		if a.opts.SaveIdentity != nil {
			if err := a.opts.SaveIdentity(a.sh.Identity()); err != nil {
				a.log.Warn("saving identity failed", slog.Any("err", err))
			}
		}
		a.refresh()
		then()
	}, a.w)
}

// refresh brings the mounted view in line with the shell.
func (a *desktopApp) refresh() {
	if v := a.sh.View(); v != a.view {
		switch v {
		case shell.ViewGallery:
			a.showGallery()
		case shell.ViewEditor:
			a.showEditor()
		case shell.ViewPresenting:
			a.showPresenting()
		}
		return
	}
	switch a.view {
	case shell.ViewGallery:
		a.loadGallery()
	case shell.ViewEditor:
		a.refreshEditor()
	case shell.ViewPresenting:
		a.refreshPresenting()
	}
}

func (a *desktopApp) typedKey(ev *fyne.KeyEvent) {
	key := shellKey(string(ev.Name))
	if key == "" || !a.sh.HandleKey(key) {
		return
	}
	a.refresh()
}

func (a *desktopApp) thumbnail(content []byte) image.Image {
	sc, err := scene.Deserialize(content)
	if err != nil {
		sc = scene.New()
	}
	img, _ := a.rend.Render(sc.Preview(), 240, 135)
	return img
}

// Gallery

func (a *desktopApp) showGallery() {
	a.sh.BackToGallery()
	a.view = shell.ViewGallery
	a.w.SetFullScreen(false)

	a.galleryList = widget.NewList(
		func() int { return len(a.gallery) },
		func() fyne.CanvasObject {
			thumb := canvas.NewImageFromImage(nil)
			thumb.FillMode = canvas.ImageFillContain
			thumb.SetMinSize(fyne.NewSize(160, 90))
			return container.NewHBox(thumb, widget.NewLabel(""))
		},
		func(i widget.ListItemID, o fyne.CanvasObject) {
			s := a.gallery[i]
			row := o.(*fyne.Container)
			thumb := row.Objects[0].(*canvas.Image)
			thumb.Image = a.thumbnail(s.FirstSlide)
			thumb.Refresh()
			row.Objects[1].(*widget.Label).SetText(fmt.Sprintf("%s\nby %s, %d slides, %d members", s.Title, s.Creator, s.SlideCount, s.UserCount))
		},
	)
	a.galleryList.OnSelected = func(i widget.ListItemID) {
		if i >= 0 && i < len(a.gallery) {
			a.open(a.gallery[i].ID)
		}
		a.galleryList.UnselectAll()
	}

	joinID := widget.NewEntry()
	joinID.SetPlaceHolder("Presentation ID")
	joinID.OnSubmitted = func(id string) { a.open(id) }
	top := container.NewBorder(nil, nil,
		widget.NewButtonWithIcon("New presentation", theme.ContentAddIcon(), a.create),
		widget.NewButton("Join", func() { a.open(joinID.Text) }),
		joinID,
	)
	who := widget.NewLabel("Signed in as " + a.sh.Identity())
	a.w.SetContent(container.NewBorder(top, container.NewHBox(who, a.status), nil, nil, a.galleryList))
	a.loadGallery()
}

func (a *desktopApp) loadGallery() {
	ok := a.do("list presentations", func(ctx context.Context) error {
		sums, err := a.sh.Gallery(ctx)
		if err != nil {
			return err
		}
		known := func(id string) bool {
			return slices.ContainsFunc(sums, func(s store.Summary) bool { return s.ID == id })
		}
		recent := loadRecent(a.fy.Preferences(), known)
		slices.SortStableFunc(sums, func(x, y store.Summary) int {
			rx, ry := slices.Index(recent, x.ID), slices.Index(recent, y.ID)
			switch {
			case rx < 0 && ry < 0:
				return 0
			case rx < 0:
				return 1
			case ry < 0:
				return -1
			}
			return rx - ry
		})
		a.gallery = sums
		return nil
	})
	if ok && a.galleryList != nil {
		a.galleryList.Refresh()
		a.status.SetText(fmt.Sprintf("%d presentations", len(a.gallery)))
	}
}

func (a *desktopApp) create() {
	var p store.Presentation
	if !a.do("create presentation", func(ctx context.Context) (err error) {
		p, err = a.sh.Create(ctx)
		return err
	}) {
		return
	}
	addRecent(a.fy.Preferences(), p.ID)
	a.showEditor()
}

func (a *desktopApp) open(id string) {
	if id == "" {
		return
	}
	var p store.Presentation
	if !a.do("open presentation", func(ctx context.Context) (err error) {
		p, err = a.sh.Open(ctx, id)
		return err
	}) {
		return
	}
	addRecent(a.fy.Preferences(), p.ID)
	a.showEditor()
}

// Editor

func (a *desktopApp) controller() *editor.Controller {
	c, err := a.sh.Canvas()
	if err != nil {
		return nil
	}
	return c
}

// edit applies fn to the active canvas and redraws.
func (a *desktopApp) edit(fn func(c *editor.Controller)) func() {
	return func() {
		if c := a.controller(); c != nil {
			fn(c)
		}
		a.slide.Redraw()
	}
}

func (a *desktopApp) pickColor(title string, apply func(hex string)) func() {
	return func() {
		d := dialog.NewColorPicker(title, "", func(c color.Color) { apply(hexOf(c)) }, a.w)
		d.Advanced = true
		d.Show()
	}
}

func (a *desktopApp) showEditor() {
	a.view = shell.ViewEditor
	a.w.SetFullScreen(false)
	a.slide = NewSlideCanvas(a.sh, a.rend.Fonts)
	a.slide.OnEdited = a.refreshPanels

	a.slideList = widget.NewList(
		func() int { return len(a.cur.Slides) },
		func() fyne.CanvasObject {
			thumb := canvas.NewImageFromImage(nil)
			thumb.FillMode = canvas.ImageFillContain
			thumb.SetMinSize(fyne.NewSize(120, 68))
			return container.NewHBox(widget.NewLabel(""), thumb)
		},
		func(i widget.ListItemID, o fyne.CanvasObject) {
			row := o.(*fyne.Container)
			row.Objects[0].(*widget.Label).SetText(strconv.Itoa(i + 1))
			thumb := row.Objects[1].(*canvas.Image)
			thumb.Image = a.thumbnail(a.cur.Slides[i].Content)
			thumb.Refresh()
		},
	)
	a.slideList.OnSelected = func(i widget.ListItemID) {
		if a.sh.SelectSlide(i) {
			a.slide.Redraw()
		}
	}
	addSlide := widget.NewButtonWithIcon("", theme.ContentAddIcon(), func() {
		a.do("add slide", func(ctx context.Context) error { _, err := a.sh.AddSlide(ctx); return err })
		a.refresh()
	})
	removeSlide := widget.NewButtonWithIcon("", theme.ContentRemoveIcon(), func() {
		a.do("remove slide", func(ctx context.Context) error { _, err := a.sh.RemoveSlide(ctx, a.sh.SlideIndex()); return err })
		a.refresh()
	})
	left := container.NewBorder(nil, container.NewHBox(addSlide, removeSlide), nil, nil, a.slideList)

	a.userList = widget.NewList(
		func() int { return len(a.cur.Users) },
		func() fyne.CanvasObject {
			return container.NewHBox(widget.NewLabel(""), widget.NewButton("Toggle", nil))
		},
		func(i widget.ListItemID, o fyne.CanvasObject) {
			u := a.cur.Users[i]
			row := o.(*fyne.Container)
			row.Objects[0].(*widget.Label).SetText(fmt.Sprintf("%s (%s)", u.Name, u.Role))
			btn := row.Objects[1].(*widget.Button)
			btn.OnTapped = func() {
				a.do("toggle role", func(ctx context.Context) error { _, err := a.sh.ToggleRole(ctx, u.Name); return err })
				a.refresh()
			}
			if a.sh.Role() == store.RoleCreator && u.Role != store.RoleCreator {
				btn.Enable()
			} else {
				btn.Disable()
			}
		},
	)
	a.usersPanel = container.NewBorder(widget.NewLabel("Members"), nil, nil, nil, a.userList)

	a.title = widget.NewEntry()
	a.title.OnSubmitted = func(t string) {
		a.do("rename", func(ctx context.Context) error { _, err := a.sh.SetTitle(ctx, t); return err })
		a.refresh()
	}
	back := widget.NewButtonWithIcon("", theme.NavigateBackIcon(), func() {
		a.sh.BackToGallery()
		a.refresh()
	})
	a.zoomLabel = widget.NewLabel("")
	header := container.NewBorder(nil, nil, back, container.NewHBox(
		widget.NewButtonWithIcon("", theme.ZoomOutIcon(), func() { a.sh.ZoomOut(); a.refreshEditor() }),
		a.zoomLabel,
		widget.NewButtonWithIcon("", theme.ZoomInIcon(), func() { a.sh.ZoomIn(); a.refreshEditor() }),
		widget.NewButtonWithIcon("", theme.AccountIcon(), func() { a.sh.ToggleUsers(); a.refreshEditor() }),
		widget.NewButtonWithIcon("Present", theme.MediaPlayIcon(), func() {
			if err := a.sh.Present(); err == nil {
				a.refresh()
			}
		}),
		widget.NewButtonWithIcon("PDF", theme.DocumentSaveIcon(), a.exportPDF),
		widget.NewButton("PNG", a.exportPNG),
	), a.title)

	a.textValue = widget.NewEntry()
	a.textValue.SetPlaceHolder("Text of the selected box")
	a.textValue.OnSubmitted = func(v string) { a.edit(func(c *editor.Controller) { c.SetText(v) })() }
	fontSizes := make([]string, 0, len(scene.FontSizes))
	for _, s := range scene.FontSizes {
		fontSizes = append(fontSizes, strconv.FormatFloat(float64(s), 'f', -1, 32))
	}
	sizeSel := widget.NewSelect(fontSizes, func(v string) {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			a.edit(func(c *editor.Controller) { c.SetFontSize(float32(f)) })()
		}
	})
	familySel := widget.NewSelect(scene.FontFamilies, func(v string) {
		a.edit(func(c *editor.Controller) { c.SetFontFamily(v) })()
	})
	brush := widget.NewSlider(editor.MinBrushWidth, editor.MaxBrushWidth)
	brush.Step = 1
	brush.OnChangeEnded = func(v float64) {
		if c := a.controller(); c != nil {
			c.SetBrushWidth(float32(v))
		}
	}
	draw := widget.NewCheck("Draw", func(on bool) {
		if c := a.controller(); c != nil && (c.Mode() == editor.ModeDraw) != on {
			c.ToggleDrawingMode()
		}
	})
	tools := container.NewHBox(
		widget.NewButton("Text", a.edit(func(c *editor.Controller) { c.AddText() })),
		widget.NewButton("Rect", a.edit(func(c *editor.Controller) { c.AddRect() })),
		widget.NewButton("Circle", a.edit(func(c *editor.Controller) { c.AddCircle() })),
		widget.NewButton("Arrow", a.edit(func(c *editor.Controller) { c.AddArrow() })),
		widget.NewButtonWithIcon("", theme.FileImageIcon(), a.importImage),
		widget.NewSeparator(),
		draw, brush,
		widget.NewButtonWithIcon("", theme.ColorPaletteIcon(), a.pickColor("Brush color", func(hex string) {
			if c := a.controller(); c != nil {
				_ = c.SetBrushColor(hex)
			}
		})),
		widget.NewSeparator(),
		familySel, sizeSel,
		widget.NewButton("B", a.edit(func(c *editor.Controller) { c.ToggleTextStyle(editor.Bold) })),
		widget.NewButton("I", a.edit(func(c *editor.Controller) { c.ToggleTextStyle(editor.Italic) })),
		widget.NewButton("U", a.edit(func(c *editor.Controller) { c.ToggleTextStyle(editor.Underline) })),
		widget.NewButton("Color", a.pickColor("Color", func(hex string) {
			a.edit(func(c *editor.Controller) { _, _ = c.SetColor(hex) })()
		})),
		widget.NewSeparator(),
		widget.NewButtonWithIcon("", theme.MoveUpIcon(), a.edit(func(c *editor.Controller) { c.BringToFront() })),
		widget.NewButtonWithIcon("", theme.MoveDownIcon(), a.edit(func(c *editor.Controller) { c.SendToBack() })),
		widget.NewButtonWithIcon("", theme.DeleteIcon(), a.edit(func(c *editor.Controller) { c.DeleteSelected() })),
		widget.NewButtonWithIcon("", theme.ContentUndoIcon(), a.edit(func(c *editor.Controller) { c.Undo() })),
		widget.NewButtonWithIcon("", theme.ContentRedoIcon(), a.edit(func(c *editor.Controller) { c.Redo() })),
	)
	top := container.NewVBox(header, container.NewHScroll(tools), a.textValue)

	center := container.NewHSplit(left, container.NewBorder(nil, nil, nil, a.usersPanel, a.slide))
	center.SetOffset(0.15)
	a.w.SetContent(container.NewBorder(top, a.status, nil, nil, center))
	a.refreshEditor()
}

func (a *desktopApp) refreshPanels() {
	cur, ok := a.sh.Current()
	if !ok {
		return
	}
	a.cur = cur
	a.slideList.Refresh()
	a.userList.Refresh()
	if a.title.Text != cur.Title && a.w.Canvas().Focused() != a.title {
		a.title.SetText(cur.Title)
	}
	if a.sh.CanEdit() {
		a.title.Enable()
	} else {
		a.title.Disable()
	}
	a.zoomLabel.SetText(fmt.Sprintf("%.0f%%", a.sh.Zoom()*100))
	if a.sh.UsersVisible() {
		a.usersPanel.Show()
	} else {
		a.usersPanel.Hide()
	}
	mode := "read-only"
	if a.sh.CanEdit() {
		mode = "editing"
	}
	a.status.SetText(fmt.Sprintf("%s as %s (%s), slide %d of %d, %s",
		cur.Title, a.sh.Identity(), a.sh.Role(), a.sh.SlideIndex()+1, len(cur.Slides), mode))
}

func (a *desktopApp) refreshEditor() {
	a.refreshPanels()
	a.slideList.Select(a.sh.SlideIndex())
	a.slide.Redraw()
	if c := a.controller(); c != nil && c.State() == editor.Failed {
		a.status.SetText(fmt.Sprintf("Slide %d could not be read: %v", a.sh.SlideIndex()+1, c.LoadErr()))
	}
}

func (a *desktopApp) importImage() {
	d := dialog.NewFileOpen(func(r fyne.URIReadCloser, err error) {
		if err != nil || r == nil {
			return
		}
		defer r.Close()
		a.do("import image", func(ctx context.Context) error {
			data, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			c := a.controller()
			if c == nil {
				return shell.ErrNoPresentation
			}
			_, err = c.ImportImage(ctx, data)
			return err
		})
		a.slide.Redraw()
	}, a.w)
	d.SetFilter(fstorage.NewExtensionFileFilter([]string{".png", ".jpg", ".jpeg", ".gif"}))
	d.Show()
}

func (a *desktopApp) exportPDF() {
	a.exportTo("PDF", func(ctx context.Context, dir string) (string, error) {
		res, err := a.sh.ExportPDF(ctx, dir)
		return exportSummary(res.Path, res.Pages, len(res.Skipped)), err
	})
}

func (a *desktopApp) exportPNG() {
	a.exportTo("PNG", func(ctx context.Context, dir string) (string, error) {
		res, err := a.sh.ExportPNG(ctx, dir)
		return exportSummary(dir, res.Pages, len(res.Skipped)), err
	})
}

func exportSummary(where string, pages, skipped int) string {
	msg := fmt.Sprintf("Wrote %d pages to %s", pages, where)
	if skipped > 0 {
		msg += fmt.Sprintf(", %d slides skipped", skipped)
	}
	return msg
}

// exportTo asks for a target folder and runs fn off the UI thread.
func (a *desktopApp) exportTo(kind string, fn func(ctx context.Context, dir string) (string, error)) {
	dialog.ShowFolderOpen(func(dir fyne.ListableURI, err error) {
		if err != nil || dir == nil {
			return
		}
		a.status.SetText("Exporting " + kind + "...")
		go func() {
			msg, err := fn(context.Background(), dir.Path())
			fyne.Do(func() {
				if err != nil {
					a.log.Error("export failed", slog.String("kind", kind), slog.Any("err", err))
					dialog.ShowError(err, a.w)
					return
				}
				a.status.SetText(msg)
				dialog.ShowInformation("Export "+kind, msg, a.w)
			})
		}()
	}, a.w)
}

// Playback

func (a *desktopApp) showPresenting() {
	a.view = shell.ViewPresenting
	a.present = canvas.NewImageFromImage(nil)
	a.present.FillMode = canvas.ImageFillContain
	a.counter = widget.NewLabel("")
	bg := canvas.NewRectangle(color.Black)
	a.w.SetContent(container.NewBorder(nil, container.NewCenter(a.counter), nil, nil, container.NewStack(bg, a.present)))
	a.w.SetFullScreen(true)
	a.refreshPresenting()
}

func (a *desktopApp) refreshPresenting() {
	i := a.sh.SlideIndex()
	img, err := a.sh.RenderSlide(i)
	if img == nil {
		a.log.Warn("slide render failed", slog.Int("slide", i+1), slog.Any("err", err))
		return
	}
	a.present.Image = img
	a.present.Refresh()
	if cur, ok := a.sh.Current(); ok {
		a.counter.SetText(fmt.Sprintf("%d / %d", i+1, len(cur.Slides)))
	}
}
