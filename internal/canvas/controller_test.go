/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"

	"goslides/internal/render"
	"goslides/internal/scene"
	"goslides/internal/textlayout"
	"goslides/internal/vector"
)

type harness struct {
	c       *Controller
	canEdit atomic.Bool
	docs    [][]byte
}

func newHarness(t *testing.T, content []byte, preview bool) *harness {
	t.Helper()
	h := &harness{}
	h.canEdit.Store(true)
	h.c = New("slide-1", content, Options{
		CanEdit:  h.canEdit.Load,
		Preview:  preview,
		OnChange: func(doc []byte) { h.docs = append(h.docs, doc) },
		Renderer: &render.Renderer{Fonts: textlayout.BasicProvider{}},
	})
	return h
}

func (h *harness) lastScene(t *testing.T) scene.Scene {
	t.Helper()
	if len(h.docs) == 0 {
		t.Fatalf("no change notification")
	}
	sc, err := scene.Deserialize(h.docs[len(h.docs)-1])
	if err != nil {
		t.Fatalf("notified document does not deserialize: %v", err)
	}
	return sc
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png: %v", err)
	}
	return buf.Bytes()
}

func TestLoadStates(t *testing.T) {
	h := newHarness(t, nil, false)
	if h.c.State() != Ready || len(h.c.Scene().Objects) != 0 {
		t.Fatalf("null content should load an empty ready scene, state=%v", h.c.State())
	}

	bad := newHarness(t, []byte(`{"objects":[{"type":"blob","id":"x"}]}`), false)
	if bad.c.State() != Failed {
		t.Fatalf("corrupt content should fail, state=%v", bad.c.State())
	}
	var de *scene.DeserializationError
	if !errors.As(bad.c.LoadErr(), &de) {
		t.Fatalf("LoadErr = %v", bad.c.LoadErr())
	}
	if len(bad.c.Scene().Objects) != 0 || len(bad.docs) != 0 {
		t.Fatalf("failed load must fall back to an empty scene without notifying")
	}
	if bad.c.AddRect() == "" || bad.c.State() != Ready {
		t.Fatalf("edits from Failed should move the instance to Ready")
	}
}

// Listeners see the selection that belongs to the notified document.
func TestSelectionSettledBeforeNotify(t *testing.T) {
	var c *Controller
	var seen [][]string
	c = New("slide-1", nil, Options{
		CanEdit:  func() bool { return true },
		OnChange: func([]byte) { seen = append(seen, c.Selection()) },
		Renderer: &render.Renderer{Fonts: textlayout.BasicProvider{}},
	})
	id := c.AddRect()
	if len(seen) != 1 || len(seen[0]) != 1 || seen[0][0] != id {
		t.Fatalf("selection during add notification = %v, want [%s]", seen, id)
	}
	if !c.DeleteSelected() {
		t.Fatalf("DeleteSelected")
	}
	if len(seen) != 2 || len(seen[1]) != 0 {
		t.Fatalf("selection during delete notification = %v", seen)
	}
}

func TestAddDrawableEmitsOnce(t *testing.T) {
	h := newHarness(t, nil, false)
	id := h.c.AddText()
	if id == "" || len(h.docs) != 1 {
		t.Fatalf("AddText: id=%q notifications=%d", id, len(h.docs))
	}
	if sel := h.c.Selection(); len(sel) != 1 || sel[0] != id {
		t.Fatalf("new drawable should be the sole selection, got %v", sel)
	}
	h.c.AddRect()
	h.c.AddCircle()
	h.c.AddArrow()
	if len(h.docs) != 4 {
		t.Fatalf("want 4 notifications, got %d", len(h.docs))
	}
	sc := h.lastScene(t)
	kinds := []scene.Kind{scene.KindText, scene.KindRect, scene.KindCircle, scene.KindPath}
	for i, k := range kinds {
		if sc.Objects[i].Kind() != k {
			t.Fatalf("z-order %d: got %s want %s", i, sc.Objects[i].Kind(), k)
		}
	}
	if !bytes.Equal(h.c.Document(), h.docs[3]) {
		t.Fatalf("Document() should match the last notification")
	}
}

// A viewer deleting a selected drawable changes nothing and notifies nobody.
func TestViewerDeleteSelectedIsNoop(t *testing.T) {
	h := newHarness(t, nil, false)
	id := h.c.AddRect()
	before := h.c.Document()
	n := len(h.docs)

	h.canEdit.Store(false)
	if got := h.c.Selection(); len(got) != 1 || got[0] != id {
		t.Fatalf("precondition: rect selected, got %v", got)
	}
	if h.c.DeleteSelected() {
		t.Fatalf("DeleteSelected reported a change for a viewer")
	}
	if !bytes.Equal(before, h.c.Document()) || len(h.docs) != n {
		t.Fatalf("scene or notification stream changed")
	}
	if h.c.Interactive() {
		t.Fatalf("viewer surface must not be interactive")
	}
}

func TestReadOnlyRejectsEveryMutation(t *testing.T) {
	h := newHarness(t, nil, false)
	h.c.AddText()
	before := h.c.Document()
	n := len(h.docs)
	h.canEdit.Store(false)

	ops := map[string]func(){
		"add":        func() { h.c.AddCircle() },
		"font size":  func() { h.c.SetFontSize(48) },
		"family":     func() { h.c.SetFontFamily("Georgia") },
		"bold":       func() { h.c.ToggleTextStyle(Bold) },
		"color":      func() { _, _ = h.c.SetColor("#ff0000") },
		"delete":     func() { h.c.DeleteSelected() },
		"text":       func() { h.c.SetText("x") },
		"move":       func() { h.c.MoveSelected(5, 5) },
		"scale":      func() { h.c.ScaleSelected(2) },
		"rotate":     func() { h.c.RotateSelected(45) },
		"front":      func() { h.c.BringToFront() },
		"back":       func() { h.c.SendToBack() },
		"undo":       func() { h.c.Undo() },
		"draw":       func() { h.c.ToggleDrawingMode(); h.c.PointerDown(vector.Pt{}); h.c.PointerUp(vector.Pt{X: 9}) },
		"image":      func() { _, _ = h.c.ImportImage(context.Background(), pngBytes(t, 4, 4)) },
		"select-at":  func() { h.c.SelectAt(vector.Pt{X: 110, Y: 110}) },
		"drag-moves": func() { h.c.PointerDown(vector.Pt{X: 110, Y: 110}); h.c.PointerUp(vector.Pt{X: 300, Y: 300}) },
	}
	for name, op := range ops {
		op()
		if !bytes.Equal(before, h.c.Document()) || len(h.docs) != n {
			t.Fatalf("%s: read-only controller changed state", name)
		}
	}
	if h.c.Mode() != ModeSelect {
		t.Fatalf("drawing mode toggled while read-only")
	}
}

// Drawing mode captures one freehand stroke using the brush at drag start.
func TestFreehandStrokeUsesBrushAtDragStart(t *testing.T) {
	h := newHarness(t, nil, false)
	if err := h.c.SetBrushColor("#ff0000"); err != nil {
		t.Fatalf("SetBrushColor: %v", err)
	}
	h.c.SetBrushWidth(5)
	if h.c.ToggleDrawingMode() != ModeDraw {
		t.Fatalf("expected draw mode")
	}
	h.c.PointerDown(vector.Pt{X: 10, Y: 10})
	h.c.PointerMove(vector.Pt{X: 20, Y: 15})
	_ = h.c.SetBrushColor("#00ff00")
	h.c.SetBrushWidth(9)
	h.c.PointerMove(vector.Pt{X: 30, Y: 30})
	if len(h.docs) != 0 {
		t.Fatalf("no notification before the drag ends")
	}
	h.c.PointerUp(vector.Pt{X: 40, Y: 35})

	if len(h.docs) != 1 {
		t.Fatalf("want exactly one notification, got %d", len(h.docs))
	}
	sc := h.lastScene(t)
	if got := sc.Count()[scene.KindStroke]; got != 1 || len(sc.Objects) != 1 {
		t.Fatalf("want one freehand stroke, got %v", sc.Count())
	}
	d := sc.Objects[0]
	if d.Stroke != vector.MustHex("#ff0000") || d.StrokeWidth != 5 {
		t.Fatalf("stroke paint = %v/%v, want brush at drag start", d.Stroke.Hex(), d.StrokeWidth)
	}
	if pts := d.Shape.(scene.Freehand).Points; len(pts) != 4 {
		t.Fatalf("want 4 captured points, got %d", len(pts))
	}
}

func TestBrushWidthClamped(t *testing.T) {
	h := newHarness(t, nil, false)
	if w := h.c.SetBrushWidth(0); w != MinBrushWidth {
		t.Fatalf("low clamp: %v", w)
	}
	if w := h.c.SetBrushWidth(99); w != MaxBrushWidth {
		t.Fatalf("high clamp: %v", w)
	}
}

func TestTextFormatting(t *testing.T) {
	h := newHarness(t, nil, false)
	h.c.AddText()
	if !h.c.ToggleTextStyle(Bold) || !h.c.ToggleTextStyle(Underline) {
		t.Fatalf("style toggles should apply to selected text")
	}
	h.c.SetFontSize(48)
	h.c.SetFontFamily("Georgia")
	h.c.SetText("Hello")
	tx := h.lastScene(t).Objects[0].Shape.(scene.Text)
	if !tx.Bold || tx.Italic || !tx.Underline || tx.FontSize != 48 || tx.FontFamily != "Georgia" || tx.Value != "Hello" {
		t.Fatalf("unexpected text: %+v", tx)
	}
	h.c.ToggleTextStyle(Bold)
	if h.lastScene(t).Objects[0].Shape.(scene.Text).Bold {
		t.Fatalf("second toggle should clear bold")
	}

	n := len(h.docs)
	h.c.AddRect()
	n++
	if h.c.ToggleTextStyle(Italic) || h.c.SetFontSize(12) || len(h.docs) != n {
		t.Fatalf("text ops on a non-text selection must not emit")
	}
	if fam, size := h.c.Font(); fam != "Georgia" || size != 12 {
		t.Fatalf("toolbar font = %s %v", fam, size)
	}
}

func TestSetColorTargetsStrokeOrFill(t *testing.T) {
	h := newHarness(t, nil, false)
	h.c.AddRect()
	if ok, err := h.c.SetColor("#112233"); !ok || err != nil {
		t.Fatalf("SetColor rect: %v %v", ok, err)
	}
	h.c.AddArrow()
	if ok, _ := h.c.SetColor("#445566"); !ok {
		t.Fatalf("SetColor arrow")
	}
	sc := h.lastScene(t)
	if sc.Objects[0].Fill.Hex() != "#112233" {
		t.Fatalf("rect fill = %s", sc.Objects[0].Fill.Hex())
	}
	if sc.Objects[1].Stroke.Hex() != "#445566" || !sc.Objects[1].Fill.None() {
		t.Fatalf("arrow stroke = %s fill = %s", sc.Objects[1].Stroke.Hex(), sc.Objects[1].Fill.Hex())
	}
	if _, err := h.c.SetColor("purple"); err == nil {
		t.Fatalf("invalid color should error")
	}
}

func TestDeleteSelectedAndEmptySelection(t *testing.T) {
	h := newHarness(t, nil, false)
	a := h.c.AddRect()
	b := h.c.AddCircle()
	h.c.Select(a, b, "missing")
	if !h.c.DeleteSelected() {
		t.Fatalf("delete should report a change")
	}
	if len(h.c.Scene().Objects) != 0 || len(h.c.Selection()) != 0 {
		t.Fatalf("scene and selection should be empty")
	}
	n := len(h.docs)
	if h.c.DeleteSelected() || len(h.docs) != n {
		t.Fatalf("empty selection delete must be a silent no-op")
	}
}

func TestPointerMoveCommitsOnRelease(t *testing.T) {
	h := newHarness(t, nil, false)
	id := h.c.AddRect()
	h.c.ClearSelection()
	n := len(h.docs)

	h.c.PointerDown(vector.Pt{X: 150, Y: 150})
	if sel := h.c.Selection(); len(sel) != 1 || sel[0] != id {
		t.Fatalf("pointer down should select the rect, got %v", sel)
	}
	h.c.PointerMove(vector.Pt{X: 155, Y: 160})
	h.c.PointerMove(vector.Pt{X: 160, Y: 170})
	if len(h.docs) != n {
		t.Fatalf("moves are transient until release")
	}
	h.c.PointerUp(vector.Pt{X: 160, Y: 170})
	if len(h.docs) != n+1 {
		t.Fatalf("release should emit exactly once")
	}
	d, _ := h.lastScene(t).Find(id)
	if d.Left != 110 || d.Top != 120 {
		t.Fatalf("moved to %v,%v", d.Left, d.Top)
	}
	if !h.c.Undo() {
		t.Fatalf("undo after move")
	}
	d, _ = h.lastScene(t).Find(id)
	if d.Left != 100 || d.Top != 100 {
		t.Fatalf("undo restored %v,%v", d.Left, d.Top)
	}

	// click on empty canvas clears the selection without emitting
	n = len(h.docs)
	h.c.PointerDown(vector.Pt{X: 900, Y: 500})
	h.c.PointerUp(vector.Pt{X: 900, Y: 500})
	if len(h.c.Selection()) != 0 || len(h.docs) != n {
		t.Fatalf("empty click: selection=%v notifications=%d", h.c.Selection(), len(h.docs)-n)
	}
}

func TestTransformsAndRestack(t *testing.T) {
	h := newHarness(t, nil, false)
	a := h.c.AddRect()
	b := h.c.AddCircle()
	h.c.Select(a)
	h.c.MoveSelected(10, -10)
	h.c.ScaleSelected(2)
	h.c.RotateSelected(-90)
	h.c.BringToFront()
	sc := h.lastScene(t)
	if sc.Index(a) != 1 || sc.Index(b) != 0 {
		t.Fatalf("rect should be on top")
	}
	d, _ := sc.Find(a)
	if d.Left != 110 || d.Top != 90 || d.ScaleX != 2 || d.Angle != 270 {
		t.Fatalf("unexpected geometry %+v", d.Geometry)
	}
	h.c.SendToBack()
	if h.lastScene(t).Index(a) != 0 {
		t.Fatalf("rect should be at the bottom")
	}
}

func TestUndoRedo(t *testing.T) {
	h := newHarness(t, nil, false)
	h.c.AddRect()
	h.c.AddCircle()
	if !h.c.Undo() || len(h.lastScene(t).Objects) != 1 {
		t.Fatalf("undo should remove the circle")
	}
	if !h.c.Redo() || len(h.lastScene(t).Objects) != 2 {
		t.Fatalf("redo should restore the circle")
	}
	if h.c.Redo() {
		t.Fatalf("nothing left to redo")
	}
}

func TestImportImage(t *testing.T) {
	h := newHarness(t, nil, false)
	id, err := h.c.ImportImage(context.Background(), pngBytes(t, 600, 300))
	if err != nil || id == "" {
		t.Fatalf("ImportImage: %q %v", id, err)
	}
	d, _ := h.lastScene(t).Find(id)
	img := d.Shape.(scene.Image)
	if img.Width != 600 || img.Height != 300 || d.ScaleX != 0.5 || d.ScaleY != 0.5 {
		t.Fatalf("image %+v at scale %v", img, d.ScaleX)
	}
	if _, err := render.DecodeDataURL(img.Src); err != nil {
		t.Fatalf("embedded src should decode: %v", err)
	}

	n := len(h.docs)
	_, err = h.c.ImportImage(context.Background(), []byte("definitely not an image"))
	var ae *AssetDecodeError
	if !errors.As(err, &ae) || len(h.docs) != n {
		t.Fatalf("bad bytes: err=%v notifications=%d", err, len(h.docs)-n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.c.ImportImage(ctx, pngBytes(t, 2, 2)); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled import: %v", err)
	}
}

func TestPreviewNeverEdits(t *testing.T) {
	src := scene.New()
	_ = src.Add(scene.NewRect())
	doc, _ := scene.Serialize(src)
	h := newHarness(t, doc, true)
	if h.c.AddRect() != "" || len(h.docs) != 0 || h.c.Interactive() {
		t.Fatalf("preview instances are read-only")
	}
	img, err := h.c.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if img.Bounds().Dx() != 240 || img.Bounds().Dy() != 135 {
		t.Fatalf("preview surface = %v", img.Bounds())
	}
	if !bytes.Equal(h.c.Document(), doc) {
		t.Fatalf("preview must keep canonical coordinates")
	}
}

func TestReloadDoesNotNotify(t *testing.T) {
	h := newHarness(t, nil, false)
	other := scene.New()
	r := scene.NewRect()
	_ = other.Add(r)
	doc, _ := scene.Serialize(other)
	h.c.Reload(doc)
	if len(h.docs) != 0 {
		t.Fatalf("reload must not emit")
	}
	if _, ok := h.c.Scene().Find(r.ID); !ok {
		t.Fatalf("reloaded scene missing rect")
	}
	h.c.Reload([]byte("{broken"))
	if _, ok := h.c.Scene().Find(r.ID); !ok {
		t.Fatalf("unreadable reload should keep the current scene")
	}
}

func TestCloseIgnoresOperations(t *testing.T) {
	h := newHarness(t, nil, false)
	h.c.AddRect()
	h.c.Close()
	n := len(h.docs)
	if h.c.State() != Uninitialized {
		t.Fatalf("closed state = %v", h.c.State())
	}
	if h.c.AddCircle() != "" || len(h.docs) != n {
		t.Fatalf("closed controller accepted an edit")
	}
	if _, err := h.c.Render(); err == nil {
		t.Fatalf("closed controller should not render")
	}
}

func TestSlotIdentity(t *testing.T) {
	var s Slot
	opts := Options{CanEdit: func() bool { return true }}
	a, created := s.Bind("s1", nil, opts)
	if !created {
		t.Fatalf("first bind creates")
	}
	a.AddRect()
	same, created := s.Bind("s1", nil, opts)
	if created || same != a || len(same.Scene().Objects) != 1 {
		t.Fatalf("same slide id must keep the instance")
	}
	b, created := s.Bind("s2", nil, opts)
	if !created || b == a {
		t.Fatalf("new slide id must build a fresh instance")
	}
	if a.State() != Uninitialized || a.AddRect() != "" {
		t.Fatalf("previous instance should be torn down")
	}
	s.Release()
	if s.Current() != nil || b.State() != Uninitialized {
		t.Fatalf("release should close the instance")
	}
}
