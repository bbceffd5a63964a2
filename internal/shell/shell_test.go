/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package shell

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"goslides/internal/config"
	"goslides/internal/render"
	"goslides/internal/scene"
	"goslides/internal/store"
	"goslides/internal/textlayout"
)

func testConfig() config.AppConfig {
	cfg := config.Defaults()
	cfg.Storage.PollIntervalMs = 10
	return cfg
}

func newShell(t *testing.T, kv store.KV, identity string, opts Options) *Shell {
	t.Helper()
	opts.Config = testConfig()
	if opts.Renderer == nil {
		opts.Renderer = &render.Renderer{Fonts: textlayout.BasicProvider{}}
	}
	sh := New(store.New(kv), opts)
	if identity != "" {
		if err := sh.SetIdentity(identity); err != nil {
			t.Fatalf("SetIdentity: %v", err)
		}
	}
	t.Cleanup(sh.Close)
	return sh
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Create, add two slides, put a text on slide two, and read it back through
// the persisted document.
func TestCreateAddSlidesAndText(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	sh := newShell(t, kv, "alice", Options{})

	p, err := sh.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sh.View() != ViewEditor || sh.Role() != store.RoleCreator {
		t.Fatalf("view=%v role=%v", sh.View(), sh.Role())
	}
	for i := 0; i < 2; i++ {
		if _, err := sh.AddSlide(ctx); err != nil {
			t.Fatalf("AddSlide: %v", err)
		}
	}
	if sh.SlideIndex() != 2 {
		t.Fatalf("new slide should be active, index=%d", sh.SlideIndex())
	}
	if !sh.SelectSlide(1) {
		t.Fatalf("SelectSlide(1)")
	}
	c, err := sh.Canvas()
	if err != nil {
		t.Fatalf("Canvas: %v", err)
	}
	if c.AddText() == "" || !c.SetText("Hello") {
		t.Fatalf("text edit rejected for the creator")
	}

	got, err := store.New(kv).Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Slides) != 3 || !got.Slides[0].Empty() || !got.Slides[2].Empty() {
		t.Fatalf("unexpected slides: %+v", got.Slides)
	}
	sc, err := scene.Deserialize(got.Slides[1].Content)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	doc, err := scene.Serialize(sc)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	sc, _ = scene.Deserialize(doc)
	if sc.Count()[scene.KindText] != 1 || len(sc.Objects) != 1 {
		t.Fatalf("want exactly one text, got %v", sc.Count())
	}
	if v := sc.Objects[0].Shape.(scene.Text).Value; v != "Hello" {
		t.Fatalf("text = %q", v)
	}
}

func TestIdentityRequired(t *testing.T) {
	sh := newShell(t, store.NewMemoryKV(), "", Options{})
	if _, err := sh.Create(context.Background()); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("Create: %v", err)
	}
	if err := sh.SetIdentity("   "); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("SetIdentity: %v", err)
	}
	if _, err := sh.Canvas(); !errors.Is(err, ErrNoPresentation) {
		t.Fatalf("Canvas: %v", err)
	}
}

func TestViewerCannotEdit(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	alice := newShell(t, kv, "alice", Options{})
	p, _ := alice.Create(ctx)

	bob := newShell(t, kv, "bob", Options{})
	if _, err := bob.Open(ctx, p.ID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if bob.Role() != store.RoleViewer || bob.CanEdit() {
		t.Fatalf("joined user should be a read-only viewer")
	}
	c, _ := bob.Canvas()
	if c.AddRect() != "" || c.Interactive() {
		t.Fatalf("viewer canvas accepted an edit")
	}
	if _, err := bob.AddSlide(ctx); err != nil {
		t.Fatalf("AddSlide: %v", err)
	}
	got, _ := store.New(kv).Get(ctx, p.ID)
	if len(got.Slides) != 1 || !got.Slides[0].Empty() {
		t.Fatalf("viewer changed the deck: %+v", got.Slides)
	}
}

func TestZoomAndUserPanel(t *testing.T) {
	sh := newShell(t, store.NewMemoryKV(), "alice", Options{})
	if sh.Zoom() != 1 {
		t.Fatalf("initial zoom %v", sh.Zoom())
	}
	if z := sh.ZoomIn(); z != 1.1 {
		t.Fatalf("ZoomIn = %v", z)
	}
	for i := 0; i < 20; i++ {
		sh.ZoomIn()
	}
	if sh.Zoom() != MaxZoom {
		t.Fatalf("zoom should clamp at %v, got %v", MaxZoom, sh.Zoom())
	}
	for i := 0; i < 30; i++ {
		sh.ZoomOut()
	}
	if sh.Zoom() != MinZoom {
		t.Fatalf("zoom should clamp at %v, got %v", MinZoom, sh.Zoom())
	}
	if z := sh.SetZoom(1.234); z != 1.2 {
		t.Fatalf("SetZoom rounds to one decimal, got %v", z)
	}
	if !sh.UsersVisible() || sh.ToggleUsers() || sh.UsersVisible() {
		t.Fatalf("user panel toggle")
	}
}

func TestPlaybackKeys(t *testing.T) {
	ctx := context.Background()
	sh := newShell(t, store.NewMemoryKV(), "alice", Options{})
	_, _ = sh.Create(ctx)
	_, _ = sh.AddSlide(ctx)
	_, _ = sh.AddSlide(ctx)
	if err := sh.Present(); err != nil {
		t.Fatalf("Present: %v", err)
	}
	if sh.View() != ViewPresenting || sh.SlideIndex() != 0 || sh.CanEdit() {
		t.Fatalf("playback starts read-only at slide 0")
	}
	steps := []struct {
		key  string
		want int
	}{
		{KeyRight, 1}, {KeySpace, 2}, {KeyRight, 2}, {KeyLeft, 1}, {KeyLeft, 0}, {KeyLeft, 0},
	}
	for _, st := range steps {
		if !sh.HandleKey(st.key) {
			t.Fatalf("%s not consumed", st.key)
		}
		if got := sh.SlideIndex(); got != st.want {
			t.Fatalf("after %s: slide %d, want %d", st.key, got, st.want)
		}
	}
	if sh.HandleKey("x") {
		t.Fatalf("unknown key consumed")
	}
	sh.HandleKey(KeyEscape)
	if sh.View() != ViewEditor || !sh.CanEdit() {
		t.Fatalf("escape should return to the editor")
	}
}

func TestDeleteKeyRemovesSelection(t *testing.T) {
	ctx := context.Background()
	sh := newShell(t, store.NewMemoryKV(), "alice", Options{})
	_, _ = sh.Create(ctx)
	c, _ := sh.Canvas()
	c.AddCircle()
	if !sh.HandleKey(KeyDelete) {
		t.Fatalf("delete key not consumed")
	}
	if len(c.Scene().Objects) != 0 {
		t.Fatalf("circle not deleted")
	}
	if sh.HandleKey(KeyDelete) {
		t.Fatalf("nothing selected, nothing to consume")
	}
}

func TestSlideSwitchRebindsCanvas(t *testing.T) {
	ctx := context.Background()
	sh := newShell(t, store.NewMemoryKV(), "alice", Options{})
	_, _ = sh.Create(ctx)
	first, _ := sh.Canvas()
	again, _ := sh.Canvas()
	if first != again {
		t.Fatalf("same slide must keep its controller")
	}
	_, _ = sh.AddSlide(ctx)
	second, _ := sh.Canvas()
	if second == first || second.SlideID() == first.SlideID() {
		t.Fatalf("new slide needs a fresh controller")
	}
	if first.AddRect() != "" {
		t.Fatalf("torn-down controller still editable")
	}
}

func TestRemoveSlideKeepsActiveSlide(t *testing.T) {
	ctx := context.Background()
	sh := newShell(t, store.NewMemoryKV(), "alice", Options{})
	_, _ = sh.Create(ctx)
	_, _ = sh.AddSlide(ctx)
	p, _ := sh.AddSlide(ctx)
	active := p.Slides[2].ID
	p, err := sh.RemoveSlide(ctx, 0)
	if err != nil {
		t.Fatalf("RemoveSlide: %v", err)
	}
	if got := p.Slides[sh.SlideIndex()].ID; got != active {
		t.Fatalf("active slide moved to %s", got)
	}
	_, _ = sh.RemoveSlide(ctx, 1)
	_, _ = sh.RemoveSlide(ctx, 0)
	cur, _ := sh.Current()
	if len(cur.Slides) != 1 || sh.SlideIndex() != 0 {
		t.Fatalf("slides=%d index=%d", len(cur.Slides), sh.SlideIndex())
	}
}

// Another instance's edit reaches this instance's canvas through polling.
func TestReconcileReloadsCanvas(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	alice := newShell(t, kv, "alice", Options{})
	p, _ := alice.Create(ctx)

	updates := make(chan store.Presentation, 64)
	bob := newShell(t, kv, "bob", Options{OnUpdate: func(p store.Presentation) {
		select {
		case updates <- p:
		default:
		}
	}})
	if _, err := bob.Open(ctx, p.ID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	bc, _ := bob.Canvas()

	eventually(t, "alice to see bob", func() bool {
		cur, _ := alice.Current()
		return cur.RoleOf("bob") == store.RoleViewer
	})
	ac, _ := alice.Canvas()
	id := ac.AddRect()
	eventually(t, "rect on bob's canvas", func() bool {
		_, ok := bc.Scene().Find(id)
		return ok
	})
	if len(updates) == 0 {
		t.Fatalf("OnUpdate never fired")
	}

	if _, err := alice.ToggleRole(ctx, "bob"); err != nil {
		t.Fatalf("ToggleRole: %v", err)
	}
	eventually(t, "bob to become editor", bob.CanEdit)
	if bc.AddCircle() == "" {
		t.Fatalf("promoted editor still read-only")
	}
}

// Edits follow the slide they were made on even when another instance has
// reshaped the deck since the last poll.
func TestEditFollowsSlideAcrossRemoteRemoval(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	cfg := config.Defaults()
	cfg.Storage.PollIntervalMs = 60_000
	sh := New(store.New(kv), Options{Config: cfg, Renderer: &render.Renderer{Fonts: textlayout.BasicProvider{}}})
	t.Cleanup(sh.Close)
	if err := sh.SetIdentity("alice"); err != nil {
		t.Fatalf("SetIdentity: %v", err)
	}
	p, _ := sh.Create(ctx)
	_, _ = sh.AddSlide(ctx)
	_, _ = sh.AddSlide(ctx)
	sh.SelectSlide(1)
	c, err := sh.Canvas()
	if err != nil {
		t.Fatalf("Canvas: %v", err)
	}
	cur, _ := sh.Current()
	slideB, slideC := cur.Slides[1].ID, cur.Slides[2].ID

	other := store.New(kv)
	if _, err := other.RemoveSlide(ctx, p.ID, "alice", 0); err != nil {
		t.Fatalf("RemoveSlide: %v", err)
	}
	id := c.AddText()
	if id == "" {
		t.Fatalf("AddText returned no id")
	}
	got, _ := other.Get(ctx, p.ID)
	if len(got.Slides) != 2 || got.Slides[0].ID != slideB || got.Slides[1].ID != slideC {
		t.Fatalf("unexpected slides %+v", got.Slides)
	}
	if !bytes.Contains(got.Slides[0].Content, []byte(id)) {
		t.Fatalf("edit missing from its slide: %s", got.Slides[0].Content)
	}
	if !got.Slides[1].Empty() {
		t.Fatalf("edit landed on the neighbouring slide: %s", got.Slides[1].Content)
	}

	if _, err := other.RemoveSlide(ctx, p.ID, "alice", 0); err != nil {
		t.Fatalf("RemoveSlide: %v", err)
	}
	before, _ := other.Get(ctx, p.ID)
	c.AddRect()
	after, _ := other.Get(ctx, p.ID)
	if after.Version != before.Version || !after.Slides[0].Empty() {
		t.Fatalf("edit on a removed slide must be dropped: version %d->%d content=%s", before.Version, after.Version, after.Slides[0].Content)
	}
}

func TestExportThroughShell(t *testing.T) {
	ctx := context.Background()
	sh := newShell(t, store.NewMemoryKV(), "alice", Options{})
	if _, err := sh.ExportPDF(ctx, t.TempDir()); !errors.Is(err, ErrNoPresentation) {
		t.Fatalf("export without deck: %v", err)
	}
	_, _ = sh.Create(ctx)
	_, _ = sh.AddSlide(ctx)
	c, _ := sh.Canvas()
	c.AddRect()
	res, err := sh.ExportPDF(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("ExportPDF: %v", err)
	}
	if res.Pages != 2 || len(res.Skipped) != 0 {
		t.Fatalf("result %+v", res)
	}
	img, err := sh.RenderSlide(1)
	if err != nil || img.Bounds().Dx() != 960 {
		t.Fatalf("RenderSlide: %v", err)
	}
}

func TestDeleteReturnsToGallery(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	sh := newShell(t, kv, "alice", Options{})
	_, _ = sh.Create(ctx)
	sums, _ := sh.Gallery(ctx)
	if len(sums) != 1 || sums[0].Creator != "alice" {
		t.Fatalf("gallery %+v", sums)
	}
	ok, err := sh.Delete(ctx)
	if !ok || err != nil {
		t.Fatalf("Delete: %v %v", ok, err)
	}
	if sh.View() != ViewGallery {
		t.Fatalf("view = %v", sh.View())
	}
	if sums, _ := sh.Gallery(ctx); len(sums) != 0 {
		t.Fatalf("deck still listed")
	}
}
