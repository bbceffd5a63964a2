/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"goslides/internal/scene"
)

func newStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	s := New(NewMemoryKV())
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return fixed }
	return s, context.Background()
}

func TestCreateDefaults(t *testing.T) {
	s, ctx := newStore(t)
	p, err := s.Create(ctx, "  alice ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Title != DefaultTitle || p.Creator != "alice" || len(p.Slides) != 1 || !p.Slides[0].Empty() {
		t.Fatalf("unexpected presentation %+v", p)
	}
	if want := []User{{Name: "alice", Role: RoleCreator}}; !cmp.Equal(p.Users, want) {
		t.Fatalf("users: %s", cmp.Diff(want, p.Users))
	}
	got, err := s.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(p, got); diff != "" {
		t.Fatalf("persisted copy differs (-created +persisted):\n%s", diff)
	}
	if _, err := s.Create(ctx, " "); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("blank identity: %v", err)
	}
}

func TestUnknownPresentation(t *testing.T) {
	s, ctx := newStore(t)
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get: %v", err)
	}
	if _, err := s.Join(ctx, "nope", "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Join: %v", err)
	}
	if _, err := s.Delete(ctx, "nope", "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete: %v", err)
	}
}

// Joining adds a viewer once; joining again leaves the member list alone.
func TestJoinAddsViewerOnce(t *testing.T) {
	s, ctx := newStore(t)
	p, _ := s.Create(ctx, "alice")
	p1, err := s.Join(ctx, p.ID, "bob")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if p1.RoleOf("bob") != RoleViewer || len(p1.Users) != 2 {
		t.Fatalf("after join: %+v", p1.Users)
	}
	p2, err := s.Join(ctx, p.ID, "bob")
	if err != nil {
		t.Fatalf("second Join: %v", err)
	}
	if len(p2.Users) != 2 || p2.Version != p1.Version {
		t.Fatalf("second join changed the presentation: users=%d version %d->%d", len(p2.Users), p1.Version, p2.Version)
	}
	p3, _ := s.Join(ctx, p.ID, "alice")
	if p3.RoleOf("alice") != RoleCreator || len(p3.Users) != 2 {
		t.Fatalf("creator join must not demote")
	}
}

func TestUpdateSlideContentPermissions(t *testing.T) {
	s, ctx := newStore(t)
	p, _ := s.Create(ctx, "alice")
	_, _ = s.Join(ctx, p.ID, "bob")
	doc := []byte(`{"version":1,"objects":[]}`)

	got, err := s.UpdateSlideContent(ctx, p.ID, "bob", 0, doc)
	if err != nil || !got.Slides[0].Empty() {
		t.Fatalf("viewer update must be a silent no-op: err=%v content=%s", err, got.Slides[0].Content)
	}
	got, _ = s.UpdateSlideContent(ctx, p.ID, "stranger", 0, doc)
	if !got.Slides[0].Empty() {
		t.Fatalf("non-member update applied")
	}

	_, _ = s.ToggleRole(ctx, p.ID, "alice", "bob")
	got, err = s.UpdateSlideContent(ctx, p.ID, "bob", 0, doc)
	if err != nil || string(got.Slides[0].Content) != string(doc) {
		t.Fatalf("editor update: err=%v content=%s", err, got.Slides[0].Content)
	}
	if _, err := s.UpdateSlideContent(ctx, p.ID, "alice", 3, doc); !errors.Is(err, ErrSlideIndex) {
		t.Fatalf("bad index: %v", err)
	}
	if _, err := s.UpdateSlideContent(ctx, p.ID, "alice", 0, []byte("{nope")); !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("invalid content: %v", err)
	}
	got, _ = s.UpdateSlideContent(ctx, p.ID, "alice", 0, []byte("null"))
	if !got.Slides[0].Empty() {
		t.Fatalf("null content should clear the slide")
	}
}

func TestUpdateSlideContentRejectsNonScenes(t *testing.T) {
	s, ctx := newStore(t)
	p, _ := s.Create(ctx, "alice")
	for _, doc := range []string{
		`{"objects":[{"type":"bogus","id":"x"}]}`,
		`{"objects":[{"type":"rect"}]}`,
		`[1,2,3]`,
		`{"version":99,"objects":[]}`,
	} {
		_, err := s.UpdateSlideContent(ctx, p.ID, "alice", 0, []byte(doc))
		if !errors.Is(err, ErrInvalidContent) || !scene.IsDeserializationError(err) {
			t.Fatalf("%s: err=%v", doc, err)
		}
	}
	got, _ := s.Get(ctx, p.ID)
	if got.Version != p.Version || !got.Slides[0].Empty() {
		t.Fatalf("rejected content was persisted: version %d->%d", p.Version, got.Version)
	}
}

func TestUpdateSlideContentByID(t *testing.T) {
	s, ctx := newStore(t)
	p, _ := s.Create(ctx, "alice")
	p, _ = s.AddSlide(ctx, p.ID, "alice")
	target := p.Slides[1].ID
	doc := []byte(`{"version":1,"objects":[]}`)

	p, _ = s.RemoveSlide(ctx, p.ID, "alice", 0)
	got, err := s.UpdateSlideContentByID(ctx, p.ID, "alice", target, doc)
	if err != nil || got.Slides[0].ID != target || string(got.Slides[0].Content) != string(doc) {
		t.Fatalf("update by id: err=%v slides=%+v", err, got.Slides)
	}
	if _, err := s.UpdateSlideContentByID(ctx, p.ID, "alice", "gone", doc); !errors.Is(err, ErrSlideNotFound) {
		t.Fatalf("missing slide: %v", err)
	}
	after, _ := s.UpdateSlideContentByID(ctx, p.ID, "stranger", target, nil)
	if after.Slides[0].Empty() {
		t.Fatalf("non-member cleared the slide")
	}
}

func TestSlideCountInvariant(t *testing.T) {
	s, ctx := newStore(t)
	p, _ := s.Create(ctx, "alice")
	_, _ = s.Join(ctx, p.ID, "bob")
	_, _ = s.ToggleRole(ctx, p.ID, "alice", "bob")

	got, _ := s.RemoveSlide(ctx, p.ID, "alice", 0)
	if len(got.Slides) != 1 {
		t.Fatalf("last slide removed")
	}
	got, _ = s.AddSlide(ctx, p.ID, "bob")
	if len(got.Slides) != 1 {
		t.Fatalf("editor added a slide")
	}
	got, _ = s.AddSlide(ctx, p.ID, "alice")
	got, _ = s.AddSlide(ctx, p.ID, "alice")
	if len(got.Slides) != 3 {
		t.Fatalf("want 3 slides, got %d", len(got.Slides))
	}
	second := got.Slides[1].ID
	got, _ = s.RemoveSlide(ctx, p.ID, "bob", 0)
	if len(got.Slides) != 3 {
		t.Fatalf("editor removed a slide")
	}
	got, err := s.RemoveSlide(ctx, p.ID, "alice", 0)
	if err != nil || len(got.Slides) != 2 || got.Slides[0].ID != second {
		t.Fatalf("remove first: err=%v slides=%+v", err, got.Slides)
	}
	if _, err := s.RemoveSlide(ctx, p.ID, "alice", 5); !errors.Is(err, ErrSlideIndex) {
		t.Fatalf("bad index: %v", err)
	}
}

func TestRoleInvariant(t *testing.T) {
	s, ctx := newStore(t)
	p, _ := s.Create(ctx, "alice")
	_, _ = s.Join(ctx, p.ID, "bob")
	_, _ = s.Join(ctx, p.ID, "carol")

	cases := []struct {
		name           string
		caller, target string
		role           Role
		want           Role
	}{
		{"creator promotes", "alice", "bob", RoleEditor, RoleEditor},
		{"editor cannot promote", "bob", "carol", RoleEditor, RoleViewer},
		{"creator role is never granted", "alice", "carol", RoleCreator, RoleViewer},
		{"creator cannot demote self", "alice", "alice", RoleViewer, RoleCreator},
		{"editor cannot demote creator", "bob", "alice", RoleViewer, RoleCreator},
		{"unknown role ignored", "alice", "carol", Role("admin"), RoleViewer},
		{"creator demotes", "alice", "bob", RoleViewer, RoleViewer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.SetRole(ctx, p.ID, tc.caller, tc.target, tc.role)
			if err != nil {
				t.Fatalf("SetRole: %v", err)
			}
			if r := got.RoleOf(tc.target); r != tc.want {
				t.Fatalf("%s is %s, want %s", tc.target, r, tc.want)
			}
			creators := 0
			for _, u := range got.Users {
				if u.Role == RoleCreator {
					creators++
				}
			}
			if creators != 1 || got.RoleOf("alice") != RoleCreator {
				t.Fatalf("creator invariant broken: %+v", got.Users)
			}
		})
	}

	got, _ := s.ToggleRole(ctx, p.ID, "alice", "carol")
	if got.RoleOf("carol") != RoleEditor {
		t.Fatalf("toggle viewer -> editor")
	}
	got, _ = s.ToggleRole(ctx, p.ID, "alice", "carol")
	if got.RoleOf("carol") != RoleViewer {
		t.Fatalf("toggle editor -> viewer")
	}
	got, _ = s.ToggleRole(ctx, p.ID, "alice", "alice")
	if got.RoleOf("alice") != RoleCreator {
		t.Fatalf("toggle must skip the creator")
	}
}

func TestSetTitleAndDelete(t *testing.T) {
	s, ctx := newStore(t)
	p, _ := s.Create(ctx, "alice")
	_, _ = s.Join(ctx, p.ID, "bob")

	got, _ := s.SetTitle(ctx, p.ID, "bob", "Hijacked")
	if got.Title != DefaultTitle {
		t.Fatalf("viewer renamed the deck")
	}
	got, _ = s.SetTitle(ctx, p.ID, "alice", "Q3 Review")
	if got.Title != "Q3 Review" {
		t.Fatalf("title = %q", got.Title)
	}

	if ok, err := s.Delete(ctx, p.ID, "bob"); ok || err != nil {
		t.Fatalf("viewer delete: %v %v", ok, err)
	}
	if ok, err := s.Delete(ctx, p.ID, "alice"); !ok || err != nil {
		t.Fatalf("creator delete: %v %v", ok, err)
	}
	if list, _ := s.List(ctx); len(list) != 0 {
		t.Fatalf("deck still listed")
	}
}

func TestVersionBumpsOnlyOnChange(t *testing.T) {
	s, ctx := newStore(t)
	p, _ := s.Create(ctx, "alice")
	if p.Version != 1 {
		t.Fatalf("initial version %d", p.Version)
	}
	p2, _ := s.SetTitle(ctx, p.ID, "alice", "A")
	p3, _ := s.SetTitle(ctx, p.ID, "alice", "A")
	if p2.Version != 2 || p3.Version != 2 {
		t.Fatalf("versions %d %d", p2.Version, p3.Version)
	}
}

// Two stores over one KV model two app instances. Each mutation re-reads the
// collection, so neither overwrites the other's change.
func TestReadModifyWriteKeepsConcurrentEdits(t *testing.T) {
	kv := NewMemoryKV()
	a, b := New(kv), New(kv)
	ctx := context.Background()
	p, _ := a.Create(ctx, "alice")
	_, _ = b.Join(ctx, p.ID, "bob")
	_, _ = a.SetTitle(ctx, p.ID, "alice", "Shared")
	_, _ = b.UpdateSlideContent(ctx, p.ID, "alice", 0, []byte(`{"objects":[]}`))

	got, err := a.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Shared" || got.RoleOf("bob") != RoleViewer || got.Slides[0].Empty() {
		t.Fatalf("lost update: %+v", got)
	}
	if got.Version != 4 {
		t.Fatalf("version = %d, want 4", got.Version)
	}
}

func TestMissingFieldsTakeDefaults(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	_ = kv.Put(ctx, CollectionKey, []byte(`[{"id":"p1","creator":"zoe"}]`))
	s := New(kv)
	p1, err := s.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	p2, _ := s.Get(ctx, "p1")
	if len(p1.Slides) != 1 || p1.Slides[0].ID == "" || p1.Slides[0].ID != p2.Slides[0].ID {
		t.Fatalf("empty deck should read with one stable slide: %+v / %+v", p1.Slides, p2.Slides)
	}
	if p1.Users == nil || p1.Version != 0 || p1.Title != "" {
		t.Fatalf("defaults: %+v", p1)
	}
}

func TestSummaries(t *testing.T) {
	s, ctx := newStore(t)
	p, _ := s.Create(ctx, "alice")
	_, _ = s.Join(ctx, p.ID, "bob")
	_, _ = s.AddSlide(ctx, p.ID, "alice")
	_, _ = s.UpdateSlideContent(ctx, p.ID, "alice", 0, []byte(`{"objects":[]}`))
	sums, err := s.Summaries(ctx)
	if err != nil || len(sums) != 1 {
		t.Fatalf("Summaries: %v %d", err, len(sums))
	}
	want := Summary{ID: p.ID, Title: DefaultTitle, Creator: "alice", UserCount: 2, SlideCount: 2, FirstSlide: json.RawMessage(`{"objects":[]}`)}
	if diff := cmp.Diff(want, sums[0]); diff != "" {
		t.Fatalf("summary (-want +got):\n%s", diff)
	}
}

func TestWatchFiresOnNewerVersion(t *testing.T) {
	kv := NewMemoryKV()
	local, remote := New(kv), New(kv)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p, _ := local.Create(ctx, "alice")

	var calls atomic.Int32
	seen := make(chan Presentation, 4)
	done := make(chan error, 1)
	go func() {
		done <- local.Watch(ctx, p.ID, 5*time.Millisecond, func(p Presentation) {
			calls.Add(1)
			seen <- p
		})
	}()

	time.Sleep(30 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("no change yet, but watch fired")
	}
	_, _ = remote.SetTitle(ctx, p.ID, "alice", "From elsewhere")
	select {
	case got := <-seen:
		if got.Title != "From elsewhere" || got.Version != 2 {
			t.Fatalf("watch delivered %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watch did not fire")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watch did not stop on cancel")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}
