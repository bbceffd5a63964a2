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
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	applog "goslides/internal/log"
	"goslides/internal/scene"
)

// CollectionKey is the KV key holding the JSON array of presentations.
const CollectionKey = "presentations"

var (
	ErrNoIdentity     = errors.New("identity is required")
	ErrSlideIndex     = errors.New("slide index out of range")
	ErrSlideNotFound  = errors.New("slide not found")
	ErrInvalidContent = errors.New("slide content is not a valid scene document")
)

// Store applies presentation operations against a KV. Mutations by a caller
// without the required role are silent no-ops that return the presentation
// unchanged.
type Store struct {
	kv  KV
	log *slog.Logger
	// Now is the clock used for timestamps.
	Now func() time.Time

	mu sync.Mutex
}

func New(kv KV) *Store {
	return &Store{kv: kv, log: applog.WithComponent("store"), Now: time.Now}
}

// KV returns the underlying backend.
func (s *Store) KV() KV { return s.kv }

func (s *Store) loadLocked(ctx context.Context) ([]Presentation, error) {
	b, err := s.kv.Get(ctx, CollectionKey)
	if errors.Is(err, ErrNotFound) {
		return []Presentation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load presentations: %w", err)
	}
	var all []Presentation
	if isNull(b) {
		return []Presentation{}, nil
	}
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, fmt.Errorf("decode presentations: %w", err)
	}
	for i := range all {
		all[i].normalize()
	}
	return all, nil
}

func (s *Store) saveLocked(ctx context.Context, all []Presentation) error {
	b, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("encode presentations: %w", err)
	}
	if err := s.kv.Put(ctx, CollectionKey, b); err != nil {
		return fmt.Errorf("save presentations: %w", err)
	}
	return nil
}

func indexOf(all []Presentation, id string) int {
	return slices.IndexFunc(all, func(p Presentation) bool { return p.ID == id })
}

// List returns every presentation in creation order.
func (s *Store) List(ctx context.Context) ([]Presentation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

// Summaries returns the gallery entries.
func (s *Store) Summaries(ctx context.Context) ([]Summary, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, len(all))
	for i, p := range all {
		out[i] = Summarize(p)
	}
	return out, nil
}

// Get returns the persisted presentation id.
func (s *Store) Get(ctx context.Context, id string) (Presentation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadLocked(ctx)
	if err != nil {
		return Presentation{}, err
	}
	i := indexOf(all, id)
	if i < 0 {
		return Presentation{}, fmt.Errorf("presentation %s: %w", id, ErrNotFound)
	}
	return all[i], nil
}

// Snapshot returns the persisted collection as JSON.
func (s *Store) Snapshot(ctx context.Context) ([]byte, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(all, "", "  ")
}

// Create adds a presentation owned by identity with one empty slide.
func (s *Store) Create(ctx context.Context, identity string) (Presentation, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return Presentation{}, ErrNoIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadLocked(ctx)
	if err != nil {
		return Presentation{}, err
	}
	now := s.Now().UTC()
	p := Presentation{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		CreatedAt: now,
		Creator:   identity,
		Users:     []User{{Name: identity, Role: RoleCreator}},
		Slides:    []Slide{{ID: uuid.NewString()}},
		Version:   1,
		UpdatedAt: now,
	}
	all = append(all, p)
	if err := s.saveLocked(ctx, all); err != nil {
		return Presentation{}, err
	}
	s.log.Info("presentation created", slog.String("presentation", p.ID), slog.String("creator", identity))
	return p.Clone(), nil
}

// update runs fn on a fresh copy of presentation id. When fn reports a change
// the version is bumped and the collection written back.
func (s *Store) update(ctx context.Context, op, id string, fn func(p *Presentation) (bool, error)) (Presentation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadLocked(ctx)
	if err != nil {
		return Presentation{}, err
	}
	i := indexOf(all, id)
	if i < 0 {
		return Presentation{}, fmt.Errorf("presentation %s: %w", id, ErrNotFound)
	}
	cur := all[i]
	next := cur.Clone()
	changed, err := fn(&next)
	if err != nil {
		return cur, err
	}
	if !changed {
		return cur, nil
	}
	next.Version = cur.Version + 1
	next.UpdatedAt = s.Now().UTC()
	all[i] = next
	if err := s.saveLocked(ctx, all); err != nil {
		return cur, err
	}
	s.log.Debug("presentation updated", slog.String("op", op), slog.String("presentation", id), slog.Int64("version", next.Version))
	return next.Clone(), nil
}

// Join adds identity as a viewer when it is not a member yet.
func (s *Store) Join(ctx context.Context, id, identity string) (Presentation, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return Presentation{}, ErrNoIdentity
	}
	return s.update(ctx, "join", id, func(p *Presentation) (bool, error) {
		if p.RoleOf(identity) != "" {
			return false, nil
		}
		p.Users = append(p.Users, User{Name: identity, Role: RoleViewer})
		return true, nil
	})
}

// UpdateSlideContent replaces the content of slide index. Only the creator
// and editors may do so.
func (s *Store) UpdateSlideContent(ctx context.Context, id, caller string, index int, content []byte) (Presentation, error) {
	raw, err := slideContent(content)
	if err != nil {
		return Presentation{}, err
	}
	return s.update(ctx, "update_slide", id, func(p *Presentation) (bool, error) {
		if !p.CanEdit(caller) {
			return false, nil
		}
		if index < 0 || index >= len(p.Slides) {
			return false, fmt.Errorf("slide %d of %d: %w", index, len(p.Slides), ErrSlideIndex)
		}
		return setContent(&p.Slides[index], raw), nil
	})
}

// UpdateSlideContentByID is UpdateSlideContent addressed by slide id. The
// index is resolved against the persisted copy, so slides added or removed
// elsewhere never redirect the write. A slide that no longer exists yields
// ErrSlideNotFound.
func (s *Store) UpdateSlideContentByID(ctx context.Context, id, caller, slideID string, content []byte) (Presentation, error) {
	raw, err := slideContent(content)
	if err != nil {
		return Presentation{}, err
	}
	return s.update(ctx, "update_slide", id, func(p *Presentation) (bool, error) {
		if !p.CanEdit(caller) {
			return false, nil
		}
		i := slices.IndexFunc(p.Slides, func(sl Slide) bool { return sl.ID == slideID })
		if i < 0 {
			return false, fmt.Errorf("slide %s: %w", slideID, ErrSlideNotFound)
		}
		return setContent(&p.Slides[i], raw), nil
	})
}

// slideContent validates content as a scene document. Null or empty content
// clears the slide and is returned as nil.
func slideContent(content []byte) (json.RawMessage, error) {
	if isNull(content) {
		return nil, nil
	}
	if _, err := scene.Deserialize(content); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidContent, err)
	}
	return slices.Clone(content), nil
}

func setContent(sl *Slide, raw json.RawMessage) bool {
	if string(sl.Content) == string(raw) {
		return false
	}
	sl.Content = raw
	return true
}

// AddSlide appends an empty slide. Creator only.
func (s *Store) AddSlide(ctx context.Context, id, caller string) (Presentation, error) {
	return s.update(ctx, "add_slide", id, func(p *Presentation) (bool, error) {
		if p.RoleOf(caller) != RoleCreator {
			return false, nil
		}
		p.Slides = append(p.Slides, Slide{ID: uuid.NewString()})
		return true, nil
	})
}

// RemoveSlide deletes slide index. Creator only; the last slide stays.
func (s *Store) RemoveSlide(ctx context.Context, id, caller string, index int) (Presentation, error) {
	return s.update(ctx, "remove_slide", id, func(p *Presentation) (bool, error) {
		if p.RoleOf(caller) != RoleCreator || len(p.Slides) <= 1 {
			return false, nil
		}
		if index < 0 || index >= len(p.Slides) {
			return false, fmt.Errorf("slide %d of %d: %w", index, len(p.Slides), ErrSlideIndex)
		}
		p.Slides = slices.Delete(p.Slides, index, index+1)
		return true, nil
	})
}

// SetRole changes the role of member target to editor or viewer. Creator
// only; the creator's own role never changes.
func (s *Store) SetRole(ctx context.Context, id, caller, target string, role Role) (Presentation, error) {
	return s.update(ctx, "set_role", id, func(p *Presentation) (bool, error) {
		if p.RoleOf(caller) != RoleCreator || (role != RoleEditor && role != RoleViewer) {
			return false, nil
		}
		return setRole(p, target, func(Role) Role { return role }), nil
	})
}

// ToggleRole flips member target between editor and viewer. Creator only.
func (s *Store) ToggleRole(ctx context.Context, id, caller, target string) (Presentation, error) {
	return s.update(ctx, "toggle_role", id, func(p *Presentation) (bool, error) {
		if p.RoleOf(caller) != RoleCreator {
			return false, nil
		}
		return setRole(p, target, func(r Role) Role {
			if r == RoleEditor {
				return RoleViewer
			}
			return RoleEditor
		}), nil
	})
}

func setRole(p *Presentation, target string, next func(Role) Role) bool {
	for i, u := range p.Users {
		if u.Name != target || u.Role == RoleCreator {
			continue
		}
		r := next(u.Role)
		if r == u.Role {
			return false
		}
		p.Users[i].Role = r
		return true
	}
	return false
}

// SetTitle renames the presentation. Creator and editors only.
func (s *Store) SetTitle(ctx context.Context, id, caller, title string) (Presentation, error) {
	return s.update(ctx, "set_title", id, func(p *Presentation) (bool, error) {
		if !p.CanEdit(caller) || p.Title == title {
			return false, nil
		}
		p.Title = title
		return true, nil
	})
}

// Delete removes the presentation. Creator only; reports whether it was removed.
func (s *Store) Delete(ctx context.Context, id, caller string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadLocked(ctx)
	if err != nil {
		return false, err
	}
	i := indexOf(all, id)
	if i < 0 {
		return false, fmt.Errorf("presentation %s: %w", id, ErrNotFound)
	}
	if all[i].RoleOf(caller) != RoleCreator {
		return false, nil
	}
	all = slices.Delete(all, i, i+1)
	if err := s.saveLocked(ctx, all); err != nil {
		return false, err
	}
	s.log.Info("presentation deleted", slog.String("presentation", id))
	return true, nil
}
