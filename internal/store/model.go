/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package store keeps the presentation collection in a key-value blob and
// enforces the role rules of every mutation. The whole collection lives under
// one key; each mutation re-reads it, applies the change to the fresh copy,
// bumps the presentation's version stamp and writes it back.
package store

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Role of a user within one presentation.
type Role string

const (
	RoleCreator Role = "creator"
	RoleEditor  Role = "editor"
	RoleViewer  Role = "viewer"
)

// CanEdit reports whether the role may change slide content.
func (r Role) CanEdit() bool { return r == RoleCreator || r == RoleEditor }

// User is a member of a presentation. Name is the self-declared identity.
type User struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Slide holds one serialized scene document, or nothing for an empty slide.
type Slide struct {
	ID      string          `json:"id"`
	Content json.RawMessage `json:"content"`
}

// Empty reports whether the slide has no content yet.
func (s Slide) Empty() bool { return isNull(s.Content) }

// Presentation is one deck with its members and slides.
type Presentation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	Creator   string    `json:"creator"`
	Users     []User    `json:"users"`
	Slides    []Slide   `json:"slides"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const DefaultTitle = "Untitled Presentation"

// RoleOf returns the role of identity, or "" when it is not a member.
func (p Presentation) RoleOf(identity string) Role {
	for _, u := range p.Users {
		if u.Name == identity {
			return u.Role
		}
	}
	return ""
}

// CanEdit reports whether identity may change slide content.
func (p Presentation) CanEdit(identity string) bool { return p.RoleOf(identity).CanEdit() }

// Clone returns a deep copy.
func (p Presentation) Clone() Presentation {
	out := p
	out.Users = slices.Clone(p.Users)
	out.Slides = make([]Slide, len(p.Slides))
	for i, s := range p.Slides {
		out.Slides[i] = Slide{ID: s.ID, Content: slices.Clone(s.Content)}
	}
	return out
}

// normalize fills defaults for fields missing on read. A deck without slides
// gets one empty slide whose id is derived from the deck id, so repeated reads
// agree on it.
func (p *Presentation) normalize() {
	if p.Users == nil {
		p.Users = []User{}
	}
	if len(p.Slides) == 0 {
		p.Slides = []Slide{{}}
	}
	for i := range p.Slides {
		if p.Slides[i].ID == "" {
			p.Slides[i].ID = derivedSlideID(p.ID, i)
		}
		if isNull(p.Slides[i].Content) {
			p.Slides[i].Content = nil
		}
	}
}

func derivedSlideID(presentationID string, i int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(presentationID+"/"+strconv.Itoa(i))).String()
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// Summary is the gallery view of a presentation.
type Summary struct {
	ID         string
	Title      string
	Creator    string
	UserCount  int
	SlideCount int
	// FirstSlide is the content of slide one, nil when empty.
	FirstSlide json.RawMessage
}

// Summarize builds the gallery entry of p.
func Summarize(p Presentation) Summary {
	s := Summary{ID: p.ID, Title: p.Title, Creator: p.Creator, UserCount: len(p.Users), SlideCount: len(p.Slides)}
	if len(p.Slides) > 0 && !p.Slides[0].Empty() {
		s.FirstSlide = slices.Clone(p.Slides[0].Content)
	}
	return s
}
