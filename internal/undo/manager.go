/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package undo keeps per-slide undo/redo history of serialized scenes.
package undo

import (
	"sync"
	"time"
)

// Snapshot is the serialized scene of one slide as it was before an edit.
// Blob content is opaque to the manager; size is estimated as len(Blob).
type Snapshot struct {
	SlideID string
	Blob    []byte
	TS      time.Time
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap; older entries are pruned when exceeded.
	MaxBytes int
	// MaxPerSlide limits the undo depth per slide (0 means unlimited).
	MaxPerSlide int
	// MinInterval folds a push arriving within the interval of the previous one
	// on the same slide into that entry. Zero disables coalescing.
	MinInterval time.Duration
}

// Manager holds an undo and a redo stack per slide. It is safe for concurrent use.
type Manager struct {
	cfg  Config
	mu   sync.Mutex
	undo map[string][]Snapshot
	redo map[string][]Snapshot
	// accounting covers both stacks
	totalBytes int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 * 1024 * 1024
	}
	return &Manager{cfg: cfg, undo: make(map[string][]Snapshot), redo: make(map[string][]Snapshot)}
}

// Push records the state before an edit and clears the slide's redo stack.
func (m *Manager) Push(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropRedoLocked(s.SlideID)
	stack := m.undo[s.SlideID]
	if n := len(stack); n > 0 && m.cfg.MinInterval > 0 && s.TS.Sub(stack[n-1].TS) < m.cfg.MinInterval {
		// keep the older pre-edit state, extend its window
		stack[n-1].TS = s.TS
		return
	}
	m.undo[s.SlideID] = append(stack, s)
	m.totalBytes += len(s.Blob)
	m.enforceCapsLocked(s.SlideID)
}

// Undo returns the state to restore and moves current onto the redo stack.
func (m *Manager) Undo(slideID string, current []byte) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[slideID]
	if len(stack) == 0 {
		return Snapshot{}, false
	}
	s := stack[len(stack)-1]
	m.undo[slideID] = stack[:len(stack)-1]
	m.totalBytes -= len(s.Blob)
	m.redo[slideID] = append(m.redo[slideID], Snapshot{SlideID: slideID, Blob: current, TS: time.Now()})
	m.totalBytes += len(current)
	return s, true
}

// Redo is the inverse of Undo.
func (m *Manager) Redo(slideID string, current []byte) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[slideID]
	if len(r) == 0 {
		return Snapshot{}, false
	}
	s := r[len(r)-1]
	m.redo[slideID] = r[:len(r)-1]
	m.totalBytes -= len(s.Blob)
	m.undo[slideID] = append(m.undo[slideID], Snapshot{SlideID: slideID, Blob: current, TS: time.Now()})
	m.totalBytes += len(current)
	m.enforceCapsLocked(slideID)
	return s, true
}

// CanUndo and CanRedo report whether history exists for the slide.
func (m *Manager) CanUndo(slideID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo[slideID]) > 0
}

func (m *Manager) CanRedo(slideID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo[slideID]) > 0
}

// ClearSlide drops all history of a slide.
func (m *Manager) ClearSlide(slideID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.undo[slideID] {
		m.totalBytes -= len(s.Blob)
	}
	m.dropRedoLocked(slideID)
	delete(m.undo, slideID)
	delete(m.redo, slideID)
	if m.totalBytes < 0 {
		m.totalBytes = 0
	}
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, slides int, undoDepth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slides = len(m.undo)
	for _, v := range m.undo {
		undoDepth += len(v)
	}
	return m.totalBytes, slides, undoDepth
}

func (m *Manager) dropRedoLocked(slideID string) {
	for _, s := range m.redo[slideID] {
		m.totalBytes -= len(s.Blob)
	}
	m.redo[slideID] = nil
}

func (m *Manager) enforceCapsLocked(slideID string) {
	if m.cfg.MaxPerSlide > 0 {
		stack := m.undo[slideID]
		if len(stack) > m.cfg.MaxPerSlide {
			toDrop := len(stack) - m.cfg.MaxPerSlide
			for i := 0; i < toDrop; i++ {
				m.totalBytes -= len(stack[i].Blob)
			}
			m.undo[slideID] = append([]Snapshot{}, stack[toDrop:]...)
		}
	}
	// global memory cap: prune the oldest undo entry across all slides
	for m.cfg.MaxBytes > 0 && m.totalBytes > m.cfg.MaxBytes {
		oldest := ""
		found := false
		var oldestTS time.Time
		for id, stack := range m.undo {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldest, oldestTS, found = id, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := m.undo[oldest]
		m.totalBytes -= len(stack[0].Blob)
		m.undo[oldest] = stack[1:]
		if len(m.undo[oldest]) == 0 {
			delete(m.undo, oldest)
		}
	}
}
