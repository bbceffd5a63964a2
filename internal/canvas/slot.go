/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package canvas

import "sync"

// Slot owns at most one Controller. Binding another slide id tears the current
// instance down before a fresh one is built; rebinding the same id keeps it.
type Slot struct {
	mu  sync.Mutex
	cur *Controller
}

// Bind returns the controller for slideID and whether it was newly created.
func (s *Slot) Bind(slideID string, content []byte, opts Options) (*Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil && s.cur.SlideID() == slideID && !s.cur.isClosed() {
		return s.cur, false
	}
	if s.cur != nil {
		s.cur.Close()
	}
	s.cur = New(slideID, content, opts)
	return s.cur, true
}

// Current returns the bound controller or nil.
func (s *Slot) Current() *Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Release closes and forgets the bound controller.
func (s *Slot) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		s.cur.Close()
		s.cur = nil
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
