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
	"errors"
	"log/slog"
	"time"
)

// DefaultPollInterval is the reconciliation period when none is configured.
const DefaultPollInterval = time.Second

// Watch polls the persisted copy of presentation id every interval and calls
// fn whenever its version is higher than the last one seen. The version at
// the time of the call counts as seen. It blocks until ctx is done.
//
// Polling stands in for a real sync channel: another process writing the same
// KV shows up here within one interval.
func (s *Store) Watch(ctx context.Context, id string, interval time.Duration, fn func(Presentation)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	l := s.log.With(slog.String("presentation", id))
	last := int64(-1)
	if p, err := s.Get(ctx, id); err == nil {
		last = p.Version
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		p, err := s.Get(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrNotFound) {
				l.Debug("watched presentation is gone")
			} else {
				l.Warn("poll failed", slog.Any("err", err))
			}
			continue
		}
		if p.Version > last {
			last = p.Version
			fn(p)
		}
	}
}
