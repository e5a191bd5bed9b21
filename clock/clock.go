// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package clock

import (
	"sync"
	"time"
)

// Clock provides the current timestamp, in unix seconds, to the ledgers.
// This allows testing with synthetic time
type Clock interface {
	Now() uint64
}

// System reads wall-clock time
type System struct{}

func (System) Now() uint64 {
	return uint64(time.Now().Unix()) // #nosec G115
}

// Manual is a clock that only moves when told to
type Manual struct {
	mu  sync.RWMutex
	now uint64
}

func NewManual(start uint64) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Set moves the clock to t. Moving backwards is ignored, matching block time
// which never decreases
func (m *Manual) Set(t uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t > m.now {
		m.now = t
	}
}

// Advance moves the clock forward by the given number of seconds and returns
// the new time
func (m *Manual) Advance(seconds uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += seconds
	return m.now
}

// AdvanceDuration is Advance for a time.Duration, truncated to whole seconds
func (m *Manual) AdvanceDuration(d time.Duration) uint64 {
	if d <= 0 {
		return m.Now()
	}
	return m.Advance(uint64(d / time.Second))
}
