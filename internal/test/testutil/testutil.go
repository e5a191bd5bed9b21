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

// Package testutil provides deterministic synchronization helpers for tests
// that observe the event bus.
package testutil

import (
	"testing"
	"time"

	"github.com/blinklabs-io/veescrow/event"
)

// DefaultTimeout bounds how long a helper waits for an event
const DefaultTimeout = time.Second

// RequireReceive waits for a value on the given channel or fails the test
// if the timeout expires
func RequireReceive[T any](
	t *testing.T,
	ch <-chan T,
	timeout time.Duration,
	msg string,
) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while waiting: %s", msg)
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for channel receive: %s", msg)
		var zero T
		return zero // unreachable
	}
}

// RequireNoReceive verifies that no value is received on the given channel
// within the specified duration
func RequireNoReceive[T any](
	t *testing.T,
	ch <-chan T,
	duration time.Duration,
	msg string,
) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf(
				"unexpected value received on channel: %v: %s",
				v,
				msg,
			)
		}
	case <-time.After(duration):
		// Expected: nothing received
	}
}

// RequireEventData receives the next event from ch and returns its payload
// as T, failing the test on timeout or a payload of another type
func RequireEventData[T any](t *testing.T, ch <-chan event.Event) T {
	t.Helper()
	evt := RequireReceive(t, ch, DefaultTimeout, "event")
	data, ok := evt.Data.(T)
	if !ok {
		var zero T
		t.Fatalf("unexpected event data type %T, want %T", evt.Data, zero)
	}
	return data
}
