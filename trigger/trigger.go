// highlight-recorder - save the last few minutes of camera footage on demand
//  Copyright (C) 2026, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package trigger turns button presses and other requests into debounced
// trigger events delivered over a bounded channel.
package trigger

import (
	"sync"
	"time"

	"github.com/TheCacophonyProject/highlight-recorder/frame"
)

// Event is a single accepted trigger.
type Event struct {
	// At is when the trigger was received.
	At     time.Time
	Source string
	// Frames holds the buffer contents at At, if the channel has a
	// snapshot function.
	Frames []*frame.Frame
}

// NewChannel returns a Channel that accepts at most one trigger per
// debounce interval and queues up to queueSize undelivered events.
func NewChannel(debounce time.Duration, queueSize int) *Channel {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Channel{
		debounce: debounce,
		events:   make(chan Event, queueSize),
		nowFunc:  time.Now,
	}
}

// Channel debounces triggers from any number of sources. Fire never
// blocks: a trigger that arrives while the queue is full is dropped.
type Channel struct {
	mu        sync.Mutex
	debounce  time.Duration
	events    chan Event
	nowFunc   func() time.Time
	snapshot  func() []*frame.Frame
	closed    bool
	last      time.Time
	debounced uint64
	overflows uint64
}

// Stats counts triggers that were not delivered.
type Stats struct {
	Debounced uint64
	Overflows uint64
}

// SetSnapshot sets the function used to capture frames for each accepted
// trigger. It must be called before the first Fire.
func (c *Channel) SetSnapshot(fn func() []*frame.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = fn
}

// Fire reports a trigger from src. It returns true if an event was queued.
func (c *Channel) Fire(src string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	now := c.nowFunc()
	if !c.last.IsZero() && now.Sub(c.last) < c.debounce {
		c.debounced++
		return false
	}
	c.last = now

	// Only Fire sends, and it holds mu, so a free slot stays free.
	if len(c.events) == cap(c.events) {
		c.overflows++
		return false
	}
	ev := Event{At: now, Source: src}
	if c.snapshot != nil {
		ev.Frames = c.snapshot()
	}
	c.events <- ev
	return true
}

// Close makes every later Fire return false. Events already queued stay
// queued until drained.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Events returns the channel accepted triggers are delivered on.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// Drain removes and returns any queued events.
func (c *Channel) Drain() []Event {
	var evs []Event
	for {
		select {
		case ev := <-c.events:
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Debounced: c.debounced, Overflows: c.overflows}
}
