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

package ringbuffer

import (
	"fmt"
	"sync"

	"github.com/TheCacophonyProject/highlight-recorder/frame"
)

// New returns a RingBuffer that holds at most capacity frames.
func New(capacity int) *RingBuffer {
	if capacity < 1 {
		panic(fmt.Sprintf("ring buffer capacity must be positive, got %d", capacity))
	}
	return &RingBuffer{
		size:   capacity,
		frames: make([]*frame.Frame, capacity),
	}
}

// RingBuffer stores the most recent frames in a loop, oldest first. Frames
// are held by pointer and never copied or modified, so a snapshot stays
// valid after the frames it refers to have been evicted from the loop.
type RingBuffer struct {
	mu     sync.Mutex
	size   int
	frames []*frame.Frame
	next   int // slot the next push writes to
	count  int
	stats  Stats
}

// Stats counts what has happened to the buffer since it was created.
type Stats struct {
	Pushed   uint64
	Evicted  uint64
	Rejected uint64
	// Gaps is the number of sequence numbers skipped between consecutive
	// pushes, i.e. frames the producer lost before they reached the buffer.
	Gaps uint64
}

func (rb *RingBuffer) nextIndexAfter(index int) int {
	return (index + 1) % rb.size
}

// Push appends f as the newest frame, evicting the oldest frame if the
// buffer is full. Frames must arrive with strictly increasing sequence
// numbers; a frame that doesn't is rejected and Push returns false.
func (rb *RingBuffer) Push(f *frame.Frame) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count > 0 {
		newest := rb.frames[(rb.next-1+rb.size)%rb.size]
		if f.Seq <= newest.Seq {
			rb.stats.Rejected++
			return false
		}
		rb.stats.Gaps += f.Seq - newest.Seq - 1
	}

	if rb.count == rb.size {
		rb.stats.Evicted++
	} else {
		rb.count++
	}
	rb.frames[rb.next] = f
	rb.next = rb.nextIndexAfter(rb.next)
	rb.stats.Pushed++
	return true
}

// Snapshot returns the frames currently held, oldest to newest. Only the
// frame pointers are copied; the returned slice is owned by the caller.
func (rb *RingBuffer) Snapshot() []*frame.Frame {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]*frame.Frame, rb.count)
	oldest := (rb.next - rb.count + rb.size) % rb.size
	n := copy(out, rb.frames[oldest:min(oldest+rb.count, rb.size)])
	copy(out[n:], rb.frames[:rb.count-n])
	return out
}

// Len returns the number of frames currently held.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Cap returns the maximum number of frames the buffer holds.
func (rb *RingBuffer) Cap() int {
	return rb.size
}

func (rb *RingBuffer) Stats() Stats {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.stats
}
