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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/highlight-recorder/frame"
)

const FIVE_FRAME_LOOP = 5

func newFrame(seq uint64) *frame.Frame {
	return &frame.Frame{
		Seq:       seq,
		Timestamp: time.Unix(int64(seq), 0),
		Width:     1,
		Height:    1,
		Pix:       []byte{byte(seq), 0, 0},
	}
}

func pushFrames(rb *RingBuffer, from, to uint64) {
	for seq := from; seq <= to; seq++ {
		rb.Push(newFrame(seq))
	}
}

func getSnapshotIds(rb *RingBuffer) []uint64 {
	frames := rb.Snapshot()
	ids := make([]uint64, len(frames))
	for ii, f := range frames {
		ids[ii] = f.Seq
	}
	return ids
}

func TestSnapshotOfEmptyBuffer(t *testing.T) {
	rb := New(FIVE_FRAME_LOOP)
	frames := rb.Snapshot()
	assert.NotNil(t, frames)
	assert.Len(t, frames, 0)
	assert.Equal(t, 0, rb.Len())
}

func TestSnapshotDoesNotIncludeUnwrittenFrames(t *testing.T) {
	rb := New(FIVE_FRAME_LOOP)
	pushFrames(rb, 1, 2)
	assert.Equal(t, []uint64{1, 2}, getSnapshotIds(rb))
}

func TestSnapshotWhenExactlyFull(t *testing.T) {
	rb := New(FIVE_FRAME_LOOP)
	pushFrames(rb, 1, 5)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, getSnapshotIds(rb))
}

func TestSnapshotLoopsRoundFrames(t *testing.T) {
	rb := New(FIVE_FRAME_LOOP)
	pushFrames(rb, 1, 6)
	assert.Equal(t, []uint64{2, 3, 4, 5, 6}, getSnapshotIds(rb))
	pushFrames(rb, 7, 8)
	assert.Equal(t, []uint64{4, 5, 6, 7, 8}, getSnapshotIds(rb))
	pushFrames(rb, 9, 10)
	assert.Equal(t, []uint64{6, 7, 8, 9, 10}, getSnapshotIds(rb))
}

func TestOccupancyIsMinOfPushesAndCapacity(t *testing.T) {
	for n := uint64(0); n <= 3*FIVE_FRAME_LOOP; n++ {
		rb := New(FIVE_FRAME_LOOP)
		pushFrames(rb, 1, n)
		want := int(n)
		if want > FIVE_FRAME_LOOP {
			want = FIVE_FRAME_LOOP
		}
		assert.Equal(t, want, rb.Len(), "after %d pushes", n)

		ids := getSnapshotIds(rb)
		for ii, id := range ids {
			assert.Equal(t, n-uint64(want)+uint64(ii)+1, id)
		}
	}
}

func TestTwoMinutesAtFifteenFPS(t *testing.T) {
	rb := New(120 * 15)
	pushFrames(rb, 1, 1800)

	frames := rb.Snapshot()
	require.Len(t, frames, 1800)
	assert.Equal(t, uint64(1), frames[0].Seq)
	assert.Equal(t, uint64(1800), frames[1799].Seq)

	rb.Push(newFrame(1801))
	frames = rb.Snapshot()
	require.Len(t, frames, 1800)
	assert.Equal(t, uint64(2), frames[0].Seq)
	assert.Equal(t, uint64(1801), frames[1799].Seq)
	assert.Equal(t, 1800, rb.Len())
	assert.Equal(t, uint64(1), rb.Stats().Evicted)
}

func TestSnapshotIsIndependentOfLaterPushes(t *testing.T) {
	rb := New(FIVE_FRAME_LOOP)
	pushFrames(rb, 1, 3)
	frames := rb.Snapshot()

	pushFrames(rb, 4, 12)

	ids := make([]uint64, len(frames))
	for ii, f := range frames {
		ids[ii] = f.Seq
	}
	assert.Equal(t, []uint64{1, 2, 3}, ids)
	assert.Equal(t, byte(1), frames[0].Pix[0])
}

func TestOutOfOrderPushIsRejected(t *testing.T) {
	rb := New(FIVE_FRAME_LOOP)
	pushFrames(rb, 1, 3)

	assert.False(t, rb.Push(newFrame(3)))
	assert.False(t, rb.Push(newFrame(2)))
	assert.Equal(t, []uint64{1, 2, 3}, getSnapshotIds(rb))
	assert.Equal(t, uint64(2), rb.Stats().Rejected)
}

func TestSkippedSequenceNumbersAreCountedAsGaps(t *testing.T) {
	rb := New(FIVE_FRAME_LOOP)
	rb.Push(newFrame(1))
	rb.Push(newFrame(4))
	rb.Push(newFrame(5))

	stats := rb.Stats()
	assert.Equal(t, uint64(2), stats.Gaps)
	assert.Equal(t, uint64(3), stats.Pushed)
}

func TestNonPositiveCapacityPanics(t *testing.T) {
	assert.Panics(t, func() { New(0) })
}

func TestConcurrentPushAndSnapshot(t *testing.T) {
	const pushes = 5000
	rb := New(50)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pushFrames(rb, 1, pushes)
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		frames := rb.Snapshot()
		assert.True(t, len(frames) <= rb.Cap())
		for ii := 1; ii < len(frames); ii++ {
			assert.Equal(t, frames[ii-1].Seq+1, frames[ii].Seq)
		}
		select {
		case <-done:
			assert.Equal(t, []uint64{4951}, getSnapshotIds(rb)[:1])
			return
		default:
		}
	}
}
