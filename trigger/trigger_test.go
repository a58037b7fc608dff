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

package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/periph/conn/gpio"

	"github.com/TheCacophonyProject/highlight-recorder/frame"
)

func newTestChannel(debounce time.Duration, queue int) (*Channel, *time.Time) {
	now := time.Date(2026, 7, 4, 15, 30, 0, 0, time.UTC)
	ch := NewChannel(debounce, queue)
	ch.nowFunc = func() time.Time { return now }
	return ch, &now
}

func TestTriggersWithinDebounceYieldOneEvent(t *testing.T) {
	ch, now := newTestChannel(500*time.Millisecond, 4)

	assert.True(t, ch.Fire("button"))
	*now = now.Add(200 * time.Millisecond)
	assert.False(t, ch.Fire("button"))

	assert.Len(t, ch.Events(), 1)
	assert.Equal(t, Stats{Debounced: 1}, ch.Stats())
}

func TestTriggersAfterDebounceAreDelivered(t *testing.T) {
	ch, now := newTestChannel(500*time.Millisecond, 4)
	start := *now

	assert.True(t, ch.Fire("button"))
	*now = now.Add(500 * time.Millisecond)
	assert.True(t, ch.Fire("dbus"))

	ev := <-ch.Events()
	assert.Equal(t, Event{At: start, Source: "button"}, ev)
	ev = <-ch.Events()
	assert.Equal(t, Event{At: start.Add(500 * time.Millisecond), Source: "dbus"}, ev)
}

func TestDebounceMeasuredFromLastAcceptedTrigger(t *testing.T) {
	ch, now := newTestChannel(500*time.Millisecond, 4)

	assert.True(t, ch.Fire("button"))
	for i := 0; i < 4; i++ {
		*now = now.Add(100 * time.Millisecond)
		assert.False(t, ch.Fire("button"))
	}
	*now = now.Add(100 * time.Millisecond)
	assert.True(t, ch.Fire("button"))
	assert.Len(t, ch.Events(), 2)
}

func TestFullQueueDropsTrigger(t *testing.T) {
	ch, now := newTestChannel(time.Second, 1)

	assert.True(t, ch.Fire("button"))
	*now = now.Add(2 * time.Second)
	assert.False(t, ch.Fire("button"))
	assert.Equal(t, Stats{Overflows: 1}, ch.Stats())

	evs := ch.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, "button", evs[0].Source)
	assert.Empty(t, ch.Drain())
}

func TestSnapshotTakenWhenTriggerAccepted(t *testing.T) {
	ch, now := newTestChannel(time.Second, 2)
	var seq uint64
	calls := 0
	ch.SetSnapshot(func() []*frame.Frame {
		calls++
		return []*frame.Frame{{Seq: seq}}
	})

	seq = 10
	assert.True(t, ch.Fire("dbus"))
	// Debounced and overflowing triggers don't snapshot.
	seq = 11
	assert.False(t, ch.Fire("dbus"))
	*now = now.Add(2 * time.Second)
	assert.True(t, ch.Fire("dbus"))
	*now = now.Add(2 * time.Second)
	assert.False(t, ch.Fire("dbus"))
	assert.Equal(t, 2, calls)

	// Frames come from when Fire ran, not when the event is read.
	seq = 50
	ev := <-ch.Events()
	require.Len(t, ev.Frames, 1)
	assert.Equal(t, uint64(10), ev.Frames[0].Seq)
	ev = <-ch.Events()
	assert.Equal(t, uint64(11), ev.Frames[0].Seq)
}

func TestClosedChannelRejectsTriggers(t *testing.T) {
	ch, now := newTestChannel(0, 4)
	assert.True(t, ch.Fire("button"))

	ch.Close()
	*now = now.Add(time.Second)
	assert.False(t, ch.Fire("button"))
	assert.Equal(t, Stats{}, ch.Stats())
	assert.Len(t, ch.Drain(), 1)
}

type fakePin struct {
	inErr error
	// modes receives the edge setting of every In call.
	modes chan gpio.Edge
	pull  gpio.Pull
	edges chan bool
}

func newFakePin() *fakePin {
	return &fakePin{edges: make(chan bool), modes: make(chan gpio.Edge, 4)}
}

func (p *fakePin) In(pull gpio.Pull, edge gpio.Edge) error {
	p.pull = pull
	p.modes <- edge
	return p.inErr
}

func (p *fakePin) WaitForEdge(timeout time.Duration) bool {
	select {
	case e := <-p.edges:
		return e
	case <-time.After(10 * time.Millisecond):
		return false
	}
}

func TestButtonConfiguresPin(t *testing.T) {
	pin := newFakePin()
	_, err := newButton("GPIO2", pin, NewChannel(0, 1))
	require.NoError(t, err)
	assert.Equal(t, gpio.PullUp, pin.pull)
	assert.Equal(t, gpio.FallingEdge, <-pin.modes)
}

func TestButtonPinError(t *testing.T) {
	pin := newFakePin()
	pin.inErr = errors.New("busy")
	_, err := newButton("GPIO2", pin, NewChannel(0, 1))
	assert.EqualError(t, err, "failed to set up button pin GPIO2: busy")
}

func TestButtonFiresOnEdge(t *testing.T) {
	pin := newFakePin()
	ch := NewChannel(0, 4)
	b, err := newButton("GPIO2", pin, ch)
	require.NoError(t, err)
	assert.Equal(t, gpio.FallingEdge, <-pin.modes)

	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	pin.edges <- true
	select {
	case ev := <-ch.Events():
		assert.Equal(t, "button", ev.Source)
	case <-time.After(time.Second):
		t.Fatal("no trigger event")
	}

	cancel()
	select {
	case edge := <-pin.modes:
		assert.Equal(t, gpio.NoEdge, edge)
	case <-time.After(time.Second):
		t.Fatal("edge detection not turned off")
	}
	assert.Equal(t, gpio.PullUp, pin.pull)
}
