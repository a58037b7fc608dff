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

package source

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/highlight-recorder/frame"
)

func TestErrorClassification(t *testing.T) {
	cause := errors.New("no frame")

	assert.False(t, IsPermanent(Transient(cause)))
	assert.True(t, IsPermanent(Permanent(cause)))
	assert.False(t, IsPermanent(cause))
	assert.False(t, IsPermanent(nil))

	wrapped := fmt.Errorf("reading: %w", Permanent(cause))
	assert.True(t, IsPermanent(wrapped))
	assert.True(t, errors.Is(wrapped, cause))
	assert.Equal(t, "no frame", Permanent(cause).Error())
}

func TestDeviceError(t *testing.T) {
	err := &DeviceError{Device: "/dev/video0", Err: errors.New("busy")}
	assert.EqualError(t, err, "camera /dev/video0 unavailable: busy")

	var de *DeviceError
	assert.True(t, errors.As(fmt.Errorf("start: %w", err), &de))

	assert.EqualError(t, &DeviceError{Err: errors.New("none found")}, "camera unavailable: none found")
}

func newTestPattern() (*Pattern, *[]time.Duration) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var slept []time.Duration
	p := NewPattern(frame.Resolution{Width: 4, Height: 2}, 10)
	p.nowFunc = func() time.Time { return now }
	p.sleep = func(d time.Duration) {
		slept = append(slept, d)
		now = now.Add(d)
	}
	return p, &slept
}

func TestPatternMustBeOpened(t *testing.T) {
	p, _ := newTestPattern()
	_, err := p.Read()
	assert.True(t, IsPermanent(err))
	assert.True(t, errors.Is(err, ErrNotOpen))
}

func TestPatternFrames(t *testing.T) {
	p, slept := newTestPattern()
	require.NoError(t, p.Open())

	f1, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, 4, f1.Width)
	assert.Equal(t, 2, f1.Height)
	assert.Len(t, f1.Pix, 4*2*3)
	assert.Equal(t, byte(0xff), f1.Pix[2])

	f2, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, *slept)
	assert.Equal(t, 100*time.Millisecond, f2.Timestamp.Sub(f1.Timestamp))
	assert.Equal(t, byte(0xff), f2.Pix[3+2])
	assert.Equal(t, byte(0), f2.Pix[2])

	require.NoError(t, p.Close())
	_, err = p.Read()
	assert.True(t, IsPermanent(err))
}
