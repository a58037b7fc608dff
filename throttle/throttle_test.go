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

package throttle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/highlight-recorder/export"
	"github.com/TheCacophonyProject/highlight-recorder/frame"
)

const (
	bucketSize     = 3
	refillInterval = 20 * time.Second
)

type countingExporter struct {
	exports int
}

func (e *countingExporter) Export(ctx context.Context, triggeredAt time.Time, frames []*frame.Frame) (*export.Highlight, error) {
	if len(frames) == 0 {
		return nil, export.ErrEmptyBuffer
	}
	e.exports++
	return &export.Highlight{Frames: len(frames), TriggeredAt: triggeredAt}, nil
}

type throttleListener struct {
	events int
}

func (l *throttleListener) WhenThrottled() {
	l.events++
}

func newTestThrottledExporter() (*countingExporter, *throttleListener, *Exporter, *testClock) {
	clock := new(testClock)
	exporter := new(countingExporter)
	listener := new(throttleListener)
	conf := Config{ApplyThrottling: true, BucketSize: bucketSize, RefillInterval: refillInterval}
	return exporter, listener, NewWithClock(exporter, conf, listener, clock), clock
}

var someFrames = []*frame.Frame{{Seq: 1}, {Seq: 2}}

func exportTimes(t *Exporter, n int) (errs []error) {
	for i := 0; i < n; i++ {
		_, err := t.Export(context.Background(), time.Time{}, someFrames)
		errs = append(errs, err)
	}
	return errs
}

func TestExportsUntilBucketIsEmpty(t *testing.T) {
	exporter, listener, throttled, _ := newTestThrottledExporter()

	errs := exportTimes(throttled, bucketSize+2)
	assert.Equal(t, bucketSize, exporter.exports)
	assert.Equal(t, []error{nil, nil, nil, ErrThrottled, ErrThrottled}, errs)
	assert.Equal(t, 2, listener.events)
}

func TestRefillAllowsAnotherExport(t *testing.T) {
	exporter, _, throttled, clock := newTestThrottledExporter()

	exportTimes(throttled, bucketSize)
	assert.Equal(t, int64(0), throttled.Available())

	clock.Sleep(refillInterval / 2)
	_, err := throttled.Export(context.Background(), time.Time{}, someFrames)
	assert.Equal(t, ErrThrottled, err)

	clock.Sleep(refillInterval / 2)
	_, err = throttled.Export(context.Background(), time.Time{}, someFrames)
	require.NoError(t, err)
	assert.Equal(t, bucketSize+1, exporter.exports)
}

func TestBucketDoesNotOverfill(t *testing.T) {
	_, _, throttled, clock := newTestThrottledExporter()

	clock.Sleep(time.Hour)
	assert.Equal(t, int64(bucketSize), throttled.Available())
}

func TestEmptyBufferDoesNotUseToken(t *testing.T) {
	exporter, listener, throttled, _ := newTestThrottledExporter()

	_, err := throttled.Export(context.Background(), time.Time{}, nil)
	assert.True(t, errors.Is(err, export.ErrEmptyBuffer))
	assert.Equal(t, int64(bucketSize), throttled.Available())
	assert.Equal(t, 0, exporter.exports)
	assert.Equal(t, 0, listener.events)
}

func TestNilListener(t *testing.T) {
	conf := Config{ApplyThrottling: true, BucketSize: 1, RefillInterval: time.Minute}
	throttled := NewWithClock(new(countingExporter), conf, nil, new(testClock))

	errs := exportTimes(throttled, 2)
	assert.Equal(t, []error{nil, ErrThrottled}, errs)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{}.Validate())
	assert.Error(t, Config{ApplyThrottling: true, RefillInterval: time.Minute}.Validate())
	assert.Error(t, Config{ApplyThrottling: true, BucketSize: 1}.Validate())
}

var _ ratelimit.Clock = new(realClock)
var _ ratelimit.Clock = new(testClock)

// testClock implements a fake ratelimit.Clock for testing.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
}
