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
	"time"

	"github.com/juju/ratelimit"
	log "github.com/sirupsen/logrus"

	"github.com/TheCacophonyProject/highlight-recorder/export"
	"github.com/TheCacophonyProject/highlight-recorder/frame"
)

// ErrThrottled is returned instead of saving a highlight when too many
// have been saved recently.
var ErrThrottled = errors.New("highlight not saved due to throttling")

// HighlightExporter saves a snapshot of frames.
type HighlightExporter interface {
	Export(ctx context.Context, triggeredAt time.Time, frames []*frame.Frame) (*export.Highlight, error)
}

type ThrottledEventListener interface {
	WhenThrottled()
}

type nullListener struct{}

func (nullListener) WhenThrottled() {}

func New(exporter HighlightExporter, conf Config, listener ThrottledEventListener) *Exporter {
	return NewWithClock(exporter, conf, listener, new(realClock))
}

// NewWithClock is New with a custom clock for the token bucket.
func NewWithClock(exporter HighlightExporter, conf Config, listener ThrottledEventListener, clock ratelimit.Clock) *Exporter {
	if listener == nil {
		listener = nullListener{}
	}
	rate := 1 / conf.RefillInterval.Seconds()
	return &Exporter{
		exporter: exporter,
		listener: listener,
		bucket:   ratelimit.NewBucketWithRateAndClock(rate, conf.BucketSize, clock),
	}
}

// Exporter wraps an exporter so that it stops saving highlights (ie
// gets throttled) if asked to save too often. Each saved highlight
// takes a token from a bucket which refills at a steady rate. This
// stops a stuck or bouncing button from filling the disk.
type Exporter struct {
	exporter HighlightExporter
	listener ThrottledEventListener
	bucket   *ratelimit.Bucket
}

func (t *Exporter) Export(ctx context.Context, triggeredAt time.Time, frames []*frame.Frame) (*export.Highlight, error) {
	if len(frames) == 0 {
		// Let the exporter report it without spending a token.
		return t.exporter.Export(ctx, triggeredAt, frames)
	}
	if t.bucket.TakeAvailable(1) == 0 {
		log.Print("highlight throttled")
		t.listener.WhenThrottled()
		return nil, ErrThrottled
	}
	return t.exporter.Export(ctx, triggeredAt, frames)
}

// Available returns the number of highlights that could be saved now.
func (t *Exporter) Available() int64 {
	return t.bucket.Available()
}

// realClock implements ratelimit.Clock in terms of standard time functions.
type realClock struct{}

// Now implements Clock.Now by calling time.Now.
func (realClock) Now() time.Time {
	return time.Now()
}

// Sleep implements Clock.Sleep by calling time.Sleep.
func (realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
