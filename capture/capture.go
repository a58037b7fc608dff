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

// Package capture runs the single producer that pulls frames from the
// camera into the ring buffer at the configured frame rate.
package capture

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/TheCacophonyProject/highlight-recorder/frame"
	"github.com/TheCacophonyProject/highlight-recorder/loglimiter"
	"github.com/TheCacophonyProject/highlight-recorder/ringbuffer"
	"github.com/TheCacophonyProject/highlight-recorder/source"
	"github.com/TheCacophonyProject/highlight-recorder/state"
)

const (
	minErrorLogInterval = time.Minute
	watchdogSecs        = 5
)

type Config struct {
	FrameRate int
	// LogInterval is how often buffer occupancy is logged.
	LogInterval time.Duration
}

func NewLoop(src source.Source, buffer *ringbuffer.RingBuffer, st *state.State, conf Config) *Loop {
	return &Loop{
		src:             src,
		buffer:          buffer,
		state:           st,
		frameRate:       conf.FrameRate,
		period:          time.Second / time.Duration(conf.FrameRate),
		logInterval:     conf.LogInterval,
		framesPerNotify: watchdogSecs * conf.FrameRate,
		nowFunc:         time.Now,
		sleepFunc:       sleepContext,
		sdNotify:        daemon.SdNotify,
		errLog:          loglimiter.New(minErrorLogInterval),
	}
}

// Loop is the capture loop. It is the only writer to the ring buffer.
type Loop struct {
	src             source.Source
	buffer          *ringbuffer.RingBuffer
	state           *state.State
	frameRate       int
	period          time.Duration
	logInterval     time.Duration
	framesPerNotify int
	seq             uint64
	lastLog         time.Time

	nowFunc   func() time.Time
	sleepFunc func(context.Context, time.Duration) error
	sdNotify  func(bool, string) (bool, error)
	errLog    *loglimiter.LogLimiter
}

// Accept stamps f with the next sequence number and pushes it into the
// buffer. Sequence numbers continue across calls to Run so a reopened
// camera keeps appending to the same buffer.
func (l *Loop) Accept(f *frame.Frame) {
	l.seq++
	f.Seq = l.seq
	l.buffer.Push(f)
	l.state.SetBufferedFrames(l.buffer.Len())
}

// Run reads frames until ctx is cancelled or the source fails
// permanently. It returns nil on cancellation and the source error
// otherwise. Transient read failures are counted and skipped.
func (l *Loop) Run(ctx context.Context) error {
	l.state.SetCaptureActive(true)
	defer l.state.SetCaptureActive(false)

	l.lastLog = l.nowFunc()
	notifyCount := 0
	for ctx.Err() == nil {
		start := l.nowFunc()

		f, err := l.src.Read()
		if err != nil {
			if source.IsPermanent(err) {
				err = errors.Wrap(err, "camera failed")
				l.state.SetError(err)
				return err
			}
			l.state.FrameDropped()
			l.errLog.Printf("failed to read frame: %v", err)
		} else {
			l.Accept(f)
			if notifyCount++; notifyCount >= l.framesPerNotify {
				l.sdNotify(false, "WATCHDOG=1")
				notifyCount = 0
			}
		}

		l.maybeLogStatus()

		if err := l.pace(ctx, start); err != nil {
			return nil
		}
	}
	return nil
}

// pace sleeps for whatever is left of the frame period. An iteration that
// overran the period moves straight on to the next read.
func (l *Loop) pace(ctx context.Context, start time.Time) error {
	elapsed := l.nowFunc().Sub(start)
	if elapsed >= l.period {
		return nil
	}
	return l.sleepFunc(ctx, l.period-elapsed)
}

func (l *Loop) maybeLogStatus() {
	now := l.nowFunc()
	if now.Sub(l.lastLog) < l.logInterval {
		return
	}
	l.lastLog = now
	n := l.buffer.Len()
	log.Printf("recording... buffer: %d frames (%.1fs)", n, float64(n)/float64(l.frameRate))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
