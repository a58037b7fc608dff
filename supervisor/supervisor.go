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

// Package supervisor owns the camera, ring buffer and trigger channel and
// runs capture, trigger handling and status reporting together.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/TheCacophonyProject/window"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/TheCacophonyProject/highlight-recorder/capture"
	"github.com/TheCacophonyProject/highlight-recorder/export"
	"github.com/TheCacophonyProject/highlight-recorder/frame"
	"github.com/TheCacophonyProject/highlight-recorder/ringbuffer"
	"github.com/TheCacophonyProject/highlight-recorder/source"
	"github.com/TheCacophonyProject/highlight-recorder/state"
	"github.com/TheCacophonyProject/highlight-recorder/trigger"
)

type Phase string

const (
	Stopped  Phase = "stopped"
	Starting Phase = "starting"
	Running  Phase = "running"
	Stopping Phase = "stopping"
)

var (
	// ErrOutsideWindow is reported for triggers received outside the active window.
	ErrOutsideWindow = errors.New("trigger outside active window")
	// ErrStopped is reported for triggers still queued when Serve returns.
	ErrStopped = errors.New("recorder stopped before trigger was handled")
)

// Exporter saves a snapshot of frames as a highlight.
type Exporter interface {
	Export(ctx context.Context, triggeredAt time.Time, frames []*frame.Frame) (*export.Highlight, error)
}

// Listener is told the outcome of every accepted trigger.
type Listener interface {
	HighlightSaved(h *export.Highlight)
	ExportFailed(triggeredAt time.Time, err error)
}

type Config struct {
	FrameRate          int
	CaptureLogInterval time.Duration
	StatusInterval     time.Duration
	// StartupTimeout bounds how long Start waits for the first frame.
	StartupTimeout time.Duration
	// FailureGrace is how long triggers are still served from the
	// buffer after the camera fails.
	FailureGrace time.Duration
	// ShutdownGrace is how long in-flight exports may run after a stop
	// before they are cancelled.
	ShutdownGrace time.Duration
	// Window limits when triggers are accepted. nil means always.
	Window *window.Window
}

func New(
	src source.Source,
	buffer *ringbuffer.RingBuffer,
	triggers *trigger.Channel,
	exporter Exporter,
	st *state.State,
	conf Config,
) *Supervisor {
	triggers.SetSnapshot(buffer.Snapshot)
	return &Supervisor{
		conf:     conf,
		src:      src,
		buffer:   buffer,
		triggers: triggers,
		exporter: exporter,
		state:    st,
		loop: capture.NewLoop(src, buffer, st, capture.Config{
			FrameRate:   conf.FrameRate,
			LogInterval: conf.CaptureLogInterval,
		}),
		listener: nullListener{},
		phase:    Stopped,
	}
}

// Supervisor moves through Stopped, Starting, Running and Stopping. It may
// be started again after Run returns; the buffer and sequence numbers
// carry over so frames captured before a camera failure can still be
// saved. Triggers are handled by Serve, which runs for the supervisor's
// whole lifetime independent of the camera phase.
type Supervisor struct {
	conf     Config
	src      source.Source
	buffer   *ringbuffer.RingBuffer
	triggers *trigger.Channel
	exporter Exporter
	state    *state.State
	loop     *capture.Loop
	listener Listener

	mu      sync.Mutex
	phase   Phase
	serving bool
	exports sync.WaitGroup
}

type nullListener struct{}

func (nullListener) HighlightSaved(*export.Highlight) {}
func (nullListener) ExportFailed(time.Time, error)    {}

// SetListener must be called before Serve.
func (s *Supervisor) SetListener(l Listener) {
	s.listener = l
}

func (s *Supervisor) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Supervisor) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
	s.state.SetPhase(string(p))
	log.Debugf("supervisor %s", p)
}

// Start opens the camera and waits for its first frame. It returns a
// *source.DeviceError if the camera can't be opened or produces no frame
// within the startup timeout.
func (s *Supervisor) Start(ctx context.Context) error {
	if p := s.Phase(); p != Stopped {
		return errors.Errorf("cannot start while %s", p)
	}
	s.setPhase(Starting)

	if err := s.src.Open(); err != nil {
		return s.startFailed(asDeviceError(err))
	}
	f, err := s.firstFrame(ctx)
	if err != nil {
		s.src.Close()
		return s.startFailed(asDeviceError(errors.Wrap(err, "no frame from camera")))
	}
	s.loop.Accept(f)
	s.setPhase(Running)
	log.Print("recording started")
	return nil
}

func (s *Supervisor) startFailed(err error) error {
	s.state.SetError(err)
	s.setPhase(Stopped)
	return err
}

func (s *Supervisor) firstFrame(ctx context.Context) (*frame.Frame, error) {
	deadline := time.Now().Add(s.conf.StartupTimeout)
	retry := time.Second / time.Duration(s.conf.FrameRate)
	for {
		f, err := s.src.Read()
		if err == nil {
			return f, nil
		}
		if source.IsPermanent(err) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, errors.Wrapf(err, "timed out after %s", s.conf.StartupTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retry):
		}
	}
}

func asDeviceError(err error) error {
	var devErr *source.DeviceError
	if errors.As(err, &devErr) {
		return err
	}
	return &source.DeviceError{Err: err}
}

// Run captures frames until ctx is cancelled or the camera fails
// permanently. After a camera failure Run waits FailureGrace before
// returning the camera error, so the failure is not reported while the
// buffer is still fresh. Run always leaves the supervisor Stopped with the
// camera closed.
func (s *Supervisor) Run(ctx context.Context) error {
	if p := s.Phase(); p != Running {
		return errors.Errorf("cannot run while %s", p)
	}

	err := s.loop.Run(ctx)
	if err != nil && s.conf.FailureGrace > 0 {
		log.Printf("%v: saving highlights from buffered frames for %s", err, s.conf.FailureGrace)
		select {
		case <-ctx.Done():
		case <-time.After(s.conf.FailureGrace):
		}
	}

	s.setPhase(Stopping)
	if cerr := s.src.Close(); cerr != nil {
		log.Printf("error closing camera: %v", cerr)
	}
	s.setPhase(Stopped)
	return err
}

// Serve handles triggers and reports status until ctx is cancelled. It
// keeps serving while the camera is stopped or being reopened, saving
// from whatever the buffer holds. On return the trigger channel is
// closed, every trigger still queued is reported as failed with
// ErrStopped, and exports have finished or been cancelled.
func (s *Supervisor) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.serving {
		s.mu.Unlock()
		return errors.New("already serving")
	}
	s.serving = true
	s.mu.Unlock()

	// Exports are not tied to ctx so they can finish during shutdown.
	exportCtx, cancelExports := context.WithCancel(context.Background())
	defer cancelExports()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.serveTriggers(gctx, exportCtx)
		return nil
	})
	g.Go(func() error {
		s.reportStatus(gctx)
		return nil
	})
	err := g.Wait()

	s.triggers.Close()
	for _, ev := range s.triggers.Drain() {
		s.exportFailed(ev.At, ErrStopped)
	}
	s.waitForExports(cancelExports)
	return err
}

func (s *Supervisor) serveTriggers(ctx, exportCtx context.Context) {
	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.triggers.Events():
			s.handleTrigger(exportCtx, ev)
		}
	}
}

// handleTrigger encodes the frames captured when the trigger was accepted
// in the background. The channel snapshots in Fire, so the highlight ends
// at ev.At however long the event waited in the queue.
func (s *Supervisor) handleTrigger(ctx context.Context, ev trigger.Event) {
	if s.conf.Window != nil && !s.conf.Window.Active() {
		s.exportFailed(ev.At, ErrOutsideWindow)
		return
	}
	frames := ev.Frames
	if frames == nil {
		frames = s.buffer.Snapshot()
	}
	log.Printf("%s trigger: saving %d frames", ev.Source, len(frames))

	s.exports.Add(1)
	go func() {
		defer s.exports.Done()
		h, err := s.exporter.Export(ctx, ev.At, frames)
		if err != nil {
			s.exportFailed(ev.At, err)
			return
		}
		s.state.HighlightSaved()
		log.Printf("highlight saved: %s", h)
		s.listener.HighlightSaved(h)
	}()
}

func (s *Supervisor) exportFailed(at time.Time, err error) {
	log.Printf("highlight not saved: %v", err)
	s.state.ExportFailed(err)
	s.listener.ExportFailed(at, err)
}

func (s *Supervisor) waitForExports(cancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		s.exports.Wait()
		close(done)
	}()
	select {
	case <-done:
		return
	case <-time.After(s.conf.ShutdownGrace):
	}
	log.Printf("exports still running after %s, cancelling", s.conf.ShutdownGrace)
	cancel()
	<-done
}

func (s *Supervisor) reportStatus(ctx context.Context) {
	if s.conf.StatusInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.conf.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.state.SetBufferedFrames(s.buffer.Len())
			s.state.Report(log.StandardLogger())
		}
	}
}
