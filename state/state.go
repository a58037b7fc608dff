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

// Package state tracks the process-wide status that is reported
// periodically and served over D-Bus.
package state

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// New returns a State for a buffer recorded at frameRate frames per second.
func New(frameRate int) *State {
	return &State{
		frameRate: frameRate,
		phase:     "stopped",
	}
}

// State is updated by the capture loop, exporters and supervisor. All
// methods are safe for concurrent use.
type State struct {
	mu              sync.Mutex
	frameRate       int
	phase           string
	captureActive   bool
	bufferedFrames  int
	highlightsSaved uint64
	exportsFailed   uint64
	framesDropped   uint64
	lastError       error
	lastErrorTime   time.Time
}

// Status is a point in time copy of State.
type Status struct {
	Phase                  string  `json:"phase"`
	CaptureActive          bool    `json:"capture_active"`
	BufferedFrames         int     `json:"buffered_frames"`
	BufferOccupancySeconds float64 `json:"buffer_occupancy_seconds"`
	HighlightsSaved        uint64  `json:"highlights_saved"`
	ExportsFailed          uint64  `json:"exports_failed"`
	FramesDropped          uint64  `json:"frames_dropped"`
	LastError              string  `json:"last_error,omitempty"`
}

func (s *State) SetPhase(phase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
}

func (s *State) SetCaptureActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captureActive = active
}

func (s *State) SetBufferedFrames(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bufferedFrames = n
}

// FrameDropped records a frame the camera failed to deliver.
func (s *State) FrameDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.framesDropped++
}

func (s *State) HighlightSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.highlightsSaved++
}

func (s *State) ExportFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exportsFailed++
	s.setError(err)
}

// SetError records err as the most recent error.
func (s *State) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setError(err)
}

func (s *State) setError(err error) {
	s.lastError = err
	s.lastErrorTime = time.Now()
}

func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Phase:           s.phase,
		CaptureActive:   s.captureActive,
		BufferedFrames:  s.bufferedFrames,
		HighlightsSaved: s.highlightsSaved,
		ExportsFailed:   s.exportsFailed,
		FramesDropped:   s.framesDropped,
	}
	if s.frameRate > 0 {
		st.BufferOccupancySeconds = float64(s.bufferedFrames) / float64(s.frameRate)
	}
	if s.lastError != nil {
		st.LastError = s.lastError.Error()
	}
	return st
}

// Report logs the current status as a single structured line.
func (s *State) Report(logger log.FieldLogger) {
	st := s.Status()
	fields := log.Fields{
		"phase":            st.Phase,
		"capture_active":   st.CaptureActive,
		"buffered_frames":  st.BufferedFrames,
		"buffered_seconds": roundTenths(st.BufferOccupancySeconds),
		"highlights_saved": st.HighlightsSaved,
		"exports_failed":   st.ExportsFailed,
		"frames_dropped":   st.FramesDropped,
	}
	if st.LastError != "" {
		fields["last_error"] = st.LastError
	}
	logger.WithFields(fields).Info("status")
}

func roundTenths(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
