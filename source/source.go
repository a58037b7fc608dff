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

// Package source defines the boundary to the camera: something that can
// be opened, yields frames one at a time, and reports whether a failed
// read is worth retrying.
package source

import (
	"errors"
	"fmt"

	"github.com/TheCacophonyProject/highlight-recorder/frame"
)

// Source produces frames from a camera. Read blocks until the next frame
// is available. Timestamp and pixel data are filled in by the source; the
// sequence number is assigned by the capture loop.
type Source interface {
	Open() error
	Read() (*frame.Frame, error)
	Close() error
}

// ErrNotOpen is returned by Read on a source that hasn't been opened.
var ErrNotOpen = errors.New("camera is not open")

// DeviceError reports that the camera could not be acquired.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("camera unavailable: %v", e.Err)
	}
	return fmt.Sprintf("camera %s unavailable: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// readErr classifies a failed Read.
type readErr struct {
	cause     error
	permanent bool
}

func (e *readErr) Error() string {
	return e.cause.Error()
}

func (e *readErr) Unwrap() error {
	return e.cause
}

// Transient marks err as a read failure that may succeed on the next attempt.
func Transient(err error) error {
	return &readErr{cause: err}
}

// Permanent marks err as a read failure that ends capture, e.g. the camera
// was unplugged.
func Permanent(err error) error {
	return &readErr{cause: err, permanent: true}
}

// IsPermanent reports whether err was marked Permanent. Unclassified errors
// are treated as transient.
func IsPermanent(err error) bool {
	var re *readErr
	if errors.As(err, &re) {
		return re.permanent
	}
	return false
}
