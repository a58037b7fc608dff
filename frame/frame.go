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

package frame

import (
	"fmt"
	"time"
)

// BytesPerPixel is the size of one packed BGR24 pixel.
const BytesPerPixel = 3

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// FrameSize returns the number of bytes needed for one frame at this resolution.
func (r Resolution) FrameSize() int {
	return r.Width * r.Height * BytesPerPixel
}

// Frame is a single captured image. Once the capture loop has assigned Seq
// and pushed the frame it must never be modified: the same Frame may be
// held by the ring buffer and any number of in-flight exports.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	// Pix holds packed BGR24 pixel data, row by row.
	Pix []byte
}

func (f *Frame) Resolution() Resolution {
	return Resolution{Width: f.Width, Height: f.Height}
}
