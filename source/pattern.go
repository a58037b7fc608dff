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
	"sync"
	"time"

	"github.com/TheCacophonyProject/highlight-recorder/frame"
)

// NewPattern returns a Source that generates a moving test pattern at the
// given resolution and frame rate. It is used when no camera is attached.
func NewPattern(res frame.Resolution, fps int) *Pattern {
	return &Pattern{
		res:      res,
		interval: time.Second / time.Duration(fps),
		nowFunc:  time.Now,
		sleep:    time.Sleep,
	}
}

// Pattern draws a vertical bar that moves one column per frame.
type Pattern struct {
	mu       sync.Mutex
	res      frame.Resolution
	interval time.Duration
	open     bool
	count    int
	last     time.Time
	nowFunc  func() time.Time
	sleep    func(time.Duration)
}

func (p *Pattern) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = true
	return nil
}

func (p *Pattern) Read() (*frame.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return nil, Permanent(ErrNotOpen)
	}

	// Deliver at roughly the camera rate, like a real device would.
	if !p.last.IsZero() {
		if wait := p.interval - p.nowFunc().Sub(p.last); wait > 0 {
			p.sleep(wait)
		}
	}
	p.last = p.nowFunc()

	pix := make([]byte, p.res.FrameSize())
	col := p.count % p.res.Width
	shade := byte(p.count)
	for y := 0; y < p.res.Height; y++ {
		row := y * p.res.Width * frame.BytesPerPixel
		for x := 0; x < p.res.Width; x++ {
			i := row + x*frame.BytesPerPixel
			pix[i] = shade
			pix[i+1] = byte(y)
			if x == col {
				pix[i+2] = 0xff
			}
		}
	}
	p.count++

	return &frame.Frame{
		Timestamp: p.last,
		Width:     p.res.Width,
		Height:    p.res.Height,
		Pix:       pix,
	}, nil
}

func (p *Pattern) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = false
	return nil
}
