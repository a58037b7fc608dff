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

// Package opencv provides the camera source and video encoder backed by
// OpenCV through gocv.
package opencv

import (
	"fmt"
	"image"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/TheCacophonyProject/highlight-recorder/frame"
	"github.com/TheCacophonyProject/highlight-recorder/source"
)

// ProbeDevice makes the camera try each backend and device index in turn.
const ProbeDevice = -1

const probeIndices = 3

var probeBackends = []gocv.VideoCaptureAPI{gocv.VideoCaptureV4L2, gocv.VideoCaptureAny}

type CameraConfig struct {
	// Device is a video device index, or ProbeDevice.
	Device          int
	Resolution      frame.Resolution
	FrameRate       int
	MaxReadFailures int
}

// Camera reads frames from a USB or CSI camera.
type Camera struct {
	conf     CameraConfig
	vc       *gocv.VideoCapture
	device   int
	mat      gocv.Mat
	resized  gocv.Mat
	failures int
}

func NewCamera(conf CameraConfig) *Camera {
	return &Camera{conf: conf}
}

// Open finds a working camera. It returns a *source.DeviceError if no
// camera produces a frame.
func (c *Camera) Open() error {
	if c.vc != nil {
		return nil
	}
	indices := []int{c.conf.Device}
	if c.conf.Device == ProbeDevice {
		indices = nil
		for i := 0; i < probeIndices; i++ {
			indices = append(indices, i)
		}
	}

	c.mat = gocv.NewMat()
	for _, backend := range probeBackends {
		log.Printf("trying camera backend %v", backend)
		for _, i := range indices {
			vc, err := gocv.OpenVideoCaptureWithAPI(i, backend)
			if err != nil {
				log.Printf("camera index %d failed: %v", i, err)
				continue
			}
			if !vc.Read(&c.mat) || c.mat.Empty() {
				log.Printf("camera index %d opened but no frame", i)
				vc.Close()
				continue
			}
			log.Printf("camera found at index %d with %v", i, backend)
			c.vc = vc
			c.device = i
			c.setProperties()
			c.resized = gocv.NewMat()
			c.failures = 0
			return nil
		}
	}
	c.mat.Close()
	return &source.DeviceError{Device: c.deviceName(), Err: errors.New("no working camera found")}
}

func (c *Camera) setProperties() {
	c.vc.Set(gocv.VideoCaptureFrameWidth, float64(c.conf.Resolution.Width))
	c.vc.Set(gocv.VideoCaptureFrameHeight, float64(c.conf.Resolution.Height))
	c.vc.Set(gocv.VideoCaptureFPS, float64(c.conf.FrameRate))
	log.Printf("camera initialised: %s @ %dfps (device reports %.0fx%.0f @ %.1ffps)",
		c.conf.Resolution, c.conf.FrameRate,
		c.vc.Get(gocv.VideoCaptureFrameWidth),
		c.vc.Get(gocv.VideoCaptureFrameHeight),
		c.vc.Get(gocv.VideoCaptureFPS))
}

func (c *Camera) deviceName() string {
	if c.vc == nil && c.conf.Device == ProbeDevice {
		return "any"
	}
	if c.vc != nil {
		return fmt.Sprintf("/dev/video%d", c.device)
	}
	return fmt.Sprintf("/dev/video%d", c.conf.Device)
}

// Read returns the next frame at the configured resolution. Frames that
// arrive at another size are scaled.
func (c *Camera) Read() (*frame.Frame, error) {
	if c.vc == nil {
		return nil, source.Permanent(source.ErrNotOpen)
	}
	if !c.vc.IsOpened() {
		return nil, source.Permanent(errors.Errorf("camera %s closed", c.deviceName()))
	}
	if !c.vc.Read(&c.mat) || c.mat.Empty() {
		return nil, c.readFailed(errors.New("failed to read frame"))
	}
	if c.mat.Channels() != 3 {
		return nil, c.readFailed(errors.Errorf("unexpected frame with %d channels", c.mat.Channels()))
	}
	c.failures = 0

	res := c.conf.Resolution
	img := c.mat
	if c.mat.Cols() != res.Width || c.mat.Rows() != res.Height {
		gocv.Resize(c.mat, &c.resized, image.Pt(res.Width, res.Height), 0, 0, gocv.InterpolationLinear)
		img = c.resized
	}
	return &frame.Frame{
		Timestamp: time.Now(),
		Width:     res.Width,
		Height:    res.Height,
		// ToBytes copies, so the Mat can be reused for the next read.
		Pix: img.ToBytes(),
	}, nil
}

func (c *Camera) readFailed(err error) error {
	c.failures++
	if c.conf.MaxReadFailures > 0 && c.failures >= c.conf.MaxReadFailures {
		return source.Permanent(errors.Wrapf(err, "%d consecutive read failures", c.failures))
	}
	return source.Transient(err)
}

func (c *Camera) Close() error {
	if c.vc == nil {
		return nil
	}
	err := c.vc.Close()
	c.vc = nil
	c.mat.Close()
	c.resized.Close()
	return err
}
