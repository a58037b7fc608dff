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

package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"strings"
	"time"

	"github.com/TheCacophonyProject/window"
	yaml "gopkg.in/yaml.v2"

	"github.com/TheCacophonyProject/highlight-recorder/frame"
	"github.com/TheCacophonyProject/highlight-recorder/throttle"
)

const DefaultConfigFile = "/etc/highlight-recorder.yaml"

// ProbeDevice in camera.device means try each camera in turn.
const ProbeDevice = -1

type Config struct {
	OutputDir          string
	MinDiskSpace       uint64
	FileExtension      string
	Codec              string
	StatusInterval     time.Duration
	CaptureLogInterval time.Duration
	ShutdownGrace      time.Duration
	FailureGrace       time.Duration
	StartupTimeout     time.Duration
	Camera             CameraConfig
	Buffer             BufferConfig
	Trigger            TriggerConfig
	Throttler          throttle.Config
	ActiveWindow       WindowConfig
}

type CameraConfig struct {
	Device          int    `yaml:"device"`
	Width           int    `yaml:"width"`
	Height          int    `yaml:"height"`
	FrameRate       int    `yaml:"frame-rate"`
	MaxReadFailures int    `yaml:"max-read-failures"`
	PowerPin        string `yaml:"power-pin"`
}

func (conf *CameraConfig) Resolution() frame.Resolution {
	return frame.Resolution{Width: conf.Width, Height: conf.Height}
}

func (conf *CameraConfig) Validate() error {
	if conf.Device < ProbeDevice {
		return errors.New("camera device should be a device index or -1")
	}
	if conf.Width < 1 || conf.Height < 1 {
		return errors.New("camera width and height should be positive")
	}
	if conf.FrameRate < 1 || conf.FrameRate > 120 {
		return errors.New("camera frame-rate should be in range 1 - 120")
	}
	if conf.MaxReadFailures < 0 {
		return errors.New("camera max-read-failures can't be negative")
	}
	return nil
}

type BufferConfig struct {
	WindowSecs int `yaml:"window-secs"`
}

// WindowConfig limits triggers to part of the day. Start and End are
// "15:04" times or durations relative to sunset and sunrise, e.g. "-30m".
// A zero latitude or longitude uses the default location.
type WindowConfig struct {
	Start     string  `yaml:"start"`
	End       string  `yaml:"end"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

func (conf *WindowConfig) IsSet() bool {
	return conf.Start != "" || conf.End != ""
}

type TriggerConfig struct {
	Pin       string        `yaml:"pin"`
	Debounce  time.Duration `yaml:"debounce"`
	QueueSize int           `yaml:"queue-size"`
}

func (conf *TriggerConfig) Validate() error {
	if conf.Debounce < 0 {
		return errors.New("trigger debounce can't be negative")
	}
	if conf.QueueSize < 1 {
		return errors.New("trigger queue-size should be at least 1")
	}
	return nil
}

// BufferFrames is the ring buffer capacity.
func (conf *Config) BufferFrames() int {
	return conf.Buffer.WindowSecs * conf.Camera.FrameRate
}

// Window returns the active window, or nil if triggers are always accepted.
func (conf *Config) Window() (*window.Window, error) {
	w := conf.ActiveWindow
	if !w.IsSet() {
		return nil, nil
	}
	if w.Start == "" {
		return nil, errors.New("active-window end is set but start isn't")
	}
	if w.End == "" {
		return nil, errors.New("active-window start is set but end isn't")
	}
	win, err := window.New(w.Start, w.End, w.Latitude, w.Longitude)
	if err != nil {
		return nil, fmt.Errorf("invalid active-window: %v", err)
	}
	return win, nil
}

func (conf *Config) Validate() error {
	if conf.OutputDir == "" {
		return errors.New("output-dir must be set")
	}
	if conf.FileExtension == "" || strings.ContainsAny(conf.FileExtension, "./") {
		return errors.New("file-extension should be a bare extension like avi")
	}
	if len(conf.Codec) != 4 {
		return fmt.Errorf("codec %q should be a four character code", conf.Codec)
	}
	if conf.Buffer.WindowSecs < 1 {
		return errors.New("buffer window-secs should be at least 1")
	}
	if conf.StatusInterval < 0 || conf.CaptureLogInterval < 0 {
		return errors.New("log intervals can't be negative")
	}
	if conf.ShutdownGrace < 0 || conf.FailureGrace < 0 {
		return errors.New("grace periods can't be negative")
	}
	if conf.StartupTimeout <= 0 {
		return errors.New("startup-timeout should be positive")
	}
	if _, err := conf.Window(); err != nil {
		return err
	}
	if err := conf.Camera.Validate(); err != nil {
		return err
	}
	if err := conf.Trigger.Validate(); err != nil {
		return err
	}
	return conf.Throttler.Validate()
}

type rawConfig struct {
	OutputDir          string          `yaml:"output-dir"`
	MinDiskSpace       uint64          `yaml:"min-disk-space"`
	FileExtension      string          `yaml:"file-extension"`
	Codec              string          `yaml:"codec"`
	StatusInterval     time.Duration   `yaml:"status-interval"`
	CaptureLogInterval time.Duration   `yaml:"capture-log-interval"`
	ShutdownGrace      time.Duration   `yaml:"shutdown-grace"`
	FailureGrace       time.Duration   `yaml:"failure-grace"`
	StartupTimeout     time.Duration   `yaml:"startup-timeout"`
	Camera             CameraConfig    `yaml:"camera"`
	Buffer             BufferConfig    `yaml:"buffer"`
	Trigger            TriggerConfig   `yaml:"trigger"`
	Throttler          throttle.Config `yaml:"throttler"`
	ActiveWindow       WindowConfig    `yaml:"active-window"`
}

var defaultConfig = rawConfig{
	OutputDir:          "/var/spool/highlights",
	MinDiskSpace:       200,
	FileExtension:      "avi",
	Codec:              "XVID",
	StatusInterval:     30 * time.Second,
	CaptureLogInterval: 10 * time.Second,
	ShutdownGrace:      30 * time.Second,
	FailureGrace:       2 * time.Minute,
	StartupTimeout:     10 * time.Second,
	Camera: CameraConfig{
		Device:          ProbeDevice,
		Width:           640,
		Height:          480,
		FrameRate:       15,
		MaxReadFailures: 150,
	},
	Buffer: BufferConfig{
		WindowSecs: 120,
	},
	Trigger: TriggerConfig{
		Pin:       "GPIO2",
		Debounce:  500 * time.Millisecond,
		QueueSize: 8,
	},
	Throttler: throttle.DefaultConfig(),
}

func ParseConfigFile(filename string) (*Config, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseConfig(buf)
}

func ParseConfig(buf []byte) (*Config, error) {
	raw := defaultConfig
	if err := yaml.Unmarshal(buf, &raw); err != nil {
		return nil, err
	}

	conf := &Config{
		OutputDir:          raw.OutputDir,
		MinDiskSpace:       raw.MinDiskSpace,
		FileExtension:      raw.FileExtension,
		Codec:              raw.Codec,
		StatusInterval:     raw.StatusInterval,
		CaptureLogInterval: raw.CaptureLogInterval,
		ShutdownGrace:      raw.ShutdownGrace,
		FailureGrace:       raw.FailureGrace,
		StartupTimeout:     raw.StartupTimeout,
		Camera:             raw.Camera,
		Buffer:             raw.Buffer,
		Trigger:            raw.Trigger,
		Throttler:          raw.Throttler,
		ActiveWindow:       raw.ActiveWindow,
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}
