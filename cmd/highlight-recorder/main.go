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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"

	"github.com/TheCacophonyProject/highlight-recorder/config"
	"github.com/TheCacophonyProject/highlight-recorder/events"
	"github.com/TheCacophonyProject/highlight-recorder/export"
	"github.com/TheCacophonyProject/highlight-recorder/opencv"
	"github.com/TheCacophonyProject/highlight-recorder/ringbuffer"
	"github.com/TheCacophonyProject/highlight-recorder/source"
	"github.com/TheCacophonyProject/highlight-recorder/state"
	"github.com/TheCacophonyProject/highlight-recorder/supervisor"
	"github.com/TheCacophonyProject/highlight-recorder/throttle"
	"github.com/TheCacophonyProject/highlight-recorder/trigger"
)

const reopenDelay = 5 * time.Second

var version = "<not set>"

type Args struct {
	ConfigFile  string `arg:"-c,--config" help:"path to configuration file"`
	Quick       bool   `arg:"-q,--quick" help:"don't cycle camera power on startup"`
	Timestamps  bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
	Verbose     bool   `arg:"-v,--verbose" help:"make logging more verbose"`
	TestPattern bool   `arg:"--test-pattern" help:"record a generated test pattern instead of the camera"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = config.DefaultConfigFile
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()
	log.SetFormatter(&log.TextFormatter{
		DisableTimestamp: !args.Timestamps,
		FullTimestamp:    true,
	})
	if args.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	log.Printf("running version: %s", version)
	conf, err := config.ParseConfigFile(args.ConfigFile)
	if err != nil {
		return err
	}
	logConfig(conf)

	if err := os.MkdirAll(conf.OutputDir, 0755); err != nil {
		return fmt.Errorf("could not create output directory: %v", err)
	}
	log.Print("deleting temp files")
	if err := export.DeleteTempFiles(conf.OutputDir, conf.FileExtension); err != nil {
		return err
	}

	log.Print("host initialisation")
	if _, err := host.Init(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	triggers := trigger.NewChannel(conf.Trigger.Debounce, conf.Trigger.QueueSize)
	if conf.Trigger.Pin != "" {
		button, err := trigger.NewButton(conf.Trigger.Pin, triggers)
		if err != nil {
			return err
		}
		go button.Run(ctx)
	}

	st := state.New(conf.Camera.FrameRate)
	reporter := events.NewReporter()

	var exporter supervisor.Exporter = export.New(opencv.NewEncoder(conf.Codec), export.Config{
		Dir:          conf.OutputDir,
		Ext:          conf.FileExtension,
		FrameRate:    conf.Camera.FrameRate,
		MinDiskSpace: conf.MinDiskSpace,
	})
	if conf.Throttler.ApplyThrottling {
		exporter = throttle.New(exporter, conf.Throttler, reporter)
	}

	activeWindow, err := conf.Window()
	if err != nil {
		return err
	}

	log.Print("starting d-bus service")
	if err := startService(triggers, st, conf); err != nil {
		return err
	}

	sup := supervisor.New(
		newSource(conf, args.TestPattern),
		ringbuffer.New(conf.BufferFrames()),
		triggers,
		exporter,
		st,
		supervisor.Config{
			FrameRate:          conf.Camera.FrameRate,
			CaptureLogInterval: conf.CaptureLogInterval,
			StatusInterval:     conf.StatusInterval,
			StartupTimeout:     conf.StartupTimeout,
			FailureGrace:       conf.FailureGrace,
			ShutdownGrace:      conf.ShutdownGrace,
			Window:             activeWindow,
		},
	)
	sup.SetListener(reporter)

	// Triggers are served for the life of the process, including while
	// the camera is being reopened.
	served := make(chan error, 1)
	go func() { served <- sup.Serve(ctx) }()
	defer func() {
		stop()
		if err := <-served; err != nil {
			log.Printf("trigger handling: %v", err)
		}
	}()

	if !args.Quick {
		if err := cycleCameraPower(ctx, conf.Camera.PowerPin); err != nil {
			return err
		}
	}

	log.Print("opening camera")
	if err := sup.Start(ctx); err != nil {
		return err
	}
	daemon.SdNotify(false, "READY=1")
	log.Print("press the button to save a highlight")

	for {
		err := sup.Run(ctx)
		if ctx.Err() != nil {
			break
		}
		log.Printf("recording error: %v", err)

		// The buffer survives, so keep trying to get the camera back
		// rather than exiting.
		for ctx.Err() == nil {
			if err := cycleCameraPower(ctx, conf.Camera.PowerPin); err != nil {
				log.Print(err)
			}
			log.Print("reopening camera")
			if err := sup.Start(ctx); err != nil {
				log.Printf("%v, retrying in %s", err, reopenDelay)
				sleepContext(ctx, reopenDelay)
				continue
			}
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	log.Print("recording stopped")
	st.Report(log.StandardLogger())
	return nil
}

func newSource(conf *config.Config, testPattern bool) source.Source {
	if testPattern {
		log.Print("using test pattern instead of camera")
		return source.NewPattern(conf.Camera.Resolution(), conf.Camera.FrameRate)
	}
	return opencv.NewCamera(opencv.CameraConfig{
		Device:          conf.Camera.Device,
		Resolution:      conf.Camera.Resolution(),
		FrameRate:       conf.Camera.FrameRate,
		MaxReadFailures: conf.Camera.MaxReadFailures,
	})
}

func logConfig(conf *config.Config) {
	log.Printf("output dir: %s", conf.OutputDir)
	log.Printf("minimum disk space: %d MB", conf.MinDiskSpace)
	log.Printf("file format: %s (%s)", conf.FileExtension, conf.Codec)
	if conf.Camera.Device == config.ProbeDevice {
		log.Print("camera device: probe")
	} else {
		log.Printf("camera device: %d", conf.Camera.Device)
	}
	log.Printf("camera: %s @ %dfps", conf.Camera.Resolution(), conf.Camera.FrameRate)
	log.Printf("buffer: %ds (%d frames)", conf.Buffer.WindowSecs, conf.BufferFrames())
	log.Printf("trigger: pin %s, debounce %s", conf.Trigger.Pin, conf.Trigger.Debounce)
	log.Printf("throttler: %+v", conf.Throttler)
	if w := conf.ActiveWindow; w.IsSet() {
		log.Printf("active window: %s to %s", w.Start, w.End)
	}
}

// cycleCameraPower turns the camera off and on again, returning early if
// ctx is cancelled. Power is always restored before it returns.
func cycleCameraPower(ctx context.Context, pinName string) error {
	if pinName == "" {
		return nil
	}

	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return fmt.Errorf("unable to load camera power pin %s", pinName)
	}

	log.Print("turning camera power off")
	if err := pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("failed to set camera power pin low: %v", err)
	}
	sleepContext(ctx, 2*time.Second)

	log.Print("turning camera power on")
	if err := pin.Out(gpio.High); err != nil {
		return fmt.Errorf("failed to set camera power pin high: %v", err)
	}

	log.Print("waiting for camera startup")
	if err := sleepContext(ctx, 8*time.Second); err != nil {
		return err
	}
	log.Print("camera should be ready")
	return nil
}

// sleepContext waits for d, returning ctx.Err() if ctx is done first.
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
