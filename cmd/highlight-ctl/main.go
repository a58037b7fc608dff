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
	"encoding/json"
	"errors"
	"fmt"

	arg "github.com/alexflint/go-arg"
	log "github.com/sirupsen/logrus"

	"github.com/TheCacophonyProject/highlight-recorder/highlightclient"
)

var version = "<not set>"

type saveCmd struct{}

type statusCmd struct {
	JSON bool `arg:"--json" help:"print the raw status"`
}

type Args struct {
	Save   *saveCmd   `arg:"subcommand:save" help:"save a highlight from the recorder's buffer"`
	Status *statusCmd `arg:"subcommand:status" help:"show recorder status"`
}

func (Args) Version() string {
	return version
}

func main() {
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	var args Args
	p := arg.MustParse(&args)

	switch {
	case args.Save != nil:
		if err := highlightclient.SaveHighlight(); err != nil {
			return err
		}
		fmt.Println("highlight requested")
	case args.Status != nil:
		status, err := highlightclient.GetStatus()
		if err != nil {
			return err
		}
		if args.Status.JSON {
			buf, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(buf))
			return nil
		}
		printStatus(status)
	default:
		p.WriteUsage(log.StandardLogger().Out)
		return errors.New("no command given")
	}
	return nil
}

func printStatus(s *highlightclient.Status) {
	fmt.Printf("phase:            %s\n", s.Phase)
	fmt.Printf("capturing:        %t\n", s.CaptureActive)
	fmt.Printf("buffer:           %d frames (%.1fs)\n", s.BufferedFrames, s.BufferOccupancySeconds)
	fmt.Printf("highlights saved: %d (%d files on disk)\n", s.HighlightsSaved, s.HighlightFiles)
	fmt.Printf("exports failed:   %d\n", s.ExportsFailed)
	fmt.Printf("frames dropped:   %d\n", s.FramesDropped)
	if s.LastError != "" {
		fmt.Printf("last error:       %s\n", s.LastError)
	}
}
