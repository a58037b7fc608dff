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

// Package export writes a buffered snapshot of frames to a video file.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/TheCacophonyProject/highlight-recorder/frame"
)

var (
	// ErrEmptyBuffer is returned when there are no frames to save.
	ErrEmptyBuffer = errors.New("nothing to save: buffer is empty")
	// ErrNoDiskSpace is returned when the output directory is below the
	// configured free space threshold.
	ErrNoDiskSpace = errors.New("not enough free disk space to save highlight")
)

// Encoder creates video files.
type Encoder interface {
	Open(path string, fps float64, res frame.Resolution) (Writer, error)
}

// Writer receives frames in order. The file is only complete once Close
// returns without error.
type Writer interface {
	Write(f *frame.Frame) error
	Close() error
}

// EncodeError reports a failure from the encoder. Op is one of open,
// write, close or rename.
type EncodeError struct {
	Path string
	Op   string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// Highlight describes a saved file.
type Highlight struct {
	ID          string
	Path        string
	Frames      int
	Duration    time.Duration
	Size        int64
	TriggeredAt time.Time
	FirstSeq    uint64
	LastSeq     uint64
}

func (h *Highlight) String() string {
	return fmt.Sprintf("%s (%d frames, %.1fs, %.1f MB)",
		filepath.Base(h.Path), h.Frames, h.Duration.Seconds(), float64(h.Size)/1024/1024)
}

// Config controls where and how highlights are written.
type Config struct {
	Dir       string
	Ext       string
	FrameRate int
	// MinDiskSpace is in megabytes. 0 disables the check.
	MinDiskSpace  uint64
	MaxCollisions int
}

// New returns an Exporter writing with enc.
func New(enc Encoder, conf Config) *Exporter {
	if conf.MaxCollisions < 1 {
		conf.MaxCollisions = defaultMaxCollisions
	}
	return &Exporter{
		conf:      conf,
		enc:       enc,
		reserved:  make(map[string]bool),
		diskSpace: freeDiskSpaceMB,
		newID:     func() string { return uuid.New().String() },
	}
}

// Exporter may be used by any number of goroutines at once; each export
// works from its own snapshot and its own output file.
type Exporter struct {
	conf      Config
	enc       Encoder
	mu        sync.Mutex
	reserved  map[string]bool
	diskSpace func(dir string) (uint64, error)
	newID     func() string
}

// Export encodes frames to a new file named after triggeredAt. frames must
// be a snapshot in sequence order that nothing else modifies. If ctx is
// cancelled before the file is complete, the partial file is removed.
func (e *Exporter) Export(ctx context.Context, triggeredAt time.Time, frames []*frame.Frame) (*Highlight, error) {
	if len(frames) == 0 {
		return nil, ErrEmptyBuffer
	}
	if err := e.checkDiskSpace(); err != nil {
		return nil, err
	}

	finalName, err := e.reserve(triggeredAt)
	if err != nil {
		return nil, err
	}
	defer e.release(finalName)
	tempName := tempPath(finalName)

	start := time.Now()
	if err := e.encode(ctx, tempName, frames); err != nil {
		removeTemp(tempName)
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ctx.Err(), "export of %s abandoned", filepath.Base(finalName))
		}
		if encErr, ok := err.(*EncodeError); ok {
			encErr.Path = finalName
		}
		return nil, err
	}
	if err := os.Rename(tempName, finalName); err != nil {
		removeTemp(tempName)
		return nil, &EncodeError{Path: finalName, Op: "rename", Err: err}
	}

	info, err := os.Stat(finalName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat highlight")
	}
	h := &Highlight{
		ID:          e.newID(),
		Path:        finalName,
		Frames:      len(frames),
		Duration:    FramesDuration(len(frames), e.conf.FrameRate),
		Size:        info.Size(),
		TriggeredAt: triggeredAt,
		FirstSeq:    frames[0].Seq,
		LastSeq:     frames[len(frames)-1].Seq,
	}
	log.Debugf("encoded %s in %s", h.Path, time.Since(start).Round(time.Millisecond))
	return h, nil
}

func (e *Exporter) encode(ctx context.Context, path string, frames []*frame.Frame) error {
	w, err := e.enc.Open(path, float64(e.conf.FrameRate), frames[0].Resolution())
	if err != nil {
		return &EncodeError{Op: "open", Err: err}
	}
	for _, f := range frames {
		if err := ctx.Err(); err != nil {
			w.Close()
			return err
		}
		if err := w.Write(f); err != nil {
			w.Close()
			return &EncodeError{Op: "write", Err: err}
		}
	}
	if err := w.Close(); err != nil {
		return &EncodeError{Op: "close", Err: err}
	}
	return nil
}

func (e *Exporter) checkDiskSpace() error {
	if e.conf.MinDiskSpace == 0 {
		return nil
	}
	free, err := e.diskSpace(e.conf.Dir)
	if err != nil {
		return errors.Wrap(err, "problem with checking disk space")
	}
	if free < e.conf.MinDiskSpace {
		return errors.Wrapf(ErrNoDiskSpace, "%d MB free", free)
	}
	return nil
}

// FramesDuration is how long n frames play for at fps.
func FramesDuration(n, fps int) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(fps)
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to remove %s: %v", path, err)
	}
}
