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

package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

const (
	namePrefix           = "highlight_"
	nameTimeFormat       = "20060102_150405"
	tempMarker           = ".temp"
	defaultMaxCollisions = 100
)

// CollisionError is returned when every name for a trigger second is taken.
type CollisionError struct {
	Name     string
	Attempts int
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("no free file name for %s after %d attempts", e.Name, e.Attempts)
}

// reserve picks the first unused name for t and holds it until release.
// A name is used if another export holds it or a final or temporary file
// with that name exists.
func (e *Exporter) reserve(t time.Time) (string, error) {
	base := namePrefix + t.Local().Format(nameTimeFormat)

	e.mu.Lock()
	defer e.mu.Unlock()
	for n := 0; n <= e.conf.MaxCollisions; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		path := filepath.Join(e.conf.Dir, name+"."+e.conf.Ext)
		if e.reserved[path] || exists(path) || exists(tempPath(path)) {
			continue
		}
		e.reserved[path] = true
		return path, nil
	}
	return "", &CollisionError{Name: base, Attempts: e.conf.MaxCollisions + 1}
}

func (e *Exporter) release(path string) {
	e.mu.Lock()
	delete(e.reserved, path)
	e.mu.Unlock()
}

// tempPath keeps the extension last so the encoder still picks the
// container format from it.
func tempPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + tempMarker + ext
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// DeleteTempFiles removes partial highlights left behind by a previous run.
func DeleteTempFiles(dir, ext string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+tempMarker+"."+ext))
	if err != nil {
		return err
	}
	for _, filename := range matches {
		if err := os.Remove(filename); err != nil {
			return errors.Wrap(err, "failed to delete temporary file")
		}
	}
	return nil
}

// CountHighlights returns the number of complete highlights in dir.
func CountHighlights(dir, ext string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, namePrefix+"*."+ext))
	if err != nil {
		return 0, err
	}
	count := 0
	for _, m := range matches {
		if !strings.HasSuffix(m, tempMarker+"."+ext) {
			count++
		}
	}
	return count, nil
}

func freeDiskSpaceMB(dir string) (uint64, error) {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(dir, &fs); err != nil {
		return 0, err
	}
	return fs.Bavail * uint64(fs.Bsize) / 1024 / 1024, nil
}
