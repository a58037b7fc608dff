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

package opencv

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/TheCacophonyProject/highlight-recorder/export"
	"github.com/TheCacophonyProject/highlight-recorder/frame"
)

// Encoder writes video files with an OpenCV VideoWriter. The container is
// chosen from the file extension and the codec is a FourCC such as XVID.
type Encoder struct {
	Codec string
}

func NewEncoder(codec string) *Encoder {
	return &Encoder{Codec: codec}
}

func (e *Encoder) Open(path string, fps float64, res frame.Resolution) (export.Writer, error) {
	vw, err := gocv.VideoWriterFile(path, e.Codec, fps, res.Width, res.Height, true)
	if err != nil {
		return nil, err
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, errors.Errorf("could not open video writer with codec %s", e.Codec)
	}
	return &writer{vw: vw, res: res}, nil
}

type writer struct {
	vw  *gocv.VideoWriter
	res frame.Resolution
}

func (w *writer) Write(f *frame.Frame) error {
	if f.Resolution() != w.res {
		return errors.Errorf("frame %d is %s, expected %s", f.Seq, f.Resolution(), w.res)
	}
	// The Mat shares f.Pix, which is only read by the writer.
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Pix)
	if err != nil {
		return err
	}
	defer mat.Close()
	return w.vw.Write(mat)
}

func (w *writer) Close() error {
	return w.vw.Close()
}
