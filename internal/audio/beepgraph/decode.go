/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package beepgraph

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/friendsincode/backdrop/internal/audio"
)

// ErrUnsupportedFormat is returned for file extensions with no decoder.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// resampleQuality is passed to beep.Resample.
const resampleQuality = 4

// Extensions lists the file extensions Decode understands.
var Extensions = []string{".mp3", ".wav", ".flac", ".ogg", ".oga"}

// Supported reports whether filename has a decodable extension.
func Supported(filename string) bool {
	ext := strings.ToLower(path.Ext(filename))
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Buffer is a fully decoded track held in memory at the graph rate.
type Buffer struct {
	name string
	buf  *beep.Buffer
}

// Duration implements audio.Buffer.
func (b *Buffer) Duration() time.Duration {
	return b.buf.Format().SampleRate.D(b.buf.Len())
}

// Name returns the file the buffer was decoded from.
func (b *Buffer) Name() string { return b.name }

// Decoder decodes whole files into Buffers resampled to one rate.
type Decoder struct {
	format beep.Format
}

// NewDecoder creates a decoder producing buffers for a graph running at sr.
func NewDecoder(sr beep.SampleRate) *Decoder {
	return &Decoder{format: beep.Format{SampleRate: sr, NumChannels: 2, Precision: 2}}
}

// Decode reads r to the end and closes it.
func (d *Decoder) Decode(filename string, r io.ReadCloser) (audio.Buffer, error) {
	streamer, format, err := open(filename, r)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if format.SampleRate != d.format.SampleRate {
		s = beep.Resample(resampleQuality, format.SampleRate, d.format.SampleRate, s)
	}

	buf := beep.NewBuffer(d.format)
	buf.Append(s)
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("decode %s: no samples", filename)
	}
	return &Buffer{name: filename, buf: buf}, nil
}

func open(filename string, r io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".mp3":
		return mp3.Decode(r)
	case ".wav":
		return wav.Decode(r)
	case ".flac":
		return flac.Decode(r)
	case ".ogg", ".oga":
		return vorbis.Decode(r)
	}
	return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}
