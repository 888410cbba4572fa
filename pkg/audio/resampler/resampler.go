// Package resampler converts 16-bit PCM streams between sample rates and
// channel layouts. The pipeline uses it to downmix separated vocal stems
// to the 16 kHz mono format the recognizer ingests, without shelling out
// to ffmpeg for a pure data transform.
package resampler

import (
	"fmt"
	"io"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Format describes a 16-bit signed PCM stream.
type Format struct {
	// SampleRate in Hz.
	SampleRate int
	// Stereo selects two channels; false means mono.
	Stereo bool
}

func (f Format) channels() int {
	if f.Stereo {
		return 2
	}
	return 1
}

// frameBytes is the size of one frame: 2 bytes per sample per channel.
func (f Format) frameBytes() int {
	return 2 * f.channels()
}

// Resampler streams converted audio. Close releases the converter; reads
// after Close fail.
type Resampler interface {
	io.ReadCloser
}

// pumpBytes is how much source is pulled per refill.
const pumpBytes = 8192

type stream struct {
	src    io.Reader
	srcFmt Format
	dstFmt Format

	// conv is nil when only the channel layout changes.
	conv resampling.Resampler

	carry   []byte // unaligned tail of the last source read
	pending []byte // converted output not yet handed to the caller
	done    bool
	closed  bool
}

// New builds a converter from srcFmt to dstFmt over src. Both formats must
// be 16-bit PCM.
func New(src io.Reader, srcFmt, dstFmt Format) (Resampler, error) {
	if srcFmt.SampleRate <= 0 || dstFmt.SampleRate <= 0 {
		return nil, fmt.Errorf("resampler: invalid sample rate %d -> %d", srcFmt.SampleRate, dstFmt.SampleRate)
	}
	s := &stream{src: src, srcFmt: srcFmt, dstFmt: dstFmt}
	if srcFmt.SampleRate != dstFmt.SampleRate {
		conv, err := resampling.New(&resampling.Config{
			InputRate:  float64(srcFmt.SampleRate),
			OutputRate: float64(dstFmt.SampleRate),
			Channels:   dstFmt.channels(),
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("resampler: %w", err)
		}
		s.conv = conv
	}
	return s, nil
}

func (s *stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.pending) == 0 {
		if s.done {
			return 0, io.EOF
		}
		if err := s.pump(); err != nil {
			return 0, err
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// pump pulls one chunk of source frames and appends the converted audio to
// pending. An unaligned tail is carried into the next pull; a tail left at
// EOF is a truncated frame and is dropped.
func (s *stream) pump() error {
	buf := make([]byte, pumpBytes)
	n, err := s.src.Read(buf)
	if n > 0 {
		data := append(s.carry, buf[:n]...)
		frame := s.srcFmt.frameBytes()
		keep := len(data) % frame
		aligned := data[:len(data)-keep]
		s.carry = append([]byte(nil), data[len(data)-keep:]...)
		if len(aligned) > 0 {
			if cerr := s.emit(aligned); cerr != nil {
				return cerr
			}
		}
	}
	if err == io.EOF {
		s.done = true
		return nil
	}
	return err
}

// emit channel-converts one aligned chunk and runs it through the rate
// converter.
func (s *stream) emit(frames []byte) error {
	switch {
	case s.srcFmt.Stereo && !s.dstFmt.Stereo:
		frames = stereoToMono(frames)
	case !s.srcFmt.Stereo && s.dstFmt.Stereo:
		frames = monoToStereo(frames)
	}
	if s.conv == nil {
		s.pending = append(s.pending, frames...)
		return nil
	}

	input := make([]float64, len(frames)/2)
	for i := range input {
		input[i] = float64(int16(frames[i*2])|int16(frames[i*2+1])<<8) / 32768.0
	}
	output, err := s.conv.Process(input)
	if err != nil {
		return fmt.Errorf("resampler: %w", err)
	}
	for _, v := range output {
		sample := int16(v * 32767.0)
		if v > 1.0 {
			sample = 32767
		} else if v < -1.0 {
			sample = -32768
		}
		s.pending = append(s.pending, byte(sample), byte(sample>>8))
	}
	return nil
}

func (s *stream) Close() error {
	s.closed = true
	s.conv = nil
	return nil
}

// stereoToMono averages the left and right samples of each frame.
func stereoToMono(b []byte) []byte {
	frames := len(b) / 4
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		l := int16(b[i*4]) | int16(b[i*4+1])<<8
		r := int16(b[i*4+2]) | int16(b[i*4+3])<<8
		m := int16((int32(l) + int32(r)) / 2)
		out[i*2] = byte(m)
		out[i*2+1] = byte(m >> 8)
	}
	return out
}

// monoToStereo duplicates each sample into both channels.
func monoToStereo(b []byte) []byte {
	samples := len(b) / 2
	out := make([]byte, samples*4)
	for i := 0; i < samples; i++ {
		out[i*4], out[i*4+1] = b[i*2], b[i*2+1]
		out[i*4+2], out[i*4+3] = b[i*2], b[i*2+1]
	}
	return out
}
