package media

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/dubflow/dubflow/pkg/audio/resampler"
)

// WAVInfo is the format of a PCM WAV file's data chunk.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataBytes     int
}

// DurationMs is the play time of the data chunk.
func (w WAVInfo) DurationMs() int {
	byteRate := w.SampleRate * w.Channels * w.BitsPerSample / 8
	if byteRate == 0 {
		return 0
	}
	return int(int64(w.DataBytes) * 1000 / int64(byteRate))
}

// ReadWAV parses a PCM WAV file and returns its format and raw samples.
// Compressed WAV variants are rejected.
func ReadWAV(path string) (WAVInfo, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return WAVInfo{}, nil, fmt.Errorf("read wav: %w", err)
	}
	info, samples, err := decodeWAV(data)
	if err != nil {
		return WAVInfo{}, nil, fmt.Errorf("parse wav %s: %w", path, err)
	}
	return info, samples, nil
}

func decodeWAV(data []byte) (WAVInfo, []byte, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAVInfo{}, nil, fmt.Errorf("not a RIFF/WAVE file")
	}
	var info WAVInfo
	var samples []byte
	haveFmt := false
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return WAVInfo{}, nil, fmt.Errorf("short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return WAVInfo{}, nil, fmt.Errorf("unsupported wav format %d", format)
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			samples = data[body : body+size]
			info.DataBytes = size
		}
		off = body + size
		if size%2 == 1 {
			off++
		}
	}
	if !haveFmt {
		return WAVInfo{}, nil, fmt.Errorf("missing fmt chunk")
	}
	if samples == nil {
		return WAVInfo{}, nil, fmt.Errorf("missing data chunk")
	}
	return info, samples, nil
}

// EncodeWAVHeader builds the 44-byte canonical header for 16-bit PCM.
func EncodeWAVHeader(dataLen, sampleRate, channels int) []byte {
	const bits = 16
	byteRate := sampleRate * channels * bits / 8
	blockAlign := channels * bits / 8

	h := make([]byte, 44)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataLen))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1)
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], uint16(bits))
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataLen))
	return h
}

// WriteWAV writes 16-bit PCM samples as a WAV file.
func WriteWAV(path string, samples []byte, sampleRate, channels int) error {
	var buf bytes.Buffer
	buf.Write(EncodeWAVHeader(len(samples), sampleRate, channels))
	buf.Write(samples)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	return nil
}

// WriteSilence writes a WAV file of zero samples lasting durMs.
func WriteSilence(path string, durMs, sampleRate, channels int) error {
	n := sampleRate * channels * 2 * durMs / 1000
	return WriteWAV(path, make([]byte, n), sampleRate, channels)
}

// WAVDurationMs reads the duration from the file header without ffprobe.
func WAVDurationMs(path string) (int, error) {
	info, _, err := ReadWAV(path)
	if err != nil {
		return 0, err
	}
	return info.DurationMs(), nil
}

// Downmix16K converts any 16-bit PCM WAV to 16 kHz mono, the format the
// recognizer requires.
func Downmix16K(inPath, outPath string) error {
	info, samples, err := ReadWAV(inPath)
	if err != nil {
		return err
	}
	if info.BitsPerSample != 16 {
		return fmt.Errorf("downmix %s: %d-bit samples unsupported", inPath, info.BitsPerSample)
	}
	if info.Channels > 2 {
		return fmt.Errorf("downmix %s: %d channels unsupported", inPath, info.Channels)
	}

	src := resampler.Format{SampleRate: info.SampleRate, Stereo: info.Channels == 2}
	dst := resampler.Format{SampleRate: 16000, Stereo: false}
	if src == dst {
		return WriteWAV(outPath, samples, 16000, 1)
	}

	rs, err := resampler.New(bytes.NewReader(samples), src, dst)
	if err != nil {
		return fmt.Errorf("downmix %s: %w", inPath, err)
	}
	defer rs.Close()
	out, err := io.ReadAll(rs)
	if err != nil {
		return fmt.Errorf("downmix %s: %w", inPath, err)
	}
	return WriteWAV(outPath, out, 16000, 1)
}
