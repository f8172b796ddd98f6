// Package audio holds the PCM plumbing around the pipeline: WAV encoding and
// decoding, the microphone input driver, and reply playback.
//
// All audio is 16-bit little-endian PCM. Capture is mono; synthesized replies
// may carry any channel count and are played back as-is.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const wavHeaderSize = 44

// ErrInvalidWAV is returned when a byte slice is not a PCM16 WAV container.
var ErrInvalidWAV = errors.New("audio: invalid wav data")

// Format describes a PCM16 stream.
type Format struct {
	SampleRate int
	Channels   int
}

// EncodeWAV wraps PCM16 samples in a canonical 44-byte WAV header.
func EncodeWAV(samples []int16, f Format) ([]byte, error) {
	if f.SampleRate <= 0 {
		return nil, fmt.Errorf("encoding wav: sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return PCMToWAV(pcm, f), nil
}

// PCMToWAV wraps raw PCM16 bytes in a WAV container.
func PCMToWAV(pcm []byte, f Format) []byte {
	const bitsPerSample = 16
	blockAlign := f.Channels * bitsPerSample / 8

	buf := &bytes.Buffer{}
	buf.Grow(wavHeaderSize + len(pcm))

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(f.Channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(f.SampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(f.SampleRate*blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// DecodeWAV parses a canonical PCM16 WAV container and returns its samples.
func DecodeWAV(data []byte) ([]int16, Format, error) {
	if len(data) < wavHeaderSize {
		return nil, Format{}, fmt.Errorf("%w: need at least %d bytes, got %d", ErrInvalidWAV, wavHeaderSize, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}
	if string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return nil, Format{}, fmt.Errorf("%w: unexpected chunk layout", ErrInvalidWAV)
	}
	if format := binary.LittleEndian.Uint16(data[20:22]); format != 1 {
		return nil, Format{}, fmt.Errorf("%w: audio format %d is not PCM", ErrInvalidWAV, format)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 16 {
		return nil, Format{}, fmt.Errorf("%w: %d bits per sample", ErrInvalidWAV, bits)
	}

	f := Format{
		Channels:   int(binary.LittleEndian.Uint16(data[22:24])),
		SampleRate: int(binary.LittleEndian.Uint32(data[24:28])),
	}
	size := int(binary.LittleEndian.Uint32(data[40:44]))
	if size > len(data)-wavHeaderSize {
		size = len(data) - wavHeaderSize
	}

	samples := make([]int16, size/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[wavHeaderSize+i*2:]))
	}
	return samples, f, nil
}

// WAVDuration returns the playback length of a WAV container.
func WAVDuration(data []byte) (time.Duration, error) {
	samples, f, err := DecodeWAV(data)
	if err != nil {
		return 0, err
	}
	if f.SampleRate == 0 || f.Channels == 0 {
		return 0, fmt.Errorf("%w: zero sample rate or channels", ErrInvalidWAV)
	}
	frames := len(samples) / f.Channels
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate), nil
}
