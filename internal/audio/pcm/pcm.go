// Package pcm converts between normalized floating-point samples and the
// 16-bit little-endian wire format exchanged with the live model.
package pcm

import (
	"encoding/base64"
	"fmt"
	"time"
)

// Format identifies a PCM stream layout. Only mono 16-bit formats are in
// use: microphone uplink runs at 16 kHz, model playback at 24 kHz.
type Format int

const (
	L16Mono16K Format = iota + 1
	L16Mono24K
)

// SampleRate returns samples per second for the format.
func (f Format) SampleRate() int {
	switch f {
	case L16Mono16K:
		return 16000
	case L16Mono24K:
		return 24000
	}
	return 0
}

// Channels returns the channel count. All supported formats are mono.
func (f Format) Channels() int { return 1 }

// Depth returns bytes per sample.
func (f Format) Depth() int { return 2 }

// BytesRate returns bytes per second of audio in this format.
func (f Format) BytesRate() int { return f.SampleRate() * f.Channels() * f.Depth() }

// Samples returns the number of whole samples contained in n bytes.
func (f Format) Samples(n int) int { return n / f.Depth() }

// Duration returns the play time of n bytes of audio in this format.
func (f Format) Duration(n int) time.Duration {
	rate := f.BytesRate()
	if rate == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// Bytes returns how many bytes hold d of audio in this format, aligned to
// whole samples.
func (f Format) Bytes(d time.Duration) int {
	samples := int(d * time.Duration(f.SampleRate()) / time.Second)
	return samples * f.Channels() * f.Depth()
}

// MIME returns the media type string the live wire protocol expects.
func (f Format) MIME() string {
	return fmt.Sprintf("audio/pcm;rate=%d", f.SampleRate())
}

func (f Format) String() string {
	switch f {
	case L16Mono16K:
		return "L16/16000/1"
	case L16Mono24K:
		return "L16/24000/1"
	}
	return "unknown"
}

// Encode converts normalized samples to 16-bit little-endian PCM. Samples
// outside [-1, 1] are clamped before scaling.
func Encode(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// Decode converts 16-bit little-endian PCM back to normalized samples in
// [-1, 1]. An incomplete trailing byte is truncated.
func Decode(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
		f := float32(v) / 32767
		if f < -1 {
			f = -1
		}
		out[i] = f
	}
	return out
}

// DecodeBase64 decodes a standard base64 transport payload into raw bytes.
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("malformed base64 audio payload: %w", err)
	}
	return data, nil
}

// EncodeBase64 encodes raw PCM bytes for a base64 transport field.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Level reports a coarse loudness estimate for visualization: the mean
// absolute amplitude over every stride-th sample, clamped to [0, 1].
func Level(samples []float32, stride int) float64 {
	if len(samples) == 0 {
		return 0
	}
	if stride < 1 {
		stride = 1
	}
	var sum float64
	var n int
	for i := 0; i < len(samples); i += stride {
		s := float64(samples[i])
		if s < 0 {
			s = -s
		}
		sum += s
		n++
	}
	level := sum / float64(n)
	if level > 1 {
		level = 1
	}
	return level
}
