// Package audio owns the device context, the microphone capture pipeline,
// and the gapless playback scheduler around a live voice session.
package audio

import (
	"context"
	"errors"
)

// DeviceState tracks the lifecycle of an audio device context.
type DeviceState int

const (
	DeviceSuspended DeviceState = iota
	DeviceRunning
	DeviceClosed
)

func (s DeviceState) String() string {
	switch s {
	case DeviceSuspended:
		return "suspended"
	case DeviceRunning:
		return "running"
	case DeviceClosed:
		return "closed"
	}
	return "unknown"
}

// Microphone acquisition failures.
var (
	ErrPermissionDenied  = errors.New("audio: microphone permission denied")
	ErrDeviceUnavailable = errors.New("audio: no microphone device available")
)

// Source is a live microphone track. ReadFrame fills buf with normalized
// samples and returns how many were written; it returns an error once the
// track ends or is closed.
type Source interface {
	ReadFrame(buf []float32) (int, error)
	Close() error
}

// Sink receives playback audio at its scheduled start time. Play must not
// block.
type Sink interface {
	Play(samples []float32)
}

// Device is an exclusively owned audio device context: one per live
// session, created on connect and closed unconditionally on disconnect.
type Device interface {
	// Microphone acquires the capture track. Acquisition fails with
	// ErrPermissionDenied or ErrDeviceUnavailable.
	Microphone() (Source, error)

	// Speaker returns the playback destination.
	Speaker() Sink

	// State reports the current lifecycle state.
	State() DeviceState

	// Resume moves a suspended device into the running state. Scheduling
	// playback requires a running device.
	Resume(ctx context.Context) error

	// Close releases the underlying hardware. Idempotent.
	Close() error
}
