package audio

import (
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/windrose/skylane/server/internal/audio/pcm"
)

// chanSource feeds frames from a channel, ending with io.EOF once closed.
type chanSource struct {
	frames chan []float32
	mu     sync.Mutex
	closes int
}

func newChanSource() *chanSource {
	return &chanSource{frames: make(chan []float32)}
}

func (s *chanSource) ReadFrame(buf []float32) (int, error) {
	frame, ok := <-s.frames
	if !ok {
		return 0, io.EOF
	}
	return copy(buf, frame), nil
}

func (s *chanSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.closes == 1 {
		close(s.frames)
	}
	return nil
}

func (s *chanSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// markerFrame builds a small frame whose first sample identifies it.
func markerFrame(id int) []float32 {
	frame := make([]float32, 4)
	frame[0] = float32(id) / 100
	return frame
}

// frameID recovers the marker from an encoded frame.
func frameID(encoded []byte) int {
	samples := pcm.Decode(encoded)
	return int(math.Round(float64(samples[0]) * 100))
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestCaptureEncodesFrames(t *testing.T) {
	source := newChanSource()

	var mu sync.Mutex
	var received [][]byte
	sink := func(frame []byte) {
		mu.Lock()
		received = append(received, frame)
		mu.Unlock()
	}

	capture := StartCapture(source, sink, zap.NewNop())
	defer capture.Stop()

	full := make([]float32, CaptureFrameSamples)
	for i := range full {
		full[i] = 0.5
	}
	source.frames <- full
	source.frames <- []float32{0.25, -0.25, 0.25}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, "two frames")

	mu.Lock()
	defer mu.Unlock()

	if len(received[0]) != CaptureFrameSamples*2 {
		t.Errorf("Expected %d bytes, got %d", CaptureFrameSamples*2, len(received[0]))
	}
	decoded := pcm.Decode(received[0])
	if math.Abs(float64(decoded[0])-0.5) > 1.0/32767 {
		t.Errorf("Expected first sample near 0.5, got %f", decoded[0])
	}

	// Partial frames are forwarded without padding.
	if len(received[1]) != 6 {
		t.Errorf("Expected 6 bytes for 3-sample frame, got %d", len(received[1]))
	}
}

func TestCaptureDropsOldestUnderBackpressure(t *testing.T) {
	source := newChanSource()

	gate := make(chan struct{})
	firstIn := make(chan struct{})
	var once sync.Once

	var mu sync.Mutex
	var received []int
	sink := func(frame []byte) {
		once.Do(func() { close(firstIn) })
		<-gate
		mu.Lock()
		received = append(received, frameID(frame))
		mu.Unlock()
	}

	capture := StartCapture(source, sink, zap.NewNop())

	// Frame 1 reaches the sink and parks there, leaving the queue empty.
	source.frames <- markerFrame(1)
	<-firstIn

	// Frames 2..17 fill the queue; 18..20 must each evict the oldest.
	for id := 2; id <= 20; id++ {
		source.frames <- markerFrame(id)
	}

	waitFor(t, func() bool { return capture.Dropped() == 3 }, "three dropped frames")

	close(gate)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 17
	}, "seventeen delivered frames")

	capture.Stop()

	mu.Lock()
	defer mu.Unlock()

	want := []int{1, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}
	for i, id := range want {
		if received[i] != id {
			t.Fatalf("Expected frame %d at position %d, got %d", id, i, received[i])
		}
	}
}

func TestCaptureStopIsIdempotent(t *testing.T) {
	source := newChanSource()
	capture := StartCapture(source, func([]byte) {}, zap.NewNop())

	capture.Stop()
	capture.Stop()

	if source.closeCount() != 1 {
		t.Errorf("Expected source closed once, got %d", source.closeCount())
	}
}

func TestCaptureStopWhileReading(t *testing.T) {
	source := newChanSource()
	capture := StartCapture(source, func([]byte) {}, zap.NewNop())

	// Stop while the reader is blocked waiting for a frame.
	done := make(chan struct{})
	go func() {
		capture.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not release a blocked reader")
	}
}
