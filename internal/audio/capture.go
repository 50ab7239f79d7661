package audio

import (
	"sync"

	"go.uber.org/zap"

	"github.com/windrose/skylane/server/internal/audio/pcm"
)

const (
	// CaptureFrameSamples is the fixed frame size read from the
	// microphone track, 256ms of audio at 16 kHz.
	CaptureFrameSamples = 4096

	// captureQueueDepth bounds frames waiting on a slow sink. The oldest
	// frame is dropped on overflow.
	captureQueueDepth = 16
)

// Capture chunks a microphone source into fixed-size frames, encodes each
// one, and forwards it to a sink without ever blocking real-time reads.
// Frame loss under backpressure is accepted.
type Capture struct {
	source Source
	sink   func([]byte)
	logger *zap.Logger

	queue chan []byte
	done  chan struct{}
	stop  sync.Once
	wg    sync.WaitGroup

	mu      sync.Mutex
	dropped int
}

// StartCapture attaches the frame processor to source and begins
// forwarding encoded frames. The sink must not block; it runs on the
// capture's sender goroutine.
func StartCapture(source Source, sink func([]byte), logger *zap.Logger) *Capture {
	c := &Capture{
		source: source,
		sink:   sink,
		logger: logger,
		queue:  make(chan []byte, captureQueueDepth),
		done:   make(chan struct{}),
	}
	c.wg.Add(2)
	go c.readLoop()
	go c.sendLoop()
	return c
}

func (c *Capture) readLoop() {
	defer c.wg.Done()
	buf := make([]float32, CaptureFrameSamples)
	for {
		select {
		case <-c.done:
			return
		default:
		}

		n, err := c.source.ReadFrame(buf)
		if n > 0 {
			c.push(pcm.Encode(buf[:n]))
		}
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Debug("Microphone track ended", zap.Error(err))
			}
			return
		}
	}
}

func (c *Capture) sendLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.queue:
			c.sink(frame)
		}
	}
}

// push enqueues a frame, evicting the oldest one when the sink lags.
func (c *Capture) push(frame []byte) {
	for {
		select {
		case c.queue <- frame:
			return
		default:
		}

		select {
		case <-c.queue:
			c.mu.Lock()
			c.dropped++
			dropped := c.dropped
			c.mu.Unlock()
			c.logger.Debug("Dropped oldest capture frame", zap.Int("totalDropped", dropped))
		default:
		}
	}
}

// Dropped reports how many frames were lost to backpressure.
func (c *Capture) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Stop detaches the frame processor and releases the microphone track.
// Calling Stop more than once is a no-op.
func (c *Capture) Stop() {
	c.stop.Do(func() {
		close(c.done)
		if err := c.source.Close(); err != nil {
			c.logger.Warn("Failed to close microphone track", zap.Error(err))
		}
		c.wg.Wait()
	})
}
