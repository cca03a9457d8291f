package audio

import "context"

// Block is one fixed-size chunk of interleaved float32 samples in [-1, 1].
// Blocks are immutable once delivered by a Source.
type Block []float32

// StreamSpec describes the capture format.
type StreamSpec struct {
	SampleRate int
	Channels   int
	BlockSize  int // frames per block
}

// DefaultSpec is the shipped capture format: 44.1kHz stereo, 1024-frame blocks.
func DefaultSpec() StreamSpec {
	return StreamSpec{SampleRate: 44100, Channels: 2, BlockSize: 1024}
}

// Source defines the interface for audio capture
type Source interface {
	// Start opens deviceID (empty = system default) and pushes blocks into
	// out until ctx is cancelled or the stream fails. The read loop closes
	// out when it exits, so an unexpected close signals an interrupted
	// capture to the consumer.
	Start(ctx context.Context, deviceID string, spec StreamSpec, out chan<- Block) error
	Stop() error
	// Dropped reports blocks discarded because out was full. Diagnostic
	// counter only, never fatal.
	Dropped() uint64
	ListDevices() ([]Device, error)
	Close() error
}

// Device represents an audio capture device
type Device struct {
	ID      string
	Name    string
	Default bool
}

// PCM16 converts the block to 16-bit PCM sample values, clamped to the
// representable range.
func (b Block) PCM16() []int {
	out := make([]int, len(b))
	for i, v := range b {
		s := int(v * 32767)
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		out[i] = s
	}
	return out
}
