package session

import (
	"fmt"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/petems/musiksnip/internal/audio"
)

// flushThreshold is the number of buffered samples after which the spool
// writes through to disk. At 44.1kHz stereo this is roughly three seconds of
// audio, so memory stays flat no matter how long the recording runs.
const flushThreshold = 256 * 1024

// spool is the session buffer: captured blocks accumulate in memory and are
// flushed incrementally to a 16-bit PCM WAV file. Scoped to exactly one
// recording.
type spool struct {
	path    string
	file    *os.File
	enc     *wav.Encoder
	format  *goaudio.Format
	pending []int
	samples uint64 // total samples appended, interleaved
}

func newSpool(path string, spec audio.StreamSpec) (*spool, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create raw file: %w", err)
	}
	return &spool{
		path:    path,
		file:    f,
		enc:     wav.NewEncoder(f, spec.SampleRate, 16, spec.Channels, 1),
		format:  &goaudio.Format{NumChannels: spec.Channels, SampleRate: spec.SampleRate},
		pending: make([]int, 0, flushThreshold),
	}, nil
}

func (sp *spool) append(b audio.Block) error {
	sp.pending = append(sp.pending, b.PCM16()...)
	sp.samples += uint64(len(b))
	if len(sp.pending) >= flushThreshold {
		return sp.flush()
	}
	return nil
}

func (sp *spool) flush() error {
	if len(sp.pending) == 0 {
		return nil
	}
	buf := &goaudio.IntBuffer{
		Format:         sp.format,
		Data:           sp.pending,
		SourceBitDepth: 16,
	}
	if err := sp.enc.Write(buf); err != nil {
		return fmt.Errorf("flush raw samples: %w", err)
	}
	sp.pending = sp.pending[:0]
	return nil
}

// close performs the final flush and finishes the WAV file. The file is
// retained on disk; deleting it is the caller's decision.
func (sp *spool) close() error {
	if err := sp.flush(); err != nil {
		sp.enc.Close()
		sp.file.Close()
		return err
	}
	if err := sp.enc.Close(); err != nil {
		sp.file.Close()
		return fmt.Errorf("finish raw file: %w", err)
	}
	if err := sp.file.Close(); err != nil {
		return fmt.Errorf("close raw file: %w", err)
	}
	return nil
}

// discard abandons the spool and removes the raw file, for sessions that
// fail before any audio is worth keeping.
func (sp *spool) discard() {
	sp.enc.Close()
	sp.file.Close()
	os.Remove(sp.path)
}

// duration reports the captured audio length based on appended samples.
func (sp *spool) duration() time.Duration {
	frames := sp.samples / uint64(sp.format.NumChannels)
	return time.Duration(frames) * time.Second / time.Duration(sp.format.SampleRate)
}
