package encode

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
	lame "github.com/viert/go-lame"
)

// lameQuality is the LAME algorithm quality knob (0 = best, 9 = worst).
const lameQuality = 2

// chunkSamples bounds memory while converting long recordings: the raw file
// is fed to LAME this many samples at a time.
const chunkSamples = 32 * 1024

// Request describes one raw-to-MP3 conversion. Consumed once.
type Request struct {
	RawPath  string
	DestPath string
	Preset   Preset
}

// FailureError reports a failed conversion. The partially written
// destination has already been removed; the raw file is left untouched.
type FailureError struct {
	Reason string
	Err    error
}

func (e *FailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encode failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("encode failed: %s", e.Reason)
}

func (e *FailureError) Unwrap() error { return e.Err }

// MP3 converts raw WAV recordings to MP3 via LAME.
type MP3 struct {
	log zerolog.Logger
}

func NewMP3(log zerolog.Logger) *MP3 {
	return &MP3{log: log}
}

// Encode converts req.RawPath to an MP3 at req.DestPath and returns the
// destination path. The preset is validated before any I/O. On failure the
// partial destination is deleted and a FailureError is returned; the raw
// file is never deleted here.
func (m *MP3) Encode(req Request) (string, error) {
	bitrate, err := req.Preset.Bitrate()
	if err != nil {
		return "", err
	}

	raw, err := os.Open(req.RawPath)
	if err != nil {
		return "", &FailureError{Reason: "open raw file", Err: err}
	}
	defer raw.Close()

	dec := wav.NewDecoder(raw)
	if !dec.IsValidFile() {
		return "", &FailureError{Reason: fmt.Sprintf("%s is not a valid WAV file", req.RawPath)}
	}
	if dec.BitDepth != 16 {
		return "", &FailureError{Reason: fmt.Sprintf("unsupported raw bit depth %d", dec.BitDepth)}
	}

	dest, err := os.Create(req.DestPath)
	if err != nil {
		return "", &FailureError{Reason: "create destination", Err: err}
	}

	m.log.Info().
		Str("raw", req.RawPath).
		Str("dest", req.DestPath).
		Int("bitrate_kbps", bitrate).
		Msg("Encoding to MP3")

	if err := m.convert(dec, dest, bitrate); err != nil {
		dest.Close()
		if rmErr := os.Remove(req.DestPath); rmErr != nil {
			m.log.Warn().Err(rmErr).Str("dest", req.DestPath).Msg("Failed to remove partial MP3")
		}
		return "", &FailureError{Reason: "conversion", Err: err}
	}

	if err := dest.Close(); err != nil {
		os.Remove(req.DestPath)
		return "", &FailureError{Reason: "close destination", Err: err}
	}

	return req.DestPath, nil
}

func (m *MP3) convert(dec *wav.Decoder, dest *os.File, bitrate int) error {
	enc := lame.NewEncoder(dest)
	defer enc.Close()

	if err := enc.SetNumChannels(int(dec.NumChans)); err != nil {
		return fmt.Errorf("set channels: %w", err)
	}
	if err := enc.SetInSamplerate(int(dec.SampleRate)); err != nil {
		return fmt.Errorf("set sample rate: %w", err)
	}
	if err := enc.SetBrate(bitrate); err != nil {
		return fmt.Errorf("set bitrate: %w", err)
	}
	if err := enc.SetQuality(lameQuality); err != nil {
		return fmt.Errorf("set quality: %w", err)
	}

	buf := &goaudio.IntBuffer{
		Format:         dec.Format(),
		Data:           make([]int, chunkSamples),
		SourceBitDepth: 16,
	}
	pcm := make([]byte, 2*chunkSamples)

	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return fmt.Errorf("read raw PCM: %w", err)
		}
		if n == 0 {
			return nil
		}
		for i, s := range buf.Data[:n] {
			pcm[2*i] = byte(s)
			pcm[2*i+1] = byte(s >> 8)
		}
		if _, err := enc.Write(pcm[:2*n]); err != nil {
			return fmt.Errorf("write MP3 frames: %w", err)
		}
	}
}
