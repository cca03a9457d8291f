package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/petems/musiksnip/internal/audio"
	"github.com/petems/musiksnip/internal/encode"
)

// Mock implementations for testing

type fakeSource struct {
	mu       sync.Mutex
	startErr error
	out      chan<- audio.Block
	dropped  uint64
}

func (f *fakeSource) Start(ctx context.Context, deviceID string, spec audio.StreamSpec, out chan<- audio.Block) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.out = out
	f.mu.Unlock()
	go func() {
		<-ctx.Done()
		f.interrupt()
	}()
	return nil
}

// push delivers one block the way the capture loop would, dropping when the
// queue is full.
func (f *fakeSource) push(b audio.Block) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.out == nil {
		return
	}
	select {
	case f.out <- b:
	default:
		f.dropped++
	}
}

// interrupt ends the stream, as a vanished device would.
func (f *fakeSource) interrupt() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.out != nil {
		close(f.out)
		f.out = nil
	}
}

func (f *fakeSource) Stop() error { return nil }

func (f *fakeSource) Dropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

func (f *fakeSource) ListDevices() ([]audio.Device, error) {
	return []audio.Device{{ID: "default", Name: "Default", Default: true}}, nil
}

func (f *fakeSource) Close() error { return nil }

type fakeEncoder struct {
	mu    sync.Mutex
	err   error
	delay time.Duration
	calls int
	last  encode.Request
}

func (f *fakeEncoder) Encode(req encode.Request) (string, error) {
	f.mu.Lock()
	f.calls++
	f.last = req
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	if err := os.WriteFile(req.DestPath, []byte("mp3"), 0644); err != nil {
		return "", err
	}
	return req.DestPath, nil
}

func (f *fakeEncoder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

const testBlockSize = 4 // frames per block; 8 samples at 2 channels

func newTestSession(src audio.Source, enc Encoder) *Session {
	return New(Deps{
		Source:  src,
		Encoder: enc,
		Logger:  zerolog.Nop(),
		Spec:    audio.StreamSpec{SampleRate: 44100, Channels: 2, BlockSize: testBlockSize},
		Tick:    20 * time.Millisecond,
		Queue:   64,
	})
}

func testBlock(v float32) audio.Block {
	b := make(audio.Block, testBlockSize*2)
	for i := range b {
		b[i] = v
	}
	return b
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func findRaw(t *testing.T, dir string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, rawPrefix+"*.wav"))
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly one raw file, found %d", len(matches))
	}
	return matches[0]
}

func rawSampleCount(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open raw file: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("failed to decode raw file: %v", err)
	}
	return len(buf.Data)
}

func TestStartStopSavesRecording(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	enc := &fakeEncoder{}
	s := newTestSession(src, enc)

	if err := s.Start(Options{Dir: dir, Preset: encode.PresetMedium}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := s.Status().State; got != StateRecording {
		t.Fatalf("state after start = %v, want recording", got)
	}

	for i := 0; i < 5; i++ {
		src.push(testBlock(0.5))
	}
	waitFor(t, time.Second, "blocks appended", func() bool {
		return s.Status().Samples == 5*testBlockSize*2
	})

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	st := s.Status()
	if st.State != StateIdle {
		t.Errorf("state after stop = %v, want idle", st.State)
	}
	if st.Result == nil {
		t.Fatal("expected a result after stop")
	}
	if st.Result.Err != nil {
		t.Fatalf("unexpected result error: %v", st.Result.Err)
	}
	if _, err := os.Stat(st.Result.Path); err != nil {
		t.Errorf("destination file missing: %v", err)
	}
	if st.Result.Size == 0 {
		t.Error("expected a nonzero destination size")
	}

	// Raw intermediate deleted after successful encoding
	matches, _ := filepath.Glob(filepath.Join(dir, rawPrefix+"*.wav"))
	if len(matches) != 0 {
		t.Errorf("raw file should be deleted after encoding, found %v", matches)
	}

	if enc.callCount() != 1 {
		t.Errorf("encoder called %d times, want 1", enc.callCount())
	}
	if enc.last.Preset != encode.PresetMedium {
		t.Errorf("encoder preset = %q, want medium", enc.last.Preset)
	}
}

func TestPauseExcludesSamples(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	enc := &fakeEncoder{err: errors.New("boom")} // fail encoding so the raw file survives
	s := newTestSession(src, enc)

	if err := s.Start(Options{Dir: dir, Preset: encode.PresetLow}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		src.push(testBlock(0.1))
	}
	waitFor(t, time.Second, "pre-pause blocks appended", func() bool {
		return s.Status().Samples == 3*testBlockSize*2
	})

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	// Blocks delivered while paused are discarded and counted
	src.push(testBlock(0.9))
	src.push(testBlock(0.9))
	waitFor(t, time.Second, "paused blocks counted", func() bool {
		return s.Status().DroppedPaused == 2
	})
	if got := s.Status().Samples; got != 3*testBlockSize*2 {
		t.Errorf("samples grew while paused: %d", got)
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		src.push(testBlock(0.2))
	}
	waitFor(t, time.Second, "post-resume blocks appended", func() bool {
		return s.Status().Samples == 5*testBlockSize*2
	})

	err := s.Stop()
	if ErrKind(err) != KindEncodeFailure {
		t.Fatalf("Stop error kind = %q, want encode_failure", ErrKind(err))
	}

	st := s.Status()
	if st.State != StateFailed {
		t.Errorf("state = %v, want failed", st.State)
	}
	if st.Result == nil || st.Result.Err == nil || st.Result.Err.Kind != KindEncodeFailure {
		t.Errorf("result should carry the encode failure, got %+v", st.Result)
	}

	// Raw retained on encode failure, holding exactly the recorded samples
	raw := findRaw(t, dir)
	if got := rawSampleCount(t, raw); got != 5*testBlockSize*2 {
		t.Errorf("raw file has %d samples, want %d", got, 5*testBlockSize*2)
	}
}

func TestInvalidTransitions(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	s := newTestSession(src, &fakeEncoder{})

	if got := ErrKind(s.Pause()); got != KindInvalidStateTransition {
		t.Errorf("Pause while idle: kind = %q, want invalid_state_transition", got)
	}
	if got := ErrKind(s.Resume()); got != KindInvalidStateTransition {
		t.Errorf("Resume while idle: kind = %q, want invalid_state_transition", got)
	}
	if got := ErrKind(s.Stop()); got != KindInvalidStateTransition {
		t.Errorf("Stop while idle: kind = %q, want invalid_state_transition", got)
	}
	if got := s.Status().State; got != StateIdle {
		t.Fatalf("failed calls must not change state, got %v", got)
	}

	if err := s.Start(Options{Dir: dir, Preset: encode.PresetHigh}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := ErrKind(s.Resume()); got != KindInvalidStateTransition {
		t.Errorf("Resume while recording: kind = %q, want invalid_state_transition", got)
	}
	if got := ErrKind(s.Start(Options{Dir: dir, Preset: encode.PresetHigh})); got != KindInvalidStateTransition {
		t.Errorf("Start while recording: kind = %q, want invalid_state_transition", got)
	}
	if got := s.Status().State; got != StateRecording {
		t.Errorf("active session disturbed by rejected start, state = %v", got)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestStartRejectsInvalidPreset(t *testing.T) {
	s := newTestSession(&fakeSource{}, &fakeEncoder{})
	err := s.Start(Options{Dir: t.TempDir(), Preset: encode.Preset("bogus")})
	if got := ErrKind(err); got != KindInvalidConfiguration {
		t.Fatalf("kind = %q, want invalid_configuration", got)
	}
	if got := s.Status().State; got != StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestTimerAutoStops(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	s := newTestSession(src, &fakeEncoder{})

	start := time.Now()
	if err := s.Start(Options{Dir: dir, Timer: 150 * time.Millisecond, Preset: encode.PresetMedium}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, 2*time.Second, "timer auto-stop", func() bool {
		st := s.Status()
		return st.State == StateIdle && st.Result != nil
	})

	wall := time.Since(start)
	if wall < 150*time.Millisecond {
		t.Errorf("session finished after %v, before the 150ms timer", wall)
	}

	st := s.Status()
	if st.Result.Err != nil {
		t.Fatalf("unexpected result error: %v", st.Result.Err)
	}
	if st.Result.Duration < 150*time.Millisecond || st.Result.Duration > 500*time.Millisecond {
		t.Errorf("recorded duration = %v, want roughly 150ms", st.Result.Duration)
	}
}

func TestTimerExcludesPausedTime(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	s := newTestSession(src, &fakeEncoder{})

	if err := s.Start(Options{Dir: dir, Timer: 200 * time.Millisecond, Preset: encode.PresetMedium}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	// Paused well past the timer in wall-clock terms: must not fire
	time.Sleep(300 * time.Millisecond)
	if got := s.Status().State; got != StatePaused {
		t.Fatalf("timer fired during pause, state = %v", got)
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	waitFor(t, 2*time.Second, "timer auto-stop after resume", func() bool {
		return s.Status().State == StateIdle
	})

	st := s.Status()
	if st.Result == nil || st.Result.Err != nil {
		t.Fatalf("expected a clean result, got %+v", st.Result)
	}
	if st.Result.Duration < 200*time.Millisecond || st.Result.Duration > 500*time.Millisecond {
		t.Errorf("recorded duration = %v, want roughly 200ms of recording time", st.Result.Duration)
	}
}

func TestDeviceUnavailable(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{startErr: errors.New("device is gone")}
	s := newTestSession(src, &fakeEncoder{})

	err := s.Start(Options{Dir: dir, Preset: encode.PresetMedium})
	if got := ErrKind(err); got != KindDeviceUnavailable {
		t.Fatalf("kind = %q, want device_unavailable", got)
	}
	if got := s.Status().State; got != StateIdle {
		t.Errorf("state = %v, want idle", got)
	}

	// No raw file left behind
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("destination folder should be empty, found %d entries", len(entries))
	}
}

func TestCaptureInterruptedFailsSession(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	s := newTestSession(src, &fakeEncoder{})

	if err := s.Start(Options{Dir: dir, Preset: encode.PresetMedium}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	src.push(testBlock(0.3))
	src.push(testBlock(0.3))
	waitFor(t, time.Second, "blocks appended", func() bool {
		return s.Status().Samples == 2*testBlockSize*2
	})

	src.interrupt()

	waitFor(t, time.Second, "session failure", func() bool {
		return s.Status().State == StateFailed
	})
	st := s.Status()
	if st.Result == nil || st.Result.Err == nil || st.Result.Err.Kind != KindCaptureInterrupted {
		t.Fatalf("result should carry capture_interrupted, got %+v", st.Result)
	}

	// Captured audio kept on disk
	raw := findRaw(t, dir)
	if got := rawSampleCount(t, raw); got != 2*testBlockSize*2 {
		t.Errorf("raw file has %d samples, want %d", got, 2*testBlockSize*2)
	}

	// A new recording can start from the terminal failed state
	if err := s.Start(Options{Dir: t.TempDir(), Preset: encode.PresetMedium}); err != nil {
		t.Fatalf("Start after failure: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestSecondStopIsNoOpWhileFinalizing(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	enc := &fakeEncoder{delay: 150 * time.Millisecond}
	s := newTestSession(src, enc)

	if err := s.Start(Options{Dir: dir, Preset: encode.PresetMedium}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	firstDone := make(chan error, 1)
	go func() { firstDone <- s.Stop() }()

	waitFor(t, time.Second, "stop underway", func() bool {
		st := s.Status().State
		return st == StateStopping || st == StateFinalizing || st == StateIdle
	})

	// Racing trigger (manual stop vs. timer expiry): second call is a no-op
	if err := s.Stop(); err != nil && s.Status().State != StateIdle {
		t.Errorf("second Stop returned %v, want nil no-op", err)
	}

	if err := <-firstDone; err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}
	if enc.callCount() != 1 {
		t.Errorf("encoder called %d times, want exactly 1", enc.callCount())
	}
}
