package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petems/musiksnip/internal/audio"
	"github.com/petems/musiksnip/internal/encode"
)

// State is the recording session's lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StateStopping
	StateFinalizing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateFinalizing:
		return "finalizing"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	defaultTick  = 200 * time.Millisecond
	defaultQueue = 8

	rawPrefix    = "temp_"
	outPrefix    = "aufnahme_"
	timestampFmt = "2006-01-02_15-04-05"
)

// Encoder converts a finished raw recording into its final compressed form.
type Encoder interface {
	Encode(req encode.Request) (string, error)
}

// Options configure a single recording.
type Options struct {
	DeviceID string        // empty = system default
	Dir      string        // destination folder, created if absent
	Timer    time.Duration // auto-stop after this much recorded time; 0 = unlimited
	Preset   encode.Preset
}

// Result is the outcome of a finished recording: either a saved file or an
// error describing why the session failed.
type Result struct {
	Path     string
	Duration time.Duration
	Size     int64
	Err      *Error
}

// Status is a point-in-time snapshot for the UI to poll.
type Status struct {
	ID              string
	State           State
	Elapsed         time.Duration // accumulated recording time, pauses excluded
	Remaining       time.Duration // time left until the deadline, 0 if no timer
	Level           float64
	Samples         uint64
	DroppedOverflow uint64
	DroppedPaused   uint64
	Result          *Result
}

// Deps are the session's collaborators.
type Deps struct {
	Source  audio.Source
	Encoder Encoder
	Logger  zerolog.Logger
	Spec    audio.StreamSpec // zero value selects audio.DefaultSpec
	Tick    time.Duration    // deadline check interval, defaults to 200ms
	Queue   int              // capture queue depth, defaults to 8 blocks
}

// Session coordinates one recording at a time: it owns the audio source and
// the disk spool, and walks Idle -> Recording <-> Paused -> Stopping ->
// Finalizing -> Idle, or to the terminal Failed state. A single lock guards
// the state and the spool so a pause or stop cannot race an in-flight
// append from the capture side.
type Session struct {
	src   audio.Source
	enc   Encoder
	log   zerolog.Logger
	spec  audio.StreamSpec
	tick  time.Duration
	queue int
	meter *audio.Meter

	mu            sync.Mutex
	state         State
	id            string
	opts          Options
	rawPath       string
	destPath      string
	segmentStart  time.Time
	recorded      time.Duration // completed recording segments, pauses excluded
	sp            *spool
	level         float64
	droppedPaused uint64
	result        *Result
	cancel        context.CancelFunc
	done          chan struct{}
}

func New(d Deps) *Session {
	if d.Spec == (audio.StreamSpec{}) {
		d.Spec = audio.DefaultSpec()
	}
	if d.Tick <= 0 {
		d.Tick = defaultTick
	}
	if d.Queue <= 0 {
		d.Queue = defaultQueue
	}
	return &Session{
		src:   d.Source,
		enc:   d.Encoder,
		log:   d.Logger,
		spec:  d.Spec,
		tick:  d.Tick,
		queue: d.Queue,
		meter: audio.NewMeter(),
		state: StateIdle,
	}
}

// Start begins a new recording. Valid only when no recording is active
// (Idle, or the terminal Failed state of the previous recording). The
// destination folder is created if absent and the raw spool file is named
// from the start timestamp.
func (s *Session) Start(opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle && s.state != StateFailed {
		return s.invalidLocked("start")
	}

	if _, err := opts.Preset.Bitrate(); err != nil {
		return &Error{Kind: KindInvalidConfiguration, Op: "start", State: s.state, When: time.Now(), Err: err}
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return &Error{Kind: KindFilesystemError, Op: "start", State: s.state, Path: opts.Dir, When: time.Now(), Err: err}
	}

	start := time.Now()
	stamp := start.Format(timestampFmt)
	rawPath := filepath.Join(opts.Dir, rawPrefix+stamp+".wav")
	destPath := filepath.Join(opts.Dir, outPrefix+stamp+".mp3")

	sp, err := newSpool(rawPath, s.spec)
	if err != nil {
		return &Error{Kind: KindFilesystemError, Op: "start", State: s.state, Path: rawPath, When: time.Now(), Err: err}
	}

	blocks := make(chan audio.Block, s.queue)
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.src.Start(ctx, opts.DeviceID, s.spec, blocks); err != nil {
		cancel()
		sp.discard()
		return &Error{Kind: KindDeviceUnavailable, Op: "start", State: s.state, When: time.Now(), Err: err}
	}

	s.state = StateRecording
	s.id = uuid.NewString()
	s.opts = opts
	s.rawPath = rawPath
	s.destPath = destPath
	s.segmentStart = start
	s.recorded = 0
	s.sp = sp
	s.meter.Reset()
	s.level = 0
	s.droppedPaused = 0
	s.result = nil
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.drain(blocks, s.done)
	if opts.Timer > 0 {
		go s.watchDeadline(ctx)
	}

	s.log.Info().
		Str("id", s.id).
		Str("device", opts.DeviceID).
		Str("dest", destPath).
		Dur("timer", opts.Timer).
		Msg("Recording started")
	return nil
}

// Pause suspends sample accumulation. Blocks still delivered by the source
// are discarded and counted, not treated as errors.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording {
		return s.invalidLocked("pause")
	}
	s.recorded += time.Since(s.segmentStart)
	s.state = StatePaused
	s.level = 0
	s.log.Info().Str("id", s.id).Dur("elapsed", s.recorded).Msg("Recording paused")
	return nil
}

// Resume continues a paused recording. The deadline counts recorded time
// only, so time spent paused never eats into the timer.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePaused {
		return s.invalidLocked("resume")
	}
	s.segmentStart = time.Now()
	s.state = StateRecording
	s.log.Info().Str("id", s.id).Msg("Recording resumed")
	return nil
}

// Stop halts capture, flushes the spool to the raw file and encodes it to
// the destination. It blocks until encoding finishes. Calling Stop while a
// stop is already underway is a no-op, so a manual stop racing the timer
// trigger is harmless.
func (s *Session) Stop() error {
	s.mu.Lock()
	switch s.state {
	case StateRecording:
		s.recorded += time.Since(s.segmentStart)
	case StatePaused:
	case StateStopping, StateFinalizing:
		s.mu.Unlock()
		return nil
	default:
		err := s.invalidLocked("stop")
		s.mu.Unlock()
		return err
	}
	s.state = StateStopping
	s.level = 0
	cancel := s.cancel
	done := s.done
	id := s.id
	s.mu.Unlock()

	s.log.Info().Str("id", id).Msg("Recording stopping")

	cancel()
	if err := s.src.Stop(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to stop audio stream")
	}
	<-done // wait out any in-flight append

	return s.finalize()
}

// Status returns a snapshot for display. Elapsed counts recording time only;
// remaining is floored at zero.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		ID:              s.id,
		State:           s.state,
		Elapsed:         s.elapsedLocked(),
		Level:           s.level,
		DroppedOverflow: s.src.Dropped(),
		DroppedPaused:   s.droppedPaused,
		Result:          s.result,
	}
	if s.sp != nil {
		st.Samples = s.sp.samples
	}
	if s.opts.Timer > 0 && (s.state == StateRecording || s.state == StatePaused) {
		if rem := s.opts.Timer - st.Elapsed; rem > 0 {
			st.Remaining = rem
		}
	}
	return st
}

// Active reports whether a recording is underway in any form.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateIdle && s.state != StateFailed
}

// ListDevices passes through to the audio source.
func (s *Session) ListDevices() ([]audio.Device, error) {
	return s.src.ListDevices()
}

// drain is the consumer side of the capture channel. State is checked under
// the session lock before every append: anything delivered while not
// Recording is discarded.
func (s *Session) drain(blocks <-chan audio.Block, done chan struct{}) {
	defer close(done)
	for b := range blocks {
		s.mu.Lock()
		switch s.state {
		case StateRecording:
			if err := s.sp.append(b); err != nil {
				s.failLocked(KindFilesystemError, "append", s.rawPath, err)
			} else {
				s.level = s.meter.Level(b)
			}
		case StatePaused:
			s.droppedPaused++
		default:
			// Stopping or later: discard.
		}
		s.mu.Unlock()
	}

	// The source closed the stream. If a recording was still underway, the
	// device went away mid-capture.
	s.mu.Lock()
	if s.state == StateRecording || s.state == StatePaused {
		if s.state == StateRecording {
			s.recorded += time.Since(s.segmentStart)
		}
		s.failLocked(KindCaptureInterrupted, "capture", s.rawPath,
			errors.New("audio stream ended unexpectedly"))
	}
	s.mu.Unlock()
}

// watchDeadline fires the same path as Stop once the recorded time reaches
// the timer, checking on a periodic tick independent of any UI.
func (s *Session) watchDeadline(ctx context.Context) {
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.mu.Lock()
			expired := s.state == StateRecording && s.elapsedLocked() >= s.opts.Timer
			id := s.id
			timer := s.opts.Timer
			s.mu.Unlock()
			if !expired {
				continue
			}
			s.log.Info().Str("id", id).Dur("timer", timer).Msg("Timer expired")
			if err := s.Stop(); err != nil {
				s.log.Error().Err(err).Str("id", id).Msg("Auto-stop failed")
			}
			return
		}
	}
}

// finalize flushes the spool, runs the encoder exactly once and settles the
// session result. The raw file is removed only after the encoder succeeds;
// on failure it is retained so no audio is lost.
func (s *Session) finalize() error {
	s.mu.Lock()
	s.state = StateFinalizing
	sp := s.sp
	s.sp = nil
	id := s.id
	rawPath, destPath := s.rawPath, s.destPath
	preset := s.opts.Preset
	duration := s.recorded
	s.mu.Unlock()

	if err := sp.close(); err != nil {
		return s.fail(KindFilesystemError, "finalize", rawPath, err)
	}

	s.log.Info().
		Str("id", id).
		Dur("duration", duration).
		Uint64("captured_samples", sp.samples).
		Uint64("dropped_overflow", s.src.Dropped()).
		Msg("Recording flushed")

	out, err := s.enc.Encode(encode.Request{RawPath: rawPath, DestPath: destPath, Preset: preset})
	if err != nil {
		kind := KindEncodeFailure
		if errors.Is(err, encode.ErrInvalidPreset) {
			kind = KindInvalidConfiguration
		}
		return s.fail(kind, "encode", rawPath, err)
	}

	if err := os.Remove(rawPath); err != nil {
		s.log.Warn().Err(err).Str("raw", rawPath).Msg("Failed to remove raw file")
	}

	var size int64
	if fi, err := os.Stat(out); err == nil {
		size = fi.Size()
	}

	s.mu.Lock()
	s.state = StateIdle
	s.result = &Result{Path: out, Duration: duration, Size: size}
	s.mu.Unlock()

	s.log.Info().
		Str("id", id).
		Str("path", out).
		Int64("size_bytes", size).
		Dur("duration", duration).
		Msg("Recording saved")
	return nil
}

func (s *Session) fail(kind Kind, op, path string, err error) error {
	s.mu.Lock()
	e := s.failLocked(kind, op, path, err)
	s.mu.Unlock()
	return e
}

// failLocked moves the session to the terminal Failed state, closing the
// spool (the raw file is retained) and recording the error as the result.
func (s *Session) failLocked(kind Kind, op, path string, err error) *Error {
	e := &Error{Kind: kind, Op: op, State: s.state, Path: path, When: time.Now(), Err: err}
	if s.sp != nil {
		if cerr := s.sp.close(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("Failed to close raw file")
		}
		s.sp = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.state = StateFailed
	s.level = 0
	s.result = &Result{Duration: s.recorded, Err: e}
	s.log.Error().
		Str("id", s.id).
		Str("kind", string(kind)).
		Str("op", op).
		Err(err).
		Msg("Session failed")
	return e
}

// elapsedLocked is the accumulated recording time, live segment included.
func (s *Session) elapsedLocked() time.Duration {
	if s.state == StateRecording {
		return s.recorded + time.Since(s.segmentStart)
	}
	return s.recorded
}

func (s *Session) invalidLocked(op string) *Error {
	return &Error{
		Kind:    KindInvalidStateTransition,
		Op:      op,
		State:   s.state,
		Message: fmt.Sprintf("cannot %s while %s", op, s.state),
		When:    time.Now(),
	}
}
