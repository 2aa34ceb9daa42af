package audio

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MinRecordingDuration is the shortest recording we forward downstream.
// Anything shorter is discarded as an accidental tap on the mic button.
const MinRecordingDuration = 500 * time.Millisecond

var (
	// ErrPermissionDenied is returned when the client declined microphone
	// access or no audio input device exists.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")

	// ErrUnsupportedEnvironment is returned when the execution context lacks
	// audio capture capability.
	ErrUnsupportedEnvironment = errors.New("audio: capture not supported in this environment")

	// ErrTooShort is returned for recordings below MinRecordingDuration.
	ErrTooShort = errors.New("audio: recording too short")

	// ErrEmptyAudio is returned when a finished recording carries no data.
	ErrEmptyAudio = errors.New("audio: recording is empty")

	// ErrCaptureBusy is returned when a second capture is requested while one
	// is already holding the device.
	ErrCaptureBusy = errors.New("audio: capture already active")
)

// Mode selects how captured audio is delivered.
type Mode int

const (
	// BlobMode buffers encoded audio until Stop, then yields one blob.
	BlobMode Mode = iota
	// StreamMode delivers raw PCM sample slices as they arrive.
	StreamMode
)

// Blob is one complete encoded recording.
type Blob struct {
	Data     []byte
	MimeType string
	Duration time.Duration
}

// RecorderConfig configures a capture session.
type RecorderConfig struct {
	Mode        Mode
	SampleRate  int    // capture rate of the incoming samples
	MimeType    string // negotiated encoding, blob mode only
	MinDuration time.Duration
	// OnSamples receives raw PCM sample slices in stream mode. The underlying
	// delivery is serialized; the callback is never invoked concurrently.
	OnSamples func([]float32)
	// Release frees the underlying device. Invoked exactly once, on every
	// exit path.
	Release func()
}

// Recorder is one live capture session. It owns exclusive access to the
// microphone source until Stop is called.
type Recorder struct {
	cfg       RecorderConfig
	startedAt time.Time

	mu      sync.Mutex
	stopped bool
	blob    []byte

	releaseOnce sync.Once
}

// Capture hands out capture sessions and enforces device exclusivity: the
// microphone must never be requested twice concurrently.
type Capture struct {
	mu     sync.Mutex
	active *Recorder
}

// NewCapture creates a capture manager for one device.
func NewCapture() *Capture {
	return &Capture{}
}

// Start acquires the device and begins a capture session. It fails with
// ErrCaptureBusy if a session is already running.
func (c *Capture) Start(cfg RecorderConfig) (*Recorder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil, ErrCaptureBusy
	}
	if cfg.SampleRate <= 0 {
		return nil, errors.Wrap(ErrUnsupportedEnvironment, "invalid sample rate")
	}
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = MinRecordingDuration
	}

	rec := &Recorder{
		cfg:       cfg,
		startedAt: time.Now(),
	}
	owner := c
	release := cfg.Release
	rec.cfg.Release = func() {
		owner.mu.Lock()
		if owner.active == rec {
			owner.active = nil
		}
		owner.mu.Unlock()
		if release != nil {
			release()
		}
	}

	c.active = rec
	return rec, nil
}

// StartedAt reports when the session began.
func (r *Recorder) StartedAt() time.Time {
	return r.startedAt
}

// SampleRate reports the capture rate of incoming samples.
func (r *Recorder) SampleRate() int {
	return r.cfg.SampleRate
}

// WriteEncoded appends already-encoded audio in blob mode. Data arriving
// after Stop is dropped.
func (r *Recorder) WriteEncoded(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.cfg.Mode != BlobMode {
		return
	}
	r.blob = append(r.blob, p...)
}

// WriteSamples forwards raw PCM samples in stream mode. Samples arriving
// after Stop are dropped.
func (r *Recorder) WriteSamples(samples []float32) {
	r.mu.Lock()
	if r.stopped || r.cfg.Mode != StreamMode {
		r.mu.Unlock()
		return
	}
	cb := r.cfg.OnSamples
	r.mu.Unlock()

	if cb != nil {
		cb(samples)
	}
}

// Stop ends the session and releases the device. It is idempotent: the device
// release runs exactly once no matter how many times Stop is called or which
// path called it. In blob mode the finished recording is returned; recordings
// shorter than the configured minimum are discarded with ErrTooShort.
func (r *Recorder) Stop() (*Blob, error) {
	r.mu.Lock()
	already := r.stopped
	r.stopped = true
	duration := time.Since(r.startedAt)
	data := r.blob
	r.blob = nil
	r.mu.Unlock()

	r.releaseOnce.Do(func() {
		if r.cfg.Release != nil {
			r.cfg.Release()
		}
	})

	if already {
		return nil, nil
	}
	if r.cfg.Mode != BlobMode {
		return nil, nil
	}
	if duration < r.cfg.MinDuration {
		return nil, ErrTooShort
	}
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	return &Blob{Data: data, MimeType: r.cfg.MimeType, Duration: duration}, nil
}
