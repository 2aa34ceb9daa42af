// Package session sequences one recording gesture through capture,
// transcoding, and transcription, and delivers the final transcript to the
// downstream consumer exactly once.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/voyplan/voice-gateway/audio"
	"github.com/voyplan/voice-gateway/stt"
	"github.com/voyplan/voice-gateway/transcript"
)

// State is the controller's lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StateFinalizing
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	}
	return "unknown"
}

// ErrNotIdle is returned when a start gesture arrives while a session is
// already running.
var ErrNotIdle = errors.New("session: controller is not idle")

// Callbacks receive session outcomes. OnFinal fires at most once per
// session; a late result after cancel or a second terminal signal is
// detected and discarded.
type Callbacks struct {
	OnPartial func(text string)
	OnFinal   func(text string)
	OnError   func(err error)
}

// Config wires a controller to its collaborators.
type Config struct {
	Strategy    stt.Strategy
	CaptureRate int // sample rate of incoming client audio
	FrameSize   int
	MinDuration time.Duration

	// Transcriber serves the blob strategies (batch, polling).
	Transcriber stt.Transcriber
	// NewStreamer builds a fresh streaming session; streaming strategy only.
	NewStreamer func() stt.Streamer

	Logger *log.Logger
}

// Controller is the per-user-session state machine:
// Idle -> Acquiring -> Recording -> Finalizing -> Idle. One logical
// recording at a time; all resources are released on every exit path.
type Controller struct {
	cfg     Config
	capture *audio.Capture
	cb      Callbacks
	logger  *log.Logger

	mu         sync.Mutex
	state      State
	finalized  bool
	gen        uint64
	sessionID  string
	rec        *audio.Recorder
	streamer   stt.Streamer
	transcoder *audio.Transcoder
	reconciler *transcript.Reconciler
	sessionCtx context.Context
	cancel     context.CancelFunc
}

// NewController creates an idle controller.
func NewController(cfg Config, cb Callbacks) *Controller {
	return &Controller{
		cfg:     cfg,
		capture: audio.NewCapture(),
		cb:      cb,
		logger:  cfg.Logger,
	}
}

// State reports the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the id of the running session, if any.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Start handles the user's start gesture: acquire the capture device and,
// for the streaming strategy, open and authenticate the backend connection.
// Any failure releases every partially acquired resource and returns the
// controller to Idle; there is no silent retry.
func (c *Controller) Start(ctx context.Context, mimeType string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrNotIdle
	}
	c.state = StateAcquiring
	c.finalized = false
	c.gen++
	gen := c.gen
	c.sessionID = uuid.NewString()
	c.reconciler = transcript.NewReconciler()

	sessionCtx, cancel := context.WithCancel(context.Background())
	c.sessionCtx = sessionCtx
	c.cancel = cancel
	c.mu.Unlock()

	streaming := c.cfg.Strategy == stt.StrategyStreamingSocket

	mode := audio.BlobMode
	if streaming {
		mode = audio.StreamMode
	}

	recCfg := audio.RecorderConfig{
		Mode:        mode,
		SampleRate:  c.cfg.CaptureRate,
		MimeType:    mimeType,
		MinDuration: c.cfg.MinDuration,
	}
	if streaming {
		c.transcoder = audio.NewTranscoder(c.cfg.CaptureRate, audio.BackendSampleRate, c.cfg.FrameSize)
		recCfg.OnSamples = c.onSamples
	}

	rec, err := c.capture.Start(recCfg)
	if err != nil {
		c.toIdle()
		return err
	}

	if streaming {
		streamer := c.cfg.NewStreamer()
		if err := streamer.Start(ctx); err != nil {
			// Partial acquisition: the mic is held but the backend is not
			// reachable. Release and report.
			rec.Stop()
			c.toIdle()
			return err
		}
		c.mu.Lock()
		c.streamer = streamer
		c.mu.Unlock()
		go c.consumeEvents(sessionCtx, gen, streamer)
	}

	c.mu.Lock()
	c.rec = rec
	c.state = StateRecording
	c.mu.Unlock()

	c.logf("session %s recording (strategy=%s)", c.sessionID, c.cfg.Strategy)
	return nil
}

// PushSamples forwards raw capture samples while recording. Frames arriving
// in any other state are dropped.
func (c *Controller) PushSamples(samples []float32) {
	c.mu.Lock()
	rec := c.rec
	ok := c.state == StateRecording
	c.mu.Unlock()
	if ok && rec != nil {
		rec.WriteSamples(samples)
	}
}

// PushEncoded forwards encoded blob bytes while recording.
func (c *Controller) PushEncoded(p []byte) {
	c.mu.Lock()
	rec := c.rec
	ok := c.state == StateRecording
	c.mu.Unlock()
	if ok && rec != nil {
		rec.WriteEncoded(p)
	}
}

// onSamples is the capture callback in stream mode. Delivery is serialized
// by the capture contract; the only shared state read here is the state
// flag, so audio stops flowing the moment the session leaves Recording.
func (c *Controller) onSamples(samples []float32) {
	c.mu.Lock()
	streamer := c.streamer
	gen := c.gen
	recording := c.state == StateRecording
	c.mu.Unlock()
	if !recording || streamer == nil {
		return
	}

	for _, frame := range c.transcoder.Process(samples) {
		if c.State() != StateRecording {
			return
		}
		if err := streamer.Send(frame); err != nil {
			c.fail(gen, err)
			return
		}
	}
}

// Stop handles the user's stop gesture: transition to Finalizing and await
// the in-flight result. The wait itself is asynchronous; the terminal
// callback fires when the backend settles. The blob transcription runs
// under the session context, so a later Cancel aborts it mid-flight.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	c.state = StateFinalizing
	rec := c.rec
	streamer := c.streamer
	gen := c.gen
	sessionCtx := c.sessionCtx
	c.mu.Unlock()

	if streamer != nil {
		// Push the buffered remainder as a final short frame, then signal
		// end of audio. The receive loop drives finalization from here.
		if rest := c.transcoder.Flush(); len(rest) > 0 {
			if err := streamer.Send(rest); err != nil {
				c.fail(gen, err)
				return
			}
		}
		rec.Stop()
		if err := streamer.CloseSend(); err != nil {
			c.fail(gen, err)
		}
		return
	}

	blob, err := rec.Stop()
	if err != nil {
		c.fail(gen, err)
		return
	}

	go func() {
		text, err := c.cfg.Transcriber.Transcribe(sessionCtx, blob)
		if err != nil {
			c.fail(gen, err)
			return
		}
		c.finalize(gen, text)
	}()
}

// Cancel forces teardown from any state: the session context is cancelled,
// aborting any in-flight backend conversation, resources are released
// immediately, and any result arriving afterward is discarded, not
// double-delivered.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.finalized = true
	rec := c.rec
	streamer := c.streamer
	cancel := c.cancel
	c.resetLocked()
	c.mu.Unlock()

	releaseResources(rec, streamer, cancel)
	c.logf("session cancelled")
}

// consumeEvents drains the streaming session's receive path, feeding the
// reconciler and finalizing on end-of-utterance.
func (c *Controller) consumeEvents(ctx context.Context, gen uint64, streamer stt.Streamer) {
	for {
		select {
		case ev, ok := <-streamer.Events():
			if !ok {
				return
			}
			switch {
			case ev.Err != nil:
				c.fail(gen, ev.Err)
				return
			case ev.Final:
				c.finalize(gen, c.reconciler.Finalize())
				return
			default:
				c.reconciler.Apply(ev.Text, ev.Replace)
				if c.cb.OnPartial != nil {
					c.cb.OnPartial(c.reconciler.Display())
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// finalize delivers the transcript downstream exactly once and returns the
// controller to Idle. A result from an earlier generation, or a second
// terminal signal for the current one, is discarded here.
func (c *Controller) finalize(gen uint64, text string) {
	c.mu.Lock()
	if gen != c.gen || c.finalized {
		c.mu.Unlock()
		c.logf("discarding late transcript (%d chars): session already finalized", len(text))
		return
	}
	c.finalized = true
	rec := c.rec
	streamer := c.streamer
	cancel := c.cancel
	c.resetLocked()
	c.mu.Unlock()

	releaseResources(rec, streamer, cancel)

	if c.cb.OnFinal != nil {
		c.cb.OnFinal(text)
	}
}

// fail surfaces a typed error exactly once and returns the controller to
// Idle, releasing everything on the way out. Same late-discard rules as
// finalize.
func (c *Controller) fail(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || c.finalized {
		c.mu.Unlock()
		c.logf("discarding late error: session already finalized: %v", err)
		return
	}
	c.finalized = true
	rec := c.rec
	streamer := c.streamer
	cancel := c.cancel
	c.resetLocked()
	c.mu.Unlock()

	releaseResources(rec, streamer, cancel)

	c.logf("session failed: %v", err)
	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}

func (c *Controller) resetLocked() {
	c.state = StateIdle
	c.rec = nil
	c.streamer = nil
	c.cancel = nil
}

func (c *Controller) toIdle() {
	c.mu.Lock()
	cancel := c.cancel
	c.resetLocked()
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// releaseResources is the single unconditional teardown: idempotent device
// release, connection close, context cancellation.
func releaseResources(rec *audio.Recorder, streamer stt.Streamer, cancel context.CancelFunc) {
	if rec != nil {
		rec.Stop()
	}
	if streamer != nil {
		streamer.Close()
	}
	if cancel != nil {
		cancel()
	}
}

func (c *Controller) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
