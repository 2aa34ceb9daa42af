// Package stt drives the conversation with the remote transcription backend.
// Three strategies exist: re-encode locally and batch-upload, upload a
// pre-encoded blob and poll, or hold a bidirectional streaming socket. All
// three converge on the same contract: one final transcript or one typed
// failure per recording.
package stt

import (
	"context"
	"log"
	"time"

	"github.com/voyplan/voice-gateway/audio"
)

// Strategy selects which backend conversation a session runs.
type Strategy string

const (
	StrategyBatchUpload     Strategy = "batch"
	StrategyPollingUpload   Strategy = "polling"
	StrategyStreamingSocket Strategy = "streaming"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyBatchUpload, StrategyPollingUpload, StrategyStreamingSocket:
		return true
	}
	return false
}

// Transcriber turns one finished recording into text. Implemented by the
// batch-upload and polling-upload strategies.
type Transcriber interface {
	Transcribe(ctx context.Context, blob *audio.Blob) (string, error)
}

// Event is one message from a live streaming session.
type Event struct {
	// Text is the recognized segment of this update.
	Text string
	// Replace marks the segment as a correction of the previous guess.
	Replace bool
	// Final marks the end of the utterance; no further events follow.
	Final bool
	// Err carries a terminal failure; no further events follow.
	Err error
}

// Streamer is a live bidirectional transcription session. Audio frames are
// pushed while recognition events arrive asynchronously on Events.
type Streamer interface {
	// Start opens and authenticates the backend connection.
	Start(ctx context.Context) error
	// Send pushes one PCM frame. Must only be called between Start and
	// CloseSend.
	Send(frame []int16) error
	// CloseSend signals end of audio to the backend.
	CloseSend() error
	// Events yields recognition updates until a Final or Err event, after
	// which the channel is closed.
	Events() <-chan Event
	// Close tears the connection down unconditionally. Idempotent.
	Close() error
}

// Config carries backend endpoints, credentials, and timing budgets.
type Config struct {
	Signer Signer

	UploadHost    string // e.g. raasr.xfyun.cn
	UploadPath    string // /v2/api/upload
	GetResultPath string // /v2/api/getResult
	StreamURL     string // wss://.../v2/iat

	Language string // "cn" by default

	UploadTimeout time.Duration // bound on the upload request
	PollTimeout   time.Duration // bound on each poll request
	PollInterval  time.Duration // sleep between polls
	MaxPolls      int           // retry budget

	// OnPoll is invoked once per issued poll request, for instrumentation.
	OnPoll func()

	// FFmpegPath overrides the re-encode binary, batch strategy only.
	FFmpegPath string
	// TempDir overrides where the batch strategy stages files.
	TempDir string

	Logger *log.Logger
}

// NewTranscriber builds the blob-oriented strategy named by s.
func NewTranscriber(s Strategy, cfg Config) Transcriber {
	switch s {
	case StrategyBatchUpload:
		return NewBatchTranscriber(cfg)
	default:
		return NewPollingTranscriber(cfg)
	}
}
