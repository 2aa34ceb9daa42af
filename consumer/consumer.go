// Package consumer delivers finalized transcripts to their downstream
// destination: the expense-logging API or the itinerary prompt field.
package consumer

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// ErrDownstreamSubmit is returned when the downstream API rejected the
// submission.
var ErrDownstreamSubmit = errors.New("consumer: downstream submit failed")

// UnrecognizedPlaceholder is what the batch backend yields when it heard
// nothing usable. Treated the same as an empty transcript: the user must
// retry, nothing is submitted.
const UnrecognizedPlaceholder = "未识别到内容"

// Sink consumes exactly one finalized transcript per recording session.
type Sink interface {
	Submit(ctx context.Context, text string) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, text string) error

// Submit implements Sink.
func (f SinkFunc) Submit(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Usable reports whether a transcript carries content worth submitting.
// Empty and explicitly-unrecognized transcripts are a no-op requiring user
// retry, not a valid submission.
func Usable(text string) bool {
	trimmed := strings.TrimSpace(text)
	return trimmed != "" && trimmed != UnrecognizedPlaceholder
}
