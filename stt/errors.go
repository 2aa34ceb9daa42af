package stt

import "github.com/pkg/errors"

var (
	// ErrUploadFailed is returned when the backend rejected the audio upload
	// or the upload transport failed.
	ErrUploadFailed = errors.New("stt: upload failed")

	// ErrPollingTimeout is returned when the poll retry budget is exhausted
	// without reaching a terminal job status.
	ErrPollingTimeout = errors.New("stt: polling timed out")

	// ErrBackendTranscriptionFailed is returned when the backend reports the
	// job itself failed. Never retried: the backend rejected the input.
	ErrBackendTranscriptionFailed = errors.New("stt: backend transcription failed")

	// ErrBackendProtocolError is returned when the streaming backend reports
	// a non-zero error code mid-conversation.
	ErrBackendProtocolError = errors.New("stt: backend protocol error")

	// ErrConnectionError is returned when the streaming connection could not
	// be established or dropped unexpectedly.
	ErrConnectionError = errors.New("stt: connection error")
)

// IsTerminalBackendError reports whether err is a backend verdict that must
// not be retried, as opposed to a transient transport condition.
func IsTerminalBackendError(err error) bool {
	return errors.Is(err, ErrBackendTranscriptionFailed) ||
		errors.Is(err, ErrBackendProtocolError)
}
