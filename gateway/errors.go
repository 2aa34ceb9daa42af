package gateway

import (
	"github.com/pkg/errors"

	"github.com/voyplan/voice-gateway/audio"
	"github.com/voyplan/voice-gateway/consumer"
	"github.com/voyplan/voice-gateway/session"
	"github.com/voyplan/voice-gateway/stt"
)

// errorCode maps a session failure to the stable code the client switches on.
func errorCode(err error) string {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, audio.ErrUnsupportedEnvironment):
		return "unsupported_environment"
	case errors.Is(err, audio.ErrTooShort):
		return "too_short"
	case errors.Is(err, audio.ErrEmptyAudio):
		return "empty_audio"
	case errors.Is(err, audio.ErrCaptureBusy), errors.Is(err, session.ErrNotIdle):
		return "busy"
	case errors.Is(err, stt.ErrUploadFailed):
		return "upload_failed"
	case errors.Is(err, stt.ErrPollingTimeout):
		return "polling_timeout"
	case errors.Is(err, stt.ErrBackendTranscriptionFailed):
		return "transcription_failed"
	case errors.Is(err, stt.ErrBackendProtocolError):
		return "protocol_error"
	case errors.Is(err, stt.ErrConnectionError):
		return "connection_error"
	case errors.Is(err, consumer.ErrDownstreamSubmit):
		return "downstream_failed"
	}
	return "internal"
}

// httpStatus maps a failure to the status of the one-shot upload endpoint.
func httpStatus(err error) int {
	switch errorCode(err) {
	case "too_short", "empty_audio":
		return 400
	case "busy":
		return 409
	case "polling_timeout":
		return 504
	case "downstream_failed", "upload_failed", "transcription_failed",
		"protocol_error", "connection_error":
		return 502
	}
	return 500
}
