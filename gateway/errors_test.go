package gateway

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/voyplan/voice-gateway/audio"
	"github.com/voyplan/voice-gateway/consumer"
	"github.com/voyplan/voice-gateway/session"
	"github.com/voyplan/voice-gateway/stt"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{audio.ErrPermissionDenied, "permission_denied"},
		{audio.ErrUnsupportedEnvironment, "unsupported_environment"},
		{audio.ErrTooShort, "too_short"},
		{audio.ErrEmptyAudio, "empty_audio"},
		{audio.ErrCaptureBusy, "busy"},
		{session.ErrNotIdle, "busy"},
		{stt.ErrUploadFailed, "upload_failed"},
		{stt.ErrPollingTimeout, "polling_timeout"},
		{stt.ErrBackendTranscriptionFailed, "transcription_failed"},
		{stt.ErrBackendProtocolError, "protocol_error"},
		{stt.ErrConnectionError, "connection_error"},
		{consumer.ErrDownstreamSubmit, "downstream_failed"},
		{errors.New("something else"), "internal"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, errorCode(tt.err), tt.want)
	}
}

func TestErrorCode_WrappedErrors(t *testing.T) {
	err := errors.Wrap(stt.ErrPollingTimeout, "order=abc after 20 polls")
	assert.Equal(t, "polling_timeout", errorCode(err))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{audio.ErrTooShort, 400},
		{audio.ErrEmptyAudio, 400},
		{audio.ErrCaptureBusy, 409},
		{stt.ErrPollingTimeout, 504},
		{stt.ErrUploadFailed, 502},
		{stt.ErrBackendTranscriptionFailed, 502},
		{stt.ErrConnectionError, 502},
		{consumer.ErrDownstreamSubmit, 502},
		{errors.New("something else"), 500},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, httpStatus(tt.err))
	}
}

func TestDecodeFloat32(t *testing.T) {
	// 1.0 is 0x3F800000, -0.5 is 0xBF000000, little endian on the wire
	in := []byte{0x00, 0x00, 0x80, 0x3F, 0x00, 0x00, 0x00, 0xBF}
	assert.Equal(t, []float32{1.0, -0.5}, decodeFloat32(in))
}

func TestDecodeFloat32_DropsTrailingPartialSample(t *testing.T) {
	in := []byte{0x00, 0x00, 0x80, 0x3F, 0xAA, 0xBB}
	assert.Equal(t, []float32{1.0}, decodeFloat32(in))
}
