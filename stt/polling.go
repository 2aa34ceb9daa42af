package stt

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/voyplan/voice-gateway/audio"
)

// PollingTranscriber uploads a pre-encoded blob directly and polls the status
// endpoint until the backend finishes the job.
type PollingTranscriber struct {
	client *uploadClient
}

// NewPollingTranscriber builds the polling-upload strategy.
func NewPollingTranscriber(cfg Config) *PollingTranscriber {
	return &PollingTranscriber{client: newUploadClient(cfg)}
}

// Transcribe implements Transcriber.
func (t *PollingTranscriber) Transcribe(ctx context.Context, blob *audio.Blob) (string, error) {
	if blob == nil || len(blob.Data) == 0 {
		return "", errors.Wrap(audio.ErrEmptyAudio, "polling upload")
	}

	fileName := fmt.Sprintf("recording-%d%s", time.Now().UnixNano(), extensionFor(blob.MimeType))
	orderID, err := t.client.Upload(ctx, fileName, blob.Data, blob.Duration)
	if err != nil {
		return "", err
	}
	return t.client.PollUntilDone(ctx, orderID)
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/mp4":
		return ".m4a"
	default:
		return ".bin"
	}
}
