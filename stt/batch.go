package stt

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/voyplan/voice-gateway/audio"
)

// BatchTranscriber re-encodes the recording locally to the canonical backend
// format (16 kHz mono s16le WAV, leading/trailing silence trimmed) before
// uploading the whole buffer and polling for the result.
type BatchTranscriber struct {
	client     *uploadClient
	ffmpegPath string
	tempDir    string
}

// NewBatchTranscriber builds the batch-upload strategy.
func NewBatchTranscriber(cfg Config) *BatchTranscriber {
	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &BatchTranscriber{
		client:     newUploadClient(cfg),
		ffmpegPath: ffmpegPath,
		tempDir:    tempDir,
	}
}

// Transcribe implements Transcriber. Temporary files are scoped to this call
// and removed on every exit path.
func (t *BatchTranscriber) Transcribe(ctx context.Context, blob *audio.Blob) (string, error) {
	if blob == nil || len(blob.Data) == 0 {
		return "", errors.Wrap(audio.ErrEmptyAudio, "batch upload")
	}

	suffix := randomSuffix()
	inputPath := filepath.Join(t.tempDir, fmt.Sprintf("input-%s%s", suffix, extensionFor(blob.MimeType)))
	outputPath := filepath.Join(t.tempDir, fmt.Sprintf("output-%s.wav", suffix))
	defer t.cleanup(inputPath, outputPath)

	if err := os.WriteFile(inputPath, blob.Data, 0o600); err != nil {
		return "", errors.Wrap(err, "write temp input")
	}

	if err := t.recode(ctx, inputPath, outputPath); err != nil {
		return "", err
	}

	converted, err := os.ReadFile(outputPath)
	if err != nil {
		return "", errors.Wrap(err, "read converted audio")
	}
	if len(converted) == 0 {
		return "", errors.Wrap(audio.ErrEmptyAudio, "converted audio is empty")
	}

	orderID, err := t.client.Upload(ctx, filepath.Base(outputPath), converted, blob.Duration)
	if err != nil {
		return "", err
	}
	return t.client.PollUntilDone(ctx, orderID)
}

// recode shells out to ffmpeg for the canonical conversion: strip video,
// trim leading and trailing silence, downmix to 16 kHz mono s16le.
func (t *BatchTranscriber) recode(ctx context.Context, inputPath, outputPath string) error {
	const silenceFilter = "silenceremove=start_periods=1:start_duration=0.5:start_threshold=-50dB," +
		"areverse,silenceremove=start_periods=1:start_duration=0.5:start_threshold=-50dB,areverse"

	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-i", inputPath,
		"-vn",
		"-af", silenceFilter,
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-y", outputPath)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "ffmpeg: %s", string(output))
	}
	return nil
}

// cleanup removes the staged files. A file that never got written (ffmpeg
// failed before producing output) is not an error; anything else is logged
// and otherwise ignored.
func (t *BatchTranscriber) cleanup(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			t.client.logf("failed to delete temp file %s: %v", p, err)
		}
	}
}

func randomSuffix() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "000000000000"
	}
	return hex.EncodeToString(buf)
}
