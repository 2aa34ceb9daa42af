package stt

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyplan/voice-gateway/audio"
)

// fakeFFmpeg writes an executable that copies its input file to its output
// file, standing in for the real re-encode.
func fakeFFmpeg(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "ffmpeg")
	script := `#!/bin/sh
# args: -i <in> -vn -af <filter> -acodec pcm_s16le -ar 16000 -ac 1 -y <out>
in="$2"
for out; do :; done
cp "$in" "$out"
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

// brokenFFmpeg writes an executable that exits without producing output.
func brokenFFmpeg(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 1\n"), 0o755))
	return path
}

func TestBatchTranscriber_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/api/upload":
			fmt.Fprint(w, `{"code":"000000","content":{"orderId":"order-1"}}`)
		case "/v2/api/getResult":
			fmt.Fprint(w, completedBody)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	tr := NewBatchTranscriber(Config{
		Signer:        Signer{AppID: "app", APISecret: "secret"},
		UploadHost:    srv.URL,
		UploadPath:    "/v2/api/upload",
		GetResultPath: "/v2/api/getResult",
		PollInterval:  time.Millisecond,
		MaxPolls:      3,
		FFmpegPath:    fakeFFmpeg(t, dir),
		TempDir:       dir,
	})

	text, err := tr.Transcribe(context.Background(), &audio.Blob{
		Data:     []byte("webm-bytes"),
		MimeType: "audio/webm",
		Duration: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "好的", text)

	// staged files are removed on the way out
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1) // just the ffmpeg stub
	assert.Equal(t, "ffmpeg", entries[0].Name())
}

func TestBatchTranscriber_EmptyBlob(t *testing.T) {
	tr := NewBatchTranscriber(Config{})
	_, err := tr.Transcribe(context.Background(), &audio.Blob{})
	assert.ErrorIs(t, err, audio.ErrEmptyAudio)
}

func TestBatchTranscriber_RecodeFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	tr := NewBatchTranscriber(Config{
		FFmpegPath: brokenFFmpeg(t, dir),
		TempDir:    dir,
	})

	_, err := tr.Transcribe(context.Background(), &audio.Blob{
		Data:     []byte("webm-bytes"),
		MimeType: "audio/webm",
	})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"audio/wav", ".wav"},
		{"audio/x-wav", ".wav"},
		{"audio/webm", ".webm"},
		{"audio/ogg", ".ogg"},
		{"audio/mp4", ".m4a"},
		{"application/unknown", ".bin"},
		{"", ".bin"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extensionFor(tt.mime), tt.mime)
	}
}
