package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapture_Exclusivity(t *testing.T) {
	c := NewCapture()

	rec, err := c.Start(RecorderConfig{Mode: BlobMode, SampleRate: 48000})
	require.NoError(t, err)

	_, err = c.Start(RecorderConfig{Mode: BlobMode, SampleRate: 48000})
	assert.ErrorIs(t, err, ErrCaptureBusy)

	rec.Stop()

	// device is free again after stop
	_, err = c.Start(RecorderConfig{Mode: BlobMode, SampleRate: 48000})
	assert.NoError(t, err)
}

func TestCapture_InvalidSampleRate(t *testing.T) {
	c := NewCapture()
	_, err := c.Start(RecorderConfig{Mode: BlobMode, SampleRate: 0})
	assert.ErrorIs(t, err, ErrUnsupportedEnvironment)
}

func TestRecorder_TooShort(t *testing.T) {
	c := NewCapture()
	releases := 0

	rec, err := c.Start(RecorderConfig{
		Mode:        BlobMode,
		SampleRate:  48000,
		MinDuration: time.Hour,
		Release:     func() { releases++ },
	})
	require.NoError(t, err)

	rec.WriteEncoded([]byte("audio"))
	blob, err := rec.Stop()

	assert.Nil(t, blob)
	assert.ErrorIs(t, err, ErrTooShort)
	// the device is released even when the recording is rejected
	assert.Equal(t, 1, releases)
}

func TestRecorder_EmptyAudio(t *testing.T) {
	c := NewCapture()
	rec, err := c.Start(RecorderConfig{
		Mode:        BlobMode,
		SampleRate:  48000,
		MinDuration: time.Millisecond,
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	blob, err := rec.Stop()

	assert.Nil(t, blob)
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestRecorder_BlobRoundTrip(t *testing.T) {
	c := NewCapture()
	rec, err := c.Start(RecorderConfig{
		Mode:        BlobMode,
		SampleRate:  48000,
		MimeType:    "audio/webm",
		MinDuration: time.Millisecond,
	})
	require.NoError(t, err)

	rec.WriteEncoded([]byte("chunk-1"))
	rec.WriteEncoded([]byte("chunk-2"))
	time.Sleep(5 * time.Millisecond)

	blob, err := rec.Stop()
	require.NoError(t, err)
	require.NotNil(t, blob)
	assert.Equal(t, []byte("chunk-1chunk-2"), blob.Data)
	assert.Equal(t, "audio/webm", blob.MimeType)
	assert.GreaterOrEqual(t, blob.Duration, 5*time.Millisecond)
}

func TestRecorder_StopIsIdempotent(t *testing.T) {
	c := NewCapture()
	releases := 0

	rec, err := c.Start(RecorderConfig{
		Mode:        BlobMode,
		SampleRate:  48000,
		MinDuration: time.Millisecond,
		Release:     func() { releases++ },
	})
	require.NoError(t, err)

	rec.WriteEncoded([]byte("audio"))
	time.Sleep(5 * time.Millisecond)

	_, err = rec.Stop()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		blob, err := rec.Stop()
		assert.Nil(t, blob)
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, releases)
}

func TestRecorder_WriteAfterStopDropped(t *testing.T) {
	c := NewCapture()
	rec, err := c.Start(RecorderConfig{
		Mode:        BlobMode,
		SampleRate:  48000,
		MinDuration: time.Millisecond,
	})
	require.NoError(t, err)

	rec.WriteEncoded([]byte("kept"))
	time.Sleep(5 * time.Millisecond)
	blob, err := rec.Stop()
	require.NoError(t, err)
	require.Equal(t, []byte("kept"), blob.Data)

	rec.WriteEncoded([]byte("dropped"))
	again, err := rec.Stop()
	assert.Nil(t, again)
	assert.NoError(t, err)
}

func TestRecorder_StreamModeDelivery(t *testing.T) {
	c := NewCapture()
	var delivered [][]float32

	rec, err := c.Start(RecorderConfig{
		Mode:        StreamMode,
		SampleRate:  48000,
		MinDuration: time.Millisecond,
		OnSamples:   func(s []float32) { delivered = append(delivered, s) },
	})
	require.NoError(t, err)

	rec.WriteSamples([]float32{0.1, 0.2})
	rec.WriteSamples([]float32{0.3})
	require.Len(t, delivered, 2)

	rec.Stop()
	rec.WriteSamples([]float32{0.4})
	assert.Len(t, delivered, 2)
}
