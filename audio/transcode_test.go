package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInt16FromFloat32(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
		want []int16
	}{
		{
			name: "nominal values scale by 32767",
			in:   []float32{0, 1.0, -1.0, 0.5},
			want: []int16{0, 32767, -32767, 16383},
		},
		{
			name: "out of range samples are clamped",
			in:   []float32{1.5, -2.0, 100},
			want: []int16{32767, -32767, 32767},
		},
		{
			name: "empty input",
			in:   []float32{},
			want: []int16{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Int16FromFloat32(tt.in)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInt16FromFloat32_PreservesLength(t *testing.T) {
	in := make([]float32, 1337)
	assert.Len(t, Int16FromFloat32(in), len(in))
}

func TestInt16FromFloat32_Deterministic(t *testing.T) {
	in := []float32{0.1, -0.7, 0.999, -0.001, 1.2, -1.2}
	first := Int16FromFloat32(in)
	second := Int16FromFloat32(in)
	assert.Equal(t, first, second)
}

func TestResample_IdenticalRatesCopies(t *testing.T) {
	in := []int16{1, 2, 3, 4, 5}
	out := Resample(in, 16000, 16000)

	require.Equal(t, in, out)

	// must be a copy, not an alias
	out[0] = 99
	assert.Equal(t, int16(1), in[0])
}

func TestResample_Downsample(t *testing.T) {
	in := make([]int16, 4800) // 100ms at 48kHz
	for i := range in {
		in[i] = int16(i % 100)
	}

	out := Resample(in, 48000, 16000)
	assert.Len(t, out, 1600)
}

func TestResample_Upsample(t *testing.T) {
	in := []int16{0, 100}
	out := Resample(in, 8000, 16000)

	require.Len(t, out, 4)
	// interpolated values lie between the neighbors
	assert.Equal(t, int16(0), out[0])
	assert.Equal(t, int16(50), out[1])
}

func TestResample_Empty(t *testing.T) {
	assert.Empty(t, Resample(nil, 48000, 16000))
}

func TestFrameAccumulator_NeverDropsOrDuplicates(t *testing.T) {
	acc := NewFrameAccumulator(640)

	// feed sequential samples in chunk sizes that never align with the
	// frame boundary
	var fed []int16
	next := int16(0)
	var got []int16
	for _, chunkSize := range []int{1, 639, 640, 641, 1000, 13, 2000, 7} {
		chunk := make([]int16, chunkSize)
		for i := range chunk {
			chunk[i] = next
			next++
		}
		fed = append(fed, chunk...)

		for _, frame := range acc.Push(chunk) {
			require.Len(t, frame, 640)
			got = append(got, frame...)
		}
	}

	require.Equal(t, len(fed), len(got)+acc.Pending())
	assert.Equal(t, fed[:len(got)], got)
}

func TestFrameAccumulator_Reset(t *testing.T) {
	acc := NewFrameAccumulator(640)
	acc.Push(make([]int16, 100))
	require.Equal(t, 100, acc.Pending())

	acc.Reset()
	assert.Zero(t, acc.Pending())
}

func TestEncodeFrame_LittleEndianBase64(t *testing.T) {
	// 1 -> 01 00, -2 -> FE FF
	assert.Equal(t, "AQD+/w==", EncodeFrame([]int16{1, -2}))
}

func TestFrameBytes(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0x00, 0xFE, 0xFF}, FrameBytes([]int16{1, -2}))
}

func TestTranscoder_ProcessAndFlush(t *testing.T) {
	tr := NewTranscoder(48000, 16000, 640)

	// 100ms at 48kHz resamples to 1600 samples: two full frames plus a
	// 320-sample remainder
	frames := tr.Process(make([]float32, 4800))
	require.Len(t, frames, 2)
	for _, f := range frames {
		assert.Len(t, f, 640)
	}

	rest := tr.Flush()
	assert.Len(t, rest, 320)

	// flush drains the buffer
	assert.Nil(t, tr.Flush())
}
