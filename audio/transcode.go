package audio

import (
	"encoding/base64"
	"encoding/binary"
)

// DefaultFrameSize is 640 samples, i.e. 40ms of audio at 16kHz.
const DefaultFrameSize = 640

// BackendSampleRate is the sample rate the transcription backends expect.
const BackendSampleRate = 16000

// Int16FromFloat32 converts floating-point samples in [-1, 1] to signed
// 16-bit PCM. Samples outside the range are clamped before scaling by 32767.
func Int16FromFloat32(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		out[i] = int16(s * 32767)
	}
	return out
}

// Resample converts int16 PCM from inRate to outRate using linear
// interpolation. Each output sample is computed from the two nearest input
// samples weighted by fractional position. Equal rates return a copy of the
// input unchanged.
func Resample(in []int16, inRate, outRate int) []int16 {
	if inRate == outRate {
		out := make([]int16, len(in))
		copy(out, in)
		return out
	}
	if len(in) == 0 {
		return []int16{}
	}

	ratio := float64(inRate) / float64(outRate)
	outLen := int(float64(len(in)) / ratio)
	out := make([]int16, outLen)

	for i := 0; i < outLen; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		if idx+1 < len(in) {
			out[i] = int16(float64(in[idx])*(1-frac) + float64(in[idx+1])*frac)
		} else {
			out[i] = in[idx]
		}
	}
	return out
}

// FrameAccumulator collects PCM samples and drains them as fixed-size frames.
// Samples that do not fill a whole frame are carried over to the next push;
// capture callback boundaries generally do not align with frame boundaries.
type FrameAccumulator struct {
	frameSize int
	pending   []int16
}

// NewFrameAccumulator creates an accumulator emitting frames of frameSize
// samples. A non-positive frameSize falls back to DefaultFrameSize.
func NewFrameAccumulator(frameSize int) *FrameAccumulator {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	return &FrameAccumulator{frameSize: frameSize}
}

// Push appends samples and returns every complete frame now available, in
// order. The remainder stays buffered.
func (a *FrameAccumulator) Push(samples []int16) [][]int16 {
	a.pending = append(a.pending, samples...)

	var frames [][]int16
	for len(a.pending) >= a.frameSize {
		frame := make([]int16, a.frameSize)
		copy(frame, a.pending[:a.frameSize])
		frames = append(frames, frame)
		a.pending = a.pending[a.frameSize:]
	}
	return frames
}

// Pending returns the number of buffered samples not yet emitted.
func (a *FrameAccumulator) Pending() int {
	return len(a.pending)
}

// Reset discards any buffered samples.
func (a *FrameAccumulator) Reset() {
	a.pending = nil
}

// EncodeFrame serializes a PCM frame as little-endian bytes and encodes it as
// standard base64 for transport.
func EncodeFrame(frame []int16) string {
	return base64.StdEncoding.EncodeToString(FrameBytes(frame))
}

// FrameBytes serializes int16 samples as little-endian PCM bytes.
func FrameBytes(frame []int16) []byte {
	buf := make([]byte, len(frame)*2)
	for i, s := range frame {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// Transcoder converts raw capture samples into backend-compliant frames:
// float32 in, clamped int16 out, resampled to the backend rate and sliced
// into fixed-size frames.
type Transcoder struct {
	captureRate int
	backendRate int
	acc         *FrameAccumulator
}

// NewTranscoder creates a transcoder from captureRate to backendRate emitting
// frames of frameSize samples.
func NewTranscoder(captureRate, backendRate, frameSize int) *Transcoder {
	return &Transcoder{
		captureRate: captureRate,
		backendRate: backendRate,
		acc:         NewFrameAccumulator(frameSize),
	}
}

// Process converts one capture callback's worth of samples and returns any
// complete frames now available.
func (t *Transcoder) Process(samples []float32) [][]int16 {
	pcm := Int16FromFloat32(samples)
	pcm = Resample(pcm, t.captureRate, t.backendRate)
	return t.acc.Push(pcm)
}

// Flush returns the buffered remainder as a final short frame, or nil if the
// accumulator is empty. The accumulator is reset afterwards.
func (t *Transcoder) Flush() []int16 {
	if t.acc.Pending() == 0 {
		return nil
	}
	rest := make([]int16, len(t.acc.pending))
	copy(rest, t.acc.pending)
	t.acc.Reset()
	return rest
}
