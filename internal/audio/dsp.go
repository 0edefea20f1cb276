package audio

import (
	"encoding/binary"
	"errors"
	"math"
)

// TargetSampleRate is the wire rate for relayed audio: 16 kHz mono PCM16.
const TargetSampleRate = 16000

var ErrOddPayload = errors.New("pcm16 payload has odd length")

// Resample converts in from one rate to another by linear interpolation
// between neighbouring samples. It is not a windowed resampler; aliasing on
// downsampling is accepted.
func Resample(in []float32, from, to int) []float32 {
	if len(in) == 0 || from <= 0 || to <= 0 {
		return nil
	}
	if from == to {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	n := int(math.Round(float64(len(in)) * float64(to) / float64(from)))
	if n < 1 {
		n = 1
	}
	ratio := float64(from) / float64(to)
	last := len(in) - 1
	out := make([]float32, n)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx] + (in[idx+1]-in[idx])*frac
	}
	return out
}

// FloatToPCM16 clamps each sample to [-1, 1] and scales it to int16.
func FloatToPCM16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, v := range in {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = int16(math.Round(float64(v) * math.MaxInt16))
	}
	return out
}

func PCM16ToFloat(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / 32768
	}
	return out
}

func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func DecodePCM16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, ErrOddPayload
	}
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out, nil
}

// RMS returns the root-mean-square energy of samples normalised to [0, 1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func ApplyGain(samples []float32, gain float64) {
	g := float32(gain)
	for i := range samples {
		samples[i] *= g
	}
}

// Interleave copies a mono signal into every channel of an interleaved
// buffer. There is no stereo field; each channel carries the same sample.
func Interleave(mono []int16, channels int) []int16 {
	if channels <= 1 {
		return mono
	}
	out := make([]int16, len(mono)*channels)
	for i, s := range mono {
		base := i * channels
		for c := 0; c < channels; c++ {
			out[base+c] = s
		}
	}
	return out
}

// DecodeFloat32LE reads little-endian float32 samples. Trailing bytes that
// do not form a whole sample are ignored.
func DecodeFloat32LE(data []byte) []float32 {
	n := len(data) / 4
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
