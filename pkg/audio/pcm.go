package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// FrameBytes returns the byte length of one mono PCM16 frame of frameMs
// milliseconds at sampleRate. At 16 kHz a 30 ms frame is 480 samples, i.e.
// 960 bytes. Returns 0 for non-positive inputs.
func FrameBytes(sampleRate, frameMs int) int {
	if sampleRate <= 0 || frameMs <= 0 {
		return 0
	}
	return sampleRate * frameMs / 1000 * BytesPerSample
}

// BytesFor returns the number of PCM16 bytes that hold d of audio. The result
// is rounded down to a whole sample frame.
func BytesFor(d time.Duration, sampleRate, channels int) int {
	if d <= 0 || sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := int64(d) * int64(sampleRate) / int64(time.Second)
	return int(samples) * channels * BytesPerSample
}

// DurationOf returns the playback duration of n PCM16 bytes.
func DurationOf(n, sampleRate, channels int) time.Duration {
	if n <= 0 || sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytesPerSec := int64(sampleRate) * int64(channels) * BytesPerSample
	return time.Duration(int64(n) * int64(time.Second) / bytesPerSec)
}

// ComputeRMS returns the root-mean-square energy of a PCM16 little-endian
// buffer in sample units (0–32768). A trailing odd byte is ignored.
func ComputeRMS(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
