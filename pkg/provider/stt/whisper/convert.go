package whisper

import (
	"encoding/binary"

	"github.com/MrWong99/triggermic/pkg/audio"
)

// inputRate is the only rate whisper.cpp accepts.
const inputRate = 16000

// at16k returns mono PCM16 at [inputRate]. A non-positive rate is taken to
// be 16 kHz already.
func at16k(pcm []byte, sampleRate int) []byte {
	if sampleRate > 0 && sampleRate != inputRate {
		return audio.ResampleMono16(pcm, sampleRate, inputRate)
	}
	return pcm
}

// floatSamples scales PCM16 LE to [-1, 1). A trailing odd byte is dropped.
func floatSamples(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768
	}
	return out
}
