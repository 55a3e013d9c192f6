package whisper

import (
	"encoding/binary"
	"testing"
)

func pcm16(samples ...int16) []byte {
	b := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(s))
	}
	return b
}

func TestFloatSamples(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []float32
	}{
		{"empty", nil, []float32{}},
		{"full scale", pcm16(32767, -32768, 0), []float32{32767.0 / 32768, -1, 0}},
		{"half", pcm16(16384, -16384), []float32{0.5, -0.5}},
		{"odd trailing byte", append(pcm16(16384), 0xFF), []float32{0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := floatSamples(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sample[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestAt16k(t *testing.T) {
	pcm := make([]byte, 96) // 48 samples
	tests := []struct {
		rate int
		want int
	}{
		{16000, 96},
		{0, 96},
		{48000, 32},
		{8000, 192},
	}
	for _, tt := range tests {
		if got := at16k(pcm, tt.rate); len(got) != tt.want {
			t.Errorf("at16k(_, %d) = %d bytes, want %d", tt.rate, len(got), tt.want)
		}
	}
}
