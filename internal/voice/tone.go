package voice

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Defaults for the capture tone played before the student speaks.
const (
	DefaultToneFrequency = 800.0
	DefaultToneDuration  = 0.5
	toneSampleRate       = 16000
)

// wavHeader is a canonical 44-byte PCM WAV header.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// GenerateTone produces a mono 16-bit PCM WAV sine tone. It signals the
// student that answer capture has started.
func GenerateTone(frequency, duration float64) ([]byte, error) {
	if frequency <= 0 {
		return nil, fmt.Errorf("tone frequency must be positive, got %g", frequency)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("tone duration must be positive, got %g", duration)
	}

	n := int(toneSampleRate * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / toneSampleRate
		samples[i] = int16(math.Sin(2*math.Pi*frequency*t) * 32767)
	}

	return encodeWAV(samples, toneSampleRate)
}

// encodeWAV wraps PCM-16 samples in a WAV container.
func encodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	numChannels := uint16(1)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)

	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}
	return buf.Bytes(), nil
}
