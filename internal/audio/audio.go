// Package audio holds the PCM and capture helpers shared by the speech
// endpoints.
package audio

import (
	"encoding/binary"
	"fmt"
	"mime"
	"strings"
)

const (
	// SampleRate is the rate of synthesized speech.
	SampleRate = 24000
	// Channels is the channel count of synthesized speech.
	Channels = 1
	// BitsPerSample is the sample width of synthesized speech.
	BitsPerSample = 16

	// MinCaptureBytes is the smallest recording worth sending to the
	// gateway. Shorter blobs are discarded.
	MinCaptureBytes = 500

	// PCMMIMEType describes raw synthesized speech.
	PCMMIMEType = "audio/L16;codec=pcm;rate=24000"
)

// ValidatePCM checks that pcm holds whole 16-bit samples.
func ValidatePCM(pcm []byte) error {
	if len(pcm) == 0 {
		return fmt.Errorf("empty audio")
	}
	if len(pcm)%(BitsPerSample/8*Channels) != 0 {
		return fmt.Errorf("pcm length %d is not a whole number of samples", len(pcm))
	}
	return nil
}

// DurationMs returns the playback length of a PCM buffer.
func DurationMs(pcm []byte, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * channels * (BitsPerSample / 8)
	return len(pcm) * 1000 / bytesPerSec
}

// EncodeWAV wraps 16-bit signed little-endian PCM in a RIFF/WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * BitsPerSample / 8
	blockAlign := channels * BitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(BitsPerSample))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// Silence returns ms milliseconds of silent speech-format PCM.
func Silence(ms int) []byte {
	return make([]byte, SampleRate*Channels*(BitsPerSample/8)*ms/1000)
}

// BaseType returns the media type without parameters, lowercased.
// "audio/webm;codecs=opus" becomes "audio/webm".
func BaseType(mimeType string) string {
	t, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		t, _, _ = strings.Cut(mimeType, ";")
	}
	return strings.ToLower(strings.TrimSpace(t))
}

// Extension returns a file extension for a recording MIME type.
func Extension(mimeType string) string {
	switch BaseType(mimeType) {
	case "audio/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/flac":
		return ".flac"
	default:
		return ".webm"
	}
}

// IsAudio reports whether mimeType names an audio format.
func IsAudio(mimeType string) bool {
	return strings.HasPrefix(BaseType(mimeType), "audio/")
}
