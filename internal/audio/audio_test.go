package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWAV(t *testing.T) {
	pcm := make([]byte, 480)
	wav := EncodeWAV(pcm, SampleRate, Channels)

	require.Len(t, wav, 44+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, uint32(SampleRate), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(SampleRate*2), binary.LittleEndian.Uint32(wav[28:32]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(wav[40:44]))
}

func TestValidatePCM(t *testing.T) {
	assert.NoError(t, ValidatePCM([]byte{0, 0, 1, 0}))
	assert.Error(t, ValidatePCM(nil))
	assert.Error(t, ValidatePCM([]byte{0, 0, 1}))
}

func TestSilenceDuration(t *testing.T) {
	pcm := Silence(500)
	assert.Len(t, pcm, 24000)
	assert.Equal(t, 500, DurationMs(pcm, SampleRate, Channels))
	assert.Zero(t, DurationMs(pcm, 0, 1))
}

func TestMIMEHelpers(t *testing.T) {
	assert.Equal(t, "audio/webm", BaseType("audio/webm;codecs=opus"))
	assert.Equal(t, "audio/ogg", BaseType("Audio/OGG; codecs=opus"))
	assert.Equal(t, ".ogg", Extension("audio/ogg;codecs=opus"))
	assert.Equal(t, ".wav", Extension("audio/wav"))
	assert.Equal(t, ".webm", Extension("application/octet-stream"))
	assert.True(t, IsAudio("audio/webm;codecs=opus"))
	assert.False(t, IsAudio("text/plain"))
}
