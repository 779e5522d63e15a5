package chat

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxpadi-client/internal/models"
)

// makeWAV encodes a sine tone with the given layout
func makeWAV(t *testing.T, sampleRate, bitDepth, channels int, seconds float64) []byte {
	t.Helper()

	frames := int(float64(sampleRate) * seconds)
	amplitude := float64(int(1)<<(bitDepth-1) - 1)
	data := make([]int, 0, frames*channels)
	for i := range frames {
		v := int(amplitude * 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		if bitDepth == 8 {
			v += 128
		}
		for range channels {
			data = append(data, v)
		}
	}

	f, err := os.CreateTemp(t.TempDir(), "src-*.wav")
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}))
	require.NoError(t, enc.Close())

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	out, err := io.ReadAll(f)
	require.NoError(t, err)
	return out
}

func decodeWAV(t *testing.T, data []byte) (*wav.Decoder, *audio.IntBuffer) {
	t.Helper()
	dec := wav.NewDecoder(bytes.NewReader(data))
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	return dec, buf
}

func TestNormalizeVoice_CanonicalFormat(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		bitDepth   int
		channels   int
	}{
		{"48k stereo 16-bit", 48000, 16, 2},
		{"44.1k mono 24-bit", 44100, 24, 1},
		{"8k mono 8-bit", 8000, 8, 1},
		{"16k mono 16-bit", 16000, 16, 1},
	}

	at := time.UnixMilli(1_700_000_000_123)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := makeWAV(t, tt.sampleRate, tt.bitDepth, tt.channels, 0.25)

			out, err := NormalizeVoice(models.Attachment{Name: "clip.wav", Type: "audio/wav", Data: src}, at)
			require.NoError(t, err)
			assert.Equal(t, "voice-1700000000123.wav", out.Name)
			assert.Equal(t, VoiceMIMEType, out.Type)

			dec, buf := decodeWAV(t, out.Data)
			assert.EqualValues(t, VoiceSampleRate, dec.SampleRate)
			assert.EqualValues(t, VoiceBitDepth, dec.BitDepth)
			assert.EqualValues(t, VoiceChannels, dec.NumChans)
			assert.InDelta(t, VoiceSampleRate/4, len(buf.Data), 2)
		})
	}
}

func TestNormalizeVoice_RejectsNonWAV(t *testing.T) {
	_, err := NormalizeVoice(models.Attachment{Name: "voice.webm", Type: "audio/webm", Data: []byte("\x1aE\xdf\xa3webm")}, time.Now())
	assert.ErrorIs(t, err, ErrUnsupportedAudio)
}

func TestDownmixAndResample(t *testing.T) {
	assert.Equal(t, []int{15, 35}, downmix([]int{10, 20, 30, 40}, 2))
	assert.Equal(t, []int{0, 5, 10, 15}, resample([]int{0, 10, 20, 30}, 2, 4)[:4])
	assert.Len(t, resample(make([]int, 48000), 48000, 16000), 16000)
}

func TestToPCM16(t *testing.T) {
	out, err := toPCM16([]int{0, 128, 255}, 8)
	require.NoError(t, err)
	assert.Equal(t, []int{-32768, 0, 127 << 8}, out)

	_, err = toPCM16([]int{1}, 12)
	assert.Error(t, err)
}

type stubRecorder struct {
	clip models.Attachment
	err  error
}

func (r stubRecorder) Record(ctx context.Context) (models.Attachment, error) {
	return r.clip, r.err
}

func TestSendVoice_SendsNormalizedClipWithoutText(t *testing.T) {
	api := &fakeChatAPI{}
	s := newTestSession(t, api, newMemStore())

	src := makeWAV(t, 44100, 16, 2, 0.1)
	ch, err := s.SendVoice(context.Background(), stubRecorder{clip: models.Attachment{Name: "rec.wav", Type: "audio/wav", Data: src}})
	require.NoError(t, err)
	waitReply(t, ch)

	require.Equal(t, 1, api.callCount())
	call := api.calls[0]
	assert.Empty(t, call.message)
	require.Len(t, call.files, 1)
	assert.Equal(t, VoiceMIMEType, call.files[0].Type)

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[1].Content, "📎 Uploaded: voice-")
	assert.Equal(t, models.AttachmentAudio, models.ClassifyAttachment(msgs[1].File.Type))
}

func TestSendVoice_UnsupportedSendsNothing(t *testing.T) {
	api := &fakeChatAPI{}
	s := newTestSession(t, api, newMemStore())

	_, err := s.SendVoice(context.Background(), stubRecorder{clip: models.Attachment{Name: "rec.webm", Data: []byte("nope")}})
	assert.ErrorIs(t, err, ErrUnsupportedAudio)
	assert.Equal(t, 0, api.callCount())
	assert.Len(t, s.Messages(), 1)
}

func TestFileRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0644))

	clip, err := FileRecorder{Path: path}.Record(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "note.wav", clip.Name)
	assert.Equal(t, []byte("RIFF"), clip.Data)

	_, err = FileRecorder{Path: filepath.Join(t.TempDir(), "missing.wav")}.Record(context.Background())
	assert.Error(t, err)
}
