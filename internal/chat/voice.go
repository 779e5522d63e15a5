package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"taxpadi-client/internal/models"
)

// Canonical voice encoding sent to the backend
const (
	VoiceSampleRate = 16000
	VoiceBitDepth   = 16
	VoiceChannels   = 1
	VoiceMIMEType   = "audio/wav"

	wavFormatPCM = 1
)

// ErrUnsupportedAudio is returned for audio that is not PCM WAV
var ErrUnsupportedAudio = errors.New("unsupported audio format: expected PCM WAV")

// Recorder produces one audio clip
type Recorder interface {
	Record(ctx context.Context) (models.Attachment, error)
}

// FileRecorder "records" by reading an existing audio file
type FileRecorder struct {
	Path string
}

func (r FileRecorder) Record(ctx context.Context) (models.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return models.Attachment{}, err
	}
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return models.Attachment{}, err
	}
	return models.Attachment{
		Name: filepath.Base(r.Path),
		Type: mimeTypeOf(r.Path),
		Data: data,
	}, nil
}

// NormalizeVoice re-encodes a PCM WAV clip of any rate, channel count and
// bit depth as 16 kHz mono 16-bit PCM WAV named voice-<unix-ms>.wav
func NormalizeVoice(clip models.Attachment, at time.Time) (models.Attachment, error) {
	dec := wav.NewDecoder(bytes.NewReader(clip.Data))
	if !dec.IsValidFile() || dec.WavAudioFormat != wavFormatPCM {
		return models.Attachment{}, fmt.Errorf("%w: %s", ErrUnsupportedAudio, clip.Name)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return models.Attachment{}, fmt.Errorf("failed to decode %s: %w", clip.Name, err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate < 1 {
		return models.Attachment{}, fmt.Errorf("%w: %s has no audio format", ErrUnsupportedAudio, clip.Name)
	}

	samples, err := toPCM16(buf.Data, int(dec.BitDepth))
	if err != nil {
		return models.Attachment{}, fmt.Errorf("%w: %s: %v", ErrUnsupportedAudio, clip.Name, err)
	}
	mono := downmix(samples, buf.Format.NumChannels)
	resampled := resample(mono, buf.Format.SampleRate, VoiceSampleRate)

	data, err := encodeWAV(resampled)
	if err != nil {
		return models.Attachment{}, err
	}

	return models.Attachment{
		Name: fmt.Sprintf("voice-%d.wav", at.UnixMilli()),
		Type: VoiceMIMEType,
		Data: data,
	}, nil
}

// toPCM16 scales samples of the given bit depth to signed 16-bit range.
// 8-bit WAV samples are unsigned.
func toPCM16(data []int, bitDepth int) ([]int, error) {
	out := make([]int, len(data))
	switch bitDepth {
	case 8:
		for i, v := range data {
			out[i] = (v - 128) << 8
		}
	case 16:
		copy(out, data)
	case 24:
		for i, v := range data {
			out[i] = v >> 8
		}
	case 32:
		for i, v := range data {
			out[i] = v >> 16
		}
	default:
		return nil, fmt.Errorf("bit depth %d", bitDepth)
	}
	return out, nil
}

// downmix averages interleaved channels into one
func downmix(samples []int, channels int) []int {
	if channels == 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int, frames)
	for f := range frames {
		sum := 0
		for c := range channels {
			sum += samples[f*channels+c]
		}
		out[f] = sum / channels
	}
	return out
}

// resample converts mono samples between rates with linear interpolation
func resample(samples []int, from, to int) []int {
	if from == to || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	if n < 1 {
		n = 1
	}
	out := make([]int, n)
	ratio := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = int(float64(samples[j])*(1-frac) + float64(samples[j+1])*frac)
	}
	return out
}

// encodeWAV writes 16 kHz mono 16-bit samples. The encoder needs a seekable
// writer to patch the header sizes, so it goes through a temp file.
func encodeWAV(samples []int) ([]byte, error) {
	f, err := os.CreateTemp("", "taxpadi-voice-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create voice file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	enc := wav.NewEncoder(f, VoiceSampleRate, VoiceBitDepth, VoiceChannels, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: VoiceChannels, SampleRate: VoiceSampleRate},
		Data:           samples,
		SourceBitDepth: VoiceBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to encode voice: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish voice encoding: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}

func mimeTypeOf(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return defaultMIMEType
}
