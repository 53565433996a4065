package audio

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radio-station/internal/audio/mocks"
)

func sine(rate int, d time.Duration, amp float64) *Track {
	n := SamplesFor(rate, d)
	s := make([]float64, n)
	for i := range s {
		s[i] = amp * math.Sin(2*math.Pi*440*float64(i)/float64(rate))
	}
	return NewTrack(rate, s)
}

func TestWAVRoundTrip(t *testing.T) {
	src := sine(24000, 200*time.Millisecond, 0.5)
	data, err := EncodeWAV(src)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[:4]))

	got, err := DecodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, 24000, got.Rate)
	require.Equal(t, src.Len(), got.Len())
	for i := range src.Samples {
		assert.InDelta(t, src.Samples[i], got.Samples[i], 1e-3)
	}

	viaDecode, err := Decode(data, 16000)
	require.NoError(t, err)
	assert.Equal(t, 24000, viaDecode.Rate)

	_, err = DecodeWAV([]byte("not a wav file at all"))
	assert.Error(t, err)
}

func TestDecodePCM16(t *testing.T) {
	tr, err := Decode([]byte{0x00, 0x40, 0x00, 0xc0}, 24000)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -0.5}, tr.Samples)
}

func TestCrossfadeLength(t *testing.T) {
	a := NewTrack(10, []float64{1, 1, 1, 1})
	b := NewTrack(10, []float64{0, 0, 0})
	got := Crossfade(a, b, 2)
	assert.Equal(t, 5, got.Len())
	assert.Equal(t, []float64{1, 1, 1, 0.5, 0}, got.Samples)

	// 重叠长度不超过较短的音轨
	assert.Equal(t, 4, Crossfade(a, NewTrack(10, []float64{0}), 3).Len())
}

func TestLoopAndSlice(t *testing.T) {
	tr := NewTrack(10, []float64{1, 2, 3})
	assert.Equal(t, []float64{1, 2, 3, 1, 2, 3, 1}, tr.Loop(7).Samples)
	assert.Equal(t, []float64{1, 2}, tr.Loop(2).Samples)
	assert.Equal(t, 5, NewTrack(10, nil).Loop(5).Len())
	assert.Equal(t, []float64{2, 3}, tr.Slice(1, 10).Samples)
}

func TestOverlayAndGain(t *testing.T) {
	got := Overlay(10, NewTrack(10, []float64{0.1, 0.1}), NewTrack(10, []float64{0.2, 0.2, 0.2}))
	assert.InDeltaSlice(t, []float64{0.3, 0.3, 0.2}, got.Samples, 1e-9)

	half := NewTrack(10, []float64{1}).Gain(-6.0206)
	assert.InDelta(t, 0.5, half.Samples[0], 1e-3)

	ramp := NewTrack(10, []float64{1, 1, 1, 1}).GainRamp(1, 3, 0, -20)
	assert.InDelta(t, 1, ramp.Samples[0], 1e-9)
	assert.InDelta(t, 0.1, ramp.Samples[3], 1e-9)
	assert.Less(t, ramp.Samples[2], ramp.Samples[1])
}

func TestSilenceDetection(t *testing.T) {
	rate := 1000
	tr := Silence(rate, 300*time.Millisecond).Append(sine(rate, 200*time.Millisecond, 0.5), Silence(rate, 500*time.Millisecond))
	assert.Equal(t, 300*time.Millisecond, tr.LeadingSilence(-50))
	assert.Equal(t, 500*time.Millisecond, tr.TrailingSilence(-50))
	assert.Equal(t, time.Second, tr.Duration())
}

func TestResample(t *testing.T) {
	tr := sine(48000, time.Second, 0.5)
	got := tr.Resample(24000)
	assert.Equal(t, 24000, got.Rate)
	assert.Equal(t, 24000, got.Len())
	assert.InDelta(t, tr.DBFS(), got.DBFS(), 0.1)
}

func TestMaster(t *testing.T) {
	loud := sine(24000, 500*time.Millisecond, 0.9)
	compressed := loud.Compress(MasterCompressor)
	assert.Less(t, compressed.DBFS(), loud.DBFS())

	mastered := sine(24000, 500*time.Millisecond, 0.2).Master()
	assert.InDelta(t, -0.1, mastered.Peak(), 1e-6)

	silent := Silence(24000, time.Second).Master()
	assert.True(t, math.IsInf(silent.Peak(), -1))
}

func TestMP3Encoder(t *testing.T) {
	runner := &mocks.CommandRunnerMock{RunFunc: func(_ context.Context, name string, args []string, stdin []byte) ([]byte, error) {
		return []byte("ID3mp3"), nil
	}}
	enc := NewMP3Encoder(runner, "96k")
	out, err := enc.Encode(context.Background(), Silence(24000, 100*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3mp3"), out)

	require.Len(t, runner.RunCalls(), 1)
	call := runner.RunCalls()[0]
	assert.Equal(t, "ffmpeg", call.Name)
	assert.Equal(t, []string{"-hide_banner", "-loglevel", "error", "-f", "wav", "-i", "pipe:0", "-codec:a", "libmp3lame", "-b:a", "96k", "-f", "mp3", "pipe:1"}, call.Args)
	assert.Equal(t, "RIFF", string(call.Stdin[:4]))

	runner.RunFunc = func(context.Context, string, []string, []byte) ([]byte, error) { return nil, errors.New("no ffmpeg") }
	_, err = enc.Encode(context.Background(), Silence(24000, 10*time.Millisecond))
	assert.Error(t, err)
}
