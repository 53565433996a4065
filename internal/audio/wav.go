package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DecodeWAV 解码WAV, 多声道混为单声道
func DecodeWAV(data []byte) (*Track, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, errors.New("无效的WAV数据")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("读取WAV数据失败: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 {
		return nil, errors.New("WAV缺少格式信息")
	}

	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(d.BitDepth)
	}
	scale := float64(int64(1) << (depth - 1))
	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			v := float64(buf.Data[i*channels+c])
			if depth == 8 {
				v -= 128
			}
			sum += v / scale
		}
		samples[i] = sum / float64(channels)
	}
	return &Track{Rate: buf.Format.SampleRate, Samples: samples}, nil
}

// EncodeWAV 编码为16位单声道WAV
func EncodeWAV(t *Track) ([]byte, error) {
	ws := &memWriteSeeker{}
	enc := wav.NewEncoder(ws, t.Rate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: t.Rate},
		Data:           toInt16(t.Samples),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("写入WAV失败: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("写入WAV失败: %w", err)
	}
	return ws.buf, nil
}

// DecodePCM16 解码16位小端单声道PCM
func DecodePCM16(data []byte, rate int) *Track {
	n := len(data) / 2
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float64(v) / 32768
	}
	return &Track{Rate: rate, Samples: samples}
}

// Decode 根据数据头选择WAV或原始PCM
func Decode(data []byte, pcmRate int) (*Track, error) {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return DecodeWAV(data)
	}
	return DecodePCM16(data, pcmRate), nil
}

func toInt16(samples []float64) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		s = max(-1, min(1, s))
		out[i] = int(s * 32767)
	}
	return out
}

// memWriteSeeker 内存中的io.WriteSeeker, wav编码器需要回写文件头
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("无效的whence")
	}
	if next < 0 {
		return 0, errors.New("负的偏移量")
	}
	m.pos = int(next)
	return next, nil
}
