package mastering

import (
	"math"
	"time"

	"radio-station/config"
	"radio-station/internal/audio"
	"radio-station/internal/models"
	"radio-station/internal/music"
)

// duckRamp 开场音乐压低到台词下方所用的时长
const duckRamp = time.Second

// restoreRamp 结尾音乐恢复原音量所用的时长
const restoreRamp = 10 * time.Millisecond

// Mixer 按段落类型生成语音层和音乐层.
// 每个段落的音乐层比语音层长一个交叉淡化长度, 拼接时正好被交叉淡化吃掉, 两层始终对齐.
type Mixer struct {
	rate      int
	crossfade int
	tail      int
	gap       int
	duckDB    float64
	leadBars  int
	lead      int
}

// NewMixer 创建混音参数
func NewMixer(cfg config.RadioConfig) *Mixer {
	rate := cfg.SampleRate
	return &Mixer{
		rate:      rate,
		crossfade: audio.SamplesFor(rate, cfg.Crossfade),
		tail:      audio.SamplesFor(rate, cfg.Tail),
		gap:       audio.SamplesFor(rate, cfg.MusicGap),
		duckDB:    cfg.DuckDB,
		leadBars:  cfg.LeadBars,
		lead:      audio.SamplesFor(rate, cfg.DefaultLead),
	}
}

// Layers 返回一个段落的语音层和音乐层, bgm为nil表示没有音乐
func (m *Mixer) Layers(sp models.SegmentPlan, speech, bgm *audio.Track) (voice, bed *audio.Track) {
	if bgm == nil || bgm.Len() == 0 {
		voice = speech.Append(audio.SilenceSamples(m.rate, m.tail-m.crossfade))
		return voice, audio.SilenceSamples(m.rate, voice.Len()+m.crossfade)
	}
	switch {
	case sp.IsMusic:
		voice = speech.Append(audio.SilenceSamples(m.rate, m.gap+bgm.Len()))
		bed = audio.SilenceSamples(m.rate, speech.Len()+m.gap).Append(bgm, audio.SilenceSamples(m.rate, m.crossfade))
	case sp.SegmentType == models.SegmentOpening:
		lead := m.leadSamples(sp.MusicBPM)
		voice = audio.SilenceSamples(m.rate, lead).Append(speech)
		ramp := audio.SamplesFor(m.rate, duckRamp)
		bed = bgm.Loop(voice.Len()+m.crossfade).
			GainRamp(max(0, lead-ramp), lead, 0, m.duckGain(speech, bgm))
	case sp.SegmentType == models.SegmentEnding:
		lead := m.leadSamples(sp.MusicBPM)
		voice = speech.Append(audio.SilenceSamples(m.rate, lead))
		restore := audio.SamplesFor(m.rate, restoreRamp)
		bed = bgm.Loop(voice.Len()+m.crossfade).
			GainRamp(speech.Len(), speech.Len()+restore, m.duckGain(speech, bgm), 0).
			FadeOut(lead + m.crossfade)
	default:
		voice = speech.Append(audio.SilenceSamples(m.rate, m.tail-m.crossfade))
		bed = bgm.Gain(m.duckGain(speech, bgm)).Loop(voice.Len() + m.crossfade)
	}
	return voice, bed
}

// Mix 语音层直接拼接, 音乐层交叉淡化拼接, 叠加到较长一方长度的静音上
func (m *Mixer) Mix(voices, beds []*audio.Track) *audio.Track {
	voice := audio.NewTrack(m.rate, nil).Append(voices...)
	var bed *audio.Track
	for _, b := range beds {
		if bed == nil {
			bed = b
			continue
		}
		bed = audio.Crossfade(bed, b, m.crossfade)
	}
	if bed == nil {
		bed = audio.NewTrack(m.rate, nil)
	}
	canvas := audio.SilenceSamples(m.rate, max(voice.Len(), bed.Len()))
	return audio.Overlay(m.rate, canvas, voice, bed)
}

// leadSamples 开场和结尾的音乐长度, 按BPM取若干小节, 未知时使用默认值
func (m *Mixer) leadSamples(bpm *float64) int {
	if bpm == nil || *bpm <= 0 {
		return m.lead
	}
	return m.leadBars * music.BarSamples(*bpm, m.rate)
}

// duckGain 让音乐比台词低duckDB所需的增益
func (m *Mixer) duckGain(speech, bgm *audio.Track) float64 {
	s, b := speech.DBFS(), bgm.DBFS()
	if math.IsInf(s, 0) || math.IsInf(b, 0) {
		return m.duckDB
	}
	return s + m.duckDB - b
}
