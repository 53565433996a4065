// Package audio 单声道音轨的剪辑、混音和母带处理
package audio

import (
	"math"
	"time"
)

// Track 单声道音轨, 采样值范围[-1, 1]
type Track struct {
	Rate    int
	Samples []float64
}

// NewTrack 创建音轨
func NewTrack(rate int, samples []float64) *Track {
	return &Track{Rate: rate, Samples: samples}
}

// Silence 指定时长的静音
func Silence(rate int, d time.Duration) *Track {
	return &Track{Rate: rate, Samples: make([]float64, SamplesFor(rate, d))}
}

// SilenceSamples 指定采样数的静音
func SilenceSamples(rate, n int) *Track {
	if n < 0 {
		n = 0
	}
	return &Track{Rate: rate, Samples: make([]float64, n)}
}

// SamplesFor 时长对应的采样数
func SamplesFor(rate int, d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * float64(rate)))
}

// Len 采样数
func (t *Track) Len() int { return len(t.Samples) }

// Duration 时长
func (t *Track) Duration() time.Duration {
	if t.Rate == 0 {
		return 0
	}
	return t.sampleDuration(len(t.Samples))
}

// Clone 复制
func (t *Track) Clone() *Track {
	return &Track{Rate: t.Rate, Samples: append([]float64(nil), t.Samples...)}
}

// Append 依次拼接, 返回新音轨
func (t *Track) Append(others ...*Track) *Track {
	n := len(t.Samples)
	for _, o := range others {
		n += len(o.Samples)
	}
	out := make([]float64, 0, n)
	out = append(out, t.Samples...)
	for _, o := range others {
		out = append(out, o.Samples...)
	}
	return &Track{Rate: t.Rate, Samples: out}
}

// Pad 在末尾追加静音
func (t *Track) Pad(d time.Duration) *Track {
	return t.Append(Silence(t.Rate, d))
}

// Slice 取[start, end)区间的采样, 越界时截断
func (t *Track) Slice(start, end int) *Track {
	start = max(0, min(start, len(t.Samples)))
	end = max(start, min(end, len(t.Samples)))
	return &Track{Rate: t.Rate, Samples: append([]float64(nil), t.Samples[start:end]...)}
}

// Loop 循环或截断到正好n个采样
func (t *Track) Loop(n int) *Track {
	out := make([]float64, max(n, 0))
	if len(t.Samples) == 0 {
		return &Track{Rate: t.Rate, Samples: out}
	}
	for i := range out {
		out[i] = t.Samples[i%len(t.Samples)]
	}
	return &Track{Rate: t.Rate, Samples: out}
}

// Gain 整体增益(dB)
func (t *Track) Gain(db float64) *Track {
	g := dbToAmp(db)
	out := make([]float64, len(t.Samples))
	for i, s := range t.Samples {
		out[i] = s * g
	}
	return &Track{Rate: t.Rate, Samples: out}
}

// GainRamp 在[start, end)内把增益从fromDB线性过渡到toDB, end之后保持toDB, start之前保持fromDB
func (t *Track) GainRamp(start, end int, fromDB, toDB float64) *Track {
	out := make([]float64, len(t.Samples))
	span := float64(end - start)
	for i, s := range t.Samples {
		db := fromDB
		switch {
		case i >= end:
			db = toDB
		case i >= start && span > 0:
			db = fromDB + (toDB-fromDB)*float64(i-start)/span
		}
		out[i] = s * dbToAmp(db)
	}
	return &Track{Rate: t.Rate, Samples: out}
}

// FadeIn 开头淡入
func (t *Track) FadeIn(n int) *Track {
	out := t.Clone()
	n = min(n, len(out.Samples))
	for i := 0; i < n; i++ {
		out.Samples[i] *= float64(i) / float64(n)
	}
	return out
}

// FadeOut 结尾淡出
func (t *Track) FadeOut(n int) *Track {
	out := t.Clone()
	l := len(out.Samples)
	n = min(n, l)
	for i := 0; i < n; i++ {
		out.Samples[l-n+i] *= float64(n-i) / float64(n)
	}
	return out
}

// DBFS 均方根电平, 全静音时为-Inf
func (t *Track) DBFS() float64 {
	return rmsDB(t.Samples)
}

// Peak 峰值电平(dBFS)
func (t *Track) Peak() float64 {
	peak := 0.0
	for _, s := range t.Samples {
		peak = max(peak, math.Abs(s))
	}
	return ampToDB(peak)
}

// Crossfade 把b接在a后面, 重叠n个采样; 结果长度为len(a)+len(b)-n
func Crossfade(a, b *Track, n int) *Track {
	n = max(0, min(n, len(a.Samples), len(b.Samples)))
	out := make([]float64, 0, len(a.Samples)+len(b.Samples)-n)
	out = append(out, a.Samples[:len(a.Samples)-n]...)
	for i := 0; i < n; i++ {
		w := float64(i) / float64(n)
		out = append(out, a.Samples[len(a.Samples)-n+i]*(1-w)+b.Samples[i]*w)
	}
	out = append(out, b.Samples[n:]...)
	return &Track{Rate: a.Rate, Samples: out}
}

// Overlay 叠加多个音轨, 长度取最长的一个
func Overlay(rate int, tracks ...*Track) *Track {
	n := 0
	for _, t := range tracks {
		n = max(n, len(t.Samples))
	}
	out := make([]float64, n)
	for _, t := range tracks {
		for i, s := range t.Samples {
			out[i] += s
		}
	}
	return &Track{Rate: rate, Samples: out}
}

// Resample 线性插值重采样
func (t *Track) Resample(rate int) *Track {
	if rate == t.Rate || len(t.Samples) == 0 || t.Rate == 0 {
		return &Track{Rate: rate, Samples: append([]float64(nil), t.Samples...)}
	}
	n := int(math.Round(float64(len(t.Samples)) * float64(rate) / float64(t.Rate)))
	out := make([]float64, n)
	step := float64(t.Rate) / float64(rate)
	last := len(t.Samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = t.Samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = t.Samples[j]*(1-frac) + t.Samples[j+1]*frac
	}
	return &Track{Rate: rate, Samples: out}
}

// LeadingSilence 开头低于阈值的时长, 按10ms分块判断
func (t *Track) LeadingSilence(thresholdDB float64) time.Duration {
	chunk := max(1, t.Rate/100)
	i := 0
	for i < len(t.Samples) {
		end := min(i+chunk, len(t.Samples))
		if rmsDB(t.Samples[i:end]) > thresholdDB {
			break
		}
		i = end
	}
	return t.sampleDuration(i)
}

// TrailingSilence 结尾低于阈值的时长
func (t *Track) TrailingSilence(thresholdDB float64) time.Duration {
	chunk := max(1, t.Rate/100)
	i := len(t.Samples)
	for i > 0 {
		start := max(i-chunk, 0)
		if rmsDB(t.Samples[start:i]) > thresholdDB {
			break
		}
		i = start
	}
	return t.sampleDuration(len(t.Samples) - i)
}

func (t *Track) sampleDuration(n int) time.Duration {
	if t.Rate == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(t.Rate)
}

func rmsDB(samples []float64) float64 {
	if len(samples) == 0 {
		return math.Inf(-1)
	}
	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	return ampToDB(math.Sqrt(sum / float64(len(samples))))
}

func dbToAmp(db float64) float64 {
	return math.Pow(10, db/20)
}

func ampToDB(a float64) float64 {
	if a <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(a)
}
