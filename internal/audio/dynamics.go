package audio

import (
	"math"
	"time"
)

// Dynamics 压缩/限幅参数
type Dynamics struct {
	ThresholdDB float64
	Ratio       float64
	Attack      time.Duration
	Release     time.Duration
}

// MasterCompressor 母带压缩
var MasterCompressor = Dynamics{ThresholdDB: -20, Ratio: 2.5, Attack: 5 * time.Millisecond, Release: 50 * time.Millisecond}

// MasterLimiter 母带限幅
var MasterLimiter = Dynamics{ThresholdDB: -1, Ratio: 20, Attack: 5 * time.Millisecond, Release: 50 * time.Millisecond}

// Compress 前馈压缩, 包络跟随器按attack/release平滑
func (t *Track) Compress(d Dynamics) *Track {
	out := make([]float64, len(t.Samples))
	if d.Ratio <= 1 {
		copy(out, t.Samples)
		return &Track{Rate: t.Rate, Samples: out}
	}
	attack := coefficient(d.Attack, t.Rate)
	release := coefficient(d.Release, t.Rate)
	env := 0.0
	for i, s := range t.Samples {
		level := math.Abs(s)
		if level > env {
			env = attack*env + (1-attack)*level
		} else {
			env = release*env + (1-release)*level
		}
		envDB := ampToDB(env)
		if envDB > d.ThresholdDB {
			reduced := d.ThresholdDB + (envDB-d.ThresholdDB)/d.Ratio
			s *= dbToAmp(reduced - envDB)
		}
		out[i] = s
	}
	return &Track{Rate: t.Rate, Samples: out}
}

// Normalize 把峰值调整到 -headroomDB
func (t *Track) Normalize(headroomDB float64) *Track {
	peak := t.Peak()
	if math.IsInf(peak, -1) {
		return t.Clone()
	}
	return t.Gain(-headroomDB - peak)
}

// Master 压缩 -> 限幅 -> 归一化
func (t *Track) Master() *Track {
	return t.Compress(MasterCompressor).Compress(MasterLimiter).Normalize(0.1)
}

func coefficient(d time.Duration, rate int) float64 {
	if d <= 0 || rate <= 0 {
		return 0
	}
	return math.Exp(-1 / (d.Seconds() * float64(rate)))
}
