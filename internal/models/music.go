package models

import (
	"fmt"
	"strings"
)

// WeightedPrompt 带权重的音乐提示词
type WeightedPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// MusicConfig 音乐生成参数
type MusicConfig struct {
	BPM              int     `json:"bpm"`
	Density          float64 `json:"density"`
	Brightness       float64 `json:"brightness"`
	Scale            string  `json:"scale"`
	MuteBass         bool    `json:"mute_bass"`
	MuteDrums        bool    `json:"mute_drums"`
	OnlyBassAndDrums bool    `json:"only_bass_and_drums"`
}

// MusicStanza 音乐的一个小节段
type MusicStanza struct {
	Prompts []WeightedPrompt `json:"prompts"`
	Seconds float64          `json:"seconds"`
	Config  MusicConfig      `json:"config"`
}

// PromptText 把加权提示词和参数合成为一段文本
func (s MusicStanza) PromptText() string {
	parts := make([]string, 0, len(s.Prompts)+4)
	for _, p := range s.Prompts {
		parts = append(parts, fmt.Sprintf("%s (weight %.1f)", p.Text, p.Weight))
	}
	parts = append(parts, fmt.Sprintf("%d BPM", s.Config.BPM))
	if s.Config.Scale != "" && s.Config.Scale != "SCALE_UNSPECIFIED" {
		parts = append(parts, "scale "+s.Config.Scale)
	}
	parts = append(parts, fmt.Sprintf("density %.1f", s.Config.Density), fmt.Sprintf("brightness %.1f", s.Config.Brightness))
	if s.Config.OnlyBassAndDrums {
		parts = append(parts, "only bass and drums")
	} else {
		if s.Config.MuteBass {
			parts = append(parts, "no bass")
		}
		if s.Config.MuteDrums {
			parts = append(parts, "no drums")
		}
	}
	return strings.Join(parts, ", ")
}

// NegativePrompt 生成反向提示词
func (s MusicStanza) NegativePrompt() string {
	neg := []string{"vocals"}
	if s.Config.MuteBass && !s.Config.OnlyBassAndDrums {
		neg = append(neg, "bass")
	}
	if s.Config.MuteDrums && !s.Config.OnlyBassAndDrums {
		neg = append(neg, "drums")
	}
	return strings.Join(neg, ", ")
}

// MusicPlan 一首曲子的生成计划
type MusicPlan struct {
	Title   string        `json:"title"`
	Stanzas []MusicStanza `json:"stanzas"`
}

// AverageBPM 各段BPM的平均值
func (p MusicPlan) AverageBPM() float64 {
	if len(p.Stanzas) == 0 {
		return 0
	}
	total := 0
	for _, s := range p.Stanzas {
		total += s.Config.BPM
	}
	return float64(total) / float64(len(p.Stanzas))
}

// TotalSeconds 计划总时长
func (p MusicPlan) TotalSeconds() float64 {
	total := 0.0
	for _, s := range p.Stanzas {
		total += s.Seconds
	}
	return total
}
