package models

import (
	"strings"
	"unicode/utf8"
)

// Pronunciation 自定义读音
type Pronunciation struct {
	Phrase        string `json:"phrase"`
	Pronunciation string `json:"pronunciation"`
}

// TalkScript 一句台词
type TalkScript struct {
	ID           string  `json:"id,omitempty"`
	RadioCastID  string  `json:"radio_cast_id"`
	SpeakingRate float64 `json:"speaking_rate"`
	Content      string  `json:"content"`
}

// Rate 返回语速, 未设置时为1
func (t TalkScript) Rate() float64 {
	if t.SpeakingRate <= 0 {
		return 1
	}
	return t.SpeakingRate
}

// TalkScriptSegment 一个段落(或续写的一部分)的台词
type TalkScriptSegment struct {
	ID              string          `json:"id"`
	TaskID          string          `json:"task_id"`
	Scripts         []TalkScript    `json:"scripts"`
	ContinueSegment bool            `json:"continue_segment"`
	HandOver        string          `json:"hand_over,omitempty"`
	Pronunciations  []Pronunciation `json:"custom_pronunciations,omitempty"`
}

// TalkScriptText 以 "名字: 内容" 的形式输出台词
func (s TalkScriptSegment) TalkScriptText(casts []RadioCast) string {
	names := make(map[string]string, len(casts))
	for _, c := range casts {
		names[c.ID] = c.Name
	}
	lines := make([]string, 0, len(s.Scripts))
	for _, ts := range s.Scripts {
		name, ok := names[ts.RadioCastID]
		if !ok {
			name = ts.RadioCastID
		}
		lines = append(lines, name+": "+ts.Content)
	}
	return strings.Join(lines, "\n")
}

// Speakers 返回出现过的出演者ID(按首次出现顺序)
func (s TalkScriptSegment) Speakers() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, ts := range s.Scripts {
		if !seen[ts.RadioCastID] {
			seen[ts.RadioCastID] = true
			ids = append(ids, ts.RadioCastID)
		}
	}
	return ids
}

// CharCount 台词总字符数
func (s TalkScriptSegment) CharCount() int {
	n := 0
	for _, ts := range s.Scripts {
		n += utf8.RuneCountInString(ts.Content)
	}
	return n
}

// JoinTalkScripts 把所有段落拼接成完整台本
func JoinTalkScripts(segments []TalkScriptSegment, casts []RadioCast) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, s.TalkScriptText(casts))
	}
	return strings.Join(parts, "\n\n")
}
