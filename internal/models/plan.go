package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SegmentType 节目段落类型
type SegmentType string

const (
	SegmentOpening SegmentType = "opening"
	SegmentContent SegmentType = "content"
	SegmentMusic   SegmentType = "music"
	SegmentEnding  SegmentType = "ending"
)

// ResearchEntry 调查结果中的一条
type ResearchEntry struct {
	Title          string `json:"title,omitempty"`
	URL            string `json:"url,omitempty"`
	Summary        string `json:"summary"`
	Description    string `json:"description,omitempty"`
	ReceivedAt     string `json:"received_at,omitempty"`
	StartTime      string `json:"start_time,omitempty"`
	EndTime        string `json:"end_time,omitempty"`
	Location       string `json:"location,omitempty"`
	WeatherSummary string `json:"weather_summary,omitempty"`
}

// ResearchResult 一个内容来源的调查结果
type ResearchResult struct {
	ID                 string          `json:"id"`
	Kind               SegmentKind     `json:"kind"`
	SegmentTitle       string          `json:"segment_title"`
	SegmentDescription string          `json:"segment_description"`
	SegmentConstraints string          `json:"segment_constraints"`
	Summary            string          `json:"summary"`
	Description        string          `json:"description"`
	Entries            []ResearchEntry `json:"entries"`
	NoUpdate           bool            `json:"no_update,omitempty"`
}

const noUpdateText = "No updated content"

// NoUpdateResult 没有新内容时的结果
func NoUpdateResult(seg ProgramSegment) ResearchResult {
	return ResearchResult{
		ID:                 seg.ID,
		Kind:               seg.Kind,
		SegmentTitle:       seg.Title,
		SegmentDescription: seg.Description,
		SegmentConstraints: seg.Constraints,
		Summary:            noUpdateText,
		Description:        noUpdateText,
		Entries:            []ResearchEntry{},
		NoUpdate:           true,
	}
}

// SegmentPlan 节目结构中的一个段落
type SegmentPlan struct {
	Title             string      `json:"title"`
	ProgramSegmentIDs []string    `json:"program_segment_ids"`
	SegmentNo         int         `json:"segment_no"`
	SegmentSeconds    float64     `json:"segment_seconds"`
	IsMusic           bool        `json:"is_music"`
	Description       string      `json:"description"`
	Constraints       string      `json:"constraints"`
	SegmentType       SegmentType `json:"segment_type"`
	BackgroundMusic   string      `json:"background_music,omitempty"`
	RadioCasts        []RadioCast `json:"radio_casts,omitempty"`
	MusicBPM          *float64    `json:"music_bpm,omitempty"`
}

// NeedsMusic 是否需要作曲
func (s SegmentPlan) NeedsMusic() bool {
	return s.IsMusic || strings.TrimSpace(s.BackgroundMusic) != ""
}

// TaskID 段落对应的写作和作曲任务ID
func (s SegmentPlan) TaskID() string {
	return strconv.Itoa(s.SegmentNo)
}

// LLMText 生成提供给LLM的段落描述
func (s SegmentPlan) LLMText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Segment No: %d\n", s.SegmentNo)
	fmt.Fprintf(&b, "Title: %s\n", s.Title)
	fmt.Fprintf(&b, "Type: %s\n", s.SegmentType)
	fmt.Fprintf(&b, "Seconds: %.0f\n", s.SegmentSeconds)
	fmt.Fprintf(&b, "Description: %s\n", s.Description)
	fmt.Fprintf(&b, "Constraints: %s\n", s.Constraints)
	if s.BackgroundMusic != "" {
		fmt.Fprintf(&b, "Background Music: %s\n", s.BackgroundMusic)
	}
	names := make([]string, 0, len(s.RadioCasts))
	for _, c := range s.RadioCasts {
		names = append(names, c.Name)
	}
	fmt.Fprintf(&b, "Radio Casts: %s", strings.Join(names, ", "))
	return b.String()
}

// ProgramPlan 节目结构
type ProgramPlan struct {
	Title             string        `json:"title"`
	ListenerID        string        `json:"listener_id"`
	ListenerProgramID string        `json:"listener_program_id"`
	Description       string        `json:"description"`
	ProgramSeconds    float64       `json:"program_seconds"`
	Segments          []SegmentPlan `json:"segments"`
}

// LLMText 生成提供给LLM的节目结构描述
func (p ProgramPlan) LLMText(includeSegments bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\nDescription: %s\nProgram Seconds: %.0f", p.Title, p.Description, p.ProgramSeconds)
	if includeSegments {
		for _, s := range p.Segments {
			b.WriteString("\n------\n")
			b.WriteString(s.LLMText())
		}
	}
	return b.String()
}

// ResultsJSON 将调查结果序列化为LLM输入
func ResultsJSON(results []ResearchResult) string {
	data, err := json.Marshal(results)
	if err != nil {
		return "[]"
	}
	return string(data)
}
