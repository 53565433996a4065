package models

import (
	"fmt"
	"strings"
	"time"
)

// CastRole 出演者角色
type CastRole string

const (
	RolePersonality CastRole = "radio personality"
	RoleAssistant   CastRole = "assistant"
	RoleGuest       CastRole = "guest"
)

// RadioCast 出演者
type RadioCast struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Role        CastRole `json:"role"`
	Personality string   `json:"personality"`
	VoiceName   string   `json:"voice_name,omitempty"`
}

// LLMText 生成提供给LLM的出演者描述
func (c RadioCast) LLMText() string {
	return fmt.Sprintf("ID: %s\nName: %s\nRole: %s\nPersonality: %s", c.ID, c.Name, c.Role, c.Personality)
}

// ListenerProgram 听众配置的节目
type ListenerProgram struct {
	ID                string    `json:"id"`
	ListenerID        string    `json:"listener_id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	ProgramMinutes    int       `json:"program_minutes"`
	InsertMusic       bool      `json:"insert_music"`
	NumberOfBroadcast int       `json:"number_of_broadcast"`
	ProMode           bool      `json:"pro_mode"`
	BaseRadioCastIDs  []string  `json:"base_radio_casts"`
	Schedule          string    `json:"schedule,omitempty"`
	CreatedAt         time.Time `json:"created_at,omitempty"`
}

// LLMText 生成提供给LLM的节目描述
func (p ListenerProgram) LLMText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", p.Title)
	fmt.Fprintf(&b, "Description: %s\n", p.Description)
	fmt.Fprintf(&b, "Program Minutes: %d\n", p.ProgramMinutes)
	fmt.Fprintf(&b, "Number Of Broadcast: %d\n", p.NumberOfBroadcast)
	fmt.Fprintf(&b, "Insert Music: %t", p.InsertMusic)
	return b.String()
}

// SegmentKind 内容来源类型
type SegmentKind string

const (
	SegmentRSS      SegmentKind = "rss"
	SegmentWeb      SegmentKind = "web"
	SegmentGmail    SegmentKind = "gmail"
	SegmentCalendar SegmentKind = "calendar"
)

// RSSSource RSS订阅源
type RSSSource struct {
	FeedURL string `json:"feed_url"`
}

// WebSource 网页来源
type WebSource struct {
	URLs []string `json:"urls"`
}

// GmailSource 邮件来源
type GmailSource struct {
	Filter          string `json:"filter"`
	StartOffsetDays int    `json:"start_offset_days"`
	EndOffsetDays   int    `json:"end_offset_days"`
}

// CalendarSource 日历来源
type CalendarSource struct {
	CalendarID      string `json:"calendar_id"`
	StartOffsetDays int    `json:"start_offset_days"`
	EndOffsetDays   int    `json:"end_offset_days"`
}

// ProgramSegment 节目中配置的一个内容来源
type ProgramSegment struct {
	ID                   string      `json:"id"`
	ProgramID            string      `json:"listener_program_id"`
	Kind                 SegmentKind `json:"kind"`
	Title                string      `json:"title"`
	Description          string      `json:"description"`
	Constraints          string      `json:"constraints"`
	Order                int         `json:"order"`
	OverrideRadioCastIDs []string    `json:"override_radio_casts,omitempty"`
	AdditionalGuestIDs   []string    `json:"additional_guests,omitempty"`
	LastReadTimestamp    *time.Time  `json:"last_read_timestamp,omitempty"`

	RSS      *RSSSource      `json:"rss,omitempty"`
	Web      *WebSource      `json:"web,omitempty"`
	Gmail    *GmailSource    `json:"gmail,omitempty"`
	Calendar *CalendarSource `json:"calendar,omitempty"`
}

// Watermark 返回上次读取时间, 未设置时为零值
func (s ProgramSegment) Watermark() time.Time {
	if s.LastReadTimestamp == nil {
		return time.Time{}
	}
	return *s.LastReadTimestamp
}

// Validate 检查来源配置与类型是否一致
func (s ProgramSegment) Validate() error {
	switch s.Kind {
	case SegmentRSS:
		if s.RSS == nil || s.RSS.FeedURL == "" {
			return fmt.Errorf("segment %s: rss feed_url is required", s.ID)
		}
	case SegmentWeb:
		if s.Web == nil || len(s.Web.URLs) == 0 {
			return fmt.Errorf("segment %s: web urls are required", s.ID)
		}
	case SegmentGmail:
		if s.Gmail == nil {
			return fmt.Errorf("segment %s: gmail source is required", s.ID)
		}
	case SegmentCalendar:
		if s.Calendar == nil {
			return fmt.Errorf("segment %s: calendar source is required", s.ID)
		}
	default:
		return fmt.Errorf("segment %s: unknown kind %q", s.ID, s.Kind)
	}
	return nil
}
