package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"radio-station/internal/ai"
	"radio-station/internal/apperr"
	"radio-station/internal/catalog"
	"radio-station/internal/models"
	"radio-station/internal/pipeline"
)

// CalendarEvent 日历事件
type CalendarEvent struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start_time"`
	End         time.Time `json:"end_time"`
	AllDay      bool      `json:"all_day,omitempty"`
	Weather     string    `json:"weather_summary,omitempty"`
}

// CalendarSource 日历事件列表
type CalendarSource interface {
	ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]CalendarEvent, error)
}

// CalendarSourceFactory 用听众令牌创建日历客户端
type CalendarSourceFactory func(ctx context.Context, tok *catalog.OAuthTokens) (CalendarSource, error)

// Forecaster 地点和日期的天气预报
type Forecaster interface {
	Forecast(ctx context.Context, place string, day time.Time) (string, error)
}

// CalendarResearcher 日程调查
type CalendarResearcher struct {
	summarizer
	tokens    catalog.TokenProvider
	newSource CalendarSourceFactory
	weather   Forecaster
}

// NewCalendarResearcher 创建日程调查, weather为nil时不附加天气
func NewCalendarResearcher(llm ai.Completer, language string, tokens catalog.TokenProvider, newSource CalendarSourceFactory, weather Forecaster) *CalendarResearcher {
	return &CalendarResearcher{summarizer: newSummarizer(llm, language), tokens: tokens, newSource: newSource, weather: weather}
}

// Research 列出日期窗口内的事件, 有地点时附加天气
func (c *CalendarResearcher) Research(ctx context.Context, rc *pipeline.RunContext, seg models.ProgramSegment) (models.ResearchResult, error) {
	if seg.Calendar == nil {
		return models.ResearchResult{}, apperr.Newf(apperr.KindPrecondition, "segment %s has no calendar source", seg.ID)
	}
	tok, err := requireScope(ctx, c.tokens, rc.ListenerID, calendar.CalendarEventsReadonlyScope, calendar.CalendarReadonlyScope)
	if err != nil {
		return models.ResearchResult{}, err
	}
	src, err := c.newSource(ctx, tok)
	if err != nil {
		return models.ResearchResult{}, fmt.Errorf("创建日历客户端失败: %w", err)
	}

	now := rc.Now()
	from := now.AddDate(0, 0, seg.Calendar.StartOffsetDays)
	to := now.AddDate(0, 0, seg.Calendar.EndOffsetDays)
	calendarID := seg.Calendar.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	events, err := src.ListEvents(ctx, calendarID, from, to)
	if err != nil {
		return models.ResearchResult{}, apperr.Wrap(err, apperr.KindTransient, "获取日历事件失败")
	}
	if len(events) == 0 {
		rc.Emit(author, fmt.Sprintf("skipped %s. no event found.", seg.Title))
		return models.NoUpdateResult(seg), nil
	}

	if c.weather != nil {
		for i := range events {
			if events[i].Location == "" {
				continue
			}
			w, err := c.weather.Forecast(ctx, events[i].Location, events[i].Start)
			if err != nil {
				log.Printf("获取 %s 的天气失败: %v", events[i].Location, err)
				continue
			}
			events[i].Weather = w
		}
	}

	data, err := json.Marshal(events)
	if err != nil {
		return models.ResearchResult{}, err
	}
	return c.summarize(ctx, "日程调查 "+seg.ID, ai.CalendarResearchPrompt(c.language), "[Events]\n"+string(data), seg)
}

// GoogleCalendar 基于Calendar API的日历客户端
type GoogleCalendar struct {
	svc *calendar.Service
}

// NewGoogleCalendarFactory 返回创建日历客户端的工厂
func NewGoogleCalendarFactory(cfg *oauth2.Config) CalendarSourceFactory {
	return func(ctx context.Context, tok *catalog.OAuthTokens) (CalendarSource, error) {
		svc, err := calendar.NewService(ctx, option.WithTokenSource(TokenSource(ctx, cfg, tok)))
		if err != nil {
			return nil, err
		}
		return &GoogleCalendar{svc: svc}, nil
	}
}

// ListEvents 展开重复事件并按开始时间排序
func (g *GoogleCalendar) ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]CalendarEvent, error) {
	resp, err := g.svc.Events.List(calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(100).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("列出日历事件失败: %w", err)
	}

	events := make([]CalendarEvent, 0, len(resp.Items))
	for _, item := range resp.Items {
		ev := CalendarEvent{Title: item.Summary, Description: item.Description, Location: item.Location}
		ev.Start, ev.AllDay = eventTime(item.Start)
		ev.End, _ = eventTime(item.End)
		events = append(events, ev)
	}
	return events, nil
}

func eventTime(t *calendar.EventDateTime) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.DateTime != "" {
		v, err := time.Parse(time.RFC3339, t.DateTime)
		if err == nil {
			return v, false
		}
	}
	if t.Date != "" {
		v, err := time.Parse("2006-01-02", t.Date)
		if err == nil {
			return v, true
		}
	}
	return time.Time{}, false
}
