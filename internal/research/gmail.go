package research

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"radio-station/internal/ai"
	"radio-station/internal/apperr"
	"radio-station/internal/catalog"
	"radio-station/internal/models"
	"radio-station/internal/pipeline"
)

const (
	gmailMaxResults = 100
	gmailBatchSize  = 5
)

// Mail 一封邮件
type Mail struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	From       string    `json:"from"`
	Snippet    string    `json:"snippet"`
	Body       string    `json:"body,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// MailSource 邮件搜索
type MailSource interface {
	Search(ctx context.Context, query string, max int64) ([]Mail, error)
}

// MailSourceFactory 用听众令牌创建邮件搜索
type MailSourceFactory func(ctx context.Context, tok *catalog.OAuthTokens) (MailSource, error)

// GmailResearcher 邮件调查
type GmailResearcher struct {
	summarizer
	tokens    catalog.TokenProvider
	newSource MailSourceFactory
}

// NewGmailResearcher 创建邮件调查
func NewGmailResearcher(llm ai.Completer, language string, tokens catalog.TokenProvider, newSource MailSourceFactory) *GmailResearcher {
	return &GmailResearcher{summarizer: newSummarizer(llm, language), tokens: tokens, newSource: newSource}
}

// GmailQuery 由过滤条件和日期窗口生成搜索语句
func GmailQuery(src models.GmailSource, now time.Time) string {
	start := now.AddDate(0, 0, src.StartOffsetDays)
	end := now.AddDate(0, 0, src.EndOffsetDays)
	return strings.TrimSpace(fmt.Sprintf("%s after: %s before: %s", src.Filter, start.Format("2006/01/02"), end.Format("2006/01/02")))
}

// Research 先检查Gmail只读权限, 缺少时不访问邮件服务
func (g *GmailResearcher) Research(ctx context.Context, rc *pipeline.RunContext, seg models.ProgramSegment) (models.ResearchResult, error) {
	if seg.Gmail == nil {
		return models.ResearchResult{}, apperr.Newf(apperr.KindPrecondition, "segment %s has no gmail source", seg.ID)
	}
	tok, err := requireScope(ctx, g.tokens, rc.ListenerID, gmail.GmailReadonlyScope)
	if err != nil {
		return models.ResearchResult{}, err
	}
	src, err := g.newSource(ctx, tok)
	if err != nil {
		return models.ResearchResult{}, fmt.Errorf("创建Gmail客户端失败: %w", err)
	}

	query := GmailQuery(*seg.Gmail, rc.Now())
	rc.Logf("搜索邮件: %s", query)
	mails, err := src.Search(ctx, query, gmailMaxResults)
	if err != nil {
		return models.ResearchResult{}, apperr.Wrap(err, apperr.KindTransient, "搜索邮件失败")
	}
	if len(mails) == 0 {
		rc.Emit(author, fmt.Sprintf("skipped %s. no mail found.", seg.Title))
		return models.NoUpdateResult(seg), nil
	}

	data, err := json.Marshal(mails)
	if err != nil {
		return models.ResearchResult{}, err
	}
	return g.summarize(ctx, "邮件调查 "+seg.ID, ai.GmailResearchPrompt(g.language), "[Mails]\n"+string(data), seg)
}

// GoogleMail 基于Gmail API的邮件搜索
type GoogleMail struct {
	svc *gmail.Service
}

// NewGoogleMailFactory 返回创建Gmail客户端的工厂
func NewGoogleMailFactory(cfg *oauth2.Config) MailSourceFactory {
	return func(ctx context.Context, tok *catalog.OAuthTokens) (MailSource, error) {
		svc, err := gmail.NewService(ctx, option.WithTokenSource(TokenSource(ctx, cfg, tok)))
		if err != nil {
			return nil, err
		}
		return &GoogleMail{svc: svc}, nil
	}
}

// Search 搜索邮件后每5封一批获取详情
func (g *GoogleMail) Search(ctx context.Context, query string, max int64) ([]Mail, error) {
	list, err := g.svc.Users.Messages.List("me").Q(query).MaxResults(max).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("列出邮件失败: %w", err)
	}

	mails := make([]Mail, len(list.Messages))
	for start := 0; start < len(list.Messages); start += gmailBatchSize {
		end := min(start+gmailBatchSize, len(list.Messages))
		eg, egCtx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			id := list.Messages[i].Id
			eg.Go(func() error {
				msg, err := g.svc.Users.Messages.Get("me", id).Format("full").Context(egCtx).Do()
				if err != nil {
					return fmt.Errorf("获取邮件 %s 失败: %w", id, err)
				}
				mails[i] = toMail(msg)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}
	return mails, nil
}

func toMail(msg *gmail.Message) Mail {
	m := Mail{ID: msg.Id, Snippet: msg.Snippet, ReceivedAt: time.UnixMilli(msg.InternalDate)}
	if msg.Payload == nil {
		return m
	}
	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			m.Subject = h.Value
		case "from":
			m.From = h.Value
		}
	}
	m.Body = plainText(msg.Payload)
	return m
}

// plainText 取第一个text/plain部分
func plainText(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(part.MimeType, "text/plain") && part.Body != nil && part.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			data, err = base64.RawURLEncoding.DecodeString(part.Body.Data)
			if err != nil {
				return ""
			}
		}
		return string(data)
	}
	for _, p := range part.Parts {
		if s := plainText(p); s != "" {
			return s
		}
	}
	return ""
}
