package research

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"

	"radio-station/config"
	"radio-station/internal/apperr"
	"radio-station/internal/catalog"
)

// NewOAuthConfig 听众授权使用的OAuth客户端配置
func NewOAuthConfig(cfg *config.GoogleConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailReadonlyScope, calendar.CalendarEventsReadonlyScope},
	}
}

// TokenSource 用听众令牌创建会自动刷新的TokenSource
func TokenSource(ctx context.Context, cfg *oauth2.Config, t *catalog.OAuthTokens) oauth2.TokenSource {
	return cfg.TokenSource(ctx, &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       t.Expiry,
	})
}

// requireScope 取得听众令牌并检查权限, 缺少时为前置条件错误, 不重试
func requireScope(ctx context.Context, tokens catalog.TokenProvider, listenerID string, scopes ...string) (*catalog.OAuthTokens, error) {
	if tokens == nil {
		return nil, apperr.New(apperr.KindPrecondition, "no oauth token provider configured")
	}
	tok, err := tokens.GetOAuthTokens(ctx, listenerID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, apperr.Wrapf(err, apperr.KindPrecondition, "listener %s has not authorized google access", listenerID)
	}
	if err != nil {
		return nil, err
	}
	for _, s := range scopes {
		if tok.HasScope(s) {
			return tok, nil
		}
	}
	return nil, apperr.Newf(apperr.KindPrecondition, "listener %s lacks required scope %s", listenerID, strings.Join(scopes, " or ")).
		WithMetadata("listener", listenerID)
}
