// Package catalog 听众节目配置和OAuth令牌的读取
package catalog

import (
	"context"
	"errors"
	"slices"
	"time"

	"radio-station/internal/models"
)

// ErrNotFound 节目/出演者/令牌不存在
var ErrNotFound = errors.New("未找到")

// ProgramStore 听众节目配置
type ProgramStore interface {
	GetProgram(ctx context.Context, programID string) (*models.ListenerProgram, error)
	GetSegments(ctx context.Context, programID string) ([]models.ProgramSegment, error)
	GetCasts(ctx context.Context, ids []string) ([]models.RadioCast, error)
	ListPrograms(ctx context.Context) ([]models.ListenerProgram, error)
	// UpdateWatermarks 写回各内容来源的最后读取时间
	UpdateWatermarks(ctx context.Context, programID string, marks map[string]time.Time) error
}

// OAuthTokens 听众授权的Google令牌
type OAuthTokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Scopes       []string  `json:"scopes"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// HasScope 是否包含指定权限
func (t OAuthTokens) HasScope(scope string) bool {
	return slices.Contains(t.Scopes, scope)
}

// TokenProvider OAuth令牌来源
type TokenProvider interface {
	GetOAuthTokens(ctx context.Context, listenerID string) (*OAuthTokens, error)
}
