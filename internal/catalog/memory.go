package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"radio-station/internal/models"
)

// Memory 内存节目配置
type Memory struct {
	mu       sync.RWMutex
	programs map[string]models.ListenerProgram
	segments map[string][]models.ProgramSegment
	casts    map[string]models.RadioCast
	tokens   map[string]OAuthTokens
}

// NewMemory 创建内存节目配置
func NewMemory() *Memory {
	return &Memory{
		programs: make(map[string]models.ListenerProgram),
		segments: make(map[string][]models.ProgramSegment),
		casts:    make(map[string]models.RadioCast),
		tokens:   make(map[string]OAuthTokens),
	}
}

// PutProgram 添加节目
func (m *Memory) PutProgram(p models.ListenerProgram, segments ...models.ProgramSegment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.programs[p.ID] = p
	m.segments[p.ID] = append([]models.ProgramSegment(nil), segments...)
}

// PutCasts 添加出演者
func (m *Memory) PutCasts(casts ...models.RadioCast) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range casts {
		m.casts[c.ID] = c
	}
}

// PutTokens 设置令牌
func (m *Memory) PutTokens(listenerID string, t OAuthTokens) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[listenerID] = t
}

func (m *Memory) GetProgram(_ context.Context, programID string) (*models.ListenerProgram, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.programs[programID]
	if !ok {
		return nil, fmt.Errorf("节目 %s: %w", programID, ErrNotFound)
	}
	return &p, nil
}

func (m *Memory) GetSegments(_ context.Context, programID string) ([]models.ProgramSegment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.programs[programID]; !ok {
		return nil, fmt.Errorf("节目 %s: %w", programID, ErrNotFound)
	}
	segments := append([]models.ProgramSegment(nil), m.segments[programID]...)
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Order < segments[j].Order })
	return segments, nil
}

func (m *Memory) GetCasts(_ context.Context, ids []string) ([]models.RadioCast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	casts := make([]models.RadioCast, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.casts[id]; ok {
			casts = append(casts, c)
		}
	}
	return casts, nil
}

func (m *Memory) ListPrograms(_ context.Context) ([]models.ListenerProgram, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	programs := make([]models.ListenerProgram, 0, len(m.programs))
	for _, p := range m.programs {
		programs = append(programs, p)
	}
	sort.Slice(programs, func(i, j int) bool { return programs[i].ID < programs[j].ID })
	return programs, nil
}

func (m *Memory) UpdateWatermarks(_ context.Context, programID string, marks map[string]time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	segments, ok := m.segments[programID]
	if !ok {
		return fmt.Errorf("节目 %s: %w", programID, ErrNotFound)
	}
	applyWatermarks(segments, marks)
	return nil
}

func (m *Memory) GetOAuthTokens(_ context.Context, listenerID string) (*OAuthTokens, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[listenerID]
	if !ok {
		return nil, fmt.Errorf("听众 %s 的令牌: %w", listenerID, ErrNotFound)
	}
	return &t, nil
}
