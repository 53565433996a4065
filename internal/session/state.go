// Package session 单次节目生成的会话状态
//
// 状态是一个带版本号的键值表, 每次Update合并写入并整体持久化.
// 各阶段只写自己前缀下的键 (research:, program:, writer: ...),
// 并发写入者使用互不相交的键, 所以按键覆盖是安全的.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// Snapshot 会话状态的持久化形式
type Snapshot struct {
	RunID     string                     `json:"run_id"`
	Version   int64                      `json:"version"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Values    map[string]json.RawMessage `json:"values"`
}

// Persister 会话状态持久化接口
type Persister interface {
	Save(ctx context.Context, runID string, snap Snapshot) error
	Load(ctx context.Context, runID string) (Snapshot, bool, error)
}

// State 会话状态
type State struct {
	mu        sync.RWMutex
	runID     string
	version   int64
	updatedAt time.Time
	values    map[string]json.RawMessage
	persister Persister
	now       func() time.Time
}

// New 创建空的会话状态
func New(runID string, p Persister) *State {
	return &State{
		runID:     runID,
		values:    make(map[string]json.RawMessage),
		persister: p,
		now:       time.Now,
	}
}

// Open 加载已有会话状态, 不存在时返回空状态
func Open(ctx context.Context, runID string, p Persister) (*State, bool, error) {
	s := New(runID, p)
	if p == nil {
		return s, false, nil
	}
	snap, ok, err := p.Load(ctx, runID)
	if err != nil {
		return nil, false, fmt.Errorf("加载会话状态失败: %w", err)
	}
	if ok {
		s.version = snap.Version
		s.updatedAt = snap.UpdatedAt
		for k, v := range snap.Values {
			s.values[k] = v
		}
	}
	return s, ok, nil
}

// SetClock 替换时间来源
func (s *State) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// RunID 返回所属的run
func (s *State) RunID() string { return s.runID }

// Get 读取键值并反序列化到out, 键不存在时返回false
func (s *State) Get(key string, out any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("解析会话状态 %s 失败: %w", key, err)
	}
	return true, nil
}

// Has 键是否存在
func (s *State) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[key]
	return ok
}

// Update 合并写入多个键, 版本号加一并持久化; 持久化失败时不修改内存状态
func (s *State) Update(ctx context.Context, delta map[string]any) error {
	if len(delta) == 0 {
		return nil
	}
	encoded := make(map[string]json.RawMessage, len(delta))
	for k, v := range delta {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("序列化会话状态 %s 失败: %w", k, err)
		}
		encoded[k] = data
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]json.RawMessage, len(s.values)+len(encoded))
	for k, v := range s.values {
		next[k] = v
	}
	for k, v := range encoded {
		next[k] = v
	}
	snap := Snapshot{RunID: s.runID, Version: s.version + 1, UpdatedAt: s.now(), Values: next}
	if s.persister != nil {
		if err := s.persister.Save(ctx, s.runID, snap); err != nil {
			return fmt.Errorf("保存会话状态失败: %w", err)
		}
	}
	s.values = next
	s.version = snap.Version
	s.updatedAt = snap.UpdatedAt
	return nil
}

// Version 当前版本号
func (s *State) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Keys 返回指定前缀下的所有键(已排序)
func (s *State) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Snapshot 返回当前状态的拷贝
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := make(map[string]json.RawMessage, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	return Snapshot{RunID: s.runID, Version: s.version, UpdatedAt: s.updatedAt, Values: values}
}

// Value 读取键值的泛型辅助函数
func Value[T any](s *State, key string) (T, bool, error) {
	var v T
	ok, err := s.Get(key, &v)
	return v, ok, err
}

// Set 写入单个键
func (s *State) Set(ctx context.Context, key string, value any) error {
	if err := s.Update(ctx, map[string]any{key: value}); err != nil {
		return err
	}
	log.Printf("[run %s] 更新会话状态 %s", s.runID, key)
	return nil
}
