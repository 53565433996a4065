package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"radio-station/internal/storage"
)

// MemoryPersister 内存持久化
type MemoryPersister struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
	saves int
}

// NewMemoryPersister 创建内存持久化
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{snaps: make(map[string]Snapshot)}
}

func (m *MemoryPersister) Save(_ context.Context, runID string, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[runID] = snap
	m.saves++
	return nil
}

func (m *MemoryPersister) Load(_ context.Context, runID string) (Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[runID]
	return snap, ok, nil
}

// Saves 保存次数
func (m *MemoryPersister) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// ObjectPersister 把快照保存到对象存储 runs/{run}/state.json
type ObjectPersister struct {
	store storage.ObjectStore
}

// NewObjectPersister 创建对象存储持久化
func NewObjectPersister(store storage.ObjectStore) *ObjectPersister {
	return &ObjectPersister{store: store}
}

// StateObjectKey 会话快照在对象存储中的路径
func StateObjectKey(runID string) string {
	return fmt.Sprintf("runs/%s/state.json", runID)
}

func (p *ObjectPersister) Save(ctx context.Context, runID string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("序列化会话快照失败: %w", err)
	}
	return p.store.Put(ctx, StateObjectKey(runID), data, "application/json")
}

func (p *ObjectPersister) Load(ctx context.Context, runID string) (Snapshot, bool, error) {
	data, err := p.store.Get(ctx, StateObjectKey(runID))
	if errors.Is(err, storage.ErrNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("解析会话快照失败: %w", err)
	}
	return snap, true, nil
}
