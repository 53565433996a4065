// Package artifact 按 (run, 文件名) 保存的二进制产物, 每个文件名只能写入一次
package artifact

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"sort"
	"strings"
	"sync"

	"radio-station/internal/storage"
)

var (
	// ErrExists 同名产物已存在
	ErrExists = errors.New("产物已存在")
	// ErrNotFound 产物不存在
	ErrNotFound = errors.New("产物不存在")
)

// 产物文件名
const (
	AudioName      = "audio.mp3"
	MasterName     = "master.wav"
	NewsletterName = "newsletter.md"
)

// VoiceName 语音产物文件名
func VoiceName(taskID string) string { return fmt.Sprintf("voice_%s.wav", taskID) }

// MusicName 音乐产物文件名
func MusicName(taskID string) string { return fmt.Sprintf("music_%s.wav", taskID) }

// Store 产物存储接口
type Store interface {
	// Save 保存产物并返回版本号, 同名产物已存在时返回ErrExists
	Save(ctx context.Context, runID, name string, data []byte, mime string) (int, error)
	Load(ctx context.Context, runID, name string) ([]byte, error)
	List(ctx context.Context, runID string) ([]string, error)
	Exists(ctx context.Context, runID, name string) (bool, error)
}

// MemoryStore 内存产物存储
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryStore 创建内存产物存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) Save(_ context.Context, runID, name string, data []byte, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.data[runID]
	if !ok {
		run = make(map[string][]byte)
		m.data[runID] = run
	}
	if _, ok := run[name]; ok {
		return 0, fmt.Errorf("%s: %w", name, ErrExists)
	}
	run[name] = append([]byte(nil), data...)
	return 0, nil
}

func (m *MemoryStore) Load(_ context.Context, runID, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[runID][name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) List(_ context.Context, runID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.data[runID]))
	for name := range m.data[runID] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Exists(_ context.Context, runID, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[runID][name]
	return ok, nil
}

// ObjectStore 基于对象存储的产物存储, 路径为 runs/{run}/artifacts/{name}
type ObjectStore struct {
	store storage.ObjectStore
	// 对象存储没有条件写入, 同进程内用锁保证写一次
	mu sync.Mutex
}

// NewObjectStore 创建对象存储产物存储
func NewObjectStore(store storage.ObjectStore) *ObjectStore {
	return &ObjectStore{store: store}
}

// ObjectKey 产物在对象存储中的路径
func ObjectKey(runID, name string) string {
	return path.Join("runs", runID, "artifacts", name)
}

func (s *ObjectStore) Save(ctx context.Context, runID, name string, data []byte, mime string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ObjectKey(runID, name)
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, fmt.Errorf("%s: %w", name, ErrExists)
	}
	if err := s.store.Put(ctx, key, data, mime); err != nil {
		return 0, err
	}
	log.Printf("[run %s] 保存产物 %s (%d 字节)", runID, name, len(data))
	return 0, nil
}

func (s *ObjectStore) Load(ctx context.Context, runID, name string) ([]byte, error) {
	data, err := s.store.Get(ctx, ObjectKey(runID, name))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return data, err
}

func (s *ObjectStore) List(ctx context.Context, runID string) ([]string, error) {
	prefix := ObjectKey(runID, "") + "/"
	objs, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(objs))
	for _, o := range objs {
		names = append(names, strings.TrimPrefix(o.Key, prefix))
	}
	sort.Strings(names)
	return names, nil
}

func (s *ObjectStore) Exists(ctx context.Context, runID, name string) (bool, error) {
	return s.store.Exists(ctx, ObjectKey(runID, name))
}

// RunArtifacts 限定在一个run内的产物视图
type RunArtifacts struct {
	store Store
	runID string
}

// ForRun 返回指定run的产物视图
func ForRun(store Store, runID string) *RunArtifacts {
	return &RunArtifacts{store: store, runID: runID}
}

// RunID 所属run
func (r *RunArtifacts) RunID() string { return r.runID }

func (r *RunArtifacts) Save(ctx context.Context, name string, data []byte, mime string) (int, error) {
	return r.store.Save(ctx, r.runID, name, data, mime)
}

func (r *RunArtifacts) Load(ctx context.Context, name string) ([]byte, error) {
	return r.store.Load(ctx, r.runID, name)
}

func (r *RunArtifacts) List(ctx context.Context) ([]string, error) {
	return r.store.List(ctx, r.runID)
}

func (r *RunArtifacts) Exists(ctx context.Context, name string) (bool, error) {
	return r.store.Exists(ctx, r.runID, name)
}
