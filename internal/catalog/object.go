package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"radio-station/internal/models"
	"radio-station/internal/storage"
)

// programDocument catalog/programs/{id}.json 的内容
type programDocument struct {
	Program  models.ListenerProgram  `json:"program"`
	Segments []models.ProgramSegment `json:"segments"`
}

// ObjectCatalog 以JSON文档形式保存在对象存储中的节目配置
type ObjectCatalog struct {
	store storage.ObjectStore
	mu    sync.Mutex
}

// NewObjectCatalog 创建对象存储节目配置
func NewObjectCatalog(store storage.ObjectStore) *ObjectCatalog {
	return &ObjectCatalog{store: store}
}

func programKey(id string) string { return fmt.Sprintf("catalog/programs/%s.json", id) }
func castKey(id string) string { return fmt.Sprintf("catalog/casts/%s.json", id) }
func tokenKey(listener string) string { return fmt.Sprintf("catalog/tokens/%s.json", listener) }

func (c *ObjectCatalog) readJSON(ctx context.Context, key string, out any) error {
	data, err := c.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	return nil
}

func (c *ObjectCatalog) writeJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化 %s 失败: %w", key, err)
	}
	return c.store.Put(ctx, key, data, "application/json")
}

// SaveProgram 保存节目和内容来源
func (c *ObjectCatalog) SaveProgram(ctx context.Context, p models.ListenerProgram, segments []models.ProgramSegment) error {
	return c.writeJSON(ctx, programKey(p.ID), programDocument{Program: p, Segments: segments})
}

// SaveCast 保存出演者
func (c *ObjectCatalog) SaveCast(ctx context.Context, cast models.RadioCast) error {
	return c.writeJSON(ctx, castKey(cast.ID), cast)
}

// SaveTokens 保存听众的OAuth令牌
func (c *ObjectCatalog) SaveTokens(ctx context.Context, listenerID string, t OAuthTokens) error {
	return c.writeJSON(ctx, tokenKey(listenerID), t)
}

func (c *ObjectCatalog) GetProgram(ctx context.Context, programID string) (*models.ListenerProgram, error) {
	var doc programDocument
	if err := c.readJSON(ctx, programKey(programID), &doc); err != nil {
		return nil, err
	}
	return &doc.Program, nil
}

func (c *ObjectCatalog) GetSegments(ctx context.Context, programID string) ([]models.ProgramSegment, error) {
	var doc programDocument
	if err := c.readJSON(ctx, programKey(programID), &doc); err != nil {
		return nil, err
	}
	segments := doc.Segments
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Order < segments[j].Order })
	return segments, nil
}

func (c *ObjectCatalog) GetCasts(ctx context.Context, ids []string) ([]models.RadioCast, error) {
	casts := make([]models.RadioCast, 0, len(ids))
	for _, id := range ids {
		var cast models.RadioCast
		err := c.readJSON(ctx, castKey(id), &cast)
		if errors.Is(err, ErrNotFound) {
			log.Printf("出演者 %s 不存在，已跳过", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		casts = append(casts, cast)
	}
	return casts, nil
}

func (c *ObjectCatalog) ListPrograms(ctx context.Context) ([]models.ListenerProgram, error) {
	objs, err := c.store.List(ctx, "catalog/programs/")
	if err != nil {
		return nil, err
	}
	var programs []models.ListenerProgram
	for _, o := range objs {
		if !strings.HasSuffix(o.Key, ".json") {
			continue
		}
		var doc programDocument
		if err := c.readJSON(ctx, o.Key, &doc); err != nil {
			return nil, err
		}
		programs = append(programs, doc.Program)
	}
	return programs, nil
}

func (c *ObjectCatalog) UpdateWatermarks(ctx context.Context, programID string, marks map[string]time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var doc programDocument
	if err := c.readJSON(ctx, programKey(programID), &doc); err != nil {
		return err
	}
	applyWatermarks(doc.Segments, marks)
	return c.writeJSON(ctx, programKey(programID), doc)
}

func (c *ObjectCatalog) GetOAuthTokens(ctx context.Context, listenerID string) (*OAuthTokens, error) {
	var t OAuthTokens
	if err := c.readJSON(ctx, tokenKey(listenerID), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// applyWatermarks 只前移, 不回退
func applyWatermarks(segments []models.ProgramSegment, marks map[string]time.Time) {
	for i := range segments {
		mark, ok := marks[segments[i].ID]
		if !ok {
			continue
		}
		if mark.After(segments[i].Watermark()) {
			m := mark
			segments[i].LastReadTimestamp = &m
		}
	}
}
