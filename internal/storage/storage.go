// Package storage 对象存储抽象, 生产环境使用MinIO, 测试使用内存实现
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("对象不存在")

// ObjectInfo 对象元信息
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// ObjectStore 对象存储接口
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}
