package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"radio-station/config"
	"radio-station/internal/session"
	"radio-station/internal/storage"
)

const runsPrefix = "runs/"

func main() {
	days := flag.Int("days", 30, "删除最后更新早于多少天的生成记录")
	dryRun := flag.Bool("dry-run", false, "只列出要删除的记录")
	flag.Parse()

	// 设置日志格式
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("开始清理 %d 天前的生成记录", *days)

	// 加载配置
	cfg := config.LoadConfig()

	// 创建MinIO客户端
	minioClient, err := storage.NewMinioClient(&cfg.MinIO)
	if err != nil {
		log.Fatalf("创建MinIO客户端失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -*days)
	n, err := purge(ctx, minioClient, cutoff, *dryRun)
	if err != nil {
		log.Fatalf("清理失败: %v", err)
	}
	log.Printf("清理完成，共 %d 个生成记录", n)
}

// purge 删除最后更新早于cutoff的run下的全部对象, 返回涉及的run数量
func purge(ctx context.Context, store storage.ObjectStore, cutoff time.Time, dryRun bool) (int, error) {
	objects, err := store.List(ctx, runsPrefix)
	if err != nil {
		return 0, err
	}

	// 按run分组, 记录最新的修改时间
	keys := make(map[string][]string)
	latest := make(map[string]time.Time)
	for _, obj := range objects {
		runID, _, ok := strings.Cut(strings.TrimPrefix(obj.Key, runsPrefix), "/")
		if !ok || runID == "" {
			continue
		}
		keys[runID] = append(keys[runID], obj.Key)
		if obj.LastModified.After(latest[runID]) {
			latest[runID] = obj.LastModified
		}
	}

	persister := session.NewObjectPersister(store)
	purged := 0
	for runID, runKeys := range keys {
		updated := latest[runID]
		if snap, ok, err := persister.Load(ctx, runID); err != nil {
			log.Printf("读取 %s 的会话状态失败: %v", runID, err)
		} else if ok && !snap.UpdatedAt.IsZero() {
			updated = snap.UpdatedAt
		}
		if !updated.Before(cutoff) {
			continue
		}

		purged++
		if dryRun {
			log.Printf("将删除 %s (最后更新 %s, %d 个对象)", runID, updated.Format(time.RFC3339), len(runKeys))
			continue
		}
		for _, key := range runKeys {
			if err := store.Delete(ctx, key); err != nil {
				return purged, err
			}
		}
		log.Printf("已删除 %s (%d 个对象)", runID, len(runKeys))
	}
	return purged, nil
}
