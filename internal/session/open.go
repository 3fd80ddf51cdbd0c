package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"aliyun_voice_wizard/internal/config"
)

// Open 按配置创建存储，返回的close函数释放底层连接
func Open(cfg config.StorageConfig) (Storage, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case "memory":
		return NewMemoryStorage(), noop, nil
	case "file":
		s, err := NewFileStorage(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("连接Redis失败: %w", err)
		}
		return NewRedisStorage(client, cfg.Redis.Prefix, cfg.Redis.TTL), client.Close, nil
	}
	return nil, nil, fmt.Errorf("未知的存储驱动: %s", cfg.Driver)
}
