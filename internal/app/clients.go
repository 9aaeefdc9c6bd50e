package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/learnhub/internal/pkg/logger"
	"github.com/yungbote/learnhub/internal/realtime/bus"
)

// Clients holds connections shared by the backend. Redis is nil when
// REDIS_ADDR is unset, in which case sessions and auth events stay in
// process.
type Clients struct {
	Redis *goredis.Client
	Bus   bus.Bus
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	if strings.TrimSpace(cfg.RedisAddr) == "" {
		log.Info("REDIS_ADDR unset, using in-process session store and auth bus")
		return Clients{Bus: bus.NewMemoryBus()}, nil
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return Clients{}, fmt.Errorf("redis ping: %w", err)
	}
	return Clients{
		Redis: rdb,
		Bus:   bus.NewRedisBusFromClient(log, rdb, cfg.RedisChannel),
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
