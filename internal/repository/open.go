package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ctrlauth/internal/config"
	"ctrlauth/internal/db"
)

// Open builds the credential store selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg *config.Config) (UserRepository, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory, "":
		return NewMemoryRepository(), nil
	case config.BackendJSON:
		return NewJsonDB(cfg.JSONDBPath)
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, storeError("ping redis", err)
		}
		return NewRedisUserRepository(client), nil
	case config.BackendMySQL:
		gormDB, err := db.NewMySQL(cfg.MySQLDSN)
		if err != nil {
			return nil, storeError("open mysql", err)
		}
		if err := db.Migrate(gormDB); err != nil {
			return nil, err
		}
		return NewGormUserRepository(gormDB), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
