package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "ctrlauth/internal/errors"
	"ctrlauth/internal/model"
)

const (
	redisKeyPrefix = Namespace + ":"
	scanBatch      = 100
)

// RedisUserRepository stores each user as a JSON value under "<Namespace>:<username>".
// Uniqueness and existence checks use redis' own SET NX / SET XX so they are
// atomic across every process sharing the server.
type RedisUserRepository struct {
	client redis.UniversalClient
}

// NewRedisUserRepository wraps an existing redis client.
func NewRedisUserRepository(client redis.UniversalClient) *RedisUserRepository {
	return &RedisUserRepository{client: client}
}

func redisKey(username string) string {
	return redisKeyPrefix + username
}

func (r *RedisUserRepository) Get(ctx context.Context, username string) (*model.User, error) {
	data, err := r.client.Get(ctx, redisKey(username)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, storeError("get user", err)
	}
	return decodeUser(data)
}

func (r *RedisUserRepository) Insert(ctx context.Context, user *model.User) error {
	user.EnsureID()
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	ok, err := r.client.SetNX(ctx, redisKey(user.Username), payload, 0).Result()
	if err != nil {
		return storeError("insert user", err)
	}
	if !ok {
		return apperrors.ErrUserAlreadyExists
	}
	return nil
}

func (r *RedisUserRepository) Update(ctx context.Context, user *model.User) error {
	existing, err := r.Get(ctx, user.Username)
	if err != nil {
		return err
	}
	user.ID = existing.ID
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	// XX: a concurrent delete wins over this update instead of resurrecting the record.
	ok, err := r.client.SetXX(ctx, redisKey(user.Username), payload, 0).Result()
	if err != nil {
		return storeError("update user", err)
	}
	if !ok {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (r *RedisUserRepository) Delete(ctx context.Context, username string) error {
	n, err := r.client.Del(ctx, redisKey(username)).Result()
	if err != nil {
		return storeError("delete user", err)
	}
	if n == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (r *RedisUserRepository) List(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, redisKeyPrefix+"*", scanBatch).Result()
		if err != nil {
			return nil, storeError("scan users", err)
		}
		if len(keys) > 0 {
			values, err := r.client.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, storeError("read users", err)
			}
			for _, v := range values {
				// nil: deleted between SCAN and MGET.
				s, ok := v.(string)
				if !ok {
					continue
				}
				user, err := decodeUser([]byte(s))
				if err != nil {
					return nil, err
				}
				users = append(users, *user)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return users, nil
}

func (r *RedisUserRepository) Close() error {
	return r.client.Close()
}

func decodeUser(data []byte) (*model.User, error) {
	var user model.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &user, nil
}

var _ UserRepository = (*RedisUserRepository)(nil)
