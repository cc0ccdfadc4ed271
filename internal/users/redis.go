package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "tourbook:users"
	maxWatchRetries    = 8
)

// RedisBackend stores users as JSON documents with secondary index keys for
// email and reset token digest.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// redisRecord mirrors User including the fields hidden from API responses.
type redisRecord struct {
	ID                  uuid.UUID  `json:"id"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"password_hash"`
	Role                Role       `json:"role"`
	PasswordChangedAt   *time.Time `json:"password_changed_at,omitempty"`
	ResetTokenHash      *string    `json:"reset_token_hash,omitempty"`
	ResetTokenExpiresAt *time.Time `json:"reset_token_expires_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// NewRedisBackend constructs a RedisBackend. An empty prefix selects the default.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) userKey(id uuid.UUID) string   { return r.prefix + ":id:" + id.String() }
func (r *RedisBackend) emailKey(email string) string  { return r.prefix + ":email:" + email }
func (r *RedisBackend) resetKey(digest string) string { return r.prefix + ":reset:" + digest }
func (r *RedisBackend) indexKey() string              { return r.prefix + ":all" }

func (r *RedisBackend) Insert(ctx context.Context, u *User) error {
	data, err := json.Marshal(toRecord(u))
	if err != nil {
		return fmt.Errorf("users: encode record: %w", err)
	}
	claimed, err := r.client.SetNX(ctx, r.emailKey(u.Email), u.ID.String(), 0).Result()
	if err != nil {
		return err
	}
	if !claimed {
		return ErrDuplicateEmail
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.userKey(u.ID), data, 0)
		pipe.SAdd(ctx, r.indexKey(), u.ID.String())
		r.setResetIndex(ctx, pipe, u)
		return nil
	})
	if err != nil {
		_ = r.client.Del(ctx, r.emailKey(u.Email)).Err()
		return err
	}
	return nil
}

func (r *RedisBackend) Update(ctx context.Context, u *User) error {
	_, err := r.mutate(ctx, u.ID, func(*User) (*User, error) {
		return u.Clone(), nil
	})
	return err
}

func (r *RedisBackend) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt, updatedAt time.Time) error {
	_, err := r.mutate(ctx, id, func(u *User) (*User, error) {
		u.ResetTokenHash = &tokenHash
		u.ResetTokenExpiresAt = &expiresAt
		u.UpdatedAt = updatedAt
		return u, nil
	})
	return err
}

func (r *RedisBackend) ClearResetToken(ctx context.Context, id uuid.UUID, tokenHash string, updatedAt time.Time) error {
	_, err := r.mutate(ctx, id, func(u *User) (*User, error) {
		if u.ResetTokenHash == nil || *u.ResetTokenHash != tokenHash {
			return nil, nil
		}
		u.ClearResetToken()
		u.UpdatedAt = updatedAt
		return u, nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// ConsumeResetToken claims the reset index key with GETDEL, so only one
// caller can reach the record for a given digest.
func (r *RedisBackend) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, cred Credential) (*User, error) {
	raw, err := r.client.GetDel(ctx, r.resetKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("users: corrupt index %s: %w", r.resetKey(tokenHash), err)
	}
	return r.mutate(ctx, id, func(u *User) (*User, error) {
		if u.ResetTokenHash == nil || *u.ResetTokenHash != tokenHash || !u.ResetTokenValid(now) {
			return nil, ErrNotFound
		}
		changedAt := cred.ChangedAt
		u.PasswordHash = cred.Hash
		u.PasswordChangedAt = &changedAt
		u.ClearResetToken()
		u.UpdatedAt = changedAt
		return u, nil
	})
}

// mutate rewrites the record of id inside a WATCH transaction, retrying when
// another writer commits first. change receives a copy of the stored record
// and returns the record to write, or nil to leave it as is. Secondary index
// keys follow the new record; a freshly claimed email key is released when
// the write does not commit.
func (r *RedisBackend) mutate(ctx context.Context, id uuid.UUID, change func(*User) (*User, error)) (*User, error) {
	key := r.userKey(id)
	var out *User
	txf := func(tx *redis.Tx) error {
		out = nil
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		existing, err := decodeRecord(data)
		if err != nil {
			return err
		}
		next, err := change(existing.Clone())
		if err != nil || next == nil {
			return err
		}
		encoded, err := json.Marshal(toRecord(next))
		if err != nil {
			return fmt.Errorf("users: encode record: %w", err)
		}
		emailChanged := existing.Email != next.Email
		if emailChanged {
			claimed, err := tx.SetNX(ctx, r.emailKey(next.Email), id.String(), 0).Result()
			if err != nil {
				return err
			}
			if !claimed {
				return ErrDuplicateEmail
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			if emailChanged {
				pipe.Del(ctx, r.emailKey(existing.Email))
			}
			if existing.ResetTokenHash != nil && (next.ResetTokenHash == nil || *existing.ResetTokenHash != *next.ResetTokenHash) {
				pipe.Del(ctx, r.resetKey(*existing.ResetTokenHash))
			}
			r.setResetIndex(ctx, pipe, next)
			return nil
		})
		if err != nil {
			if emailChanged {
				_ = r.client.Del(ctx, r.emailKey(next.Email)).Err()
			}
			return err
		}
		out = next
		return nil
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("users: update %s: %w", id, redis.TxFailedErr)
}

// setResetIndex points the reset digest at the user until the token expires.
func (r *RedisBackend) setResetIndex(ctx context.Context, pipe redis.Pipeliner, u *User) {
	if u.ResetTokenHash == nil || u.ResetTokenExpiresAt == nil {
		return
	}
	ttl := time.Until(*u.ResetTokenExpiresAt)
	if ttl <= 0 {
		return
	}
	pipe.Set(ctx, r.resetKey(*u.ResetTokenHash), u.ID.String(), ttl)
}

func (r *RedisBackend) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	data, err := r.client.Get(ctx, r.userKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeRecord(data)
}

func (r *RedisBackend) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findByIndex(ctx, r.emailKey(email))
}

func (r *RedisBackend) FindByResetToken(ctx context.Context, tokenHash string) (*User, error) {
	u, err := r.findByIndex(ctx, r.resetKey(tokenHash))
	if err != nil {
		return nil, err
	}
	if u.ResetTokenHash == nil || *u.ResetTokenHash != tokenHash {
		return nil, ErrNotFound
	}
	return u, nil
}

func (r *RedisBackend) findByIndex(ctx context.Context, key string) (*User, error) {
	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("users: corrupt index %s: %w", key, err)
	}
	return r.FindByID(ctx, id)
}

func (r *RedisBackend) List(ctx context.Context) ([]User, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []User{}, nil
	}
	keys := make([]string, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		keys = append(keys, r.userKey(id))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]User, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		u, err := decodeRecord([]byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func toRecord(u *User) redisRecord {
	return redisRecord{
		ID:                  u.ID,
		Name:                u.Name,
		Email:               u.Email,
		PasswordHash:        u.PasswordHash,
		Role:                u.Role,
		PasswordChangedAt:   u.PasswordChangedAt,
		ResetTokenHash:      u.ResetTokenHash,
		ResetTokenExpiresAt: u.ResetTokenExpiresAt,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

func decodeRecord(data []byte) (*User, error) {
	var rec redisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("users: decode record: %w", err)
	}
	return &User{
		ID:                  rec.ID,
		Name:                rec.Name,
		Email:               rec.Email,
		PasswordHash:        rec.PasswordHash,
		Role:                rec.Role,
		PasswordChangedAt:   rec.PasswordChangedAt,
		ResetTokenHash:      rec.ResetTokenHash,
		ResetTokenExpiresAt: rec.ResetTokenExpiresAt,
		CreatedAt:           rec.CreatedAt,
		UpdatedAt:           rec.UpdatedAt,
	}, nil
}

var _ Backend = (*RedisBackend)(nil)
