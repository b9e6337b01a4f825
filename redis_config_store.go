package twofa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfigStore is a ready-made ConfigStore on Redis. Tenant settings live
// in one key per tenant so replacement is a single atomic SET; committed
// account configs live in one hash per user, one field per provider type.
//
// Callers with a relational user store can ignore this type and implement
// ConfigStore themselves; the Engine only depends on the interface.
type RedisConfigStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisConfigStore wires a store over an existing Redis client. prefix
// namespaces all keys; leave it empty for the default.
func NewRedisConfigStore(client *redis.Client, prefix string) *RedisConfigStore {
	if prefix == "" {
		prefix = "tfa"
	}
	return &RedisConfigStore{redis: client, prefix: prefix}
}

func (s *RedisConfigStore) settingsKey(tenantID string) string {
	return s.prefix + ":settings:" + tenantID
}

func (s *RedisConfigStore) accountKey(tenantID, userID string) string {
	return s.prefix + ":acct:" + tenantID + ":" + userID
}

// GetSettings returns the tenant's stored provider set.
func (s *RedisConfigStore) GetSettings(ctx context.Context, tenantID string) (TwoFactorAuthSettings, error) {
	data, err := s.redis.Get(ctx, s.settingsKey(tenantID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return TwoFactorAuthSettings{}, ErrSettingsNotFound
		}
		return TwoFactorAuthSettings{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var settings TwoFactorAuthSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return TwoFactorAuthSettings{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return settings, nil
}

// PutSettings replaces the tenant's provider set wholesale.
func (s *RedisConfigStore) PutSettings(ctx context.Context, tenantID string, settings TwoFactorAuthSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.settingsKey(tenantID), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// GetAccountConfig returns the committed credential of one provider type.
func (s *RedisConfigStore) GetAccountConfig(ctx context.Context, tenantID, userID string, providerType ProviderType) (AccountConfig, error) {
	data, err := s.redis.HGet(ctx, s.accountKey(tenantID, userID), providerType.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return AccountConfig{}, ErrAccountConfigNotFound
		}
		return AccountConfig{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var config AccountConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return AccountConfig{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return config, nil
}

// ListAccountConfigs returns every committed credential of the user,
// regardless of whether its provider type is still enabled; the Engine does
// the read-time filtering.
func (s *RedisConfigStore) ListAccountConfigs(ctx context.Context, tenantID, userID string) ([]AccountConfig, error) {
	fields, err := s.redis.HGetAll(ctx, s.accountKey(tenantID, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	configs := make([]AccountConfig, 0, len(fields))
	for _, raw := range fields {
		var config AccountConfig
		if err := json.Unmarshal([]byte(raw), &config); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		configs = append(configs, config)
	}
	return configs, nil
}

// PutAccountConfig commits a credential, replacing any prior one of the same
// provider type.
func (s *RedisConfigStore) PutAccountConfig(ctx context.Context, tenantID, userID string, config AccountConfig) error {
	data, err := json.Marshal(config)
	if err != nil {
		return err
	}
	if err := s.redis.HSet(ctx, s.accountKey(tenantID, userID), config.Type.String(), data).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteAccountConfig removes a committed credential. Deleting a credential
// that does not exist is not an error.
func (s *RedisConfigStore) DeleteAccountConfig(ctx context.Context, tenantID, userID string, providerType ProviderType) error {
	if err := s.redis.HDel(ctx, s.accountKey(tenantID, userID), providerType.String()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

var _ ConfigStore = (*RedisConfigStore)(nil)
