package discount

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

// SettingKey identifies the member discount row in the settings table.
const SettingKey = "member_discount"

const cacheKey = "settings:" + SettingKey

// SettingsRepo reads and writes raw JSON settings. Missing keys yield pgx.ErrNoRows.
type SettingsRepo interface {
	GetSetting(ctx context.Context, key string) ([]byte, error)
	PutSetting(ctx context.Context, key string, value []byte) error
}

// Store persists the member discount config and caches it in Redis.
type Store struct {
	Repo     SettingsRepo
	Cache    *redis.Client
	CacheTTL time.Duration
}

// Get returns the current config, falling back to DefaultConfig when none was saved.
func (s *Store) Get(ctx context.Context) (Config, error) {
	if s == nil || s.Repo == nil {
		return DefaultConfig(), errors.New("discount: store not configured")
	}
	if cfg, ok := s.fromCache(ctx); ok {
		return cfg.Normalize(), nil
	}
	raw, err := s.Repo.GetSetting(ctx, SettingKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("discount: load setting: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("discount: decode setting: %w", err)
	}
	cfg = cfg.Normalize()
	s.toCache(ctx, cfg)
	return cfg, nil
}

// Save clamps and persists the config, returning the stored value.
func (s *Store) Save(ctx context.Context, cfg Config) (Config, error) {
	if s == nil || s.Repo == nil {
		return Config{}, errors.New("discount: store not configured")
	}
	cfg = cfg.Normalize()
	if cfg.Description == "" {
		cfg.Description = DefaultDescription
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return Config{}, fmt.Errorf("discount: encode setting: %w", err)
	}
	if err := s.Repo.PutSetting(ctx, SettingKey, raw); err != nil {
		return Config{}, fmt.Errorf("discount: save setting: %w", err)
	}
	if s.Cache != nil {
		_ = s.Cache.Del(ctx, cacheKey).Err()
	}
	return cfg, nil
}

func (s *Store) fromCache(ctx context.Context) (Config, bool) {
	if s.Cache == nil {
		return Config{}, false
	}
	raw, err := s.Cache.Get(ctx, cacheKey).Bytes()
	if err != nil {
		return Config{}, false
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, false
	}
	return cfg, true
}

func (s *Store) toCache(ctx context.Context, cfg Config) {
	if s.Cache == nil || s.CacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	_ = s.Cache.Set(ctx, cacheKey, raw, s.CacheTTL).Err()
}
