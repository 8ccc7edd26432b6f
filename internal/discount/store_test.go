package discount_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rawises/storefront-api/internal/discount"
)

type fakeSettings struct {
	mu    sync.Mutex
	rows  map[string][]byte
	reads int
}

func newFakeSettings() *fakeSettings { return &fakeSettings{rows: map[string][]byte{}} }

func (f *fakeSettings) GetSetting(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	v, ok := f.rows[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return v, nil
}

func (f *fakeSettings) PutSetting(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[key] = value
	return nil
}

func newStore(t *testing.T) (*discount.Store, *fakeSettings) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := newFakeSettings()
	return &discount.Store{Repo: repo, Cache: client, CacheTTL: time.Minute}, repo
}

func TestStoreGetDefaultsWhenMissing(t *testing.T) {
	store, _ := newStore(t)
	got, err := store.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, discount.DefaultConfig().Description, got.Description)
	require.True(t, got.Rate.Equal(decimal.NewFromInt(15)))
}

func TestStoreSaveClampsRate(t *testing.T) {
	store, repo := newStore(t)
	saved, err := store.Save(context.Background(), discount.Config{Enabled: true, Rate: decimal.NewFromInt(75)})
	require.NoError(t, err)
	require.True(t, saved.Rate.Equal(decimal.NewFromInt(50)))

	var persisted discount.Config
	require.NoError(t, json.Unmarshal(repo.rows[discount.SettingKey], &persisted))
	require.True(t, persisted.Rate.Equal(decimal.NewFromInt(50)))
	require.Equal(t, discount.DefaultDescription, persisted.Description)
}

func TestStoreGetUsesCacheAfterFirstRead(t *testing.T) {
	store, repo := newStore(t)
	ctx := context.Background()
	_, err := store.Save(ctx, discount.Config{Enabled: true, Rate: decimal.NewFromInt(10), Description: "x"})
	require.NoError(t, err)

	_, err = store.Get(ctx)
	require.NoError(t, err)
	_, err = store.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repo.reads)
}

func TestStoreClampsExternallyEditedRow(t *testing.T) {
	store, repo := newStore(t)
	repo.rows[discount.SettingKey] = []byte(`{"memberDiscountEnabled":true,"memberDiscountRate":90,"minimumOrderAmount":-10,"description":"edited"}`)
	got, err := store.Get(context.Background())
	require.NoError(t, err)
	require.True(t, got.Rate.Equal(decimal.NewFromInt(50)))
	require.True(t, got.MinimumOrderAmount.IsZero())
}
