package repo

import (
	"context"

	"github.com/rawises/storefront-api/internal/discount"
)

// Settings implements discount.SettingsRepo over the store_settings table.
type Settings struct {
	db dbtx
}

var _ discount.SettingsRepo = (*Settings)(nil)

// GetSetting returns the raw JSON value, or pgx.ErrNoRows when unset.
func (r *Settings) GetSetting(ctx context.Context, key string) ([]byte, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT value FROM store_settings WHERE key = $1`, key).Scan(&raw)
	return raw, err
}

func (r *Settings) PutSetting(ctx context.Context, key string, value []byte) error {
	_, err := r.db.Exec(ctx, `INSERT INTO store_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, key, value)
	return err
}
