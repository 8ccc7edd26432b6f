package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"strings"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rawises/storefront-api/internal/catalog"
	"github.com/rawises/storefront-api/internal/config"
	"github.com/rawises/storefront-api/internal/db"
	"github.com/rawises/storefront-api/internal/discount"
	"github.com/rawises/storefront-api/internal/obs"
	"github.com/rawises/storefront-api/internal/repo"
)

func main() {
	skipMigrate := flag.Bool("skip-migrate", false, "do not apply migrations before seeding")
	adminEmail := flag.String("admin-email", os.Getenv("SEED_ADMIN_EMAIL"), "admin account e-mail")
	adminPassword := flag.String("admin-password", os.Getenv("SEED_ADMIN_PASSWORD"), "admin account password")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger("rawises-seeder", "console", cfg.LogLevel)
	ctx := context.Background()

	if !*skipMigrate {
		if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
			logger.Fatal().Err(err).Msg("migrate database")
		}
	}

	pool, err := db.Connect(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: 2, ApplicationName: "rawises-seeder"})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	repos := repo.New(pool)

	for _, p := range seedProducts() {
		if err := repos.Products.UpsertProduct(ctx, p); err != nil {
			logger.Fatal().Err(err).Str("sku", p.SKU).Msg("seed product")
		}
	}
	logger.Info().Int("count", len(seedProducts())).Msg("products seeded")

	switch _, err := repos.Settings.GetSetting(ctx, discount.SettingKey); {
	case errors.Is(err, pgx.ErrNoRows):
		store := &discount.Store{Repo: repos.Settings}
		if _, err := store.Save(ctx, discount.DefaultConfig()); err != nil {
			logger.Fatal().Err(err).Msg("seed member discount")
		}
		logger.Info().Msg("member discount seeded")
	case err != nil:
		logger.Fatal().Err(err).Msg("read member discount")
	default:
		logger.Info().Msg("member discount already configured")
	}

	seedAdmin(ctx, repos, strings.TrimSpace(*adminEmail), *adminPassword, logger)
}

func seedAdmin(ctx context.Context, repos repo.Repos, email, password string, logger zerolog.Logger) {
	if email == "" || password == "" {
		logger.Info().Msg("admin credentials not provided, skipping admin")
		return
	}
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		logger.Fatal().Err(err).Msg("hash admin password")
	}
	if err := repos.Users.UpsertAdmin(ctx, "Administrator", strings.ToLower(email), hash); err != nil {
		logger.Fatal().Err(err).Msg("seed admin")
	}
	logger.Info().Str("email", email).Msg("admin seeded")
}

func seedProducts() []catalog.Product {
	d := decimal.RequireFromString
	return []catalog.Product{
		{
			ID:            "7a0c1f0e-1c7e-4d1a-9f3b-0d3f5b6a1001",
			Name:          "Hydrating Face Serum 30 ml",
			Description:   "Hyaluronic acid serum for daily hydration.",
			Brand:         "Lumera",
			Categories:    []string{"skin-care", "serum"},
			Tags:          []string{"hydrating", "vegan"},
			Slug:          "hydrating-face-serum-30ml",
			SKU:           "LUM-SER-030",
			Barcode:       "8690000000011",
			SalePrice:     d("349.90"),
			DiscountPrice: d("299.90"),
			Stock:         120,
			IsActive:      true,
		},
		{
			ID:          "7a0c1f0e-1c7e-4d1a-9f3b-0d3f5b6a1002",
			Name:        "Matte Lipstick Ruby",
			Description: "Long wearing matte lipstick.",
			Brand:       "Velour",
			Categories:  []string{"makeup", "lips"},
			Tags:        []string{"matte"},
			Slug:        "matte-lipstick-ruby",
			SKU:         "VEL-LIP-RBY",
			Barcode:     "8690000000028",
			SalePrice:   d("189.00"),
			Stock:       300,
			IsActive:    true,
		},
		{
			ID:            "7a0c1f0e-1c7e-4d1a-9f3b-0d3f5b6a1003",
			Name:          "Volume Mascara Black",
			Brand:         "Velour",
			Categories:    []string{"makeup", "eyes"},
			Slug:          "volume-mascara-black",
			SKU:           "VEL-MAS-BLK",
			SalePrice:     d("229.50"),
			DiscountPrice: d("199.00"),
			Stock:         80,
			IsActive:      true,
		},
		{
			ID:         "7a0c1f0e-1c7e-4d1a-9f3b-0d3f5b6a1004",
			Name:       "Argan Oil Shampoo 400 ml",
			Brand:      "Nuvia",
			Categories: []string{"hair-care"},
			Tags:       []string{"argan"},
			Slug:       "argan-oil-shampoo-400ml",
			SKU:        "NUV-SHA-400",
			SalePrice:  d("129.90"),
			Stock:      0,
			IsActive:   true,
		},
		{
			ID:         "7a0c1f0e-1c7e-4d1a-9f3b-0d3f5b6a1005",
			Name:       "SPF 50 Sun Cream",
			Brand:      "Lumera",
			Categories: []string{"skin-care", "sun"},
			Slug:       "spf-50-sun-cream",
			SKU:        "LUM-SUN-050",
			SalePrice:  d("419.00"),
			Stock:      45,
			IsActive:   false,
		},
	}
}
