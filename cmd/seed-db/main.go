package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/voucher"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/remote/voucherapi"
	"github.com/xenking/storefront/internal/storage/local"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type seedConfig struct {
	databaseURL  string
	apiKey       string
	apiKeyPepper string
	keyID        string
	userID       string
	role         string
	vouchersFile string
}

func main() {
	var cfg seedConfig

	flag.StringVar(&cfg.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&cfg.apiKey, "api-key", "", "API key to seed (or STOREFRONT_SEED_API_KEY env)")
	flag.StringVar(&cfg.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STOREFRONT_API_KEY_PEPPER env)")
	flag.StringVar(&cfg.keyID, "key-id", "default", "API key id")
	flag.StringVar(&cfg.userID, "user-id", "demo-buyer", "user the API key authenticates as")
	flag.StringVar(&cfg.role, "role", string(order.RoleBuyer), "role bound to the API key: buyer or seller")
	flag.StringVar(&cfg.vouchersFile, "vouchers-file", "", "optional JSON array of vouchers to prime the offline cache")
	flag.Parse()

	if cfg.databaseURL == "" {
		cfg.databaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("STOREFRONT_SEED_API_KEY")
	}
	if cfg.apiKey == "" {
		slog.Error("API key is required: set --api-key or STOREFRONT_SEED_API_KEY")
		os.Exit(1)
	}
	if cfg.apiKeyPepper == "" {
		cfg.apiKeyPepper = os.Getenv("STOREFRONT_API_KEY_PEPPER")
	}
	if !order.Role(cfg.role).Valid() {
		slog.Error("role must be buyer or seller", slog.String("role", cfg.role))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, cfg seedConfig) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, cfg.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), cfg); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	if cfg.vouchersFile != "" {
		cache := local.NewVoucherCache(postgres.NewKVStore(pool))
		if err := seedVouchers(ctx, cache, cfg.vouchersFile); err != nil {
			return errors.Wrap(err, "seed vouchers")
		}
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, cfg seedConfig) error {
	slog.Info("seeding API key", slog.String("id", cfg.keyID), slog.String("role", cfg.role))

	info := auth.APIKeyInfo{
		ID:      cfg.keyID,
		KeyHash: handler.HashKey([]byte(cfg.apiKeyPepper), cfg.apiKey),
		Name:    "Seeded " + cfg.role + " key",
		UserID:  cfg.userID,
		Role:    order.Role(cfg.role),
	}
	if err := repo.Upsert(ctx, info); err != nil {
		return errors.Wrapf(err, "upsert API key %s", cfg.keyID)
	}

	slog.Info("upserted API key",
		slog.String("id", info.ID),
		slog.String("user_id", info.UserID),
	)
	return nil
}

func seedVouchers(ctx context.Context, cache voucher.Cache, path string) error {
	slog.Info("reading vouchers file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read vouchers file")
	}

	records, err := voucherapi.DecodeRecords(data)
	if err != nil {
		return errors.Wrap(err, "parse vouchers JSON")
	}

	list := voucher.SanitizeAll(records, time.Now())
	if err := cache.Store(ctx, list); err != nil {
		return errors.Wrap(err, "store vouchers")
	}

	slog.Info("cached vouchers", slog.Int("count", len(list)))
	return nil
}
