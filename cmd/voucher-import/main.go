// Command voucher-import loads gzip-compressed NDJSON voucher exports into
// the offline voucher cache. Codes that occur more than once across the
// exports are kept only at their first occurrence.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/voucher"
	"github.com/xenking/storefront/internal/remote/voucherapi"
	"github.com/xenking/storefront/internal/storage/local"
	"github.com/xenking/storefront/internal/storage/postgres"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxLineSize   = 1 << 20
)

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing voucher exports")
	flag.StringVar(&pattern, "pattern", "vouchers*.ndjson.gz", "glob for export files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, pattern, databaseURL); err != nil {
		slog.Error("voucher import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("voucher import completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "glob export files")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s in %s", pattern, dataDir)
	}

	// Pass 1: one bloom filter per file, built concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, dupes, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: decode records in file order, checking exact duplicates only
	// for codes a filter flagged.
	slog.Info("pass 2: decoding vouchers")

	records, err := collectRecords(ctx, files, filters, dupes)
	if err != nil {
		return errors.Wrap(err, "collect records")
	}

	list := voucher.SanitizeAll(records, time.Now())
	slog.Info("vouchers ready", slog.Int("count", len(list)))

	if len(list) == 0 {
		slog.Info("no vouchers to store")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	cache := local.NewVoucherCache(postgres.NewKVStore(pool))
	if err := cache.Store(ctx, list); err != nil {
		return errors.Wrap(err, "store vouchers")
	}
	return nil
}

// buildBloomFilters creates one bloom filter per file concurrently. Codes
// that repeat within a single file are returned per file.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, []map[string]struct{}, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	dupes := make([]map[string]struct{}, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			seen := make(map[string]struct{})
			var count uint64

			if err := streamRecords(ctx, f, func(r voucher.Record) {
				if r.Code == "" {
					return
				}
				if filter.TestAndAddString(r.Code) {
					seen[r.Code] = struct{}{}
				}
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("file", i+1), slog.Uint64("records", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", f)
			}

			slog.Info("pass 1 complete", slog.Int("file", i+1), slog.Uint64("records", count))
			filters[i] = filter
			dupes[i] = seen
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return filters, dupes, nil
}

// collectRecords reads every file in order. A code is checked against the
// exact seen set only when a filter says it may occur twice.
func collectRecords(
	ctx context.Context,
	files []string,
	filters []*bloom.BloomFilter,
	dupes []map[string]struct{},
) ([]voucher.Record, error) {
	var (
		records []voucher.Record
		seen    = make(map[string]struct{})
		skipped int
	)

	for i, f := range files {
		if err := streamRecords(ctx, f, func(r voucher.Record) {
			if r.Code != "" && maybeDuplicate(r.Code, i, filters, dupes[i]) {
				if _, ok := seen[r.Code]; ok {
					skipped++
					return
				}
				seen[r.Code] = struct{}{}
			}
			records = append(records, r)
		}); err != nil {
			return nil, errors.Wrapf(err, "decode %s", f)
		}
	}

	slog.Info("pass 2 complete", slog.Int("records", len(records)), slog.Int("duplicates", skipped))
	return records, nil
}

func maybeDuplicate(code string, idx int, filters []*bloom.BloomFilter, within map[string]struct{}) bool {
	if _, ok := within[code]; ok {
		return true
	}
	for j, f := range filters {
		if j != idx && f.TestString(code) {
			return true
		}
	}
	return false
}

// streamRecords opens a gzip-compressed NDJSON file and calls fn for each
// decoded record. Blank lines are skipped.
func streamRecords(ctx context.Context, path string, fn func(voucher.Record)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		r, err := voucherapi.DecodeRecord(data)
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		fn(r)
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
