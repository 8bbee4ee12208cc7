// Command coupon-ingest loads promotional codes from partner code dumps. A
// code is accepted when it appears in at least two of the dumps.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/printshop/internal/domain/coupon"
	"github.com/xenking/printshop/internal/repository"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	numFiles      = 3
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10
	writeChunk    = 1000
)

// codeRule describes the discount rule to apply for a known coupon code.
type codeRule struct {
	discountType coupon.DiscountType
	value        string
	minItems     int
	maxDiscount  string
	description  string
}

var codeRules = map[string]codeRule{
	"CARDSBOGO": {discountType: coupon.DiscountFreeLowest, value: "0", minItems: 2, description: "Cheapest configured unit free (2+ lines)"},
	"HALFPRINT": {discountType: coupon.DiscountPercentage, value: "50", maxDiscount: "100", description: "50% off, up to 100.00"},
	"FLYERDEAL": {discountType: coupon.DiscountFixed, value: "10", description: "10.00 off your order"},
	"GLOSSYUP":  {discountType: coupon.DiscountFixed, value: "5", description: "Premium stock upgrade credit"},
	"PRINTSHOP": {discountType: coupon.DiscountPercentage, value: "15", description: "15% off entire order"},
	"BULKPRINT": {discountType: coupon.DiscountPercentage, value: "20", minItems: 3, description: "20% off orders of 3+ lines"},
}

var defaultRule = codeRule{
	discountType: coupon.DiscountPercentage,
	value:        "10",
	maxDiscount:  "50",
	description:  "Partner promo code: 10% off",
}

// fileResult holds candidate codes found in a single file during pass 2.
type fileResult struct {
	candidates map[string]uint
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing couponbaseN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, dataDir, databaseURL); err != nil {
		lg.Fatal("Coupon ingest failed", zap.Error(err))
	}
	lg.Info("Coupon ingest completed")
}

func run(ctx context.Context, lg *zap.Logger, dataDir, databaseURL string) error {
	files := make([]string, numFiles)
	for i := range numFiles {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("couponbase%d.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	// Pass 1: one bloom filter per file, built concurrently.
	lg.Info("Building bloom filters", zap.Int("files", numFiles))

	filters, err := buildBloomFilters(ctx, lg, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: keep codes seen in 2+ files.
	lg.Info("Finding candidate codes")

	validCodes, err := findValidCodes(ctx, lg, files, filters)
	if err != nil {
		return errors.Wrap(err, "find valid codes")
	}

	lg.Info("Valid codes found", zap.Int("count", len(validCodes)))
	if len(validCodes) == 0 {
		return nil
	}

	rules, err := rulesForCodes(validCodes)
	if err != nil {
		return errors.Wrap(err, "build coupon rules")
	}

	pool, err := repository.NewPool(ctx, databaseURL, repository.PoolConfig{MaxConns: 2})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := writeCoupons(ctx, lg, repository.NewCouponRepository(pool), rules); err != nil {
		return errors.Wrap(err, "write coupons to database")
	}

	return nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, lg *zap.Logger, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, lg, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFile(ctx context.Context, lg *zap.Logger, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) >= minCodeLen && len(code) <= maxCodeLen {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					lg.Info("Bloom filter progress",
						zap.Int("file", idx+1),
						zap.Uint64("codes", count),
					)
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for file %d", idx+1)
		}

		lg.Info("Bloom filter built",
			zap.Int("file", idx+1),
			zap.Uint64("total_codes", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findValidCodes re-streams each file and checks codes against OTHER files' bloom filters.
// A code is valid if it appears in 2 or more files.
func findValidCodes(ctx context.Context, lg *zap.Logger, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findCandidatesInFile(ctx, lg, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge bitmasks from all files.
	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r.candidates {
			merged[code] |= mask
		}
	}

	// Keep codes appearing in 2+ files.
	var valid []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			valid = append(valid, code)
		}
	}

	slices.Sort(valid)
	return valid, nil
}

func findCandidatesInFile(
	ctx context.Context,
	lg *zap.Logger,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		candidates := make(map[string]uint)
		fileBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) < minCodeLen || len(code) > maxCodeLen {
				return
			}

			count++
			if count%progressEvery == 0 {
				lg.Info("Candidate scan progress",
					zap.Int("file", idx+1),
					zap.Uint64("codes", count),
				)
			}

			// Check if this code appears in any OTHER file's bloom filter.
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(code) {
					candidates[code] |= fileBit
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan file %d for candidates", idx+1)
		}

		lg.Info("Candidate scan complete",
			zap.Int("file", idx+1),
			zap.Uint64("total_codes", count),
			zap.Int("candidates", len(candidates)),
		)

		results[idx] = fileResult{candidates: candidates}
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
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
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// rulesForCodes maps accepted codes to coupon rules. Codes without a
// dedicated rule get the default partner discount.
func rulesForCodes(codes []string) ([]coupon.Rule, error) {
	rules := make([]coupon.Rule, 0, len(codes))
	for _, code := range codes {
		r, ok := codeRules[code]
		if !ok {
			r = defaultRule
		}

		value, err := decimal.NewFromString(r.value)
		if err != nil {
			return nil, errors.Wrapf(err, "parse value for code %s", code)
		}
		maxDiscount := decimal.Zero
		if r.maxDiscount != "" {
			if maxDiscount, err = decimal.NewFromString(r.maxDiscount); err != nil {
				return nil, errors.Wrapf(err, "parse max discount for code %s", code)
			}
		}

		rules = append(rules, coupon.Rule{
			Code:         code,
			DiscountType: r.discountType,
			Value:        value,
			MinItems:     r.minItems,
			Description:  r.description,
			MaxDiscount:  maxDiscount,
		})
	}
	return rules, nil
}

// couponWriter stores coupon rules in bulk.
type couponWriter interface {
	UpsertMany(ctx context.Context, rules []coupon.Rule) error
}

// writeCoupons upserts rules in fixed-size batches.
func writeCoupons(ctx context.Context, lg *zap.Logger, w couponWriter, rules []coupon.Rule) error {
	lg.Info("Writing coupons", zap.Int("count", len(rules)))

	written := 0
	for chunk := range slices.Chunk(rules, writeChunk) {
		if err := w.UpsertMany(ctx, chunk); err != nil {
			return errors.Wrapf(err, "upsert batch starting at %s", chunk[0].Code)
		}
		written += len(chunk)
		lg.Info("Write progress", zap.Int("written", written), zap.Int("total", len(rules)))
	}
	return nil
}
