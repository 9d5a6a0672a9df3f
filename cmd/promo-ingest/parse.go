package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/pricing"
)

// fileResult holds the rules parsed from one file.
type fileResult struct {
	rules   []pricing.PromoRule
	skipped int
}

// parseLine reads one campaign record:
//
//	CODE,kind,value[,min_subtotal[,description]]
//
// kind is "percentage" or "fixed". A bare CODE gets defaultRule.
func parseLine(fields []string) (pricing.PromoRule, error) {
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	code := pricing.NormalizeCode(fields[0])
	if code == "" {
		return pricing.PromoRule{}, errors.New("empty code")
	}
	if len(fields) == 1 {
		rule := defaultRule
		rule.Code = code
		return rule, nil
	}
	if len(fields) < 3 {
		return pricing.PromoRule{}, errors.Errorf("code %s: expected kind and value", code)
	}

	rule := pricing.PromoRule{Code: code, Kind: pricing.PromoKind(strings.ToLower(fields[1])), Active: true}
	switch rule.Kind {
	case pricing.PromoPercentage, pricing.PromoFixed:
	default:
		return pricing.PromoRule{}, errors.Errorf("code %s: unknown kind %q", code, fields[1])
	}

	value, err := decimal.NewFromString(fields[2])
	if err != nil {
		return pricing.PromoRule{}, errors.Wrapf(err, "code %s: parse value", code)
	}
	if value.IsNegative() || (rule.Kind == pricing.PromoPercentage && value.GreaterThan(decimal.NewFromInt(100))) {
		return pricing.PromoRule{}, errors.Errorf("code %s: value %s out of range", code, value)
	}
	rule.Value = value

	if len(fields) > 3 && fields[3] != "" {
		minSubtotal, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil || minSubtotal < 0 {
			return pricing.PromoRule{}, errors.Errorf("code %s: invalid minimum subtotal %q", code, fields[3])
		}
		rule.MinSubtotal = minSubtotal
	}
	if len(fields) > 4 {
		rule.Description = fields[4]
	}
	return rule, nil
}

// parseFile streams a gzip-compressed campaign file. Malformed records are
// logged and skipped; blank lines and lines starting with # are ignored.
func parseFile(ctx context.Context, path string) (fileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileResult{}, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return fileResult{}, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return parseRecords(ctx, path, gz)
}

func parseRecords(ctx context.Context, name string, r io.Reader) (fileResult, error) {
	var (
		res     fileResult
		lineNum int
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return fileResult{}, err
		}
		lineNum++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cr := csv.NewReader(strings.NewReader(line))
		cr.FieldsPerRecord = -1
		fields, err := cr.Read()
		if err == nil {
			var rule pricing.PromoRule
			rule, err = parseLine(fields)
			if err == nil {
				res.rules = append(res.rules, rule)
				continue
			}
		}
		res.skipped++
		slog.Warn("skipping record",
			slog.String("file", name),
			slog.Int("line", lineNum),
			slog.String("error", err.Error()),
		)
	}
	if err := scanner.Err(); err != nil {
		return fileResult{}, errors.Wrapf(err, "scan %s", name)
	}
	return res, nil
}

// mergeResults flattens per-file results in order. A code seen again in a
// later file replaces the earlier rule.
func mergeResults(results []fileResult) (rules []pricing.PromoRule, skipped int) {
	index := make(map[string]int)
	for _, r := range results {
		skipped += r.skipped
		for _, rule := range r.rules {
			if i, ok := index[rule.Code]; ok {
				rules[i] = rule
				continue
			}
			index[rule.Code] = len(rules)
			rules = append(rules, rule)
		}
	}
	return rules, skipped
}
