package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/pricing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		fields  []string
		want    pricing.PromoRule
		wantErr string
	}{
		{
			name:   "BareCode",
			fields: []string{" spring "},
			want:   pricing.PromoRule{Code: "SPRING", Kind: pricing.PromoPercentage, Value: decimal.NewFromInt(10), Description: defaultRule.Description, Active: true},
		},
		{
			name:   "Full",
			fields: []string{"big5", "FIXED", "500", "2000", "Five off"},
			want:   pricing.PromoRule{Code: "BIG5", Kind: pricing.PromoFixed, Value: decimal.NewFromInt(500), MinSubtotal: 2000, Description: "Five off", Active: true},
		},
		{name: "Empty", fields: []string{"  "}, wantErr: "empty code"},
		{name: "MissingValue", fields: []string{"X", "fixed"}, wantErr: "expected kind and value"},
		{name: "UnknownKind", fields: []string{"X", "bogo", "1"}, wantErr: "unknown kind"},
		{name: "BadValue", fields: []string{"X", "fixed", "ten"}, wantErr: "parse value"},
		{name: "PercentOver100", fields: []string{"X", "percentage", "101"}, wantErr: "out of range"},
		{name: "NegativeValue", fields: []string{"X", "fixed", "-1"}, wantErr: "out of range"},
		{name: "BadMinimum", fields: []string{"X", "fixed", "1", "-5"}, wantErr: "minimum subtotal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLine(tt.fields)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Code, got.Code)
			assert.Equal(t, tt.want.Kind, got.Kind)
			assert.True(t, tt.want.Value.Equal(got.Value), "value %s", got.Value)
			assert.Equal(t, tt.want.MinSubtotal, got.MinSubtotal)
			assert.Equal(t, tt.want.Description, got.Description)
			assert.True(t, got.Active)
		})
	}
}

func TestParseRecords_SkipsMalformed(t *testing.T) {
	input := strings.Join([]string{
		"# campaign",
		"",
		"ALPHA,percentage,15",
		"BETA,nope,1",
		`"GAMMA",fixed,250,0,"Save, now"`,
	}, "\n")

	res, err := parseRecords(context.Background(), "test", strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, res.skipped)
	require.Len(t, res.rules, 2)
	assert.Equal(t, "ALPHA", res.rules[0].Code)
	assert.Equal(t, "Save, now", res.rules[1].Description)
}

func TestMergeResults_LaterFileWins(t *testing.T) {
	rules, skipped := mergeResults([]fileResult{
		{rules: []pricing.PromoRule{{Code: "A", Description: "first"}, {Code: "B"}}, skipped: 1},
		{rules: []pricing.PromoRule{{Code: "A", Description: "second"}}, skipped: 2},
	})
	assert.Equal(t, 3, skipped)
	require.Len(t, rules, 2)
	assert.Equal(t, "second", rules[0].Description)
	assert.Equal(t, "B", rules[1].Code)
}

func writeGz(t *testing.T, path, content string) {
	t.Helper()
	var buf bytes.Buffer
	w := pgzip.NewWriter(&buf)
	_, err := w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func TestParseFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv.gz")
	b := filepath.Join(dir, "b.csv.gz")
	writeGz(t, a, "ONE,fixed,100\nTWO\n")
	writeGz(t, b, "ONE,fixed,200\nbad,x\n")

	rules, skipped, err := parseFiles(context.Background(), []string{a, b}, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, rules, 2)
	assert.True(t, rules[0].Value.Equal(decimal.NewFromInt(200)))

	_, _, err = parseFiles(context.Background(), []string{filepath.Join(dir, "missing.csv.gz")}, 1)
	assert.Error(t, err)
}

type fakeStore struct {
	stored   []string
	checked  []string
	upserted [][]pricing.PromoRule
}

func (f *fakeStore) Codes(context.Context) ([]string, error) { return f.stored, nil }

func (f *fakeStore) Existing(_ context.Context, codes []string) ([]string, error) {
	f.checked = append(f.checked, codes...)
	var out []string
	for _, c := range codes {
		for _, s := range f.stored {
			if c == s {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Upsert(_ context.Context, rules []pricing.PromoRule) error {
	f.upserted = append(f.upserted, rules)
	return nil
}

func TestDropExisting(t *testing.T) {
	store := &fakeStore{stored: []string{"OLD1", "OLD2"}}
	rules := []pricing.PromoRule{{Code: "OLD1"}, {Code: "NEW1"}, {Code: "OLD2"}, {Code: "NEW2"}}

	got, err := dropExisting(context.Background(), store, rules)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "NEW1", got[0].Code)
	assert.Equal(t, "NEW2", got[1].Code)
	assert.Subset(t, store.checked, []string{"OLD1", "OLD2"})
}

func TestWritePromos_Batches(t *testing.T) {
	store := &fakeStore{}
	rules := []pricing.PromoRule{{Code: "A"}, {Code: "B"}, {Code: "C"}}

	require.NoError(t, writePromos(context.Background(), store, rules, 2))
	require.Len(t, store.upserted, 2)
	assert.Len(t, store.upserted[0], 2)
	assert.Len(t, store.upserted[1], 1)
}
