package cleaning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churnpipe/internal/table"
)

var sentinels = []string{"NULL", "", "N/A"}

func TestNormalizeMixedLayouts(t *testing.T) {
	tbl := rawTable(t, []string{"signup_date"}, [][]string{
		{"2024-03-15"},
		{"15/03/2024"},
		{"2024-01-31"},
	})

	out, stats := NewDateNormalizer(testLogger(), []string{"signup_date"}, dateFormats, sentinels).Normalize(tbl)

	assert.Equal(t, 3, stats.Parsed["signup_date"])
	assert.Equal(t, 0, stats.ParseFailures["signup_date"])
	for r := 0; r < out.NumRows(); r++ {
		assert.Equal(t, table.KindDate, out.Value(r, "signup_date").Kind, "row %d", r)
	}
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), out.Value(1, "signup_date").Time)
}

func TestNormalizeUnparseableBecomesMissing(t *testing.T) {
	tbl := rawTable(t, []string{"signup_date"}, [][]string{
		{"not-a-date"},
		{"2024-13-45"},
		{"2024-05-01"},
	})

	out, stats := NewDateNormalizer(testLogger(), []string{"signup_date"}, dateFormats, sentinels).Normalize(tbl)

	assert.Equal(t, 2, stats.ParseFailures["signup_date"])
	assert.Equal(t, 1, stats.Parsed["signup_date"])
	assert.True(t, out.Value(0, "signup_date").IsMissing())
	assert.True(t, out.Value(1, "signup_date").IsMissing())
}

func TestNormalizeSentinelsAreNotFailures(t *testing.T) {
	tbl := rawTable(t, []string{"last_purchase_date"}, [][]string{
		{"NULL"},
		{""},
		{"N/A"},
	})

	out, stats := NewDateNormalizer(testLogger(), []string{"last_purchase_date"}, dateFormats, sentinels).Normalize(tbl)

	assert.Equal(t, 0, stats.ParseFailures["last_purchase_date"])
	for r := 0; r < out.NumRows(); r++ {
		assert.True(t, out.Value(r, "last_purchase_date").IsMissing())
	}
}

func TestNormalizeSkipsMissingColumn(t *testing.T) {
	tbl := rawTable(t, []string{"other"}, [][]string{{"x"}})

	out, stats := NewDateNormalizer(testLogger(), []string{"signup_date"}, dateFormats, sentinels).Normalize(tbl)

	require.Equal(t, 1, out.NumRows())
	assert.Empty(t, stats.Parsed)
	assert.Equal(t, "x", out.Value(0, "other").Str)
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	tbl := rawTable(t, []string{"signup_date"}, [][]string{{"2024-05-01"}})

	_, _ = NewDateNormalizer(testLogger(), []string{"signup_date"}, dateFormats, sentinels).Normalize(tbl)

	assert.Equal(t, table.KindString, tbl.Value(0, "signup_date").Kind)
}
