package quality

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churnpipe/internal/table"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidateReport(t *testing.T) {
	tbl := table.New([]string{"customer_id", "monthly_spend", "signup_date", "segment"})
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := [][]table.Value{
		{table.String("C1"), table.Number(100), table.Date(day), table.String("Low")},
		{table.String("C2"), table.Number(200), table.Date(day), table.String("High")},
		{table.String("C3"), table.Missing(), table.Date(day), table.String("Low")},
		{table.String("C3"), table.Missing(), table.Date(day), table.String("Low")},
	}
	for _, r := range rows {
		require.NoError(t, tbl.AppendRow(r))
	}

	report := NewValidator(testLogger()).Validate(tbl)

	assert.Equal(t, 4, report.Rows)
	assert.Equal(t, 4, report.Columns)
	assert.Equal(t, 2, report.NullCounts["monthly_spend"])
	assert.Equal(t, 2, report.TotalNulls)
	assert.Equal(t, 1, report.DuplicateRows)
	assert.Greater(t, report.MemoryMB, float64(0))

	assert.Equal(t, "string", report.ColumnKinds["customer_id"])
	assert.Equal(t, "number", report.ColumnKinds["monthly_spend"])
	assert.Equal(t, "date", report.ColumnKinds["signup_date"])

	require.Contains(t, report.NumericSummaries, "monthly_spend")
	summary := report.NumericSummaries["monthly_spend"]
	assert.Equal(t, 2, summary.Count)
	assert.Equal(t, float64(150), summary.Mean)
	assert.Equal(t, float64(100), summary.Min)
	assert.Equal(t, float64(200), summary.Max)
	assert.Equal(t, float64(150), summary.P50)

	assert.Equal(t, 3, report.CategoricalCardinality["customer_id"])
	assert.Equal(t, 2, report.CategoricalCardinality["segment"])
	assert.NotContains(t, report.CategoricalCardinality, "monthly_spend")
}

func TestValidateEmptyTable(t *testing.T) {
	report := NewValidator(testLogger()).Validate(table.New([]string{"a"}))

	assert.Equal(t, 0, report.Rows)
	assert.Equal(t, "missing", report.ColumnKinds["a"])
	assert.Empty(t, report.NumericSummaries)
}

func TestValidateDoesNotMutate(t *testing.T) {
	tbl := table.New([]string{"n"})
	require.NoError(t, tbl.AppendRow([]table.Value{table.Number(5)}))
	clone := tbl.Clone()

	_ = NewValidator(testLogger()).Validate(tbl)
	assert.True(t, tbl.Equal(clone))
}
