package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churnpipe/internal/config"
	pipeerrors "churnpipe/internal/errors"
	"churnpipe/internal/table"
)

func assemblyConfig() config.AssemblyConfig {
	return config.Default().Assembly
}

func newAssembler() *Assembler {
	return NewAssembler(testLogger(), assemblyConfig(), ColCustomerID,
		[]string{ColSignupDate, ColLastPurchaseDate})
}

func derivedTable(t *testing.T) *table.Table {
	t.Helper()
	tbl := table.New([]string{
		ColCustomerID, ColSignupDate, ColLastPurchaseDate, "full_name_hash",
		ColMonthlySpend, ColSpendSegment, ColChurnLabel,
	})
	rows := [][]table.Value{
		{table.String("C1"), table.Date(day("2023-01-01")), table.Date(day("2024-06-01")), table.String("abc"), table.Number(450), table.String("Low"), table.Number(0)},
		{table.String("C2"), table.Date(day("2023-02-01")), table.Date(day("2024-06-02")), table.String("def"), table.Number(1600), table.String("High"), table.Number(1)},
		{table.String("C3"), table.Date(day("2023-03-01")), table.Date(day("2024-06-03")), table.String("ghi"), table.Number(900), table.String("Medium"), table.Number(0)},
		{table.String("C4"), table.Date(day("2023-04-01")), table.Date(day("2024-06-04")), table.String("jkl"), table.Number(700), table.String("Medium"), table.Number(0)},
	}
	for _, r := range rows {
		require.NoError(t, tbl.AppendRow(r))
	}
	return tbl
}

func TestAssembleMissingTargetIsFatal(t *testing.T) {
	tbl := table.New([]string{ColCustomerID})
	require.NoError(t, tbl.AppendRow([]table.Value{table.String("C1")}))

	_, _, err := newAssembler().Assemble(tbl)
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCode(err, pipeerrors.CodeSchemaMismatch))
	assert.True(t, pipeerrors.IsFatal(err))
}

func TestAssembleOneHotWithDroppedReference(t *testing.T) {
	out, stats, err := newAssembler().Assemble(derivedTable(t))
	require.NoError(t, err)

	// alphabetically first category (High) is the dropped reference
	assert.False(t, out.HasColumn(ColSpendSegment))
	assert.False(t, out.HasColumn(ColSpendSegment+"_High"))
	require.True(t, out.HasColumn(ColSpendSegment+"_Low"))
	require.True(t, out.HasColumn(ColSpendSegment+"_Medium"))
	assert.Equal(t, []string{ColSpendSegment + "_Low", ColSpendSegment + "_Medium"}, stats.EncodedColumns[ColSpendSegment])

	assert.Equal(t, float64(1), out.Value(0, ColSpendSegment+"_Low").Num)
	assert.Equal(t, float64(0), out.Value(0, ColSpendSegment+"_Medium").Num)
	// the reference category encodes as all zeros
	assert.Equal(t, float64(0), out.Value(1, ColSpendSegment+"_Low").Num)
	assert.Equal(t, float64(0), out.Value(1, ColSpendSegment+"_Medium").Num)
	assert.Equal(t, float64(1), out.Value(2, ColSpendSegment+"_Medium").Num)
}

func TestAssembleDropsIdentifiersHashesAndDates(t *testing.T) {
	out, stats, err := newAssembler().Assemble(derivedTable(t))
	require.NoError(t, err)

	assert.False(t, out.HasColumn(ColCustomerID))
	assert.False(t, out.HasColumn("full_name_hash"))
	assert.False(t, out.HasColumn(ColSignupDate))
	assert.False(t, out.HasColumn(ColLastPurchaseDate))
	assert.True(t, out.HasColumn(ColChurnLabel), "target survives assembly")
	assert.ElementsMatch(t, []string{ColCustomerID, "full_name_hash", ColSignupDate, ColLastPurchaseDate}, stats.DroppedColumns)
}

func TestAssembleClassBalance(t *testing.T) {
	out, stats, err := newAssembler().Assemble(derivedTable(t))
	require.NoError(t, err)

	assert.Equal(t, float64(25), stats.ChurnRatePct)
	assert.False(t, stats.ImbalanceWarning)
	assert.Equal(t, 4, out.NumRows())
}

func TestAssembleImbalanceWarning(t *testing.T) {
	tbl := derivedTable(t)
	// flip everything to churn: 100% positive rate
	for r := 0; r < tbl.NumRows(); r++ {
		tbl.SetValue(r, ColChurnLabel, table.Number(1))
	}

	_, stats, err := newAssembler().Assemble(tbl)
	require.NoError(t, err, "imbalance warns, never fails")
	assert.True(t, stats.ImbalanceWarning)
	assert.Equal(t, float64(100), stats.ChurnRatePct)
}

func TestAssembleImputesResidualNumericNulls(t *testing.T) {
	tbl := derivedTable(t)
	tbl.SetValue(0, ColMonthlySpend, table.Missing())

	out, stats, err := newAssembler().Assemble(tbl)
	require.NoError(t, err)

	// median of 1600, 900, 700
	assert.Equal(t, float64(900), out.Value(0, ColMonthlySpend).Num)
	assert.Equal(t, 1, stats.MedianImputed[ColMonthlySpend])
}

func TestAssembleNeverImputesTarget(t *testing.T) {
	tbl := derivedTable(t)
	tbl.SetValue(0, ColChurnLabel, table.Missing())

	out, stats, err := newAssembler().Assemble(tbl)
	require.NoError(t, err)

	assert.True(t, out.Value(0, ColChurnLabel).IsMissing())
	assert.NotContains(t, stats.MedianImputed, ColChurnLabel)
}

func TestAssembleDropsConstantCategorical(t *testing.T) {
	tbl := derivedTable(t)
	for r := 0; r < tbl.NumRows(); r++ {
		tbl.SetValue(r, ColSpendSegment, table.String("Same"))
	}

	out, stats, err := newAssembler().Assemble(tbl)
	require.NoError(t, err)

	assert.False(t, out.HasColumn(ColSpendSegment))
	assert.Empty(t, stats.EncodedColumns[ColSpendSegment])
	for _, col := range out.Columns() {
		assert.NotContains(t, col, ColSpendSegment+"_")
	}
}

func TestAssembleMissingCategoryEncodesAllZeros(t *testing.T) {
	tbl := derivedTable(t)
	tbl.SetValue(3, ColSpendSegment, table.Missing())

	out, _, err := newAssembler().Assemble(tbl)
	require.NoError(t, err)

	assert.Equal(t, float64(0), out.Value(3, ColSpendSegment+"_Low").Num)
	assert.Equal(t, float64(0), out.Value(3, ColSpendSegment+"_Medium").Num)
}
