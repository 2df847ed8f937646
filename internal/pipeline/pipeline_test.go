package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churnpipe/internal/config"
	pipeerrors "churnpipe/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// bronzeFixture exercises every cleaning concern at once: an exact
// duplicate, a key duplicate resolved by purchase date, sentinel nulls, a
// spend outlier above the business cap, mixed date layouts and a row with
// no target label.
const bronzeFixture = `customer_id,full_name,email,phone,home_address,signup_date,last_purchase_date,monthly_spend,total_shipments,churn_label
C001,Ana Torres,ana@example.com,555-0001,1 Main St,2023-01-15,2024-12-01,1200.5,40,0
C002,Bob Lee,bob@example.com,NULL,2 Oak Ave,15/03/2023,2024-06-10,20000,30,1
C002,Bob Lee,bob@example.com,NULL,2 Oak Ave,15/03/2023,2024-01-05,150,5,1
C003,Carla Ruiz,carla@example.com,555-0003,3 Pine Rd,2022-07-01,2024-11-20,800,12,0
C003,Carla Ruiz,carla@example.com,555-0003,3 Pine Rd,2022-07-01,2024-11-20,800,12,0
C004,Dan Wu,dan@example.com,555-0004,4 Elm Ct,2024/02/10,2024-10-02,N/A,8,0
C005,Eva Park,eva@example.com,555-0005,5 Birch Ln,2023-05-20,2024-09-15,300,6,
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Paths.BronzeFile = filepath.Join(dir, "bronze", "raw_data_customers.csv")
	cfg.Paths.SilverFile = filepath.Join(dir, "silver", "customers_clean.csv")
	cfg.Paths.GoldFile = filepath.Join(dir, "gold", "customers_features.csv")
	cfg.Paths.ReportFile = filepath.Join(dir, "gold", "run_report.json")
	cfg.Features.ReferenceDate = "2024-12-31"
	require.NoError(t, cfg.Validate())

	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Paths.BronzeFile), 0o755))
	require.NoError(t, os.WriteFile(cfg.Paths.BronzeFile, []byte(bronzeFixture), 0o644))
	return cfg
}

func readCSV(t *testing.T, path string) (header []string, rows [][]string) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	return records[0], records[1:]
}

func column(t *testing.T, header []string, rows [][]string, name string) []string {
	t.Helper()
	for i, h := range header {
		if h == name {
			out := make([]string, len(rows))
			for r, row := range rows {
				out[r] = row[i]
			}
			return out
		}
	}
	t.Fatalf("column %s not found in %v", name, header)
	return nil
}

func TestRunFullPipeline(t *testing.T) {
	cfg := testConfig(t)
	runner := NewRunner(testLogger(), cfg, nil)

	report, err := runner.Run(context.Background(), ModeFull)
	require.NoError(t, err)
	require.True(t, report.Succeeded)

	header, rows := readCSV(t, cfg.Paths.SilverFile)

	// Five survivors minus the exact duplicate, the losing key duplicate
	// and the unlabeled row.
	assert.Len(t, rows, 4)

	ids := column(t, header, rows, "customer_id")
	assert.Equal(t, []string{"C001", "C002", "C003", "C004"}, ids)

	// PII columns are replaced by their hashed counterparts.
	assert.NotContains(t, header, "full_name")
	assert.NotContains(t, header, "email")
	assert.Contains(t, header, "full_name_hash")
	assert.Contains(t, header, "email_hash")

	// The key duplicate resolved to the later purchase, and its spend was
	// capped at the business maximum.
	spends := column(t, header, rows, "monthly_spend")
	assert.Equal(t, "15000", spends[1])
	purchases := column(t, header, rows, "last_purchase_date")
	assert.Equal(t, "2024-06-10", purchases[1])

	// The sentinel spend was imputed with the column median.
	assert.NotEmpty(t, spends[3])

	goldHeader, goldRows := readCSV(t, cfg.Paths.GoldFile)
	assert.Len(t, goldRows, 4)
	assert.NotContains(t, goldHeader, "customer_id")
	assert.NotContains(t, goldHeader, "signup_date")
	assert.NotContains(t, goldHeader, "full_name_hash")

	for _, label := range column(t, goldHeader, goldRows, "churn_label") {
		assert.Contains(t, []string{"0", "1"}, label)
	}
	for _, cell := range column(t, goldHeader, goldRows, "engagement_score") {
		v, err := strconv.ParseFloat(cell, 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
	for _, cell := range column(t, goldHeader, goldRows, "churn_risk_score") {
		v, err := strconv.ParseFloat(cell, 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 6.0)
	}

	// The model matrix is fully populated.
	for r, row := range goldRows {
		for c, cell := range row {
			assert.NotEmpty(t, cell, "empty cell at row %d column %s", r, goldHeader[c])
		}
	}

	// One positive out of four sits inside the class-rate bounds.
	require.NotNil(t, report.Assembly)
	assert.InDelta(t, 25.0, report.Assembly.ChurnRatePct, 1e-9)
	assert.False(t, report.Assembly.ImbalanceWarning)
}

func TestRunReportPersisted(t *testing.T) {
	cfg := testConfig(t)
	_, err := NewRunner(testLogger(), cfg, nil).Run(context.Background(), ModeFull)
	require.NoError(t, err)

	data, err := os.ReadFile(cfg.Paths.ReportFile)
	require.NoError(t, err)

	var report RunReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.True(t, report.Succeeded)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, string(ModeFull), report.Mode)
	require.NotNil(t, report.Dedup)
	assert.Equal(t, 1, report.Dedup.ExactDuplicates)
	assert.Equal(t, 1, report.Dedup.KeyDuplicates)
	require.NotNil(t, report.Nulls)
	assert.Equal(t, 1, report.Nulls.RowsDropped)
	require.NotNil(t, report.Quality)
	assert.Equal(t, 4, report.Quality.Rows)

	for _, stage := range report.Stages {
		assert.Equal(t, StageStatusCompleted, stage.Status, "stage %s", stage.ID)
	}
}

func TestRunCleanOnly(t *testing.T) {
	cfg := testConfig(t)
	report, err := NewRunner(testLogger(), cfg, nil).Run(context.Background(), ModeCleanOnly)
	require.NoError(t, err)
	assert.True(t, report.Succeeded)

	_, err = os.Stat(cfg.Paths.SilverFile)
	assert.NoError(t, err)
	_, err = os.Stat(cfg.Paths.GoldFile)
	assert.True(t, os.IsNotExist(err))
	assert.Nil(t, report.Features)
}

func TestRunFeaturesOnlyFromSilver(t *testing.T) {
	cfg := testConfig(t)
	runner := NewRunner(testLogger(), cfg, nil)

	_, err := runner.Run(context.Background(), ModeCleanOnly)
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), ModeFeaturesOnly)
	require.NoError(t, err)
	assert.True(t, report.Succeeded)
	require.NotNil(t, report.Features)
	require.NotNil(t, report.Assembly)

	_, rows := readCSV(t, cfg.Paths.GoldFile)
	assert.Len(t, rows, 4)
}

func TestRunFeaturesOnlyMatchesFull(t *testing.T) {
	full := testConfig(t)
	_, err := NewRunner(testLogger(), full, nil).Run(context.Background(), ModeFull)
	require.NoError(t, err)

	split := testConfig(t)
	runner := NewRunner(testLogger(), split, nil)
	_, err = runner.Run(context.Background(), ModeCleanOnly)
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), ModeFeaturesOnly)
	require.NoError(t, err)

	fullGold, err := os.ReadFile(full.Paths.GoldFile)
	require.NoError(t, err)
	splitGold, err := os.ReadFile(split.Paths.GoldFile)
	require.NoError(t, err)
	assert.Equal(t, string(fullGold), string(splitGold))
}

// recleanFixture carries a missing email, so the silver output holds the
// textual missing marker in email_hash.
const recleanFixture = `customer_id,full_name,email,phone,home_address,signup_date,last_purchase_date,monthly_spend,total_shipments,churn_label
C001,Ana Torres,,555-0001,1 Main St,2023-01-15,2024-12-01,1200.5,40,0
C002,Bob Lee,bob@example.com,555-0002,2 Oak Ave,2023-03-15,2024-06-10,800,30,1
`

func TestSilverSurvivesRecleaning(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Paths.BronzeFile, []byte(recleanFixture), 0o644))

	_, err := NewRunner(testLogger(), cfg, nil).Run(context.Background(), ModeCleanOnly)
	require.NoError(t, err)

	header, rows := readCSV(t, cfg.Paths.SilverFile)
	hashes := column(t, header, rows, "email_hash")
	assert.Equal(t, "NULL", hashes[0], "missing PII keeps the marker in the hashed column")

	first, err := os.ReadFile(cfg.Paths.SilverFile)
	require.NoError(t, err)

	// cleaning the silver output again must change nothing
	recfg := testConfig(t)
	recfg.Paths.BronzeFile = cfg.Paths.SilverFile
	_, err = NewRunner(testLogger(), recfg, nil).Run(context.Background(), ModeCleanOnly)
	require.NoError(t, err)

	second, err := os.ReadFile(recfg.Paths.SilverFile)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestRunDeterministic(t *testing.T) {
	cfg := testConfig(t)
	runner := NewRunner(testLogger(), cfg, nil)

	_, err := runner.Run(context.Background(), ModeFull)
	require.NoError(t, err)
	firstSilver, err := os.ReadFile(cfg.Paths.SilverFile)
	require.NoError(t, err)
	firstGold, err := os.ReadFile(cfg.Paths.GoldFile)
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), ModeFull)
	require.NoError(t, err)
	secondSilver, err := os.ReadFile(cfg.Paths.SilverFile)
	require.NoError(t, err)
	secondGold, err := os.ReadFile(cfg.Paths.GoldFile)
	require.NoError(t, err)

	assert.Equal(t, string(firstSilver), string(secondSilver))
	assert.Equal(t, string(firstGold), string(secondGold))
}

func TestRunMissingSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.BronzeFile = filepath.Join(t.TempDir(), "nope.csv")

	report, err := NewRunner(testLogger(), cfg, nil).Run(context.Background(), ModeFull)
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCode(err, pipeerrors.CodeSourceNotFound))
	assert.False(t, report.Succeeded)
	require.NotEmpty(t, report.Stages)
	assert.Equal(t, StageStatusFailed, report.Stages[0].Status)

	// The report is persisted even for failed runs.
	_, statErr := os.Stat(cfg.Paths.ReportFile)
	assert.NoError(t, statErr)
}

func TestRunUnknownMode(t *testing.T) {
	cfg := testConfig(t)
	_, err := NewRunner(testLogger(), cfg, nil).Run(context.Background(), Mode("bogus"))
	assert.Error(t, err)
}

func TestRunCancelledContext(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(testLogger(), cfg, nil).Run(ctx, ModeFull)
	assert.ErrorIs(t, err, context.Canceled)
}
