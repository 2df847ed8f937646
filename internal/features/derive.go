// Package features builds the model-ready gold dataset: RFM metrics,
// engagement scoring, behavioral ratios, churn-risk flags and the final
// encoded feature matrix.
package features

import (
	"log/slog"
	"time"

	"churnpipe/internal/config"
	pipeerrors "churnpipe/internal/errors"
	"churnpipe/internal/table"
)

// Column names the deriver reads and writes.
const (
	ColCustomerID       = "customer_id"
	ColSignupDate       = "signup_date"
	ColLastPurchaseDate = "last_purchase_date"
	ColMonthlySpend     = "monthly_spend"
	ColTotalShipments   = "total_shipments"
	ColChurnLabel       = "churn_label"

	ColRecencyDays          = "recency_days"
	ColRecencyTier          = "recency_tier"
	ColTenureDays           = "tenure_days"
	ColTenureTier           = "tenure_tier"
	ColSpendSegment         = "spend_segment"
	ColFrequencySegment     = "frequency_segment"
	ColEngagementScore      = "engagement_score"
	ColEngagementTier       = "engagement_tier"
	ColSpendPerShipment     = "spend_per_shipment"
	ColTicketTier           = "ticket_tier"
	ColDaysBetweenPurchases = "days_between_purchases"
	ColRecentlyActive       = "recently_active"
	ColHighValue            = "high_value"
	ColInactivityRisk       = "inactivity_risk"
	ColLowEngagementRisk    = "low_engagement_risk"
	ColNewInactiveRisk      = "new_inactive_risk"
	ColChurnRiskScore       = "churn_risk_score"
	ColRiskTier             = "risk_tier"
)

var requiredColumns = []string{
	ColCustomerID, ColSignupDate, ColLastPurchaseDate,
	ColMonthlySpend, ColTotalShipments, ColChurnLabel,
}

// DeriveStats reports headline numbers of the feature derivation.
type DeriveStats struct {
	ReferenceDate    string         `json:"reference_date"`
	NewFeatures      int            `json:"new_features"`
	MeanEngagement   float64        `json:"mean_engagement"`
	RiskDistribution map[string]int `json:"risk_distribution"`
}

// Deriver computes the feature columns from a cleaned silver table.
type Deriver struct {
	logger *slog.Logger
	cfg    config.FeaturesConfig
}

// NewDeriver creates a deriver from the feature configuration.
func NewDeriver(logger *slog.Logger, cfg config.FeaturesConfig) *Deriver {
	return &Deriver{logger: logger, cfg: cfg}
}

// Derive returns a new table extended with the feature columns. The input
// must carry the silver schema; a missing required column is fatal. Rows
// with missing inputs get missing feature cells rather than fabricated
// values, except risk flags, which treat unknown as not-at-risk.
func (d *Deriver) Derive(tbl *table.Table) (*table.Table, DeriveStats, error) {
	stats := DeriveStats{RiskDistribution: make(map[string]int)}

	for _, col := range requiredColumns {
		if !tbl.HasColumn(col) {
			return nil, stats, pipeerrors.SchemaMismatch("required column %s missing from silver data", col)
		}
	}

	reference, err := d.referenceDate(tbl)
	if err != nil {
		return nil, stats, err
	}
	stats.ReferenceDate = reference.Format("2006-01-02")

	out := tbl.Clone()
	before := out.NumColumns()
	n := out.NumRows()

	recency := dayDiffs(out, ColLastPurchaseDate, reference)
	tenure := dayDiffs(out, ColSignupDate, reference)

	addNumbers(out, ColRecencyDays, recency)
	addTiers(out, ColRecencyTier, recency, d.cfg.RecencyBins)
	addNumbers(out, ColTenureDays, tenure)
	addTiers(out, ColTenureTier, tenure, d.cfg.TenureBins)

	spend := numberColumn(out, ColMonthlySpend)
	shipments := numberColumn(out, ColTotalShipments)
	addTiers(out, ColSpendSegment, spend, d.cfg.SpendBins)
	addTiers(out, ColFrequencySegment, shipments, d.cfg.FrequencyBins)

	engagement := d.engagementScores(recency, shipments, spend)
	addNumbers(out, ColEngagementScore, engagement)
	addTiers(out, ColEngagementTier, engagement, d.cfg.EngagementBins)

	var sum float64
	var scored int
	for _, e := range engagement {
		if e != nil {
			sum += *e
			scored++
		}
	}
	if scored > 0 {
		stats.MeanEngagement = sum / float64(scored)
	}

	ticket := make([]*float64, n)
	gap := make([]*float64, n)
	for r := 0; r < n; r++ {
		if spend[r] != nil && shipments[r] != nil {
			div := *shipments[r]
			// a customer with zero shipments still has a defined ticket
			if div == 0 {
				div = 1
			}
			v := *spend[r] / div
			ticket[r] = &v
		}
		if tenure[r] != nil && shipments[r] != nil {
			div := *shipments[r]
			if div == 0 {
				div = 1
			}
			v := *tenure[r] / div
			gap[r] = &v
		}
	}
	addNumbers(out, ColSpendPerShipment, ticket)
	addTiers(out, ColTicketTier, ticket, d.cfg.TicketBins)
	addNumbers(out, ColDaysBetweenPurchases, gap)

	addFlags(out, ColRecentlyActive, n, func(r int) bool {
		return recency[r] != nil && *recency[r] <= d.cfg.ActiveRecencyDays
	})
	addFlags(out, ColHighValue, n, func(r int) bool {
		return (spend[r] != nil && *spend[r] > d.cfg.HighValueSpend) ||
			(shipments[r] != nil && *shipments[r] > d.cfg.HighValueShipments)
	})

	inactivity := make([]bool, n)
	lowEngagement := make([]bool, n)
	newInactive := make([]bool, n)
	for r := 0; r < n; r++ {
		inactivity[r] = recency[r] != nil && *recency[r] > d.cfg.RecencyWindowDays
		lowEngagement[r] = engagement[r] != nil && *engagement[r] < d.cfg.LowEngagementScore
		newInactive[r] = tenure[r] != nil && recency[r] != nil &&
			*tenure[r] < d.cfg.NewTenureDays && *recency[r] > d.cfg.NewInactiveRecency
	}
	addFlags(out, ColInactivityRisk, n, func(r int) bool { return inactivity[r] })
	addFlags(out, ColLowEngagementRisk, n, func(r int) bool { return lowEngagement[r] })
	addFlags(out, ColNewInactiveRisk, n, func(r int) bool { return newInactive[r] })

	score := make([]*float64, n)
	for r := 0; r < n; r++ {
		s := 3*boolToFloat(inactivity[r]) + 2*boolToFloat(lowEngagement[r]) + boolToFloat(newInactive[r])
		score[r] = &s
	}
	addNumbers(out, ColChurnRiskScore, score)
	addTiers(out, ColRiskTier, score, d.cfg.RiskBins)

	for r := 0; r < n; r++ {
		stats.RiskDistribution[d.cfg.RiskBins.Label(*score[r])]++
	}

	stats.NewFeatures = out.NumColumns() - before
	d.logger.Info("features derived",
		slog.String("reference_date", stats.ReferenceDate),
		slog.Int("new_features", stats.NewFeatures),
		slog.Float64("mean_engagement", stats.MeanEngagement))
	for tier, count := range stats.RiskDistribution {
		d.logger.Info("risk tier", slog.String("tier", tier), slog.Int("count", count))
	}

	return out, stats, nil
}

// referenceDate returns the configured anchor, or the maximum observed
// purchase date when unset.
func (d *Deriver) referenceDate(tbl *table.Table) (time.Time, error) {
	if d.cfg.ReferenceDate != "" {
		t, err := time.Parse("2006-01-02", d.cfg.ReferenceDate)
		if err != nil {
			return time.Time{}, pipeerrors.Wrap(pipeerrors.CodeParseFailure, err,
				"invalid reference date %q", d.cfg.ReferenceDate)
		}
		return t, nil
	}

	var max time.Time
	found := false
	for r := 0; r < tbl.NumRows(); r++ {
		v := tbl.Value(r, ColLastPurchaseDate)
		if v.Kind == table.KindDate && (!found || v.Time.After(max)) {
			max, found = v.Time, true
		}
	}
	if !found {
		return time.Time{}, pipeerrors.SchemaMismatch(
			"no parseable %s values to anchor the reference date", ColLastPurchaseDate)
	}
	return max, nil
}

// engagementScores combines inverse recency, frequency and spend into a
// weighted 0-100 score. Each component is max-normalized; a zero recency
// spread means every customer purchased on the reference date, so the
// recency component is full for all of them.
func (d *Deriver) engagementScores(recency, shipments, spend []*float64) []*float64 {
	maxRecency := maxOf(recency)
	maxShipments := maxOf(shipments)
	maxSpend := maxOf(spend)

	scores := make([]*float64, len(recency))
	for r := range scores {
		if recency[r] == nil || shipments[r] == nil || spend[r] == nil {
			continue
		}
		recencyNorm := 1.0
		if maxRecency > 0 {
			recencyNorm = 1 - *recency[r]/maxRecency
		}
		frequencyNorm := 0.0
		if maxShipments > 0 {
			frequencyNorm = *shipments[r] / maxShipments
		}
		monetaryNorm := 0.0
		if maxSpend > 0 {
			monetaryNorm = *spend[r] / maxSpend
		}
		score := (recencyNorm*d.cfg.Weights.Recency +
			frequencyNorm*d.cfg.Weights.Frequency +
			monetaryNorm*d.cfg.Weights.Monetary) * 100
		scores[r] = &score
	}
	return scores
}

func dayDiffs(tbl *table.Table, col string, reference time.Time) []*float64 {
	out := make([]*float64, tbl.NumRows())
	for r := 0; r < tbl.NumRows(); r++ {
		v := tbl.Value(r, col)
		if v.Kind != table.KindDate {
			continue
		}
		days := reference.Sub(v.Time).Hours() / 24
		out[r] = &days
	}
	return out
}

func numberColumn(tbl *table.Table, col string) []*float64 {
	out := make([]*float64, tbl.NumRows())
	for r := 0; r < tbl.NumRows(); r++ {
		v := tbl.Value(r, col)
		if v.Kind == table.KindNumber {
			n := v.Num
			out[r] = &n
		}
	}
	return out
}

func maxOf(values []*float64) float64 {
	var max float64
	found := false
	for _, v := range values {
		if v == nil {
			continue
		}
		if !found || *v > max {
			max, found = *v, true
		}
	}
	return max
}

func addNumbers(tbl *table.Table, col string, values []*float64) {
	cells := make([]table.Value, len(values))
	for r, v := range values {
		if v == nil {
			cells[r] = table.Missing()
		} else {
			cells[r] = table.Number(*v)
		}
	}
	// columns are new by construction, AddColumn cannot fail
	_ = tbl.AddColumn(col, cells)
}

func addTiers(tbl *table.Table, col string, values []*float64, bins config.Binning) {
	cells := make([]table.Value, len(values))
	for r, v := range values {
		if v == nil {
			cells[r] = table.Missing()
		} else {
			cells[r] = table.String(bins.Label(*v))
		}
	}
	_ = tbl.AddColumn(col, cells)
}

func addFlags(tbl *table.Table, col string, n int, set func(r int) bool) {
	cells := make([]table.Value, n)
	for r := 0; r < n; r++ {
		cells[r] = table.Number(boolToFloat(set(r)))
	}
	_ = tbl.AddColumn(col, cells)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
