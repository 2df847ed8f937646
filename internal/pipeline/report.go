package pipeline

import (
	"time"

	"github.com/google/uuid"

	"churnpipe/internal/anonymize"
	"churnpipe/internal/cleaning"
	"churnpipe/internal/features"
	"churnpipe/internal/ingest"
	"churnpipe/internal/quality"
)

// RunReport is the machine-readable record of one pipeline run. It carries
// row deltas per stage and the stats of every engine, so a reviewer can
// reconstruct what the run did to the data without rerunning it.
type RunReport struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Succeeded  bool      `json:"succeeded"`

	Stages   []*StageState `json:"stages"`
	Warnings []string      `json:"warnings,omitempty"`

	Preview   *ingest.Preview        `json:"preview,omitempty"`
	Dedup     *cleaning.DedupStats   `json:"dedup,omitempty"`
	Dates     *cleaning.DateStats    `json:"dates,omitempty"`
	Coerce    *cleaning.CoerceStats  `json:"coerce,omitempty"`
	Outliers  *cleaning.OutlierStats `json:"outliers,omitempty"`
	Nulls     *cleaning.NullStats    `json:"nulls,omitempty"`
	Anonymize *anonymize.Stats       `json:"anonymize,omitempty"`
	Quality   *quality.Report        `json:"quality,omitempty"`

	Features *features.DeriveStats   `json:"features,omitempty"`
	Assembly *features.AssembleStats `json:"assembly,omitempty"`
}

// NewRunReport creates a report with a fresh run ID.
func NewRunReport(mode string) *RunReport {
	return &RunReport{
		RunID:     uuid.New().String(),
		Mode:      mode,
		StartedAt: time.Now(),
	}
}

// AddWarning records a tolerated anomaly.
func (r *RunReport) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Finish stamps the end time and outcome.
func (r *RunReport) Finish(succeeded bool) {
	r.FinishedAt = time.Now()
	r.Succeeded = succeeded
}
