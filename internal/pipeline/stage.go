// Package pipeline orchestrates the medallion run: bronze ingestion,
// silver cleaning and gold feature assembly, with per-stage state
// tracking and a machine-readable run report.
package pipeline

import (
	"time"
)

// StageStatus represents the current status of a stage.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusActive    StageStatus = "active"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
)

// Stage identifiers, in execution order.
const (
	StageIDLoad      = "load"
	StageIDPreview   = "preview"
	StageIDDedup     = "deduplicate"
	StageIDDates     = "normalize_dates"
	StageIDCoerce    = "coerce_types"
	StageIDOutliers  = "correct_outliers"
	StageIDNulls     = "apply_null_policy"
	StageIDAnonymize = "anonymize"
	StageIDQuality   = "validate_quality"
	StageIDDerive    = "derive_features"
	StageIDAssemble  = "assemble_matrix"
	StageIDExport    = "export"
)

// StageState is the runtime record of one stage execution.
type StageState struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Status    StageStatus `json:"status"`
	StartTime *time.Time  `json:"start_time,omitempty"`
	EndTime   *time.Time  `json:"end_time,omitempty"`
	Duration  float64     `json:"duration_seconds"`
	RowsIn    int         `json:"rows_in"`
	RowsOut   int         `json:"rows_out"`
	Error     string      `json:"error,omitempty"`
}

// NewStageState creates a pending stage state.
func NewStageState(id, name string) *StageState {
	return &StageState{ID: id, Name: name, Status: StageStatusPending}
}

// Start marks the stage active.
func (s *StageState) Start() {
	now := time.Now()
	s.StartTime = &now
	s.Status = StageStatusActive
}

// Complete marks the stage completed and records timing.
func (s *StageState) Complete() {
	now := time.Now()
	s.EndTime = &now
	s.Status = StageStatusCompleted
	if s.StartTime != nil {
		s.Duration = now.Sub(*s.StartTime).Seconds()
	}
}

// Fail marks the stage failed with the given error.
func (s *StageState) Fail(err error) {
	now := time.Now()
	s.EndTime = &now
	s.Status = StageStatusFailed
	s.Error = err.Error()
	if s.StartTime != nil {
		s.Duration = now.Sub(*s.StartTime).Seconds()
	}
}
