// Package config holds the immutable pipeline configuration. A single
// Config value is built at startup (defaults, then YAML file, then CHURN_*
// environment overrides) and passed into every component constructor.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete pipeline configuration.
type Config struct {
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Cleaning  CleaningConfig  `yaml:"cleaning" envconfig:"CLEANING"`
	Anonymize AnonymizeConfig `yaml:"anonymize" envconfig:"ANONYMIZE"`
	Features  FeaturesConfig  `yaml:"features" envconfig:"FEATURES"`
	Assembly  AssemblyConfig  `yaml:"assembly" envconfig:"ASSEMBLY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
}

// PathsConfig contains the medallion layer artifact locations.
type PathsConfig struct {
	BronzeFile string `yaml:"bronze_file" envconfig:"BRONZE_FILE" validate:"required"`
	SilverFile string `yaml:"silver_file" envconfig:"SILVER_FILE" validate:"required"`
	GoldFile   string `yaml:"gold_file" envconfig:"GOLD_FILE" validate:"required"`
	ReportFile string `yaml:"report_file" envconfig:"REPORT_FILE" validate:"required"`
}

// CleaningConfig drives the bronze to silver transformation.
type CleaningConfig struct {
	KeyColumn      string              `yaml:"key_column" envconfig:"KEY_COLUMN" validate:"required"`
	DateColumns    []string            `yaml:"date_columns" envconfig:"DATE_COLUMNS" validate:"min=1"`
	NumericColumns []string            `yaml:"numeric_columns" envconfig:"NUMERIC_COLUMNS"`
	Sentinels      []string            `yaml:"sentinels" envconfig:"SENTINELS"`
	DateFormats    []string            `yaml:"date_formats" envconfig:"DATE_FORMATS" validate:"min=1"`
	NullRules      map[string]NullRule `yaml:"null_rules"`
	Outliers       OutlierConfig       `yaml:"outliers" envconfig:"OUTLIERS"`
}

// NullStrategy names a missing-value treatment.
type NullStrategy string

const (
	// NullConstant replaces missing cells with a fixed marker value.
	NullConstant NullStrategy = "constant"
	// NullMedian replaces missing numeric cells with the column median.
	NullMedian NullStrategy = "median"
	// NullMean replaces missing numeric cells with the column mean.
	NullMean NullStrategy = "mean"
	// NullForwardFill carries the preceding non-missing value forward in
	// row order.
	NullForwardFill NullStrategy = "ffill"
	// NullDropRow removes rows where the cell is missing. Reserved for the
	// target label, where imputation would fabricate ground truth.
	NullDropRow NullStrategy = "drop"
)

// IsValid reports whether the strategy is one of the known treatments.
func (s NullStrategy) IsValid() bool {
	switch s {
	case NullConstant, NullMedian, NullMean, NullForwardFill, NullDropRow:
		return true
	default:
		return false
	}
}

// NullRule binds a column to its missing-value treatment.
type NullRule struct {
	Strategy NullStrategy `yaml:"strategy"`
	Constant string       `yaml:"constant"`
}

// OutlierConfig contains detection method and business bounds.
type OutlierConfig struct {
	// Method selects the detector: threshold (business bounds), iqr, or
	// zscore.
	Method          string  `yaml:"method" envconfig:"METHOD" validate:"oneof=threshold iqr zscore"`
	SpendColumn     string  `yaml:"spend_column" envconfig:"SPEND_COLUMN" validate:"required"`
	ShipmentsColumn string  `yaml:"shipments_column" envconfig:"SHIPMENTS_COLUMN" validate:"required"`
	SpendMin        float64 `yaml:"spend_min" envconfig:"SPEND_MIN"`
	SpendMax        float64 `yaml:"spend_max" envconfig:"SPEND_MAX" validate:"gtfield=SpendMin"`
	ShipmentsMax    float64 `yaml:"shipments_max" envconfig:"SHIPMENTS_MAX" validate:"gt=0"`
	IQRFactor       float64 `yaml:"iqr_factor" envconfig:"IQR_FACTOR" validate:"gt=0"`
	ZScoreLimit     float64 `yaml:"zscore_limit" envconfig:"ZSCORE_LIMIT" validate:"gt=0"`
}

// AnonymizeConfig lists the PII columns and the hashing salt.
type AnonymizeConfig struct {
	Columns []string `yaml:"columns" envconfig:"COLUMNS"`
	// Salt must stay constant across runs so hashes remain joinable.
	Salt          string `yaml:"salt" envconfig:"SALT" validate:"required"`
	MissingMarker string `yaml:"missing_marker" envconfig:"MISSING_MARKER" validate:"required"`
}

// EngagementWeights are the component weights of the engagement score.
// They must sum to one.
type EngagementWeights struct {
	Recency   float64 `yaml:"recency" envconfig:"RECENCY" validate:"gt=0"`
	Frequency float64 `yaml:"frequency" envconfig:"FREQUENCY" validate:"gt=0"`
	Monetary  float64 `yaml:"monetary" envconfig:"MONETARY" validate:"gt=0"`
}

// FeaturesConfig drives the silver to gold feature derivation.
type FeaturesConfig struct {
	// ReferenceDate anchors recency computations, format 2006-01-02. Empty
	// means the maximum observed purchase date is used.
	ReferenceDate string `yaml:"reference_date" envconfig:"REFERENCE_DATE"`

	RecencyWindowDays   float64 `yaml:"recency_window_days" envconfig:"RECENCY_WINDOW_DAYS" validate:"gt=0"`
	ActiveRecencyDays   float64 `yaml:"active_recency_days" envconfig:"ACTIVE_RECENCY_DAYS" validate:"gt=0"`
	HighValueSpend      float64 `yaml:"high_value_spend" envconfig:"HIGH_VALUE_SPEND" validate:"gt=0"`
	HighValueShipments  float64 `yaml:"high_value_shipments" envconfig:"HIGH_VALUE_SHIPMENTS" validate:"gt=0"`
	LowEngagementScore  float64 `yaml:"low_engagement_score" envconfig:"LOW_ENGAGEMENT_SCORE" validate:"gt=0"`
	NewTenureDays       float64 `yaml:"new_tenure_days" envconfig:"NEW_TENURE_DAYS" validate:"gt=0"`
	NewInactiveRecency  float64 `yaml:"new_inactive_recency_days" envconfig:"NEW_INACTIVE_RECENCY_DAYS" validate:"gt=0"`

	Weights EngagementWeights `yaml:"weights" envconfig:"WEIGHTS"`

	RecencyBins    Binning `yaml:"recency_bins"`
	TenureBins     Binning `yaml:"tenure_bins"`
	SpendBins      Binning `yaml:"spend_bins"`
	FrequencyBins  Binning `yaml:"frequency_bins"`
	EngagementBins Binning `yaml:"engagement_bins"`
	TicketBins     Binning `yaml:"ticket_bins"`
	RiskBins       Binning `yaml:"risk_bins"`
}

// AssemblyConfig drives the final model-ready dataset assembly.
type AssemblyConfig struct {
	TargetColumn string `yaml:"target_column" envconfig:"TARGET_COLUMN" validate:"required"`
	// Class-rate bounds in percent. A positive rate outside the range is
	// reported as an integrity warning, not a failure.
	MinClassRatePct float64 `yaml:"min_class_rate_pct" envconfig:"MIN_CLASS_RATE_PCT" validate:"gte=0"`
	MaxClassRatePct float64 `yaml:"max_class_rate_pct" envconfig:"MAX_CLASS_RATE_PCT" validate:"gtfield=MinClassRatePct"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// Default returns the configuration matching the standard churn extract
// layout and the documented business thresholds.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			BronzeFile: "data/bronze/raw_data_customers.csv",
			SilverFile: "data/silver/customers_clean.csv",
			GoldFile:   "data/gold/customers_features.csv",
			ReportFile: "data/gold/run_report.json",
		},
		Cleaning: CleaningConfig{
			KeyColumn:      "customer_id",
			DateColumns:    []string{"signup_date", "last_purchase_date"},
			NumericColumns: []string{"monthly_spend", "total_shipments", "churn_label"},
			Sentinels:      []string{"NULL", "", "N/A"},
			DateFormats: []string{
				"2006-01-02",
				"02/01/2006",
				"01/02/2006",
				"2006/01/02",
				"02-01-2006",
			},
			NullRules: map[string]NullRule{
				"phone":              {Strategy: NullConstant, Constant: "MISSING"},
				"monthly_spend":      {Strategy: NullMedian},
				"total_shipments":    {Strategy: NullMedian},
				"last_purchase_date": {Strategy: NullForwardFill},
				"churn_label":        {Strategy: NullDropRow},
			},
			Outliers: OutlierConfig{
				Method:          "threshold",
				SpendColumn:     "monthly_spend",
				ShipmentsColumn: "total_shipments",
				SpendMin:        0,
				SpendMax:        15000,
				ShipmentsMax:    500,
				IQRFactor:       1.5,
				ZScoreLimit:     3,
			},
		},
		Anonymize: AnonymizeConfig{
			Columns:       []string{"full_name", "email", "phone", "home_address"},
			Salt:          "churn_pipeline_2025_salt",
			MissingMarker: "NULL",
		},
		Features: FeaturesConfig{
			RecencyWindowDays:  180,
			ActiveRecencyDays:  90,
			HighValueSpend:     1500,
			HighValueShipments: 50,
			LowEngagementScore: 30,
			NewTenureDays:      180,
			NewInactiveRecency: 90,
			Weights: EngagementWeights{
				Recency:   0.4,
				Frequency: 0.3,
				Monetary:  0.3,
			},
			RecencyBins: Binning{
				Boundaries: []float64{0, 30, 90, 180},
				Labels:     []string{"VeryRecent", "Recent", "Inactive", "VeryInactive"},
			},
			TenureBins: Binning{
				Boundaries: []float64{0, 180, 365, 730},
				Labels:     []string{"New", "Established", "Veteran", "LongStanding"},
			},
			SpendBins: Binning{
				Boundaries: []float64{0, 500, 1500, 5000},
				Labels:     []string{"Low", "Medium", "High", "Premium"},
			},
			FrequencyBins: Binning{
				Boundaries: []float64{0, 10, 30, 100},
				Labels:     []string{"Occasional", "Regular", "Frequent", "VIP"},
			},
			EngagementBins: Binning{
				Boundaries: []float64{0, 25, 50, 75},
				Labels:     []string{"Low", "Medium", "High", "VeryHigh"},
			},
			TicketBins: Binning{
				Boundaries: []float64{0, 50, 100, 200},
				Labels:     []string{"Low", "Medium", "High", "Premium"},
			},
			RiskBins: Binning{
				Boundaries: []float64{0, 2, 4, 6},
				Labels:     []string{"Low", "Medium", "High", "Critical"},
			},
		},
		Assembly: AssemblyConfig{
			TargetColumn:    "churn_label",
			MinClassRatePct: 10,
			MaxClassRatePct: 50,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/pipeline.log",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then CHURN_* environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("CHURN", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks structural tags plus the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	for col, rule := range c.Cleaning.NullRules {
		if !rule.Strategy.IsValid() {
			return fmt.Errorf("null rule for %s has unknown strategy %q", col, rule.Strategy)
		}
		if rule.Strategy == NullConstant && rule.Constant == "" {
			return fmt.Errorf("null rule for %s uses constant strategy without a constant", col)
		}
	}

	sum := c.Features.Weights.Recency + c.Features.Weights.Frequency + c.Features.Weights.Monetary
	if diff := sum - 1; diff > 1e-9 || diff < -1e-9 {
		return fmt.Errorf("engagement weights sum to %v, want 1", sum)
	}

	if c.Features.ReferenceDate != "" {
		if _, err := time.Parse("2006-01-02", c.Features.ReferenceDate); err != nil {
			return fmt.Errorf("invalid reference date %q: %w", c.Features.ReferenceDate, err)
		}
	}

	bins := map[string]Binning{
		"recency_bins":    c.Features.RecencyBins,
		"tenure_bins":     c.Features.TenureBins,
		"spend_bins":      c.Features.SpendBins,
		"frequency_bins":  c.Features.FrequencyBins,
		"engagement_bins": c.Features.EngagementBins,
		"ticket_bins":     c.Features.TicketBins,
		"risk_bins":       c.Features.RiskBins,
	}
	for name, b := range bins {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return nil
}
