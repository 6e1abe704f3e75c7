package config

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"itc-reconciliation-service/internal/matcher"
	"itc-reconciliation-service/internal/reporter"
	"itc-reconciliation-service/internal/storage"
	"itc-reconciliation-service/pkg/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Database.Driver != storage.DriverSQLite {
		t.Errorf("expected sqlite driver, got %s", cfg.Database.Driver)
	}
	if cfg.Reconcile.DatasetName != "GSTR-2B" {
		t.Errorf("expected dataset name GSTR-2B, got %s", cfg.Reconcile.DatasetName)
	}
	if !cfg.Reconcile.RecordChecks {
		t.Error("expected compliance checks to be recorded by default")
	}

	matching, err := cfg.MatchingConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !matching.IsExact() {
		t.Error("expected exact matching by default")
	}
}

func TestLoad(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	err := v.ReadConfig(strings.NewReader(`
database:
  driver: postgres
  dsn: host=localhost dbname=itc
matching:
  amount_tolerance: "1.00"
  amount_tolerance_percent: 0.5
  compare_mode: total
reconcile:
  max_concurrency: 4
server:
  address: ":9090"
  shutdown_timeout: 5s
report:
  format: json
parsers:
  delimiter: ";"
  return_period: "042024"
  return_sheets: [B2B, B2BA]
`))
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Driver != storage.DriverPostgres || cfg.Database.DSN != "host=localhost dbname=itc" {
		t.Errorf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.Database.MaxOpenConns != 10 {
		t.Errorf("expected unset keys to keep defaults, got max_open_conns %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Reconcile.MaxConcurrency != 4 || !cfg.Reconcile.RecordChecks {
		t.Errorf("unexpected reconcile config: %+v", cfg.Reconcile)
	}
	if cfg.Server.Address != ":9090" || cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}

	matching, err := cfg.MatchingConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !matching.AmountTolerance.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected tolerance 1, got %s", matching.AmountTolerance)
	}
	if matching.CompareMode != matcher.CompareTotal {
		t.Errorf("expected total compare mode, got %s", matching.CompareMode)
	}

	report, err := cfg.ReportConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Format != reporter.FormatJSON {
		t.Errorf("expected json format, got %s", report.Format)
	}

	returns := cfg.ReturnParserConfig()
	if returns.Delimiter != ';' || returns.ReturnPeriod != "042024" || len(returns.Sheets) != 2 {
		t.Errorf("unexpected return parser config: %+v", returns)
	}
	if cfg.InvoiceParserConfig().Delimiter != ';' {
		t.Error("expected the delimiter to apply to invoice registers")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ITCRECON_DATABASE_DSN", "/tmp/env.db")
	t.Setenv("ITCRECON_RECONCILE_RECORD_CHECKS", "false")
	t.Setenv("ITCRECON_MATCHING_COMPARE_MODE", "total")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.DSN != "/tmp/env.db" {
		t.Errorf("expected dsn from environment, got %s", cfg.Database.DSN)
	}
	if cfg.Reconcile.RecordChecks {
		t.Error("expected record_checks to be disabled from environment")
	}
	if cfg.Matching.CompareMode != "total" {
		t.Errorf("expected compare mode from environment, got %s", cfg.Matching.CompareMode)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*AppConfig)
		setting string
	}{
		{
			name:    "unknown driver",
			modify:  func(c *AppConfig) { c.Database.Driver = "oracle" },
			setting: "database",
		},
		{
			name:    "bad tolerance",
			modify:  func(c *AppConfig) { c.Matching.AmountTolerance = "one rupee" },
			setting: "matching",
		},
		{
			name:    "negative tolerance",
			modify:  func(c *AppConfig) { c.Matching.AmountTolerance = "-1" },
			setting: "matching",
		},
		{
			name:    "unknown compare mode",
			modify:  func(c *AppConfig) { c.Matching.CompareMode = "fuzzy" },
			setting: "matching",
		},
		{
			name:    "zero concurrency",
			modify:  func(c *AppConfig) { c.Reconcile.MaxConcurrency = 0 },
			setting: "reconcile.max_concurrency",
		},
		{
			name:    "unknown report format",
			modify:  func(c *AppConfig) { c.Report.Format = "pdf" },
			setting: "report.format",
		},
		{
			name:    "multi-character delimiter",
			modify:  func(c *AppConfig) { c.Parsers.Delimiter = ";;" },
			setting: "parsers.delimiter",
		},
		{
			name:    "negative header search",
			modify:  func(c *AppConfig) { c.Parsers.HeaderSearchRows = -1 },
			setting: "parsers.header_search_rows",
		},
		{
			name:    "bad log level",
			modify:  func(c *AppConfig) { c.Log.Level = "loud" },
			setting: "log",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error but got none")
			}
			rerr, ok := errors.AsReconcilerError(err)
			if !ok || rerr.Category != errors.CategoryConfiguration {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if rerr.Context["setting"] != tt.setting {
				t.Errorf("expected setting %s, got %v", tt.setting, rerr.Context["setting"])
			}
		})
	}
}

func TestDelimiter(t *testing.T) {
	tests := []struct {
		value    string
		expected rune
	}{
		{"", ','},
		{",", ','},
		{";", ';'},
		{"tab", '\t'},
		{"|", '|'},
	}

	for _, tt := range tests {
		cfg := Default()
		cfg.Parsers.Delimiter = tt.value
		got, err := cfg.delimiter()
		if err != nil {
			t.Errorf("delimiter(%q): unexpected error %v", tt.value, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("delimiter(%q) = %q, expected %q", tt.value, got, tt.expected)
		}
	}
}

func TestReportConfigOverride(t *testing.T) {
	cfg := Default()
	cfg.Report.IncludeMatched = true

	report, err := cfg.ReportConfig("XLSX")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Format != reporter.FormatXLSX || !report.IncludeMatched {
		t.Errorf("unexpected report config: %+v", report)
	}
}
