package config

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"itc-reconciliation-service/internal/api"
	"itc-reconciliation-service/internal/matcher"
	"itc-reconciliation-service/internal/parsers"
	"itc-reconciliation-service/internal/reconciler"
	"itc-reconciliation-service/internal/reporter"
	"itc-reconciliation-service/internal/storage"
	"itc-reconciliation-service/pkg/errors"
	"itc-reconciliation-service/pkg/logger"
)

// EnvPrefix prefixes every environment variable read by the CLI, so
// database.dsn is ITCRECON_DATABASE_DSN
const EnvPrefix = "ITCRECON"

// AppConfig is the complete CLI and server configuration
type AppConfig struct {
	Log       logger.Config     `mapstructure:"log"`
	Database  storage.Config    `mapstructure:"database"`
	Matching  MatchingSettings  `mapstructure:"matching"`
	Reconcile reconciler.Config `mapstructure:"reconcile"`
	Server    api.ServerConfig  `mapstructure:"server"`
	Report    ReportSettings    `mapstructure:"report"`
	Parsers   ParserSettings    `mapstructure:"parsers"`
}

// MatchingSettings is the configurable part of matcher.MatchingConfig.
// AmountTolerance is a decimal string so rupee amounts stay exact.
type MatchingSettings struct {
	AmountTolerance        string  `mapstructure:"amount_tolerance"`
	AmountTolerancePercent float64 `mapstructure:"amount_tolerance_percent"`
	CompareMode            string  `mapstructure:"compare_mode"`
}

// ReportSettings selects the report format and detail
type ReportSettings struct {
	Format         string `mapstructure:"format"`
	IncludeMatched bool   `mapstructure:"include_matched"`
	SortByAmount   bool   `mapstructure:"sort_by_amount"`
	MaxListItems   int    `mapstructure:"max_list_items"`
}

// ParserSettings overrides the invoice register and GSTR-2B parser defaults
type ParserSettings struct {
	InvoiceDateFormat string   `mapstructure:"invoice_date_format"`
	Delimiter         string   `mapstructure:"delimiter"`
	ReturnDateFormat  string   `mapstructure:"return_date_format"`
	ReturnPeriod      string   `mapstructure:"return_period"`
	ReturnSheets      []string `mapstructure:"return_sheets"`
	HeaderSearchRows  int      `mapstructure:"header_search_rows"`
}

// Default returns the configuration used when nothing is set
func Default() *AppConfig {
	returns := parsers.DefaultReturnParserConfig()

	return &AppConfig{
		Log:      *logger.DefaultConfig(),
		Database: *storage.DefaultConfig(),
		Matching: MatchingSettings{
			AmountTolerance:        "0",
			AmountTolerancePercent: 0,
			CompareMode:            matcher.CompareComponents.String(),
		},
		Reconcile: *reconciler.DefaultConfig(),
		Server:    *api.DefaultServerConfig(),
		Report: ReportSettings{
			Format:       string(reporter.FormatConsole),
			MaxListItems: 10,
		},
		Parsers: ParserSettings{
			Delimiter:        ",",
			ReturnDateFormat: returns.DateFormat,
			ReturnSheets:     returns.Sheets,
			HeaderSearchRows: returns.HeaderSearchRows,
		},
	}
}

// SetDefaults registers every key with viper so environment variables
// override them
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log.level", string(d.Log.Level))
	v.SetDefault("log.format", string(d.Log.Format))
	v.SetDefault("log.output", string(d.Log.Output))
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.caller_info", d.Log.CallerInfo)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.log_level", d.Database.LogLevel)
	v.SetDefault("database.auto_migrate", d.Database.AutoMigrate)

	v.SetDefault("matching.amount_tolerance", d.Matching.AmountTolerance)
	v.SetDefault("matching.amount_tolerance_percent", d.Matching.AmountTolerancePercent)
	v.SetDefault("matching.compare_mode", d.Matching.CompareMode)

	v.SetDefault("reconcile.dataset_name", d.Reconcile.DatasetName)
	v.SetDefault("reconcile.max_concurrency", d.Reconcile.MaxConcurrency)
	v.SetDefault("reconcile.record_checks", d.Reconcile.RecordChecks)
	v.SetDefault("reconcile.progress_reporting", d.Reconcile.ProgressReporting)

	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("report.format", d.Report.Format)
	v.SetDefault("report.include_matched", d.Report.IncludeMatched)
	v.SetDefault("report.sort_by_amount", d.Report.SortByAmount)
	v.SetDefault("report.max_list_items", d.Report.MaxListItems)

	v.SetDefault("parsers.invoice_date_format", d.Parsers.InvoiceDateFormat)
	v.SetDefault("parsers.delimiter", d.Parsers.Delimiter)
	v.SetDefault("parsers.return_date_format", d.Parsers.ReturnDateFormat)
	v.SetDefault("parsers.return_period", d.Parsers.ReturnPeriod)
	v.SetDefault("parsers.return_sheets", d.Parsers.ReturnSheets)
	v.SetDefault("parsers.header_search_rows", d.Parsers.HeaderSearchRows)
}

// Load reads the configuration from viper and validates it
func Load(v *viper.Viper) (*AppConfig, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", nil, err).
			WithSuggestion("Check the configuration file syntax and value types")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewViper returns a viper instance reading ITCRECON_ environment variables
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Validate checks every section and reports the first invalid setting
func (c *AppConfig) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return invalid("log", c.Log.Level, err)
	}
	if err := c.Database.Validate(); err != nil {
		return invalid("database", c.Database.Driver, err)
	}
	if _, err := c.MatchingConfig(); err != nil {
		return invalid("matching", c.Matching, err)
	}
	if err := c.Reconcile.Validate(); err != nil {
		return invalid("reconcile.max_concurrency", c.Reconcile.MaxConcurrency, err)
	}
	if c.Server.ShutdownTimeout < 0 || c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return invalid("server", c.Server, fmt.Errorf("timeouts cannot be negative"))
	}
	if _, err := c.ReportConfig(""); err != nil {
		return invalid("report.format", c.Report.Format, err)
	}
	if _, err := c.delimiter(); err != nil {
		return invalid("parsers.delimiter", c.Parsers.Delimiter, err)
	}
	if c.Parsers.HeaderSearchRows < 0 {
		return invalid("parsers.header_search_rows", c.Parsers.HeaderSearchRows,
			fmt.Errorf("header search rows cannot be negative"))
	}
	return nil
}

func invalid(setting string, value interface{}, err error) error {
	return errors.ConfigurationError(errors.CodeInvalidConfig, setting, value, err).
		WithSuggestion(fmt.Sprintf("Fix the %s setting in the config file, flags or %s_ environment", setting, EnvPrefix))
}

// MatchingConfig builds the matcher configuration
func (c *AppConfig) MatchingConfig() (*matcher.MatchingConfig, error) {
	config := matcher.DefaultMatchingConfig()

	if s := strings.TrimSpace(c.Matching.AmountTolerance); s != "" {
		tolerance, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid amount tolerance %q: %w", s, err)
		}
		config.AmountTolerance = tolerance
	}
	config.AmountTolerancePercent = c.Matching.AmountTolerancePercent

	mode, err := matcher.ParseCompareMode(c.Matching.CompareMode)
	if err != nil {
		return nil, err
	}
	config.CompareMode = mode

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ReportConfig builds the report configuration. A non-empty format overrides
// the configured one.
func (c *AppConfig) ReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()

	if format == "" {
		format = c.Report.Format
	}
	config.Format = reporter.OutputFormat(strings.ToLower(strings.TrimSpace(format)))
	config.IncludeMatched = c.Report.IncludeMatched
	config.SortByAmount = c.Report.SortByAmount
	config.MaxListItems = c.Report.MaxListItems

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// InvoiceParserConfig builds the invoice register parser configuration
func (c *AppConfig) InvoiceParserConfig() *parsers.InvoiceParserConfig {
	config := parsers.DefaultInvoiceParserConfig()
	config.DateFormat = c.Parsers.InvoiceDateFormat
	if d, err := c.delimiter(); err == nil {
		config.Delimiter = d
	}
	return config
}

// ReturnParserConfig builds the GSTR-2B parser configuration
func (c *AppConfig) ReturnParserConfig() *parsers.ReturnParserConfig {
	config := parsers.DefaultReturnParserConfig()
	if c.Parsers.ReturnDateFormat != "" {
		config.DateFormat = c.Parsers.ReturnDateFormat
	}
	config.ReturnPeriod = c.Parsers.ReturnPeriod
	if len(c.Parsers.ReturnSheets) > 0 {
		config.Sheets = c.Parsers.ReturnSheets
	}
	config.HeaderSearchRows = c.Parsers.HeaderSearchRows
	if d, err := c.delimiter(); err == nil {
		config.Delimiter = d
	}
	return config
}

// delimiter accepts a single character or the word "tab"
func (c *AppConfig) delimiter() (rune, error) {
	s := c.Parsers.Delimiter
	switch strings.ToLower(s) {
	case "":
		return ',', nil
	case "tab", `\t`:
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\n' || r == '\r' {
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	return r, nil
}

// ShutdownTimeout returns the server drain timeout, never zero
func (c *AppConfig) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeout <= 0 {
		return api.DefaultServerConfig().ShutdownTimeout
	}
	return c.Server.ShutdownTimeout
}
