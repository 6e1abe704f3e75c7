package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"itc-reconciliation-service/cmd/itcrecon/config"
	"itc-reconciliation-service/pkg/errors"
	"itc-reconciliation-service/pkg/logger"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootOptions is the state shared by every subcommand
type rootOptions struct {
	cfgFile string
	envFile string
	verbose bool

	v      *viper.Viper
	cfg    *config.AppConfig
	log    logger.Logger
	stdout io.Writer
	stderr io.Writer
}

// newRootCmd builds the command tree
func newRootCmd(stdout, stderr io.Writer) (*cobra.Command, *rootOptions) {
	opts := &rootOptions{
		v:      config.NewViper(),
		stdout: stdout,
		stderr: stderr,
	}

	rootCmd := &cobra.Command{
		Use:   "itcrecon",
		Short: "GST input tax credit eligibility and GSTR-2B reconciliation",
		Long: `itcrecon checks purchase invoices against the GSTR-2B return data filed by
suppliers, decides input tax credit eligibility, reconciles the invoice
register and keeps an append-only compliance audit trail.

Examples:
  itcrecon import-returns --file GSTR2B_042024.xlsx
  itcrecon evaluate --file invoices.csv --output-format json
  itcrecon reconcile --output-format xlsx --output-file reconciliation.xlsx
  itcrecon checks
  itcrecon serve --address :8080`,
		Version:           getVersionString(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.initConfig,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (yaml, json or toml; optional)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	flags.String("db-driver", "", "database driver: sqlite or postgres")
	flags.String("db-dsn", "", "database connection string")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")

	_ = opts.v.BindPFlag("database.driver", flags.Lookup("db-driver"))
	_ = opts.v.BindPFlag("database.dsn", flags.Lookup("db-dsn"))
	_ = opts.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = opts.v.BindPFlag("log.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(
		newImportCmd(opts),
		newEvaluateCmd(opts),
		newReconcileCmd(opts),
		newChecksCmd(opts),
		newServeCmd(opts),
	)

	return rootCmd, opts
}

// Execute runs the CLI and returns the process exit code
func Execute() int {
	rootCmd, opts := newRootCmd(os.Stdout, os.Stderr)
	err := rootCmd.Execute()
	return NewCLIErrorHandler(opts.stderr, opts.verbose).HandleError(err)
}

// initConfig loads .env, the config file and the environment, then sets up
// the global logger
func (o *rootOptions) initConfig(cmd *cobra.Command, args []string) error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !os.IsNotExist(err) {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "env-file", o.envFile, err).
				WithSuggestion("Check the dotenv file syntax")
		}
	}

	if o.cfgFile != "" {
		o.v.SetConfigFile(o.cfgFile)
		if err := o.v.ReadInConfig(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "config", o.cfgFile, err).
				WithSuggestion("Check the config file path and syntax")
		}
	}

	cfg, err := config.Load(o.v)
	if err != nil {
		return err
	}
	if o.verbose {
		cfg.Log.Level = logger.DebugLevel
	}

	log, err := logger.NewLogger(&cfg.Log)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", cfg.Log, err)
	}
	logger.SetGlobalLogger(log)

	o.cfg = cfg
	o.log = log
	if o.cfgFile != "" {
		log.WithField("config_file", o.v.ConfigFileUsed()).Debug("Using config file")
	}
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
