package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"itc-reconciliation-service/internal/reconciler"
	"itc-reconciliation-service/internal/reporter"
	"itc-reconciliation-service/internal/storage"
	"itc-reconciliation-service/pkg/errors"
)

// application is the wired service a command runs against
type application struct {
	db      *storage.Database
	returns *storage.ReturnRecordRepository
	service *reconciler.ReconciliationService
}

// openApplication connects to the configured database and builds the
// reconciliation service on its repositories
func (o *rootOptions) openApplication() (*application, error) {
	db, err := storage.Open(&o.cfg.Database, o.log)
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeStoreUnavailable, "open_database", err).
			WithSuggestion("Check --db-driver and --db-dsn or the database section of the config")
	}

	matchingConfig, err := o.cfg.MatchingConfig()
	if err != nil {
		_ = db.Close()
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", o.cfg.Matching, err)
	}

	returns := storage.NewReturnRecordRepository(db.DB)
	service, err := reconciler.NewReconciliationService(
		reconciler.Dependencies{
			Invoices:     storage.NewInvoiceRepository(db.DB),
			Returns:      returns,
			Transactions: storage.NewTransactionRepository(db.DB),
			Checks:       storage.NewComplianceCheckRepository(db.DB),
		},
		matchingConfig,
		&o.cfg.Reconcile,
		o.log,
	)
	if err != nil {
		_ = db.Close()
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconcile", o.cfg.Reconcile, err)
	}

	return &application{db: db, returns: returns, service: service}, nil
}

func (a *application) Close() error {
	return a.db.Close()
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// writeReport renders a report to outputFile, or to stdout when it is empty
func (o *rootOptions) writeReport(format, outputFile string, result interface{}) error {
	reportConfig, err := o.cfg.ReportConfig(format)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", format, err).
			WithSuggestion("Use one of: console, json, csv, xlsx")
	}

	generator, err := reporter.NewSafeReportGenerator(reportConfig, o.log)
	if err != nil {
		return err
	}

	var output io.Writer = o.stdout
	if outputFile != "" {
		if dir := filepath.Dir(outputFile); dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.FileError(errors.CodeFileNotFound, dir, err).
					WithSuggestion("Create the output directory first")
			}
		}

		file, err := os.Create(outputFile)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, outputFile, err)
		}
		defer file.Close()
		output = file
	} else if reportConfig.Format.IsBinary() {
		return errors.ConfigurationError(errors.CodeMissingConfig, "output-file", nil, nil).
			WithSuggestion("Use --output-file with the xlsx format")
	}

	return generator.GenerateReportSafely(result, output)
}
