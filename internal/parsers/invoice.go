package parsers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"itc-reconciliation-service/internal/models"
	"itc-reconciliation-service/pkg/errors"
	"itc-reconciliation-service/pkg/logger"
)

// InvoiceParser reads invoice registers submitted for eligibility checks
type InvoiceParser struct {
	*BaseParser
	config *InvoiceParserConfig
	logger logger.Logger
}

// NewInvoiceParser creates a new InvoiceParser with the given configuration
func NewInvoiceParser(config *InvoiceParserConfig, log logger.Logger) (*InvoiceParser, error) {
	if config == nil {
		config = DefaultInvoiceParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"invoice_parser_config",
			config,
			err,
		).WithSuggestion("Check the invoice parser configuration values")
	}

	log = logger.OrGlobal(log)
	return &InvoiceParser{
		BaseParser: NewBaseParser(config.parseConfig(), log),
		config:     config,
		logger:     log.WithComponent("invoice_parser"),
	}, nil
}

// ParseInvoices reads every invoice in filePath. Rows are not validated
// here: a row with a blank invoice number is returned as-is so that the
// evaluator reports it against its line.
func (p *InvoiceParser) ParseInvoices(ctx context.Context, filePath string) ([]*models.Invoice, *ParseStats, error) {
	p.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"operation": "parse_invoices",
	}).Info("Starting invoice parsing")

	var invoices []*models.Invoice
	stats, err := p.Walk(ctx, filePath, p.config.columns(), func(record []string, pc *ParseContext) error {
		inv, perr := p.parseInvoiceFromRecord(record, pc)
		if perr != nil {
			return perr
		}
		invoices = append(invoices, inv)
		return nil
	})
	if err != nil {
		p.logger.WithError(err).WithField("file_path", filePath).Error("Invoice parsing failed")
		return invoices, stats, err
	}

	p.logger.WithFields(logger.Fields{
		"file_path":      filePath,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount,
	}).Info("Invoice parsing completed")

	if stats.HasErrors() {
		p.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Encountered errors during parsing")
	}

	return invoices, stats, nil
}

func (p *InvoiceParser) parseInvoiceFromRecord(record []string, pc *ParseContext) (*models.Invoice, *ParseError) {
	inv := &models.Invoice{
		InvoiceNumber: p.GetFieldValue(record, pc, ColumnInvoiceNumber),
		SupplierGSTIN: p.GetFieldValue(record, pc, ColumnSupplierGSTIN),
	}

	var perr *ParseError
	if inv.CGST, perr = parseAmount(record, pc, p.BaseParser, ColumnCGST); perr != nil {
		return nil, perr
	}
	if inv.SGST, perr = parseAmount(record, pc, p.BaseParser, ColumnSGST); perr != nil {
		return nil, perr
	}
	if inv.IGST, perr = parseAmount(record, pc, p.BaseParser, ColumnIGST); perr != nil {
		return nil, perr
	}
	if inv.InvoiceDate, perr = parseDate(record, pc, p.BaseParser, ColumnInvoiceDate, p.config.DateFormat); perr != nil {
		return nil, perr
	}

	return inv, nil
}

func parseAmount(record []string, pc *ParseContext, bp *BaseParser, column string) (decimal.Decimal, *ParseError) {
	value := bp.GetFieldValue(record, pc, column)
	amount, err := models.ParseDecimalFromString(value)
	if err != nil {
		return decimal.Zero, pc.NewError(column, value, "invalid amount", err)
	}
	return amount, nil
}

// parseDate accepts the configured layout, the common register formats and
// raw spreadsheet serial dates. A blank cell is the zero date.
func parseDate(record []string, pc *ParseContext, bp *BaseParser, column, layout string) (models.Date, *ParseError) {
	value := bp.GetFieldValue(record, pc, column)
	if value == "" {
		return models.Date{}, nil
	}

	if layout != "" {
		if t, err := time.Parse(layout, value); err == nil {
			return models.NewDate(t), nil
		}
	}

	if serial, err := strconv.ParseFloat(value, 64); err == nil && !strings.ContainsAny(value, "-/") {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return models.Date{}, pc.NewError(column, value, "invalid date", err)
		}
		return models.NewDate(t), nil
	}

	t, err := models.ParseTimeWithFormats(value)
	if err != nil {
		return models.Date{}, pc.NewError(column, value, "invalid date", err)
	}
	return models.NewDate(t), nil
}
