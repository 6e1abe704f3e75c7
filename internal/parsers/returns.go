package parsers

import (
	"context"

	"itc-reconciliation-service/internal/models"
	"itc-reconciliation-service/pkg/errors"
	"itc-reconciliation-service/pkg/logger"
)

// ReturnParser reads GSTR-2B downloads into return records
type ReturnParser struct {
	*BaseParser
	config *ReturnParserConfig
	logger logger.Logger
}

// NewReturnParser creates a new ReturnParser with the given configuration
func NewReturnParser(config *ReturnParserConfig, log logger.Logger) (*ReturnParser, error) {
	if config == nil {
		config = DefaultReturnParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"return_parser_config",
			config,
			err,
		).WithSuggestion("Check the return parser configuration values")
	}

	log = logger.OrGlobal(log)
	return &ReturnParser{
		BaseParser: NewBaseParser(config.parseConfig(), log),
		config:     config,
		logger:     log.WithComponent("return_parser"),
	}, nil
}

// ParseReturns reads every record in filePath. Records without an invoice
// number or supplier GSTIN are reported in the stats and skipped. GSTINs are
// normalised so that lookups match normalised invoices.
func (p *ReturnParser) ParseReturns(ctx context.Context, filePath string) ([]*models.ReturnRecord, *ParseStats, error) {
	p.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"operation": "parse_returns",
	}).Info("Starting return dataset parsing")

	var records []*models.ReturnRecord
	stats, err := p.Walk(ctx, filePath, p.config.columns(), func(record []string, pc *ParseContext) error {
		rec, perr := p.parseReturnFromRecord(record, pc)
		if perr != nil {
			return perr
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		p.logger.WithError(err).WithField("file_path", filePath).Error("Return dataset parsing failed")
		return records, stats, err
	}

	p.logger.WithFields(logger.Fields{
		"file_path":      filePath,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount,
	}).Info("Return dataset parsing completed")

	if stats.HasErrors() {
		p.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Encountered errors during parsing")
	}

	return records, stats, nil
}

func (p *ReturnParser) parseReturnFromRecord(record []string, pc *ParseContext) (*models.ReturnRecord, *ParseError) {
	rec := &models.ReturnRecord{
		InvoiceNumber: p.GetFieldValue(record, pc, ColumnInvoiceNumber),
		SupplierGSTIN: models.NormalizeGSTIN(p.GetFieldValue(record, pc, ColumnSupplierGSTIN)),
		SupplierName:  p.GetFieldValue(record, pc, ColumnSupplierName),
		ReturnPeriod:  p.GetFieldValue(record, pc, ColumnReturnPeriod),
	}
	if rec.ReturnPeriod == "" {
		rec.ReturnPeriod = p.config.ReturnPeriod
	}

	if err := rec.Validate(); err != nil {
		return nil, pc.NewError("record", rec.InvoiceNumber, "invalid return record", err)
	}

	var perr *ParseError
	if rec.CGST, perr = parseAmount(record, pc, p.BaseParser, ColumnCGST); perr != nil {
		return nil, perr
	}
	if rec.SGST, perr = parseAmount(record, pc, p.BaseParser, ColumnSGST); perr != nil {
		return nil, perr
	}
	if rec.IGST, perr = parseAmount(record, pc, p.BaseParser, ColumnIGST); perr != nil {
		return nil, perr
	}
	if rec.InvoiceDate, perr = parseDate(record, pc, p.BaseParser, ColumnInvoiceDate, p.config.DateFormat); perr != nil {
		return nil, perr
	}

	return rec, nil
}
