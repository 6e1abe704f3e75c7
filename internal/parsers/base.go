// Package parsers reads invoice registers and GSTR-2B return files.
//
// Both CSV and XLSX inputs are supported. Headers are matched by logical
// column with a set of accepted spellings, so files downloaded from the GST
// portal can be loaded without renaming columns.
//
// Parser Types:
//   - InvoiceParser: purchase invoices submitted for an ITC claim
//   - ReturnParser: supplier-reported GSTR-2B records
//
// Example usage:
//
//	parser, err := NewReturnParser(DefaultReturnParserConfig(), log)
//	records, stats, err := parser.ParseReturns(ctx, "gstr2b_apr.xlsx")
//
// Rows that cannot be parsed are collected in ParseStats and skipped; only
// problems with the file itself (missing, unreadable, missing required
// columns) fail the whole parse.
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"itc-reconciliation-service/pkg/errors"
	"itc-reconciliation-service/pkg/logger"
)

// Format is the on-disk format of an input file
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat picks the format from the file extension
func DetectFormat(filePath string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", errors.ParseError(
			errors.CodeInvalidFormat,
			filePath,
			0,
			"extension",
			filepath.Ext(filePath),
			fmt.Errorf("unsupported file type"),
		).WithSuggestion("Provide a .csv or .xlsx file")
	}
}

// ParseError represents an error that occurred while parsing a single row
type ParseError struct {
	Line    int
	Column  int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at line %d, column %d (%s='%s'): %s: %v",
			e.Line, e.Column, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at line %d, column %d (%s='%s'): %s",
		e.Line, e.Column, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseConfig holds configuration for reading rows
type ParseConfig struct {
	HasHeader        bool
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	ValidateEncoding bool

	// Sheets lists preferred worksheet names for XLSX input; the first
	// sheet of the workbook is used when none of them exists
	Sheets []string

	// HeaderSearchRows is how many leading rows may be scanned for the
	// header row. Portal downloads carry title rows above the header.
	HeaderSearchRows int
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        ',',
		Comment:          0,
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     1000000, // 1MB per field
		ValidateEncoding: true,
		HeaderSearchRows: 1,
	}
}

// Column is one logical field of an input file
type Column struct {
	Name     string
	Headers  []string
	Required bool
}

// RowReader yields the raw rows of an input file. Read returns io.EOF after
// the last row.
type RowReader interface {
	Read() ([]string, error)
	Close() error
}

type csvRowReader struct {
	file   *os.File
	reader *csv.Reader
}

func (r *csvRowReader) Read() ([]string, error) { return r.reader.Read() }
func (r *csvRowReader) Close() error            { return r.file.Close() }

type xlsxRowReader struct {
	file *excelize.File
	rows [][]string
	next int
}

func (r *xlsxRowReader) Read() ([]string, error) {
	if r.next >= len(r.rows) {
		return nil, io.EOF
	}
	row := r.rows[r.next]
	r.next++
	return row, nil
}

func (r *xlsxRowReader) Close() error { return r.file.Close() }

// BaseParser provides the row handling shared by every parser
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig, log logger.Logger) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}
	if config.HeaderSearchRows <= 0 {
		config.HeaderSearchRows = 1
	}

	log = logger.OrGlobal(log).WithComponent("base_parser")
	log.WithFields(logger.Fields{
		"has_header":         config.HasHeader,
		"delimiter":          string(config.Delimiter),
		"validate_encoding":  config.ValidateEncoding,
		"header_search_rows": config.HeaderSearchRows,
	}).Debug("Created base parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

type pendingRow struct {
	line   int
	record []string
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	File       string
	LineNumber int
	Headers    []string
	Columns    map[string]int
	ctx        context.Context
	pending    []pendingRow
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, file string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		File:    file,
		Columns: make(map[string]int),
		ctx:     ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// GetColumnIndex returns the index of a logical column, or -1 if the file
// does not carry it
func (pc *ParseContext) GetColumnIndex(name string) int {
	if index, exists := pc.Columns[name]; exists {
		return index
	}
	return -1
}

// NewError builds a row error at the current line
func (pc *ParseContext) NewError(field, value, message string, err error) *ParseError {
	return &ParseError{
		Line:    pc.LineNumber,
		Column:  pc.GetColumnIndex(field),
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	}
}

// OpenFile opens a CSV or XLSX file for row reading
func (bp *BaseParser) OpenFile(filePath string) (RowReader, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening input file")

	format, err := DetectFormat(filePath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fileError(filePath, err)
	}
	if info.IsDir() {
		return nil, errors.FileError(errors.CodeFileNotFound, filePath, fmt.Errorf("path is a directory"))
	}

	if format == FormatXLSX {
		return bp.openXLSX(filePath)
	}
	return bp.openCSV(filePath)
}

func fileError(filePath string, err error) error {
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err)
	}
	if os.IsPermission(err) {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}
	return errors.FileError(errors.CodeFileCorrupted, filePath, err)
}

func (bp *BaseParser) openCSV(filePath string) (RowReader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open CSV file")
		return nil, fileError(filePath, err)
	}

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(file, filePath); err != nil {
			file.Close()
			bp.logger.WithError(err).WithField("file_path", filePath).Error("File encoding validation failed")
			return nil, err
		}

		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
		}
	}

	reader := csv.NewReader(file)
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	return &csvRowReader{file: file, reader: reader}, nil
}

func (bp *BaseParser) openXLSX(filePath string) (RowReader, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open workbook")
		if os.IsNotExist(err) || os.IsPermission(err) {
			return nil, fileError(filePath, err)
		}
		return nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}

	sheet := bp.pickSheet(f.GetSheetList())
	if sheet == "" {
		f.Close()
		return nil, errors.FileError(errors.CodeFileCorrupted, filePath, fmt.Errorf("workbook has no sheets"))
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		f.Close()
		return nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}

	bp.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"sheet":     sheet,
		"rows":      len(rows),
	}).Debug("Loaded worksheet")

	return &xlsxRowReader{file: f, rows: rows}, nil
}

func (bp *BaseParser) pickSheet(available []string) string {
	for _, want := range bp.config.Sheets {
		for _, name := range available {
			if strings.EqualFold(strings.TrimSpace(name), want) {
				return name
			}
		}
	}
	if len(available) == 0 {
		return ""
	}
	return available[0]
}

// validateEncoding checks if the file contains valid UTF-8 text
func (bp *BaseParser) validateEncoding(file *os.File, filePath string) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), bp.config.MaxFieldSize+64*1024)
	lineNum := 0

	for scanner.Scan() && lineNum < 100 {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(
				errors.CodeEncodingError,
				filePath,
				lineNum,
				"encoding",
				"",
				fmt.Errorf("invalid UTF-8 encoding detected"),
			).WithSuggestion("Save the file in UTF-8 encoding and try again")
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}

	return nil
}

// ReadHeaders locates the header row and resolves every column against it.
// A header may be split over two rows, as in GSTR-2B workbooks where tax
// heads sit under a merged "Tax Amount" cell.
func (bp *BaseParser) ReadHeaders(reader RowReader, parseCtx *ParseContext, columns []Column) error {
	if !bp.config.HasHeader {
		for i, col := range columns {
			parseCtx.Headers = append(parseCtx.Headers, col.Name)
			parseCtx.Columns[col.Name] = i
		}
		bp.logger.WithField("default_headers", parseCtx.Headers).Debug("Using positional columns")
		return nil
	}

	var lookahead []pendingRow
	for len(lookahead) < bp.config.HeaderSearchRows+1 {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.ParseError(errors.CodeInvalidFormat, parseCtx.File, parseCtx.LineNumber+1, "headers", "", err).
				WithSuggestion("Check the file format and ensure it's a valid CSV or XLSX file")
		}
		parseCtx.LineNumber++
		lookahead = append(lookahead, pendingRow{line: parseCtx.LineNumber, record: record})
	}

	if len(lookahead) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "file_content", "empty", nil).
			WithSuggestion("Ensure the file contains header and data rows")
	}
	if len(lookahead[0].record) > 0 {
		lookahead[0].record[0] = strings.TrimPrefix(lookahead[0].record[0], "\ufeff")
	}

	var best []string
	for i := 0; i < len(lookahead) && i < bp.config.HeaderSearchRows; i++ {
		candidates := [][]string{lookahead[i].record}
		if i+1 < len(lookahead) && bp.config.HeaderSearchRows > 1 {
			candidates = append(candidates, mergeHeaderRows(lookahead[i].record, lookahead[i+1].record))
		}

		for n, headers := range candidates {
			resolved, missing := resolveColumns(headers, columns)
			if len(missing) > 0 {
				if best == nil || len(missing) < len(bp.missingFor(best, columns)) {
					best = headers
				}
				continue
			}

			parseCtx.Headers = cleanHeaders(headers)
			parseCtx.Columns = resolved
			parseCtx.pending = lookahead[i+1+n:]

			bp.logger.WithFields(logger.Fields{
				"header_line": lookahead[i].line,
				"headers":     parseCtx.Headers,
			}).Debug("Resolved headers")
			return nil
		}
	}

	missing := bp.missingFor(best, columns)
	bp.logger.WithFields(logger.Fields{
		"missing_headers":   missing,
		"available_headers": cleanHeaders(best),
	}).Error("Required headers are missing")

	return errors.ParseError(
		errors.CodeMissingColumn,
		parseCtx.File,
		0,
		strings.Join(missing, ", "),
		"",
		nil,
	).WithSuggestion(fmt.Sprintf("Ensure the file contains these columns: %s", strings.Join(missing, ", ")))
}

func (bp *BaseParser) missingFor(headers []string, columns []Column) []string {
	_, missing := resolveColumns(headers, columns)
	return missing
}

// resolveColumns maps each column to the header matching its earliest
// accepted spelling, and reports required columns that did not resolve
func resolveColumns(headers []string, columns []Column) (map[string]int, []string) {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		key := normalizeHeader(h)
		if _, seen := index[key]; !seen && key != "" {
			index[key] = i
		}
	}

	resolved := make(map[string]int, len(columns))
	var missing []string
	for _, col := range columns {
		found := false
		candidates := make([]string, 0, len(col.Headers)+1)
		candidates = append(candidates, col.Headers...)
		candidates = append(candidates, col.Name)
		for _, name := range candidates {
			if i, ok := index[normalizeHeader(name)]; ok {
				resolved[col.Name] = i
				found = true
				break
			}
		}
		if !found && col.Required {
			missing = append(missing, col.Name)
		}
	}
	return resolved, missing
}

// mergeHeaderRows overlays the second header row on the first
func mergeHeaderRows(top, bottom []string) []string {
	n := len(top)
	if len(bottom) > n {
		n = len(bottom)
	}
	merged := make([]string, n)
	for i := range merged {
		if i < len(bottom) && strings.TrimSpace(bottom[i]) != "" {
			merged[i] = bottom[i]
		} else if i < len(top) {
			merged[i] = top[i]
		}
	}
	return merged
}

// normalizeHeader reduces a header to lower-case letters and digits, so
// "State/UT Tax(₹)" and "state_ut_tax" compare equal
func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		cleaned[i] = strings.TrimSpace(header)
	}
	return cleaned
}

// ReadRecord returns the next data row, skipping empty rows when configured
func (bp *BaseParser) ReadRecord(reader RowReader, parseCtx *ParseContext) ([]string, error) {
	for {
		if parseCtx.IsCancelled() {
			return nil, errors.InternalError(errors.CodeCancelled, "file_parsing", parseCtx.ctx.Err())
		}

		var record []string
		if len(parseCtx.pending) > 0 {
			next := parseCtx.pending[0]
			parseCtx.pending = parseCtx.pending[1:]
			parseCtx.LineNumber = next.line
			record = next.record
		} else {
			var err error
			record, err = reader.Read()
			if err != nil {
				if err != io.EOF {
					parseCtx.LineNumber++
					bp.logger.WithError(err).WithField("line_number", parseCtx.LineNumber).Warn("Failed to read record")
				}
				return nil, err
			}
			parseCtx.LineNumber++
		}

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		if bp.config.MaxFieldSize > 0 {
			for i, field := range record {
				if len(field) > bp.config.MaxFieldSize {
					return nil, &ParseError{
						Line:    parseCtx.LineNumber,
						Column:  i,
						Field:   fmt.Sprintf("field_%d", i),
						Value:   field[:50] + "...",
						Message: fmt.Sprintf("field exceeds maximum size of %d bytes", bp.config.MaxFieldSize),
					}
				}
			}
		}

		return record, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// GetFieldValue returns the trimmed value of a logical column. Columns the
// file does not carry, and cells trimmed from short rows, read as empty.
func (bp *BaseParser) GetFieldValue(record []string, parseCtx *ParseContext, name string) string {
	index := parseCtx.GetColumnIndex(name)
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// Walk reads every data row of filePath and hands it to visit. A row error
// returned by visit is recorded and the row skipped; any other error stops
// the walk.
func (bp *BaseParser) Walk(
	ctx context.Context,
	filePath string,
	columns []Column,
	visit func(record []string, parseCtx *ParseContext) error,
) (*ParseStats, error) {

	reader, err := bp.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	parseCtx := NewParseContext(ctx, filePath)
	stats := NewParseStats()

	if err := bp.ReadHeaders(reader, parseCtx, columns); err != nil {
		return stats, err
	}

	for {
		record, err := bp.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if rerr, ok := errors.AsReconcilerError(err); ok && rerr.Category == errors.CategoryInternal {
				return stats, err
			}
			if pe, ok := err.(*ParseError); ok {
				stats.AddError(pe)
				continue
			}
			stats.AddError(parseCtx.NewError("record", "", "malformed row", err))
			continue
		}

		stats.RecordsParsed++
		if err := visit(record, parseCtx); err != nil {
			if pe, ok := err.(*ParseError); ok {
				stats.AddError(pe)
				continue
			}
			return stats, err
		}
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber
	return stats, nil
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	ErrorCount    int
	Errors        []*ParseError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats() *ParseStats {
	return &ParseStats{
		Errors: make([]*ParseError, 0),
	}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount)
}

// GetSampleErrors returns a sample of the parsing errors for logging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}

	return samples
}
