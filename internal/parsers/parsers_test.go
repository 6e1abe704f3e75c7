package parsers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"itc-reconciliation-service/pkg/errors"
	"itc-reconciliation-service/pkg/logger"
)

// Helper function to create a temporary input file
func createTempFile(t *testing.T, pattern, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		tmpFile.Close()
		t.Fatalf("Failed to write temp file: %v", err)
	}
	tmpFile.Close()

	return tmpFile.Name()
}

func createTempCSVFile(t *testing.T, content string) string {
	return createTempFile(t, "test_*.csv", content)
}

// createWorkbook writes rows into the named sheet of a new workbook
func createWorkbook(t *testing.T, sheet string, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(sheet); err != nil {
		t.Fatalf("Failed to create sheet: %v", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("Invalid cell: %v", err)
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("Failed to write row %d: %v", i+1, err)
		}
	}

	path := filepath.Join(t.TempDir(), "gstr2b.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("Failed to save workbook: %v", err)
	}
	return path
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func newInvoiceParser(t *testing.T, config *InvoiceParserConfig) *InvoiceParser {
	t.Helper()
	parser, err := NewInvoiceParser(config, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}
	return parser
}

func newReturnParser(t *testing.T, config *ReturnParserConfig) *ReturnParser {
	t.Helper()
	parser, err := NewReturnParser(config, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}
	return parser
}

func TestDefaultParseConfig(t *testing.T) {
	config := DefaultParseConfig()

	if !config.HasHeader {
		t.Error("Expected HasHeader to be true")
	}

	if config.Delimiter != ',' {
		t.Errorf("Expected delimiter to be ',', got %q", config.Delimiter)
	}

	if !config.SkipEmptyRows {
		t.Error("Expected SkipEmptyRows to be true")
	}

	if config.HeaderSearchRows != 1 {
		t.Errorf("Expected header on the first row, got %d search rows", config.HeaderSearchRows)
	}
}

func TestParseError(t *testing.T) {
	err := &ParseError{
		Line:    5,
		Column:  3,
		Field:   "cgst",
		Value:   "abc",
		Message: "invalid amount",
	}

	expected := "parse error at line 5, column 3 (cgst='abc'): invalid amount"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"State/UT Tax(₹)", "stateuttax"},
		{"state_ut_tax", "stateuttax"},
		{"  GSTIN of supplier ", "gstinofsupplier"},
		{"GSTR-1/IFF/GSTR-5 Period", "gstr1iffgstr5period"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizeHeader(tt.input); got != tt.expected {
			t.Errorf("normalizeHeader(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path      string
		expected  Format
		expectErr bool
	}{
		{"invoices.csv", FormatCSV, false},
		{"GSTR2B.XLSX", FormatXLSX, false},
		{"returns.json", "", true},
	}

	for _, tt := range tests {
		format, err := DetectFormat(tt.path)
		if tt.expectErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.path)
			}
			continue
		}
		if err != nil || format != tt.expected {
			t.Errorf("%s: got %s, %v", tt.path, format, err)
		}
	}
}

func TestInvoiceParserConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*InvoiceParserConfig)
		expectErr bool
	}{
		{"default", func(*InvoiceParserConfig) {}, false},
		{"blank invoice number column", func(c *InvoiceParserConfig) { c.InvoiceNumberColumn = " " }, true},
		{"blank gstin column", func(c *InvoiceParserConfig) { c.SupplierGSTINColumn = "" }, true},
		{"quote delimiter", func(c *InvoiceParserConfig) { c.Delimiter = '"' }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultInvoiceParserConfig()
			tt.modify(config)
			err := config.Validate()
			if (err != nil) != tt.expectErr {
				t.Errorf("Expected error=%v, got %v", tt.expectErr, err)
			}
		})
	}

	if _, err := NewInvoiceParser(&InvoiceParserConfig{}, logger.NewNopLogger()); !errors.IsCategory(err, errors.CategoryConfiguration) {
		t.Errorf("Expected configuration error, got %v", err)
	}
}

func TestReturnParserConfig_Validate(t *testing.T) {
	config := DefaultReturnParserConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("Expected default config to be valid: %v", err)
	}

	config.HeaderSearchRows = -1
	if err := config.Validate(); err == nil {
		t.Error("Expected error for negative header search rows")
	}

	if name := DefaultReturnParserConfig().GetColumnName(ColumnSupplierName); name != ColumnSupplierName {
		t.Errorf("Expected %s, got %s", ColumnSupplierName, name)
	}
}

func TestInvoiceParser_ParseInvoices(t *testing.T) {
	parser := newInvoiceParser(t, nil)

	csvContent := "\ufeffinvoice_number,supplier_gstin,invoice_date,cgst,sgst,igst\n" +
		"INV-001,29ABCDE1234F1Z5,2024-04-15,\"1,250.50\",1250.50,0\n" +
		"INV-002,27XYZAB5678G1Z3,15/04/2024,0,0,₹900\n" +
		",,,,,\n" +
		",29ABCDE1234F1Z5,2024-04-16,10,10,0\n"

	invoices, stats, err := parser.ParseInvoices(context.Background(), createTempCSVFile(t, csvContent))
	if err != nil {
		t.Fatalf("Failed to parse invoices: %v", err)
	}

	if len(invoices) != 3 {
		t.Fatalf("Expected 3 invoices, got %d", len(invoices))
	}
	if stats.RecordsValid != 3 || stats.HasErrors() {
		t.Errorf("Unexpected stats: %s", stats)
	}

	first := invoices[0]
	if first.InvoiceNumber != "INV-001" || first.SupplierGSTIN != "29ABCDE1234F1Z5" {
		t.Errorf("Unexpected first invoice: %s", first)
	}
	if !first.CGST.Equal(mustDecimal(t, "1250.50")) {
		t.Errorf("Expected cgst 1250.50, got %s", first.CGST)
	}
	if first.InvoiceDate.String() != "2024-04-15" {
		t.Errorf("Expected date 2024-04-15, got %s", first.InvoiceDate)
	}

	if !invoices[1].IGST.Equal(decimal.NewFromInt(900)) {
		t.Errorf("Expected igst 900, got %s", invoices[1].IGST)
	}
	if invoices[1].InvoiceDate.String() != "2024-04-15" {
		t.Errorf("Expected dd/mm/yyyy date to parse, got %s", invoices[1].InvoiceDate)
	}

	if invoices[2].InvoiceNumber != "" {
		t.Error("Expected the blank invoice number to be passed through for validation")
	}
}

func TestInvoiceParser_ParseInvoices_Aliases(t *testing.T) {
	parser := newInvoiceParser(t, nil)

	csvContent := `Invoice No,GSTIN,Invoice Date,CGST Amount,SGST Amount
INV-9,29ABCDE1234F1Z5,01-05-2024,9,9`

	invoices, _, err := parser.ParseInvoices(context.Background(), createTempCSVFile(t, csvContent))
	if err != nil {
		t.Fatalf("Failed to parse invoices: %v", err)
	}

	if len(invoices) != 1 {
		t.Fatalf("Expected 1 invoice, got %d", len(invoices))
	}
	if !invoices[0].TotalTax().Equal(decimal.NewFromInt(18)) {
		t.Errorf("Expected total tax 18, got %s", invoices[0].TotalTax())
	}
	if !invoices[0].IGST.IsZero() {
		t.Error("Expected a missing igst column to read as zero")
	}
}

func TestInvoiceParser_ParseInvoices_Malformed(t *testing.T) {
	parser := newInvoiceParser(t, nil)

	csvContent := `invoice_number,supplier_gstin,invoice_date,cgst,sgst,igst
INV-001,29ABCDE1234F1Z5,2024-04-15,abc,0,0
INV-002,29ABCDE1234F1Z5,not-a-date,1,1,0
INV-003,29ABCDE1234F1Z5,2024-04-15,1,1,0`

	invoices, stats, err := parser.ParseInvoices(context.Background(), createTempCSVFile(t, csvContent))
	if err != nil {
		t.Fatalf("Failed to parse invoices: %v", err)
	}

	if len(invoices) != 1 || invoices[0].InvoiceNumber != "INV-003" {
		t.Errorf("Expected only INV-003 to parse, got %d invoices", len(invoices))
	}
	if stats.ErrorCount != 2 {
		t.Fatalf("Expected 2 errors, got %d", stats.ErrorCount)
	}
	if stats.Errors[0].Line != 2 || stats.Errors[0].Field != ColumnCGST {
		t.Errorf("Unexpected first error: %v", stats.Errors[0])
	}
	if stats.Errors[1].Line != 3 || stats.Errors[1].Field != ColumnInvoiceDate {
		t.Errorf("Unexpected second error: %v", stats.Errors[1])
	}
}

func TestInvoiceParser_FileErrors(t *testing.T) {
	parser := newInvoiceParser(t, nil)
	ctx := context.Background()

	_, _, err := parser.ParseInvoices(ctx, filepath.Join(t.TempDir(), "missing.csv"))
	if !errors.IsCategory(err, errors.CategoryFile) {
		t.Errorf("Expected file error, got %v", err)
	}

	_, _, err = parser.ParseInvoices(ctx, createTempCSVFile(t, "number,gstin\nINV-1,29ABCDE1234F1Z5\n"))
	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.Code != errors.CodeMissingColumn {
		t.Errorf("Expected missing column error, got %v", err)
	}

	_, _, err = parser.ParseInvoices(ctx, createTempCSVFile(t, ""))
	if !errors.IsValidation(err) {
		t.Errorf("Expected validation error for an empty file, got %v", err)
	}

	_, _, err = parser.ParseInvoices(ctx, createTempFile(t, "test_*.json", "{}"))
	if !errors.IsCategory(err, errors.CategoryParse) {
		t.Errorf("Expected parse error for unsupported type, got %v", err)
	}
}

func TestInvoiceParser_Cancelled(t *testing.T) {
	parser := newInvoiceParser(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := parser.ParseInvoices(ctx, createTempCSVFile(t, "invoice_number,supplier_gstin\nINV-1,29ABCDE1234F1Z5\n"))
	if !errors.IsCategory(err, errors.CategoryInternal) {
		t.Errorf("Expected cancellation error, got %v", err)
	}
}

func TestInvoiceParser_Positional(t *testing.T) {
	config := DefaultInvoiceParserConfig()
	config.HasHeader = false
	config.Delimiter = ';'
	parser := newInvoiceParser(t, config)

	invoices, _, err := parser.ParseInvoices(context.Background(),
		createTempCSVFile(t, "INV-1;29ABCDE1234F1Z5;2024-04-15;5;5;0\n"))
	if err != nil {
		t.Fatalf("Failed to parse invoices: %v", err)
	}
	if len(invoices) != 1 || !invoices[0].SGST.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Unexpected invoices: %v", invoices)
	}
}

func TestReturnParser_ParseReturnsCSV(t *testing.T) {
	config := DefaultReturnParserConfig()
	config.ReturnPeriod = "042024"
	parser := newReturnParser(t, config)

	csvContent := `GSTIN of supplier,Trade/Legal name,Invoice number,Invoice Date,Integrated Tax,Central Tax,State/UT Tax
 29abcde1234f1z5 ,Acme Traders,INV-001,15-04-2024,0,100,100
,Unknown,INV-002,15-04-2024,0,1,1
27XYZAB5678G1Z3,Zenith Supplies,INV-003,45397,900,0,0`

	records, stats, err := parser.ParseReturns(context.Background(), createTempCSVFile(t, csvContent))
	if err != nil {
		t.Fatalf("Failed to parse returns: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if stats.ErrorCount != 1 || stats.Errors[0].Line != 3 {
		t.Errorf("Expected the record without GSTIN to be rejected, got %v", stats.Errors)
	}

	first := records[0]
	if first.SupplierGSTIN != "29ABCDE1234F1Z5" {
		t.Errorf("Expected normalised GSTIN, got %q", first.SupplierGSTIN)
	}
	if first.SupplierName != "Acme Traders" || first.ReturnPeriod != "042024" {
		t.Errorf("Unexpected supplier details: %+v", first)
	}
	if !first.TotalTax().Equal(decimal.NewFromInt(200)) {
		t.Errorf("Expected total tax 200, got %s", first.TotalTax())
	}

	if records[1].InvoiceDate.String() != "2024-04-15" {
		t.Errorf("Expected spreadsheet serial date to parse, got %s", records[1].InvoiceDate)
	}
}

func TestReturnParser_ParsePortalWorkbook(t *testing.T) {
	parser := newReturnParser(t, nil)

	path := createWorkbook(t, "B2B", [][]interface{}{
		{"Goods and Services Tax - GSTR-2B"},
		{},
		{"Taxable inward supplies received from registered persons"},
		{},
		{"GSTIN of supplier", "Trade/Legal name", "Invoice details", "", "", "", "Place of supply", "Supply Attract Reverse Charge", "Rate(%)", "Taxable Value (₹)", "Tax Amount", "", "", "", "GSTR-1/IFF/GSTR-5 Period"},
		{"", "", "Invoice number", "Invoice type", "Invoice Date", "Invoice Value(₹)", "", "", "", "", "Integrated Tax(₹)", "Central Tax(₹)", "State/UT Tax(₹)", "Cess(₹)", ""},
		{"29ABCDE1234F1Z5", "Acme Traders", "INV-001", "Regular", "15-04-2024", 11800, "Karnataka", "No", 18, 10000, 0, 900, 900, 0, "Apr'24"},
		{"27XYZAB5678G1Z3", "Zenith Supplies", "INV-002", "Regular", "16-04-2024", 5900, "Maharashtra", "No", 18, 5000, 900, 0, 0, 0, "Apr'24"},
	})

	records, stats, err := parser.ParseReturns(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to parse workbook: %v", err)
	}

	if len(records) != 2 || stats.HasErrors() {
		t.Fatalf("Expected 2 clean records, got %d (%s)", len(records), stats)
	}

	acme := records[0]
	if acme.InvoiceNumber != "INV-001" || acme.SupplierName != "Acme Traders" {
		t.Errorf("Unexpected record: %+v", acme)
	}
	if !acme.CGST.Equal(decimal.NewFromInt(900)) || !acme.SGST.Equal(decimal.NewFromInt(900)) || !acme.IGST.IsZero() {
		t.Errorf("Unexpected tax heads: cgst=%s sgst=%s igst=%s", acme.CGST, acme.SGST, acme.IGST)
	}
	if acme.InvoiceDate.String() != "2024-04-15" {
		t.Errorf("Expected 2024-04-15, got %s", acme.InvoiceDate)
	}
	if acme.ReturnPeriod != "Apr'24" {
		t.Errorf("Expected return period from the file, got %q", acme.ReturnPeriod)
	}
	if !records[1].IGST.Equal(decimal.NewFromInt(900)) {
		t.Errorf("Expected igst 900, got %s", records[1].IGST)
	}
}

func TestReturnParser_FallsBackToFirstSheet(t *testing.T) {
	parser := newReturnParser(t, nil)

	path := createWorkbook(t, "Sheet1", [][]interface{}{
		{"supplier_gstin", "invoice_number", "cgst", "sgst"},
		{"29ABCDE1234F1Z5", "INV-001", 50, 50},
	})

	records, _, err := parser.ParseReturns(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to parse workbook: %v", err)
	}
	if len(records) != 1 || records[0].InvoiceNumber != "INV-001" {
		t.Errorf("Unexpected records: %v", records)
	}
}
