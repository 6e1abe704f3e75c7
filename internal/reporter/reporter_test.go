package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"itc-reconciliation-service/internal/matcher"
	"itc-reconciliation-service/internal/models"
	"itc-reconciliation-service/internal/reconciler"
	"itc-reconciliation-service/pkg/errors"
	"itc-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{
			name:        "default config",
			config:      nil,
			expectError: false,
		},
		{
			name:        "xlsx format",
			config:      &ReportConfig{Format: FormatXLSX, CSVDelimiter: ','},
			expectError: false,
		},
		{
			name:        "invalid format",
			config:      &ReportConfig{Format: "pdf", CSVDelimiter: ','},
			expectError: true,
		},
		{
			name:        "negative list limit",
			config:      &ReportConfig{Format: FormatConsole, MaxListItems: -1, CSVDelimiter: ','},
			expectError: true,
		},
		{
			name:        "missing delimiter",
			config:      &ReportConfig{Format: FormatCSV},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if generator == nil {
					t.Errorf("expected generator but got nil")
				}
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
		binary bool
	}{
		{FormatConsole, true, false},
		{FormatJSON, true, false},
		{FormatCSV, true, false},
		{FormatXLSX, true, true},
		{"invalid", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if tt.format.IsValid() != tt.valid {
				t.Errorf("expected IsValid() = %v for format %s", tt.valid, tt.format)
			}
			if tt.format.IsBinary() != tt.binary {
				t.Errorf("expected IsBinary() = %v for format %s", tt.binary, tt.format)
			}
		})
	}
}

func generatorFor(t *testing.T, format OutputFormat) *ReportGenerator {
	t.Helper()
	config := DefaultReportConfig()
	config.Format = format
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}
	return generator
}

func TestGenerateReport_Console(t *testing.T) {
	var buf bytes.Buffer
	if err := generatorFor(t, FormatConsole).GenerateReport(createSampleReconciliationResult(), &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	for _, section := range []string{
		"RECONCILIATION REPORT",
		"=== SUMMARY ===",
		"=== FINANCIAL SUMMARY ===",
		"=== TRANSACTIONS NEEDING ATTENTION ===",
		"=== DISCREPANCIES ===",
		"Matched:   1 (33.3%)",
		"Total ITC Claimed:   298.00",
		"ITC at Risk:         198.00",
		"HIGH Severity (2):",
	} {
		if !strings.Contains(output, section) {
			t.Errorf("expected output to contain %q\n%s", section, output)
		}
	}

	if strings.Contains(output, "[MATCHED]") {
		t.Error("expected matched transactions to be omitted by default")
	}
	if strings.Index(output, "[UNMATCHED]") > strings.Index(output, "[PARTIAL]") {
		t.Error("expected unmatched transactions to be listed first")
	}
}

func TestGenerateReport_ConsoleListLimit(t *testing.T) {
	config := DefaultReportConfig()
	config.IncludeMatched = true
	config.MaxListItems = 1
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleReconciliationResult(), &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(buf.String(), "=== TRANSACTIONS ===") || !strings.Contains(buf.String(), "... and 2 more") {
		t.Errorf("expected truncated transaction list, got:\n%s", buf.String())
	}
}

func TestGenerateReport_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := generatorFor(t, FormatJSON).GenerateReport(createSampleReconciliationResult(), &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded struct {
		Summary struct {
			Matched       int    `json:"matched"`
			Partial       int    `json:"partial"`
			Unmatched     int    `json:"unmatched"`
			TotalInvoices int    `json:"total_invoices"`
			TotalClaimed  string `json:"total_claimed"`
		} `json:"summary"`
		Transactions  []models.Transaction      `json:"transactions"`
		Discrepancies []map[string]interface{} `json:"discrepancies"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}

	if decoded.Summary.TotalInvoices != 3 || decoded.Summary.Matched != 1 || decoded.Summary.Partial != 1 {
		t.Errorf("unexpected summary: %+v", decoded.Summary)
	}
	if decoded.Summary.TotalClaimed != "298" {
		t.Errorf("expected total claimed 298, got %s", decoded.Summary.TotalClaimed)
	}
	if len(decoded.Transactions) != 2 {
		t.Errorf("expected 2 transactions needing attention, got %d", len(decoded.Transactions))
	}
	if len(decoded.Discrepancies) != 2 {
		t.Errorf("expected 2 discrepancies, got %d", len(decoded.Discrepancies))
	}
}

func TestGenerateReport_CSV(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	config.IncludeMatched = true
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleReconciliationResult(), &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV output: %v", err)
	}

	if len(records) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(records))
	}
	if records[0][0] != "Date" || records[0][5] != "Status" {
		t.Errorf("unexpected headers: %v", records[0])
	}
	if records[1][5] != "unmatched" || records[1][9] != "Not reported by supplier" {
		t.Errorf("unexpected first row: %v", records[1])
	}
	if records[3][5] != "matched" || records[3][4] != "100.00" {
		t.Errorf("unexpected matched row: %v", records[3])
	}
}

func TestGenerateReport_XLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := generatorFor(t, FormatXLSX).GenerateReport(createSampleReconciliationResult(), &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("invalid workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	expected := []string{"Summary", "Transactions", "Discrepancies"}
	if strings.Join(sheets, ",") != strings.Join(expected, ",") {
		t.Fatalf("expected sheets %v, got %v", expected, sheets)
	}

	total, err := f.GetCellValue("Summary", "B2")
	if err != nil || total != "3" {
		t.Errorf("expected 3 invoices on the summary sheet, got %q (%v)", total, err)
	}

	rows, err := f.GetRows("Transactions")
	if err != nil {
		t.Fatalf("failed to read transactions: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("expected header plus 2 rows, got %d", len(rows))
	}
}

func TestGenerateReport_NilResult(t *testing.T) {
	var buf bytes.Buffer
	if err := generatorFor(t, FormatConsole).GenerateReport(nil, &buf); err == nil {
		t.Error("expected error for nil result")
	}
}

func TestGenerateVerdictReport(t *testing.T) {
	outcomes := createSampleOutcomes()

	t.Run("console", func(t *testing.T) {
		var buf bytes.Buffer
		if err := generatorFor(t, FormatConsole).GenerateVerdictReport(outcomes, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		for _, want := range []string{
			"Eligible:        1",
			"Not Eligible:    1",
			"Rejected:        1",
			"Failed:          1",
			"Line 1: INV-1 (29AAAAA0000A1Z5) ELIGIBLE, eligible amount 200.00",
			"Line 2: INV-2 (29AAAAA0000A1Z5) NOT_ELIGIBLE: Invoice not found in GSTR-2B",
			"Line 3: INV-1 (29AAAAA0000A1Z5) REJECTED [duplicate]",
			"Line 4: INV-3 (29AAAAA0000A1Z5) FAILED [lookup]",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q\n%s", want, output)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := generatorFor(t, FormatJSON).GenerateVerdictReport(outcomes, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded struct {
			Summary  reconciler.BatchSummary `json:"summary"`
			Outcomes []outcomeView           `json:"outcomes"`
		}
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.Summary.Failed != 1 || len(decoded.Outcomes) != 4 {
			t.Errorf("unexpected output: %+v", decoded)
		}
		if decoded.Outcomes[3].Error == nil || decoded.Outcomes[3].Error.Code != string(errors.CodeLookupFailed) {
			t.Errorf("expected lookup failure on line 4, got %+v", decoded.Outcomes[3])
		}
		if decoded.Outcomes[0].CheckID != "check-1" {
			t.Errorf("expected compliance check id, got %q", decoded.Outcomes[0].CheckID)
		}
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		if err := generatorFor(t, FormatCSV).GenerateVerdictReport(outcomes, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		records, err := csv.NewReader(&buf).ReadAll()
		if err != nil {
			t.Fatalf("invalid CSV: %v", err)
		}
		if len(records) != 5 || records[2][4] != "NOT_FOUND" || records[4][7] != "lookup" {
			t.Errorf("unexpected CSV: %v", records)
		}
	})

	t.Run("xlsx", func(t *testing.T) {
		var buf bytes.Buffer
		if err := generatorFor(t, FormatXLSX).GenerateVerdictReport(outcomes, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		f, err := excelize.OpenReader(&buf)
		if err != nil {
			t.Fatalf("invalid workbook: %v", err)
		}
		defer f.Close()
		result, _ := f.GetCellValue("Eligibility", "D2")
		if result != ResultEligible {
			t.Errorf("expected %s, got %q", ResultEligible, result)
		}
	})
}

func TestGenerateCheckReport(t *testing.T) {
	created := time.Date(2024, 4, 20, 10, 0, 0, 0, time.UTC)
	checks := []*models.ComplianceCheck{
		{ID: "c1", SupplierID: "29AAAAA0000A1Z5", CheckType: models.CheckTypeReturnFiled, Status: "VERIFIED", Details: "ok", CreatedAt: created},
		{ID: "c2", SupplierID: "27XYZAB5678G1Z3", CheckType: models.CheckTypeGSTINValidity, Status: "FAILED", Details: "cancelled", CreatedAt: created},
	}

	var console bytes.Buffer
	if err := generatorFor(t, FormatConsole).GenerateCheckReport(checks, &console); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(console.String(), "COMPLIANCE CHECKS (2)") || !strings.Contains(console.String(), "GSTIN_VALIDITY") {
		t.Errorf("unexpected console output:\n%s", console.String())
	}

	var empty bytes.Buffer
	if err := generatorFor(t, FormatJSON).GenerateCheckReport(nil, &empty); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(empty.String()) != "[]" {
		t.Errorf("expected an empty JSON array, got %q", empty.String())
	}

	var csvOut bytes.Buffer
	if err := generatorFor(t, FormatCSV).GenerateCheckReport(checks, &csvOut); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(csvOut.String(), "c2,27XYZAB5678G1Z3,GSTIN_VALIDITY,FAILED,cancelled,2024-04-20T10:00:00Z") {
		t.Errorf("unexpected CSV output:\n%s", csvOut.String())
	}
}

// failOnceWriter rejects its first write
type failOnceWriter struct {
	failed bool
	buf    bytes.Buffer
}

func (w *failOnceWriter) Write(p []byte) (int, error) {
	if !w.failed {
		w.failed = true
		return 0, stderrors.New("broken pipe")
	}
	return w.buf.Write(p)
}

func TestSafeReportGenerator(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	safe, err := NewSafeReportGenerator(config, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	t.Run("rejects unknown input", func(t *testing.T) {
		err := safe.GenerateReportSafely("not a result", &bytes.Buffer{})
		if !errors.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("rejects nil writer", func(t *testing.T) {
		err := safe.GenerateReportSafely(createSampleReconciliationResult(), nil)
		if !errors.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("falls back to console", func(t *testing.T) {
		w := &failOnceWriter{}
		if err := safe.GenerateReportSafely(createSampleReconciliationResult(), w); err != nil {
			t.Fatalf("expected fallback to succeed, got %v", err)
		}
		if !strings.Contains(w.buf.String(), "RECONCILIATION REPORT") {
			t.Errorf("expected console fallback output, got:\n%s", w.buf.String())
		}
	})

	t.Run("renders checks", func(t *testing.T) {
		var buf bytes.Buffer
		if err := safe.GenerateReportSafely([]*models.ComplianceCheck{}, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	if _, err := NewSafeReportGenerator(&ReportConfig{Format: "pdf"}, nil); !errors.IsCategory(err, errors.CategoryConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestGenerateBackupPath(t *testing.T) {
	if got := generateBackupPath("/tmp/reports/run.csv"); got != "/tmp/reports/run_backup.csv" {
		t.Errorf("unexpected backup path %s", got)
	}
}

func createSampleReconciliationResult() *reconciler.ReconciliationResult {
	date := models.NewDate(time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC))
	checked := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	d := decimal.NewFromInt

	matched := &models.Transaction{ID: "t1", Date: date, InvoiceNumber: "INV-1", SupplierGSTIN: "29AAAAA0000A1Z5",
		Amount: d(100), Status: models.StatusMatched, CheckDate: checked, FoundInReturnDataset: true, InvoiceMatch: true,
		SupplierDetails: "Acme Traders (29AAAAA0000A1Z5)"}
	partial := &models.Transaction{ID: "t2", Date: date, InvoiceNumber: "INV-2", SupplierGSTIN: "29AAAAA0000A1Z5",
		Amount: d(180), Status: models.StatusPartial, CheckDate: checked, FoundInReturnDataset: true,
		SupplierDetails: "29AAAAA0000A1Z5"}
	unmatched := &models.Transaction{ID: "t3", Date: date, InvoiceNumber: "INV-3", SupplierGSTIN: "27XYZAB5678G1Z3",
		Amount: d(18), Status: models.StatusUnmatched, CheckDate: checked, SupplierDetails: "27XYZAB5678G1Z3"}

	return &reconciler.ReconciliationResult{
		Summary: &reconciler.ResultSummary{
			Summary:            matcher.Summary{Matched: 1, Partial: 1, Unmatched: 1},
			TotalInvoices:      3,
			TotalClaimed:       d(298),
			MatchedAmount:      d(100),
			PartialAmount:      d(180),
			UnmatchedAmount:    d(18),
			ProcessingDuration: 25 * time.Millisecond,
		},
		Transactions: []*models.Transaction{matched, partial, unmatched},
		Discrepancies: []*reconciler.Discrepancy{
			{Type: reconciler.DiscrepancyAmountDifference, InvoiceNumber: "INV-2", SupplierGSTIN: "29AAAAA0000A1Z5",
				Description: "IGST claimed 180.00, reported 160.00", Amount: d(20), Severity: reconciler.SeverityHigh},
			{Type: reconciler.DiscrepancyNotReported, InvoiceNumber: "INV-3", SupplierGSTIN: "27XYZAB5678G1Z3",
				Description: "Invoice not found in GSTR-2B", Amount: d(18), Severity: reconciler.SeverityHigh},
		},
		Matches: []*matcher.MatchResult{
			{Invoice: &models.Invoice{InvoiceNumber: "INV-1", SupplierGSTIN: "29AAAAA0000A1Z5"}, Reasons: []string{"Exact amount match"}},
			{Invoice: &models.Invoice{InvoiceNumber: "INV-2", SupplierGSTIN: "29AAAAA0000A1Z5"}, Reasons: []string{"IGST claimed 180.00, reported 160.00"}},
			{Invoice: &models.Invoice{InvoiceNumber: "INV-3", SupplierGSTIN: "27XYZAB5678G1Z3"}, Reasons: []string{"Not reported by supplier"}},
		},
		ProcessedAt: checked,
	}
}

func createSampleOutcomes() []*reconciler.EvaluationOutcome {
	inv1 := models.NewInvoice("INV-1", "29AAAAA0000A1Z5", decimal.NewFromInt(100), decimal.NewFromInt(100), decimal.Zero)
	inv2 := models.NewInvoice("INV-2", "29AAAAA0000A1Z5", decimal.NewFromInt(5), decimal.Zero, decimal.Zero)
	inv3 := models.NewInvoice("INV-3", "29AAAAA0000A1Z5", decimal.NewFromInt(5), decimal.Zero, decimal.Zero)

	return []*reconciler.EvaluationOutcome{
		{Line: 1, Invoice: inv1, Result: &reconciler.EligibilityResult{
			Invoice: inv1, Verdict: models.VerifiedVerdict(inv1), Check: &models.ComplianceCheck{ID: "check-1"},
		}},
		{Line: 2, Invoice: inv2, Result: &reconciler.EligibilityResult{
			Invoice: inv2, Verdict: models.NotFoundVerdict(""),
		}},
		{Line: 3, Invoice: inv1, Err: errors.DuplicateInvoiceError("INV-1", "29AAAAA0000A1Z5", nil)},
		{Line: 4, Invoice: inv3, Err: errors.LookupError("INV-3", "29AAAAA0000A1Z5", stderrors.New("timeout"))},
	}
}
