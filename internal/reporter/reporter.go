// Package reporter renders reconciliation runs, batch eligibility results
// and the compliance audit trail.
//
// Supported output formats:
//   - Console: human-readable output for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: one row per item for spreadsheet applications
//   - XLSX: a workbook with one sheet per section
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatXLSX})
//	err = generator.GenerateReport(result, file)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"itc-reconciliation-service/internal/models"
	"itc-reconciliation-service/internal/reconciler"
	"itc-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatXLSX    OutputFormat = "xlsx"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatXLSX:
		return true
	default:
		return false
	}
}

// IsBinary reports whether the format must not be written to a terminal
func (f OutputFormat) IsBinary() bool {
	return f == FormatXLSX
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeMatched       bool `json:"include_matched"`
	IncludeDiscrepancies bool `json:"include_discrepancies"`
	SortByAmount         bool `json:"sort_by_amount"`

	// MaxListItems caps console lists; 0 prints everything
	MaxListItems int `json:"max_list_items"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:               FormatConsole,
		IncludeMatched:       false,
		IncludeDiscrepancies: true,
		SortByAmount:         false,
		MaxListItems:         10,
		CSVDelimiter:         ',',
		CSVHeaders:           true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", c.MaxListItems)
	}

	if c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n' {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}

	return nil
}

// ReportGenerator generates reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// table is the tabular form shared by the CSV and XLSX writers
type table struct {
	sheet   string
	headers []string
	rows    [][]interface{}
}

// GenerateReport writes a reconciliation run report
func (rg *ReportGenerator) GenerateReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	if result == nil || result.Summary == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return writeJSON(writer, rg.filterResultForOutput(result))
	case FormatCSV:
		return rg.writeCSV(writer, rg.transactionTable(result))
	case FormatXLSX:
		tables := []table{rg.summaryTable(result.Summary), rg.transactionTable(result)}
		if rg.config.IncludeDiscrepancies {
			tables = append(tables, discrepancyTable(result.Discrepancies))
		}
		return writeXLSX(writer, tables...)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GenerateVerdictReport writes the outcomes of a batch evaluation
func (rg *ReportGenerator) GenerateVerdictReport(outcomes []*reconciler.EvaluationOutcome, writer io.Writer) error {
	summary := reconciler.SummarizeOutcomes(outcomes)

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleVerdicts(outcomes, summary, writer)
	case FormatJSON:
		views := make([]outcomeView, len(outcomes))
		for i, o := range outcomes {
			views[i] = newOutcomeView(o)
		}
		return writeJSON(writer, map[string]interface{}{
			"summary":  summary,
			"outcomes": views,
		})
	case FormatCSV:
		return rg.writeCSV(writer, verdictTable(outcomes))
	case FormatXLSX:
		return writeXLSX(writer, verdictTable(outcomes))
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GenerateCheckReport writes the compliance audit trail
func (rg *ReportGenerator) GenerateCheckReport(checks []*models.ComplianceCheck, writer io.Writer) error {
	switch rg.config.Format {
	case FormatConsole:
		fmt.Fprintf(writer, "COMPLIANCE CHECKS (%d)\n\n", len(checks))
		for _, c := range checks {
			fmt.Fprintf(writer, "%s  %-16s %-15s %-10s %s\n",
				c.CreatedAt.Format(time.RFC3339), c.SupplierID, c.CheckType, c.Status, c.Details)
		}
		return nil
	case FormatJSON:
		if checks == nil {
			checks = []*models.ComplianceCheck{}
		}
		return writeJSON(writer, checks)
	case FormatCSV:
		return rg.writeCSV(writer, checkTable(checks))
	case FormatXLSX:
		return writeXLSX(writer, checkTable(checks))
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	fmt.Fprintf(writer, "RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Generated: %s\n", result.ProcessedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Processing Duration: %v\n\n", result.Summary.ProcessingDuration)

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummaryTable(result.Summary, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== FINANCIAL SUMMARY ===\n")
	rg.printFinancialSummary(result.Summary, writer)
	fmt.Fprintf(writer, "\n")

	attention := rg.selectTransactions(result.Transactions)
	if len(attention) > 0 {
		if rg.config.IncludeMatched {
			fmt.Fprintf(writer, "=== TRANSACTIONS ===\n")
		} else {
			fmt.Fprintf(writer, "=== TRANSACTIONS NEEDING ATTENTION ===\n")
		}
		rg.printTransactionList(attention, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeDiscrepancies && len(result.Discrepancies) > 0 {
		fmt.Fprintf(writer, "=== DISCREPANCIES ===\n")
		rg.printDiscrepancies(result.Discrepancies, writer)
	}

	return nil
}

func (rg *ReportGenerator) printSummaryTable(summary *reconciler.ResultSummary, writer io.Writer) {
	fmt.Fprintf(writer, "Invoices:\n")
	fmt.Fprintf(writer, "  Total:     %d\n", summary.TotalInvoices)
	fmt.Fprintf(writer, "  Matched:   %d (%.1f%%)\n",
		summary.Matched, rg.calculatePercentage(summary.Matched, summary.TotalInvoices))
	fmt.Fprintf(writer, "  Partial:   %d (%.1f%%)\n",
		summary.Partial, rg.calculatePercentage(summary.Partial, summary.TotalInvoices))
	fmt.Fprintf(writer, "  Unmatched: %d (%.1f%%)\n",
		summary.Unmatched, rg.calculatePercentage(summary.Unmatched, summary.TotalInvoices))
}

func (rg *ReportGenerator) printFinancialSummary(summary *reconciler.ResultSummary, writer io.Writer) {
	atRisk := summary.PartialAmount.Add(summary.UnmatchedAmount)

	fmt.Fprintf(writer, "Total ITC Claimed:   %s\n", summary.TotalClaimed.StringFixed(2))
	fmt.Fprintf(writer, "Matched:             %s\n", summary.MatchedAmount.StringFixed(2))
	fmt.Fprintf(writer, "Partial:             %s\n", summary.PartialAmount.StringFixed(2))
	fmt.Fprintf(writer, "Unmatched:           %s\n", summary.UnmatchedAmount.StringFixed(2))
	fmt.Fprintf(writer, "ITC at Risk:         %s\n", atRisk.StringFixed(2))

	if !atRisk.IsZero() && !summary.TotalClaimed.IsZero() {
		pct := atRisk.Div(summary.TotalClaimed.Abs()).Mul(decimal.NewFromInt(100))
		fmt.Fprintf(writer, "At Risk Percentage:  %s%%\n", pct.StringFixed(2))
	}
}

// selectTransactions returns the rows to list, unmatched first
func (rg *ReportGenerator) selectTransactions(transactions []*models.Transaction) []*models.Transaction {
	selected := make([]*models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if rg.config.IncludeMatched || tx.Status != models.StatusMatched {
			selected = append(selected, tx)
		}
	}

	rank := map[models.TransactionStatus]int{
		models.StatusUnmatched: 0,
		models.StatusPartial:   1,
		models.StatusMatched:   2,
	}
	sort.SliceStable(selected, func(i, j int) bool {
		if rank[selected[i].Status] != rank[selected[j].Status] {
			return rank[selected[i].Status] < rank[selected[j].Status]
		}
		if rg.config.SortByAmount {
			return selected[i].Amount.Abs().GreaterThan(selected[j].Amount.Abs())
		}
		return false
	})
	return selected
}

func (rg *ReportGenerator) printTransactionList(transactions []*models.Transaction, writer io.Writer) {
	for i, tx := range transactions {
		if rg.config.MaxListItems > 0 && i >= rg.config.MaxListItems {
			fmt.Fprintf(writer, "  ... and %d more\n", len(transactions)-i)
			break
		}
		fmt.Fprintf(writer, "  %d. [%s] %s, Supplier: %s, Amount: %s, Date: %s\n",
			i+1,
			strings.ToUpper(tx.Status.String()),
			tx.InvoiceNumber,
			tx.SupplierDetails,
			tx.Amount.StringFixed(2),
			tx.Date.String())
	}
}

func (rg *ReportGenerator) printDiscrepancies(discrepancies []*reconciler.Discrepancy, writer io.Writer) {
	fmt.Fprintf(writer, "Total Discrepancies Found: %d\n\n", len(discrepancies))

	severityGroups := make(map[reconciler.Severity][]*reconciler.Discrepancy)
	for _, disc := range discrepancies {
		severityGroups[disc.Severity] = append(severityGroups[disc.Severity], disc)
	}

	severities := []reconciler.Severity{
		reconciler.SeverityHigh,
		reconciler.SeverityMedium,
		reconciler.SeverityLow,
	}

	for _, severity := range severities {
		discs := severityGroups[severity]
		if len(discs) == 0 {
			continue
		}

		fmt.Fprintf(writer, "%s Severity (%d):\n", strings.ToUpper(string(severity)), len(discs))
		for i, disc := range discs {
			if rg.config.MaxListItems > 0 && i >= rg.config.MaxListItems {
				fmt.Fprintf(writer, "  ... and %d more\n", len(discs)-i)
				break
			}
			fmt.Fprintf(writer, "  - %s %s: %s", disc.InvoiceNumber, disc.SupplierGSTIN, disc.Description)
			if !disc.Amount.IsZero() {
				fmt.Fprintf(writer, " (Amount: %s)", disc.Amount.StringFixed(2))
			}
			fmt.Fprintf(writer, "\n")
		}
		fmt.Fprintf(writer, "\n")
	}
}

func (rg *ReportGenerator) generateConsoleVerdicts(
	outcomes []*reconciler.EvaluationOutcome,
	summary *reconciler.BatchSummary,
	writer io.Writer,
) error {
	fmt.Fprintf(writer, "ELIGIBILITY REPORT\n\n")
	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	fmt.Fprintf(writer, "Invoices:        %d\n", summary.Total)
	fmt.Fprintf(writer, "Eligible:        %d\n", summary.Eligible)
	fmt.Fprintf(writer, "Not Eligible:    %d\n", summary.Ineligible)
	fmt.Fprintf(writer, "Rejected:        %d\n", summary.Rejected)
	fmt.Fprintf(writer, "Failed:          %d\n", summary.Failed)
	fmt.Fprintf(writer, "Eligible Amount: %s\n\n", summary.EligibleAmount.StringFixed(2))

	fmt.Fprintf(writer, "=== INVOICES ===\n")
	for _, o := range outcomes {
		view := newOutcomeView(o)
		fmt.Fprintf(writer, "  Line %d: %s (%s) %s", view.Line, view.InvoiceNumber, view.SupplierGSTIN, view.Result)
		switch {
		case view.Verdict != nil && view.Verdict.IsEligible:
			fmt.Fprintf(writer, ", eligible amount %s", view.Verdict.EligibleAmount.StringFixed(2))
		case view.Verdict != nil:
			fmt.Fprintf(writer, ": %s", strings.Join(view.Verdict.Reasons, "; "))
		case view.Error != nil:
			fmt.Fprintf(writer, " [%s]: %s", view.Error.Category, view.Error.Message)
		}
		fmt.Fprintf(writer, "\n")
	}

	return nil
}

// outcomeView is the serialised form of one batch evaluation outcome
type outcomeView struct {
	Line          int                        `json:"line"`
	InvoiceNumber string                     `json:"invoice_number"`
	SupplierGSTIN string                     `json:"supplier_gstin"`
	Result        string                     `json:"result"`
	Verdict       *models.EligibilityVerdict `json:"verdict,omitempty"`
	CheckID       string                     `json:"compliance_check_id,omitempty"`
	Error         *errorView                 `json:"error,omitempty"`
}

type errorView struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// Outcome labels
const (
	ResultEligible    = "ELIGIBLE"
	ResultNotEligible = "NOT_ELIGIBLE"
	ResultRejected    = "REJECTED"
	ResultFailed      = "FAILED"
)

func newOutcomeView(o *reconciler.EvaluationOutcome) outcomeView {
	view := outcomeView{Line: o.Line}
	if o.Invoice != nil {
		view.InvoiceNumber = o.Invoice.InvoiceNumber
		view.SupplierGSTIN = o.Invoice.SupplierGSTIN
	}

	if o.Err != nil {
		view.Result = ResultFailed
		if errors.IsValidation(o.Err) || errors.IsDuplicate(o.Err) {
			view.Result = ResultRejected
		}
		view.Error = newErrorView(o.Err)
		return view
	}

	view.Verdict = o.Result.Verdict
	view.Result = ResultNotEligible
	if o.Result.Verdict.IsEligible {
		view.Result = ResultEligible
	}
	if o.Result.Check != nil {
		view.CheckID = o.Result.Check.ID
	}
	return view
}

func newErrorView(err error) *errorView {
	if rerr, ok := errors.AsReconcilerError(err); ok {
		return &errorView{
			Category: string(rerr.Category),
			Code:     string(rerr.Code),
			Message:  rerr.Message,
		}
	}
	return &errorView{
		Category: string(errors.CategoryInternal),
		Code:     string(errors.CodeUnexpectedError),
		Message:  err.Error(),
	}
}

func (rg *ReportGenerator) summaryTable(summary *reconciler.ResultSummary) table {
	return table{
		sheet:   "Summary",
		headers: []string{"Metric", "Value"},
		rows: [][]interface{}{
			{"Total Invoices", summary.TotalInvoices},
			{"Matched", summary.Matched},
			{"Partial", summary.Partial},
			{"Unmatched", summary.Unmatched},
			{"Match Rate (%)", fmt.Sprintf("%.1f", summary.MatchRate())},
			{"Total ITC Claimed", summary.TotalClaimed.StringFixed(2)},
			{"Matched Amount", summary.MatchedAmount.StringFixed(2)},
			{"Partial Amount", summary.PartialAmount.StringFixed(2)},
			{"Unmatched Amount", summary.UnmatchedAmount.StringFixed(2)},
		},
	}
}

func (rg *ReportGenerator) transactionTable(result *reconciler.ReconciliationResult) table {
	reasons := make(map[string]string, len(result.Matches))
	for _, m := range result.Matches {
		if m != nil && m.Invoice != nil {
			reasons[m.Invoice.InvoiceNumber+"|"+m.Invoice.SupplierGSTIN] = strings.Join(m.Reasons, "; ")
		}
	}

	t := table{
		sheet: "Transactions",
		headers: []string{
			"Date",
			"Invoice_Number",
			"Supplier_GSTIN",
			"Supplier_Details",
			"Amount",
			"Status",
			"Found_In_Return",
			"Invoice_Match",
			"Check_Date",
			"Notes",
		},
	}
	for _, tx := range rg.selectTransactions(result.Transactions) {
		t.rows = append(t.rows, []interface{}{
			tx.Date.String(),
			tx.InvoiceNumber,
			tx.SupplierGSTIN,
			tx.SupplierDetails,
			tx.Amount.StringFixed(2),
			tx.Status.String(),
			tx.FoundInReturnDataset,
			tx.InvoiceMatch,
			tx.CheckDate.Format(time.RFC3339),
			reasons[tx.InvoiceNumber+"|"+tx.SupplierGSTIN],
		})
	}
	return t
}

func discrepancyTable(discrepancies []*reconciler.Discrepancy) table {
	t := table{
		sheet:   "Discrepancies",
		headers: []string{"Severity", "Type", "Invoice_Number", "Supplier_GSTIN", "Amount", "Description"},
	}
	for _, d := range discrepancies {
		t.rows = append(t.rows, []interface{}{
			string(d.Severity),
			string(d.Type),
			d.InvoiceNumber,
			d.SupplierGSTIN,
			d.Amount.StringFixed(2),
			d.Description,
		})
	}
	return t
}

func verdictTable(outcomes []*reconciler.EvaluationOutcome) table {
	t := table{
		sheet: "Eligibility",
		headers: []string{
			"Line",
			"Invoice_Number",
			"Supplier_GSTIN",
			"Result",
			"Verification_Status",
			"Eligible_Amount",
			"Reasons",
			"Error_Category",
			"Error",
		},
	}
	for _, o := range outcomes {
		view := newOutcomeView(o)
		row := []interface{}{view.Line, view.InvoiceNumber, view.SupplierGSTIN, view.Result, "", "", "", "", ""}
		if view.Verdict != nil {
			row[4] = view.Verdict.VerificationStatus.String()
			row[5] = view.Verdict.EligibleAmount.StringFixed(2)
			row[6] = strings.Join(view.Verdict.Reasons, "; ")
		}
		if view.Error != nil {
			row[7] = view.Error.Category
			row[8] = view.Error.Message
		}
		t.rows = append(t.rows, row)
	}
	return t
}

func checkTable(checks []*models.ComplianceCheck) table {
	t := table{
		sheet:   "Compliance Checks",
		headers: []string{"ID", "Supplier_ID", "Check_Type", "Status", "Details", "Created_At"},
	}
	for _, c := range checks {
		t.rows = append(t.rows, []interface{}{
			c.ID, c.SupplierID, c.CheckType, c.Status, c.Details, c.CreatedAt.Format(time.RFC3339),
		})
	}
	return t
}

func writeJSON(writer io.Writer, v interface{}) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (rg *ReportGenerator) writeCSV(writer io.Writer, t table) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(t.headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	record := make([]string, len(t.headers))
	for _, row := range t.rows {
		for i, cell := range row {
			record[i] = fmt.Sprint(cell)
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func (rg *ReportGenerator) filterResultForOutput(result *reconciler.ReconciliationResult) map[string]interface{} {
	output := map[string]interface{}{
		"summary":      result.Summary,
		"processed_at": result.ProcessedAt,
		"transactions": rg.selectTransactions(result.Transactions),
	}

	if rg.config.IncludeDiscrepancies && result.Discrepancies != nil {
		output["discrepancies"] = result.Discrepancies
	}

	return output
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}

	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
