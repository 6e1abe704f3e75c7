package reconciler

import (
	"context"
	"fmt"
	"time"

	"itc-reconciliation-service/internal/compliance"
	"itc-reconciliation-service/internal/eligibility"
	"itc-reconciliation-service/internal/matcher"
	"itc-reconciliation-service/internal/models"
	"itc-reconciliation-service/pkg/errors"
	"itc-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// InvoiceStore is the invoice store as seen by the service: the evaluator's
// operations plus listing for batch runs
type InvoiceStore interface {
	eligibility.InvoiceStore
	ListAll(ctx context.Context) ([]*models.Invoice, error)
}

// TransactionStore holds the reconciliation view
type TransactionStore interface {
	ListAll(ctx context.Context) ([]*models.Transaction, error)
	ReplaceAll(ctx context.Context, transactions []*models.Transaction) error
}

// Dependencies are the stores the service is built on
type Dependencies struct {
	Invoices     InvoiceStore
	Returns      eligibility.ReturnDataset
	Transactions TransactionStore
	Checks       compliance.Store
}

// Validate checks that every store is present
func (d Dependencies) Validate() error {
	switch {
	case d.Invoices == nil:
		return fmt.Errorf("invoice store is required")
	case d.Returns == nil:
		return fmt.Errorf("return dataset is required")
	case d.Transactions == nil:
		return fmt.Errorf("transaction store is required")
	case d.Checks == nil:
		return fmt.Errorf("compliance check store is required")
	}
	return nil
}

// ReconciliationService runs eligibility checks and batch reconciliation
type ReconciliationService struct {
	evaluator    *eligibility.Evaluator
	recorder     *compliance.Recorder
	matcher      *matcher.Matcher
	invoices     InvoiceStore
	returns      eligibility.ReturnDataset
	transactions TransactionStore
	config       *Config
	logger       logger.Logger
	now          func() time.Time
}

// Config holds configuration options for the reconciliation service
type Config struct {
	// DatasetName names the return dataset in ineligibility reasons
	DatasetName string `mapstructure:"dataset_name"`

	// MaxConcurrency bounds concurrent return dataset lookups in a batch run
	MaxConcurrency int `mapstructure:"max_concurrency"`

	// RecordChecks appends a RETURN_FILED compliance check for each verdict
	RecordChecks bool `mapstructure:"record_checks"`

	// ProgressReporting logs throughput during batch runs
	ProgressReporting bool `mapstructure:"progress_reporting"`
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		DatasetName:       models.DefaultReturnDatasetName,
		MaxConcurrency:    8,
		RecordChecks:      true,
		ProgressReporting: false,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive, got %d", c.MaxConcurrency)
	}
	return nil
}

// EligibilityResult is a verdict together with the audit record written for it
type EligibilityResult struct {
	Invoice *models.Invoice            `json:"invoice"`
	Verdict *models.EligibilityVerdict `json:"verdict"`
	Check   *models.ComplianceCheck    `json:"compliance_check,omitempty"`
}

// EvaluationOutcome is the per-invoice result of a batch evaluation. Exactly
// one of Result and Err is set.
type EvaluationOutcome struct {
	Line    int
	Invoice *models.Invoice
	Result  *EligibilityResult
	Err     error
}

// ReconciliationResult contains the complete results of a reconciliation run
type ReconciliationResult struct {
	Summary       *ResultSummary         `json:"summary"`
	Transactions  []*models.Transaction  `json:"transactions"`
	Discrepancies []*Discrepancy         `json:"discrepancies,omitempty"`
	Matches       []*matcher.MatchResult `json:"-"`
	ProcessedAt   time.Time              `json:"processed_at"`
}

// ResultSummary provides a high-level overview of a reconciliation run
type ResultSummary struct {
	matcher.Summary

	TotalInvoices   int             `json:"total_invoices"`
	TotalClaimed    decimal.Decimal `json:"total_claimed"`
	MatchedAmount   decimal.Decimal `json:"matched_amount"`
	PartialAmount   decimal.Decimal `json:"partial_amount"`
	UnmatchedAmount decimal.Decimal `json:"unmatched_amount"`

	ProcessingDuration time.Duration `json:"processing_duration"`
}

// TransactionView is the reconciliation view with its summary tiles
type TransactionView struct {
	Transactions []*models.Transaction `json:"transactions"`
	Summary      matcher.Summary       `json:"summary"`
}

// Discrepancy represents a difference between an invoice and its GSTR-2B
// record
type Discrepancy struct {
	Type          DiscrepancyType `json:"type"`
	InvoiceNumber string          `json:"invoice_number"`
	SupplierGSTIN string          `json:"supplier_gstin"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Severity      Severity        `json:"severity"`
}

// DiscrepancyType represents the type of discrepancy
type DiscrepancyType string

const (
	DiscrepancyNotReported      DiscrepancyType = "not_reported"
	DiscrepancyAmountDifference DiscrepancyType = "amount_difference"
)

// Severity represents the severity level of a discrepancy
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(
	deps Dependencies,
	matchingConfig *matcher.MatchingConfig,
	config *Config,
	log logger.Logger,
) (*ReconciliationService, error) {

	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := deps.Validate(); err != nil {
		return nil, err
	}

	m := matcher.NewMatcher(matchingConfig)
	if err := m.ValidateConfiguration(); err != nil {
		return nil, fmt.Errorf("invalid matching configuration: %w", err)
	}

	log = logger.OrGlobal(log)

	return &ReconciliationService{
		evaluator:    eligibility.NewEvaluator(deps.Invoices, deps.Returns, eligibility.Options{DatasetName: config.DatasetName}, log),
		recorder:     compliance.NewRecorder(deps.Checks, log),
		matcher:      m,
		invoices:     deps.Invoices,
		returns:      deps.Returns,
		transactions: deps.Transactions,
		config:       config,
		logger:       log.WithComponent("reconciler"),
		now:          time.Now,
	}, nil
}

// Recorder returns the compliance recorder used by the service
func (rs *ReconciliationService) Recorder() *compliance.Recorder {
	return rs.recorder
}

// GetConfiguration returns the current configuration
func (rs *ReconciliationService) GetConfiguration() *Config {
	return rs.config
}

// BatchSummary counts the outcomes of a batch evaluation. Rejected inputs
// (validation, duplicate) and failed evaluations (persistence, lookup and
// anything else) are never counted as ineligible.
type BatchSummary struct {
	Total          int             `json:"total"`
	Eligible       int             `json:"eligible"`
	Ineligible     int             `json:"ineligible"`
	Rejected       int             `json:"rejected"`
	Failed         int             `json:"failed"`
	EligibleAmount decimal.Decimal `json:"eligible_amount"`
}

// SummarizeOutcomes tallies a batch evaluation
func SummarizeOutcomes(outcomes []*EvaluationOutcome) *BatchSummary {
	summary := &BatchSummary{Total: len(outcomes), EligibleAmount: decimal.Zero}
	for _, o := range outcomes {
		switch {
		case o.Err == nil && o.Result.Verdict.IsEligible:
			summary.Eligible++
			summary.EligibleAmount = summary.EligibleAmount.Add(o.Result.Verdict.EligibleAmount)
		case o.Err == nil:
			summary.Ineligible++
		case errors.IsValidation(o.Err) || errors.IsDuplicate(o.Err):
			summary.Rejected++
		default:
			summary.Failed++
		}
	}
	return summary
}

// HasFailures reports whether any evaluation ended without a determination
func (s *BatchSummary) HasFailures() bool {
	return s.Failed > 0
}
