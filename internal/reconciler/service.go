package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"itc-reconciliation-service/internal/matcher"
	"itc-reconciliation-service/internal/models"
	"itc-reconciliation-service/pkg/errors"
	"itc-reconciliation-service/pkg/logger"
)

// CheckEligibility evaluates one invoice and, when configured, records a
// RETURN_FILED compliance check for the verdict. A failure to write the audit
// record is logged and does not change the verdict.
func (rs *ReconciliationService) CheckEligibility(ctx context.Context, invoice *models.Invoice) (*EligibilityResult, error) {
	verdict, err := rs.evaluator.Evaluate(ctx, invoice)
	if err != nil {
		return nil, err
	}

	inv := invoice.Normalized()
	result := &EligibilityResult{
		Invoice: inv,
		Verdict: verdict,
	}

	if rs.config.RecordChecks {
		check, err := rs.recorder.RecordVerdict(ctx, inv, verdict)
		if err != nil {
			rs.logger.WithError(err).WithField("invoice_number", inv.InvoiceNumber).
				Warn("Failed to record compliance check for verdict")
		} else {
			result.Check = check
		}
	}

	return result, nil
}

// EvaluateBatch evaluates invoices in order. Each invoice gets exactly one
// outcome; failures do not stop the batch.
func (rs *ReconciliationService) EvaluateBatch(ctx context.Context, invoices []*models.Invoice) []*EvaluationOutcome {
	outcomes := make([]*EvaluationOutcome, len(invoices))

	var progress *logger.ProgressTracker
	if rs.config.ProgressReporting {
		progress = logger.NewProgressTracker(logger.ProgressConfig{
			Operation: "eligibility_batch",
			Total:     int64(len(invoices)),
			Logger:    rs.logger,
		})
	}

	for i, inv := range invoices {
		outcome := &EvaluationOutcome{Line: i + 1, Invoice: inv}
		if err := ctx.Err(); err != nil {
			outcome.Err = errors.InternalError(errors.CodeCancelled, "eligibility_batch", err)
		} else {
			outcome.Result, outcome.Err = rs.CheckEligibility(ctx, inv)
		}
		outcomes[i] = outcome

		if progress != nil {
			progress.Increment()
		}
	}

	if progress != nil {
		progress.Complete()
	}

	return outcomes
}

// Reconcile looks every stored invoice up in the return dataset, classifies
// it, and replaces the transaction view with the result. A lookup failure
// aborts the run before anything is written.
func (rs *ReconciliationService) Reconcile(ctx context.Context) (*ReconciliationResult, error) {
	startTime := rs.now()

	invoices, err := rs.invoices.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	log := rs.logger.WithField("invoices", len(invoices))
	log.Info("Starting reconciliation run")

	var progress *logger.ProgressTracker
	if rs.config.ProgressReporting {
		progress = logger.NewProgressTracker(logger.ProgressConfig{
			Operation: "reconciliation",
			Total:     int64(len(invoices)),
			Logger:    rs.logger,
		})
	}

	records, err := rs.lookupAll(ctx, invoices, progress)
	if err != nil {
		if progress != nil {
			progress.CompleteWithError(err)
		}
		return nil, err
	}

	checkDate := rs.now().UTC()
	result := &ReconciliationResult{
		Summary: &ResultSummary{
			TotalInvoices:   len(invoices),
			TotalClaimed:    decimal.Zero,
			MatchedAmount:   decimal.Zero,
			PartialAmount:   decimal.Zero,
			UnmatchedAmount: decimal.Zero,
		},
		Transactions: make([]*models.Transaction, len(invoices)),
		Matches:      make([]*matcher.MatchResult, len(invoices)),
		ProcessedAt:  checkDate,
	}

	for i, inv := range invoices {
		match := rs.matcher.Compare(inv, records[i])
		result.Matches[i] = match
		result.Transactions[i] = buildTransaction(inv, match, checkDate)
		rs.accumulate(result, match)
	}

	if err := rs.transactions.ReplaceAll(ctx, result.Transactions); err != nil {
		if progress != nil {
			progress.CompleteWithError(err)
		}
		return nil, err
	}

	result.Summary.ProcessingDuration = rs.now().Sub(startTime)
	if progress != nil {
		progress.Complete()
	}

	log.WithFields(logger.Fields{
		"matched":   result.Summary.Matched,
		"partial":   result.Summary.Partial,
		"unmatched": result.Summary.Unmatched,
	}).Info("Reconciliation run completed")

	return result, nil
}

// Transactions returns the current reconciliation view with summary tiles
func (rs *ReconciliationService) Transactions(ctx context.Context) (*TransactionView, error) {
	transactions, err := rs.transactions.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	return &TransactionView{
		Transactions: transactions,
		Summary:      matcher.SummarizeTransactions(transactions),
	}, nil
}

// lookupAll fetches the return record of every invoice through a bounded
// pool. records[i] belongs to invoices[i]; nil means not reported.
func (rs *ReconciliationService) lookupAll(
	ctx context.Context,
	invoices []*models.Invoice,
	progress *logger.ProgressTracker,
) ([]*models.ReturnRecord, error) {

	records := make([]*models.ReturnRecord, len(invoices))

	p := pool.New().
		WithMaxGoroutines(rs.config.MaxConcurrency).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	for i, inv := range invoices {
		p.Go(func(ctx context.Context) error {
			rec, err := rs.returns.Find(ctx, inv.InvoiceNumber, inv.SupplierGSTIN)
			if err != nil {
				if errors.IsLookup(err) {
					return err
				}
				return errors.LookupError(inv.InvoiceNumber, inv.SupplierGSTIN, err)
			}
			records[i] = rec
			if progress != nil {
				progress.Increment()
			}
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (rs *ReconciliationService) accumulate(result *ReconciliationResult, match *matcher.MatchResult) {
	summary := result.Summary
	amount := match.Invoice.TotalTax()

	summary.Add(match.Status)
	summary.TotalClaimed = summary.TotalClaimed.Add(amount)

	switch match.Status {
	case models.StatusMatched:
		summary.MatchedAmount = summary.MatchedAmount.Add(amount)
	case models.StatusPartial:
		summary.PartialAmount = summary.PartialAmount.Add(amount)
		result.Discrepancies = append(result.Discrepancies, &Discrepancy{
			Type:          DiscrepancyAmountDifference,
			InvoiceNumber: match.Invoice.InvoiceNumber,
			SupplierGSTIN: match.Invoice.SupplierGSTIN,
			Description:   strings.Join(match.Reasons, "; "),
			Amount:        match.AmountDifference,
			Severity:      amountSeverity(match.AmountDifference, amount),
		})
	default:
		summary.UnmatchedAmount = summary.UnmatchedAmount.Add(amount)
		result.Discrepancies = append(result.Discrepancies, &Discrepancy{
			Type:          DiscrepancyNotReported,
			InvoiceNumber: match.Invoice.InvoiceNumber,
			SupplierGSTIN: match.Invoice.SupplierGSTIN,
			Description:   fmt.Sprintf("Invoice not found in %s", rs.evaluator.DatasetName()),
			Amount:        amount,
			Severity:      SeverityHigh,
		})
	}
}

func buildTransaction(inv *models.Invoice, match *matcher.MatchResult, checkDate time.Time) *models.Transaction {
	return &models.Transaction{
		ID:                   uuid.NewString(),
		Date:                 inv.InvoiceDate,
		InvoiceNumber:        inv.InvoiceNumber,
		SupplierGSTIN:        inv.SupplierGSTIN,
		Amount:               inv.TotalTax(),
		Status:               match.Status,
		CheckDate:            checkDate,
		FoundInReturnDataset: match.Candidate.FoundInReturnDataset,
		InvoiceMatch:         match.Candidate.InvoiceMatch,
		SupplierDetails:      supplierDetails(inv, match.Record),
	}
}

func supplierDetails(inv *models.Invoice, rec *models.ReturnRecord) string {
	if rec != nil && rec.SupplierName != "" {
		return fmt.Sprintf("%s (%s)", rec.SupplierName, inv.SupplierGSTIN)
	}
	return inv.SupplierGSTIN
}

// amountSeverity grades a mismatch by its share of the claimed tax
func amountSeverity(difference, claimed decimal.Decimal) Severity {
	if claimed.IsZero() {
		return SeverityMedium
	}
	ratio := difference.Div(claimed.Abs())
	switch {
	case ratio.GreaterThan(decimal.NewFromFloat(0.1)):
		return SeverityHigh
	case ratio.GreaterThan(decimal.NewFromFloat(0.01)):
		return SeverityMedium
	default:
		return SeverityLow
	}
}
