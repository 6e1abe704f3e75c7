package matcher

import (
	"fmt"

	"itc-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// Candidate carries the two facts classification depends on
type Candidate struct {
	FoundInReturnDataset bool `json:"found_in_return_dataset"`
	InvoiceMatch         bool `json:"invoice_match"`
}

// Classify maps a candidate to its reconciliation status. It is total and
// has no side effects.
//
//	found  match  status
//	true   true   matched
//	true   false  partial
//	false  any    unmatched
func Classify(c Candidate) models.TransactionStatus {
	if !c.FoundInReturnDataset {
		return models.StatusUnmatched
	}
	if c.InvoiceMatch {
		return models.StatusMatched
	}
	return models.StatusPartial
}

// Summary holds per-status counts of a batch
type Summary struct {
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
	Partial   int `json:"partial"`
}

// Add counts one status
func (s *Summary) Add(status models.TransactionStatus) {
	switch status {
	case models.StatusMatched:
		s.Matched++
	case models.StatusPartial:
		s.Partial++
	default:
		s.Unmatched++
	}
}

// Total returns the number of counted items
func (s Summary) Total() int {
	return s.Matched + s.Unmatched + s.Partial
}

// MatchRate returns the matched share of the batch as a percentage
func (s Summary) MatchRate() float64 {
	if s.Total() == 0 {
		return 0.0
	}
	return float64(s.Matched) / float64(s.Total()) * 100
}

// Summarize classifies every candidate and counts the results. The counts
// always sum to len(candidates).
func Summarize(candidates []Candidate) Summary {
	var summary Summary
	for _, c := range candidates {
		summary.Add(Classify(c))
	}
	return summary
}

// SummarizeTransactions counts stored transactions by their status
func SummarizeTransactions(transactions []*models.Transaction) Summary {
	var summary Summary
	for _, tx := range transactions {
		summary.Add(tx.Status)
	}
	return summary
}

// Matcher compares invoices against supplier-reported return records
type Matcher struct {
	Config *MatchingConfig
}

// MatchResult is the outcome of comparing one invoice with its return record
type MatchResult struct {
	Invoice          *models.Invoice
	Record           *models.ReturnRecord
	Candidate        Candidate
	Status           models.TransactionStatus
	AmountDifference decimal.Decimal
	Reasons          []string
}

// NewMatcher creates a new matcher with the specified configuration
func NewMatcher(config *MatchingConfig) *Matcher {
	if config == nil {
		config = DefaultMatchingConfig()
	}

	return &Matcher{
		Config: config,
	}
}

// AmountsMatch reports whether the invoice amounts agree with the record
// within the configured tolerance
func (m *Matcher) AmountsMatch(inv *models.Invoice, rec *models.ReturnRecord) bool {
	if inv == nil || rec == nil {
		return false
	}

	if m.Config.CompareMode == CompareTotal {
		return m.withinTolerance(inv.TotalTax(), rec.TotalTax())
	}

	return m.withinTolerance(inv.CGST, rec.CGST) &&
		m.withinTolerance(inv.SGST, rec.SGST) &&
		m.withinTolerance(inv.IGST, rec.IGST)
}

// Compare builds the full match result for an invoice. A nil record means
// the invoice is absent from the return dataset.
func (m *Matcher) Compare(inv *models.Invoice, rec *models.ReturnRecord) *MatchResult {
	result := &MatchResult{
		Invoice: inv,
		Record:  rec,
		Candidate: Candidate{
			FoundInReturnDataset: rec != nil,
			InvoiceMatch:         m.AmountsMatch(inv, rec),
		},
		Reasons: []string{},
	}
	result.Status = Classify(result.Candidate)

	if rec != nil {
		result.AmountDifference = inv.TotalTax().Sub(rec.TotalTax()).Abs()
	}
	result.Reasons = m.generateReasons(inv, rec, result.Candidate)

	return result
}

func (m *Matcher) withinTolerance(claimed, reported decimal.Decimal) bool {
	if claimed.Equal(reported) {
		return true
	}
	return models.CompareAmountsWithTolerance(claimed, reported, m.Config.GetAmountTolerance(claimed))
}

// generateReasons generates human-readable reasons for the classification
func (m *Matcher) generateReasons(inv *models.Invoice, rec *models.ReturnRecord, c Candidate) []string {
	var reasons []string

	if !c.FoundInReturnDataset {
		return []string{"Not reported by supplier"}
	}

	if c.InvoiceMatch {
		if inv.TotalTax().Equal(rec.TotalTax()) {
			reasons = append(reasons, "Exact amount match")
		} else {
			reasons = append(reasons, "Amount within tolerance")
		}
		return reasons
	}

	if m.Config.CompareMode == CompareComponents {
		heads := []struct {
			name              string
			claimed, reported decimal.Decimal
		}{
			{"CGST", inv.CGST, rec.CGST},
			{"SGST", inv.SGST, rec.SGST},
			{"IGST", inv.IGST, rec.IGST},
		}
		for _, h := range heads {
			if !m.withinTolerance(h.claimed, h.reported) {
				reasons = append(reasons, fmt.Sprintf("%s claimed %s, reported %s",
					h.name, h.claimed.StringFixed(2), h.reported.StringFixed(2)))
			}
		}
		return reasons
	}

	reasons = append(reasons, fmt.Sprintf("Total tax claimed %s, reported %s",
		inv.TotalTax().StringFixed(2), rec.TotalTax().StringFixed(2)))
	return reasons
}

// ValidateConfiguration validates the matcher configuration
func (m *Matcher) ValidateConfiguration() error {
	return m.Config.Validate()
}

// GetConfiguration returns a copy of the current configuration
func (m *Matcher) GetConfiguration() *MatchingConfig {
	return m.Config.Clone()
}
