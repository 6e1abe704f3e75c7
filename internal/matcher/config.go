// Package matcher classifies reconciled invoices and decides whether the
// amounts an invoice claims agree with what the supplier reported in GSTR-2B.
//
// Classification is a pure function of two facts about an invoice:
//   - whether the return dataset holds a record for (invoice number, GSTIN)
//   - whether the amounts on both sides agree within the configured tolerance
//
// The amount comparison is configurable:
//   - AmountTolerance: absolute difference allowed, in rupees
//   - AmountTolerancePercent: difference allowed relative to the claimed amount
//   - CompareMode: compare each tax head separately, or only the total tax
//
// Both tolerances default to zero, which requires exact equality.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.AmountTolerance = decimal.NewFromInt(1)
//
//	m := matcher.NewMatcher(config)
//	result := m.Compare(invoice, record)
//	status := result.Status
package matcher

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CompareMode defines which amounts are compared when deciding invoice_match.
type CompareMode int

const (
	// CompareComponents requires CGST, SGST and IGST to agree individually.
	// A supplier reporting the tax under the wrong head is a mismatch.
	CompareComponents CompareMode = iota

	// CompareTotal only requires cgst+sgst+igst to agree.
	CompareTotal
)

// String returns the string representation of CompareMode
func (cm CompareMode) String() string {
	switch cm {
	case CompareComponents:
		return "components"
	case CompareTotal:
		return "total"
	default:
		return "unknown"
	}
}

// ParseCompareMode parses "components" or "total"
func ParseCompareMode(s string) (CompareMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "components", "component":
		return CompareComponents, nil
	case "total":
		return CompareTotal, nil
	default:
		return CompareComponents, fmt.Errorf("unknown compare mode '%s'", s)
	}
}

// MatchingConfig holds the amount comparison settings used to compute
// invoice_match.
type MatchingConfig struct {
	// AmountTolerance is the absolute difference accepted per compared amount
	AmountTolerance decimal.Decimal `json:"amount_tolerance"`

	// AmountTolerancePercent is the difference accepted relative to the
	// claimed amount (0.0 to 100.0)
	AmountTolerancePercent float64 `json:"amount_tolerance_percent"`

	// AmountPrecision is the number of decimal places percentage tolerances
	// are rounded to
	AmountPrecision int `json:"amount_precision"`

	// CompareMode selects component-wise or total comparison
	CompareMode CompareMode `json:"compare_mode"`
}

// DefaultMatchingConfig returns a configuration requiring exact, per-component
// equality
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		AmountTolerance:        decimal.Zero,
		AmountTolerancePercent: 0.0,
		AmountPrecision:        2,
		CompareMode:            CompareComponents,
	}
}

// RelaxedMatchingConfig returns a configuration that absorbs rupee rounding
// and compares only the total tax
func RelaxedMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		AmountTolerance:        decimal.NewFromInt(1),
		AmountTolerancePercent: 0.5,
		AmountPrecision:        2,
		CompareMode:            CompareTotal,
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.AmountTolerance.IsNegative() {
		return fmt.Errorf("amount tolerance cannot be negative: %s", mc.AmountTolerance)
	}

	if mc.AmountTolerancePercent < 0.0 || mc.AmountTolerancePercent > 100.0 {
		return fmt.Errorf("amount tolerance percent must be between 0.0 and 100.0: %f", mc.AmountTolerancePercent)
	}

	if mc.AmountPrecision < 0 || mc.AmountPrecision > 10 {
		return fmt.Errorf("amount precision must be between 0 and 10: %d", mc.AmountPrecision)
	}

	if mc.CompareMode != CompareComponents && mc.CompareMode != CompareTotal {
		return fmt.Errorf("invalid compare mode: %d", mc.CompareMode)
	}

	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}

	clone := *mc
	return &clone
}

// GetAmountTolerance returns the larger of the absolute tolerance and the
// percentage tolerance for the claimed amount
func (mc *MatchingConfig) GetAmountTolerance(claimed decimal.Decimal) decimal.Decimal {
	tolerance := mc.AmountTolerance

	if mc.AmountTolerancePercent > 0.0 {
		percentage := decimal.NewFromFloat(mc.AmountTolerancePercent / 100.0)
		relative := claimed.Abs().Mul(percentage).Round(int32(mc.AmountPrecision))
		if relative.GreaterThan(tolerance) {
			tolerance = relative
		}
	}

	return tolerance
}

// IsExact reports whether the configuration accepts no difference at all
func (mc *MatchingConfig) IsExact() bool {
	return mc.AmountTolerance.IsZero() && mc.AmountTolerancePercent == 0.0
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{AmountTolerance: %s, AmountTolerancePercent: %.2f%%, Compare: %s}",
		mc.AmountTolerance, mc.AmountTolerancePercent, mc.CompareMode)
}
