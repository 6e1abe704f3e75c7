package models

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/shopspring/decimal"

	"itc-reconciliation-service/pkg/errors"
)

// DefaultReturnDatasetName is the name used in ineligibility reasons when
// no other dataset name is configured.
const DefaultReturnDatasetName = "GSTR-2B"

// DateLayout is the wire format of Date values
const DateLayout = "2006-01-02"

// VerificationStatus is the outcome of looking an invoice up in the return dataset
type VerificationStatus string

const (
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationNotFound VerificationStatus = "NOT_FOUND"
)

// String returns the string representation of VerificationStatus
func (s VerificationStatus) String() string {
	return string(s)
}

// TransactionStatus is the reconciliation status of a single invoice
type TransactionStatus string

const (
	StatusMatched   TransactionStatus = "matched"
	StatusUnmatched TransactionStatus = "unmatched"
	StatusPartial   TransactionStatus = "partial"
)

// String returns the string representation of TransactionStatus
func (s TransactionStatus) String() string {
	return string(s)
}

// IsValid checks if the status is one of the known values
func (s TransactionStatus) IsValid() bool {
	return s == StatusMatched || s == StatusUnmatched || s == StatusPartial
}

// Date is a calendar date that marshals as YYYY-MM-DD
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in UTC
func NewDate(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// String returns the date as YYYY-MM-DD, or an empty string for the zero date
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MarshalJSON implements json.Marshaler
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		if string(data) == "null" {
			*d = Date{}
			return nil
		}
		return fmt.Errorf("invalid date: %w", err)
	}
	if strings.TrimSpace(s) == "" {
		*d = Date{}
		return nil
	}
	t, err := ParseTimeWithFormats(s)
	if err != nil {
		return err
	}
	*d = NewDate(t)
	return nil
}

// Invoice is a purchase invoice submitted for an ITC claim. The pair
// (InvoiceNumber, SupplierGSTIN) is unique across the invoice store.
type Invoice struct {
	ID            string          `json:"id,omitempty"`
	InvoiceNumber string          `json:"invoice_number" validate:"notblank"`
	SupplierGSTIN string          `json:"supplier_gstin" validate:"notblank"`
	InvoiceDate   Date            `json:"invoice_date"`
	CGST          decimal.Decimal `json:"cgst"`
	SGST          decimal.Decimal `json:"sgst"`
	IGST          decimal.Decimal `json:"igst"`
	CreatedAt     time.Time       `json:"created_at,omitempty"`
}

// NewInvoice creates a new Invoice instance
func NewInvoice(number, gstin string, cgst, sgst, igst decimal.Decimal) *Invoice {
	return &Invoice{
		InvoiceNumber: number,
		SupplierGSTIN: gstin,
		CGST:          cgst,
		SGST:          sgst,
		IGST:          igst,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks the fields that identify the invoice. Tax component signs
// are not checked here.
func (inv *Invoice) Validate() error {
	if inv == nil {
		return errors.ValidationError(errors.CodeMissingField, "invoice", nil, nil)
	}

	err := validate.Struct(inv)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrs) == 0 {
		return errors.ValidationError(errors.CodeInvalidData, "invoice", nil, err)
	}

	first := fieldErrs[0]
	return errors.ValidationError(errors.CodeMissingField, first.Field(), first.Value(), nil)
}

// Normalized returns a copy with surrounding whitespace removed and the GSTIN
// upper-cased
func (inv *Invoice) Normalized() *Invoice {
	out := *inv
	out.InvoiceNumber = strings.TrimSpace(inv.InvoiceNumber)
	out.SupplierGSTIN = NormalizeGSTIN(inv.SupplierGSTIN)
	return &out
}

// TotalTax returns cgst + sgst + igst
func (inv *Invoice) TotalTax() decimal.Decimal {
	return inv.CGST.Add(inv.SGST).Add(inv.IGST)
}

// String returns a string representation of the Invoice
func (inv *Invoice) String() string {
	return fmt.Sprintf("Invoice{Number: %s, GSTIN: %s, CGST: %s, SGST: %s, IGST: %s}",
		inv.InvoiceNumber, inv.SupplierGSTIN, inv.CGST, inv.SGST, inv.IGST)
}

// ReturnRecord is one supplier-reported row of the return dataset (GSTR-2B)
type ReturnRecord struct {
	InvoiceNumber string          `json:"invoice_number"`
	SupplierGSTIN string          `json:"supplier_gstin"`
	SupplierName  string          `json:"supplier_name,omitempty"`
	InvoiceDate   Date            `json:"invoice_date"`
	ReturnPeriod  string          `json:"return_period,omitempty"`
	CGST          decimal.Decimal `json:"cgst"`
	SGST          decimal.Decimal `json:"sgst"`
	IGST          decimal.Decimal `json:"igst"`
}

// Validate performs basic validation on the ReturnRecord
func (r *ReturnRecord) Validate() error {
	if strings.TrimSpace(r.InvoiceNumber) == "" {
		return fmt.Errorf("return record invoice number cannot be empty")
	}
	if strings.TrimSpace(r.SupplierGSTIN) == "" {
		return fmt.Errorf("return record supplier GSTIN cannot be empty")
	}
	return nil
}

// TotalTax returns cgst + sgst + igst as reported by the supplier
func (r *ReturnRecord) TotalTax() decimal.Decimal {
	return r.CGST.Add(r.SGST).Add(r.IGST)
}

// EligibilityVerdict is the ITC determination for one invoice. Reasons is
// empty exactly when IsEligible is true.
type EligibilityVerdict struct {
	IsEligible         bool               `json:"is_eligible"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	EligibleAmount     decimal.Decimal    `json:"eligible_amount"`
	Reasons            []string           `json:"reasons"`
}

// VerifiedVerdict builds the verdict for an invoice found in the return dataset
func VerifiedVerdict(inv *Invoice) *EligibilityVerdict {
	return &EligibilityVerdict{
		IsEligible:         true,
		VerificationStatus: VerificationVerified,
		EligibleAmount:     inv.TotalTax(),
		Reasons:            []string{},
	}
}

// NotFoundVerdict builds the verdict for an invoice absent from the named dataset
func NotFoundVerdict(datasetName string) *EligibilityVerdict {
	if datasetName == "" {
		datasetName = DefaultReturnDatasetName
	}
	return &EligibilityVerdict{
		IsEligible:         false,
		VerificationStatus: VerificationNotFound,
		EligibleAmount:     decimal.Zero,
		Reasons:            []string{fmt.Sprintf("Invoice not found in %s", datasetName)},
	}
}

// Transaction is one row of the reconciliation view
type Transaction struct {
	ID                   string            `json:"id"`
	Date                 Date              `json:"date"`
	InvoiceNumber        string            `json:"invoice_number"`
	SupplierGSTIN        string            `json:"supplier_gstin"`
	Amount               decimal.Decimal   `json:"amount"`
	Status               TransactionStatus `json:"status"`
	CheckDate            time.Time         `json:"check_date"`
	FoundInReturnDataset bool              `json:"found_in_return_dataset"`
	InvoiceMatch         bool              `json:"invoice_match"`
	SupplierDetails      string            `json:"supplier_details"`
}

// ComplianceCheck is an append-only audit record of a check outcome.
// CheckType and Status are free-form tags.
type ComplianceCheck struct {
	ID         string    `json:"id"`
	SupplierID string    `json:"supplier_id"`
	CheckType  string    `json:"check_type"`
	Status     string    `json:"status"`
	Details    string    `json:"details"`
	CreatedAt  time.Time `json:"created_at"`
}

// Well-known check types written by this service
const (
	CheckTypeGSTINValidity = "GSTIN_VALIDITY"
	CheckTypeReturnFiled   = "RETURN_FILED"
)

// NormalizeGSTIN trims and upper-cases a GSTIN
func NormalizeGSTIN(gstin string) string {
	return strings.ToUpper(strings.TrimSpace(gstin))
}

// ParseDecimalFromString parses an amount, tolerating currency symbols and
// thousands separators. An empty string parses as zero.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}

	for _, symbol := range []string{"₹", "Rs.", "INR", ","} {
		s = strings.ReplaceAll(s, symbol, "")
	}
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseTimeWithFormats parses a date using the formats seen in invoice
// registers and GSTR-2B downloads
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		DateLayout,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"02-01-2006",
		"02/01/2006",
		"02-Jan-2006",
		"02-Jan-06",
		"2006/01/02",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// CompareAmountsWithTolerance compares two decimal amounts with a tolerance
func CompareAmountsWithTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
