package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"itc-reconciliation-service/internal/models"
)

type invoiceRow struct {
	ID            string          `gorm:"primaryKey;size:36"`
	InvoiceNumber string          `gorm:"size:64;not null;uniqueIndex:idx_invoice_supplier,priority:1"`
	SupplierGSTIN string          `gorm:"column:supplier_gstin;size:32;not null;uniqueIndex:idx_invoice_supplier,priority:2"`
	InvoiceDate   *time.Time      `gorm:"type:date"`
	CGST          decimal.Decimal `gorm:"column:cgst;type:decimal(18,2);not null"`
	SGST          decimal.Decimal `gorm:"column:sgst;type:decimal(18,2);not null"`
	IGST          decimal.Decimal `gorm:"column:igst;type:decimal(18,2);not null"`
	CreatedAt     time.Time       `gorm:"not null;index"`
}

func (invoiceRow) TableName() string { return "invoices" }

func newInvoiceRow(inv *models.Invoice) *invoiceRow {
	return &invoiceRow{
		ID:            inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		SupplierGSTIN: inv.SupplierGSTIN,
		InvoiceDate:   datePtr(inv.InvoiceDate),
		CGST:          inv.CGST,
		SGST:          inv.SGST,
		IGST:          inv.IGST,
		CreatedAt:     inv.CreatedAt,
	}
}

func (r *invoiceRow) toModel() *models.Invoice {
	return &models.Invoice{
		ID:            r.ID,
		InvoiceNumber: r.InvoiceNumber,
		SupplierGSTIN: r.SupplierGSTIN,
		InvoiceDate:   fromDatePtr(r.InvoiceDate),
		CGST:          r.CGST,
		SGST:          r.SGST,
		IGST:          r.IGST,
		CreatedAt:     r.CreatedAt,
	}
}

type returnRecordRow struct {
	ID            uint            `gorm:"primaryKey;autoIncrement"`
	InvoiceNumber string          `gorm:"size:64;not null;uniqueIndex:idx_gstr2b_invoice_supplier,priority:1"`
	SupplierGSTIN string          `gorm:"column:supplier_gstin;size:32;not null;uniqueIndex:idx_gstr2b_invoice_supplier,priority:2"`
	SupplierName  string          `gorm:"size:255"`
	InvoiceDate   *time.Time      `gorm:"type:date"`
	ReturnPeriod  string          `gorm:"size:6;index"`
	CGST          decimal.Decimal `gorm:"column:cgst;type:decimal(18,2);not null"`
	SGST          decimal.Decimal `gorm:"column:sgst;type:decimal(18,2);not null"`
	IGST          decimal.Decimal `gorm:"column:igst;type:decimal(18,2);not null"`
	UpdatedAt     time.Time
}

func (returnRecordRow) TableName() string { return "gstr_2b" }

func newReturnRecordRow(rec *models.ReturnRecord) *returnRecordRow {
	return &returnRecordRow{
		InvoiceNumber: rec.InvoiceNumber,
		SupplierGSTIN: rec.SupplierGSTIN,
		SupplierName:  rec.SupplierName,
		InvoiceDate:   datePtr(rec.InvoiceDate),
		ReturnPeriod:  rec.ReturnPeriod,
		CGST:          rec.CGST,
		SGST:          rec.SGST,
		IGST:          rec.IGST,
	}
}

func (r *returnRecordRow) toModel() *models.ReturnRecord {
	return &models.ReturnRecord{
		InvoiceNumber: r.InvoiceNumber,
		SupplierGSTIN: r.SupplierGSTIN,
		SupplierName:  r.SupplierName,
		InvoiceDate:   fromDatePtr(r.InvoiceDate),
		ReturnPeriod:  r.ReturnPeriod,
		CGST:          r.CGST,
		SGST:          r.SGST,
		IGST:          r.IGST,
	}
}

type transactionRow struct {
	ID                   string          `gorm:"primaryKey;size:36"`
	Date                 *time.Time      `gorm:"type:date;index"`
	InvoiceNumber        string          `gorm:"size:64;not null;index"`
	SupplierGSTIN        string          `gorm:"column:supplier_gstin;size:32"`
	Amount               decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Status               string          `gorm:"size:16;not null;index"`
	CheckDate            time.Time       `gorm:"not null"`
	FoundInReturnDataset bool            `gorm:"column:found_in_gstr2b;not null"`
	InvoiceMatch         bool            `gorm:"not null"`
	SupplierDetails      string          `gorm:"size:512"`
}

func (transactionRow) TableName() string { return "transactions" }

func newTransactionRow(tx *models.Transaction) *transactionRow {
	return &transactionRow{
		ID:                   tx.ID,
		Date:                 datePtr(tx.Date),
		InvoiceNumber:        tx.InvoiceNumber,
		SupplierGSTIN:        tx.SupplierGSTIN,
		Amount:               tx.Amount,
		Status:               tx.Status.String(),
		CheckDate:            tx.CheckDate,
		FoundInReturnDataset: tx.FoundInReturnDataset,
		InvoiceMatch:         tx.InvoiceMatch,
		SupplierDetails:      tx.SupplierDetails,
	}
}

func (r *transactionRow) toModel() *models.Transaction {
	return &models.Transaction{
		ID:                   r.ID,
		Date:                 fromDatePtr(r.Date),
		InvoiceNumber:        r.InvoiceNumber,
		SupplierGSTIN:        r.SupplierGSTIN,
		Amount:               r.Amount,
		Status:               models.TransactionStatus(r.Status),
		CheckDate:            r.CheckDate,
		FoundInReturnDataset: r.FoundInReturnDataset,
		InvoiceMatch:         r.InvoiceMatch,
		SupplierDetails:      r.SupplierDetails,
	}
}

type complianceCheckRow struct {
	ID         string    `gorm:"primaryKey;size:36"`
	SupplierID string    `gorm:"size:64;index"`
	CheckType  string    `gorm:"size:64;not null"`
	Status     string    `gorm:"size:64;not null"`
	Details    string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

func (complianceCheckRow) TableName() string { return "compliance_checks" }

func newComplianceCheckRow(c *models.ComplianceCheck) *complianceCheckRow {
	return &complianceCheckRow{
		ID:         c.ID,
		SupplierID: c.SupplierID,
		CheckType:  c.CheckType,
		Status:     c.Status,
		Details:    c.Details,
		CreatedAt:  c.CreatedAt,
	}
}

func (r *complianceCheckRow) toModel() *models.ComplianceCheck {
	return &models.ComplianceCheck{
		ID:         r.ID,
		SupplierID: r.SupplierID,
		CheckType:  r.CheckType,
		Status:     r.Status,
		Details:    r.Details,
		CreatedAt:  r.CreatedAt,
	}
}

func datePtr(d models.Date) *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

func fromDatePtr(t *time.Time) models.Date {
	if t == nil {
		return models.Date{}
	}
	return models.NewDate(*t)
}

// isUniqueViolation recognises unique index violations from both drivers,
// translated or not
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
