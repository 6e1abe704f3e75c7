package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"itc-reconciliation-service/internal/models"
	apperrors "itc-reconciliation-service/pkg/errors"
)

const batchSize = 200

// InvoiceRepository stores submitted invoices
type InvoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// FindByInvoiceNumber returns all invoices carrying the number, across suppliers
func (r *InvoiceRepository) FindByInvoiceNumber(ctx context.Context, invoiceNumber string) ([]*models.Invoice, error) {
	var rows []invoiceRow
	if err := r.db.WithContext(ctx).
		Where("invoice_number = ?", invoiceNumber).
		Order("created_at").
		Find(&rows).Error; err != nil {
		return nil, apperrors.PersistenceError(apperrors.CodeQueryFailed, "invoice_lookup", err).
			WithContext("invoice_number", invoiceNumber)
	}

	invoices := make([]*models.Invoice, len(rows))
	for i := range rows {
		invoices[i] = rows[i].toModel()
	}
	return invoices, nil
}

// Insert stores the invoice. A violation of the (invoice_number,
// supplier_gstin) unique index is reported as a duplicate.
func (r *InvoiceRepository) Insert(ctx context.Context, invoice *models.Invoice) (*models.Invoice, error) {
	row := newInvoiceRow(invoice)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.DuplicateInvoiceError(invoice.InvoiceNumber, invoice.SupplierGSTIN, err)
		}
		return nil, apperrors.PersistenceError(apperrors.CodeInsertFailed, "invoice_insert", err).
			WithContext("invoice_number", invoice.InvoiceNumber)
	}

	return row.toModel(), nil
}

// ListAll returns every stored invoice in submission order
func (r *InvoiceRepository) ListAll(ctx context.Context) ([]*models.Invoice, error) {
	var rows []invoiceRow
	if err := r.db.WithContext(ctx).Order("created_at, invoice_number").Find(&rows).Error; err != nil {
		return nil, apperrors.PersistenceError(apperrors.CodeQueryFailed, "invoice_list", err)
	}

	invoices := make([]*models.Invoice, len(rows))
	for i := range rows {
		invoices[i] = rows[i].toModel()
	}
	return invoices, nil
}

// ReturnRecordRepository is the GSTR-2B return dataset
type ReturnRecordRepository struct {
	db *gorm.DB
}

// NewReturnRecordRepository creates a new return dataset repository
func NewReturnRecordRepository(db *gorm.DB) *ReturnRecordRepository {
	return &ReturnRecordRepository{db: db}
}

// Find returns the record for (invoice number, supplier GSTIN), or nil when
// the supplier did not report it. Any query failure is a lookup error.
func (r *ReturnRecordRepository) Find(ctx context.Context, invoiceNumber, supplierGSTIN string) (*models.ReturnRecord, error) {
	var row returnRecordRow
	err := r.db.WithContext(ctx).
		Where("invoice_number = ? AND supplier_gstin = ?", invoiceNumber, supplierGSTIN).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.LookupError(invoiceNumber, supplierGSTIN, err)
	}

	return row.toModel(), nil
}

// Upsert inserts records, replacing the amounts and supplier details of rows
// already present for the same (invoice number, supplier GSTIN)
func (r *ReturnRecordRepository) Upsert(ctx context.Context, records []*models.ReturnRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	// a statement may not touch the same conflict key twice, so the last
	// occurrence of a key wins
	position := make(map[string]int, len(records))
	rows := make([]*returnRecordRow, 0, len(records))
	for _, rec := range records {
		key := rec.InvoiceNumber + "|" + rec.SupplierGSTIN
		if i, ok := position[key]; ok {
			rows[i] = newReturnRecordRow(rec)
			continue
		}
		position[key] = len(rows)
		rows = append(rows, newReturnRecordRow(rec))
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "invoice_number"}, {Name: "supplier_gstin"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"supplier_name", "invoice_date", "return_period", "cgst", "sgst", "igst", "updated_at",
		}),
	}).CreateInBatches(rows, batchSize).Error
	if err != nil {
		return 0, apperrors.PersistenceError(apperrors.CodeInsertFailed, "return_dataset_upsert", err)
	}

	return len(rows), nil
}

// Count returns the number of records in the dataset
func (r *ReturnRecordRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&returnRecordRow{}).Count(&count).Error; err != nil {
		return 0, apperrors.PersistenceError(apperrors.CodeQueryFailed, "return_dataset_count", err)
	}
	return count, nil
}

// ListAll returns every record ordered by supplier and invoice number
func (r *ReturnRecordRepository) ListAll(ctx context.Context) ([]*models.ReturnRecord, error) {
	var rows []returnRecordRow
	if err := r.db.WithContext(ctx).Order("supplier_gstin, invoice_number").Find(&rows).Error; err != nil {
		return nil, apperrors.PersistenceError(apperrors.CodeQueryFailed, "return_dataset_list", err)
	}

	records := make([]*models.ReturnRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].toModel()
	}
	return records, nil
}

// TransactionRepository holds the reconciliation view
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction view repository
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// ListAll returns the current view, newest invoice date first
func (r *TransactionRepository) ListAll(ctx context.Context) ([]*models.Transaction, error) {
	var rows []transactionRow
	if err := r.db.WithContext(ctx).Order("date DESC, invoice_number").Find(&rows).Error; err != nil {
		return nil, apperrors.PersistenceError(apperrors.CodeQueryFailed, "transaction_list", err)
	}

	transactions := make([]*models.Transaction, len(rows))
	for i := range rows {
		transactions[i] = rows[i].toModel()
	}
	return transactions, nil
}

// ReplaceAll swaps the whole view for the result of a reconciliation run in
// a single database transaction
func (r *TransactionRepository) ReplaceAll(ctx context.Context, transactions []*models.Transaction) error {
	rows := make([]*transactionRow, len(transactions))
	for i, tx := range transactions {
		row := newTransactionRow(tx)
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		rows[i] = row
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&transactionRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, batchSize).Error
	})
	if err != nil {
		return apperrors.PersistenceError(apperrors.CodeInsertFailed, "transaction_replace", err)
	}
	return nil
}

// ComplianceCheckRepository is the append-only audit trail
type ComplianceCheckRepository struct {
	db *gorm.DB
}

// NewComplianceCheckRepository creates a new compliance check repository
func NewComplianceCheckRepository(db *gorm.DB) *ComplianceCheckRepository {
	return &ComplianceCheckRepository{db: db}
}

// Append stores a new check
func (r *ComplianceCheckRepository) Append(ctx context.Context, check *models.ComplianceCheck) error {
	if err := r.db.WithContext(ctx).Create(newComplianceCheckRow(check)).Error; err != nil {
		return apperrors.PersistenceError(apperrors.CodeInsertFailed, "compliance_check_append", err)
	}
	return nil
}

// ListAll returns every check, oldest first
func (r *ComplianceCheckRepository) ListAll(ctx context.Context) ([]*models.ComplianceCheck, error) {
	var rows []complianceCheckRow
	if err := r.db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, apperrors.PersistenceError(apperrors.CodeQueryFailed, "compliance_check_list", err)
	}

	checks := make([]*models.ComplianceCheck, len(rows))
	for i := range rows {
		checks[i] = rows[i].toModel()
	}
	return checks, nil
}
