// Package eligibility decides whether Input Tax Credit may be claimed for a
// purchase invoice.
//
// An invoice is eligible exactly when the supplier reported the same invoice
// number under the same GSTIN in the return dataset (GSTR-2B). Every submitted
// invoice is recorded in the invoice store before the lookup, and the pair
// (invoice number, supplier GSTIN) may be submitted only once.
//
// Evaluate returns either a verdict or an error, never both:
//
//	verdict, err := evaluator.Evaluate(ctx, invoice)
//	switch {
//	case errors.IsValidation(err), errors.IsDuplicate(err):
//		// rejected input, nothing to claim
//	case errors.IsInconclusive(err):
//		// storage or lookup fault, retry later
//	case err == nil && !verdict.IsEligible:
//		// determination: not reported by the supplier
//	}
package eligibility

import (
	"context"

	"itc-reconciliation-service/internal/models"
	"itc-reconciliation-service/pkg/errors"
	"itc-reconciliation-service/pkg/logger"
)

// InvoiceStore persists submitted invoices.
type InvoiceStore interface {
	// FindByInvoiceNumber returns every stored invoice carrying the number,
	// across all suppliers. An empty slice means none.
	FindByInvoiceNumber(ctx context.Context, invoiceNumber string) ([]*models.Invoice, error)

	// Insert stores the invoice. A uniqueness violation on
	// (invoice number, supplier GSTIN) must surface as a duplicate error.
	Insert(ctx context.Context, invoice *models.Invoice) (*models.Invoice, error)
}

// ReturnDataset answers whether the supplier reported an invoice.
type ReturnDataset interface {
	// Find returns the matching record, or nil and no error when absent.
	Find(ctx context.Context, invoiceNumber, supplierGSTIN string) (*models.ReturnRecord, error)
}

// Options tunes an Evaluator
type Options struct {
	// DatasetName appears in the NOT_FOUND reason. Defaults to GSTR-2B.
	DatasetName string
}

// Evaluator runs the eligibility workflow for a single invoice
type Evaluator struct {
	invoices    InvoiceStore
	returns     ReturnDataset
	datasetName string
	logger      logger.Logger
}

// NewEvaluator creates an Evaluator. A nil log falls back to the global logger.
func NewEvaluator(invoices InvoiceStore, returns ReturnDataset, opts Options, log logger.Logger) *Evaluator {
	name := opts.DatasetName
	if name == "" {
		name = models.DefaultReturnDatasetName
	}

	return &Evaluator{
		invoices:    invoices,
		returns:     returns,
		datasetName: name,
		logger:      logger.OrGlobal(log).WithComponent("eligibility"),
	}
}

// DatasetName returns the return dataset name used in reasons
func (e *Evaluator) DatasetName() string {
	return e.datasetName
}

// Evaluate validates and records the invoice, then looks it up in the return
// dataset. It is not idempotent: a second call with the same pair fails with a
// duplicate error.
func (e *Evaluator) Evaluate(ctx context.Context, invoice *models.Invoice) (*models.EligibilityVerdict, error) {
	if err := invoice.Validate(); err != nil {
		return nil, err
	}

	inv := invoice.Normalized()
	log := e.logger.WithFields(logger.Fields{
		"invoice_number": inv.InvoiceNumber,
		"supplier_gstin": inv.SupplierGSTIN,
	})

	existing, err := e.invoices.FindByInvoiceNumber(ctx, inv.InvoiceNumber)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryPersistence, errors.CodeQueryFailed,
			"failed to query invoice store").WithContext("invoice_number", inv.InvoiceNumber)
	}

	for _, stored := range existing {
		if models.NormalizeGSTIN(stored.SupplierGSTIN) == inv.SupplierGSTIN {
			log.Debug("Rejecting resubmitted invoice")
			return nil, errors.DuplicateInvoiceError(inv.InvoiceNumber, inv.SupplierGSTIN, nil)
		}
	}

	stored, err := e.invoices.Insert(ctx, inv)
	if err != nil {
		if errors.IsDuplicate(err) {
			// lost the race against a concurrent submission of the same pair
			log.Debug("Insert rejected by uniqueness constraint")
			return nil, err
		}
		return nil, errors.WrapIfNeeded(err, errors.CategoryPersistence, errors.CodeInsertFailed,
			"failed to store invoice").WithContext("invoice_number", inv.InvoiceNumber)
	}
	if stored == nil {
		stored = inv
	}

	record, err := e.returns.Find(ctx, stored.InvoiceNumber, stored.SupplierGSTIN)
	if err != nil {
		if errors.IsLookup(err) {
			return nil, err
		}
		return nil, errors.LookupError(stored.InvoiceNumber, stored.SupplierGSTIN, err)
	}

	if record == nil {
		log.WithField("dataset", e.datasetName).Info("Invoice not reported by supplier")
		return models.NotFoundVerdict(e.datasetName), nil
	}

	verdict := models.VerifiedVerdict(stored)
	log.WithField("eligible_amount", verdict.EligibleAmount.String()).Info("Invoice verified")
	return verdict, nil
}
