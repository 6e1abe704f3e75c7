// Package compliance keeps the append-only audit trail of supplier checks.
package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"itc-reconciliation-service/internal/models"
	"itc-reconciliation-service/pkg/errors"
	"itc-reconciliation-service/pkg/logger"
)

// Store persists compliance checks. Records are never updated or deleted.
type Store interface {
	Append(ctx context.Context, check *models.ComplianceCheck) error
	ListAll(ctx context.Context) ([]*models.ComplianceCheck, error)
}

// Recorder appends compliance checks to a Store
type Recorder struct {
	store  Store
	now    func() time.Time
	logger logger.Logger
}

// NewRecorder creates a Recorder
func NewRecorder(store Store, log logger.Logger) *Recorder {
	return &Recorder{
		store:  store,
		now:    time.Now,
		logger: logger.OrGlobal(log).WithComponent("compliance"),
	}
}

// Record appends a check. ID and CreatedAt are assigned when unset; the
// check type and status are stored as given.
func (r *Recorder) Record(ctx context.Context, check models.ComplianceCheck) (*models.ComplianceCheck, error) {
	if check.ID == "" {
		check.ID = uuid.NewString()
	}
	if check.CreatedAt.IsZero() {
		check.CreatedAt = r.now().UTC()
	}

	if err := r.store.Append(ctx, &check); err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryPersistence, errors.CodeInsertFailed,
			"failed to append compliance check").WithContext("check_type", check.CheckType)
	}

	r.logger.WithFields(logger.Fields{
		"supplier_id": check.SupplierID,
		"check_type":  check.CheckType,
		"status":      check.Status,
	}).Debug("Compliance check recorded")

	return &check, nil
}

// RecordVerdict appends a RETURN_FILED check describing an eligibility verdict
func (r *Recorder) RecordVerdict(ctx context.Context, inv *models.Invoice, verdict *models.EligibilityVerdict) (*models.ComplianceCheck, error) {
	details := "Invoice " + inv.InvoiceNumber + " found in return dataset"
	if len(verdict.Reasons) > 0 {
		details = "Invoice " + inv.InvoiceNumber + ": " + verdict.Reasons[0]
	}

	return r.Record(ctx, models.ComplianceCheck{
		SupplierID: models.NormalizeGSTIN(inv.SupplierGSTIN),
		CheckType:  models.CheckTypeReturnFiled,
		Status:     verdict.VerificationStatus.String(),
		Details:    details,
	})
}

// List returns every recorded check, oldest first
func (r *Recorder) List(ctx context.Context) ([]*models.ComplianceCheck, error) {
	checks, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryPersistence, errors.CodeQueryFailed,
			"failed to list compliance checks")
	}
	return checks, nil
}
