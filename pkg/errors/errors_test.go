package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
		},
		{
			name:       "validation error",
			category:   CategoryValidation,
			code:       CodeMissingField,
			message:    "missing field",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "duplicate error",
			category:   CategoryDuplicate,
			code:       CodeDuplicateInvoice,
			message:    "duplicate",
			cause:      nil,
			expectCode: 7,
		},
		{
			name:       "persistence error",
			category:   CategoryPersistence,
			code:       CodeInsertFailed,
			message:    "insert failed",
			cause:      errors.New("disk full"),
			expectCode: 8,
		},
		{
			name:       "lookup error",
			category:   CategoryLookup,
			code:       CodeLookupFailed,
			message:    "lookup failed",
			cause:      errors.New("connection reset"),
			expectCode: 9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
		})
	}
}

func TestReconcilerErrorWithContext(t *testing.T) {
	err := New(CategoryParse, CodeInvalidFormat, "test error").
		WithContext("file", "/path/to/gstr2b.csv").
		WithContext("line", 42).
		WithSuggestion("check file path")

	if err.Context["file"] != "/path/to/gstr2b.csv" {
		t.Errorf("expected file context, got %v", err.Context["file"])
	}
	if err.Context["line"] != 42 {
		t.Errorf("expected line context 42, got %v", err.Context["line"])
	}

	expected := "test error (suggestion: check file path)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestDomainConstructors(t *testing.T) {
	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError(CodeMissingField, "supplier_gstin", "", nil)

		if !IsValidation(err) {
			t.Error("expected validation error")
		}
		if err.Context["field"] != "supplier_gstin" {
			t.Errorf("expected field context, got %v", err.Context["field"])
		}
		if IsInconclusive(err) {
			t.Error("validation error must not be inconclusive")
		}
	})

	t.Run("DuplicateInvoiceError", func(t *testing.T) {
		err := DuplicateInvoiceError("INV-100", "29ABCDE1234F1Z5", nil)

		if !IsDuplicate(err) {
			t.Error("expected duplicate error")
		}
		if err.Context["invoice_number"] != "INV-100" {
			t.Errorf("expected invoice_number context, got %v", err.Context["invoice_number"])
		}
		if IsInconclusive(err) {
			t.Error("duplicate error must not be inconclusive")
		}
	})

	t.Run("PersistenceError", func(t *testing.T) {
		cause := errors.New("database is locked")
		err := PersistenceError(CodeInsertFailed, "invoice_insert", cause)

		if !IsPersistence(err) || !IsInconclusive(err) {
			t.Error("expected inconclusive persistence error")
		}
		if !errors.Is(err, cause) {
			t.Error("expected cause to be reachable through errors.Is")
		}
	})

	t.Run("LookupError", func(t *testing.T) {
		err := LookupError("INV-200", "29AAAAA0000A1Z5", errors.New("timeout"))

		if !IsLookup(err) || !IsInconclusive(err) {
			t.Error("expected inconclusive lookup error")
		}
		if IsPersistence(err) {
			t.Error("lookup error must not be reported as persistence error")
		}
	})
}

func TestPredicatesThroughWrapping(t *testing.T) {
	inner := LookupError("INV-1", "GSTIN", errors.New("boom"))
	wrapped := fmt.Errorf("reconcile: %w", inner)

	if !IsLookup(wrapped) {
		t.Error("expected IsLookup to see through fmt wrapping")
	}
	if IsLookup(errors.New("plain")) {
		t.Error("expected IsLookup to be false for plain errors")
	}
	if IsInconclusive(nil) {
		t.Error("expected IsInconclusive to be false for nil")
	}
}

func TestErrorSummary(t *testing.T) {
	errs := []*ReconcilerError{
		New(CategoryParse, CodeInvalidFormat, "error 1"),
		New(CategoryParse, CodeInvalidData, "error 2"),
		New(CategoryValidation, CodeMissingField, "error 3"),
		New(CategoryLookup, CodeLookupFailed, "error 4"),
	}

	summary := NewErrorSummary(errs)

	if summary.Total != 4 {
		t.Errorf("expected total 4, got %d", summary.Total)
	}
	if summary.ByCategory[CategoryParse] != 2 {
		t.Errorf("expected 2 parse errors, got %d", summary.ByCategory[CategoryParse])
	}
	if !summary.HasCategory(CategoryLookup) {
		t.Error("expected to have lookup category")
	}
	if summary.HasCategory(CategoryDuplicate) {
		t.Error("expected not to have duplicate category")
	}
	if summary.GetExitCode() != 9 {
		t.Errorf("expected exit code 9, got %d", summary.GetExitCode())
	}
}

func TestEmptyErrorSummary(t *testing.T) {
	summary := NewErrorSummary(nil)

	if summary.Total != 0 {
		t.Errorf("expected total 0, got %d", summary.Total)
	}
	if summary.Error() != "no errors" {
		t.Errorf("expected 'no errors', got '%s'", summary.Error())
	}
	if summary.GetExitCode() != 0 {
		t.Errorf("expected exit code 0, got %d", summary.GetExitCode())
	}
}

func TestWrapIfNeeded(t *testing.T) {
	reconcilerErr := New(CategoryLookup, CodeLookupFailed, "test")
	genericErr := errors.New("generic error")

	if result := WrapIfNeeded(reconcilerErr, CategoryPersistence, CodeQueryFailed, "wrapped"); result != reconcilerErr {
		t.Error("expected WrapIfNeeded to return original ReconcilerError")
	}

	result := WrapIfNeeded(genericErr, CategoryPersistence, CodeQueryFailed, "wrapped")
	if result.Cause != genericErr {
		t.Error("expected WrapIfNeeded to wrap generic error")
	}
	if result.Category != CategoryPersistence {
		t.Error("expected wrapped error to have correct category")
	}

	if WrapIfNeeded(nil, CategoryPersistence, CodeQueryFailed, "wrapped") != nil {
		t.Error("expected WrapIfNeeded to return nil for nil input")
	}
}
