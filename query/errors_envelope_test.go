package query

import (
	"context"
	"net/http"
	"testing"

	"github.com/goliatone/go-certidigital/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestEmissionsReportMessage_ValidateReturnsRichError(t *testing.T) {
	err := (EmissionsReportMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.ServiceErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.ServiceErrorBadInput, rich.TextCode)
	}
	if rich.Code != http.StatusBadRequest {
		t.Fatalf("expected %d code, got %d", http.StatusBadRequest, rich.Code)
	}
}

func TestLoadLedgerMessage_RejectsUnknownScope(t *testing.T) {
	if err := (LoadLedgerMessage{Scope: "other"}).Validate(); err == nil {
		t.Fatalf("expected unknown scope to be rejected")
	}
	if err := (LoadLedgerMessage{Scope: "basiccredential"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadLedgerQuery_NilQueryReturnsRichError(t *testing.T) {
	var qry *LoadLedgerQuery
	_, err := qry.Query(context.Background(), LoadLedgerMessage{})

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
