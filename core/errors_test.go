package core

import (
	stderrors "errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestMapError_AssignsStableCodes(t *testing.T) {
	mapped := MapError(stderrors.New("core: endpoint \"sealEmissions\" is not configured"))
	if mapped.TextCode != ServiceErrorNotFound {
		t.Fatalf("expected not found text code, got %q", mapped.TextCode)
	}
	if mapped.Code != http.StatusNotFound {
		t.Fatalf("expected 404 code, got %d", mapped.Code)
	}

	mapped = MapError(stderrors.New("core: fixtures.ledger_driver \"mongo\" is invalid"))
	if mapped.TextCode != ServiceErrorBadInput || mapped.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad input envelope, got %q/%q", mapped.Category, mapped.TextCode)
	}

	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestMapError_KeepsRichCategory(t *testing.T) {
	source := goerrors.New("seal endpoint returned 502", goerrors.CategoryExternal)
	mapped := MapError(source)
	if mapped.Category != goerrors.CategoryExternal {
		t.Fatalf("expected external category, got %q", mapped.Category)
	}
	if mapped.TextCode != ServiceErrorExternalFailure {
		t.Fatalf("expected remote unavailable code, got %q", mapped.TextCode)
	}
	if mapped.Code == 0 {
		t.Fatalf("expected http status on mapped error")
	}

	custom := goerrors.New("custom", goerrors.CategoryConflict).WithTextCode("CUSTOM")
	if MapError(custom).TextCode != "CUSTOM" {
		t.Fatalf("expected existing text code to be preserved")
	}
}

func TestCategoryForHTTPStatus(t *testing.T) {
	cases := map[int]goerrors.Category{
		http.StatusBadRequest:          goerrors.CategoryBadInput,
		http.StatusUnauthorized:        goerrors.CategoryAuth,
		http.StatusForbidden:           goerrors.CategoryAuthz,
		http.StatusNotFound:            goerrors.CategoryNotFound,
		http.StatusConflict:            goerrors.CategoryConflict,
		http.StatusTooManyRequests:     goerrors.CategoryRateLimit,
		http.StatusBadGateway:          goerrors.CategoryExternal,
		http.StatusServiceUnavailable:  goerrors.CategoryExternal,
		http.StatusMethodNotAllowed:    goerrors.CategoryOperation,
		http.StatusInternalServerError: goerrors.CategoryExternal,
	}
	for status, expected := range cases {
		if got := CategoryForHTTPStatus(status); got != expected {
			t.Fatalf("status %d: expected %q, got %q", status, expected, got)
		}
	}
}

func TestIsCategory(t *testing.T) {
	err := NewServiceError("missing", goerrors.CategoryNotFound, ServiceErrorNotFound)
	if !IsCategory(err, goerrors.CategoryNotFound) {
		t.Fatalf("expected not found category")
	}
	if IsCategory(stderrors.New("plain"), goerrors.CategoryNotFound) {
		t.Fatalf("expected plain errors to carry no category")
	}
}
