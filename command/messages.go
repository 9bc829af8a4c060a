package command

import (
	"strings"

	"github.com/goliatone/go-certidigital/fixtures"
	"github.com/goliatone/go-certidigital/workflow"
)

const (
	TypeCreateCredentials  = "certidigital.command.credentials.create"
	TypeCleanupCredentials = "certidigital.command.credentials.cleanup"
	TypeIssueCredentials   = "certidigital.command.credentials.issue"
	TypePollEmissions      = "certidigital.command.emissions.poll"
)

type CreateCredentialsMessage struct {
	Scope string
	// CleanupFirst deletes whatever the ledger still holds for Scope before
	// creating the new graph.
	CleanupFirst bool
}

func (CreateCredentialsMessage) Type() string { return TypeCreateCredentials }

func (m CreateCredentialsMessage) Validate() error {
	return validateScope(m.Scope)
}

type CleanupCredentialsMessage struct {
	Scope string
}

func (CleanupCredentialsMessage) Type() string { return TypeCleanupCredentials }

func (m CleanupCredentialsMessage) Validate() error {
	return validateScope(m.Scope)
}

type IssueCredentialsMessage struct {
	Request workflow.IssueRequest
}

func (IssueCredentialsMessage) Type() string { return TypeIssueCredentials }

func (m IssueCredentialsMessage) Validate() error {
	if m.Request.CredentialID <= 0 {
		return commandValidationError("credential_id", "credential id is required")
	}
	if scope := strings.TrimSpace(m.Request.Scope); scope != "" {
		return validateScope(scope)
	}
	return nil
}

type PollEmissionsMessage struct {
	BlockID string
}

func (PollEmissionsMessage) Type() string { return TypePollEmissions }

func (m PollEmissionsMessage) Validate() error {
	if strings.TrimSpace(m.BlockID) == "" {
		return commandValidationError("block_id", "emissions block id is required")
	}
	return nil
}

func validateScope(scope string) error {
	switch strings.TrimSpace(scope) {
	case fixtures.ScopeBasic, fixtures.ScopeAdvanced:
		return nil
	case "":
		return commandValidationError("scope", "scope is required")
	default:
		return commandValidationError("scope", "scope must be "+fixtures.ScopeBasic+" or "+fixtures.ScopeAdvanced)
	}
}
