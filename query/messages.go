package query

import (
	"strings"

	"github.com/goliatone/go-certidigital/fixtures"
	"github.com/goliatone/go-certidigital/workflow"
)

const (
	TypeEmissionsReport = "certidigital.query.emissions.report"
	TypeLoadLedger      = "certidigital.query.ledger.load"
	TypeListCheckpoints = "certidigital.query.checkpoints.list"
)

type EmissionsReportMessage struct {
	BlockID string
}

func (EmissionsReportMessage) Type() string { return TypeEmissionsReport }

func (m EmissionsReportMessage) Validate() error {
	if strings.TrimSpace(m.BlockID) == "" {
		return queryValidationError("block_id", "emissions block id is required")
	}
	return nil
}

type LoadLedgerMessage struct {
	Scope string
}

func (LoadLedgerMessage) Type() string { return TypeLoadLedger }

func (m LoadLedgerMessage) Validate() error {
	switch strings.TrimSpace(m.Scope) {
	case fixtures.ScopeBasic, fixtures.ScopeAdvanced:
		return nil
	}
	return queryValidationError("scope", "scope must be "+fixtures.ScopeBasic+" or "+fixtures.ScopeAdvanced)
}

type ListCheckpointsMessage struct {
	// Stages filters the result; empty lists every checkpoint.
	Stages []workflow.Stage
}

func (ListCheckpointsMessage) Type() string { return TypeListCheckpoints }

func (m ListCheckpointsMessage) Validate() error {
	for _, stage := range m.Stages {
		if strings.TrimSpace(string(stage)) == "" {
			return queryValidationError("stages", "stage filter must not contain blank values")
		}
	}
	return nil
}
