package query

import (
	"github.com/goliatone/go-certidigital/emission"
	"github.com/goliatone/go-certidigital/fixtures"
	"github.com/goliatone/go-certidigital/workflow"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[EmissionsReportMessage, emission.StatusReport] = (*EmissionsReportQuery)(nil)
	_ gocmd.Querier[LoadLedgerMessage, fixtures.IDList]            = (*LoadLedgerQuery)(nil)
	_ gocmd.Querier[ListCheckpointsMessage, []workflow.Checkpoint] = (*ListCheckpointsQuery)(nil)

	_ EmissionsReportReader = (*workflow.Issuer)(nil)
	_ LedgerReader          = (fixtures.LedgerStore)(nil)
	_ CheckpointReader      = (*workflow.MemoryCheckpointStore)(nil)
)
