package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-certidigital/emission"
	"github.com/goliatone/go-certidigital/fixtures"
	"github.com/goliatone/go-certidigital/workflow"
)

type EmissionsReportReader interface {
	Report(ctx context.Context, blockID string) (emission.StatusReport, error)
}

type LedgerReader interface {
	Load(ctx context.Context, scope string) (fixtures.IDList, error)
}

type CheckpointReader interface {
	ListCheckpoints(ctx context.Context, stages ...workflow.Stage) ([]workflow.Checkpoint, error)
}

type EmissionsReportQuery struct {
	reader EmissionsReportReader
}

func NewEmissionsReportQuery(reader EmissionsReportReader) *EmissionsReportQuery {
	return &EmissionsReportQuery{reader: reader}
}

func (q *EmissionsReportQuery) Query(ctx context.Context, msg EmissionsReportMessage) (emission.StatusReport, error) {
	if q == nil || q.reader == nil {
		return emission.StatusReport{}, queryDependencyError("query: emissions report reader is required")
	}
	return q.reader.Report(ctx, strings.TrimSpace(msg.BlockID))
}

type LoadLedgerQuery struct {
	reader LedgerReader
}

func NewLoadLedgerQuery(reader LedgerReader) *LoadLedgerQuery {
	return &LoadLedgerQuery{reader: reader}
}

func (q *LoadLedgerQuery) Query(ctx context.Context, msg LoadLedgerMessage) (fixtures.IDList, error) {
	if q == nil || q.reader == nil {
		return fixtures.IDList{}, queryDependencyError("query: ledger reader is required")
	}
	return q.reader.Load(ctx, strings.TrimSpace(msg.Scope))
}

type ListCheckpointsQuery struct {
	reader CheckpointReader
}

func NewListCheckpointsQuery(reader CheckpointReader) *ListCheckpointsQuery {
	return &ListCheckpointsQuery{reader: reader}
}

func (q *ListCheckpointsQuery) Query(ctx context.Context, msg ListCheckpointsMessage) ([]workflow.Checkpoint, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: checkpoint reader is required")
	}
	return q.reader.ListCheckpoints(ctx, msg.Stages...)
}
