package certidigital

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-certidigital/command"
	"github.com/goliatone/go-certidigital/emission"
	"github.com/goliatone/go-certidigital/fixtures"
	"github.com/goliatone/go-certidigital/query"
	"github.com/goliatone/go-certidigital/workflow"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	facade, err := NewFacade(&stubBuilder{}, &stubIssuer{}, fixtures.NewMemoryLedger(), nil)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	commands := facade.Commands()
	if commands.CreateCredentials == nil || commands.CleanupCredentials == nil || commands.IssueCredentials == nil || commands.PollEmissions == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.EmissionsReport == nil || queries.LoadLedger == nil || queries.ListCheckpoints == nil {
		t.Fatalf("expected query handlers to be wired")
	}
	handlers := facade.Handlers()
	if handlers.PollEmissions == nil || handlers.ListCheckpoints == nil {
		t.Fatalf("expected dispatcher handlers to mirror the facade")
	}
}

func TestFacade_CommandResultsAreCollected(t *testing.T) {
	builder := &stubBuilder{}
	issuer := &stubIssuer{}
	facade, err := NewFacade(builder, issuer, fixtures.NewMemoryLedger(), nil)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	ctx := context.Background()

	built, err := facade.CreateCredentials(ctx, command.CreateCredentialsMessage{Scope: fixtures.ScopeBasic})
	if err != nil {
		t.Fatalf("create credentials: %v", err)
	}
	if built.Scope != fixtures.ScopeBasic || built.IDs.Activities[0] != 101 {
		t.Fatalf("unexpected build result %+v", built)
	}

	cleaned, err := facade.CleanupCredentials(ctx, command.CleanupCredentialsMessage{Scope: fixtures.ScopeBasic})
	if err != nil {
		t.Fatalf("cleanup credentials: %v", err)
	}
	if cleaned.Deleted != 1 {
		t.Fatalf("unexpected cleanup result %+v", cleaned)
	}

	polled, err := facade.PollEmissions(ctx, command.PollEmissionsMessage{BlockID: "block-1"})
	if err != nil {
		t.Fatalf("poll emissions: %v", err)
	}
	if polled.BatchID != "block-1" || polled.Outcome != emission.OutcomeResolved {
		t.Fatalf("unexpected poll result %+v", polled)
	}
}

func TestFacade_IssueKeepsPartialResultOnError(t *testing.T) {
	issuer := &stubIssuer{issueErr: errors.New("seal timeout")}
	facade, err := NewFacade(&stubBuilder{}, issuer, fixtures.NewMemoryLedger(), nil)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	result, err := facade.IssueCredentials(context.Background(), command.IssueCredentialsMessage{
		Request: workflow.IssueRequest{CredentialID: 7},
	})
	if err == nil {
		t.Fatalf("expected issue error")
	}
	if result.BlockID != "block-7" {
		t.Fatalf("expected partial result with block id, got %+v", result)
	}
}

func TestFacade_ValidatesBeforeExecuting(t *testing.T) {
	builder := &stubBuilder{}
	facade, err := NewFacade(builder, &stubIssuer{}, fixtures.NewMemoryLedger(), nil)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	if _, err := facade.CreateCredentials(context.Background(), command.CreateCredentialsMessage{Scope: "unknown"}); err == nil {
		t.Fatalf("expected invalid scope to be rejected")
	}
	if builder.calls != 0 {
		t.Fatalf("expected builder not to run for invalid input")
	}
	if _, err := facade.EmissionsReport(context.Background(), query.EmissionsReportMessage{}); err == nil {
		t.Fatalf("expected missing block id to be rejected")
	}
}

func TestFacade_QueriesDelegate(t *testing.T) {
	ctx := context.Background()
	ledger := fixtures.NewMemoryLedger()
	if err := ledger.Save(ctx, fixtures.ScopeAdvanced, fixtures.IDList{Credentials: []int64{3}}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	checkpoints := workflow.NewMemoryCheckpointStore()
	if err := checkpoints.SaveCheckpoint(ctx, workflow.Checkpoint{BlockID: "b1", Stage: workflow.StageTimedOut}); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}
	facade, err := NewFacade(&stubBuilder{}, &stubIssuer{}, ledger, checkpoints)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	ids, err := facade.LoadLedger(ctx, query.LoadLedgerMessage{Scope: fixtures.ScopeAdvanced})
	if err != nil || ids.Total() != 1 {
		t.Fatalf("unexpected ledger %+v err=%v", ids, err)
	}
	listed, err := facade.ListCheckpoints(ctx, query.ListCheckpointsMessage{Stages: []workflow.Stage{workflow.StageTimedOut}})
	if err != nil || len(listed) != 1 {
		t.Fatalf("unexpected checkpoints %+v err=%v", listed, err)
	}
	report, err := facade.EmissionsReport(ctx, query.EmissionsReportMessage{BlockID: "b1"})
	if err != nil || report.BatchID != "b1" {
		t.Fatalf("unexpected report %+v err=%v", report, err)
	}
}

func TestNewFacade_RequiresCollaborators(t *testing.T) {
	if facade, err := NewFacade(nil, &stubIssuer{}, fixtures.NewMemoryLedger(), nil); err == nil || facade != nil {
		t.Fatalf("expected nil builder error")
	}
	if _, err := NewFacade(&stubBuilder{}, nil, fixtures.NewMemoryLedger(), nil); err == nil {
		t.Fatalf("expected nil issuer error")
	}
	if _, err := NewFacade(&stubBuilder{}, &stubIssuer{}, nil, nil); err == nil {
		t.Fatalf("expected nil ledger error")
	}
}

type stubBuilder struct {
	calls int
}

func (s *stubBuilder) CreateBasic(context.Context) (workflow.BuildResult, error) {
	s.calls++
	return workflow.BuildResult{Scope: fixtures.ScopeBasic, IDs: fixtures.IDList{Activities: []int64{101}}}, nil
}

func (s *stubBuilder) CreateAdvanced(context.Context) (workflow.BuildResult, error) {
	s.calls++
	return workflow.BuildResult{Scope: fixtures.ScopeAdvanced}, nil
}

func (s *stubBuilder) Cleanup(_ context.Context, scope string) (workflow.CleanupResult, error) {
	s.calls++
	return workflow.CleanupResult{Scope: scope, Deleted: 1}, nil
}

type stubIssuer struct {
	issueErr error
}

func (s *stubIssuer) Issue(_ context.Context, req workflow.IssueRequest) (workflow.IssueResult, error) {
	return workflow.IssueResult{BlockID: "block-7"}, s.issueErr
}

func (s *stubIssuer) Resume(_ context.Context, blockID string) (emission.PollResult, error) {
	return emission.PollResult{BatchID: blockID, Outcome: emission.OutcomeResolved}, nil
}

func (s *stubIssuer) Report(_ context.Context, blockID string) (emission.StatusReport, error) {
	return emission.StatusReport{BatchID: blockID}, nil
}
