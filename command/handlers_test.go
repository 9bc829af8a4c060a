package command

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-certidigital/emission"
	"github.com/goliatone/go-certidigital/fixtures"
	"github.com/goliatone/go-certidigital/workflow"
	gocmd "github.com/goliatone/go-command"
)

func TestCreateCredentialsCommand_CleansUpThenCreates(t *testing.T) {
	var calls []string
	builder := stubBuilder{
		cleanupFn: func(_ context.Context, scope string) (workflow.CleanupResult, error) {
			calls = append(calls, "cleanup:"+scope)
			return workflow.CleanupResult{Scope: scope}, nil
		},
		createAdvancedFn: func(context.Context) (workflow.BuildResult, error) {
			calls = append(calls, "advanced")
			return workflow.BuildResult{Scope: fixtures.ScopeAdvanced, IDs: fixtures.IDList{Credentials: []int64{9}}}, nil
		},
	}

	collector := gocmd.NewResult[workflow.BuildResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewCreateCredentialsCommand(builder).Execute(ctx, CreateCredentialsMessage{
		Scope:        fixtures.ScopeAdvanced,
		CleanupFirst: true,
	})
	if err != nil {
		t.Fatalf("execute create: %v", err)
	}
	if len(calls) != 2 || calls[0] != "cleanup:"+fixtures.ScopeAdvanced || calls[1] != "advanced" {
		t.Fatalf("unexpected call order %v", calls)
	}
	result, ok := collector.Load()
	if !ok || result.IDs.Credentials[0] != 9 {
		t.Fatalf("expected build result to be stored, got %#v", result)
	}
}

func TestCreateCredentialsCommand_BasicWithoutCleanup(t *testing.T) {
	called := false
	builder := stubBuilder{
		createBasicFn: func(context.Context) (workflow.BuildResult, error) {
			called = true
			return workflow.BuildResult{Scope: fixtures.ScopeBasic}, nil
		},
	}
	if err := NewCreateCredentialsCommand(builder).Execute(context.Background(), CreateCredentialsMessage{Scope: fixtures.ScopeBasic}); err != nil {
		t.Fatalf("execute create: %v", err)
	}
	if !called {
		t.Fatalf("expected basic graph creation")
	}
}

func TestCleanupCredentialsCommand_StoresResult(t *testing.T) {
	builder := stubBuilder{
		cleanupFn: func(_ context.Context, scope string) (workflow.CleanupResult, error) {
			return workflow.CleanupResult{Scope: scope, Deleted: 4, Failed: 1}, nil
		},
	}
	collector := gocmd.NewResult[workflow.CleanupResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewCleanupCredentialsCommand(builder).Execute(ctx, CleanupCredentialsMessage{Scope: fixtures.ScopeBasic}); err != nil {
		t.Fatalf("execute cleanup: %v", err)
	}
	result, ok := collector.Load()
	if !ok || result.Deleted != 4 || result.Failed != 1 {
		t.Fatalf("unexpected cleanup result %#v", result)
	}
}

func TestIssueCredentialsCommand_StoresPartialResultOnError(t *testing.T) {
	timeout := errors.New("polling timed out")
	issuer := stubIssuer{
		issueFn: func(_ context.Context, req workflow.IssueRequest) (workflow.IssueResult, error) {
			if req.CredentialID != 55 {
				t.Fatalf("unexpected credential %d", req.CredentialID)
			}
			return workflow.IssueResult{BlockID: "812"}, timeout
		},
	}
	collector := gocmd.NewResult[workflow.IssueResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewIssueCredentialsCommand(issuer).Execute(ctx, IssueCredentialsMessage{Request: workflow.IssueRequest{CredentialID: 55}})
	if !errors.Is(err, timeout) {
		t.Fatalf("expected issuer error, got %v", err)
	}
	result, ok := collector.Load()
	if !ok || result.BlockID != "812" {
		t.Fatalf("expected partial result with block id, got %#v", result)
	}
}

func TestPollEmissionsCommand_ResumesBlock(t *testing.T) {
	issuer := stubIssuer{
		resumeFn: func(_ context.Context, blockID string) (emission.PollResult, error) {
			if blockID != "812" {
				t.Fatalf("expected trimmed block id, got %q", blockID)
			}
			return emission.PollResult{BatchID: blockID, Outcome: emission.OutcomeResolved, Attempts: 3}, nil
		},
	}
	collector := gocmd.NewResult[emission.PollResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewPollEmissionsCommand(issuer).Execute(ctx, PollEmissionsMessage{BlockID: " 812 "}); err != nil {
		t.Fatalf("execute poll: %v", err)
	}
	result, ok := collector.Load()
	if !ok || result.Outcome != emission.OutcomeResolved || result.Attempts != 3 {
		t.Fatalf("unexpected poll result %#v", result)
	}
}

func TestMessages_Validate(t *testing.T) {
	cases := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{name: "create basic", msg: CreateCredentialsMessage{Scope: fixtures.ScopeBasic}},
		{name: "create unknown scope", msg: CreateCredentialsMessage{Scope: "other"}, wantErr: true},
		{name: "cleanup blank scope", msg: CleanupCredentialsMessage{}, wantErr: true},
		{name: "issue without credential", msg: IssueCredentialsMessage{}, wantErr: true},
		{name: "issue default scope", msg: IssueCredentialsMessage{Request: workflow.IssueRequest{CredentialID: 1}}},
		{name: "issue bad scope", msg: IssueCredentialsMessage{Request: workflow.IssueRequest{CredentialID: 1, Scope: "x"}}, wantErr: true},
		{name: "poll blank block", msg: PollEmissionsMessage{BlockID: "  "}, wantErr: true},
		{name: "poll block", msg: PollEmissionsMessage{BlockID: "812"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

type stubBuilder struct {
	createBasicFn    func(ctx context.Context) (workflow.BuildResult, error)
	createAdvancedFn func(ctx context.Context) (workflow.BuildResult, error)
	cleanupFn        func(ctx context.Context, scope string) (workflow.CleanupResult, error)
}

func (s stubBuilder) CreateBasic(ctx context.Context) (workflow.BuildResult, error) {
	if s.createBasicFn == nil {
		return workflow.BuildResult{}, nil
	}
	return s.createBasicFn(ctx)
}

func (s stubBuilder) CreateAdvanced(ctx context.Context) (workflow.BuildResult, error) {
	if s.createAdvancedFn == nil {
		return workflow.BuildResult{}, nil
	}
	return s.createAdvancedFn(ctx)
}

func (s stubBuilder) Cleanup(ctx context.Context, scope string) (workflow.CleanupResult, error) {
	if s.cleanupFn == nil {
		return workflow.CleanupResult{}, nil
	}
	return s.cleanupFn(ctx, scope)
}

type stubIssuer struct {
	issueFn  func(ctx context.Context, req workflow.IssueRequest) (workflow.IssueResult, error)
	resumeFn func(ctx context.Context, blockID string) (emission.PollResult, error)
}

func (s stubIssuer) Issue(ctx context.Context, req workflow.IssueRequest) (workflow.IssueResult, error) {
	if s.issueFn == nil {
		return workflow.IssueResult{}, nil
	}
	return s.issueFn(ctx, req)
}

func (s stubIssuer) Resume(ctx context.Context, blockID string) (emission.PollResult, error) {
	if s.resumeFn == nil {
		return emission.PollResult{}, nil
	}
	return s.resumeFn(ctx, blockID)
}
