package command

import (
	"context"
	"strings"

	"github.com/goliatone/go-certidigital/emission"
	"github.com/goliatone/go-certidigital/fixtures"
	"github.com/goliatone/go-certidigital/workflow"
	gocmd "github.com/goliatone/go-command"
)

type CredentialBuilder interface {
	CreateBasic(ctx context.Context) (workflow.BuildResult, error)
	CreateAdvanced(ctx context.Context) (workflow.BuildResult, error)
	Cleanup(ctx context.Context, scope string) (workflow.CleanupResult, error)
}

type CredentialIssuer interface {
	Issue(ctx context.Context, req workflow.IssueRequest) (workflow.IssueResult, error)
	Resume(ctx context.Context, blockID string) (emission.PollResult, error)
}

type CreateCredentialsCommand struct {
	builder CredentialBuilder
}

func NewCreateCredentialsCommand(builder CredentialBuilder) *CreateCredentialsCommand {
	return &CreateCredentialsCommand{builder: builder}
}

func (c *CreateCredentialsCommand) Execute(ctx context.Context, msg CreateCredentialsMessage) error {
	if c == nil || c.builder == nil {
		return commandDependencyError("command: credential builder is required")
	}
	scope := strings.TrimSpace(msg.Scope)
	if msg.CleanupFirst {
		if _, err := c.builder.Cleanup(ctx, scope); err != nil {
			return err
		}
	}

	var (
		out workflow.BuildResult
		err error
	)
	switch scope {
	case fixtures.ScopeBasic:
		out, err = c.builder.CreateBasic(ctx)
	case fixtures.ScopeAdvanced:
		out, err = c.builder.CreateAdvanced(ctx)
	default:
		return commandInvalidInputError("command: unsupported scope " + scope)
	}
	storeResult(ctx, out)
	return err
}

type CleanupCredentialsCommand struct {
	builder CredentialBuilder
}

func NewCleanupCredentialsCommand(builder CredentialBuilder) *CleanupCredentialsCommand {
	return &CleanupCredentialsCommand{builder: builder}
}

func (c *CleanupCredentialsCommand) Execute(ctx context.Context, msg CleanupCredentialsMessage) error {
	if c == nil || c.builder == nil {
		return commandDependencyError("command: credential builder is required")
	}
	out, err := c.builder.Cleanup(ctx, strings.TrimSpace(msg.Scope))
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type IssueCredentialsCommand struct {
	issuer CredentialIssuer
}

func NewIssueCredentialsCommand(issuer CredentialIssuer) *IssueCredentialsCommand {
	return &IssueCredentialsCommand{issuer: issuer}
}

// Execute stores the result even when issuance fails part way, so callers
// can still read the block id of a timed out run.
func (c *IssueCredentialsCommand) Execute(ctx context.Context, msg IssueCredentialsMessage) error {
	if c == nil || c.issuer == nil {
		return commandDependencyError("command: credential issuer is required")
	}
	out, err := c.issuer.Issue(ctx, msg.Request)
	storeResult(ctx, out)
	return err
}

type PollEmissionsCommand struct {
	issuer CredentialIssuer
}

func NewPollEmissionsCommand(issuer CredentialIssuer) *PollEmissionsCommand {
	return &PollEmissionsCommand{issuer: issuer}
}

func (c *PollEmissionsCommand) Execute(ctx context.Context, msg PollEmissionsMessage) error {
	if c == nil || c.issuer == nil {
		return commandDependencyError("command: credential issuer is required")
	}
	out, err := c.issuer.Resume(ctx, strings.TrimSpace(msg.BlockID))
	storeResult(ctx, out)
	return err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
