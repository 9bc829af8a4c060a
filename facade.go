package certidigital

import (
	"context"
	"fmt"

	"github.com/goliatone/go-certidigital/adapters/gocommand"
	"github.com/goliatone/go-certidigital/command"
	"github.com/goliatone/go-certidigital/emission"
	"github.com/goliatone/go-certidigital/fixtures"
	"github.com/goliatone/go-certidigital/query"
	"github.com/goliatone/go-certidigital/workflow"
	gocmd "github.com/goliatone/go-command"
)

type Commands struct {
	CreateCredentials  *command.CreateCredentialsCommand
	CleanupCredentials *command.CleanupCredentialsCommand
	IssueCredentials   *command.IssueCredentialsCommand
	PollEmissions      *command.PollEmissionsCommand
}

type Queries struct {
	EmissionsReport *query.EmissionsReportQuery
	LoadLedger      *query.LoadLedgerQuery
	ListCheckpoints *query.ListCheckpointsQuery
}

// IssuerService is what the facade needs from the issuance workflow.
type IssuerService interface {
	command.CredentialIssuer
	query.EmissionsReportReader
}

type Facade struct {
	commands Commands
	queries  Queries
}

func NewFacade(
	builder command.CredentialBuilder,
	issuer IssuerService,
	ledger query.LedgerReader,
	checkpoints query.CheckpointReader,
) (*Facade, error) {
	if builder == nil {
		return nil, fmt.Errorf("certidigital: credential builder is required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("certidigital: credential issuer is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("certidigital: ledger reader is required")
	}
	if checkpoints == nil {
		checkpoints = workflow.NewMemoryCheckpointStore()
	}
	return &Facade{
		commands: Commands{
			CreateCredentials:  command.NewCreateCredentialsCommand(builder),
			CleanupCredentials: command.NewCleanupCredentialsCommand(builder),
			IssueCredentials:   command.NewIssueCredentialsCommand(issuer),
			PollEmissions:      command.NewPollEmissionsCommand(issuer),
		},
		queries: Queries{
			EmissionsReport: query.NewEmissionsReportQuery(issuer),
			LoadLedger:      query.NewLoadLedgerQuery(ledger),
			ListCheckpoints: query.NewListCheckpointsQuery(checkpoints),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

// Handlers lists the facade commanders and queriers for the dispatcher.
func (f *Facade) Handlers() gocommand.Handlers {
	if f == nil {
		return gocommand.Handlers{}
	}
	return gocommand.Handlers{
		CreateCredentials:  f.commands.CreateCredentials,
		CleanupCredentials: f.commands.CleanupCredentials,
		IssueCredentials:   f.commands.IssueCredentials,
		PollEmissions:      f.commands.PollEmissions,
		EmissionsReport:    f.queries.EmissionsReport,
		LoadLedger:         f.queries.LoadLedger,
		ListCheckpoints:    f.queries.ListCheckpoints,
	}
}

// Register subscribes every facade handler on the go-command dispatcher.
func (f *Facade) Register(adapter *gocommand.RegistryAdapter) (gocommand.Subscriptions, error) {
	if f == nil {
		return nil, fmt.Errorf("certidigital: facade is not configured")
	}
	return gocommand.RegisterHandlers(adapter, f.Handlers())
}

func (f *Facade) CreateCredentials(ctx context.Context, msg command.CreateCredentialsMessage) (workflow.BuildResult, error) {
	return execute[command.CreateCredentialsMessage, workflow.BuildResult](ctx, f.Commands().CreateCredentials, msg)
}

func (f *Facade) CleanupCredentials(ctx context.Context, msg command.CleanupCredentialsMessage) (workflow.CleanupResult, error) {
	return execute[command.CleanupCredentialsMessage, workflow.CleanupResult](ctx, f.Commands().CleanupCredentials, msg)
}

func (f *Facade) IssueCredentials(ctx context.Context, msg command.IssueCredentialsMessage) (workflow.IssueResult, error) {
	return execute[command.IssueCredentialsMessage, workflow.IssueResult](ctx, f.Commands().IssueCredentials, msg)
}

func (f *Facade) PollEmissions(ctx context.Context, msg command.PollEmissionsMessage) (emission.PollResult, error) {
	return execute[command.PollEmissionsMessage, emission.PollResult](ctx, f.Commands().PollEmissions, msg)
}

func (f *Facade) EmissionsReport(ctx context.Context, msg query.EmissionsReportMessage) (emission.StatusReport, error) {
	if err := msg.Validate(); err != nil {
		return emission.StatusReport{}, err
	}
	return f.Queries().EmissionsReport.Query(ctx, msg)
}

func (f *Facade) LoadLedger(ctx context.Context, msg query.LoadLedgerMessage) (fixtures.IDList, error) {
	if err := msg.Validate(); err != nil {
		return fixtures.IDList{}, err
	}
	return f.Queries().LoadLedger.Query(ctx, msg)
}

func (f *Facade) ListCheckpoints(ctx context.Context, msg query.ListCheckpointsMessage) ([]workflow.Checkpoint, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return f.Queries().ListCheckpoints.Query(ctx, msg)
}

type validatable interface {
	Validate() error
}

// execute runs a commander directly, collecting the value it stores in the
// context result.
func execute[T validatable, R any](ctx context.Context, cmd gocmd.Commander[T], msg T) (R, error) {
	var zero R
	if cmd == nil {
		return zero, fmt.Errorf("certidigital: command is not configured")
	}
	if err := msg.Validate(); err != nil {
		return zero, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	collector := gocmd.NewResult[R]()
	err := cmd.Execute(gocmd.ContextWithResult(ctx, collector), msg)
	value, _ := collector.Load()
	return value, err
}
