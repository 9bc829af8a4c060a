package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-certidigital/command"
	"github.com/goliatone/go-certidigital/emission"
	"github.com/goliatone/go-certidigital/fixtures"
	"github.com/goliatone/go-certidigital/query"
	"github.com/goliatone/go-certidigital/workflow"
	gocmd "github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := gocmd.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(gocmd.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *gocmd.Registry
}

func NewRegistryAdapter(registry *gocmd.Registry) *RegistryAdapter {
	if registry == nil {
		registry = gocmd.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *gocmd.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) register(handler any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(handler)
}

func (a *RegistryAdapter) AddResolver(key string, resolver gocmd.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors registered commands into a go-job queue registry
// so they can also run from a worker.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd gocmd.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.register(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry gocmd.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.register(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// Handlers is the set of commanders and queriers exposed on the dispatcher.
// Nil members are skipped.
type Handlers struct {
	CreateCredentials  gocmd.Commander[command.CreateCredentialsMessage]
	CleanupCredentials gocmd.Commander[command.CleanupCredentialsMessage]
	IssueCredentials   gocmd.Commander[command.IssueCredentialsMessage]
	PollEmissions      gocmd.Commander[command.PollEmissionsMessage]
	EmissionsReport    gocmd.Querier[query.EmissionsReportMessage, emission.StatusReport]
	LoadLedger         gocmd.Querier[query.LoadLedgerMessage, fixtures.IDList]
	ListCheckpoints    gocmd.Querier[query.ListCheckpointsMessage, []workflow.Checkpoint]
}

// Subscriptions unsubscribes as a group.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterHandlers subscribes every configured handler. On failure the
// subscriptions made so far are released.
func RegisterHandlers(adapter *RegistryAdapter, handlers Handlers, runnerOpts ...runner.Option) (Subscriptions, error) {
	var subs Subscriptions
	add := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			subs.Unsubscribe()
			return err
		}
		subs = append(subs, sub)
		return nil
	}

	if handlers.CreateCredentials != nil {
		if err := add(RegisterAndSubscribe(adapter, handlers.CreateCredentials, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.CleanupCredentials != nil {
		if err := add(RegisterAndSubscribe(adapter, handlers.CleanupCredentials, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.IssueCredentials != nil {
		if err := add(RegisterAndSubscribe(adapter, handlers.IssueCredentials, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.PollEmissions != nil {
		if err := add(RegisterAndSubscribe(adapter, handlers.PollEmissions, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.EmissionsReport != nil {
		if err := add(RegisterAndSubscribeQuery(adapter, handlers.EmissionsReport, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.LoadLedger != nil {
		if err := add(RegisterAndSubscribeQuery(adapter, handlers.LoadLedger, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.ListCheckpoints != nil {
		if err := add(RegisterAndSubscribeQuery(adapter, handlers.ListCheckpoints, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	return subs, nil
}
