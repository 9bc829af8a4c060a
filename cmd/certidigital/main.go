package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	certidigital "github.com/goliatone/go-certidigital"
	"github.com/goliatone/go-certidigital/command"
	"github.com/goliatone/go-certidigital/core"
	"github.com/goliatone/go-certidigital/emission"
	"github.com/goliatone/go-certidigital/fixtures"
	"github.com/goliatone/go-certidigital/query"
	"github.com/goliatone/go-certidigital/workflow"
)

const usage = `usage: certidigital [-config file] [-debug] <command> [flags]

commands:
  create       [-scope s] [-cleanup]         build the fixture credential graph
  cleanup      [-scope s]                    delete the entities recorded in the ledger
  issue        -credential ID [-scope s] [-recipients file]
  poll         -block ID                     resume sealing of an emissions block
  report       -block ID                     print the status counts of a block
  ledger       [-scope s]                    print the recorded entity ids
  checkpoints  [-stage s1,s2]                list stored emission checkpoints
  directory                                  print user, issuing centers and organizations

scopes: basiccredential, advancedcredential (default)
`

const (
	exitOK = iota
	exitFailure
	exitUsage
)

type action func(ctx context.Context, svc *certidigital.Service) (any, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	global := flag.NewFlagSet("certidigital", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := global.String("config", "", "config file (.json, .yaml or .toml)")
	debug := global.Bool("debug", false, "log debug output")
	if err := global.Parse(args); err != nil {
		return exitUsage
	}
	if global.NArg() == 0 {
		global.Usage()
		return exitUsage
	}

	act, err := parseCommand(global.Arg(0), global.Args()[1:], stderr)
	if err != nil {
		fmt.Fprintf(stderr, "certidigital: %v\n", err)
		return exitUsage
	}

	logger := newLogger(stderr, *debug)
	cfg, err := certidigital.LoadConfig(ctx, *configPath, certidigital.Config{})
	if err != nil {
		logger.Error("load config failed", "path", *configPath, "error", err)
		return exitFailure
	}
	svc, err := certidigital.Setup(ctx, cfg, certidigital.WithLogger(logger))
	if err != nil {
		logger.Error("setup failed", "error", err)
		return exitFailure
	}
	defer func() {
		if err := svc.Close(context.Background()); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	out, err := act(ctx, svc)
	if out != nil {
		if encodeErr := writeJSON(stdout, out); encodeErr != nil {
			logger.Error("encode output failed", "error", encodeErr)
			return exitFailure
		}
	}
	if err != nil {
		mapped := core.MapError(err)
		logger.Error("command failed", "command", global.Arg(0), "text_code", mapped.TextCode, "error", err)
		return exitFailure
	}
	return exitOK
}

func parseCommand(name string, args []string, stderr io.Writer) (action, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	switch name {
	case "create":
		scope := fs.String("scope", fixtures.ScopeAdvanced, "fixture scope")
		cleanup := fs.Bool("cleanup", false, "delete the previous graph first")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		msg := command.CreateCredentialsMessage{Scope: *scope, CleanupFirst: *cleanup}
		return validated(msg, func(ctx context.Context, svc *certidigital.Service) (any, error) {
			return svc.Facade().CreateCredentials(ctx, msg)
		})
	case "cleanup":
		scope := fs.String("scope", fixtures.ScopeAdvanced, "fixture scope")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		msg := command.CleanupCredentialsMessage{Scope: *scope}
		return validated(msg, func(ctx context.Context, svc *certidigital.Service) (any, error) {
			return svc.Facade().CleanupCredentials(ctx, msg)
		})
	case "issue":
		credential := fs.Int64("credential", 0, "credential oid to issue")
		scope := fs.String("scope", fixtures.ScopeAdvanced, "fixture scope holding the recipients files")
		recipients := fs.String("recipients", "", "recipients spreadsheet")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		msg := command.IssueCredentialsMessage{Request: workflow.IssueRequest{
			Scope:          *scope,
			CredentialID:   *credential,
			RecipientsPath: *recipients,
		}}
		return validated(msg, func(ctx context.Context, svc *certidigital.Service) (any, error) {
			return svc.Facade().IssueCredentials(ctx, msg)
		})
	case "poll":
		block := fs.String("block", "", "emissions block id")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		msg := command.PollEmissionsMessage{BlockID: *block}
		return validated(msg, func(ctx context.Context, svc *certidigital.Service) (any, error) {
			result, err := svc.Facade().PollEmissions(ctx, msg)
			if err == nil && result.Outcome == emission.OutcomeCancelled {
				return result, ctx.Err()
			}
			return result, err
		})
	case "report":
		block := fs.String("block", "", "emissions block id")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		msg := query.EmissionsReportMessage{BlockID: *block}
		return validated(msg, func(ctx context.Context, svc *certidigital.Service) (any, error) {
			report, err := svc.Facade().EmissionsReport(ctx, msg)
			if err != nil {
				return nil, err
			}
			return reportOutput{Report: report, Lines: report.Lines()}, nil
		})
	case "ledger":
		scope := fs.String("scope", fixtures.ScopeAdvanced, "fixture scope")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		msg := query.LoadLedgerMessage{Scope: *scope}
		return validated(msg, func(ctx context.Context, svc *certidigital.Service) (any, error) {
			return svc.Facade().LoadLedger(ctx, msg)
		})
	case "checkpoints":
		stages := fs.String("stage", "", "comma separated stage filter")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		msg := query.ListCheckpointsMessage{Stages: splitStages(*stages)}
		return validated(msg, func(ctx context.Context, svc *certidigital.Service) (any, error) {
			return svc.Facade().ListCheckpoints(ctx, msg)
		})
	case "directory":
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return directory, nil
	}
	return nil, fmt.Errorf("unknown command %q", name)
}

type validator interface {
	Validate() error
}

func validated(msg validator, act action) (action, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return act, nil
}

type reportOutput struct {
	Report emission.StatusReport `json:"report"`
	Lines  []string              `json:"lines"`
}

type directoryOutput struct {
	User           json.RawMessage `json:"user"`
	IssuingCenters json.RawMessage `json:"issuing_centers"`
	Organizations  json.RawMessage `json:"organizations"`
}

func directory(ctx context.Context, svc *certidigital.Service) (any, error) {
	dir := svc.Directory()
	var (
		out directoryOutput
		err error
	)
	if out.User, err = dir.UserInfo(ctx); err != nil {
		return nil, err
	}
	if out.IssuingCenters, err = dir.IssuingCenters(ctx); err != nil {
		return nil, err
	}
	if out.Organizations, err = dir.Organizations(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func splitStages(raw string) []workflow.Stage {
	var stages []workflow.Stage
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			stages = append(stages, workflow.Stage(part))
		}
	}
	return stages
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
