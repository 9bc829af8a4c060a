package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goliatone/go-certidigital/client"
	"github.com/goliatone/go-certidigital/core"
	"github.com/goliatone/go-certidigital/emission"
	"github.com/goliatone/go-certidigital/fixtures"
	"github.com/goliatone/go-certidigital/spreadsheet"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// EmissionAPI is the part of the client the issuer drives.
type EmissionAPI interface {
	emission.StatusProvider
	emission.SealSubmitter
	CredentialTemplate(ctx context.Context, centerID int64, credentialID int64, body json.RawMessage) ([]byte, error)
	IssueFromTemplate(ctx context.Context, centerID int64, credentialID int64, fileName string, content io.Reader) ([]client.IssuedEmission, error)
	EmissionsBlock(ctx context.Context, blockID string) (emission.Batch, error)
	Seal(ctx context.Context, centerID int64, uuids []string) (int, error)
	SendEmail(ctx context.Context, uuids []string) error
	SendToEUWallet(ctx context.Context, centerID int64, uuids []string) (int, error)
}

const (
	StepTemplate = "template"
	StepFill     = "fill"
	StepIssue    = "issue"
	StepSeal     = "seal"
	StepPoll     = "poll"
	StepDeliver  = "deliver"
)

type StepTiming struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

type IssueRequest struct {
	Scope        string
	CredentialID int64
	// RecipientsPath defaults to <data>/<scope>/EmissionRecipients.xlsx.
	RecipientsPath string
	// TemplateBody overrides issuance.template_body and the scope fixture.
	TemplateBody json.RawMessage
}

type IssueResult struct {
	BlockID       string                `json:"block_id"`
	Issued        int                   `json:"issued"`
	InitialReport emission.StatusReport `json:"initial_report"`
	SealAccepted  int                   `json:"seal_accepted"`
	Poll          emission.PollResult   `json:"poll"`
	Emailed       int                   `json:"emailed"`
	WalletSent    int                   `json:"wallet_sent"`
	Steps         []StepTiming          `json:"steps"`
}

// Issuer runs the issuance pipeline for one credential: template download,
// recipients fill, bulk issue, seal, poll until resolved and optional
// delivery.
type Issuer struct {
	api         EmissionAPI
	fixtures    fixtures.Dir
	issuance    core.IssuanceConfig
	checkpoints CheckpointStore
	trackerOpts []emission.TrackerOption
	logger      glog.Logger
	now         func() time.Time
}

type IssuerOption func(*Issuer)

func WithCheckpoints(store CheckpointStore) IssuerOption {
	return func(i *Issuer) {
		i.checkpoints = store
	}
}

// WithTrackerOptions appends tracker options after the ones derived from
// the issuance config.
func WithTrackerOptions(opts ...emission.TrackerOption) IssuerOption {
	return func(i *Issuer) {
		i.trackerOpts = append(i.trackerOpts, opts...)
	}
}

func WithIssuerLogger(logger glog.Logger) IssuerOption {
	return func(i *Issuer) {
		i.logger = logger
	}
}

func NewIssuer(api EmissionAPI, dir fixtures.Dir, issuance core.IssuanceConfig, opts ...IssuerOption) *Issuer {
	issuer := &Issuer{
		api:      api,
		fixtures: dir,
		issuance: issuance,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(issuer)
		}
	}
	issuer.logger = glog.Ensure(issuer.logger)
	return issuer
}

// Tracker builds the polling tracker with the configured cadence.
func (i *Issuer) Tracker() *emission.Tracker {
	opts := []emission.TrackerOption{emission.WithLogger(i.logger)}
	if i.issuance.SealPollInterval > 0 {
		opts = append(opts, emission.WithInterval(i.issuance.SealPollInterval))
	}
	if i.issuance.SealPollMaxAttempts > 0 {
		opts = append(opts, emission.WithMaxAttempts(i.issuance.SealPollMaxAttempts))
	}
	opts = append(opts, i.trackerOpts...)
	return emission.NewTracker(i.api, i.api, opts...)
}

type stepClock struct {
	issuer *Issuer
	result *IssueResult
	last   time.Time
}

func (c *stepClock) done(name string) {
	now := c.issuer.now()
	elapsed := now.Sub(c.last)
	c.last = now
	c.result.Steps = append(c.result.Steps, StepTiming{Name: name, Duration: elapsed})
	c.issuer.logger.Info("certidigital issuance step completed", "step", name, "duration_ms", elapsed.Milliseconds(), "block_id", c.result.BlockID)
}

// Issue runs the whole pipeline. A polling timeout returns the partial
// result with the error; the checkpoint keeps the block id for Resume.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (IssueResult, error) {
	if i == nil || i.api == nil {
		return IssueResult{}, fmt.Errorf("workflow: issuer is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	center := i.issuance.IssuingCenterID
	if center == 0 || req.CredentialID == 0 {
		return IssueResult{}, goerrors.New("workflow: issuing center and credential id are required", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ServiceErrorBadInput)
	}
	scope := strings.TrimSpace(req.Scope)
	if scope == "" {
		scope = fixtures.ScopeAdvanced
	}

	result := IssueResult{}
	clock := &stepClock{issuer: i, result: &result, last: i.now()}

	templatePath := i.fixtures.Path(scope, fixtures.RecipientsTemplateFile)
	if err := i.downloadTemplate(ctx, scope, req, templatePath); err != nil {
		return result, err
	}
	clock.done(StepTemplate)

	recipientsPath := strings.TrimSpace(req.RecipientsPath)
	if recipientsPath == "" {
		recipientsPath = i.fixtures.Path(scope, fixtures.RecipientsFile)
	}
	outputPath := i.fixtures.Path(scope, fixtures.RecipientsOutputFile)
	if _, err := spreadsheet.FillRecipientsFile(templatePath, recipientsPath, outputPath, spreadsheet.OptionsFromConfig(i.issuance)); err != nil {
		return result, err
	}
	clock.done(StepFill)

	issued, err := i.upload(ctx, req.CredentialID, outputPath)
	if err != nil {
		return result, err
	}
	result.Issued = len(issued)
	result.BlockID, err = client.BlockIDFromIssued(issued)
	if err != nil {
		return result, err
	}
	checkpoint := Checkpoint{BlockID: result.BlockID, CredentialID: req.CredentialID, IssuingCenterID: center, Stage: StageIssued}
	i.saveCheckpoint(ctx, checkpoint)
	clock.done(StepIssue)

	batch, err := i.api.EmissionsBlock(ctx, result.BlockID)
	if err != nil {
		return result, err
	}
	result.InitialReport, err = emission.SummarizeBatch(batch)
	if err != nil {
		return result, err
	}
	result.SealAccepted, err = i.api.Seal(ctx, center, client.UUIDs(batch))
	if err != nil {
		return result, err
	}
	checkpoint.Stage = StageSealing
	checkpoint.Report = result.InitialReport
	i.saveCheckpoint(ctx, checkpoint)
	clock.done(StepSeal)

	result.Poll, err = i.poll(ctx, checkpoint)
	clock.done(StepPoll)
	if err != nil || result.Poll.Outcome != emission.OutcomeResolved {
		return result, err
	}

	if i.issuance.SendEmail || i.issuance.SendEUWallet {
		if err := i.deliver(ctx, &result, checkpoint); err != nil {
			return result, err
		}
		clock.done(StepDeliver)
	}
	return result, nil
}

func (i *Issuer) downloadTemplate(ctx context.Context, scope string, req IssueRequest, path string) error {
	body := req.TemplateBody
	if len(body) == 0 {
		var err error
		if configured := strings.TrimSpace(i.issuance.TemplateBody); configured != "" {
			body, err = fixtures.LoadObject(configured)
		} else {
			body, err = i.fixtures.TemplateBody(scope)
		}
		if err != nil {
			return err
		}
	}
	content, err := i.api.CredentialTemplate(ctx, i.issuance.IssuingCenterID, req.CredentialID, body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "workflow: create template directory").
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.ServiceErrorInternal)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "workflow: write template").
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.ServiceErrorInternal)
	}
	return nil
}

func (i *Issuer) upload(ctx context.Context, credentialID int64, path string) ([]client.IssuedEmission, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "workflow: open filled recipients").
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.ServiceErrorInternal)
	}
	defer file.Close()
	return i.api.IssueFromTemplate(ctx, i.issuance.IssuingCenterID, credentialID, filepath.Base(path), file)
}

// Resume polls a block issued earlier, possibly by another process, and
// records the outcome in its checkpoint.
func (i *Issuer) Resume(ctx context.Context, blockID string) (emission.PollResult, error) {
	if i == nil || i.api == nil {
		return emission.PollResult{}, fmt.Errorf("workflow: issuer is not configured")
	}
	checkpoint := Checkpoint{BlockID: strings.TrimSpace(blockID), IssuingCenterID: i.issuance.IssuingCenterID}
	if i.checkpoints != nil {
		stored, err := i.checkpoints.GetCheckpoint(ctx, checkpoint.BlockID)
		switch {
		case err == nil:
			checkpoint = stored
		case !errors.Is(err, ErrCheckpointNotFound):
			return emission.PollResult{}, err
		}
	}
	return i.poll(ctx, checkpoint)
}

// Report fetches the block once and summarizes it without submitting.
func (i *Issuer) Report(ctx context.Context, blockID string) (emission.StatusReport, error) {
	if i == nil || i.api == nil {
		return emission.StatusReport{}, fmt.Errorf("workflow: issuer is not configured")
	}
	batch, err := i.api.EmissionsBlock(ctx, blockID)
	if err != nil {
		return emission.StatusReport{}, err
	}
	return emission.SummarizeBatch(batch)
}

func (i *Issuer) poll(ctx context.Context, checkpoint Checkpoint) (emission.PollResult, error) {
	result, err := i.Tracker().Poll(ctx, checkpoint.BlockID)

	checkpoint.Attempts += result.Attempts
	if result.Observed {
		checkpoint.Report = result.Report
	}
	checkpoint.LastError = ""
	switch {
	case result.Outcome == emission.OutcomeResolved:
		checkpoint.Stage = StageResolved
	case result.Outcome == emission.OutcomeCancelled:
		checkpoint.Stage = StageCancelled
	case emission.IsPollingTimeout(err):
		checkpoint.Stage = StageTimedOut
	default:
		checkpoint.Stage = StageSealing
	}
	if err != nil {
		checkpoint.LastError = err.Error()
	}
	i.saveCheckpoint(context.WithoutCancel(ctx), checkpoint)
	return result, err
}

func (i *Issuer) deliver(ctx context.Context, result *IssueResult, checkpoint Checkpoint) error {
	batch, err := i.api.EmissionsBlock(ctx, result.BlockID)
	if err != nil {
		return err
	}
	sealed := client.SealedUUIDs(batch)
	if i.issuance.SendEmail && len(sealed) > 0 {
		if err := i.api.SendEmail(ctx, sealed); err != nil {
			return err
		}
		result.Emailed = len(sealed)
	}
	if i.issuance.SendEUWallet && len(sealed) > 0 {
		sent, err := i.api.SendToEUWallet(ctx, i.issuance.IssuingCenterID, sealed)
		result.WalletSent = sent
		if err != nil {
			return err
		}
	}
	checkpoint.Stage = StageDelivered
	checkpoint.Report = result.Poll.Report
	checkpoint.Attempts = result.Poll.Attempts
	i.saveCheckpoint(ctx, checkpoint)
	return nil
}

func (i *Issuer) saveCheckpoint(ctx context.Context, checkpoint Checkpoint) {
	if i.checkpoints == nil || checkpoint.BlockID == "" {
		return
	}
	checkpoint.UpdatedAt = i.now()
	if err := i.checkpoints.SaveCheckpoint(ctx, checkpoint); err != nil {
		i.logger.Warn("certidigital checkpoint save failed", "block_id", checkpoint.BlockID, "stage", string(checkpoint.Stage), "error", err)
	}
}
