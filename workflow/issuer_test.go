package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-certidigital/client"
	"github.com/goliatone/go-certidigital/core"
	"github.com/goliatone/go-certidigital/emission"
	"github.com/goliatone/go-certidigital/fixtures"
	goerrors "github.com/goliatone/go-errors"
	"github.com/xuri/excelize/v2"
)

func workbookBytes(t *testing.T, rows [][]string) []byte {
	t.Helper()
	book := excelize.NewFile()
	defer book.Close()
	sheet := book.GetSheetName(0)
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := book.SetCellValue(sheet, cell, value); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	buf := &bytes.Buffer{}
	if err := book.Write(buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func writeWorkbook(t *testing.T, path string, rows [][]string) {
	t.Helper()
	writeScope(t, filepath.Dir(filepath.Dir(path)), filepath.Base(filepath.Dir(path)), map[string]string{
		filepath.Base(path): string(workbookBytes(t, rows)),
	})
}

// fakeEmissionAPI serves one snapshot per fetch; the last one repeats.
type fakeEmissionAPI struct {
	mu            sync.Mutex
	template      []byte
	templateBody  json.RawMessage
	uploadedName  string
	uploadedBytes int
	snapshots     [][]emission.Job
	fetches       int
	sealed        [][]string
	emailed       []string
	wallet        []string
	fetchErr      error
}

func (f *fakeEmissionAPI) CredentialTemplate(_ context.Context, _ int64, _ int64, body json.RawMessage) ([]byte, error) {
	f.templateBody = append(json.RawMessage(nil), body...)
	return f.template, nil
}

func (f *fakeEmissionAPI) IssueFromTemplate(_ context.Context, _ int64, _ int64, fileName string, content io.Reader) ([]client.IssuedEmission, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	f.uploadedName = fileName
	f.uploadedBytes = len(data)
	return []client.IssuedEmission{
		{UUID: "u1", EmissionsBlockID: "812"},
		{UUID: "u2", EmissionsBlockID: "812"},
	}, nil
}

func (f *fakeEmissionAPI) EmissionsBlock(_ context.Context, blockID string) (emission.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return emission.Batch{}, f.fetchErr
	}
	index := f.fetches
	if index >= len(f.snapshots) {
		index = len(f.snapshots) - 1
	}
	f.fetches++
	return emission.Batch{ID: blockID, Jobs: append([]emission.Job(nil), f.snapshots[index]...)}, nil
}

func (f *fakeEmissionAPI) FetchBatch(ctx context.Context, blockID string) ([]emission.Job, error) {
	batch, err := f.EmissionsBlock(ctx, blockID)
	return batch.Jobs, err
}

func (f *fakeEmissionAPI) Seal(_ context.Context, _ int64, uuids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sealed = append(f.sealed, append([]string(nil), uuids...))
	return len(uuids), nil
}

func (f *fakeEmissionAPI) SubmitSeal(ctx context.Context, _ string, ids []string) (emission.SealAck, error) {
	accepted, err := f.Seal(ctx, 4, ids)
	return emission.SealAck{AcceptedCount: accepted}, err
}

func (f *fakeEmissionAPI) SendEmail(_ context.Context, uuids []string) error {
	f.emailed = append(f.emailed, uuids...)
	return nil
}

func (f *fakeEmissionAPI) SendToEUWallet(_ context.Context, _ int64, uuids []string) (int, error) {
	f.wallet = append(f.wallet, uuids...)
	return len(uuids), nil
}

func jobs(statuses ...emission.Status) []emission.Job {
	out := make([]emission.Job, 0, len(statuses))
	for index, status := range statuses {
		out = append(out, emission.Job{ID: []string{"u1", "u2", "u3"}[index], Status: status})
	}
	return out
}

func issuerFixture(t *testing.T) (string, *fakeEmissionAPI) {
	t.Helper()
	root := t.TempDir()
	writeScope(t, root, fixtures.ScopeAdvanced, map[string]string{
		fixtures.TemplateBodyFile: `{"columns":["name","email"]}`,
	})
	writeWorkbook(t, filepath.Join(root, fixtures.ScopeAdvanced, fixtures.RecipientsFile), [][]string{
		{"Recipients"}, {""}, {""}, {"name", "email"},
		{"Ada", "ada@example.com"},
		{"Grace", "grace@example.com"},
	})
	api := &fakeEmissionAPI{
		template: workbookBytes(t, [][]string{
			{"template"}, {"locale", "es"}, {""}, {"name", "email"},
		}),
	}
	return root, api
}

func issuanceFor(t *testing.T) core.IssuanceConfig {
	t.Helper()
	issuance := testIssuance()
	issuance.RecipientsSkipRows = core.DefaultRecipientsSkipRows
	issuance.RecipientsStartRow = core.DefaultRecipientsStartRow
	issuance.SealPollInterval = time.Millisecond
	issuance.SealPollMaxAttempts = 5
	return issuance
}

func TestIssuer_IssueRunsPipelineAndDelivers(t *testing.T) {
	root, api := issuerFixture(t)
	api.snapshots = [][]emission.Job{
		jobs(emission.StatusIssuedUnsealed, emission.StatusIssuedUnsealed),
		jobs(emission.StatusQueuedForSealing, emission.StatusIssuedUnsealed),
		jobs(emission.StatusSealed, emission.StatusSealed),
	}
	issuance := issuanceFor(t)
	issuance.SendEmail = true
	issuance.SendEUWallet = true
	checkpoints := NewMemoryCheckpointStore()

	issuer := NewIssuer(api, fixtures.NewDir(root), issuance, WithCheckpoints(checkpoints))
	result, err := issuer.Issue(context.Background(), IssueRequest{Scope: fixtures.ScopeAdvanced, CredentialID: 55})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if string(api.templateBody) != `{"columns":["name","email"]}` {
		t.Fatalf("expected scope template body, got %s", api.templateBody)
	}
	if api.uploadedName != fixtures.RecipientsOutputFile || api.uploadedBytes == 0 {
		t.Fatalf("expected filled workbook upload, got %q (%d bytes)", api.uploadedName, api.uploadedBytes)
	}
	if result.BlockID != "812" || result.Issued != 2 {
		t.Fatalf("unexpected issue result %+v", result)
	}
	if result.InitialReport.Count(emission.StatusIssuedUnsealed) != 2 || result.SealAccepted != 2 {
		t.Fatalf("expected every uuid sealed up front, got %+v", result)
	}
	if result.Poll.Outcome != emission.OutcomeResolved || result.Poll.Attempts != 2 {
		t.Fatalf("unexpected poll result %+v", result.Poll)
	}
	if result.Emailed != 2 || result.WalletSent != 2 || len(api.wallet) != 2 {
		t.Fatalf("expected sealed uuids to be delivered, got %+v", result)
	}

	names := make([]string, 0, len(result.Steps))
	for _, step := range result.Steps {
		names = append(names, step.Name)
	}
	expected := []string{StepTemplate, StepFill, StepIssue, StepSeal, StepPoll, StepDeliver}
	if len(names) != len(expected) {
		t.Fatalf("unexpected steps %v", names)
	}
	for index := range expected {
		if names[index] != expected[index] {
			t.Fatalf("unexpected steps %v", names)
		}
	}

	checkpoint, err := checkpoints.GetCheckpoint(context.Background(), "812")
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	if checkpoint.Stage != StageDelivered || checkpoint.CredentialID != 55 {
		t.Fatalf("unexpected checkpoint %+v", checkpoint)
	}

	rows := readOutput(t, filepath.Join(root, fixtures.ScopeAdvanced, fixtures.RecipientsOutputFile))
	if len(rows) != 6 || rows[4][0] != "Ada" || rows[5][1] != "grace@example.com" {
		t.Fatalf("unexpected filled rows %v", rows)
	}
}

func readOutput(t *testing.T, path string) [][]string {
	t.Helper()
	book, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer book.Close()
	rows, err := book.GetRows(book.GetSheetName(0))
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	return rows
}

func TestIssuer_TimeoutKeepsCheckpointForResume(t *testing.T) {
	root, api := issuerFixture(t)
	api.snapshots = [][]emission.Job{
		jobs(emission.StatusQueuedForSealing, emission.StatusSealed),
	}
	issuance := issuanceFor(t)
	issuance.SealPollMaxAttempts = 2
	issuance.SendEmail = true
	checkpoints := NewMemoryCheckpointStore()

	issuer := NewIssuer(api, fixtures.NewDir(root), issuance, WithCheckpoints(checkpoints))
	result, err := issuer.Issue(context.Background(), IssueRequest{Scope: fixtures.ScopeAdvanced, CredentialID: 55})
	if !emission.IsPollingTimeout(err) {
		t.Fatalf("expected polling timeout, got %v", err)
	}
	if result.BlockID != "812" || len(api.emailed) != 0 {
		t.Fatalf("expected no delivery after timeout, got %+v", result)
	}
	checkpoint, _ := checkpoints.GetCheckpoint(context.Background(), "812")
	if checkpoint.Stage != StageTimedOut || checkpoint.Attempts != 2 || checkpoint.LastError == "" {
		t.Fatalf("unexpected timed out checkpoint %+v", checkpoint)
	}

	api.mu.Lock()
	api.snapshots = append(api.snapshots, jobs(emission.StatusSealed, emission.StatusSealed))
	api.mu.Unlock()

	poll, err := issuer.Resume(context.Background(), "812")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if poll.Outcome != emission.OutcomeResolved {
		t.Fatalf("expected resumed poll to resolve, got %+v", poll)
	}
	checkpoint, _ = checkpoints.GetCheckpoint(context.Background(), "812")
	if checkpoint.Stage != StageResolved || checkpoint.Attempts != 3 || checkpoint.CredentialID != 55 {
		t.Fatalf("unexpected resumed checkpoint %+v", checkpoint)
	}
}

func TestIssuer_ResumeCancelledContext(t *testing.T) {
	api := &fakeEmissionAPI{snapshots: [][]emission.Job{jobs(emission.StatusIssuedUnsealed)}}
	checkpoints := NewMemoryCheckpointStore()
	issuer := NewIssuer(api, fixtures.NewDir(t.TempDir()), issuanceFor(t), WithCheckpoints(checkpoints))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	poll, err := issuer.Resume(ctx, "900")
	if err != nil {
		t.Fatalf("expected cancellation without error, got %v", err)
	}
	if poll.Outcome != emission.OutcomeCancelled {
		t.Fatalf("expected cancelled outcome, got %+v", poll)
	}
	checkpoint, err := checkpoints.GetCheckpoint(context.Background(), "900")
	if err != nil {
		t.Fatalf("expected checkpoint saved after cancellation: %v", err)
	}
	if checkpoint.Stage != StageCancelled {
		t.Fatalf("unexpected stage %q", checkpoint.Stage)
	}
}

func TestIssuer_ReportSummarizesWithoutSealing(t *testing.T) {
	api := &fakeEmissionAPI{snapshots: [][]emission.Job{
		jobs(emission.StatusSealed, emission.StatusQueuedForSealing, emission.StatusRejected),
	}}
	report, err := NewIssuer(api, fixtures.NewDir(""), issuanceFor(t)).Report(context.Background(), "812")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Count(emission.StatusSealed) != 1 || report.PendingCount != 1 || report.BatchID != "812" {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(api.sealed) != 0 {
		t.Fatalf("expected report to be read only")
	}

	api.fetchErr = emission.NotFound("812")
	if _, err := NewIssuer(api, fixtures.NewDir(""), issuanceFor(t)).Report(context.Background(), "812"); !emission.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestIssuer_RequiresCredential(t *testing.T) {
	_, err := NewIssuer(&fakeEmissionAPI{}, fixtures.NewDir(""), issuanceFor(t)).Issue(context.Background(), IssueRequest{})
	if !core.IsCategory(err, goerrors.CategoryBadInput) {
		t.Fatalf("expected bad input, got %v", err)
	}
}

func TestIssuer_ResumeDuringOutageKeepsStoredReport(t *testing.T) {
	api := &fakeEmissionAPI{fetchErr: emission.RemoteUnavailable(errors.New("gateway down"), "812")}
	checkpoints := NewMemoryCheckpointStore()
	stored, err := emission.Summarize(jobs(emission.StatusQueuedForSealing, emission.StatusQueuedForSending, emission.StatusSealed))
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	stored.BatchID = "812"
	if err := checkpoints.SaveCheckpoint(context.Background(), Checkpoint{BlockID: "812", Stage: StageTimedOut, Report: stored}); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	issuance := issuanceFor(t)
	issuance.SealPollMaxAttempts = 2

	poll, err := NewIssuer(api, fixtures.NewDir(t.TempDir()), issuance, WithCheckpoints(checkpoints)).Resume(context.Background(), "812")
	if !emission.IsPollingTimeout(err) {
		t.Fatalf("expected polling timeout, got %v", err)
	}
	if poll.Observed {
		t.Fatalf("expected no observed report during the outage")
	}
	checkpoint, _ := checkpoints.GetCheckpoint(context.Background(), "812")
	if checkpoint.Report.PendingCount != 2 || checkpoint.Report.Resolved() {
		t.Fatalf("expected stored report with 2 pending to survive, got %+v", checkpoint.Report)
	}
	if checkpoint.Stage != StageTimedOut || checkpoint.Attempts != 2 {
		t.Fatalf("unexpected checkpoint %+v", checkpoint)
	}
}
