package fixtures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goliatone/go-certidigital/core"
	goerrors "github.com/goliatone/go-errors"
)

const LedgerFile = "idlist.json"

// IDList records the oids created by a build run so the next run can delete
// them first.
type IDList struct {
	Credentials      []int64 `json:"credentials"`
	Achievements     []int64 `json:"achievements,omitempty"`
	Activities       []int64 `json:"activities"`
	Assessments      []int64 `json:"assessments,omitempty"`
	LearningOutcomes []int64 `json:"learningOutcomes,omitempty"`
}

func (l IDList) IDs(kind core.EntityKind) []int64 {
	switch kind {
	case core.EntityCredential:
		return append([]int64(nil), l.Credentials...)
	case core.EntityAchievement:
		return append([]int64(nil), l.Achievements...)
	case core.EntityActivity:
		return append([]int64(nil), l.Activities...)
	case core.EntityAssessment:
		return append([]int64(nil), l.Assessments...)
	case core.EntityLearningOutcome:
		return append([]int64(nil), l.LearningOutcomes...)
	}
	return nil
}

func (l *IDList) Add(kind core.EntityKind, oid int64) {
	switch kind {
	case core.EntityCredential:
		l.Credentials = append(l.Credentials, oid)
	case core.EntityAchievement:
		l.Achievements = append(l.Achievements, oid)
	case core.EntityActivity:
		l.Activities = append(l.Activities, oid)
	case core.EntityAssessment:
		l.Assessments = append(l.Assessments, oid)
	case core.EntityLearningOutcome:
		l.LearningOutcomes = append(l.LearningOutcomes, oid)
	}
}

func (l IDList) Total() int {
	total := 0
	for _, kind := range core.CleanupOrder {
		total += len(l.IDs(kind))
	}
	return total
}

func (l IDList) Empty() bool {
	return l.Total() == 0
}

// LedgerStore persists one IDList per scope. Load returns an empty list for
// an unknown scope.
type LedgerStore interface {
	Load(ctx context.Context, scope string) (IDList, error)
	Save(ctx context.Context, scope string, ids IDList) error
	Clear(ctx context.Context, scope string) error
}

// FileLedger keeps each scope in <root>/<scope>/idlist.json.
type FileLedger struct {
	root string
	mu   sync.Mutex
}

func NewFileLedger(root string) *FileLedger {
	return &FileLedger{root: strings.TrimSpace(root)}
}

func (l *FileLedger) path(scope string) (string, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" || strings.ContainsAny(scope, `/\`) || scope == "." || scope == ".." {
		return "", goerrors.New(fmt.Sprintf("fixtures: ledger scope %q is invalid", scope), goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ServiceErrorBadInput)
	}
	return filepath.Join(l.root, scope, LedgerFile), nil
}

func (l *FileLedger) Load(_ context.Context, scope string) (IDList, error) {
	path, err := l.path(scope)
	if err != nil {
		return IDList{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return IDList{}, nil
		}
		return IDList{}, goerrors.Wrap(err, goerrors.CategoryInternal, "fixtures: read ledger").
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.ServiceErrorInternal)
	}
	var ids IDList
	if err := json.Unmarshal(data, &ids); err != nil {
		return IDList{}, malformedFixture(path, err)
	}
	return ids, nil
}

func (l *FileLedger) Save(_ context.Context, scope string, ids IDList) error {
	path, err := l.path(scope)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(ids, "", "    ")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "fixtures: encode ledger").
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.ServiceErrorInternal)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "fixtures: create ledger directory").
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.ServiceErrorInternal)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "fixtures: write ledger").
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.ServiceErrorInternal)
	}
	if err := os.Rename(tmp, path); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "fixtures: replace ledger").
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.ServiceErrorInternal)
	}
	return nil
}

func (l *FileLedger) Clear(_ context.Context, scope string) error {
	path, err := l.path(scope)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "fixtures: remove ledger").
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.ServiceErrorInternal)
	}
	return nil
}

// MemoryLedger is an in-process LedgerStore.
type MemoryLedger struct {
	mu    sync.Mutex
	items map[string]IDList
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{items: map[string]IDList{}}
}

func (l *MemoryLedger) Load(_ context.Context, scope string) (IDList, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneIDList(l.items[scope]), nil
}

func (l *MemoryLedger) Save(_ context.Context, scope string, ids IDList) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[scope] = cloneIDList(ids)
	return nil
}

func (l *MemoryLedger) Clear(_ context.Context, scope string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.items, scope)
	return nil
}

func cloneIDList(ids IDList) IDList {
	return IDList{
		Credentials:      append([]int64(nil), ids.Credentials...),
		Achievements:     append([]int64(nil), ids.Achievements...),
		Activities:       append([]int64(nil), ids.Activities...),
		Assessments:      append([]int64(nil), ids.Assessments...),
		LearningOutcomes: append([]int64(nil), ids.LearningOutcomes...),
	}
}

var (
	_ LedgerStore = (*FileLedger)(nil)
	_ LedgerStore = (*MemoryLedger)(nil)
)
