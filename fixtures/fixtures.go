package fixtures

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-certidigital/core"
	goerrors "github.com/goliatone/go-errors"
)

const (
	ScopeBasic    = "basiccredential"
	ScopeAdvanced = "advancedcredential"

	TemplateBodyFile       = "template_body.json"
	RecipientsFile         = "EmissionRecipients.xlsx"
	RecipientsTemplateFile = "EmissionRecipientsTemplate.xls"
	RecipientsOutputFile   = "EmissionRecipientsOutput.xlsx"

	ErrorFixtureMissing   = "FIXTURE_MISSING"
	ErrorFixtureMalformed = "FIXTURE_MALFORMED"
)

// EntityFile names the fixture file holding the create bodies of kind.
func EntityFile(kind core.EntityKind) string {
	switch kind {
	case core.EntityActivity:
		return "activities.json"
	case core.EntityAssessment:
		return "assessments.json"
	case core.EntityLearningOutcome:
		return "learningOutcomes.json"
	case core.EntityAchievement:
		return "achievements.json"
	case core.EntityCredential:
		return "credentials.json"
	}
	return ""
}

// Dir is a fixture tree: <root>/<scope>/<file>.
type Dir struct {
	Root string
}

func NewDir(root string) Dir {
	return Dir{Root: strings.TrimSpace(root)}
}

func (d Dir) Path(scope string, name string) string {
	return filepath.Join(d.Root, scope, name)
}

// Entities loads the create bodies of kind for scope.
func (d Dir) Entities(scope string, kind core.EntityKind) ([]json.RawMessage, error) {
	name := EntityFile(kind)
	if name == "" {
		return nil, goerrors.New(fmt.Sprintf("fixtures: entity kind %q has no fixture file", kind), goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ServiceErrorBadInput)
	}
	return LoadEntities(d.Path(scope, name))
}

func (d Dir) TemplateBody(scope string) (json.RawMessage, error) {
	return LoadObject(d.Path(scope, TemplateBodyFile))
}

// LoadEntities reads a JSON array of objects.
func LoadEntities(path string) ([]json.RawMessage, error) {
	data, err := readFixture(path)
	if err != nil {
		return nil, err
	}
	var entities []json.RawMessage
	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, malformedFixture(path, err)
	}
	for index, entity := range entities {
		if !isObject(entity) {
			return nil, malformedFixture(path, fmt.Errorf("entry %d is not an object", index))
		}
	}
	return entities, nil
}

// LoadObject reads a single JSON object.
func LoadObject(path string) (json.RawMessage, error) {
	data, err := readFixture(path)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) || !isObject(data) {
		return nil, malformedFixture(path, fmt.Errorf("expected a JSON object"))
	}
	return json.RawMessage(data), nil
}

// WithPerformedActivities sets relPerformed.oid of a credential body to the
// activity ids created in the same run.
func WithPerformedActivities(body json.RawMessage, activityIDs []int64) (json.RawMessage, error) {
	var credential map[string]any
	if err := json.Unmarshal(body, &credential); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "fixtures: decode credential body").
			WithCode(http.StatusBadRequest).
			WithTextCode(ErrorFixtureMalformed)
	}
	performed, _ := credential["relPerformed"].(map[string]any)
	if performed == nil {
		performed = map[string]any{}
	}
	ids := activityIDs
	if ids == nil {
		ids = []int64{}
	}
	performed["oid"] = ids
	credential["relPerformed"] = performed
	encoded, err := json.Marshal(credential)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "fixtures: encode credential body").
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.ServiceErrorInternal)
	}
	return encoded, nil
}

func readFixture(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerrors.Wrap(err, goerrors.CategoryNotFound, "fixtures: wrong file or file path").
				WithCode(http.StatusNotFound).
				WithTextCode(ErrorFixtureMissing).
				WithMetadata(map[string]any{"path": path})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "fixtures: read fixture").
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.ServiceErrorInternal).
			WithMetadata(map[string]any{"path": path})
	}
	return data, nil
}

func malformedFixture(path string, err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "fixtures: wrong json file format").
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(ErrorFixtureMalformed).
		WithMetadata(map[string]any{"path": path})
}

func isObject(raw []byte) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{")
}
