package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/goliatone/go-certidigital/client"
	"github.com/goliatone/go-certidigital/core"
	"github.com/goliatone/go-certidigital/fixtures"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// EntityAPI is the part of the client the builder drives.
type EntityAPI interface {
	CreateEntity(ctx context.Context, kind core.EntityKind, centerID int64, body json.RawMessage) (core.Entity, error)
	DeleteEntity(ctx context.Context, kind core.EntityKind, oid int64) (client.DeleteResult, error)
	Relate(ctx context.Context, relation core.Relation, centerID int64, ownerOID int64, targets ...int64) error
}

type BuildResult struct {
	Scope     string          `json:"scope"`
	IDs       fixtures.IDList `json:"ids"`
	Relations int             `json:"relations"`
}

type CleanupResult struct {
	Scope   string                `json:"scope"`
	Results []client.DeleteResult `json:"results"`
	Deleted int                   `json:"deleted"`
	Failed  int                   `json:"failed"`
}

// Builder creates the credential entity graph described by a fixture tree
// and records every created oid in the ledger.
type Builder struct {
	api      EntityAPI
	fixtures fixtures.Dir
	ledger   fixtures.LedgerStore
	issuance core.IssuanceConfig
	logger   glog.Logger
}

type BuilderOption func(*Builder)

func WithBuilderLogger(logger glog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

func NewBuilder(api EntityAPI, dir fixtures.Dir, ledger fixtures.LedgerStore, issuance core.IssuanceConfig, opts ...BuilderOption) *Builder {
	builder := &Builder{
		api:      api,
		fixtures: dir,
		ledger:   ledger,
		issuance: issuance,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(builder)
		}
	}
	if builder.ledger == nil {
		builder.ledger = fixtures.NewMemoryLedger()
	}
	builder.logger = glog.Ensure(builder.logger)
	return builder
}

type run struct {
	builder *Builder
	scope   string
	ids     fixtures.IDList
	links   int
}

func (b *Builder) newRun(scope string) (*run, error) {
	if b == nil || b.api == nil {
		return nil, fmt.Errorf("workflow: builder is not configured")
	}
	if b.issuance.IssuingCenterID == 0 {
		return nil, goerrors.New("workflow: issuance.issuing_center_id is required", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ServiceErrorBadInput)
	}
	return &run{builder: b, scope: scope}, nil
}

// finish stores whatever was created, even on failure, so Cleanup can
// remove a partial graph.
func (r *run) finish(ctx context.Context, err error) (BuildResult, error) {
	result := BuildResult{Scope: r.scope, IDs: r.ids, Relations: r.links}
	if !r.ids.Empty() {
		if saveErr := r.builder.ledger.Save(ctx, r.scope, r.ids); saveErr != nil && err == nil {
			err = saveErr
		}
	}
	if err != nil {
		r.builder.logger.Error("certidigital build failed", "scope", r.scope, "created", r.ids.Total(), "error", err)
		return result, err
	}
	r.builder.logger.Info("certidigital build completed", "scope", r.scope, "created", r.ids.Total(), "relations", r.links)
	return result, nil
}

func (r *run) create(ctx context.Context, kind core.EntityKind, body json.RawMessage) (int64, error) {
	entity, err := r.builder.api.CreateEntity(ctx, kind, r.builder.issuance.IssuingCenterID, body)
	if err != nil {
		return 0, err
	}
	r.ids.Add(kind, entity.OID)
	r.builder.logger.Debug("certidigital entity created", "entity", string(kind), "oid", entity.OID)
	return entity.OID, nil
}

func (r *run) relate(ctx context.Context, relation core.Relation, owner int64, targets ...int64) error {
	if err := r.builder.api.Relate(ctx, relation, r.builder.issuance.IssuingCenterID, owner, targets...); err != nil {
		return err
	}
	r.links++
	return nil
}

func (r *run) createAll(ctx context.Context, kind core.EntityKind, each func(oid int64) error) ([]int64, error) {
	bodies, err := r.builder.fixtures.Entities(r.scope, kind)
	if err != nil {
		return nil, err
	}
	return r.createBodies(ctx, kind, bodies, each)
}

func (r *run) createBodies(ctx context.Context, kind core.EntityKind, bodies []json.RawMessage, each func(oid int64) error) ([]int64, error) {
	ids := make([]int64, 0, len(bodies))
	for _, body := range bodies {
		oid, err := r.create(ctx, kind, body)
		if err != nil {
			return ids, err
		}
		ids = append(ids, oid)
		if each != nil {
			if err := each(oid); err != nil {
				return ids, err
			}
		}
	}
	return ids, nil
}

func (r *run) credentials(ctx context.Context, activities []int64, each func(oid int64) error) error {
	bodies, err := r.builder.fixtures.Entities(r.scope, core.EntityCredential)
	if err != nil {
		return err
	}
	for index, body := range bodies {
		patched, err := fixtures.WithPerformedActivities(body, activities)
		if err != nil {
			return err
		}
		bodies[index] = patched
	}
	_, err = r.createBodies(ctx, core.EntityCredential, bodies, each)
	return err
}

// CreateBasic creates the activities of the basic scope, each linked to the
// awarding organization, then the credentials performing them with the
// configured diploma.
func (b *Builder) CreateBasic(ctx context.Context) (BuildResult, error) {
	r, err := b.newRun(fixtures.ScopeBasic)
	if err != nil {
		return BuildResult{}, err
	}
	return r.finish(ctx, r.basic(ctx))
}

func (r *run) basic(ctx context.Context) error {
	org := r.builder.issuance.AwardingOrganizationID
	activities, err := r.createAll(ctx, core.EntityActivity, func(oid int64) error {
		return r.relate(ctx, core.RelationActivityAwardingBody, oid, org)
	})
	if err != nil {
		return err
	}
	return r.credentials(ctx, activities, func(oid int64) error {
		return r.relate(ctx, core.RelationCredentialDiploma, oid, r.builder.issuance.DiplomaID)
	})
}

// CreateAdvanced builds the full graph: activities, assessments, learning
// outcomes, achievements proven by the assessments and influenced by the
// activities, and credentials achieving every achievement.
func (b *Builder) CreateAdvanced(ctx context.Context) (BuildResult, error) {
	r, err := b.newRun(fixtures.ScopeAdvanced)
	if err != nil {
		return BuildResult{}, err
	}
	return r.finish(ctx, r.advanced(ctx))
}

func (r *run) advanced(ctx context.Context) error {
	org := r.builder.issuance.AwardingOrganizationID
	activities, err := r.createAll(ctx, core.EntityActivity, func(oid int64) error {
		return r.relate(ctx, core.RelationActivityAwardingBody, oid, org)
	})
	if err != nil {
		return err
	}
	assessments, err := r.createAll(ctx, core.EntityAssessment, nil)
	if err != nil {
		return err
	}
	outcomes, err := r.createAll(ctx, core.EntityLearningOutcome, nil)
	if err != nil {
		return err
	}
	achievements, err := r.createAll(ctx, core.EntityAchievement, func(oid int64) error {
		for _, assessment := range assessments {
			if err := r.relate(ctx, core.RelationAchievementProvenBy, oid, assessment); err != nil {
				return err
			}
		}
		if err := r.relate(ctx, core.RelationAchievementLearningOutcomes, oid, outcomes...); err != nil {
			return err
		}
		if err := r.relate(ctx, core.RelationAchievementInfluencedBy, oid, activities...); err != nil {
			return err
		}
		return r.relate(ctx, core.RelationAchievementAwardingBody, oid, org)
	})
	if err != nil {
		return err
	}
	return r.credentials(ctx, activities, func(oid int64) error {
		for _, achievement := range achievements {
			if err := r.relate(ctx, core.RelationCredentialAchieved, oid, achievement); err != nil {
				return err
			}
		}
		return r.relate(ctx, core.RelationCredentialDiploma, oid, r.builder.issuance.DiplomaID)
	})
}

// Cleanup deletes every ledger id of scope, dependants first, then clears
// the ledger. Individual delete failures are reported, not returned.
func (b *Builder) Cleanup(ctx context.Context, scope string) (CleanupResult, error) {
	if b == nil || b.api == nil {
		return CleanupResult{}, fmt.Errorf("workflow: builder is not configured")
	}
	ids, err := b.ledger.Load(ctx, scope)
	if err != nil {
		return CleanupResult{}, err
	}
	result := CleanupResult{Scope: scope}
	var remaining fixtures.IDList
	for _, kind := range core.CleanupOrder {
		for _, oid := range ids.IDs(kind) {
			if ctx != nil && ctx.Err() != nil {
				return result, ctx.Err()
			}
			deleted, err := b.api.DeleteEntity(ctx, kind, oid)
			if err != nil {
				return result, err
			}
			result.Results = append(result.Results, deleted)
			if deleted.Deleted {
				result.Deleted++
			} else {
				result.Failed++
				remaining.Add(kind, oid)
			}
		}
	}
	// entities the API refused to delete stay recorded for the next cleanup
	if remaining.Empty() {
		if err := b.ledger.Clear(ctx, scope); err != nil {
			return result, err
		}
	} else if err := b.ledger.Save(ctx, scope, remaining); err != nil {
		return result, err
	}
	b.logger.Info("certidigital cleanup completed", "scope", scope, "deleted", result.Deleted, "failed", result.Failed)
	return result, nil
}
