package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/goliatone/go-certidigital/core"
	goerrors "github.com/goliatone/go-errors"
)

// DeleteResult reports a best effort delete. Failures are not errors: the
// caller is usually cleaning up and moves on to the next id.
type DeleteResult struct {
	Kind       core.EntityKind `json:"kind"`
	OID        int64           `json:"oid"`
	StatusCode int             `json:"status_code"`
	Deleted    bool            `json:"deleted"`
	Reason     string          `json:"reason,omitempty"`
}

// CreateEntity posts body to the create endpoint of kind under the issuing
// center and returns the new object's oid.
func (c *Client) CreateEntity(ctx context.Context, kind core.EntityKind, centerID int64, body json.RawMessage) (core.Entity, error) {
	if !kind.Valid() {
		return core.Entity{}, invalidKindError(kind)
	}
	if len(body) == 0 {
		body = json.RawMessage(`{}`)
	}
	res, err := c.do(ctx, call{
		operation: "create_" + string(kind),
		apiID:     kind.CreateEndpoint(),
		method:    http.MethodPost,
		query:     centerQuery(centerID),
		body:      body,
		fields:    map[string]any{"entity": string(kind), "issuing_center_id": centerID},
	})
	if err != nil {
		return core.Entity{}, err
	}

	entity := core.Entity{Kind: kind}
	if err := decodeBody(res, &entity, "create "+string(kind)); err != nil {
		return core.Entity{}, err
	}
	if entity.OID == 0 {
		return core.Entity{}, goerrors.New(fmt.Sprintf("client: create %s response has no oid", kind), goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ServiceErrorExternalFailure)
	}
	entity.Raw = json.RawMessage(append([]byte(nil), res.Body...))
	return entity, nil
}

func (c *Client) CreateActivity(ctx context.Context, centerID int64, body json.RawMessage) (core.Entity, error) {
	return c.CreateEntity(ctx, core.EntityActivity, centerID, body)
}

func (c *Client) CreateAssessment(ctx context.Context, centerID int64, body json.RawMessage) (core.Entity, error) {
	return c.CreateEntity(ctx, core.EntityAssessment, centerID, body)
}

func (c *Client) CreateLearningOutcome(ctx context.Context, centerID int64, body json.RawMessage) (core.Entity, error) {
	return c.CreateEntity(ctx, core.EntityLearningOutcome, centerID, body)
}

func (c *Client) CreateAchievement(ctx context.Context, centerID int64, body json.RawMessage) (core.Entity, error) {
	return c.CreateEntity(ctx, core.EntityAchievement, centerID, body)
}

func (c *Client) CreateCredential(ctx context.Context, centerID int64, body json.RawMessage) (core.Entity, error) {
	return c.CreateEntity(ctx, core.EntityCredential, centerID, body)
}

// DeleteEntity removes an object. Only an invalid kind or an unresolvable
// endpoint returns an error; remote failures come back as Deleted=false.
func (c *Client) DeleteEntity(ctx context.Context, kind core.EntityKind, oid int64) (DeleteResult, error) {
	if !kind.Valid() {
		return DeleteResult{}, invalidKindError(kind)
	}
	if _, err := c.endpoint(kind.DeleteEndpoint(), ""); err != nil {
		return DeleteResult{}, err
	}
	result := DeleteResult{Kind: kind, OID: oid}
	res, err := c.do(ctx, call{
		operation: "delete_" + string(kind),
		apiID:     kind.DeleteEndpoint(),
		suffix:    formatID(oid),
		method:    http.MethodDelete,
		fields:    map[string]any{"entity": string(kind), "oid": oid},
	})
	result.StatusCode = res.StatusCode
	if err != nil {
		result.Reason = err.Error()
		c.logger.Warn("certidigital delete failed", "entity", string(kind), "oid", oid, "status_code", res.StatusCode, "error", err)
		return result, nil
	}
	result.Deleted = true
	return result, nil
}

func (c *Client) DeleteActivity(ctx context.Context, oid int64) (DeleteResult, error) {
	return c.DeleteEntity(ctx, core.EntityActivity, oid)
}

func (c *Client) DeleteAssessment(ctx context.Context, oid int64) (DeleteResult, error) {
	return c.DeleteEntity(ctx, core.EntityAssessment, oid)
}

func (c *Client) DeleteLearningOutcome(ctx context.Context, oid int64) (DeleteResult, error) {
	return c.DeleteEntity(ctx, core.EntityLearningOutcome, oid)
}

func (c *Client) DeleteAchievement(ctx context.Context, oid int64) (DeleteResult, error) {
	return c.DeleteEntity(ctx, core.EntityAchievement, oid)
}

func (c *Client) DeleteCredential(ctx context.Context, oid int64) (DeleteResult, error) {
	return c.DeleteEntity(ctx, core.EntityCredential, oid)
}

// Relate links ownerOID to targets through a relation sub-resource of the
// owner's create endpoint: {create}/{ownerOID}/{relation}.
func (c *Client) Relate(ctx context.Context, relation core.Relation, centerID int64, ownerOID int64, targets ...int64) error {
	if !relation.Owner.Valid() || relation.Path == "" {
		return goerrors.New("client: relation is invalid", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ServiceErrorBadInput)
	}
	if !relation.Multi && len(targets) != 1 {
		return goerrors.New(fmt.Sprintf("client: relation %s takes exactly one target, got %d", relation.Path, len(targets)), goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ServiceErrorBadInput)
	}
	_, err := c.do(ctx, call{
		operation: "relate_" + string(relation.Owner) + "_" + relation.Path,
		apiID:     relation.Owner.CreateEndpoint(),
		suffix:    formatID(ownerOID) + "/" + relation.Path,
		method:    http.MethodPost,
		query:     centerQuery(centerID),
		body:      core.NewRelationBody(relation, targets...),
		fields:    map[string]any{"entity": string(relation.Owner), "oid": ownerOID, "issuing_center_id": centerID},
	})
	return err
}

func invalidKindError(kind core.EntityKind) error {
	return goerrors.New(fmt.Sprintf("client: entity kind %q is invalid", kind), goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ServiceErrorBadInput)
}
