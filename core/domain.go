package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EntityKind names the remote entities the client can create and delete.
type EntityKind string

const (
	EntityActivity        EntityKind = "activity"
	EntityAssessment      EntityKind = "assessment"
	EntityLearningOutcome EntityKind = "learning_outcome"
	EntityAchievement     EntityKind = "achievement"
	EntityCredential      EntityKind = "credential"
)

// CleanupOrder deletes dependants before the entities they reference.
var CleanupOrder = []EntityKind{
	EntityCredential,
	EntityAchievement,
	EntityActivity,
	EntityAssessment,
	EntityLearningOutcome,
}

func (k EntityKind) Valid() bool {
	switch k {
	case EntityActivity, EntityAssessment, EntityLearningOutcome, EntityAchievement, EntityCredential:
		return true
	}
	return false
}

func (k EntityKind) CreateEndpoint() string {
	switch k {
	case EntityActivity:
		return EndpointCreateActivity
	case EntityAssessment:
		return EndpointCreateAssessment
	case EntityLearningOutcome:
		return EndpointCreateLearningOutcome
	case EntityAchievement:
		return EndpointCreateAchievement
	case EntityCredential:
		return EndpointCreateCredential
	}
	return ""
}

func (k EntityKind) DeleteEndpoint() string {
	switch k {
	case EntityActivity:
		return EndpointDeleteActivity
	case EntityAssessment:
		return EndpointDeleteAssessment
	case EntityLearningOutcome:
		return EndpointDeleteLearningOutcome
	case EntityAchievement:
		return EndpointDeleteAchievement
	case EntityCredential:
		return EndpointDeleteCredential
	}
	return ""
}

func ParseEntityKind(raw string) (EntityKind, error) {
	kind := EntityKind(strings.TrimSpace(strings.ToLower(raw)))
	if !kind.Valid() {
		return "", fmt.Errorf("core: entity kind %q is invalid", raw)
	}
	return kind, nil
}

// Relation is a link sub-resource posted under an owning entity.
type Relation struct {
	Owner EntityKind
	Path  string
	// Multi relations post the whole id list with singleOid 0.
	Multi bool
}

var (
	RelationActivityAwardingBody        = Relation{Owner: EntityActivity, Path: "awardingBody"}
	RelationAssessmentAwardingBody      = Relation{Owner: EntityAssessment, Path: "awardingBody"}
	RelationAchievementAwardingBody     = Relation{Owner: EntityAchievement, Path: "awardingBody"}
	RelationAchievementProvenBy         = Relation{Owner: EntityAchievement, Path: "provenBy"}
	RelationAchievementLearningOutcomes = Relation{Owner: EntityAchievement, Path: "learningOutcomes", Multi: true}
	RelationAchievementInfluencedBy     = Relation{Owner: EntityAchievement, Path: "influencedBy", Multi: true}
	RelationCredentialDiploma           = Relation{Owner: EntityCredential, Path: "diploma"}
	RelationCredentialAchieved          = Relation{Owner: EntityCredential, Path: "achieved"}
)

// Entity is the reference returned when the remote API creates an object.
type Entity struct {
	Kind EntityKind      `json:"-"`
	OID  int64           `json:"oid"`
	Raw  json.RawMessage `json:"-"`
}

// RelationBody is the payload shape shared by every relation endpoint.
type RelationBody struct {
	OID       []int64 `json:"oid"`
	SingleOID int64   `json:"singleOid"`
}

func NewRelationBody(relation Relation, targets ...int64) RelationBody {
	body := RelationBody{OID: append([]int64{}, targets...)}
	if !relation.Multi && len(targets) > 0 {
		body.SingleOID = targets[0]
	}
	return body
}
