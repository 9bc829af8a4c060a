package core

import (
	"encoding/json"
	"testing"
)

func TestParseEntityKind(t *testing.T) {
	kind, err := ParseEntityKind(" Learning_Outcome ")
	if err != nil {
		t.Fatalf("parse kind: %v", err)
	}
	if kind != EntityLearningOutcome {
		t.Fatalf("expected learning outcome, got %q", kind)
	}
	if _, err := ParseEntityKind("diploma"); err == nil {
		t.Fatalf("expected invalid kind error")
	}
}

func TestEntityKindEndpointsAreCatalogued(t *testing.T) {
	endpoints := DefaultEndpoints()
	for _, kind := range CleanupOrder {
		if _, ok := endpoints[kind.CreateEndpoint()]; !ok {
			t.Fatalf("expected create endpoint for %s", kind)
		}
		if _, ok := endpoints[kind.DeleteEndpoint()]; !ok {
			t.Fatalf("expected delete endpoint for %s", kind)
		}
	}
	if CleanupOrder[0] != EntityCredential {
		t.Fatalf("expected credentials to be deleted first")
	}
}

func TestNewRelationBody(t *testing.T) {
	single := NewRelationBody(RelationCredentialDiploma, 42)
	payload, err := json.Marshal(single)
	if err != nil {
		t.Fatalf("marshal single relation: %v", err)
	}
	if string(payload) != `{"oid":[42],"singleOid":42}` {
		t.Fatalf("unexpected single relation payload %s", payload)
	}

	multi := NewRelationBody(RelationAchievementLearningOutcomes, 1, 2, 3)
	if multi.SingleOID != 0 || len(multi.OID) != 3 {
		t.Fatalf("expected multi relation to post the id list only, got %#v", multi)
	}

	empty := NewRelationBody(RelationAchievementInfluencedBy)
	payload, _ = json.Marshal(empty)
	if string(payload) != `{"oid":[],"singleOid":0}` {
		t.Fatalf("expected empty oid list, got %s", payload)
	}
}
