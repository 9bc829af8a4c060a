package workflow

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-certidigital/emission"
)

var ErrCheckpointNotFound = errors.New("workflow: checkpoint not found")

// Stage of an issuance run recorded in its checkpoint.
type Stage string

const (
	StageIssued    Stage = "issued"
	StageSealing   Stage = "sealing"
	StageResolved  Stage = "resolved"
	StageTimedOut  Stage = "timed_out"
	StageCancelled Stage = "cancelled"
	StageDelivered Stage = "delivered"
)

// Checkpoint is the last known progress of an emissions block. It lets a
// later process resume polling with nothing but the block id.
type Checkpoint struct {
	BlockID         string                `json:"block_id"`
	CredentialID    int64                 `json:"credential_id"`
	IssuingCenterID int64                 `json:"issuing_center_id"`
	Stage           Stage                 `json:"stage"`
	Attempts        int                   `json:"attempts"`
	Report          emission.StatusReport `json:"report"`
	LastError       string                `json:"last_error,omitempty"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, checkpoint Checkpoint) error
	GetCheckpoint(ctx context.Context, blockID string) (Checkpoint, error)
	ListCheckpoints(ctx context.Context, stages ...Stage) ([]Checkpoint, error)
}

type MemoryCheckpointStore struct {
	mu    sync.RWMutex
	items map[string]Checkpoint
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{items: map[string]Checkpoint{}}
}

func (s *MemoryCheckpointStore) SaveCheckpoint(_ context.Context, checkpoint Checkpoint) error {
	checkpoint.BlockID = strings.TrimSpace(checkpoint.BlockID)
	if checkpoint.BlockID == "" {
		return errors.New("workflow: checkpoint block id is required")
	}
	if checkpoint.UpdatedAt.IsZero() {
		checkpoint.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[checkpoint.BlockID] = checkpoint
	return nil
}

func (s *MemoryCheckpointStore) GetCheckpoint(_ context.Context, blockID string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	checkpoint, ok := s.items[strings.TrimSpace(blockID)]
	if !ok {
		return Checkpoint{}, ErrCheckpointNotFound
	}
	return checkpoint, nil
}

func (s *MemoryCheckpointStore) ListCheckpoints(_ context.Context, stages ...Stage) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Checkpoint, 0, len(s.items))
	for _, checkpoint := range s.items {
		if MatchesStage(checkpoint.Stage, stages) {
			out = append(out, checkpoint)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}

// MatchesStage reports whether stage is in stages; an empty filter matches
// everything.
func MatchesStage(stage Stage, stages []Stage) bool {
	if len(stages) == 0 {
		return true
	}
	for _, candidate := range stages {
		if candidate == stage {
			return true
		}
	}
	return false
}

var _ CheckpointStore = (*MemoryCheckpointStore)(nil)
