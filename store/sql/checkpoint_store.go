package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-certidigital/workflow"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type CheckpointStore struct {
	db   *bun.DB
	repo repository.Repository[*checkpointRecord]
}

func NewCheckpointStore(db *bun.DB) (*CheckpointStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*checkpointRecord](db, checkpointHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid checkpoint repository wiring: %w", err)
		}
	}
	return &CheckpointStore{db: db, repo: repo}, nil
}

// SaveCheckpoint upserts by block id. A concurrent insert of the same block
// falls back to an update.
func (s *CheckpointStore) SaveCheckpoint(ctx context.Context, checkpoint workflow.Checkpoint) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: checkpoint store is not configured")
	}
	checkpoint.BlockID = strings.TrimSpace(checkpoint.BlockID)
	if checkpoint.BlockID == "" {
		return fmt.Errorf("sqlstore: checkpoint block id is required")
	}
	if strings.TrimSpace(string(checkpoint.Stage)) == "" {
		return fmt.Errorf("sqlstore: checkpoint stage is required")
	}
	if checkpoint.UpdatedAt.IsZero() {
		checkpoint.UpdatedAt = time.Now().UTC()
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findCheckpointTx(ctx, tx, checkpoint.BlockID)
		if err != nil {
			return err
		}
		if record == nil {
			record = &checkpointRecord{
				ID:        uuid.NewString(),
				BlockID:   checkpoint.BlockID,
				CreatedAt: checkpoint.UpdatedAt.UTC(),
			}
			applyCheckpoint(record, checkpoint)
			_, insertErr := s.repo.CreateTx(ctx, tx, record)
			if insertErr == nil {
				return nil
			}
			if !isUniqueViolation(insertErr) {
				return insertErr
			}
			record, err = findCheckpointTx(ctx, tx, checkpoint.BlockID)
			if err != nil {
				return err
			}
			if record == nil {
				return insertErr
			}
		}
		applyCheckpoint(record, checkpoint)
		_, err = tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx)
		return err
	})
}

func (s *CheckpointStore) GetCheckpoint(ctx context.Context, blockID string) (workflow.Checkpoint, error) {
	if s == nil || s.db == nil {
		return workflow.Checkpoint{}, fmt.Errorf("sqlstore: checkpoint store is not configured")
	}
	record := &checkpointRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.block_id = ?", strings.TrimSpace(blockID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return workflow.Checkpoint{}, workflow.ErrCheckpointNotFound
		}
		return workflow.Checkpoint{}, err
	}
	return record.toDomain(), nil
}

// ListCheckpoints returns checkpoints oldest update first, optionally
// restricted to stages.
func (s *CheckpointStore) ListCheckpoints(ctx context.Context, stages ...workflow.Stage) ([]workflow.Checkpoint, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: checkpoint store is not configured")
	}
	var records []*checkpointRecord
	query := s.db.NewSelect().Model(&records)
	if len(stages) > 0 {
		values := make([]string, 0, len(stages))
		for _, stage := range stages {
			values = append(values, string(stage))
		}
		query = query.Where("?TableAlias.stage IN (?)", bun.In(values))
	}
	if err := query.OrderExpr("?TableAlias.updated_at ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]workflow.Checkpoint, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func findCheckpointTx(ctx context.Context, tx bun.Tx, blockID string) (*checkpointRecord, error) {
	record := &checkpointRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.block_id = ?", blockID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func applyCheckpoint(record *checkpointRecord, checkpoint workflow.Checkpoint) {
	record.CredentialID = checkpoint.CredentialID
	record.IssuingCenterID = checkpoint.IssuingCenterID
	record.Stage = string(checkpoint.Stage)
	record.Attempts = checkpoint.Attempts
	record.Report = checkpoint.Report
	record.LastError = checkpoint.LastError
	record.UpdatedAt = checkpoint.UpdatedAt.UTC()
}

func (r *checkpointRecord) toDomain() workflow.Checkpoint {
	if r == nil {
		return workflow.Checkpoint{}
	}
	return workflow.Checkpoint{
		BlockID:         r.BlockID,
		CredentialID:    r.CredentialID,
		IssuingCenterID: r.IssuingCenterID,
		Stage:           workflow.Stage(r.Stage),
		Attempts:        r.Attempts,
		Report:          r.Report,
		LastError:       r.LastError,
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}
