package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-certidigital/core"
	"github.com/goliatone/go-certidigital/fixtures"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LedgerStore keeps created entity oids in certidigital_ledger_entries, one
// row per oid, so a cleanup can run from a different machine than the build.
type LedgerStore struct {
	db   *bun.DB
	repo repository.Repository[*ledgerEntryRecord]
}

func NewLedgerStore(db *bun.DB) (*LedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*ledgerEntryRecord](db, ledgerEntryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid ledger repository wiring: %w", err)
		}
	}
	return &LedgerStore{db: db, repo: repo}, nil
}

func (s *LedgerStore) Load(ctx context.Context, scope string) (fixtures.IDList, error) {
	if s == nil || s.db == nil {
		return fixtures.IDList{}, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	scope, err := ledgerScope(scope)
	if err != nil {
		return fixtures.IDList{}, err
	}

	var records []*ledgerEntryRecord
	err = s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.scope = ?", scope).
		OrderExpr("?TableAlias.entity_kind ASC, ?TableAlias.position ASC").
		Scan(ctx)
	if err != nil {
		return fixtures.IDList{}, err
	}

	var ids fixtures.IDList
	for _, record := range records {
		ids.Add(core.EntityKind(record.EntityKind), record.OID)
	}
	return ids, nil
}

// Save replaces every row of scope inside one transaction.
func (s *LedgerStore) Save(ctx context.Context, scope string, ids fixtures.IDList) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: ledger store is not configured")
	}
	scope, err := ledgerScope(scope)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := deleteLedgerScopeTx(ctx, tx, scope); err != nil {
			return err
		}
		for _, kind := range core.CleanupOrder {
			for position, oid := range ids.IDs(kind) {
				record := &ledgerEntryRecord{
					ID:         uuid.NewString(),
					Scope:      scope,
					EntityKind: string(kind),
					OID:        oid,
					Position:   position,
					CreatedAt:  now,
				}
				if _, err := s.repo.CreateTx(ctx, tx, record); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *LedgerStore) Clear(ctx context.Context, scope string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: ledger store is not configured")
	}
	scope, err := ledgerScope(scope)
	if err != nil {
		return err
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return deleteLedgerScopeTx(ctx, tx, scope)
	})
}

func deleteLedgerScopeTx(ctx context.Context, tx bun.Tx, scope string) error {
	_, err := tx.NewDelete().
		Model((*ledgerEntryRecord)(nil)).
		Where("scope = ?", scope).
		Exec(ctx)
	return err
}

func ledgerScope(scope string) (string, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return "", fmt.Errorf("sqlstore: ledger scope is required")
	}
	return scope, nil
}
