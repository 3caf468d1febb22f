// Package eventstore journals committed vault events in PostgreSQL.
package eventstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/chainsafe/custody-vault/pkg/vault"
)

const defaultLimit = 50

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the event journal
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

// Notify appends ev to the journal. It implements vault.Notifier.
func (s *pgStore) Notify(ctx context.Context, ev vault.Event) error {
	// v7 ids sort by creation time
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate event id: %w", err)
	}

	if _, err := s.db.NewInsert().Model(toEventDao(id, ev)).Exec(ctx); err != nil {
		return fmt.Errorf("failed to store %s event: %w", ev.Kind, err)
	}
	return nil
}

// ListEvents returns the newest events matching filter. It implements vault.EventLister.
func (s *pgStore) ListEvents(ctx context.Context, filter vault.EventFilter) ([]vault.EventRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	var daos []EventDao
	query := s.db.NewSelect().
		Model(&daos).
		OrderExpr("id DESC").
		Limit(limit)

	if filter.Kind != "" {
		query = query.Where("kind = ?", string(filter.Kind))
	}
	if filter.Asset != nil {
		query = query.Where("asset = ?", filter.Asset.Hex())
	}
	if filter.Holder != nil {
		query = query.Where("holder = ?", filter.Holder.Hex())
	}

	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	out := make([]vault.EventRecord, 0, len(daos))
	for i := range daos {
		rec, err := toRecord(&daos[i])
		if err != nil {
			return nil, fmt.Errorf("failed to decode event %s: %w", daos[i].ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
