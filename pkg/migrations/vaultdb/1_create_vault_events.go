package vaultdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/chainsafe/custody-vault/pkg/eventstore"
	mghelper "github.com/chainsafe/custody-vault/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating vault_events table...")
		if err := mghelper.CreateSchema(ctx, db, &eventstore.EventDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &eventstore.EventDao{}, "kind", "asset", "holder")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping vault_events table...")
		return mghelper.DropTables(ctx, db, &eventstore.EventDao{})
	})
}
