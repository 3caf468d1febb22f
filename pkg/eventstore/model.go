package eventstore

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/uptrace/bun"

	"github.com/chainsafe/custody-vault/pkg/vault"
)

// EventDao is a data access object that maps directly to the 'vault_events' table in PostgreSQL.
type EventDao struct {
	bun.BaseModel `bun:"table:vault_events,alias:ve"`
	ID            uuid.UUID `bun:"id,pk,type:uuid"`
	Kind          string    `bun:"kind,notnull,type:varchar(32)"`
	Asset         *string   `bun:"asset,type:varchar(42)"`
	Holder        *string   `bun:"holder,type:varchar(42)"`
	Amount        *string   `bun:"amount,type:numeric(78,0)"`
	USD6          *string   `bun:"usd6,type:numeric(78,0)"`
	Feed          *string   `bun:"feed,type:varchar(42)"`
	Admin         *string   `bun:"admin,type:varchar(42)"`
	Paused        *bool     `bun:"paused"`
	OccurredAt    time.Time `bun:"occurred_at,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func hexPtr(a common.Address) *string {
	s := a.Hex()
	return &s
}

func decPtr(v *uint256.Int) *string {
	if v == nil {
		return nil
	}
	s := v.Dec()
	return &s
}

// toEventDao converts a vault.Event to EventDao. Only the columns relevant to
// the event kind are set.
func toEventDao(id uuid.UUID, ev vault.Event) *EventDao {
	dao := &EventDao{
		ID:         id,
		Kind:       string(ev.Kind),
		OccurredAt: ev.At,
	}
	switch ev.Kind {
	case vault.EventDeposited, vault.EventWithdrawn:
		dao.Asset = hexPtr(ev.Asset)
		dao.Holder = hexPtr(ev.Holder)
		dao.Amount = decPtr(ev.Amount)
		dao.USD6 = decPtr(ev.USD6)
	case vault.EventFeedSet:
		dao.Asset = hexPtr(ev.Asset)
		dao.Feed = hexPtr(ev.Feed)
		dao.Admin = hexPtr(ev.Admin)
	case vault.EventPausedChanged:
		paused := ev.Paused
		dao.Admin = hexPtr(ev.Admin)
		dao.Paused = &paused
	}
	return dao
}

// toRecord converts an EventDao to vault.EventRecord.
func toRecord(dao *EventDao) (vault.EventRecord, error) {
	rec := vault.EventRecord{
		ID: dao.ID.String(),
		Event: vault.Event{
			Kind: vault.EventKind(dao.Kind),
			At:   dao.OccurredAt.UTC(),
		},
	}
	if dao.Asset != nil {
		rec.Asset = common.HexToAddress(*dao.Asset)
	}
	if dao.Holder != nil {
		rec.Holder = common.HexToAddress(*dao.Holder)
	}
	if dao.Feed != nil {
		rec.Feed = common.HexToAddress(*dao.Feed)
	}
	if dao.Admin != nil {
		rec.Admin = common.HexToAddress(*dao.Admin)
	}
	if dao.Paused != nil {
		rec.Paused = *dao.Paused
	}
	if dao.Amount != nil {
		v, err := uint256.FromDecimal(*dao.Amount)
		if err != nil {
			return vault.EventRecord{}, err
		}
		rec.Amount = v
	}
	if dao.USD6 != nil {
		v, err := uint256.FromDecimal(*dao.USD6)
		if err != nil {
			return vault.EventRecord{}, err
		}
		rec.USD6 = v
	}
	return rec, nil
}
