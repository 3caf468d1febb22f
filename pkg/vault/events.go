package vault

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/chainsafe/custody-vault/pkg/valuation"
)

// EventKind names a notification.
type EventKind string

const (
	EventDeposited     EventKind = "deposited"
	EventWithdrawn     EventKind = "withdrawn"
	EventFeedSet       EventKind = "feed_set"
	EventPausedChanged EventKind = "paused_changed"
)

// Event is emitted once per committed operation. Only the fields relevant
// to Kind are set.
type Event struct {
	Kind   EventKind
	Asset  common.Address
	Holder common.Address
	Amount *uint256.Int
	USD6   *uint256.Int
	Feed   common.Address
	Admin  common.Address
	Paused bool
	At     time.Time
}

// Notifier receives committed events. Errors are logged by the caller and
// never undo the operation.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// MultiNotifier fans an event out to every sink, even when some fail.
type MultiNotifier []Notifier

// Notify implements Notifier.
func (m MultiNotifier) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type logNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a Notifier writing every event to logger.
func NewLogNotifier(logger *zap.Logger) Notifier {
	return &logNotifier{logger: logger}
}

func (l *logNotifier) Notify(_ context.Context, ev Event) error {
	fields := []zap.Field{zap.String("event", string(ev.Kind))}
	switch ev.Kind {
	case EventDeposited, EventWithdrawn:
		fields = append(fields,
			zap.String("asset", ev.Asset.Hex()),
			zap.String("holder", ev.Holder.Hex()),
			zap.String("amount", ev.Amount.Dec()),
			zap.String("usd", valuation.FormatUSD(ev.USD6)),
		)
	case EventFeedSet:
		fields = append(fields,
			zap.String("asset", ev.Asset.Hex()),
			zap.String("feed", ev.Feed.Hex()),
		)
	case EventPausedChanged:
		fields = append(fields,
			zap.String("admin", ev.Admin.Hex()),
			zap.Bool("paused", ev.Paused),
		)
	}
	l.logger.Info("Vault event", fields...)
	return nil
}

// EventFilter narrows an event listing.
type EventFilter struct {
	Kind   EventKind
	Asset  *common.Address
	Holder *common.Address
	Limit  int
}

// EventRecord is a persisted Event.
type EventRecord struct {
	ID string
	Event
}

// EventLister reads back persisted events.
type EventLister interface {
	ListEvents(ctx context.Context, filter EventFilter) ([]EventRecord, error)
}
