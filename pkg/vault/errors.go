package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	apperrors "github.com/chainsafe/custody-vault/pkg/app/errors"
	"github.com/chainsafe/custody-vault/pkg/gateway"
	"github.com/chainsafe/custody-vault/pkg/ledger"
	"github.com/chainsafe/custody-vault/pkg/oracle"
	"github.com/chainsafe/custody-vault/pkg/valuation"
)

var (
	ErrSuspended          = errors.New("vault suspended")
	ErrUnauthorized       = errors.New("caller is not an admin")
	ErrZeroAmount         = errors.New("amount must be greater than zero")
	ErrReentrantCall      = errors.New("reentrant call")
	ErrExceedsWithdrawCap = errors.New("exceeds withdraw cap")
	ErrAssetMetadata      = errors.New("asset metadata unavailable")
	ErrNotStarted         = errors.New("operation not started")
)

// ExceedsWithdrawCapError reports a withdrawal valued above the per-operation cap.
type ExceedsWithdrawCapError struct {
	Attempted *uint256.Int
	Cap       *uint256.Int
}

func (e *ExceedsWithdrawCapError) Error() string {
	return fmt.Sprintf("exceeds withdraw cap: attempted %s usd6, cap %s usd6", e.Attempted.Dec(), e.Cap.Dec())
}

// Is makes errors.Is(err, ErrExceedsWithdrawCap) match.
func (e *ExceedsWithdrawCapError) Is(target error) bool {
	return target == ErrExceedsWithdrawCap
}

// Reason codes rendered to callers.
const (
	ReasonInvalidFeed          = "INVALID_FEED"
	ReasonTokenNotSupported    = "TOKEN_NOT_SUPPORTED"
	ReasonExceedsBankCap       = "EXCEEDS_BANK_CAP"
	ReasonExceedsWithdrawCap   = "EXCEEDS_WITHDRAW_CAP"
	ReasonInsufficientBalance  = "INSUFFICIENT_BALANCE"
	ReasonPriceStaleOrNegative = "PRICE_STALE_OR_NEGATIVE"
	ReasonPriceFeedUnavailable = "PRICE_FEED_UNAVAILABLE"
	ReasonTransferFailed       = "TRANSFER_FAILED"
	ReasonTransferPending      = "TRANSFER_PENDING"
	ReasonUnauthorized         = "UNAUTHORIZED"
	ReasonSuspended            = "SUSPENDED"
	ReasonZeroAmount           = "ZERO_AMOUNT"
	ReasonReentrantCall        = "REENTRANT_CALL"
	ReasonCapacityUnderflow    = "CAPACITY_UNDERFLOW"
	ReasonValuationOverflow    = "VALUATION_OVERFLOW"
	ReasonBalanceOverflow      = "BALANCE_OVERFLOW"
	ReasonAssetMetadata        = "ASSET_METADATA_UNAVAILABLE"
	ReasonNotStarted           = "NOT_STARTED"
)

// classify wraps a domain error in the service error category callers map
// to status codes. Errors that are already classified pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) {
		return err
	}

	var (
		out    error
		reason string
	)
	switch {
	case errors.Is(err, ErrSuspended):
		out, reason = apperrors.LockedError(err, err.Error()), ReasonSuspended
	case errors.Is(err, ErrUnauthorized):
		out, reason = apperrors.ForbiddenError(err, err.Error()), ReasonUnauthorized
	case errors.Is(err, ErrZeroAmount):
		out, reason = apperrors.BadRequestError(err, err.Error()), ReasonZeroAmount
	case errors.Is(err, ErrReentrantCall):
		out, reason = apperrors.ConflictError(err, err.Error()), ReasonReentrantCall
	case errors.Is(err, ledger.ErrInvalidFeed):
		out, reason = apperrors.BadRequestError(err, err.Error()), ReasonInvalidFeed
	case errors.Is(err, ledger.ErrTokenNotSupported):
		out, reason = apperrors.BadRequestError(err, err.Error()), ReasonTokenNotSupported
	case errors.Is(err, ledger.ErrExceedsBankCap):
		out, reason = apperrors.ConflictError(err, err.Error()), ReasonExceedsBankCap
	case errors.Is(err, ErrExceedsWithdrawCap):
		out, reason = apperrors.BadRequestError(err, err.Error()), ReasonExceedsWithdrawCap
	case errors.Is(err, ledger.ErrInsufficientBalance):
		out, reason = apperrors.ConflictError(err, err.Error()), ReasonInsufficientBalance
	case errors.Is(err, ledger.ErrBalanceOverflow):
		out, reason = apperrors.BadRequestError(err, err.Error()), ReasonBalanceOverflow
	case errors.Is(err, valuation.ErrOverflow):
		out, reason = apperrors.BadRequestError(err, "valuation overflow"), ReasonValuationOverflow
	case errors.Is(err, oracle.ErrPriceStaleOrNegative):
		out, reason = apperrors.DependencyError(err, "price stale or negative"), ReasonPriceStaleOrNegative
	case errors.Is(err, oracle.ErrFeedUnavailable):
		out, reason = apperrors.DependencyError(err, "price feed unavailable"), ReasonPriceFeedUnavailable
	case errors.Is(err, gateway.ErrTransferPending):
		out, reason = apperrors.DependencyError(err, "transfer submitted but not confirmed"), ReasonTransferPending
	case errors.Is(err, gateway.ErrTransferFailed):
		out, reason = apperrors.DependencyError(err, "transfer failed"), ReasonTransferFailed
	case errors.Is(err, ErrAssetMetadata):
		out, reason = apperrors.DependencyError(err, "asset metadata unavailable"), ReasonAssetMetadata
	case errors.Is(err, ledger.ErrCapacityUnderflow):
		out, reason = apperrors.GeneralError(err), ReasonCapacityUnderflow
	case errors.Is(err, ErrNotStarted), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		out, reason = apperrors.CanceledError(err, "operation canceled before it started"), ReasonNotStarted
	default:
		return apperrors.GeneralError(err)
	}
	return apperrors.WithReason(out, reason)
}

// transferFailed makes sure a gateway error matches gateway.ErrTransferFailed.
func transferFailed(err error) error {
	if errors.Is(err, gateway.ErrTransferFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", gateway.ErrTransferFailed, err)
}
