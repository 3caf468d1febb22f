package vault

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/custody-vault/pkg/app/errors"
	apphttp "github.com/chainsafe/custody-vault/pkg/app/http"
	"github.com/chainsafe/custody-vault/pkg/asset"
	"github.com/chainsafe/custody-vault/pkg/auth"
	"github.com/chainsafe/custody-vault/pkg/valuation"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// NativeDepositRequest credits value attached by the inbound transaction TxHash.
type NativeDepositRequest struct {
	Amount string `json:"amount"`
	TxHash string `json:"tx_hash,omitempty"`
}

// AssetRequest deposits or withdraws a registered asset.
type AssetRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// NativeWithdrawRequest withdraws native value.
type NativeWithdrawRequest struct {
	Amount string `json:"amount"`
}

// SetFeedRequest binds the asset in the path to Feed.
type SetFeedRequest struct {
	Feed string `json:"feed"`
}

// SetPausedRequest suspends or resumes the vault.
type SetPausedRequest struct {
	Paused bool `json:"paused"`
}

// ReceiptResponse is returned by the four movement endpoints.
type ReceiptResponse struct {
	Asset       string `json:"asset"`
	Holder      string `json:"holder"`
	Amount      string `json:"amount"`
	USD6        string `json:"usd6"`
	USD         string `json:"usd"`
	Balance     string `json:"balance"`
	Deposits    uint64 `json:"deposit_count"`
	Withdrawals uint64 `json:"withdraw_count"`
	// Pending marks a withdrawal whose payout is not confirmed yet.
	Pending     bool   `json:"pending,omitempty"`
	TransferRef string `json:"transfer_ref,omitempty"`
}

// PositionResponse is returned by GET /vaults/{asset}/{holder}.
type PositionResponse struct {
	Asset       string `json:"asset"`
	Holder      string `json:"holder"`
	Balance     string `json:"balance"`
	Deposits    uint64 `json:"deposit_count"`
	Withdrawals uint64 `json:"withdraw_count"`
}

// CapacityResponse is returned by GET /capacity.
type CapacityResponse struct {
	BankCapUSD6     string `json:"bank_cap_usd6"`
	UsedUSD6        string `json:"used_usd6"`
	RemainingUSD6   string `json:"remaining_usd6"`
	WithdrawCapUSD6 string `json:"withdraw_cap_usd6"`
	RemainingUSD    string `json:"remaining_usd"`
	Paused          bool   `json:"paused"`
}

// QuoteResponse is returned by GET /quote/{asset}.
type QuoteResponse struct {
	Asset  string `json:"asset"`
	Feed   string `json:"feed"`
	Amount string `json:"amount"`
	USD6   string `json:"usd6"`
	USD    string `json:"usd"`
}

// EventResponse is one entry of GET /events.
type EventResponse struct {
	ID     string    `json:"id"`
	Kind   EventKind `json:"kind"`
	Asset  string    `json:"asset,omitempty"`
	Holder string    `json:"holder,omitempty"`
	Amount string    `json:"amount,omitempty"`
	USD6   string    `json:"usd6,omitempty"`
	Feed   string    `json:"feed,omitempty"`
	Admin  string    `json:"admin,omitempty"`
	Paused *bool     `json:"paused,omitempty"`
	At     time.Time `json:"at"`
}

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service Service
	events  EventLister
	logger  *zap.Logger
}

// RegisterRoutes registers the vault endpoints on r. events may be nil, in
// which case GET /events is not served.
func RegisterRoutes(r chi.Router, service Service, mw *auth.Middleware, events EventLister, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		events:  events,
		logger:  logger,
	}

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireSignature)
		r.Post("/deposits/native", apphttp.HandleError(h.depositNative))
		r.Post("/deposits/asset", apphttp.HandleError(h.depositAsset))
		r.Post("/withdrawals/native", apphttp.HandleError(h.withdrawNative))
		r.Post("/withdrawals/asset", apphttp.HandleError(h.withdrawAsset))
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireSignatureOrBearer)
		r.Put("/admin/feeds/{asset}", apphttp.HandleError(h.setFeed))
		r.Put("/admin/paused", apphttp.HandleError(h.setPaused))
	})

	r.Get("/vaults/{asset}/{holder}", apphttp.HandleError(h.getVault))
	r.Get("/capacity", apphttp.HandleError(h.capacity))
	r.Get("/quote/{asset}", apphttp.HandleError(h.quote))
	if events != nil {
		r.Get("/events", apphttp.HandleError(h.listEvents))
	}
}

func (h *HTTP) depositNative(w http.ResponseWriter, r *http.Request) error {
	var req NativeDepositRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	holder, err := principal(r)
	if err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}

	receipt, err := h.service.DepositNative(r.Context(), holder, amount, req.TxHash)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, toReceiptResponse(receipt))
	return nil
}

func (h *HTTP) depositAsset(w http.ResponseWriter, r *http.Request) error {
	var req AssetRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	holder, err := principal(r)
	if err != nil {
		return err
	}
	id, err := parseAsset(req.Asset)
	if err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}

	receipt, err := h.service.DepositAsset(r.Context(), holder, id, amount)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, toReceiptResponse(receipt))
	return nil
}

func (h *HTTP) withdrawNative(w http.ResponseWriter, r *http.Request) error {
	var req NativeWithdrawRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	holder, err := principal(r)
	if err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}

	receipt, err := h.service.WithdrawNative(r.Context(), holder, amount)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, toReceiptResponse(receipt))
	return nil
}

func (h *HTTP) withdrawAsset(w http.ResponseWriter, r *http.Request) error {
	var req AssetRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	holder, err := principal(r)
	if err != nil {
		return err
	}
	id, err := parseAsset(req.Asset)
	if err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}

	receipt, err := h.service.WithdrawAsset(r.Context(), holder, id, amount)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, toReceiptResponse(receipt))
	return nil
}

func (h *HTTP) setFeed(w http.ResponseWriter, r *http.Request) error {
	var req SetFeedRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	admin, err := principal(r)
	if err != nil {
		return err
	}
	id, err := parseAsset(chi.URLParam(r, "asset"))
	if err != nil {
		return err
	}
	feed, err := parseAddress(req.Feed, "feed")
	if err != nil {
		return err
	}

	if err := h.service.SetFeed(r.Context(), admin, id, feed); err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, map[string]string{"asset": id.Hex(), "feed": feed.Hex()})
	return nil
}

func (h *HTTP) setPaused(w http.ResponseWriter, r *http.Request) error {
	var req SetPausedRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	admin, err := principal(r)
	if err != nil {
		return err
	}

	if err := h.service.SetPaused(r.Context(), admin, req.Paused); err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
	return nil
}

func (h *HTTP) getVault(w http.ResponseWriter, r *http.Request) error {
	id, err := parseAsset(chi.URLParam(r, "asset"))
	if err != nil {
		return err
	}
	holder, err := parseAddress(chi.URLParam(r, "holder"), "holder")
	if err != nil {
		return err
	}

	pos := h.service.GetVault(r.Context(), id, holder)
	apphttp.WriteJSON(w, http.StatusOK, &PositionResponse{
		Asset:       id.Hex(),
		Holder:      holder.Hex(),
		Balance:     pos.Balance.Dec(),
		Deposits:    pos.Deposits,
		Withdrawals: pos.Withdrawals,
	})
	return nil
}

func (h *HTTP) capacity(w http.ResponseWriter, r *http.Request) error {
	remaining := h.service.RemainingCapacity(r.Context())
	apphttp.WriteJSON(w, http.StatusOK, &CapacityResponse{
		BankCapUSD6:     h.service.BankCap().Dec(),
		UsedUSD6:        h.service.UsedCapacity(r.Context()).Dec(),
		RemainingUSD6:   remaining.Dec(),
		WithdrawCapUSD6: h.service.WithdrawCap().Dec(),
		RemainingUSD:    valuation.FormatUSD(remaining),
		Paused:          h.service.Paused(),
	})
	return nil
}

func (h *HTTP) quote(w http.ResponseWriter, r *http.Request) error {
	id, err := parseAsset(chi.URLParam(r, "asset"))
	if err != nil {
		return err
	}
	amount, err := parseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		return err
	}

	feed, err := h.service.FeedOf(r.Context(), id)
	if err != nil {
		return err
	}
	usd6, err := h.service.QuoteValuation(r.Context(), id, amount)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, &QuoteResponse{
		Asset:  id.Hex(),
		Feed:   feed.Hex(),
		Amount: amount.Dec(),
		USD6:   usd6.Dec(),
		USD:    valuation.FormatUSD(usd6),
	})
	return nil
}

func (h *HTTP) listEvents(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	filter := EventFilter{Kind: EventKind(q.Get("kind")), Limit: defaultEventLimit}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return apperrors.BadRequestError(err, "invalid limit")
		}
		filter.Limit = min(limit, maxEventLimit)
	}
	if v := q.Get("asset"); v != "" {
		id, err := parseAsset(v)
		if err != nil {
			return err
		}
		filter.Asset = &id
	}
	if v := q.Get("holder"); v != "" {
		holder, err := parseAddress(v, "holder")
		if err != nil {
			return err
		}
		filter.Holder = &holder
	}

	records, err := h.events.ListEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list vault events", zap.Error(err))
		return apperrors.DependencyError(err, "event journal unavailable")
	}

	out := make([]EventResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toEventResponse(rec))
	}
	apphttp.WriteJSON(w, http.StatusOK, out)
	return nil
}

// decode parses the JSON body into dst. Unknown fields and trailing data are
// rejected so a body signed for one request shape cannot pass as another.
func (h *HTTP) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if dec.More() {
		return apperrors.BadRequestError(nil, "unexpected data after JSON body")
	}
	return nil
}

func principal(r *http.Request) (common.Address, error) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return common.Address{}, apperrors.UnAuthorizedError(nil, "unauthenticated")
	}
	return p, nil
}

func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, apperrors.BadRequestError(nil, "amount is required")
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "invalid amount")
	}
	return v, nil
}

func parseAsset(s string) (common.Address, error) {
	if strings.EqualFold(s, "native") {
		return asset.Native, nil
	}
	return parseAddress(s, "asset")
}

func parseAddress(s, field string) (common.Address, error) {
	addr, err := auth.ParseAddress(s)
	if err != nil {
		return common.Address{}, apperrors.BadRequestError(err, "invalid "+field)
	}
	return addr, nil
}

func toReceiptResponse(r *Receipt) *ReceiptResponse {
	return &ReceiptResponse{
		Asset:       r.Asset.Hex(),
		Holder:      r.Holder.Hex(),
		Amount:      r.Amount.Dec(),
		USD6:        r.USD6.Dec(),
		USD:         valuation.FormatUSD(r.USD6),
		Balance:     r.Position.Balance.Dec(),
		Deposits:    r.Position.Deposits,
		Withdrawals: r.Position.Withdrawals,
		Pending:     r.Pending,
		TransferRef: r.TransferRef,
	}
}

func toEventResponse(rec EventRecord) EventResponse {
	out := EventResponse{ID: rec.ID, Kind: rec.Kind, At: rec.At}
	switch rec.Kind {
	case EventDeposited, EventWithdrawn:
		out.Asset = rec.Asset.Hex()
		out.Holder = rec.Holder.Hex()
		out.Amount = rec.Amount.Dec()
		out.USD6 = rec.USD6.Dec()
	case EventFeedSet:
		out.Asset = rec.Asset.Hex()
		out.Feed = rec.Feed.Hex()
	case EventPausedChanged:
		paused := rec.Paused
		out.Admin = rec.Admin.Hex()
		out.Paused = &paused
	}
	return out
}
