package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"curvemarket/config"
	"curvemarket/native/common"
	"curvemarket/native/feeshare"
	"curvemarket/native/market"
	"curvemarket/native/paytoken"
	"curvemarket/native/position"
	"curvemarket/native/token"
)

type server struct {
	engine *market.Engine
	log    *slog.Logger
}

func newRouter(s *server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/tokens", s.handleCreateToken)
		r.Post("/buy", s.handleBuy)
		r.Post("/sell", s.handleSell)
		r.Post("/mortgage/new", s.handleMortgageNew)
		r.Post("/mortgage/add", s.handleMortgageAdd)
		r.Post("/multiply/new", s.handleMultiplyNew)
		r.Post("/multiply/add", s.handleMultiplyAdd)
		r.Post("/redeem", s.handleRedeem)
		r.Post("/cash", s.handleCash)
		r.Post("/forcecash", s.handleForceCash)
		r.Post("/split", s.handleSplit)
		r.Post("/approve", s.handleApprove)

		r.Get("/tokens/{tid}/supply", s.handleSupply)
		r.Get("/tokens/{tid}/balance/{addr}", s.handleBalance)
		r.Get("/positions/{id}", s.handlePosition)
		r.Get("/positions/owner/{addr}", s.handlePositionsOf)
		r.Get("/quote", s.handleQuote)
	})
	return r
}

type shareRequest struct {
	Owner   string `json:"owner"`
	Percent uint64 `json:"percent"`
}

type createTokenRequest struct {
	TID    string         `json:"tid"`
	Shares []shareRequest `json:"shares"`
}

type opRequest struct {
	Caller     string `json:"caller"`
	TID        string `json:"tid,omitempty"`
	PositionID uint64 `json:"positionId,omitempty"`
	Operator   string `json:"operator,omitempty"`
	Amount     string `json:"amount,omitempty"`
	Value      string `json:"value,omitempty"`
}

func (s *server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entries := make([]feeshare.Entry, 0, len(req.Shares))
	for _, share := range req.Shares {
		owner, err := config.ParseAddress(share.Owner)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		entries = append(entries, feeshare.Entry{Owner: owner, Percent: share.Percent})
	}
	if err := s.engine.CreateToken(req.TID, entries); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"tid": token.NormalizeTID(req.TID)})
}

func (s *server) handleBuy(w http.ResponseWriter, r *http.Request) {
	req, caller, amount, value, ok := s.decodeOp(w, r, true)
	if !ok {
		return
	}
	total, err := s.engine.Buy(caller, req.TID, amount, value)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"paid": total.String()})
}

func (s *server) handleSell(w http.ResponseWriter, r *http.Request) {
	req, caller, amount, _, ok := s.decodeOp(w, r, true)
	if !ok {
		return
	}
	payout, err := s.engine.Sell(caller, req.TID, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"payout": payout.String()})
}

func (s *server) handleMortgageNew(w http.ResponseWriter, r *http.Request) {
	req, caller, amount, _, ok := s.decodeOp(w, r, true)
	if !ok {
		return
	}
	id, payout, err := s.engine.MortgageNew(caller, req.TID, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"positionId": id, "payout": payout.String()})
}

func (s *server) handleMortgageAdd(w http.ResponseWriter, r *http.Request) {
	req, caller, amount, _, ok := s.decodeOp(w, r, true)
	if !ok {
		return
	}
	payout, err := s.engine.MortgageAdd(caller, req.PositionID, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"payout": payout.String()})
}

func (s *server) handleMultiplyNew(w http.ResponseWriter, r *http.Request) {
	req, caller, amount, value, ok := s.decodeOp(w, r, true)
	if !ok {
		return
	}
	id, total, err := s.engine.MultiplyNew(caller, req.TID, amount, value)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"positionId": id, "paid": total.String()})
}

func (s *server) handleMultiplyAdd(w http.ResponseWriter, r *http.Request) {
	req, caller, amount, value, ok := s.decodeOp(w, r, true)
	if !ok {
		return
	}
	total, err := s.engine.MultiplyAdd(caller, req.PositionID, amount, value)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"paid": total.String()})
}

func (s *server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	req, caller, amount, value, ok := s.decodeOp(w, r, true)
	if !ok {
		return
	}
	cost, err := s.engine.Redeem(caller, req.PositionID, amount, value)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"cost": cost.String()})
}

func (s *server) handleCash(w http.ResponseWriter, r *http.Request) {
	req, caller, amount, _, ok := s.decodeOp(w, r, true)
	if !ok {
		return
	}
	payout, err := s.engine.Cash(caller, req.PositionID, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"payout": payout.String()})
}

func (s *server) handleForceCash(w http.ResponseWriter, r *http.Request) {
	req, caller, amount, value, ok := s.decodeOp(w, r, true)
	if !ok {
		return
	}
	settled, userProfit, err := s.engine.ForceCash(caller, req.PositionID, amount, value)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"settled": settled.String(), "userProfit": userProfit})
}

func (s *server) handleSplit(w http.ResponseWriter, r *http.Request) {
	req, caller, amount, _, ok := s.decodeOp(w, r, true)
	if !ok {
		return
	}
	newID, err := s.engine.Split(caller, req.PositionID, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"positionId": newID})
}

func (s *server) handleApprove(w http.ResponseWriter, r *http.Request) {
	req, caller, _, _, ok := s.decodeOp(w, r, false)
	if !ok {
		return
	}
	var operator [20]byte
	if strings.TrimSpace(req.Operator) != "" {
		parsed, err := config.ParseAddress(req.Operator)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		operator = parsed
	}
	if err := s.engine.Approve(caller, req.PositionID, operator); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"positionId": req.PositionID})
}

func (s *server) handleSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := s.engine.TotalSupply(chi.URLParam(r, "tid"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"supply": supply.String()})
}

func (s *server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := config.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	balance, err := s.engine.BalanceOf(chi.URLParam(r, "tid"), addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"balance": balance.String()})
}

func (s *server) handlePosition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	pos, ok, err := s.engine.PositionInfo(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, position.ErrNotFound)
		return
	}
	writeJSON(w, map[string]any{
		"positionId": pos.ID,
		"owner":      "0x" + hex.EncodeToString(pos.Owner[:]),
		"tid":        pos.TID,
		"amount":     pos.Amount.String(),
	})
}

func (s *server) handlePositionsOf(w http.ResponseWriter, r *http.Request) {
	addr, err := config.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ids, err := s.engine.PositionsOf(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"positionIds": ids})
}

func (s *server) handleQuote(w http.ResponseWriter, r *http.Request) {
	base, err := parseAmount(r.URL.Query().Get("base"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	delta, err := parseAmount(r.URL.Query().Get("delta"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if base == nil {
		base = big.NewInt(0)
	}
	quote, err := s.engine.GetPayTokenAmount(base, delta)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"amount": quote.String()})
}

// decodeOp parses the shared operation request shape. The amount is required
// for settlement operations; the attached value stays nil when omitted.
func (s *server) decodeOp(w http.ResponseWriter, r *http.Request, needAmount bool) (opRequest, [20]byte, *big.Int, *big.Int, bool) {
	var req opRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return req, [20]byte{}, nil, nil, false
	}
	caller, err := config.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return req, [20]byte{}, nil, nil, false
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return req, [20]byte{}, nil, nil, false
	}
	if needAmount && amount == nil {
		writeError(w, http.StatusBadRequest, errors.New("amount required"))
		return req, [20]byte{}, nil, nil, false
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return req, [20]byte{}, nil, nil, false
	}
	return req, caller, amount, value, true
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, errors.New("invalid decimal amount " + strconv.Quote(raw))
	}
	return amount, nil
}

func writeEngineError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, market.ErrTokenUnknown), errors.Is(err, position.ErrNotFound), errors.Is(err, feeshare.ErrUnknown):
		return http.StatusNotFound
	case errors.Is(err, market.ErrAccessOwner), errors.Is(err, position.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, common.ErrModulePaused), errors.Is(err, common.ErrReentry):
		return http.StatusConflict
	case errors.Is(err, market.ErrValue),
		errors.Is(err, paytoken.ErrInsufficientBalance),
		errors.Is(err, paytoken.ErrInsufficientAllowance):
		return http.StatusPaymentRequired
	case errors.Is(err, market.ErrNilState):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
