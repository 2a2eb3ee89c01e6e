package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"launchpool/internal/engine"
	"launchpool/internal/model"
	"launchpool/internal/rail"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// Server exposes the trading engine over HTTP. All state lives in the engine;
// handlers only translate between JSON and domain calls.
type Server struct {
	engine *engine.Engine
	book   *rail.AddressBook
	logger *zap.Logger
}

// NewServer builds the HTTP layer. book may be nil when no payment rail is
// configured; deposit address lookups then report the rail as unavailable.
func NewServer(eng *engine.Engine, book *rail.AddressBook, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{engine: eng, book: book, logger: logger}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/pools", s.handleCreatePool)
		v1.Get("/pools", s.handleListPools)
		v1.Get("/pools/{assetID}", s.handleGetPool)
		v1.Get("/pools/{assetID}/quote", s.handleQuote)
		v1.Get("/pools/{assetID}/trades", s.handleListTrades)
		v1.Post("/pools/{assetID}/graduate", s.handleGraduate)
		v1.Post("/trades", s.handleTrade)
		v1.Get("/balances/{principal}", s.handleBalance)
		v1.Get("/deposits/{principal}/address", s.handleDepositAddress)
		v1.Post("/withdrawals", s.handleWithdraw)
	})

	return r
}

type createPoolRequest struct {
	Creator       string `json:"creator"`
	AssetID       string `json:"asset_id"`
	InitialICP    uint64 `json:"initial_icp"`
	InitialAssets uint64 `json:"initial_assets"`
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if !s.decode(w, r, &req) {
		return
	}
	pool, err := s.engine.CreatePool(req.Creator, req.AssetID, req.InitialICP, req.InitialAssets)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, pool)
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	pools := s.engine.ListPools(offset, limit)
	s.writeJSON(w, http.StatusOK, map[string]any{"pools": pools})
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.engine.GetPool(chi.URLParam(r, "assetID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pool)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	direction, err := model.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		s.writeBadRequest(w, "direction must be buy or sell")
		return
	}
	amount, err := queryUint64(r, "amount")
	if err != nil {
		s.writeBadRequest(w, "amount must be a positive integer")
		return
	}
	var slippage uint64
	if raw := r.URL.Query().Get("slippage_bps"); raw != "" {
		slippage, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeBadRequest(w, "slippage_bps must be a non-negative integer")
			return
		}
	}

	quote, err := s.engine.GetQuote(chi.URLParam(r, "assetID"), direction, amount, slippage)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	assetID := chi.URLParam(r, "assetID")
	if _, err := s.engine.GetPool(assetID); err != nil {
		s.writeError(w, err)
		return
	}
	trades := s.engine.ListTrades(assetID, limit)
	s.writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func (s *Server) handleGraduate(w http.ResponseWriter, r *http.Request) {
	pool, err := s.engine.FinalizeGraduation(chi.URLParam(r, "assetID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pool)
}

type tradeRequest struct {
	Principal  string `json:"principal"`
	AssetID    string `json:"asset_id"`
	Direction  string `json:"direction"`
	Amount     uint64 `json:"amount"`
	MinimumOut uint64 `json:"minimum_out"`
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if !s.decode(w, r, &req) {
		return
	}
	direction, err := model.ParseDirection(req.Direction)
	if err != nil {
		s.writeBadRequest(w, "direction must be buy or sell")
		return
	}
	trade, err := s.engine.ExecuteTrade(req.Principal, req.AssetID, direction, req.Amount, req.MinimumOut)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, trade)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")
	balance := s.engine.Balance(principal)

	if asset := r.URL.Query().Get("asset"); asset != "" {
		funds := balance.Assets[asset]
		s.writeJSON(w, http.StatusOK, map[string]any{
			"principal": principal,
			"asset_id":  asset,
			"available": funds.Available,
			"locked":    funds.Locked,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, balance)
}

func (s *Server) handleDepositAddress(w http.ResponseWriter, r *http.Request) {
	if s.book == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: errorDetail{
			Code:    "rail_unavailable",
			Message: "no payment rail configured",
		}})
		return
	}
	principal := chi.URLParam(r, "principal")
	addr := s.book.Assign(principal)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"principal": principal,
		"address":   addr.Hex(),
	})
}

type withdrawRequest struct {
	Principal   string `json:"principal"`
	AssetID     string `json:"asset_id"`
	Amount      uint64 `json:"amount"`
	Destination string `json:"destination"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Destination == "" {
		s.writeBadRequest(w, "destination is required")
		return
	}
	ref, err := s.engine.Withdraw(r.Context(), req.Principal, req.AssetID, req.Amount, req.Destination)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, ref)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeBadRequest(w, "malformed request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: err.Error()}})
}

func (s *Server) writeBadRequest(w http.ResponseWriter, message string) {
	s.writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Code: "bad_request", Message: message}})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func queryUint64(r *http.Request, key string) (uint64, error) {
	return strconv.ParseUint(r.URL.Query().Get(key), 10, 64)
}
