package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/BakaOtaku/robet-ai/params"
	"github.com/BakaOtaku/robet-ai/pkg/exchange"
	"github.com/BakaOtaku/robet-ai/pkg/ledger"
)

// Server is the REST + WebSocket transport adapter over the exchange.
type Server struct {
	exchange *exchange.Exchange
	cfg      params.Config
	router   *mux.Router
	hub      *Hub
	log      *zap.SugaredLogger
}

func NewServer(x *exchange.Exchange, cfg params.Config, log *zap.SugaredLogger) *Server {
	s := &Server{
		exchange: x,
		cfg:      cfg,
		router:   mux.NewRouter(),
		hub:      NewHub(log),
		log:      log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Market lifecycle
	api.HandleFunc("/markets", s.requireAdmin(s.handleCreateMarket)).Methods("POST")
	api.HandleFunc("/markets", s.handleListMarkets).Methods("GET")
	api.HandleFunc("/markets/{id}", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/markets/{id}/settle", s.requireAdmin(s.handleSettleMarket)).Methods("POST")

	// Market data
	api.HandleFunc("/markets/{id}/book", s.handleGetBook).Methods("GET")
	api.HandleFunc("/markets/{id}/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/markets/{id}/trades", s.handleGetTrades).Methods("GET")

	// Trading
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")

	// Indexer ingress
	api.HandleFunc("/deposits", s.requireAdmin(s.handleDeposit)).Methods("POST")

	// Balances
	api.HandleFunc("/balances/{chain}/{user}", s.handleGetBalance).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Start runs the hub and serves HTTP on addr. Blocks.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})

	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// requireAdmin gates mutating admin endpoints behind an HS256 bearer
// token with role=admin. An empty secret disables the endpoints rather
// than leaving them open.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.API.AdminSecret == "" {
			respondError(w, http.StatusServiceUnavailable, exchange.CodeUnavailable, "admin endpoints disabled: no secret configured")
			return
		}
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			respondError(w, http.StatusUnauthorized, exchange.CodeUnauthorized, "bearer token required")
			return
		}
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(s.cfg.API.AdminSecret), nil
		})
		if err != nil {
			respondError(w, http.StatusUnauthorized, exchange.CodeUnauthorized, "invalid token")
			return
		}
		if role, _ := claims["role"].(string); role != "admin" {
			respondError(w, http.StatusUnauthorized, exchange.CodeUnauthorized, "admin role required")
			return
		}
		next(w, r)
	}
}

// ==============================
// Handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, exchange.CodeMissingField, "invalid JSON body")
		return
	}
	resolution, err := time.Parse(time.RFC3339, req.ResolutionDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, exchange.CodeMissingField, "resolutionDate must be RFC 3339")
		return
	}
	m, err := s.exchange.CreateMarket(r.Context(), req.Question, req.Creator, resolution)
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	respondJSON(w, MarketResponse{Success: true, Market: marketInfo(m)})
}

func (s *Server) handleListMarkets(w http.ResponseWriter, _ *http.Request) {
	markets, err := s.exchange.Markets()
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	out := make([]MarketInfo, len(markets))
	for i, m := range markets {
		out[i] = marketInfo(m)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.exchange.Market(mux.Vars(r)["id"])
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	respondJSON(w, MarketResponse{Success: true, Market: marketInfo(m)})
}

func (s *Server) handleSettleMarket(w http.ResponseWriter, r *http.Request) {
	var req SettleMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, exchange.CodeMissingField, "invalid JSON body")
		return
	}
	if err := s.exchange.Settle(r.Context(), mux.Vars(r)["id"], ledger.Outcome(req.Outcome)); err != nil {
		s.respondExchangeError(w, err)
		return
	}
	respondJSON(w, OKResponse{Success: true})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = string(ledger.Yes)
	}
	snap, err := s.exchange.Book(mux.Vars(r)["id"], ledger.TokenType(token))
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	respondJSON(w, bookSnapshot(snap))
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.exchange.OpenOrders(mux.Vars(r)["id"])
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	out := make([]OrderInfo, len(orders))
	for i, o := range orders {
		out[i] = orderInfo(o)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.exchange.Trades(mux.Vars(r)["id"], ledger.TokenType(r.URL.Query().Get("token")))
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	out := make([]TradeInfo, len(trades))
	for i, tr := range trades {
		out[i] = tradeInfo(tr)
	}
	respondJSON(w, out)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, exchange.CodeMissingField, "invalid JSON body")
		return
	}
	order, err := s.exchange.SubmitOrder(r.Context(), exchange.OrderRequest{
		MarketID:         req.MarketID,
		UserID:           req.UserID,
		ChainID:          req.ChainID,
		WalletAddress:    req.WalletAddress,
		Side:             ledger.Side(req.Side),
		TokenType:        ledger.TokenType(req.TokenType),
		Price:            req.Price,
		Quantity:         req.Quantity,
		Signature:        req.Signature,
		SessionPublicKey: req.SessionPublicKey,
		SessionAddress:   req.SessionAddress,
	})
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	respondJSON(w, SubmitOrderResponse{Success: true, Order: orderInfo(order)})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, exchange.CodeMissingField, "invalid JSON body")
		return
	}
	amount, err := decimal.NewFromString(req.AmountUSD)
	if err != nil {
		respondError(w, http.StatusBadRequest, exchange.CodeMissingField, "amountUsd must be a decimal string")
		return
	}
	if err := s.exchange.CreditDeposit(r.Context(), req.UserID, req.ChainID, amount, req.TxRef, req.BlockHeight); err != nil {
		s.respondExchangeError(w, err)
		return
	}
	respondJSON(w, OKResponse{Success: true})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bal, err := s.exchange.Balance(vars["chain"], vars["user"])
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	positions := make([]PositionInfo, len(bal.Positions))
	for i, p := range bal.Positions {
		positions[i] = PositionInfo{
			MarketID:            p.MarketID,
			YesTokens:           p.YesTokens,
			NoTokens:            p.NoTokens,
			LockedYesTokens:     p.LockedYesTokens,
			LockedNoTokens:      p.LockedNoTokens,
			LockedCollateralYes: p.LockedCollateralYes.String(),
			LockedCollateralNo:  p.LockedCollateralNo.String(),
		}
	}
	respondJSON(w, BalanceResponse{
		Success:      true,
		UserID:       bal.Account.UserID,
		ChainID:      bal.Account.ChainID,
		AvailableUSD: bal.Account.AvailableUSD.String(),
		Positions:    positions,
	})
}

// ==============================
// Broadcast hooks (wired in cmd/robetd)
// ==============================

// BroadcastBook pushes the current book for both token types of a
// market to its subscribers.
func (s *Server) BroadcastBook(marketID string) {
	for _, token := range []ledger.TokenType{ledger.Yes, ledger.No} {
		snap, err := s.exchange.Book(marketID, token)
		if err != nil {
			return
		}
		s.hub.BroadcastToChannel("book:"+marketID, BookUpdate{
			Type:      "book",
			MarketID:  marketID,
			TokenType: string(token),
			Bids:      priceLevels(snap.Bids),
			Asks:      priceLevels(snap.Asks),
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

// BroadcastTrade pushes one executed trade to the market's subscribers.
func (s *Server) BroadcastTrade(tr *ledger.Trade) {
	s.hub.BroadcastToChannel("trades:"+tr.MarketID, TradeUpdate{
		Type:      "trade",
		MarketID:  tr.MarketID,
		TokenType: string(tr.TokenType),
		Price:     tr.Price.String(),
		Quantity:  tr.Quantity,
		TakerSide: string(tr.TakerSide),
		Timestamp: tr.CreatedAt.UnixMilli(),
	})
}

// BroadcastSettlement announces a market's terminal outcome.
func (s *Server) BroadcastSettlement(marketID string, outcome ledger.Outcome) {
	s.hub.BroadcastToChannel("book:"+marketID, SettlementUpdate{
		Type:      "settlement",
		MarketID:  marketID,
		Outcome:   string(outcome),
		Timestamp: time.Now().UnixMilli(),
	})
}

// ==============================
// Helpers
// ==============================

func marketInfo(m *ledger.Market) MarketInfo {
	return MarketInfo{
		ID:             m.ID,
		Question:       m.Question,
		Creator:        m.Creator,
		ResolutionDate: m.ResolutionDate.Format(time.RFC3339),
		Outcome:        string(m.Outcome),
		Settled:        m.Settled,
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
	}
}

func orderInfo(o *ledger.Order) OrderInfo {
	return OrderInfo{
		ID:             o.ID,
		MarketID:       o.MarketID,
		UserID:         o.UserID,
		ChainID:        o.ChainID,
		Side:           string(o.Side),
		TokenType:      string(o.TokenType),
		Price:          o.Price.String(),
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		Status:         string(o.Status),
		CreatedAt:      o.CreatedAt.Format(time.RFC3339),
	}
}

func tradeInfo(tr *ledger.Trade) TradeInfo {
	return TradeInfo{
		ID:          tr.ID,
		MarketID:    tr.MarketID,
		BuyOrderID:  tr.BuyOrderID,
		SellOrderID: tr.SellOrderID,
		TokenType:   string(tr.TokenType),
		Price:       tr.Price.String(),
		Quantity:    tr.Quantity,
		TakerSide:   string(tr.TakerSide),
		Timestamp:   tr.CreatedAt.UnixMilli(),
	}
}

func priceLevels(levels []exchange.BookLevel) []PriceLevel {
	out := make([]PriceLevel, len(levels))
	for i, lvl := range levels {
		out[i] = PriceLevel{Price: lvl.Price.String(), Size: lvl.Quantity}
	}
	return out
}

func bookSnapshot(snap *exchange.BookSnapshot) BookSnapshot {
	out := BookSnapshot{
		MarketID:  snap.MarketID,
		TokenType: string(snap.TokenType),
		Bids:      priceLevels(snap.Bids),
		Asks:      priceLevels(snap.Asks),
		Timestamp: time.Now().UnixMilli(),
	}
	if snap.BestBid != nil {
		v := snap.BestBid.String()
		out.BestBid = &v
	}
	if snap.BestAsk != nil {
		v := snap.BestAsk.String()
		out.BestAsk = &v
	}
	if snap.Spread != nil {
		v := snap.Spread.String()
		out.Spread = &v
	}
	return out
}

// statusFor maps taxonomy codes to HTTP status codes.
func statusFor(code exchange.Code) int {
	switch code {
	case exchange.CodeInvalidPrice, exchange.CodeInvalidQuantity, exchange.CodeInvalidChain,
		exchange.CodeMalformedSignature, exchange.CodeMissingField, exchange.CodeUnsupportedChain:
		return http.StatusBadRequest
	case exchange.CodeUnauthorized:
		return http.StatusUnauthorized
	case exchange.CodeUserNotFound, exchange.CodeMarketNotFound:
		return http.StatusNotFound
	case exchange.CodeMarketClosed, exchange.CodeAlreadySettled:
		return http.StatusConflict
	case exchange.CodeInsufficientFunds, exchange.CodeInsufficientTokens:
		return http.StatusPaymentRequired
	case exchange.CodeUnavailable:
		return http.StatusServiceUnavailable
	case exchange.CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondExchangeError(w http.ResponseWriter, err error) {
	code := exchange.CodeOf(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		s.log.Errorw("internal_error", "err", err)
	}
	respondError(w, status, code, err.Error())
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code exchange.Code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Success: false,
		Error:   string(code),
		Message: message,
	})
}
