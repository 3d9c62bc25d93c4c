package api

// Request and response DTOs for the REST endpoints and WebSocket
// messages. Prices and USD amounts travel as decimal strings; the order
// price string in particular must reach the exchange verbatim for
// signature reconstruction.

// ==============================
// REST Request Types
// ==============================

// CreateMarketRequest is the payload for POST /api/v1/markets (admin).
type CreateMarketRequest struct {
	Question       string `json:"question"`
	Creator        string `json:"creator"`
	ResolutionDate string `json:"resolutionDate"` // RFC 3339
}

// SubmitOrderRequest is the payload for POST /api/v1/orders.
type SubmitOrderRequest struct {
	MarketID      string `json:"marketId"`
	UserID        string `json:"userId"`
	ChainID       string `json:"chainId"`
	WalletAddress string `json:"walletAddress"`
	Side          string `json:"side"`      // "buy" | "sell"
	TokenType     string `json:"tokenType"` // "yes" | "no"
	Price         string `json:"price"`     // decimal in [0,1], passed through verbatim
	Quantity      int64  `json:"quantity"`

	Signature        string `json:"signature"`
	SessionPublicKey string `json:"sessionPublicKey,omitempty"` // adr36 only
	SessionAddress   string `json:"sessionAddress,omitempty"`   // adr36 only
}

// SettleMarketRequest is the payload for POST /api/v1/markets/{id}/settle (admin).
type SettleMarketRequest struct {
	Outcome string `json:"outcome"` // "yes" | "no"
}

// DepositRequest is the payload for POST /api/v1/deposits (admin), the
// ingress the chain indexer calls.
type DepositRequest struct {
	UserID      string `json:"userId"`
	ChainID     string `json:"chainId"`
	AmountUSD   string `json:"amountUsd"`
	TxRef       string `json:"txRef"`
	BlockHeight int64  `json:"blockHeight"`
}

// ==============================
// REST Response Types
// ==============================

// MarketInfo is a market's public view.
type MarketInfo struct {
	ID             string `json:"id"`
	Question       string `json:"question"`
	Creator        string `json:"creator"`
	ResolutionDate string `json:"resolutionDate"`
	Outcome        string `json:"outcome,omitempty"`
	Settled        bool   `json:"settled"`
	CreatedAt      string `json:"createdAt"`
}

// OrderInfo is an order's public view.
type OrderInfo struct {
	ID             string `json:"id"`
	MarketID       string `json:"marketId"`
	UserID         string `json:"userId"`
	ChainID        string `json:"chainId"`
	Side           string `json:"side"`
	TokenType      string `json:"tokenType"`
	Price          string `json:"price"`
	Quantity       int64  `json:"quantity"`
	FilledQuantity int64  `json:"filledQuantity"`
	Status         string `json:"status"`
	CreatedAt      string `json:"createdAt"`
}

// TradeInfo is a trade's public view.
type TradeInfo struct {
	ID          string `json:"id"`
	MarketID    string `json:"marketId"`
	BuyOrderID  string `json:"buyOrderId"`
	SellOrderID string `json:"sellOrderId"`
	TokenType   string `json:"tokenType"`
	Price       string `json:"price"`
	Quantity    int64  `json:"quantity"`
	TakerSide   string `json:"takerSide"`
	Timestamp   int64  `json:"timestamp"` // Unix milliseconds
}

// PriceLevel is one aggregated [price, size] book level.
type PriceLevel struct {
	Price string `json:"price"`
	Size  int64  `json:"size"`
}

// BookSnapshot is the aggregated book for one token type.
type BookSnapshot struct {
	MarketID  string       `json:"marketId"`
	TokenType string       `json:"tokenType"`
	Bids      []PriceLevel `json:"bids"` // sorted high to low
	Asks      []PriceLevel `json:"asks"` // sorted low to high
	BestBid   *string      `json:"bestBid"`
	BestAsk   *string      `json:"bestAsk"`
	Spread    *string      `json:"spread"`
	Timestamp int64        `json:"timestamp"`
}

// PositionInfo is a user's per-market holdings view.
type PositionInfo struct {
	MarketID            string `json:"marketId"`
	YesTokens           int64  `json:"yesTokens"`
	NoTokens            int64  `json:"noTokens"`
	LockedYesTokens     int64  `json:"lockedYesTokens"`
	LockedNoTokens      int64  `json:"lockedNoTokens"`
	LockedCollateralYes string `json:"lockedCollateralYes"`
	LockedCollateralNo  string `json:"lockedCollateralNo"`
}

// BalanceResponse is the account view with all market positions.
type BalanceResponse struct {
	Success      bool           `json:"success"`
	UserID       string         `json:"userId"`
	ChainID      string         `json:"chainId"`
	AvailableUSD string         `json:"availableUsd"`
	Positions    []PositionInfo `json:"positions"`
}

// SubmitOrderResponse carries the persisted order and its post-matching
// status.
type SubmitOrderResponse struct {
	Success bool      `json:"success"`
	Order   OrderInfo `json:"order"`
}

// MarketResponse wraps a single market.
type MarketResponse struct {
	Success bool       `json:"success"`
	Market  MarketInfo `json:"market"`
}

// OKResponse is the bare success envelope.
type OKResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`   // taxonomy enum name
	Message string `json:"message"` // human-readable detail
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by clients to manage channel subscriptions.
// Channels: "book:<marketId>", "trades:<marketId>".
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// BookUpdate is broadcast after every matching pass and settlement.
type BookUpdate struct {
	Type      string       `json:"type"` // "book"
	MarketID  string       `json:"marketId"`
	TokenType string       `json:"tokenType"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

// TradeUpdate is broadcast when a trade executes.
type TradeUpdate struct {
	Type      string `json:"type"` // "trade"
	MarketID  string `json:"marketId"`
	TokenType string `json:"tokenType"`
	Price     string `json:"price"`
	Quantity  int64  `json:"quantity"`
	TakerSide string `json:"takerSide"`
	Timestamp int64  `json:"timestamp"`
}

// SettlementUpdate is broadcast once when a market settles.
type SettlementUpdate struct {
	Type      string `json:"type"` // "settlement"
	MarketID  string `json:"marketId"`
	Outcome   string `json:"outcome"`
	Timestamp int64  `json:"timestamp"`
}
