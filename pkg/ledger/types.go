package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is an order direction.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

// TokenType selects one of the two outcome tokens of a binary market.
// YES and NO trade in separate books; they never cross.
type TokenType string

const (
	Yes TokenType = "yes"
	No  TokenType = "no"
)

func (t TokenType) Valid() bool { return t == Yes || t == No }

// Opposite returns the paired outcome token.
func (t TokenType) Opposite() TokenType {
	if t == Yes {
		return No
	}
	return Yes
}

// Outcome is a market's terminal resolution. Empty until settlement.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

func (o Outcome) Valid() bool { return o == OutcomeYes || o == OutcomeNo }

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderPartial   OrderStatus = "partial"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
)

// Resting reports whether an order still participates in the book.
func (s OrderStatus) Resting() bool { return s == OrderOpen || s == OrderPartial }

// Market is a binary prediction market. Created once, mutated only by
// settlement; NextSeq is the per-market event counter that orders and
// trades draw arrival sequence numbers from.
type Market struct {
	ID             string    `json:"id"`
	Question       string    `json:"question"`
	Creator        string    `json:"creator"`
	ResolutionDate time.Time `json:"resolutionDate"`
	Outcome        Outcome   `json:"outcome,omitempty"`
	Settled        bool      `json:"settled"`
	NextSeq        int64     `json:"nextSeq"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Order is a signed limit order for one outcome token.
type Order struct {
	ID             string          `json:"id"`
	MarketID       string          `json:"marketId"`
	UserID         string          `json:"userId"`
	ChainID        string          `json:"chainId"`
	Side           Side            `json:"side"`
	TokenType      TokenType       `json:"tokenType"`
	Price          decimal.Decimal `json:"price"`
	Quantity       int64           `json:"quantity"`
	FilledQuantity int64           `json:"filledQuantity"`
	Status         OrderStatus     `json:"status"`
	Seq            int64           `json:"seq"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int64 { return o.Quantity - o.FilledQuantity }

// Trade records one fill between a buy and a sell order. Immutable.
type Trade struct {
	ID          string          `json:"id"`
	MarketID    string          `json:"marketId"`
	BuyOrderID  string          `json:"buyOrderId"`
	SellOrderID string          `json:"sellOrderId"`
	TokenType   TokenType       `json:"tokenType"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	TakerSide   Side            `json:"takerSide"`
	Seq         int64           `json:"seq"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Account is a user's monetary balance on one chain. DepositHeight is the
// last external block height credited; the deposit ingress drops anything
// at or below it, which makes indexer replays idempotent.
type Account struct {
	UserID        string          `json:"userId"`
	ChainID       string          `json:"chainId"`
	AvailableUSD  decimal.Decimal `json:"availableUsd"`
	DepositHeight int64           `json:"depositHeight"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Position is a user's per-market holdings: free and locked token
// inventory plus the monetary collateral backing open shorts. Exactly
// these six numeric fields; all non-negative at every commit.
type Position struct {
	MarketID string `json:"marketId"`
	UserID   string `json:"userId"`
	ChainID  string `json:"chainId"`

	YesTokens       int64 `json:"yesTokens"`
	NoTokens        int64 `json:"noTokens"`
	LockedYesTokens int64 `json:"lockedYesTokens"`
	LockedNoTokens  int64 `json:"lockedNoTokens"`

	LockedCollateralYes decimal.Decimal `json:"lockedCollateralYes"`
	LockedCollateralNo  decimal.Decimal `json:"lockedCollateralNo"`
}

// Tokens returns the free inventory for a token type.
func (p *Position) Tokens(t TokenType) int64 {
	if t == Yes {
		return p.YesTokens
	}
	return p.NoTokens
}

// LockedTokens returns the reserved inventory for a token type.
func (p *Position) LockedTokens(t TokenType) int64 {
	if t == Yes {
		return p.LockedYesTokens
	}
	return p.LockedNoTokens
}

// LockedCollateral returns the short-sale collateral for a token type.
func (p *Position) LockedCollateral(t TokenType) decimal.Decimal {
	if t == Yes {
		return p.LockedCollateralYes
	}
	return p.LockedCollateralNo
}

// AddTokens adjusts the free inventory for a token type.
func (p *Position) AddTokens(t TokenType, n int64) {
	if t == Yes {
		p.YesTokens += n
	} else {
		p.NoTokens += n
	}
}

// AddLockedTokens adjusts the reserved inventory for a token type.
func (p *Position) AddLockedTokens(t TokenType, n int64) {
	if t == Yes {
		p.LockedYesTokens += n
	} else {
		p.LockedNoTokens += n
	}
}

// AddLockedCollateral adjusts the short-sale collateral for a token type.
func (p *Position) AddLockedCollateral(t TokenType, amt decimal.Decimal) {
	if t == Yes {
		p.LockedCollateralYes = p.LockedCollateralYes.Add(amt)
	} else {
		p.LockedCollateralNo = p.LockedCollateralNo.Add(amt)
	}
}

// IsZero reports whether every numeric field is zero.
func (p *Position) IsZero() bool {
	return p.YesTokens == 0 && p.NoTokens == 0 &&
		p.LockedYesTokens == 0 && p.LockedNoTokens == 0 &&
		p.LockedCollateralYes.IsZero() && p.LockedCollateralNo.IsZero()
}
