package exchange

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/BakaOtaku/robet-ai/pkg/ledger"
)

// BookLevel aggregates resting quantity at one price.
type BookLevel struct {
	Price    decimal.Decimal
	Quantity int64
}

// BookSnapshot is the price-level aggregated book for one token type of
// a market. Best prices and spread are nil when the respective side is
// empty.
type BookSnapshot struct {
	MarketID  string
	TokenType ledger.TokenType
	Bids      []BookLevel // sorted high to low
	Asks      []BookLevel // sorted low to high
	BestBid   *decimal.Decimal
	BestAsk   *decimal.Decimal
	Spread    *decimal.Decimal
}

// Book derives the aggregated book from the committed open-order set.
// The book is always a view over the ledger; there is no second copy to
// drift out of sync.
func (x *Exchange) Book(marketID string, token ledger.TokenType) (*BookSnapshot, error) {
	if !token.Valid() {
		return nil, E(CodeMissingField, "token must be yes or no")
	}
	if _, err := x.Market(marketID); err != nil {
		return nil, err
	}
	orders, err := x.ledger.ListOpenOrders(marketID)
	if err != nil {
		return nil, err
	}

	bidQty := make(map[string]*BookLevel)
	askQty := make(map[string]*BookLevel)
	for _, o := range orders {
		if o.TokenType != token {
			continue
		}
		side := bidQty
		if o.Side == ledger.Sell {
			side = askQty
		}
		key := o.Price.String()
		lvl, ok := side[key]
		if !ok {
			lvl = &BookLevel{Price: o.Price}
			side[key] = lvl
		}
		lvl.Quantity += o.Remaining()
	}

	snap := &BookSnapshot{
		MarketID:  marketID,
		TokenType: token,
		Bids:      collectLevels(bidQty, true),
		Asks:      collectLevels(askQty, false),
	}
	if len(snap.Bids) > 0 {
		best := snap.Bids[0].Price
		snap.BestBid = &best
	}
	if len(snap.Asks) > 0 {
		best := snap.Asks[0].Price
		snap.BestAsk = &best
	}
	if snap.BestBid != nil && snap.BestAsk != nil {
		spread := snap.BestAsk.Sub(*snap.BestBid)
		snap.Spread = &spread
	}
	return snap, nil
}

func collectLevels(byPrice map[string]*BookLevel, descending bool) []BookLevel {
	levels := make([]BookLevel, 0, len(byPrice))
	for _, lvl := range byPrice {
		levels = append(levels, *lvl)
	}
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
	return levels
}
