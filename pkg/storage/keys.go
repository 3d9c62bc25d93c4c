package storage

import "fmt"

// Key schema for Pebble storage:
//
//   mkt:<marketId>                       → Market
//   acc:<chainId>:<userId>               → Account
//   pos:<marketId>:<chainId>:<userId>    → Position
//   pix:<chainId>:<userId>:<marketId>    → market id (per-user position index)
//   ord:<marketId>:<orderId>             → Order
//   oix:<orderId>                        → market id (order lookup index)
//   trd:<marketId>:<seq>:<tradeId>       → Trade
//
// Positions key by market first so settlement can enumerate a whole market
// with one prefix scan; the pix index covers the per-user balance query.
// Trade sequence numbers are zero-padded (20 digits) for lexicographic order.

const (
	prefixMarket   = "mkt:"
	prefixAccount  = "acc:"
	prefixPosition = "pos:"
	prefixPosIdx   = "pix:"
	prefixOrder    = "ord:"
	prefixOrderIdx = "oix:"
	prefixTrade    = "trd:"
)

func MarketKey(marketID string) []byte {
	return []byte(prefixMarket + marketID)
}

func MarketPrefix() []byte {
	return []byte(prefixMarket)
}

func AccountKey(chainID, userID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixAccount, chainID, userID))
}

func PositionKey(marketID, chainID, userID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixPosition, marketID, chainID, userID))
}

func PositionPrefix(marketID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixPosition, marketID))
}

func PositionIndexKey(chainID, userID, marketID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixPosIdx, chainID, userID, marketID))
}

func PositionIndexPrefix(chainID, userID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:", prefixPosIdx, chainID, userID))
}

func OrderKey(marketID, orderID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixOrder, marketID, orderID))
}

func OrderPrefix(marketID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrder, marketID))
}

func OrderIndexKey(orderID string) []byte {
	return []byte(prefixOrderIdx + orderID)
}

func TradeKey(marketID string, seq int64, tradeID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixTrade, marketID, seq, tradeID))
}

func TradePrefix(marketID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, marketID))
}

// KeyUpperBound returns the exclusive upper bound for a prefix scan
func KeyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
