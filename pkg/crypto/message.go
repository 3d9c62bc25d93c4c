package crypto

import "fmt"

// OrderMessage builds the canonical byte string a wallet signs to
// authorize an order:
//
//	order:{marketId}:{userId}:{side}:{price}:{quantity}:{tokenType}
//
// UTF-8, no trailing newline. price is the exact decimal string the
// client sent; the transport layer must not re-render it, or signature
// reconstruction breaks on forms like "0.50" vs "0.5".
func OrderMessage(marketID, userID, side, price string, quantity int64, tokenType string) []byte {
	return []byte(fmt.Sprintf("order:%s:%s:%s:%s:%d:%s", marketID, userID, side, price, quantity, tokenType))
}
