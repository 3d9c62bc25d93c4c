package exchange

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/BakaOtaku/robet-ai/pkg/ledger"
)

// applyFill applies one fill's balance effects to both parties inside
// the caller's transaction.
//
// Money: the seller is paid execPrice*qty; the buyer's funds were
// pre-locked at their own limit, so a better execution refunds the
// difference and the rest of the pre-lock is consumed in place.
//
// Tokens: delivery comes from the seller's locked inventory first.
// Any shortfall is a short sale: the buyer's token is minted against the
// seller's locked collateral (which stays locked until settlement) and
// the paired opposite token is minted to the seller.
//
// Order status is the matching engine's job; this function never touches
// it, and never releases collateral.
func applyFill(tx *ledger.Tx, buy, sell *ledger.Order, qty int64, execPrice decimal.Decimal) error {
	token := buy.TokenType
	qtyDec := decimal.NewFromInt(qty)

	sellerAcc, err := tx.Account(sell.ChainID, sell.UserID)
	if errors.Is(err, ledger.ErrNotFound) {
		return E(CodeLedgerInconsistency, "seller %s/%s of order %s has no account", sell.ChainID, sell.UserID, sell.ID)
	}
	if err != nil {
		return err
	}
	buyerAcc, err := tx.Account(buy.ChainID, buy.UserID)
	if errors.Is(err, ledger.ErrNotFound) {
		return E(CodeLedgerInconsistency, "buyer %s/%s of order %s has no account", buy.ChainID, buy.UserID, buy.ID)
	}
	if err != nil {
		return err
	}
	sellerPos, err := tx.PositionOrZero(sell.MarketID, sell.ChainID, sell.UserID)
	if err != nil {
		return err
	}
	buyerPos, err := tx.PositionOrZero(buy.MarketID, buy.ChainID, buy.UserID)
	if err != nil {
		return err
	}

	sellerAcc.AvailableUSD = sellerAcc.AvailableUSD.Add(execPrice.Mul(qtyDec))
	if refund := buy.Price.Sub(execPrice).Mul(qtyDec); refund.Sign() > 0 {
		buyerAcc.AvailableUSD = buyerAcc.AvailableUSD.Add(refund)
	}

	fromInventory := qty
	if locked := sellerPos.LockedTokens(token); locked < fromInventory {
		fromInventory = locked
	}
	short := qty - fromInventory

	if short > 0 {
		// Every shorted unit must already be collateralized by admission;
		// a shortfall here means the books are corrupt, not that the
		// seller is poor.
		if sellerPos.LockedCollateral(token).LessThan(decimal.NewFromInt(short)) {
			return E(CodeLedgerInconsistency,
				"seller %s/%s in market %s: minting %d %s against %s locked collateral",
				sell.ChainID, sell.UserID, sell.MarketID, short, token, sellerPos.LockedCollateral(token))
		}
		sellerPos.AddTokens(token.Opposite(), short)
	}
	sellerPos.AddLockedTokens(token, -fromInventory)
	buyerPos.AddTokens(token, qty)

	if err := tx.PutAccount(sellerAcc); err != nil {
		return err
	}
	if err := tx.PutAccount(buyerAcc); err != nil {
		return err
	}
	if err := tx.PutPosition(sellerPos); err != nil {
		return err
	}
	return tx.PutPosition(buyerPos)
}
