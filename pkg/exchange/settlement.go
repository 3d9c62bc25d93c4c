package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/BakaOtaku/robet-ai/pkg/ledger"
)

// settleRetries bounds the wholesale retry of the settlement
// transaction.
const settleRetries = 5

// Settle is the terminal transition of a market: cancel every resting
// order, refund unfilled BUY pre-locks, release reserved inventory and
// the collateral behind never-minted short remainders, pay one unit per
// winning token, absorb the collateral behind minted pairs, zero every
// position, and mark the market settled. One ledger transaction; a
// failed commit leaves the market unsettled.
//
// The absorbed collateral funds the redemptions unit for unit: each
// outstanding minted pair holds exactly one unit of collateral and pays
// out exactly one unit on its winning side.
func (x *Exchange) Settle(ctx context.Context, marketID string, outcome ledger.Outcome) error {
	if marketID == "" {
		return E(CodeMissingField, "marketId is required")
	}
	if !outcome.Valid() {
		return E(CodeMissingField, "outcome must be yes or no")
	}

	unlock := x.locks.Lock(marketID)
	defer unlock()

	for attempt := 0; attempt < settleRetries; attempt++ {
		tx := x.ledger.NewTx()

		m, err := tx.Market(marketID)
		if errors.Is(err, ledger.ErrNotFound) {
			return E(CodeMarketNotFound, "market %s", marketID)
		}
		if err != nil {
			return err
		}
		if m.Settled {
			return E(CodeAlreadySettled, "market %s settled as %s", marketID, m.Outcome)
		}

		// Cancel resting orders; unfilled BUY pre-locks go back to the
		// owner. SELL remainders are tallied so their backing (reserved
		// inventory first, collateral for the shorted rest) is released
		// positionally below.
		orders, err := tx.OpenOrders(marketID)
		if err != nil {
			return err
		}
		sellRemainder := make(map[ledgerKey]remainders)
		for _, o := range orders {
			unfilled := o.Remaining()
			o.Status = ledger.OrderCancelled
			if err := tx.PutOrder(o); err != nil {
				return err
			}
			if unfilled <= 0 {
				continue
			}
			if o.Side == ledger.Sell {
				k := ledgerKey{o.ChainID, o.UserID}
				r := sellRemainder[k]
				if o.TokenType == ledger.Yes {
					r.yes += unfilled
				} else {
					r.no += unfilled
				}
				sellRemainder[k] = r
				continue
			}
			acc, err := tx.Account(o.ChainID, o.UserID)
			if errors.Is(err, ledger.ErrNotFound) {
				return E(CodeLedgerInconsistency, "order %s owner %s/%s has no account", o.ID, o.ChainID, o.UserID)
			}
			if err != nil {
				return err
			}
			acc.AvailableUSD = acc.AvailableUSD.Add(o.Price.Mul(decimal.NewFromInt(unfilled)))
			if err := tx.PutAccount(acc); err != nil {
				return err
			}
		}

		positions, err := tx.Positions(marketID)
		if err != nil {
			return err
		}
		payouts, absorbed := decimal.Zero, decimal.Zero
		for _, p := range positions {
			// Collateral behind a cancelled short remainder never minted a
			// pair; it goes back to the owner. Inventory-first delivery
			// guarantees remainder minus reserved inventory is exactly the
			// never-minted short portion.
			rem := sellRemainder[ledgerKey{p.ChainID, p.UserID}]
			released := collateralRelease(p.LockedCollateralYes, rem.yes, p.LockedYesTokens).
				Add(collateralRelease(p.LockedCollateralNo, rem.no, p.LockedNoTokens))

			// Reservations behind the just-cancelled SELL orders return to
			// free inventory before redemption.
			p.YesTokens += p.LockedYesTokens
			p.NoTokens += p.LockedNoTokens
			p.LockedYesTokens = 0
			p.LockedNoTokens = 0

			winning := p.YesTokens
			if outcome == ledger.OutcomeNo {
				winning = p.NoTokens
			}
			absorbed = absorbed.Add(p.LockedCollateralYes).Add(p.LockedCollateralNo).Sub(released)

			credit := released
			if winning > 0 {
				payout := decimal.NewFromInt(winning)
				payouts = payouts.Add(payout)
				credit = credit.Add(payout)
			}
			if credit.Sign() > 0 {
				acc, err := tx.Account(p.ChainID, p.UserID)
				if errors.Is(err, ledger.ErrNotFound) {
					return E(CodeLedgerInconsistency, "position holder %s/%s has no account", p.ChainID, p.UserID)
				}
				if err != nil {
					return err
				}
				acc.AvailableUSD = acc.AvailableUSD.Add(credit)
				if err := tx.PutAccount(acc); err != nil {
					return err
				}
			}

			p.YesTokens = 0
			p.NoTokens = 0
			p.LockedCollateralYes = decimal.Zero
			p.LockedCollateralNo = decimal.Zero
			if err := tx.PutPosition(p); err != nil {
				return err
			}
		}

		m.Outcome = outcome
		m.Settled = true
		if err := tx.PutMarket(m); err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return mapCtxErr(err)
		}
		err = tx.Commit()
		if errors.Is(err, ledger.ErrUnavailable) {
			continue
		}
		if err != nil {
			return err
		}

		if !payouts.Equal(absorbed) {
			// Solvency invariant: redemptions must equal absorbed
			// collateral. Reaching here means pre-settlement state was
			// already off; flag it for reconciliation.
			x.log.Errorw("ledger_inconsistency",
				"market", marketID, "mutation", "settlement",
				"payouts", payouts, "absorbed_collateral", absorbed)
		}
		x.log.Infow("market_settled",
			"market", marketID, "outcome", outcome,
			"orders_cancelled", len(orders), "positions", len(positions),
			"payouts", payouts, "absorbed_collateral", absorbed)

		if x.OnSettle != nil {
			x.OnSettle(marketID, outcome)
		}
		x.notifyBook(marketID)
		return nil
	}
	return E(CodeUnavailable, "settlement lost %d revision races", settleRetries)
}

// ledgerKey identifies one account across the cancel and position loops.
type ledgerKey struct {
	chainID string
	userID  string
}

// remainders is the unfilled SELL quantity per token type of one user.
type remainders struct {
	yes, no int64
}

// collateralRelease computes the collateral behind a user's cancelled
// short remainder: the part of the remainder not backed by reserved
// inventory, capped at the collateral actually held.
func collateralRelease(collateral decimal.Decimal, remainder, reservedTokens int64) decimal.Decimal {
	short := remainder - reservedTokens
	if short <= 0 {
		return decimal.Zero
	}
	release := decimal.NewFromInt(short)
	if release.GreaterThan(collateral) {
		return collateral
	}
	return release
}
