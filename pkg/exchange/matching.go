package exchange

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/BakaOtaku/robet-ai/pkg/ledger"
)

// fillRetries bounds per-fill optimistic retries. A fill transaction can
// lose to a deposit credit or a cross-market fill on either party's
// account.
const fillRetries = 5

// match runs the taker against the resting book until the taker is
// filled, the book is exhausted at its limit, or a fill aborts. Each
// fill is one ledger transaction; an abort leaves the last committed
// state, so the taker is always persisted consistently. Called with the
// market lock held.
func (x *Exchange) match(ctx context.Context, taker *ledger.Order) {
	for {
		done, err := x.matchStep(ctx, taker.MarketID, taker.ID)
		if err != nil {
			if IsCode(err, CodeLedgerInconsistency) {
				x.log.Errorw("ledger_inconsistency",
					"market", taker.MarketID, "taker", taker.ID, "mutation", "fill", "err", err)
			} else {
				x.log.Errorw("matching_aborted",
					"market", taker.MarketID, "taker", taker.ID, "err", err)
			}
			return
		}
		if done {
			return
		}
	}
}

// matchStep executes at most one fill. done means the matching pass is
// over: taker filled or no crossing candidate remains.
func (x *Exchange) matchStep(ctx context.Context, marketID, takerID string) (done bool, err error) {
	for attempt := 0; attempt < fillRetries; attempt++ {
		tx := x.ledger.NewTx()

		taker, err := tx.Order(marketID, takerID)
		if err != nil {
			return false, err
		}
		if taker.Remaining() == 0 {
			return true, nil
		}

		book, err := tx.OpenOrders(marketID)
		if err != nil {
			return false, err
		}
		maker := bestOpposing(book, taker)
		if maker == nil {
			// Taker rests. Its status is already OPEN or PARTIAL from the
			// preceding fill transactions; nothing to persist.
			return true, nil
		}

		avail := maker.Remaining()
		if avail <= 0 {
			// Bookkeeping anomaly: a non-resting quantity under a resting
			// status. Close it out and keep walking the book.
			x.log.Warnw("stale_maker_closed",
				"market", marketID, "maker", maker.ID, "filled", maker.FilledQuantity, "quantity", maker.Quantity)
			maker.Status = ledger.OrderFilled
			if err := tx.PutOrder(maker); err != nil {
				return false, err
			}
			err = tx.Commit()
			if errors.Is(err, ledger.ErrUnavailable) {
				continue
			}
			return false, err
		}

		fillQty := taker.Remaining()
		if avail < fillQty {
			fillQty = avail
		}

		buy, sell := taker, maker
		if taker.Side == ledger.Sell {
			buy, sell = maker, taker
		}
		// Crossing requires sell limit <= buy limit; executing at the sell
		// side's limit gives the maker its price and refunds the buyer's
		// price improvement out of the pre-lock.
		execPrice := sell.Price

		if err := applyFill(tx, buy, sell, fillQty, execPrice); err != nil {
			return false, err
		}

		buy.FilledQuantity += fillQty
		sell.FilledQuantity += fillQty
		for _, o := range []*ledger.Order{buy, sell} {
			if o.Remaining() == 0 {
				o.Status = ledger.OrderFilled
			} else {
				o.Status = ledger.OrderPartial
			}
			if err := tx.PutOrder(o); err != nil {
				return false, err
			}
		}

		m, err := tx.Market(marketID)
		if err != nil {
			return false, err
		}
		trade := &ledger.Trade{
			ID:          uuid.NewString(),
			MarketID:    marketID,
			BuyOrderID:  buy.ID,
			SellOrderID: sell.ID,
			TokenType:   taker.TokenType,
			Price:       execPrice,
			Quantity:    fillQty,
			TakerSide:   taker.Side,
			Seq:         tx.NextSeq(m),
			CreatedAt:   x.clock.Now().UTC(),
		}
		if err := tx.PutMarket(m); err != nil {
			return false, err
		}
		if err := tx.InsertTrade(trade); err != nil {
			return false, err
		}

		err = tx.Commit()
		if errors.Is(err, ledger.ErrUnavailable) {
			continue
		}
		if err != nil {
			return false, err
		}

		x.log.Infow("trade_executed",
			"trade", trade.ID, "market", marketID, "token", trade.TokenType,
			"price", trade.Price, "quantity", trade.Quantity,
			"buy_order", buy.ID, "sell_order", sell.ID, "taker_side", trade.TakerSide)
		x.notifyTrade(trade)
		return false, nil
	}
	return false, E(CodeUnavailable, "fill lost %d revision races", fillRetries)
}

// bestOpposing picks the price-time best crossing candidate for the
// taker from the open-order set: same market and token type, opposite
// side, compatible price, not the taker's own user. BUY takers match the
// cheapest SELL first; SELL takers the highest BUY; ties go to the
// earliest arrival.
func bestOpposing(book []*ledger.Order, taker *ledger.Order) *ledger.Order {
	var candidates []*ledger.Order
	for _, o := range book {
		if o.ID == taker.ID || o.TokenType != taker.TokenType || o.Side == taker.Side {
			continue
		}
		if o.ChainID == taker.ChainID && o.UserID == taker.UserID {
			continue // no self-match
		}
		if taker.Side == ledger.Buy && o.Price.GreaterThan(taker.Price) {
			continue
		}
		if taker.Side == ledger.Sell && o.Price.LessThan(taker.Price) {
			continue
		}
		candidates = append(candidates, o)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		cmp := candidates[i].Price.Cmp(candidates[j].Price)
		if cmp != 0 {
			if taker.Side == ledger.Buy {
				return cmp < 0 // cheapest ask first
			}
			return cmp > 0 // highest bid first
		}
		return candidates[i].Seq < candidates[j].Seq
	})
	return candidates[0]
}
