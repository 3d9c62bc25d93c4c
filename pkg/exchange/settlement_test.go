package exchange

import (
	"context"
	"testing"

	"github.com/BakaOtaku/robet-ai/pkg/ledger"
)

func TestSettlePaysWinnersAndAbsorbsCollateral(t *testing.T) {
	x, clock := newTestExchange(t)
	mustDeposit(t, x, "alice", "100")
	mustDeposit(t, x, "bob", "100")
	m := mustCreateMarket(t, x, clock)

	// Mint: alice long 10 YES at 0.50, bob short with 10 collateral.
	mustSubmit(t, x, m.ID, "alice", ledger.Buy, ledger.Yes, "0.50", 10)
	mustSubmit(t, x, m.ID, "bob", ledger.Sell, ledger.Yes, "0.50", 10)

	if err := x.Settle(context.Background(), m.ID, ledger.OutcomeYes); err != nil {
		t.Fatalf("settle: %v", err)
	}

	// alice's 10 YES redeem at 1.00; bob's 10 NO are worthless and the
	// collateral is forfeited.
	assertUSD(t, x, "alice", "105")
	assertUSD(t, x, "bob", "95")

	for _, u := range []string{"alice", "bob"} {
		if p := positionOf(t, x, m.ID, u); !p.IsZero() {
			t.Errorf("%s position not zeroed: %+v", u, p)
		}
	}

	got, err := x.Market(m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Settled || got.Outcome != ledger.OutcomeYes {
		t.Errorf("market settled=%v outcome=%s", got.Settled, got.Outcome)
	}
}

func TestSettleOppositeOutcome(t *testing.T) {
	x, clock := newTestExchange(t)
	mustDeposit(t, x, "alice", "100")
	mustDeposit(t, x, "bob", "100")
	m := mustCreateMarket(t, x, clock)

	mustSubmit(t, x, m.ID, "alice", ledger.Buy, ledger.Yes, "0.50", 10)
	mustSubmit(t, x, m.ID, "bob", ledger.Sell, ledger.Yes, "0.50", 10)

	if err := x.Settle(context.Background(), m.ID, ledger.OutcomeNo); err != nil {
		t.Fatalf("settle: %v", err)
	}

	// bob's paired 10 NO redeem; alice's YES are worthless.
	assertUSD(t, x, "alice", "95")
	assertUSD(t, x, "bob", "105")
}

func TestSettleCancelsRestingOrdersAndRefundsBuyLocks(t *testing.T) {
	x, clock := newTestExchange(t)
	mustDeposit(t, x, "alice", "100")
	mustDeposit(t, x, "bob", "100")
	m := mustCreateMarket(t, x, clock)

	buy := mustSubmit(t, x, m.ID, "alice", ledger.Buy, ledger.Yes, "0.40", 10)
	sell := mustSubmit(t, x, m.ID, "bob", ledger.Sell, ledger.Yes, "0.60", 5)
	assertUSD(t, x, "alice", "96")
	assertUSD(t, x, "bob", "95")

	if err := x.Settle(context.Background(), m.ID, ledger.OutcomeYes); err != nil {
		t.Fatalf("settle: %v", err)
	}

	for _, id := range []string{buy.ID, sell.ID} {
		o, err := x.Ledger().GetOrder(id)
		if err != nil {
			t.Fatal(err)
		}
		if o.Status != ledger.OrderCancelled {
			t.Errorf("order %s status = %s, want cancelled", id, o.Status)
		}
	}

	// The unfilled BUY pre-lock returns, and so does the collateral
	// behind bob's never-filled short: nothing was minted against it.
	assertUSD(t, x, "alice", "100")
	assertUSD(t, x, "bob", "100")

	book, err := x.Ledger().ListOpenOrders(m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(book) != 0 {
		t.Errorf("open orders after settlement = %d, want 0", len(book))
	}
}

func TestSettleSplitsPartiallyFilledShortCollateral(t *testing.T) {
	x, clock := newTestExchange(t)
	mustDeposit(t, x, "alice", "100")
	mustDeposit(t, x, "bob", "100")
	m := mustCreateMarket(t, x, clock)

	// bob shorts 10 but only 7 cross. The 7 minted units forfeit their
	// collateral to fund alice's redemption; the 3 never-minted units get
	// theirs back.
	mustSubmit(t, x, m.ID, "alice", ledger.Buy, ledger.Yes, "0.50", 7)
	mustSubmit(t, x, m.ID, "bob", ledger.Sell, ledger.Yes, "0.50", 10)
	assertUSD(t, x, "bob", "93.50") // 100 - 10 collateral + 3.50 proceeds

	if err := x.Settle(context.Background(), m.ID, ledger.OutcomeYes); err != nil {
		t.Fatal(err)
	}
	assertUSD(t, x, "alice", "103.50") // 96.50 + 7 redeemed
	assertUSD(t, x, "bob", "96.50")    // 93.50 + 3 released
}

func TestSettleTwiceFails(t *testing.T) {
	x, clock := newTestExchange(t)
	mustDeposit(t, x, "alice", "100")
	m := mustCreateMarket(t, x, clock)

	if err := x.Settle(context.Background(), m.ID, ledger.OutcomeYes); err != nil {
		t.Fatalf("settle: %v", err)
	}
	err := x.Settle(context.Background(), m.ID, ledger.OutcomeNo)
	if !IsCode(err, CodeAlreadySettled) {
		t.Errorf("second settle err = %v, want AlreadySettled", err)
	}

	got, _ := x.Market(m.ID)
	if got.Outcome != ledger.OutcomeYes {
		t.Errorf("outcome mutated by failed settle: %s", got.Outcome)
	}
}

func TestSettleValidation(t *testing.T) {
	x, _ := newTestExchange(t)
	ctx := context.Background()

	if err := x.Settle(ctx, "", ledger.OutcomeYes); !IsCode(err, CodeMissingField) {
		t.Errorf("empty market: %v", err)
	}
	if err := x.Settle(ctx, "m", "maybe"); !IsCode(err, CodeMissingField) {
		t.Errorf("bad outcome: %v", err)
	}
	if err := x.Settle(ctx, "missing", ledger.OutcomeYes); !IsCode(err, CodeMarketNotFound) {
		t.Errorf("unknown market: %v", err)
	}
}

func TestSettledMarketRejectsOrders(t *testing.T) {
	x, clock := newTestExchange(t)
	mustDeposit(t, x, "alice", "100")
	m := mustCreateMarket(t, x, clock)

	if err := x.Settle(context.Background(), m.ID, ledger.OutcomeYes); err != nil {
		t.Fatal(err)
	}
	_, err := x.SubmitOrder(context.Background(), OrderRequest{
		MarketID: m.ID, UserID: "alice", ChainID: testChain,
		Side: ledger.Buy, TokenType: ledger.Yes, Price: "0.5", Quantity: 1,
	})
	if !IsCode(err, CodeMarketClosed) {
		t.Errorf("err = %v, want MarketClosed", err)
	}
}

func TestSettleReleasesSellReservations(t *testing.T) {
	x, clock := newTestExchange(t)
	for _, u := range []string{"alice", "bob"} {
		mustDeposit(t, x, u, "100")
	}
	m := mustCreateMarket(t, x, clock)

	// Mint 10 YES to alice, then alice lists 6 of them. At settlement the
	// reservation returns to free inventory and redeems with the rest.
	mustSubmit(t, x, m.ID, "alice", ledger.Buy, ledger.Yes, "0.50", 10)
	mustSubmit(t, x, m.ID, "bob", ledger.Sell, ledger.Yes, "0.50", 10)
	mustSubmit(t, x, m.ID, "alice", ledger.Sell, ledger.Yes, "0.90", 6)

	if err := x.Settle(context.Background(), m.ID, ledger.OutcomeYes); err != nil {
		t.Fatal(err)
	}
	// 95 + all 10 YES redeemed.
	assertUSD(t, x, "alice", "105")
}
