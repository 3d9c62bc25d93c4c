package tests

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BakaOtaku/robet-ai/pkg/ledger"
)

// Scenario: initial mint. A long at 0.50 against B's uncovered short.
func TestScenarioInitialMint(t *testing.T) {
	e := newEnv(t)

	e.submit("A", ledger.Buy, ledger.Yes, "0.50", 10)
	e.submit("B", ledger.Sell, ledger.Yes, "0.50", 10)

	trades := e.trades()
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(dec("0.50")))
	assert.Equal(t, int64(10), trades[0].Quantity)
	assert.Equal(t, ledger.Yes, trades[0].TokenType)

	a, b := e.position("A"), e.position("B")
	assert.Equal(t, int64(10), a.YesTokens)
	assert.Equal(t, int64(10), b.NoTokens, "paired synthetic NO for the shorter")
	assert.True(t, b.LockedCollateralYes.Equal(dec("10")))

	e.requireUSD("A", "95")
	e.requireUSD("B", "95") // 100 - 10 collateral + 5 proceeds
	e.requireInvariants()

	e.settle(ledger.OutcomeYes)
	e.requireUSD("A", "105")
	e.requireUSD("B", "95")
	e.requireUSD("C", "100")
	e.requireUSD("D", "100")
	e.requireUSD("E", "100")
}

// Scenario: improved price. The resting buyer's limit exceeds the sell
// limit; execution at the sell limit refunds the difference.
func TestScenarioImprovedPrice(t *testing.T) {
	e := newEnv(t)

	e.submit("A", ledger.Buy, ledger.Yes, "0.60", 10)
	e.requireUSD("A", "94")

	e.submit("B", ledger.Sell, ledger.Yes, "0.50", 10)

	trades := e.trades()
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(dec("0.50")))

	e.requireUSD("A", "95") // 94 + 1.00 refund
	e.requireUSD("B", "95") // 100 - 10 collateral + 5.00 proceeds
	assert.Equal(t, int64(10), e.position("A").YesTokens)
	assert.True(t, e.position("B").LockedCollateralYes.Equal(dec("10")))
	e.requireInvariants()
}

// Scenario: partial fills across two price levels.
func TestScenarioPartialFills(t *testing.T) {
	e := newEnv(t)

	buy := e.submit("A", ledger.Buy, ledger.Yes, "0.55", 10)
	e.submit("B", ledger.Sell, ledger.Yes, "0.50", 3)
	e.submit("C", ledger.Sell, ledger.Yes, "0.55", 4)

	trades := e.trades()
	require.Len(t, trades, 2)
	assert.True(t, trades[0].Price.Equal(dec("0.50")))
	assert.Equal(t, int64(3), trades[0].Quantity)
	assert.True(t, trades[1].Price.Equal(dec("0.55")))
	assert.Equal(t, int64(4), trades[1].Quantity)

	final, err := e.x.Ledger().GetOrder(buy.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.OrderPartial, final.Status)
	assert.Equal(t, int64(7), final.FilledQuantity)

	// 100 - 5.50 pre-lock + 0.15 refund; the remaining 3 @ 0.55 keep
	// 1.65 locked inside the original pre-lock.
	e.requireUSD("A", "94.65")
	e.requireInvariants()
}

// Scenario: secondary market in the NO token, continuing the mint.
func TestScenarioSecondaryNoMarket(t *testing.T) {
	e := newEnv(t)

	// Mint first: B now owns 10 NO.
	e.submit("A", ledger.Buy, ledger.Yes, "0.50", 10)
	e.submit("B", ledger.Sell, ledger.Yes, "0.50", 10)

	// B resells half the NO inventory to E.
	e.submit("B", ledger.Sell, ledger.No, "0.48", 5)
	e.submit("E", ledger.Buy, ledger.No, "0.48", 5)

	trades, err := e.x.Trades(e.market.ID, ledger.No)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(dec("0.48")))
	assert.Equal(t, int64(5), trades[0].Quantity)

	assert.Equal(t, int64(5), e.position("B").NoTokens)
	assert.Equal(t, int64(5), e.position("E").NoTokens)
	e.requireUSD("B", "97.40") // 95 + 2.40 proceeds
	e.requireUSD("E", "97.60")
	e.requireInvariants()
}

// Scenario: self-match prevented; both orders rest.
func TestScenarioSelfMatchPrevented(t *testing.T) {
	e := newEnv(t)

	sell := e.submit("A", ledger.Sell, ledger.Yes, "0.65", 5)
	buy := e.submit("A", ledger.Buy, ledger.Yes, "0.65", 5)

	assert.Empty(t, e.trades())
	for _, o := range []*ledger.Order{sell, buy} {
		got, err := e.x.Ledger().GetOrder(o.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.OrderOpen, got.Status)
		assert.Zero(t, got.FilledQuantity)
	}
	e.requireInvariants()
}

// Scenario: settlement with forfeiture after the mint and the secondary
// NO sale. B's 10 collateral funds A's redemption in full; B and E eat
// their losing NO inventory.
func TestScenarioSettlementWithForfeiture(t *testing.T) {
	e := newEnv(t)

	e.submit("A", ledger.Buy, ledger.Yes, "0.50", 10)
	e.submit("B", ledger.Sell, ledger.Yes, "0.50", 10)
	e.submit("B", ledger.Sell, ledger.No, "0.48", 5)
	e.submit("E", ledger.Buy, ledger.No, "0.48", 5)

	total := e.grandTotal()
	require.True(t, total.Equal(dec("500")), "grand total before settle = %s", total)

	e.settle(ledger.OutcomeYes)

	e.requireUSD("A", "105")
	e.requireUSD("B", "97.40")
	e.requireUSD("C", "100")
	e.requireUSD("D", "100")
	e.requireUSD("E", "97.60")

	sum := dec("0")
	for _, u := range users {
		sum = sum.Add(e.balance(u))
		assert.True(t, e.position(u).IsZero(), "%s position not zeroed", u)
	}
	require.True(t, sum.Equal(dec("500")), "total after settle = %s", sum)

	m, err := e.x.Market(e.market.ID)
	require.NoError(t, err)
	assert.True(t, m.Settled)
	assert.Equal(t, ledger.OutcomeYes, m.Outcome)
}

// Fills conserve the grand total at every step of a mixed sequence.
func TestScenarioConservationAcrossFills(t *testing.T) {
	e := newEnv(t)

	steps := []func(){
		func() { e.submit("A", ledger.Buy, ledger.Yes, "0.50", 10) },
		func() { e.submit("B", ledger.Sell, ledger.Yes, "0.50", 10) },
		func() { e.submit("C", ledger.Buy, ledger.Yes, "0.70", 4) },
		func() { e.submit("A", ledger.Sell, ledger.Yes, "0.65", 4) },
		func() { e.submit("B", ledger.Sell, ledger.No, "0.48", 5) },
		func() { e.submit("E", ledger.Buy, ledger.No, "0.50", 5) },
	}
	for i, step := range steps {
		step()
		total := e.grandTotal()
		require.True(t, total.Equal(dec("500")), "step %d: grand total = %s", i, total)
		e.requireInvariants()
	}

	e.settle(ledger.OutcomeNo)
	sum := dec("0")
	for _, u := range users {
		sum = sum.Add(e.balance(u))
	}
	require.True(t, sum.Equal(dec("500")), "total after settle = %s", sum)
}
