package tests

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BakaOtaku/robet-ai/params"
	"github.com/BakaOtaku/robet-ai/pkg/crypto"
	"github.com/BakaOtaku/robet-ai/pkg/exchange"
	"github.com/BakaOtaku/robet-ai/pkg/ledger"
	"github.com/BakaOtaku/robet-ai/pkg/storage"
	"github.com/BakaOtaku/robet-ai/pkg/util"
)

// The end-to-end suite drives the public exchange API the way the HTTP
// layer does: five users A-E, one market, trusted-chain orders.

const chain = "devnet"

var users = []string{"A", "B", "C", "D", "E"}

type env struct {
	t      *testing.T
	x      *exchange.Exchange
	clock  *util.ManualClock
	market *ledger.Market
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := params.Default()
	cfg.Chains = append(cfg.Chains, params.ChainSpec{ID: chain, Scheme: params.SchemeEd25519, Trust: true})
	clock := util.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	log := zap.NewNop().Sugar()

	lg := ledger.New(store, nil, clock, log)
	x := exchange.New(lg, crypto.NewVerifier(cfg.Chains), cfg, clock, log)

	for _, u := range users {
		require.NoError(t, x.CreditDeposit(context.Background(), u, chain, dec("100"), "seed-"+u, 1))
	}
	m, err := x.CreateMarket(context.Background(), "Will the event happen?", "oracle", clock.Now().Add(24*time.Hour))
	require.NoError(t, err)

	return &env{t: t, x: x, clock: clock, market: m}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (e *env) submit(user string, side ledger.Side, token ledger.TokenType, price string, qty int64) *ledger.Order {
	e.t.Helper()
	o, err := e.x.SubmitOrder(context.Background(), exchange.OrderRequest{
		MarketID:  e.market.ID,
		UserID:    user,
		ChainID:   chain,
		Side:      side,
		TokenType: token,
		Price:     price,
		Quantity:  qty,
	})
	require.NoError(e.t, err, "submit %s %s %d %s @ %s", user, side, qty, token, price)
	return o
}

func (e *env) settle(outcome ledger.Outcome) {
	e.t.Helper()
	require.NoError(e.t, e.x.Settle(context.Background(), e.market.ID, outcome))
}

func (e *env) balance(user string) decimal.Decimal {
	e.t.Helper()
	acc, err := e.x.Ledger().GetAccount(chain, user)
	require.NoError(e.t, err)
	return acc.AvailableUSD
}

func (e *env) position(user string) *ledger.Position {
	e.t.Helper()
	positions, err := e.x.Ledger().ListUserPositions(chain, user)
	require.NoError(e.t, err)
	for _, p := range positions {
		if p.MarketID == e.market.ID {
			return p
		}
	}
	return &ledger.Position{MarketID: e.market.ID, ChainID: chain, UserID: user}
}

func (e *env) trades() []*ledger.Trade {
	e.t.Helper()
	trades, err := e.x.Trades(e.market.ID, "")
	require.NoError(e.t, err)
	return trades
}

func (e *env) requireUSD(user, want string) {
	e.t.Helper()
	require.True(e.t, e.balance(user).Equal(dec(want)),
		"%s availableUSD = %s, want %s", user, e.balance(user), want)
}

// grandTotal is every user's free balance plus every locked monetary
// amount in the market: fills must never change it, and buy pre-locks
// live inside the book's resting orders.
func (e *env) grandTotal() decimal.Decimal {
	e.t.Helper()
	total := decimal.Zero
	for _, u := range users {
		total = total.Add(e.balance(u))
		p := e.position(u)
		total = total.Add(p.LockedCollateralYes).Add(p.LockedCollateralNo)
	}
	orders, err := e.x.Ledger().ListOpenOrders(e.market.ID)
	require.NoError(e.t, err)
	for _, o := range orders {
		if o.Side == ledger.Buy {
			total = total.Add(o.Price.Mul(decimal.NewFromInt(o.Remaining())))
		}
	}
	return total
}

// requireInvariants asserts the always-on structural invariants over the
// market: non-negative fields, short backing for resting sells, and the
// pair-mint equation.
func (e *env) requireInvariants() {
	e.t.Helper()

	var yes, no, lockedYes, lockedNo int64
	collYes, collNo := decimal.Zero, decimal.Zero
	for _, u := range users {
		require.True(e.t, e.balance(u).Sign() >= 0, "%s negative balance", u)
		p := e.position(u)
		require.True(e.t, p.YesTokens >= 0 && p.NoTokens >= 0 &&
			p.LockedYesTokens >= 0 && p.LockedNoTokens >= 0 &&
			p.LockedCollateralYes.Sign() >= 0 && p.LockedCollateralNo.Sign() >= 0,
			"%s negative position field: %+v", u, p)
		yes += p.YesTokens
		no += p.NoTokens
		lockedYes += p.LockedYesTokens
		lockedNo += p.LockedNoTokens
		collYes = collYes.Add(p.LockedCollateralYes)
		collNo = collNo.Add(p.LockedCollateralNo)
	}

	// Every resting SELL is backed by reserved inventory plus collateral,
	// and the collateral behind not-yet-minted short remainders is carved
	// out of the pair equation below.
	orders, err := e.x.Ledger().ListOpenOrders(e.market.ID)
	require.NoError(e.t, err)
	remainder := map[string]map[ledger.TokenType]int64{}
	for _, o := range orders {
		if o.Side != ledger.Sell {
			continue
		}
		if remainder[o.UserID] == nil {
			remainder[o.UserID] = map[ledger.TokenType]int64{}
		}
		remainder[o.UserID][o.TokenType] += o.Remaining()
	}
	pendingShort := decimal.Zero
	for user, byToken := range remainder {
		p := e.position(user)
		for token, r := range byToken {
			backing := decimal.NewFromInt(p.LockedTokens(token)).Add(p.LockedCollateral(token))
			require.True(e.t, backing.GreaterThanOrEqual(decimal.NewFromInt(r)),
				"sell backing for %s/%s: %s < %d", user, token, backing, r)
			if short := r - p.LockedTokens(token); short > 0 {
				pendingShort = pendingShort.Add(decimal.NewFromInt(short))
			}
		}
	}

	// Pair-mint equation: every minted pair holds one unit of collateral,
	// so total supply per side equals total collateral minus the part
	// still backing unfilled short remainders.
	supplyYes := decimal.NewFromInt(yes + lockedYes)
	supplyNo := decimal.NewFromInt(no + lockedNo)
	require.True(e.t, supplyYes.Equal(supplyNo),
		"token supplies differ: yes=%s no=%s", supplyYes, supplyNo)
	minted := collYes.Add(collNo).Sub(pendingShort)
	require.True(e.t, supplyYes.Equal(minted),
		"pair equation: supply=%s minted collateral=%s", supplyYes, minted)
}
