package exchange

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/BakaOtaku/robet-ai/params"
	"github.com/BakaOtaku/robet-ai/pkg/crypto"
	"github.com/BakaOtaku/robet-ai/pkg/ledger"
	"github.com/BakaOtaku/robet-ai/pkg/storage"
	"github.com/BakaOtaku/robet-ai/pkg/util"
)

func newBenchExchange(b *testing.B) *Exchange {
	b.Helper()
	store, err := storage.Open(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { store.Close() })

	cfg := params.Default()
	cfg.Chains = append(cfg.Chains, params.ChainSpec{ID: testChain, Scheme: params.SchemeEd25519, Trust: true})
	clock := util.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	log := zap.NewNop().Sugar()
	lg := ledger.New(store, nil, clock, log)
	return New(lg, crypto.NewVerifier(cfg.Chains), cfg, clock, log)
}

// BenchmarkSubmitOrderCrossing measures the full admit + single-fill
// path against a pre-seeded book.
func BenchmarkSubmitOrderCrossing(b *testing.B) {
	x := newBenchExchange(b)
	ctx := context.Background()

	m, err := x.CreateMarket(ctx, "bench", "oracle", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		b.Fatal(err)
	}

	// One long-lived counterparty per side; deep balances so the loop
	// never drains them.
	for _, u := range []string{"maker", "taker"} {
		if err := x.CreditDeposit(ctx, u, testChain, usd("100000000"), "seed-"+u, 1); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := x.SubmitOrder(ctx, OrderRequest{
			MarketID: m.ID, UserID: "maker", ChainID: testChain,
			Side: ledger.Sell, TokenType: ledger.Yes, Price: "0.50", Quantity: 1,
		})
		if err != nil {
			b.Fatal(err)
		}
		_, err = x.SubmitOrder(ctx, OrderRequest{
			MarketID: m.ID, UserID: "taker", ChainID: testChain,
			Side: ledger.Buy, TokenType: ledger.Yes, Price: "0.50", Quantity: 1,
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkBookSnapshot measures the aggregated book derivation over
// books of increasing depth.
func BenchmarkBookSnapshot(b *testing.B) {
	for _, depth := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("depth-%d", depth), func(b *testing.B) {
			x := newBenchExchange(b)
			ctx := context.Background()

			m, err := x.CreateMarket(ctx, "bench", "oracle", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
			if err != nil {
				b.Fatal(err)
			}
			if err := x.CreditDeposit(ctx, "maker", testChain, usd("100000000"), "seed", 1); err != nil {
				b.Fatal(err)
			}
			for i := 0; i < depth; i++ {
				price := "0." + strconv.Itoa(10+i%80)
				_, err := x.SubmitOrder(ctx, OrderRequest{
					MarketID: m.ID, UserID: "maker", ChainID: testChain,
					Side: ledger.Buy, TokenType: ledger.Yes, Price: price, Quantity: 1,
				})
				if err != nil {
					b.Fatal(err)
				}
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := x.Book(m.ID, ledger.Yes); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
