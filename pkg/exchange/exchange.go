package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/BakaOtaku/robet-ai/params"
	"github.com/BakaOtaku/robet-ai/pkg/crypto"
	"github.com/BakaOtaku/robet-ai/pkg/ledger"
	"github.com/BakaOtaku/robet-ai/pkg/util"
)

// Exchange is the trading core: order admission, matching, execution and
// settlement over the ledger. It holds no market state of its own; every
// read and write goes through ledger transactions, serialized per market
// by the keyed lock.
type Exchange struct {
	ledger   *ledger.Ledger
	verifier *crypto.Verifier
	cfg      params.Config
	clock    util.Clock
	log      *zap.SugaredLogger
	locks    *marketLocks

	// Hooks for the market-data fanout. Called after commit, outside the
	// ledger transaction; nil hooks are skipped.
	OnTrade  func(*ledger.Trade)
	OnBook   func(marketID string)
	OnSettle func(marketID string, outcome ledger.Outcome)
}

func New(lg *ledger.Ledger, verifier *crypto.Verifier, cfg params.Config, clock util.Clock, log *zap.SugaredLogger) *Exchange {
	return &Exchange{
		ledger:   lg,
		verifier: verifier,
		cfg:      cfg,
		clock:    clock,
		log:      log,
		locks:    newMarketLocks(),
	}
}

// Ledger exposes the underlying ledger for read-side consumers.
func (x *Exchange) Ledger() *ledger.Ledger { return x.ledger }

// mapCtxErr converts a context error into the transient taxonomy.
func mapCtxErr(err error) *Error {
	return Wrap(CodeDeadlineExceeded, err, "aborted before commit")
}

// mapStorageErr converts residual storage errors after bounded retries.
func mapStorageErr(err error) error {
	if errors.Is(err, ledger.ErrUnavailable) {
		return Wrap(CodeUnavailable, err, "transient conflict, retry")
	}
	return err
}

// CreateMarket registers a new binary market.
func (x *Exchange) CreateMarket(ctx context.Context, question, creator string, resolutionDate time.Time) (*ledger.Market, error) {
	if question == "" {
		return nil, E(CodeMissingField, "question is required")
	}
	if creator == "" {
		return nil, E(CodeMissingField, "creator is required")
	}
	if resolutionDate.IsZero() {
		return nil, E(CodeMissingField, "resolution date is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, mapCtxErr(err)
	}

	m := &ledger.Market{
		ID:             uuid.NewString(),
		Question:       question,
		Creator:        creator,
		ResolutionDate: resolutionDate.UTC(),
		CreatedAt:      x.clock.Now().UTC(),
	}

	tx := x.ledger.NewTx()
	if err := tx.PutMarket(m); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, mapStorageErr(err)
	}

	x.log.Infow("market_created",
		"market", m.ID, "creator", m.Creator, "resolution_date", m.ResolutionDate)
	return m, nil
}

// CreditDeposit is the ingress for the out-of-process chain indexer.
func (x *Exchange) CreditDeposit(ctx context.Context, userID, chainID string, amountUSD decimal.Decimal, txRef string, height int64) error {
	if userID == "" || chainID == "" {
		return E(CodeMissingField, "userId and chainId are required")
	}
	if _, ok := x.cfg.Chain(chainID); !ok {
		return E(CodeInvalidChain, "unknown chain %q", chainID)
	}
	if amountUSD.Sign() <= 0 {
		return E(CodeInvalidQuantity, "deposit amount must be positive: %s", amountUSD)
	}
	if height <= 0 {
		return E(CodeMissingField, "external block height is required")
	}

	err := x.ledger.CreditDeposit(ctx, userID, chainID, amountUSD, txRef, height)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return mapCtxErr(err)
	}
	return mapStorageErr(err)
}

// ---- Read queries (committed state, no locks) ----

func (x *Exchange) Market(id string) (*ledger.Market, error) {
	m, err := x.ledger.GetMarket(id)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, E(CodeMarketNotFound, "market %s", id)
	}
	return m, err
}

func (x *Exchange) Markets() ([]*ledger.Market, error) {
	return x.ledger.ListMarkets()
}

func (x *Exchange) OpenOrders(marketID string) ([]*ledger.Order, error) {
	if _, err := x.Market(marketID); err != nil {
		return nil, err
	}
	return x.ledger.ListOpenOrders(marketID)
}

func (x *Exchange) Trades(marketID string, token ledger.TokenType) ([]*ledger.Trade, error) {
	if token != "" && !token.Valid() {
		return nil, E(CodeMissingField, "token filter must be yes or no")
	}
	if _, err := x.Market(marketID); err != nil {
		return nil, err
	}
	return x.ledger.ListTrades(marketID, token)
}

// Balance is the per-user account view with every market position.
type Balance struct {
	Account   *ledger.Account
	Positions []*ledger.Position
}

func (x *Exchange) Balance(chainID, userID string) (*Balance, error) {
	acc, err := x.ledger.GetAccount(chainID, userID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, E(CodeUserNotFound, "no account for %s on %s", userID, chainID)
	}
	if err != nil {
		return nil, err
	}
	positions, err := x.ledger.ListUserPositions(chainID, userID)
	if err != nil {
		return nil, err
	}
	return &Balance{Account: acc, Positions: positions}, nil
}

func (x *Exchange) notifyBook(marketID string) {
	if x.OnBook != nil {
		x.OnBook(marketID)
	}
}

func (x *Exchange) notifyTrade(tr *ledger.Trade) {
	if x.OnTrade != nil {
		x.OnTrade(tr)
	}
}
