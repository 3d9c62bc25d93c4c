package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/BakaOtaku/robet-ai/pkg/storage"
	"github.com/BakaOtaku/robet-ai/pkg/util"
)

// Re-exported storage sentinels so callers need not import two packages
// for error checks.
var (
	ErrNotFound    = storage.ErrNotFound
	ErrUnavailable = storage.ErrUnavailable
)

// creditRetries bounds the optimistic retry loop for deposit credits.
// Deposits only contend with fills touching the same account.
const creditRetries = 5

// Ledger is the authoritative store of markets, orders, trades, accounts
// and positions. All mutation goes through Tx; a transaction commits all
// of its writes or none, and loses with ErrUnavailable when a concurrent
// commit touched anything it read.
type Ledger struct {
	store   *storage.Store
	journal storage.Journal
	clock   util.Clock
	log     *zap.SugaredLogger
}

func New(store *storage.Store, journal storage.Journal, clock util.Clock, log *zap.SugaredLogger) *Ledger {
	if journal == nil {
		journal = storage.NewNopJournal()
	}
	return &Ledger{store: store, journal: journal, clock: clock, log: log}
}

func (l *Ledger) Clock() util.Clock { return l.clock }

// Tx is a typed optimistic transaction over the entity store.
type Tx struct {
	tx    *storage.Tx
	clock util.Clock
}

func (l *Ledger) NewTx() *Tx {
	return &Tx{tx: l.store.NewTx(), clock: l.clock}
}

func (t *Tx) Market(id string) (*Market, error) {
	var m Market
	if err := t.tx.Get(storage.MarketKey(id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (t *Tx) PutMarket(m *Market) error {
	return t.tx.Put(storage.MarketKey(m.ID), m)
}

// NextSeq draws the next event sequence number from the market's arrival
// counter. The caller persists the market in the same transaction.
func (t *Tx) NextSeq(m *Market) int64 {
	m.NextSeq++
	return m.NextSeq
}

func (t *Tx) Account(chainID, userID string) (*Account, error) {
	var a Account
	if err := t.tx.Get(storage.AccountKey(chainID, userID), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *Tx) PutAccount(a *Account) error {
	a.UpdatedAt = t.clock.Now().UTC()
	return t.tx.Put(storage.AccountKey(a.ChainID, a.UserID), a)
}

// PositionOrZero loads a user's position in a market, returning a fresh
// zero record on first reference. The zero record is not persisted until
// the caller puts it back.
func (t *Tx) PositionOrZero(marketID, chainID, userID string) (*Position, error) {
	var p Position
	err := t.tx.Get(storage.PositionKey(marketID, chainID, userID), &p)
	if errors.Is(err, storage.ErrNotFound) {
		return &Position{MarketID: marketID, ChainID: chainID, UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *Tx) PutPosition(p *Position) error {
	if err := t.tx.Put(storage.PositionKey(p.MarketID, p.ChainID, p.UserID), p); err != nil {
		return err
	}
	// Secondary index for the per-user balance query.
	return t.tx.Put(storage.PositionIndexKey(p.ChainID, p.UserID, p.MarketID), p.MarketID)
}

func (t *Tx) Order(marketID, orderID string) (*Order, error) {
	var o Order
	if err := t.tx.Get(storage.OrderKey(marketID, orderID), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *Tx) PutOrder(o *Order) error {
	if err := t.tx.Put(storage.OrderKey(o.MarketID, o.ID), o); err != nil {
		return err
	}
	return t.tx.Put(storage.OrderIndexKey(o.ID), o.MarketID)
}

func (t *Tx) InsertTrade(tr *Trade) error {
	return t.tx.Put(storage.TradeKey(tr.MarketID, tr.Seq, tr.ID), tr)
}

// OpenOrders returns every OPEN or PARTIAL order in a market, in key
// order. The scan enters the read set, so a commit racing with another
// writer into the same market fails rather than matching a stale book.
func (t *Tx) OpenOrders(marketID string) ([]*Order, error) {
	var out []*Order
	err := t.tx.Scan(storage.OrderPrefix(marketID), func(_ []byte, payload []byte) error {
		var o Order
		if err := storage.Unmarshal(payload, &o); err != nil {
			return err
		}
		if o.Status.Resting() {
			out = append(out, &o)
		}
		return nil
	})
	return out, err
}

// Positions returns every position record in a market.
func (t *Tx) Positions(marketID string) ([]*Position, error) {
	var out []*Position
	err := t.tx.Scan(storage.PositionPrefix(marketID), func(_ []byte, payload []byte) error {
		var p Position
		if err := storage.Unmarshal(payload, &p); err != nil {
			return err
		}
		out = append(out, &p)
		return nil
	})
	return out, err
}

func (t *Tx) Commit() error { return t.tx.Commit() }

// ---- Committed-state reads (no transaction, no locks) ----

func (l *Ledger) GetMarket(id string) (*Market, error) {
	var m Market
	if _, err := l.store.Get(storage.MarketKey(id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (l *Ledger) ListMarkets() ([]*Market, error) {
	var out []*Market
	err := l.store.Scan(storage.MarketPrefix(), func(_ []byte, payload []byte) error {
		var m Market
		if err := storage.Unmarshal(payload, &m); err != nil {
			return err
		}
		out = append(out, &m)
		return nil
	})
	return out, err
}

func (l *Ledger) GetAccount(chainID, userID string) (*Account, error) {
	var a Account
	if _, err := l.store.Get(storage.AccountKey(chainID, userID), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetOrder resolves an order id through the oix index.
func (l *Ledger) GetOrder(orderID string) (*Order, error) {
	var marketID string
	if _, err := l.store.Get(storage.OrderIndexKey(orderID), &marketID); err != nil {
		return nil, err
	}
	var o Order
	if _, err := l.store.Get(storage.OrderKey(marketID, orderID), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (l *Ledger) ListOpenOrders(marketID string) ([]*Order, error) {
	var out []*Order
	err := l.store.Scan(storage.OrderPrefix(marketID), func(_ []byte, payload []byte) error {
		var o Order
		if err := storage.Unmarshal(payload, &o); err != nil {
			return err
		}
		if o.Status.Resting() {
			out = append(out, &o)
		}
		return nil
	})
	return out, err
}

// ListTrades returns a market's trades in execution order, optionally
// filtered by token type (empty filter returns both books).
func (l *Ledger) ListTrades(marketID string, token TokenType) ([]*Trade, error) {
	var out []*Trade
	err := l.store.Scan(storage.TradePrefix(marketID), func(_ []byte, payload []byte) error {
		var tr Trade
		if err := storage.Unmarshal(payload, &tr); err != nil {
			return err
		}
		if token == "" || tr.TokenType == token {
			out = append(out, &tr)
		}
		return nil
	})
	return out, err
}

// ListUserPositions returns every market position of one (chain, user),
// resolved through the pix index.
func (l *Ledger) ListUserPositions(chainID, userID string) ([]*Position, error) {
	var marketIDs []string
	err := l.store.Scan(storage.PositionIndexPrefix(chainID, userID), func(_ []byte, payload []byte) error {
		var id string
		if err := storage.Unmarshal(payload, &id); err != nil {
			return err
		}
		marketIDs = append(marketIDs, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Position, 0, len(marketIDs))
	for _, id := range marketIDs {
		var p Position
		if _, err := l.store.Get(storage.PositionKey(id, chainID, userID), &p); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, &p)
	}
	return out, nil
}

// depositRecord is the journal line written per accepted credit.
type depositRecord struct {
	UserID     string          `json:"userId"`
	ChainID    string          `json:"chainId"`
	AmountUSD  decimal.Decimal `json:"amountUsd"`
	TxRef      string          `json:"txRef"`
	Height     int64           `json:"height"`
	CreditedAt time.Time       `json:"creditedAt"`
}

// CreditDeposit mirrors an on-chain deposit into the off-chain balance.
// Calls with externalBlockHeight at or below the stored watermark are
// dropped (success, no effect) so indexer restarts can replay safely.
// The account is created on first contact.
func (l *Ledger) CreditDeposit(ctx context.Context, userID, chainID string, amountUSD decimal.Decimal, txRef string, height int64) error {
	if amountUSD.Sign() <= 0 {
		return fmt.Errorf("deposit amount must be positive: %s", amountUSD)
	}

	for attempt := 0; attempt < creditRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx := l.NewTx()
		acc, err := tx.Account(chainID, userID)
		if errors.Is(err, storage.ErrNotFound) {
			acc = &Account{UserID: userID, ChainID: chainID, AvailableUSD: decimal.Zero}
		} else if err != nil {
			return err
		}

		if height <= acc.DepositHeight {
			l.log.Debugw("deposit_replayed",
				"user", userID, "chain", chainID, "height", height, "watermark", acc.DepositHeight)
			return nil
		}

		acc.AvailableUSD = acc.AvailableUSD.Add(amountUSD)
		acc.DepositHeight = height
		if err := tx.PutAccount(acc); err != nil {
			return err
		}

		err = tx.Commit()
		if errors.Is(err, storage.ErrUnavailable) {
			continue
		}
		if err != nil {
			return err
		}

		if err := l.journal.Append(depositRecord{
			UserID:     userID,
			ChainID:    chainID,
			AmountUSD:  amountUSD,
			TxRef:      txRef,
			Height:     height,
			CreditedAt: l.clock.Now().UTC(),
		}); err != nil {
			// The credit is committed; a journal failure is an audit gap,
			// not a ledger error.
			l.log.Errorw("deposit_journal_failed", "user", userID, "chain", chainID, "err", err)
		}

		l.log.Infow("deposit_credited",
			"user", userID, "chain", chainID, "amount_usd", amountUSD, "tx_ref", txRef, "height", height)
		return nil
	}
	return storage.ErrUnavailable
}
