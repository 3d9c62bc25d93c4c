package exchange

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BakaOtaku/robet-ai/params"
	"github.com/BakaOtaku/robet-ai/pkg/crypto"
	"github.com/BakaOtaku/robet-ai/pkg/ledger"
)

// admitRetries bounds the admission transaction's optimistic retries.
// The market lock is held, but the user's account can still be touched
// by a deposit credit or a fill in another market.
const admitRetries = 5

var one = decimal.NewFromInt(1)

// OrderRequest is a signed limit order as it arrives from transport.
// Price is the client's exact decimal string; it is embedded verbatim in
// the canonical signed message.
type OrderRequest struct {
	MarketID      string
	UserID        string
	ChainID       string
	WalletAddress string
	Side          ledger.Side
	TokenType     ledger.TokenType
	Price         string
	Quantity      int64

	Signature        string
	SessionPublicKey string
	SessionAddress   string
}

// SubmitOrder validates and verifies a new limit order, locks the assets
// backing it, persists it OPEN, and runs the matching pass with the
// order as taker. The returned order carries its post-matching status.
func (x *Exchange) SubmitOrder(ctx context.Context, req OrderRequest) (*ledger.Order, error) {
	price, spec, err := x.validateOrder(req)
	if err != nil {
		return nil, err
	}
	if err := x.verifyOrder(req, spec); err != nil {
		return nil, err
	}

	unlock := x.locks.Lock(req.MarketID)
	defer unlock()

	order, err := x.admit(ctx, req, price)
	if err != nil {
		return nil, err
	}
	x.log.Infow("order_admitted",
		"order", order.ID, "market", order.MarketID, "user", order.UserID, "chain", order.ChainID,
		"side", order.Side, "token", order.TokenType, "price", order.Price, "quantity", order.Quantity)

	x.match(ctx, order)
	x.notifyBook(order.MarketID)

	final, err := x.ledger.GetOrder(order.ID)
	if err != nil {
		// The order committed; surface it as admitted if the re-read races.
		return order, nil
	}
	return final, nil
}

// validateOrder performs transport-level checks before any crypto or
// ledger work.
func (x *Exchange) validateOrder(req OrderRequest) (decimal.Decimal, params.ChainSpec, error) {
	var zero decimal.Decimal
	if req.MarketID == "" || req.UserID == "" || req.ChainID == "" {
		return zero, params.ChainSpec{}, E(CodeMissingField, "marketId, userId and chainId are required")
	}
	if !req.Side.Valid() {
		return zero, params.ChainSpec{}, E(CodeMissingField, "side must be buy or sell")
	}
	if !req.TokenType.Valid() {
		return zero, params.ChainSpec{}, E(CodeMissingField, "tokenType must be yes or no")
	}
	if req.Price == "" {
		return zero, params.ChainSpec{}, E(CodeMissingField, "price is required")
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return zero, params.ChainSpec{}, E(CodeInvalidPrice, "price %q is not a decimal", req.Price)
	}
	if price.Sign() < 0 || price.GreaterThan(one) {
		return zero, params.ChainSpec{}, E(CodeInvalidPrice, "price %s outside [0,1]", price)
	}
	if req.Quantity <= 0 {
		return zero, params.ChainSpec{}, E(CodeInvalidQuantity, "quantity must be a positive integer: %d", req.Quantity)
	}
	spec, ok := x.cfg.Chain(req.ChainID)
	if !ok {
		return zero, params.ChainSpec{}, E(CodeUnsupportedChain, "no signature scheme for chain %q", req.ChainID)
	}
	if !spec.Trust {
		if req.WalletAddress == "" {
			return zero, params.ChainSpec{}, E(CodeMissingField, "walletAddress is required")
		}
		if req.Signature == "" {
			return zero, params.ChainSpec{}, E(CodeMissingField, "signature is required")
		}
	}
	return price, spec, nil
}

// verifyOrder reconstructs the canonical message and checks the
// signature under the chain's scheme.
func (x *Exchange) verifyOrder(req OrderRequest, spec params.ChainSpec) error {
	msg := crypto.OrderMessage(req.MarketID, req.UserID, string(req.Side), req.Price, req.Quantity, string(req.TokenType))
	err := x.verifier.VerifyOrder(msg, crypto.OrderSignature{
		ChainID:          req.ChainID,
		WalletAddress:    req.WalletAddress,
		Signature:        req.Signature,
		SessionPublicKey: req.SessionPublicKey,
		SessionAddress:   req.SessionAddress,
	})
	switch {
	case err == nil:
	case errors.Is(err, crypto.ErrUnsupportedChain):
		return Wrap(CodeUnsupportedChain, err, "chain %q", req.ChainID)
	case errors.Is(err, crypto.ErrMalformedEncoding):
		return Wrap(CodeMalformedSignature, err, "signature does not decode")
	default:
		return Wrap(CodeUnauthorized, err, "signature mismatch for %s on %s", req.UserID, req.ChainID)
	}

	// The ledger is keyed by the depositing wallet, so for wallet-signed
	// schemes the signer must be the account owner. adr36 session keys
	// sign on the user's behalf; the session grant binds them upstream.
	if !spec.Trust && spec.Scheme != params.SchemeADR36 && !strings.EqualFold(req.WalletAddress, req.UserID) {
		return E(CodeUnauthorized, "wallet %s does not match user %s", req.WalletAddress, req.UserID)
	}
	return nil
}

// admit runs the admission transaction: market and account checks, asset
// locking per the side/token table, and the OPEN order insert. Aborts
// leave no effect.
func (x *Exchange) admit(ctx context.Context, req OrderRequest, price decimal.Decimal) (*ledger.Order, error) {
	for attempt := 0; attempt < admitRetries; attempt++ {
		tx := x.ledger.NewTx()

		m, err := tx.Market(req.MarketID)
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, E(CodeMarketNotFound, "market %s", req.MarketID)
		}
		if err != nil {
			return nil, err
		}
		if m.Settled || !x.clock.Now().Before(m.ResolutionDate) {
			return nil, E(CodeMarketClosed, "market %s is closed", req.MarketID)
		}

		acc, err := tx.Account(req.ChainID, req.UserID)
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, E(CodeUserNotFound, "no deposits for %s on %s", req.UserID, req.ChainID)
		}
		if err != nil {
			return nil, err
		}

		pos, err := tx.PositionOrZero(req.MarketID, req.ChainID, req.UserID)
		if err != nil {
			return nil, err
		}

		if err := lockAssets(acc, pos, req.Side, req.TokenType, price, req.Quantity); err != nil {
			return nil, err
		}

		order := &ledger.Order{
			ID:        uuid.NewString(),
			MarketID:  req.MarketID,
			UserID:    req.UserID,
			ChainID:   req.ChainID,
			Side:      req.Side,
			TokenType: req.TokenType,
			Price:     price,
			Quantity:  req.Quantity,
			Status:    ledger.OrderOpen,
			Seq:       tx.NextSeq(m),
			CreatedAt: x.clock.Now().UTC(),
		}

		if err := tx.PutMarket(m); err != nil {
			return nil, err
		}
		if err := tx.PutAccount(acc); err != nil {
			return nil, err
		}
		if err := tx.PutPosition(pos); err != nil {
			return nil, err
		}
		if err := tx.PutOrder(order); err != nil {
			return nil, err
		}

		if err := ctx.Err(); err != nil {
			return nil, mapCtxErr(err)
		}
		err = tx.Commit()
		if errors.Is(err, ledger.ErrUnavailable) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return order, nil
	}
	return nil, E(CodeUnavailable, "admission lost %d revision races", admitRetries)
}

// lockAssets applies the admission locking table to the loaded account
// and position. BUY locks price*quantity of funds; SELL reserves owned
// inventory first and collateralizes the shortfall one unit per token.
func lockAssets(acc *ledger.Account, pos *ledger.Position, side ledger.Side, token ledger.TokenType, price decimal.Decimal, quantity int64) error {
	if side == ledger.Buy {
		lock := price.Mul(decimal.NewFromInt(quantity))
		if acc.AvailableUSD.LessThan(lock) {
			return E(CodeInsufficientFunds, "have %s, need %s", acc.AvailableUSD, lock)
		}
		acc.AvailableUSD = acc.AvailableUSD.Sub(lock)
		return nil
	}

	owned := pos.Tokens(token)
	move := quantity
	if owned < move {
		move = owned
	}
	short := quantity - move
	if short > 0 {
		collateral := decimal.NewFromInt(short)
		if acc.AvailableUSD.LessThan(collateral) {
			return E(CodeInsufficientFunds,
				"short %d %s needs %s collateral, have %s", short, token, collateral, acc.AvailableUSD)
		}
		acc.AvailableUSD = acc.AvailableUSD.Sub(collateral)
		pos.AddLockedCollateral(token, collateral)
	}
	pos.AddTokens(token, -move)
	pos.AddLockedTokens(token, move)
	return nil
}
