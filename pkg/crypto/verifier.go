package crypto

import (
	"errors"
	"fmt"

	"github.com/BakaOtaku/robet-ai/params"
)

var (
	// ErrUnsupportedChain means no signature scheme is registered for the
	// chain id.
	ErrUnsupportedChain = errors.New("crypto: unsupported chain")
	// ErrMalformedEncoding means a signature, key or address failed to
	// decode before verification was attempted.
	ErrMalformedEncoding = errors.New("crypto: malformed encoding")
	// ErrBadSignature means the payload decoded but was not authorized by
	// the claimed wallet.
	ErrBadSignature = errors.New("crypto: signature mismatch")
)

// OrderSignature carries the authorization material accompanying an
// order. Session fields are only meaningful for adr36 chains.
type OrderSignature struct {
	ChainID          string
	WalletAddress    string
	Signature        string
	SessionPublicKey string
	SessionAddress   string
}

// Verifier dispatches order signatures to the scheme registered for the
// claimed chain.
type Verifier struct {
	chains map[string]params.ChainSpec
}

func NewVerifier(chains []params.ChainSpec) *Verifier {
	m := make(map[string]params.ChainSpec, len(chains))
	for _, spec := range chains {
		m[spec.ID] = spec
	}
	return &Verifier{chains: m}
}

// Supported reports whether a chain id has a registered scheme.
func (v *Verifier) Supported(chainID string) bool {
	_, ok := v.chains[chainID]
	return ok
}

// VerifyOrder checks that message was authorized by the claimed wallet
// on the claimed chain. Chains configured with Trust skip verification
// entirely (development mode).
func (v *Verifier) VerifyOrder(message []byte, sig OrderSignature) error {
	spec, ok := v.chains[sig.ChainID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedChain, sig.ChainID)
	}
	if spec.Trust {
		return nil
	}

	switch spec.Scheme {
	case params.SchemeEd25519:
		return VerifySolana(sig.WalletAddress, message, sig.Signature)
	case params.SchemeADR36:
		if sig.SessionPublicKey == "" || sig.SessionAddress == "" {
			return fmt.Errorf("%w: adr36 requires session public key and address", ErrMalformedEncoding)
		}
		return VerifyADR36(sig.SessionAddress, message, sig.Signature, sig.SessionPublicKey)
	case params.SchemeEIP191:
		return VerifyEIP191(sig.WalletAddress, message, sig.Signature)
	default:
		return fmt.Errorf("%w: %s has unknown scheme %q", ErrUnsupportedChain, sig.ChainID, spec.Scheme)
	}
}
