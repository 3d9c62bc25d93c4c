package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/mr-tron/base58"
)

// Solana-style scheme: the wallet address is the base58 ed25519 public
// key and the signature is a base58 detached signature over the raw
// message bytes.

// VerifySolana checks a detached ed25519 signature against the wallet's
// public key.
func VerifySolana(walletAddress string, message []byte, signature string) error {
	pub, err := base58.Decode(walletAddress)
	if err != nil {
		return fmt.Errorf("%w: wallet address: %v", ErrMalformedEncoding, err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: wallet address is %d bytes, want %d", ErrMalformedEncoding, len(pub), ed25519.PublicKeySize)
	}
	sig, err := base58.Decode(signature)
	if err != nil {
		return fmt.Errorf("%w: signature: %v", ErrMalformedEncoding, err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature is %d bytes, want %d", ErrMalformedEncoding, len(sig), ed25519.SignatureSize)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), message, sig) {
		return ErrBadSignature
	}
	return nil
}

// GenerateSolanaKey creates an ed25519 keypair; the returned address is
// the base58 public key, as Solana wallets render it.
func GenerateSolanaKey() (address string, priv ed25519.PrivateKey, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return base58.Encode(pub), priv, nil
}

// SignSolana produces the base58 detached signature over message.
func SignSolana(priv ed25519.PrivateKey, message []byte) string {
	return base58.Encode(ed25519.Sign(priv, message))
}
