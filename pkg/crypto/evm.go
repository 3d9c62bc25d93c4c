package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// EVM scheme: personal_sign (EIP-191) over the raw message. The wallet
// address is the EIP-55 hex address; the signature is 65-byte hex
// [R || S || V] with V in either 0/1 or 27/28 form.

// PersonalHash returns keccak256 of the EIP-191 prefixed message.
func PersonalHash(message []byte) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return ethcrypto.Keccak256([]byte(prefixed))
}

// VerifyEIP191 recovers the signer of a personal_sign signature and
// compares it to the claimed wallet address (case-insensitive; clients
// differ on EIP-55 casing).
func VerifyEIP191(walletAddress string, message []byte, signatureHex string) error {
	sig, err := decodeEVMSignature(signatureHex)
	if err != nil {
		return err
	}
	pub, err := ethcrypto.Ecrecover(PersonalHash(message), sig)
	if err != nil {
		return fmt.Errorf("%w: recover: %v", ErrBadSignature, err)
	}
	recovered := AddressFromUncompressedPub(pub)
	if recovered == "" || !strings.EqualFold(recovered, walletAddress) {
		return ErrBadSignature
	}
	return nil
}

func decodeEVMSignature(sig string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrMalformedEncoding, err)
	}
	if len(raw) != 65 {
		return nil, fmt.Errorf("%w: signature is %d bytes, want 65", ErrMalformedEncoding, len(raw))
	}
	// Wallets emit V as 27/28; Ecrecover wants 0/1.
	if raw[64] >= 27 {
		raw[64] -= 27
	}
	return raw, nil
}

// Signer holds a secp256k1 key for the EVM scheme. Used by the dev
// signing tool and tests; the service itself only verifies.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    string
}

// GenerateEVMKey creates a random secp256k1 keypair with its EIP-55
// address.
func GenerateEVMKey() (*Signer, error) {
	privateKey, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return newSigner(privateKey), nil
}

// EVMKeyFromHex loads a Signer from a hex private key, with or without
// the 0x prefix.
func EVMKeyFromHex(hexKey string) (*Signer, error) {
	privateKey, err := ethcrypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return newSigner(privateKey), nil
}

func newSigner(privateKey *ecdsa.PrivateKey) *Signer {
	pub := ethcrypto.FromECDSAPub(&privateKey.PublicKey)
	return &Signer{
		privateKey: privateKey,
		address:    AddressFromUncompressedPub(pub),
	}
}

// Address returns the EIP-55 checksummed address.
func (s *Signer) Address() string { return s.address }

// PrivateKeyHex returns the private key as bare hex. Keep it out of logs.
func (s *Signer) PrivateKeyHex() string {
	return fmt.Sprintf("%x", ethcrypto.FromECDSA(s.privateKey))
}

// SignPersonal signs a message under EIP-191 and returns the 0x-prefixed
// 65-byte signature with V in 27/28 form.
func (s *Signer) SignPersonal(message []byte) (string, error) {
	sig, err := ethcrypto.Sign(PersonalHash(message), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}
