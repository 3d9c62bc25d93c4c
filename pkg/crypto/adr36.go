package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Cosmos ADR-36 arbitrary-message scheme, as Xion session keys use it.
// The signed payload is a fixed amino StdSignDoc with a single
// sign/MsgSignData message; everything except signer and data is pinned
// to zero values. Keys are in alphabetical order so json.Marshal emits
// the exact compact serialization wallets hash.

type adr36Fee struct {
	Amount []string `json:"amount"`
	Gas    string   `json:"gas"`
}

type adr36MsgValue struct {
	Data   string `json:"data"`
	Signer string `json:"signer"`
}

type adr36Msg struct {
	Type  string        `json:"type"`
	Value adr36MsgValue `json:"value"`
}

type adr36SignDoc struct {
	AccountNumber string     `json:"account_number"`
	ChainID       string     `json:"chain_id"`
	Fee           adr36Fee   `json:"fee"`
	Memo          string     `json:"memo"`
	Msgs          []adr36Msg `json:"msgs"`
	Sequence      string     `json:"sequence"`
}

// ADR36SignBytes returns the compact JSON sign-doc for a message signed
// by signer.
func ADR36SignBytes(signer string, message []byte) []byte {
	doc := adr36SignDoc{
		AccountNumber: "0",
		ChainID:       "",
		Fee:           adr36Fee{Amount: []string{}, Gas: "0"},
		Memo:          "",
		Msgs: []adr36Msg{{
			Type: "sign/MsgSignData",
			Value: adr36MsgValue{
				Data:   base64.StdEncoding.EncodeToString(message),
				Signer: signer,
			},
		}},
		Sequence: "0",
	}
	b, err := json.Marshal(doc)
	if err != nil {
		// Fixed struct of strings; cannot fail.
		panic(fmt.Sprintf("marshal adr36 sign doc: %v", err))
	}
	return b
}

// VerifyADR36 checks a 64-byte r||s secp256k1 signature (base64) over
// the ADR-36 sign-doc hash against a 33-byte compressed session public
// key (base64). sessionAddress is embedded in the sign-doc as the
// signer; binding the session address to its public key is established
// when the session is granted, not here.
func VerifyADR36(sessionAddress string, message []byte, signatureB64, sessionPubKeyB64 string) error {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return fmt.Errorf("%w: signature: %v", ErrMalformedEncoding, err)
	}
	if len(sig) != 64 {
		return fmt.Errorf("%w: signature is %d bytes, want 64", ErrMalformedEncoding, len(sig))
	}
	pkBytes, err := base64.StdEncoding.DecodeString(sessionPubKeyB64)
	if err != nil {
		return fmt.Errorf("%w: session public key: %v", ErrMalformedEncoding, err)
	}
	pub, err := secp256k1.ParsePubKey(pkBytes)
	if err != nil {
		return fmt.Errorf("%w: session public key: %v", ErrMalformedEncoding, err)
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow {
		return fmt.Errorf("%w: signature r overflows group order", ErrMalformedEncoding)
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return fmt.Errorf("%w: signature s overflows group order", ErrMalformedEncoding)
	}

	hash := sha256.Sum256(ADR36SignBytes(sessionAddress, message))
	if !secpecdsa.NewSignature(&r, &s).Verify(hash[:], pub) {
		return ErrBadSignature
	}
	return nil
}

// GenerateCosmosKey creates a secp256k1 session keypair.
func GenerateCosmosKey() (*secp256k1.PrivateKey, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	return priv, nil
}

// SignADR36 signs a message under the ADR-36 sign-doc and returns the
// base64 (signature, compressed public key) pair in transport form.
func SignADR36(priv *secp256k1.PrivateKey, sessionAddress string, message []byte) (signatureB64, pubKeyB64 string) {
	hash := sha256.Sum256(ADR36SignBytes(sessionAddress, message))
	sig := secpecdsa.Sign(priv, hash[:])
	r, s := sig.R(), sig.S()
	raw := make([]byte, 64)
	rb, sb := r.Bytes(), s.Bytes()
	copy(raw[:32], rb[:])
	copy(raw[32:], sb[:])
	return base64.StdEncoding.EncodeToString(raw),
		base64.StdEncoding.EncodeToString(priv.PubKey().SerializeCompressed())
}
