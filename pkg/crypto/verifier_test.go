package crypto

import (
	"errors"
	"strings"
	"testing"

	"github.com/BakaOtaku/robet-ai/params"
)

func testChains() []params.ChainSpec {
	return []params.ChainSpec{
		{ID: "solana", Scheme: params.SchemeEd25519},
		{ID: "xion", Scheme: params.SchemeADR36},
		{ID: "ethereum", Scheme: params.SchemeEIP191},
		{ID: "devnet", Scheme: params.SchemeEd25519, Trust: true},
	}
}

func TestOrderMessageCanonicalForm(t *testing.T) {
	msg := OrderMessage("m1", "alice", "buy", "0.50", 10, "yes")
	want := "order:m1:alice:buy:0.50:10:yes"
	if string(msg) != want {
		t.Errorf("message = %q, want %q", msg, want)
	}

	// The price string must pass through untouched: "0.5" and "0.50" are
	// different messages.
	other := OrderMessage("m1", "alice", "buy", "0.5", 10, "yes")
	if string(other) == string(msg) {
		t.Error("price strings 0.5 and 0.50 produced the same message")
	}
}

func TestSolanaSignVerify(t *testing.T) {
	addr, priv, err := GenerateSolanaKey()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}

	msg := OrderMessage("m1", addr, "buy", "0.55", 10, "yes")
	sig := SignSolana(priv, msg)

	if err := VerifySolana(addr, msg, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// Tampered message
	tampered := OrderMessage("m1", addr, "buy", "0.55", 11, "yes")
	if err := VerifySolana(addr, tampered, sig); !errors.Is(err, ErrBadSignature) {
		t.Errorf("tampered message: err = %v, want ErrBadSignature", err)
	}

	// Wrong key
	otherAddr, _, _ := GenerateSolanaKey()
	if err := VerifySolana(otherAddr, msg, sig); !errors.Is(err, ErrBadSignature) {
		t.Errorf("wrong key: err = %v, want ErrBadSignature", err)
	}

	// Garbage encoding
	if err := VerifySolana(addr, msg, "!!not-base58!!"); !errors.Is(err, ErrMalformedEncoding) {
		t.Errorf("garbage signature: err = %v, want ErrMalformedEncoding", err)
	}
}

func TestADR36SignVerify(t *testing.T) {
	priv, err := GenerateCosmosKey()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	session := "xion1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc5lzv7xu"

	msg := OrderMessage("m1", "xion1useraddress", "sell", "0.40", 5, "no")
	sig, pub := SignADR36(priv, session, msg)

	if err := VerifyADR36(session, msg, sig, pub); err != nil {
		t.Fatalf("verify: %v", err)
	}

	tampered := OrderMessage("m1", "xion1useraddress", "sell", "0.41", 5, "no")
	if err := VerifyADR36(session, tampered, sig, pub); !errors.Is(err, ErrBadSignature) {
		t.Errorf("tampered message: err = %v, want ErrBadSignature", err)
	}

	// The session address is part of the sign-doc, so a different signer
	// string invalidates the signature.
	if err := VerifyADR36("xion1othersession", msg, sig, pub); !errors.Is(err, ErrBadSignature) {
		t.Errorf("wrong session address: err = %v, want ErrBadSignature", err)
	}

	if err := VerifyADR36(session, msg, "%%%", pub); !errors.Is(err, ErrMalformedEncoding) {
		t.Errorf("garbage signature: err = %v, want ErrMalformedEncoding", err)
	}
}

func TestEIP191SignVerify(t *testing.T) {
	signer, err := GenerateEVMKey()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}

	msg := OrderMessage("m1", signer.Address(), "buy", "1", 3, "yes")
	sig, err := signer.SignPersonal(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := VerifyEIP191(signer.Address(), msg, sig); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// Address comparison is case-insensitive: wallets send mixed-case
	// EIP-55, some clients lowercase everything.
	if err := VerifyEIP191(strings.ToLower(signer.Address()), msg, sig); err != nil {
		t.Errorf("lowercased address rejected: %v", err)
	}

	tampered := OrderMessage("m1", signer.Address(), "sell", "1", 3, "yes")
	if err := VerifyEIP191(signer.Address(), tampered, sig); !errors.Is(err, ErrBadSignature) {
		t.Errorf("tampered message: err = %v, want ErrBadSignature", err)
	}

	other, _ := GenerateEVMKey()
	if err := VerifyEIP191(other.Address(), msg, sig); !errors.Is(err, ErrBadSignature) {
		t.Errorf("wrong address: err = %v, want ErrBadSignature", err)
	}

	if err := VerifyEIP191(signer.Address(), msg, "0xzz"); !errors.Is(err, ErrMalformedEncoding) {
		t.Errorf("garbage signature: err = %v, want ErrMalformedEncoding", err)
	}
}

func TestEVMKeyRoundTrip(t *testing.T) {
	signer1, _ := GenerateEVMKey()
	signer2, err := EVMKeyFromHex(signer1.PrivateKeyHex())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if signer1.Address() != signer2.Address() {
		t.Errorf("address after reload = %s, want %s", signer2.Address(), signer1.Address())
	}
}

func TestVerifierDispatch(t *testing.T) {
	v := NewVerifier(testChains())
	msg := OrderMessage("m1", "alice", "buy", "0.50", 10, "yes")

	t.Run("unsupported chain", func(t *testing.T) {
		err := v.VerifyOrder(msg, OrderSignature{ChainID: "dogecoin", Signature: "x"})
		if !errors.Is(err, ErrUnsupportedChain) {
			t.Errorf("err = %v, want ErrUnsupportedChain", err)
		}
	})

	t.Run("trusted chain skips verification", func(t *testing.T) {
		err := v.VerifyOrder(msg, OrderSignature{ChainID: "devnet"})
		if err != nil {
			t.Errorf("trusted chain: %v", err)
		}
	})

	t.Run("ed25519 end to end", func(t *testing.T) {
		addr, priv, _ := GenerateSolanaKey()
		m := OrderMessage("m1", addr, "buy", "0.50", 10, "yes")
		err := v.VerifyOrder(m, OrderSignature{
			ChainID:       "solana",
			WalletAddress: addr,
			Signature:     SignSolana(priv, m),
		})
		if err != nil {
			t.Errorf("verify: %v", err)
		}
	})

	t.Run("adr36 requires session fields", func(t *testing.T) {
		err := v.VerifyOrder(msg, OrderSignature{ChainID: "xion", Signature: "AA=="})
		if !errors.Is(err, ErrMalformedEncoding) {
			t.Errorf("err = %v, want ErrMalformedEncoding", err)
		}
	})

	t.Run("eip191 end to end", func(t *testing.T) {
		signer, _ := GenerateEVMKey()
		m := OrderMessage("m1", signer.Address(), "buy", "0.50", 10, "yes")
		sig, _ := signer.SignPersonal(m)
		err := v.VerifyOrder(m, OrderSignature{
			ChainID:       "ethereum",
			WalletAddress: signer.Address(),
			Signature:     sig,
		})
		if err != nil {
			t.Errorf("verify: %v", err)
		}
	})
}
