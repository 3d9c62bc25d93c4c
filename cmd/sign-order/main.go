package main

// Dev tool: generate a throwaway key for one of the supported chains,
// sign a canonical order message with it, self-verify, and print a
// ready-to-POST order payload.

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mr-tron/base58"

	"github.com/BakaOtaku/robet-ai/pkg/crypto"
)

type orderPayload struct {
	MarketID         string `json:"marketId"`
	UserID           string `json:"userId"`
	ChainID          string `json:"chainId"`
	WalletAddress    string `json:"walletAddress"`
	Side             string `json:"side"`
	TokenType        string `json:"tokenType"`
	Price            string `json:"price"`
	Quantity         int64  `json:"quantity"`
	Signature        string `json:"signature"`
	SessionPublicKey string `json:"sessionPublicKey,omitempty"`
	SessionAddress   string `json:"sessionAddress,omitempty"`
}

func main() {
	chain := flag.String("chain", "ethereum", "chain to sign for: solana | xion | ethereum")
	marketID := flag.String("market", "demo-market", "market id")
	userID := flag.String("user", "", "user id (defaults to the generated wallet address)")
	side := flag.String("side", "buy", "buy | sell")
	tokenType := flag.String("token", "yes", "yes | no")
	price := flag.String("price", "0.55", "limit price in [0,1], signed verbatim")
	quantity := flag.Int64("qty", 10, "quantity in whole tokens")
	sessionAddr := flag.String("session-address", "xion1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc5lzv7xu", "session address (xion only)")
	flag.Parse()

	payload := orderPayload{
		MarketID:  *marketID,
		ChainID:   *chain,
		Side:      *side,
		TokenType: *tokenType,
		Price:     *price,
		Quantity:  *quantity,
	}

	switch *chain {
	case "solana":
		addr, priv, err := crypto.GenerateSolanaKey()
		if err != nil {
			fatal("keygen: %v", err)
		}
		fmt.Printf("Address: %s\n", addr)
		fmt.Printf("Private Key: %s (KEEP SECRET!)\n\n", base58.Encode(priv))

		payload.WalletAddress = addr
		payload.UserID = orDefault(*userID, addr)
		msg := crypto.OrderMessage(payload.MarketID, payload.UserID, payload.Side, payload.Price, payload.Quantity, payload.TokenType)
		fmt.Printf("Message: %s\n", msg)

		payload.Signature = crypto.SignSolana(priv, msg)
		if err := crypto.VerifySolana(addr, msg, payload.Signature); err != nil {
			fatal("self-verify failed: %v", err)
		}

	case "xion":
		priv, err := crypto.GenerateCosmosKey()
		if err != nil {
			fatal("keygen: %v", err)
		}
		fmt.Printf("Session Address: %s\n\n", *sessionAddr)

		payload.WalletAddress = orDefault(*userID, *sessionAddr)
		payload.UserID = payload.WalletAddress
		payload.SessionAddress = *sessionAddr
		msg := crypto.OrderMessage(payload.MarketID, payload.UserID, payload.Side, payload.Price, payload.Quantity, payload.TokenType)
		fmt.Printf("Message: %s\n", msg)

		payload.Signature, payload.SessionPublicKey = crypto.SignADR36(priv, *sessionAddr, msg)
		if err := crypto.VerifyADR36(*sessionAddr, msg, payload.Signature, payload.SessionPublicKey); err != nil {
			fatal("self-verify failed: %v", err)
		}

	case "ethereum":
		signer, err := crypto.GenerateEVMKey()
		if err != nil {
			fatal("keygen: %v", err)
		}
		fmt.Printf("Address: %s\n", signer.Address())
		fmt.Printf("Private Key: %s (KEEP SECRET!)\n\n", signer.PrivateKeyHex())

		payload.WalletAddress = signer.Address()
		payload.UserID = orDefault(*userID, signer.Address())
		msg := crypto.OrderMessage(payload.MarketID, payload.UserID, payload.Side, payload.Price, payload.Quantity, payload.TokenType)
		fmt.Printf("Message: %s\n", msg)

		payload.Signature, err = signer.SignPersonal(msg)
		if err != nil {
			fatal("signing: %v", err)
		}
		if err := crypto.VerifyEIP191(payload.WalletAddress, msg, payload.Signature); err != nil {
			fatal("self-verify failed: %v", err)
		}

	default:
		fatal("unknown chain %q (want solana, xion or ethereum)", *chain)
	}

	fmt.Println("✓ Signature VALID")

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fatal("marshal: %v", err)
	}
	fmt.Println("\nTo submit this order:")
	fmt.Println("  POST http://localhost:8080/api/v1/orders")
	fmt.Println("  Content-Type: application/json")
	fmt.Println("  Body:")
	fmt.Println(string(out))
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func fatal(format string, args ...any) {
	fmt.Printf("Error: "+format+"\n", args...)
	os.Exit(1)
}
