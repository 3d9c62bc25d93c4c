package params

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Signature scheme names recognized by the verifier.
const (
	SchemeEd25519 = "ed25519" // Solana-style detached ed25519, base58 encoding
	SchemeADR36   = "adr36"   // Cosmos ADR-36 amino sign-doc, secp256k1, base64 encoding
	SchemeEIP191  = "eip191"  // EVM personal_sign, secp256k1, hex encoding
)

// ChainSpec describes one supported deposit/signing chain.
type ChainSpec struct {
	ID     string
	Scheme string
	// Trust skips signature verification for this chain (development only).
	Trust bool
}

type API struct {
	Addr string
	// AdminSecret signs/verifies the HS256 bearer tokens required by the
	// market-lifecycle and deposit-ingress endpoints. Empty disables those
	// endpoints entirely rather than leaving them open.
	AdminSecret string
}

type Store struct {
	Path        string
	JournalPath string
}

type Config struct {
	API    API
	Store  Store
	Chains []ChainSpec
}

func Default() Config {
	return Config{
		API: API{
			Addr: ":8080",
		},
		Store: Store{
			Path:        "data/ledger",
			JournalPath: "data/deposits.jsonl",
		},
		Chains: []ChainSpec{
			{ID: "solana", Scheme: SchemeEd25519},
			{ID: "xion", Scheme: SchemeADR36},
			{ID: "ethereum", Scheme: SchemeEIP191},
		},
	}
}

// Chain returns the spec for a chain id, if registered.
func (c Config) Chain(id string) (ChainSpec, bool) {
	for _, spec := range c.Chains {
		if spec.ID == id {
			return spec, true
		}
	}
	return ChainSpec{}, false
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	cfg.API.AdminSecret = getEnv("ADMIN_JWT_SECRET", cfg.API.AdminSecret)
	cfg.Store.Path = getEnv("DB_PATH", cfg.Store.Path)
	cfg.Store.JournalPath = getEnv("DEPOSIT_JOURNAL", cfg.Store.JournalPath)

	// Chain registry override.
	// Example: "solana:ed25519,xion:adr36,ethereum:eip191"
	if chains := os.Getenv("CHAINS"); chains != "" {
		var specs []ChainSpec
		for _, entry := range strings.Split(chains, ",") {
			parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
			if len(parts) != 2 || parts[0] == "" {
				continue
			}
			specs = append(specs, ChainSpec{ID: parts[0], Scheme: parts[1]})
		}
		if len(specs) > 0 {
			cfg.Chains = specs
		}
	}

	// Chains listed here admit orders without signature verification.
	// Example: "solana,xion"
	if trusted := os.Getenv("TRUSTED_CHAINS"); trusted != "" {
		set := make(map[string]bool)
		for _, id := range strings.Split(trusted, ",") {
			set[strings.TrimSpace(id)] = true
		}
		for i := range cfg.Chains {
			if set[cfg.Chains[i].ID] {
				cfg.Chains[i].Trust = true
			}
		}
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
