package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	CORS     CORSConfig
	Pricing  PricingConfig
	Tax      TaxConfig
	Secrets  SecretsConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path string
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// PricingConfig holds historical price source configuration
type PricingConfig struct {
	// BaseURL of the cryptocompare-compatible price history API.
	BaseURL string

	// Aliases maps renamed/rebranded tickers to the symbol the price
	// source still knows, e.g. post-rebrand assets queried under their
	// old ticker. Format in env: "FROM1:TO1,FROM2:TO2".
	Aliases map[string]string
}

// TaxConfig holds defaults for report tax policy
type TaxConfig struct {
	ReferenceCurrency      string
	TaxFreePeriodDays      int
	IncludeCryptoToCrypto  bool
	AccountForMarginEvents bool
}

// SecretsConfig holds key material for credentials-at-rest encryption
type SecretsConfig struct {
	// FernetKey is a base64-encoded 32-byte fernet key. When empty an
	// ephemeral key is generated at startup, so stored credentials do
	// not survive a restart.
	FernetKey string
}

// defaultAliases covers assets the price source only knows under a
// previous ticker. Overridable via PRICE_ALIASES.
var defaultAliases = map[string]string{
	"BCHSV": "BSV",
	"BQX":   "ETHOS",
	"DRK":   "DASH",
	"XRB":   "NANO",
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "5001"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/taxledger.db"),
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost",
			},
		},
		Pricing: PricingConfig{
			BaseURL: getEnv("PRICE_API_URL", "https://min-api.cryptocompare.com"),
			Aliases: parseAliases(getEnv("PRICE_ALIASES", "")),
		},
		Tax: TaxConfig{
			ReferenceCurrency:      getEnv("REFERENCE_CURRENCY", "EUR"),
			TaxFreePeriodDays:      getEnvInt("TAXFREE_PERIOD_DAYS", 365),
			IncludeCryptoToCrypto:  getEnvBool("INCLUDE_CRYPTO2CRYPTO", true),
			AccountForMarginEvents: getEnvBool("ACCOUNT_FOR_MARGIN", true),
		},
		Secrets: SecretsConfig{
			FernetKey: getEnv("FERNET_KEY", ""),
		},
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	return config, nil
}

// parseAliases parses "FROM:TO,FROM:TO" pairs on top of the built-in
// alias table. Malformed pairs are ignored.
func parseAliases(s string) map[string]string {
	aliases := make(map[string]string, len(defaultAliases))
	for from, to := range defaultAliases {
		aliases[from] = to
	}
	for _, pair := range strings.Split(s, ",") {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		from := strings.TrimSpace(parts[0])
		to := strings.TrimSpace(parts[1])
		if from != "" && to != "" {
			aliases[from] = to
		}
	}
	return aliases
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var n int
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return defaultValue
	}
	return n
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
