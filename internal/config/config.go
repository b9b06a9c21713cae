// Package config loads process configuration from the environment, with an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/ledger"
)

// Config holds all app configuration.
type Config struct {
	// Server
	HTTPAddr string

	// Storage. Empty DSN disables the backend and falls back to memory.
	PostgresDSN   string
	ClickHouseDSN string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	// Kafka
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Mirror
	FeedURL     string // websocket feed of a running server
	UpstreamDSN string // journal the mirror backfills gaps from

	// Token
	TokenName       string
	TokenSymbol     string
	TotalSupply     string // whole tokens
	Owner           string // base58; derived from OwnerSeed when empty
	OwnerSeed       string
	Self            string // base58; derived from Symbol when empty
	Router          string // base58; informational
	SellTaxPercent  int
	BuyTaxPercent   int
	AntiSnipeWindow time.Duration
}

// Load reads envFile (if it exists) into the process environment and builds
// the configuration. Variables already set in the environment win over the
// file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		ClickHouseDSN: getEnv("CLICKHOUSE_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		RedisTTL:      getEnvAsDuration("REDIS_TTL", 5*time.Minute),

		KafkaBrokers: getEnvAsSlice("KAFKA_BROKERS", nil, ","),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "token-operations"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "token-mirror"),

		FeedURL:     getEnv("FEED_URL", "ws://localhost:8080/ws"),
		UpstreamDSN: getEnv("UPSTREAM_POSTGRES_DSN", ""),

		TokenName:       getEnv("TOKEN_NAME", "QRB Token"),
		TokenSymbol:     getEnv("TOKEN_SYMBOL", "QRB"),
		TotalSupply:     getEnv("TOKEN_TOTAL_SUPPLY", "1000000"),
		Owner:           getEnv("TOKEN_OWNER", ""),
		OwnerSeed:       getEnv("TOKEN_OWNER_SEED", "owner"),
		Self:            getEnv("TOKEN_ADDRESS", ""),
		Router:          getEnv("ROUTER_ADDRESS", ""),
		SellTaxPercent:  getEnvAsInt("SELL_TAX_PERCENT", 5),
		BuyTaxPercent:   getEnvAsInt("BUY_TAX_PERCENT", 5),
		AntiSnipeWindow: getEnvAsDuration("ANTI_SNIPE_WINDOW", 10*time.Minute),
	}
	return cfg, nil
}

// OwnerAddress resolves the owner account.
func (c *Config) OwnerAddress() (domain.Address, error) {
	if c.Owner != "" {
		return domain.ParseAddress(c.Owner)
	}
	return domain.AddressFromSeed(c.OwnerSeed), nil
}

// TokenAddress resolves the ledger's own address.
func (c *Config) TokenAddress() (domain.Address, error) {
	if c.Self != "" {
		return domain.ParseAddress(c.Self)
	}
	return domain.AddressFromSeed("token:" + c.TokenSymbol), nil
}

// RouterAddress resolves the router address, zero when unset.
func (c *Config) RouterAddress() (domain.Address, error) {
	if c.Router == "" {
		return domain.ZeroAddress, nil
	}
	return domain.ParseAddress(c.Router)
}

// LedgerConfig builds the ledger configuration.
func (c *Config) LedgerConfig() (ledger.Config, error) {
	owner, err := c.OwnerAddress()
	if err != nil {
		return ledger.Config{}, fmt.Errorf("owner: %w", err)
	}
	self, err := c.TokenAddress()
	if err != nil {
		return ledger.Config{}, fmt.Errorf("token address: %w", err)
	}
	if c.SellTaxPercent < 0 || c.BuyTaxPercent < 0 {
		return ledger.Config{}, fmt.Errorf("%w: negative tax", ledger.ErrInvalidConfig)
	}

	lc := ledger.DefaultConfig(owner, self)
	lc.Name = c.TokenName
	lc.Symbol = c.TokenSymbol
	lc.SellTaxPercent = uint64(c.SellTaxPercent)
	lc.BuyTaxPercent = uint64(c.BuyTaxPercent)
	lc.AntiSnipeWindow = c.AntiSnipeWindow

	supply, err := domain.ParseUnits(c.TotalSupply, lc.Decimals)
	if err != nil {
		return ledger.Config{}, fmt.Errorf("total supply: %w", err)
	}
	lc.TotalSupply = supply

	return lc, lc.Validate()
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsSlice(key string, defaultVal []string, sep string) []string {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultVal
	}
	var out []string
	for _, v := range strings.Split(valStr, sep) {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
