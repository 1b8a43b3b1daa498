// Package config loads the agent configuration: a YAML file overlaid by
// environment variables (and a .env file, when present).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"solana-yield-agent/internal/domain"
)

// Configuration errors. Both are fatal: the agent must not start.
var (
	ErrMissingRPC         = errors.New("rpc_endpoint is required")
	ErrMissingPersistence = errors.New("persistence is not configured")
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Scanner names accepted in scanners.enabled.
const (
	ScannerMarinade  = "marinade"
	ScannerKamino    = "kamino"
	ScannerDefiLlama = "defillama"
)

// Config holds all application configuration.
type Config struct {
	RPCEndpoint string `yaml:"rpc_endpoint"`
	WSEndpoint  string `yaml:"ws_endpoint"`

	Storage struct {
		Driver        string `yaml:"driver"`
		PostgresDSN   string `yaml:"postgres_dsn"`
		ClickHouseDSN string `yaml:"clickhouse_dsn"`
		SQLitePath    string `yaml:"sqlite_path"`
	} `yaml:"storage"`

	Wallet struct {
		Address    string `yaml:"address"`
		PrivateKey string `yaml:"private_key"`
	} `yaml:"wallet"`

	Oracle struct {
		BaseURL     string        `yaml:"base_url"`
		APIKey      string        `yaml:"api_key"`
		Model       string        `yaml:"model"`
		Timeout     time.Duration `yaml:"timeout"`
		TopN        int           `yaml:"top_n"`
		Temperature float64       `yaml:"temperature"`
	} `yaml:"oracle"`

	Executor struct {
		QuoteURL        string        `yaml:"quote_url"`
		SwapURL         string        `yaml:"swap_url"`
		InputMint       string        `yaml:"input_mint"`
		OutputMint      string        `yaml:"output_mint"`
		AmountLamports  uint64        `yaml:"amount_lamports"`
		SlippageBps     int           `yaml:"slippage_bps"`
		ConfirmRetries  int           `yaml:"confirm_retries"`
		ConfirmInterval time.Duration `yaml:"confirm_interval"`
	} `yaml:"executor"`

	Agent struct {
		Interval       time.Duration         `yaml:"interval"`
		TickDeadline   time.Duration         `yaml:"tick_deadline"`
		ScanTimeout    time.Duration         `yaml:"scan_timeout"`
		MinBalanceSOL  float64               `yaml:"min_balance_sol"`
		Filter         domain.FilterCriteria `yaml:"filter"`
		ExecuteActions []string              `yaml:"execute_actions"`
	} `yaml:"agent"`

	Goal struct {
		TargetSOL  float64 `yaml:"target_sol"`
		DefaultAPY float64 `yaml:"default_apy"`
	} `yaml:"goal"`

	Scanners struct {
		MarinadeURL string   `yaml:"marinade_url"`
		KaminoURL   string   `yaml:"kamino_url"`
		LlamaURL    string   `yaml:"llama_url"`
		LlamaMinTVL float64  `yaml:"llama_min_tvl"`
		LlamaLimit  int      `yaml:"llama_limit"`
		Enabled     []string `yaml:"enabled"`
	} `yaml:"scanners"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides, then defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	// Existing environment variables win over .env entries.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.RPCEndpoint, "SOLANA_RPC_ENDPOINT")
	setString(&c.WSEndpoint, "SOLANA_WS_ENDPOINT")
	setString(&c.Storage.Driver, "STORAGE_DRIVER")
	setString(&c.Storage.PostgresDSN, "POSTGRES_DSN")
	setString(&c.Storage.ClickHouseDSN, "CLICKHOUSE_DSN")
	setString(&c.Storage.SQLitePath, "SQLITE_PATH")
	setString(&c.Wallet.Address, "WALLET_ADDRESS")
	setString(&c.Wallet.PrivateKey, "SOLANA_PRIVATE_KEY")
	setString(&c.Oracle.APIKey, "XAI_API_KEY")
	setString(&c.Oracle.BaseURL, "ORACLE_BASE_URL")
	setString(&c.Oracle.Model, "ORACLE_MODEL")
	setString(&c.HTTP.Addr, "HTTP_ADDR")

	if v := os.Getenv("AGENT_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("AGENT_INTERVAL: %w", err)
		}
		c.Agent.Interval = d
	}
	if v := os.Getenv("MIN_BALANCE_SOL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("MIN_BALANCE_SOL: %w", err)
		}
		c.Agent.MinBalanceSOL = f
	}
	if v := os.Getenv("GOAL_TARGET_SOL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("GOAL_TARGET_SOL: %w", err)
		}
		c.Goal.TargetSOL = f
	}
	if v := os.Getenv("GOAL_DEFAULT_APY"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("GOAL_DEFAULT_APY: %w", err)
		}
		c.Goal.DefaultAPY = f
	}
	if v := os.Getenv("SCANNERS_ENABLED"); v != "" {
		c.Scanners.Enabled = splitList(v)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Storage.Driver == "" {
		switch {
		case c.Storage.PostgresDSN != "":
			c.Storage.Driver = DriverPostgres
		case c.Storage.SQLitePath != "":
			c.Storage.Driver = DriverSQLite
		}
	}
	if c.Oracle.TopN == 0 {
		c.Oracle.TopN = 5
	}
	if c.Executor.SlippageBps == 0 {
		c.Executor.SlippageBps = 50
	}
	if c.Executor.ConfirmRetries == 0 {
		c.Executor.ConfirmRetries = 2
	}
	if c.Agent.Interval == 0 {
		c.Agent.Interval = 5 * time.Minute
	}
	if c.Agent.TickDeadline == 0 {
		c.Agent.TickDeadline = 2 * time.Minute
	}
	if c.Agent.ScanTimeout == 0 {
		c.Agent.ScanTimeout = 20 * time.Second
	}
	if c.Agent.MinBalanceSOL == 0 {
		c.Agent.MinBalanceSOL = 0.05
	}
	if len(c.Agent.ExecuteActions) == 0 {
		c.Agent.ExecuteActions = []string{"SWAP", "STAKE", "DEPLOY"}
	}
	if c.Goal.TargetSOL == 0 {
		c.Goal.TargetSOL = 1.0
	}
	if len(c.Scanners.Enabled) == 0 {
		c.Scanners.Enabled = []string{ScannerMarinade, ScannerKamino, ScannerDefiLlama}
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":9090"
	}
}

// Validate checks that all required fields are set and values make sense.
func (c *Config) Validate() error {
	if c.RPCEndpoint == "" {
		return ErrMissingRPC
	}
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: storage.postgres_dsn is required for driver postgres", ErrMissingPersistence)
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("%w: storage.sqlite_path is required for driver sqlite", ErrMissingPersistence)
		}
	case DriverMemory:
	case "":
		return fmt.Errorf("%w: set storage.driver (memory must be selected explicitly)", ErrMissingPersistence)
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Wallet.Address == "" && c.Wallet.PrivateKey == "" {
		return errors.New("wallet.address or wallet.private_key is required")
	}
	if c.Goal.TargetSOL <= 0 {
		return errors.New("goal.target_sol must be positive")
	}
	if c.Goal.DefaultAPY < 0 {
		return errors.New("goal.default_apy must not be negative")
	}
	if c.Agent.MinBalanceSOL < 0 {
		return errors.New("agent.min_balance_sol must not be negative")
	}
	if c.Agent.Interval < time.Second {
		return errors.New("agent.interval must be at least 1s")
	}
	if c.Agent.TickDeadline <= 0 || c.Agent.ScanTimeout <= 0 {
		return errors.New("agent.tick_deadline and agent.scan_timeout must be positive")
	}
	if c.Oracle.TopN < 0 {
		return errors.New("oracle.top_n must not be negative")
	}
	if c.Executor.SlippageBps < 0 || c.Executor.SlippageBps > 10_000 {
		return errors.New("executor.slippage_bps must be in [0, 10000]")
	}
	if c.Executor.ConfirmRetries < 0 {
		return errors.New("executor.confirm_retries must not be negative")
	}
	if _, err := c.Actions(); err != nil {
		return err
	}
	if r := c.Agent.Filter.MaxRisk; r != nil && !r.IsValid() {
		return fmt.Errorf("agent.filter.max_risk: unknown risk %q", *r)
	}
	for _, t := range c.Agent.Filter.Types {
		if !t.IsValid() {
			return fmt.Errorf("agent.filter.types: unknown type %q", t)
		}
	}
	for _, s := range c.Scanners.Enabled {
		switch s {
		case ScannerMarinade, ScannerKamino, ScannerDefiLlama:
		default:
			return fmt.Errorf("scanners.enabled: unknown scanner %q", s)
		}
	}
	return nil
}

// Actions parses agent.execute_actions. Names are matched case-insensitively.
func (c *Config) Actions() ([]domain.Action, error) {
	out := make([]domain.Action, 0, len(c.Agent.ExecuteActions))
	for _, raw := range c.Agent.ExecuteActions {
		a, ok := domain.ParseAction(strings.ToUpper(strings.TrimSpace(raw)))
		if !ok {
			return nil, fmt.Errorf("agent.execute_actions: unknown action %q", raw)
		}
		out = append(out, a)
	}
	return out, nil
}

// ScannerEnabled reports whether the named scanner is enabled.
func (c *Config) ScannerEnabled(name string) bool {
	for _, s := range c.Scanners.Enabled {
		if s == name {
			return true
		}
	}
	return false
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
