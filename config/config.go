package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"swingbot/internal/model"
)

// Mode selects how signals are executed.
type Mode string

const (
	ModeLive  Mode = "live"
	ModePaper Mode = "paper"
	ModeTest  Mode = "test"
)

// Valid reports whether m is a recognized trading mode.
func (m Mode) Valid() bool {
	return m == ModeLive || m == ModePaper || m == ModeTest
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Angel One credentials
	AngelAPIKey     string
	AngelClientCode string
	AngelPassword   string
	AngelTOTPSecret string

	// Telegram (optional, empty disables)
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string

	// Infrastructure
	DataDir        string // root for historical CSV series
	JournalPath    string // SQLite trade journal
	SnapshotPath   string // risk state snapshot JSON
	FeedSnapshot   string // live feed JSON written by the feed process
	InstrumentsYML string
	RedisAddr      string // optional live LTP mirror, empty disables
	RedisPassword  string
	MetricsAddr    string
	APIAddr        string // read-only status API, empty disables

	// Trading
	Mode           Mode
	Symbols        []string // override of the instruments file, empty = all
	ProductType    string
	OrderType      string
	ConfidenceMin  float64
	EntryBuffer    float64
	LevelRefresh   time.Duration
	FeedStaleAfter time.Duration

	// Risk
	MaxPositions        int
	MaxDailyLoss        float64
	MaxPositionSize     float64
	PositionSizePercent float64
	StopLossPercent     float64
	TargetProfitPercent float64

	// Orders
	OrderTimeout   time.Duration
	MaxOrderRetry  int
	OrderRetryWait time.Duration
	OrderPollEvery time.Duration
}

// Load reads configuration from the environment, after loading a .env file
// when one is present in the working directory.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env not loaded: %v", err)
	}

	return &Config{
		AngelAPIKey:     mustEnv("ANGEL_API_KEY"),
		AngelClientCode: mustEnv("ANGEL_CLIENT_CODE"),
		AngelPassword:   mustEnv("ANGEL_PASSWORD"),
		AngelTOTPSecret: mustEnv("ANGEL_TOTP_SECRET"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		DataDir:        getEnv("DATA_DIR", "data/historical"),
		JournalPath:    getEnv("JOURNAL_PATH", "data/journal.db"),
		SnapshotPath:   getEnv("SNAPSHOT_PATH", "data/risk_snapshot.json"),
		FeedSnapshot:   getEnv("FEED_SNAPSHOT", "data/live_feed_data.json"),
		InstrumentsYML: getEnv("INSTRUMENTS_FILE", "config/instruments.yaml"),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
		APIAddr:        getEnv("API_ADDR", ":8081"),

		Mode:           Mode(getEnv("TRADING_MODE", "paper")),
		Symbols:        splitList(getEnv("SYMBOLS", "")),
		ProductType:    getEnv("PRODUCT_TYPE", "CARRYFORWARD"),
		OrderType:      getEnv("ORDER_TYPE", "MARKET"),
		ConfidenceMin:  getEnvFloat("CONFIDENCE_MIN", 0.5),
		EntryBuffer:    getEnvFloat("ENTRY_BUFFER", 0.001),
		LevelRefresh:   getEnvDuration("LEVEL_REFRESH", time.Hour),
		FeedStaleAfter: getEnvDuration("FEED_STALE_AFTER", 10*time.Second),

		MaxPositions:        getEnvInt("MAX_POSITIONS", 10),
		MaxDailyLoss:        getEnvFloat("MAX_DAILY_LOSS", 50000),
		MaxPositionSize:     getEnvFloat("MAX_POSITION_SIZE", 100000),
		PositionSizePercent: getEnvFloat("POSITION_SIZE_PERCENT", 0.02),
		StopLossPercent:     getEnvFloat("STOP_LOSS_PERCENT", 0.05),
		TargetProfitPercent: getEnvFloat("TARGET_PROFIT_PERCENT", 0.10),

		OrderTimeout:   getEnvDuration("ORDER_TIMEOUT", 60*time.Second),
		MaxOrderRetry:  getEnvInt("MAX_ORDER_RETRY", 3),
		OrderRetryWait: getEnvDuration("ORDER_RETRY_WAIT", time.Second),
		OrderPollEvery: getEnvDuration("ORDER_POLL_INTERVAL", 5*time.Second),
	}
}

// Validate checks cross-field constraints not expressible per variable.
func (c *Config) Validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("config: unknown trading mode %q", c.Mode)
	}
	if c.PositionSizePercent <= 0 || c.PositionSizePercent > 1 {
		return fmt.Errorf("config: POSITION_SIZE_PERCENT out of range: %v", c.PositionSizePercent)
	}
	if c.MaxOrderRetry < 1 {
		return fmt.Errorf("config: MAX_ORDER_RETRY must be >= 1")
	}
	return nil
}

// instrumentsFile is the YAML shape of the instruments table.
type instrumentsFile struct {
	Instruments []model.Instrument `yaml:"instruments"`
}

// LoadInstruments reads the instruments YAML into a symbol-keyed map.
func (c *Config) LoadInstruments() (map[string]model.Instrument, error) {
	raw, err := os.ReadFile(c.InstrumentsYML)
	if err != nil {
		return nil, fmt.Errorf("config: read instruments: %w", err)
	}
	var f instrumentsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("config: parse instruments: %w", err)
	}
	out := make(map[string]model.Instrument, len(f.Instruments))
	for _, ins := range f.Instruments {
		if ins.Symbol == "" || ins.Token == "" {
			return nil, fmt.Errorf("config: instrument missing symbol or token: %+v", ins)
		}
		out[ins.Symbol] = ins
	}
	return out, nil
}

// splitList parses a comma-separated env value, trimming blanks.
func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return d
}
