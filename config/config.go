// Package config loads the bot configuration from a YAML file, a best-effort
// .env file and environment overrides. The result is validated once at
// startup and treated as immutable afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"binance-signalbot/internal/model"
	"binance-signalbot/internal/risk"
	"binance-signalbot/internal/store"
)

// Trading modes.
const (
	ModeMainnet = "mainnet"
	ModeTestnet = "testnet"
	ModePaper   = "paper"
)

// Config holds all application configuration.
type Config struct {
	Symbol       string `yaml:"symbol" default:"BTC/USDT" validate:"required,contains=/"`
	Timeframe    string `yaml:"timeframe" default:"15m" validate:"required,oneof=1m 3m 5m 15m 30m 1h 2h 4h 6h 8h 12h 1d 3d 1w 1M"`
	HistoryLimit int    `yaml:"history_limit" default:"100" validate:"min=2,max=1000"`

	Indicators struct {
		RSIPeriod int `yaml:"rsi_period" default:"14" validate:"min=1"`
		SMAPeriod int `yaml:"sma_period" default:"20" validate:"min=1"`
	} `yaml:"indicators"`

	Thresholds struct {
		Oversold   float64 `yaml:"oversold" default:"35" validate:"min=0,max=100"`
		Overbought float64 `yaml:"overbought" default:"65" validate:"min=0,max=100,gtfield=Oversold"`
	} `yaml:"thresholds"`

	Risk struct {
		StopLossPct   float64 `yaml:"stop_loss_pct" default:"0.01" validate:"gt=0,lt=1"`
		TakeProfitPct float64 `yaml:"take_profit_pct" default:"0.02" validate:"gt=0,lt=1"`
		Rounding      string  `yaml:"rounding" default:"half_away_from_zero" validate:"oneof=half_away_from_zero half_even"`
		CapitalBasis  string  `yaml:"capital_basis" default:"available" validate:"oneof=available total"`
	} `yaml:"risk"`

	Venues []VenueConfig `yaml:"venues" validate:"required,min=1,max=2,dive"`

	Schedule struct {
		EvaluationInterval time.Duration `yaml:"evaluation_interval" default:"15m" validate:"min=1s"`
		ReportInterval     time.Duration `yaml:"report_interval" default:"12h" validate:"min=1s"`
		PollInterval       time.Duration `yaml:"poll_interval" default:"1s" validate:"min=1ms"`
	} `yaml:"schedule"`

	Exchange ExchangeConfig `yaml:"exchange"`
	Paper    PaperConfig    `yaml:"paper"`
	Activity ActivityConfig `yaml:"activity"`
	Notify   NotifyConfig   `yaml:"notify"`

	HTTP struct {
		Addr string `yaml:"addr" default:":9090"`
	} `yaml:"http"`

	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	} `yaml:"log"`
}

// VenueConfig describes one market the bot trades.
type VenueConfig struct {
	Kind         string  `yaml:"kind" validate:"required,oneof=spot futures"`
	CapitalUsage float64 `yaml:"capital_usage" default:"0.6" validate:"gt=0,lte=1"`
	Leverage     int     `yaml:"leverage" default:"1" validate:"min=1,max=125"`
}

// ExchangeConfig holds the venue connection settings.
type ExchangeConfig struct {
	Mode       string        `yaml:"mode" default:"testnet" validate:"oneof=mainnet testnet paper"`
	APIKey     string        `yaml:"api_key"`
	APISecret  string        `yaml:"api_secret"`
	Timeout    time.Duration `yaml:"timeout" default:"10s" validate:"min=1ms"`
	RecvWindow time.Duration `yaml:"recv_window" default:"5s"`
	SpotURL    string        `yaml:"spot_url" validate:"omitempty,url"`
	FuturesURL string        `yaml:"futures_url" validate:"omitempty,url"`
	Breaker    BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the per-venue circuit breaker.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures" default:"3" validate:"min=1"`
	ResetTimeout time.Duration `yaml:"reset_timeout" default:"5m"`
}

// PaperConfig configures the simulated venue used in paper mode.
type PaperConfig struct {
	StartBalance float64 `yaml:"start_balance" default:"1000" validate:"gt=0"`
	SlippageBps  float64 `yaml:"slippage_bps" default:"5" validate:"min=0,max=1000"`
}

// ActivityConfig selects and configures the activity log backend.
type ActivityConfig struct {
	Backend        string `yaml:"backend" default:"file" validate:"oneof=file sqlite redis"`
	FilePath       string `yaml:"file_path" default:"profit_log.txt"`
	SQLitePath     string `yaml:"sqlite_path" default:"data/signalbot.db"`
	ArchiveCandles bool   `yaml:"archive_candles"`
	Redis          struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Stream   string `yaml:"stream" default:"signalbot:activity"`
	} `yaml:"redis"`
}

// NotifyConfig configures the notification sinks. A sink without its
// credentials is disabled.
type NotifyConfig struct {
	QueueSize   int           `yaml:"queue_size" default:"64" validate:"min=1"`
	SendTimeout time.Duration `yaml:"send_timeout" default:"15s"`
	Telegram    struct {
		Token  string `yaml:"token"`
		ChatID string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Email struct {
		Host     string   `yaml:"host"`
		Port     int      `yaml:"port" default:"587"`
		Username string   `yaml:"username"`
		Password string   `yaml:"password"`
		From     string   `yaml:"from"`
		To       []string `yaml:"to" validate:"dive,email"`
	} `yaml:"email"`
	WebhookURL string `yaml:"webhook_url" validate:"omitempty,url"`
	Websocket  bool   `yaml:"websocket" default:"true"`
	ReplaySize int    `yaml:"replay_size" default:"100" validate:"min=1"`
}

var validate = validator.New()

// Load reads path, applies .env and environment overrides and validates.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse builds a Config from YAML bytes plus the process environment.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(c.Venues) == 0 {
		c.Venues = []VenueConfig{{Kind: "spot"}, {Kind: "futures", Leverage: 2}}
	}
	for i := range c.Venues {
		if err := defaults.Set(&c.Venues[i]); err != nil {
			return nil, fmt.Errorf("config defaults: venue %d: %w", i, err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// applyEnv overrides secrets and deployment settings from the environment,
// using the variable names of the classic .env layout.
func (c *Config) applyEnv() error {
	setStr(&c.Exchange.APIKey, "BINANCE_API_KEY")
	setStr(&c.Exchange.APISecret, "BINANCE_API_SECRET")
	setStr(&c.Exchange.Mode, "BOT_MODE")
	setStr(&c.Notify.Telegram.Token, "TELEGRAM_TOKEN")
	setStr(&c.Notify.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setStr(&c.Notify.Email.Host, "EMAIL_HOST")
	setStr(&c.Notify.Email.Username, "EMAIL_USER")
	setStr(&c.Notify.Email.Password, "EMAIL_PASS")
	setStr(&c.Notify.WebhookURL, "WEBHOOK_URL")
	setStr(&c.Activity.Backend, "ACTIVITY_BACKEND")
	setStr(&c.Activity.Redis.Addr, "REDIS_ADDR")
	setStr(&c.Activity.Redis.Password, "REDIS_PASSWORD")
	setStr(&c.HTTP.Addr, "HTTP_ADDR")
	setStr(&c.Log.Level, "LOG_LEVEL")

	if v := getEnv("EMAIL_TO", ""); v != "" {
		c.Notify.Email.To = splitList(v)
	}
	if v := getEnv("EMAIL_PORT", ""); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EMAIL_PORT: %w", err)
		}
		c.Notify.Email.Port = port
	}
	// the mail sender defaults to the login user
	if c.Notify.Email.From == "" {
		c.Notify.Email.From = c.Notify.Email.Username
	}
	return nil
}

// Validate runs the struct tag rules and the cross-field checks.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	var errs []error
	longest := c.Indicators.RSIPeriod
	if c.Indicators.SMAPeriod > longest {
		longest = c.Indicators.SMAPeriod
	}
	if longest > c.HistoryLimit {
		errs = append(errs, fmt.Errorf("history_limit %d is shorter than the longest indicator period %d", c.HistoryLimit, longest))
	}

	seen := map[string]bool{}
	for i, v := range c.Venues {
		if seen[v.Kind] {
			errs = append(errs, fmt.Errorf("venues[%d]: duplicate venue %q", i, v.Kind))
		}
		seen[v.Kind] = true
		if v.Kind == "spot" && v.Leverage != 1 {
			errs = append(errs, fmt.Errorf("venues[%d]: spot leverage must be 1, got %d", i, v.Leverage))
		}
	}

	if c.Exchange.Mode != ModePaper && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		errs = append(errs, fmt.Errorf("exchange.mode %s requires BINANCE_API_KEY and BINANCE_API_SECRET", c.Exchange.Mode))
	}
	if c.TelegramEnabled() != (c.Notify.Telegram.Token != "" || c.Notify.Telegram.ChatID != "") {
		errs = append(errs, errors.New("notify.telegram needs both token and chat_id"))
	}
	if c.Notify.Email.Host != "" && (c.Notify.Email.From == "" || len(c.Notify.Email.To) == 0) {
		errs = append(errs, errors.New("notify.email needs from (or EMAIL_USER) and at least one recipient"))
	}
	if c.Activity.ArchiveCandles && c.Activity.Backend != store.BackendSQLite {
		errs = append(errs, errors.New("activity.archive_candles requires the sqlite backend"))
	}
	return errors.Join(errs...)
}

// TelegramEnabled reports whether both Telegram credentials are set.
func (c *Config) TelegramEnabled() bool {
	return c.Notify.Telegram.Token != "" && c.Notify.Telegram.ChatID != ""
}

// EmailEnabled reports whether the SMTP sink is configured.
func (c *Config) EmailEnabled() bool {
	return c.Notify.Email.Host != ""
}

// ModelVenues converts the venue list, in configured order.
func (c *Config) ModelVenues() ([]model.Venue, error) {
	out := make([]model.Venue, 0, len(c.Venues))
	for i, vc := range c.Venues {
		kind, err := model.ParseVenueKind(vc.Kind)
		if err != nil {
			return nil, fmt.Errorf("venues[%d]: %w", i, err)
		}
		if kind == model.Spot {
			out = append(out, model.NewSpot(vc.CapitalUsage))
			continue
		}
		v, err := model.NewLeveraged(vc.CapitalUsage, vc.Leverage)
		if err != nil {
			return nil, fmt.Errorf("venues[%d]: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Sizer builds the risk sizer from the risk section.
func (c *Config) Sizer() (risk.Sizer, risk.CapitalBasis, error) {
	mode, err := risk.ParseRoundingMode(c.Risk.Rounding)
	if err != nil {
		return risk.Sizer{}, "", err
	}
	basis, err := risk.ParseCapitalBasis(c.Risk.CapitalBasis)
	if err != nil {
		return risk.Sizer{}, "", err
	}
	return risk.Sizer{
		Mode:          mode,
		StopLossPct:   c.Risk.StopLossPct,
		TakeProfitPct: c.Risk.TakeProfitPct,
	}, basis, nil
}

func setStr(dst *string, key string) {
	if v := getEnv(key, ""); v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
