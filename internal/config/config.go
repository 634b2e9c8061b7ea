package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"ValuationSentinel/internal/model"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken   string `yaml:"bot_token"`
		ChatID     string `yaml:"chat_id"`
		MaxRetries int    `yaml:"max_retries"`
	} `yaml:"telegram"`
	Data struct {
		Dir         string        `yaml:"dir"`
		CacheTTL    time.Duration `yaml:"cache_ttl"`
		Concurrency int           `yaml:"concurrency"`
		Benchmark   string        `yaml:"benchmark"`
		Targets     []model.Index `yaml:"targets"`
	} `yaml:"data"`
	Strategy model.StrategyParams `yaml:"strategy"`
	Schedule struct {
		DailyCron  string `yaml:"daily_cron"`
		WeeklyCron string `yaml:"weekly_cron"`
		Timezone   string `yaml:"timezone"`
	} `yaml:"schedule"`
	Ledger struct {
		StateFile string `yaml:"state_file"`
	} `yaml:"ledger"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Report struct {
		Title string `yaml:"title"`
	} `yaml:"report"`
	Proxy string `yaml:"proxy"`
}

// DefaultTargets are the indices tracked when the config names none.
func DefaultTargets() []model.Index {
	names := []struct{ code, name string }{
		{"大盘", "大盘指数"},
		{"沪深300", "沪深300指数"},
		{"中证500", "中证500指数"},
		{"全指医药", "全指医药"},
		{"上证50", "上证50"},
		{"创业板指", "创业板指"},
		{"养老产业", "养老产业"},
		{"中证红利", "中证红利"},
		{"中证环保", "中证环保"},
		{"中证传媒", "中证传媒"},
		{"全指金融", "全指金融"},
		{"证券公司", "证券公司"},
		{"全指消费", "全指消费"},
		{"全指信息", "全指信息"},
		{"中证医疗", "中证医疗"},
		{"中证白酒", "中证白酒"},
	}
	out := make([]model.Index, len(names))
	for i, n := range names {
		out[i] = model.Index{Code: n.code, Name: n.name, Prefix: n.code}
	}
	return out
}

// Load reads config from a YAML file, then applies .env and environment variable overrides.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{Strategy: model.DefaultStrategyParams()}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("BENCHMARK_INDEX"); v != "" {
		cfg.Data.Benchmark = v
	}
	if v := os.Getenv("CRON_DAILY"); v != "" {
		cfg.Schedule.DailyCron = v
	}
	if v := os.Getenv("CRON_WEEKLY"); v != "" {
		cfg.Schedule.WeeklyCron = v
	}
	if v := os.Getenv("LEDGER_STATE_FILE"); v != "" {
		cfg.Ledger.StateFile = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	envFloat("MAX_UNITS", &cfg.Strategy.MaxUnits)
	envFloat("STEP_PERCENT", &cfg.Strategy.StepPercent)
	envFloat("VOLATILITY_OVERRIDE_PCT", &cfg.Strategy.VolatilityOverridePct)
	if v := os.Getenv("MIN_INTERVAL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Strategy.MinIntervalDays = n
		}
	}

	// Defaults
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "index_data"
	}
	if cfg.Data.CacheTTL == 0 {
		cfg.Data.CacheTTL = time.Hour
	}
	if cfg.Data.Concurrency == 0 {
		cfg.Data.Concurrency = 4
	}
	if len(cfg.Data.Targets) == 0 {
		cfg.Data.Targets = DefaultTargets()
	}
	for i := range cfg.Data.Targets {
		t := &cfg.Data.Targets[i]
		if t.Prefix == "" {
			t.Prefix = t.Code
		}
		if t.Name == "" {
			t.Name = t.Code
		}
	}
	if cfg.Data.Benchmark == "" {
		cfg.Data.Benchmark = cfg.Data.Targets[0].Code
	}
	if cfg.Schedule.DailyCron == "" {
		cfg.Schedule.DailyCron = "0 30 18 * * 1-5"
	}
	if cfg.Schedule.WeeklyCron == "" {
		cfg.Schedule.WeeklyCron = "0 0 9 * * 6"
	}
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "Asia/Shanghai"
	}
	if cfg.Ledger.StateFile == "" {
		cfg.Ledger.StateFile = "data/portfolio_status.json"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/valuation_sentinel.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Telegram.MaxRetries == 0 {
		cfg.Telegram.MaxRetries = 3
	}
	if cfg.Report.Title == "" {
		cfg.Report.Title = "ValuationSentinel 估值日报"
	}

	return cfg, nil
}

// TelegramEnabled reports whether both bot token and chat id are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// Location returns the schedule time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Schedule.Timezone)
}

// Codes returns the configured index codes in order.
func (c *Config) Codes() []string {
	out := make([]string, len(c.Data.Targets))
	for i, t := range c.Data.Targets {
		out[i] = t.Code
	}
	return out
}

// CronParser parses the six-field (with seconds) schedule expressions.
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	var errs []error
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		errs = append(errs, errors.New("telegram.bot_token and telegram.chat_id must be set together"))
	}
	if c.Data.Dir == "" {
		errs = append(errs, errors.New("data.dir is required"))
	}
	seen := make(map[string]bool, len(c.Data.Targets))
	for i, t := range c.Data.Targets {
		if t.Code == "" {
			errs = append(errs, fmt.Errorf("data.targets[%d].code is required", i))
			continue
		}
		if seen[t.Code] {
			errs = append(errs, fmt.Errorf("data.targets: duplicate code %q", t.Code))
		}
		seen[t.Code] = true
	}
	if c.Data.Benchmark != "" && !seen[c.Data.Benchmark] {
		errs = append(errs, fmt.Errorf("data.benchmark %q is not a configured target", c.Data.Benchmark))
	}
	if err := ValidateStrategy(c.Strategy); err != nil {
		errs = append(errs, err)
	}
	for name, spec := range map[string]string{
		"schedule.daily_cron":  c.Schedule.DailyCron,
		"schedule.weekly_cron": c.Schedule.WeeklyCron,
	} {
		if _, err := CronParser.Parse(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("schedule.timezone: %w", err))
	}
	if c.Ledger.StateFile == "" {
		errs = append(errs, errors.New("ledger.state_file is required"))
	}
	return errors.Join(errs...)
}

// ValidateStrategy checks the ranges of the strategy knobs.
func ValidateStrategy(p model.StrategyParams) error {
	var errs []error
	if !(p.MaxUnits > 0) {
		errs = append(errs, errors.New("strategy.max_units must be positive"))
	}
	if !(p.StepPercent > 0 && p.StepPercent < 1) {
		errs = append(errs, errors.New("strategy.step_percent must be in (0, 1)"))
	}
	if p.MinIntervalDays < 0 {
		errs = append(errs, errors.New("strategy.min_interval_days must not be negative"))
	}
	if !(p.VolatilityOverridePct > 0 && p.VolatilityOverridePct < 1) {
		errs = append(errs, errors.New("strategy.volatility_override_pct must be in (0, 1)"))
	}
	for name, v := range map[string]float64{
		"strategy.sell_percentile": p.SellPercentile,
		"strategy.buy_percentile":  p.BuyPercentile,
	} {
		if !(v >= 0 && v <= 1) {
			errs = append(errs, fmt.Errorf("%s must be in [0, 1]", name))
		}
	}
	if p.BuyPercentile >= p.SellPercentile {
		errs = append(errs, errors.New("strategy.buy_percentile must be below strategy.sell_percentile"))
	}
	if !(p.SellDeviation > 0) {
		errs = append(errs, errors.New("strategy.sell_deviation must be positive"))
	}
	return errors.Join(errs...)
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
