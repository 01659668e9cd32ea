package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Delta Exchange India production endpoints, used when the api section
// leaves them blank.
const (
	defaultBaseURL = "https://api.india.delta.exchange"
	defaultWSURL   = "wss://socket.india.delta.exchange"
)

// timeframeMinutes maps a candle resolution to its length in minutes.
var timeframeMinutes = map[string]int{
	"1m": 1, "3m": 3, "5m": 5, "15m": 15, "30m": 30,
	"1h": 60, "2h": 120, "4h": 240, "6h": 360,
	"1d": 1440, "1w": 10080,
}

type Trading struct {
	Symbol              string  `yaml:"symbol"`
	ProductID           int     `yaml:"product_id"`
	OrderSize           float64 `yaml:"order_size"`
	MaxPositionSize     float64 `yaml:"max_position_size"`
	CheckExistingOrders *bool   `yaml:"check_existing_orders"`
}

type Schedule struct {
	Timeframe            string `yaml:"timeframe"`
	Timezone             string `yaml:"timezone"`
	ResetIntervalMinutes int    `yaml:"reset_interval_minutes"`
	WaitForNextCandle    bool   `yaml:"wait_for_next_candle"`
	StartupDelayMinutes  int    `yaml:"startup_delay_minutes"`
}

type RiskManagement struct {
	StopLossPoints         float64 `yaml:"stop_loss_points"`
	TakeProfitPoints       float64 `yaml:"take_profit_points"`
	BreakevenTriggerPoints float64 `yaml:"breakeven_trigger_points"`
}

type Monitoring struct {
	OrderCheckIntervalSec    int `yaml:"order_check_interval"`
	PositionCheckIntervalSec int `yaml:"position_check_interval"`
}

type API struct {
	BaseURL string `yaml:"base_url"`
	WSURL   string `yaml:"ws_url"`
}

type Storage struct {
	Path string `yaml:"path"`
}

type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Config struct {
	Trading        Trading        `yaml:"trading"`
	Schedule       Schedule       `yaml:"schedule"`
	RiskManagement RiskManagement `yaml:"risk_management"`
	Monitoring     Monitoring     `yaml:"monitoring"`
	API            API            `yaml:"api"`
	Storage        Storage        `yaml:"storage"`
	Logging        Logging        `yaml:"logging"`
	Server         Server         `yaml:"server"`

	// Credentials come from the environment, never from the YAML file.
	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`

	location *time.Location
}

// Load reads the YAML config, pulls credentials from the environment and
// applies defaults. All fields are resolved after Load; nothing downstream
// re-checks optional values.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.APIKey = os.Getenv("DELTA_API_KEY")
	cfg.APISecret = os.Getenv("DELTA_API_SECRET")

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Trading.MaxPositionSize == 0 {
		c.Trading.MaxPositionSize = c.Trading.OrderSize * 3
	}
	if c.Trading.CheckExistingOrders == nil {
		v := true
		c.Trading.CheckExistingOrders = &v
	}
	if c.Schedule.ResetIntervalMinutes == 0 {
		c.Schedule.ResetIntervalMinutes = timeframeMinutes[c.Schedule.Timeframe]
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "UTC"
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultBaseURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = defaultWSURL
	}
	if c.Monitoring.OrderCheckIntervalSec == 0 {
		c.Monitoring.OrderCheckIntervalSec = 10
	}
	if c.Monitoring.PositionCheckIntervalSec == 0 {
		c.Monitoring.PositionCheckIntervalSec = 5
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "bot.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File == "" {
		c.Logging.File = "breakout_bot.log"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	return nil
}

func (c *Config) validate() error {
	if c.Trading.Symbol == "" {
		return fmt.Errorf("trading.symbol is required")
	}
	if c.Trading.ProductID == 0 {
		return fmt.Errorf("trading.product_id is required")
	}
	if c.Trading.OrderSize <= 0 {
		return fmt.Errorf("trading.order_size must be positive")
	}
	if c.Trading.MaxPositionSize < c.Trading.OrderSize {
		return fmt.Errorf("trading.max_position_size %v is below order_size %v",
			c.Trading.MaxPositionSize, c.Trading.OrderSize)
	}
	if _, ok := timeframeMinutes[c.Schedule.Timeframe]; !ok {
		return fmt.Errorf("invalid schedule.timeframe %q", c.Schedule.Timeframe)
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("invalid schedule.timezone %q: %w", c.Schedule.Timezone, err)
	}
	c.location = loc
	if c.RiskManagement.StopLossPoints <= 0 {
		return fmt.Errorf("risk_management.stop_loss_points must be positive")
	}
	if c.RiskManagement.TakeProfitPoints <= 0 {
		return fmt.Errorf("risk_management.take_profit_points must be positive")
	}
	if c.RiskManagement.BreakevenTriggerPoints <= 0 {
		return fmt.Errorf("risk_management.breakeven_trigger_points must be positive")
	}
	return nil
}

// TimeframeDuration returns the candle period as a duration.
func (c *Config) TimeframeDuration() time.Duration {
	return time.Duration(timeframeMinutes[c.Schedule.Timeframe]) * time.Minute
}

// ResetInterval returns the cycle boundary period.
func (c *Config) ResetInterval() time.Duration {
	return time.Duration(c.Schedule.ResetIntervalMinutes) * time.Minute
}

// OrderCheckInterval returns how often pending entry orders are polled.
func (c *Config) OrderCheckInterval() time.Duration {
	return time.Duration(c.Monitoring.OrderCheckIntervalSec) * time.Second
}

// PositionCheckInterval returns how often an open position is polled.
func (c *Config) PositionCheckInterval() time.Duration {
	return time.Duration(c.Monitoring.PositionCheckIntervalSec) * time.Second
}

// Location returns the configured timezone.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// DuplicateCheckEnabled reports whether entry placement should refuse to run
// while any open order exists for the product.
func (c *Config) DuplicateCheckEnabled() bool {
	return c.Trading.CheckExistingOrders == nil || *c.Trading.CheckExistingOrders
}
