// Package cfg provides configuration management for the trading engine.
// It supports loading configuration from both YAML files and environment
// variables, with environment variables taking precedence over YAML
// settings.
//
// The package validates every parameter and applies sensible defaults for
// optional settings. It supports both live trading and dry-run modes with
// appropriate safety checks.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"marginloop/internal/common"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// IndicatorSpec is the per-indicator configuration block of spec.md §6.2:
// thresholds, flip-cooldown, min-hold and confirmation-bar knobs.
type IndicatorSpec struct {
	Name                 string             `yaml:"name"`
	BuyValue             float64            `yaml:"buyValue"`
	SellValue            float64            `yaml:"sellValue"`
	Params               map[string]float64 `yaml:"params"`
	FlipCooldownBars     int                `yaml:"flipCooldownBars"`
	FlipCooldownSeconds  float64            `yaml:"flipCooldownSeconds"`
	MinHoldBars          int                `yaml:"minHoldBars"`
	MinHoldSeconds       float64            `yaml:"minHoldSeconds"`
	ConfirmationBars     int                `yaml:"confirmationBars"`
	PerIndicatorMarginUSD float64           `yaml:"perIndicatorMarginUsd"`
}

// StopLossConfig is the stop_loss block of spec.md §6.2.
type StopLossConfig struct {
	Enabled bool    `yaml:"enabled"`
	Scope   string  `yaml:"scope"`   // per_trade | cumulative | entire_account
	Mode    string  `yaml:"mode"`    // usdt | percent | both
	USDT    float64 `yaml:"usdt"`
	Percent float64 `yaml:"percent"`
}

// SymbolConfig contains per-symbol configuration overrides.
type SymbolConfig struct {
	PositionPct      float64 `yaml:"positionPct"`
	Leverage         int     `yaml:"leverage"`
	MaxPriceDistance float64 `yaml:"maxPriceDistance"`
}

// Settings contains all configuration parameters for the engine.
type Settings struct {
	// API Configuration
	Key    string
	Secret string

	// Exchange Configuration
	AccountType      string // e.g. "USDT-M"
	ConnectorBackend string // "binance" | "generic"
	BaseURL          string
	WsURL            string
	RESTTimeout      time.Duration
	Ping             time.Duration

	// Trading mode
	Mode   string // "live" | "dry_run"
	DryRun bool

	// Market scope
	Symbols  []string
	Intervals []string
	Lookback int

	// Position configuration
	Leverage                  int
	PositionMode              string // ONE_WAY | HEDGE
	MarginMode                string // ISOLATED | CROSSED
	Side                      string // LONG | SHORT | BOTH
	PositionPct               float64
	PositionPctUnits          string // "of_balance" | "of_margin"
	AutoBumpEnabled           bool
	AutoBumpMaxSlots          int
	MaxAutoBumpPercent        float64
	AutoBumpPercentMultiplier float64
	MarginOverTargetTolerance float64
	AllowOppositePositions    bool
	AddOnly                   bool

	// Order-rate gate
	OrderRateIntervalMs int
	MinOrderIntervalMs  int

	// Guard windows
	GuardWindowMinSeconds float64
	GuardWindowMaxSeconds float64
	GuardWindowFactor     float64

	StopLoss   StopLossConfig
	Indicators map[string]IndicatorSpec

	// Per-symbol overrides
	SymbolConfigs map[string]SymbolConfig

	// System Configuration
	DataPath     string
	MetricsPort  int
	EventBusPort int

	// Account-level risk breakers (carried ambient safety net on top of
	// per-trade/cumulative/entire-account stop-loss scopes)
	MaxDailyLoss               float64
	MaxDrawdownProtection      float64
	CircuitBreakerErrorRate    float64
	CircuitBreakerRecoveryTime time.Duration

	OrderExecutionTimeout    time.Duration
	OrderStatusCheckInterval time.Duration
	MaxOrderRetries          int
}

// ConfigFile represents the structure of the YAML configuration file.
type ConfigFile struct {
	API struct {
		Key              string `yaml:"key"`
		Secret           string `yaml:"secret"`
		AccountType      string `yaml:"accountType"`
		ConnectorBackend string `yaml:"connectorBackend"`
		BaseURL          string `yaml:"baseURL"`
		WsURL            string `yaml:"wsURL"`
	} `yaml:"api"`

	Trading struct {
		Mode                      string   `yaml:"mode"`
		DryRun                    bool     `yaml:"dryRun"`
		Symbols                   []string `yaml:"symbols"`
		Intervals                 []string `yaml:"intervals"`
		Lookback                  int      `yaml:"lookback"`
		Leverage                  int      `yaml:"leverage"`
		PositionMode              string   `yaml:"positionMode"`
		MarginMode                string   `yaml:"marginMode"`
		Side                      string   `yaml:"side"`
		PositionPct               float64  `yaml:"positionPct"`
		PositionPctUnits          string   `yaml:"positionPctUnits"`
		AutoBumpEnabled           bool     `yaml:"autoBumpEnabled"`
		AutoBumpMaxSlots          int      `yaml:"autoBumpMaxSlots"`
		MaxAutoBumpPercent        float64  `yaml:"maxAutoBumpPercent"`
		AutoBumpPercentMultiplier float64  `yaml:"autoBumpPercentMultiplier"`
		MarginOverTargetTolerance float64  `yaml:"marginOverTargetTolerance"`
		AllowOppositePositions    bool     `yaml:"allowOppositePositions"`
		AddOnly                   bool     `yaml:"addOnly"`
		MaxDailyLoss              float64  `yaml:"maxDailyLoss"`
		MaxDrawdownProtection     float64  `yaml:"maxDrawdownProtection"`
	} `yaml:"trading"`

	OrderRate struct {
		IntervalMs    int `yaml:"intervalMs"`
		MinIntervalMs int `yaml:"minIntervalMs"`
	} `yaml:"orderRate"`

	GuardWindow struct {
		MinSeconds float64 `yaml:"minSeconds"`
		MaxSeconds float64 `yaml:"maxSeconds"`
		Factor     float64 `yaml:"factor"`
	} `yaml:"guardWindow"`

	StopLoss StopLossConfig `yaml:"stopLoss"`

	Indicators map[string]IndicatorSpec `yaml:"indicators"`

	SymbolConfig map[string]SymbolConfig `yaml:"symbolConfig"`

	System struct {
		DataPath     string `yaml:"dataPath"`
		PingInterval string `yaml:"pingInterval"`
		MetricsPort  int    `yaml:"metricsPort"`
		EventBusPort int    `yaml:"eventBusPort"`
		RESTTimeout  string `yaml:"restTimeout"`

		OrderExecutionTimeout    string `yaml:"orderExecutionTimeout"`
		OrderStatusCheckInterval string `yaml:"orderStatusCheckInterval"`
		MaxOrderRetries          int    `yaml:"maxOrderRetries"`
	} `yaml:"system"`

	CircuitBreaker struct {
		ErrorRate    float64 `yaml:"errorRate"`
		RecoveryTime string  `yaml:"recoveryTime"`
	} `yaml:"circuitBreaker"`
}

// Load loads configuration from either a YAML file or environment
// variables. It first checks for a CONFIG_FILE environment variable,
// otherwise falls back to loading entirely from the environment.
func Load() (Settings, error) {
	_ = godotenv.Load()

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	ping := getDurationOrDefault("PING_INTERVAL", 15*time.Second)
	if config.System.PingInterval != "" {
		if d, err := time.ParseDuration(config.System.PingInterval); err == nil {
			ping = d
		}
	}

	restTimeout := time.Duration(common.DefaultRESTTimeoutSeconds) * time.Second
	if config.System.RESTTimeout != "" {
		if parsed, err := time.ParseDuration(config.System.RESTTimeout); err == nil {
			restTimeout = parsed
		}
	}

	circuitBreakerRecoveryTime := 5 * time.Minute
	if config.CircuitBreaker.RecoveryTime != "" {
		if parsed, err := time.ParseDuration(config.CircuitBreaker.RecoveryTime); err == nil {
			circuitBreakerRecoveryTime = parsed
		}
	}

	orderExecutionTimeout := 30 * time.Second
	if config.System.OrderExecutionTimeout != "" {
		if parsed, err := time.ParseDuration(config.System.OrderExecutionTimeout); err == nil {
			orderExecutionTimeout = parsed
		}
	}

	orderStatusCheckInterval := 5 * time.Second
	if config.System.OrderStatusCheckInterval != "" {
		if parsed, err := time.ParseDuration(config.System.OrderStatusCheckInterval); err == nil {
			orderStatusCheckInterval = parsed
		}
	}

	maxOrderRetries := 3
	if config.System.MaxOrderRetries > 0 {
		maxOrderRetries = config.System.MaxOrderRetries
	}

	key := getEnvOrDefault(common.EnvAPIKey, config.API.Key)
	secret := getEnvOrDefault(common.EnvSecretKey, config.API.Secret)
	if key == "" || secret == "" {
		return Settings{}, fmt.Errorf(common.ErrMsgAPIKeyRequired)
	}

	settings := Settings{
		Key:                       key,
		Secret:                    secret,
		AccountType:               getEnvOrDefault(common.EnvAccountType, orDefault(config.API.AccountType, "USDT-M")),
		ConnectorBackend:          getEnvOrDefault(common.EnvConnectorBackend, orDefault(config.API.ConnectorBackend, "binance")),
		BaseURL:                   getEnvOrDefault(common.EnvBaseURL, orDefault(config.API.BaseURL, common.DefaultBaseURL)),
		WsURL:                     getEnvOrDefault(common.EnvWsURL, orDefault(config.API.WsURL, common.DefaultWsURL)),
		Ping:                      ping,
		Mode:                      orDefault(config.Trading.Mode, "dry_run"),
		DryRun:                    getBoolFromEnvOrConfig(common.EnvDryRun, config.Trading.DryRun),
		Symbols:                   getSymbolsFromEnvOrConfig(config.Trading.Symbols),
		Intervals:                 nonEmptyOr(config.Trading.Intervals, []string{"1h"}),
		Lookback:                  intOrDefault(config.Trading.Lookback, 200),
		Leverage:                  getIntOrDefault(common.EnvLeverage, intOrDefault(config.Trading.Leverage, common.DefaultLeverage)),
		PositionMode:              orDefault(config.Trading.PositionMode, common.DefaultPositionMode),
		MarginMode:                getEnvOrDefault(common.EnvMarginMode, orDefault(config.Trading.MarginMode, common.DefaultMarginMode)),
		Side:                      orDefault(config.Trading.Side, "BOTH"),
		PositionPct:               floatOrDefault(config.Trading.PositionPct, 0.05),
		PositionPctUnits:          orDefault(config.Trading.PositionPctUnits, "of_balance"),
		AutoBumpEnabled:           config.Trading.AutoBumpEnabled,
		AutoBumpMaxSlots:          intOrDefault(config.Trading.AutoBumpMaxSlots, 4),
		MaxAutoBumpPercent:        floatOrDefault(config.Trading.MaxAutoBumpPercent, common.DefaultMaxAutoBumpPercent),
		AutoBumpPercentMultiplier: floatOrDefault(config.Trading.AutoBumpPercentMultiplier, common.DefaultAutoBumpPercentMultiplier),
		MarginOverTargetTolerance: floatOrDefault(config.Trading.MarginOverTargetTolerance, common.DefaultMarginTolerance),
		AllowOppositePositions:    config.Trading.AllowOppositePositions,
		AddOnly:                   config.Trading.AddOnly,
		OrderRateIntervalMs:       intOrDefault(config.OrderRate.IntervalMs, common.DefaultOrderRateIntervalMs),
		MinOrderIntervalMs:        intOrDefault(config.OrderRate.MinIntervalMs, common.DefaultMinOrderIntervalMs),
		GuardWindowMinSeconds:     floatOrDefault(config.GuardWindow.MinSeconds, common.DefaultGuardWindowMinSec),
		GuardWindowMaxSeconds:     floatOrDefault(config.GuardWindow.MaxSeconds, common.DefaultGuardWindowMaxSec),
		GuardWindowFactor:         floatOrDefault(config.GuardWindow.Factor, common.DefaultGuardWindowFactor),
		StopLoss:                  config.StopLoss,
		Indicators:                config.Indicators,
		SymbolConfigs:             config.SymbolConfig,
		DataPath:                  getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		MetricsPort:               getIntFromEnvOrConfig(common.EnvMetricsPort, config.System.MetricsPort),
		EventBusPort:              getIntFromEnvOrConfig(common.EnvEventBusPort, config.System.EventBusPort),
		MaxDailyLoss:              floatOrDefault(config.Trading.MaxDailyLoss, 0.05),
		MaxDrawdownProtection:     floatOrDefault(config.Trading.MaxDrawdownProtection, 0.1),
		CircuitBreakerErrorRate:   floatOrDefault(config.CircuitBreaker.ErrorRate, 0.2),
		CircuitBreakerRecoveryTime: circuitBreakerRecoveryTime,
		OrderExecutionTimeout:    orderExecutionTimeout,
		OrderStatusCheckInterval: orderStatusCheckInterval,
		MaxOrderRetries:          maxOrderRetries,
		RESTTimeout:              restTimeout,
	}

	if settings.MetricsPort == 0 {
		settings.MetricsPort = common.DefaultMetricsPort
	}
	if settings.EventBusPort == 0 {
		settings.EventBusPort = common.DefaultEventBusPort
	}
	if settings.Indicators == nil {
		settings.Indicators = map[string]IndicatorSpec{}
	}
	if settings.SymbolConfigs == nil {
		settings.SymbolConfigs = map[string]SymbolConfig{}
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	key, err := getEnvRequired(common.EnvAPIKey)
	if err != nil {
		return Settings{}, err
	}

	secret, err := getEnvRequired(common.EnvSecretKey)
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		Key:                       key,
		Secret:                    secret,
		AccountType:               getEnvOrDefault(common.EnvAccountType, "USDT-M"),
		ConnectorBackend:          getEnvOrDefault(common.EnvConnectorBackend, "binance"),
		BaseURL:                   getEnvOrDefault(common.EnvBaseURL, common.DefaultBaseURL),
		WsURL:                     getEnvOrDefault(common.EnvWsURL, common.DefaultWsURL),
		Ping:                      getDurationOrDefault("PING_INTERVAL", 15*time.Second),
		Mode:                      getEnvOrDefault("MODE", "dry_run"),
		DryRun:                    getBoolOrDefault(common.EnvDryRun, true),
		Symbols:                   splitOrDefault(os.Getenv(common.EnvSymbols), []string{"BTCUSDT"}),
		Intervals:                 splitOrDefault(os.Getenv("INTERVALS"), []string{"1h"}),
		Lookback:                  getIntOrDefault("LOOKBACK", 200),
		Leverage:                  getIntOrDefault(common.EnvLeverage, common.DefaultLeverage),
		PositionMode:              getEnvOrDefault("POSITION_MODE", common.DefaultPositionMode),
		MarginMode:                getEnvOrDefault(common.EnvMarginMode, common.DefaultMarginMode),
		Side:                      getEnvOrDefault("SIDE", "BOTH"),
		PositionPct:               getFloatOrDefault("POSITION_PCT", 0.05),
		PositionPctUnits:          getEnvOrDefault("POSITION_PCT_UNITS", "of_balance"),
		AutoBumpEnabled:           getBoolOrDefault("AUTO_BUMP_ENABLED", false),
		AutoBumpMaxSlots:          getIntOrDefault("AUTO_BUMP_MAX_SLOTS", 4),
		MaxAutoBumpPercent:        getFloatOrDefault("MAX_AUTO_BUMP_PERCENT", common.DefaultMaxAutoBumpPercent),
		AutoBumpPercentMultiplier: getFloatOrDefault("AUTO_BUMP_PERCENT_MULTIPLIER", common.DefaultAutoBumpPercentMultiplier),
		MarginOverTargetTolerance: getFloatOrDefault("MARGIN_OVER_TARGET_TOLERANCE", common.DefaultMarginTolerance),
		AllowOppositePositions:    getBoolOrDefault("ALLOW_OPPOSITE_POSITIONS", false),
		AddOnly:                   getBoolOrDefault("ADD_ONLY", false),
		OrderRateIntervalMs:       getIntOrDefault("ORDER_RATE_INTERVAL_MS", common.DefaultOrderRateIntervalMs),
		MinOrderIntervalMs:        getIntOrDefault("MIN_ORDER_INTERVAL_MS", common.DefaultMinOrderIntervalMs),
		GuardWindowMinSeconds:     getFloatOrDefault("GUARD_WINDOW_MIN_SECONDS", common.DefaultGuardWindowMinSec),
		GuardWindowMaxSeconds:     getFloatOrDefault("GUARD_WINDOW_MAX_SECONDS", common.DefaultGuardWindowMaxSec),
		GuardWindowFactor:         getFloatOrDefault("GUARD_WINDOW_FACTOR", common.DefaultGuardWindowFactor),
		StopLoss: StopLossConfig{
			Enabled: getBoolOrDefault("STOP_LOSS_ENABLED", true),
			Scope:   getEnvOrDefault("STOP_LOSS_SCOPE", "per_trade"),
			Mode:    getEnvOrDefault("STOP_LOSS_MODE", "percent"),
			USDT:    getFloatOrDefault("STOP_LOSS_USDT", 0),
			Percent: getFloatOrDefault("STOP_LOSS_PERCENT", 0.5),
		},
		Indicators:                 map[string]IndicatorSpec{},
		SymbolConfigs:               map[string]SymbolConfig{},
		DataPath:                    os.Getenv(common.EnvDataPath),
		MetricsPort:                 getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		EventBusPort:                getIntOrDefault(common.EnvEventBusPort, common.DefaultEventBusPort),
		MaxDailyLoss:                getFloatOrDefault("MAX_DAILY_LOSS", 0.05),
		MaxDrawdownProtection:       getFloatOrDefault("MAX_DRAWDOWN_PROTECTION", 0.1),
		CircuitBreakerErrorRate:     getFloatOrDefault("CIRCUIT_BREAKER_ERROR_RATE", 0.2),
		CircuitBreakerRecoveryTime:  getDurationOrDefault("CIRCUIT_BREAKER_RECOVERY", 5*time.Minute),
		OrderExecutionTimeout:       getDurationOrDefault("ORDER_EXECUTION_TIMEOUT", 30*time.Second),
		OrderStatusCheckInterval:    getDurationOrDefault("ORDER_STATUS_CHECK_INTERVAL", 5*time.Second),
		MaxOrderRetries:             getIntOrDefault("MAX_ORDER_RETRIES", 3),
		RESTTimeout:                 getDurationOrDefault(common.EnvRESTTimeout, time.Duration(common.DefaultRESTTimeoutSeconds)*time.Second),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// GetSymbolConfig returns configuration for a specific symbol, falling back
// to global settings when no per-symbol override exists.
func (s *Settings) GetSymbolConfig(symbol string) SymbolConfig {
	if config, exists := s.SymbolConfigs[symbol]; exists {
		return config
	}
	return SymbolConfig{
		PositionPct: s.PositionPct,
		Leverage:    s.Leverage,
	}
}

// GetIndicatorSpec returns the configured spec for an indicator by name, or
// false if it is not configured (the indicator is then inactive).
func (s *Settings) GetIndicatorSpec(name string) (IndicatorSpec, bool) {
	spec, ok := s.Indicators[name]
	return spec, ok
}

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is missing", key)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	return strings.Split(v, ",")
}

func getSymbolsFromEnvOrConfig(configSymbols []string) []string {
	if env := os.Getenv(common.EnvSymbols); env != "" {
		return strings.Split(env, ",")
	}
	if len(configSymbols) > 0 {
		return configSymbols
	}
	return []string{"BTCUSDT"}
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	return configValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOrDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func floatOrDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func nonEmptyOr(v []string, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

// validateSettings performs comprehensive validation of configuration values.
func validateSettings(s *Settings) error {
	if err := validateCredentials(s); err != nil {
		return err
	}
	if err := validateURLs(s); err != nil {
		return err
	}
	if err := validateTradingParameters(s); err != nil {
		return err
	}
	if err := validateLiveTradingRestrictions(s); err != nil {
		return err
	}
	if err := validateSystemParameters(s); err != nil {
		return err
	}
	if err := validateStopLoss(s); err != nil {
		return err
	}
	if err := validateSymbolConfigs(s); err != nil {
		return err
	}
	return nil
}

func validateCredentials(s *Settings) error {
	if s.Key == "" || s.Secret == "" {
		return fmt.Errorf(common.ErrMsgAPIKeyRequired)
	}
	return nil
}

func validateURLs(s *Settings) error {
	if s.BaseURL == "" {
		return fmt.Errorf(common.ErrMsgBaseURLRequired)
	}
	if s.WsURL == "" {
		return fmt.Errorf(common.ErrMsgWsURLRequired)
	}
	return nil
}

func validateTradingParameters(s *Settings) error {
	if len(s.Symbols) == 0 {
		return fmt.Errorf(common.ErrMsgSymbolRequired)
	}
	if s.Leverage < common.MinLeverage || s.Leverage > common.MaxLeverage {
		return fmt.Errorf("leverage must be between %d and %d", common.MinLeverage, common.MaxLeverage)
	}
	if s.PositionPct < common.MinPositionPct || s.PositionPct > common.MaxPositionPct {
		return fmt.Errorf("positionPct must be between %g and %g", common.MinPositionPct, common.MaxPositionPct)
	}
	if s.PositionPctUnits != "of_balance" && s.PositionPctUnits != "of_margin" {
		return fmt.Errorf("positionPctUnits must be \"of_balance\" or \"of_margin\"")
	}
	switch s.PositionMode {
	case "ONE_WAY", "HEDGE":
	default:
		return fmt.Errorf("positionMode must be ONE_WAY or HEDGE")
	}
	switch s.MarginMode {
	case "ISOLATED", "CROSSED":
	default:
		return fmt.Errorf("marginMode must be ISOLATED or CROSSED")
	}
	switch s.Side {
	case "LONG", "SHORT", "BOTH":
	default:
		return fmt.Errorf("side must be LONG, SHORT or BOTH")
	}
	if s.MarginOverTargetTolerance < common.MinMarginTolerance || s.MarginOverTargetTolerance > common.MaxMarginTolerance {
		return fmt.Errorf("marginOverTargetTolerance must be between %g and %g", common.MinMarginTolerance, common.MaxMarginTolerance)
	}
	if s.MaxAutoBumpPercent < 0 || s.MaxAutoBumpPercent > 1 {
		return fmt.Errorf("maxAutoBumpPercent must be between 0 and 1")
	}
	if s.AutoBumpPercentMultiplier < 1 {
		return fmt.Errorf("autoBumpPercentMultiplier must be >= 1")
	}
	if s.MaxDailyLoss <= 0 || s.MaxDailyLoss > 1 {
		return fmt.Errorf("maxDailyLoss must be between 0 and 1")
	}
	if s.MaxDrawdownProtection <= 0 || s.MaxDrawdownProtection > 1 {
		return fmt.Errorf("maxDrawdownProtection must be between 0 and 1")
	}
	return nil
}

func validateLiveTradingRestrictions(s *Settings) error {
	if !s.DryRun {
		if os.Getenv(common.EnvForceLiveTrading) != "true" {
			return fmt.Errorf(common.ErrMsgLiveTradingGuard)
		}
	}
	return nil
}

func validateSystemParameters(s *Settings) error {
	if s.Ping < 1*time.Second || s.Ping > 5*time.Minute {
		return fmt.Errorf("pingInterval must be between 1s and 5m")
	}
	if s.RESTTimeout < 1*time.Second || s.RESTTimeout > 1*time.Minute {
		return fmt.Errorf("restTimeout must be between 1s and 1m")
	}
	if s.MetricsPort < common.MinMetricsPort || s.MetricsPort > common.MaxMetricsPort {
		return fmt.Errorf("metricsPort must be between %d and %d", common.MinMetricsPort, common.MaxMetricsPort)
	}
	if s.EventBusPort < common.MinMetricsPort || s.EventBusPort > common.MaxMetricsPort {
		return fmt.Errorf("eventBusPort must be between %d and %d", common.MinMetricsPort, common.MaxMetricsPort)
	}
	if s.OrderExecutionTimeout < 10*time.Second || s.OrderExecutionTimeout > 5*time.Minute {
		return fmt.Errorf("orderExecutionTimeout must be between 10s and 5m")
	}
	if s.MaxOrderRetries < 1 || s.MaxOrderRetries > 10 {
		return fmt.Errorf("maxOrderRetries must be between 1 and 10")
	}
	return nil
}

func validateStopLoss(s *Settings) error {
	if !s.StopLoss.Enabled {
		return nil
	}
	switch s.StopLoss.Scope {
	case "per_trade", "cumulative", "entire_account":
	default:
		return fmt.Errorf("stopLoss.scope must be per_trade, cumulative or entire_account")
	}
	switch s.StopLoss.Mode {
	case "usdt", "percent", "both":
	default:
		return fmt.Errorf("stopLoss.mode must be usdt, percent or both")
	}
	if (s.StopLoss.Mode == "usdt" || s.StopLoss.Mode == "both") && s.StopLoss.USDT <= 0 {
		return fmt.Errorf("stopLoss.usdt must be positive when mode includes usdt")
	}
	if (s.StopLoss.Mode == "percent" || s.StopLoss.Mode == "both") && s.StopLoss.Percent <= 0 {
		return fmt.Errorf("stopLoss.percent must be positive when mode includes percent")
	}
	return nil
}

func validateSymbolConfigs(s *Settings) error {
	for symbol, sc := range s.SymbolConfigs {
		if sc.PositionPct != 0 && (sc.PositionPct < common.MinPositionPct || sc.PositionPct > common.MaxPositionPct) {
			return fmt.Errorf("symbol %s: positionPct must be between %g and %g", symbol, common.MinPositionPct, common.MaxPositionPct)
		}
	}
	return nil
}
