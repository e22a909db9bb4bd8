package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name: "valid config with required fields",
			envVars: map[string]string{
				"EXCHANGE_API_KEY":    "test_key",
				"EXCHANGE_SECRET_KEY": "test_secret",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Key != "test_key" {
					t.Errorf("expected Key to be 'test_key', got %s", settings.Key)
				}
				if settings.Secret != "test_secret" {
					t.Errorf("expected Secret to be 'test_secret', got %s", settings.Secret)
				}
				if len(settings.Symbols) != 1 || settings.Symbols[0] != "BTCUSDT" {
					t.Errorf("expected default symbols [BTCUSDT], got %v", settings.Symbols)
				}
				if settings.BaseURL != "https://fapi.binance.com" {
					t.Errorf("expected default BaseURL, got %s", settings.BaseURL)
				}
				if settings.ConnectorBackend != "binance" {
					t.Errorf("expected default ConnectorBackend 'binance', got %s", settings.ConnectorBackend)
				}
				if settings.Leverage != 10 {
					t.Errorf("expected default Leverage 10, got %d", settings.Leverage)
				}
				if !settings.DryRun {
					t.Error("expected DryRun to default true")
				}
			},
		},
		{
			name: "custom symbols and settings",
			envVars: map[string]string{
				"EXCHANGE_API_KEY":    "test_key",
				"EXCHANGE_SECRET_KEY": "test_secret",
				"SYMBOLS":             "BTCUSDT,ETHUSDT,ADAUSDT",
				"LEVERAGE":            "20",
				"POSITION_PCT":        "0.1",
				"DRY_RUN":             "false",
				"FORCE_LIVE_TRADING":  "true",
				"METRICS_PORT":        "9090",
				"MARGIN_MODE":         "CROSSED",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				expectedSymbols := []string{"BTCUSDT", "ETHUSDT", "ADAUSDT"}
				if len(settings.Symbols) != len(expectedSymbols) {
					t.Errorf("expected %d symbols, got %d", len(expectedSymbols), len(settings.Symbols))
				}
				for i, symbol := range expectedSymbols {
					if i >= len(settings.Symbols) || settings.Symbols[i] != symbol {
						t.Errorf("expected symbol %s at index %d, got %v", symbol, i, settings.Symbols)
					}
				}
				if settings.Leverage != 20 {
					t.Errorf("expected Leverage 20, got %d", settings.Leverage)
				}
				if settings.PositionPct != 0.1 {
					t.Errorf("expected PositionPct 0.1, got %f", settings.PositionPct)
				}
				if settings.DryRun {
					t.Error("expected DryRun to be false")
				}
				if settings.MetricsPort != 9090 {
					t.Errorf("expected MetricsPort 9090, got %d", settings.MetricsPort)
				}
				if settings.MarginMode != "CROSSED" {
					t.Errorf("expected MarginMode CROSSED, got %s", settings.MarginMode)
				}
			},
		},
		{
			name: "missing API key",
			envVars: map[string]string{
				"EXCHANGE_SECRET_KEY": "test_secret",
			},
			wantErr: true,
		},
		{
			name: "missing secret key",
			envVars: map[string]string{
				"EXCHANGE_API_KEY": "test_key",
			},
			wantErr: true,
		},
		{
			name:    "missing both keys",
			envVars: map[string]string{},
			wantErr: true,
		},
		{
			name: "live trading without force flag is rejected",
			envVars: map[string]string{
				"EXCHANGE_API_KEY":    "test_key",
				"EXCHANGE_SECRET_KEY": "test_secret",
				"DRY_RUN":             "false",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)

			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := loadFromEnv()

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tests := []struct {
		name         string
		yamlContent  string
		envOverrides map[string]string
		wantErr      bool
		validate     func(t *testing.T, settings Settings)
	}{
		{
			name: "valid YAML config",
			yamlContent: `
api:
  key: "yaml_key"
  secret: "yaml_secret"
  baseURL: "https://fapi.binance.com"
  wsURL: "wss://fstream.binance.com/ws"
  connectorBackend: "binance"

trading:
  symbols:
    - "BTCUSDT"
    - "ETHUSDT"
  leverage: 15
  positionPct: 0.08
  marginMode: "ISOLATED"
  positionMode: "ONE_WAY"
  side: "BOTH"
  dryRun: true
  maxDailyLoss: 0.04

stopLoss:
  enabled: true
  scope: "per_trade"
  mode: "percent"
  percent: 10

indicators:
  rsi:
    name: "rsi"
    buyValue: 30
    sellValue: 70

system:
  dataPath: "/custom/data"
  pingInterval: "20s"
  metricsPort: 9090
  restTimeout: "10s"
`,
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Key != "yaml_key" {
					t.Errorf("expected Key 'yaml_key', got %s", settings.Key)
				}
				if settings.Secret != "yaml_secret" {
					t.Errorf("expected Secret 'yaml_secret', got %s", settings.Secret)
				}
				if settings.Leverage != 15 {
					t.Errorf("expected Leverage 15, got %d", settings.Leverage)
				}
				if settings.PositionPct != 0.08 {
					t.Errorf("expected PositionPct 0.08, got %f", settings.PositionPct)
				}
				if settings.MetricsPort != 9090 {
					t.Errorf("expected MetricsPort 9090, got %d", settings.MetricsPort)
				}
				if settings.RESTTimeout != 10*time.Second {
					t.Errorf("expected RESTTimeout 10s, got %v", settings.RESTTimeout)
				}
				spec, ok := settings.GetIndicatorSpec("rsi")
				if !ok {
					t.Fatal("expected rsi indicator spec to be present")
				}
				if spec.BuyValue != 30 || spec.SellValue != 70 {
					t.Errorf("unexpected rsi spec: %+v", spec)
				}
			},
		},
		{
			name: "YAML with env overrides",
			yamlContent: `
api:
  key: "yaml_key"
  secret: "yaml_secret"
  baseURL: "https://fapi.binance.com"
  wsURL: "wss://fstream.binance.com/ws"
trading:
  symbols: ["BTCUSDT"]
  leverage: 5
  positionPct: 0.05
  marginMode: "ISOLATED"
  positionMode: "ONE_WAY"
  side: "BOTH"
  dryRun: true
  maxDailyLoss: 0.05
system:
  metricsPort: 9090
  pingInterval: "30s"
  restTimeout: "10s"
`,
			envOverrides: map[string]string{
				"EXCHANGE_API_KEY": "env_key",
				"LEVERAGE":         "25",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Key != "env_key" {
					t.Errorf("expected env override Key 'env_key', got %s", settings.Key)
				}
				if settings.Secret != "yaml_secret" {
					t.Errorf("expected YAML Secret 'yaml_secret', got %s", settings.Secret)
				}
				if settings.Leverage != 25 {
					t.Errorf("expected env override Leverage 25, got %d", settings.Leverage)
				}
			},
		},
		{
			name: "YAML missing required keys",
			yamlContent: `
trading:
  symbols: ["BTCUSDT"]
`,
			wantErr: true,
		},
		{
			name:        "invalid YAML",
			yamlContent: `invalid: yaml: content: [`,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)

			for key, value := range tt.envOverrides {
				t.Setenv(key, value)
			}

			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yamlContent), 0o644); err != nil {
				t.Fatalf("failed to write test config file: %v", err)
			}

			settings, err := loadFromYAML(configPath)

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		configFile  string
		yamlContent string
		envVars     map[string]string
		wantErr     bool
		validate    func(t *testing.T, settings Settings)
	}{
		{
			name: "load from env when no config file",
			envVars: map[string]string{
				"EXCHANGE_API_KEY":    "env_key",
				"EXCHANGE_SECRET_KEY": "env_secret",
			},
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Key != "env_key" {
					t.Errorf("expected Key 'env_key', got %s", settings.Key)
				}
			},
		},
		{
			name:       "load from YAML when config file specified",
			configFile: "config.yaml",
			yamlContent: `
api:
  key: "yaml_key"
  secret: "yaml_secret"
  baseURL: "https://fapi.binance.com"
  wsURL: "wss://fstream.binance.com/ws"
trading:
  symbols: ["BTCUSDT"]
  leverage: 10
  positionPct: 0.05
  marginMode: "ISOLATED"
  positionMode: "ONE_WAY"
  side: "BOTH"
  dryRun: true
  maxDailyLoss: 0.05
system:
  metricsPort: 9090
  pingInterval: "30s"
  restTimeout: "10s"
`,
			wantErr: false,
			validate: func(t *testing.T, settings Settings) {
				if settings.Key != "yaml_key" {
					t.Errorf("expected Key 'yaml_key', got %s", settings.Key)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)

			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			if tt.configFile != "" && tt.yamlContent != "" {
				tmpDir := t.TempDir()
				configPath := filepath.Join(tmpDir, tt.configFile)
				if err := os.WriteFile(configPath, []byte(tt.yamlContent), 0o644); err != nil {
					t.Fatalf("failed to write test config file: %v", err)
				}
				t.Setenv("CONFIG_FILE", configPath)
			}

			settings, err := Load()

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestGetSymbolConfig(t *testing.T) {
	settings := Settings{
		PositionPct: 0.05,
		Leverage:    10,
		SymbolConfigs: map[string]SymbolConfig{
			"BTCUSDT": {
				PositionPct:      0.02,
				Leverage:         20,
				MaxPriceDistance: 2.5,
			},
		},
	}

	t.Run("symbol with specific config", func(t *testing.T) {
		config := settings.GetSymbolConfig("BTCUSDT")
		if config.PositionPct != 0.02 {
			t.Errorf("expected PositionPct 0.02, got %f", config.PositionPct)
		}
		if config.Leverage != 20 {
			t.Errorf("expected Leverage 20, got %d", config.Leverage)
		}
		if config.MaxPriceDistance != 2.5 {
			t.Errorf("expected MaxPriceDistance 2.5, got %f", config.MaxPriceDistance)
		}
	})

	t.Run("symbol with default config", func(t *testing.T) {
		config := settings.GetSymbolConfig("ETHUSDT")
		if config.PositionPct != 0.05 {
			t.Errorf("expected default PositionPct 0.05, got %f", config.PositionPct)
		}
		if config.Leverage != 10 {
			t.Errorf("expected default Leverage 10, got %d", config.Leverage)
		}
	})
}

func TestGetIndicatorSpec(t *testing.T) {
	settings := Settings{
		Indicators: map[string]IndicatorSpec{
			"rsi": {Name: "rsi", BuyValue: 30, SellValue: 70},
		},
	}

	if _, ok := settings.GetIndicatorSpec("macd"); ok {
		t.Error("expected macd to be unconfigured")
	}
	spec, ok := settings.GetIndicatorSpec("rsi")
	if !ok {
		t.Fatal("expected rsi to be configured")
	}
	if spec.BuyValue != 30 || spec.SellValue != 70 {
		t.Errorf("unexpected spec: %+v", spec)
	}
}

// clearTestEnv clears potentially conflicting environment variables
func clearTestEnv(t *testing.T) {
	envVars := []string{
		"EXCHANGE_API_KEY", "EXCHANGE_SECRET_KEY", "SYMBOLS", "BASE_URL", "WS_URL",
		"PING_INTERVAL", "DATA_PATH", "DRY_RUN", "METRICS_PORT", "EVENTBUS_PORT",
		"LEVERAGE", "MARGIN_MODE", "POSITION_MODE", "POSITION_PCT", "SIDE",
		"REST_TIMEOUT", "CONFIG_FILE", "FORCE_LIVE_TRADING", "ACCOUNT_TYPE",
		"CONNECTOR_BACKEND", "MODE", "INTERVALS", "LOOKBACK",
	}

	for _, env := range envVars {
		if val := os.Getenv(env); val != "" {
			t.Setenv(env, "")
		}
	}
}
