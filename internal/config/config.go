// Package config loads spotwatch's runtime configuration from a JSON file
// with per-key environment variable overrides (by upper-cased name).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime tunable. Field tags match the JSON config
// keys verbatim so env overrides can be computed by upper-casing the
// tag.
type Config struct {
	DepthLimit         int      `mapstructure:"depth_limit" json:"depth_limit"`
	MetricsBandPct     float64  `mapstructure:"metrics_band_pct" json:"metrics_band_pct"`
	LargeTradeSize     float64  `mapstructure:"large_trade_size" json:"large_trade_size"`
	TradeWindowSec     int      `mapstructure:"trade_window_sec" json:"trade_window_sec"`
	MaxSymbols         int      `mapstructure:"max_symbols" json:"max_symbols"`
	ScanIntervalSec    int      `mapstructure:"scan_interval_sec" json:"scan_interval_sec"`
	Port               int      `mapstructure:"port" json:"port"`
	UniverseRefreshSec int      `mapstructure:"universe_refresh_sec" json:"universe_refresh_sec"`
	ThresholdOrange    int      `mapstructure:"threshold_orange" json:"threshold_orange"`
	ThresholdGreen     int      `mapstructure:"threshold_green" json:"threshold_green"`
	AlertCooldownSec   int      `mapstructure:"alert_cooldown_sec" json:"alert_cooldown_sec"`
	EnableGlobalScan   bool     `mapstructure:"enable_global_scan" json:"enable_global_scan"`
	GlobalScanEverySec int      `mapstructure:"global_scan_every_sec" json:"global_scan_every_sec"`
	SeedSymbols        []string `mapstructure:"seed_symbols" json:"seed_symbols"`
	VenueBPairs        []string `mapstructure:"venue_b_pairs" json:"venue_b_pairs"`

	MaxLevels int `mapstructure:"max_levels" json:"max_levels"`
}

// Defaults returns the built-in configuration defaults.
func Defaults() Config {
	return Config{
		DepthLimit:         100,
		MetricsBandPct:     0.01,
		LargeTradeSize:     100000,
		TradeWindowSec:     300,
		MaxSymbols:         25,
		ScanIntervalSec:    600,
		Port:               8080,
		UniverseRefreshSec: 900,
		ThresholdOrange:    80,
		ThresholdGreen:     65,
		AlertCooldownSec:   1200,
		EnableGlobalScan:   true,
		GlobalScanEverySec: 300,
		SeedSymbols:        nil,
		VenueBPairs:        nil,
		MaxLevels:          300,
	}
}

// Load reads the JSON config file at path, falling back to Defaults for
// anything the file omits, then applies environment variable overrides
// by each field's upper-cased json name (e.g. MAX_SYMBOLS, PORT).
//
// A missing or malformed config file is a configuration error: fatal to
// the caller.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort; local dev convenience only

	cfg := Defaults()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	for key, val := range defaultsAsMap(cfg) {
		v.SetDefault(key, val)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func defaultsAsMap(c Config) map[string]interface{} {
	return map[string]interface{}{
		"depth_limit":          c.DepthLimit,
		"metrics_band_pct":     c.MetricsBandPct,
		"large_trade_size":     c.LargeTradeSize,
		"trade_window_sec":     c.TradeWindowSec,
		"max_symbols":          c.MaxSymbols,
		"scan_interval_sec":    c.ScanIntervalSec,
		"port":                 c.Port,
		"universe_refresh_sec": c.UniverseRefreshSec,
		"threshold_orange":     c.ThresholdOrange,
		"threshold_green":      c.ThresholdGreen,
		"alert_cooldown_sec":   c.AlertCooldownSec,
		"enable_global_scan":   c.EnableGlobalScan,
		"global_scan_every_sec": c.GlobalScanEverySec,
		"max_levels":           c.MaxLevels,
	}
}

// applyEnvOverrides lets environment variables override config keys by
// their upper-cased names. Explicit lookups instead of viper's
// AutomaticEnv, which does not reliably bind flat struct fields under
// Unmarshal.
func applyEnvOverrides(c *Config) {
	if s, ok := lookupInt("DEPTH_LIMIT"); ok {
		c.DepthLimit = s
	}
	if f, ok := lookupFloat("METRICS_BAND_PCT"); ok {
		c.MetricsBandPct = f
	}
	if f, ok := lookupFloat("LARGE_TRADE_SIZE"); ok {
		c.LargeTradeSize = f
	}
	if i, ok := lookupInt("TRADE_WINDOW_SEC"); ok {
		c.TradeWindowSec = i
	}
	if i, ok := lookupInt("MAX_SYMBOLS"); ok {
		c.MaxSymbols = i
	}
	if i, ok := lookupInt("SCAN_INTERVAL_SEC"); ok {
		c.ScanIntervalSec = i
	}
	if i, ok := lookupInt("PORT"); ok {
		c.Port = i
	}
	if i, ok := lookupInt("UNIVERSE_REFRESH_SEC"); ok {
		c.UniverseRefreshSec = i
	}
	if i, ok := lookupInt("THRESHOLD_ORANGE"); ok {
		c.ThresholdOrange = i
	}
	if i, ok := lookupInt("THRESHOLD_GREEN"); ok {
		c.ThresholdGreen = i
	}
	if i, ok := lookupInt("ALERT_COOLDOWN_SEC"); ok {
		c.AlertCooldownSec = i
	}
	if b, ok := lookupBool("ENABLE_GLOBAL_SCAN"); ok {
		c.EnableGlobalScan = b
	}
	if i, ok := lookupInt("GLOBAL_SCAN_EVERY_SEC"); ok {
		c.GlobalScanEverySec = i
	}
	if s, ok := os.LookupEnv("SEED_SYMBOLS"); ok {
		c.SeedSymbols = splitCSV(s)
	}
	if s, ok := os.LookupEnv("VENUE_B_PAIRS"); ok {
		c.VenueBPairs = splitCSV(s)
	}
	if i, ok := lookupInt("MAX_LEVELS"); ok {
		c.MaxLevels = i
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func lookupInt(name string) (int, bool) {
	s, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(s)
	return i, err == nil
}

func lookupFloat(name string) (float64, bool) {
	s, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func lookupBool(name string) (bool, bool) {
	s, ok := os.LookupEnv(name)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(s)
	return b, err == nil
}

// Validate checks invariants a bad config file or env override could break.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	}
	if c.MaxSymbols <= 0 {
		return fmt.Errorf("max_symbols must be > 0")
	}
	if c.DepthLimit <= 0 {
		return fmt.Errorf("depth_limit must be > 0")
	}
	if c.MetricsBandPct <= 0 || c.MetricsBandPct >= 1 {
		return fmt.Errorf("metrics_band_pct must be in (0,1)")
	}
	if c.ThresholdGreen <= 0 || c.ThresholdOrange <= c.ThresholdGreen {
		return fmt.Errorf("threshold_orange must be greater than threshold_green")
	}
	if c.MaxLevels <= 0 {
		return fmt.Errorf("max_levels must be > 0")
	}
	return nil
}
