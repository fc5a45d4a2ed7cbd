package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config carries every runtime setting for the conductor. It is loaded once
// at startup and passed explicitly to components; nothing reads the
// environment after Load returns.
type Config struct {
	DatabaseURL             string
	WorkspaceRoot           string
	StatusDBPath            string
	TmuxBin                 string
	TtydBin                 string
	TtydHost                string
	TtydPortStart           int
	SentinelStart           string
	SentinelEnd             string
	MonitorInterval         time.Duration
	WatcherInterval         time.Duration
	WatcherDefaultStability int
	ClassifierPacksDir      string
	DefaultCLIType          string
	CriticMinScore          int
	ShimsDir                string
	OpenRouterAPIKey        string
	OpenRouterModel         string
	Host                    string
	Port                    int
	LogLevel                string
}

func Default() Config {
	return Config{
		DatabaseURL:             ".workers/conductor.db",
		WorkspaceRoot:           ".workers",
		StatusDBPath:            ".workers/status.db",
		TmuxBin:                 "tmux",
		TtydBin:                 "ttyd",
		TtydHost:                "http://localhost",
		TtydPortStart:           7680,
		SentinelStart:           "<<<AGENT_RESULT_START>>>",
		SentinelEnd:             "<<<AGENT_RESULT_END>>>",
		MonitorInterval:         time.Second,
		WatcherInterval:         5 * time.Second,
		WatcherDefaultStability: 3,
		ClassifierPacksDir:      "design/classifier_packs",
		DefaultCLIType:          "codex",
		CriticMinScore:          9,
		ShimsDir:                "scripts/shims",
		OpenRouterModel:         "openrouter/auto",
		Host:                    "127.0.0.1",
		Port:                    4620,
		LogLevel:                "info",
	}
}

// fileConfig mirrors Config for the optional conductor.toml. Pointer fields
// distinguish "absent" from zero values.
type fileConfig struct {
	DatabaseURL             *string  `toml:"database_url"`
	WorkspaceRoot           *string  `toml:"workspace_root"`
	StatusDBPath            *string  `toml:"status_db_path"`
	TmuxBin                 *string  `toml:"tmux_bin"`
	TtydBin                 *string  `toml:"ttyd_bin"`
	TtydHost                *string  `toml:"ttyd_host"`
	TtydPortStart           *int     `toml:"ttyd_port_start"`
	SentinelStart           *string  `toml:"sentinel_start"`
	SentinelEnd             *string  `toml:"sentinel_end"`
	MonitorInterval         *float64 `toml:"monitor_interval"`
	WatcherInterval         *float64 `toml:"watcher_interval"`
	WatcherDefaultStability *int     `toml:"watcher_default_stability"`
	ClassifierPacksDir      *string  `toml:"classifier_packs_dir"`
	DefaultCLIType          *string  `toml:"default_cli_type"`
	CriticMinScore          *int     `toml:"critic_min_score"`
	ShimsDir                *string  `toml:"shims_dir"`
	OpenRouterAPIKey        *string  `toml:"openrouter_api_key"`
	OpenRouterModel         *string  `toml:"openrouter_model"`
	Host                    *string  `toml:"host"`
	Port                    *int     `toml:"port"`
	LogLevel                *string  `toml:"log_level"`
}

// Load builds the effective configuration: defaults, then the TOML file
// (CONDUCTOR_CONFIG_FILE, or conductor.toml when present), then CONDUCTOR_*
// environment overrides.
func Load() (Config, error) {
	path := strings.TrimSpace(os.Getenv("CONDUCTOR_CONFIG_FILE"))
	if path == "" {
		if _, err := os.Stat("conductor.toml"); err == nil {
			path = "conductor.toml"
		}
	}
	return LoadWithFile(path)
}

func LoadWithFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		var fc fileConfig
		if err := toml.Unmarshal(raw, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		applyFile(&cfg, fc)
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyFile(cfg *Config, fc fileConfig) {
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setStr(&cfg.DatabaseURL, fc.DatabaseURL)
	setStr(&cfg.WorkspaceRoot, fc.WorkspaceRoot)
	setStr(&cfg.StatusDBPath, fc.StatusDBPath)
	setStr(&cfg.TmuxBin, fc.TmuxBin)
	setStr(&cfg.TtydBin, fc.TtydBin)
	setStr(&cfg.TtydHost, fc.TtydHost)
	setInt(&cfg.TtydPortStart, fc.TtydPortStart)
	setStr(&cfg.SentinelStart, fc.SentinelStart)
	setStr(&cfg.SentinelEnd, fc.SentinelEnd)
	if fc.MonitorInterval != nil {
		cfg.MonitorInterval = secondsToDuration(*fc.MonitorInterval, cfg.MonitorInterval)
	}
	if fc.WatcherInterval != nil {
		cfg.WatcherInterval = secondsToDuration(*fc.WatcherInterval, cfg.WatcherInterval)
	}
	setInt(&cfg.WatcherDefaultStability, fc.WatcherDefaultStability)
	setStr(&cfg.ClassifierPacksDir, fc.ClassifierPacksDir)
	setStr(&cfg.DefaultCLIType, fc.DefaultCLIType)
	setInt(&cfg.CriticMinScore, fc.CriticMinScore)
	setStr(&cfg.ShimsDir, fc.ShimsDir)
	setStr(&cfg.OpenRouterAPIKey, fc.OpenRouterAPIKey)
	setStr(&cfg.OpenRouterModel, fc.OpenRouterModel)
	setStr(&cfg.Host, fc.Host)
	setInt(&cfg.Port, fc.Port)
	setStr(&cfg.LogLevel, fc.LogLevel)
}

func applyEnv(cfg *Config) {
	cfg.DatabaseURL = envStr("CONDUCTOR_DATABASE_URL", cfg.DatabaseURL)
	cfg.WorkspaceRoot = envStr("CONDUCTOR_WORKSPACE_ROOT", cfg.WorkspaceRoot)
	cfg.StatusDBPath = envStr("CONDUCTOR_STATUS_DB_PATH", cfg.StatusDBPath)
	cfg.TmuxBin = envStr("CONDUCTOR_TMUX_BIN", cfg.TmuxBin)
	cfg.TtydBin = envStr("CONDUCTOR_TTYD_BIN", cfg.TtydBin)
	cfg.TtydHost = envStr("CONDUCTOR_TTYD_HOST", cfg.TtydHost)
	cfg.TtydPortStart = envInt("CONDUCTOR_TTYD_PORT_START", cfg.TtydPortStart)
	cfg.SentinelStart = envStr("CONDUCTOR_SENTINEL_START", cfg.SentinelStart)
	cfg.SentinelEnd = envStr("CONDUCTOR_SENTINEL_END", cfg.SentinelEnd)
	cfg.MonitorInterval = envSeconds("CONDUCTOR_MONITOR_INTERVAL", cfg.MonitorInterval)
	cfg.WatcherInterval = envSeconds("CONDUCTOR_WATCHER_INTERVAL", cfg.WatcherInterval)
	cfg.WatcherDefaultStability = envInt("CONDUCTOR_WATCHER_DEFAULT_STABILITY", cfg.WatcherDefaultStability)
	cfg.ClassifierPacksDir = envStr("CONDUCTOR_CLASSIFIER_PACKS_DIR", cfg.ClassifierPacksDir)
	cfg.DefaultCLIType = envStr("CONDUCTOR_DEFAULT_CLI_TYPE", cfg.DefaultCLIType)
	cfg.CriticMinScore = envInt("CONDUCTOR_CRITIC_MIN_SCORE", cfg.CriticMinScore)
	cfg.ShimsDir = envStr("CONDUCTOR_SHIMS_DIR", cfg.ShimsDir)
	// The API key and model historically live unprefixed as well.
	cfg.OpenRouterAPIKey = envStr("OPENROUTER_API_KEY", cfg.OpenRouterAPIKey)
	cfg.OpenRouterAPIKey = envStr("CONDUCTOR_OPENROUTER_API_KEY", cfg.OpenRouterAPIKey)
	cfg.OpenRouterModel = envStr("OPENROUTER_MODEL", cfg.OpenRouterModel)
	cfg.OpenRouterModel = envStr("CONDUCTOR_OPENROUTER_MODEL", cfg.OpenRouterModel)
	cfg.Host = envStr("CONDUCTOR_HOST", cfg.Host)
	cfg.Port = envInt("CONDUCTOR_PORT", cfg.Port)
	cfg.LogLevel = envStr("CONDUCTOR_LOG_LEVEL", cfg.LogLevel)
}

func envStr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return secondsToDuration(parseFloatOr(v, fallback.Seconds()), fallback)
}

func parseFloatOr(v string, fallback float64) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func secondsToDuration(secs float64, fallback time.Duration) time.Duration {
	if secs <= 0 {
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}
