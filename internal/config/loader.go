package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures configuration values for the scheduler service. Values are
// read from an optional YAML file and may be overridden through SCHEDULER_*
// environment variables.
type Config struct {
	HTTPPort  int
	SQLiteDSN string
	LogLevel  string
	Calendar  CalendarConfig
	Sync      SyncConfig
}

// CalendarConfig holds the external calendar provider settings.
type CalendarConfig struct {
	BaseURL string
	// Tokens maps user ids to their bearer credentials. Credential issuance
	// and refresh happen outside this service.
	Tokens map[string]string
}

// SyncConfig holds the background synchronization settings.
type SyncConfig struct {
	Cooldown         time.Duration
	LookBehind       time.Duration
	LookAhead        time.Duration
	OutboundEnabled  bool
	InboundEnabled   bool
	DetectTombstones bool
	CronSpec         string
	Users            []string
}

type fileConfig struct {
	HTTPPort  int    `yaml:"http_port"`
	SQLiteDSN string `yaml:"sqlite_dsn"`
	LogLevel  string `yaml:"log_level"`
	Calendar  struct {
		BaseURL string            `yaml:"base_url"`
		Tokens  map[string]string `yaml:"tokens"`
	} `yaml:"calendar"`
	Sync struct {
		Cooldown         string   `yaml:"cooldown"`
		LookBehind       string   `yaml:"look_behind"`
		LookAhead        string   `yaml:"look_ahead"`
		OutboundEnabled  *bool    `yaml:"outbound_enabled"`
		InboundEnabled   *bool    `yaml:"inbound_enabled"`
		DetectTombstones *bool    `yaml:"detect_tombstones"`
		CronSpec         string   `yaml:"cron_spec"`
		Users            []string `yaml:"users"`
	} `yaml:"sync"`
}

// Load builds the configuration from defaults, the YAML file named by
// SCHEDULER_CONFIG_FILE (when set), and SCHEDULER_* environment variable
// overrides, in that order of precedence.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:  8080,
		SQLiteDSN: "file:scheduler.db?_foreign_keys=on",
		LogLevel:  "info",
		Sync: SyncConfig{
			Cooldown:         2 * time.Minute,
			LookBehind:       24 * time.Hour,
			LookAhead:        30 * 24 * time.Hour,
			OutboundEnabled:  true,
			InboundEnabled:   true,
			DetectTombstones: true,
			CronSpec:         "@every 5m",
		},
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if path := strings.TrimSpace(os.Getenv("SCHEDULER_CONFIG_FILE")); path != "" {
		if err := applyFile(&cfg, path, &invalid); err != nil {
			return Config{}, err
		}
	}

	if portValue := strings.TrimSpace(os.Getenv("SCHEDULER_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "SCHEDULER_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("SCHEDULER_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if level := strings.TrimSpace(os.Getenv("SCHEDULER_LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}

	if baseURL := strings.TrimSpace(os.Getenv("SCHEDULER_CALENDAR_BASE_URL")); baseURL != "" {
		cfg.Calendar.BaseURL = baseURL
	}

	applyDurationEnv(&cfg.Sync.Cooldown, "SCHEDULER_SYNC_COOLDOWN", &invalid)
	applyDurationEnv(&cfg.Sync.LookBehind, "SCHEDULER_SYNC_LOOK_BEHIND", &invalid)
	applyDurationEnv(&cfg.Sync.LookAhead, "SCHEDULER_SYNC_LOOK_AHEAD", &invalid)
	applyBoolEnv(&cfg.Sync.OutboundEnabled, "SCHEDULER_SYNC_OUTBOUND_ENABLED", &invalid)
	applyBoolEnv(&cfg.Sync.InboundEnabled, "SCHEDULER_SYNC_INBOUND_ENABLED", &invalid)
	applyBoolEnv(&cfg.Sync.DetectTombstones, "SCHEDULER_SYNC_DETECT_TOMBSTONES", &invalid)

	if spec := strings.TrimSpace(os.Getenv("SCHEDULER_SYNC_CRON_SPEC")); spec != "" {
		cfg.Sync.CronSpec = spec
	}

	if users := strings.TrimSpace(os.Getenv("SCHEDULER_SYNC_USERS")); users != "" {
		cfg.Sync.Users = splitList(users)
	}

	if cfg.Calendar.BaseURL == "" && syncEnabled(cfg.Sync) {
		missing = append(missing, "SCHEDULER_CALENDAR_BASE_URL")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string, invalid *[]string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルを読み込めません: %s", path)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("設定ファイルの形式が不正です: %s", path)
	}

	if file.HTTPPort > 0 {
		cfg.HTTPPort = file.HTTPPort
	}
	if dsn := strings.TrimSpace(file.SQLiteDSN); dsn != "" {
		cfg.SQLiteDSN = dsn
	}
	if level := strings.TrimSpace(file.LogLevel); level != "" {
		cfg.LogLevel = level
	}
	if baseURL := strings.TrimSpace(file.Calendar.BaseURL); baseURL != "" {
		cfg.Calendar.BaseURL = baseURL
	}
	if len(file.Calendar.Tokens) > 0 {
		cfg.Calendar.Tokens = file.Calendar.Tokens
	}

	applyDurationValue(&cfg.Sync.Cooldown, file.Sync.Cooldown, "sync.cooldown", invalid)
	applyDurationValue(&cfg.Sync.LookBehind, file.Sync.LookBehind, "sync.look_behind", invalid)
	applyDurationValue(&cfg.Sync.LookAhead, file.Sync.LookAhead, "sync.look_ahead", invalid)

	if file.Sync.OutboundEnabled != nil {
		cfg.Sync.OutboundEnabled = *file.Sync.OutboundEnabled
	}
	if file.Sync.InboundEnabled != nil {
		cfg.Sync.InboundEnabled = *file.Sync.InboundEnabled
	}
	if file.Sync.DetectTombstones != nil {
		cfg.Sync.DetectTombstones = *file.Sync.DetectTombstones
	}
	if spec := strings.TrimSpace(file.Sync.CronSpec); spec != "" {
		cfg.Sync.CronSpec = spec
	}
	if len(file.Sync.Users) > 0 {
		cfg.Sync.Users = append([]string(nil), file.Sync.Users...)
	}

	return nil
}

func applyDurationValue(target *time.Duration, value, name string, invalid *[]string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		*invalid = append(*invalid, name)
		return
	}
	*target = parsed
}

func applyDurationEnv(target *time.Duration, name string, invalid *[]string) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		*invalid = append(*invalid, name)
		return
	}
	*target = parsed
}

func applyBoolEnv(target *bool, name string, invalid *[]string) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		*invalid = append(*invalid, name)
		return
	}
	*target = parsed
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// syncEnabled reports whether any background sync work is configured.
func syncEnabled(sync SyncConfig) bool {
	return len(sync.Users) > 0 && (sync.OutboundEnabled || sync.InboundEnabled)
}
