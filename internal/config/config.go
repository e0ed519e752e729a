package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBotName       = "Hai-Emet Emotions"
	DefaultBotUsername   = "@HaiEmetEmotionBot"
	DefaultBotCreator    = "TNTF (Nathaniel Nissim)"
	DefaultBotDNA        = "0101-0101(0101)"
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 18791
	DefaultBufSize       = 100
	DefaultStorageDriver = StorageDriverJSON
	DefaultRedisKey      = "haiemet:registry"
	DefaultLogMode       = "dev"
	DefaultBackupExpr    = "0 0 3 * * *"
)

const (
	StorageDriverJSON   = "json"
	StorageDriverSQLite = "sqlite"
	StorageDriverRedis  = "redis"
)

type Config struct {
	Bot      BotConfig      `json:"bot" yaml:"bot"`
	Channels ChannelsConfig `json:"channels" yaml:"channels"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Gateway  GatewayConfig  `json:"gateway" yaml:"gateway"`
	Cron     CronConfig     `json:"cron" yaml:"cron"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// BotConfig is the identity shown in replies.
type BotConfig struct {
	Name       string `json:"name" yaml:"name"`
	Username   string `json:"username" yaml:"username"`
	Creator    string `json:"creator" yaml:"creator"`
	DNA        string `json:"dna" yaml:"dna"`
	APIKey     string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	VerifyCode string `json:"verifyCode,omitempty" yaml:"verifyCode,omitempty"`
}

type ChannelsConfig struct {
	Telegram  TelegramConfig  `json:"telegram" yaml:"telegram"`
	WebSocket WebSocketConfig `json:"websocket" yaml:"websocket"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Token     string   `json:"token" yaml:"token"`
	AllowFrom []string `json:"allowFrom" yaml:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty" yaml:"proxy,omitempty"`
}

// WebSocketConfig enables the /ws chat endpoint on the status server.
type WebSocketConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	AllowFrom []string `json:"allowFrom" yaml:"allowFrom"`
}

type StorageConfig struct {
	Driver string      `json:"driver" yaml:"driver"` // "json" (default), "sqlite" or "redis"
	Path   string      `json:"path,omitempty" yaml:"path,omitempty"`
	Redis  RedisConfig `json:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db" yaml:"db"`
	Key      string `json:"key" yaml:"key"`
}

type GatewayConfig struct {
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
	// UserAPI serves GET /api/users/:id without authentication.
	UserAPI bool   `json:"userApi" yaml:"userApi"`
}

type CronConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// BackupExpr schedules the built-in registry backup; empty disables it.
	BackupExpr string `json:"backupExpr" yaml:"backupExpr"`
}

type LogConfig struct {
	Mode string `json:"mode" yaml:"mode"`
}

func DefaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			Name:     DefaultBotName,
			Username: DefaultBotUsername,
			Creator:  DefaultBotCreator,
			DNA:      DefaultBotDNA,
		},
		Channels: ChannelsConfig{},
		Storage: StorageConfig{
			Driver: DefaultStorageDriver,
			Redis:  RedisConfig{Key: DefaultRedisKey},
		},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Cron: CronConfig{
			Enabled:    true,
			BackupExpr: DefaultBackupExpr,
		},
		Log: LogConfig{Mode: DefaultLogMode},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".haiemet")
}

func DataDir() string {
	return filepath.Join(ConfigDir(), "data")
}

// ConfigPath returns config.yaml when it exists, config.json otherwise.
func ConfigPath() string {
	for _, name := range []string{"config.yaml", "config.yml"} {
		p := filepath.Join(ConfigDir(), name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(ConfigDir(), "config.json")
}

// StoragePath resolves the registry location for file-backed drivers.
func (c *Config) StoragePath() string {
	if p := strings.TrimSpace(c.Storage.Path); p != "" {
		return p
	}
	switch c.Storage.Driver {
	case StorageDriverSQLite:
		return filepath.Join(DataDir(), "registry.db")
	default:
		return filepath.Join(DataDir(), "users.json")
	}
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	path := ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, cfg)
		default:
			err = json.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DefaultStorageDriver
	}
	cfg.Storage.Driver = strings.ToLower(cfg.Storage.Driver)
	if cfg.Storage.Redis.Key == "" {
		cfg.Storage.Redis.Key = DefaultRedisKey
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = DefaultHost
	}
	if cfg.Bot.Username == "" {
		cfg.Bot.Username = DefaultBotUsername
	}
	if cfg.Bot.Name == "" {
		cfg.Bot.Name = DefaultBotName
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if token := os.Getenv("HAIEMET_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" && cfg.Channels.Telegram.Token == "" {
		cfg.Channels.Telegram.Token = token
	}
	if enabled := os.Getenv("HAIEMET_TELEGRAM_ENABLED"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			cfg.Channels.Telegram.Enabled = parsed
		}
	}
	if driver := os.Getenv("HAIEMET_STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if path := os.Getenv("HAIEMET_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if addr := os.Getenv("HAIEMET_REDIS_ADDR"); addr != "" {
		cfg.Storage.Redis.Addr = addr
	}
	if pw := os.Getenv("HAIEMET_REDIS_PASSWORD"); pw != "" {
		cfg.Storage.Redis.Password = pw
	}
	if port := os.Getenv("HAIEMET_HTTP_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Gateway.Port = parsed
		}
	} else if port := os.Getenv("PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Gateway.Port = parsed
		}
	}
	if mode := os.Getenv("HAIEMET_LOG_MODE"); mode != "" {
		cfg.Log.Mode = mode
	}
	if key := os.Getenv("HAIEMET_API_KEY"); key != "" {
		cfg.Bot.APIKey = key
	}
	if code := os.Getenv("HAIEMET_VERIFY_CODE"); code != "" {
		cfg.Bot.VerifyCode = code
	}
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0600)
}
