package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// clearEnv blanks every override LoadConfig reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"HAIEMET_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN", "HAIEMET_TELEGRAM_ENABLED",
		"HAIEMET_STORAGE_DRIVER", "HAIEMET_STORAGE_PATH", "HAIEMET_REDIS_ADDR",
		"HAIEMET_REDIS_PASSWORD", "HAIEMET_HTTP_PORT", "PORT", "HAIEMET_LOG_MODE",
		"HAIEMET_API_KEY", "HAIEMET_VERIFY_CODE",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Bot.Username != DefaultBotUsername {
		t.Errorf("username = %q, want %q", cfg.Bot.Username, DefaultBotUsername)
	}
	if cfg.Storage.Driver != StorageDriverJSON {
		t.Errorf("driver = %q, want %q", cfg.Storage.Driver, StorageDriverJSON)
	}
	if cfg.Gateway.Host != DefaultHost {
		t.Errorf("host = %q, want %q", cfg.Gateway.Host, DefaultHost)
	}
	if cfg.Gateway.Port != DefaultPort {
		t.Errorf("port = %d, want %d", cfg.Gateway.Port, DefaultPort)
	}
	if cfg.Gateway.UserAPI {
		t.Error("user API should be off by default")
	}
	if !cfg.Cron.Enabled {
		t.Error("cron should be enabled by default")
	}
	if cfg.Cron.BackupExpr != DefaultBackupExpr {
		t.Errorf("backupExpr = %q, want %q", cfg.Cron.BackupExpr, DefaultBackupExpr)
	}
	if cfg.Channels.Telegram.Enabled {
		t.Error("telegram should be disabled by default")
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Bot.Name != DefaultBotName {
		t.Errorf("expected default name %q, got %q", DefaultBotName, cfg.Bot.Name)
	}
}

func TestLoadConfig_FromJSONFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearEnv(t)

	cfgDir := filepath.Join(tmpDir, ".haiemet")
	os.MkdirAll(cfgDir, 0755)

	testCfg := map[string]any{
		"bot": map[string]any{
			"username": "@OtherBot",
		},
		"storage": map[string]any{
			"driver": "SQLite",
		},
		"channels": map[string]any{
			"telegram": map[string]any{"enabled": true, "token": "tg-file"},
		},
	}
	data, _ := json.MarshalIndent(testCfg, "", "  ")
	os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Bot.Username != "@OtherBot" {
		t.Errorf("username = %q, want @OtherBot", cfg.Bot.Username)
	}
	if cfg.Bot.Name != DefaultBotName {
		t.Errorf("name = %q, want default", cfg.Bot.Name)
	}
	if cfg.Storage.Driver != StorageDriverSQLite {
		t.Errorf("driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token != "tg-file" {
		t.Errorf("telegram = %+v", cfg.Channels.Telegram)
	}
	if got := cfg.StoragePath(); got != filepath.Join(tmpDir, ".haiemet", "data", "registry.db") {
		t.Errorf("StoragePath = %q", got)
	}
}

func TestLoadConfig_FromYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearEnv(t)

	cfgDir := filepath.Join(tmpDir, ".haiemet")
	os.MkdirAll(cfgDir, 0755)
	yamlCfg := `
bot:
  creator: someone
storage:
  driver: redis
  redis:
    addr: localhost:6379
gateway:
  host: ""
  port: 9000
  userApi: true
`
	os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(yamlCfg), 0644)

	if got := ConfigPath(); filepath.Base(got) != "config.yaml" {
		t.Fatalf("ConfigPath = %q, want config.yaml", got)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Bot.Creator != "someone" {
		t.Errorf("creator = %q", cfg.Bot.Creator)
	}
	if cfg.Storage.Driver != StorageDriverRedis {
		t.Errorf("driver = %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr = %q", cfg.Storage.Redis.Addr)
	}
	if cfg.Storage.Redis.Key != DefaultRedisKey {
		t.Errorf("redis key = %q, want default", cfg.Storage.Redis.Key)
	}
	if cfg.Gateway.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Gateway.Port)
	}
	if cfg.Gateway.Host != DefaultHost {
		t.Errorf("host = %q, want %q", cfg.Gateway.Host, DefaultHost)
	}
	if !cfg.Gateway.UserAPI {
		t.Error("userApi should be enabled")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)

	t.Setenv("HAIEMET_TELEGRAM_TOKEN", "tg-env")
	t.Setenv("HAIEMET_TELEGRAM_ENABLED", "true")
	t.Setenv("HAIEMET_STORAGE_DRIVER", "sqlite")
	t.Setenv("HAIEMET_STORAGE_PATH", "/tmp/reg.db")
	t.Setenv("HAIEMET_HTTP_PORT", "8081")
	t.Setenv("HAIEMET_LOG_MODE", "prod")
	t.Setenv("HAIEMET_API_KEY", "key-1")
	t.Setenv("HAIEMET_VERIFY_CODE", "code-1")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Channels.Telegram.Token != "tg-env" || !cfg.Channels.Telegram.Enabled {
		t.Errorf("telegram = %+v", cfg.Channels.Telegram)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.StoragePath() != "/tmp/reg.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Gateway.Port != 8081 {
		t.Errorf("port = %d", cfg.Gateway.Port)
	}
	if cfg.Log.Mode != "prod" {
		t.Errorf("log mode = %q", cfg.Log.Mode)
	}
	if cfg.Bot.APIKey != "key-1" || cfg.Bot.VerifyCode != "code-1" {
		t.Errorf("bot = %+v", cfg.Bot)
	}
}

func TestLoadConfig_TokenPriority(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)

	t.Setenv("HAIEMET_TELEGRAM_TOKEN", "haiemet-wins")
	t.Setenv("TELEGRAM_BOT_TOKEN", "generic-loses")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Channels.Telegram.Token != "haiemet-wins" {
		t.Errorf("token = %q, want haiemet-wins", cfg.Channels.Telegram.Token)
	}
}

func TestLoadConfig_PortFallback(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)
	t.Setenv("PORT", "10000")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Gateway.Port != 10000 {
		t.Errorf("port = %d, want 10000", cfg.Gateway.Port)
	}
}

func TestSaveConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg := DefaultConfig()
	cfg.Channels.Telegram.Token = "test-token"

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, ".haiemet", "config.json"))
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal saved config: %v", err)
	}
	if loaded.Channels.Telegram.Token != "test-token" {
		t.Errorf("saved token = %q, want test-token", loaded.Channels.Telegram.Token)
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfgDir := filepath.Join(tmpDir, ".haiemet")
	os.MkdirAll(cfgDir, 0755)
	os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("invalid json"), 0644)

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestStoragePath_Default(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg := DefaultConfig()
	want := filepath.Join(tmpDir, ".haiemet", "data", "users.json")
	if got := cfg.StoragePath(); got != want {
		t.Errorf("StoragePath = %q, want %q", got, want)
	}
}
