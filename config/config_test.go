package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"voicenotes/generator"
	"voicenotes/transcriber"
)

var envKeys = []string{
	"VOICENOTES_ENV_FILE", "VOICENOTES_TRANSCRIBE_URL", "VOICENOTES_TRANSCRIBE_MODEL",
	"VOICENOTES_CHAT_URL", "VOICENOTES_CHAT_MODEL", "VOICENOTES_FORMAT", "VOICENOTES_DEVICE",
	"VOICENOTES_DATA_DIR", "VOICENOTES_DB_PATH", "VOICENOTES_KEYRING_BACKEND",
	"VOICENOTES_KEYRING_PASSWORD", "VOICENOTES_API_TOKEN", "VOICENOTES_LOG_PATH", "VOICENOTES_BEEP",
}

// clearEnv isolates a test from the developer's environment and from any
// .env in the package directory.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transcribe.URL != transcriber.DefaultURL || cfg.Transcribe.Model != "TeleAI/TeleSpeechASR" {
		t.Errorf("transcribe = %+v", cfg.Transcribe)
	}
	if cfg.Chat.URL != generator.DefaultURL || cfg.Chat.Model != "Qwen/Qwen2.5-7B-Instruct" {
		t.Errorf("chat = %+v", cfg.Chat)
	}
	if cfg.Audio.Format != "flac" || cfg.Audio.Device != "" {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if !cfg.Beep || cfg.APIToken != "" {
		t.Errorf("beep=%v token=%q", cfg.Beep, cfg.APIToken)
	}
	if runtime.GOOS == "linux" && cfg.Storage.DataDir != "/tmp/xdg-data/voicenotes" {
		t.Errorf("data dir = %q", cfg.Storage.DataDir)
	}
	if cfg.Storage.DBPath != filepath.Join(cfg.Storage.DataDir, "notes.sqlite") {
		t.Errorf("db path = %q", cfg.Storage.DBPath)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("VOICENOTES_TRANSCRIBE_URL", "http://localhost:9000/asr")
	t.Setenv("VOICENOTES_CHAT_MODEL", "deepseek-ai/DeepSeek-V3")
	t.Setenv("VOICENOTES_FORMAT", "WAV")
	t.Setenv("VOICENOTES_DATA_DIR", "/srv/notes")
	t.Setenv("VOICENOTES_API_TOKEN", "  sk-env ")
	t.Setenv("VOICENOTES_BEEP", "off")
	t.Setenv("VOICENOTES_KEYRING_BACKEND", "file")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transcribe.URL != "http://localhost:9000/asr" {
		t.Errorf("transcribe url = %q", cfg.Transcribe.URL)
	}
	if cfg.Chat.Model != "deepseek-ai/DeepSeek-V3" {
		t.Errorf("chat model = %q", cfg.Chat.Model)
	}
	if cfg.Audio.Format != "wav" {
		t.Errorf("format = %q", cfg.Audio.Format)
	}
	if cfg.Storage.DBPath != "/srv/notes/notes.sqlite" {
		t.Errorf("db path = %q", cfg.Storage.DBPath)
	}
	if cfg.APIToken != "sk-env" || cfg.Beep || cfg.Keyring.Backend != "file" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadInvalidFormat(t *testing.T) {
	clearEnv(t)
	t.Setenv("VOICENOTES_FORMAT", "mp3")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "mp3") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadInvalidURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("VOICENOTES_CHAT_URL", "api.example.com")
	if _, err := Load(); err == nil {
		t.Error("expected error for URL without scheme")
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "voicenotes.env")
	os.WriteFile(path, []byte("VOICENOTES_CHAT_MODEL=from-file\nVOICENOTES_DEVICE=USB Mic\n"), 0o644)
	t.Setenv("VOICENOTES_ENV_FILE", path)
	t.Setenv("VOICENOTES_DEVICE", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Chat.Model != "from-file" {
		t.Errorf("chat model = %q, want value from file", cfg.Chat.Model)
	}
	if cfg.Audio.Device != "from-env" {
		t.Errorf("device = %q, environment should win", cfg.Audio.Device)
	}
}

func TestLoadMissingExplicitEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("VOICENOTES_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing explicit env file")
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	for _, tt := range []struct {
		val  string
		want bool
	}{
		{"yes", true}, {"1", true}, {"off", false}, {"0", false}, {"maybe", true}, {"", true},
	} {
		t.Setenv("VOICENOTES_TEST_BOOL", tt.val)
		if got := envOrDefaultBool("VOICENOTES_TEST_BOOL", true); got != tt.want {
			t.Errorf("%q -> %v, want %v", tt.val, got, tt.want)
		}
	}
}
