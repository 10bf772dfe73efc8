// Package config resolves runtime configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"

	"voicenotes/encoder"
	"voicenotes/generator"
	"voicenotes/transcriber"
)

const defaultEnvFile = ".env"

type Config struct {
	Transcribe EndpointConfig
	Chat       EndpointConfig
	Audio      AudioConfig
	Storage    StorageConfig
	Keyring    KeyringConfig

	// APIToken, when set, overrides the stored token for this process.
	APIToken string
	LogPath  string
	Beep     bool
}

type EndpointConfig struct {
	URL   string
	Model string
}

type AudioConfig struct {
	Format string
	Device string
}

type StorageConfig struct {
	DataDir string
	DBPath  string
}

type KeyringConfig struct {
	Backend  string
	Password string
}

// Load reads the .env file named by VOICENOTES_ENV_FILE (default ./.env) and
// then the environment. Variables already set in the environment win over
// the file. A missing default .env is fine; a missing explicit one is not.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	dataDir := strings.TrimSpace(os.Getenv("VOICENOTES_DATA_DIR"))
	if dataDir == "" {
		d, err := defaultDataDir()
		if err != nil {
			return Config{}, err
		}
		dataDir = d
	}

	cfg := Config{
		Transcribe: EndpointConfig{
			URL:   envOrDefault("VOICENOTES_TRANSCRIBE_URL", transcriber.DefaultURL),
			Model: envOrDefault("VOICENOTES_TRANSCRIBE_MODEL", transcriber.DefaultModel),
		},
		Chat: EndpointConfig{
			URL:   envOrDefault("VOICENOTES_CHAT_URL", generator.DefaultURL),
			Model: envOrDefault("VOICENOTES_CHAT_MODEL", generator.DefaultModel),
		},
		Audio: AudioConfig{
			Format: strings.ToLower(envOrDefault("VOICENOTES_FORMAT", encoder.FormatFLAC)),
			Device: strings.TrimSpace(os.Getenv("VOICENOTES_DEVICE")),
		},
		Storage: StorageConfig{
			DataDir: dataDir,
			DBPath:  envOrDefault("VOICENOTES_DB_PATH", filepath.Join(dataDir, "notes.sqlite")),
		},
		Keyring: KeyringConfig{
			Backend:  strings.TrimSpace(os.Getenv("VOICENOTES_KEYRING_BACKEND")),
			Password: envOrDefault("VOICENOTES_KEYRING_PASSWORD", "voicenotes"),
		},
		APIToken: strings.TrimSpace(os.Getenv("VOICENOTES_API_TOKEN")),
		LogPath:  strings.TrimSpace(os.Getenv("VOICENOTES_LOG_PATH")),
		Beep:     envOrDefaultBool("VOICENOTES_BEEP", true),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !encoder.ValidFormat(c.Audio.Format) {
		return fmt.Errorf("invalid format %q: want %s or %s", c.Audio.Format, encoder.FormatFLAC, encoder.FormatWAV)
	}
	for name, v := range map[string]string{"transcribe": c.Transcribe.URL, "chat": c.Chat.URL} {
		if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
			return fmt.Errorf("invalid %s URL %q", name, v)
		}
	}
	return nil
}

func loadEnvFile() error {
	path := strings.TrimSpace(os.Getenv("VOICENOTES_ENV_FILE"))
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

func defaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine home directory")
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "voicenotes"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "voicenotes"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "voicenotes"), nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "voicenotes"), nil
	}
	return filepath.Join(home, ".local", "share", "voicenotes"), nil
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultBool(key string, fallback bool) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
