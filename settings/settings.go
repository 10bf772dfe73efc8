// Package settings keeps the user's API token in the OS keyring.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/99designs/keyring"

	"voicenotes/log"
)

const (
	ServiceName = "voicenotes"
	tokenKey    = "api-token"
)

type Settings struct {
	APIToken string
}

type Store struct {
	ring keyring.Keyring

	mu       sync.Mutex
	settings Settings
	override string
}

// Open loads the stored settings. A missing token is not an error.
func Open(ring keyring.Keyring) (*Store, error) {
	s := &Store{ring: ring}
	item, err := ring.Get(tokenKey)
	switch {
	case errors.Is(err, keyring.ErrKeyNotFound):
	case err != nil:
		return nil, fmt.Errorf("reading token from keyring: %w", err)
	default:
		s.settings.APIToken = string(item.Data)
	}
	return s, nil
}

func (s *Store) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Save trims and stores the token. An empty token removes the keyring item.
func (s *Store) Save(st Settings) error {
	st.APIToken = strings.TrimSpace(st.APIToken)

	s.mu.Lock()
	defer s.mu.Unlock()
	if st.APIToken == "" {
		if err := s.ring.Remove(tokenKey); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("removing token from keyring: %w", err)
		}
	} else {
		err := s.ring.Set(keyring.Item{
			Key:         tokenKey,
			Data:        []byte(st.APIToken),
			Label:       "voicenotes API token",
			Description: "Bearer token for the transcription and chat endpoints",
		})
		if err != nil {
			return fmt.Errorf("writing token to keyring: %w", err)
		}
	}
	s.settings = st
	return nil
}

// SetOverride makes token win over the stored one for this process without
// persisting it.
func (s *Store) SetOverride(token string) {
	s.mu.Lock()
	s.override = strings.TrimSpace(token)
	s.mu.Unlock()
}

// Token is the token requests should use.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.override != "" {
		return s.override
	}
	return s.settings.APIToken
}

func (s *Store) HasToken() bool { return s.Token() != "" }

// Mask shows only the last four characters of a token.
func Mask(token string) string {
	if token == "" {
		return "(not set)"
	}
	r := []rune(token)
	if len(r) <= 4 {
		return strings.Repeat("•", len(r))
	}
	return strings.Repeat("•", min(len(r)-4, 12)) + string(r[len(r)-4:])
}

type Config struct {
	// Backend is empty for the platform default, or one of keyring's backend
	// names ("file", "secret-service", "keychain", "wincred", "pass", ...).
	Backend string
	// Dir and Password are only used by the file backend.
	Dir      string
	Password string
}

func OpenKeyring(cfg Config) (keyring.Keyring, error) {
	kc := keyring.Config{
		ServiceName:              ServiceName,
		KeychainTrustApplication: true,
		FileDir:                  cfg.Dir,
		FilePasswordFunc:         keyring.FixedStringPrompt(cfg.Password),
	}
	if cfg.Backend != "" {
		kc.AllowedBackends = []keyring.BackendType{keyring.BackendType(cfg.Backend)}
	}
	if cfg.Backend == string(keyring.FileBackend) && cfg.Dir == "" {
		return nil, errors.New("file keyring needs a directory")
	}
	ring, err := keyring.Open(kc)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ring, nil
}

// OpenStore opens the keyring cfg names and loads the settings from it. With
// no backend configured and no usable OS keyring it falls back to the file
// backend in cfg.Dir.
func OpenStore(cfg Config) (*Store, error) {
	ring, err := OpenKeyring(cfg)
	if err != nil && cfg.Backend == "" && cfg.Dir != "" {
		log.Warnf("OS keyring unavailable, using file keyring: %v", err)
		cfg.Backend = string(keyring.FileBackend)
		ring, err = OpenKeyring(cfg)
	}
	if err != nil {
		return nil, err
	}
	return Open(ring)
}
