// Package config loads and creates the YAML configuration file described in
// the external interfaces: a long-lived Ed25519 signing keypair, a user id,
// and a list of listen multiaddrs.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"

	crypto "github.com/libp2p/go-libp2p/core/crypto"
	"gopkg.in/yaml.v3"
)

// defaultListenOn are the addresses written into a freshly-created config.
var defaultListenOn = []string{
	"/ip4/0.0.0.0/tcp/0",
	"/ip6/::/tcp/0",
}

// Config is the on-disk synco configuration.
type Config struct {
	PrivateKey string   `yaml:"private_key"`
	ID         string   `yaml:"id"`
	ListenOn   []string `yaml:"listen_on"`
}

// Path returns the configuration file path: $SYNCO_CONFIG if set, otherwise
// $HOME/.config/synco.
func Path() (string, error) {
	if p := os.Getenv("SYNCO_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "synco"), nil
}

// Load reads the configuration file, creating it with a freshly generated
// keypair on first run. A decode failure on an existing file is a
// configuration error and is returned, not silently papered over.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return create(path)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// create generates a fresh Ed25519 keypair and writes a new config file at
// path, defaulting id to $USER.
func create(path string) (Config, error) {
	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return Config{}, fmt.Errorf("config: generate keypair: %w", err)
	}
	raw, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return Config{}, fmt.Errorf("config: marshal keypair: %w", err)
	}

	cfg := Config{
		PrivateKey: base64.RawStdEncoding.EncodeToString(raw),
		ID:         currentUser(),
		ListenOn:   append([]string(nil), defaultListenOn...),
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return Config{}, fmt.Errorf("config: create directory %s: %w", dir, err)
		}
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return Config{}, fmt.Errorf("config: write %s: %w", path, err)
	}

	slog.Info("config created", "path", path, "id", cfg.ID)
	return cfg, nil
}

func currentUser() string {
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "synco"
}

// Keypair decodes the configured private key into a libp2p Ed25519 keypair.
func (c Config) Keypair() (crypto.PrivKey, error) {
	raw, err := base64.RawStdEncoding.DecodeString(c.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("config: decode private key: %w", err)
	}
	priv, err := crypto.UnmarshalPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("config: unmarshal private key: %w", err)
	}
	return priv, nil
}
