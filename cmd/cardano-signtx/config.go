package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/decred/slog"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/suffix-labs/cardano-signtx/pkg/addresses"
	"github.com/suffix-labs/cardano-signtx/pkg/ui"
)

// Config is read from an optional JSON or YAML file and SIGNTX_*
// environment variables, the latter taking precedence.
type Config struct {
	LogLevel     string `json:"log_level"     yaml:"log_level"     env:"SIGNTX_LOG_LEVEL"     env-description:"trace, debug, info, warn, error or off"`
	Network      string `json:"network"       yaml:"network"       env:"SIGNTX_NETWORK"       env-description:"mainnet, preprod or preview"`
	SafetyChecks string `json:"safety_checks" yaml:"safety_checks" env:"SIGNTX_SAFETY_CHECKS" env-description:"strict or prompt"`
	AutoConfirm  bool   `json:"auto_confirm"  yaml:"auto_confirm"  env:"SIGNTX_AUTO_CONFIRM"  env-description:"confirm every screen without asking"`
	ShowDetails  bool   `json:"show_details"  yaml:"show_details"  env:"SIGNTX_SHOW_DETAILS"  env-description:"with auto_confirm, ask for every item to be shown"`
	ListenAddr   string `json:"listen_addr"   yaml:"listen_addr"   env:"SIGNTX_LISTEN_ADDR"   env-description:"address serve listens on"`
	DeviceURL    string `json:"device_url"    yaml:"device_url"    env:"SIGNTX_DEVICE_URL"    env-description:"websocket url send dials"`
	Entropy      string `json:"entropy"       yaml:"entropy"       env:"SIGNTX_ENTROPY"       env-description:"wallet entropy in hex"`
	Passphrase   string `json:"passphrase"    yaml:"passphrase"    env:"SIGNTX_PASSPHRASE"    env-description:"wallet passphrase"`
}

// network holds the identifiers a transaction is bound to.
type network struct {
	ProtocolMagic uint32
	NetworkID     uint8
}

var networks = map[string]network{
	"mainnet": {ProtocolMagic: addresses.MainnetProtocolMagic, NetworkID: addresses.MainnetNetworkID},
	"preprod": {ProtocolMagic: 1, NetworkID: 0},
	"preview": {ProtocolMagic: 2, NetworkID: 0},
}

func DefaultConfig() Config {
	return Config{
		LogLevel:     "info",
		Network:      "mainnet",
		SafetyChecks: "strict",
		ListenAddr:   "127.0.0.1:8546",
		DeviceURL:    "ws://127.0.0.1:8546/sign",
	}
}

// LoadConfig starts from DefaultConfig, applies path if given and then the
// environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	return cfg, ValidateConfig(cfg)
}

func ValidateConfig(cfg Config) error {
	if _, ok := slog.LevelFromString(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if _, ok := networks[cfg.Network]; !ok {
		return fmt.Errorf("invalid network %q", cfg.Network)
	}
	if _, err := ui.ParseSafetyChecks(cfg.SafetyChecks); err != nil {
		return err
	}
	if _, _, err := net.SplitHostPort(cfg.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen_addr: %w", err)
	}
	u, err := url.Parse(cfg.DeviceURL)
	if err != nil {
		return fmt.Errorf("invalid device_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid device_url scheme %q", u.Scheme)
	}
	if cfg.Entropy != "" {
		entropy, err := hex.DecodeString(cfg.Entropy)
		if err != nil {
			return fmt.Errorf("invalid entropy: %w", err)
		}
		if n := len(entropy); n < 16 || n > 32 || n%4 != 0 {
			return errors.New("entropy must be 16 to 32 bytes, a multiple of 4")
		}
	}
	return nil
}

// Usage describes the environment variables.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
