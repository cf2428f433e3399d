// Package config holds the typed configuration for the session controller:
// the backend base URL, ICE server list, timer constants, and the bearer
// token source used to authenticate backend requests.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/petervdpas/goop2/internal/util"
)

type Config struct {
	Backend  Backend  `json:"backend"`
	ICE      ICE      `json:"ice"`
	Timing   Timing   `json:"timing"`
	Identity Identity `json:"identity"`
}

type Backend struct {
	BaseURL   string `json:"base_url"`
	TokenFile string `json:"token_file"`
}

type ICE struct {
	Servers              []string      `json:"servers"`
	DisconnectedTimeout  time.Duration `json:"disconnected_timeout"`
	FailedTimeout        time.Duration `json:"failed_timeout"`
	KeepaliveInterval    time.Duration `json:"keepalive_interval"`
	CandidatePoolSize    uint8         `json:"candidate_pool_size"`
}

type Timing struct {
	PollInterval        time.Duration `json:"poll_interval"`
	SwipeDebounce       time.Duration `json:"swipe_debounce"`
	ValidationCooldown  time.Duration `json:"validation_cooldown"`
	ConnectionTimeout   time.Duration `json:"connection_timeout"`
	HeartbeatInterval   time.Duration `json:"heartbeat_interval"`
	RejoinJitterMin     time.Duration `json:"rejoin_jitter_min"`
	RejoinJitterMax     time.Duration `json:"rejoin_jitter_max"`
	OfferStabilizeDelay time.Duration `json:"offer_stabilize_delay"`
}

type Identity struct {
	UserID string `json:"user_id"`
}

func Default() Config {
	return Config{
		Backend: Backend{
			BaseURL:   "https://api.example.org",
			TokenFile: "data/token",
		},
		ICE: ICE{
			Servers:             []string{"stun:stun.l.google.com:19302"},
			DisconnectedTimeout: 30 * time.Second,
			FailedTimeout:       120 * time.Second,
			KeepaliveInterval:   2 * time.Second,
			CandidatePoolSize:   4,
		},
		Timing: Timing{
			PollInterval:        800 * time.Millisecond,
			SwipeDebounce:       2000 * time.Millisecond,
			ValidationCooldown:  1000 * time.Millisecond,
			ConnectionTimeout:   15 * time.Second,
			HeartbeatInterval:   30 * time.Second,
			RejoinJitterMin:     100 * time.Millisecond,
			RejoinJitterMax:     500 * time.Millisecond,
			OfferStabilizeDelay: 300 * time.Millisecond,
		},
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return errors.New("backend.base_url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("backend.base_url must be a valid http(s) url: %q", c.Backend.BaseURL)
	}
	if len(c.ICE.Servers) == 0 {
		return errors.New("ice.servers must contain at least one entry")
	}
	if c.Timing.PollInterval <= 0 {
		return errors.New("timing.poll_interval must be > 0")
	}
	if c.Timing.SwipeDebounce <= 0 {
		return errors.New("timing.swipe_debounce must be > 0")
	}
	if c.Timing.ConnectionTimeout <= 0 {
		return errors.New("timing.connection_timeout must be > 0")
	}
	if c.Timing.RejoinJitterMin > c.Timing.RejoinJitterMax {
		return errors.New("timing.rejoin_jitter_min must be <= rejoin_jitter_max")
	}
	return nil
}

// Load reads and validates a config file, starting from Default() so
// missing JSON fields remain initialized.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}
	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}

// ReadToken reads the bearer token from Backend.TokenFile, trimming
// surrounding whitespace/newlines.
func (c *Config) ReadToken() (string, error) {
	b, err := os.ReadFile(c.Backend.TokenFile)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
