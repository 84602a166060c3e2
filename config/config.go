// Package config loads repsync settings from a YAML file and the environment.
//
// Precedence: defaults < file < environment < command-line flags (applied by
// the caller). Every option has a usable default except the endpoint, which
// is only required by commands that talk to the service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/collapsinghierarchy/repsync/model"
)

// DefaultSQLiteFile is the database used by the sqlite backend when
// ledger.dsn is unset.
const DefaultSQLiteFile = "submitted.db"

const (
	BackendJSON     = "json"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type UserID struct {
	Name    string `yaml:"name"`
	Comment string `yaml:"comment"`
	Email   string `yaml:"email"`
}

type Paths struct {
	PrivateKey string `yaml:"private_key"`
	PublicKey  string `yaml:"public_key"`
	BanList    string `yaml:"ban_list"`
	Ledger     string `yaml:"ledger"`
	ServerID   string `yaml:"server_id"`
}

type Ledger struct {
	Backend string `yaml:"backend"` // json, sqlite or postgres
	DSN     string `yaml:"dsn"`     // postgres connection string, or sqlite file
}

type Config struct {
	Endpoint   string        `yaml:"endpoint"`
	UserIDs    []UserID      `yaml:"user_ids"`
	Passphrase string        `yaml:"passphrase"`
	Wait       time.Duration `yaml:"wait"`    // pause between submissions
	Timeout    time.Duration `yaml:"timeout"` // per HTTP request
	ServerName string        `yaml:"server_name"`
	LogLevel   string        `yaml:"log_level"`
	Paths      Paths         `yaml:"paths"`
	Ledger     Ledger        `yaml:"ledger"`
}

func Default() *Config {
	return &Config{
		UserIDs:  []UserID{{Name: "minecraft server"}},
		Wait:     2 * time.Second,
		Timeout:  30 * time.Second,
		LogLevel: "info",
		Paths: Paths{
			PrivateKey: "private.key",
			PublicKey:  "public.key",
			BanList:    "banned-players.json",
			Ledger:     "submitted.json",
			ServerID:   "server.uuid",
		},
		Ledger: Ledger{Backend: BackendJSON},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path falls back to REPSYNC_CONFIG; with neither, only defaults and
// the environment apply. A named file that does not exist is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("REPSYNC_CONFIG")
	}
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read config: %v", model.ErrConfiguration, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse config %s: %v", model.ErrConfiguration, path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Endpoint = getenv("REPSYNC_ENDPOINT", c.Endpoint)
	c.Passphrase = getenv("REPSYNC_PASSPHRASE", c.Passphrase)
	c.Ledger.Backend = getenv("REPSYNC_LEDGER_BACKEND", c.Ledger.Backend)
	c.Ledger.DSN = getenv("REPSYNC_LEDGER_DSN", c.Ledger.DSN)
	c.LogLevel = getenv("REPSYNC_LOG_LEVEL", c.LogLevel)

	var err error
	if c.Wait, err = envDuration("REPSYNC_WAIT", c.Wait); err != nil {
		return err
	}
	if c.Timeout, err = envDuration("REPSYNC_TIMEOUT", c.Timeout); err != nil {
		return err
	}
	return nil
}

// fillDefaults restores defaults for fields a file explicitly blanked.
func (c *Config) fillDefaults() {
	def := Default()
	if c.Paths.PrivateKey == "" {
		c.Paths.PrivateKey = def.Paths.PrivateKey
	}
	if c.Paths.PublicKey == "" {
		c.Paths.PublicKey = def.Paths.PublicKey
	}
	if c.Paths.BanList == "" {
		c.Paths.BanList = def.Paths.BanList
	}
	if c.Paths.Ledger == "" {
		c.Paths.Ledger = def.Paths.Ledger
	}
	if c.Paths.ServerID == "" {
		c.Paths.ServerID = def.Paths.ServerID
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = def.Ledger.Backend
	}
	if c.Ledger.Backend == BackendSQLite && c.Ledger.DSN == "" {
		c.Ledger.DSN = DefaultSQLiteFile
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if len(c.UserIDs) == 0 {
		c.UserIDs = def.UserIDs
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Ledger.Backend {
	case BackendJSON, BackendSQLite:
	case BackendPostgres:
		if c.Ledger.DSN == "" {
			errs = append(errs, errors.New("ledger.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend))
	}
	if c.Wait < 0 {
		errs = append(errs, errors.New("wait must not be negative"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	if c.Endpoint != "" {
		if err := checkEndpoint(c.Endpoint); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range c.UserIDs {
		if strings.TrimSpace(id.Name) == "" && strings.TrimSpace(id.Email) == "" {
			errs = append(errs, errors.New("user_ids entries need a name or an email"))
			break
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", model.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// RequireEndpoint is checked by commands that contact the service.
func (c *Config) RequireEndpoint() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is not set (config endpoint or REPSYNC_ENDPOINT)", model.ErrConfiguration)
	}
	return nil
}

// RegistrationName is the name sent on register: server_name, falling back
// to the primary user id.
func (c *Config) RegistrationName() string {
	if c.ServerName != "" {
		return c.ServerName
	}
	if len(c.UserIDs) > 0 {
		return c.UserIDs[0].Name
	}
	return ""
}

func checkEndpoint(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("endpoint %q must be an http(s) URL", s)
	}
	return nil
}

// ─── helpers ────────────────────────────────────────────────────────────────────
func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a duration: %v", model.ErrConfiguration, key, err)
	}
	return d, nil
}
