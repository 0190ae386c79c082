package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lifepress/internal/draft"
	"github.com/starford/lifepress/internal/gateway"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Store backends.
const (
	BackendGitHub = "github"
	BackendLocal  = "local"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Store  StoreConfig       `yaml:"store"`
	GitHub GitHubConfig      `yaml:"github"`
	Cache  CacheConfig       `yaml:"cache"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Draft  DraftConfig       `yaml:"draft"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if c.Store.Backend == BackendGitHub {
		if err := c.GitHub.Validate(); err != nil {
			return fmt.Errorf("github: %w", err)
		}
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Draft.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig selects the content backend and how posts are listed.
type StoreConfig struct {
	Backend string      `yaml:"backend"`
	Local   LocalConfig `yaml:"local"`
	// Exclude holds doublestar patterns of post paths to leave out of listings.
	Exclude []string `yaml:"exclude"`
	// Depth is how many directory levels below each type directory are listed.
	Depth       int `yaml:"depth"`
	Concurrency int `yaml:"concurrency"`
}

// LocalConfig holds the content directory of the local backend.
type LocalConfig struct {
	Path string `yaml:"path"`
}

var validGlob = validation.By(func(v any) error {
	if p, _ := v.(string); !doublestar.ValidatePattern(p) {
		return errors.New("invalid glob pattern")
	}
	return nil
})

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendGitHub, BackendLocal)),
		validation.Field(&c.Local, validation.By(func(any) error {
			if c.Backend == BackendLocal && c.Local.Path == "" {
				return errors.New("path is required for the local backend")
			}
			return nil
		})),
		validation.Field(&c.Exclude, validation.Each(validGlob)),
		validation.Field(&c.Depth, validation.Min(1), validation.Max(8)),
		validation.Field(&c.Concurrency, validation.Min(0), validation.Max(64)),
	)
}

// GitHubConfig holds the content repository coordinates.
//
// Token may be empty: the app then runs read-only unless a credential was
// stored with the login command.
type GitHubConfig struct {
	Owner   string        `yaml:"owner"`
	Repo    string        `yaml:"repo"`
	Branch  string        `yaml:"branch"`
	Token   string        `yaml:"token"`
	APIURL  string        `yaml:"api_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the GitHub configuration.
func (c *GitHubConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Owner, validation.Required),
		validation.Field(&c.Repo, validation.Required),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// CacheConfig controls the gateway cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
	// Persist mirrors cache entries into the state database so a restart
	// within the same session starts warm.
	Persist bool `yaml:"persist"`
	// Session resumes a previous cache session; empty starts a new one.
	Session           string `yaml:"session"`
	InvalidateOnWrite bool   `yaml:"invalidate_on_write"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TTL, validation.Min(time.Duration(0))),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path      string `yaml:"path"`
	StatePath string `yaml:"state_path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.StatePath, validation.Required),
	)
}

// DraftConfig controls draft persistence.
type DraftConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the draft configuration.
func (c *DraftConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Backend: BackendGitHub,
			Local:   LocalConfig{Path: "./content"},
			// Journal entries live two levels below daily-journal/.
			Depth:       2,
			Concurrency: gateway.DefaultConcurrency,
		},
		GitHub: GitHubConfig{
			Branch:  "main",
			Timeout: 15 * time.Second,
		},
		Cache: CacheConfig{
			TTL:     gateway.DefaultTTL,
			Persist: true,
		},
		SQLite: SQLiteConfig{
			Path:      "./lifepress.db",
			StatePath: "./lifepress-state.db",
		},
		Draft: DraftConfig{
			Debounce: draft.DefaultQuiet,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
