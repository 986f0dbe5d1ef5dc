package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Clipboard backends.
const (
	ClipboardMemory = "memory"
	ClipboardSystem = "system"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Store     StoreConfig       `yaml:"store"`
	Export    ExportConfig      `yaml:"export"`
	Clipboard ClipboardConfig   `yaml:"clipboard"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Export.Validate(); err != nil {
		return err
	}
	if err := c.Clipboard.Validate(); err != nil {
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
	// SessionIdleMinutes closes editor sessions nobody has touched for this
	// long, running the same checkpoint as navigating away. Zero disables it.
	SessionIdleMinutes int `yaml:"session_idle_minutes"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.SessionIdleMinutes, validation.Min(0)),
	)
}

// StoreConfig selects and configures the record store backend.
type StoreConfig struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	DSN           string `yaml:"dsn"`
	CaseSensitive bool   `yaml:"case_sensitive"`
	// Watch notifies list views when another process writes the SQLite file.
	Watch bool `yaml:"watch"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres, DriverMemory)),
		validation.Field(&c.Path, validation.When(c.Driver == DriverSQLite, validation.Required)),
		validation.Field(&c.DSN, validation.When(c.Driver == DriverPostgres, validation.Required)),
	)
}

// ExportConfig holds the export directory.
type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// Validate validates the export configuration.
func (c *ExportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
	)
}

// ClipboardConfig selects the clipboard backend.
type ClipboardConfig struct {
	Backend string `yaml:"backend"`
}

// Validate validates the clipboard configuration.
func (c *ClipboardConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = ClipboardMemory
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.In(ClipboardMemory, ClipboardSystem)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
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
				Port:               8080,
				SessionIdleMinutes: 30,
			},
		},
		Store: StoreConfig{
			Driver:        DriverSQLite,
			Path:          "./notepad.db",
			CaseSensitive: true,
			Watch:         true,
		},
		Export: ExportConfig{
			Dir: "./exports",
		},
		Clipboard: ClipboardConfig{
			Backend: ClipboardMemory,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
