// Package config holds rmimport's process settings: the source server, the
// target store and run defaults. Values come from flags, RMIMPORT_*
// environment variables (a .env file in the working directory included),
// rmimport.yaml and built-in defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Keys
const (
	KeyRedmineURL     = "redmine.url"
	KeyRedmineAPIKey  = "redmine.api-key"
	KeyRedmineProject = "redmine.project"
	KeyPageSize       = "redmine.page-size"
	KeyTimeout        = "redmine.timeout"
	KeyRetryMaxTime   = "redmine.retry-max-time"

	KeyTargetDriver  = "target.driver"
	KeyTargetDSN     = "target.dsn"
	KeyTargetProject = "target.project-id"

	KeyAttachmentsDir    = "attachments.dir"
	KeyMaxAttachmentSize = "attachments.max-size"
	KeyOptionsFile       = "options"
	KeyJSON              = "json"
)

var v *viper.Viper

// Initialize builds the settings singleton. It is safe to call again; each
// call starts from a fresh state.
func Initialize() error {
	v = viper.New()
	v.SetConfigName("rmimport")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := configDir(); err == nil {
		v.AddConfigPath(dir)
	}

	v.SetDefault(KeyPageSize, 100)
	v.SetDefault(KeyTimeout, "30s")
	v.SetDefault(KeyRetryMaxTime, "30s")
	v.SetDefault(KeyTargetDriver, "sqlite")
	v.SetDefault(KeyTargetDSN, "rmimport.db")
	v.SetDefault(KeyAttachmentsDir, "attachments")
	v.SetDefault(KeyMaxAttachmentSize, 20<<20)
	v.SetDefault(KeyOptionsFile, "rmimport-options.yaml")
	v.SetDefault(KeyJSON, false)

	// .env does not override variables already set in the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading .env: %w", err)
	}
	v.SetEnvPrefix("RMIMPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	return nil
}

// configDir is $XDG_CONFIG_HOME/rmimport, or ~/.config/rmimport.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "rmimport"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rmimport"), nil
}

// ResetForTesting drops the singleton.
func ResetForTesting() {
	v = nil
}

func ensure() *viper.Viper {
	if v == nil {
		_ = Initialize()
	}
	return v
}

// ConfigFileUsed returns the path of the loaded config file, or "".
func ConfigFileUsed() string {
	return ensure().ConfigFileUsed()
}

func GetString(key string) string          { return ensure().GetString(key) }
func GetBool(key string) bool              { return ensure().GetBool(key) }
func GetInt(key string) int                { return ensure().GetInt(key) }
func GetInt64(key string) int64            { return ensure().GetInt64(key) }
func GetDuration(key string) time.Duration { return ensure().GetDuration(key) }

// Set overrides a value for the rest of the process, typically from a flag.
func Set(key string, value interface{}) {
	ensure().Set(key, value)
}

// Settings is a typed snapshot of the values a run needs.
type Settings struct {
	RedmineURL        string
	APIKey            string
	Project           string
	PageSize          int
	Timeout           time.Duration // per request
	RetryMaxTime      time.Duration // retries of one request
	TargetDriver      string
	TargetDSN         string
	TargetProject     int64
	AttachmentsDir    string
	MaxAttachmentSize int64
	OptionsFile       string
}

// Load returns the current settings.
func Load() Settings {
	return Settings{
		RedmineURL:        strings.TrimRight(GetString(KeyRedmineURL), "/"),
		APIKey:            GetString(KeyRedmineAPIKey),
		Project:           GetString(KeyRedmineProject),
		PageSize:          GetInt(KeyPageSize),
		Timeout:           GetDuration(KeyTimeout),
		RetryMaxTime:      GetDuration(KeyRetryMaxTime),
		TargetDriver:      GetString(KeyTargetDriver),
		TargetDSN:         GetString(KeyTargetDSN),
		TargetProject:     GetInt64(KeyTargetProject),
		AttachmentsDir:    GetString(KeyAttachmentsDir),
		MaxAttachmentSize: GetInt64(KeyMaxAttachmentSize),
		OptionsFile:       GetString(KeyOptionsFile),
	}
}

// RequireSource checks the settings needed to talk to the source server.
func (s Settings) RequireSource() error {
	if s.RedmineURL == "" {
		return fmt.Errorf("no Redmine URL configured (set %s or RMIMPORT_REDMINE_URL)", KeyRedmineURL)
	}
	return nil
}

// RequireImport checks the settings needed for an import run.
func (s Settings) RequireImport() error {
	if err := s.RequireSource(); err != nil {
		return err
	}
	if s.Project == "" {
		return fmt.Errorf("no source project configured (set %s or RMIMPORT_REDMINE_PROJECT)", KeyRedmineProject)
	}
	if s.TargetProject <= 0 {
		return fmt.Errorf("no target project configured (set %s or RMIMPORT_TARGET_PROJECT_ID)", KeyTargetProject)
	}
	switch s.TargetDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported target driver %q (want sqlite or mysql)", s.TargetDriver)
	}
	return nil
}
