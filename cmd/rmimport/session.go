package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/steveyegge/rmimport/internal/config"
	"github.com/steveyegge/rmimport/internal/credential"
	"github.com/steveyegge/rmimport/internal/debug"
	"github.com/steveyegge/rmimport/internal/mapping"
	"github.com/steveyegge/rmimport/internal/redmine"
	"github.com/steveyegge/rmimport/internal/target/sqlstore"
)

// openCredentials is swapped in tests.
var openCredentials = credential.Open

// resolveAPIKey returns the configured API key, falling back to the keyring.
// An empty key means anonymous access.
func resolveAPIKey(s config.Settings) string {
	if s.APIKey != "" {
		return s.APIKey
	}
	store, err := openCredentials()
	if err != nil {
		debug.Logf("keyring unavailable: %v\n", err)
		return ""
	}
	key, err := store.APIKey(s.RedmineURL)
	if err != nil {
		if !errors.Is(err, credential.ErrNotFound) {
			WarnError("%v", err)
		}
		return ""
	}
	return key
}

func newClient(s config.Settings) (*redmine.Client, error) {
	if err := s.RequireSource(); err != nil {
		return nil, withHint(err, "Pass --redmine-url or add redmine.url to rmimport.yaml")
	}
	client := redmine.NewClient(s.RedmineURL, resolveAPIKey(s))
	if s.PageSize > 0 {
		client.PageSize = s.PageSize
	}
	client.SetTimeouts(s.Timeout, s.RetryMaxTime)
	return client, nil
}

func openTarget(ctx context.Context, s config.Settings) (*sqlstore.Store, error) {
	store, err := sqlstore.Open(ctx, s.TargetDriver, s.TargetDSN)
	if err != nil {
		return nil, fmt.Errorf("opening target store: %w", err)
	}
	return store, nil
}

// loadOptions reads the options file named in the settings.
func loadOptions(s config.Settings) (*mapping.Options, error) {
	opts, err := mapping.LoadOptions(s.OptionsFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, withHint(fmt.Errorf("options file %s not found", s.OptionsFile),
			"Run 'rmimport options init' to generate one from the source project")
	}
	return opts, err
}
