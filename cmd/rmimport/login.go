package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/steveyegge/rmimport/internal/config"
	"github.com/steveyegge/rmimport/internal/redmine"
	"github.com/steveyegge/rmimport/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the Redmine API key in the system keyring",
	Long: `Prompt for the API key of the configured Redmine server (shown under
"My account" in Redmine) and keep it in the system keyring. Later commands use
it when redmine.api-key is not configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := config.Load()
		if err := s.RequireSource(); err != nil {
			return withHint(err, "Pass --redmine-url or add redmine.url to rmimport.yaml")
		}
		skipCheck, _ := cmd.Flags().GetBool("no-verify")

		key := ""
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("API key for " + s.RedmineURL).
					EchoMode(huh.EchoModePassword).
					Value(&key).
					Validate(func(v string) error {
						if strings.TrimSpace(v) == "" {
							return errors.New("API key is required")
						}
						return nil
					}),
			),
		).WithTheme(huh.ThemeDracula())
		if err := form.Run(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return nil
			}
			return fmt.Errorf("API key prompt: %w", err)
		}
		key = strings.TrimSpace(key)

		if !skipCheck {
			client := redmine.NewClient(s.RedmineURL, key)
			defer client.Close()
			if _, err := redmine.Projects(rootCtx, client); err != nil {
				return withHint(fmt.Errorf("checking API key: %w", err), "Pass --no-verify to store it anyway")
			}
		}

		store, err := openCredentials()
		if err != nil {
			return err
		}
		if err := store.SetAPIKey(s.RedmineURL, key); err != nil {
			return err
		}
		fmt.Printf("%s Stored API key for %s\n", ui.RenderPass(ui.IconPass), s.RedmineURL)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored Redmine API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := config.Load()
		if err := s.RequireSource(); err != nil {
			return err
		}
		store, err := openCredentials()
		if err != nil {
			return err
		}
		if err := store.DeleteAPIKey(s.RedmineURL); err != nil {
			return err
		}
		fmt.Printf("%s Removed API key for %s\n", ui.RenderPass(ui.IconPass), s.RedmineURL)
		return nil
	},
}

func init() {
	loginCmd.Flags().Bool("no-verify", false, "Store the key without checking it against the server")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}
