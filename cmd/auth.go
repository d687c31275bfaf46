package cmd

import (
	"fmt"
	"time"

	"github.com/BioHazard786/Coderoom/internal/api"
	"github.com/BioHazard786/Coderoom/internal/config"
	"github.com/BioHazard786/Coderoom/internal/credentials"
	"github.com/BioHazard786/Coderoom/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flagEmail    string
	flagUsername string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Long: `Create an account on the backend. The password is read from the
terminal without echo, or from stdin when piped.

Examples:
  coderoom register --username ada --email ada@example.com
  echo "$PASSWORD" | coderoom register -u ada -e ada@example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(config.Options{})
		if err != nil {
			return err
		}
		username, err := valueOr(flagUsername, "Username: ")
		if err != nil {
			return err
		}
		email, err := valueOr(flagEmail, "Email: ")
		if err != nil {
			return err
		}
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}

		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()
		err = ui.Spin("Creating account...", func() error {
			return api.New(cfg.APIBaseURL(), nil).Register(ctx, username, email, password)
		})
		if err != nil {
			return err
		}
		ui.PrintSuccessf("Account created for %s. Log in with: coderoom login -e %s", username, email)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session tokens",
	Long: `Log in with email and password. The access and refresh tokens are kept
in $XDG_CONFIG_HOME/coderoom/credentials.json with mode 0600.

Examples:
  coderoom login --email ada@example.com
  coderoom login --server http://localhost:8080 -e ada@example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(config.Options{})
		if err != nil {
			return err
		}
		email, err := valueOr(flagEmail, "Email: ")
		if err != nil {
			return err
		}
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}

		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()
		var tok *api.TokenResponse
		err = ui.Spin("Logging in...", func() error {
			var err error
			tok, err = api.New(cfg.APIBaseURL(), nil).Login(ctx, email, password)
			return err
		})
		if err != nil {
			return err
		}

		identity, err := credentials.ParseIdentity(tok.AccessToken)
		if err != nil {
			return err
		}
		store, err := credentials.Open(credentials.DefaultPath())
		if err != nil {
			return err
		}
		err = store.Save(credentials.Tokens{
			Server:       cfg.Server,
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
		})
		if err != nil {
			return err
		}
		ui.PrintSuccessf("Logged in as %s (%s)", ui.BoldStyle.Render(identity.Username), identity.Role)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.Open(credentials.DefaultPath())
		if err != nil {
			return err
		}
		if err := store.Clear(); err != nil {
			return err
		}
		ui.PrintSuccess("Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		acct, err := OpenAccount(config.Options{})
		if err != nil {
			return err
		}
		id := acct.Identity
		fmt.Printf("%s %s <%s>\n", ui.IconPeer, ui.BoldStyle.Render(id.Username), id.Email)
		fmt.Printf("   id:      %s\n", id.UserID)
		fmt.Printf("   role:    %s\n", id.Role)
		fmt.Printf("   server:  %s\n", acct.Config.Server)
		if !id.ExpiresAt.IsZero() {
			state := "valid until " + id.ExpiresAt.Local().Format(time.RFC1123)
			if id.Expired(time.Now()) {
				state = ui.WarningStyle.Render("expired, refreshed on next use")
			}
			fmt.Printf("   token:   %s\n", state)
		}
		return nil
	},
}

var invitationsCmd = &cobra.Command{
	Use:   "invitations",
	Short: "List pending invitations addressed to you",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		acct, err := OpenAccount(config.Options{})
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		var invs []api.Invitation
		err = ui.Spin("Fetching invitations...", func() error {
			var err error
			invs, err = acct.Client.Invitations(ctx)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Println(ui.InvitationsView(invs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd, whoamiCmd, invitationsCmd)

	registerCmd.Flags().StringVarP(&flagUsername, "username", "u", "", "Display name")
	registerCmd.Flags().StringVarP(&flagEmail, "email", "e", "", "Email address")
	loginCmd.Flags().StringVarP(&flagEmail, "email", "e", "", "Email address")
}
