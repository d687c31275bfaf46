package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BioHazard786/Coderoom/internal/credentials"
	"github.com/BioHazard786/Coderoom/internal/relay"
	"github.com/BioHazard786/Coderoom/internal/ui"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	flagRelayAddr     string
	flagRelaySecret   string
	flagRedisAddr     string
	flagRedisPassword string
	flagRedisDB       int
	flagAdmins        []string

	flagTokenUserID   string
	flagTokenUsername string
	flagTokenEmail    string
	flagTokenRole     string
	flagTokenTTL      time.Duration
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run a development backend",
	Long: `A self-contained backend for local development and testing: accounts,
rooms, invitations, sessions, audit trail, chat history and the
collaboration channel. State is kept in memory unless --redis is given.`,
}

var relayServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API and the collaboration channel",
	Long: `Serve the backend until interrupted.

The signing secret comes from --secret or CODEROOM_RELAY_SECRET.

Examples:
  coderoom relay serve --secret dev
  coderoom relay serve --addr :9000 --redis localhost:6379 --admin ada@example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := relaySecret()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		var store relay.Store
		if flagRedisAddr != "" {
			store, err = relay.NewRedisStore(ctx, relay.RedisOptions{
				Addr:     flagRedisAddr,
				Password: flagRedisPassword,
				DB:       flagRedisDB,
			})
			if err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}
		}

		if os.Getenv(gin.EnvGinMode) == "" {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := relay.NewServer(relay.Options{Secret: secret, Store: store, Admins: flagAdmins})
		defer srv.Close()

		ui.PrintInfof("Relay listening on %s", ui.BoldStyle.Render(flagRelayAddr))
		if len(flagAdmins) == 0 {
			ui.PrintWarning("No --admin given, every account may create rooms")
		}
		return srv.ListenAndServe(ctx, flagRelayAddr)
	},
}

var relayTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an access token signed with the relay secret",
	Long: `Mint an access token without an account, for scripting and tests.

Examples:
  coderoom relay token --secret dev --username ada --role admin`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := relaySecret()
		if err != nil {
			return err
		}
		if flagTokenRole != credentials.RoleAdmin && flagTokenRole != credentials.RoleMember {
			return fmt.Errorf("role must be %s or %s", credentials.RoleAdmin, credentials.RoleMember)
		}
		id := flagTokenUserID
		if id == "" {
			id = uuid.NewString()
		}
		tok, err := relay.NewIssuer(secret).Access(&relay.User{
			ID:       id,
			Username: flagTokenUsername,
			Email:    flagTokenEmail,
			Role:     flagTokenRole,
		}, flagTokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func relaySecret() (string, error) {
	if flagRelaySecret != "" {
		return flagRelaySecret, nil
	}
	if s := os.Getenv("CODEROOM_RELAY_SECRET"); s != "" {
		return s, nil
	}
	return "", errors.New("a signing secret is required (--secret or CODEROOM_RELAY_SECRET)")
}

func init() {
	rootCmd.AddCommand(relayCmd)
	relayCmd.AddCommand(relayServeCmd, relayTokenCmd)

	relayCmd.PersistentFlags().StringVar(&flagRelaySecret, "secret", "", "Token signing secret")

	relayServeCmd.Flags().StringVarP(&flagRelayAddr, "addr", "a", ":8080", "Listen address")
	relayServeCmd.Flags().StringVar(&flagRedisAddr, "redis", "", "Redis address; in-memory when empty")
	relayServeCmd.Flags().StringVar(&flagRedisPassword, "redis-password", "", "Redis password")
	relayServeCmd.Flags().IntVar(&flagRedisDB, "redis-db", 0, "Redis database")
	relayServeCmd.Flags().StringSliceVar(&flagAdmins, "admin", nil, "Email allowed to create rooms (repeatable)")

	relayTokenCmd.Flags().StringVar(&flagTokenUserID, "user-id", "", "User id (random when empty)")
	relayTokenCmd.Flags().StringVarP(&flagTokenUsername, "username", "u", "dev", "Display name")
	relayTokenCmd.Flags().StringVarP(&flagTokenEmail, "email", "e", "", "Email")
	relayTokenCmd.Flags().StringVar(&flagTokenRole, "role", credentials.RoleMember, "admin or member")
	relayTokenCmd.Flags().DurationVar(&flagTokenTTL, "ttl", relay.AccessTTL, "Token lifetime")
}
