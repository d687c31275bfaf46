package cmd

import (
	"fmt"
	"os"

	"github.com/BioHazard786/Coderoom/internal/api"
	"github.com/BioHazard786/Coderoom/internal/chat"
	"github.com/BioHazard786/Coderoom/internal/config"
	"github.com/BioHazard786/Coderoom/internal/ui"
	"github.com/spf13/cobra"
)

var flagInviteEmail string

var roomsCmd = &cobra.Command{
	Use:     "rooms",
	Aliases: []string{"room"},
	Short:   "Create, inspect and manage rooms",
	Long: `Manage rooms over the REST API. Only admins create rooms. A room admin
can invite up to the room's invite limit and close the room, which
disconnects everyone in it.

Examples:
  coderoom rooms create "pairing session"
  coderoom rooms invite brave-lion-blue-river --email bob@example.com
  coderoom rooms join 3f6c2b0e-...
  coderoom rooms list`,
	// With no subcommand, list the rooms.
	RunE: func(cmd *cobra.Command, args []string) error {
		return roomsListCmd.RunE(cmd, args)
	},
}

var roomsCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a room (admins only)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		acct, err := OpenAccount(config.Options{})
		if err != nil {
			return err
		}
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		var room *api.Room
		err = ui.Spin("Creating room...", func() error {
			var err error
			room, err = acct.Client.CreateRoom(ctx, name)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Println(ui.RoomCreatedView(room.ID, acct.Config.GetRoomLink(room.ID)))
		fmt.Println(ui.MutedStyle.Render("Join with: coderoom join " + room.ID))
		return nil
	},
}

var roomsInviteCmd = &cobra.Command{
	Use:   "invite <room-id>",
	Short: "Issue an invitation token for a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		acct, err := OpenAccount(config.Options{})
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		var token string
		err = ui.Spin("Creating invitation...", func() error {
			var err error
			token, err = acct.Client.Invite(ctx, args[0], flagInviteEmail)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Println(ui.InviteView(args[0], token, flagInviteEmail))
		return nil
	},
}

var roomsJoinCmd = &cobra.Command{
	Use:   "join <invitation-token>",
	Short: "Redeem an invitation and become a room participant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		acct, err := OpenAccount(config.Options{})
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		var roomID string
		err = ui.Spin("Redeeming invitation...", func() error {
			var err error
			roomID, err = acct.Client.Redeem(ctx, args[0])
			return err
		})
		if err != nil {
			return err
		}
		ui.PrintSuccessf("Joined room %s. Open it with: coderoom join %s", ui.BoldStyle.Render(roomID), roomID)
		return nil
	},
}

var roomsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"history", "ls"},
	Short:   "List rooms you administer or joined",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		acct, err := OpenAccount(config.Options{})
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		var rooms []api.Room
		err = ui.Spin("Fetching rooms...", func() error {
			var err error
			rooms, err = acct.Client.RoomHistory(ctx)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Println(ui.RoomsView(rooms, acct.Identity.UserID))
		return nil
	},
}

var roomsInfoCmd = &cobra.Command{
	Use:   "info <room-id>",
	Short: "Show a room's details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		acct, err := OpenAccount(config.Options{})
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		room, err := acct.Client.Room(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(ui.RoomDetailsView(room))
		return nil
	},
}

var roomsCloseCmd = &cobra.Command{
	Use:   "close <room-id>",
	Short: "Close a room and disconnect everyone in it (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		acct, err := OpenAccount(config.Options{})
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		err = ui.Spin("Closing room...", func() error {
			return acct.Client.CloseRoom(ctx, args[0])
		})
		if err != nil {
			return err
		}
		ui.PrintSuccessf("%s Room %s closed", ui.IconClosed, args[0])
		return nil
	},
}

var roomsAuditCmd = &cobra.Command{
	Use:   "audit <room-id>",
	Short: "Show a room's audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		acct, err := OpenAccount(config.Options{})
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		logs, err := acct.Client.AuditLogs(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(ui.AuditView(args[0], logs))
		return nil
	},
}

var roomsChatCmd = &cobra.Command{
	Use:   "chat <room-id>",
	Short: "Print a room's chat transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		acct, err := OpenAccount(config.Options{})
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		msgs, err := acct.Client.ChatHistory(ctx, args[0])
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Println(ui.MutedStyle.Render("No messages"))
			return nil
		}
		return chat.WriteTranscript(os.Stdout, msgs)
	},
}

func init() {
	rootCmd.AddCommand(roomsCmd)
	roomsCmd.AddCommand(roomsCreateCmd, roomsInviteCmd, roomsJoinCmd, roomsListCmd,
		roomsInfoCmd, roomsCloseCmd, roomsAuditCmd, roomsChatCmd)

	roomsInviteCmd.Flags().StringVarP(&flagInviteEmail, "email", "e", "", "Bind the invitation to this email")
}
