package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/BioHazard786/Coderoom/internal/config"
	"github.com/BioHazard786/Coderoom/internal/draft"
	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/BioHazard786/Coderoom/internal/ui"
	"github.com/spf13/cobra"
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Inspect code kept locally after a failed save",
	Long: `When the final save on leaving a room fails, the document is written to a
local draft instead of being lost. Drafts live under
$XDG_STATE_HOME/coderoom/drafts.

Examples:
  coderoom draft show brave-lion-blue-river > recovered.go
  coderoom draft push brave-lion-blue-river
  coderoom draft clear brave-lion-blue-river`,
}

var draftShowCmd = &cobra.Command{
	Use:   "show <room-id>",
	Short: "Print a room's draft to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := loadDraft(args[0])
		if err != nil {
			return err
		}
		fmt.Print(d.Content)
		return nil
	},
}

var draftPushCmd = &cobra.Command{
	Use:   "push <room-id>",
	Short: "Save a room's draft as the session and remove it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := args[0]
		d, err := loadDraft(roomID)
		if err != nil {
			return err
		}
		acct, err := OpenAccount(config.Options{})
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		err = ui.Spin("Saving draft...", func() error {
			return acct.Client.SaveSession(ctx, roomID, d.Content)
		})
		if err != nil {
			return err
		}
		if err := draft.NewCache(config.StateDir()).Remove(roomID); err != nil {
			return err
		}
		ui.PrintSuccessf("%s Draft from %s saved to room %s", ui.IconSave, d.SavedAt.Local().Format(time.Stamp), roomID)
		return nil
	},
}

var draftClearCmd = &cobra.Command{
	Use:   "clear <room-id>",
	Short: "Delete a room's draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := draft.NewCache(config.StateDir()).Remove(args[0]); err != nil {
			return err
		}
		ui.PrintSuccessf("Draft for %s removed", args[0])
		return nil
	},
}

func loadDraft(roomID string) (*draft.Draft, error) {
	d, err := draft.NewCache(config.StateDir()).Load(roomID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("no draft for room %s", roomID)
	}
	return d, err
}

func init() {
	rootCmd.AddCommand(draftCmd)
	draftCmd.AddCommand(draftShowCmd, draftPushCmd, draftClearCmd)
}
