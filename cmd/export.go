package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BioHazard786/Coderoom/internal/api"
	"github.com/BioHazard786/Coderoom/internal/chat"
	"github.com/BioHazard786/Coderoom/internal/config"
	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/BioHazard786/Coderoom/internal/ui"
	"github.com/BioHazard786/Coderoom/internal/utils"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var flagExportOut string

var exportCmd = &cobra.Command{
	Use:   "export <room-id>",
	Short: "Download a room's code, audit trail and chat as a zip",
	Long: `Export the saved session of a room together with its audit trail and chat
transcript. The archive holds code.txt, audit.json and chat.txt. The export
itself is recorded in the audit trail.

Examples:
  coderoom export brave-lion-blue-river
  coderoom export brave-lion-blue-river -o pairing.zip`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := args[0]
		acct, err := OpenAccount(config.Options{})
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		// The export entry goes in first so the archive includes it.
		if err := acct.Client.LogAudit(ctx, roomID, "export", "Session exported from the CLI."); err != nil {
			ui.PrintWarningf("Could not record the export: %v", err)
		}

		var (
			export *api.Export
			msgs   []api.ChatMessage
		)
		sp := ui.NewSpinner("Fetching session...")
		sp.Start()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			export, err = acct.Client.ExportSession(gctx, roomID)
			return err
		})
		g.Go(func() error {
			var err error
			msgs, err = acct.Client.ChatHistory(gctx, roomID)
			if errors.Is(err, errs.ErrNotFound) {
				return nil
			}
			return err
		})
		if err := g.Wait(); err != nil {
			sp.Error("Export failed")
			return err
		}
		sp.Stop()

		audit, err := json.MarshalIndent(export.AuditLogs, "", "  ")
		if err != nil {
			return err
		}
		var transcript bytes.Buffer
		if err := chat.WriteTranscript(&transcript, msgs); err != nil {
			return err
		}

		target := flagExportOut
		if target == "" {
			target = roomID + ".zip"
		}
		target = utils.GetUniqueFilename(target)

		modified := export.Session.ModifiedAt
		if modified.IsZero() {
			modified = time.Now()
		}
		err = utils.ZipEntries(target, []utils.ZipEntry{
			{Name: "code.txt", Content: []byte(export.Session.Code), Modified: modified},
			{Name: "audit.json", Content: audit},
			{Name: "chat.txt", Content: transcript.Bytes()},
		})
		if err != nil {
			return errs.New("write archive", err)
		}

		ui.PrintSuccessf("Exported %s", roomID)
		fmt.Println()
		fmt.Println(ui.ExportSummaryView(ui.ExportSummary{
			RoomID:    roomID,
			Archive:   target,
			CodeSize:  int64(len(export.Session.Code)),
			UpdatedBy: export.Session.UpdatedBy,
			Audits:    len(export.AuditLogs),
			Messages:  len(msgs),
		}))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&flagExportOut, "output", "o", "", "Archive path (default <room-id>.zip)")
}
