package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/BioHazard786/Coderoom/internal/config"
	"github.com/BioHazard786/Coderoom/internal/draft"
	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/BioHazard786/Coderoom/internal/files"
	"github.com/BioHazard786/Coderoom/internal/logging"
	"github.com/BioHazard786/Coderoom/internal/room"
	"github.com/BioHazard786/Coderoom/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flagVideoFile string
	flagAudioFile string
	flagNoVideo   bool
	flagAutosave  time.Duration
	flagLogFile   string
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id>",
	Aliases: []string{"j", "open"},
	Short:   "Open a room: shared editor, chat and video",
	Long: `Open a room you administer or participate in. The document, chat and
peer list are shown full screen. Edits are broadcast as you type and the
document is saved every autosave interval and once more when you leave.

Local video and audio come from an IVF (VP8/VP9) file and an Ogg/Opus file.
Without them, or with --no-video, remote video is received only.

Logs are written to a file while the room is open.

Examples:
  coderoom join brave-lion-blue-river
  coderoom join brave-lion-blue-river --video-file cam.ivf --audio-file mic.ogg
  coderoom join brave-lion-blue-river --no-video --autosave 1m`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := config.Options{
			VideoFile:        flagVideoFile,
			AudioFile:        flagAudioFile,
			AutosaveInterval: flagAutosave,
		}
		if cmd.Flags().Changed("no-video") {
			publish := !flagNoVideo
			opts.Video = &publish
		}
		return joinRoom(cmd.Context(), args[0], opts)
	},
}

func joinRoom(ctx context.Context, roomID string, opts config.Options) error {
	acct, err := OpenAccount(opts)
	if err != nil {
		return err
	}
	if err := acct.EnsureFresh(ctx); err != nil {
		return err
	}

	var video, audio *files.MediaFile
	if acct.Config.Video {
		video, audio, err = files.ValidateAll(acct.Config.VideoFile, acct.Config.AudioFile)
		if err != nil {
			return err
		}
	}

	drafts := draft.NewCache(config.StateDir())
	if d, err := drafts.Load(roomID); err == nil {
		ui.PrintWarningf("An unsaved draft from %s exists for this room. See: coderoom draft show %s",
			d.SavedAt.Local().Format(time.Kitchen), roomID)
	}

	sp := ui.NewConnectionSpinner("Joining room " + roomID + "...")
	sp.Start()
	r, err := room.Open(ctx, room.Options{
		RoomID:   roomID,
		Token:    acct.Store.AccessToken(),
		Identity: acct.Identity,
		Config:   acct.Config,
		Services: acct.Client,
		Drafts:   drafts,
		Video:    video,
		Audio:    audio,
	})
	if err != nil {
		sp.Error("Could not join room " + roomID)
		return err
	}
	sp.Stop()

	logPath := flagLogFile
	if logPath == "" {
		logPath = filepath.Join(config.StateDir(), "coderoom.log")
	}
	restore, err := logging.ToFile(logPath)
	if err != nil {
		r.Close()
		return fmt.Errorf("open log file: %w", err)
	}

	res, runErr := ui.RunRoom(ctx, r)

	sp = ui.NewSpinner("Saving and leaving...")
	sp.Start()
	r.Close()
	sp.Stop()
	restore()

	if runErr != nil {
		return runErr
	}
	return reportExit(roomID, r, res, drafts)
}

func reportExit(roomID string, r *room.Room, res ui.RoomResult, drafts *draft.Cache) error {
	if d, err := drafts.Load(roomID); err == nil {
		ui.PrintWarningf("The last save failed (%s). Your code is kept locally: coderoom draft show %s", d.Reason, roomID)
	}

	switch err := r.Err(); {
	case errors.Is(err, errs.ErrRoomClosed):
		ui.PrintWarningf("%s %s", ui.IconClosed, res.Message)
		return nil
	case err != nil:
		return errs.Wrap("room "+roomID, err, "disconnected, rejoin with `coderoom join "+roomID+"`")
	}
	ui.PrintSuccessf("Left room %s", roomID)
	return nil
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVar(&flagVideoFile, "video-file", "", "IVF file to publish as video")
	joinCmd.Flags().StringVar(&flagAudioFile, "audio-file", "", "Ogg/Opus file to publish as audio")
	joinCmd.Flags().BoolVar(&flagNoVideo, "no-video", false, "Do not publish local media")
	joinCmd.Flags().DurationVar(&flagAutosave, "autosave", 0, "Autosave interval (default 30s)")
	joinCmd.Flags().StringVar(&flagLogFile, "log-file", "", "Where to write logs while the room is open")
}
