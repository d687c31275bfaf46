package rtc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/BioHazard786/Coderoom/internal/files"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const (
	oggPageDuration = 20 * time.Millisecond
	opusSampleRate  = 48000
)

// LocalStream is this client's outgoing media. Its tracks are shared
// read-only by every peer connection in the room.
type LocalStream struct {
	ID string

	video     *webrtc.TrackLocalStaticSample
	audio     *webrtc.TrackLocalStaticSample
	videoFile *files.MediaFile
	audioFile *files.MediaFile

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// OpenLocalStream builds tracks for the given sources. With neither source
// it returns errs.ErrMediaUnavailable and the caller continues receive-only.
func OpenLocalStream(streamID string, video, audio *files.MediaFile) (*LocalStream, error) {
	if video == nil && audio == nil {
		return nil, errs.ErrMediaUnavailable
	}

	s := &LocalStream{ID: streamID, videoFile: video, audioFile: audio}

	if video != nil {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: videoMime(video.Codec)}, "video", streamID)
		if err != nil {
			return nil, errs.New("create video track", err)
		}
		s.video = track
	}
	if audio != nil {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
		if err != nil {
			return nil, errs.New("create audio track", err)
		}
		s.audio = track
	}
	return s, nil
}

// Track returns the local track for kind, or nil. Safe on a nil stream.
func (s *LocalStream) Track(kind webrtc.RTPCodecType) *webrtc.TrackLocalStaticSample {
	if s == nil {
		return nil
	}
	switch kind {
	case webrtc.RTPCodecTypeVideo:
		return s.video
	case webrtc.RTPCodecTypeAudio:
		return s.audio
	}
	return nil
}

// Start feeds the tracks from their files until Stop, looping at EOF.
func (s *LocalStream) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	if s.video != nil {
		s.wg.Add(1)
		go s.loop(ctx, "video", func(ctx context.Context) error {
			return feedIVF(ctx, s.videoFile.Path, s.video)
		})
	}
	if s.audio != nil {
		s.wg.Add(1)
		go s.loop(ctx, "audio", func(ctx context.Context) error {
			return feedOgg(ctx, s.audioFile.Path, s.audio)
		})
	}
}

// Stop halts the feeders and waits for them to exit.
func (s *LocalStream) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *LocalStream) loop(ctx context.Context, kind string, feed func(context.Context) error) {
	defer s.wg.Done()
	for {
		err := feed(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, io.EOF) {
			slog.Error("local media feed stopped", "kind", kind, "error", err)
			return
		}
	}
}

func feedIVF(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		return err
	}

	frameDuration := time.Second
	if header.TimebaseDenominator != 0 {
		frameDuration = time.Duration(float64(time.Second) * float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
	}
	if frameDuration <= 0 {
		frameDuration = time.Second / 30
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		frame, _, err := reader.ParseNextFrame()
		if err != nil {
			return err
		}
		if err := track.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			return err
		}
	}
}

func feedOgg(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		page, header, err := reader.ParseNextPage()
		if err != nil {
			return err
		}

		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(float64(samples) / opusSampleRate * float64(time.Second))

		if err := track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			return err
		}
	}
}

func videoMime(codec string) string {
	switch codec {
	case "VP90":
		return webrtc.MimeTypeVP9
	case "AV01":
		return webrtc.MimeTypeAV1
	default:
		return webrtc.MimeTypeVP8
	}
}
