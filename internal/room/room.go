package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BioHazard786/Coderoom/internal/api"
	"github.com/BioHazard786/Coderoom/internal/chat"
	"github.com/BioHazard786/Coderoom/internal/config"
	"github.com/BioHazard786/Coderoom/internal/credentials"
	"github.com/BioHazard786/Coderoom/internal/draft"
	"github.com/BioHazard786/Coderoom/internal/editsync"
	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/BioHazard786/Coderoom/internal/files"
	"github.com/BioHazard786/Coderoom/internal/peer"
	"github.com/BioHazard786/Coderoom/internal/rtc"
	"github.com/BioHazard786/Coderoom/internal/signaling"
	"github.com/BioHazard786/Coderoom/internal/transport"
	"golang.org/x/sync/errgroup"
)

const (
	eventBuffer  = 256
	closeTimeout = 15 * time.Second
)

// EventKind tells the view what to redraw.
type EventKind int

const (
	EventDocument EventKind = iota
	EventChat
	EventPeers
	EventNotice
	EventClosed
)

type Event struct {
	Kind EventKind
	Text string
}

// Services is the REST surface a room needs.
type Services interface {
	editsync.SessionService
	ChatHistory(ctx context.Context, roomID string) ([]api.ChatMessage, error)
}

type Options struct {
	RoomID   string
	Token    string
	Identity *credentials.Identity
	Config   *config.Config
	Services Services
	Drafts   *draft.Cache

	// Video and Audio are the local media sources. With neither the room
	// receives remote media only.
	Video *files.MediaFile
	Audio *files.MediaFile

	// Factory overrides pion peer connections, for tests.
	Factory signaling.Factory

	ChannelOptions []transport.Option
}

// Room is one open collaboration room: the channel, the document, the
// chat and the video mesh.
type Room struct {
	id       string
	identity *credentials.Identity

	channel    *transport.Client
	controller *signaling.Controller
	buffer     *editsync.Buffer
	chat       *chat.Log
	autosaver  *editsync.Autosaver
	streams    *rtc.StreamSet
	local      *rtc.LocalStream
	drafts     *draft.Cache

	events       chan Event
	closedRemote atomic.Bool
	closeOnce    sync.Once
	done         chan struct{}

	mu  sync.Mutex
	err error
}

// Open loads the room state, connects the channel and introduces this
// participant to the video mesh.
func Open(ctx context.Context, opts Options) (*Room, error) {
	if opts.Identity == nil || opts.Token == "" {
		return nil, errs.New("open room", errs.ErrNotLoggedIn)
	}

	url, err := opts.Config.ChannelURL(opts.RoomID, opts.Token)
	if err != nil {
		return nil, errs.New("open room", err)
	}

	r := &Room{
		id:       opts.RoomID,
		identity: opts.Identity,
		channel:  transport.NewClient(url, opts.ChannelOptions...),
		streams:  rtc.NewStreamSet(),
		drafts:   opts.Drafts,
		events:   make(chan Event, eventBuffer),
		done:     make(chan struct{}),
	}
	r.buffer = editsync.NewBuffer(opts.Identity.UserID, opts.RoomID, r.channel)
	r.chat = chat.NewLog(opts.RoomID, r.channel)

	if err := r.load(ctx, opts.Services); err != nil {
		return nil, err
	}

	factory, err := r.factory(opts)
	if err != nil {
		return nil, err
	}
	r.controller = signaling.New(signaling.Options{
		Self:     opts.Identity.UserID,
		Name:     opts.Identity.Username,
		RoomID:   opts.RoomID,
		Factory:  factory,
		Out:      r.channel,
		Streams:  r.streams,
		OnChange: func() { r.emit(Event{Kind: EventPeers}) },
	})

	interval := opts.Config.AutosaveInterval
	if interval <= 0 {
		interval = config.DefaultAutosaveInterval
	}
	r.autosaver = editsync.NewAutosaver(editsync.AutosaverOptions{
		RoomID:   opts.RoomID,
		Interval: interval,
		Content:  r.buffer.Content,
		Save:     opts.Services.SaveSession,
		OnSaved:  func() { r.emit(Event{Kind: EventNotice, Text: "Code saved"}) },
		OnError:  r.saveFailed,
	})

	r.wire()

	if err := r.channel.Connect(ctx); err != nil {
		r.controller.Close()
		r.local.Stop()
		return nil, err
	}

	r.controller.Start()
	if err := r.controller.Introduce(); err != nil {
		slog.Warn("introduce to video mesh", "error", err)
	}
	r.local.Start(context.WithoutCancel(ctx))
	r.autosaver.Start(context.WithoutCancel(ctx))

	go r.watch()
	return r, nil
}

// load fetches the stored document and chat history concurrently. Only an
// authorization failure stops the room from opening.
func (r *Room) load(ctx context.Context, svc Services) error {
	var history []api.ChatMessage

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.buffer.Load(gctx, svc); err != nil {
			if errors.Is(err, errs.ErrUnauthorized) {
				return err
			}
			r.notice(fmt.Sprintf("Could not load the saved session: %v", err))
		}
		return nil
	})
	g.Go(func() error {
		msgs, err := svc.ChatHistory(gctx, r.id)
		if err != nil {
			if errors.Is(err, errs.ErrUnauthorized) {
				return err
			}
			if !errors.Is(err, errs.ErrNotFound) {
				r.notice(fmt.Sprintf("Could not load chat history: %v", err))
			}
			return nil
		}
		history = msgs
		return nil
	})
	if err := g.Wait(); err != nil {
		return errs.New("open room", err)
	}

	r.chat.Seed(history)
	return nil
}

func (r *Room) factory(opts Options) (signaling.Factory, error) {
	if opts.Video != nil || opts.Audio != nil {
		local, err := rtc.OpenLocalStream(r.identity.UserID, opts.Video, opts.Audio)
		if err != nil {
			r.notice("Camera unavailable, video is receive-only")
			slog.Warn("local media", "error", err)
		} else {
			r.local = local
		}
	}

	if opts.Factory != nil {
		return opts.Factory, nil
	}
	rtcAPI, err := rtc.NewAPI(rtc.SettingsFromConfig(opts.Config))
	if err != nil {
		r.local.Stop()
		return nil, err
	}
	return signaling.RTCFactory(rtcAPI, r.local), nil
}

func (r *Room) wire() {
	r.buffer.OnChange(func(string, string) { r.emit(Event{Kind: EventDocument}) })
	r.chat.OnAppend(func(chat.Entry) { r.emit(Event{Kind: EventChat}) })

	r.channel.Handle(transport.KindEdit, r.buffer.OnRemoteEdit)
	r.channel.Handle(transport.KindChat, r.chat.Append)
	r.channel.Handle(transport.KindVideoSignal, r.controller.HandleFrame)
	r.channel.Handle(transport.KindPresence, r.onPresence)
	r.channel.OnRoomClosed(r.onRoomClosed)
}

func (r *Room) onPresence(f *transport.Frame) {
	if f.SenderID == r.identity.UserID {
		return
	}
	name := f.SenderName
	if name == "" {
		name = f.SenderID
	}
	switch f.Event {
	case transport.PresenceJoin:
		r.chat.Notice(name + " joined the room")
	case transport.PresenceLeave:
		r.controller.HandlePresence(f)
		r.chat.Notice(name + " left the room")
	}
}

// onRoomClosed runs on the channel reader; teardown happens elsewhere.
func (r *Room) onRoomClosed(f *transport.Frame) {
	if !r.closedRemote.CompareAndSwap(false, true) {
		return
	}
	r.setErr(errs.ErrRoomClosed)
	text := f.Content
	if text == "" {
		text = "Room has been closed by admin."
	}
	r.emit(Event{Kind: EventClosed, Text: text})
	go r.Close()
}

// watch reports a channel that ends without a local Close. There is no
// reconnection.
func (r *Room) watch() {
	select {
	case <-r.channel.Done():
	case <-r.done:
		return
	}
	if err := r.channel.Err(); err != nil && !r.closedRemote.Load() {
		r.setErr(err)
		r.emit(Event{Kind: EventClosed, Text: "Disconnected from the room"})
		go r.Close()
	}
}

func (r *Room) saveFailed(err error, content string) {
	r.emit(Event{Kind: EventNotice, Text: fmt.Sprintf("Autosave failed: %v", err)})
	if r.drafts == nil {
		return
	}
	path, derr := r.drafts.Save(draft.Draft{RoomID: r.id, Content: content, Reason: err.Error()})
	if derr != nil {
		slog.Error("writing draft", "error", derr)
		return
	}
	r.emit(Event{Kind: EventNotice, Text: "Draft kept at " + path})
}

// Close tears the room down in order: stop the autosave ticker and save
// once more, close the channel, release every peer connection, stop local
// media. It is synchronous and idempotent.
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()

		if err := r.autosaver.Stop(ctx); err == nil && r.drafts != nil {
			if err := r.drafts.Remove(r.id); err != nil {
				slog.Debug("removing draft", "error", err)
			}
		}
		r.channel.Close()
		r.controller.Close()
		r.local.Stop()
		close(r.done)
	})
}

func (r *Room) emit(e Event) {
	select {
	case r.events <- e:
	default:
		slog.Debug("room event dropped", "kind", e.Kind)
	}
}

func (r *Room) notice(text string) {
	r.emit(Event{Kind: EventNotice, Text: text})
}

func (r *Room) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

// Err is errs.ErrRoomClosed after an admin closed the room, the channel
// error after a disconnect, and nil after a local Close.
func (r *Room) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Room) ID() string { return r.id }
func (r *Room) Identity() *credentials.Identity { return r.identity }
func (r *Room) Events() <-chan Event { return r.events }
func (r *Room) Done() <-chan struct{} { return r.done }
func (r *Room) Document() *editsync.Buffer { return r.buffer }
func (r *Room) Chat() *chat.Log { return r.chat }
func (r *Room) Streams() *rtc.StreamSet { return r.streams }
func (r *Room) Peers() []peer.Entry { return r.controller.Registry().All() }
func (r *Room) Publishing() bool { return r.local != nil }
