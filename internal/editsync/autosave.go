package editsync

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const saveTimeout = 10 * time.Second

// Ticker is the part of time.Ticker the autosaver uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// SaveFunc persists content for a room.
type SaveFunc func(ctx context.Context, roomID, content string) error

type AutosaverOptions struct {
	RoomID   string
	Interval time.Duration
	Content  func() string
	Save     SaveFunc

	// OnSaved and OnError report each attempt. They run on the saving
	// goroutine.
	OnSaved func()
	OnError func(err error, content string)

	// NewTicker replaces time.NewTicker in tests.
	NewTicker func(time.Duration) Ticker
}

// Autosaver persists the document on a fixed interval and once more when
// stopped. Failures never stop the schedule.
type Autosaver struct {
	opts AutosaverOptions

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
	stopped bool
}

func NewAutosaver(opts AutosaverOptions) *Autosaver {
	if opts.NewTicker == nil {
		opts.NewTicker = func(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} }
	}
	return &Autosaver{
		opts: opts,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start begins the periodic saves.
func (a *Autosaver) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started || a.stopped {
		return
	}
	a.started = true
	go a.run(ctx, a.opts.NewTicker(a.opts.Interval))
}

func (a *Autosaver) run(ctx context.Context, ticker Ticker) {
	defer close(a.done)
	defer ticker.Stop()
	for {
		select {
		case <-a.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			select {
			case <-a.quit:
				return
			default:
			}
			a.persist(ctx)
		}
	}
}

// Stop halts the ticker, waits for an in-flight save, then performs the
// final save. No save starts after Stop returns. Only the first call saves.
func (a *Autosaver) Stop(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.stopped = true
		started := a.started
		a.mu.Unlock()

		close(a.quit)
		if started {
			<-a.done
		}
		err = a.persist(ctx)
	})
	return err
}

func (a *Autosaver) persist(ctx context.Context) error {
	content := a.opts.Content()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err := a.opts.Save(ctx, a.opts.RoomID, content); err != nil {
		slog.Warn("autosave failed", "room", a.opts.RoomID, "error", err)
		if a.opts.OnError != nil {
			a.opts.OnError(err, content)
		}
		return err
	}
	slog.Debug("document saved", "room", a.opts.RoomID, "bytes", len(content))
	if a.opts.OnSaved != nil {
		a.opts.OnSaved()
	}
	return nil
}
