package chat

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/Coderoom/internal/api"
	"github.com/BioHazard786/Coderoom/internal/transport"
)

// Sender delivers outbound frames to the room channel.
type Sender interface {
	Send(*transport.Frame) error
}

type Entry struct {
	SenderID   string
	SenderName string
	Content    string
	Timestamp  time.Time
	System     bool
}

// Log is the room's chat in arrival order. Entries are never edited or
// removed.
type Log struct {
	roomID string
	out    Sender

	mu       sync.RWMutex
	entries  []Entry
	onAppend func(Entry)
}

func NewLog(roomID string, out Sender) *Log {
	return &Log{roomID: roomID, out: out}
}

// OnAppend registers fn to run after each appended entry.
func (l *Log) OnAppend(fn func(Entry)) {
	l.mu.Lock()
	l.onAppend = fn
	l.mu.Unlock()
}

// Send broadcasts a message. The relay echoes it back, and the echo is what
// lands in the log. Blank messages are ignored.
func (l *Log) Send(content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	return l.out.Send(transport.ChatFrame(l.roomID, content))
}

// Append records a chat frame received from the channel.
func (l *Log) Append(f *transport.Frame) {
	e := Entry{
		SenderID:   f.SenderID,
		SenderName: f.SenderName,
		Content:    f.Content,
		Timestamp:  f.Timestamp,
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.add(e)
}

// Notice appends a local system line, such as a peer joining.
func (l *Log) Notice(text string) {
	l.add(Entry{Content: text, Timestamp: time.Now(), System: true})
}

func (l *Log) add(e Entry) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	fn := l.onAppend
	l.mu.Unlock()

	if fn != nil {
		fn(e)
	}
}

// Seed puts stored history ahead of anything already received.
func (l *Log) Seed(history []api.ChatMessage) {
	seeded := make([]Entry, 0, len(history))
	for _, m := range history {
		seeded = append(seeded, Entry{
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			Content:    m.Content,
			Timestamp:  m.Timestamp,
		})
	}

	l.mu.Lock()
	l.entries = append(seeded, l.entries...)
	l.mu.Unlock()
}

// Entries returns a snapshot of the log.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Format renders one line of the transcript.
func Format(e Entry) string {
	ts := e.Timestamp.Local().Format("15:04")
	if e.System {
		return fmt.Sprintf("[%s] * %s", ts, e.Content)
	}
	name := e.SenderName
	if name == "" {
		name = e.SenderID
	}
	return fmt.Sprintf("[%s] %s: %s", ts, name, e.Content)
}

// WriteTranscript writes messages as plain text, one per line.
func WriteTranscript(w io.Writer, messages []api.ChatMessage) error {
	for _, m := range messages {
		line := Format(Entry{SenderID: m.SenderID, SenderName: m.SenderName, Content: m.Content, Timestamp: m.Timestamp})
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
