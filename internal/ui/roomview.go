package ui

import (
	"fmt"
	"strings"

	"github.com/BioHazard786/Coderoom/internal/chat"
	"github.com/BioHazard786/Coderoom/internal/credentials"
	"github.com/BioHazard786/Coderoom/internal/editsync"
	"github.com/BioHazard786/Coderoom/internal/peer"
	"github.com/BioHazard786/Coderoom/internal/room"
	"github.com/BioHazard786/Coderoom/internal/rtc"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	maxNotices = 3
	peerRows   = 4
)

// Session is the open room a RoomModel drives. *room.Room satisfies it.
type Session interface {
	ID() string
	Identity() *credentials.Identity
	Events() <-chan room.Event
	Done() <-chan struct{}
	Err() error
	Document() *editsync.Buffer
	Chat() *chat.Log
	Peers() []peer.Entry
	Streams() *rtc.StreamSet
	Publishing() bool
}

type pane int

const (
	paneEditor pane = iota
	paneChat
)

type roomEventMsg room.Event

type roomDoneMsg struct{}

// RoomModel is the full-screen room: the shared document on the left, the
// peers and the chat on the right.
type RoomModel struct {
	session Session

	editor  textarea.Model
	chatLog viewport.Model
	input   textinput.Model
	focus   pane

	// synced is the document content last sent or received, so only real
	// local changes are broadcast.
	synced string

	notices    []string
	closedText string
	ended      bool
	quitting   bool

	width  int
	height int
}

func NewRoomModel(s Session) *RoomModel {
	ed := textarea.New()
	ed.ShowLineNumbers = true
	ed.CharLimit = 0
	ed.MaxHeight = 0
	ed.Placeholder = "Start typing..."
	content := s.Document().Content()
	ed.SetValue(content)
	ed.Focus()

	in := textinput.New()
	in.Placeholder = "Message the room"
	in.Prompt = "> "

	m := &RoomModel{
		session: s,
		editor:  ed,
		chatLog: viewport.New(40, 10),
		input:   in,
		synced:  content,
	}
	m.refreshChat()
	return m
}

func (m *RoomModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.listen())
}

func (m *RoomModel) listen() tea.Cmd {
	events, done := m.session.Events(), m.session.Done()
	return func() tea.Msg {
		select {
		case ev := <-events:
			return roomEventMsg(ev)
		case <-done:
			return roomDoneMsg{}
		}
	}
}

func (m *RoomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+q":
			m.quitting = true
			return m, tea.Quit
		case "tab":
			m.toggleFocus()
			return m, nil
		}
		if m.focus == paneChat {
			return m, m.updateChat(msg)
		}
		var cmd tea.Cmd
		m.editor, cmd = m.editor.Update(msg)
		m.pushEdit()
		return m, cmd

	case roomEventMsg:
		ev := room.Event(msg)
		if ev.Kind == room.EventClosed {
			m.end(ev.Text)
			return m, tea.Quit
		}
		m.apply(ev)
		return m, m.listen()

	case roomDoneMsg:
		m.drain()
		m.end(m.closedText)
		return m, tea.Quit
	}

	var cmd tea.Cmd
	if m.focus == paneEditor {
		m.editor, cmd = m.editor.Update(msg)
	} else {
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m *RoomModel) updateChat(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "enter":
		m.sendChat()
		return nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.chatLog, cmd = m.chatLog.Update(msg)
		return cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *RoomModel) toggleFocus() {
	if m.focus == paneEditor {
		m.focus = paneChat
		m.editor.Blur()
		m.input.Focus()
		return
	}
	m.focus = paneEditor
	m.input.Blur()
	m.editor.Focus()
}

func (m *RoomModel) apply(ev room.Event) {
	switch ev.Kind {
	case room.EventDocument:
		m.applyRemote()
	case room.EventChat:
		m.refreshChat()
	case room.EventNotice:
		m.notice(ev.Text)
	}
}

// drain picks up a closing message queued behind the done signal.
func (m *RoomModel) drain() {
	for {
		select {
		case ev := <-m.session.Events():
			if ev.Kind == room.EventClosed && m.closedText == "" {
				m.closedText = ev.Text
			}
		default:
			return
		}
	}
}

func (m *RoomModel) end(text string) {
	m.ended = true
	m.closedText = text
	if m.closedText == "" {
		if err := m.session.Err(); err != nil {
			m.closedText = err.Error()
		}
	}
	m.quitting = true
}

func (m *RoomModel) pushEdit() {
	v := m.editor.Value()
	if v == m.synced {
		return
	}
	m.synced = v
	if err := m.session.Document().OnLocalChange(v); err != nil {
		m.notice("Edit not sent: " + err.Error())
	}
}

// applyRemote replaces the editor content with the document, keeping the
// cursor on the same line and column where it still exists.
func (m *RoomModel) applyRemote() {
	content := m.session.Document().Content()
	m.synced = content
	if content == m.editor.Value() {
		return
	}

	row := m.editor.Line()
	info := m.editor.LineInfo()
	col := info.StartColumn + info.ColumnOffset

	m.editor.SetValue(content)
	for m.editor.Line() > row {
		m.editor.CursorUp()
	}
	m.editor.SetCursor(col)
}

func (m *RoomModel) sendChat() {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return
	}
	if err := m.session.Chat().Send(text); err != nil {
		m.notice("Message not sent: " + err.Error())
		return
	}
	m.input.Reset()
}

func (m *RoomModel) notice(text string) {
	m.notices = append(m.notices, text)
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

func (m *RoomModel) refreshChat() {
	wrap := lipgloss.NewStyle().Width(max(m.chatLog.Width, 1))
	entries := m.session.Chat().Entries()
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.System {
			lines = append(lines, wrap.Render(SystemLineStyle.Render(chat.Format(e))))
			continue
		}
		name := e.SenderName
		if name == "" {
			name = e.SenderID
		}
		ts := MutedStyle.Render(e.Timestamp.Local().Format("15:04"))
		lines = append(lines, wrap.Render(fmt.Sprintf("%s %s %s", ts, ChatNameStyle.Render(name+":"), e.Content)))
	}
	m.chatLog.SetContent(strings.Join(lines, "\n"))
	m.chatLog.GotoBottom()
}

func (m *RoomModel) layout() {
	bodyH := max(m.height-3, 6)
	editorW := max(m.width*3/5, 20)
	sideW := max(m.width-editorW, 20)

	m.editor.SetWidth(editorW - 2)
	m.editor.SetHeight(bodyH - 2)

	chatH := max(bodyH-(peerRows+2)-2-1, 1)
	m.chatLog.Width = sideW - 2
	m.chatLog.Height = chatH
	m.input.Width = sideW - 4
	m.refreshChat()
}

func (m *RoomModel) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading room..."
	}

	bodyH := max(m.height-3, 6)
	editorW := max(m.width*3/5, 20)
	sideW := max(m.width-editorW, 20)

	editorStyle, chatStyle := FocusedPaneStyle, PaneStyle
	if m.focus == paneChat {
		editorStyle, chatStyle = PaneStyle, FocusedPaneStyle
	}

	editor := editorStyle.Width(editorW - 2).Height(bodyH - 2).Render(m.editor.View())
	peers := PaneStyle.Width(sideW - 2).Height(peerRows).Render(m.peersView())
	chatPane := chatStyle.Width(sideW - 2).Render(m.chatLog.View() + "\n" + m.input.View())

	body := lipgloss.JoinHorizontal(lipgloss.Top, editor, lipgloss.JoinVertical(lipgloss.Left, peers, chatPane))
	return lipgloss.JoinVertical(lipgloss.Left, m.headerView(), body, m.footerView())
}

func (m *RoomModel) headerView() string {
	id := m.session.Identity()
	by := m.session.Document().UpdatedBy()
	if by == "" {
		by = "nobody"
	}
	text := fmt.Sprintf("%s %s   %s %s   %s last edit: %s",
		IconRoom, m.session.ID(),
		IconPeer, id.Username,
		IconSave, by,
	)
	if id.Admin() {
		text += "   " + IconAdmin
	}
	return HeaderStyle.Width(m.width).Render(text)
}

func (m *RoomModel) peersView() string {
	self := "receive-only"
	if m.session.Publishing() {
		self = IconVideo + " publishing"
	}
	lines := []string{SuccessStyle.Render("●") + " you " + MutedStyle.Render(self)}

	peers := m.session.Peers()
	for i, p := range peers {
		if len(lines) == peerRows-1 && len(peers)-i > 1 {
			lines = append(lines, MutedStyle.Render(fmt.Sprintf("+%d more", len(peers)-i)))
			break
		}
		lines = append(lines, m.peerLine(p))
	}
	return strings.Join(lines, "\n")
}

func (m *RoomModel) peerLine(p peer.Entry) string {
	dot := WarningStyle.Render("◐")
	switch {
	case p.Failed || p.State == peer.StateClosed:
		dot = ErrorStyle.Render("○")
	case p.State == peer.StateConnected:
		dot = SuccessStyle.Render("●")
	}
	name := p.Name
	if name == "" {
		name = p.PeerID
	}
	line := fmt.Sprintf("%s %s %s", dot, name, MutedStyle.Render(strings.ToLower(p.State.String())))
	if n := len(m.session.Streams().ForPeer(p.PeerID)); n > 0 {
		line += fmt.Sprintf(" %s%d", IconVideo, n)
	}
	return line
}

func (m *RoomModel) footerView() string {
	status := ""
	if n := len(m.notices); n > 0 {
		status = WarningStyle.Render(m.notices[n-1])
	}
	help := FooterStyle.Render("tab switch pane • enter send • pgup/pgdown scroll chat • ctrl+c leave")
	return status + "\n" + help
}

// RoomResult says how the room view ended.
type RoomResult struct {
	// Ended is set when the room ended on its own, closed by the admin or
	// disconnected, rather than the user leaving.
	Ended   bool
	Message string
}

func (m *RoomModel) Result() RoomResult {
	return RoomResult{Ended: m.ended, Message: m.closedText}
}
