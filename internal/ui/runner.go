package ui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// RunRoom shows the room full screen until the user leaves, the room is
// closed, or ctx is cancelled. It does not close the session.
func RunRoom(ctx context.Context, s Session) (RoomResult, error) {
	m := NewRoomModel(s)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return RoomResult{}, err
	}
	return m.Result(), nil
}
