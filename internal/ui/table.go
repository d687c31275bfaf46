package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/BioHazard786/Coderoom/internal/api"
	"github.com/BioHazard786/Coderoom/internal/utils"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

func newTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
}

// RoomsView lists rooms the user administers or joined. self marks the
// rooms they administer.
func RoomsView(rooms []api.Room, self string) string {
	if len(rooms) == 0 {
		return MutedStyle.Render("No rooms yet")
	}

	rows := make([][]string, 0, len(rooms))
	for _, r := range rooms {
		role := "member"
		if r.AdminID == self {
			role = IconAdmin + " admin"
		}
		status := "open"
		if !r.Open() {
			status = IconClosed + " closed"
		}
		rows = append(rows, []string{
			r.ID,
			utils.TruncateString(r.Name, 30),
			role,
			strconv.Itoa(len(r.Participants)),
			status,
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return newTable([]string{"Room", "Name", "Role", "Members", "Status", "Created"}, rows).Render()
}

func InvitationsView(invs []api.Invitation) string {
	if len(invs) == 0 {
		return MutedStyle.Render("No pending invitations")
	}

	rows := make([][]string, 0, len(invs))
	for _, inv := range invs {
		rows = append(rows, []string{
			inv.RoomID,
			inv.Token,
			utils.FormatTimeDuration(time.Until(inv.ExpiresAt)),
		})
	}
	return newTable([]string{"Room", "Token", "Expires in"}, rows).Render()
}

// RoomDetailsView renders one room as a key/value table.
func RoomDetailsView(r *api.Room) string {
	status := "open"
	if !r.Open() {
		status = "closed"
	}
	rows := [][]string{
		{"Room", r.ID},
		{"Name", r.Name},
		{"Admin", r.AdminID},
		{"Participants", strconv.Itoa(len(r.Participants))},
		{"Invite limit", strconv.Itoa(r.InviteLimit)},
		{"Status", status},
		{"Created", r.CreatedAt.Local().Format(time.RFC1123)},
	}
	return newTable([]string{"Field", "Value"}, rows).Render()
}

// RoomCreatedView is the box shown after creating a room.
func RoomCreatedView(roomID, link string) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	content := fmt.Sprintf("%s Room Created!\n\n%s Room ID:    %s\n%s Room Link:  %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(roomID),
		IconWeb, MutedStyle.Render(link),
	)
	return box.Render(content)
}

// InviteView is the box shown after issuing an invitation token.
func InviteView(roomID, token, email string) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Secondary).
		Padding(1, 2)

	content := fmt.Sprintf("%s Invitation for %s\n\n%s Token:  %s",
		IconInvite, BoldStyle.Render(roomID),
		IconLink, BoldStyle.Foreground(Primary).Render(token),
	)
	if email != "" {
		content += fmt.Sprintf("\n%s For:    %s", IconPeer, email)
	}
	content += "\n\n" + MutedStyle.Render("Redeem with: coderoom rooms join "+token)
	return box.Render(content)
}
