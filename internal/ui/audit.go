package ui

import (
	"github.com/BioHazard786/Coderoom/internal/api"
	"github.com/BioHazard786/Coderoom/internal/utils"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func prettyWriter(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle(title)
	t.Style().Title.Colors = text.Colors{text.Bold, text.FgHiMagenta}
	t.Style().Color.Header = text.Colors{text.Bold, text.FgHiCyan}
	return t
}

// AuditView renders a room's audit trail, oldest first.
func AuditView(roomID string, logs []api.AuditLog) string {
	t := prettyWriter("Audit log " + roomID)
	t.AppendHeader(table.Row{"#", "When", "User", "Action", "Details"})
	for i, l := range logs {
		t.AppendRow(table.Row{
			i + 1,
			l.Timestamp.Local().Format("2006-01-02 15:04:05"),
			l.UserID,
			l.Action,
			utils.TruncateString(l.Details, 60),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "Entries", len(logs)})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 5, WidthMax: 60},
	})
	return t.Render()
}

// ExportSummary is what an export wrote to disk.
type ExportSummary struct {
	RoomID    string
	Archive   string
	CodeSize  int64
	UpdatedBy string
	Audits    int
	Messages  int
}

func ExportSummaryView(s ExportSummary) string {
	t := prettyWriter("Export " + s.RoomID)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Archive", s.Archive},
		{"Code", utils.FormatSize(s.CodeSize)},
		{"Last edited by", s.UpdatedBy},
		{"Audit entries", s.Audits},
		{"Chat messages", s.Messages},
	})
	return t.Render()
}
