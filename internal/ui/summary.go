package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/BioHazard786/warpcall/internal/negotiation"
	"github.com/BioHazard786/warpcall/internal/room"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// SessionSummaryView renders one row per session with its candidate
// counters.
func SessionSummaryView(infos []room.SessionInfo) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.SetTitle("Session Summary")
	t.AppendHeader(table.Row{"Member", "Role", "State", "Sent", "Applied", "Queued", "Remote Tracks", "Duration"})

	if len(infos) == 0 {
		t.AppendRow(table.Row{"-", "-", "no peer joined", 0, 0, 0, 0, "-"})
	}
	for _, s := range infos {
		t.AppendRow(table.Row{
			s.Member,
			s.Role,
			stateLabel(s.State),
			s.Candidates.Sent,
			s.Candidates.Applied,
			s.Candidates.Queued,
			s.RemoteTracks,
			duration(s.Duration),
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	return t.Render()
}

// RenderSessionSummary writes the end of call table to w.
func RenderSessionSummary(w io.Writer, infos []room.SessionInfo) {
	fmt.Fprintln(w, SessionSummaryView(infos))
}

func duration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return FormatDuration(d)
}

func stateLabel(s negotiation.State) string {
	switch s {
	case negotiation.StateConnected:
		return IconSuccess + " " + s.String()
	case negotiation.StateClosed:
		return IconError + " " + s.String()
	}
	return IconWaiting + " " + s.String()
}
