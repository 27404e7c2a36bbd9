package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/tui/ui"
	"github.com/rivo/tview"
)

// PendingList is the table of rows the backend has not acknowledged yet.
type PendingList struct {
	*tview.Table
	theme *ui.Theme
	rows  []api.MessageJSON
}

// NewPendingList creates the pending table.
func NewPendingList(theme *ui.Theme) *PendingList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0).
		SetBorders(false)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetTitleColor(theme.TitleColor)
	table.SetSelectedStyle(tcellStyle(theme))

	pl := &PendingList{Table: table, theme: theme}
	pl.SetTitle(" Pending ")
	return pl
}

// Update redraws the table. total is the unfiltered number of unsynced rows.
func (pl *PendingList) Update(rows []api.MessageJSON, total int64, filter string) {
	pl.rows = rows
	pl.Clear()

	title := fmt.Sprintf(" Pending [%d/%d] ", len(rows), total)
	if filter != "" {
		title = fmt.Sprintf(" Pending /%s [%d/%d] ", filter, len(rows), total)
	}
	pl.SetTitle(title)

	headers := []string{"MSG ID", "COUNTERPARTY", "STATUS", "MISSING", "AGE", "BODY"}
	for i, h := range headers {
		pl.SetCell(0, i, tview.NewTableCell(" "+h).
			SetSelectable(false).
			SetTextColor(pl.theme.TableHeaderFg))
	}

	for i, m := range rows {
		row := i + 1
		pl.SetCell(row, 0, tview.NewTableCell(" "+m.MsgID).SetMaxWidth(24))
		pl.SetCell(row, 1, tview.NewTableCell(" "+m.Counterparty).SetMaxWidth(28))
		pl.SetCell(row, 2, tview.NewTableCell(" "+string(m.Status)))
		pl.SetCell(row, 3, tview.NewTableCell(" "+missing(m)).SetTextColor(pl.theme.FlashWarnColor))
		pl.SetCell(row, 4, tview.NewTableCell(" "+formatAge(m.Timestamp)))
		pl.SetCell(row, 5, tview.NewTableCell(" "+preview(m)).SetExpansion(1).SetMaxWidth(60))
	}
}

// Selected returns the highlighted row, or nil on the header or an empty table.
func (pl *PendingList) Selected() *api.MessageJSON {
	row, _ := pl.GetSelection()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(pl.rows) {
		return &pl.rows[idx]
	}
	return nil
}

// missing says what the backend still lacks for the row.
func missing(m api.MessageJSON) string {
	switch {
	case !m.SyncMessage:
		return "message"
	case !m.SyncStatus:
		return "status"
	default:
		return "-"
	}
}

func preview(m api.MessageJSON) string {
	switch {
	case m.Body != nil:
		return tview.Escape(sanitizeForTerminal(*m.Body))
	case m.Media != nil:
		return "[" + m.Media.Kind + "]"
	default:
		return ""
	}
}

func formatAge(ms int64) string {
	if ms == 0 {
		return ""
	}
	d := time.Since(time.UnixMilli(ms))
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
