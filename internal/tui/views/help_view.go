package views

import (
	"fmt"

	"github.com/matheus3301/wppbridge/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	kc := fmt.Sprintf("#%06x", theme.MenuKeyColor.Hex())
	_, _ = fmt.Fprintf(tv, `
  [::b]Keys[-:-:-]

  [%[1]s]:[-:-:-]      Command mode        [%[1]s]Esc[-:-:-]    Cancel / Go back
  [%[1]s]/[-:-:-]      Filter by number    [%[1]s]?[-:-:-]      Help
  [%[1]s]r[-:-:-]      Refresh now         [%[1]s]s[-:-:-]      Run a sweep
  [%[1]s]p[-:-:-]      Start pairing       [%[1]s]q[-:-:-]      Quit

  [::b]Commands (: mode)[-:-:-]

  [%[1]s]:sweep[-:-:-]            Re-forward unsynced rows now
  [%[1]s]:refresh[-:-:-]          Poll the daemon
  [%[1]s]:filter <number>[-:-:-]  Show rows for one counterparty
  [%[1]s]:pair[-:-:-]             Start QR pairing
  [%[1]s]:help[-:-:-] / [%[1]s]:h[-:-:-]       Show this help
  [%[1]s]:quit[-:-:-] / [%[1]s]:q[-:-:-]       Quit

  [::b]Columns[-:-:-]

  MISSING is what the backend has not acknowledged: the whole message,
  or only its latest status.
`, kc)

	return &HelpView{TextView: tv}
}
