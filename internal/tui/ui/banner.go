package ui

import (
	"fmt"
	"strings"

	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/status"
	"github.com/rivo/tview"
)

// Banner is the header mark. It is tinted with the instance state color and
// carries the unsynced count, so the monitor can be read at a glance.
type Banner struct {
	*tview.TextView
	theme *Theme
}

func NewBanner(theme *Theme) *Banner {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignRight)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(1, 0, 0, 1)

	b := &Banner{TextView: tv, theme: theme}
	b.Update(nil)
	return b
}

// Update repaints the banner. A nil status means the daemon did not answer.
func (b *Banner) Update(st *api.StatusResponse) {
	b.SetText(bannerText(b.theme, st))
}

func bannerText(theme *Theme, st *api.StatusResponse) string {
	fg := colorName(theme.FgColor)
	state, color := "UNREACHABLE", colorName(theme.StateBadColor)
	if st != nil {
		state, color = string(st.State), colorName(theme.StateColor(st.State))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s::b]wpp[-:-:-][%s]bridge[-:-:-]\n", color, fg)
	fmt.Fprintf(&sb, "[%s]● %s[-:-:-]\n", color, state)
	if st == nil {
		return sb.String()
	}
	switch {
	case st.Unsynced == 0:
		fmt.Fprintf(&sb, "[%s]in sync[-:-:-]", colorName(theme.StateOKColor))
	case st.State == status.Ready:
		fmt.Fprintf(&sb, "[%s]%d pending[-:-:-]", colorName(theme.CounterColor), st.Unsynced)
	default:
		fmt.Fprintf(&sb, "[%s]%d pending[-:-:-]", colorName(theme.StateBusyColor), st.Unsynced)
	}
	return sb.String()
}
