package ui

import (
	"fmt"
	"time"

	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/rivo/tview"
)

// InstanceInfo displays instance metadata in the header.
type InstanceInfo struct {
	*tview.TextView
	theme *Theme
}

// NewInstanceInfo creates a new instance info panel.
func NewInstanceInfo(theme *Theme) *InstanceInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &InstanceInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the instance info. A nil status shows the daemon as unreachable.
func (ii *InstanceInfo) Update(st *api.StatusResponse, health string) {
	ii.Clear()

	fg := colorName(ii.theme.FgColor)
	counter := colorName(ii.theme.CounterColor)
	if st == nil {
		_, _ = fmt.Fprintf(ii, "[%s::b]Daemon:[-:-:-]   [%s]unreachable[-]", fg, colorName(ii.theme.StateBadColor))
		return
	}
	state := colorName(ii.theme.StateColor(st.State))

	lastSweep := "-"
	if st.LastSweep != nil {
		lastSweep = formatAge(time.Since(st.LastSweep.StartedAt)) + " ago"
	}

	_, _ = fmt.Fprintf(ii,
		"[%s::b]Instance:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]State:[-:-:-]    [%s]%s[-] (%s)\n"+
			"[%s::b]Health:[-:-:-]   [%s]%s[-]\n"+
			"[%s::b]Queue:[-:-:-]    [%s]%d[-]\n"+
			"[%s::b]Msgs:[-:-:-]     [%s]%d[-] / [%s]%d[-] unsynced\n"+
			"[%s::b]Sweep:[-:-:-]    [%s]%s[-]",
		fg, counter, st.Instance,
		fg, state, st.State, formatAge(time.Since(st.Since)),
		fg, counter, health,
		fg, counter, st.QueueDepth,
		fg, counter, st.Messages, counter, st.Unsynced,
		fg, counter, lastSweep,
	)
}

func formatAge(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}
