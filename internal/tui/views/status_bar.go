package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// StatusBar displays the instance, its state and the daemon health.
type StatusBar struct {
	*tview.TextView
	instance string
	state    string
	health   string
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

func (sb *StatusBar) SetInstance(name string) {
	sb.instance = name
	sb.render()
}

// Set updates state and health in one redraw.
func (sb *StatusBar) Set(state, health string) {
	sb.state = state
	sb.health = health
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	healthIcon := "[red]x[-]"
	if sb.health == "SERVING" {
		healthIcon = "[green]ok[-]"
	}

	clock := time.Now().Format("15:04:05")
	_, _ = fmt.Fprintf(sb, " [::b]%s[-:-:-] | %s | health %s | %s", sb.instance, sb.state, healthIcon, clock)
}
