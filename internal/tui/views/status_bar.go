package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// StatusBar displays the profile, session state, and transient flashes.
type StatusBar struct {
	*tview.TextView
	profile  string
	user     string
	status   string
	flash    string
	flashErr bool
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetUser updates the logged-in username display.
func (sb *StatusBar) SetUser(name string) {
	sb.user = name
	sb.render()
}

// SetStatus updates the session state display.
func (sb *StatusBar) SetStatus(status string) {
	sb.status = status
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string, isErr bool) {
	sb.flash = msg
	sb.flashErr = isErr
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	clock := time.Now().Format("15:04")
	who := sb.profile
	if sb.user != "" {
		who = sb.user + "@" + sb.profile
	}

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s", who, sb.status, clock)
	if sb.flash != "" {
		color := "yellow"
		if sb.flashErr {
			color = "red"
		}
		line += fmt.Sprintf(" | [%s]%s[-]", color, tview.Escape(sb.flash))
	}

	fmt.Fprint(sb, line)
}
