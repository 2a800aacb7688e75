package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Composer is the text input for outgoing messages. The same field serves
// new sends and message edits; the label shows which mode it is in. While no
// conversation is active the composer swallows Enter instead of sending.
type Composer struct {
	*tview.InputField
	onSend  func(text string)
	enabled bool
}

// NewComposer creates a new message composer.
func NewComposer() *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetPlaceholder("Enter sends, Esc leaves").
		SetFieldWidth(0)

	c := &Composer{InputField: input, enabled: true}

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && c.enabled && c.onSend != nil {
			text := c.GetText()
			if text != "" {
				c.onSend(text)
				c.SetText("")
			}
		}
	})

	return c
}

// SetOnSend sets the callback invoked with the composer text on Enter.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}

// SetEnabled gates Enter handling without moving focus.
func (c *Composer) SetEnabled(v bool) {
	c.enabled = v
}

// BeginEdit switches the prompt into edit mode with the current message
// content preloaded.
func (c *Composer) BeginEdit(content string) {
	c.SetLabel(" edit > ")
	c.SetText(content)
}

// EndEdit restores the send prompt and clears any leftover text.
func (c *Composer) EndEdit() {
	c.SetLabel(" > ")
	c.SetText("")
}
