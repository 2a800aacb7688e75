package views

import (
	"github.com/rivo/tview"

	"github.com/ASDFGHan123/unichat/internal/tui/ui"
)

// LoginView is the credential form shown whenever the session needs
// authentication.
type LoginView struct {
	*tview.Flex
	form    *tview.Form
	message *tview.TextView
	onLogin func(username, password string)
}

// NewLoginView creates the login form.
func NewLoginView(theme *ui.Theme) *LoginView {
	lv := &LoginView{}

	msg := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	msg.SetBackgroundColor(theme.BgColor)

	form := tview.NewForm().
		AddInputField("Username", "", 32, nil, nil).
		AddPasswordField("Password", "", 32, '*', nil)
	form.AddButton("Login", func() {
		if lv.onLogin == nil {
			return
		}
		user := form.GetFormItemByLabel("Username").(*tview.InputField).GetText()
		pass := form.GetFormItemByLabel("Password").(*tview.InputField).GetText()
		lv.onLogin(user, pass)
	})
	form.SetBorder(true)
	form.SetTitle(" Sign In ")
	form.SetTitleColor(theme.TitleColor)
	form.SetBorderColor(theme.BorderColor)
	form.SetBackgroundColor(theme.BgColor)
	form.SetFieldTextColor(theme.FgColor)
	form.SetFieldBackgroundColor(theme.BgColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(form, 44, 0, true).
			AddItem(nil, 0, 1, false), 9, 0, true).
		AddItem(msg, 1, 0, false).
		AddItem(nil, 0, 1, false)

	lv.Flex = flex
	lv.form = form
	lv.message = msg
	return lv
}

// SetOnLogin sets the callback invoked with the entered credentials.
func (lv *LoginView) SetOnLogin(fn func(username, password string)) {
	lv.onLogin = fn
}

// ShowMessage displays a status or error line under the form.
func (lv *LoginView) ShowMessage(text string) {
	lv.message.Clear()
	lv.message.SetText(text)
}

// Reset clears the password field, keeping the username.
func (lv *LoginView) Reset() {
	lv.form.GetFormItemByLabel("Password").(*tview.InputField).SetText("")
}

// Form returns the form for focus handling.
func (lv *LoginView) Form() *tview.Form {
	return lv.form
}
