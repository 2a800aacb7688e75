package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/ASDFGHan123/unichat/internal/chat"
	"github.com/ASDFGHan123/unichat/internal/tui/ui"
)

// SearchResult is one row in the search table: either a user from the
// directory (start a new chat) or an existing conversation (open it).
type SearchResult struct {
	User         *chat.User
	Conversation chat.Conversation
}

// SearchView searches users and conversations from one input.
type SearchView struct {
	*tview.Flex
	theme   *ui.Theme
	input   *tview.InputField
	results *tview.Table
	onQuery func(query string)
	data    []SearchResult
}

// NewSearchView creates a new search view.
func NewSearchView(theme *ui.Theme) *SearchView {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)
	input.SetBorderColor(theme.BorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	results.SetBorder(true)
	results.SetBorderColor(theme.BorderColor)
	results.SetBackgroundColor(theme.BgColor)
	results.SetTitle(" Results ")
	results.SetTitleColor(theme.TitleColor)
	results.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(results, 0, 1, false)

	return &SearchView{
		Flex:    flex,
		theme:   theme,
		input:   input,
		results: results,
	}
}

// SetOnQuery sets the callback when a search query is submitted.
func (sv *SearchView) SetOnQuery(fn func(query string)) {
	sv.onQuery = fn
	sv.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && sv.onQuery != nil {
			sv.onQuery(sv.input.GetText())
		}
	})
}

// Update merges directory and conversation matches into the results table.
func (sv *SearchView) Update(users []chat.User, convs []chat.Conversation) {
	sv.data = sv.data[:0]
	sv.results.Clear()

	headers := []string{" KIND", " NAME", " DETAIL"}
	for col, h := range headers {
		sv.results.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(sv.theme.TableHeaderFg).
			SetBackgroundColor(sv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold))
	}

	row := 1
	for i := range users {
		u := users[i]
		sv.data = append(sv.data, SearchResult{User: &u})
		sv.setRow(row, "USER", u.Username, string(u.Status))
		row++
	}
	for _, c := range convs {
		sv.data = append(sv.data, SearchResult{Conversation: c})
		kind := "CHAT"
		detail := c.Core().LastMessage
		if g, ok := c.(*chat.GroupConversation); ok {
			kind = "GROUP"
			if g.Description != "" {
				detail = g.Description
			}
		}
		sv.setRow(row, kind, c.Title(), detail)
		row++
	}
}

func (sv *SearchView) setRow(row int, kind, name, detail string) {
	sv.results.SetCell(row, 0, tview.NewTableCell(" "+kind).
		SetTextColor(sv.theme.FgColor))
	sv.results.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(name))).
		SetMaxWidth(30).SetTextColor(sv.theme.FgColor))
	sv.results.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(oneLine(detail)))).
		SetExpansion(1).SetTextColor(sv.theme.FgColor))
}

// Selected returns the highlighted result, or a zero value when nothing is
// selected.
func (sv *SearchView) Selected() SearchResult {
	row, _ := sv.results.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(sv.data) {
		return sv.data[idx]
	}
	return SearchResult{}
}

// Input returns the search input field.
func (sv *SearchView) Input() *tview.InputField {
	return sv.input
}

// Results returns the results table.
func (sv *SearchView) Results() *tview.Table {
	return sv.results
}
