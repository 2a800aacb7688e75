package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/ASDFGHan123/unichat/internal/chat"
)

// MessageView displays the active conversation's messages, including
// optimistic entries awaiting confirmation and failed sends.
type MessageView struct {
	*tview.TextView
}

// NewMessageView creates the message pane.
func NewMessageView() *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv}
}

// SetConversation updates the title with the conversation name.
func (mv *MessageView) SetConversation(name string) {
	mv.SetTitle(fmt.Sprintf(" %s ", name))
}

// Update re-renders from the store snapshot. The fetch state draws above
// the messages so a retrying or failed history load is visible alongside
// whatever is already cached. busy maps message ids to an in-flight edit or
// delete label so each row shows its own spinner independently.
func (mv *MessageView) Update(msgs []chat.Message, fetch chat.FetchState, busy map[string]string) {
	mv.Clear()

	switch fetch.Phase {
	case chat.FetchLoading:
		fmt.Fprint(mv, "[::d]Loading history...[-:-:-]\n\n")
	case chat.FetchRetrying:
		fmt.Fprintf(mv, "[orange]Connection trouble, retry %d/3...[-]\n\n", fetch.Retry)
	case chat.FetchFailed:
		fmt.Fprint(mv, "[red]Could not load history. Press R to retry.[-]\n\n")
	}

	for _, m := range msgs {
		core := m.Core()
		sender := core.SenderID
		if gm, ok := m.(*chat.GroupMessage); ok && gm.SenderName != "" {
			sender = gm.SenderName
		}
		if core.FromMe {
			sender = "You"
		}

		marker := ""
		switch core.Delivery {
		case chat.DeliveryPending:
			marker = " [gray]⧖[-]"
		case chat.DeliveryFailed:
			marker = " [red]✗ failed (r retry / x discard)[-]"
		}
		if b := busy[core.ID]; b != "" {
			marker += " [gray]" + b + "...[-]"
		}
		edited := ""
		if core.Edited {
			edited = " [::d](edited)[-:-:-]"
		}

		fmt.Fprintf(mv, "[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s%s\n",
			tview.Escape(sanitizeForTerminal(sender)),
			formatTime(core.Timestamp),
			marker,
			tview.Escape(sanitizeForTerminal(core.Content)),
			edited)

		for _, a := range core.Attachments {
			fmt.Fprintf(mv, "  [::d]%s (%s, %d bytes)[-:-:-]\n",
				tview.Escape(a.Name), a.Type, a.Size)
		}
		fmt.Fprint(mv, "\n")
	}

	mv.ScrollToEnd()
}
