package model

import (
	"context"
	"time"

	"github.com/ASDFGHan123/unichat/internal/bus"
	"github.com/ASDFGHan123/unichat/internal/chat"
	"github.com/ASDFGHan123/unichat/internal/session"
	"github.com/ASDFGHan123/unichat/internal/status"
)

const flashTTL = 5 * time.Second

// conversationLister is the slice of the REST client the viewmodel needs
// to seed the conversation list.
type conversationLister interface {
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
}

// ViewModel glues the conversation store, user directory, and session to
// the tview widgets. The store owns all state; the viewmodel holds only
// UI-facing concerns (flash, refresh signalling) and forwards commands.
type ViewModel struct {
	Store     *chat.Store
	Directory *chat.Directory
	Session   *session.Manager
	Machine   *status.Machine
	Flash     Flash

	api       conversationLister
	bus       *bus.Bus
	refreshCh chan struct{}
	cancel    context.CancelFunc
}

// NewViewModel creates a view model over the chat store.
func NewViewModel(store *chat.Store, dir *chat.Directory, sess *session.Manager, machine *status.Machine, api conversationLister, b *bus.Bus) *ViewModel {
	return &ViewModel{
		Store:     store,
		Directory: dir,
		Session:   sess,
		Machine:   machine,
		api:       api,
		bus:       b,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals a UI refresh. Coalesced: a
// pending signal absorbs later ones.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// Start subscribes to every bus namespace the UI renders from, so any store
// or session mutation shows up without polling.
func (vm *ViewModel) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	vm.cancel = cancel
	for _, ns := range []string{"message.", "conversation.", "session.", "settings."} {
		ch, unsub := vm.bus.Subscribe(ns, 64)
		go func() {
			defer unsub()
			for {
				select {
				case <-ctx.Done():
					return
				case evt, ok := <-ch:
					if !ok {
						return
					}
					if evt.Kind == bus.KindMessageSendFailed {
						vm.Flash.SetError("Send failed. Press r to retry, x to discard.", flashTTL)
					}
					vm.signalRefresh()
				}
			}
		}()
	}
}

// Stop stops the bus watchers.
func (vm *ViewModel) Stop() {
	if vm.cancel != nil {
		vm.cancel()
	}
}

// LoadInitial seeds the conversation list and user directory from the
// backend. Called once after authentication.
func (vm *ViewModel) LoadInitial(ctx context.Context) {
	convs, err := vm.api.ListConversations(ctx)
	if err != nil {
		vm.Flash.SetError("Load conversations failed: "+err.Error(), flashTTL)
	} else {
		vm.Store.Seed(convs)
	}
	if err := vm.Directory.Load(ctx); err != nil {
		vm.Flash.SetError("Load users failed: "+err.Error(), flashTTL)
	}
	vm.signalRefresh()
}

// Open makes a conversation active, triggering its history fetch.
func (vm *ViewModel) Open(ctx context.Context, id string) {
	if err := vm.Store.Select(ctx, id); err != nil {
		vm.Flash.SetError("Open failed: "+err.Error(), flashTTL)
	}
	vm.signalRefresh()
}

// Send submits the composer text to the active conversation.
func (vm *ViewModel) Send(ctx context.Context, text string) {
	id := vm.Store.ActiveID()
	if id == "" {
		return
	}
	if _, err := vm.Store.Send(ctx, id, text, nil); err != nil {
		vm.Flash.SetError("Send rejected: "+err.Error(), flashTTL)
	}
	vm.signalRefresh()
}

// RetryFetch re-runs a failed history fetch for the active conversation.
func (vm *ViewModel) RetryFetch(ctx context.Context) {
	id := vm.Store.ActiveID()
	if id == "" {
		return
	}
	vm.Store.Retry(ctx, id)
	vm.signalRefresh()
}

// RetrySend re-attempts the newest failed send in the active conversation.
func (vm *ViewModel) RetrySend(ctx context.Context) {
	id, msg := vm.newestFailed()
	if msg == nil {
		return
	}
	if _, err := vm.Store.RetrySend(ctx, id, msg.Core().ID); err != nil {
		vm.Flash.SetError("Retry failed: "+err.Error(), flashTTL)
	}
	vm.signalRefresh()
}

// DiscardSend drops the newest failed send in the active conversation.
func (vm *ViewModel) DiscardSend() {
	id, msg := vm.newestFailed()
	if msg == nil {
		return
	}
	if err := vm.Store.DiscardSend(id, msg.Core().ID); err != nil {
		vm.Flash.SetError("Discard failed: "+err.Error(), flashTTL)
	} else {
		vm.Flash.Set("Message discarded", flashTTL)
	}
	vm.signalRefresh()
}

// BeginEdit picks the newest own confirmed message in the active conversation
// and returns its id and current content for the composer to preload.
func (vm *ViewModel) BeginEdit() (messageID, content string, ok bool) {
	_, msg := vm.newestOwn()
	if msg == nil {
		vm.Flash.Set("No sent message to edit", flashTTL)
		vm.signalRefresh()
		return "", "", false
	}
	return msg.Core().ID, msg.Core().Content, true
}

// Edit submits new content for a message in the active conversation. The
// cache updates only after the backend confirms.
func (vm *ViewModel) Edit(ctx context.Context, messageID, content string) {
	id := vm.Store.ActiveID()
	if id == "" {
		return
	}
	if err := vm.Store.Edit(ctx, id, messageID, content); err != nil {
		vm.Flash.SetError("Edit failed: "+err.Error(), flashTTL)
	}
	vm.signalRefresh()
}

// DeleteMessage removes the newest own confirmed message in the active
// conversation after backend confirmation.
func (vm *ViewModel) DeleteMessage(ctx context.Context) {
	id, msg := vm.newestOwn()
	if msg == nil {
		vm.Flash.Set("No sent message to delete", flashTTL)
		vm.signalRefresh()
		return
	}
	if err := vm.Store.DeleteMessage(ctx, id, msg.Core().ID); err != nil {
		vm.Flash.SetError("Delete failed: "+err.Error(), flashTTL)
	} else {
		vm.Flash.Set("Message deleted", flashTTL)
	}
	vm.signalRefresh()
}

// Busy maps message ids to an in-flight edit or delete label for the active
// conversation's rows.
func (vm *ViewModel) Busy(conversationID string) map[string]string {
	var out map[string]string
	for _, m := range vm.Store.Messages(conversationID) {
		id := m.Core().ID
		label := ""
		if vm.Store.EditLoading(conversationID, id) {
			label = "editing"
		}
		if vm.Store.DeleteLoading(conversationID, id) {
			label = "deleting"
		}
		if label != "" {
			if out == nil {
				out = make(map[string]string)
			}
			out[id] = label
		}
	}
	return out
}

func (vm *ViewModel) newestOwn() (string, chat.Message) {
	id := vm.Store.ActiveID()
	if id == "" {
		return "", nil
	}
	msgs := vm.Store.Messages(id)
	for i := len(msgs) - 1; i >= 0; i-- {
		core := msgs[i].Core()
		if core.FromMe && core.Delivery == chat.DeliverySent {
			return id, msgs[i]
		}
	}
	return "", nil
}

func (vm *ViewModel) newestFailed() (string, chat.Message) {
	id := vm.Store.ActiveID()
	if id == "" {
		return "", nil
	}
	msgs := vm.Store.Messages(id)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Core().Delivery == chat.DeliveryFailed {
			return id, msgs[i]
		}
	}
	return "", nil
}

// StartChat opens (or creates) a 1:1 conversation with a user from the
// directory.
func (vm *ViewModel) StartChat(ctx context.Context, user chat.User) {
	conv, err := vm.Store.CreateIndividual(user)
	if err != nil {
		vm.Flash.SetError("Start chat failed: "+err.Error(), flashTTL)
		return
	}
	vm.Open(ctx, conv.Core().ID)
}

// StatusLine renders the current session state for the status bar.
func (vm *ViewModel) StatusLine() string {
	if vm.Machine == nil {
		return ""
	}
	return string(vm.Machine.Current())
}
