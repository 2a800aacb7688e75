package model

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ASDFGHan123/unichat/internal/backoff"
	"github.com/ASDFGHan123/unichat/internal/bus"
	"github.com/ASDFGHan123/unichat/internal/chat"
	"go.uber.org/zap"
)

// fakeBackend is the minimal chat.Backend the viewmodel tests need.
type fakeBackend struct {
	mu        sync.Mutex
	sends     int
	edits     int
	deletes   int
	editErr   error
	deleteErr error

	// editGate, when set, blocks EditMessage until closed.
	editGate chan struct{}
}

func (f *fakeBackend) ListMessages(context.Context, chat.Conversation) ([]chat.Message, error) {
	return nil, nil
}

func (f *fakeBackend) SendMessage(_ context.Context, conv chat.Conversation, content string, attachments []chat.Attachment) (chat.Message, error) {
	f.mu.Lock()
	f.sends++
	n := f.sends
	f.mu.Unlock()
	return &chat.IndividualMessage{MessageCore: chat.MessageCore{
		ID:             fmt.Sprintf("srv-%d", n),
		ConversationID: conv.Core().ID,
		Content:        content,
		Attachments:    attachments,
		Timestamp:      time.Now(),
	}}, nil
}

func (f *fakeBackend) EditMessage(context.Context, chat.Conversation, string, string) error {
	if f.editGate != nil {
		<-f.editGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits++
	return f.editErr
}

func (f *fakeBackend) DeleteMessage(context.Context, chat.Conversation, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return f.deleteErr
}

func (f *fakeBackend) CreateGroup(context.Context, chat.GroupRequest) (*chat.GroupConversation, error) {
	return chat.NewGroupConversation("1", "g", nil), nil
}

func (f *fakeBackend) DeleteConversation(context.Context, chat.Conversation) error { return nil }
func (f *fakeBackend) MarkRead(context.Context, chat.Conversation) error           { return nil }

func newTestVM(t *testing.T, be chat.Backend) *ViewModel {
	t.Helper()
	st := chat.NewStore(be, bus.New(), zap.NewNop())
	st.SetBackoff(backoff.Policy{
		MaxRetries: backoff.DefaultMaxRetries,
		Base:       time.Millisecond,
		Sleep:      func(context.Context, time.Duration) error { return nil },
	})
	return NewViewModel(st, nil, nil, nil, nil, bus.New())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

// openWithMessages seeds one conversation, opens it, and sends the given
// contents as confirmed own messages.
func openWithMessages(t *testing.T, vm *ViewModel, contents ...string) {
	t.Helper()
	ctx := context.Background()
	conv := chat.NewIndividualConversation(chat.User{ID: "7", Username: "amy"})
	vm.Store.Seed([]chat.Conversation{conv})
	vm.Open(ctx, "7")
	waitFor(t, func() bool { return vm.Store.FetchState("7").Phase == chat.FetchLoaded })
	for _, c := range contents {
		if _, err := vm.Store.Send(ctx, "7", c, nil); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBeginEditPicksNewestOwnMessage(t *testing.T) {
	vm := newTestVM(t, &fakeBackend{})
	openWithMessages(t, vm, "first", "second")

	id, content, ok := vm.BeginEdit()
	if !ok {
		t.Fatal("BeginEdit found nothing to edit")
	}
	if content != "second" {
		t.Errorf("content = %q, want the newest own message", content)
	}

	vm.Edit(context.Background(), id, "second, fixed")

	msgs := vm.Store.Messages("7")
	last := msgs[len(msgs)-1].Core()
	if last.Content != "second, fixed" {
		t.Errorf("content after edit = %q", last.Content)
	}
	if !last.Edited {
		t.Error("edited flag not set")
	}
}

func TestBeginEditWithoutOwnMessage(t *testing.T) {
	vm := newTestVM(t, &fakeBackend{})
	openWithMessages(t, vm)

	if _, _, ok := vm.BeginEdit(); ok {
		t.Error("BeginEdit reported a message in an empty conversation")
	}
	if msg, _ := vm.Flash.Get(); msg == "" {
		t.Error("no flash explaining there is nothing to edit")
	}
}

func TestDeleteMessageRemovesNewestOwn(t *testing.T) {
	vm := newTestVM(t, &fakeBackend{})
	openWithMessages(t, vm, "keep", "remove")

	vm.DeleteMessage(context.Background())

	msgs := vm.Store.Messages("7")
	if len(msgs) != 1 || msgs[0].Core().Content != "keep" {
		t.Errorf("messages after delete = %d, want only the older one", len(msgs))
	}
}

func TestDeleteMessageKeepsEntryOnBackendError(t *testing.T) {
	vm := newTestVM(t, &fakeBackend{deleteErr: fmt.Errorf("denied")})
	openWithMessages(t, vm, "still here")

	vm.DeleteMessage(context.Background())

	if got := len(vm.Store.Messages("7")); got != 1 {
		t.Errorf("messages = %d, want 1 (delete applies only after the backend confirms)", got)
	}
	if _, isErr := vm.Flash.Get(); !isErr {
		t.Error("failed delete did not surface an error flash")
	}
}

func TestBusyReflectsEditInFlight(t *testing.T) {
	be := &fakeBackend{editGate: make(chan struct{})}
	vm := newTestVM(t, be)
	openWithMessages(t, vm, "slow edit")

	id, _, ok := vm.BeginEdit()
	if !ok {
		t.Fatal("nothing to edit")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		vm.Edit(context.Background(), id, "new content")
	}()

	waitFor(t, func() bool { return vm.Busy("7")[id] == "editing" })
	close(be.editGate)
	<-done

	if vm.Busy("7") != nil {
		t.Error("busy labels stuck after the edit resolved")
	}
}
