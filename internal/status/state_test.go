package status

import (
	"testing"
	"time"

	"github.com/ASDFGHan123/unichat/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitionChain(t *testing.T) {
	m := NewMachine(nil)
	chain := []State{AuthRequired, Connecting, Ready, Reconnecting, Connecting, Ready}
	for _, s := range chain {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition(%s) from %s error = %v", s, m.Current(), err)
		}
	}
	if m.Current() != Ready {
		t.Errorf("final state = %s, want READY", m.Current())
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	// BOOTING cannot jump straight to READY.
	if err := m.Transition(Ready); err == nil {
		t.Error("Transition(READY) from BOOTING should fail")
	}
	if m.Current() != Booting {
		t.Errorf("state changed on invalid transition: %s", m.Current())
	}
}

func TestAuthRequiredFromReady(t *testing.T) {
	m := NewMachine(nil)
	for _, s := range []State{Connecting, Ready} {
		if err := m.Transition(s); err != nil {
			t.Fatal(err)
		}
	}
	// A 401 mid-session pushes the client back to AUTH_REQUIRED.
	if err := m.Transition(AuthRequired); err != nil {
		t.Errorf("Transition(AUTH_REQUIRED) from READY error = %v", err)
	}
}

func TestErrorRecoversViaBooting(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Error); err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(Connecting); err == nil {
		t.Error("ERROR must only recover through BOOTING")
	}
	if err := m.Transition(Booting); err != nil {
		t.Errorf("Transition(BOOTING) from ERROR error = %v", err)
	}
}

func TestTransitionPublishesEvent(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
		}
		if change.From != Booting || change.To != Connecting {
			t.Errorf("change = %+v, want BOOTING→CONNECTING", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status event")
	}
}
