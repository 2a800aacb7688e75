package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ASDFGHan123/unichat/internal/bus"
	"github.com/ASDFGHan123/unichat/internal/chat"
	"github.com/ASDFGHan123/unichat/internal/status"
)

// authAPI is the slice of the REST client the session manager needs.
type authAPI interface {
	Login(ctx context.Context, username, password string) (chat.User, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (chat.User, error)
	SetToken(token string)
	Token() string
}

// Manager owns the authenticated identity: restoring a persisted token on
// startup, login/logout, and reacting to session.auth_required events by
// discarding the stale token.
type Manager struct {
	api       authAPI
	machine   *status.Machine
	bus       *bus.Bus
	logger    *zap.Logger
	tokenPath string

	mu   sync.RWMutex
	user *chat.User

	cancel context.CancelFunc
}

// NewManager creates a session manager persisting the token at tokenPath.
func NewManager(a authAPI, m *status.Machine, b *bus.Bus, logger *zap.Logger, tokenPath string) *Manager {
	return &Manager{
		api:       a,
		machine:   m,
		bus:       b,
		logger:    logger,
		tokenPath: tokenPath,
	}
}

// Restore loads a persisted token, validates it against the backend, and
// moves the state machine out of Booting: to Connecting when the token is
// good, to AuthRequired otherwise.
func (m *Manager) Restore(ctx context.Context) error {
	raw, err := os.ReadFile(m.tokenPath)
	if err != nil {
		m.transition(status.AuthRequired)
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read token: %w", err)
	}
	m.api.SetToken(strings.TrimSpace(string(raw)))

	user, err := m.api.Me(ctx)
	if err != nil {
		// A 401 already cleared the client token; drop the stale file too.
		m.discardToken()
		m.transition(status.AuthRequired)
		m.logger.Info("persisted token rejected", zap.Error(err))
		return nil
	}
	m.setUser(user)
	m.transition(status.Connecting)
	m.logger.Info("session restored", zap.String("user", user.Username))
	return nil
}

// Login authenticates, persists the new token, and moves to Connecting.
func (m *Manager) Login(ctx context.Context, username, password string) (chat.User, error) {
	user, err := m.api.Login(ctx, username, password)
	if err != nil {
		return chat.User{}, err
	}
	if err := os.WriteFile(m.tokenPath, []byte(m.api.Token()), 0600); err != nil {
		m.logger.Warn("persist token failed", zap.Error(err))
	}
	m.setUser(user)
	m.transition(status.Connecting)
	return user, nil
}

// Logout invalidates the session. The local token is discarded even when the
// backend call fails; a dead server must not pin the user to an account.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.api.Logout(ctx)
	m.discardToken()
	m.mu.Lock()
	m.user = nil
	m.mu.Unlock()
	m.transition(status.AuthRequired)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Current returns the authenticated user, or nil before login.
func (m *Manager) Current() *chat.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user
}

// Watch reacts to session.auth_required events (published by the REST client
// on any 401) by discarding the persisted token and moving the state machine,
// so every surface sees the logout at once.
func (m *Manager) Watch() {
	ch, unsub := m.bus.Subscribe(bus.KindSessionAuthRequired, 16)
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				m.discardToken()
				m.mu.Lock()
				m.user = nil
				m.mu.Unlock()
				m.transition(status.AuthRequired)
				m.logger.Warn("session expired, reauthentication required")
			}
		}
	}()
}

// Stop stops the auth watcher.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Manager) setUser(u chat.User) {
	m.mu.Lock()
	m.user = &u
	m.mu.Unlock()
}

func (m *Manager) discardToken() {
	m.api.SetToken("")
	if err := os.Remove(m.tokenPath); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("remove token failed", zap.Error(err))
	}
}

func (m *Manager) transition(to status.State) {
	if m.machine == nil {
		return
	}
	if err := m.machine.Transition(to); err != nil {
		m.logger.Debug("state transition skipped", zap.Error(err))
	}
}
