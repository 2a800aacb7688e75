package events

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ASDFGHan123/unichat/internal/backoff"
	"github.com/ASDFGHan123/unichat/internal/bus"
	"github.com/ASDFGHan123/unichat/internal/chat"
	"github.com/ASDFGHan123/unichat/internal/status"
)

// maxReconnectDelay caps the doubling reconnect schedule.
const maxReconnectDelay = 30 * time.Second

// envelope is the frame shape on the live event socket: a type tag plus a
// type-specific payload.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Stream consumes the backend's websocket event feed and republishes each
// frame as a remote.* bus event. It owns the connection lifecycle: dialing,
// read loop, reconnect with backoff, and the session state transitions that
// reflect stream health.
type Stream struct {
	url     string
	token   func() string
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	policy  backoff.Policy
	dialer  *websocket.Dialer
}

// New creates a stream consumer for the websocket endpoint at url. token is
// consulted on every dial so re-logins pick up the fresh credential.
func New(url string, token func() string, b *bus.Bus, m *status.Machine, logger *zap.Logger) *Stream {
	return &Stream{
		url:     url,
		token:   token,
		bus:     b,
		machine: m,
		logger:  logger,
		policy:  backoff.Default(),
		dialer:  websocket.DefaultDialer,
	}
}

// Run dials the event feed and reads frames until ctx is cancelled. Dropped
// connections are re-dialed with doubling delays; after the retry ceiling the
// session is marked Degraded (REST still works, stream down) and dialing
// continues at the capped interval.
func (s *Stream) Run(ctx context.Context) error {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.transition(status.Connecting)

		conn, err := s.dial(ctx)
		if err != nil {
			failures++
			s.logger.Warn("event stream dial failed",
				zap.Int("failures", failures),
				zap.Error(err))
			if failures > s.policy.MaxRetries {
				s.transition(status.Degraded)
			} else {
				s.transition(status.Reconnecting)
			}
			if err := s.wait(ctx, failures); err != nil {
				return err
			}
			continue
		}

		failures = 0
		s.transition(status.Ready)
		s.logger.Info("event stream connected", zap.String("url", s.url))

		err = s.readLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("event stream dropped", zap.Error(err))
		s.transition(status.Reconnecting)
		failures = 1
		if err := s.wait(ctx, failures); err != nil {
			return err
		}
	}
}

func (s *Stream) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if tok := s.token(); tok != "" {
		header.Set("Authorization", "Token "+tok)
	}
	conn, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) error {
	// Unblock ReadJSON when ctx is cancelled; the watcher exits with the
	// connection, not with the stream.
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		s.handle(env)
	}
}

// handle decodes one frame and publishes the matching bus event. Unknown
// frame types are logged and dropped so new server-side event kinds do not
// break old clients.
func (s *Stream) handle(env envelope) {
	switch env.Type {
	case "message":
		var d messageEvent
		if err := json.Unmarshal(env.Payload, &d); err != nil {
			s.logger.Warn("bad message frame", zap.Error(err))
			return
		}
		s.publish(bus.KindRemoteMessage, d.toMessage())
	case "presence":
		var d presenceEvent
		if err := json.Unmarshal(env.Payload, &d); err != nil {
			s.logger.Warn("bad presence frame", zap.Error(err))
			return
		}
		s.publish(bus.KindRemotePresence, chat.PresenceUpdate{
			UserID: d.UserID,
			Status: chat.Presence(d.Status),
		})
	default:
		s.logger.Debug("unknown frame type", zap.String("type", env.Type))
	}
}

func (s *Stream) publish(kind string, payload any) {
	s.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

func (s *Stream) wait(ctx context.Context, failures int) error {
	delay := s.policy.Base << (failures - 1)
	if delay > maxReconnectDelay || delay <= 0 {
		delay = maxReconnectDelay
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// transition moves the session state, ignoring transitions the machine
// rejects (another component may have moved it first, e.g. auth expiry).
func (s *Stream) transition(to status.State) {
	if s.machine == nil {
		return
	}
	if err := s.machine.Transition(to); err != nil {
		s.logger.Debug("state transition skipped", zap.Error(err))
	}
}
