package runtime

import (
	"bufio"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxLineLength = 64 * 1024
	initialBufferSize    = 4 * 1024
)

var _ contract.Member = (*Session)(nil)

// SessionSettings bounds the I/O of every session spawned by a Listener.
type SessionSettings struct {
	WriteTimeout  time.Duration
	MaxLineLength int
}

// Session owns one client connection.
// Run is the only reader; Send may be called by any number of broadcasters.
type Session struct {
	id        string
	conn      net.Conn
	registry  contract.IRegistry
	moderator contract.Moderator
	settings  SessionSettings
	log       *slog.Logger

	writeMu   sync.Mutex
	mu        sync.RWMutex
	username  string
	live      atomic.Bool
	closeOnce sync.Once
}

// NewSession wraps conn. A nil moderator leaves chat content untouched.
func NewSession(log *slog.Logger, conn net.Conn, registry contract.IRegistry,
	moderator contract.Moderator, settings SessionSettings) *Session {
	if settings.MaxLineLength <= 0 {
		settings.MaxLineLength = DefaultMaxLineLength
	}
	id := uuid.NewString()
	s := &Session{
		id:        id,
		conn:      conn,
		registry:  registry,
		moderator: moderator,
		settings:  settings,
		log:       log.With("session_id", id, "remote", conn.RemoteAddr().String()),
	}
	s.live.Store(true)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) IsLive() bool { return s.live.Load() }

// Username is empty until a JOIN has been processed.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) setUsername(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
}

// Run reads lines until EOF, a read error or an EXIT, then closes the session.
// Malformed lines are skipped without dropping the connection.
func (s *Session) Run(ctx context.Context) {
	defer s.Close()

	scanner := bufio.NewScanner(s.conn)
	// The effective limit is the larger of max and the initial capacity.
	scanner.Buffer(make([]byte, 0, min(initialBufferSize, s.settings.MaxLineLength)), s.settings.MaxLineLength)
	for scanner.Scan() {
		evt, err := domain.Decode(scanner.Text())
		if err != nil {
			s.log.Debug("Ignoring line", "error", err)
			continue
		}
		if !s.dispatch(ctx, evt) {
			return
		}
	}

	if err := scanner.Err(); err != nil && s.IsLive() {
		s.log.Warn("Connection read failed", "error", err)
	}
}

// dispatch handles one decoded event and reports whether the read loop should continue.
func (s *Session) dispatch(ctx context.Context, evt domain.ChatEvent) bool {
	if err := evt.Validate(); err != nil {
		s.log.Debug("Ignoring event", "error", err)
		return true
	}

	switch evt.Kind {
	case domain.Join:
		s.setUsername(evt.Username)
		s.log.Info("Participant joined", "username", evt.Username)
		s.registry.Broadcast(ctx, domain.Joined(evt.Username))
	case domain.Chat:
		s.registry.Broadcast(ctx, s.moderate(evt))
	case domain.Leave:
		s.log.Info("Participant left", "username", evt.Username)
		s.registry.Broadcast(ctx, domain.Left(evt.Username))
		return false
	default:
		// Clients cannot forge server notices.
		s.log.Debug("Ignoring client system notice", "username", evt.Username)
	}
	return true
}

func (s *Session) moderate(evt domain.ChatEvent) domain.ChatEvent {
	if s.moderator == nil {
		return evt
	}
	content, words := s.moderator.Censor(evt.Content)
	if len(words) > 0 {
		s.log.Info("Message censored", "username", evt.Username, "words", len(words))
	}
	return domain.NewChat(evt.Username, content)
}

// Send writes one encoded line. Writers to the same session are serialized;
// a failed write closes the session.
func (s *Session) Send(evt domain.ChatEvent) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.IsLive() {
		return errors.ErrSessionClosed
	}
	if s.settings.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
	}
	if _, err := io.WriteString(s.conn, domain.Encode(evt)+"\n"); err != nil {
		if !s.IsLive() {
			return errors.ErrSessionClosed
		}
		s.Close()
		return fmt.Errorf("write to session %s: %w", s.id, err)
	}
	return nil
}

// Close is idempotent: the session leaves the registry and its connection is
// released exactly once, whatever the number of concurrent callers.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.live.Store(false)
		s.registry.Unregister(s)
		if err := s.conn.Close(); err != nil {
			s.log.Warn("Closing connection failed", "error", err)
		}
		s.log.Debug("Session closed", "username", s.Username())
	})
}
