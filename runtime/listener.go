package runtime

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

const maxAcceptBackoff = time.Second

// Listener accepts TCP connections and runs one Session per connection.
type Listener struct {
	log       *slog.Logger
	registry  contract.IRegistry
	audit     contract.AuditLogger
	moderator contract.Moderator
	host      string
	settings  SessionSettings

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	ln       net.Listener
	stopped  bool
	stopOnce sync.Once
	ready    chan struct{}
}

func NewListener(log *slog.Logger, registry contract.IRegistry, audit contract.AuditLogger,
	moderator contract.Moderator, host string, settings SessionSettings) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		log:       log,
		registry:  registry,
		audit:     audit,
		moderator: moderator,
		host:      host,
		settings:  settings,
		ctx:       ctx,
		cancel:    cancel,
		ready:     make(chan struct{}),
	}
}

// Ready is closed once the listening socket is bound.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Addr returns the bound address, or nil before Ready.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

func (l *Listener) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// Start binds host:port and blocks in the accept loop.
// It returns nil once Stop has been requested, and an error wrapping errors.ErrBind
// when the socket cannot be bound.
func (l *Listener) Start(port int) error {
	address := net.JoinHostPort(l.host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("%w on %s: %v", errors.ErrBind, address, err)
	}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	l.ln = ln
	l.mu.Unlock()

	l.log.Info("Chat relay listening", "address", ln.Addr().String())
	l.audit.LogSystem(fmt.Sprintf("server started on port %d", port))
	close(l.ready)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if l.isStopped() {
				return nil
			}
			if stderrors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept on %s: %w", address, err)
			}
			backoff = nextBackoff(backoff)
			l.log.Warn("Accept failed, retrying", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		l.spawn(conn)
	}
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return 5 * time.Millisecond
	}
	return min(current*2, maxAcceptBackoff)
}

// spawn registers the session before its read loop starts, so it receives every
// broadcast issued after this point, including its own JOIN notice.
// A connection accepted while Stop is running is closed instead.
func (l *Listener) spawn(conn net.Conn) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		_ = conn.Close()
		return
	}
	session := NewSession(l.log, conn, l.registry, l.moderator, l.settings)
	l.registry.Register(session)
	l.wg.Add(1)
	l.mu.Unlock()

	l.log.Info("New connection", "session_id", session.ID(), "remote", conn.RemoteAddr().String())
	go func() {
		defer l.wg.Done()
		session.Run(l.ctx)
	}()
}

// Stop closes the listening socket, then every registered session.
// It is idempotent and safe to call from any goroutine, including while Start blocks in Accept.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		ln := l.ln
		l.mu.Unlock()

		if ln != nil {
			if err := ln.Close(); err != nil {
				l.log.Warn("Closing listener failed", "error", err)
			}
		}
		l.registry.CloseAll()
		l.cancel()
		l.wg.Wait()

		l.log.Info("Chat relay stopped")
		l.audit.LogSystem("server stopped")
	})
}
