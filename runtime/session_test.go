package runtime

import (
	"bufio"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testTimeout = 5 * time.Second

// pipeClient is the remote end of a session, driven by the test.
type pipeClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func newPipeClient(t *testing.T, conn net.Conn) *pipeClient {
	_ = conn.SetDeadline(time.Now().Add(testTimeout))
	t.Cleanup(func() { _ = conn.Close() })
	return &pipeClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *pipeClient) write(line string) {
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(c.t, err)
}

func (c *pipeClient) read() string {
	line, err := c.reader.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimSuffix(line, "\n")
}

func startSession(t *testing.T, settings SessionSettings) (*Session, *Registry, *pipeClient, <-chan struct{}) {
	server, client := net.Pipe()
	registry := newTestRegistry()
	session := NewSession(logs.GetLoggerFromLevel(slog.LevelDebug), server, registry, nil, settings)
	registry.Register(session)

	done := make(chan struct{})
	go func() {
		defer close(done)
		session.Run(context.Background())
	}()
	return session, registry, newPipeClient(t, client), done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("session did not stop")
	}
}

func TestSession_JoinChatExit(t *testing.T) {
	req := require.New(t)
	session, registry, client, done := startSession(t, SessionSettings{})

	// When alice joins
	client.write("JOIN:alice")

	// Then she receives her own join notice and is named
	req.Equal("SYSTEM:SYSTEM:alice joined the chat", client.read())
	req.Equal("alice", session.Username())

	// When she chats, delimiters in the content survive the round trip
	client.write("MESSAGE:alice:hi: there")
	req.Equal("MESSAGE:alice:hi: there", client.read())

	// When she exits
	client.write("EXIT:alice")

	// Then the leave notice is delivered and the session ends
	req.Equal("SYSTEM:SYSTEM:alice left the chat", client.read())
	waitDone(t, done)
	req.False(session.IsLive())
	req.Equal(0, registry.Len())
}

func TestSession_MalformedLinesAreSkipped(t *testing.T) {
	req := require.New(t)
	session, _, client, _ := startSession(t, SessionSettings{})

	// Given lines that cannot be decoded
	client.write("garbage")
	client.write("")
	client.write("join:alice")
	client.write("JOIN:")

	// When a valid line follows
	client.write("MESSAGE:bob:still connected")

	// Then it is the first thing relayed
	req.Equal("MESSAGE:bob:still connected", client.read())
	req.True(session.IsLive())
}

func TestSession_ClientSystemNoticeIgnored(t *testing.T) {
	req := require.New(t)
	_, _, client, _ := startSession(t, SessionSettings{})

	client.write("SYSTEM:SYSTEM:server is shutting down")
	client.write("MESSAGE:mallory:after")

	req.Equal("MESSAGE:mallory:after", client.read())
}

func TestSession_CarriageReturnTolerated(t *testing.T) {
	req := require.New(t)
	_, _, client, _ := startSession(t, SessionSettings{})

	client.write("MESSAGE:bob:windows\r")

	req.Equal("MESSAGE:bob:windows", client.read())
}

func TestSession_ModeratorAppliedToChat(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	moderator := mocks.NewMockModerator(ctrl)
	server, conn := net.Pipe()
	registry := newTestRegistry()
	session := NewSession(logs.GetLoggerFromLevel(slog.LevelDebug), server, registry, moderator, SessionSettings{})
	registry.Register(session)
	go session.Run(context.Background())
	client := newPipeClient(t, conn)

	moderator.EXPECT().Censor("you badword").Return("you *******", []string{"badword"})

	client.write("MESSAGE:bob:you badword")

	req.Equal("MESSAGE:bob:you *******", client.read())
}

func TestSession_AbruptDisconnectIsSilent(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	server, client := net.Pipe()
	session := NewSession(logs.GetLoggerFromLevel(slog.LevelDebug), server, registry, nil, SessionSettings{})

	// Then the session only leaves the registry, nothing is broadcast
	registry.EXPECT().Unregister(session).Times(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		session.Run(context.Background())
	}()

	// When the client vanishes without EXIT
	require.NoError(t, client.Close())
	waitDone(t, done)
	require.False(t, session.IsLive())
}

func TestSession_Close_IsIdempotentUnderConcurrency(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	server, client := net.Pipe()
	defer func() { _ = client.Close() }()
	session := NewSession(logs.GetLoggerFromLevel(slog.LevelDebug), server, registry, nil, SessionSettings{})

	registry.EXPECT().Unregister(session).Times(1)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session.Close()
		}()
	}
	wg.Wait()

	req.False(session.IsLive())
	req.ErrorIs(session.Send(domain.NewChat("alice", "too late")), errors.ErrSessionClosed)
}

func TestSession_SendFailureClosesSession(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	server, client := net.Pipe()
	session := NewSession(logs.GetLoggerFromLevel(slog.LevelDebug), server, registry, nil, SessionSettings{})

	registry.EXPECT().Unregister(session).Times(1)

	// Given the remote end is gone
	req.NoError(client.Close())

	// When writing
	err := session.Send(domain.NewChat("alice", "anyone?"))

	// Then the write fails and the session closes itself
	req.Error(err)
	req.False(session.IsLive())
}

func TestSession_WriteTimeoutClosesStalledReader(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	server, client := net.Pipe()
	defer func() { _ = client.Close() }()
	session := NewSession(logs.GetLoggerFromLevel(slog.LevelDebug), server, registry, nil,
		SessionSettings{WriteTimeout: 20 * time.Millisecond})

	registry.EXPECT().Unregister(session).Times(1)

	// Given a client that never reads
	err := session.Send(domain.NewChat("alice", "stuck"))

	req.Error(err)
	req.False(session.IsLive())
}

func TestSession_LineTooLongEndsSession(t *testing.T) {
	req := require.New(t)
	session, registry, client, done := startSession(t, SessionSettings{MaxLineLength: 16})

	go func() {
		_, _ = io.WriteString(client.conn, "MESSAGE:bob:"+strings.Repeat("x", 64)+"\n")
	}()

	waitDone(t, done)
	req.False(session.IsLive())
	req.Equal(0, registry.Len())
}

func TestSession_SecondExitIsNotProcessed(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	server, conn := net.Pipe()
	session := NewSession(logs.GetLoggerFromLevel(slog.LevelDebug), server, registry, nil, SessionSettings{})
	client := newPipeClient(t, conn)

	// Then a single leave notice is broadcast
	registry.EXPECT().Broadcast(gomock.Any(), domain.Left("alice")).Times(1)
	registry.EXPECT().Unregister(session).Times(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		session.Run(context.Background())
	}()

	// When two EXIT lines arrive back to back
	_, err := io.WriteString(client.conn, "EXIT:alice:\nEXIT:alice:\n")
	require.NoError(t, err)

	waitDone(t, done)
}
