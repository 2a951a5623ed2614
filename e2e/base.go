package e2e

import (
	"bufio"
	"chat-relay/domain"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const readTimeout = 5 * time.Second

type BaseRelaySuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration; the suite only runs against a live relay.
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayAddr == "" {
		s.T().Skip("RELAY_ADDR is not set")
	}
}

func (s *BaseRelaySuite) header(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// ChatClient is a raw line client speaking the relay wire format.
type ChatClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects a new chat client to the relay.
func (s *BaseRelaySuite) Dial(name string) *ChatClient {
	s.header(s.T(), name)
	conn, err := net.DialTimeout("tcp", s.Config.RelayAddr, readTimeout)
	s.Require().NoError(err, "Failed to connect to relay at "+s.Config.RelayAddr)
	s.T().Cleanup(func() { _ = conn.Close() })
	return &ChatClient{t: s.T(), conn: conn, reader: bufio.NewReader(conn)}
}

func (c *ChatClient) Send(evt domain.ChatEvent) error {
	_, err := io.WriteString(c.conn, domain.Encode(evt)+"\n")
	return err
}

func (c *ChatClient) Receive() (domain.ChatEvent, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return domain.ChatEvent{}, err
	}
	c.t.Logf("<- %s", strings.TrimSpace(line))
	return domain.Decode(strings.TrimSuffix(line, "\n"))
}

// WithHealth provides a health client that logs every call.
func (s *BaseRelaySuite) WithHealth(name string, fn func(ctx context.Context, client healthpb.HealthClient)) {
	if s.Config.HealthAddr == "" {
		s.T().Skip("HEALTH_ADDR is not set")
	}
	s.header(s.T(), name)

	marshaler := protojson.MarshalOptions{
		UseProtoNames:   true,
		Multiline:       true,
		EmitUnpopulated: true,
	}
	conn, err := grpc.NewClient(s.Config.HealthAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			if s.Config.DebugJSON {
				fmt.Fprintln(&logBuilder, "\nREQUEST:")
				fmt.Fprintln(&logBuilder, marshaler.Format(req.(proto.Message)))
				if err != nil {
					fmt.Fprintln(&logBuilder, "ERROR:", err)
				} else {
					fmt.Fprintln(&logBuilder, "RESPONSE:")
					fmt.Fprintln(&logBuilder, marshaler.Format(reply.(proto.Message)))
				}
			}
			s.T().Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to health server at "+s.Config.HealthAddr)
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fn(ctx, healthpb.NewHealthClient(conn))
}
