package main

import (
	"bufio"
	"chat-relay/domain"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const exitCommand = "/exit"

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"CHAT_SERVER_ADDR,default=localhost:8080"`
	Username      string `env:"CHAT_USERNAME,required=true"`
	LogLevel      string `env:"LOG_LEVEL,default=WARN"`
	Colours       bool   `env:"CHAT_COLOURS,default=true"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if strings.ContainsAny(config.Username, domain.Delimiter+"\r\n") {
		return exitConfig, fmt.Errorf("config error: CHAT_USERNAME must not contain %q or line breaks", domain.Delimiter)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", config.ServerAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	if err := send(conn, domain.NewJoin(config.Username)); err != nil {
		return exitRuntime, err
	}

	received := make(chan error, 1)
	go func() { received <- printIncoming(conn, os.Stdout, config.Colours) }()

	typed := make(chan string)
	go readInput(os.Stdin, typed)

	for {
		select {
		case <-ctx.Done():
			_ = send(conn, domain.NewLeave(config.Username))
			return exitOK, nil
		case err := <-received:
			if err != nil {
				return exitRuntime, fmt.Errorf("connection lost: %w", err)
			}
			return exitOK, nil
		case line, ok := <-typed:
			if !ok || line == exitCommand {
				_ = send(conn, domain.NewLeave(config.Username))
				return exitOK, nil
			}
			if line == "" {
				continue
			}
			if err := send(conn, domain.NewChat(config.Username, line)); err != nil {
				return exitRuntime, err
			}
		}
	}
}

func send(w io.Writer, evt domain.ChatEvent) error {
	if _, err := io.WriteString(w, domain.Encode(evt)+"\n"); err != nil {
		return fmt.Errorf("send %s: %w", evt.Kind, err)
	}
	return nil
}

// readInput forwards stdin lines until EOF, then closes out.
func readInput(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- strings.TrimSpace(scanner.Text())
	}
}

// printIncoming renders every relayed line until the server closes the connection.
func printIncoming(r io.Reader, w io.Writer, colours bool) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		evt, err := domain.Decode(scanner.Text())
		if err != nil {
			continue
		}
		fmt.Fprintln(w, render(evt, colours))
	}
	return scanner.Err()
}

func render(evt domain.ChatEvent, colours bool) string {
	line := evt.String()
	if !colours {
		return line
	}
	if evt.IsSystem() {
		return color.New(color.FgYellow, color.OpItalic).Render(line)
	}
	return color.FgCyan.Render(evt.Username+":") + " " + evt.Content
}
