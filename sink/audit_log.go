package sink

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

var _ contract.AuditLogger = (*AuditLog)(nil)

// AuditLog appends "[yyyy-MM-dd HH:mm:ss] <author>: <content>" lines to a single writer.
// Writes are serialized; I/O failures are reported through slog and never returned.
type AuditLog struct {
	mu     sync.Mutex
	out    io.WriteCloser
	log    *slog.Logger
	now    func() time.Time
	closed bool
}

// OpenAuditLog opens path in append mode, creating it if needed.
func OpenAuditLog(path string, log *slog.Logger) (*AuditLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", path, err)
	}
	return NewAuditLog(f, log), nil
}

func NewAuditLog(out io.WriteCloser, log *slog.Logger) *AuditLog {
	return &AuditLog{out: out, log: log, now: time.Now}
}

// WithClock replaces the timestamp source.
func (a *AuditLog) WithClock(now func() time.Time) *AuditLog {
	a.now = now
	return a
}

func (a *AuditLog) LogUser(username, content string) {
	a.write(username, content)
}

func (a *AuditLog) LogSystem(content string) {
	a.write(domain.SystemUsername, content)
}

func (a *AuditLog) write(author, content string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		a.log.Warn("Audit log already closed, entry dropped", "author", author)
		return
	}
	line := fmt.Sprintf("[%s] %s: %s\n", a.now().Format(timestampLayout), author, content)
	if _, err := io.WriteString(a.out, line); err != nil {
		a.log.Error("Audit log write failed", "error", err)
	}
}

// Close releases the underlying writer. Later entries are dropped.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.out.Close()
}
