package sink

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type bufferCloser struct {
	bytes.Buffer
	closed int
}

func (b *bufferCloser) Close() error {
	b.closed++
	return nil
}

var fixedClock = func() time.Time {
	return time.Date(2024, time.March, 9, 14, 5, 7, 0, time.Local)
}

func TestAuditLog_Format(t *testing.T) {
	req := require.New(t)
	out := &bufferCloser{}
	audit := NewAuditLog(out, logs.GetLoggerFromLevel(slog.LevelDebug)).WithClock(fixedClock)

	audit.LogSystem("server started on port 8080")
	audit.LogUser("alice", "hello: world")

	req.Equal(
		"[2024-03-09 14:05:07] SYSTEM: server started on port 8080\n"+
			"[2024-03-09 14:05:07] alice: hello: world\n",
		out.String())
}

func TestAuditLog_CloseIsIdempotentAndDropsLateEntries(t *testing.T) {
	req := require.New(t)
	out := &bufferCloser{}
	audit := NewAuditLog(out, logs.GetLoggerFromLevel(slog.LevelDebug)).WithClock(fixedClock)

	req.NoError(audit.Close())
	req.NoError(audit.Close())
	audit.LogUser("alice", "too late")

	req.Equal(1, out.closed)
	req.Empty(out.String())
}

func TestAuditLog_ConcurrentWritersKeepWholeLines(t *testing.T) {
	req := require.New(t)
	out := &bufferCloser{}
	audit := NewAuditLog(out, logs.GetLoggerFromLevel(slog.LevelDebug))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				audit.LogUser("bob", "line")
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	req.Len(lines, 500)
	for _, line := range lines {
		req.True(strings.HasSuffix(line, "] bob: line"), line)
	}
}

func TestOpenAuditLog_Appends(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	path := filepath.Join(t.TempDir(), "file.log")

	// Given a previous run left an entry
	first, err := OpenAuditLog(path, log)
	req.NoError(err)
	first.WithClock(fixedClock).LogSystem("server stopped")
	req.NoError(first.Close())

	// When the log is reopened
	second, err := OpenAuditLog(path, log)
	req.NoError(err)
	second.WithClock(fixedClock).LogSystem("server started on port 8080")
	req.NoError(second.Close())

	// Then both entries are kept in order
	content, err := os.ReadFile(path)
	req.NoError(err)
	req.Equal(
		"[2024-03-09 14:05:07] SYSTEM: server stopped\n"+
			"[2024-03-09 14:05:07] SYSTEM: server started on port 8080\n",
		string(content))
}

func TestOpenAuditLog_InvalidPath(t *testing.T) {
	_, err := OpenAuditLog(filepath.Join(t.TempDir(), "missing", "file.log"), logs.GetLoggerFromLevel(slog.LevelDebug))
	require.Error(t, err)
}
