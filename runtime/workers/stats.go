package workers

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

var _ contract.Worker = (*StatsWorker)(nil)

// SessionCounter is the slice of the registry the stats worker reads.
type SessionCounter interface {
	Len() int
}

// StatsWorker periodically logs the number of connected sessions alongside
// the process memory and CPU usage.
type StatsWorker struct {
	log      *slog.Logger
	sessions SessionCounter
	interval time.Duration
}

func NewStatsWorker(log *slog.Logger, sessions SessionCounter, interval time.Duration) *StatsWorker {
	return &StatsWorker{log: log, sessions: sessions, interval: interval}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.report(p)
		}
	}
}

func (w *StatsWorker) report(p *process.Process) {
	attrs := []any{"sessions", w.sessions.Len()}

	rss, cpu, err := selfStats(p)
	if err != nil {
		w.log.Warn("Failed to collect self stats", "error", err)
	} else {
		attrs = append(attrs, "rss_bytes", rss, "cpu_percent", cpu)
	}
	w.log.Info("Relay stats", attrs...)
}

// selfStats retrieves resident memory and CPU usage for the given process.
func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
