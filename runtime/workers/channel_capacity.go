package workers

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"reflect"
	"time"
)

// saturationRatio is the fill level above which a channel is reported at Warn.
const saturationRatio = 0.8

var _ contract.Worker = (*ChannelCapacityWorker)(nil)

type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelCapacityWorker periodically logs the length and capacity of buffered channels.
// Reading len(channel) and cap(channel) is non-blocking, so this won't interfere
// with producers or consumers.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger, channels []NamedChannel,
	metricInterval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{log: log, channels: channels, metricInterval: metricInterval}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, nc := range w.channels {
				w.report(nc)
			}
		}
	}
}

func (w *ChannelCapacityWorker) report(nc NamedChannel) {
	v := reflect.ValueOf(nc.Channel)
	if v.Kind() != reflect.Chan {
		w.log.Error("Provided object is not a channel", "name", nc.Name)
		return
	}
	length, capacity := v.Len(), v.Cap()
	if capacity > 0 && float64(length) >= saturationRatio*float64(capacity) {
		w.log.Warn("Channel close to saturation", "name", nc.Name, "length", length, "capacity", capacity)
		return
	}
	w.log.Debug("Channel capacity", "name", nc.Name, "length", length, "capacity", capacity)
}
