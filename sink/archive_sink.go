package sink

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"time"

	"github.com/google/uuid"
)

var _ contract.EventSink = ArchiveSink{}

// ArchiveSink stamps broadcast events and queues them for the archive worker.
// It never blocks the broadcast path: a full queue drops the event with ErrArchiveFull.
type ArchiveSink struct {
	queue chan<- repositories.DiskMessage
	now   func() time.Time
}

func NewArchiveSink(queue chan<- repositories.DiskMessage) ArchiveSink {
	return ArchiveSink{queue: queue, now: time.Now}
}

func (a ArchiveSink) Consume(ctx context.Context, evt domain.ChatEvent) error {
	msg := toDiskMessage(evt, a.now().UTC())
	select {
	case a.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.ErrArchiveFull
	}
}

func toDiskMessage(evt domain.ChatEvent, at time.Time) repositories.DiskMessage {
	return repositories.DiskMessage{
		ID:      uuid.New(),
		Kind:    string(evt.Kind),
		Author:  evt.Username,
		Content: evt.Content,
		At:      at,
	}
}
