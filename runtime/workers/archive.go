package workers

import (
	"chat-relay/contract"
	"chat-relay/repositories"
	"context"
	"log/slog"

	"github.com/abadojack/whatlanggo"
)

var _ contract.Worker = (*ArchiveWorker)(nil)

// ArchiveWorker drains the archive queue into the message repository.
// On cancellation it flushes what is already queued before returning.
type ArchiveWorker struct {
	repository repositories.IMessageRepository
	queue      <-chan repositories.DiskMessage
	log        *slog.Logger
}

func NewArchiveWorker(repository repositories.IMessageRepository,
	queue <-chan repositories.DiskMessage, log *slog.Logger) *ArchiveWorker {
	return &ArchiveWorker{repository: repository, queue: queue, log: log}
}

func (w *ArchiveWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			w.log.Debug("Stopping archive worker")
			return ctx.Err()
		case msg, ok := <-w.queue:
			if !ok {
				w.log.Debug("Archive queue closed")
				return nil
			}
			w.store(msg)
		}
	}
}

func (w *ArchiveWorker) drain() {
	for {
		select {
		case msg, ok := <-w.queue:
			if !ok {
				return
			}
			w.store(msg)
		default:
			return
		}
	}
}

func (w *ArchiveWorker) store(msg repositories.DiskMessage) {
	msg.Lang = detectLang(msg.Content)
	if err := w.repository.StoreMessage(msg); err != nil {
		w.log.Error("Archiving message failed", "id", msg.ID, "error", err)
	}
}

// detectLang returns the ISO 639-1 code of content, or "" when detection is unreliable.
func detectLang(content string) string {
	if content == "" {
		return ""
	}
	info := whatlanggo.Detect(content)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}
