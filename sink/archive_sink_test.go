package sink

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestArchiveSink_QueuesStampedMessage(t *testing.T) {
	req := require.New(t)
	queue := make(chan repositories.DiskMessage, 1)
	at := time.Date(2024, time.March, 9, 14, 5, 7, 0, time.UTC)
	archive := NewArchiveSink(queue)
	archive.now = func() time.Time { return at }

	// When a chat event is consumed
	req.NoError(archive.Consume(context.Background(), domain.NewChat("alice", "hi")))

	// Then a stamped message is queued for the archive worker
	msg := <-queue
	req.NotEqual(uuid.Nil, msg.ID)
	req.Equal("MESSAGE", msg.Kind)
	req.Equal("alice", msg.Author)
	req.Equal("hi", msg.Content)
	req.Equal(at, msg.At)
	req.Empty(msg.Lang)
}

func TestArchiveSink_FullQueueDoesNotBlock(t *testing.T) {
	req := require.New(t)
	queue := make(chan repositories.DiskMessage, 1)
	archive := NewArchiveSink(queue)

	req.NoError(archive.Consume(context.Background(), domain.Joined("alice")))
	err := archive.Consume(context.Background(), domain.NewChat("alice", "dropped"))

	req.ErrorIs(err, errors.ErrArchiveFull)
	req.Len(queue, 1)
}

func TestArchiveSink_CanceledContext(t *testing.T) {
	queue := make(chan repositories.DiskMessage)
	archive := NewArchiveSink(queue)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := archive.Consume(ctx, domain.NewChat("alice", "late"))

	require.ErrorIs(t, err, context.Canceled)
}
