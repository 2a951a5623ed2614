package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var baseTime = time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)

func messagesAt(at time.Time, authors ...string) []DiskMessage {
	var res []DiskMessage
	for i, author := range authors {
		res = append(res, DiskMessage{
			ID:      uuid.New(),
			Kind:    "MESSAGE",
			Author:  author,
			Content: "this message will self destruct in 5 seconds",
			Lang:    "en",
			At:      at.Add(time.Duration(i) * time.Minute),
		})
	}
	return res
}

func Test_Record_Multiple_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	diskMessages := messagesAt(baseTime, "Alice", "Bob", "Clara")

	// Given three messages stored in chronological order
	for _, dm := range diskMessages {
		req.NoError(repository.StoreMessage(dm))
	}

	// When the archive is read from the start
	fetched, cursor, err := repository.GetMessages(nil)

	// Then every message comes back, newest first
	req.NoError(err)
	req.NotNil(cursor)
	req.Len(fetched, len(diskMessages))
	for i, dm := range fetched {
		req.Equal(diskMessages[len(diskMessages)-1-i], dm)
	}
}

func Test_Record_Multiple_Message_And_Limit(t *testing.T) {
	req := require.New(t)
	limit := 2
	repository := NewMessageRepository(openDB(t), slog.Default(), &limit)
	diskMessages := messagesAt(baseTime, "Alice", "Bob", "Clara")
	for _, dm := range diskMessages {
		req.NoError(repository.StoreMessage(dm))
	}

	// When the first page is read
	page, cursor, err := repository.GetMessages(nil)
	req.NoError(err)
	req.Len(page, limit)
	req.Equal("Clara", page[0].Author)
	req.Equal("Bob", page[1].Author)

	// Then the cursor resumes after Bob
	next, _, err := repository.GetMessages(cursor)
	req.NoError(err)
	req.Len(next, 1)
	req.Equal("Alice", next[0].Author)
}

func Test_Empty_Archive(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)

	fetched, _, err := repository.GetMessages(nil)
	req.NoError(err)
	req.Empty(fetched)
}

func Test_Corrupt_Record(t *testing.T) {
	req := require.New(t)

	// A truncated varint cannot be decoded
	_, err := unmarshalDiskMessage([]byte{0x08})
	req.Error(err)

	// A record without id is rejected too
	_, err = unmarshalDiskMessage(nil)
	req.Error(err)
}
