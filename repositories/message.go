//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-relay/errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

const messagePrefix = "msg:"

// Field numbers of the archived message record.
const (
	fieldID protowire.Number = iota + 1
	fieldKind
	fieldAuthor
	fieldContent
	fieldLang
	fieldAt
)

type IMessageRepository interface {
	StoreMessage(message DiskMessage) error
	GetMessages(cursor *string) ([]DiskMessage, *string, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

type DiskMessage struct {
	ID      uuid.UUID
	Kind    string
	Author  string
	Content string
	Lang    string
	At      time.Time
}

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
func (m MessageRepository) StoreMessage(message DiskMessage) error {
	key := fmt.Sprintf("%s%019d:%s", messagePrefix, message.At.UnixNano(), message.ID)
	value := marshalDiskMessage(message)
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// GetMessages walks the archive from the newest message backwards.
// A nil cursor starts from the most recent entry; the returned cursor resumes after the last one read.
// It stops collecting messages once the configured limitMessages is reached.
func (m MessageRepository) GetMessages(cursor *string) ([]DiskMessage, *string, error) {
	var byteMessages [][]byte
	var lastKey string
	prefix := []byte(messagePrefix)

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible timestamp, then walk back.
			seekKey = append([]byte(messagePrefix), []byte("9999999999999999999~")...)
		default:
			seekKey = append([]byte(messagePrefix), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[len(prefix):]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(byteMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			byteMessages = append(byteMessages, value)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	diskMessages := make([]DiskMessage, 0, len(byteMessages))
	for _, b := range byteMessages {
		message, err := unmarshalDiskMessage(b)
		if err != nil {
			return nil, nil, err
		}
		diskMessages = append(diskMessages, message)
	}
	return diskMessages, &lastKey, nil
}

func marshalDiskMessage(message DiskMessage) []byte {
	var b []byte
	for _, f := range []struct {
		num   protowire.Number
		value string
	}{
		{fieldID, message.ID.String()},
		{fieldKind, message.Kind},
		{fieldAuthor, message.Author},
		{fieldContent, message.Content},
		{fieldLang, message.Lang},
	} {
		if f.value == "" {
			continue
		}
		b = protowire.AppendTag(b, f.num, protowire.BytesType)
		b = protowire.AppendString(b, f.value)
	}
	b = protowire.AppendTag(b, fieldAt, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(message.At.UnixNano()))
}

func unmarshalDiskMessage(b []byte) (DiskMessage, error) {
	var message DiskMessage
	var id string
	var at int64

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return DiskMessage{}, fmt.Errorf("%w: %v", errors.ErrCorruptRecord, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && num >= fieldID && num <= fieldLang:
			value, n := protowire.ConsumeString(b)
			if n < 0 {
				return DiskMessage{}, fmt.Errorf("%w: %v", errors.ErrCorruptRecord, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldID:
				id = value
			case fieldKind:
				message.Kind = value
			case fieldAuthor:
				message.Author = value
			case fieldContent:
				message.Content = value
			case fieldLang:
				message.Lang = value
			}
		case typ == protowire.VarintType && num == fieldAt:
			value, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return DiskMessage{}, fmt.Errorf("%w: %v", errors.ErrCorruptRecord, protowire.ParseError(n))
			}
			b = b[n:]
			at = int64(value)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return DiskMessage{}, fmt.Errorf("%w: %v", errors.ErrCorruptRecord, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	parsedID, err := uuid.Parse(id)
	if err != nil {
		return DiskMessage{}, fmt.Errorf("%w: %v", errors.ErrCorruptRecord, err)
	}
	message.ID = parsedID
	message.At = time.Unix(0, at).UTC()
	return message, nil
}
