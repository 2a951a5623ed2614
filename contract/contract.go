//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Member is the registry's view of a connected client.
// Send must be safe for concurrent callers; Close must be idempotent.
type Member interface {
	ID() string
	Send(evt domain.ChatEvent) error
	Close()
}

type IRegistry interface {
	Register(member Member)
	Unregister(member Member)
	Broadcast(ctx context.Context, evt domain.ChatEvent)
	Len() int
	CloseAll()
}

// AuditLogger appends one timestamped line per call and never fails the caller.
type AuditLogger interface {
	LogUser(username, content string)
	LogSystem(content string)
}

type EventSink interface {
	Consume(ctx context.Context, evt domain.ChatEvent) error
}

type Moderator interface {
	Censor(content string) (string, []string)
}
