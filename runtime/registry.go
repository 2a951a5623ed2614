package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

// Ensure *Registry implements the contract.IRegistry interface at compile time.
var _ contract.IRegistry = (*Registry)(nil)

type Set map[contract.Member]struct{}

// Registry is the process-wide set of connected members.
// Mutations and the broadcast snapshot share one RWMutex; delivery runs without it.
type Registry struct {
	mu      sync.RWMutex
	members Set
	audit   contract.AuditLogger
	sinks   []contract.EventSink
	log     *slog.Logger
}

func NewRegistry(log *slog.Logger, audit contract.AuditLogger, sinks ...contract.EventSink) *Registry {
	return &Registry{
		members: make(Set),
		audit:   audit,
		sinks:   sinks,
		log:     log,
	}
}

// Register adds a member. Every snapshot taken after Register returns includes it,
// until its own Unregister.
func (r *Registry) Register(member contract.Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[member] = struct{}{}
}

// Unregister removes a member. Unknown or already removed members are ignored.
func (r *Registry) Unregister(member contract.Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, member)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Snapshot returns a private copy of the member set as of a single instant.
func (r *Registry) Snapshot() []contract.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.members)
}

// Broadcast audits the event, hands it to the permanent sinks, then delivers it
// to a snapshot of the members. The sender is part of the snapshot and receives its own event.
//
// Delivery is best-effort: a member closing mid-delivery simply drops the event.
func (r *Registry) Broadcast(ctx context.Context, evt domain.ChatEvent) {
	if evt.IsSystem() {
		r.audit.LogSystem(evt.Content)
	} else {
		r.audit.LogUser(evt.Username, evt.Content)
	}

	for _, sink := range r.sinks {
		if err := sink.Consume(ctx, evt); err != nil {
			r.log.Warn("Sink rejected event", "kind", evt.Kind, "error", err)
		}
	}

	recipients := r.Snapshot()
	for _, member := range recipients {
		if err := member.Send(evt); err != nil {
			if !stderrors.Is(err, errors.ErrSessionClosed) {
				r.log.Debug("Delivery dropped", "session_id", member.ID(), "error", err)
			}
		}
	}
}

// CloseAll force-closes every member and leaves the registry empty.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	members := lo.Keys(r.members)
	r.members = make(Set)
	r.mu.Unlock()

	for _, member := range members {
		member.Close()
	}
	r.log.Info("All sessions closed", "count", len(members))
}
