// Package reconcile merges the two inbound conversation sources, the
// real-time event stream and paginated history, into one coherent element
// cache with idempotent, order-preserving semantics.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/lookout-sh/lookout/internal/chat"
	"github.com/lookout-sh/lookout/internal/wire"
	"github.com/lookout-sh/lookout/pkg/logger"
)

// HistoryAPI is the slice of the HTTP client the reconciler needs.
type HistoryAPI interface {
	GetSessionMessages(ctx context.Context, sessionID string, limit, offset int) (*wire.SessionMessagesResponse, error)
}

// Reconciler feeds one element cache from real-time events (debounced) and
// history pages (prepended). The cache and cursor are guarded by one mutex;
// network fetches happen outside it so live events keep draining while a
// page is in flight.
type Reconciler struct {
	api      HistoryAPI
	pageSize int
	batch    *batcher
	onUpdate func()

	mu         sync.Mutex
	cache      *chat.Cache
	sessionID  string
	nextOffset int
	hasMore    bool
	total      int
	loading    bool
	lastMsg    *wire.SessionMessage
	streamedAt time.Time
}

// New creates a reconciler. onUpdate is invoked after every cache mutation
// so the owner can schedule a refresh; it may be nil.
func New(cache *chat.Cache, api HistoryAPI, pageSize int, window time.Duration, onUpdate func()) *Reconciler {
	if pageSize <= 0 {
		pageSize = 20
	}
	if window <= 0 {
		window = 100 * time.Millisecond
	}
	r := &Reconciler{
		api:      api,
		pageSize: pageSize,
		cache:    cache,
		onUpdate: onUpdate,
	}
	r.batch = newBatcher(window, r.applyBatch)
	return r
}

// Start launches the debounce actor.
func (r *Reconciler) Start() { r.batch.start() }

// Stop stops the debounce actor. Pending elements are dropped.
func (r *Reconciler) Stop() { r.batch.stop() }

// Flush forces any debounced elements into the cache immediately.
func (r *Reconciler) Flush() { r.batch.flush() }

// Elements returns the current ordered element set.
func (r *Reconciler) Elements() []chat.Element {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.All()
}

// SessionID returns the session the cache currently belongs to.
func (r *Reconciler) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// HasMore reports whether older history pages remain.
func (r *Reconciler) HasMore() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasMore
}

// Total returns the server-reported total message count.
func (r *Reconciler) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Loaded reports whether any history has been admitted for the current
// session.
func (r *Reconciler) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len() > 0
}

// Streaming reports whether the session is mid-stream: the most recent
// structured message has no terminal stop reason yet and contains thinking.
func (r *Reconciler) Streaming() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return chat.IsStreaming(r.lastMsg)
}

// StreamingSince returns when the current streaming run began; zero when not
// streaming.
func (r *Reconciler) StreamingSince() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !chat.IsStreaming(r.lastMsg) {
		return time.Time{}
	}
	return r.streamedAt
}

// HandleEvent maps a real-time event to elements and queues them for the
// debounced append. Events scoped to other sessions are dropped. It reports
// whether the event was consumed.
func (r *Reconciler) HandleEvent(ev *wire.Event) bool {
	if ev == nil {
		return false
	}

	r.mu.Lock()
	current := r.sessionID
	r.mu.Unlock()
	if ev.SessionID != "" && current != "" && ev.SessionID != current {
		logger.Tracef("reconcile: dropping %s event for other session %s", ev.Type, ev.SessionID)
		return false
	}

	switch ev.Type {
	case wire.EventMessage:
		if ev.Message == nil {
			return false
		}
		r.noteMessage(ev.Message)
		r.batch.queue(chat.ElementsFromMessage(ev.Message))
		return true

	case wire.EventDiff:
		if ev.Diff == nil {
			return false
		}
		r.batch.queue([]chat.Element{{
			ID:        ev.Diff.ToolUseID,
			Type:      chat.Diff,
			Timestamp: ev.Timestamp.Time,
			ToolUseID: ev.Diff.ToolUseID,
			Path:      ev.Diff.Path,
			Patch:     ev.Diff.Patch,
		}})
		return true
	}
	return false
}

// noteMessage recomputes the streaming derivation for a structured message.
func (r *Reconciler) noteMessage(msg *wire.SessionMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wasStreaming := chat.IsStreaming(r.lastMsg)
	r.lastMsg = msg
	nowStreaming := chat.IsStreaming(msg)
	if nowStreaming && !wasStreaming {
		r.streamedAt = time.Now()
	}
	if !nowStreaming {
		r.streamedAt = time.Time{}
	}
}

// LoadInitial clears the cache and loads the newest history page for a
// session. Any in-flight load for a previous session is invalidated by the
// session tag check.
func (r *Reconciler) LoadInitial(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	r.sessionID = sessionID
	r.cache.Clear()
	r.nextOffset = 0
	r.hasMore = false
	r.total = 0
	r.lastMsg = nil
	r.loading = true
	r.mu.Unlock()

	resp, err := r.api.GetSessionMessages(ctx, sessionID, r.pageSize, 0)

	r.mu.Lock()
	if r.sessionID != sessionID {
		// Session switched while the fetch was in flight; discard, and leave
		// loading to the successor that owns it now.
		r.mu.Unlock()
		logger.Debugf("reconcile: discarding initial page for superseded session %s", sessionID)
		return nil
	}
	r.loading = false
	if err != nil {
		r.mu.Unlock()
		return err
	}

	chat.ReversePage(resp.Messages)
	r.cache.AddBatch(chat.ElementsFromPage(resp.Messages))
	r.nextOffset = resp.NextOffset
	r.hasMore = resp.HasMore
	r.total = resp.Total
	r.mu.Unlock()

	r.notify()
	return nil
}

// LoadMore prepends the next older history page. It is a no-op while a load
// is in flight or when no more pages exist.
func (r *Reconciler) LoadMore(ctx context.Context) error {
	r.mu.Lock()
	if r.loading || !r.hasMore || r.sessionID == "" {
		r.mu.Unlock()
		return nil
	}
	sessionID := r.sessionID
	offset := r.nextOffset
	r.loading = true
	r.mu.Unlock()

	resp, err := r.api.GetSessionMessages(ctx, sessionID, r.pageSize, offset)

	r.mu.Lock()
	if r.sessionID != sessionID {
		r.mu.Unlock()
		logger.Debugf("reconcile: discarding page for superseded session %s", sessionID)
		return nil
	}
	r.loading = false
	if err != nil {
		r.mu.Unlock()
		return err
	}

	chat.ReversePage(resp.Messages)
	r.cache.Prepend(chat.ElementsFromPage(resp.Messages))
	r.nextOffset = resp.NextOffset
	r.hasMore = resp.HasMore
	r.total = resp.Total
	r.mu.Unlock()

	r.notify()
	return nil
}

// Reset drops all cached history and cursor state, e.g. on session clear.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.sessionID = ""
	r.cache.Clear()
	r.nextOffset = 0
	r.hasMore = false
	r.total = 0
	r.loading = false
	r.lastMsg = nil
	r.streamedAt = time.Time{}
	r.mu.Unlock()
	r.notify()
}

// applyBatch lands a debounced batch in the cache.
func (r *Reconciler) applyBatch(els []chat.Element) {
	r.mu.Lock()
	added := r.cache.AddBatch(els)
	r.mu.Unlock()
	if added > 0 {
		r.notify()
	}
}

func (r *Reconciler) notify() {
	if r.onUpdate != nil {
		r.onUpdate()
	}
}
