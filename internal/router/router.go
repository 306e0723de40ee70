// Package router moves messages between agents: it appends each send to
// an ordered log, opens busy windows on the participating agents, and
// simulates the counterpart agent's reply. All deferred effects are
// cancellable timers owned by the router; Close stops every pending one.
package router

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seolab/seopilot/internal/bus"
	"github.com/seolab/seopilot/internal/registry"
)

// MetadataResponseTo is the metadata key a synthesized reply uses to
// reference the message it responds to.
const MetadataResponseTo = "responseToMessageId"

const (
	defaultBusyWindow = 2 * time.Second
	defaultReplyDelay = 1500 * time.Millisecond

	// replyQuoteLen bounds how much of the original content a
	// synthesized reply quotes.
	replyQuoteLen = 30
)

// Message is one immutable entry in the message log.
type Message struct {
	ID        string
	From      registry.ID
	To        registry.ID
	Content   string
	Timestamp time.Time
	Metadata  map[string]string
}

// Config tunes the router's simulated timing.
type Config struct {
	// BusyWindow is how long a send keeps both participants in
	// "processing" status. Zero means the default of 2s.
	BusyWindow time.Duration
	// ReplyDelay is how long after a send the synthesized reply is
	// emitted. Negative disables auto-replies entirely; zero means the
	// default of 1.5s.
	ReplyDelay time.Duration
}

// Router routes messages between registered agents.
type Router struct {
	reg    *registry.Registry
	bus    *bus.Bus
	logger *slog.Logger

	busyWindow time.Duration
	replyDelay time.Duration
	now        func() time.Time

	mu     sync.Mutex
	log    []Message
	timers map[*time.Timer]struct{}
	closed bool
}

// New creates a Router over the given registry.
func New(reg *registry.Registry, b *bus.Bus, logger *slog.Logger, cfg Config) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	busyWindow := cfg.BusyWindow
	if busyWindow <= 0 {
		busyWindow = defaultBusyWindow
	}
	replyDelay := cfg.ReplyDelay
	if replyDelay == 0 {
		replyDelay = defaultReplyDelay
	}
	return &Router{
		reg:        reg,
		bus:        b,
		logger:     logger,
		busyWindow: busyWindow,
		replyDelay: replyDelay,
		now:        time.Now,
		timers:     make(map[*time.Timer]struct{}),
	}
}

// Send appends a message from one agent to another (or to the
// coordinator), marks both participants busy for the busy window, and
// schedules the simulated reply when the recipient is a real agent.
func (r *Router) Send(from, to registry.ID, content string, metadata map[string]string) (Message, error) {
	if from.IsCoordinator() || !from.Valid() {
		return Message{}, fmt.Errorf("%w: sender %s", registry.ErrUnknownAgent, from)
	}
	if !to.Valid() {
		return Message{}, fmt.Errorf("%w: recipient %s", registry.ErrUnknownAgent, to)
	}

	msg := Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Content:   content,
		Timestamp: r.now(),
	}
	if len(metadata) > 0 {
		msg.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			msg.Metadata[k] = v
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Message{}, fmt.Errorf("router closed")
	}
	r.log = append(r.log, msg)
	r.mu.Unlock()

	r.markBusy(from)
	if !to.IsCoordinator() {
		r.markBusy(to)
		// Replies themselves are not answered, so an exchange settles
		// after one synthesized response instead of ping-ponging.
		if r.replyDelay > 0 && msg.Metadata[MetadataResponseTo] == "" {
			r.scheduleReply(msg)
		}
	}

	r.logger.Debug("message routed",
		"message_id", msg.ID, "from", string(from), "to", string(to))
	if r.bus != nil {
		r.bus.Publish(bus.TopicMessageSent, bus.MessageSentEvent{
			MessageID: msg.ID,
			From:      string(from),
			To:        string(to),
			AutoReply: msg.Metadata[MetadataResponseTo] != "",
		})
	}
	return msg, nil
}

// markBusy opens a busy window on the agent and arms its reset. The
// reset carries the window's epoch, so a window opened later is never
// cut short by an earlier reset expiring.
func (r *Router) markBusy(id registry.ID) {
	epoch, err := r.reg.BeginBusy(id)
	if err != nil {
		r.logger.Error("busy window open failed", "agent", string(id), "error", err)
		return
	}
	r.afterFunc(r.busyWindow, func() {
		if err := r.reg.EndBusy(id, epoch); err != nil {
			r.logger.Error("busy window close failed", "agent", string(id), "error", err)
		}
	})
}

// scheduleReply arms the simulated counterpart response for a message.
// The reply goes through Send and therefore re-triggers busy windows.
func (r *Router) scheduleReply(original Message) {
	r.afterFunc(r.replyDelay, func() {
		content := original.Content
		if len(content) > replyQuoteLen {
			content = content[:replyQuoteLen]
		}
		reply := fmt.Sprintf("Processed your request: %q...", content)
		if _, err := r.Send(original.To, original.From, reply, map[string]string{
			MetadataResponseTo: original.ID,
		}); err != nil {
			r.logger.Debug("auto-reply dropped", "original_id", original.ID, "error", err)
		}
	})
}

// afterFunc arms a tracked timer. Fired or stopped timers remove
// themselves; Close stops everything still pending.
func (r *Router) afterFunc(d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return
		}
		delete(r.timers, timer)
		r.mu.Unlock()
		fn()
	})
	r.timers[timer] = struct{}{}
}

// Messages returns a copy of the log sorted newest-first. Ties keep
// insertion order. The internal log stays append-only oldest-first.
func (r *Router) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Message, len(r.log))
	copy(out, r.log)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Len reports how many messages the log holds.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.log)
}

// Close cancels all pending busy resets and auto-replies. Further sends
// fail and timers that race the close become no-ops.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for timer := range r.timers {
		timer.Stop()
	}
	r.timers = nil
}
