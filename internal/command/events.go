package command

import (
	"log/slog"
	"sync"
)

// EventKind identifies a manager event.
type EventKind int

const (
	EventStatusChanged EventKind = iota
	EventProgressMade
	EventCommandExecuted
	EventHistoryPreReset
	EventHistoryPostReset
	EventPreCommandIndexChanged
	EventPostCommandIndexChanged
	EventMultiCommandBegin
	EventMultiCommandComplete
	EventMultiCommandCancel
	EventMacrosChanged
)

func (k EventKind) String() string {
	switch k {
	case EventStatusChanged:
		return "status_changed"
	case EventProgressMade:
		return "progress_made"
	case EventCommandExecuted:
		return "command_executed"
	case EventHistoryPreReset:
		return "history_pre_reset"
	case EventHistoryPostReset:
		return "history_post_reset"
	case EventPreCommandIndexChanged:
		return "pre_command_index_changed"
	case EventPostCommandIndexChanged:
		return "post_command_index_changed"
	case EventMultiCommandBegin:
		return "multi_command_begin"
	case EventMultiCommandComplete:
		return "multi_command_complete"
	case EventMultiCommandCancel:
		return "multi_command_cancel"
	case EventMacrosChanged:
		return "macros_changed"
	}
	return "unknown"
}

// Event is delivered to subscribers. Handlers run synchronously on the
// goroutine that caused the event and must not block.
type Event struct {
	Kind      EventKind
	Instance  *Instance
	Status    Status
	Operation Operation
	Index     int
	Progress  float64
}

// Handler receives events.
type Handler func(Event)

type subscription struct {
	id int
	h  Handler
}

type eventBus struct {
	mu     sync.RWMutex
	next   int
	subs   []subscription
	logger *slog.Logger
}

func newEventBus(logger *slog.Logger) *eventBus {
	return &eventBus{logger: logger}
}

func (b *eventBus) subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs = append(b.subs, subscription{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for n, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:n:n], b.subs[n+1:]...)
					return
				}
			}
		})
	}
}

func (b *eventBus) publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		b.safeCall(s.h, e)
	}
}

func (b *eventBus) safeCall(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", e.Kind.String(), "panic", r)
		}
	}()
	h(e)
}
