// Package events publishes compile and execution lifecycle events on a typed
// event bus so callers can observe the statements being produced.
package events

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	goevents "github.com/asaidimu/go-events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType names a lifecycle event.
type EventType string

const (
	CompileStarted   EventType = "compile.started"
	CompileSucceeded EventType = "compile.succeeded"
	CompileFailed    EventType = "compile.failed"
	ExecuteStarted   EventType = "execute.started"
	ExecuteSucceeded EventType = "execute.succeeded"
	ExecuteFailed    EventType = "execute.failed"
)

// Event is the payload delivered to subscribers.
type Event struct {
	Type EventType `json:"type"`
	// Timestamp is in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
	// ID and Query are set once the statement is compiled.
	ID        string `json:"id,omitempty"`
	Query     string `json:"query,omitempty"`
	Operation string `json:"operation"`
	Entity    string `json:"entity,omitempty"`
	Dialect   string `json:"dialect,omitempty"`
	// Duration and Error are set on terminal events.
	Duration time.Duration  `json:"duration,omitempty"`
	Error    *string        `json:"error,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// Callback handles a delivered event.
type Callback func(ctx context.Context, event Event) error

// SubscriptionInfo describes a registered subscription.
type SubscriptionInfo struct {
	ID          string    `json:"id"`
	Event       EventType `json:"event"`
	Label       string    `json:"label,omitempty"`
	unsubscribe func()
}

// Bus wraps a typed event bus with subscription bookkeeping. A nil *Bus is
// valid and drops every event.
type Bus struct {
	bus           *goevents.TypedEventBus[Event]
	logger        *zap.Logger
	subscriptions map[string]*SubscriptionInfo
	mu            sync.RWMutex
}

// NewBus creates a new event bus.
func NewBus(logger *zap.Logger) (*Bus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus, err := goevents.NewTypedEventBus[Event](goevents.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}
	return &Bus{
		bus:           bus,
		logger:        logger,
		subscriptions: make(map[string]*SubscriptionInfo),
	}, nil
}

// Emit publishes the event. Events without a timestamp are stamped now.
func (b *Bus) Emit(event Event) {
	if b == nil || b.bus == nil {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	b.bus.Emit(string(event.Type), event)
}

// Subscribe registers a callback for an event type and returns the
// subscription id. Subscribing to a nil bus returns "".
func (b *Bus) Subscribe(event EventType, label string, callback Callback) string {
	if b == nil || b.bus == nil {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	unsubscribe := b.bus.Subscribe(string(event), func(ctx context.Context, ev Event) error {
		if err := callback(ctx, ev); err != nil {
			b.logger.Warn("event callback failed",
				zap.String("event", string(ev.Type)),
				zap.String("label", label),
				zap.Error(err))
			return err
		}
		return nil
	})
	id := uuid.New().String()
	b.subscriptions[id] = &SubscriptionInfo{
		ID:          id,
		Event:       event,
		Label:       label,
		unsubscribe: unsubscribe,
	}
	return id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	info := b.subscriptions[id]
	if info != nil {
		info.unsubscribe()
		delete(b.subscriptions, id)
	}
}

// Subscriptions returns the registered subscriptions ordered by event type
// and label.
func (b *Bus) Subscriptions() []SubscriptionInfo {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]SubscriptionInfo, 0, len(b.subscriptions))
	for _, info := range b.subscriptions {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Event != out[j].Event {
			return out[i].Event < out[j].Event
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// Span tracks one operation from its started event to its terminal event.
type Span struct {
	bus     *Bus
	event   Event
	started time.Time
	success EventType
	failure EventType
}

// Start emits the started event and returns a span for the terminal one.
// The started type determines the matching success and failure types.
func (b *Bus) Start(started EventType, event Event) *Span {
	if b == nil {
		return nil
	}
	success, failure := CompileSucceeded, CompileFailed
	if started == ExecuteStarted {
		success, failure = ExecuteSucceeded, ExecuteFailed
	}
	s := &Span{bus: b, event: event, started: time.Now(), success: success, failure: failure}
	ev := event
	ev.Type = started
	b.Emit(ev)
	return s
}

// Succeed emits the success event.
func (s *Span) Succeed(id, query string) {
	if s == nil {
		return
	}
	ev := s.event
	ev.Type = s.success
	ev.ID = id
	ev.Query = query
	ev.Duration = time.Since(s.started)
	ev.Timestamp = 0
	s.bus.Emit(ev)
}

// Fail emits the failure event.
func (s *Span) Fail(err error) {
	if s == nil {
		return
	}
	ev := s.event
	ev.Type = s.failure
	msg := err.Error()
	ev.Error = &msg
	ev.Duration = time.Since(s.started)
	ev.Timestamp = 0
	s.bus.Emit(ev)
}
