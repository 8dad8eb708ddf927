// Package bridge wires backend push events to immediate dashboard refresh.
//
// Subscriptions register asynchronously, so the bridge guards against the
// teardown-before-registration race: a handle that arrives after Close is
// disposed of on the spot instead of leaking, and event callbacks check the
// disposed flag before acting.
package bridge

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/mctl-dev/mctl/internal/backend"
	"github.com/mctl-dev/mctl/internal/models"
)

// Push event names the bridge subscribes to.
const (
	EventAgentStatusChanged   = "agent:status_changed"
	EventTaskStatusChanged    = "task:status_changed"
	EventSessionStatusChanged = "session:status_changed"
	EventRefreshRequested     = "mission_control:refresh"
	EventRateLimitDetected    = "agent:rate_limit_detected"
)

// Subscriber establishes one push-event stream per call.
type Subscriber interface {
	Subscribe(event string, fn func(payload json.RawMessage)) (backend.Subscription, error)
}

// Notifier surfaces user-facing warnings.
type Notifier interface {
	Warn(message string)
}

// Bridge fans backend push events into the refresh callback.
type Bridge struct {
	subscriber Subscriber
	notifier   Notifier
	refresh    func()

	mu       sync.Mutex
	disposed bool
	subs     []backend.Subscription
}

// New creates a bridge. refresh is invoked on every status-changed event and
// after a rate-limit warning has been surfaced.
func New(subscriber Subscriber, notifier Notifier, refresh func()) *Bridge {
	return &Bridge{
		subscriber: subscriber,
		notifier:   notifier,
		refresh:    refresh,
	}
}

// handlers is the dispatch table over the fixed event-name set.
func (b *Bridge) handlers() map[string]func(json.RawMessage) {
	return map[string]func(json.RawMessage){
		EventAgentStatusChanged:   b.handleGeneric,
		EventTaskStatusChanged:    b.handleGeneric,
		EventSessionStatusChanged: b.handleGeneric,
		EventRefreshRequested:     b.handleGeneric,
		EventRateLimitDetected:    b.handleRateLimit,
	}
}

// Start registers all subscriptions. Each registration runs asynchronously;
// failures are logged and swallowed so the bridge keeps operating with
// whichever subscriptions did succeed.
func (b *Bridge) Start() {
	for name, handler := range b.handlers() {
		go b.register(name, handler)
	}
}

func (b *Bridge) register(name string, handler func(json.RawMessage)) {
	sub, err := b.subscriber.Subscribe(name, b.guard(handler))

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		log.Printf("event subscription %s failed: %v", name, err)
		return
	}
	if b.disposed {
		// Torn down while the subscription was being established.
		closeQuiet(sub)
		return
	}
	b.subs = append(b.subs, sub)
}

// guard drops events delivered after logical teardown.
func (b *Bridge) guard(handler func(json.RawMessage)) func(json.RawMessage) {
	return func(payload json.RawMessage) {
		b.mu.Lock()
		disposed := b.disposed
		b.mu.Unlock()
		if disposed {
			return
		}
		handler(payload)
	}
}

func (b *Bridge) handleGeneric(json.RawMessage) {
	b.refresh()
}

func (b *Bridge) handleRateLimit(payload json.RawMessage) {
	var event models.RateLimitEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Printf("rate limit payload malformed: %v", err)
	}

	message := "Rate limit detected"
	if event.Provider != "" {
		message = fmt.Sprintf("Rate limit detected on %s", event.Provider)
	}
	if event.Message != "" {
		message += ": " + event.Message
	}
	if b.notifier != nil {
		b.notifier.Warn(message)
	}

	b.refresh()
}

// Close disposes all registered subscriptions. Safe to call repeatedly;
// disposal errors are swallowed.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	b.disposed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		closeQuiet(sub)
	}
}

func closeQuiet(sub backend.Subscription) {
	if sub == nil {
		return
	}
	_ = sub.Close()
}
