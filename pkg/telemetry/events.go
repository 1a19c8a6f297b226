package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event in Bulwark.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// Operation is the guarded operation name, if applicable.
	Operation string `json:"operation,omitempty"`

	// Profile is the resilience profile in effect, if applicable.
	Profile string `json:"profile,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeExecutionFailed  = "execution.failed"
	EventTypeRetriesExhausted = "retry.exhausted"
	EventTypeTimeoutExceeded  = "timeout.exceeded"
	EventTypeWrapFailure      = "wrap.failure"
	EventTypeSingletonCreated = "singleton.created"
	EventTypeProfilesReloaded = "profiles.reloaded"
	EventTypeError            = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Apply global filters
	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			// Buffer full, drop event or log warning
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishExecutionFailed publishes an execution failed event.
func (ep *EventPublisher) PublishExecutionFailed(operation, kind, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypeExecutionFailed,
		Source:    "resilience",
		Operation: operation,
		Message:   fmt.Sprintf("Execution of %s failed: %s", operation, reason),
		Level:     EventLevelError,
		Data: map[string]interface{}{
			"kind":   kind,
			"reason": reason,
		},
	})
}

// PublishRetriesExhausted publishes a retries exhausted event.
func (ep *EventPublisher) PublishRetriesExhausted(operation string, attempts int) error {
	return ep.Publish(Event{
		Type:      EventTypeRetriesExhausted,
		Source:    "resilience",
		Operation: operation,
		Message:   fmt.Sprintf("All %d attempts of %s failed", attempts, operation),
		Level:     EventLevelError,
		Data: map[string]interface{}{
			"attempts": attempts,
		},
	})
}

// PublishTimeoutExceeded publishes a timeout exceeded event.
func (ep *EventPublisher) PublishTimeoutExceeded(operation string, limit time.Duration) error {
	return ep.Publish(Event{
		Type:      EventTypeTimeoutExceeded,
		Source:    "resilience",
		Operation: operation,
		Message:   fmt.Sprintf("Execution of %s exceeded %s, worker abandoned", operation, limit),
		Level:     EventLevelWarning,
		Data: map[string]interface{}{
			"limit": limit.Seconds(),
		},
	})
}

// PublishWrapFailure publishes a wrap failure event.
func (ep *EventPublisher) PublishWrapFailure(operation, profile, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypeWrapFailure,
		Source:    "wrap",
		Operation: operation,
		Profile:   profile,
		Message:   fmt.Sprintf("Capability %s could not be rebound: %s", operation, reason),
		Level:     EventLevelWarning,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishSingletonCreated publishes a singleton created event.
func (ep *EventPublisher) PublishSingletonCreated(key string) error {
	return ep.Publish(Event{
		Type:    EventTypeSingletonCreated,
		Source:  "registry",
		Message: fmt.Sprintf("Singleton instance created for %s", key),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"key": key,
		},
	})
}

// PublishProfilesReloaded publishes a profiles reloaded event.
func (ep *EventPublisher) PublishProfilesReloaded(path string, count int) error {
	return ep.Publish(Event{
		Type:    EventTypeProfilesReloaded,
		Source:  "profile",
		Message: fmt.Sprintf("Reloaded %d profiles from %s", count, path),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"path":  path,
			"count": count,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			// Flush batch if it reaches max size
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Flush remaining events before shutting down
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		// Call subscriber in a goroutine to avoid blocking
		go entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	// Signal shutdown
	ep.cancel()

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByOperation creates a filter that only allows events for a specific operation.
func FilterByOperation(operation string) EventFilter {
	return func(event Event) bool {
		return event.Operation == operation
	}
}
