package rules

import (
	"sync"
	"time"
)

// EventType indicates the category of a game event.
type EventType string

const (
	// Positioning
	EventTokenMoved         EventType = "TOKEN_MOVED"
	EventTokenDeployed      EventType = "TOKEN_DEPLOYED"
	EventEventNodeTriggered EventType = "EVENT_NODE_TRIGGERED"

	// Combat
	EventTokenAttacked  EventType = "TOKEN_ATTACKED"
	EventTokenDestroyed EventType = "TOKEN_DESTROYED"

	// Capture
	EventObjectiveProgress EventType = "OBJECTIVE_PROGRESS"
	EventObjectiveCaptured EventType = "OBJECTIVE_CAPTURED"
	EventWinProgress       EventType = "WIN_PROGRESS"
	EventGameWon           EventType = "GAME_WON"

	// Turn
	EventGameStarted EventType = "GAME_STARTED"
	EventTurnEnded   EventType = "TURN_ENDED"
)

// IsCapture reports whether the event comes from end-of-turn node evaluation.
func (et EventType) IsCapture() bool {
	switch et {
	case EventObjectiveProgress, EventObjectiveCaptured, EventWinProgress, EventGameWon:
		return true
	}
	return false
}

// Event represents a state change that other subsystems may react to.
type Event struct {
	Type        EventType
	TargetID    string // token or tracker the event is about
	SourceID    string // token that caused it, if any
	PlayerID    string // acting or benefiting player
	Amount      int    // damage, health, turns held
	Flag        bool   // destroyed, completed
	Data        string
	Turn        int
	Timestamp   time.Time
	Metadata    map[string]string
	Description string
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

type subscription struct {
	handle    int
	eventType EventType // empty for every event
	callback  Listener
}

// EventBus provides a synchronous publish/subscribe implementation with type
// filtering. Listeners are called in the order they subscribed.
type EventBus struct {
	mu         sync.RWMutex
	listeners  []subscription
	nextHandle int
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	return bus.add("", listener)
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if eventType == "" {
		return -1
	}
	return bus.add(eventType, callback)
}

func (bus *EventBus) add(eventType EventType, callback Listener) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners = append(bus.listeners, subscription{handle: handle, eventType: eventType, callback: callback})
	return handle
}

// Unsubscribe removes the listener identified by the provided handle,
// whether it was registered with Subscribe or SubscribeTyped.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for i, sub := range bus.listeners {
		if sub.handle == handle {
			bus.listeners = append(bus.listeners[:i], bus.listeners[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to the matching listeners synchronously, in
// subscription order. Listeners must not subscribe or unsubscribe from
// inside the callback.
func (bus *EventBus) Publish(event Event) {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	for _, sub := range bus.listeners {
		if sub.eventType == "" || sub.eventType == event.Type {
			sub.callback(event)
		}
	}
}

// PublishBatch publishes events in order.
func (bus *EventBus) PublishBatch(events []Event) {
	for _, event := range events {
		bus.Publish(event)
	}
}

// NewEvent creates a new event with common fields populated.
func NewEvent(eventType EventType, targetID, sourceID, playerID string) Event {
	return Event{
		Type:      eventType,
		TargetID:  targetID,
		SourceID:  sourceID,
		PlayerID:  playerID,
		Timestamp: time.Now(),
		Metadata:  make(map[string]string),
	}
}

// NewEventWithAmount creates a new event with an amount value.
func NewEventWithAmount(eventType EventType, targetID, sourceID, playerID string, amount int) Event {
	evt := NewEvent(eventType, targetID, sourceID, playerID)
	evt.Amount = amount
	return evt
}

// NewEventWithFlag creates a new event with a flag value.
func NewEventWithFlag(eventType EventType, targetID, sourceID, playerID string, flag bool) Event {
	evt := NewEvent(eventType, targetID, sourceID, playerID)
	evt.Flag = flag
	return evt
}
