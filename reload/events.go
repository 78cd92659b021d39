package reload

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind distinguishes successful from failed attempts.
type EventKind string

const (
	EventReloadSucceeded EventKind = "ReloadSucceeded"
	EventReloadFailed    EventKind = "ReloadFailed"
)

// LibraryMapping is a library remapping resolved to URLs for reporting.
type LibraryMapping struct {
	OldID  int    `cbor:"old" json:"old"`
	NewID  int    `cbor:"new" json:"new"`
	OldURL string `cbor:"old_url" json:"oldUrl"`
	NewURL string `cbor:"new_url" json:"newUrl"`
}

// Summary describes what an attempt computed and changed.
type Summary struct {
	ScriptURL       string            `cbor:"script_url" json:"scriptUrl"`
	SavedNumCids    int               `cbor:"saved_num_cids" json:"savedNumCids"`
	NumCids         int               `cbor:"num_cids" json:"numCids"`
	ClassMappings   []Remapping       `cbor:"class_mappings,omitempty" json:"classMappings,omitempty"`
	LibraryMappings []LibraryMapping  `cbor:"library_mappings,omitempty" json:"libraryMappings,omitempty"`
	Duplicates      []DuplicateMatch  `cbor:"duplicates,omitempty" json:"duplicates,omitempty"`
	Invalidation    InvalidationStats `cbor:"invalidation" json:"invalidation"`
}

// Event is the single notification published per attempt.
type Event struct {
	Kind      EventKind
	AttemptID uuid.UUID
	Isolate   string
	Err       error // set for EventReloadFailed
	Summary   Summary
	Time      time.Time
	Elapsed   time.Duration
}

// Observer consumes reload events, for example an inspection service.
type Observer interface {
	HandleEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// HandleEvent implements Observer.
func (f ObserverFunc) HandleEvent(e Event) { f(e) }

// EventBus fans events out to subscribed observers.
type EventBus struct {
	mu        sync.RWMutex
	observers map[int]Observer
	nextID    int
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{observers: make(map[int]Observer)}
}

// Subscribe registers o and returns a function that removes it.
func (b *EventBus) Subscribe(o Observer) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.observers[id] = o
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.observers, id)
	}
}

// Publish delivers e to every observer, in subscription order.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.observers))
	for id := range b.observers {
		ids = append(ids, id)
	}
	observers := make([]Observer, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		observers = append(observers, b.observers[id])
	}
	b.mu.RUnlock()

	for _, o := range observers {
		o.HandleEvent(e)
	}
}
