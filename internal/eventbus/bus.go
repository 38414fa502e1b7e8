package eventbus

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Type tags an event with what happened.
type Type string

const (
	TypeStatusChanged Type = "status_changed"
	TypeAgentStarted  Type = "agent_started"
	TypeAgentFinished Type = "agent_finished"
	TypeRunError      Type = "run_error"
	TypeItemDeleted   Type = "item_deleted"
)

// Event is the fan-out payload for status and run lifecycle changes. Optional
// fields are empty when they do not apply to the event type.
type Event struct {
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	WorkItemID   string    `json:"workItemId"`
	WorkspaceID  string    `json:"workspaceId"`
	Kind         string    `json:"kind"`
	OldStatus    string    `json:"oldStatus,omitempty"`
	NewStatus    string    `json:"newStatus,omitempty"`
	AgentName    string    `json:"agentName,omitempty"`
	Outcome      string    `json:"outcome,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Event
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan *Event),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *Event) {
	id := ulid.Make().String()
	ch := make(chan *Event, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// buffer full, drop event for this subscriber
		}
	}
}

// PublishNew stamps id and timestamp and publishes.
func (b *Bus) PublishNew(event Event) {
	event.ID = ulid.Make().String()
	event.CreatedAt = time.Now().UTC()
	b.Publish(&event)
}
