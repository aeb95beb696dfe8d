// Package events describes the lifecycle facts the unit of work emits and the
// publishers that carry them. Emission is best effort: a failing publisher is
// logged and never fails the operation that produced the event.
package events

import (
	"context"
	"sync"
	"time"

	"cradle/internal/family/models"
)

type Type string

const (
	RecordInserted     Type = "record_inserted"
	RecordUpdated      Type = "record_updated"
	RecordDeleted      Type = "record_deleted"
	TransitionRejected Type = "transition_rejected"
	CascadeCompleted   Type = "cascade_completed"
)

type Event struct {
	Type       Type        `json:"type"`
	Kind       models.Kind `json:"kind"`
	DocumentID string      `json:"documentId,omitempty"`
	ParentID   string      `json:"parentId,omitempty"`
	// Count is the number of documents the operation touched.
	Count     int       `json:"count,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Key partitions events so one family's history stays ordered.
func (e Event) Key() string {
	if e.ParentID != "" {
		return e.ParentID
	}
	return e.DocumentID
}

// Publisher delivers events somewhere.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops everything.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// MemoryPublisher records events for tests and local runs.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// OfType filters Events by type.
func (p *MemoryPublisher) OfType(t Type) []Event {
	var out []Event
	for _, e := range p.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
