package events

import (
	"context"
	"log/slog"
	"sync"
)

// AsyncPublisher hands events to a background worker. When the buffer is
// full the event is dropped and logged.
type AsyncPublisher struct {
	next   Publisher
	logger *slog.Logger
	inbox  chan Event
	wg     sync.WaitGroup
	once   sync.Once
}

func NewAsyncPublisher(next Publisher, buffer int, logger *slog.Logger) *AsyncPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &AsyncPublisher{
		next:   next,
		logger: logger,
		inbox:  make(chan Event, buffer),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *AsyncPublisher) Publish(ctx context.Context, event Event) error {
	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "event buffer full, dropping event",
			"type", event.Type,
			"document_id", event.DocumentID,
		)
	}
	return nil
}

func (p *AsyncPublisher) run() {
	defer p.wg.Done()
	for event := range p.inbox {
		if err := p.next.Publish(context.Background(), event); err != nil {
			p.logger.Error("failed to publish event",
				"type", event.Type,
				"document_id", event.DocumentID,
				"error", err,
			)
		}
	}
}

// Close stops accepting events and waits for the buffer to drain.
// Publish must not be called after Close.
func (p *AsyncPublisher) Close() {
	p.once.Do(func() {
		close(p.inbox)
	})
	p.wg.Wait()
}
