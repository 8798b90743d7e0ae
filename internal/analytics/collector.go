package analytics

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/kafka"
)

// Publisher is the part of kafka.Producer a collector needs.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Collector publishes events from a bounded channel on a background
// goroutine so request handlers never wait on Kafka. Events are dropped when
// the channel is full.
type Collector struct {
	producer Publisher
	eventCh  chan any
	logger   *slog.Logger
	done     chan struct{}
}

func NewCollector(producer Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer: producer,
		eventCh:  make(chan any, bufferSize),
		logger:   slog.Default().With("component", "analytics-collector"),
		done:     make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

func (c *Collector) Track(event any) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event any) {
	if err := c.producer.Publish(ctx, kafka.Event{Key: eventKey(event), Value: event}); err != nil {
		c.logger.Error("failed to publish analytics event", "error", err)
	}
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}

// eventKey partitions hits events by normalized query so one query's
// events stay ordered.
func eventKey(event any) string {
	switch e := event.(type) {
	case HitsEvent:
		if e.Normalized != "" {
			return e.Normalized
		}
		return e.Query
	case IndexEvent:
		return e.DocumentID
	default:
		return "analytics"
	}
}
