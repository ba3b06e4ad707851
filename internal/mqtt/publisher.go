package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/birdwatch-app/birdwatch-go/internal/identify"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

var _ identify.Observer = (*Publisher)(nil)

// Publisher turns identification results into MQTT events. Completed never
// blocks the request: events go through a bounded queue and are dropped,
// with a warning, when it is full.
type Publisher struct {
	client *Client
	topic  string
	queue  chan *EventDTO
	now    func() time.Time

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewPublisher starts the publishing worker.
func NewPublisher(client *Client, cfg Config) *Publisher {
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	p := &Publisher{
		client: client,
		topic:  cfg.Topic,
		queue:  make(chan *EventDTO, size),
		now:    time.Now,
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// StageCompleted implements identify.Observer.
func (p *Publisher) StageCompleted(string, time.Duration, error) {}

// Completed implements identify.Observer.
func (p *Publisher) Completed(_ context.Context, res identify.Result, _ identify.Trace) {
	event, ok := NewEventDTO(res, p.now())
	if !ok {
		return
	}
	select {
	case p.queue <- event:
	default:
		GetLogger().Warn("MQTT queue full, dropping event",
			logger.String("species", event.ScientificName))
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for event := range p.queue {
		payload, err := json.Marshal(event)
		if err != nil {
			GetLogger().Error("failed to encode event", logger.Error(err))
			continue
		}
		if err := p.client.Publish(p.topic, payload); err != nil {
			GetLogger().Warn("failed to publish event",
				logger.String("topic", p.topic),
				logger.String("species", event.ScientificName),
				logger.Error(err))
		}
	}
}

// Close drains the queue and stops the worker. Completed must not be called afterwards.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
		p.wg.Wait()
	})
}
