package mqtt

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/questforge/questgraph/internal/events"
)

// Sink is the part of Client the publisher needs.
type Sink interface {
	Publish(topic string, payload []byte) error
}

// Publisher forwards run and node events from the event stream to MQTT.
type Publisher struct {
	sink   Sink
	prefix string
}

// NewPublisher returns a publisher writing below prefix.
func NewPublisher(sink Sink, prefix string) *Publisher {
	return &Publisher{sink: sink, prefix: strings.TrimSuffix(prefix, "/")}
}

var forwarded = events.ByPrefix("run.", "node.")

// Forwarded reports whether an event is published.
func Forwarded(name string) bool {
	return forwarded(events.Event{Name: name})
}

// Topic returns the topic an event is published on.
func (p *Publisher) Topic(name string) string {
	return p.prefix + "/runs/" + name
}

// Run subscribes to the event stream and publishes until ctx is done or the
// subscription is closed.
func (p *Publisher) Run(ctx context.Context) {
	sub := events.Subscribe(forwarded)
	defer events.Unsubscribe(sub)
	p.forward(ctx, sub)
}

func (p *Publisher) forward(ctx context.Context, sub <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			if !Forwarded(e.Name) {
				continue
			}
			payload, err := json.Marshal(e)
			if err != nil {
				log.Printf("mqtt: encode %s: %v", e.Name, err)
				continue
			}
			if err := p.sink.Publish(p.Topic(e.Name), payload); err != nil {
				log.Printf("mqtt: publish %s: %v", e.Name, err)
			}
		}
	}
}
