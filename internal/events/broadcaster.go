package events

import (
	"sync"
)

// Subscriber receives live events. Its buffer absorbs short bursts; a
// subscriber that falls further behind misses events rather than stalling
// Emit.
type Subscriber chan Event

const subscriberBuffer = 64

// Broadcaster fans events out to live subscribers (WebSocket clients, the
// MQTT publisher). A nil filter receives everything.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]Filter
}

var broadcaster = &Broadcaster{
	subscribers: make(map[Subscriber]Filter),
}

// Subscribe registers a subscriber that receives events matching all of
// filters.
func Subscribe(filters ...Filter) Subscriber {
	ch := make(Subscriber, subscriberBuffer)
	broadcaster.mu.Lock()
	broadcaster.subscribers[ch] = allOf(filters)
	broadcaster.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. It is a no-op for
// subscribers already closed by CloseAllSubscribers.
func Unsubscribe(sub Subscriber) {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()

	if _, ok := broadcaster.subscribers[sub]; !ok {
		return
	}
	delete(broadcaster.subscribers, sub)
	close(sub)
}

func broadcast(e Event) {
	broadcaster.mu.RLock()
	defer broadcaster.mu.RUnlock()

	for sub, match := range broadcaster.subscribers {
		if match != nil && !match(e) {
			continue
		}
		select {
		case sub <- e:
		default:
			// slow subscriber, drop
		}
	}
}

// CloseAllSubscribers removes and closes every subscriber. Used on shutdown.
func CloseAllSubscribers() {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()

	for sub := range broadcaster.subscribers {
		delete(broadcaster.subscribers, sub)
		close(sub)
	}
}

func SubscriberCount() int {
	broadcaster.mu.RLock()
	defer broadcaster.mu.RUnlock()
	return len(broadcaster.subscribers)
}

// RecentEvents returns up to the last n buffered events matching filters,
// oldest first. n <= 0 returns every match.
func RecentEvents(n int, filters ...Filter) []Event {
	out := Select(buffer.Snapshot(), filters...)
	if n <= 0 || n >= len(out) {
		return out
	}
	return out[len(out)-n:]
}
