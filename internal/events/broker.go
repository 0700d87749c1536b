package events

import (
	"context"
	"encoding/json"
	"sync"
)

// Broker is an in-process pub/sub keyed by device id. Subscribers receive
// JSON-encoded events.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

var _ Publisher = (*Broker)(nil)

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives events of device.
func (b *Broker) Subscribe(device string) chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[device] == nil {
		b.subs[device] = make(map[chan []byte]struct{})
	}
	b.subs[device][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel from the device's subscribers.
func (b *Broker) Unsubscribe(device string, ch chan []byte) {
	b.mu.Lock()
	delete(b.subs[device], ch)
	if len(b.subs[device]) == 0 {
		delete(b.subs, device)
	}
	b.mu.Unlock()
}

// Subscribers reports how many channels listen on device.
func (b *Broker) Subscribers(device string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[device])
}

// Publish sends e to all subscribers of e.Device.
func (b *Broker) Publish(_ context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	b.mu.RLock()
	for ch := range b.subs[e.Device] {
		select {
		case ch <- data:
		default:
			// Drop if subscriber is slow.
		}
	}
	b.mu.RUnlock()
}
