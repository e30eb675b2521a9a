package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 64

// MemoryBroker is the in-process Broker used when no Redis is configured
type MemoryBroker struct {
	mu          sync.Mutex
	revokeAfter time.Duration
	current     map[string]*storedPayload
	subs        map[int]*subscriber
	nextID      int
	closed      bool
	log         logrus.FieldLogger
}

type storedPayload struct {
	data  []byte
	timer *time.Timer
}

type subscriber struct {
	channels map[string]struct{}
	ch       chan Delivery
}

// NewMemoryBroker creates a broker that revokes each payload after revokeAfter
func NewMemoryBroker(revokeAfter time.Duration, log logrus.FieldLogger) *MemoryBroker {
	return &MemoryBroker{
		revokeAfter: revokeAfter,
		current:     make(map[string]*storedPayload),
		subs:        make(map[int]*subscriber),
		log:         log,
	}
}

// Publish stores the payload under channel, fans it out and schedules its revocation
func (b *MemoryBroker) Publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := encode(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload for %s: %w", channel, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	if prev, ok := b.current[channel]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	stored := &storedPayload{data: data}
	if b.revokeAfter > 0 {
		stored.timer = time.AfterFunc(b.revokeAfter, func() { b.revoke(channel, stored) })
	}
	b.current[channel] = stored

	for id, sub := range b.subs {
		if _, ok := sub.channels[channel]; !ok {
			continue
		}
		select {
		case sub.ch <- Delivery{Channel: channel, Payload: data}:
		default:
			b.log.WithFields(logrus.Fields{"channel": channel, "subscriber": id}).Warn("Subscriber buffer full, dropping message")
		}
	}
	return nil
}

func (b *MemoryBroker) revoke(channel string, stored *storedPayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current[channel] == stored {
		delete(b.current, channel)
	}
}

// Latest returns the payload currently stored under channel, if not yet revoked
func (b *MemoryBroker) Latest(ctx context.Context, channel string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, false, ErrClosed
	}
	stored, ok := b.current[channel]
	if !ok {
		return nil, false, nil
	}
	return stored.data, true, nil
}

// Subscribe delivers every payload published on channels until ctx is done
func (b *MemoryBroker) Subscribe(ctx context.Context, channels ...string) (<-chan Delivery, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("subscribe requires at least one channel")
	}

	sub := &subscriber{
		channels: make(map[string]struct{}, len(channels)),
		ch:       make(chan Delivery, subscriberBuffer),
	}
	for _, c := range channels {
		sub.channels[c] = struct{}{}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(id)
	}()

	return sub.ch, nil
}

// unsubscribe closes the subscriber channel exactly once, whoever gets here first
func (b *MemoryBroker) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Close stops pending revocations and closes every subscription
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for channel, stored := range b.current {
		if stored.timer != nil {
			stored.timer.Stop()
		}
		delete(b.current, channel)
	}
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
	return nil
}
