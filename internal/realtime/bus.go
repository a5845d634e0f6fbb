package realtime

import (
	"context"
	"encoding/json"
	"sync"
)

// Scope says which live connections an envelope is addressed to.
type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeUsers  Scope = "users"
	ScopeTenant Scope = "tenant"
)

// Envelope is one emit travelling between gateway instances.
type Envelope struct {
	Scope   Scope           `json:"scope"`
	Targets []string        `json:"targets"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Bus carries envelopes to every gateway instance, including the publisher.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(handler func(Envelope))
	Close() error
}

// LocalBus delivers envelopes in-process. It is enough for a single instance.
type LocalBus struct {
	mu       sync.RWMutex
	handlers []func(Envelope)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

func (b *LocalBus) Publish(_ context.Context, env Envelope) error {
	b.mu.RLock()
	handlers := make([]func(Envelope), len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(env)
	}
	return nil
}

func (b *LocalBus) Subscribe(handler func(Envelope)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *LocalBus) Close() error {
	return nil
}
