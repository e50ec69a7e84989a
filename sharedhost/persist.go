package sharedhost

import (
	"sync"

	"github.com/streamhub/streamhub/envelope"
)

// MemoryPersister is a trivial in-process Persister, useful mainly for
// tests; a real deployment would back this with a file or external store.
// Mirrors mcp/session_store.go's MemoryServerSessionStateStore.
type MemoryPersister struct {
	mu       sync.Mutex
	identity envelope.Identity
	cache    map[string]envelope.MessageEnvelope
	has      bool
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (p *MemoryPersister) Save(identity envelope.Identity, lastMessageByType map[string]envelope.MessageEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identity = identity
	p.cache = make(map[string]envelope.MessageEnvelope, len(lastMessageByType))
	for k, v := range lastMessageByType {
		p.cache[k] = v
	}
	p.has = true
	return nil
}

func (p *MemoryPersister) Load() (envelope.Identity, map[string]envelope.MessageEnvelope, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.has {
		return envelope.Identity{}, nil, nil
	}
	out := make(map[string]envelope.MessageEnvelope, len(p.cache))
	for k, v := range p.cache {
		out[k] = v
	}
	return p.identity, out, nil
}

func (p *MemoryPersister) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identity = envelope.Identity{}
	p.cache = nil
	p.has = false
	return nil
}
