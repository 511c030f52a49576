// Package registry multiplexes one transport channel per topic across
// multiple consumers in the same process.
//
// The source kept a process-wide map for this; here the registry is an
// explicit object owned by the application root and injected into
// consumers, with reference counting driving teardown.
package registry

import (
	"log"
	"sync"

	"lessonsync/internal/channel"
	"lessonsync/pkg/types"
)

// Dialer constructs a new channel for a descriptor when no shared instance
// exists yet.
type Dialer func(descriptor types.ChannelDescriptor) (*channel.Channel, error)

type entry struct {
	channel *channel.Channel
	refs    int
}

// Registry maps descriptor keys to shared channel instances.
// ARCHITECTURAL DISCOVERY: RWMutex-free single mutex is enough here -
// acquire/release are rare compared to message flow, which bypasses the
// registry entirely
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	dialer  Dialer
}

// NewRegistry creates a registry using the given dialer.
func NewRegistry(dialer Dialer) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		dialer:  dialer,
	}
}

// Acquire returns the shared channel for a descriptor, dialing a new one on
// first use. Every Acquire must be paired with one Release.
func (r *Registry) Acquire(descriptor types.ChannelDescriptor) (*channel.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := descriptor.Key()
	if e, ok := r.entries[key]; ok {
		e.refs++
		return e.channel, nil
	}

	ch, err := r.dialer(descriptor)
	if err != nil {
		return nil, err
	}
	r.entries[key] = &entry{channel: ch, refs: 1}
	log.Printf("Channel registered: topic=%s", key)
	return ch, nil
}

// Release drops one reference; the channel disconnects when the last
// reference goes. Releasing an unknown descriptor is a no-op.
func (r *Registry) Release(descriptor types.ChannelDescriptor) {
	r.mu.Lock()
	key := descriptor.Key()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.entries, key)
	r.mu.Unlock()

	// Disconnect outside the lock: teardown cancels timers synchronously.
	e.channel.Disconnect()
	log.Printf("Channel released: topic=%s", key)
}

// Refs returns the reference count for a descriptor (monitoring/tests).
func (r *Registry) Refs(descriptor types.ChannelDescriptor) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[descriptor.Key()]; ok {
		return e.refs
	}
	return 0
}
