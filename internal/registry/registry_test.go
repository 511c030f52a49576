package registry

import (
	"errors"
	"sync"
	"testing"

	"lessonsync/internal/channel"
	"lessonsync/pkg/types"
)

type nullSink struct{}

func (nullSink) Dispatch(*types.Event) {}

func newTestRegistry() (*Registry, *int) {
	dials := 0
	var mu sync.Mutex
	dialer := func(descriptor types.ChannelDescriptor) (*channel.Channel, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return channel.NewChannel(channel.Options{BaseURL: "ws://localhost:1"}, nil, nullSink{}), nil
	}
	return NewRegistry(dialer), &dials
}

func TestRegistry_SharesChannelPerTopic(t *testing.T) {
	r, dials := newTestRegistry()
	descriptor := types.ChannelDescriptor{Scope: types.ScopeSession, ID: 7}

	first, err := r.Acquire(descriptor)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	second, err := r.Acquire(descriptor)
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if first != second {
		t.Error("same descriptor must yield the same channel instance")
	}
	if *dials != 1 {
		t.Errorf("expected one dial for a shared topic, got %d", *dials)
	}
	if r.Refs(descriptor) != 2 {
		t.Errorf("expected 2 refs, got %d", r.Refs(descriptor))
	}
}

func TestRegistry_DistinctTopicsGetDistinctChannels(t *testing.T) {
	r, dials := newTestRegistry()

	a, _ := r.Acquire(types.ChannelDescriptor{Scope: types.ScopeSession, ID: 1})
	b, _ := r.Acquire(types.ChannelDescriptor{Scope: types.ScopeSession, ID: 2})
	c, _ := r.Acquire(types.ChannelDescriptor{Scope: types.ScopeLesson, ID: 1})

	if a == b || a == c || b == c {
		t.Error("distinct descriptors must yield distinct channels")
	}
	if *dials != 3 {
		t.Errorf("expected 3 dials, got %d", *dials)
	}
}

func TestRegistry_LastReleaseTearsDown(t *testing.T) {
	r, dials := newTestRegistry()
	descriptor := types.ChannelDescriptor{Scope: types.ScopeSession, ID: 7}

	_, _ = r.Acquire(descriptor)
	_, _ = r.Acquire(descriptor)

	r.Release(descriptor)
	if r.Refs(descriptor) != 1 {
		t.Errorf("expected 1 ref after first release, got %d", r.Refs(descriptor))
	}

	r.Release(descriptor)
	if r.Refs(descriptor) != 0 {
		t.Errorf("expected 0 refs after last release, got %d", r.Refs(descriptor))
	}

	// A fresh acquire after full teardown dials again.
	_, err := r.Acquire(descriptor)
	if err != nil {
		t.Fatalf("re-Acquire failed: %v", err)
	}
	if *dials != 2 {
		t.Errorf("expected a second dial after teardown, got %d", *dials)
	}
}

func TestRegistry_ReleaseUnknownIsNoOp(t *testing.T) {
	r, _ := newTestRegistry()
	r.Release(types.ChannelDescriptor{Scope: types.ScopeSession, ID: 99})
}

func TestRegistry_DialerErrorPropagates(t *testing.T) {
	wantErr := errors.New("dial refused")
	r := NewRegistry(func(types.ChannelDescriptor) (*channel.Channel, error) {
		return nil, wantErr
	})

	descriptor := types.ChannelDescriptor{Scope: types.ScopeSession, ID: 1}
	if _, err := r.Acquire(descriptor); !errors.Is(err, wantErr) {
		t.Fatalf("expected dialer error, got %v", err)
	}
	if r.Refs(descriptor) != 0 {
		t.Error("failed dial must not register an entry")
	}
}
