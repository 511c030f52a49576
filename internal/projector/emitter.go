package projector

import (
	"sync"

	"lessonsync/pkg/types"
)

// Emitter is the typed observer set the projector exposes instead of
// threading ad hoc callbacks through constructors.
// ARCHITECTURAL DISCOVERY: consumers subscribe to the effects they care
// about, decoupling the projector from any specific UI or transport owner
type Emitter struct {
	mu           sync.Mutex
	nextID       int64
	displayMode  map[int64]func(mode string)
	sessionEnded map[int64]func(reason, notice string)
	teardown     map[int64]func()
	surfaced     map[int64]func(message string)
	snapshot     map[int64]func(s *types.SessionSnapshot)
}

// NewEmitter creates an empty observer set.
func NewEmitter() *Emitter {
	return &Emitter{
		displayMode:  make(map[int64]func(string)),
		sessionEnded: make(map[int64]func(string, string)),
		teardown:     make(map[int64]func()),
		surfaced:     make(map[int64]func(string)),
		snapshot:     make(map[int64]func(*types.SessionSnapshot)),
	}
}

func (e *Emitter) register() int64 {
	e.nextID++
	return e.nextID
}

// OnDisplayModeChanged observes display mode transitions. Returns an
// unsubscribe function.
func (e *Emitter) OnDisplayModeChanged(fn func(mode string)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.register()
	e.displayMode[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.displayMode, id)
	}
}

// OnSessionEnded observes session termination with the resolved reason and
// notice text.
func (e *Emitter) OnSessionEnded(fn func(reason, notice string)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.register()
	e.sessionEnded[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.sessionEnded, id)
	}
}

// OnChannelTeardown observes requests to disconnect the push channel.
func (e *Emitter) OnChannelTeardown(fn func()) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.register()
	e.teardown[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.teardown, id)
	}
}

// OnError observes pass-through error events.
func (e *Emitter) OnError(fn func(message string)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.register()
	e.surfaced[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.surfaced, id)
	}
}

// OnSnapshot observes every accepted snapshot mutation with a copy of the
// new state.
func (e *Emitter) OnSnapshot(fn func(s *types.SessionSnapshot)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.register()
	e.snapshot[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.snapshot, id)
	}
}

func (e *Emitter) emitDisplayMode(mode string) {
	for _, fn := range e.copyDisplayMode() {
		fn(mode)
	}
}

func (e *Emitter) emitSessionEnded(reason, notice string) {
	e.mu.Lock()
	fns := make([]func(string, string), 0, len(e.sessionEnded))
	for _, fn := range e.sessionEnded {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(reason, notice)
	}
}

func (e *Emitter) emitTeardown() {
	e.mu.Lock()
	fns := make([]func(), 0, len(e.teardown))
	for _, fn := range e.teardown {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (e *Emitter) emitError(message string) {
	e.mu.Lock()
	fns := make([]func(string), 0, len(e.surfaced))
	for _, fn := range e.surfaced {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(message)
	}
}

func (e *Emitter) emitSnapshot(s *types.SessionSnapshot) {
	e.mu.Lock()
	fns := make([]func(*types.SessionSnapshot), 0, len(e.snapshot))
	for _, fn := range e.snapshot {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(s.Clone())
	}
}

// copyDisplayMode snapshots observers outside the emit loop.
// TECHNICAL DISCOVERY: observers may unsubscribe from inside a callback, so
// emission iterates over a copy rather than the live map
func (e *Emitter) copyDisplayMode() []func(string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fns := make([]func(string), 0, len(e.displayMode))
	for _, fn := range e.displayMode {
		fns = append(fns, fn)
	}
	return fns
}
