package channel

import (
	"sync"
	"time"
)

// Reconnection policy state machine
type State int

const (
	StateConnected State = iota
	StateReconnecting
	StateFailed
)

// Reconnect defaults
// FUNCTIONAL DISCOVERY: the 3s base delay and 30s ceiling come from the
// production channel path; they are configurable rather than unified
// because a second near-duplicate path shipped without an explicit base
const (
	DefaultBaseDelay   = 3 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMaxAttempts = 5
)

// ReconnectPolicy decides whether and when the channel retries after an
// unexpected close. Exponential backoff with a hard ceiling; reaching the
// attempt cap transitions to failed exactly once.
type ReconnectPolicy struct {
	mu          sync.Mutex
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int

	attempts    int
	state       State
	failedFired bool
}

// NewReconnectPolicy creates a policy; zero parameters take the defaults.
func NewReconnectPolicy(baseDelay, maxDelay time.Duration, maxAttempts int) *ReconnectPolicy {
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &ReconnectPolicy{
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		maxAttempts: maxAttempts,
	}
}

// NextDelay consumes one attempt and returns the backoff delay before it.
// Returns false once the budget is exhausted; the policy is then failed.
func (p *ReconnectPolicy) NextDelay() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.attempts >= p.maxAttempts {
		p.state = StateFailed
		return 0, false
	}

	// delay = base * 2^attempt, capped
	delay := p.baseDelay << uint(p.attempts)
	if delay > p.maxDelay || delay <= 0 {
		delay = p.maxDelay
	}
	p.attempts++
	p.state = StateReconnecting
	return delay, true
}

// Reset records a successful reconnect: attempt counter back to zero.
func (p *ReconnectPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = 0
	p.state = StateConnected
	p.failedFired = false
}

// MarkFailed returns true exactly once per failure episode so the synthetic
// reconnect_failed event is emitted a single time.
func (p *ReconnectPolicy) MarkFailed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateFailed
	if p.failedFired {
		return false
	}
	p.failedFired = true
	return true
}

// State returns the current policy state.
func (p *ReconnectPolicy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Attempts returns the consumed attempt count.
func (p *ReconnectPolicy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}
