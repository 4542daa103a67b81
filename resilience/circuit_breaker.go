package resilience

import (
	"sync"
	"time"
)

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerStatus is a point-in-time snapshot of one endpoint's breaker.
type BreakerStatus struct {
	Endpoint     string       `json:"endpoint"`
	State        CircuitState `json:"-"`
	StateName    string       `json:"state"`
	FailureCount int          `json:"failure_count"`
	LastFailure  time.Time    `json:"last_failure,omitempty"`
	OpenedAt     time.Time    `json:"opened_at,omitempty"`
	NextAttempt  time.Time    `json:"next_attempt,omitempty"`
}

type breakerState struct {
	state        CircuitState
	failureCount int
	lastFailure  time.Time
	openedAt     time.Time
	nextAttempt  time.Time
	probing      bool
}

// EndpointBreaker gates ledger endpoints. It is queried, not pushed:
// the submission engine asks CanExecute before each attempt and
// reports the outcome afterwards.
type EndpointBreaker struct {
	failureThreshold int
	timeout          time.Duration
	now              func() time.Time
	mu               sync.Mutex
	states           map[string]*breakerState
	onStateChange    func(endpoint string, from, to CircuitState)
}

type EndpointBreakerConfig struct {
	FailureThreshold int
	Timeout          time.Duration
	OnStateChange    func(endpoint string, from, to CircuitState)
}

func CreateEndpointBreaker(cfg EndpointBreakerConfig) *EndpointBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &EndpointBreaker{
		failureThreshold: cfg.FailureThreshold,
		timeout:          cfg.Timeout,
		now:              time.Now,
		states:           make(map[string]*breakerState),
		onStateChange:    cfg.OnStateChange,
	}
}

func (b *EndpointBreaker) get(endpoint string) *breakerState {
	st, ok := b.states[endpoint]
	if !ok {
		st = &breakerState{state: CircuitClosed}
		b.states[endpoint] = st
	}
	return st
}

// CanExecute reports whether the endpoint may be attempted. An OPEN
// breaker is lazily advanced to HALF_OPEN once its next-attempt time
// elapses; HALF_OPEN permits a single probe until its result lands.
func (b *EndpointBreaker) CanExecute(endpoint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.get(endpoint)
	switch st.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if !b.now().Before(st.nextAttempt) {
			b.transition(endpoint, st, CircuitHalfOpen)
			st.probing = true
			return true
		}
		return false
	case CircuitHalfOpen:
		if st.probing {
			return false
		}
		st.probing = true
		return true
	}
	return false
}

func (b *EndpointBreaker) RecordFailure(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.get(endpoint)
	st.failureCount++
	st.lastFailure = b.now()
	st.probing = false

	switch st.state {
	case CircuitClosed:
		if st.failureCount >= b.failureThreshold {
			b.open(endpoint, st)
		}
	case CircuitHalfOpen:
		b.open(endpoint, st)
	}
}

func (b *EndpointBreaker) RecordSuccess(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.get(endpoint)
	st.failureCount = 0
	st.probing = false
	if st.state != CircuitClosed {
		b.transition(endpoint, st, CircuitClosed)
	}
}

func (b *EndpointBreaker) open(endpoint string, st *breakerState) {
	st.openedAt = b.now()
	st.nextAttempt = st.openedAt.Add(b.timeout)
	b.transition(endpoint, st, CircuitOpen)
}

func (b *EndpointBreaker) transition(endpoint string, st *breakerState, to CircuitState) {
	from := st.state
	if from == to {
		return
	}
	st.state = to

	if b.onStateChange != nil {
		go b.onStateChange(endpoint, from, to)
	}
}

func (b *EndpointBreaker) State(endpoint string) CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(endpoint).state
}

func (b *EndpointBreaker) Snapshot() []BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]BreakerStatus, 0, len(b.states))
	for ep, st := range b.states {
		out = append(out, BreakerStatus{
			Endpoint:     ep,
			State:        st.state,
			StateName:    st.state.String(),
			FailureCount: st.failureCount,
			LastFailure:  st.lastFailure,
			OpenedAt:     st.openedAt,
			NextAttempt:  st.nextAttempt,
		})
	}
	return out
}

func (b *EndpointBreaker) Reset(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.get(endpoint)
	st.failureCount = 0
	st.probing = false
	b.transition(endpoint, st, CircuitClosed)
}
