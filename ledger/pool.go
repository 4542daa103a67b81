package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type DialFunc func(endpoint string) (Client, error)

// Pool hands out live connections to the configured ledger endpoints.
// Connections are dialed lazily and cached; a handle reported broken
// is dropped and re-dialed on the next Connect.
type Pool struct {
	endpoints []string
	dial      DialFunc
	mu        sync.RWMutex
	clients   map[string]Client
	health    map[string]bool
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func CreatePool(endpoints []string, dial DialFunc) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one ledger endpoint is required")
	}
	if dial == nil {
		dial = Dial
	}

	return &Pool{
		endpoints: endpoints,
		dial:      dial,
		clients:   make(map[string]Client),
		health:    make(map[string]bool),
		stopCh:    make(chan struct{}),
	}, nil
}

func (p *Pool) Endpoints() []string {
	out := make([]string, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

func (p *Pool) Primary() string {
	return p.endpoints[0]
}

// Connect returns a handle for the endpoint, dialing it if no cached
// connection exists.
func (p *Pool) Connect(ctx context.Context, endpoint string) (Client, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p.mu.RLock()
	client, ok := p.clients[endpoint]
	p.mu.RUnlock()
	if ok {
		return client, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok = p.clients[endpoint]; ok {
		return client, nil
	}

	client, err := p.dial(endpoint)
	if err != nil {
		p.health[endpoint] = false
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	p.clients[endpoint] = client
	p.health[endpoint] = true
	return client, nil
}

// Invalidate drops the cached handle for an endpoint after a
// connectivity failure so the next Connect re-dials.
func (p *Pool) Invalidate(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[endpoint]; ok {
		client.Close()
		delete(p.clients, endpoint)
	}
	p.health[endpoint] = false
}

// RunHealthChecks pings every cached connection on the interval until
// the context is cancelled.
func (p *Pool) RunHealthChecks(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			p.checkHealth(ctx)
		}
	}
}

func (p *Pool) checkHealth(ctx context.Context) {
	p.mu.RLock()
	cached := make(map[string]Client, len(p.clients))
	for ep, c := range p.clients {
		cached[ep] = c
	}
	p.mu.RUnlock()

	for ep, client := range cached {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx)
		cancel()

		if err != nil {
			p.Invalidate(ep)
			continue
		}

		p.mu.Lock()
		p.health[ep] = true
		p.mu.Unlock()
	}
}

func (p *Pool) Health() map[string]bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]bool, len(p.health))
	for ep, healthy := range p.health {
		out[ep] = healthy
	}
	return out
}

func (p *Pool) Close() error {
	p.stopOnce.Do(func() { close(p.stopCh) })

	p.mu.Lock()
	defer p.mu.Unlock()

	for ep, client := range p.clients {
		client.Close()
		delete(p.clients, ep)
	}
	return nil
}
