package api

import (
	"net/http"
	"time"

	"github.com/malwarebo/mintbridge/ledger"
	"github.com/malwarebo/mintbridge/resilience"
)

type HealthResponse struct {
	Status    string                     `json:"status"`
	Timestamp time.Time                  `json:"timestamp"`
	Uptime    string                     `json:"uptime"`
	Endpoints map[string]bool            `json:"endpoints"`
	Breakers  []resilience.BreakerStatus `json:"breakers"`
}

var startTime = time.Now()

type HealthHandler struct {
	pool    *ledger.Pool
	breaker *resilience.EndpointBreaker
}

func CreateHealthHandler(pool *ledger.Pool, breaker *resilience.EndpointBreaker) *HealthHandler {
	return &HealthHandler{pool: pool, breaker: breaker}
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	endpoints := h.pool.Health()

	status := "healthy"
	anyUp := false
	for _, up := range endpoints {
		if up {
			anyUp = true
			break
		}
	}
	if !anyUp && len(endpoints) > 0 {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Uptime:    time.Since(startTime).String(),
		Endpoints: endpoints,
		Breakers:  h.breaker.Snapshot(),
	})
}
