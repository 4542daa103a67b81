package submitter

import (
	"context"
	"time"

	"github.com/malwarebo/mintbridge/ledger"
	"github.com/malwarebo/mintbridge/models"
	"github.com/malwarebo/mintbridge/resilience"
	"github.com/malwarebo/mintbridge/utils"
)

// ActionLedger is the idempotency ledger consulted before and written
// after every submission.
type ActionLedger interface {
	Find(ctx context.Context, key string) (*models.ActionRecord, error)
	Record(ctx context.Context, record *models.ActionRecord) error
}

type Options struct {
	IdempotencyKey    string
	ActionType        string
	Actor             string
	Target            string
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	Timeout           time.Duration
	FallbackEndpoints []string

	// Reissue rebuilds the signed transaction with fresh ledger-expiry
	// parameters. Called when a rejection was expiry-related.
	Reissue func(ctx context.Context) (string, error)
}

type Result struct {
	Success      bool   `json:"success"`
	TxHash       string `json:"tx_hash,omitempty"`
	Validated    bool   `json:"validated"`
	EngineResult string `json:"engine_result,omitempty"`
	LedgerIndex  int64  `json:"ledger_index,omitempty"`
	RetryCount   int    `json:"retry_count"`
	ElapsedMs    int64  `json:"elapsed_ms"`
	UsedFallback bool   `json:"used_fallback"`
	Replayed     bool   `json:"replayed,omitempty"`
}

type EngineConfig struct {
	Network        string
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
	PollInterval   time.Duration
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxRetries:     5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     15 * time.Second,
		Timeout:        2 * time.Minute,
		PollInterval:   2 * time.Second,
	}
}

// Engine turns one unreliable ledger call into a bounded-retry,
// idempotent, circuit-broken operation.
type Engine struct {
	pool    *ledger.Pool
	catalog *ledger.Catalog
	breaker *resilience.EndpointBreaker
	actions ActionLedger
	config  EngineConfig
	logger  *utils.Logger
}

func CreateEngine(pool *ledger.Pool, catalog *ledger.Catalog, breaker *resilience.EndpointBreaker, actions ActionLedger, config EngineConfig, logger *utils.Logger) *Engine {
	defaults := DefaultEngineConfig()
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}

	return &Engine{
		pool:    pool,
		catalog: catalog,
		breaker: breaker,
		actions: actions,
		config:  config,
		logger:  logger,
	}
}

// SubmitAndWait submits a signed transaction and blocks until it is
// validated, terminally rejected, or the time budget runs out. A key
// that already completed returns the stored outcome without touching
// the ledger.
func (e *Engine) SubmitAndWait(ctx context.Context, signedTx string, opts Options) (*Result, error) {
	start := time.Now()
	e.applyDefaults(&opts)

	if opts.IdempotencyKey != "" {
		record, err := e.actions.Find(ctx, opts.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if record != nil {
			return &Result{
				Success:      true,
				TxHash:       record.TxHash,
				Validated:    record.Validated,
				EngineResult: record.EngineResult,
				ElapsedMs:    time.Since(start).Milliseconds(),
				Replayed:     true,
			}, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	endpoints := append(e.pool.Endpoints(), opts.FallbackEndpoints...)
	backoff := resilience.BackoffConfig{
		Initial:        opts.InitialBackoff,
		Max:            opts.MaxBackoff,
		JitterFraction: 0.3,
	}

	tx := signedTx
	endpointIdx := 0
	retryCount := 0
	var lastErr error

	for attempt := 0; attempt < opts.MaxRetries; attempt++ {
		endpoint, ok := e.pickEndpoint(endpoints, &endpointIdx)
		if !ok {
			lastErr = utils.NewLedgerError(utils.ClassEndpointUnavailable, "", "all ledger endpoints are circuit-broken")
			if err := backoff.Sleep(ctx, attempt); err != nil {
				break
			}
			continue
		}

		client, err := e.pool.Connect(ctx, endpoint)
		if err != nil {
			e.breaker.RecordFailure(endpoint)
			endpointIdx++
			lastErr = utils.WrapLedgerError(utils.ClassNetwork, err)
			if err := backoff.Sleep(ctx, attempt); err != nil {
				break
			}
			continue
		}

		submitted, err := client.Submit(ctx, tx)
		if err != nil {
			e.breaker.RecordFailure(endpoint)
			e.pool.Invalidate(endpoint)
			endpointIdx++
			lastErr = utils.WrapLedgerError(utils.ClassNetwork, err)

			action := NextAction(attempt, opts.MaxRetries, Outcome{Kind: OutcomeConnectivity})
			if action.Kind == ActionFail {
				break
			}
			if err := backoff.Sleep(ctx, attempt); err != nil {
				break
			}
			continue
		}

		retryCount++
		e.breaker.RecordSuccess(endpoint)

		outcome := e.classify(submitted.EngineResult)
		action := NextAction(attempt, opts.MaxRetries, outcome)

		switch action.Kind {
		case ActionPoll:
			result, err := e.waitValidated(ctx, client, submitted, opts, retryCount, start, endpoint != e.pool.Primary())
			return result, err

		case ActionFail:
			class := utils.ClassTerminal
			switch outcome.Kind {
			case OutcomeActionRequired:
				class = utils.ClassActionRequired
			case OutcomeRetryable:
				// The rejection itself was retryable; the budget ran out.
				class = utils.ClassRetryable
			}
			message := submitted.EngineResultMessage
			if entry, known := e.catalog.Lookup(submitted.EngineResult); known && message == "" {
				message = entry.Description
			}
			return &Result{
				TxHash:       submitted.TxHash,
				EngineResult: submitted.EngineResult,
				RetryCount:   retryCount,
				ElapsedMs:    time.Since(start).Milliseconds(),
				UsedFallback: endpoint != e.pool.Primary(),
			}, utils.NewLedgerError(class, submitted.EngineResult, message)

		case ActionRetry:
			lastErr = utils.NewLedgerError(utils.ClassRetryable, submitted.EngineResult, submitted.EngineResultMessage)
			if action.Reissue && opts.Reissue != nil {
				fresh, reissueErr := opts.Reissue(ctx)
				if reissueErr != nil {
					return e.exhausted(retryCount, start), utils.WrapLedgerError(utils.ClassTerminal, reissueErr)
				}
				tx = fresh
			}
			if err := backoff.Sleep(ctx, attempt); err != nil {
				attempt = opts.MaxRetries
			}
		}
	}

	if lastErr == nil {
		lastErr = utils.NewLedgerError(utils.ClassRetryable, "", "retry budget exhausted")
	}
	return e.exhausted(retryCount, start), lastErr
}

func (e *Engine) applyDefaults(opts *Options) {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = e.config.MaxRetries
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = e.config.InitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = e.config.MaxBackoff
	}
	if opts.Timeout <= 0 {
		opts.Timeout = e.config.Timeout
	}
}

// pickEndpoint returns the first endpoint at or after *idx that the
// circuit breaker permits, wrapping around once.
func (e *Engine) pickEndpoint(endpoints []string, idx *int) (string, bool) {
	for i := 0; i < len(endpoints); i++ {
		pos := (*idx + i) % len(endpoints)
		endpoint := endpoints[pos]
		if e.breaker.CanExecute(endpoint) {
			*idx = pos
			return endpoint, true
		}
	}
	return "", false
}

func (e *Engine) classify(code string) Outcome {
	switch e.catalog.Classify(code) {
	case ledger.ClassSuccess:
		return Outcome{Kind: OutcomeSubmitted}
	case ledger.ClassRetryable:
		return Outcome{Kind: OutcomeRetryable, Expiry: e.catalog.IsExpiry(code)}
	case ledger.ClassActionRequired:
		return Outcome{Kind: OutcomeActionRequired}
	default:
		return Outcome{Kind: OutcomeTerminal}
	}
}

// waitValidated polls the transaction until the ledger validates it or
// the time budget runs out. A hash the ledger does not know yet is
// still pending, not failed.
func (e *Engine) waitValidated(ctx context.Context, client ledger.Client, submitted *ledger.SubmitResult, opts Options, retryCount int, start time.Time, usedFallback bool) (*Result, error) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return &Result{
				TxHash:       submitted.TxHash,
				EngineResult: submitted.EngineResult,
				RetryCount:   retryCount,
				ElapsedMs:    time.Since(start).Milliseconds(),
				UsedFallback: usedFallback,
			}, utils.NewLedgerError(utils.ClassValidationTimeout, submitted.EngineResult, "submission accepted but not validated within the time budget")
		case <-ticker.C:
		}

		queried, err := client.QueryTx(ctx, submitted.TxHash)
		if err != nil {
			e.logger.Warn(ctx, "tx poll failed", map[string]interface{}{
				"tx_hash": submitted.TxHash,
				"error":   err.Error(),
			})
			continue
		}
		if !queried.Found || !queried.Validated {
			continue
		}

		result := &Result{
			Success:      true,
			TxHash:       submitted.TxHash,
			Validated:    true,
			EngineResult: queried.EngineResult,
			LedgerIndex:  queried.LedgerIndex,
			RetryCount:   retryCount,
			ElapsedMs:    time.Since(start).Milliseconds(),
			UsedFallback: usedFallback,
		}

		// The on-chain effect exists even if the caller's context is
		// already done, so the ledger write must not be cancelled with it.
		if opts.IdempotencyKey != "" {
			record := &models.ActionRecord{
				IdempotencyKey: opts.IdempotencyKey,
				ActionType:     opts.ActionType,
				Actor:          opts.Actor,
				Target:         opts.Target,
				Network:        e.config.Network,
				TxHash:         result.TxHash,
				EngineResult:   result.EngineResult,
				Validated:      true,
			}
			if err := e.actions.Record(context.WithoutCancel(ctx), record); err != nil {
				e.logger.Error(ctx, "failed to record action outcome", map[string]interface{}{
					"idempotency_key": opts.IdempotencyKey,
					"tx_hash":         result.TxHash,
					"error":           err.Error(),
				})
			}
		}

		return result, nil
	}
}

func (e *Engine) exhausted(retryCount int, start time.Time) *Result {
	return &Result{
		RetryCount: retryCount,
		ElapsedMs:  time.Since(start).Milliseconds(),
	}
}
