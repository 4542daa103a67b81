package submitter

// OutcomeKind classifies what just happened to a submission attempt.
type OutcomeKind int

const (
	OutcomeSubmitted OutcomeKind = iota // engine accepted, wait for validation
	OutcomeRetryable
	OutcomeActionRequired
	OutcomeTerminal
	OutcomeConnectivity
)

type Outcome struct {
	Kind   OutcomeKind
	Expiry bool // rejection caused by a stale ledger-expiry bound
}

type ActionKind int

const (
	ActionPoll ActionKind = iota
	ActionRetry
	ActionRotate
	ActionFail
)

// Action is the engine's next move for one attempt.
type Action struct {
	Kind    ActionKind
	Backoff bool // sleep before the next submission
	Reissue bool // regenerate ledger-expiry parameters first
}

// NextAction is the pure retry decision: given the attempt number
// (0-based), the retry bound, and the prior outcome, it returns what
// the I/O loop does next. No clock, no network.
func NextAction(attempt, maxRetries int, out Outcome) Action {
	switch out.Kind {
	case OutcomeSubmitted:
		return Action{Kind: ActionPoll}
	case OutcomeTerminal, OutcomeActionRequired:
		return Action{Kind: ActionFail}
	case OutcomeRetryable:
		if attempt+1 >= maxRetries {
			return Action{Kind: ActionFail}
		}
		return Action{Kind: ActionRetry, Backoff: true, Reissue: out.Expiry}
	case OutcomeConnectivity:
		if attempt+1 >= maxRetries {
			return Action{Kind: ActionFail}
		}
		return Action{Kind: ActionRotate, Backoff: true}
	}
	return Action{Kind: ActionFail}
}
