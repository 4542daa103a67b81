package ledger

import (
	"sync"
)

type Classification int

const (
	ClassUnknown Classification = iota
	ClassSuccess
	ClassRetryable
	ClassActionRequired
	ClassTerminal
)

func (c Classification) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassRetryable:
		return "retryable"
	case ClassActionRequired:
		return "action_required"
	case ClassTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// ResultEntry describes one ledger engine-result code.
type ResultEntry struct {
	Code        string
	Class       Classification
	Expiry      bool   // rejection caused by a stale ledger-expiry bound
	ActionTag   string // machine tag for action-required codes
	Description string
}

// Catalog maps engine result codes to their handling. The table is
// static data plus Register for codes the defaults do not cover; codes
// it has never seen classify as terminal so nothing retries blindly.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]ResultEntry
}

func CreateCatalog() *Catalog {
	return &Catalog{entries: make(map[string]ResultEntry)}
}

func (c *Catalog) Register(e ResultEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.Code] = e
}

func (c *Catalog) Lookup(code string) (ResultEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[code]
	return e, ok
}

func (c *Catalog) Classify(code string) Classification {
	if e, ok := c.Lookup(code); ok {
		return e.Class
	}
	return ClassTerminal
}

func (c *Catalog) IsExpiry(code string) bool {
	e, ok := c.Lookup(code)
	return ok && e.Expiry
}

func (c *Catalog) ActionTag(code string) string {
	e, ok := c.Lookup(code)
	if !ok {
		return ""
	}
	return e.ActionTag
}

// DefaultCatalog seeds the codes observed against rippled-family
// networks. Deployments extend it with Register.
func DefaultCatalog() *Catalog {
	c := CreateCatalog()

	for _, e := range []ResultEntry{
		{Code: "tesSUCCESS", Class: ClassSuccess, Description: "transaction applied, awaiting validation"},
		{Code: "terQUEUED", Class: ClassSuccess, Description: "queued for a later ledger, poll for validation"},

		{Code: "terRETRY", Class: ClassRetryable, Description: "transient failure, retry"},
		{Code: "terPRE_SEQ", Class: ClassRetryable, Description: "sequence not yet reached"},
		{Code: "telINSUF_FEE_P", Class: ClassRetryable, Description: "open ledger fee spike"},
		{Code: "telCAN_NOT_QUEUE", Class: ClassRetryable, Description: "queue full"},
		{Code: "tefPAST_SEQ", Class: ClassRetryable, Expiry: true, Description: "sequence already used, rebuild"},
		{Code: "tefMAX_LEDGER", Class: ClassRetryable, Expiry: true, Description: "ledger-expiry bound passed, rebuild"},

		{Code: "tecNO_AUTH", Class: ClassActionRequired, ActionTag: "asset_authorization_missing", Description: "holder not authorized for the asset"},
		{Code: "tecNO_LINE", Class: ClassActionRequired, ActionTag: "trustline_missing", Description: "no trustline to the issuer"},
		{Code: "tecNO_PERMISSION", Class: ClassActionRequired, ActionTag: "permission_missing", Description: "account lacks permission"},

		{Code: "tecUNFUNDED_PAYMENT", Class: ClassTerminal, Description: "insufficient funds"},
		{Code: "tecPATH_DRY", Class: ClassTerminal, Description: "no path with sufficient liquidity"},
		{Code: "tecOBJECT_NOT_FOUND", Class: ClassTerminal, Description: "referenced ledger object does not exist"},
		{Code: "temBAD_CURRENCY", Class: ClassTerminal, Description: "malformed currency code"},
		{Code: "temMALFORMED", Class: ClassTerminal, Description: "malformed transaction"},
		{Code: "tefALREADY", Class: ClassTerminal, Description: "transaction already applied"},
	} {
		c.Register(e)
	}

	return c
}
