package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// rpcClient talks JSON-RPC to a single ledger-access endpoint over
// HTTP. The wire format follows the rippled conventions: a method
// name plus a single params object, with the engine result inside
// result.engine_result.
type rpcClient struct {
	endpoint string
	http     *http.Client
}

func Dial(endpoint string) (Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("empty ledger endpoint")
	}
	return &rpcClient{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

type rpcRequest struct {
	Method string                   `json:"method"`
	Params []map[string]interface{} `json:"params"`
}

type rpcResponse struct {
	Result struct {
		Status              string `json:"status"`
		Error               string `json:"error"`
		ErrorMessage        string `json:"error_message"`
		EngineResult        string `json:"engine_result"`
		EngineResultMessage string `json:"engine_result_message"`
		Validated           bool   `json:"validated"`
		LedgerIndex         int64  `json:"ledger_index"`
		Hash                string `json:"hash"`
		TxJSON              struct {
			Hash string `json:"hash"`
		} `json:"tx_json"`
		Meta struct {
			TransactionResult string `json:"TransactionResult"`
		} `json:"meta"`
	} `json:"result"`
}

func (c *rpcClient) call(ctx context.Context, method string, params map[string]interface{}) (*rpcResponse, error) {
	body, err := json.Marshal(rpcRequest{
		Method: method,
		Params: []map[string]interface{}{params},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("endpoint %s returned HTTP %d", c.endpoint, resp.StatusCode)
	}

	var parsed rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("malformed response from %s: %w", c.endpoint, err)
	}

	return &parsed, nil
}

func (c *rpcClient) Submit(ctx context.Context, signedTx string) (*SubmitResult, error) {
	resp, err := c.call(ctx, "submit", map[string]interface{}{
		"tx_blob": signedTx,
	})
	if err != nil {
		return nil, err
	}

	if resp.Result.Status == "error" {
		return nil, fmt.Errorf("submit rejected by %s: %s (%s)", c.endpoint, resp.Result.Error, resp.Result.ErrorMessage)
	}

	hash := resp.Result.TxJSON.Hash
	if hash == "" {
		hash = resp.Result.Hash
	}

	return &SubmitResult{
		EngineResult:        resp.Result.EngineResult,
		EngineResultMessage: resp.Result.EngineResultMessage,
		TxHash:              hash,
	}, nil
}

func (c *rpcClient) QueryTx(ctx context.Context, hash string) (*TxResult, error) {
	resp, err := c.call(ctx, "tx", map[string]interface{}{
		"transaction": hash,
	})
	if err != nil {
		return nil, err
	}

	// txnNotFound means the ledger does not know the hash yet. The
	// submission may still land, so this is pending, not failed.
	if resp.Result.Status == "error" {
		if resp.Result.Error == "txnNotFound" {
			return &TxResult{Found: false}, nil
		}
		return nil, fmt.Errorf("tx query failed on %s: %s", c.endpoint, resp.Result.Error)
	}

	engineResult := resp.Result.Meta.TransactionResult
	if engineResult == "" {
		engineResult = resp.Result.EngineResult
	}

	return &TxResult{
		Found:        true,
		Validated:    resp.Result.Validated,
		EngineResult: engineResult,
		LedgerIndex:  resp.Result.LedgerIndex,
	}, nil
}

func (c *rpcClient) Ping(ctx context.Context) error {
	resp, err := c.call(ctx, "ping", map[string]interface{}{})
	if err != nil {
		return err
	}
	if resp.Result.Status == "error" {
		return fmt.Errorf("ping failed on %s: %s", c.endpoint, resp.Result.Error)
	}
	return nil
}

func (c *rpcClient) Endpoint() string {
	return c.endpoint
}

func (c *rpcClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
