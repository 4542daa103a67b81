package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RPCSigner signs transactions through a dedicated signing node's
// sign method. Only the signing node holds the key; this process
// ships tx_json over and gets a blob back.
type RPCSigner struct {
	endpoint string
	secret   string
	http     *http.Client
}

func CreateRPCSigner(endpoint, secret string) *RPCSigner {
	return &RPCSigner{
		endpoint: endpoint,
		secret:   secret,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (s *RPCSigner) Sign(ctx context.Context, tx map[string]interface{}) (string, error) {
	body, err := json.Marshal(rpcRequest{
		Method: "sign",
		Params: []map[string]interface{}{{
			"secret":  s.secret,
			"tx_json": tx,
		}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("signing node returned HTTP %d", resp.StatusCode)
	}

	var parsed struct {
		Result struct {
			Status       string `json:"status"`
			Error        string `json:"error"`
			ErrorMessage string `json:"error_message"`
			TxBlob       string `json:"tx_blob"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}

	if parsed.Result.Status != "success" || parsed.Result.TxBlob == "" {
		msg := parsed.Result.ErrorMessage
		if msg == "" {
			msg = parsed.Result.Error
		}
		return "", fmt.Errorf("signing failed: %s", msg)
	}

	return parsed.Result.TxBlob, nil
}
