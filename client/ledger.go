// Package client is the Go client for the ledgerd write path. Callers
// authenticate with a service identity and pre-shared secret; signing
// helpers are provided for building well-formed transaction requests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/ledgercore/ledgerd/service/ledger"
)

// Header names for the pre-shared-key handshake. Mirrored here so the
// client package does not depend on server internals.
const (
	identityHeader = "X-Service-Identity"
	secretHeader   = "X-Service-Secret"
)

// TransactionResult is the server's envelope for pipeline responses.
// Transaction is set once committed; Pending while endorsements are being
// collected.
type TransactionResult struct {
	Status      ledger.Status             `json:"status"`
	Transaction *ledger.TransactionRecord `json:"transaction,omitempty"`
	Pending     *ledger.PendingSummary    `json:"pending,omitempty"`
}

// MempoolSnapshot is the server's mempool accessor response.
type MempoolSnapshot struct {
	Stats   ledger.MempoolStats     `json:"stats"`
	Pending []ledger.PendingSummary `json:"pending"`
}

// AccountHistory is one page of an account's committed transactions.
type AccountHistory struct {
	Address      string                      `json:"address"`
	Transactions []*ledger.TransactionRecord `json:"transactions"`
	Total        int64                       `json:"total"`
	Limit        int                         `json:"limit"`
	Offset       int                         `json:"offset"`
}

// Client is the HTTP client for the ledger node.
type Client struct {
	baseURL    string
	identity   string
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new ledger node client. identity and secret must match
// an entry in the node's services registry.
func NewClient(baseURL, identity, secret string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		identity:   identity,
		secret:     secret,
		httpClient: httpClient,
		logger:     logger,
	}
}

// SignRequest signs the canonical payload of req with the given private key
// and fills in the public key and signature fields.
func SignRequest(req *ledger.TransactionRequest, key solanago.PrivateKey) error {
	req.SenderPublicKey = key.PublicKey().String()
	sig, err := key.Sign(ledger.SigningPayload(req))
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	req.Signature = sig.String()
	return nil
}

// CreateTransaction submits a signed request to the admission pipeline. The
// result's Status is committed when endorsement hints already satisfied
// quorum, admitted otherwise.
func (c *Client) CreateTransaction(ctx context.Context, txn *ledger.TransactionRequest) (*TransactionResult, error) {
	body, err := json.Marshal(txn)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, "POST", c.baseURL+"/api/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return nil, c.parseErrorResponse(resp)
	}

	var result TransactionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("transaction submitted",
		"sender", txn.SenderAddress,
		"nonce", txn.Nonce,
		"status", result.Status,
	)
	return &result, nil
}

// GetTransaction resolves a transaction id to its committed record or its
// pending snapshot.
func (c *Client) GetTransaction(ctx context.Context, id string) (*TransactionResult, error) {
	u := fmt.Sprintf("%s/api/v1/transactions/%s", c.baseURL, url.PathEscape(id))
	req, err := c.newRequest(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var result TransactionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// SubmitVote records a validator endorsement on a pending transaction.
// validator may be empty, in which case the client's own identity votes.
func (c *Client) SubmitVote(ctx context.Context, id, validator string) (*TransactionResult, error) {
	body, err := json.Marshal(map[string]string{"validator": validator})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	u := fmt.Sprintf("%s/api/v1/transactions/%s/votes", c.baseURL, url.PathEscape(id))
	req, err := c.newRequest(ctx, "POST", u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var result TransactionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("vote submitted", "txn_id", id, "validator", validator, "status", result.Status)
	return &result, nil
}

// CancelTransaction withdraws a pending transaction. Fails once the
// transaction has reached quorum.
func (c *Client) CancelTransaction(ctx context.Context, id string) error {
	u := fmt.Sprintf("%s/api/v1/transactions/%s", c.baseURL, url.PathEscape(id))
	req, err := c.newRequest(ctx, "DELETE", u, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("transaction cancelled", "txn_id", id)
	return nil
}

// GetAccount retrieves the node's view of an account: balance and committed
// nonce. Callers hitting nonce conflicts requery here to resynchronize.
func (c *Client) GetAccount(ctx context.Context, address string) (*ledger.Account, error) {
	u := fmt.Sprintf("%s/api/v1/accounts/%s", c.baseURL, url.PathEscape(address))
	req, err := c.newRequest(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var account ledger.Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &account, nil
}

// ListAccountTransactions pages through an account's committed history.
func (c *Client) ListAccountTransactions(ctx context.Context, address string, limit, offset int) (*AccountHistory, error) {
	u := fmt.Sprintf("%s/api/v1/accounts/%s/transactions?limit=%d&offset=%d",
		c.baseURL, url.PathEscape(address), limit, offset)
	req, err := c.newRequest(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var history AccountHistory
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &history, nil
}

// GetMempool retrieves pool occupancy and pending transaction snapshots.
func (c *Client) GetMempool(ctx context.Context) (*MempoolSnapshot, error) {
	req, err := c.newRequest(ctx, "GET", c.baseURL+"/api/v1/mempool", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var snapshot MempoolSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &snapshot, nil
}

// Health checks node liveness. Unauthenticated.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// newRequest builds an authenticated request.
func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(identityHeader, c.identity)
	req.Header.Set(secretHeader, c.secret)
	return req, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
