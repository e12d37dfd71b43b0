package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Client calls the Monnify REST API to initialize hosted-checkout
// transactions. Tokens are cached until shortly before expiry.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	clientSecret string
	contractCode string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a gateway API client.
func NewClient(baseURL, apiKey, clientSecret, contractCode string) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 20 * time.Second},
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		clientSecret: clientSecret,
		contractCode: contractCode,
	}
}

// InitTransactionRequest is the outbound transaction-init payload.
type InitTransactionRequest struct {
	Amount             float64 `json:"amount"`
	CustomerName       string  `json:"customerName"`
	CustomerEmail      string  `json:"customerEmail"`
	PaymentReference   string  `json:"paymentReference"`
	PaymentDescription string  `json:"paymentDescription"`
	CurrencyCode       string  `json:"currencyCode"`
	ContractCode       string  `json:"contractCode"`
	RedirectURL        string  `json:"redirectUrl,omitempty"`
}

// InitTransactionResult carries the fields the service consumes from a
// successful init response.
type InitTransactionResult struct {
	TransactionReference string `json:"transactionReference"`
	CheckoutURL          string `json:"checkoutUrl"`
}

type apiResponse struct {
	RequestSuccessful bool            `json:"requestSuccessful"`
	ResponseMessage   string          `json:"responseMessage"`
	ResponseBody      json.RawMessage `json:"responseBody"`
}

type loginResponseBody struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// InitTransaction initializes a hosted-checkout transaction with the
// gateway and returns the transaction reference and checkout URL.
func (c *Client) InitTransaction(ctx context.Context, req *InitTransactionRequest) (*InitTransactionResult, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("gateway login failed: %w", err)
	}

	if req.ContractCode == "" {
		req.ContractCode = c.contractCode
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal init request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/merchant/transactions/init-transaction", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway init request failed: %w", err)
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || !apiResp.RequestSuccessful {
		return nil, fmt.Errorf("gateway init rejected: status=%d message=%s", resp.StatusCode, apiResp.ResponseMessage)
	}

	var result InitTransactionResult
	if err := json.Unmarshal(apiResp.ResponseBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode init response body: %w", err)
	}

	return &result, nil
}

// token returns a cached bearer token, logging in again when expired.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/auth/login", nil)
	if err != nil {
		return "", err
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(c.apiKey + ":" + c.clientSecret))
	httpReq.Header.Set("Authorization", "Basic "+credentials)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || !apiResp.RequestSuccessful {
		return "", fmt.Errorf("login rejected: status=%d message=%s", resp.StatusCode, apiResp.ResponseMessage)
	}

	var body loginResponseBody
	if err := json.Unmarshal(apiResp.ResponseBody, &body); err != nil {
		return "", fmt.Errorf("failed to decode login body: %w", err)
	}

	c.accessToken = body.AccessToken
	// Refresh one minute early to avoid using a token at the boundary.
	c.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - time.Minute)

	return c.accessToken, nil
}
